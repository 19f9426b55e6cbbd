package store

import (
	"testing"

	"github.com/timecoin/timecoind/chain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestKeyValueStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	kv := db.Masternodes()

	if err := kv.Put([]byte("tnode1"), []byte("profile-bytes")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := kv.Get([]byte("tnode1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "profile-bytes" {
		t.Fatalf("got %q, want %q", got, "profile-bytes")
	}
}

func TestKeyValueStoreNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.PeerScores().Get([]byte("missing")); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestKeyspacesAreIsolated(t *testing.T) {
	db := openTestDB(t)
	db.Blocks().Put([]byte("shared-key"), []byte("block-value"))
	db.UTXOs().Put([]byte("shared-key"), []byte("utxo-value"))

	blockVal, err := db.Blocks().Get([]byte("shared-key"))
	if err != nil {
		t.Fatalf("get block: %v", err)
	}
	utxoVal, err := db.UTXOs().Get([]byte("shared-key"))
	if err != nil {
		t.Fatalf("get utxo: %v", err)
	}
	if string(blockVal) == string(utxoVal) {
		t.Fatalf("expected distinct keyspaces to not collide")
	}
	if string(blockVal) != "block-value" || string(utxoVal) != "utxo-value" {
		t.Fatalf("unexpected values: block=%q utxo=%q", blockVal, utxoVal)
	}
}

func sampleBlock(height uint64) *chain.Block {
	h := &chain.BlockHeader{Version: 1, Height: height, Timestamp: 1_700_000_000, Leader: "tnode1"}
	return &chain.Block{Header: h}
}

func TestBlockStorePutGetDelete(t *testing.T) {
	db := openTestDB(t)
	bs := db.BlockStore()

	b := sampleBlock(10)
	if err := bs.PutBlock(b); err != nil {
		t.Fatalf("put block: %v", err)
	}

	got, err := bs.GetBlock(10)
	if err != nil {
		t.Fatalf("get block: %v", err)
	}
	if got.Header.Height != 10 {
		t.Fatalf("expected height 10, got %d", got.Header.Height)
	}

	best, ok, err := bs.BestHeight()
	if err != nil || !ok || best != 10 {
		t.Fatalf("expected best height 10, got %d ok=%v err=%v", best, ok, err)
	}

	if err := bs.DeleteBlock(10); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := bs.GetBlock(10); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestBlockStoreBestHeightTracksMaximum(t *testing.T) {
	db := openTestDB(t)
	bs := db.BlockStore()

	bs.PutBlock(sampleBlock(5))
	bs.PutBlock(sampleBlock(20))
	bs.PutBlock(sampleBlock(3))

	best, ok, err := bs.BestHeight()
	if err != nil || !ok || best != 20 {
		t.Fatalf("expected best height 20, got %d ok=%v err=%v", best, ok, err)
	}
}

func TestMigrateLegacyBlockKeys(t *testing.T) {
	db := openTestDB(t)

	legacyKey := append(append([]byte{}, prefixBlocks...), []byte("block:42")...)
	if err := db.ldb.Put(legacyKey, []byte("legacy-value"), nil); err != nil {
		t.Fatalf("seed legacy key: %v", err)
	}

	migrated, err := db.MigrateLegacyBlockKeys()
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if migrated != 1 {
		t.Fatalf("expected 1 key migrated, got %d", migrated)
	}

	val, err := db.Blocks().Get([]byte("block_42"))
	if err != nil {
		t.Fatalf("expected migrated key present: %v", err)
	}
	if string(val) != "legacy-value" {
		t.Fatalf("unexpected migrated value: %q", val)
	}

	if _, err := db.ldb.Get(legacyKey, nil); err == nil {
		t.Fatalf("expected legacy key removed after migration")
	}

	again, err := db.MigrateLegacyBlockKeys()
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected no-op on second migration, got %d", again)
	}
}
