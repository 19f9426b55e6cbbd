// Package store persists chain and consensus-support data to a single
// embedded goleveldb handle, using key prefixes as separate logical
// keyspaces ("trees"): blocks, utxos, masternodes, peer_scores,
// anomaly_detection, fee_predictions, ai_mn_health. This is the simplest
// faithful reading of "separate logical keyspaces" for an engine without
// native column families.
//
// github.com/syndtr/goleveldb is the same embedded key-value store
// EXCCoin-exccd's dependency graph carries for its block database.
package store

import (
	"encoding/binary"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/timecoin/timecoind/chain"
)

// Keyspace prefixes. Each logical "tree" is a distinct byte prefix over
// the one underlying LevelDB keyspace.
var (
	prefixBlocks           = []byte("blocks/")
	prefixUTXOs            = []byte("utxos/")
	prefixMasternodes      = []byte("masternodes/")
	prefixPeerScores       = []byte("peer_scores/")
	prefixAnomalyDetection = []byte("anomaly_detection/")
	prefixFeePredictions   = []byte("fee_predictions/")
	prefixAIMnHealth       = []byte("ai_mn_health/")
)

// ErrNotFound mirrors leveldb.ErrNotFound under a package-local name so
// callers don't need to import goleveldb directly.
var ErrNotFound = errors.New("store: key not found")

// KeyValueStore is a narrow, prefix-scoped key-value interface. Each
// method operates within a single keyspace: Get, Put and Delete take keys
// relative to it, while the iterator returned by Iterate reports full,
// prefixed keys.
type KeyValueStore interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Iterate(prefix []byte) (iterator.Iterator, error)
}

// BlockStore is the narrow interface consensus components use to persist
// and retrieve canonical blocks by height.
type BlockStore interface {
	PutBlock(b *chain.Block) error
	GetBlock(height uint64) (*chain.Block, error)
	DeleteBlock(height uint64) error
	BestHeight() (uint64, bool, error)

	// SetBestHeight forcibly repoints the tracked chain tip at height,
	// regardless of whether it is higher than the previously tracked tip.
	// PutBlock only ever advances the tip; a reorg rollback needs to move
	// it backward to the common ancestor before reapplying the new chain.
	SetBestHeight(height uint64) error
}

// DB wraps one goleveldb handle, exposing prefix-scoped sub-stores for
// each logical keyspace.
type DB struct {
	ldb *leveldb.DB
}

// Open opens (creating if absent) the LevelDB database rooted at path.
func Open(path string) (*DB, error) {
	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &DB{ldb: ldb}, nil
}

// Close releases the underlying database handle.
func (db *DB) Close() error {
	return db.ldb.Close()
}

// prefixed implements KeyValueStore over a single key prefix.
type prefixed struct {
	ldb    *leveldb.DB
	prefix []byte
}

func (db *DB) keyspace(prefix []byte) *prefixed {
	return &prefixed{ldb: db.ldb, prefix: prefix}
}

// Blocks returns the keyspace for canonical block storage.
func (db *DB) Blocks() KeyValueStore { return db.keyspace(prefixBlocks) }

// UTXOs returns the keyspace for unspent transaction outputs.
func (db *DB) UTXOs() KeyValueStore { return db.keyspace(prefixUTXOs) }

// Masternodes returns the keyspace for masternode profiles.
func (db *DB) Masternodes() KeyValueStore { return db.keyspace(prefixMasternodes) }

// PeerScores returns the keyspace for peer anomaly-score snapshots.
func (db *DB) PeerScores() KeyValueStore { return db.keyspace(prefixPeerScores) }

// AnomalyDetection returns the keyspace for anomaly-detector state.
func (db *DB) AnomalyDetection() KeyValueStore { return db.keyspace(prefixAnomalyDetection) }

// FeePredictions returns the keyspace reserved for fee-prediction state.
// Nothing in this module writes to it; the keyspace is retained so a
// future consumer doesn't collide with the others.
func (db *DB) FeePredictions() KeyValueStore { return db.keyspace(prefixFeePredictions) }

// AIMnHealth returns the keyspace reserved for masternode AI-health
// scoring state, superseded in this module by the health package's
// in-memory Monitor; retained for persistence of historical samples by a
// future consumer.
func (db *DB) AIMnHealth() KeyValueStore { return db.keyspace(prefixAIMnHealth) }

func (p *prefixed) fullKey(key []byte) []byte {
	full := make([]byte, 0, len(p.prefix)+len(key))
	full = append(full, p.prefix...)
	full = append(full, key...)
	return full
}

func (p *prefixed) Get(key []byte) ([]byte, error) {
	v, err := p.ldb.Get(p.fullKey(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (p *prefixed) Put(key, value []byte) error {
	return p.ldb.Put(p.fullKey(key), value, nil)
}

func (p *prefixed) Delete(key []byte) error {
	return p.ldb.Delete(p.fullKey(key), nil)
}

func (p *prefixed) Iterate(subPrefix []byte) (iterator.Iterator, error) {
	full := p.fullKey(subPrefix)
	return p.ldb.NewIterator(util.BytesPrefix(full), nil), nil
}

// blockStore implements BlockStore on top of the "blocks" keyspace, using
// the block_<height> key format (see store/migrate.go for the
// legacy-format migration).
type blockStore struct {
	kv KeyValueStore
}

// BlockStore returns a BlockStore view over the database.
func (db *DB) BlockStore() BlockStore {
	return &blockStore{kv: db.Blocks()}
}

func blockKey(height uint64) []byte {
	return []byte("block_" + formatUint(height))
}

func formatUint(v uint64) string {
	buf := make([]byte, 20)
	n := len(buf)
	if v == 0 {
		return "0"
	}
	for v > 0 {
		n--
		buf[n] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[n:])
}

const bestHeightKey = "meta/best_height"

func (bs *blockStore) PutBlock(b *chain.Block) error {
	enc, err := chain.EncodeBlock(b)
	if err != nil {
		return err
	}
	if err := bs.kv.Put(blockKey(b.Header.Height), enc); err != nil {
		return err
	}

	best, ok, err := bs.BestHeight()
	if err != nil {
		return err
	}
	if !ok || b.Header.Height > best {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], b.Header.Height)
		if err := bs.kv.Put([]byte(bestHeightKey), buf[:]); err != nil {
			return err
		}
	}
	return nil
}

func (bs *blockStore) GetBlock(height uint64) (*chain.Block, error) {
	raw, err := bs.kv.Get(blockKey(height))
	if err != nil {
		return nil, err
	}
	return chain.DecodeBlock(raw)
}

func (bs *blockStore) DeleteBlock(height uint64) error {
	return bs.kv.Delete(blockKey(height))
}

func (bs *blockStore) SetBestHeight(height uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], height)
	return bs.kv.Put([]byte(bestHeightKey), buf[:])
}

func (bs *blockStore) BestHeight() (uint64, bool, error) {
	raw, err := bs.kv.Get([]byte(bestHeightKey))
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return binary.LittleEndian.Uint64(raw), true, nil
}
