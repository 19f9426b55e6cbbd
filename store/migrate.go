package store

import (
	"strings"

	"github.com/syndtr/goleveldb/leveldb/util"
)

const legacyBlockKeyPrefix = "block:"

// MigrateLegacyBlockKeys rewrites any block entries stored under the
// legacy "block:<height>" key format (colon-separated, from an earlier
// revision of this keyspace) to the current "block_<height>" format, then
// deletes the legacy entries. Safe to call repeatedly; a no-op once no
// legacy keys remain.
func (db *DB) MigrateLegacyBlockKeys() (migrated int, err error) {
	full := make([]byte, 0, len(prefixBlocks)+len(legacyBlockKeyPrefix))
	full = append(full, prefixBlocks...)
	full = append(full, legacyBlockKeyPrefix...)

	iter := db.ldb.NewIterator(util.BytesPrefix(full), nil)
	defer iter.Release()

	type rewrite struct {
		oldKey []byte
		newKey []byte
		value  []byte
	}
	var pending []rewrite

	for iter.Next() {
		oldKey := append([]byte(nil), iter.Key()...)
		value := append([]byte(nil), iter.Value()...)

		suffix := strings.TrimPrefix(string(oldKey), string(prefixBlocks)+legacyBlockKeyPrefix)
		newKey := append([]byte(nil), prefixBlocks...)
		newKey = append(newKey, []byte("block_"+suffix)...)

		pending = append(pending, rewrite{oldKey: oldKey, newKey: newKey, value: value})
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}

	for _, r := range pending {
		if err := db.ldb.Put(r.newKey, r.value, nil); err != nil {
			return migrated, err
		}
		if err := db.ldb.Delete(r.oldKey, nil); err != nil {
			return migrated, err
		}
		migrated++
	}
	return migrated, nil
}
