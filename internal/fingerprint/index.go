package fingerprint

import (
	"encoding/binary"

	bolt "go.etcd.io/bbolt"

	"go.crosstest.dev/harness/errors"
)

// bucketSizes is the single bbolt bucket holding key -> little-endian uint64
// size entries. It exists purely to let a driver restart answer "do I
// already have this key" without a directory stat, which matters once the
// cache holds tens of thousands of entries on a slow SSH-mounted target
// filesystem.
const bucketSizes = "sizes"

// Index is an optional bbolt-backed acceleration structure layered over a
// Cache. It is never the source of truth: the cache directory itself is
// authoritative, Cache.Lookup never consults the index, and a failed
// index update during Cache.Publish is only logged. The index is not
// rebuilt from the cache directory.
type Index struct {
	db *bolt.DB
}

// OpenIndex opens or creates a bbolt database at path.
func OpenIndex(path string) (*Index, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open fingerprint index %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSizes))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to initialize fingerprint index %s", path)
	}
	return &Index{db: db}, nil
}

// Close closes the underlying bbolt database.
func (idx *Index) Close() error {
	if idx == nil || idx.db == nil {
		return nil
	}
	return idx.db.Close()
}

// Record notes that key was published with the given size.
func (idx *Index) Record(key Key, size int64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(size))
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSizes)).Put([]byte(key), buf)
	})
}

// Has reports whether the index believes key was already published, along
// with the recorded size. A false return does not guarantee the key is
// absent from the cache directory; callers still fall back to Cache.Lookup
// when they need a definitive answer (e.g. across a process restart that
// predates the index, or after index corruption).
func (idx *Index) Has(key Key) (size int64, ok bool) {
	_ = idx.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketSizes)).Get([]byte(key))
		if v == nil || len(v) != 8 {
			return nil
		}
		size = int64(binary.LittleEndian.Uint64(v))
		ok = true
		return nil
	})
	return size, ok
}

// Forget removes key from the index, used when a cache entry is evicted
// out of band.
func (idx *Index) Forget(key Key) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSizes)).Delete([]byte(key))
	})
}
