package history

import (
	"time"

	bolt "go.etcd.io/bbolt"

	"go.crosstest.dev/harness/errors"
)

// bucketWrites maps action name -> last history write timestamp (RFC3339).
// bucketTags maps "<tagName>\x00<name>" -> "1", answering "does tag T have
// an outcome for name N" without a directory stat.
const (
	bucketWrites = "writes"
	bucketTags   = "tags"
)

// Index is an optional bbolt-backed accelerator over a Store, sharing the
// same advisory-only contract as fingerprint.Index: Store.Read never
// consults it, a failed update is only logged by Store.Write, and it is not
// rebuilt from the filesystem.
type Index struct {
	db *bolt.DB
}

// OpenIndex opens or creates a bbolt database at path.
func OpenIndex(path string) (*Index, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open history index %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range []string{bucketWrites, bucketTags} {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to initialize history index %s", path)
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

// RecordWrite notes that name's history was just written at ts.
func (idx *Index) RecordWrite(name string, ts time.Time) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketWrites)).Put([]byte(name), []byte(ts.UTC().Format(time.RFC3339)))
	})
}

// LastWrite returns the last recorded write timestamp for name, if any.
func (idx *Index) LastWrite(name string) (ts time.Time, ok bool) {
	_ = idx.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketWrites)).Get([]byte(name))
		if v == nil {
			return nil
		}
		t, err := time.Parse(time.RFC3339, string(v))
		if err != nil {
			return nil
		}
		ts, ok = t, true
		return nil
	})
	return ts, ok
}

// RecordTag notes that tagName has a canonical outcome for name.
func (idx *Index) RecordTag(tagName, name string) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketTags)).Put(tagKey(tagName, name), []byte{1})
	})
}

// HasTag reports whether tagName has a recorded canonical outcome for name.
func (idx *Index) HasTag(tagName, name string) bool {
	found := false
	_ = idx.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket([]byte(bucketTags)).Get(tagKey(tagName, name)) != nil
		return nil
	})
	return found
}

func tagKey(tagName, name string) []byte {
	return []byte(tagName + "\x00" + name)
}
