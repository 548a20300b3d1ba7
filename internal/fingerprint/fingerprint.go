// Package fingerprint implements the content-addressed cache of compile
// outputs and pushed files described by the harness: a write-once,
// atomically-published cache keyed by a digest of the cached content.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"go.crosstest.dev/harness/errors"
	"go.crosstest.dev/harness/logging"
)

// Key is an opaque cache key of the form "<namespace>.<hex-digest>".
type Key string

// MakeKey derives a stable key for source, prefixed by namespace (e.g.
// "dex", "pushed"). The digest is the first 128 bits (16 bytes) of the
// SHA-256 hash of source, hex-encoded.
func MakeKey(namespace string, source []byte) Key {
	sum := sha256.Sum256(source)
	return Key(namespace + "." + hex.EncodeToString(sum[:16]))
}

// Cache is a content-addressed cache rooted at a directory on the host's
// local filesystem; it never reads or writes the execution target's
// filesystem. Modes that push compiled artifacts to a device use a
// host-side Cache to record the fingerprints of what they pushed.
type Cache struct {
	root  string
	index *Index // optional acceleration; nil is fine, falls back to stat
}

// NewCache creates a Cache rooted at root, creating the directory if
// necessary.
func NewCache(root string) (*Cache, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create cache root %s", root)
	}
	return &Cache{root: root}, nil
}

// WithIndex attaches an acceleration Index to the cache. It is purely an
// accelerator: a missing or corrupt index never fails a Lookup or Publish,
// it only means the filesystem is consulted directly.
func (c *Cache) WithIndex(idx *Index) *Cache {
	c.index = idx
	return c
}

func (c *Cache) path(key Key) string {
	return filepath.Join(c.root, string(key))
}

// Lookup copies the cached entry for key to dest and returns true, or
// returns false if no entry exists.
func (c *Cache) Lookup(ctx context.Context, key Key, dest string) (bool, error) {
	src := c.path(key)
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to open cache entry %s", key)
	}
	defer in.Close()

	if err := copyFile(in, dest); err != nil {
		return false, errors.Wrapf(err, "failed to copy cache entry %s to %s", key, dest)
	}
	logging.Debugf(ctx, "fingerprint cache hit for %s", key)
	return true, nil
}

// Publish writes source's bytes under the cache keyed by key, atomically.
// Publishing twice with the same key is not an error; the second publish
// is a no-op once the destination exists.
func (c *Cache) Publish(ctx context.Context, key Key, source string) error {
	dest := c.path(key)
	if _, err := os.Stat(dest); err == nil {
		// Already published by an earlier action sharing this key (the
		// "cache hit" scenario: two actions with identical source
		// compile only once).
		logging.Debugf(ctx, "fingerprint cache entry %s already published", key)
		return nil
	}

	tmp := dest + ".tmp"
	in, err := os.Open(source)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s for publish", source)
	}
	defer in.Close()

	if err := copyFile(in, tmp); err != nil {
		return errors.Wrapf(err, "failed to stage cache entry %s", key)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		if os.IsExist(err) {
			// Lost a publish race; the winner's bytes are identical
			// (same key implies same content), so this is not an error.
			return nil
		}
		return errors.Wrapf(err, "failed to publish cache entry %s", key)
	}

	if c.index != nil {
		info, statErr := os.Stat(dest)
		if statErr == nil {
			if err := c.index.Record(key, info.Size()); err != nil {
				logging.Warnf(ctx, "failed to update fingerprint index for %s: %v", key, err)
			}
		}
	}
	return nil
}

func copyFile(in io.Reader, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
