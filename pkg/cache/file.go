package cache

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matzehuels/imgembed/pkg/errors"
)

// FileCache implements a file-based cache for CLI usage.
// Entries are stored as JSON files in a directory sharded by key hash.
type FileCache struct {
	dir string
}

// NewFileCache creates a file-based cache in the given directory.
// The directory will be created if it doesn't exist.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCache, err, "create cache directory")
	}
	return &FileCache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *FileCache) Dir() string { return c.dir }

// fileEntry is the on-disk record. The key is kept so Sweep can filter by
// prefix without reversing the hash.
type fileEntry struct {
	Key string `json:"key"`
	Entry
}

// Get retrieves a value from the cache.
func (c *FileCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	path := c.path(key)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, errors.Wrap(errors.ErrCodeCache, err, "read cache entry")
	}

	var fe fileEntry
	if err := json.Unmarshal(data, &fe); err != nil || fe.Key != key {
		// Invalid or colliding entry - treat as miss
		_ = os.Remove(path)
		return Entry{}, false, nil
	}
	return fe.Entry, true, nil
}

// Set stores a value in the cache. The file is written to a temporary name
// and renamed so concurrent readers never observe a partial entry.
func (c *FileCache) Set(ctx context.Context, key string, e Entry) error {
	entryData, err := json.Marshal(fileEntry{Key: key, Entry: e})
	if err != nil {
		return errors.Wrap(errors.ErrCodeCache, err, "encode cache entry")
	}

	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(errors.ErrCodeCache, err, "create cache shard")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeCache, err, "write cache entry")
	}
	if _, err := tmp.Write(entryData); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(errors.ErrCodeCache, err, "write cache entry")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(errors.ErrCodeCache, err, "write cache entry")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(errors.ErrCodeCache, err, "write cache entry")
	}
	return nil
}

// Delete removes a value from the cache.
func (c *FileCache) Delete(ctx context.Context, key string) error {
	err := os.Remove(c.path(key))
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return errors.Wrap(errors.ErrCodeCache, err, "delete cache entry")
}

// Sweep walks the cache directory and removes matching stale entries.
// Unreadable files are removed as well.
func (c *FileCache) Sweep(ctx context.Context, prefix string, cutoff time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var fe fileEntry
		if err := json.Unmarshal(data, &fe); err != nil {
			if os.Remove(path) == nil {
				removed++
			}
			return nil
		}
		if strings.HasPrefix(fe.Key, prefix) && fe.StoredAt.Before(cutoff) {
			if os.Remove(path) == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, errors.Wrap(errors.ErrCodeCache, err, "sweep %s", c.dir)
	}
	return removed, nil
}

// Close does nothing for file cache.
func (c *FileCache) Close() error {
	return nil
}

// path shards entries into 256 subdirectories by the digest of key.
func (c *FileCache) path(key string) string {
	d := hexDigest([]byte(key))
	return filepath.Join(c.dir, d[:2], d[2:]+".json")
}

// Ensure FileCache implements Cache.
var _ Cache = (*FileCache)(nil)
