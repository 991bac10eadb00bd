// Package cache records which pipeline steps have completed and with what
// inputs, so that a later run can skip work whose inputs did not change.
//
// Every entry lives under a composite key of the form
//
//	scope::moduleID::stepID
//
// where moduleID and stepID are content hashes (see Hash). The value is an
// opaque string owned by the caller: the step hash for build steps, or
// "checksum::size" for downloads and extractions. A key is present only if
// the step it describes completed successfully at least once, so a missing
// key always means "needs update".
//
// Metadata is stored in BoltDB; the downloads and extracted trees live next
// to the database in the same storage directory.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// DefaultStorageDir is the default storage directory name
	DefaultStorageDir = ".kikai"

	// DatabaseFile is the name of the BoltDB file inside the storage directory
	DatabaseFile = "kikai.db"

	// bucketName is the BoltDB bucket name for cache entries
	bucketName = "kikai"
)

// Store is the get/set contract every pipeline stage relies on.
//
// Get reports a missing key as found == false with a nil error; err is only
// set when the backing store itself failed. Deleting a missing key is not
// an error.
type Store interface {
	Get(key string) (value string, found bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// DB is a Store backed by BoltDB
type DB struct {
	db   *bbolt.DB
	root string // storage directory (.kikai/)
}

// Open opens (creating if needed) the database inside storageDir.
// If storageDir is empty, uses DefaultStorageDir in the current working directory.
func Open(storageDir string) (*DB, error) {
	if storageDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}

		storageDir = filepath.Join(cwd, DefaultStorageDir)
	}

	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	// The timeout turns a second kikai process on the same storage into an
	// error instead of a hang.
	dbPath := filepath.Join(storageDir, DatabaseFile)
	db, err := bbolt.Open(dbPath, 0o644, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &DB{
		db:   db,
		root: storageDir,
	}, nil
}

// Root returns the storage directory the database lives in
func (c *DB) Root() string {
	return c.root
}

// Close closes the cache database
func (c *DB) Close() error {
	if c.db != nil {
		return c.db.Close()
	}

	return nil
}

// Get retrieves the value stored under key
func (c *DB) Get(key string) (string, bool, error) {
	var (
		value string
		found bool
	)

	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}

		// data is only valid inside the transaction
		value = string(data)
		found = true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}

	return value, found, nil
}

// Set stores value under key, replacing any previous value.
// bbolt commits (and fsyncs) before Update returns.
func (c *DB) Set(key, value string) error {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("failed to store cache key %s: %w", key, err)
	}

	return nil
}

// Delete removes key; deleting a missing key is not an error
func (c *DB) Delete(key string) error {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete cache key %s: %w", key, err)
	}

	return nil
}

// Keys returns every key in scope, or every key when scope is empty
func (c *DB) Keys(scope string) ([]string, error) {
	var keys []string
	prefix := ""
	if scope != "" {
		prefix = scope + keySeparator
	}

	err := c.db.View(func(tx *bbolt.Tx) error {
		cur := tx.Bucket([]byte(bucketName)).Cursor()

		for k, _ := cur.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = cur.Next() {
			keys = append(keys, string(k))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// Clear removes all cache entries together with the downloaded and
// extracted trees, so the next run starts from scratch
func (c *DB) Clear() error {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}

		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
	if err != nil {
		return err
	}

	for _, dir := range []string{DownloadsDir, ExtractedDir} {
		if err := os.RemoveAll(filepath.Join(c.root, dir)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
	}

	return nil
}

// Stats returns the number of cache entries and the total size of the
// downloaded and extracted trees
func (c *DB) Stats() (int, int64, error) {
	var count int
	var totalSize int64

	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		count = b.Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	for _, dir := range []string{DownloadsDir, ExtractedDir} {
		_ = filepath.Walk(filepath.Join(c.root, dir), func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil // Skip errors
			}

			if info.Mode().IsRegular() {
				totalSize += info.Size()
			}

			return nil
		})
	}

	return count, totalSize, nil
}
