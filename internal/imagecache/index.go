package imagecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/wishlistapp/catalog-server/internal/domain"
)

const imagePrefix = "image:"

// ErrNotFound is returned when the index has no entry for a key.
var ErrNotFound = errors.New("imagecache: image not found")

// Index records every cached image in a badger database keyed by storage key.
type Index struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenIndex opens (or creates) the index at path. An empty path opens an
// in-memory index.
func OpenIndex(path string, logger *slog.Logger) (*Index, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	opts.SyncWrites = path != ""

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open image index: %w", err)
	}
	if logger != nil {
		logger.Info("Image index opened", "path", path, "in_memory", path == "")
	}
	return &Index{db: db, logger: logger}, nil
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}

// Put records img, replacing any previous entry for the same key.
func (x *Index) Put(ctx context.Context, img *domain.CachedImage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(img)
	if err != nil {
		return fmt.Errorf("marshal image: %w", err)
	}
	return x.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(imagePrefix+img.StorageKey), data); err != nil {
			return fmt.Errorf("set image: %w", err)
		}
		return nil
	})
}

// PutIfAbsent records img unless the key is already indexed. It reports
// whether the entry was written.
func (x *Index) PutIfAbsent(ctx context.Context, img *domain.CachedImage) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	data, err := json.Marshal(img)
	if err != nil {
		return false, fmt.Errorf("marshal image: %w", err)
	}

	written := false
	err = x.db.Update(func(txn *badger.Txn) error {
		key := []byte(imagePrefix + img.StorageKey)
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check existing: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set image: %w", err)
		}
		written = true
		return nil
	})
	return written, err
}

// Get returns the entry for a storage key.
func (x *Index) Get(ctx context.Context, key string) (*domain.CachedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var img domain.CachedImage
	err := x.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(imagePrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &img)
		})
	})
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// Delete removes the entry for key. Missing keys are not an error.
func (x *Index) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return x.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(imagePrefix + key))
	})
}

// CreatedBefore returns every entry created strictly before cutoff.
func (x *Index) CreatedBefore(ctx context.Context, cutoff time.Time) ([]*domain.CachedImage, error) {
	var out []*domain.CachedImage
	prefix := []byte(imagePrefix)

	err := x.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var img domain.CachedImage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &img)
			}); err != nil {
				if x.logger != nil {
					x.logger.Warn("skipping unreadable image entry",
						"key", string(it.Item().Key()),
						"error", err,
					)
				}
				continue
			}
			if img.CreatedAt.Before(cutoff) {
				out = append(out, &img)
			}
		}
		return nil
	})
	return out, err
}

// Count returns the number of indexed images.
func (x *Index) Count(ctx context.Context) (int, error) {
	n := 0
	prefix := []byte(imagePrefix)
	err := x.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}
