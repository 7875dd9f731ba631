// Package objectstore abstracts the backing store for cached images. Two
// backends exist: S3-compatible object storage (AWS S3, MinIO) and a local
// directory for development and tests.
package objectstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// Sentinel errors shared by every backend.
var (
	ErrNotFound      = errors.New("objectstore: object not found")
	ErrAlreadyExists = errors.New("objectstore: object already exists")
	ErrInvalidKey    = errors.New("objectstore: invalid key")
)

// Store is the narrow set of operations the image cache and proxy need.
//
// Put never overwrites: writing a key that already exists returns
// ErrAlreadyExists, which callers writing content-addressed keys treat as
// success.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

// Object is an open object. The caller must close Body.
type Object struct {
	Body         io.ReadCloser
	ContentType  string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ValidateKey rejects empty keys and keys that could escape the store root.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}
