// Package store defines where the sandbox keeps uploaded objects.
package store

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when an object does not exist
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey is returned for empty keys or keys escaping the bucket
	ErrInvalidKey = errors.New("invalid object key")
)

// ObjectMeta describes a stored object
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
}

// BlobStore is the sandbox bucket
type BlobStore interface {
	// Put stores the content of reader under key. A failed read leaves no object behind.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Get returns the object body; callers close it
	Get(ctx context.Context, key string) (io.ReadCloser, *ObjectMeta, error)

	// Stat retrieves metadata for an object
	Stat(ctx context.Context, key string) (*ObjectMeta, error)

	// Delete deletes an object
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects keys that are empty, absolute or contain ".." segments.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." {
			return ErrInvalidKey
		}
	}
	if path.Clean(key) != strings.TrimSuffix(key, "/") {
		return ErrInvalidKey
	}
	return nil
}
