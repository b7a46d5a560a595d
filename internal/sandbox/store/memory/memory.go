package memory

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/tendant/oss-upload/internal/sandbox/store"
)

type object struct {
	data        []byte
	contentType string
	updatedAt   time.Time
}

// Backend is an in-memory implementation of the store.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]object),
	}
}

func (b *Backend) Put(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = object{data: data, contentType: contentType, updatedAt: time.Now()}
	return nil
}

func (b *Backend) Get(ctx context.Context, key string) (io.ReadCloser, *store.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), meta(key, obj), nil
}

func (b *Backend) Stat(ctx context.Context, key string) (*store.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	return meta(key, obj), nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[key]; !exists {
		return store.ErrNotFound
	}
	delete(b.objects, key)
	return nil
}

func meta(key string, obj object) *store.ObjectMeta {
	return &store.ObjectMeta{
		Key:         key,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		UpdatedAt:   obj.updatedAt,
	}
}
