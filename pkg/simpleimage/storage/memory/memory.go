package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// Backend is an in-memory implementation of the simpleimage.BlobStore interface
type Backend struct {
	mu            sync.RWMutex
	bucketCreated bool
	objects       map[string][]byte
	contentTypes  map[string]string
}

// New creates a new in-memory storage backend. The bucket starts out missing.
func New() *Backend {
	return &Backend{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

// NewWithBucket creates an in-memory backend whose bucket already exists
func NewWithBucket() *Backend {
	b := New()
	b.bucketCreated = true
	return b
}

// BucketExists reports whether CreateBucket has been called
func (b *Backend) BucketExists(ctx context.Context) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bucketCreated, nil
}

// CreateBucket creates the bucket
func (b *Backend) CreateBucket(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bucketCreated {
		return simpleimage.ErrBucketAlreadyExists
	}
	b.bucketCreated = true
	return nil
}

// Put stores content under key
func (b *Backend) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("short write for %s: read %d of %d bytes", key, len(data), size)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.bucketCreated {
		return simpleimage.ErrNoSuchBucket
	}
	b.objects[key] = data
	if contentType == "" {
		contentType = simpleimage.DefaultContentType
	}
	b.contentTypes[key] = contentType
	return nil
}

// Get downloads content directly
func (b *Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[key]
	if !exists {
		return nil, simpleimage.ErrObjectNotFound
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[key]; !exists {
		return simpleimage.ErrObjectNotFound
	}

	delete(b.objects, key)
	delete(b.contentTypes, key)
	return nil
}

// ContentType returns the content type recorded for key
func (b *Backend) ContentType(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ct, ok := b.contentTypes[key]
	return ct, ok
}

// Len returns the number of stored objects
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
