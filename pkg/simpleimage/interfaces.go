package simpleimage

import (
	"context"
	"io"
	"time"
)

// BlobStore defines the interface for binary content backends. A store is
// bound to a single bucket at construction time.
type BlobStore interface {
	// BucketExists reports whether the configured bucket exists
	BucketExists(ctx context.Context) (bool, error)

	// CreateBucket creates the configured bucket. A bucket that already
	// exists is reported with ErrBucketAlreadyExists.
	CreateBucket(ctx context.Context) error

	// Put writes size bytes from reader under key
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Get opens the content stored under key
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the content stored under key
	Delete(ctx context.Context, key string) error
}

// MetadataStore defines the interface for image record persistence. Records
// are addressed by the composite ImageKey.
type MetadataStore interface {
	// Put creates or replaces the record under its composite key
	Put(ctx context.Context, image *Image) error

	// Get loads the record addressed by the full composite key
	Get(ctx context.Context, key ImageKey) (*Image, error)

	// Delete removes the record addressed by key. Deleting a missing record is not an error.
	Delete(ctx context.Context, key ImageKey) error

	// Scan returns the records matching filter in store order
	Scan(ctx context.Context, filter ScanFilter) ([]*Image, error)

	// UpdateLabels replaces the label set of an existing record
	UpdateLabels(ctx context.Context, key ImageKey, labels []string, updatedAt time.Time) error
}

// EventSink defines the interface for image lifecycle notifications
type EventSink interface {
	// ImageCreated is fired when both the blob and the record were written
	ImageCreated(ctx context.Context, image *Image) error

	// ImageDeleted is fired when both the blob and the record were removed
	ImageDeleted(ctx context.Context, image *Image) error
}
