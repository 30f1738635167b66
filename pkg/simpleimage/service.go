package simpleimage

import "context"

// Service defines the image coordinator. Implementations hold no mutable
// shared state and are safe for concurrent use.
type Service interface {
	// CreateImage stores the content, then persists and returns its record
	CreateImage(ctx context.Context, req UploadImageRequest) (*Image, error)

	// GetImage returns the record for id, or ErrImageNotFound
	GetImage(ctx context.Context, id string) (*Image, error)

	// SearchByLabel returns all records whose label set contains label
	SearchByLabel(ctx context.Context, label string) ([]*Image, error)

	// DeleteImage removes the content, then the record. A missing image is a no-op.
	DeleteImage(ctx context.Context, id string) error

	// DownloadImage returns the raw content and its inferred content type
	DownloadImage(ctx context.Context, id string) (*DownloadResult, error)
}
