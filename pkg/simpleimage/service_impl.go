package simpleimage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"
)

// service implements the Service interface
type service struct {
	blobStore     BlobStore
	metadataStore MetadataStore
	eventSink     EventSink
	logger        *slog.Logger
	newID         func() string
	now           func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithBlobStore sets the blob store holding image content
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithMetadataStore sets the store holding image records
func WithMetadataStore(store MetadataStore) Option {
	return func(s *service) {
		s.metadataStore = store
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithIDGenerator overrides the image identifier generator
func WithIDGenerator(fn func() string) Option {
	return func(s *service) {
		s.newID = fn
	}
}

// WithClock overrides the time source used for record timestamps
func WithClock(fn func() time.Time) Option {
	return func(s *service) {
		s.now = fn
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		newID: NewImageID,
		now:   func() time.Time { return time.Now().UTC() },
	}

	for _, option := range options {
		option(s)
	}

	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.metadataStore == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

func (s *service) CreateImage(ctx context.Context, req UploadImageRequest) (*Image, error) {
	id := s.newID()
	objectPath := ObjectPath(id, req.FileName)

	if err := s.ensureBucket(ctx, id); err != nil {
		return nil, err
	}

	if err := s.blobStore.Put(ctx, objectPath, req.Reader, req.Size, req.ContentType); err != nil {
		return nil, newError("create", id, ErrUploadFailed, err)
	}

	now := s.now()
	image := &Image{
		ID:          id,
		ObjectPath:  objectPath,
		ObjectSize:  strconv.FormatInt(req.Size, 10),
		TimeAdded:   now,
		TimeUpdated: now,
		Status:      StatusActive,
	}

	if err := s.metadataStore.Put(ctx, image); err != nil {
		// The blob stays behind; nothing reconciles it.
		s.logger.Warn("Image metadata write failed, blob left without record",
			"image_id", id, "object_path", objectPath, "error", err)
		return nil, newError("create", id, ErrInternal, err)
	}

	s.logger.Info("Image created", "image_id", id, "object_path", objectPath, "size", req.Size)

	if err := s.eventSink.ImageCreated(ctx, image); err != nil {
		s.logger.Error("Event sink rejected image created event", "image_id", id, "error", err)
	}

	return image, nil
}

// ensureBucket checks the bucket precondition and creates the bucket when it
// is missing. A concurrent create reported as already existing is success.
func (s *service) ensureBucket(ctx context.Context, id string) error {
	exists, err := s.blobStore.BucketExists(ctx)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccessDenied):
			return newError("create", id, ErrStorageAccessDenied, err)
		case errors.Is(err, ErrNoSuchBucket):
			return newError("create", id, ErrBucketNotFound, err)
		default:
			return newError("create", id, ErrStorageUnavailable, err)
		}
	}
	if exists {
		return nil
	}

	if err := s.blobStore.CreateBucket(ctx); err != nil {
		if errors.Is(err, ErrBucketAlreadyExists) {
			return nil
		}
		if errors.Is(err, ErrAccessDenied) {
			return newError("create", id, ErrStorageAccessDenied, err)
		}
		return newError("create", id, ErrStorageUnavailable, err)
	}
	s.logger.Info("Bucket created")
	return nil
}

func (s *service) GetImage(ctx context.Context, id string) (*Image, error) {
	image, err := s.findByID(ctx, id)
	if err != nil {
		return nil, newError("get", id, ErrInternal, err)
	}
	if image == nil {
		return nil, newError("get", id, ErrImageNotFound, nil)
	}
	return image, nil
}

// findByID resolves an id to its record with a filtered scan limited to the
// first match. It returns nil when no record matches.
func (s *service) findByID(ctx context.Context, id string) (*Image, error) {
	s.logger.Debug("Looking up image", "image_id", id)

	images, err := s.metadataStore.Scan(ctx, ScanFilter{ID: id, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, nil
	}
	return images[0], nil
}

func (s *service) SearchByLabel(ctx context.Context, label string) ([]*Image, error) {
	if label == "" {
		return nil, newError("search", "", ErrValidationRejected, errors.New("label is required"))
	}

	images, err := s.metadataStore.Scan(ctx, ScanFilter{Label: label})
	if err != nil {
		return nil, newError("search", "", ErrInternal, err)
	}
	if images == nil {
		images = []*Image{}
	}
	return images, nil
}

func (s *service) DeleteImage(ctx context.Context, id string) error {
	image, err := s.findByID(ctx, id)
	if err != nil {
		return newError("delete", id, ErrInternal, err)
	}
	if image == nil {
		s.logger.Debug("Image already absent, nothing to delete", "image_id", id)
		return nil
	}

	// Blob first. A failed blob delete keeps the record.
	if err := s.blobStore.Delete(ctx, image.ObjectPath); err != nil && !errors.Is(err, ErrObjectNotFound) {
		return newError("delete", id, ErrDeleteFailed, err)
	}

	if err := s.metadataStore.Delete(ctx, image.Key()); err != nil {
		return newError("delete", id, ErrInternal, err)
	}

	s.logger.Info("Image deleted", "image_id", id, "object_path", image.ObjectPath)

	if err := s.eventSink.ImageDeleted(ctx, image); err != nil {
		s.logger.Error("Event sink rejected image deleted event", "image_id", id, "error", err)
	}

	return nil
}

func (s *service) DownloadImage(ctx context.Context, id string) (*DownloadResult, error) {
	image, err := s.findByID(ctx, id)
	if err != nil {
		return nil, newError("download", id, ErrInternal, err)
	}
	if image == nil {
		return nil, newError("download", id, ErrImageNotFound, nil)
	}

	reader, err := s.blobStore.Get(ctx, image.ObjectPath)
	if err != nil {
		return nil, newError("download", id, ErrDownloadFailed, err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, newError("download", id, ErrDownloadFailed, err)
	}

	contentType := ContentTypeFromPath(image.ObjectPath)
	return &DownloadResult{
		ImageID:     id,
		Data:        buf.Bytes(),
		ContentType: contentType,
		Extension:   ExtensionForContentType(contentType),
	}, nil
}
