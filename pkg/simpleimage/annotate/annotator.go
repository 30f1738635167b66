// Package annotate attaches detected labels to stored images.
//
// The annotator runs outside the request path: it reads an image's blob,
// asks a Detector for labels and writes them to the metadata record with
// MetadataStore.UpdateLabels. The coordinator in package simpleimage never
// writes labels itself.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// ErrNotAnImage is returned for objects whose extension the detector does not accept.
var ErrNotAnImage = errors.New("object is not an annotatable image")

// annotatableExtensions lists the extensions label detection accepts.
var annotatableExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Label is a detected label with its confidence in percent.
type Label struct {
	Name       string
	Confidence float64
}

// Detector detects labels in encoded image bytes.
type Detector interface {
	DetectLabels(ctx context.Context, image []byte) ([]Label, error)
}

// Annotator detects and stores labels for images.
type Annotator struct {
	blobs    simpleimage.BlobStore
	metadata simpleimage.MetadataStore
	detector Detector
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Annotator.
type Option func(*Annotator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Annotator) {
		a.logger = logger
	}
}

// WithClock overrides the time source for timeUpdated.
func WithClock(fn func() time.Time) Option {
	return func(a *Annotator) {
		a.now = fn
	}
}

// New creates an Annotator.
func New(blobs simpleimage.BlobStore, metadata simpleimage.MetadataStore, detector Detector, opts ...Option) (*Annotator, error) {
	if blobs == nil || metadata == nil || detector == nil {
		return nil, errors.New("blob store, metadata store and detector are required")
	}
	a := &Annotator{
		blobs:    blobs,
		metadata: metadata,
		detector: detector,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// IsAnnotatable reports whether objectPath has an extension label detection accepts.
func IsAnnotatable(objectPath string) bool {
	return annotatableExtensions[strings.ToLower(path.Ext(objectPath))]
}

// AnnotateByID labels the image with the given id.
func (a *Annotator) AnnotateByID(ctx context.Context, id string) (*simpleimage.Image, error) {
	return a.annotate(ctx, simpleimage.ScanFilter{ID: id, Limit: 1}, id)
}

// AnnotateByObjectPath labels the image stored under objectPath, as a
// storage notification would identify it.
func (a *Annotator) AnnotateByObjectPath(ctx context.Context, objectPath string) (*simpleimage.Image, error) {
	if !IsAnnotatable(objectPath) {
		return nil, fmt.Errorf("%w: %s", ErrNotAnImage, objectPath)
	}
	return a.annotate(ctx, simpleimage.ScanFilter{ObjectPath: objectPath, Limit: 1}, objectPath)
}

func (a *Annotator) annotate(ctx context.Context, filter simpleimage.ScanFilter, ref string) (*simpleimage.Image, error) {
	images, err := a.metadata.Scan(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", ref, err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: %s", simpleimage.ErrImageNotFound, ref)
	}
	image := images[0]

	if !IsAnnotatable(image.ObjectPath) {
		return nil, fmt.Errorf("%w: %s", ErrNotAnImage, image.ObjectPath)
	}

	data, err := a.read(ctx, image.ObjectPath)
	if err != nil {
		return nil, err
	}

	detected, err := a.detector.DetectLabels(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("label detection failed for %s: %w", image.ObjectPath, err)
	}

	names := make([]string, 0, len(detected))
	for _, l := range detected {
		names = append(names, l.Name)
	}
	labels := simpleimage.NormalizeLabels(names)
	now := a.now()

	if err := a.metadata.UpdateLabels(ctx, image.Key(), labels, now); err != nil {
		return nil, fmt.Errorf("failed to store labels for %s: %w", image.ID, err)
	}

	a.logger.Info("Image annotated", "image_id", image.ID, "object_path", image.ObjectPath, "labels", labels)

	image.Labels = labels
	image.TimeUpdated = now
	return image, nil
}

func (a *Annotator) read(ctx context.Context, objectPath string) ([]byte, error) {
	reader, err := a.blobs.Get(ctx, objectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", objectPath, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", objectPath, err)
	}
	return data, nil
}

// Outcome is the result of annotating one object in a batch.
type Outcome struct {
	ObjectPath string
	Image      *simpleimage.Image
	Err        error
}

// Skipped reports whether the object was passed over as not annotatable.
func (o Outcome) Skipped() bool {
	return errors.Is(o.Err, ErrNotAnImage)
}

// AnnotateObjectPaths annotates each object in turn. A failure is logged and
// recorded in its Outcome; the batch continues.
func (a *Annotator) AnnotateObjectPaths(ctx context.Context, objectPaths []string) []Outcome {
	outcomes := make([]Outcome, 0, len(objectPaths))
	for _, p := range objectPaths {
		if ctx.Err() != nil {
			outcomes = append(outcomes, Outcome{ObjectPath: p, Err: ctx.Err()})
			continue
		}

		image, err := a.AnnotateByObjectPath(ctx, p)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotAnImage):
			a.logger.Info("Skipping non-image object", "object_path", p)
		default:
			a.logger.Error("Failed to annotate image", "object_path", p, "error", err)
		}
		outcomes = append(outcomes, Outcome{ObjectPath: p, Image: image, Err: err})
	}
	return outcomes
}
