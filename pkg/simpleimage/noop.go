package simpleimage

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// ImageCreated does nothing and returns nil
func (n *NoopEventSink) ImageCreated(ctx context.Context, image *Image) error {
	return nil
}

// ImageDeleted does nothing and returns nil
func (n *NoopEventSink) ImageDeleted(ctx context.Context, image *Image) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other action
// Useful for development and debugging
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

// ImageCreated logs the image creation event
func (l *LoggingEventSink) ImageCreated(ctx context.Context, image *Image) error {
	l.logger.InfoContext(ctx, "event: image created", "image_id", image.ID, "object_path", image.ObjectPath, "object_size", image.ObjectSize)
	return nil
}

// ImageDeleted logs the image deletion event
func (l *LoggingEventSink) ImageDeleted(ctx context.Context, image *Image) error {
	l.logger.InfoContext(ctx, "event: image deleted", "image_id", image.ID, "object_path", image.ObjectPath)
	return nil
}
