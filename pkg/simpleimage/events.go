package simpleimage

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) ImageUploaded(ctx context.Context, record *ImageRecord) error { return nil }

func (n *NoopEventSink) ImageDeleted(ctx context.Context, record *ImageRecord) error { return nil }

func (n *NoopEventSink) OrphanDetected(ctx context.Context, orphan Orphan) error { return nil }

// LoggingEventSink writes lifecycle events to a zap logger. Orphans are
// logged at warn level so they can be alerted on.
type LoggingEventSink struct {
	logger *zap.Logger
}

// NewLoggingEventSink creates an event sink that logs to logger
func NewLoggingEventSink(logger *zap.Logger) *LoggingEventSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) ImageUploaded(ctx context.Context, record *ImageRecord) error {
	l.logger.Info("image uploaded",
		zap.String("image_id", record.ImageID),
		zap.String("owner_id", record.OwnerID),
		zap.String("object_key", record.ObjectKey),
		zap.Int64("size_bytes", record.SizeBytes),
	)
	return nil
}

func (l *LoggingEventSink) ImageDeleted(ctx context.Context, record *ImageRecord) error {
	l.logger.Info("image deleted",
		zap.String("image_id", record.ImageID),
		zap.String("owner_id", record.OwnerID),
		zap.String("object_key", record.ObjectKey),
	)
	return nil
}

func (l *LoggingEventSink) OrphanDetected(ctx context.Context, orphan Orphan) error {
	l.logger.Warn("orphan detected",
		zap.String("kind", string(orphan.Kind)),
		zap.String("image_id", orphan.ImageID),
		zap.String("owner_id", orphan.OwnerID),
		zap.String("object_key", orphan.ObjectKey),
		zap.String("reason", orphan.Reason),
	)
	return nil
}

// MultiEventSink fans every event out to each sink in order. All sinks are
// called even when one fails; the failures are joined.
type MultiEventSink []EventSink

// NewMultiEventSink drops nil sinks and returns the fan-out.
func NewMultiEventSink(sinks ...EventSink) MultiEventSink {
	out := make(MultiEventSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m MultiEventSink) ImageUploaded(ctx context.Context, record *ImageRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.ImageUploaded(ctx, record))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) ImageDeleted(ctx context.Context, record *ImageRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.ImageDeleted(ctx, record))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) OrphanDetected(ctx context.Context, orphan Orphan) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.OrphanDetected(ctx, orphan))
	}
	return errors.Join(errs...)
}
