package simpleimage

import (
	"context"
	"io"
	"time"
)

// PutOptions carries object attributes stored alongside the bytes.
type PutOptions struct {
	ContentType string
	Size        int64
	// Metadata is attached to the object where the backend supports it.
	Metadata map[string]string
}

// BlobStore defines the interface for object storage backends
type BlobStore interface {
	// Put stores the bytes under key, replacing any previous object
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) error

	// Get opens the object. Returns ErrObjectNotFound when absent.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting an absent object succeeds.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is stored under key
	Exists(ctx context.Context, key string) (bool, error)
}

// Repository defines the interface for image metadata persistence
type Repository interface {
	// PutRecord inserts a new record. Returns ErrRecordExists on a duplicate image ID.
	PutRecord(ctx context.Context, record *ImageRecord) error

	// GetRecord returns ErrRecordNotFound when no record exists
	GetRecord(ctx context.Context, imageID string) (*ImageRecord, error)

	// DeleteRecord returns ErrRecordNotFound when no record exists
	DeleteRecord(ctx context.Context, imageID string) error

	// QueryByOwner returns one page of the owner's records in listing order,
	// restricted to q.Range and resuming strictly after q.After.
	QueryByOwner(ctx context.Context, q OwnerQuery) (*RecordPage, error)
}

// SignOptions tunes a signed URL.
type SignOptions struct {
	// Filename is suggested to the client when Attachment is set
	Filename string
	// Attachment asks the client to download rather than display
	Attachment bool
}

// URLSigner issues time-limited GET URLs for stored objects.
type URLSigner interface {
	SignGetURL(ctx context.Context, key string, ttl time.Duration, opts SignOptions) (string, error)
}

// URLSignerFunc adapts a function to URLSigner.
type URLSignerFunc func(ctx context.Context, key string, ttl time.Duration, opts SignOptions) (string, error)

func (f URLSignerFunc) SignGetURL(ctx context.Context, key string, ttl time.Duration, opts SignOptions) (string, error) {
	return f(ctx, key, ttl, opts)
}

// KeyGenerator derives the object key for a new image.
type KeyGenerator interface {
	GenerateKey(ownerID, imageID, filename string) string
}

// EventSink defines the interface for lifecycle notifications. Errors
// returned by a sink are logged and never fail the operation.
type EventSink interface {
	// ImageUploaded is fired after both stores accepted the image
	ImageUploaded(ctx context.Context, record *ImageRecord) error

	// ImageDeleted is fired after the metadata record was removed
	ImageDeleted(ctx context.Context, record *ImageRecord) error

	// OrphanDetected is fired when an operation left one store without its counterpart
	OrphanDetected(ctx context.Context, orphan Orphan) error
}
