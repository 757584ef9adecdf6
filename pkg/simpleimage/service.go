package simpleimage

import (
	"context"
)

// Service defines the main interface for the simple-image library
type Service interface {
	// Lifecycle operations
	Upload(ctx context.Context, req UploadRequest) (*ImageRecord, error)
	Get(ctx context.Context, imageID string, opts GetOptions) (*Retrieval, error)
	Delete(ctx context.Context, imageID string, force bool) error

	// Query operations
	List(ctx context.Context, filter QueryFilter) (*ListResult, error)
}
