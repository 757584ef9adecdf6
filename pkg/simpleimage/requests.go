package simpleimage

import "time"

// UploadRequest contains parameters for uploading an image
type UploadRequest struct {
	Filename string `json:"filename"`
	// FileData is the base64 encoded image payload
	FileData    string   `json:"file_data"`
	OwnerID     string   `json:"owner_id"`
	Tags        []string `json:"tags,omitempty"`
	Description string   `json:"description,omitempty"`
}

// GetOptions selects how Get returns the image
type GetOptions struct {
	// AsAttachment marks the response for download with the original filename
	AsAttachment bool
	// WantPresigned returns an AccessDescriptor instead of the bytes
	WantPresigned bool
	// ExpiresSeconds is the descriptor lifetime. Zero or negative uses the default.
	ExpiresSeconds int
}

// QueryFilter contains parameters for listing an owner's images
type QueryFilter struct {
	OwnerID string
	// Tags are matched with AND semantics
	Tags     []string
	DateFrom *time.Time
	DateTo   *time.Time
	// Limit of zero uses DefaultListLimit
	Limit  int
	Cursor string

	// FilenameContains and DescriptionContains are case-insensitive substring filters
	FilenameContains    string
	DescriptionContains string
}
