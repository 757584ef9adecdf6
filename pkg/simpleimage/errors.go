package simpleimage

import (
	"errors"
	"fmt"
)

// Adapter sentinels. Blob stores and repositories translate their
// backend-specific conditions to these.
var (
	// ErrObjectNotFound indicates the blob store has no object under the key
	ErrObjectNotFound = errors.New("object not found")

	// ErrRecordNotFound indicates the repository has no record for the image ID
	ErrRecordNotFound = errors.New("image record not found")

	// ErrRecordExists indicates a record with the same image ID is already stored
	ErrRecordExists = errors.New("image record already exists")

	// ErrSigningUnavailable indicates the configured signer cannot issue URLs
	ErrSigningUnavailable = errors.New("access descriptor signing unavailable")
)

// Store names used in error details and logs.
const (
	StoreObject   = "object"
	StoreMetadata = "metadata"
	StoreSigner   = "signer"
)

// Error codes returned by Code().
const (
	CodeValidation    = "validation_error"
	CodeNotFound      = "not_found"
	CodeObjectMissing = "object_missing"
	CodeStorageRead   = "storage_read_error"
	CodeStorageWrite  = "storage_write_error"
	CodeStorageDelete = "storage_delete_error"
	CodePartialWrite  = "partial_write"
	CodePartialDelete = "partial_delete"
)

// ValidationError rejects malformed input before either store is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Code() string { return CodeValidation }

// NotFoundError means no metadata record exists for the image.
type NotFoundError struct {
	ImageID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("image %s not found", e.ImageID)
}

func (e *NotFoundError) Code() string { return CodeNotFound }

func (e *NotFoundError) Unwrap() error { return ErrRecordNotFound }

// ObjectMissingError means the metadata record exists but its object could
// not be read. errors.Is(err, ErrObjectNotFound) separates a truly absent
// object from a failed or timed out read.
type ObjectMissingError struct {
	ImageID   string
	ObjectKey string
	Err       error
}

func (e *ObjectMissingError) Error() string {
	return fmt.Sprintf("object %s for image %s unavailable: %v", e.ObjectKey, e.ImageID, e.Err)
}

func (e *ObjectMissingError) Code() string { return CodeObjectMissing }

func (e *ObjectMissingError) Unwrap() error { return e.Err }

// StorageReadError reports a failed read that is not a plain miss.
type StorageReadError struct {
	Store   string
	ImageID string
	Err     error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("%s read failed for image %s: %v", e.Store, e.ImageID, e.Err)
}

func (e *StorageReadError) Code() string { return CodeStorageRead }

func (e *StorageReadError) Unwrap() error { return e.Err }

// StorageWriteError reports a failed write. No state was changed by the call.
type StorageWriteError struct {
	Store     string
	ImageID   string
	ObjectKey string
	Err       error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("%s write failed for image %s (key %s): %v", e.Store, e.ImageID, e.ObjectKey, e.Err)
}

func (e *StorageWriteError) Code() string { return CodeStorageWrite }

func (e *StorageWriteError) Unwrap() error { return e.Err }

// StorageDeleteError reports a failed delete. Both stores are unchanged.
type StorageDeleteError struct {
	Store     string
	ImageID   string
	ObjectKey string
	Err       error
}

func (e *StorageDeleteError) Error() string {
	return fmt.Sprintf("%s delete failed for image %s (key %s): %v", e.Store, e.ImageID, e.ObjectKey, e.Err)
}

func (e *StorageDeleteError) Code() string { return CodeStorageDelete }

func (e *StorageDeleteError) Unwrap() error { return e.Err }

// PartialWriteError means the object was written but its metadata was not.
// ObjectKey names the orphaned object.
type PartialWriteError struct {
	ImageID   string
	ObjectKey string
	Err       error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("metadata write failed for image %s, object %s is orphaned: %v", e.ImageID, e.ObjectKey, e.Err)
}

func (e *PartialWriteError) Code() string { return CodePartialWrite }

func (e *PartialWriteError) Unwrap() error { return e.Err }

// PartialDeleteError means the object was deleted but the metadata record
// survived and now points at nothing.
type PartialDeleteError struct {
	ImageID   string
	ObjectKey string
	Err       error
}

func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("metadata delete failed for image %s after object %s was removed: %v", e.ImageID, e.ObjectKey, e.Err)
}

func (e *PartialDeleteError) Code() string { return CodePartialDelete }

func (e *PartialDeleteError) Unwrap() error { return e.Err }

// ErrorCode returns the Code() of the first coded error in err's chain, or
// an empty string.
func ErrorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
