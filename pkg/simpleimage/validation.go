package simpleimage

import (
	"encoding/base64"
	"fmt"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	// DefaultMaxUploadBytes is the largest decoded payload Upload accepts
	DefaultMaxUploadBytes int64 = 10 * 1024 * 1024

	DefaultListLimit = 20
	MaxListLimit     = 100

	DefaultExpires = time.Hour
	MaxExpires     = 24 * time.Hour

	DefaultAdapterTimeout   = 10 * time.Second
	DefaultMaxQueryAttempts = 5

	// maxBatchSize caps a single over-fetch request to the repository
	maxBatchSize = 1000
)

// imageTypes maps allowed extensions to their content type.
var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
}

// AllowedExtensions returns the accepted filename extensions in sorted order.
func AllowedExtensions() []string {
	exts := make([]string, 0, len(imageTypes))
	for ext := range imageTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// IsAllowedFilename reports whether filename carries an image extension.
func IsAllowedFilename(filename string) bool {
	_, ok := imageTypes[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// NormalizeTags trims tags, drops empties and duplicates, and sorts the rest.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ValidateImageID rejects IDs that are not UUIDs.
func ValidateImageID(imageID string) error {
	if imageID == "" {
		return &ValidationError{Field: "image_id", Reason: "is required"}
	}
	if _, err := uuid.Parse(imageID); err != nil {
		return &ValidationError{Field: "image_id", Reason: "must be a UUID"}
	}
	return nil
}

// validateOwnerID requires a non-blank owner without control characters.
func validateOwnerID(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return &ValidationError{Field: "owner_id", Reason: "is required"}
	}
	if strings.IndexFunc(ownerID, unicode.IsControl) >= 0 {
		return &ValidationError{Field: "owner_id", Reason: "must not contain control characters"}
	}
	return nil
}

// validateUpload checks the request and returns the decoded payload.
func validateUpload(req UploadRequest, maxBytes int64) ([]byte, error) {
	if strings.TrimSpace(req.Filename) == "" {
		return nil, &ValidationError{Field: "filename", Reason: "is required"}
	}
	if strings.ContainsAny(req.Filename, "/\\") {
		return nil, &ValidationError{Field: "filename", Reason: "must not contain path separators"}
	}
	if err := validateOwnerID(req.OwnerID); err != nil {
		return nil, err
	}
	if !IsAllowedFilename(req.Filename) {
		return nil, &ValidationError{
			Field:  "filename",
			Reason: "extension not allowed, allowed: " + strings.Join(AllowedExtensions(), ", "),
		}
	}
	if req.FileData == "" {
		return nil, &ValidationError{Field: "file_data", Reason: "is required"}
	}
	// Rough bound before decoding so oversized payloads are not materialized.
	if maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(req.FileData))) > maxBytes+2 {
		return nil, &ValidationError{
			Field:  "file_data",
			Reason: fmt.Sprintf("payload exceeds maximum size of %d bytes", maxBytes),
		}
	}
	data, err := base64.StdEncoding.DecodeString(req.FileData)
	if err != nil {
		return nil, &ValidationError{Field: "file_data", Reason: "is not valid base64"}
	}
	if len(data) == 0 {
		return nil, &ValidationError{Field: "file_data", Reason: "decodes to an empty payload"}
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, &ValidationError{
			Field:  "file_data",
			Reason: fmt.Sprintf("size %d bytes exceeds maximum of %d bytes", len(data), maxBytes),
		}
	}
	return data, nil
}

// DetectContentType sniffs data and falls back to the filename extension
// when the sniffed type is not an accepted image type.
func DetectContentType(filename string, data []byte) string {
	sniffed := mimetype.Detect(data).String()
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	for _, ct := range imageTypes {
		if sniffed == ct {
			return ct
		}
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := imageTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// validateFilter resolves the limit and date range of a listing request.
func validateFilter(f QueryFilter) (int, DateRange, error) {
	if err := validateOwnerID(f.OwnerID); err != nil {
		return 0, DateRange{}, err
	}
	limit := f.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit < 1 || limit > MaxListLimit {
		return 0, DateRange{}, &ValidationError{
			Field:  "limit",
			Reason: fmt.Sprintf("must be between 1 and %d", MaxListLimit),
		}
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return 0, DateRange{}, &ValidationError{Field: "date_from", Reason: "must not be after date_to"}
	}
	return limit, DateRange{From: f.DateFrom, To: f.DateTo}, nil
}

// resolveExpires applies the default and upper bound to a descriptor lifetime.
func resolveExpires(seconds int, def, max time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	if int64(seconds) >= int64(max/time.Second) {
		return max
	}
	return time.Duration(seconds) * time.Second
}
