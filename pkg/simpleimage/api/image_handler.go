// Package api exposes the image service over HTTP.
package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// DefaultMaxBodyBytes bounds upload request bodies. Base64 inflates the
// default 10 MiB image limit by a third, plus JSON overhead.
const DefaultMaxBodyBytes = 16 << 20

// ImageHandler handles HTTP requests for images
type ImageHandler struct {
	service      simpleimage.Service
	logger       *zap.Logger
	now          func() time.Time
	maxBodyBytes int64
}

// HandlerOption configures an ImageHandler
type HandlerOption func(*ImageHandler)

// WithHandlerLogger sets the logger
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *ImageHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMaxBodyBytes bounds upload request bodies
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *ImageHandler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithHandlerClock replaces time.Now when computing expires_in
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *ImageHandler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewImageHandler creates a new image handler
func NewImageHandler(service simpleimage.Service, opts ...HandlerOption) *ImageHandler {
	h := &ImageHandler{
		service:      service,
		logger:       zap.NewNop(),
		now:          time.Now,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the routes for images
func (h *ImageHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.UploadImage)
	r.Get("/", h.ListImages)
	r.Get("/{id}", h.GetImage)
	r.Delete("/{id}", h.DeleteImage)

	return r
}

// ListResponse is the response body for a listing
type ListResponse struct {
	Items      []*simpleimage.ImageRecord `json:"items"`
	Count      int                        `json:"count"`
	NextCursor string                     `json:"next_cursor,omitempty"`
}

// ImageDataResponse carries the image bytes inline
type ImageDataResponse struct {
	ImageID     string                   `json:"image_id"`
	FileData    string                   `json:"file_data"`
	Filename    string                   `json:"filename"`
	ContentType string                   `json:"content_type"`
	SizeBytes   int64                    `json:"size_bytes"`
	Metadata    *simpleimage.ImageRecord `json:"metadata"`
}

// PresignedResponse carries an access descriptor
type PresignedResponse struct {
	ImageID   string                   `json:"image_id"`
	URL       string                   `json:"url"`
	ExpiresAt time.Time                `json:"expires_at"`
	ExpiresIn int64                    `json:"expires_in"`
	Metadata  *simpleimage.ImageRecord `json:"metadata"`
}

// UploadImage stores a base64-encoded image
func (h *ImageHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req simpleimage.UploadRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, &simpleimage.ValidationError{Field: "file_data", Reason: "request body too large"})
			return
		}
		writeError(w, r, &simpleimage.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	record, err := h.service.Upload(r.Context(), req)
	if err != nil {
		h.logFailure("upload", err, zap.String("owner_id", req.OwnerID))
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, record)
}

// ListImages lists an owner's images
func (h *ImageHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logFailure("list", err, zap.String("owner_id", filter.OwnerID))
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, ListResponse{
		Items:      result.Items,
		Count:      len(result.Items),
		NextCursor: result.NextCursor,
	})
}

// GetImage returns the image inline, as a download, or as a presigned URL
func (h *ImageHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "id")
	query := r.URL.Query()

	opts := simpleimage.GetOptions{}
	var err error
	if opts.AsAttachment, err = parseBool(query, "download"); err != nil {
		writeError(w, r, err)
		return
	}
	if opts.WantPresigned, err = parseBool(query, "presigned"); err != nil {
		writeError(w, r, err)
		return
	}
	if v := query.Get("expires"); v != "" {
		if opts.ExpiresSeconds, err = strconv.Atoi(v); err != nil {
			writeError(w, r, &simpleimage.ValidationError{Field: "expires", Reason: "must be an integer number of seconds"})
			return
		}
	}

	got, err := h.service.Get(r.Context(), imageID, opts)
	if err != nil {
		h.logFailure("get", err, zap.String("image_id", imageID))
		writeError(w, r, err)
		return
	}

	if got.Descriptor != nil {
		render.JSON(w, r, PresignedResponse{
			ImageID:   got.Record.ImageID,
			URL:       got.Descriptor.URL,
			ExpiresAt: got.Descriptor.ExpiresAt,
			ExpiresIn: int64(got.Descriptor.ExpiresAt.Sub(h.now()).Round(time.Second) / time.Second),
			Metadata:  got.Record,
		})
		return
	}

	if got.AsAttachment {
		w.Header().Set("Content-Type", got.Record.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(got.Data)))
		w.Header().Set("Content-Disposition",
			mime.FormatMediaType("attachment", map[string]string{"filename": got.Record.Filename}))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(got.Data); err != nil {
			h.logger.Warn("download write failed", zap.String("image_id", imageID), zap.Error(err))
		}
		return
	}

	render.JSON(w, r, ImageDataResponse{
		ImageID:     got.Record.ImageID,
		FileData:    base64.StdEncoding.EncodeToString(got.Data),
		Filename:    got.Record.Filename,
		ContentType: got.Record.ContentType,
		SizeBytes:   got.Record.SizeBytes,
		Metadata:    got.Record,
	})
}

// DeleteImage removes an image. force=true removes the record even when
// the object delete fails.
func (h *ImageHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "id")
	force, err := parseBool(r.URL.Query(), "force")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.service.Delete(r.Context(), imageID, force); err != nil {
		h.logFailure("delete", err, zap.String("image_id", imageID))
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// logFailure logs server-side failures. Client errors stay at debug.
func (h *ImageHandler) logFailure(op string, err error, fields ...zap.Field) {
	status, code := statusFor(err)
	fields = append(fields, zap.String("op", op), zap.String("code", code), zap.Error(err))
	if status >= http.StatusInternalServerError {
		h.logger.Error("image request failed", fields...)
		return
	}
	h.logger.Debug("image request rejected", fields...)
}

// parseFilter reads a QueryFilter from the query string
func parseFilter(r *http.Request) (simpleimage.QueryFilter, error) {
	query := r.URL.Query()
	filter := simpleimage.QueryFilter{
		OwnerID:             strings.TrimSpace(query.Get("owner_id")),
		Cursor:              query.Get("cursor"),
		FilenameContains:    strings.TrimSpace(query.Get("filename")),
		DescriptionContains: strings.TrimSpace(query.Get("description")),
	}

	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return filter, &simpleimage.ValidationError{Field: "limit", Reason: "must be an integer"}
		}
		// Limit 0 means "unset" to the service, so an explicit 0 stops here
		if limit < 1 {
			return filter, &simpleimage.ValidationError{
				Field:  "limit",
				Reason: fmt.Sprintf("must be between 1 and %d", simpleimage.MaxListLimit),
			}
		}
		filter.Limit = limit
	}

	// tags=a,b and tags=a&tags=b are both accepted
	for _, v := range query["tags"] {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}

	var err error
	if filter.DateFrom, err = parseTime(query.Get("date_from"), "date_from"); err != nil {
		return filter, err
	}
	if filter.DateTo, err = parseTime(query.Get("date_to"), "date_to"); err != nil {
		return filter, err
	}
	return filter, nil
}

// parseTime accepts unix seconds or RFC3339
func parseTime(v, field string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		t := time.Unix(secs, 0).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, &simpleimage.ValidationError{Field: field, Reason: "must be unix seconds or RFC3339"}
	}
	t = t.UTC()
	return &t, nil
}

func parseBool(query map[string][]string, key string) (bool, error) {
	vals := query[key]
	if len(vals) == 0 || vals[0] == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(vals[0])
	if err != nil {
		return false, &simpleimage.ValidationError{Field: key, Reason: "must be true or false"}
	}
	return b, nil
}
