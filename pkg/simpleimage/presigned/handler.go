package presigned

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"go.uber.org/zap"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// Handler serves objects addressed by URLs from Signer.SignGetURL.
type Handler struct {
	signer *Signer
	store  simpleimage.BlobStore
	logger *zap.Logger
}

// NewHandler creates a download handler. A nil logger discards output.
func NewHandler(signer *Signer, store simpleimage.BlobStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{signer: signer, store: store, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.signer.ValidateRequest(r); err != nil {
		h.handleValidationError(w, err)
		return
	}

	key, err := h.signer.ExtractObjectKey(r.URL.Path)
	if err != nil {
		http.Error(w, "Invalid download URL", http.StatusBadRequest)
		return
	}

	rc, err := h.store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, simpleimage.ErrObjectNotFound) {
			http.Error(w, "Object not found", http.StatusNotFound)
			return
		}
		h.logger.Error("presigned download failed", zap.String("object_key", key), zap.Error(err))
		http.Error(w, "Storage read failed", http.StatusBadGateway)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		h.logger.Error("presigned download read failed", zap.String("object_key", key), zap.Error(err))
		http.Error(w, "Storage read failed", http.StatusBadGateway)
		return
	}

	query := r.URL.Query()
	disposition := "inline"
	if query.Get(paramDisposition) == "attachment" {
		disposition = "attachment"
		if name := query.Get(paramFilename); name != "" {
			disposition = mime.FormatMediaType("attachment", map[string]string{"filename": name})
		}
	}

	w.Header().Set("Content-Type", simpleimage.DetectContentType(path.Base(key), data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		h.logger.Warn("presigned download write failed", zap.String("object_key", key), zap.Error(err))
	}
}

// handleValidationError writes the HTTP error for a rejected signature
func (h *Handler) handleValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMissingSignature):
		http.Error(w, "Missing signature parameter", http.StatusUnauthorized)
	case errors.Is(err, ErrMissingExpiration):
		http.Error(w, "Missing expires parameter", http.StatusUnauthorized)
	case errors.Is(err, ErrInvalidExpiration):
		http.Error(w, "Invalid expires parameter", http.StatusBadRequest)
	case errors.Is(err, ErrExpired):
		http.Error(w, "Download URL has expired", http.StatusForbidden)
	case errors.Is(err, ErrInvalidSignature):
		http.Error(w, "Invalid signature", http.StatusForbidden)
	default:
		h.logger.Warn("presigned validation error", zap.Error(err))
		http.Error(w, "Authentication failed", http.StatusForbidden)
	}
}
