package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// Codes for conditions outside the service taxonomy
const (
	CodeSigningUnavailable = "signing_unavailable"
	CodeInternal           = "internal_error"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	ImageID   string `json:"image_id,omitempty"`
	ObjectKey string `json:"object_key,omitempty"`
	Store     string `json:"store,omitempty"`
	Field     string `json:"field,omitempty"`
}

// statusFor maps an error to its HTTP status and code
func statusFor(err error) (int, string) {
	code := simpleimage.ErrorCode(err)
	switch {
	case errors.Is(err, simpleimage.ErrSigningUnavailable):
		return http.StatusNotImplemented, CodeSigningUnavailable
	case code == simpleimage.CodeValidation:
		return http.StatusBadRequest, code
	case code == simpleimage.CodeNotFound:
		return http.StatusNotFound, code
	case code == simpleimage.CodeObjectMissing:
		return http.StatusConflict, code
	case code != "":
		return http.StatusBadGateway, code
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func newErrorResponse(err error) (int, ErrorResponse) {
	status, code := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var (
		ve *simpleimage.ValidationError
		nf *simpleimage.NotFoundError
		om *simpleimage.ObjectMissingError
		sr *simpleimage.StorageReadError
		sw *simpleimage.StorageWriteError
		sd *simpleimage.StorageDeleteError
		pw *simpleimage.PartialWriteError
		pd *simpleimage.PartialDeleteError
	)
	switch {
	case errors.As(err, &ve):
		resp.Field = ve.Field
	case errors.As(err, &nf):
		resp.ImageID = nf.ImageID
	case errors.As(err, &om):
		resp.ImageID, resp.ObjectKey = om.ImageID, om.ObjectKey
	case errors.As(err, &sr):
		resp.ImageID, resp.Store = sr.ImageID, sr.Store
	case errors.As(err, &sw):
		resp.ImageID, resp.ObjectKey, resp.Store = sw.ImageID, sw.ObjectKey, sw.Store
	case errors.As(err, &sd):
		resp.ImageID, resp.ObjectKey, resp.Store = sd.ImageID, sd.ObjectKey, sd.Store
	case errors.As(err, &pw):
		resp.ImageID, resp.ObjectKey, resp.Store = pw.ImageID, pw.ObjectKey, simpleimage.StoreMetadata
	case errors.As(err, &pd):
		resp.ImageID, resp.ObjectKey, resp.Store = pd.ImageID, pd.ObjectKey, simpleimage.StoreMetadata
	}
	if status == http.StatusInternalServerError {
		resp.Error = "internal server error"
	}
	return status, resp
}

// writeError renders err as JSON with its mapped status
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := newErrorResponse(err)
	render.Status(r, status)
	render.JSON(w, r, resp)
}
