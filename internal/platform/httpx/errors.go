// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/beopar/beopar/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Store internals never leak into the response body.
func RespondError(w http.ResponseWriter, err error) {
	var ve *shared.ValidationError
	var ce *shared.ConflictError
	var se *shared.StoreUnavailableError
	switch {
	case errors.As(err, &ve):
		Problem(w, http.StatusBadRequest, "Validation Failed", ve.Msg)
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.As(err, &ce):
		Problem(w, http.StatusConflict, "Conflict", "concurrent modification detected, retry with fresh state")
	case errors.As(err, &se):
		Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "backing store unreachable, the operation was not applied")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
