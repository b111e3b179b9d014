// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Sentinel errors raised by the HTTP layer itself.
var (
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "forbidden", err.Error())
		return
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "unauthorized", err.Error())
		return
	}

	kind := shared.KindOf(err)
	switch kind {
	case shared.KindValidation:
		Problem(w, http.StatusBadRequest, "Validation Failed", kind, err.Error())
	case shared.KindDuplicateKey:
		Problem(w, http.StatusConflict, "Duplicate", kind, err.Error())
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, "Not Found", kind, err.Error())
	case shared.KindInvalidTransition:
		Problem(w, http.StatusConflict, "Invalid Transition", kind, err.Error())
	case shared.KindInsufficientStock:
		Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", kind, err.Error())
	case shared.KindConflict:
		Problem(w, http.StatusConflict, "Conflict", kind, err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", shared.KindInternal, "")
	}
}
