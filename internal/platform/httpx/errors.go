// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors handlers wrap domain failures with.
var (
	ErrNotFound    = errors.New("resource not found")
	ErrValidation  = errors.New("validation failed")
	ErrUnavailable = errors.New("upstream unavailable")
	ErrRateLimited = errors.New("too many requests")
)

// RespondError maps domain errors to HTTP responses using RFC7807. Unmapped
// errors answer 500 without leaking their text.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrRateLimited):
		Problem(w, http.StatusTooManyRequests, "Too Many Requests", err.Error())
	case errors.Is(err, ErrUnavailable):
		Problem(w, http.StatusBadGateway, "Upstream Unavailable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
