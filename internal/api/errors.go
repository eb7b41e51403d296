package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/taarskog/somweb-bridge/internal/entry"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeNotFound      = "not_found"
	ErrCodeUnauthorized  = "unauthorised"
	ErrCodeConflict      = "conflict"
	ErrCodeInternal      = "internal_error"
	ErrCodeInvalidURL    = "invalid_url"
	ErrCodeInvalidUDI    = "invalid_udi"
	ErrCodeInvalidAuth   = "invalid_auth"
	ErrCodeCannotConnect = "cannot_connect"
	ErrCodeNotReady      = "not_ready"
	ErrCodeUnknown       = "unknown"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeValidationError maps the entry validation taxonomy onto HTTP
// responses. Each failure gets a distinct code so clients can highlight
// the offending field.
func writeValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entry.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidURL, "device url is missing or malformed")
	case errors.Is(err, entry.ErrInvalidUDI):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidUDI, "device udi is required for cloud mode")
	case errors.Is(err, entry.ErrInvalidAuth):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidAuth, "device rejected the credentials")
	case errors.Is(err, entry.ErrCannotConnect):
		writeError(w, http.StatusBadGateway, ErrCodeCannotConnect, "device is not reachable")
	case errors.Is(err, entry.ErrEntryExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "device is already configured")
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeUnknown, "validation failed unexpectedly")
	}
}
