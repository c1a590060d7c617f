package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prn-tf/castellan/internal/domain"
)

// apiError is the JSON error body returned by every endpoint.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError renders an error body with an explicit status.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Code: code, Message: message})
}

// writeDomainError maps a domain error to its HTTP representation.
// Unknown errors become a 500 without leaking their message.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrGroupNotFound),
		errors.Is(err, domain.ErrPermissionNotFound),
		errors.Is(err, domain.ErrHostNotFound),
		errors.Is(err, domain.ErrHostGroupNotFound),
		errors.Is(err, domain.ErrTokenNotFound),
		errors.Is(err, domain.ErrEmailNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, domain.ErrAccountAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists", err.Error())

	case errors.Is(err, domain.ErrAuthentication):
		writeError(w, http.StatusUnauthorized, "authentication_failed", "invalid credentials")

	case errors.Is(err, domain.ErrNotActivated):
		writeError(w, http.StatusForbidden, "not_activated", "account is not activated")

	case errors.Is(err, domain.ErrAuthorization):
		writeError(w, http.StatusForbidden, "authorization_failed", "access denied")

	case errors.Is(err, domain.ErrTokenExpired):
		writeError(w, http.StatusGone, "token_expired", "token has expired")

	case errors.Is(err, domain.ErrInvalidEmailLocal),
		errors.Is(err, domain.ErrDomainNotAllowed):
		writeError(w, http.StatusBadRequest, "invalid_email", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// decodeBody parses a JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed request body")
		return false
	}
	return true
}
