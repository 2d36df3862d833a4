package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/credentials"
)

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("write json", "error", err)
	}
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// writeDomainError maps the domain error taxonomy onto HTTP responses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var locked *apperrors.LockedError
	var lockout *apperrors.LockoutError

	switch {
	case errors.As(err, &locked):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter(locked.Until, s.now())))
		writeError(w, http.StatusLocked, "ACCOUNT_LOCKED", "Account is temporarily locked")
	case errors.Is(err, apperrors.ErrAccountLocked):
		writeError(w, http.StatusLocked, "ACCOUNT_LOCKED", "Account is temporarily locked")
	case errors.As(err, &lockout):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter(lockout.Until, s.now())))
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS",
			"Invalid email or password; too many failed attempts, account is now locked")
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	case errors.Is(err, apperrors.ErrAccountInactive):
		writeError(w, http.StatusForbidden, "ACCOUNT_INACTIVE", "Account is inactive")
	case errors.Is(err, apperrors.ErrMissingToken):
		writeError(w, http.StatusBadRequest, "MISSING_TOKEN", "Refresh token is required")
	case errors.Is(err, apperrors.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Invalid or expired refresh token")
	case errors.Is(err, apperrors.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Access token has expired")
	case errors.Is(err, apperrors.ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid access token")
	case errors.Is(err, apperrors.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "USER_EXISTS", "User with this email already exists")
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	case credentials.IsValidation(err):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		s.log.ErrorContext(r.Context(), "store unavailable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")
	default:
		s.log.ErrorContext(r.Context(), "unhandled error", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

func retryAfter(until, now time.Time) int {
	secs := int(math.Ceil(until.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
