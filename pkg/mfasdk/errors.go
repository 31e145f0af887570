package mfasdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/twofactor/pkg/httpx"
)

// ============================================================================
// Error Codes
// ============================================================================

const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidToken       = "invalid_token"
	ErrorCodeInvalidClient      = "invalid_client"
	ErrorCodeInvalidMFAToken    = "invalid_mfa_token"
	ErrorCodeInvalidCode        = "invalid_code"
	ErrorCodeTooManyAttempts    = "too_many_attempts"
	ErrorCodeMFANotConfigured   = "mfa_not_configured"
	ErrorCodeMFAAlreadyEnabled  = "mfa_already_enabled"
	ErrorCodeSetupNotInitiated  = "setup_not_initiated"
	ErrorCodeUnsupportedMethod  = "unsupported_method"
	ErrorCodeStorageUnavailable = "storage_unavailable"
	ErrorCodeRateLimitExceeded  = "rate_limit_exceeded"
	ErrorCodeServerError        = "server_error"
)

// ============================================================================
// APIError
// ============================================================================

// APIError is the error body returned by every endpoint. It implements the
// error interface and is used both by the server (to write HTTP responses)
// and by the SDK client (to represent errors).
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`

	// RemainingAttempts is set on invalid_code responses at login.
	RemainingAttempts *int `json:"remaining_attempts,omitempty"`

	// LockedUntil is set on too_many_attempts only when the service is
	// configured to reveal it.
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:             e.Code,
		ErrorDescription:  e.Description,
		RemainingAttempts: e.RemainingAttempts,
		LockedUntil:       e.LockedUntil,
	})
}

// WithRemainingAttempts returns a copy of e carrying n.
func (e *APIError) WithRemainingAttempts(n int) *APIError {
	cp := *e
	cp.RemainingAttempts = &n
	return &cp
}

// WithLockedUntil returns a copy of e carrying the unlock time.
func (e *APIError) WithLockedUntil(t time.Time) *APIError {
	cp := *e
	cp.LockedUntil = &t
	return &cp
}

// ============================================================================
// Predefined Errors
// ============================================================================

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is missing, invalid, expired or revoked",
	}

	// ErrInvalidMFAToken is returned for every malformed, tampered or expired
	// pending token. The cause is not disclosed.
	ErrInvalidMFAToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidMFAToken,
		Description: "the mfa token is invalid or expired",
	}

	ErrInvalidCode = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCode,
		Description: "the code is invalid",
	}

	ErrTooManyAttempts = &APIError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeTooManyAttempts,
		Description: "too many failed attempts, try again later",
	}

	ErrMFANotConfigured = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeMFANotConfigured,
		Description: "mfa is not configured for this user",
	}

	ErrMFAAlreadyEnabled = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeMFAAlreadyEnabled,
		Description: "mfa is already enabled for this user",
	}

	ErrSetupNotInitiated = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeSetupNotInitiated,
		Description: "mfa setup has not been started",
	}

	ErrUnsupportedMethod = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeUnsupportedMethod,
		Description: "method must be totp or backup_code",
	}

	ErrStorageUnavailable = &APIError{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeStorageUnavailable,
		Description: "mfa storage is temporarily unavailable",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// IsErrorCode reports whether err is an *APIError with the given code.
func IsErrorCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse converts an HTTP error response into an *APIError.
// Returns nil if the response indicates success (2xx status code).
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:        resp.StatusCode,
			Code:              errResp.Error,
			Description:       errResp.ErrorDescription,
			RemainingAttempts: errResp.RemainingAttempts,
			LockedUntil:       errResp.LockedUntil,
		}
	}

	// Fallback: create generic error from status code
	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
