package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. The prefix carries the retry semantics: upstream_*
// codes are transient unless stated otherwise, permanent_* codes are never
// retried, internal_* codes indicate bugs or storage failures.
const (
	// Validation
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationBadChannel   ErrorCode = "validation_invalid_channel"
	ErrCodeValidationBadMessage   ErrorCode = "validation_invalid_message"

	// Not found
	ErrCodeNotFoundStore      ErrorCode = "not_found_store"
	ErrCodeNotFoundUser       ErrorCode = "not_found_user"
	ErrCodeNotFoundInsight    ErrorCode = "not_found_insight"
	ErrCodeNotFoundPreference ErrorCode = "not_found_preference"
	ErrCodeNotFoundDispatch   ErrorCode = "not_found_dispatch"

	// Conflict
	ErrCodeConflictSyncPending    ErrorCode = "conflict_sync_already_pending"
	ErrCodeConflictStoreNotActive ErrorCode = "conflict_store_not_active"

	// Upstream, transient: retried with backoff at the queue layer.
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamTimeout     ErrorCode = "upstream_timeout"

	// Permanent: surfaced as a status change or terminal dispatch failure,
	// never retried.
	ErrCodePermanentCredentials ErrorCode = "permanent_invalid_credentials"
	ErrCodePermanentAddress     ErrorCode = "permanent_invalid_address"
	ErrCodePermanentRejected    ErrorCode = "permanent_provider_rejected"

	// Internal
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to the status the ops surface responds with.
// Returns 500 for unrecognized codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	case strings.HasPrefix(s, "permanent_"):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. All domain errors are
// expressed as AppError so retry classification, HTTP mapping, and error
// chains behave consistently.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsTransient reports whether err should be retried. Transient errors are
// upstream rate limits, timeouts, and 5xx-class unavailability; everything
// else (validation, permanent credential/address failures, internal bugs)
// is not retried by the queue layer.
//
// An unclassified error (not an AppError) is treated as transient: network
// failures surface as plain errors from the HTTP client, and retrying a
// genuine bug is contained by the attempt cap.
func IsTransient(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return true
	}
	switch appErr.Code {
	case ErrCodeUpstreamRateLimited, ErrCodeUpstreamUnavailable, ErrCodeUpstreamTimeout:
		return true
	}
	return false
}

// IsPermanent reports whether err is a terminal configuration failure
// (invalid credentials or address) that must surface as a status change
// rather than be retried.
func IsPermanent(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case ErrCodePermanentCredentials, ErrCodePermanentAddress, ErrCodePermanentRejected:
		return true
	}
	return false
}

// HasCode reports whether err is an AppError carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
