// Package errors provides the structured error type returned across service
// boundaries. Every failure that reaches an HTTP caller or the scheduler is a
// *ServiceError so it can be rendered as a JSON payload.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure.
type Code string

const (
	CodeDataAccess  Code = "DATA_ACCESS_ERROR"
	CodeEvaluation  Code = "EVALUATION_ERROR"
	CodeAuditWrite  Code = "AUDIT_WRITE_ERROR"
	CodeValidation  Code = "VALIDATION_ERROR"
	CodeNotFound    Code = "NOT_FOUND"
	CodeRateLimit   Code = "RATE_LIMIT_EXCEEDED"
	CodeUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeInternal    Code = "INTERNAL_ERROR"
)

// ServiceError is a failure with a stable code, a human-readable message and
// the HTTP status it maps to.
type ServiceError struct {
	Code       Code           `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Retryable  bool           `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches any *ServiceError carrying the same code.
func (e *ServiceError) Is(target error) bool {
	var se *ServiceError
	if errors.As(target, &se) {
		return se.Code == e.Code
	}
	return false
}

// WithDetail attaches a key/value pair rendered in the error payload.
func (e *ServiceError) WithDetail(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrDataAccess  = &ServiceError{Code: CodeDataAccess}
	ErrEvaluation  = &ServiceError{Code: CodeEvaluation}
	ErrAuditWrite  = &ServiceError{Code: CodeAuditWrite}
	ErrValidation  = &ServiceError{Code: CodeValidation}
	ErrNotFound    = &ServiceError{Code: CodeNotFound}
	ErrUnavailable = &ServiceError{Code: CodeUnavailable}
)

// DataAccess reports a failure reading the certificate store.
func DataAccess(message string, err error, retryable bool) *ServiceError {
	return &ServiceError{
		Code:       CodeDataAccess,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Retryable:  retryable,
		Err:        err,
	}
}

// Evaluation reports an unexpected fault while classifying certificates.
func Evaluation(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       CodeEvaluation,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// AuditWrite reports a failure persisting an evaluation result.
func AuditWrite(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       CodeAuditWrite,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Validation reports malformed caller input.
func Validation(message string) *ServiceError {
	return &ServiceError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *ServiceError {
	return &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// RateLimitExceeded reports a throttled caller.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return &ServiceError{
		Code:       CodeRateLimit,
		Message:    fmt.Sprintf("rate limit exceeded: %d requests per %s", limit, window),
		HTTPStatus: http.StatusTooManyRequests,
		Retryable:  true,
	}
}

// Unavailable reports that the service cannot take the request right now.
func Unavailable(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       CodeUnavailable,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		Err:        err,
	}
}

// Internal wraps an unclassified failure.
func Internal(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// As extracts a *ServiceError from err, wrapping unknown errors as internal.
func As(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return Internal(err.Error(), err)
}

// IsRetryable reports whether err is marked retryable.
func IsRetryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// HTTPStatus returns the HTTP status for err, 500 when unknown.
func HTTPStatus(err error) int {
	var se *ServiceError
	if errors.As(err, &se) && se.HTTPStatus != 0 {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}
