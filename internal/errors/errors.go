package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Error codes
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeConfiguration       = "CONFIGURATION_ERROR"
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeBadRequest          = "BAD_REQUEST"
)

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	Code    string            // Error code (e.g., "NOT_FOUND", "INVALID_STATE")
	Message string            // Human-readable error message
	Status  int               // HTTP status code
	Fields  map[string]string // Field-level detail for validation failures (optional)
	Err     error             // Wrapped underlying error (optional)
}

// Error implements the error interface
func (e *AppError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Code)
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+e.Fields[k])
		}
		sb.WriteString(" [")
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString("]")
	}
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(" (%v)", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error wrapping support
func (e *AppError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the caller may retry the same operation later.
func (e *AppError) Recoverable() bool {
	return e.Code == ErrCodeUpstreamUnavailable
}

// NewNotFoundError creates a new NOT_FOUND error
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %v", resource, id),
		Status:  http.StatusNotFound,
	}
}

// NewInvalidStateError reports an illegal state transition.
func NewInvalidStateError(resource string, current, requested string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidState,
		Message: fmt.Sprintf("cannot move %s from %s to %s", resource, current, requested),
		Status:  http.StatusConflict,
	}
}

// NewInvalidStateReason reports an operation refused by the current state for a reason
// other than the transition table.
func NewInvalidStateReason(resource, reason string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidState,
		Message: fmt.Sprintf("%s: %s", resource, reason),
		Status:  http.StatusConflict,
	}
}

// NewConflictError creates a new CONFLICT error
func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

// NewValidationError creates a new VALIDATION_ERROR
func NewValidationError(field string, reason string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf("validation failed for %s: %s", field, reason),
		Status:  http.StatusUnprocessableEntity,
		Fields:  map[string]string{field: reason},
	}
}

// NewFieldsValidationError creates a VALIDATION_ERROR carrying several field failures.
func NewFieldsValidationError(message string, fields map[string]string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Fields:  fields,
	}
}

// NewUpstreamUnavailableError wraps a timeout or transport failure of an external service.
func NewUpstreamUnavailableError(service string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeUpstreamUnavailable,
		Message: fmt.Sprintf("%s is unavailable, retry later", service),
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

// NewConfigurationError reports content that is missing mandatory configuration.
func NewConfigurationError(resource string, reason string) *AppError {
	return &AppError{
		Code:    ErrCodeConfiguration,
		Message: fmt.Sprintf("%s is not configured: %s", resource, reason),
		Status:  http.StatusUnprocessableEntity,
	}
}

// NewInternalError creates a new INTERNAL_ERROR
func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// NewBadRequestError creates a new BAD_REQUEST error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// As extracts an *AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Code returns the AppError code found in err's chain, or ErrCodeInternal.
func Code(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given AppError code.
func HasCode(err error, code string) bool {
	return err != nil && Code(err) == code
}
