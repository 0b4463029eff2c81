// Package errors provides the structured error type shared by the registry,
// strategies, router and plugin host. Every failure carries a machine-readable
// code, a retryable flag and the HTTP status the admin API renders it with.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// IsCode reports whether err (or anything it wraps) is an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	for err != nil {
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// --- Selection errors ---

// InvalidRegistration creates an error for a rejected register call.
func InvalidRegistration(reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidRegistration, Message: fmt.Sprintf("Invalid registration: %s", reason),
		HTTPStatus: http.StatusBadRequest,
	}
}

// NotRegistered creates an error for a contract without any usable provider.
func NotRegistered(contract string) *AppError {
	return &AppError{
		Code: ErrCodeNotRegistered, Message: fmt.Sprintf("No provider is registered for %s.", contract),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"contract": contract},
	}
}

// ConstraintUnsatisfiable creates an error for a routing request whose filters removed every candidate.
func ConstraintUnsatisfiable(contract, filter string) *AppError {
	return &AppError{
		Code:       ErrCodeConstraintUnsatisfiable,
		Message:    fmt.Sprintf("No provider for %s satisfies the routing constraints.", contract),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"contract": contract, "filter": filter},
	}
}

// --- Plugin errors ---

// PluginNotFound creates an error for an operation on an unknown plugin.
func PluginNotFound(id string) *AppError {
	return &AppError{
		Code: ErrCodePluginNotFound, Message: fmt.Sprintf("Plugin %q is not loaded.", id),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"plugin": id},
	}
}

// PluginLoadFailure creates an error for a plugin that could not be loaded.
func PluginLoadFailure(id string, cause error) *AppError {
	return &AppError{
		Code: ErrCodePluginLoadFailure, Message: fmt.Sprintf("Plugin %q could not be loaded.", id),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"plugin": id}, Cause: cause,
	}
}

// InvalidState creates an error for a lifecycle transition that is not allowed.
func InvalidState(id, from, to string) *AppError {
	return &AppError{
		Code:       ErrCodeInvalidState,
		Message:    fmt.Sprintf("Plugin %q cannot move from %s to %s.", id, from, to),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"plugin": id, "from": from, "to": to},
	}
}

// Disposed creates an error for access to a released load context.
func Disposed(id string) *AppError {
	return &AppError{
		Code: ErrCodeDisposed, Message: fmt.Sprintf("Load context for %q has been disposed.", id),
		HTTPStatus: http.StatusGone,
		Details:    map[string]any{"plugin": id},
	}
}

// --- Generic errors ---

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("The requested %s was not found.", resource),
		HTTPStatus: http.StatusNotFound, Details: details,
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// AlreadyExists creates a new AppError for a resource that already exists.
func AlreadyExists(resource, id string) *AppError {
	return &AppError{
		Code: ErrCodeAlreadyExists, Message: fmt.Sprintf("The %s %q already exists.", resource, id),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"resource": resource, "id": id},
	}
}

// Unauthorized creates a new AppError for unauthorized access.
func Unauthorized(reason string) *AppError {
	if reason == "" {
		reason = "Authentication required."
	}
	return &AppError{
		Code: ErrCodeUnauthorized, Message: reason,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a new AppError for an operation the caller may not perform.
func Forbidden(reason string) *AppError {
	return &AppError{
		Code: ErrCodeForbidden, Message: reason,
		HTTPStatus: http.StatusForbidden,
	}
}

// UnsupportedMediaType creates a new AppError for a body that is not in the
// expected format.
func UnsupportedMediaType(want string) *AppError {
	return &AppError{
		Code: ErrCodeUnsupportedMediaType, Message: fmt.Sprintf("Content-Type must be %s.", want),
		HTTPStatus: http.StatusUnsupportedMediaType,
		Details:    map[string]any{"expected": want},
	}
}

// Timeout creates a new AppError for an operation that timed out or was canceled.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: "The operation took too long.",
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// ServiceUnavailable creates a new AppError for a provider that is temporarily unavailable.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code: ErrCodeServiceUnavailable, Message: fmt.Sprintf("The %s is temporarily unavailable.", service),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"service": service},
	}
}

// Internal creates a new AppError for an internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Cause: cause,
	}
}
