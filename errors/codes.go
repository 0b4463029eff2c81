package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Selection errors
const (
	// ErrCodeInvalidRegistration indicates a registration was rejected (nil provider, empty id, zero contract).
	ErrCodeInvalidRegistration ErrorCode = "INVALID_REGISTRATION"
	// ErrCodeNotRegistered indicates no provider is available for a contract.
	ErrCodeNotRegistered ErrorCode = "NOT_REGISTERED"
	// ErrCodeConstraintUnsatisfiable indicates router hard filters eliminated every candidate.
	ErrCodeConstraintUnsatisfiable ErrorCode = "CONSTRAINT_UNSATISFIABLE"
)

// Plugin errors
const (
	// ErrCodePluginNotFound indicates an operation on an unknown plugin id.
	ErrCodePluginNotFound ErrorCode = "PLUGIN_NOT_FOUND"
	// ErrCodePluginLoadFailure indicates a bundle could not be resolved or instantiated.
	ErrCodePluginLoadFailure ErrorCode = "PLUGIN_LOAD_FAILURE"
	// ErrCodeInvalidState indicates a lifecycle transition that is not allowed.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
	// ErrCodeDisposed indicates use of a load context after it was disposed.
	ErrCodeDisposed ErrorCode = "DISPOSED"
)

// Warning codes. These are logged, never returned as failures.
const (
	// WarnCodeDuplicateShardKey flags a shard override key that was declared more than once.
	WarnCodeDuplicateShardKey ErrorCode = "DUPLICATE_SHARD_KEY"
	// WarnCodeTypeResolution flags a name that could not be resolved to a contract, strategy or component.
	WarnCodeTypeResolution ErrorCode = "TYPE_RESOLUTION"
)

// Generic errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeAlreadyExists indicates the resource already exists.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	// ErrCodeUnauthorized indicates the request is unauthorized.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeForbidden indicates the caller may not perform the operation.
	ErrCodeForbidden ErrorCode = "FORBIDDEN"
	// ErrCodeUnsupportedMediaType indicates a request body in an unaccepted format.
	ErrCodeUnsupportedMediaType ErrorCode = "UNSUPPORTED_MEDIA_TYPE"
	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeServiceUnavailable indicates the provider is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable: true,
	ErrCodeTimeout:            true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
