package utils

import (
	"errors"
	"fmt"

	"github.com/dl-alexandre/syncapp/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Auth errors (10-19)
	ExitAuthRequired = 10
	ExitAuthExpired  = 11
	// Object errors (20-29)
	ExitFileNotFound     = 20
	ExitPermissionDenied = 21
	ExitUnexportable     = 22
	ExitInvalidMetadata  = 23
	// Network errors (30-39)
	ExitNetworkError       = 30
	ExitTimeout            = 31
	ExitRateLimited        = 32
	ExitProviderError      = 33
	ExitRemoteCommandError = 34
	// Validation errors (40-49)
	ExitInvalidArgument     = 40
	ExitInvalidURL          = 41
	ExitServiceTypeMismatch = 42
	ExitConfigError         = 43
	// Batch errors
	ExitBatchPartialFailure = 60
	// Unknown
	ExitUnknown = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeAuthRequired        = "AUTH_REQUIRED"
	ErrCodeAuthExpired         = "AUTH_EXPIRED"
	ErrCodeFileNotFound        = "FILE_NOT_FOUND"
	ErrCodePermissionDenied    = "PERMISSION_DENIED"
	ErrCodeUnexportable        = "UNEXPORTABLE"
	ErrCodeInvalidMetadata     = "INVALID_METADATA"
	ErrCodeNetworkError        = "NETWORK_ERROR"
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeProviderError       = "PROVIDER_ERROR"
	ErrCodeRemoteCommandFailed = "REMOTE_COMMAND_FAILED"
	ErrCodeInvalidArgument     = "INVALID_ARGUMENT"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeServiceTypeMismatch = "SERVICE_TYPE_MISMATCH"
	ErrCodeConfigError         = "CONFIG_ERROR"
	ErrCodeBatchPartialFailure = "BATCH_PARTIAL_FAILURE"
	ErrCodeCancelled           = "CANCELLED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeUnknown             = "UNKNOWN"
)

// CLIErrorBuilder helps construct CLIError instances
type CLIErrorBuilder struct {
	err types.CLIError
}

// NewCLIError creates a new error builder
func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{
		err: types.CLIError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *CLIErrorBuilder) WithHTTPStatus(status int) *CLIErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *CLIErrorBuilder) WithProviderReason(reason string) *CLIErrorBuilder {
	b.err.ProviderReason = reason
	return b
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

// GetExitCode returns the exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeAuthRequired:        ExitAuthRequired,
		ErrCodeAuthExpired:         ExitAuthExpired,
		ErrCodeFileNotFound:        ExitFileNotFound,
		ErrCodePermissionDenied:    ExitPermissionDenied,
		ErrCodeUnexportable:        ExitUnexportable,
		ErrCodeInvalidMetadata:     ExitInvalidMetadata,
		ErrCodeNetworkError:        ExitNetworkError,
		ErrCodeTimeout:             ExitTimeout,
		ErrCodeRateLimited:         ExitRateLimited,
		ErrCodeProviderError:       ExitProviderError,
		ErrCodeRemoteCommandFailed: ExitRemoteCommandError,
		ErrCodeInvalidArgument:     ExitInvalidArgument,
		ErrCodeInvalidURL:          ExitInvalidURL,
		ErrCodeServiceTypeMismatch: ExitServiceTypeMismatch,
		ErrCodeConfigError:         ExitConfigError,
		ErrCodeBatchPartialFailure: ExitBatchPartialFailure,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

// AppError is a custom error type that carries CLI error info
type AppError struct {
	CLIError types.CLIError
	cause    error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

// Unwrap exposes the underlying provider error, if any
func (e *AppError) Unwrap() error {
	return e.cause
}

// NewAppError creates an AppError from a CLIError
func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}

// WrapAppError creates an AppError that keeps the original error in its chain
func WrapAppError(cliErr types.CLIError, cause error) *AppError {
	return &AppError{CLIError: cliErr, cause: cause}
}

// AsCLIError extracts a CLIError from any error, defaulting to UNKNOWN
func AsCLIError(err error) types.CLIError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError
	}
	return NewCLIError(ErrCodeUnknown, err.Error()).Build()
}

// IsRetryable reports whether err was classified as transient
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError.Retryable
	}
	return false
}
