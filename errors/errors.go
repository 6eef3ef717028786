package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Configuration errors
	ErrConfigParse   ErrorType = "CONFIG_PARSE_ERROR"
	ErrConfigInvalid ErrorType = "CONFIG_INVALID_ERROR"

	// AWS errors
	ErrAWSClient         ErrorType = "AWS_CLIENT_ERROR"
	ErrProvisioning      ErrorType = "PROVISIONING_ERROR"
	ErrInstanceLifecycle ErrorType = "INSTANCE_LIFECYCLE_ERROR"
	ErrAddress           ErrorType = "ADDRESS_ERROR"

	// Waits and readiness probes that ran out of time
	ErrTimedOut ErrorType = "TIMED_OUT_ERROR"

	// Persisted resource record errors
	ErrStore ErrorType = "STORE_ERROR"

	// Benchmark harness errors
	ErrBindConflict ErrorType = "BIND_CONFLICT_ERROR"
	ErrMaxAttempts  ErrorType = "MAX_ATTEMPTS_ERROR"
	ErrBuild        ErrorType = "BUILD_ERROR"
	ErrProcess      ErrorType = "PROCESS_ERROR"
	ErrSweepFile    ErrorType = "SWEEP_FILE_ERROR"

	// Remote execution errors
	ErrRemote ErrorType = "REMOTE_ERROR"

	// Operator input errors
	ErrUserInput ErrorType = "USER_INPUT_ERROR"
)

// CustomError represents a custom error with additional context
type CustomError struct {
	Type       ErrorType
	Message    string
	Context    map[string]interface{}
	WrappedErr error
}

// New creates a new custom error
func New(errorType ErrorType, message string, context map[string]interface{}, wrappedErr error) *CustomError {
	return &CustomError{
		Type:       errorType,
		Message:    message,
		Context:    context,
		WrappedErr: wrappedErr,
	}
}

// Error implements the error interface
func (e *CustomError) Error() string {
	if e.WrappedErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.WrappedErr)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *CustomError) Unwrap() error {
	return e.WrappedErr
}

// Is reports whether any CustomError in err's chain has the given type.
func Is(err error, errType ErrorType) bool {
	for err != nil {
		var customErr *CustomError
		if !stderrors.As(err, &customErr) {
			return false
		}
		if customErr.Type == errType {
			return true
		}
		err = customErr.WrappedErr
	}
	return false
}

// TypeOf returns the type of the outermost CustomError in err's chain, or ""
// when there is none.
func TypeOf(err error) ErrorType {
	var customErr *CustomError
	if stderrors.As(err, &customErr) {
		return customErr.Type
	}
	return ""
}
