package errors

import (
	"fmt"
)

// ErrorCode represents a specific error type for chat and identity operations.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a referenced session or message does not exist
	// in the active store.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInvalidArgument indicates a required field is missing or malformed.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodePersistenceFailed indicates an underlying storage operation failed.
	ErrCodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
	// ErrCodeAccountDeactivated indicates the identity exists but is archived.
	ErrCodeAccountDeactivated ErrorCode = "ACCOUNT_DEACTIVATED"
	// ErrCodeCompletionUnavailable indicates the completion service is unreachable.
	ErrCodeCompletionUnavailable ErrorCode = "COMPLETION_UNAVAILABLE"
	// ErrCodeUnauthorized indicates authentication failure.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeSendInFlight indicates a send is already outstanding for the session.
	ErrCodeSendInFlight ErrorCode = "SEND_IN_FLIGHT"
)

// ChatError represents a structured error for chat and identity operations.
type ChatError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ChatError) Unwrap() error {
	return e.Cause
}

// GetCode returns the error code.
func (e *ChatError) GetCode() ErrorCode {
	return e.Code
}

// Convenience constructors for common error types.

// NotFound creates a not found error.
func NotFound(msg string) *ChatError {
	return &ChatError{Code: ErrCodeNotFound, Message: msg}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *ChatError {
	return &ChatError{Code: ErrCodeInvalidArgument, Message: msg}
}

// PersistenceFailed creates a persistence failed error.
func PersistenceFailed(msg string, cause error) *ChatError {
	return &ChatError{Code: ErrCodePersistenceFailed, Message: msg, Cause: cause}
}

// AccountDeactivated creates an account deactivated error.
func AccountDeactivated(email string) *ChatError {
	return &ChatError{
		Code:    ErrCodeAccountDeactivated,
		Message: fmt.Sprintf("account is deactivated: %s", email),
	}
}

// CompletionUnavailable creates a completion unavailable error.
func CompletionUnavailable(cause error) *ChatError {
	return &ChatError{Code: ErrCodeCompletionUnavailable, Message: "completion service unavailable", Cause: cause}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *ChatError {
	return &ChatError{Code: ErrCodeUnauthorized, Message: msg}
}

// SendInFlight creates a send in flight error.
func SendInFlight(sessionID string) *ChatError {
	return &ChatError{
		Code:    ErrCodeSendInFlight,
		Message: fmt.Sprintf("a send is already in flight for session %s", sessionID),
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(cause error, code ErrorCode, msg string) *ChatError {
	return &ChatError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if chatErr, ok := err.(*ChatError); ok {
		return chatErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not a ChatError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if chatErr, ok := err.(*ChatError); ok {
		return chatErr.Code
	}
	return defaultCode
}
