package errors

import (
	"errors"
	"fmt"
)

// Core error taxonomy. Protocol adapters map these onto their own wire
// formats; the core never swallows them.
var (
	// ErrAuthenticationFailed indicates the external authenticator rejected
	// the supplied credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrMailboxNotFound indicates no mailbox exists at the given path.
	ErrMailboxNotFound = errors.New("mailbox not found")

	// ErrMailboxExists indicates a mailbox already occupies the given path.
	ErrMailboxExists = errors.New("mailbox already exists")

	// ErrInsufficientRights indicates the session's user lacks the rights
	// required for the operation.
	ErrInsufficientRights = errors.New("insufficient rights")

	// ErrContentFault indicates the append content stream could not be
	// fully read.
	ErrContentFault = errors.New("content stream unreadable")

	// ErrBackendUnavailable indicates a transient storage failure. The
	// mapper factory retries these before surfacing them.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrMessageNotFound indicates the message was not found.
	ErrMessageNotFound = errors.New("message not found")

	// ErrInvalidInput indicates invalid input data.
	ErrInvalidInput = errors.New("invalid input")
)

// Error codes for adapter responses
const (
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodeMailboxNotFound      = "MAILBOX_NOT_FOUND"
	CodeMailboxExists        = "MAILBOX_EXISTS"
	CodeInsufficientRights   = "INSUFFICIENT_RIGHTS"
	CodeContentFault         = "CONTENT_FAULT"
	CodeBackendUnavailable   = "BACKEND_UNAVAILABLE"
	CodeMessageNotFound      = "MESSAGE_NOT_FOUND"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeInternalError        = "INTERNAL_ERROR"
)

// AppError represents an application error with context
type AppError struct {
	Err     error
	Message string
	Code    string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(err error, message string, code string) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMailboxNotFound) || errors.Is(err, ErrMessageNotFound)
}

// IsRetryable reports whether the mapper factory may retry the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// GetErrorCode returns the appropriate error code for an error
func GetErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return CodeAuthenticationFailed
	case errors.Is(err, ErrMailboxNotFound):
		return CodeMailboxNotFound
	case errors.Is(err, ErrMailboxExists):
		return CodeMailboxExists
	case errors.Is(err, ErrInsufficientRights):
		return CodeInsufficientRights
	case errors.Is(err, ErrContentFault):
		return CodeContentFault
	case errors.Is(err, ErrBackendUnavailable):
		return CodeBackendUnavailable
	case errors.Is(err, ErrMessageNotFound):
		return CodeMessageNotFound
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	default:
		return CodeInternalError
	}
}
