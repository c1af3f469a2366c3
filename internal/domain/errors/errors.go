// Package errors defines the sentinel errors and the coded error type shared
// by every layer of scribesync.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrSyncAborted              = errors.New("sync cycle aborted")
	ErrConnectivityLost         = errors.New("connectivity dropped below required quality")
	ErrSnapshotFailed           = errors.New("could not read pending items")
	ErrItemNotFound             = errors.New("queued item not found")
	ErrQueueNotFound            = errors.New("queue not found")
	ErrEngineRegistered         = errors.New("another engine is registered under this name")
	ErrInvalidConnectionQuality = errors.New("invalid connection quality")
	ErrStoreClosed              = errors.New("store is closed")
)

// ErrorCode classifies a SyncError for reporting.
type ErrorCode string

const (
	CodeValidation    ErrorCode = "VALIDATION"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeDelivery      ErrorCode = "DELIVERY"
	CodeStorage       ErrorCode = "STORAGE"
	CodeConfiguration ErrorCode = "CONFIG"
	CodeNetwork       ErrorCode = "NETWORK"
)

// SyncError is an error tagged with a code. Cause stays reachable through
// errors.Is and errors.As.
type SyncError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// NewError returns a SyncError. cause may be nil.
func NewError(code ErrorCode, message string, cause error) *SyncError {
	return &SyncError{Code: code, Message: message, Cause: cause}
}

// Errorf is NewError with a formatted message.
func Errorf(code ErrorCode, cause error, format string, args ...any) *SyncError {
	return NewError(code, fmt.Sprintf(format, args...), cause)
}

func (e *SyncError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
}

func (e *SyncError) Unwrap() error { return e.Cause }

// Is matches another SyncError carrying the same code and no message, so
// errors.Is(err, &SyncError{Code: CodeNetwork}) tests for a class of error.
func (e *SyncError) Is(target error) bool {
	t, ok := target.(*SyncError)
	return ok && t.Message == "" && t.Cause == nil && t.Code == e.Code
}

// CodeOf returns the code of the outermost SyncError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }
