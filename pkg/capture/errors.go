package capture

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a script run failed.
type ErrorKind string

const (
	ErrorKindCaptureKindMismatch ErrorKind = "capture_kind_mismatch"
	ErrorKindNoCaptureInvoked    ErrorKind = "no_capture_invoked"
	ErrorKindTimeout             ErrorKind = "timeout"
	ErrorKindRuntime             ErrorKind = "runtime_error"
)

// Sentinels for matching a classified failure with errors.Is.
var (
	ErrCaptureKindMismatch = &Error{Kind: ErrorKindCaptureKindMismatch}
	ErrNoCaptureInvoked    = &Error{Kind: ErrorKindNoCaptureInvoked}
	ErrTimeout             = &Error{Kind: ErrorKindTimeout}
	ErrRuntime             = &Error{Kind: ErrorKindRuntime}
)

// Error is a classified script failure. Message carries the underlying
// failure text unmodified.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError creates a classified error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a classified error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an Error of the same kind, so a classified
// failure matches its sentinel regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the classification of err, or "" when err is not a
// classified script failure.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
