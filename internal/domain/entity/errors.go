package entity

import (
	"errors"
	"fmt"
)

// ErrorCode is the taxonomy carried in every response envelope.
type ErrorCode string

const (
	ErrorNone              ErrorCode = ""
	ErrorPermissionDenied  ErrorCode = "PermissionDenied"
	ErrorInvalidParameters ErrorCode = "InvalidParameters"
	ErrorQueueDoesNotExist ErrorCode = "MessageQueueDoesNotExist"
	ErrorQueueFull         ErrorCode = "MessageQueueFull"
	ErrorUnknown           ErrorCode = "Unknown"
)

// Error is a coded domain error suitable for crossing the wire.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a coded error.
func NewError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the error code from err, defaulting to ErrorUnknown for
// anything that is not a coded error.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrorNone
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrorUnknown
}
