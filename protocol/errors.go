package protocol

import (
	"errors"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Implementation-defined server error codes.
const (
	CodeNotFound     = -32001
	CodeUnauthorized = -32002
	CodeRateLimited  = -32003
)

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`

	// cause is the value this error was normalized from. It never goes on the wire.
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "jsonrpc: <nil>"
	}
	return fmt.Sprintf("jsonrpc: %s (code: %d)", e.Message, e.Code)
}

// Is implements errors.Is comparison by error code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Unwrap returns the original error this error was normalized from, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// WithData returns a copy of the error with additional data attached.
func (e *Error) WithData(data any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Data:    data,
		cause:   e.cause,
	}
}

// WrapError creates an error with the given code that unwraps to cause.
func WrapError(code int, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// NewParseError creates a parse error (-32700).
func NewParseError(msg string) *Error {
	return &Error{Code: CodeParseError, Message: msg}
}

// NewInvalidRequest creates an invalid request error (-32600).
func NewInvalidRequest(msg string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: msg}
}

// NewMethodNotFound creates a method not found error (-32601).
func NewMethodNotFound(msg string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: msg}
}

// NewInvalidParams creates an invalid params error (-32602).
func NewInvalidParams(msg string) *Error {
	return &Error{Code: CodeInvalidParams, Message: msg}
}

// NewInternalError creates an internal error (-32603).
func NewInternalError(msg string) *Error {
	return &Error{Code: CodeInternalError, Message: msg}
}

// NewNotFound creates a not found error (-32001).
func NewNotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NewUnauthorized creates an unauthorized error (-32002).
func NewUnauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

// NewRateLimited creates a rate limited error (-32003).
func NewRateLimited(msg string) *Error {
	return &Error{Code: CodeRateLimited, Message: msg}
}

// NormalizeError converts an arbitrary failure into a JSON-RPC error object.
//
// A *Error found anywhere in an error chain is returned unchanged, so
// normalizing an already normalized value is a no-op. A nil *Error held in a
// non-nil error becomes an internal error. Any other error becomes
// an internal error that unwraps to the original. Values that are not errors
// at all (a recovered panic value, for instance) become an internal error
// whose data carries the original value.
func NormalizeError(v any) *Error {
	switch val := v.(type) {
	case nil:
		return nil
	case error:
		var rpcErr *Error
		if errors.As(val, &rpcErr) {
			if rpcErr == nil {
				return &Error{Code: CodeInternalError, Message: "nil error value"}
			}
			return rpcErr
		}
		return &Error{
			Code:    CodeInternalError,
			Message: val.Error(),
			cause:   val,
		}
	default:
		return &Error{
			Code:    CodeInternalError,
			Message: fmt.Sprint(val),
			Data:    map[string]any{"value": val},
		}
	}
}
