package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable, client-facing error class. Values are part of the wire
// protocol (sent back to clients inside error events) and must not change.
type Code string

const (
	CodeAuth       Code = "AUTH_FAILED"
	CodeValidation Code = "VALIDATION_ERROR"
	CodeNotFound   Code = "NOT_FOUND"
	CodeConflict   Code = "CONFLICT"
	CodeState      Code = "PEER_UNAVAILABLE"
	CodeInternal   Code = "INTERNAL_ERROR"
)

// Error is the only error shape that crosses the event-handler boundary.
//
// Handling rules:
// - CodeAuth terminates the connection.
// - Everything else is converted to a {code, message} error event; the
//   connection stays open.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

func Auth(msg string) *Error       { return New(CodeAuth, msg) }
func Validation(msg string) *Error { return New(CodeValidation, msg) }
func NotFound(msg string) *Error   { return New(CodeNotFound, msg) }
func Conflict(msg string) *Error   { return New(CodeConflict, msg) }
func State(msg string) *Error      { return New(CodeState, msg) }

// From converts any error into an *Error. Unexpected errors map to the
// generic internal code so a response is always produced; the original
// message is not leaked to the client.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
