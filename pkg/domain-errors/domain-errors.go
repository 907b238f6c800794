// Package domainerrors carries the codes for calls stampgate refuses to
// evaluate. A negative verification is a result, never one of these.
package domainerrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeBadRequest       Code = "bad_request"
	CodeValidation       Code = "validation_failed"
	CodeUnauthorized     Code = "unauthorized"
	CodePayloadTooLarge  Code = "payload_too_large"
	CodeUnsupportedMedia Code = "unsupported_media_type"
	CodeInternal         Code = "internal_error"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by code, so errors.Is(err, &Error{Code: CodeValidation}) works
// through any wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and msg to err. A code already present in err's chain wins.
func Wrap(err error, code Code, msg string) error {
	if existing, ok := As(err); ok {
		code = existing.Code
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func HasCode(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}
