package errors

import (
	"errors"
	"fmt"
)

// Basic error check functions from standard library
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// appError implements the Error interface
type appError struct {
	code    ErrorCode
	message string
	err     error
	data    any
}

func (e *appError) Error() string {
	msg := e.message
	if msg == "" {
		msg = GetErrorMessage(e.code)
	}

	if e.data != nil {
		return fmt.Sprintf("%s: %v", msg, e.data)
	}

	if e.err != nil {
		return fmt.Sprintf("%s: %v", msg, e.err)
	}

	return msg
}

func (e *appError) Code() ErrorCode {
	return e.code
}

func (e *appError) Kind() Kind {
	return KindOf(e.code)
}

func (e *appError) WithMessage(msg string) Error {
	return &appError{
		code:    e.code,
		message: msg,
		err:     e.err,
		data:    e.data,
	}
}

func (e *appError) WithData(data any) Error {
	return &appError{
		code:    e.code,
		message: e.message,
		err:     e.err,
		data:    data,
	}
}

func (e *appError) GetData() any {
	return e.data
}

func (e *appError) Unwrap() error {
	return e.err
}

type defaultFactory struct{}

func (*defaultFactory) New(code ErrorCode) Error {
	return &appError{
		code: code,
	}
}

func (*defaultFactory) Wrap(code ErrorCode, err error) Error {
	return &appError{
		code: code,
		err:  err,
	}
}

func (*defaultFactory) WithMessage(code ErrorCode, msg string) Error {
	return &appError{
		code:    code,
		message: msg,
	}
}

func (*defaultFactory) WithData(code ErrorCode, data any) Error {
	return &appError{
		code: code,
		data: data,
	}
}

// New creates a Factory instance for error creation
func New() Factory {
	return &defaultFactory{}
}

// KindOfErr returns the kind of the outermost coded error in err's chain.
// Uncoded errors are KindInternal.
func KindOfErr(err error) Kind {
	var appErr Error
	for err != nil {
		if !errors.As(err, &appErr) {
			return KindInternal
		}
		if k := appErr.Kind(); k != KindInternal {
			return k
		}
		err = appErr.Unwrap()
	}

	return KindInternal
}

// CodeOf returns the code of the outermost coded error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var appErr Error
	if errors.As(err, &appErr) {
		return appErr.Code(), true
	}

	return "", false
}

// IsValidation reports whether err is bad input caught before any I/O.
func IsValidation(err error) bool {
	return hasKind(err, KindValidation)
}

// IsTransport reports whether err is a network failure or timeout.
func IsTransport(err error) bool {
	return hasKind(err, KindTransport)
}

// IsProtocol reports whether err is a malformed or unexpected response.
func IsProtocol(err error) bool {
	return hasKind(err, KindProtocol)
}

// hasKind also looks inside joined errors, so a partially failed save
// reports every kind it contains.
func hasKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if hasKind(e, kind) {
				return true
			}
		}

		return false
	}

	if appErr, ok := err.(Error); ok {
		if appErr.Kind() == kind {
			return true
		}

		return hasKind(appErr.Unwrap(), kind)
	}

	return hasKind(errors.Unwrap(err), kind)
}
