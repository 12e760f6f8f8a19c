// Package errors provides coded domain errors shared by every service.
//
// Services attach a Code to each failure so that transports (HTTP
// handlers, the in-process runtime) can map outcomes without string
// matching, and so callers can branch on failure class with HasCode
// while the wrapped cause stays available through errors.Unwrap.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies a domain failure. Codes are stable wire identifiers:
// transports serialize them verbatim, so values never change once used.
type Code string

const (
	// CodeBadRequest marks input that could not be parsed or that names
	// an option the operation does not offer.
	CodeBadRequest Code = "bad_request"
	// CodeValidation marks well-formed input that fails a domain rule.
	CodeValidation Code = "validation_failed"
	// CodeUnauthorized marks a failed proof of identity, such as a wrong
	// password or an unproven registration.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks a caller who is authenticated but lacks the
	// authority the operation requires.
	CodeForbidden Code = "forbidden"
	// CodeNotFound marks a referenced entity that does not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict marks an operation that is legal in some state of the
	// target but not in its current one.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation marks internal corruption: stores that must
	// agree were observed disagreeing. Never returned for caller mistakes.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal marks an infrastructure failure the caller cannot fix.
	CodeInternal Code = "internal_error"
)

// Error is a domain error with a classification code. Construct values
// with New or Wrap; the zero value is not meaningful.
type Error struct {
	code Code
	msg  string
	err  error
}

// New returns a domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{code: code, msg: msg}
}

// Newf is New with fmt.Sprintf formatting of the message.
func Newf(code Code, format string, args ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a domain error with the given code and message that
// wraps err. If err is nil, Wrap returns nil so call sites can wrap
// unconditionally.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: msg, err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the classification code.
func (e *Error) Code() Code {
	return e.code
}

// Message returns the message without the wrapped cause appended.
func (e *Error) Message() string {
	return e.msg
}

// HasCode reports whether any error in err's chain is a domain error
// with the given code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if stderrors.As(err, &de) {
			if de.code == code {
				return true
			}
			err = de.err
			continue
		}
		return false
	}
	return false
}

// Is is an alias for HasCode, reading naturally at call sites that
// test a single code.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// GetCode returns the outermost domain code in err's chain, or the
// empty Code when err carries none.
func GetCode(err error) Code {
	var de *Error
	if stderrors.As(err, &de) {
		return de.code
	}
	return ""
}
