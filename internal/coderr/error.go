package coderr

import (
	"fmt"

	"github.com/pkg/errors"
)

// CodeError is an error with an extra method Code().
type CodeError interface {
	error
	Code() Code
	// WithCausef derives a new error carrying the same code and
	// description plus formatted cause details. The receiver is not
	// modified, so package-level error values stay shareable.
	WithCausef(format string, args ...any) CodeError
}

// NewCodeError builds a shareable error template for a failure kind.
// Packages declare these as vars and attach details at the call site
// with WithCausef.
func NewCodeError(code Code, desc string) CodeError {
	return &codeError{code: code, desc: desc}
}

// EqualsByCode checks whether the cause of err carries expectCode.
// Returns false if the cause of err is not a CodeError.
func EqualsByCode(err error, expectCode Code) bool {
	cerr, ok := errors.Cause(err).(CodeError)
	if !ok {
		return false
	}
	return expectCode == cerr.Code()
}

// GetCauseCode extracts the code from the cause of err. Returns false
// if the cause of err is not a CodeError.
func GetCauseCode(err error) (Code, bool) {
	if err == nil {
		return Ok, false
	}
	cerr, ok := errors.Cause(err).(CodeError)
	if !ok {
		return Ok, false
	}
	return cerr.Code(), true
}

var _ CodeError = &codeError{}

type codeError struct {
	code  Code
	desc  string
	cause string
}

func (e *codeError) Error() string {
	if e.cause == "" {
		return fmt.Sprintf("code:%d, msg:%s", e.code, e.desc)
	}
	return fmt.Sprintf("code:%d, msg:%s, cause:%s", e.code, e.desc, e.cause)
}

func (e *codeError) Code() Code {
	return e.code
}

func (e *codeError) WithCausef(format string, args ...any) CodeError {
	return &codeError{
		code:  e.code,
		desc:  e.desc,
		cause: fmt.Sprintf(format, args...),
	}
}
