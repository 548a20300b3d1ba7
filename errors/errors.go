// Package errors provides basic utilities to construct errors.
//
// To construct new errors or wrap other errors, use this package rather
// than the standard library (errors.New, fmt.Errorf) or any other
// third-party library. This package records stack traces and chained
// errors, leaving nicely formatted diagnostics when a build, install, or
// run step fails.
//
// To construct a new error, use New or Errorf.
//
//	errors.New("process not found")
//	errors.Errorf("process %d not found", pid)
//
// To construct an error by adding context to an existing error, use Wrap
// or Wrapf.
//
//	errors.Wrap(err, "failed to connect to target")
//	errors.Wrapf(err, "failed to push artifact %s", key)
//
// A stack trace can be printed by formatting an error with the "%+v" verb.
package errors

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.crosstest.dev/harness/errors/stack"
)

// E is the error implementation used by this package.
type E struct {
	msg   string      // error message to be prepended to cause
	stk   stack.Stack // stack trace where this error was created
	cause error       // original error that caused this error, if any
}

// Error implements the error interface.
func (e *E) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, e.cause.Error())
}

// Unwrap implements the error Unwrap interface introduced in go1.13.
func (e *E) Unwrap() error {
	return e.cause
}

// unwrapper is a private interface of *E providing access to its fields.
// Access *E via this interface so custom error types may embed *E.
type unwrapper interface {
	unwrap() (msg string, stk stack.Stack, cause error)
}

func (e *E) unwrap() (msg string, stk stack.Stack, cause error) {
	return e.msg, e.stk, e.cause
}

// formatChain formats a full error chain with stack traces.
func formatChain(err error) string {
	var chain []string
	for err != nil {
		if e, ok := err.(unwrapper); ok {
			msg, stk, cause := e.unwrap()
			chain = append(chain, fmt.Sprintf("%s\n%v", msg, stk))
			err = cause
		} else {
			chain = append(chain, fmt.Sprintf("%+v\n\tat ???", err))
			err = nil
		}
	}
	return strings.Join(chain, "\n")
}

// Format implements the fmt.Formatter interface. Formatting with the "%+v"
// verb prints the full error chain with stack traces.
func (e *E) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		io.WriteString(s, formatChain(e))
	} else {
		io.WriteString(s, e.Error())
	}
}

// New creates a new error with the given message.
// This is similar to the standard errors.New, but also records the
// location where it was called.
func New(msg string) *E {
	return &E{msg, stack.New(1), nil}
}

// Errorf creates a new error with the given message.
// This is similar to the standard fmt.Errorf, but also records the
// location where it was called.
func Errorf(format string, args ...interface{}) *E {
	return &E{fmt.Sprintf(format, args...), stack.New(1), nil}
}

// Wrap creates a new error with the given message, wrapping another error.
// This function also records the location where it was called. If cause is
// nil, this is the same as New. The resulting message is msg, then ": ",
// then the cause's message.
func Wrap(cause error, msg string) *E {
	return &E{msg, stack.New(1), cause}
}

// Wrapf creates a new error with the given message, wrapping another error.
// This function also records the location where it was called. If cause is
// nil, this is the same as Errorf.
func Wrapf(cause error, format string, args ...interface{}) *E {
	return &E{fmt.Sprintf(format, args...), stack.New(1), cause}
}

// Unwrap is a wrapper of the built-in errors.Unwrap.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// As is a wrapper of the built-in errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is a wrapper of the built-in errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
