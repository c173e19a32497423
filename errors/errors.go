// Copyright 2018 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package errors provides basic utilities to construct errors.
//
// To construct new errors or wrap other errors, use this package rather than
// standard libraries (errors.New, fmt.Errorf) or any other third-party
// libraries. This package records stack traces and chained errors, and the
// recorded traces end up in stest_error files when a test body fails.
//
// To construct a new error, use New or Errorf.
//
//	errors.New("command not found")
//	errors.Errorf("unexpected exit status %d", code)
//
// To construct an error by adding context to an existing error, use Wrap or
// Wrapf.
//
//	errors.Wrap(err, "failed to create working directory")
//	errors.Wrapf(err, "failed to open %s", path)
//
// A stack trace can be printed by formatting an error with the "%+v" verb.
package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"go.chromium.org/stest/errors/stack"
)

// impl is the error implementation used by this package.
type impl struct {
	msg   string      // error message to be prepended to cause
	stk   stack.Stack // stack trace where this error was created
	cause error       // original error that caused this error if non-nil
}

// Error implements the error interface.
func (e *impl) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, e.cause.Error())
}

// Unwrap returns the wrapped error, if any.
func (e *impl) Unwrap() error {
	return e.cause
}

// formatChain formats an error chain.
func formatChain(err error) string {
	var chain []string
	for err != nil {
		e, ok := err.(*impl)
		if !ok {
			chain = append(chain, fmt.Sprintf("%s\n\tat ???", err.Error()))
			break
		}
		chain = append(chain, fmt.Sprintf("%s\n%v", e.msg, e.stk))
		err = e.cause
	}
	return strings.Join(chain, "\n")
}

// Format implements the fmt.Formatter interface.
// In particular, it is supported to format an error chain by "%+v" verb.
func (e *impl) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		io.WriteString(s, formatChain(e))
	} else {
		io.WriteString(s, e.Error())
	}
}

// New creates a new error with the given message.
// This is similar to the standard errors.New, but also records the location
// where it was called.
func New(msg string) error {
	return &impl{msg, stack.New(1), nil}
}

// Errorf creates a new error with the given message.
// This is similar to the standard fmt.Errorf, but also records the location
// where it was called.
func Errorf(format string, args ...interface{}) error {
	return &impl{fmt.Sprintf(format, args...), stack.New(1), nil}
}

// Wrap creates a new error with the given message, wrapping another error.
// This function also records the location where it was called.
// If cause is nil, this is the same as New.
func Wrap(cause error, msg string) error {
	return &impl{msg, stack.New(1), cause}
}

// Wrapf creates a new error with the given message, wrapping another error.
// This function also records the location where it was called.
// If cause is nil, this is the same as Errorf.
func Wrapf(cause error, format string, args ...interface{}) error {
	return &impl{fmt.Sprintf(format, args...), stack.New(1), cause}
}

// Is is a wrapper of the standard errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is a wrapper of the standard errors.As.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Unwrap is a wrapper of the standard errors.Unwrap.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Backtrace returns the stack traces recorded in err's chain, formatted the
// same way as "%+v" but without the leading message. An empty string is
// returned if err carries no trace.
func Backtrace(err error) string {
	if _, ok := err.(*impl); !ok {
		return ""
	}
	s := formatChain(err)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return ""
}
