// Copyright 2018 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package stack captures and formats stack traces for error values and
// test-body crash reports.
package stack

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	// DefaultDepth is the number of frames recorded by New.
	DefaultDepth = 8

	ellipsis = "\t..." // trailing marker line added if stack trace is too long
)

// Stack holds a snapshot of program counters.
type Stack struct {
	pcs   []uintptr
	depth int
}

// New captures a stack trace of at most DefaultDepth frames. skip specifies
// the number of frames to skip; skip=0 records the New call site as the
// innermost frame.
func New(skip int) Stack {
	return capture(skip+1, DefaultDepth)
}

// NewDepth is similar to New, but records up to depth frames. It is used
// where a full backtrace matters more than a compact one, e.g. on panics.
func NewDepth(skip, depth int) Stack {
	return capture(skip+1, depth)
}

func capture(skip, depth int) Stack {
	// Record one extra frame so that String can tell a truncated trace.
	pc := make([]uintptr, depth+1)
	pc = pc[:runtime.Callers(skip+2, pc)]
	return Stack{pcs: pc, depth: depth}
}

// Empty reports whether no frame was recorded.
func (s Stack) Empty() bool {
	return len(s.pcs) == 0
}

// String formats a stack trace to a human-friendly text, one "\tat" line per
// frame.
func (s Stack) String() string {
	if s.Empty() {
		return ""
	}
	var lines []string
	// runtime.CallersFrames takes care of inlined frames.
	cf := runtime.CallersFrames(s.pcs)
	for {
		f, more := cf.Next()
		lines = append(lines, fmt.Sprintf("\tat %s (%s:%d)", f.Function, filepath.Base(f.File), f.Line))
		if !more {
			break
		}
		if len(lines) >= s.depth {
			lines = append(lines, ellipsis)
			break
		}
	}
	return strings.Join(lines, "\n")
}
