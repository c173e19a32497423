// Copyright 2021 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package logging provides loggers attached to context.Context.
package logging

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Level indicates a logging level. A larger level value means a log is more
// important.
type Level int

const (
	// LevelDebug represents the DEBUG level.
	LevelDebug Level = iota
	// LevelInfo represents the INFO level.
	LevelInfo
)

// Logger defines the interface for loggers that consume logs sent via
// context.Context.
type Logger interface {
	// Log gets called for a log entry.
	Log(level Level, ts time.Time, msg string)
}

// MultiLogger is a Logger that copies logs to multiple underlying loggers.
type MultiLogger struct {
	mu      sync.Mutex
	loggers []Logger
}

// NewMultiLogger creates a new MultiLogger with a specified initial set of
// underlying loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log copies a log to the current underlying loggers.
func (ml *MultiLogger) Log(level Level, ts time.Time, msg string) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	for _, logger := range ml.loggers {
		logger.Log(level, ts, msg)
	}
}

// SinkLogger is a Logger that writes logs at or above a minimum level to an
// io.Writer, one line per log.
//
// All writes to the io.Writer are synchronized.
type SinkLogger struct {
	level     Level
	timestamp bool

	mu sync.Mutex
	w  io.Writer
}

// NewSinkLogger creates a new SinkLogger.
//
// level specifies the minimum level of logs to write. If timestamp is true, a
// timestamp is prepended to each log.
func NewSinkLogger(level Level, timestamp bool, w io.Writer) *SinkLogger {
	return &SinkLogger{level: level, timestamp: timestamp, w: w}
}

// NewConsoleLogger returns a SinkLogger suitable for a terminal: info logs
// only, unless verbose is set, in which case debug logs are included and
// every line is timestamped.
func NewConsoleLogger(w io.Writer, verbose bool) *SinkLogger {
	if verbose {
		return NewSinkLogger(LevelDebug, true, w)
	}
	return NewSinkLogger(LevelInfo, false, w)
}

// Log writes a log to the underlying io.Writer.
func (l *SinkLogger) Log(level Level, ts time.Time, msg string) {
	if level < l.level {
		return
	}
	if l.timestamp {
		msg = ts.UTC().Format("2006-01-02T15:04:05.000000Z ") + msg
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, msg)
}

// FuncLogger is a Logger that calls a function.
//
// All calls to the underlying function are synchronized.
type FuncLogger struct {
	f  func(level Level, ts time.Time, msg string)
	mu sync.Mutex
}

// NewFuncLogger creates a new FuncLogger.
func NewFuncLogger(f func(level Level, ts time.Time, msg string)) *FuncLogger {
	return &FuncLogger{f: f}
}

// Log calls the underlying function.
func (l *FuncLogger) Log(level Level, ts time.Time, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.f(level, ts, msg)
}
