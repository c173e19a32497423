// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package status defines outcome classifications shared by the command
// supervisor, the test executor and the reporter.
package status

// Classification is the outcome category of a test run or a supervised
// command.
type Classification int

const (
	// OK means the run completed without signaling failure.
	OK Classification = iota
	// AssertionFailed means a check failed, e.g. a command exited with an
	// unexpected status or the test body reported an error.
	AssertionFailed
	// Error means an unexpected fault, e.g. a panic in the test body, a
	// command that could not be started or that was killed by a signal.
	Error
	// Timeout means a command or a test body did not finish in time.
	// Tests fold it into AssertionFailed when counting outcomes.
	Timeout
)

func (c Classification) String() string {
	switch c {
	case OK:
		return "ok"
	case AssertionFailed:
		return "failed"
	case Error:
		return "error"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Failed reports whether c is counted as a test failure. Timeouts count as
// failures, not errors.
func (c Classification) Failed() bool {
	return c == AssertionFailed || c == Timeout
}
