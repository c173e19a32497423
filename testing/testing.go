// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package testing provides the API used by test bodies.
//
// Tests are registered from init functions:
//
//	func init() {
//		testing.AddTest(&testing.Test{
//			Func:     Version,
//			Desc:     "Checks the version banner",
//			Keywords: "cli--flags smoke",
//		})
//	}
//
//	func Version(ctx context.Context, s *testing.State) {
//		s.Run(ctx, []string{"prog", "--version"})
//		s.CheckOutput(1, "prog 1.0\n")
//	}
package testing

import (
	"time"

	"go.chromium.org/stest/internal/testing"
)

type (
	// Test describes a test to be registered.
	Test = testing.Test
	// TestFunc is the body of a test.
	TestFunc = testing.TestFunc
	// State holds state relevant to the execution of a single test.
	State = testing.State
	// RunOption customizes a command run by State.Run.
	RunOption = testing.RunOption
)

// AddTest registers a test. It should be called from init functions.
func AddTest(t *Test) {
	testing.AddTest(t)
}

// WithEnv sets additional environment variables for a command.
func WithEnv(env map[string]string) RunOption { return testing.WithEnv(env) }

// WithExpectedStatus sets the exit status a command is expected to exit with.
func WithExpectedStatus(code int) RunOption { return testing.WithExpectedStatus(code) }

// WithTimeout overrides the timeout of a command.
func WithTimeout(d time.Duration) RunOption { return testing.WithTimeout(d) }

// WithDir sets the working directory of a command.
func WithDir(dir string) RunOption { return testing.WithDir(dir) }
