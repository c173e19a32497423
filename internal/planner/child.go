// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"

	"go.chromium.org/stest/errors"
	"go.chromium.org/stest/errors/stack"
	"go.chromium.org/stest/internal/logging"
	"go.chromium.org/stest/internal/status"
	"go.chromium.org/stest/internal/supervisor"
	"go.chromium.org/stest/internal/testing"
)

// ChildParamsEnv is the name of the environment variable that carries
// JSON-encoded ChildParams to a re-executed test binary.
const ChildParamsEnv = "STEST_CHILD_PARAMS"

// ErrorFile is the name of the file written in a test's directory when the
// test does not pass.
const ErrorFile = "stest_error"

// Exit codes of a child process running a test body.
const (
	childExitOK          = 0
	childExitFailed      = 1
	childExitError       = 2
	childExitInterrupted = 3
)

// ChildParams describes the test a child process runs.
type ChildParams struct {
	TestID   int    `json:"testId"`
	TestName string `json:"testName"`
	// Dir is the working directory of the test.
	Dir            string            `json:"dir"`
	Vars           map[string]string `json:"vars,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	DebugPrefix    string            `json:"debugPrefix"`
	CommandTimeout time.Duration     `json:"commandTimeout"`
	TestTimeout    time.Duration     `json:"testTimeout"`
	PollInterval   time.Duration     `json:"pollInterval"`
	GracePeriod    time.Duration     `json:"gracePeriod"`
	Verbose        bool              `json:"verbose,omitempty"`
}

// ChildParamsFromEnv returns the ChildParams passed to the current process.
// ok is false if the current process is not a child process.
func ChildParamsFromEnv() (params *ChildParams, ok bool, err error) {
	val, ok := os.LookupEnv(ChildParamsEnv)
	if !ok {
		return nil, false, nil
	}
	var p ChildParams
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return nil, true, errors.Wrapf(err, "failed to parse %s", ChildParamsEnv)
	}
	return &p, true, nil
}

// RunChild runs the test body described by params in the current process
// and returns the exit code the process should exit with. Logs are written
// to stderr.
//
// The body runs on a separate goroutine bounded by the test timeout. If the
// test does not pass, a report is written to ErrorFile in the test's
// directory.
func RunChild(ctx context.Context, reg *testing.Registry, params *ChildParams, stderr io.Writer) int {
	level := logging.LevelInfo
	if params.Verbose {
		level = logging.LevelDebug
	}
	ctx = logging.AttachLogger(ctx, logging.NewSinkLogger(level, false, stderr))
	ctx = logging.SetLogPrefix(ctx, fmt.Sprintf("[test%d] ", params.TestID))

	tc, ok := reg.Test(params.TestID)
	if !ok || tc.Name != params.TestName {
		// Registration differs from the driver's, e.g. because it depends on
		// the environment.
		logging.Infof(ctx, "Test %d %q not found in the registry", params.TestID, params.TestName)
		return childExitError
	}

	clk := clock.NewClock()
	sup := supervisor.New(
		supervisor.WithClock(clk),
		supervisor.WithPollInterval(params.PollInterval),
		supervisor.WithDebugPrefix(params.DebugPrefix))
	s := testing.NewState(&testing.StateConfig{
		Test:           tc,
		Dir:            params.Dir,
		Vars:           params.Vars,
		Env:            params.Env,
		Runner:         sup,
		CommandTimeout: params.CommandTimeout,
		Log:            func(msg string) { logging.Info(ctx, msg) },
	})

	timeout := tc.Timeout
	if timeout == 0 {
		timeout = params.TestTimeout
	}

	ph := func(val interface{}) {
		s.RecordFailure(status.Error, fmt.Sprint("Panic: ", val), stack.NewDepth(2, 32).String())
	}
	logging.Debugf(ctx, "Running %s with timeout %v", tc.Name, timeout)
	if err := safeCall(ctx, clk, tc.Name, timeout, params.GracePeriod, ph, func(ctx context.Context) {
		tc.Func(ctx, s)
	}); err != nil {
		if ctx.Err() != nil {
			s.RecordFailure(status.Error, "Interrupted", "")
		} else {
			s.RecordFailure(status.Timeout, fmt.Sprintf("Test did not finish within %v", timeout), "")
		}
	}

	outcome := s.Outcome()
	logging.Debugf(ctx, "Finished %s: %v", tc.Name, outcome)
	if outcome != status.OK {
		if err := writeErrorFile(params.Dir, tc, outcome, s.Failures()); err != nil {
			logging.Info(ctx, "Failed to write error report: ", err)
		}
	}

	switch {
	case s.Interrupted() || ctx.Err() != nil:
		return childExitInterrupted
	case outcome == status.OK:
		return childExitOK
	case outcome == status.Error:
		return childExitError
	default:
		return childExitFailed
	}
}

// writeErrorFile writes the report of a test that did not pass.
func writeErrorFile(dir string, tc *testing.TestCase, outcome status.Classification, failures []*testing.Failure) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Test %d '%s': %v:\n", tc.ID, tc.Name, outcome)
	for i, f := range failures {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(f.Reason)
		sb.WriteString("\n")
		if f.Stack != "" {
			sb.WriteString(f.Stack)
			sb.WriteString("\n")
		}
	}
	return os.WriteFile(filepath.Join(dir, ErrorFile), []byte(sb.String()), 0644)
}
