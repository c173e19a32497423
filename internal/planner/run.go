// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package planner runs selected tests one at a time, each in a child
// process of its own.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"code.cloudfoundry.org/clock"

	"go.chromium.org/stest/errors"
	"go.chromium.org/stest/internal/logging"
	"go.chromium.org/stest/internal/procexec"
	"go.chromium.org/stest/internal/status"
	"go.chromium.org/stest/internal/testing"
)

// Config contains details about how to run tests.
type Config struct {
	// OutDir is the directory under which test directories are created.
	OutDir string
	// Vars are the named options of the run, forwarded to test bodies.
	Vars map[string]string
	// Env holds environment variables set for every command run by tests.
	Env map[string]string
	// DebugPrefix is written in front of commands in command logs.
	DebugPrefix string
	// CommandTimeout is the default timeout of commands run by tests.
	CommandTimeout time.Duration
	// TestTimeout is the default timeout of test bodies.
	TestTimeout time.Duration
	// PollInterval is the interval at which commands are checked against
	// their timeouts.
	PollInterval time.Duration
	// GracePeriod is the time given to a test body or a child process to
	// clean up after being timed out or interrupted before it is killed.
	GracePeriod time.Duration
	// Verbose enables debug logs in child processes.
	Verbose bool

	// Executable is the test binary to re-execute. If empty, the current
	// executable is used.
	Executable string
	// ChildOutput receives the stdout and stderr of child processes. If nil,
	// os.Stderr is used.
	ChildOutput io.Writer
	// Clock is used for the watchdog of child processes. If nil, the real
	// clock is used.
	Clock clock.Clock
}

// Reporter is notified of test outcomes in the order tests are run.
type Reporter interface {
	// Skipped is called for a selected test that did not run.
	Skipped(t *testing.TestCase, reason string)
	// Finished is called after a test ran. dir is the test's directory.
	Finished(t *testing.TestCase, outcome status.Classification, dir string)
}

// TestDir returns the directory of the test with the given ID under outDir.
func TestDir(outDir string, id int) string {
	return filepath.Join(outDir, fmt.Sprintf("test%d", id))
}

// RunTests runs tests in order. Tests whose precondition does not hold for
// the run's features are skipped.
//
// A failing test never stops the run. An error is returned only if the run
// could not continue: a test directory could not be prepared, a child
// process could not be started, or ctx was canceled, in which case the
// running child is terminated and the error wraps ctx.Err().
func RunTests(ctx context.Context, tests []*testing.TestCase, cfg *Config, rep Reporter) error {
	if cfg.TestTimeout <= 0 || cfg.CommandTimeout <= 0 {
		return errors.Errorf("invalid timeouts: test %v, command %v", cfg.TestTimeout, cfg.CommandTimeout)
	}
	exe := cfg.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return errors.Wrap(err, "failed to locate test executable")
		}
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	out := cfg.ChildOutput
	if out == nil {
		out = os.Stderr
	}

	features := testing.Features(cfg.Vars)
	for _, tc := range tests {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "run interrupted")
		}
		if !tc.PreconditionHolds(features) {
			rep.Skipped(tc, fmt.Sprintf("precondition %q not met", tc.Precondition))
			continue
		}
		if err := tc.MarkRun(); err != nil {
			return err
		}

		dir := TestDir(cfg.OutDir, tc.ID)
		if err := os.RemoveAll(dir); err != nil {
			return errors.Wrapf(err, "failed to remove stale %s", dir)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}

		outcome, err := runTest(ctx, clk, exe, out, tc, dir, cfg)
		if err != nil {
			return err
		}
		rep.Finished(tc, outcome, dir)
	}
	return nil
}

// runTest runs tc in a child process and classifies its outcome from the
// child's exit status.
func runTest(ctx context.Context, clk clock.Clock, exe string, out io.Writer, tc *testing.TestCase, dir string, cfg *Config) (status.Classification, error) {
	timeout := tc.Timeout
	if timeout == 0 {
		timeout = cfg.TestTimeout
	}
	params, err := json.Marshal(&ChildParams{
		TestID:         tc.ID,
		TestName:       tc.Name,
		Dir:            dir,
		Vars:           cfg.Vars,
		Env:            cfg.Env,
		DebugPrefix:    cfg.DebugPrefix,
		CommandTimeout: cfg.CommandTimeout,
		TestTimeout:    timeout,
		PollInterval:   cfg.PollInterval,
		GracePeriod:    cfg.GracePeriod,
		Verbose:        cfg.Verbose,
	})
	if err != nil {
		return status.Error, errors.Wrap(err, "failed to encode child parameters")
	}

	logging.Debugf(ctx, "Starting test %d (%s) in %s", tc.ID, tc.Name, dir)
	proc, err := procexec.Start(&procexec.Spec{
		Args:   []string{exe},
		Env:    map[string]string{ChildParamsEnv: string(params)},
		Dir:    dir,
		Stdout: out,
		Stderr: out,
	})
	if err != nil {
		return status.Error, errors.Wrapf(err, "failed to start test %d", tc.ID)
	}

	// The child enforces the test timeout itself. The watchdog only catches
	// a child that hangs regardless, e.g. in a non-returning body.
	watchdog := clk.NewTimer(timeout + 2*cfg.GracePeriod)
	defer watchdog.Stop()

	select {
	case <-proc.Done():
		st := proc.Wait()
		outcome, interrupted := classifyExit(st)
		if interrupted && ctx.Err() != nil {
			return outcome, errors.Wrapf(ctx.Err(), "test %d interrupted", tc.ID)
		}
		if outcome != status.OK {
			ensureErrorFile(dir, tc, outcome, fmt.Sprintf("Test process ended with %v", st))
		}
		return outcome, nil
	case <-watchdog.C():
		st := proc.Terminate(clk, cfg.GracePeriod)
		msg := fmt.Sprintf("Test process did not exit within %v and was terminated (%v)", timeout+2*cfg.GracePeriod, st)
		logging.Info(ctx, msg)
		ensureErrorFile(dir, tc, status.AssertionFailed, msg)
		return status.AssertionFailed, nil
	case <-ctx.Done():
		logging.Infof(ctx, "Interrupted; terminating test %d", tc.ID)
		proc.Terminate(clk, cfg.GracePeriod)
		return status.Error, errors.Wrapf(ctx.Err(), "test %d interrupted", tc.ID)
	}
}

// classifyExit maps the exit status of a child process to the outcome of
// its test. Signals and unknown exit codes are errors.
func classifyExit(st *procexec.ExitStatus) (outcome status.Classification, interrupted bool) {
	if st.Signaled || st.Err != nil {
		return status.Error, false
	}
	switch st.Code {
	case childExitOK:
		return status.OK, false
	case childExitFailed:
		return status.AssertionFailed, false
	case childExitInterrupted:
		return status.Error, true
	default:
		return status.Error, false
	}
}

// ensureErrorFile writes a minimal error report for a test unless its child
// process already wrote one.
func ensureErrorFile(dir string, tc *testing.TestCase, outcome status.Classification, msg string) {
	if _, err := os.Stat(filepath.Join(dir, ErrorFile)); err == nil {
		return
	}
	writeErrorFile(dir, tc, outcome, []*testing.Failure{{Class: outcome, Reason: msg}})
}
