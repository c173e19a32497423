// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package supervisor runs external commands on behalf of test bodies, one at
// a time, with output capture and a wall-clock timeout.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"time"

	"code.cloudfoundry.org/clock"

	"go.chromium.org/stest/errors"
	"go.chromium.org/stest/internal/logging"
	"go.chromium.org/stest/internal/procexec"
	"go.chromium.org/stest/internal/status"
	"go.chromium.org/stest/shutil"
)

const (
	// DefaultPollInterval is the interval at which a running command is
	// checked against its timeout.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultDebugPrefix is the placeholder written in front of commands in
	// command logs. Setting it to e.g. "gdb --args" in a shell before
	// sourcing a command log reruns the command under a debugger.
	DefaultDebugPrefix = "${STEST_DEBUG}"
)

// Command describes an external command to run.
type Command struct {
	// Args holds the command line. Args[0] is looked up in PATH if it does
	// not contain a path separator.
	Args []string
	// Env contains environment variables merged on top of the current
	// environment.
	Env map[string]string
	// Dir is the working directory of the command.
	Dir string
}

// Paths specifies where the artifacts of a command are written.
type Paths struct {
	// Stdout and Stderr receive the output of the command.
	Stdout, Stderr string
	// CommandLog receives the expanded command line, written before the
	// command is started.
	CommandLog string
}

// End describes how a supervised command ended.
type End int

const (
	// Exited means the command exited normally; Result.ExitCode is valid.
	Exited End = iota
	// Signaled means the command was killed by a signal it did not expect.
	Signaled
	// TimedOut means the command was killed after exceeding its timeout.
	TimedOut
	// LaunchFailed means the command could not be started, e.g. because
	// the executable does not exist.
	LaunchFailed
)

// Result is the outcome of a supervised command.
type Result struct {
	// CommandLine is the expanded command line written to the command log.
	CommandLine string
	// End describes how the command ended.
	End End
	// ExitCode is the exit code of the command. It is -1 unless End is Exited.
	ExitCode int
	// Paths are the artifact paths of the command.
	Paths Paths
	// Message is a human-readable description of the outcome that includes
	// the command line.
	Message string
	// Duration is the wall-clock time the command ran for.
	Duration time.Duration
}

// Check classifies the result against the expected exit code. A mismatching
// exit code is status.AssertionFailed; signals and launch failures are
// status.Error.
func (r *Result) Check(expected int) status.Classification {
	switch r.End {
	case Exited:
		if r.ExitCode == expected {
			return status.OK
		}
		return status.AssertionFailed
	case TimedOut:
		return status.Timeout
	default:
		return status.Error
	}
}

// Supervisor runs commands. The zero value is not usable; call New.
type Supervisor struct {
	clock       clock.Clock
	poll        time.Duration
	debugPrefix string
}

// Option customizes a Supervisor.
type Option func(s *Supervisor)

// WithClock makes the Supervisor measure time with clk.
func WithClock(clk clock.Clock) Option {
	return func(s *Supervisor) { s.clock = clk }
}

// WithPollInterval sets the interval at which running commands are polled.
func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.poll = d }
}

// WithDebugPrefix sets the placeholder written in front of commands in
// command logs. An empty prefix omits the placeholder.
func WithDebugPrefix(prefix string) Option {
	return func(s *Supervisor) { s.debugPrefix = prefix }
}

// New returns a new Supervisor.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		clock:       clock.NewClock(),
		poll:        DefaultPollInterval,
		debugPrefix: DefaultDebugPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs cmd to completion or until timeout elapses, whichever comes
// first, and blocks until then. It returns within timeout plus one poll
// interval.
//
// Before the command is started, its expanded command line is written to
// paths.CommandLog so that a hung or crashed run can be diagnosed.
//
// A non-nil error is returned only if the command could not be set up (e.g.
// an artifact file could not be created) or ctx was canceled; in the latter
// case the command is killed and the error wraps ctx.Err(). Failures of the
// command itself, including a missing executable, are reported in Result.
func (s *Supervisor) Execute(ctx context.Context, cmd *Command, paths Paths, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		return nil, errors.Errorf("invalid timeout %v", timeout)
	}
	line, err := shutil.CommandLine(cmd.Env, s.debugPrefix, cmd.Args)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(paths.CommandLog, []byte(line+"\n"), 0644); err != nil {
		return nil, errors.Wrap(err, "failed to write command log")
	}
	stdout, err := os.Create(paths.Stdout)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create stdout file")
	}
	defer stdout.Close()
	stderr, err := os.Create(paths.Stderr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create stderr file")
	}
	defer stderr.Close()

	res := &Result{CommandLine: line, ExitCode: -1, Paths: paths}
	describe := func(format string, args ...interface{}) {
		res.Message = fmt.Sprintf("%s: %s", line, fmt.Sprintf(format, args...))
	}

	logging.Debugf(ctx, "Running %s", line)
	start := s.clock.Now()
	proc, err := procexec.Start(&procexec.Spec{
		Args:   cmd.Args,
		Env:    cmd.Env,
		Dir:    cmd.Dir,
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		res.End = LaunchFailed
		describe("failed to start: %v", err)
		logging.Debug(ctx, res.Message)
		return res, nil
	}

	ticker := s.clock.NewTicker(s.poll)
	defer ticker.Stop()
	deadline := start.Add(timeout)

	for {
		select {
		case <-proc.Done():
			st := proc.Wait()
			res.Duration = s.clock.Since(start)
			if st.Signaled {
				res.End = Signaled
			} else {
				res.End = Exited
				res.ExitCode = st.Code
			}
			describe("%v", st)
			logging.Debugf(ctx, "Finished in %v: %s", res.Duration.Round(time.Millisecond), res.Message)
			return res, nil
		case <-ticker.C():
			if s.clock.Now().Before(deadline) {
				continue
			}
			proc.Kill()
			res.Duration = s.clock.Since(start)
			res.End = TimedOut
			describe("timed out after %v", timeout)
			logging.Debug(ctx, res.Message)
			return res, nil
		case <-ctx.Done():
			proc.Kill()
			return nil, errors.Wrapf(ctx.Err(), "%s: interrupted", line)
		}
	}
}
