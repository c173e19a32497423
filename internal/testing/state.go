// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/stest/errors"
	"go.chromium.org/stest/errors/stack"
	"go.chromium.org/stest/internal/status"
	"go.chromium.org/stest/internal/supervisor"
)

// Artifact file name prefixes. The n-th command run by a test writes
// stdout_n, stderr_n and run_n in the test's directory.
const (
	StdoutPrefix     = "stdout_"
	StderrPrefix     = "stderr_"
	CommandLogPrefix = "run_"
)

// CommandRunner runs external commands on behalf of a test.
// *supervisor.Supervisor implements it.
type CommandRunner interface {
	Execute(ctx context.Context, cmd *supervisor.Command, paths supervisor.Paths, timeout time.Duration) (*supervisor.Result, error)
}

// StateConfig contains the details of how a test body is run.
type StateConfig struct {
	// Test is the test being run.
	Test *TestCase
	// Dir is the working directory of the test, where artifacts are written.
	Dir string
	// Vars are the named options of the run, forwarded to the test body.
	Vars map[string]string
	// Env holds environment variables set for every command the test runs.
	Env map[string]string
	// Runner runs the commands of the test.
	Runner CommandRunner
	// CommandTimeout is the default timeout of each command.
	CommandTimeout time.Duration
	// Log receives messages logged by the test. It may be nil.
	Log func(msg string)
}

// Failure is an error reported by a test body or by a failed command.
type Failure struct {
	// Class is the classification of the failure; never status.OK.
	Class status.Classification
	// Reason is the error message.
	Reason string
	// Stack is the backtrace of the location that reported the failure.
	Stack string
}

// State holds state relevant to the execution of a single test.
//
// Fatal, Fatalf and failed command checks call runtime.Goexit, so State
// methods that may abort the test must be called from the goroutine running
// the test body.
type State struct {
	cfg StateConfig

	mu          sync.Mutex
	seq         int // number of commands issued so far
	failures    []*Failure
	interrupted bool
}

// NewState returns a new State for cfg.
func NewState(cfg *StateConfig) *State {
	return &State{cfg: *cfg}
}

// TestID returns the ID of the running test.
func (s *State) TestID() int { return s.cfg.Test.ID }

// TestName returns the name of the running test.
func (s *State) TestName() string { return s.cfg.Test.Name }

// Dir returns the working directory of the test.
func (s *State) Dir() string { return s.cfg.Dir }

// Var returns the value of the named option of the run.
func (s *State) Var(name string) (val string, ok bool) {
	val, ok = s.cfg.Vars[name]
	return val, ok
}

// RequiredVar is similar to Var but aborts the test if the option is not set.
func (s *State) RequiredVar(name string) string {
	val, ok := s.cfg.Vars[name]
	if !ok {
		s.fail(status.AssertionFailed, 1, fmt.Sprintf("Required variable %q is not set", name), nil)
		runtime.Goexit()
	}
	return val
}

// Log formats its arguments using default formatting and logs them.
func (s *State) Log(args ...interface{}) {
	s.log(fmt.Sprint(args...))
}

// Logf is similar to Log but formats its arguments using fmt.Sprintf.
func (s *State) Logf(format string, args ...interface{}) {
	s.log(fmt.Sprintf(format, args...))
}

func (s *State) log(msg string) {
	if s.cfg.Log != nil {
		s.cfg.Log(msg)
	}
}

// Error formats its arguments using default formatting and marks the test
// as having failed, continuing execution.
//
// If the last argument is an error created by this module's errors
// package, its backtrace is included in the failure.
func (s *State) Error(args ...interface{}) {
	s.fail(status.AssertionFailed, 1, fmt.Sprint(args...), lastError(args))
}

// Errorf is similar to Error but formats its arguments using fmt.Sprintf.
func (s *State) Errorf(format string, args ...interface{}) {
	s.fail(status.AssertionFailed, 1, fmt.Sprintf(format, args...), lastError(args))
}

// Fatal is similar to Error but stops the test immediately.
func (s *State) Fatal(args ...interface{}) {
	s.fail(status.AssertionFailed, 1, fmt.Sprint(args...), lastError(args))
	runtime.Goexit()
}

// Fatalf is similar to Fatal but formats its arguments using fmt.Sprintf.
func (s *State) Fatalf(format string, args ...interface{}) {
	s.fail(status.AssertionFailed, 1, fmt.Sprintf(format, args...), lastError(args))
	runtime.Goexit()
}

// HasError reports whether the test has already reported errors.
func (s *State) HasError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failures) > 0
}

// RecordFailure records a failure that happened outside of the test body,
// e.g. a panic or an exceeded test timeout.
func (s *State) RecordFailure(class status.Classification, reason, stk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &Failure{Class: class, Reason: reason, Stack: stk})
}

// Failures returns the failures reported so far.
func (s *State) Failures() []*Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Failure(nil), s.failures...)
}

// Outcome classifies the test from the failures reported so far. Any
// status.Error failure makes the test an error; otherwise any failure,
// including a timeout, makes it failed.
func (s *State) Outcome() status.Classification {
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome := status.OK
	for _, f := range s.failures {
		if f.Class == status.Error {
			return status.Error
		}
		outcome = status.AssertionFailed
	}
	return outcome
}

// Interrupted reports whether a command of the test was interrupted by the
// cancellation of its context. Running out of the test's time is not an
// interruption.
func (s *State) Interrupted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupted
}

func (s *State) fail(class status.Classification, skip int, reason string, err error) {
	stk := stack.New(skip + 1).String()
	if bt := errors.Backtrace(err); bt != "" {
		stk += "\ncaused by:\n" + bt
	}
	s.RecordFailure(class, reason, stk)
}

func lastError(args []interface{}) error {
	if len(args) == 0 {
		return nil
	}
	err, _ := args[len(args)-1].(error)
	return err
}

// ArtifactPaths returns the artifact paths of the n-th command of the test.
func (s *State) ArtifactPaths(n int) supervisor.Paths {
	suffix := strconv.Itoa(n)
	return supervisor.Paths{
		Stdout:     filepath.Join(s.cfg.Dir, StdoutPrefix+suffix),
		Stderr:     filepath.Join(s.cfg.Dir, StderrPrefix+suffix),
		CommandLog: filepath.Join(s.cfg.Dir, CommandLogPrefix+suffix),
	}
}

// RunOption customizes a command run by State.Run.
type RunOption func(o *runOptions)

type runOptions struct {
	env      map[string]string
	expected int
	timeout  time.Duration
	dir      string
}

// WithEnv sets additional environment variables for the command.
func WithEnv(env map[string]string) RunOption {
	return func(o *runOptions) {
		for k, v := range env {
			o.env[k] = v
		}
	}
}

// WithExpectedStatus sets the exit status the command is expected to
// exit with. The default is 0.
func WithExpectedStatus(code int) RunOption {
	return func(o *runOptions) { o.expected = code }
}

// WithTimeout overrides the timeout of the command.
func WithTimeout(d time.Duration) RunOption {
	return func(o *runOptions) { o.timeout = d }
}

// WithDir sets the working directory of the command. Relative paths are
// resolved against the test's directory.
func WithDir(dir string) RunOption {
	return func(o *runOptions) {
		if filepath.IsAbs(dir) {
			o.dir = dir
		} else {
			o.dir = filepath.Join(o.dir, dir)
		}
	}
}

// Run runs an external command and waits for it to finish.
//
// Its output and command line are saved as numbered artifacts in the test's
// directory. If the command exits with an unexpected status, times out,
// is killed by a signal or cannot be started, the failure is recorded and
// the test is stopped immediately.
func (s *State) Run(ctx context.Context, args []string, opts ...RunOption) *supervisor.Result {
	return s.run(ctx, args, opts)
}

// Sh is similar to Run but runs line with /bin/sh -c.
// A command not found by the shell exits with status 127, which is a
// failed check rather than a launch failure.
func (s *State) Sh(ctx context.Context, line string, opts ...RunOption) *supervisor.Result {
	return s.run(ctx, []string{"/bin/sh", "-c", line}, opts)
}

func (s *State) run(ctx context.Context, args []string, opts []RunOption) *supervisor.Result {
	if len(args) == 0 {
		s.fail(status.Error, 2, "Run called with an empty command", nil)
		runtime.Goexit()
	}

	o := runOptions{
		env:     make(map[string]string),
		timeout: s.cfg.CommandTimeout,
		dir:     s.cfg.Dir,
	}
	for k, v := range s.cfg.Env {
		o.env[k] = v
	}
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	s.seq++
	n := s.seq
	s.mu.Unlock()

	paths := s.ArtifactPaths(n)
	cmd := &supervisor.Command{Args: args, Env: o.env, Dir: o.dir}
	res, err := s.cfg.Runner.Execute(ctx, cmd, paths, o.timeout)
	if err != nil {
		class := status.Error
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			// The test body ran out of time while the command was running.
			class = status.Timeout
		case ctx.Err() != nil:
			s.mu.Lock()
			s.interrupted = true
			s.mu.Unlock()
		}
		s.fail(class, 2, fmt.Sprintf("Command %d: %v", n, err), err)
		runtime.Goexit()
	}

	switch c := res.Check(o.expected); c {
	case status.OK:
		return res
	case status.AssertionFailed:
		s.fail(c, 2, fmt.Sprintf("Command %d: %s; want exit status %d", n, res.Message, o.expected), nil)
	default:
		s.fail(c, 2, fmt.Sprintf("Command %d: %s", n, res.Message), nil)
	}
	runtime.Goexit()
	return nil
}

// Output returns the standard output of the n-th command of the test.
func (s *State) Output(n int) string {
	return s.readArtifact(s.ArtifactPaths(n).Stdout)
}

// CheckOutput compares the standard output of the n-th command with want
// and stops the test if they differ.
func (s *State) CheckOutput(n int, want string) {
	s.checkArtifact(s.ArtifactPaths(n).Stdout, want)
}

// CheckStderr compares the standard error of the n-th command with want and
// stops the test if they differ.
func (s *State) CheckStderr(n int, want string) {
	s.checkArtifact(s.ArtifactPaths(n).Stderr, want)
}

func (s *State) readArtifact(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		s.fail(status.Error, 3, fmt.Sprintf("Failed to read %s: %v", filepath.Base(path), err), nil)
		runtime.Goexit()
	}
	return string(b)
}

func (s *State) checkArtifact(path, want string) {
	got := s.readArtifact(path)
	if diff := cmp.Diff(got, want); diff != "" {
		s.fail(status.AssertionFailed, 2, fmt.Sprintf("%s mismatch (-got +want):\n%s", filepath.Base(path), diff), nil)
		runtime.Goexit()
	}
}
