// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testing

import (
	"context"
	"path/filepath"
	"strings"
	gotesting "testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/stest/errors"
	"go.chromium.org/stest/internal/status"
	"go.chromium.org/stest/internal/supervisor"
	"go.chromium.org/stest/testutil"
)

// fakeRunner is a CommandRunner that records commands instead of running them.
type fakeRunner struct {
	cmds     []*supervisor.Command
	timeouts []time.Duration
	res      *supervisor.Result
	err      error
}

func (r *fakeRunner) Execute(ctx context.Context, cmd *supervisor.Command, paths supervisor.Paths, timeout time.Duration) (*supervisor.Result, error) {
	r.cmds = append(r.cmds, cmd)
	r.timeouts = append(r.timeouts, timeout)
	if r.err != nil {
		return nil, r.err
	}
	if r.res != nil {
		return r.res, nil
	}
	return &supervisor.Result{End: supervisor.Exited, ExitCode: 0, Paths: paths}, nil
}

func newTestState(t *gotesting.T, runner CommandRunner, vars map[string]string) *State {
	t.Helper()
	return NewState(&StateConfig{
		Test:           &TestCase{ID: 7, Name: "pkg.Test"},
		Dir:            testutil.TempDir(t),
		Vars:           vars,
		Runner:         runner,
		CommandTimeout: time.Minute,
	})
}

// runBody runs f on a separate goroutine, as test bodies are run, and
// reports whether f returned normally.
func runBody(s *State, f func(s *State)) (finished bool) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		f(s)
		finished = true
	}()
	<-done
	return finished
}

func TestStateErrorContinues(t *gotesting.T) {
	var logs []string
	s := NewState(&StateConfig{
		Test: &TestCase{ID: 1, Name: "a"},
		Log:  func(msg string) { logs = append(logs, msg) },
	})
	finished := runBody(s, func(s *State) {
		s.Log("before")
		s.Errorf("broken %d", 1)
		s.Log("after")
	})
	if !finished {
		t.Error("Body did not finish after Errorf")
	}
	if diff := cmp.Diff(logs, []string{"before", "after"}); diff != "" {
		t.Errorf("Logs mismatch (-got +want):\n%s", diff)
	}
	if !s.HasError() {
		t.Error("HasError() = false after Errorf")
	}
	if got := s.Outcome(); got != status.AssertionFailed {
		t.Errorf("Outcome() = %v; want %v", got, status.AssertionFailed)
	}
	fs := s.Failures()
	if len(fs) != 1 || fs[0].Reason != "broken 1" {
		t.Fatalf("Failures() = %+v; want one failure", fs)
	}
	if !strings.Contains(fs[0].Stack, "state_test.go") {
		t.Errorf("Failure stack does not point at the caller:\n%s", fs[0].Stack)
	}
}

func TestStateFatalStops(t *gotesting.T) {
	s := newTestState(t, &fakeRunner{}, nil)
	finished := runBody(s, func(s *State) {
		s.Fatal("stop")
		s.Error("unreachable")
	})
	if finished {
		t.Error("Body continued after Fatal")
	}
	if fs := s.Failures(); len(fs) != 1 || fs[0].Reason != "stop" {
		t.Errorf("Failures() = %+v; want only %q", fs, "stop")
	}
}

func TestStateErrorBacktrace(t *gotesting.T) {
	s := newTestState(t, &fakeRunner{}, nil)
	runBody(s, func(s *State) {
		s.Error("Operation failed: ", errors.New("boom"))
	})
	fs := s.Failures()
	if len(fs) != 1 {
		t.Fatalf("Failures() = %+v; want one failure", fs)
	}
	if fs[0].Reason != "Operation failed: boom" {
		t.Errorf("Reason = %q", fs[0].Reason)
	}
	if !strings.Contains(fs[0].Stack, "caused by:") {
		t.Errorf("Stack does not include the error's backtrace:\n%s", fs[0].Stack)
	}
}

func TestStateVars(t *gotesting.T) {
	s := newTestState(t, &fakeRunner{}, map[string]string{"mode": "fast"})
	finished := runBody(s, func(s *State) {
		if v, ok := s.Var("mode"); !ok || v != "fast" {
			s.Errorf("Var(mode) = %q, %v", v, ok)
		}
		if _, ok := s.Var("missing"); ok {
			s.Error("Var(missing) succeeded")
		}
		if v := s.RequiredVar("mode"); v != "fast" {
			s.Errorf("RequiredVar(mode) = %q", v)
		}
		s.RequiredVar("missing")
	})
	if finished {
		t.Error("Body continued after a missing required variable")
	}
	fs := s.Failures()
	if len(fs) != 1 || !strings.Contains(fs[0].Reason, `"missing"`) {
		t.Errorf("Failures() = %+v; want one missing variable failure", fs)
	}
}

func TestStateRunOptions(t *gotesting.T) {
	runner := &fakeRunner{}
	s := newTestState(t, runner, nil)
	s.cfg.Env = map[string]string{"A": "1", "B": "base"}

	runBody(s, func(s *State) {
		s.Run(context.Background(), []string{"prog", "x"})
		s.Run(context.Background(), []string{"prog"},
			WithEnv(map[string]string{"B": "2"}),
			WithDir("sub"),
			WithTimeout(time.Second))
		s.Sh(context.Background(), "echo hi", WithDir("/abs"))
	})
	if s.HasError() {
		t.Fatal("Unexpected failures: ", s.Failures())
	}

	want := []*supervisor.Command{
		{Args: []string{"prog", "x"}, Env: map[string]string{"A": "1", "B": "base"}, Dir: s.Dir()},
		{Args: []string{"prog"}, Env: map[string]string{"A": "1", "B": "2"}, Dir: filepath.Join(s.Dir(), "sub")},
		{Args: []string{"/bin/sh", "-c", "echo hi"}, Env: map[string]string{"A": "1", "B": "base"}, Dir: "/abs"},
	}
	if diff := cmp.Diff(runner.cmds, want); diff != "" {
		t.Errorf("Commands mismatch (-got +want):\n%s", diff)
	}
	if diff := cmp.Diff(runner.timeouts, []time.Duration{time.Minute, time.Second, time.Minute}); diff != "" {
		t.Errorf("Timeouts mismatch (-got +want):\n%s", diff)
	}
}

func TestStateRunArtifacts(t *gotesting.T) {
	s := newTestState(t, supervisor.New(), nil)
	finished := runBody(s, func(s *State) {
		s.Sh(context.Background(), "echo hello")
		s.CheckOutput(1, "hello\n")
		s.Run(context.Background(), []string{"sh", "-c", "echo oops >&2; exit 3"}, WithExpectedStatus(3))
		s.CheckStderr(2, "oops\n")
		if got := s.Output(2); got != "" {
			s.Errorf("Output(2) = %q; want empty", got)
		}
	})
	if !finished || s.HasError() {
		t.Fatalf("Body failed (finished=%v): %+v", finished, s.Failures())
	}

	files, err := testutil.ReadFiles(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"stdout_1": "hello\n",
		"stderr_1": "",
		"run_1":    "${STEST_DEBUG} /bin/sh -c 'echo hello'\n",
		"stdout_2": "",
		"stderr_2": "oops\n",
		"run_2":    "${STEST_DEBUG} sh -c 'echo oops >&2; exit 3'\n",
	}
	if diff := cmp.Diff(files, want); diff != "" {
		t.Errorf("Artifacts mismatch (-got +want):\n%s", diff)
	}
}

func TestStateRunFailures(t *gotesting.T) {
	for _, tc := range []struct {
		desc       string
		body       func(s *State)
		wantClass  status.Classification
		wantReason string
		outcome    status.Classification
	}{
		{
			desc:       "unexpected exit status",
			body:       func(s *State) { s.Sh(context.Background(), "exit 1") },
			wantClass:  status.AssertionFailed,
			wantReason: "want exit status 0",
			outcome:    status.AssertionFailed,
		},
		{
			desc:       "expected failure that succeeds",
			body:       func(s *State) { s.Sh(context.Background(), "true", WithExpectedStatus(1)) },
			wantClass:  status.AssertionFailed,
			wantReason: "exit status 0; want exit status 1",
			outcome:    status.AssertionFailed,
		},
		{
			desc:       "output mismatch",
			body:       func(s *State) { s.Sh(context.Background(), "echo a"); s.CheckOutput(1, "b\n") },
			wantClass:  status.AssertionFailed,
			wantReason: "stdout_1 mismatch",
			outcome:    status.AssertionFailed,
		},
		{
			desc:       "missing output",
			body:       func(s *State) { s.CheckOutput(5, "") },
			wantClass:  status.Error,
			wantReason: "stdout_5",
			outcome:    status.Error,
		},
		{
			desc:       "timeout",
			body:       func(s *State) { s.Run(context.Background(), []string{"sleep", "30"}, WithTimeout(200*time.Millisecond)) },
			wantClass:  status.Timeout,
			wantReason: "sleep 30: timed out",
			outcome:    status.AssertionFailed,
		},
		{
			desc:       "missing executable",
			body:       func(s *State) { s.Run(context.Background(), []string{"/nonexistent/prog"}) },
			wantClass:  status.Error,
			wantReason: "failed to start",
			outcome:    status.Error,
		},
		{
			desc:       "signal",
			body:       func(s *State) { s.Sh(context.Background(), "kill -KILL $$") },
			wantClass:  status.Error,
			wantReason: "killed by signal",
			outcome:    status.Error,
		},
	} {
		s := newTestState(t, supervisor.New(), nil)
		if runBody(s, tc.body) {
			t.Errorf("%s: body continued after a failed check", tc.desc)
		}
		fs := s.Failures()
		if len(fs) != 1 {
			t.Errorf("%s: got failures %+v; want one", tc.desc, fs)
			continue
		}
		if fs[0].Class != tc.wantClass || !strings.Contains(fs[0].Reason, tc.wantReason) {
			t.Errorf("%s: got %v failure %q; want %v failure containing %q", tc.desc, fs[0].Class, fs[0].Reason, tc.wantClass, tc.wantReason)
		}
		if got := s.Outcome(); got != tc.outcome {
			t.Errorf("%s: Outcome() = %v; want %v", tc.desc, got, tc.outcome)
		}
	}
}

func TestStateRunInterrupted(t *gotesting.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestState(t, &fakeRunner{err: errors.Wrap(context.Canceled, "prog: interrupted")}, nil)
	if runBody(s, func(s *State) { s.Run(ctx, []string{"prog"}) }) {
		t.Error("Body continued after an interrupted command")
	}
	if !s.Interrupted() {
		t.Error("Interrupted() = false")
	}
	if got := s.Outcome(); got != status.Error {
		t.Errorf("Outcome() = %v; want %v", got, status.Error)
	}
}

func TestStateRunEmptyCommand(t *gotesting.T) {
	s := newTestState(t, &fakeRunner{}, nil)
	if runBody(s, func(s *State) { s.Run(context.Background(), nil) }) {
		t.Error("Body continued after an empty command")
	}
	if got := s.Outcome(); got != status.Error {
		t.Errorf("Outcome() = %v; want %v", got, status.Error)
	}
}

func TestStateOutcomeWorstWins(t *gotesting.T) {
	s := newTestState(t, &fakeRunner{}, nil)
	s.RecordFailure(status.AssertionFailed, "a", "")
	s.RecordFailure(status.Error, "b", "")
	s.RecordFailure(status.Timeout, "c", "")
	if got := s.Outcome(); got != status.Error {
		t.Errorf("Outcome() = %v; want %v", got, status.Error)
	}
}

func TestStateRunDeadline(t *gotesting.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	s := newTestState(t, &fakeRunner{err: errors.Wrap(context.DeadlineExceeded, "prog: interrupted")}, nil)
	runBody(s, func(s *State) { s.Run(ctx, []string{"prog"}) })
	if s.Interrupted() {
		t.Error("Interrupted() = true for an exceeded deadline")
	}
	if fs := s.Failures(); len(fs) != 1 || fs[0].Class != status.Timeout {
		t.Errorf("Failures() = %+v; want one timeout", fs)
	}
	if got := s.Outcome(); got != status.AssertionFailed {
		t.Errorf("Outcome() = %v; want %v", got, status.AssertionFailed)
	}
}
