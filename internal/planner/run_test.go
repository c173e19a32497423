// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package planner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	gotesting "testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"

	"go.chromium.org/stest/errors"
	"go.chromium.org/stest/internal/procexec"
	"go.chromium.org/stest/internal/status"
	"go.chromium.org/stest/internal/testing"
	"go.chromium.org/stest/testutil"
)

// TestMain runs a test body when the test binary is re-executed as a child
// process by RunTests.
func TestMain(m *gotesting.M) {
	params, ok, err := ChildParamsFromEnv()
	if ok {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(childExitError)
		}
		os.Exit(RunChild(context.Background(), newTestRegistry(), params, os.Stderr))
	}
	os.Exit(m.Run())
}

// Test IDs in the registry returned by newTestRegistry.
const (
	passID = iota + 1
	failID
	launchErrorID
	panicID
	timeoutID
	fastOnlyID
	varsID
	hangID
)

// newTestRegistry returns the registry shared by the driver and child
// processes. Registration order must stay deterministic.
func newTestRegistry() *testing.Registry {
	reg := testing.NewRegistry()
	for _, t := range []*testing.Test{
		{Name: "pass", Keywords: "good", Func: func(ctx context.Context, s *testing.State) {
			s.Sh(ctx, "echo ok")
			s.CheckOutput(1, "ok\n")
		}},
		{Name: "fail", Keywords: "bad", Func: func(ctx context.Context, s *testing.State) {
			s.Sh(ctx, "exit 1")
		}},
		{Name: "launchError", Keywords: "bad", Func: func(ctx context.Context, s *testing.State) {
			s.Run(ctx, []string{"/nonexistent/prog"})
		}},
		{Name: "panic", Keywords: "bad", Func: func(ctx context.Context, s *testing.State) {
			panic("boom")
		}},
		{Name: "timeout", Keywords: "slow", Timeout: 300 * time.Millisecond, Func: func(ctx context.Context, s *testing.State) {
			s.Sh(ctx, "sleep 30")
		}},
		{Name: "fastOnly", Precondition: "fast", Func: func(ctx context.Context, s *testing.State) {}},
		{Name: "vars", Func: func(ctx context.Context, s *testing.State) {
			if v := s.RequiredVar("mode"); v != "x" {
				s.Fatalf("mode = %q; want %q", v, "x")
			}
			s.Sh(ctx, "echo $GREETING")
			s.CheckOutput(1, "hi\n")
		}},
		{Name: "hang", Keywords: "slow", Func: func(ctx context.Context, s *testing.State) {
			s.Sh(ctx, "sleep 30")
		}},
	} {
		if _, err := reg.AddTest(t); err != nil {
			panic(err)
		}
	}
	return reg
}

type result struct {
	Name    string
	Outcome string
}

// fakeReporter records notifications from RunTests.
type fakeReporter struct {
	results []result
}

func (r *fakeReporter) Skipped(t *testing.TestCase, reason string) {
	r.results = append(r.results, result{t.Name, "skipped"})
}

func (r *fakeReporter) Finished(t *testing.TestCase, outcome status.Classification, dir string) {
	r.results = append(r.results, result{t.Name, outcome.String()})
}

func newConfig(t *gotesting.T) (*Config, *bytes.Buffer) {
	var out bytes.Buffer
	return &Config{
		OutDir:         testutil.TempDir(t),
		Vars:           map[string]string{"mode": "x"},
		Env:            map[string]string{"GREETING": "hi"},
		DebugPrefix:    "${STEST_DEBUG}",
		CommandTimeout: time.Minute,
		TestTimeout:    time.Minute,
		PollInterval:   20 * time.Millisecond,
		GracePeriod:    5 * time.Second,
		ChildOutput:    &out,
	}, &out
}

func selectIDs(t *gotesting.T, reg *testing.Registry, ids string) []*testing.TestCase {
	t.Helper()
	sel, err := testing.NewSelection(testing.SelectionArgs{IDs: ids})
	if err != nil {
		t.Fatal(err)
	}
	return reg.Select(sel)
}

func TestRunTestsOutcomes(t *gotesting.T) {
	cfg, out := newConfig(t)
	var rep fakeReporter
	if err := RunTests(context.Background(), selectIDs(t, newTestRegistry(), "1..7"), cfg, &rep); err != nil {
		t.Fatal("RunTests failed: ", err)
	}
	want := []result{
		{"pass", "ok"},
		{"fail", "failed"},
		{"launchError", "error"},
		{"panic", "error"},
		{"timeout", "failed"},
		{"fastOnly", "skipped"},
		{"vars", "ok"},
	}
	if diff := cmp.Diff(rep.results, want); diff != "" {
		t.Errorf("Results mismatch (-got +want):\n%s\nChild output:\n%s", diff, out.String())
	}

	for _, tc := range []struct {
		id         int
		wantPrefix string
		wantSubstr string
	}{
		{failID, "Test 2 'fail': failed:\n", "exit status 1; want exit status 0"},
		{launchErrorID, "Test 3 'launchError': error:\n", "failed to start"},
		{panicID, "Test 4 'panic': error:\n", "Panic: boom"},
		{timeoutID, "Test 5 'timeout': failed:\n", "sleep 30"},
	} {
		b, err := os.ReadFile(filepath.Join(TestDir(cfg.OutDir, tc.id), ErrorFile))
		if err != nil {
			t.Errorf("Test %d: %v", tc.id, err)
			continue
		}
		if s := string(b); !strings.HasPrefix(s, tc.wantPrefix) || !strings.Contains(s, tc.wantSubstr) {
			t.Errorf("Test %d: %s is %q; want prefix %q containing %q", tc.id, ErrorFile, s, tc.wantPrefix, tc.wantSubstr)
		}
	}

	for _, id := range []int{passID, varsID} {
		if _, err := os.Stat(filepath.Join(TestDir(cfg.OutDir, id), ErrorFile)); !os.IsNotExist(err) {
			t.Errorf("Test %d: %s exists for a passing test", id, ErrorFile)
		}
	}
	if _, err := os.Stat(TestDir(cfg.OutDir, fastOnlyID)); !os.IsNotExist(err) {
		t.Error("Directory was created for a skipped test")
	}
}

func TestRunTestsArtifacts(t *gotesting.T) {
	cfg, _ := newConfig(t)
	stale := filepath.Join(TestDir(cfg.OutDir, passID), "stale")
	if err := testutil.WriteFiles(filepath.Dir(stale), map[string]string{"stale": "x"}); err != nil {
		t.Fatal(err)
	}

	var rep fakeReporter
	if err := RunTests(context.Background(), selectIDs(t, newTestRegistry(), "1"), cfg, &rep); err != nil {
		t.Fatal("RunTests failed: ", err)
	}
	files, err := testutil.ReadFiles(cfg.OutDir)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"test1/stdout_1": "ok\n",
		"test1/stderr_1": "",
		"test1/run_1":    "GREETING=hi ${STEST_DEBUG} /bin/sh -c 'echo ok'\n",
	}
	if diff := cmp.Diff(files, want); diff != "" {
		t.Errorf("Output files mismatch (-got +want):\n%s", diff)
	}
}

func TestRunTestsPrecondition(t *gotesting.T) {
	cfg, _ := newConfig(t)
	cfg.Vars["fast"] = "yes"
	var rep fakeReporter
	if err := RunTests(context.Background(), selectIDs(t, newTestRegistry(), "6"), cfg, &rep); err != nil {
		t.Fatal("RunTests failed: ", err)
	}
	if diff := cmp.Diff(rep.results, []result{{"fastOnly", "ok"}}); diff != "" {
		t.Errorf("Results mismatch (-got +want):\n%s", diff)
	}
}

func TestRunTestsOnce(t *gotesting.T) {
	cfg, _ := newConfig(t)
	tests := selectIDs(t, newTestRegistry(), "1")
	if err := RunTests(context.Background(), tests, cfg, &fakeReporter{}); err != nil {
		t.Fatal("RunTests failed: ", err)
	}
	if err := RunTests(context.Background(), tests, cfg, &fakeReporter{}); err == nil {
		t.Error("RunTests ran a test twice")
	}
}

func TestRunTestsInterrupted(t *gotesting.T) {
	cfg, _ := newConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(time.Second, cancel)

	var rep fakeReporter
	start := time.Now()
	err := RunTests(ctx, selectIDs(t, newTestRegistry(), fmt.Sprint(hangID)), cfg, &rep)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RunTests returned %v; want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Second {
		t.Errorf("RunTests took %v after interruption", elapsed)
	}
	if len(rep.results) != 0 {
		t.Errorf("Interrupted test was reported: %v", rep.results)
	}
}

func TestRunTestsBadConfig(t *gotesting.T) {
	cfg, _ := newConfig(t)
	cfg.TestTimeout = 0
	if err := RunTests(context.Background(), nil, cfg, &fakeReporter{}); err == nil {
		t.Error("RunTests accepted a zero test timeout")
	}
}

func TestClassifyExit(t *gotesting.T) {
	for _, tc := range []struct {
		st              procexec.ExitStatus
		wantOutcome     status.Classification
		wantInterrupted bool
	}{
		{procexec.ExitStatus{Code: 0}, status.OK, false},
		{procexec.ExitStatus{Code: 1}, status.AssertionFailed, false},
		{procexec.ExitStatus{Code: 2}, status.Error, false},
		{procexec.ExitStatus{Code: 3}, status.Error, true},
		{procexec.ExitStatus{Code: 42}, status.Error, false},
		{procexec.ExitStatus{Code: -1, Signaled: true, Signal: unix.SIGSEGV}, status.Error, false},
	} {
		outcome, interrupted := classifyExit(&tc.st)
		if outcome != tc.wantOutcome || interrupted != tc.wantInterrupted {
			t.Errorf("classifyExit(%v) = (%v, %v); want (%v, %v)", &tc.st, outcome, interrupted, tc.wantOutcome, tc.wantInterrupted)
		}
	}
}

func TestChildParamsFromEnv(t *gotesting.T) {
	t.Setenv(ChildParamsEnv, `{"testId":3,"testName":"foo","dir":"/tmp/x","vars":{"a":"yes"},"commandTimeout":1000000000}`)
	params, ok, err := ChildParamsFromEnv()
	if !ok || err != nil {
		t.Fatalf("ChildParamsFromEnv() = _, %v, %v", ok, err)
	}
	want := &ChildParams{TestID: 3, TestName: "foo", Dir: "/tmp/x", Vars: map[string]string{"a": "yes"}, CommandTimeout: time.Second}
	if diff := cmp.Diff(params, want); diff != "" {
		t.Errorf("ChildParams mismatch (-got +want):\n%s", diff)
	}

	t.Setenv(ChildParamsEnv, "{")
	if _, ok, err := ChildParamsFromEnv(); !ok || err == nil {
		t.Errorf("ChildParamsFromEnv() with bad JSON = _, %v, %v; want true, error", ok, err)
	}
}

func TestRunChildUnknownTest(t *gotesting.T) {
	var stderr bytes.Buffer
	params := &ChildParams{TestID: passID, TestName: "renamed", Dir: testutil.TempDir(t)}
	if code := RunChild(context.Background(), newTestRegistry(), params, &stderr); code != childExitError {
		t.Errorf("RunChild returned %d; want %d", code, childExitError)
	}
	if !strings.Contains(stderr.String(), "not found") {
		t.Errorf("RunChild did not log the missing test: %q", stderr.String())
	}
}
