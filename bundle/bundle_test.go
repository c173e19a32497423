// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package bundle

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	gotesting "testing"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/stest/internal/exitcodes"
	"go.chromium.org/stest/internal/planner"
	"go.chromium.org/stest/internal/testing"
	"go.chromium.org/stest/testutil"
)

// TestMain runs a test body when the test binary is re-executed as a child
// process.
func TestMain(m *gotesting.M) {
	if _, ok, _ := planner.ChildParamsFromEnv(); ok {
		os.Exit(run(context.Background(), nil, os.Stdout, os.Stderr, newRegistry()))
	}
	os.Exit(m.Run())
}

// echoTest returns a body that echoes msg and checks the output.
func echoTest(msg string) testing.TestFunc {
	return func(ctx context.Context, s *testing.State) {
		s.Run(ctx, []string{"echo", msg})
		s.CheckOutput(1, msg+"\n")
	}
}

// newRegistry returns the registry shared by the driver and its children.
func newRegistry() *testing.Registry {
	reg := testing.NewRegistry()
	for _, t := range []*testing.Test{
		{Name: "s1", Keywords: "echo", Func: echoTest("s1")},
		{Name: "s2", Keywords: "echo", Func: echoTest("s2")},
		{Name: "s3", Keywords: "echo", Func: echoTest("s3")},
		{Name: "s4", Keywords: "broken", Func: func(ctx context.Context, s *testing.State) {
			s.Sh(ctx, "true", testing.WithExpectedStatus(1))
		}},
		{Name: "s5", Keywords: "vars", Precondition: "fast", Func: func(ctx context.Context, s *testing.State) {
			if v, _ := s.Var("fast"); v != "yes" {
				s.Errorf("fast = %q; want yes", v)
			}
		}},
	} {
		if _, err := reg.AddTest(t); err != nil {
			panic(err)
		}
	}
	return reg
}

func runBundle(t *gotesting.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	code = run(context.Background(), args, &outBuf, &errBuf, newRegistry())
	return code, outBuf.String(), errBuf.String()
}

func TestRunSelectRange(t *gotesting.T) {
	outDir := testutil.TempDir(t)
	code, stdout, stderr := runBundle(t, "run", "-select", "2..3", "-outdir", outDir)
	if code != exitcodes.Success {
		t.Fatalf("run returned %d; want %d\nstderr:\n%s", code, exitcodes.Success, stderr)
	}
	if diff := cmp.Diff(stdout, "2 s2 ok\n3 s3 ok\n"); diff != "" {
		t.Errorf("Progress mismatch (-got +want):\n%s", diff)
	}

	files, err := testutil.ReadFiles(outDir)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"test2/stdout_1": "s2\n",
		"test2/stderr_1": "",
		"test2/run_1":    "${STEST_DEBUG} echo s2\n",
		"test3/stdout_1": "s3\n",
		"test3/stderr_1": "",
		"test3/run_1":    "${STEST_DEBUG} echo s3\n",
	}
	if diff := cmp.Diff(files, want); diff != "" {
		t.Errorf("Output files mismatch (-got +want):\n%s", diff)
	}
}

func TestRunFailure(t *gotesting.T) {
	outDir := testutil.TempDir(t)
	code, stdout, _ := runBundle(t, "run", "-keywords", "broken or echo", "-name", "s[14]", "-outdir", outDir)
	if code != exitcodes.TestFailure {
		t.Errorf("run returned %d; want %d", code, exitcodes.TestFailure)
	}
	for _, want := range []string{"1 s1 ok\n4 s4 failed\n", "1 passed, 1 failed, 0 errors", filepath.Join(outDir, "test4", planner.ErrorFile)} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Output does not contain %q:\n%s", want, stdout)
		}
	}
	b, err := os.ReadFile(filepath.Join(outDir, "test4", planner.ErrorFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "Test 4 's4': failed:\n") {
		t.Errorf("Error report = %q", string(b))
	}
}

func TestRunVars(t *gotesting.T) {
	outDir := testutil.TempDir(t)
	code, stdout, _ := runBundle(t, "run", "-keywords", "vars", "-outdir", outDir)
	if code != exitcodes.Success || !strings.Contains(stdout, "5 s5 skipped") {
		t.Errorf("run without vars returned %d with output %q; want skipped test", code, stdout)
	}
	if _, err := os.Stat(filepath.Join(outDir, "test5")); !os.IsNotExist(err) {
		t.Error("Skipped test has a directory")
	}

	code, stdout, _ = runBundle(t, "run", "-keywords", "vars", "-var", "fast", "-outdir", outDir)
	if code != exitcodes.Success || stdout != "5 s5 ok\n" {
		t.Errorf("run with -var fast returned %d with output %q; want %q", code, stdout, "5 s5 ok\n")
	}
}

func TestRunConfigFile(t *gotesting.T) {
	dir := testutil.TempDir(t)
	outDir := filepath.Join(dir, "out")
	if err := testutil.WriteFiles(dir, map[string]string{
		"stest.yaml": "outdir: " + outDir + "\ndebug_prefix: $DBG\n",
	}); err != nil {
		t.Fatal(err)
	}
	code, _, stderr := runBundle(t, "run", "-select", "1", "-config", filepath.Join(dir, "stest.yaml"))
	if code != exitcodes.Success {
		t.Fatalf("run returned %d\nstderr:\n%s", code, stderr)
	}
	b, err := os.ReadFile(filepath.Join(outDir, "test1", "run_1"))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), "$DBG echo s1\n"; got != want {
		t.Errorf("run_1 = %q; want %q", got, want)
	}
}

func TestRunSetupErrors(t *gotesting.T) {
	outDir := testutil.TempDir(t)
	for _, args := range [][]string{
		{"run", "-keywords", "echo broken", "-outdir", outDir},
		{"run", "-keywords", "(echo", "-outdir", outDir},
		{"run", "-select", "3..1", "-outdir", outDir},
		{"run", "-config", filepath.Join(outDir, "missing.yaml")},
		{"run", "-outdir", outDir, "extra"},
		{"run", "-nosuchflag"},
		{"list", "-keywords", "a b"},
	} {
		if code, _, _ := runBundle(t, args...); code != exitcodes.SetupFailure {
			t.Errorf("%q returned %d; want %d", args, code, exitcodes.SetupFailure)
		}
	}
	// No test ran.
	if entries, err := os.ReadDir(outDir); err != nil || len(entries) != 0 {
		t.Errorf("Output directory has %v (%v); want nothing", entries, err)
	}
}

func TestRegistrationErrors(t *gotesting.T) {
	reg := newRegistry()
	reg.RecordError(os.ErrInvalid)
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"list"}, &stdout, &stderr, reg); code != exitcodes.SetupFailure {
		t.Errorf("run returned %d; want %d", code, exitcodes.SetupFailure)
	}
	if !strings.Contains(stderr.String(), "Registration error") {
		t.Errorf("stderr = %q; want registration error", stderr.String())
	}
}

func TestList(t *gotesting.T) {
	code, stdout, _ := runBundle(t, "list", "-keywords", "echo", "-select", "2..5")
	if code != exitcodes.Success {
		t.Fatalf("list returned %d", code)
	}
	for _, name := range []string{"s2", "s3"} {
		if !strings.Contains(stdout, name) {
			t.Errorf("List does not contain %s:\n%s", name, stdout)
		}
	}
	for _, name := range []string{"s1", "s4", "s5"} {
		if strings.Contains(stdout, name) {
			t.Errorf("List contains %s:\n%s", name, stdout)
		}
	}
}
