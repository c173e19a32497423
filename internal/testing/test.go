// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package testing implements the test registry, test selection and the
// State object passed to test bodies.
//
// A test is a function registered with metadata: a name, whitespace-separated
// keywords and an optional precondition. Registration assigns every test a
// dense integer ID in registration order, starting from 1. Since test bodies
// run in re-executed copies of the test binary, registration must be
// deterministic for IDs to agree between the driver and its children.
package testing

import (
	"context"
	"path"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.chromium.org/stest/errors"
	"go.chromium.org/stest/internal/expr"
)

// TestFunc is the body of a test.
type TestFunc func(context.Context, *State)

// Test describes a test to be registered.
type Test struct {
	// Name is a unique name of the test. It must not contain whitespace.
	// If empty, it is derived from Func as "<package>.<Function>".
	Name string
	// Desc is a one-line description of the test.
	Desc string
	// Keywords is a whitespace-separated list of tags. Hierarchical tags
	// such as "io--read" also tag the test with their ancestors.
	Keywords string
	// Precondition is an optional keyword query evaluated against the
	// features of the run (see Features). The test is skipped unless it
	// holds.
	Precondition string
	// Func is the test body.
	Func TestFunc
	// Timeout bounds the test body. Zero means the run's default.
	Timeout time.Duration
}

// TestCase is a registered test.
type TestCase struct {
	// ID is the 1-based registration index of the test.
	ID int
	// Name is the unique name of the test.
	Name string
	// Desc is the description of the test.
	Desc string
	// Tags is the set of tags derived from the test's keywords.
	Tags TagSet
	// Precondition is the precondition query as written; empty if the test
	// has none.
	Precondition string
	// Func is the test body.
	Func TestFunc
	// Timeout bounds the test body. Zero means the run's default.
	Timeout time.Duration

	pre *expr.Expr

	mu  sync.Mutex
	ran bool
}

func newTestCase(id int, t *Test) (*TestCase, error) {
	if t.Func == nil {
		return nil, errors.Errorf("test %q has no body", t.Name)
	}
	name := t.Name
	if name == "" {
		var err error
		if name, err = funcName(t.Func); err != nil {
			return nil, err
		}
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return nil, errors.Errorf("invalid test name %q", name)
	}
	if t.Timeout < 0 {
		return nil, errors.Errorf("test %s has negative timeout %v", name, t.Timeout)
	}
	tags := DeriveTags(t.Keywords)
	for tag := range tags {
		if strings.ContainsAny(string(tag), "()") {
			return nil, errors.Errorf("test %s has tag %q containing parentheses", name, tag)
		}
	}
	tc := &TestCase{
		ID:           id,
		Name:         name,
		Desc:         t.Desc,
		Tags:         tags,
		Precondition: strings.TrimSpace(t.Precondition),
		Func:         t.Func,
		Timeout:      t.Timeout,
	}
	if tc.Precondition != "" {
		pre, err := expr.New(tc.Precondition)
		if err != nil {
			return nil, errors.Wrapf(err, "test %s has bad precondition", name)
		}
		tc.pre = pre
	}
	return tc, nil
}

// funcName derives a test name from the package and name of f, e.g.
// "cli.Help" for function Help in package example.com/suite/cli.
func funcName(f TestFunc) (string, error) {
	rf := runtime.FuncForPC(reflect.ValueOf(f).Pointer())
	if rf == nil {
		return "", errors.New("failed to get function from PC")
	}
	_, base := path.Split(rf.Name())
	pkg, fn, ok := strings.Cut(base, ".")
	if !ok || strings.Contains(fn, ".") {
		return "", errors.Errorf("cannot derive a test name from %q; set Name", rf.Name())
	}
	return pkg + "." + fn, nil
}

// PreconditionHolds reports whether the test's precondition holds for a run
// with the given features. A test without a precondition always runs.
func (t *TestCase) PreconditionHolds(features TagSet) bool {
	return t.pre == nil || t.pre.Eval(features)
}

// MarkRun records that the test is about to run. It returns an error if the
// test already ran in this process.
func (t *TestCase) MarkRun() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ran {
		return errors.Errorf("test %d (%s) already ran", t.ID, t.Name)
	}
	t.ran = true
	return nil
}

// String returns "<id> <name>", the form used in progress lines.
func (t *TestCase) String() string {
	return strconv.Itoa(t.ID) + " " + t.Name
}
