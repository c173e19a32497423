// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testing

import (
	"go.chromium.org/stest/errors"
)

// Registry holds registered tests.
type Registry struct {
	tests  []*TestCase
	names  map[string]struct{} // names of registered tests
	errors []error             // errors encountered while registering tests
}

// NewRegistry returns a new test registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// AddTest adds t to the registry and assigns it the next ID.
// On error, the test is not registered and no ID is consumed.
func (r *Registry) AddTest(t *Test) (*TestCase, error) {
	tc, err := newTestCase(len(r.tests)+1, t)
	if err != nil {
		return nil, err
	}
	if _, ok := r.names[tc.Name]; ok {
		return nil, errors.Errorf("test %q already registered", tc.Name)
	}
	r.tests = append(r.tests, tc)
	r.names[tc.Name] = struct{}{}
	return tc, nil
}

// RecordError records err as a registration error.
func (r *Registry) RecordError(err error) {
	r.errors = append(r.errors, err)
}

// Errors returns registration errors recorded by RecordError.
func (r *Registry) Errors() []error {
	return append([]error(nil), r.errors...)
}

// AllTests returns all registered tests in registration order.
// The tests are owned by the registry.
func (r *Registry) AllTests() []*TestCase {
	return append([]*TestCase(nil), r.tests...)
}

// Test returns the test with the given ID.
func (r *Registry) Test(id int) (*TestCase, bool) {
	if id < 1 || id > len(r.tests) {
		return nil, false
	}
	return r.tests[id-1], true
}

// Select returns the tests matched by sel in registration order.
func (r *Registry) Select(sel *Selection) []*TestCase {
	var tests []*TestCase
	for _, t := range r.tests {
		if sel.Matches(t) {
			tests = append(tests, t)
		}
	}
	return tests
}
