// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testing

var globalRegistry *Registry // singleton, initialized on first use

// GlobalRegistry returns a global registry containing tests
// registered by calls to AddTest.
func GlobalRegistry() *Registry {
	if globalRegistry == nil {
		globalRegistry = NewRegistry()
	}
	return globalRegistry
}

// AddTest adds test t to the global registry. Registration errors are
// recorded in the registry and reported when the test binary starts.
func AddTest(t *Test) {
	if _, err := GlobalRegistry().AddTest(t); err != nil {
		GlobalRegistry().RecordError(err)
	}
}

// SetGlobalRegistryForTesting temporarily sets reg as the global registry.
// The caller must call the returned function later to restore the original registry.
// This is intended to be used by unit tests that need to register tests in the global registry but don't
// want to affect subsequent unit tests.
func SetGlobalRegistryForTesting(reg *Registry) (restore func()) {
	origReg := globalRegistry
	globalRegistry = reg
	return func() {
		globalRegistry = origReg
	}
}
