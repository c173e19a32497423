// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package exitcodes defines the exit codes of test binaries.
package exitcodes

const (
	Success      = 0   // all selected tests passed or were skipped
	TestFailure  = 1   // one or more tests failed or hit an error
	SetupFailure = 2   // bad usage, malformed keyword query or an unusable output directory
	Interrupted  = 130 // the run was interrupted by SIGINT or SIGTERM
)
