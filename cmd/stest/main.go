// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package main implements stest, a sample test binary holding acceptance
// tests of common POSIX text utilities.
//
//	$ stest list
//	$ stest run -keywords 'sort or grep--status'
//	$ stest run -select 2..3 -var gnu
package main

import (
	"go.chromium.org/stest/bundle"
)

func main() {
	bundle.Main()
}
