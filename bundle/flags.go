// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package bundle

import (
	"flag"

	"go.chromium.org/stest/internal/testing"
)

// selectionFlags holds the flags selecting tests, shared by subcommands.
type selectionFlags struct {
	keywords string
	ids      string
	name     string
}

func (f *selectionFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.keywords, "keywords", "", `keyword query selecting tests, e.g. "io and not slow"`)
	fs.StringVar(&f.ids, "select", "", `test IDs to select, as a list ("2 3") or an inclusive range ("2..3")`)
	fs.StringVar(&f.name, "name", "", "regular expression matched against test names")
}

func (f *selectionFlags) selection() (*testing.Selection, error) {
	return testing.NewSelection(testing.SelectionArgs{
		Name:     f.name,
		IDs:      f.ids,
		Keywords: f.keywords,
	})
}
