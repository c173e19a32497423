// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package bundle

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/google/subcommands"

	"go.chromium.org/stest/internal/command"
	"go.chromium.org/stest/internal/exitcodes"
	"go.chromium.org/stest/internal/reporting"
	"go.chromium.org/stest/internal/testing"
)

// listCmd implements subcommands.Command to support listing tests.
type listCmd struct {
	reg    *testing.Registry
	stdout io.Writer
	stderr io.Writer
	sel    selectionFlags
}

var _ = subcommands.Command(&listCmd{})

func newListCmd(reg *testing.Registry, stdout, stderr io.Writer) *listCmd {
	return &listCmd{reg: reg, stdout: stdout, stderr: stderr}
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list tests" }
func (*listCmd) Usage() string {
	return `Usage: list [flag]...

Description:
    List the tests selected by the flags with their IDs, tags and
    preconditions. Without flags, all tests are listed.

Flag:
`
}

func (lc *listCmd) SetFlags(f *flag.FlagSet) {
	lc.sel.register(f)
}

func (lc *listCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 0 {
		fmt.Fprintf(lc.stderr, "Unexpected arguments %q\n\n%s", f.Args(), lc.Usage())
		return subcommands.ExitStatus(exitcodes.SetupFailure)
	}
	sel, err := lc.sel.selection()
	if err != nil {
		return subcommands.ExitStatus(command.WriteError(lc.stderr, err))
	}
	reporting.WriteTestList(lc.stdout, lc.reg.Select(sel))
	return subcommands.ExitSuccess
}
