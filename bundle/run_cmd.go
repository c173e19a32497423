// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package bundle

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"go.chromium.org/stest/errors"
	"go.chromium.org/stest/internal/command"
	"go.chromium.org/stest/internal/config"
	"go.chromium.org/stest/internal/exitcodes"
	"go.chromium.org/stest/internal/logging"
	"go.chromium.org/stest/internal/planner"
	"go.chromium.org/stest/internal/reporting"
	"go.chromium.org/stest/internal/testing"
)

// runCmd implements subcommands.Command to support running tests.
type runCmd struct {
	reg    *testing.Registry
	stdout io.Writer // progress lines and the summary
	stderr io.Writer // logs and errors

	sel        selectionFlags
	configPath string
	outDir     string
	vars       map[string]string
	verbose    bool
}

var _ = subcommands.Command(&runCmd{})

func newRunCmd(reg *testing.Registry, stdout, stderr io.Writer) *runCmd {
	return &runCmd{
		reg:    reg,
		stdout: stdout,
		stderr: stderr,
		vars:   make(map[string]string),
	}
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run tests" }
func (*runCmd) Usage() string {
	return `Usage: run [flag]...

Description:
    Run the selected tests one at a time, each in a process of its own.
    Artifacts of test N are written to <outdir>/testN/.

    To run tests tagged "io" except slow ones:

        $ run -keywords 'io and not slow'

    To run tests 2 to 5 with a variable:

        $ run -select 2..5 -var mode=release

Flag:
`
}

func (rc *runCmd) SetFlags(f *flag.FlagSet) {
	rc.sel.register(f)
	f.StringVar(&rc.configPath, "config", "", "YAML file containing the run configuration")
	f.StringVar(&rc.outDir, "outdir", "", "directory where test directories are created (default from config)")
	f.Var(command.VarsFlag(rc.vars), "var", `variable passed to tests, as "name=value" or "name" meaning "name=yes" (can be repeated)`)
	f.BoolVar(&rc.verbose, "verbose", false, "print debug logs with timestamps")
}

func (rc *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 0 {
		fmt.Fprintf(rc.stderr, "Unexpected arguments %q\n\n%s", f.Args(), rc.Usage())
		return subcommands.ExitStatus(exitcodes.SetupFailure)
	}
	ctx = logging.AttachLogger(ctx, logging.NewConsoleLogger(rc.stderr, rc.verbose))

	sel, err := rc.sel.selection()
	if err != nil {
		return subcommands.ExitStatus(command.WriteError(rc.stderr, err))
	}
	cfg, err := config.Load(rc.configPath)
	if err != nil {
		return subcommands.ExitStatus(command.WriteError(rc.stderr, err))
	}
	cfg.MergeVars(rc.vars)
	if rc.outDir != "" {
		cfg.OutDir = rc.outDir
	}
	if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
		return subcommands.ExitStatus(command.WriteError(rc.stderr, errors.Wrap(err, "failed to create output directory")))
	}

	tests := rc.reg.Select(sel)
	logging.Infof(ctx, "Running %d of %d tests (%v) in %s", len(tests), len(rc.reg.AllTests()), sel, cfg.OutDir)

	pcfg := &planner.Config{
		OutDir:         cfg.OutDir,
		Vars:           cfg.Vars,
		Env:            cfg.Env,
		DebugPrefix:    cfg.DebugPrefix,
		CommandTimeout: cfg.CommandTimeout,
		TestTimeout:    cfg.TestTimeout,
		PollInterval:   cfg.PollInterval,
		GracePeriod:    cfg.GracePeriod,
		Verbose:        rc.verbose,
		ChildOutput:    rc.stderr,
	}
	rep := reporting.New(rc.stdout)

	g, ctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g.Go(func() error {
		defer stop()
		return planner.RunTests(runCtx, tests, pcfg, rep)
	})
	g.Go(func() error {
		return command.WatchSignals(runCtx, rc.stderr)
	})
	err = g.Wait()

	var se *command.SignalError
	switch {
	case errors.As(err, &se), errors.Is(err, context.Canceled):
		rep.Finish()
		logging.Info(ctx, "Run interrupted: ", err)
		return subcommands.ExitStatus(exitcodes.Interrupted)
	case err != nil:
		rep.Finish()
		return subcommands.ExitStatus(command.WriteError(rc.stderr, err))
	}
	rep.Finish()
	return subcommands.ExitStatus(rep.ExitCode())
}
