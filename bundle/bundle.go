// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package bundle provides the entry point of test binaries.
//
// A test binary registers tests with testing.AddTest in init functions and
// calls Main from its main function:
//
//	func main() {
//		bundle.Main()
//	}
//
// The same binary is re-executed to run each test body in a child process of
// its own, so registration must not depend on command-line flags or the
// environment.
package bundle

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"go.chromium.org/stest/errors"
	"go.chromium.org/stest/internal/command"
	"go.chromium.org/stest/internal/exitcodes"
	"go.chromium.org/stest/internal/planner"
	"go.chromium.org/stest/internal/testing"
)

// Main is the entry point of a test binary. It runs the subcommand given on
// the command line against the tests in the global registry and exits.
func Main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, testing.GlobalRegistry()))
}

// run runs a test binary and returns its exit code. In a re-executed child
// process it runs a single test body instead; clArgs are ignored then.
func run(ctx context.Context, clArgs []string, stdout, stderr io.Writer, reg *testing.Registry) int {
	if params, ok, err := planner.ChildParamsFromEnv(); ok {
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitcodes.SetupFailure
		}
		return runChild(ctx, reg, params, stderr)
	}

	if errs := reg.Errors(); len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(stderr, "Registration error: %v\n", err)
		}
		return exitcodes.SetupFailure
	}

	name := filepath.Base(os.Args[0])
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	cdr := subcommands.NewCommander(fs, name)
	cdr.Output = stdout
	cdr.Error = stderr
	cdr.Register(cdr.HelpCommand(), "")
	cdr.Register(cdr.FlagsCommand(), "")
	cdr.Register(cdr.CommandsCommand(), "")
	cdr.Register(newRunCmd(reg, stdout, stderr), "")
	cdr.Register(newListCmd(reg, stdout, stderr), "")

	if err := fs.Parse(clArgs); err != nil {
		return exitcodes.SetupFailure
	}
	return int(cdr.Execute(ctx))
}

// runChild runs the test body described by params. A SIGINT or SIGTERM
// cancels the body's context; SIGTERM also dumps goroutines, since it is
// sent by the parent process when the child does not exit in time.
func runChild(ctx context.Context, reg *testing.Registry, params *planner.ChildParams, stderr io.Writer) int {
	code := exitcodes.SetupFailure

	g, ctx := errgroup.WithContext(ctx)
	childCtx, stop := context.WithCancel(ctx)
	defer stop()
	g.Go(func() error {
		defer stop()
		code = planner.RunChild(childCtx, reg, params, stderr)
		return nil
	})
	g.Go(func() error {
		err := command.WatchSignals(childCtx, stderr)
		var se *command.SignalError
		if errors.As(err, &se) && se.Signal == unix.SIGTERM {
			command.DumpGoroutines(stderr)
		}
		return err
	})
	g.Wait()
	return code
}
