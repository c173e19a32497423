// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"

	"golang.org/x/sys/unix"
)

var selfName = filepath.Base(os.Args[0])

// SignalError is returned by WatchSignals when a signal is caught.
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("caught %v signal", e.Signal)
}

// WatchSignals blocks until SIGINT or SIGTERM is received or ctx is done.
// It returns a *SignalError for a caught signal and nil otherwise, so it can
// run in an errgroup next to the work it interrupts. After it returns, the
// signals regain their default behavior, so a second signal kills the
// process.
func WatchSignals(ctx context.Context, out io.Writer) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(ch)

	select {
	case sig := <-ch:
		fmt.Fprintf(out, "\n%s: Caught %v signal; stopping\n", selfName, sig)
		return &SignalError{Signal: sig}
	case <-ctx.Done():
		return nil
	}
}

// DumpGoroutines writes the stack traces of all goroutines to out.
// A SIGTERM is often sent by the parent process on timeout, and the traces
// help finding where the process was stuck.
func DumpGoroutines(out io.Writer) {
	fmt.Fprintf(out, "\n%s: Dumping all goroutines...\n\n", selfName)
	if p := pprof.Lookup("goroutine"); p != nil {
		p.WriteTo(out, 2)
	}
	fmt.Fprintf(out, "\n%s: Finished dumping goroutines\n", selfName)
}
