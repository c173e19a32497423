// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package planner

import (
	"context"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"go.chromium.org/stest/errors"
)

// panicHandler is called with the recovered value when a test body panics.
type panicHandler func(val interface{})

// bodyRun tracks a single test body running on its own goroutine.
//
// The body goroutine and the waiting goroutine both try to settle the run.
// The first one wins: if the waiter settles first the body is abandoned and
// its panics are ignored; if the body settles first the waiter blocks until
// the panic handler has returned.
type bodyRun struct {
	once sync.Once
	done chan struct{} // closed when the body goroutine exits
}

// settle reports whether the caller is the first to settle the run.
func (r *bodyRun) settle() bool {
	won := false
	r.once.Do(func() { won = true })
	return won
}

// safeCall runs f on a goroutine with a context limited to timeout.
//
// If f is still running timeout + gracePeriod later, or ctx is canceled
// first, safeCall abandons the goroutine and returns an error naming the
// function. A panic in f is passed to ph on the panicking goroutine so that
// the stack is still available. runtime.Goexit in f counts as a return.
func safeCall(ctx context.Context, clk clock.Clock, name string, timeout, gracePeriod time.Duration, ph panicHandler, f func(ctx context.Context)) error {
	r := &bodyRun{done: make(chan struct{})}

	go func() {
		defer close(r.done)
		defer func() {
			val := recover()
			if r.settle() && val != nil {
				ph(val)
			}
		}()

		bodyCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		f(bodyCtx)
	}()

	tm := clk.NewTimer(timeout + gracePeriod)
	defer tm.Stop()

	var err error
	select {
	case <-r.done:
	case <-tm.C():
		err = errors.Errorf("%s did not return on timeout", name)
	case <-ctx.Done():
		err = ctx.Err()
	}

	if r.settle() {
		return err
	}
	// The body settled first; wait for the panic handler to finish.
	<-r.done
	return nil
}
