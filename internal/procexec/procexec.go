// Copyright 2021 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package procexec is the process-spawn primitive shared by the command
// supervisor and the test executor.
//
// Every process started by this package leads its own process group so that
// it can be terminated together with its descendants.
package procexec

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sys/unix"

	"go.chromium.org/stest/errors"
)

// Spec describes a process to start.
type Spec struct {
	// Args holds the command line. Args[0] is looked up in PATH if it does
	// not contain a path separator.
	Args []string
	// Env contains environment variables merged on top of the current
	// environment.
	Env map[string]string
	// Dir is the working directory. If empty, the current directory is used.
	Dir string
	// Stdout and Stderr receive the output of the process. If nil, the
	// output is discarded.
	Stdout, Stderr io.Writer
}

// Process represents a running process started by Start.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{} // closed when cmd.Wait returns
	err  error         // error returned by cmd.Wait; valid after done is closed
}

// Start starts a process described by spec. A non-nil error means the
// process could not be started at all.
func Start(spec *Spec) (*Process, error) {
	if len(spec.Args) == 0 {
		return nil, errors.New("empty command line")
	}
	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Env = MergeEnv(os.Environ(), spec.Env)
	cmd.Dir = spec.Dir
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.err = cmd.Wait()
	}()
	return p, nil
}

// Pid returns the process ID, which is also the ID of its process group.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done returns a channel closed when the process has exited and its
// resources have been released.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has already exited. It never blocks.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the process exits and returns how it exited.
func (p *Process) Wait() *ExitStatus {
	<-p.done
	return newExitStatus(p.cmd.ProcessState, p.err)
}

// Signal sends sig to the process group of the process and to descendants
// that left the group.
func (p *Process) Signal(sig unix.Signal) error {
	if p.Exited() {
		return nil
	}
	pids := descendants(p.Pid())
	err := unix.Kill(-p.Pid(), sig)
	if err == unix.ESRCH {
		err = nil
	}
	for _, pid := range pids {
		// Processes still in the group were signaled above; ignore failures.
		unix.Kill(pid, sig)
	}
	return err
}

// Kill kills the process and its descendants with SIGKILL and waits for the
// process to exit.
func (p *Process) Kill() *ExitStatus {
	p.Signal(unix.SIGKILL)
	return p.Wait()
}

// Terminate sends SIGTERM to the process and its descendants. If the process
// does not exit within grace, it is killed with SIGKILL. Terminate returns
// after the process has exited.
func (p *Process) Terminate(clk clock.Clock, grace time.Duration) *ExitStatus {
	p.Signal(unix.SIGTERM)
	tm := clk.NewTimer(grace)
	defer tm.Stop()
	select {
	case <-p.done:
		return p.Wait()
	case <-tm.C():
		return p.Kill()
	}
}

// descendants returns the IDs of all live descendants of pid. Errors are
// ignored since the process table changes while it is being read.
func descendants(pid int) []int {
	procs, err := process.Processes()
	if err != nil {
		return nil
	}
	children := make(map[int32][]int32)
	for _, proc := range procs {
		ppid, err := proc.Ppid()
		if err != nil {
			continue
		}
		children[ppid] = append(children[ppid], proc.Pid)
	}

	var pids []int
	queue := []int32{int32(pid)}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range children[cur] {
			pids = append(pids, int(c))
			queue = append(queue, c)
		}
	}
	return pids
}

// ExitStatus describes how a process exited.
type ExitStatus struct {
	// Code is the exit code. It is -1 if the process was killed by a signal.
	Code int
	// Signaled is true if the process was killed by a signal.
	Signaled bool
	// Signal is the signal that killed the process, if Signaled is true.
	Signal unix.Signal
	// Err is a non-exit error reported while waiting, e.g. an I/O failure
	// while copying output.
	Err error
}

func newExitStatus(ps *os.ProcessState, err error) *ExitStatus {
	st := &ExitStatus{Code: -1}
	if ps == nil {
		st.Err = err
		return st
	}
	if _, ok := err.(*exec.ExitError); !ok {
		st.Err = err
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		st.Signaled = true
		st.Signal = unix.Signal(ws.Signal())
		return st
	}
	st.Code = ps.ExitCode()
	return st
}

// String describes the exit status, e.g. "exit status 1" or
// "killed by signal SIGSEGV".
func (s *ExitStatus) String() string {
	if s.Signaled {
		name := unix.SignalName(s.Signal)
		if name == "" {
			name = fmt.Sprintf("signal %d", int(s.Signal))
		}
		return "killed by signal " + name
	}
	return fmt.Sprintf("exit status %d", s.Code)
}

// MergeEnv returns base, a list of "key=value" pairs, with overrides merged
// on top. Overridden keys keep their position in base; new keys are
// appended in sorted order.
func MergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	merged := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]struct{})
	for _, kv := range base {
		k := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k = kv[:i]
		}
		if v, ok := overrides[k]; ok {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			merged = append(merged, k+"="+v)
			continue
		}
		merged = append(merged, kv)
	}
	keys := maps.Keys(overrides)
	slices.Sort(keys)
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		merged = append(merged, k+"="+overrides[k])
	}
	return merged
}
