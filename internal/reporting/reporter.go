// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package reporting prints test progress and accumulates outcome counters.
package reporting

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"go.chromium.org/stest/internal/exitcodes"
	"go.chromium.org/stest/internal/planner"
	"go.chromium.org/stest/internal/status"
	"go.chromium.org/stest/internal/testing"
)

// Counters holds the number of tests per outcome in a run.
type Counters struct {
	Passed  int
	Failed  int // includes timeouts
	Errored int
	Skipped int
}

// Entry is a test that did not pass.
type Entry struct {
	ID      int
	Name    string
	Outcome status.Classification
	// Dir is the test's directory.
	Dir string
}

// SummaryFunc prints a summary at the end of a run with failures.
type SummaryFunc func(w io.Writer, c Counters, entries []Entry)

// Reporter prints one progress line per test and counts outcomes.
// A Reporter is used by a single goroutine.
type Reporter struct {
	out      io.Writer
	summary  SummaryFunc
	counters Counters
	entries  []Entry
}

var _ planner.Reporter = (*Reporter)(nil)

// Option customizes a Reporter.
type Option func(r *Reporter)

// WithSummary sets the function printing the summary of a run with
// failures. A nil function disables the summary.
func WithSummary(f SummaryFunc) Option {
	return func(r *Reporter) { r.summary = f }
}

// New returns a Reporter writing to out. By default the summary is printed
// by TableSummary.
func New(out io.Writer, opts ...Option) *Reporter {
	r := &Reporter{out: out, summary: TableSummary}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Skipped prints a progress line for a test that did not run.
func (r *Reporter) Skipped(t *testing.TestCase, reason string) {
	r.counters.Skipped++
	fmt.Fprintf(r.out, "%d %s skipped (%s)\n", t.ID, t.Name, reason)
}

// Finished prints the progress line "<id> <name> <outcome>" and updates the
// counters.
func (r *Reporter) Finished(t *testing.TestCase, outcome status.Classification, dir string) {
	switch {
	case outcome == status.OK:
		r.counters.Passed++
	case outcome.Failed():
		r.counters.Failed++
	default:
		r.counters.Errored++
	}
	if outcome != status.OK {
		r.entries = append(r.entries, Entry{ID: t.ID, Name: t.Name, Outcome: outcome, Dir: dir})
	}
	fmt.Fprintf(r.out, "%d %s %v\n", t.ID, t.Name, outcome)
}

// Counters returns the counters of the current run.
func (r *Reporter) Counters() Counters {
	return r.counters
}

// Reset clears the counters for a new run.
func (r *Reporter) Reset() {
	r.counters = Counters{}
	r.entries = nil
}

// ExitCode returns the exit code reflecting the outcomes so far:
// exitcodes.TestFailure if any test failed or hit an error.
func (r *Reporter) ExitCode() int {
	if r.counters.Failed+r.counters.Errored > 0 {
		return exitcodes.TestFailure
	}
	return exitcodes.Success
}

// Finish prints the summary if any test failed or hit an error.
func (r *Reporter) Finish() {
	if r.ExitCode() == exitcodes.Success || r.summary == nil {
		return
	}
	r.summary(r.out, r.counters, append([]Entry(nil), r.entries...))
}

// TableSummary prints the tests that did not pass as a table along with
// their error reports, followed by the totals.
func TableSummary(w io.Writer, c Counters, entries []Entry) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Tests not passed")
	t.AppendHeader(table.Row{"ID", "Name", "Outcome", "Report"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "ID", Align: text.AlignRight},
		{Name: "Report", WidthMax: 100, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, e := range entries {
		t.AppendRow(table.Row{e.ID, e.Name, e.Outcome.String(), filepath.Join(e.Dir, planner.ErrorFile)})
	}
	t.AppendFooter(table.Row{"", "Total", totals(c), ""})
	style := table.StyleLight
	style.Format.Footer = text.FormatDefault
	t.SetStyle(style)
	t.Render()
}

func totals(c Counters) string {
	parts := []string{fmt.Sprintf("%d passed", c.Passed), fmt.Sprintf("%d failed", c.Failed), fmt.Sprintf("%d errors", c.Errored)}
	if c.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", c.Skipped))
	}
	return strings.Join(parts, ", ")
}
