// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package reporting

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"go.chromium.org/stest/internal/testing"
)

// WriteTestList prints tests as a table of IDs, names, tags and
// preconditions.
func WriteTestList(w io.Writer, tests []*testing.TestCase) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Name", "Tags", "Precondition"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "ID", Align: text.AlignRight},
	})
	for _, tc := range tests {
		t.AppendRow(table.Row{tc.ID, tc.Name, strings.Join(tc.Tags.Sorted(), " "), tc.Precondition})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
