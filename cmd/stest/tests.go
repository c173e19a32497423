// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.chromium.org/stest/testing"
)

func init() {
	testing.AddTest(&testing.Test{
		Func:     SortNumeric,
		Desc:     "Sorts numbers by value",
		Keywords: "sort--numeric smoke",
	})
	testing.AddTest(&testing.Test{
		Func:     CountLines,
		Desc:     "Counts lines of a file",
		Keywords: "wc smoke",
	})
	testing.AddTest(&testing.Test{
		Func:     GrepNoMatch,
		Desc:     "Exits with status 1 when nothing matches",
		Keywords: "grep--status",
	})
	testing.AddTest(&testing.Test{
		Func:     Environment,
		Desc:     "Passes environment variables to commands",
		Keywords: "sh--env",
	})
	testing.AddTest(&testing.Test{
		Func:         GNUVersion,
		Desc:         "Reports the GNU version banner",
		Keywords:     "sort--version",
		Precondition: "gnu",
	})
}

func SortNumeric(ctx context.Context, s *testing.State) {
	s.Sh(ctx, `printf '10\n3\n2\n' | sort -n`)
	s.CheckOutput(1, "2\n3\n10\n")
}

func CountLines(ctx context.Context, s *testing.State) {
	if err := os.WriteFile(filepath.Join(s.Dir(), "input"), []byte("a\nb\nc\n"), 0644); err != nil {
		s.Fatal("Failed to write input: ", err)
	}
	s.Run(ctx, []string{"wc", "-l", "input"})
	s.CheckOutput(1, "3 input\n")
}

func GrepNoMatch(ctx context.Context, s *testing.State) {
	s.Run(ctx, []string{"grep", "needle", "/dev/null"}, testing.WithExpectedStatus(1))
	s.CheckOutput(1, "")
}

func Environment(ctx context.Context, s *testing.State) {
	s.Sh(ctx, `echo "$GREETING"`, testing.WithEnv(map[string]string{"GREETING": "hello stest"}))
	s.CheckOutput(1, "hello stest\n")
}

func GNUVersion(ctx context.Context, s *testing.State) {
	s.Run(ctx, []string{"sort", "--version"})
	if out := s.Output(1); !strings.Contains(out, "GNU") {
		s.Errorf("Version banner %q does not mention GNU", strings.SplitN(out, "\n", 2)[0])
	}
}
