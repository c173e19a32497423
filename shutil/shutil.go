// Copyright 2021 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package shutil renders commands as shell command lines, so that a recorded
// invocation can be copied into a terminal and rerun.
package shutil

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"go.chromium.org/stest/errors"
)

const (
	// The character class \w is equivalent to [0-9A-Za-z_]. Leading equals sign is unsafe in zsh,
	// see http://zsh.sourceforge.net/Doc/Release/Expansion.html#g_t_0060_003d_0027-expansion.
	leadingSafeChars  = `-\w@%+:,./`
	trailingSafeChars = leadingSafeChars + "="
)

// safeRE matches an argument that can be literally included in a shell
// command line without requiring escaping.
var safeRE = regexp.MustCompile(fmt.Sprintf("^[%s][%s]*$", leadingSafeChars, trailingSafeChars))

// envNameRE matches a valid environment variable name.
var envNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Escape escapes a string so it can be safely included as an argument in a shell command line.
// The string is not modified if it can already be safely included.
func Escape(s string) string {
	if safeRE.MatchString(s) {
		return s
	}
	return "'" + strings.Replace(s, "'", `'"'"'`, -1) + "'"
}

// EscapeSlice escapes a slice of strings so each will be treated as a separate
// argument in the returned shell command line. See Escape for more information.
func EscapeSlice(args []string) string {
	escaped := make([]string, len(args))
	for i, arg := range args {
		escaped[i] = Escape(arg)
	}
	return strings.Join(escaped, " ")
}

// Assignments returns env as "NAME=value" shell assignments sorted by name,
// with values escaped. An error is returned if a name cannot be used as a
// shell variable.
func Assignments(env map[string]string) ([]string, error) {
	names := maps.Keys(env)
	slices.Sort(names)
	as := make([]string, len(names))
	for i, name := range names {
		if !envNameRE.MatchString(name) {
			return nil, errors.Errorf("invalid environment variable name %q", name)
		}
		v := env[name]
		if v == "" {
			as[i] = name + "="
			continue
		}
		as[i] = name + "=" + Escape(v)
	}
	return as, nil
}

// CommandLine formats a command line made of environment assignments, an
// optional prefix inserted verbatim (e.g. a placeholder for a debugger
// wrapper), and escaped args.
func CommandLine(env map[string]string, prefix string, args []string) (string, error) {
	parts, err := Assignments(env)
	if err != nil {
		return "", err
	}
	if prefix != "" {
		parts = append(parts, prefix)
	}
	if len(args) > 0 {
		parts = append(parts, EscapeSlice(args))
	}
	return strings.Join(parts, " "), nil
}
