// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package command contains helpers shared by command-line entry points.
package command

import (
	"flag"
	"strings"

	"go.chromium.org/stest/errors"
)

// RepeatedFlag implements flag.Value around an assignment function that is
// executed each time the flag is supplied.
type RepeatedFlag func(val string) error

// Default implementation of flag.Value.String.
func (f *RepeatedFlag) String() string { return "" }

// Set implements flag.Value.Set.
func (f *RepeatedFlag) Set(val string) error { return (*f)(val) }

// VarValueYes is the value of a var supplied without "=value".
const VarValueYes = "yes"

// ParseVar parses a var flag value of the form "name=value" or "name". A
// bare name is set to VarValueYes.
func ParseVar(s string) (name, value string, err error) {
	name, value, ok := strings.Cut(s, "=")
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return "", "", errors.Errorf("bad var %q; want \"name=value\" or \"name\"", s)
	}
	if !ok {
		value = VarValueYes
	}
	return name, value, nil
}

// VarsFlag returns a repeatable flag that sets vars[name] for each
// "-<flag> name=value" or "-<flag> name" occurrence. Later occurrences
// override earlier ones.
func VarsFlag(vars map[string]string) flag.Value {
	f := RepeatedFlag(func(s string) error {
		name, value, err := ParseVar(s)
		if err != nil {
			return err
		}
		vars[name] = value
		return nil
	})
	return &f
}
