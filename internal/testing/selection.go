// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"go.chromium.org/stest/errors"
	"go.chromium.org/stest/internal/expr"
)

// IDFilter accepts test IDs from a set or an inclusive range.
type IDFilter struct {
	ids    map[int]struct{} // nil for ranges
	lo, hi int
}

// ParseIDFilter parses an ID filter. s is either a whitespace-separated list
// of IDs such as "2 3" or an inclusive range such as "2..3".
func ParseIDFilter(s string) (*IDFilter, error) {
	parseID := func(f string) (int, error) {
		id, err := strconv.Atoi(f)
		if err != nil || id < 1 {
			return 0, errors.Errorf("bad test ID %q in %q", f, s)
		}
		return id, nil
	}

	s = strings.TrimSpace(s)
	if lo, hi, ok := strings.Cut(s, ".."); ok {
		l, err := parseID(strings.TrimSpace(lo))
		if err != nil {
			return nil, err
		}
		h, err := parseID(strings.TrimSpace(hi))
		if err != nil {
			return nil, err
		}
		if l > h {
			return nil, errors.Errorf("empty test ID range %q", s)
		}
		return &IDFilter{lo: l, hi: h}, nil
	}

	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, errors.New("empty test ID list")
	}
	f := &IDFilter{ids: make(map[int]struct{})}
	for _, field := range fields {
		id, err := parseID(field)
		if err != nil {
			return nil, err
		}
		f.ids[id] = struct{}{}
	}
	return f, nil
}

// Has reports whether id is accepted by f.
func (f *IDFilter) Has(id int) bool {
	if f.ids == nil {
		return f.lo <= id && id <= f.hi
	}
	_, ok := f.ids[id]
	return ok
}

// String returns the canonical form of f.
func (f *IDFilter) String() string {
	if f.ids == nil {
		return fmt.Sprintf("%d..%d", f.lo, f.hi)
	}
	ids := maps.Keys(f.ids)
	slices.Sort(ids)
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = strconv.Itoa(id)
	}
	return strings.Join(strs, " ")
}

// SelectionArgs holds the raw selection options of a run. Empty fields are
// absent filters.
type SelectionArgs struct {
	// Name is a regular expression matched against test names. It is
	// unanchored, so "read" matches "io.ReadAll".
	Name string
	// IDs is an ID filter accepted by ParseIDFilter.
	IDs string
	// Keywords is a keyword query matched against test tags.
	Keywords string
}

// Selection decides which registered tests run. A test runs only if every
// present filter accepts it. A Selection without filters accepts every test.
type Selection struct {
	name     *regexp.Regexp
	ids      *IDFilter
	keywords *expr.Expr
}

// NewSelection compiles args. A malformed keyword query yields an error
// wrapping *expr.SyntaxError.
func NewSelection(args SelectionArgs) (*Selection, error) {
	var sel Selection
	if args.Name != "" {
		re, err := regexp.Compile(args.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "bad name filter %q", args.Name)
		}
		sel.name = re
	}
	if strings.TrimSpace(args.IDs) != "" {
		f, err := ParseIDFilter(args.IDs)
		if err != nil {
			return nil, err
		}
		sel.ids = f
	}
	if strings.TrimSpace(args.Keywords) != "" {
		e, err := expr.New(args.Keywords)
		if err != nil {
			return nil, errors.Wrap(err, "bad keyword query")
		}
		sel.keywords = e
	}
	return &sel, nil
}

// Matches reports whether t is accepted by every present filter.
func (s *Selection) Matches(t *TestCase) bool {
	if s.name != nil && !s.name.MatchString(t.Name) {
		return false
	}
	if s.ids != nil && !s.ids.Has(t.ID) {
		return false
	}
	if s.keywords != nil && !s.keywords.Eval(t.Tags) {
		return false
	}
	return true
}

// String describes the present filters for logs.
func (s *Selection) String() string {
	var parts []string
	if s.name != nil {
		parts = append(parts, fmt.Sprintf("name=%q", s.name.String()))
	}
	if s.ids != nil {
		parts = append(parts, fmt.Sprintf("select=%q", s.ids.String()))
	}
	if s.keywords != nil {
		parts = append(parts, fmt.Sprintf("keywords=%q", s.keywords.String()))
	}
	if len(parts) == 0 {
		return "all tests"
	}
	return strings.Join(parts, " ")
}
