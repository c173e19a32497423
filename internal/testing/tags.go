// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testing

import (
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// hierarchySep separates the levels of a hierarchical tag such as
// "format--json--pretty".
const hierarchySep = "--"

// Tag is a case-sensitive keyword attached to a test.
type Tag string

// TagSet is a set of tags. It satisfies expr.TagSet.
type TagSet map[Tag]struct{}

// NewTagSet returns a TagSet containing tags verbatim.
func NewTagSet(tags ...string) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s[Tag(t)] = struct{}{}
	}
	return s
}

// DeriveTags splits whitespace-separated keywords into a TagSet. Every
// hierarchical keyword also contributes each of its ancestors, so
// "a--b--c" yields "a--b--c", "a--b" and "a".
func DeriveTags(keywords string) TagSet {
	s := make(TagSet)
	for _, kw := range strings.Fields(keywords) {
		for {
			s[Tag(kw)] = struct{}{}
			i := strings.LastIndex(kw, hierarchySep)
			if i <= 0 {
				break
			}
			kw = kw[:i]
		}
	}
	return s
}

// Has reports whether tag is a member of s.
func (s TagSet) Has(tag string) bool {
	_, ok := s[Tag(tag)]
	return ok
}

// Sorted returns the members of s in lexical order.
func (s TagSet) Sorted() []string {
	tags := make([]string, 0, len(s))
	for _, t := range maps.Keys(s) {
		tags = append(tags, string(t))
	}
	slices.Sort(tags)
	return tags
}

// Features returns the tags describing a run configured with vars. Every
// var contributes "name=value"; a var whose value is neither empty nor "no"
// also contributes its bare name. Preconditions are evaluated against this
// set.
func Features(vars map[string]string) TagSet {
	s := make(TagSet)
	for k, v := range vars {
		s[Tag(k+"="+v)] = struct{}{}
		if v != "" && v != "no" {
			s[Tag(k)] = struct{}{}
		}
	}
	return s
}
