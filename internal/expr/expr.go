// Copyright 2017 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package expr provides support for evaluating keyword queries, boolean
// expressions over test tags.
package expr

import (
	"fmt"
	"strings"
)

// Expr holds a compiled keyword query that matches some combination of tags.
//
// Queries are supplied as strings consisting of the following tokens:
//
//   - Tags: any run of characters other than whitespace and parentheses
//   - Binary operators: and, or
//   - Unary operator: not
//   - Grouping: (, )
//
// The grammar, from the lowest to the highest precedence, is:
//
//	Or  := And ("or" Or)?
//	And := Not ("and" And)?
//	Not := ["not"] Var
//	Var := "(" Or ")" | tag
//
// There is no implicit conjunction: "a b" is rejected rather than read as
// "a and b".
//
// After an Expr object is created from a query, it can be asked if it is
// satisfied by a supplied set of tags.
type Expr struct {
	root node
}

// TagSet is a set of tags an Expr is evaluated against.
type TagSet interface {
	// Has reports whether tag is a member of the set.
	Has(tag string) bool
}

// New compiles keyword query s, returning an Expr object that can be used to
// test whether the query is satisfied by different sets of tags. Malformed
// queries result in a *SyntaxError.
func New(s string) (*Expr, error) {
	p := &parser{query: s, toks: tokenize(s)}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		if t.kind == tokRParen {
			return nil, p.errorf(t, "unbalanced parentheses: unexpected %q", ")")
		}
		return nil, p.errorf(t, "trailing tokens starting at %q", t.text)
	}
	return &Expr{root}, nil
}

// Eval returns true if the expression is satisfied by tags.
// It is pure: repeated calls with the same tags return the same result.
func (e *Expr) Eval(tags TagSet) bool {
	return e.root.eval(tags)
}

// Matches returns true if the expression is satisfied by tags.
func (e *Expr) Matches(tags []string) bool {
	set := make(sliceSet, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return e.Eval(set)
}

// String returns a fully parenthesized form of the expression.
func (e *Expr) String() string {
	return e.root.String()
}

type sliceSet map[string]struct{}

func (s sliceSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// SyntaxError is returned by New for malformed queries.
type SyntaxError struct {
	// Query is the query being compiled.
	Query string
	// Offset is the byte offset in Query where the problem was found.
	Offset int
	// Msg describes the problem.
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("bad keyword query %q: %s (at offset %d)", e.Query, e.Msg, e.Offset)
}

// node is a node of an expression tree.
type node interface {
	eval(tags TagSet) bool
	String() string
}

type varNode struct{ name string }

func (n *varNode) eval(tags TagSet) bool { return tags.Has(n.name) }
func (n *varNode) String() string        { return n.name }

type notNode struct{ x node }

func (n *notNode) eval(tags TagSet) bool { return !n.x.eval(tags) }
func (n *notNode) String() string        { return "not " + n.x.String() }

type andNode struct{ lhs, rhs node }

func (n *andNode) eval(tags TagSet) bool { return n.lhs.eval(tags) && n.rhs.eval(tags) }
func (n *andNode) String() string {
	return "(" + n.lhs.String() + " and " + n.rhs.String() + ")"
}

type orNode struct{ lhs, rhs node }

func (n *orNode) eval(tags TagSet) bool { return n.lhs.eval(tags) || n.rhs.eval(tags) }
func (n *orNode) String() string {
	return "(" + n.lhs.String() + " or " + n.rhs.String() + ")"
}

// tokKind is the kind of a token.
type tokKind int

const (
	tokEOF tokKind = iota
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
	tokWord
)

type token struct {
	kind tokKind
	text string
	pos  int
}

var keywords = map[string]tokKind{
	"and": tokAnd,
	"or":  tokOr,
	"not": tokNot,
}

// tokenize splits s into tokens. Words end at whitespace or a parenthesis, so
// a keyword is only recognized when it is followed by one of those or by the
// end of input; "android" is a single word.
func tokenize(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case isSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		default:
			start := i
			for i < len(s) && !isSpace(s[i]) && s[i] != '(' && s[i] != ')' {
				i++
			}
			w := s[start:i]
			kind, ok := keywords[w]
			if !ok {
				kind = tokWord
			}
			toks = append(toks, token{kind, w, start})
		}
	}
	return append(toks, token{tokEOF, "", len(s)})
}

func isSpace(c byte) bool {
	return strings.IndexByte(" \t\n\r\v\f", c) >= 0
}

// parser is a recursive-descent parser over a token list.
type parser struct {
	query string
	toks  []token
	pos   int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{Query: p.query, Offset: t.pos, Msg: fmt.Sprintf(format, args...)}
}

// parseOr parses: Or := And ("or" Or)?
func (p *parser) parseOr() (node, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokOr {
		return lhs, nil
	}
	p.next()
	rhs, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	return &orNode{lhs, rhs}, nil
}

// parseAnd parses: And := Not ("and" And)?
func (p *parser) parseAnd() (node, error) {
	lhs, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokAnd {
		return lhs, nil
	}
	p.next()
	rhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	return &andNode{lhs, rhs}, nil
}

// parseNot parses: Not := ["not"] Var
func (p *parser) parseNot() (node, error) {
	if p.peek().kind != tokNot {
		return p.parseVar()
	}
	p.next()
	x, err := p.parseVar()
	if err != nil {
		return nil, err
	}
	return &notNode{x}, nil
}

// parseVar parses: Var := "(" Or ")" | tag
func (p *parser) parseVar() (node, error) {
	t := p.next()
	switch t.kind {
	case tokWord:
		return &varNode{t.text}, nil
	case tokLParen:
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, p.errorf(c, "unbalanced parentheses: missing %q", ")")
		}
		return x, nil
	case tokEOF, tokRParen:
		return nil, p.errorf(t, "empty tag")
	default:
		return nil, p.errorf(t, "empty tag before operator %q", t.text)
	}
}
