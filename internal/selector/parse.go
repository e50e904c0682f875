// Package selector implements the small boolean language used to pick the
// targets of a batch analysis, for example
//
//	kind == "adapter" AND NOT name matches "^mgmt-"
//	ports > 2 OR lids contains 7
//
// Expressions are parsed once into a tree and evaluated against any value
// implementing Fields.
package selector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/scanner"
)

// Op is a comparison operator.
type Op string

const (
	OpEq       Op = "=="
	OpNeq      Op = "!="
	OpGt       Op = ">"
	OpGte      Op = ">="
	OpLt       Op = "<"
	OpLte      Op = "<="
	OpContains Op = "contains"
	OpMatches  Op = "matches"
)

// Expr is a parsed selector.
type Expr interface {
	eval(f Fields) (bool, error)
	String() string
}

type andExpr struct{ l, r Expr }
type orExpr struct{ l, r Expr }
type notExpr struct{ x Expr }

// cmpExpr compares a named field with a literal.
type cmpExpr struct {
	field string
	op    Op
	lit   any
	re    *regexp.Regexp // set for OpMatches
}

func (e *andExpr) String() string { return "(" + e.l.String() + " AND " + e.r.String() + ")" }
func (e *orExpr) String() string  { return "(" + e.l.String() + " OR " + e.r.String() + ")" }
func (e *notExpr) String() string { return "NOT " + e.x.String() }
func (e *cmpExpr) String() string {
	if s, ok := e.lit.(string); ok {
		return fmt.Sprintf("%s %s %q", e.field, e.op, s)
	}
	return fmt.Sprintf("%s %s %v", e.field, e.op, e.lit)
}

type parser struct {
	s   scanner.Scanner
	tok rune
	err error
}

// Parse compiles src. Regular expressions used with matches are compiled here.
func Parse(src string) (Expr, error) {
	p := &parser{}
	p.s.Init(strings.NewReader(src))
	p.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanStrings | scanner.ScanRawStrings
	p.s.Error = func(s *scanner.Scanner, msg string) {
		if p.err == nil {
			p.err = fmt.Errorf("selector: %s at %s", msg, s.Position)
		}
	}
	p.next()

	x, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.tok != scanner.EOF {
		return nil, p.errorf("unexpected %q after expression", p.s.TokenText())
	}
	return x, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(src string) Expr {
	x, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return x
}

func (p *parser) next() { p.tok = p.s.Scan() }

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("selector: "+format+" at column %d", append(args, p.s.Position.Column)...)
}

func (p *parser) keyword(kw string) bool {
	return p.tok == scanner.Ident && strings.EqualFold(p.s.TokenText(), kw)
}

func (p *parser) parseOr() (Expr, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("OR") {
		p.next()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &orExpr{l, r}
	}
	return l, nil
}

func (p *parser) parseAnd() (Expr, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.keyword("AND") {
		p.next()
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = &andExpr{l, r}
	}
	return l, nil
}

func (p *parser) parseUnary() (Expr, error) {
	switch {
	case p.keyword("NOT"):
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notExpr{x}, nil
	case p.tok == '(':
		p.next()
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok != ')' {
			return nil, p.errorf("missing )")
		}
		p.next()
		return x, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	if p.tok != scanner.Ident {
		return nil, p.errorf("expected field name, got %q", p.s.TokenText())
	}
	field := strings.ToLower(p.s.TokenText())
	p.next()

	op, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}

	e := &cmpExpr{field: field, op: op, lit: lit}
	if op == OpMatches {
		pat, ok := lit.(string)
		if !ok {
			return nil, p.errorf("matches needs a string pattern")
		}
		if e.re, err = regexp.Compile(pat); err != nil {
			return nil, fmt.Errorf("selector: invalid pattern %q: %w", pat, err)
		}
	}
	return e, nil
}

func (p *parser) parseOp() (Op, error) {
	switch p.tok {
	case '=', '!', '<', '>':
		first := p.tok
		if p.s.Peek() == '=' {
			p.s.Next()
			p.next()
			return Op(string(first) + "="), nil
		}
		p.next()
		switch first {
		case '<':
			return OpLt, nil
		case '>':
			return OpGt, nil
		}
		return "", p.errorf("expected %c=", first)
	case scanner.Ident:
		switch {
		case p.keyword("contains"):
			p.next()
			return OpContains, nil
		case p.keyword("matches"):
			p.next()
			return OpMatches, nil
		}
	}
	return "", p.errorf("expected comparison operator, got %q", p.s.TokenText())
}

func (p *parser) parseLiteral() (any, error) {
	text := p.s.TokenText()
	switch p.tok {
	case scanner.String, scanner.RawString:
		p.next()
		s, err := strconv.Unquote(text)
		if err != nil {
			return nil, p.errorf("bad string %s", text)
		}
		return s, nil
	case scanner.Int:
		p.next()
		// Base 0 so GUID literals such as 0x0002c903... compare exactly.
		n, err := strconv.ParseUint(text, 0, 64)
		if err != nil {
			return nil, p.errorf("bad number %s", text)
		}
		return n, nil
	case scanner.Float:
		p.next()
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, p.errorf("bad number %s", text)
		}
		return f, nil
	case scanner.Ident:
		switch strings.ToLower(text) {
		case "true":
			p.next()
			return true, nil
		case "false":
			p.next()
			return false, nil
		}
	}
	return nil, p.errorf("expected literal, got %q", text)
}
