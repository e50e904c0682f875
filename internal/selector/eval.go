package selector

import (
	"fmt"
	"strings"
)

// Fields exposes named attributes to a selector. Values are strings, bools,
// uint64 or float64 numbers, or []uint64 lists.
type Fields interface {
	Field(name string) (any, bool)
}

// Map is a Fields backed by a plain map.
type Map map[string]any

// Field implements Fields.
func (m Map) Field(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Match evaluates x against f. A nil Expr matches everything.
func Match(x Expr, f Fields) (bool, error) {
	if x == nil {
		return true, nil
	}
	return x.eval(f)
}

func (e *andExpr) eval(f Fields) (bool, error) {
	ok, err := e.l.eval(f)
	if err != nil || !ok {
		return false, err
	}
	return e.r.eval(f)
}

func (e *orExpr) eval(f Fields) (bool, error) {
	ok, err := e.l.eval(f)
	if err != nil || ok {
		return ok, err
	}
	return e.r.eval(f)
}

func (e *notExpr) eval(f Fields) (bool, error) {
	ok, err := e.x.eval(f)
	return !ok, err
}

func (e *cmpExpr) eval(f Fields) (bool, error) {
	v, ok := f.Field(e.field)
	if !ok {
		return false, fmt.Errorf("selector: unknown field %q", e.field)
	}
	switch e.op {
	case OpEq:
		return equal(v, e.lit), nil
	case OpNeq:
		return !equal(v, e.lit), nil
	case OpGt, OpGte, OpLt, OpLte:
		c, err := order(v, e.lit)
		if err != nil {
			return false, fmt.Errorf("selector: %s %s: %w", e.field, e.op, err)
		}
		switch e.op {
		case OpGt:
			return c > 0, nil
		case OpGte:
			return c >= 0, nil
		case OpLt:
			return c < 0, nil
		}
		return c <= 0, nil
	case OpContains:
		return contains(v, e.lit)
	case OpMatches:
		s, ok := v.(string)
		if !ok {
			return false, fmt.Errorf("selector: matches on non-string field %q", e.field)
		}
		return e.re.MatchString(s), nil
	}
	return false, fmt.Errorf("selector: unknown operator %q", e.op)
}

func equal(a, b any) bool {
	if c, err := order(a, b); err == nil {
		return c == 0
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && strings.EqualFold(av, bv)
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

// order compares two numbers, exactly when both are integers.
func order(a, b any) (int, error) {
	au, aInt := a.(uint64)
	bu, bInt := b.(uint64)
	if aInt && bInt {
		switch {
		case au < bu:
			return -1, nil
		case au > bu:
			return 1, nil
		}
		return 0, nil
	}
	af, ok1 := toFloat(a)
	bf, ok2 := toFloat(b)
	if !ok1 || !ok2 {
		return 0, fmt.Errorf("need numbers, got %T and %T", a, b)
	}
	switch {
	case af < bf:
		return -1, nil
	case af > bf:
		return 1, nil
	}
	return 0, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func contains(v, lit any) (bool, error) {
	switch hay := v.(type) {
	case string:
		needle, ok := lit.(string)
		if !ok {
			needle = fmt.Sprint(lit)
		}
		return strings.Contains(hay, needle), nil
	case []uint64:
		n, ok := lit.(uint64)
		if !ok {
			return false, fmt.Errorf("selector: list membership needs an integer, got %T", lit)
		}
		for _, x := range hay {
			if x == n {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("selector: contains on %T", v)
}
