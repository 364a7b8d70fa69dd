package engine

import (
	"strconv"
	"strings"

	"github.com/AaronLay10/SentientPlay/internal/value"
)

// Lookup resolves a name used in a condition expression.
type Lookup func(name string) (value.Value, bool)

// EvalCondition evaluates a branch expression. Supported forms:
//   - "" (always true)
//   - "<a> || <b>", "<a> && <b>" (&& binds tighter)
//   - "!<operand>"
//   - "<operand> <op> <operand>" with op one of == != > >= < <=
//   - "<operand>" (truthiness)
//
// An operand is a single- or double-quoted string, a number, true, false,
// null, or a name passed to lookup. Unknown names are null.
func EvalCondition(expr string, lookup Lookup) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true
	}

	if parts := splitOutsideQuotes(expr, "||"); len(parts) > 1 {
		for _, p := range parts {
			if EvalCondition(p, lookup) {
				return true
			}
		}
		return false
	}
	if parts := splitOutsideQuotes(expr, "&&"); len(parts) > 1 {
		for _, p := range parts {
			if !EvalCondition(p, lookup) {
				return false
			}
		}
		return true
	}

	if left, op, right, ok := splitComparison(expr); ok {
		return compare(operand(left, lookup), op, operand(right, lookup))
	}

	if strings.HasPrefix(expr, "!") {
		return !EvalCondition(expr[1:], lookup)
	}
	return value.Truthy(operand(expr, lookup))
}

func operand(s string, lookup Lookup) value.Value {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return value.String(s[1 : len(s)-1])
	}
	switch s {
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	case "null", "":
		return value.Null{}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return value.Number(f)
	}
	if lookup == nil {
		return value.Null{}
	}
	if v, ok := lookup(s); ok && v != nil {
		return v
	}
	return value.Null{}
}

func compare(a value.Value, op string, b value.Value) bool {
	switch op {
	case "==":
		return looseEqual(a, b)
	case "!=":
		return !looseEqual(a, b)
	}
	x, okA := value.AsNumber(a)
	y, okB := value.AsNumber(b)
	if !okA || !okB {
		return false
	}
	switch op {
	case ">":
		return x > y
	case ">=":
		return x >= y
	case "<":
		return x < y
	case "<=":
		return x <= y
	}
	return false
}

// looseEqual compares structurally, falling back to string forms when one
// side is a string literal, so score == '3' matches the number 3.
func looseEqual(a, b value.Value) bool {
	if value.Equal(a, b) {
		return true
	}
	_, sa := a.(value.String)
	_, sb := b.(value.String)
	if sa || sb {
		return value.ToString(a) == value.ToString(b)
	}
	return false
}

// splitOutsideQuotes splits s on sep, ignoring separators inside quotes.
func splitOutsideQuotes(s, sep string) []string {
	var parts []string
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case strings.HasPrefix(s[i:], sep):
			parts = append(parts, s[start:i])
			i += len(sep) - 1
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

var comparisonOps = []string{"==", "!=", ">=", "<=", ">", "<"}

// splitComparison finds the first comparison operator outside quotes.
func splitComparison(s string) (left, op, right string, ok bool) {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			continue
		}
		for _, candidate := range comparisonOps {
			if strings.HasPrefix(s[i:], candidate) {
				return strings.TrimSpace(s[:i]), candidate, strings.TrimSpace(s[i+len(candidate):]), true
			}
		}
	}
	return "", "", "", false
}
