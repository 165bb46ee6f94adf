package nanoql

import (
	"strings"
)

// Record is anything that can expose named string fields to the matcher.
// Multi-valued fields (tags) return one entry per value.
type Record interface {
	FieldValues(name string) []string
}

// fullTextFields are searched by bare terms and quoted strings.
var fullTextFields = []string{"message", "service", "level", "source", "resourceId", "ip"}

// Match evaluates the AST node against a Record and returns true if it matches.
func Match(node Node, row Record) bool {
	if node == nil {
		return true // No filter means match all
	}

	switch n := node.(type) {
	case BinaryExpr:
		return evalBinary(n, row)
	case MatchExpr:
		return evalMatch(n, row)
	case NotExpr:
		return !Match(n.Expr, row)
	default:
		return false
	}
}

func evalBinary(expr BinaryExpr, row Record) bool {
	switch expr.Op {
	case "AND":
		return Match(expr.Left, row) && Match(expr.Right, row)
	case "OR":
		return Match(expr.Left, row) || Match(expr.Right, row)
	default:
		return false
	}
}

func evalMatch(expr MatchExpr, row Record) bool {
	if expr.Key == "" {
		return matchFullText(expr.Value, row)
	}

	values := row.FieldValues(expr.Key)

	switch expr.Op {
	case "!=":
		return !anyValue(values, expr.Value, strings.EqualFold)
	case "CONTAINS":
		return anyValue(values, expr.Value, containsIgnoreCase)
	default:
		return anyValue(values, expr.Value, strings.EqualFold)
	}
}

func anyValue(values []string, want string, match func(string, string) bool) bool {
	for _, v := range values {
		if match(v, want) {
			return true
		}
	}
	return false
}

// containsIgnoreCase checks if haystack contains needle (case-insensitive).
func containsIgnoreCase(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func matchFullText(query string, row Record) bool {
	for _, f := range fullTextFields {
		if anyValue(row.FieldValues(f), query, containsIgnoreCase) {
			return true
		}
	}
	return false
}
