package engine

import (
	"github.com/coffersTech/logvault/internal/model"
	"github.com/coffersTech/logvault/internal/pkg/nanoql"
)

// MatchNanoQL reports whether the record satisfies a parsed query.
// A nil node matches everything.
func MatchNanoQL(node nanoql.Node, rec *model.LogRecord) bool {
	if node == nil {
		return true
	}
	return nanoql.Match(node, rec)
}

// ParseNanoQL parses a query string into a NanoQL AST node.
// Returns nil if query is empty.
func ParseNanoQL(query string) (nanoql.Node, error) {
	if query == "" {
		return nil, nil
	}
	return nanoql.Parse(query)
}
