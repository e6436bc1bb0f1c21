// Package pgresolve is the thin boundary between the compiler and
// caller-submitted pass-through SQL (§1: parsing of pass-through SQL is
// an out-of-scope collaborator). It is deliberately minimal: parse with
// the real PostgreSQL grammar, re-deparse, and report whether the
// caller's SQL is even grammatical — enough for the compiler's own
// round-trip tests (§8 property 1) without pulling a query planner into
// this repo. Grounded on pg_lineage.ResolveProvenance in
// zoravur-postgres-spreadsheet-view (not the teacher), which drives the same
// parse/walk-by-JSON pattern; this resolver stops at parse+deparse since
// lineage resolution is out of scope here.
package pgresolve

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Resolver is the pass-through SQL collaborator boundary (§4 "domain
// stack wiring"): the rest of the compiler depends only on this
// interface, never on pg_query_go directly, so a fuller system could
// swap in a real catalog-aware resolver without touching callers.
type Resolver interface {
	// Validate reports a parse error if sql is not grammatical PostgreSQL.
	Validate(sql string) error
	// Canonicalize parses and re-deparses sql, normalizing whitespace and
	// quoting; used by round-trip tests to compare SQL structurally
	// rather than byte-for-byte.
	Canonicalize(sql string) (string, error)
	// StatementCount reports how many top-level statements sql contains.
	StatementCount(sql string) (int, error)
}

// pgQueryResolver is the concrete Resolver backed by pg_query_go's bundled
// PostgreSQL parser/deparser.
type pgQueryResolver struct{}

// New returns the real pg_query_go-backed Resolver.
func New() Resolver { return pgQueryResolver{} }

func (pgQueryResolver) Validate(sql string) error {
	_, err := pg_query.Parse(sql)
	if err != nil {
		return fmt.Errorf("pgresolve: %w", err)
	}
	return nil
}

func (pgQueryResolver) Canonicalize(sql string) (string, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return "", fmt.Errorf("pgresolve: parse: %w", err)
	}
	out, err := pg_query.Deparse(tree)
	if err != nil {
		return "", fmt.Errorf("pgresolve: deparse: %w", err)
	}
	return out, nil
}

func (pgQueryResolver) StatementCount(sql string) (int, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return 0, fmt.Errorf("pgresolve: %w", err)
	}
	return len(tree.Stmts), nil
}
