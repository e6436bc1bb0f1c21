package codegen_test

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/relql/irsqlc/internal/codegen"
	"github.com/relql/irsqlc/internal/pgast"
)

// TestGenerate_Golden snapshots the textual layout of a representative
// SELECT (projection, WHERE, ORDER BY, LIMIT) so that changes to the
// builder's line/indent conventions show up as a diff instead of silently
// drifting. Adapted from the teacher's golden-snapshot harness
// (internal/harness/golden.go), trimmed to goldie's bare Assert call since
// this package needs no scenario replay, just a byte-stable render.
func TestGenerate_Golden(t *testing.T) {
	nullsFirst := false
	stmt := &pgast.SelectStmt{
		TargetList: []pgast.ResTarget{
			{Name: "x", Val: pgast.Numeric{Value: "1"}},
			{Name: "y", Val: pgast.Numeric{Value: "2"}},
		},
		WhereClause: pgast.Boolean{Value: true},
		SortClause: []pgast.SortBy{
			{Node: pgast.Numeric{Value: "1"}, Descending: false, Explicit: true, NullsFirst: nullsFirst},
		},
		LimitCount: pgast.Numeric{Value: "10"},
	}

	res, err := codegen.Generate(stmt, codegen.Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "simple_select", []byte(res.SQL))
}
