package relctx_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relql/irsqlc/internal/codegen"
	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pgast"
	"github.com/relql/irsqlc/internal/relctx"
)

func personType() ir.TypeRef { return ir.TypeRef{ID: "person", Name: "Person", Kind: ir.TypeObject} }

// TestNewRootRVar_PlainWhenNoOverlay covers the common non-DML case: no
// overlay recorded for the type, so the root range is the bare table, not
// a wrapped subselect.
func TestNewRootRVar_PlainWhenNoOverlay(t *testing.T) {
	env := ctx.NewEnvironment(nil)
	c := ctx.NewContext(env, &pgast.SelectStmt{})
	rv := relctx.NewRootRVar(c, personType())
	_, ok := rv.(pgast.RelRangeVar)
	require.True(t, ok, "expected a bare table range, got %T", rv)
}

// TestNewRootRVar_ObservesInsertOverlay covers §3/§4.9.4, Testable
// Property 6: an INSERT recorded earlier in the same statement must be
// visible to a SELECT of the same type compiled afterward.
func TestNewRootRVar_ObservesInsertOverlay(t *testing.T) {
	env := ctx.NewEnvironment(nil)
	env.Overlays.RecordInsert(personType(), "ins_1", ir.PathId{Target: personType()})
	c := ctx.NewContext(env, &pgast.SelectStmt{})

	rv := relctx.NewRootRVar(c, personType())
	sub, ok := rv.(pgast.RangeSubselect)
	require.True(t, ok, "expected an overlay-wrapped subselect, got %T", rv)

	root := &pgast.SelectStmt{
		FromClause: []pgast.RangeVar{sub},
		TargetList: []pgast.ResTarget{{Name: "v", Val: pgast.Numeric{Value: "1"}}},
	}
	res, err := codegen.Generate(root, codegen.Options{})
	require.NoError(t, err)
	require.Contains(t, res.SQL, "tab_person")
	require.Contains(t, res.SQL, "UNION ALL")
	require.Contains(t, res.SQL, "ins_1")
}

// TestNewRootRVar_ExcludesDeleteOverlay covers the DELETE side of the
// same property: a DELETE recorded earlier excludes its rows from a
// later read via an anti-join, not a UNION.
func TestNewRootRVar_ExcludesDeleteOverlay(t *testing.T) {
	env := ctx.NewEnvironment(nil)
	env.Overlays.RecordDelete(personType(), "del_1", ir.PathId{Target: personType()})
	c := ctx.NewContext(env, &pgast.SelectStmt{})

	rv := relctx.NewRootRVar(c, personType())
	sub, ok := rv.(pgast.RangeSubselect)
	require.True(t, ok, "expected an overlay-wrapped subselect, got %T", rv)

	root := &pgast.SelectStmt{
		FromClause: []pgast.RangeVar{sub},
		TargetList: []pgast.ResTarget{{Name: "v", Val: pgast.Numeric{Value: "1"}}},
	}
	res, err := codegen.Generate(root, codegen.Options{})
	require.NoError(t, err)
	require.Contains(t, res.SQL, "tab_person")
	require.Contains(t, res.SQL, "NOT EXISTS")
	require.Contains(t, res.SQL, "del_1")
	require.NotContains(t, res.SQL, "UNION ALL")
}
