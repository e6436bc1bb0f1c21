package clauses_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relql/irsqlc/internal/clauses"
	"github.com/relql/irsqlc/internal/codegen"
	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/dispatch"
	"github.com/relql/irsqlc/internal/expr"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pgast"
	"github.com/relql/irsqlc/internal/relgen"
)

func newCtx() (*dispatch.Registry, *ctx.Context, *pgast.SelectStmt) {
	reg := dispatch.New()
	expr.Register(reg)
	relgen.Register(reg)
	env := ctx.NewEnvironment(nil)
	root := &pgast.SelectStmt{}
	return reg, ctx.NewContext(env, root), root
}

func boolType() ir.TypeRef { return ir.TypeRef{Kind: ir.TypeScalar, ID: "bool"} }

func TestCompileFilter_Singleton(t *testing.T) {
	reg, c, _ := newCtx()
	node, err := clauses.CompileFilter(reg, c, ir.ConstExpr{Value: true}, true)
	require.NoError(t, err)
	_, ok := node.(pgast.Boolean)
	require.True(t, ok)
}

func TestCompileFilter_NonSingletonWrapsExists(t *testing.T) {
	reg, c, _ := newCtx()
	node, err := clauses.CompileFilter(reg, c, ir.ConstExpr{Value: true}, false)
	require.NoError(t, err)
	sub, ok := node.(pgast.SubLink)
	require.True(t, ok)
	require.Equal(t, pgast.SubLinkExists, sub.Kind)
}

func TestCollapseQuery_InlinesSingleColumnNoWhere(t *testing.T) {
	inner := &pgast.SelectStmt{TargetList: []pgast.ResTarget{{Val: pgast.Numeric{Value: "1"}}}}
	sub := pgast.RangeSubselect{Subquery: inner}
	out := clauses.CollapseQuery(sub)
	require.Equal(t, pgast.Numeric{Value: "1"}, out)
}

func TestCollapseQuery_LeavesMultiColumnAlone(t *testing.T) {
	inner := &pgast.SelectStmt{TargetList: []pgast.ResTarget{
		{Val: pgast.Numeric{Value: "1"}},
		{Val: pgast.Numeric{Value: "2"}},
	}}
	sub := pgast.RangeSubselect{Subquery: inner}
	out := clauses.CollapseQuery(sub)
	require.Equal(t, sub, out)
}

func TestCollapseQuery_LeavesWhereClauseAlone(t *testing.T) {
	inner := &pgast.SelectStmt{
		TargetList:  []pgast.ResTarget{{Val: pgast.Numeric{Value: "1"}}},
		WhereClause: pgast.Boolean{Value: true},
	}
	sub := pgast.RangeSubselect{Subquery: inner}
	out := clauses.CollapseQuery(sub)
	require.Equal(t, sub, out)
}

func TestCompileOrderBy(t *testing.T) {
	reg, c, _ := newCtx()
	nullsFirst := true
	orders := []ir.OrderExpr{{Expr: ir.ConstExpr{Value: int64(1)}, Desc: true, NullsFirst: &nullsFirst}}
	sorts, err := clauses.CompileOrderBy(reg, c, orders)
	require.NoError(t, err)
	require.Len(t, sorts, 1)
	require.True(t, sorts[0].Descending)
	require.True(t, sorts[0].Explicit)
	require.True(t, sorts[0].NullsFirst)
}

func TestCompileLimitOffset_BothNil(t *testing.T) {
	reg, c, _ := newCtx()
	lim, off, err := clauses.CompileLimitOffset(reg, c, nil, nil)
	require.NoError(t, err)
	require.Nil(t, lim)
	require.Nil(t, off)
}

func TestCompileLimitOffset_ConstantSets(t *testing.T) {
	reg, c, _ := newCtx()
	intType := ir.TypeRef{Kind: ir.TypeScalar, ID: "int64"}
	limit := &ir.Set{Kind: ir.KindConstantSet, PathID: ir.PathId{Target: intType}, ConstRows: [][]ir.Expr{{ir.ConstExpr{Value: int64(5), Type: intType}}}}
	offset := &ir.Set{Kind: ir.KindConstantSet, PathID: ir.PathId{Target: intType}, ConstRows: [][]ir.Expr{{ir.ConstExpr{Value: int64(10), Type: intType}}}}
	lim, off, err := clauses.CompileLimitOffset(reg, c, limit, offset)
	require.NoError(t, err)
	require.NotNil(t, lim)
	require.NotNil(t, off)
}

func TestCompileIterator_NonDML(t *testing.T) {
	reg, c, _ := newCtx()
	intType := ir.TypeRef{Kind: ir.TypeScalar, ID: "int64"}
	iter := &ir.Set{Kind: ir.KindConstantSet, PathID: ir.PathId{Target: intType}, ConstRows: [][]ir.Expr{{ir.ConstExpr{Value: int64(1), Type: intType}}}}
	res, err := clauses.CompileIterator(reg, c, ir.PathId{Target: intType}, iter, false)
	require.NoError(t, err)
	require.Nil(t, res.CTE)
	require.Nil(t, res.RVar)
	require.NotNil(t, res.Value)
}

func TestCompileIterator_DML(t *testing.T) {
	reg, c, _ := newCtx()
	intType := ir.TypeRef{Kind: ir.TypeScalar, ID: "int64"}
	iter := &ir.Set{Kind: ir.KindConstantSet, PathID: ir.PathId{Target: intType}, ConstRows: [][]ir.Expr{{ir.ConstExpr{Value: int64(1), Type: intType}}}}
	res, err := clauses.CompileIterator(reg, c, ir.PathId{Target: intType}, iter, true)
	require.NoError(t, err)
	require.NotNil(t, res.CTE)
	require.NotNil(t, res.RVar)
	cte := res.CTE
	body, ok := cte.Query.(*pgast.SelectStmt)
	require.True(t, ok)
	require.Len(t, body.TargetList, 2)
}

func TestMaterializeAndUnpack_Multi(t *testing.T) {
	reg, c, _ := newCtx()
	intType := ir.TypeRef{Kind: ir.TypeScalar, ID: "int64"}
	s := &ir.Set{Kind: ir.KindConstantSet, PathID: ir.PathId{Target: intType}, ConstRows: [][]ir.Expr{{ir.ConstExpr{Value: int64(1), Type: intType}}}}
	binding, cte, err := clauses.Materialize(reg, c, s, true)
	require.NoError(t, err)
	require.True(t, binding.Multi)
	body, ok := cte.Query.(*pgast.SelectStmt)
	require.True(t, ok)
	require.Len(t, body.TargetList, 1)
	fc, ok := body.TargetList[0].Val.(pgast.FuncCall)
	require.True(t, ok)
	require.Equal(t, "array_agg", fc.Name)

	rv := clauses.UnpackBinding(c, binding, body.TargetList[0].Name)
	_, ok = rv.(pgast.RangeFunction)
	require.True(t, ok)
}

func TestMaterializeAndUnpack_Singleton(t *testing.T) {
	reg, c, _ := newCtx()
	intType := ir.TypeRef{Kind: ir.TypeScalar, ID: "int64"}
	s := &ir.Set{Kind: ir.KindConstantSet, PathID: ir.PathId{Target: intType}, ConstRows: [][]ir.Expr{{ir.ConstExpr{Value: int64(1), Type: intType}}}}
	binding, _, err := clauses.Materialize(reg, c, s, false)
	require.NoError(t, err)
	require.False(t, binding.Multi)

	rv := clauses.UnpackBinding(c, binding, "v")
	_, ok := rv.(pgast.RelRangeVar)
	require.True(t, ok)
}

func TestPushVolatilityGuard(t *testing.T) {
	_, c, _ := newCtx()
	guard := clauses.PushVolatilityGuard(c, "")
	defer guard()
	require.Len(t, c.Current().VolatilityRef, 1)
	require.Equal(t, "row_number() OVER ()", c.Current().VolatilityRef[0].Column)
}

func TestCollapseQuery_RenderFallsThroughUnmatched(t *testing.T) {
	_, _, root := newCtx()
	value := pgast.Numeric{Value: "42"}
	out := clauses.CollapseQuery(value)
	require.Equal(t, value, out)
	root.TargetList = append(root.TargetList, pgast.ResTarget{Name: "v", Val: out})
	res, err := codegen.Generate(root, codegen.Options{})
	require.NoError(t, err)
	require.Contains(t, res.SQL, "42")
}
