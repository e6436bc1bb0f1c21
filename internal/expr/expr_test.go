package expr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relql/irsqlc/internal/codegen"
	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/dispatch"
	"github.com/relql/irsqlc/internal/expr"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pgast"
)

func newCtx() (*dispatch.Registry, *ctx.Context) {
	reg := dispatch.New()
	expr.Register(reg)
	env := ctx.NewEnvironment(nil)
	return reg, ctx.NewContext(env, &pgast.SelectStmt{})
}

func render(t *testing.T, node pgast.Node) string {
	t.Helper()
	sel := &pgast.SelectStmt{TargetList: []pgast.ResTarget{{Name: "v", Val: node}}}
	res, err := codegen.Generate(sel, codegen.Options{})
	require.NoError(t, err)
	return res.SQL
}

func TestCompileParam_RequiredWrapsRaiseOnNull(t *testing.T) {
	reg, c := newCtx()
	node, err := expr.Compile(reg, c, ir.ParamExpr{Param: ir.Param{Name: "name", Index: 0, Type: ir.TypeRef{Kind: ir.TypeScalar, ID: "str"}, Required: true}})
	require.NoError(t, err)
	sql := render(t, node)
	require.Contains(t, sql, "edgedb.raise_on_null")
	require.Contains(t, sql, "$1")
}

func TestCompileParam_OptionalNoGuard(t *testing.T) {
	reg, c := newCtx()
	node, err := expr.Compile(reg, c, ir.ParamExpr{Param: ir.Param{Name: "name", Index: 0, Type: ir.TypeRef{Kind: ir.TypeScalar, ID: "str"}}})
	require.NoError(t, err)
	sql := render(t, node)
	require.NotContains(t, sql, "raise_on_null")
	require.Contains(t, sql, "$1")
}

func TestCompileConst_String(t *testing.T) {
	reg, c := newCtx()
	node, err := expr.Compile(reg, c, ir.ConstExpr{Value: "hi", Type: ir.TypeRef{Kind: ir.TypeScalar, ID: "str"}})
	require.NoError(t, err)
	sql := render(t, node)
	require.Contains(t, sql, "'hi'")
}

func TestCompileConst_Null(t *testing.T) {
	reg, c := newCtx()
	node, err := expr.Compile(reg, c, ir.ConstExpr{Value: nil})
	require.NoError(t, err)
	sql := render(t, node)
	require.Contains(t, sql, "NULL")
}

func TestCompileOperatorCall_Binary(t *testing.T) {
	reg, c := newCtx()
	op := ir.OperatorCall{
		Op:   "+",
		Args: []ir.Expr{ir.ConstExpr{Value: int64(1)}, ir.ConstExpr{Value: int64(2)}},
	}
	node, err := expr.Compile(reg, c, op)
	require.NoError(t, err)
	sql := render(t, node)
	require.Contains(t, sql, "1")
	require.Contains(t, sql, "+")
	require.Contains(t, sql, "2")
}

func TestCompileOperatorCall_Coalesce(t *testing.T) {
	reg, c := newCtx()
	op := ir.OperatorCall{
		Op:   "??",
		Args: []ir.Expr{ir.ConstExpr{Value: nil}, ir.ConstExpr{Value: "fallback", Type: ir.TypeRef{Kind: ir.TypeScalar, ID: "str"}}},
	}
	node, err := expr.Compile(reg, c, op)
	require.NoError(t, err)
	sql := render(t, node)
	require.Contains(t, sql, "COALESCE")
	require.Contains(t, sql, "'fallback'")
}

func TestCompileOperatorCall_ObjectEquality(t *testing.T) {
	reg, c := newCtx()
	objType := ir.TypeRef{Kind: ir.TypeObject, ID: "person"}
	op := ir.OperatorCall{
		Op:       "!=",
		Args:     []ir.Expr{ir.ConstExpr{Value: "a"}, ir.ConstExpr{Value: "b"}},
		Operands: []ir.TypeRef{objType, objType},
	}
	node, err := expr.Compile(reg, c, op)
	require.NoError(t, err)
	sql := render(t, node)
	require.Contains(t, sql, "<>")
}

func TestCompileOperatorCall_IfElse(t *testing.T) {
	reg, c := newCtx()
	op := ir.OperatorCall{
		Op: "IF_ELSE",
		Args: []ir.Expr{
			ir.ConstExpr{Value: "yes", Type: ir.TypeRef{Kind: ir.TypeScalar, ID: "str"}},
			ir.ConstExpr{Value: true},
			ir.ConstExpr{Value: "no", Type: ir.TypeRef{Kind: ir.TypeScalar, ID: "str"}},
		},
	}
	node, err := expr.Compile(reg, c, op)
	require.NoError(t, err)
	sql := render(t, node)
	require.Contains(t, sql, "CASE")
	require.Contains(t, sql, "WHEN")
	require.Contains(t, sql, "'yes'")
	require.Contains(t, sql, "'no'")
}

func TestCompileFunctionCall_NonStrictGuard(t *testing.T) {
	reg, c := newCtx()
	fc := ir.FunctionCall{
		Name: "len",
		Args: []ir.Expr{ir.ConstExpr{Value: nil}},
	}
	node, err := expr.Compile(reg, c, fc)
	require.NoError(t, err)
	sql := render(t, node)
	require.Contains(t, sql, "CASE")
	require.Contains(t, sql, "IS NOT NULL")
	require.Contains(t, sql, "len(")
}

func TestCompileFunctionCall_NullSafeNoGuard(t *testing.T) {
	reg, c := newCtx()
	fc := ir.FunctionCall{
		Name:     "len",
		Args:     []ir.Expr{ir.ConstExpr{Value: nil}},
		NullSafe: true,
	}
	node, err := expr.Compile(reg, c, fc)
	require.NoError(t, err)
	sql := render(t, node)
	require.NotContains(t, sql, "CASE")
}

func TestCompileFunctionCall_SingletonModeForbidsSetOf(t *testing.T) {
	reg, c := newCtx()
	c.Env().SingletonMode = true
	fc := ir.FunctionCall{Name: "some_agg", Aggregate: true}
	_, err := expr.Compile(reg, c, fc)
	require.Error(t, err)
}

func TestCompileTypeCast_Required(t *testing.T) {
	reg, c := newCtx()
	tc := ir.TypeCastExpr{
		Inner:    ir.ConstExpr{Value: "3", Type: ir.TypeRef{Kind: ir.TypeScalar, ID: "str"}},
		Target:   ir.TypeRef{Kind: ir.TypeScalar, ID: "int64"},
		Required: true,
	}
	node, err := expr.Compile(reg, c, tc)
	require.NoError(t, err)
	sql := render(t, node)
	require.Contains(t, sql, "edgedb.raise_on_null")
}

func TestCompileTypeCast_ViaFunc(t *testing.T) {
	reg, c := newCtx()
	tc := ir.TypeCastExpr{
		Inner:   ir.ConstExpr{Value: "3", Type: ir.TypeRef{Kind: ir.TypeScalar, ID: "str"}},
		Target:  ir.TypeRef{Kind: ir.TypeScalar, ID: "int64"},
		ViaFunc: "edgedb.str_to_int64",
	}
	node, err := expr.Compile(reg, c, tc)
	require.NoError(t, err)
	sql := render(t, node)
	require.Contains(t, sql, "edgedb.str_to_int64(")
}
