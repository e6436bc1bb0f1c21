package stmt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relql/irsqlc/internal/codegen"
	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/dispatch"
	"github.com/relql/irsqlc/internal/expr"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pgast"
	"github.com/relql/irsqlc/internal/relgen"
	"github.com/relql/irsqlc/internal/stmt"
)

func newCtx() (*dispatch.Registry, *ctx.Context) {
	reg := dispatch.New()
	expr.Register(reg)
	relgen.Register(reg)
	stmt.Register(reg)
	env := ctx.NewEnvironment(nil)
	return reg, ctx.NewContext(env, &pgast.SelectStmt{})
}

func personType() ir.TypeRef { return ir.TypeRef{ID: "person", Name: "Person", Kind: ir.TypeObject} }

func TestCompileSelect_Native(t *testing.T) {
	reg, c := newCtx()
	root := &ir.Set{Kind: ir.KindRoot, PathID: ir.PathId{Target: personType()}}
	st := &ir.Statement{Kind: ir.StmtSelect, Result: root}
	node, err := reg.CompileStmt(c, st)
	require.NoError(t, err)
	res, err := codegen.Generate(node, codegen.Options{})
	require.NoError(t, err)
	require.Contains(t, res.SQL, "tab_person")
	require.NotContains(t, res.SQL, "jsonb_agg")
}

func TestCompileSelect_JSONWrapsInJsonbAgg(t *testing.T) {
	reg, c := newCtx()
	c.Env().OutputFormat = ctx.FormatJSON
	root := &ir.Set{Kind: ir.KindRoot, PathID: ir.PathId{Target: personType()}}
	st := &ir.Statement{Kind: ir.StmtSelect, Result: root}
	node, err := reg.CompileStmt(c, st)
	require.NoError(t, err)
	res, err := codegen.Generate(node, codegen.Options{})
	require.NoError(t, err)
	require.Contains(t, res.SQL, "jsonb_agg")
}

func TestCompileSelect_CardinalityOneSuppressesAgg(t *testing.T) {
	reg, c := newCtx()
	c.Env().OutputFormat = ctx.FormatJSON
	c.Env().ExpectedCardinalityOne = true
	root := &ir.Set{Kind: ir.KindRoot, PathID: ir.PathId{Target: personType()}}
	st := &ir.Statement{Kind: ir.StmtSelect, Result: root}
	node, err := reg.CompileStmt(c, st)
	require.NoError(t, err)
	res, err := codegen.Generate(node, codegen.Options{})
	require.NoError(t, err)
	require.NotContains(t, res.SQL, "jsonb_agg")
}

func TestCompileSelect_WithFilterAndLimit(t *testing.T) {
	reg, c := newCtx()
	root := &ir.Set{Kind: ir.KindRoot, PathID: ir.PathId{Target: personType()}}
	intType := ir.TypeRef{Kind: ir.TypeScalar, ID: "int64"}
	st := &ir.Statement{
		Kind:   ir.StmtSelect,
		Result: root,
		Filter: ir.ConstExpr{Value: true},
		Limit:  &ir.Set{Kind: ir.KindConstantSet, PathID: ir.PathId{Target: intType}, ConstRows: [][]ir.Expr{{ir.ConstExpr{Value: int64(5), Type: intType}}}},
	}
	node, err := reg.CompileStmt(c, st)
	require.NoError(t, err)
	res, err := codegen.Generate(node, codegen.Options{})
	require.NoError(t, err)
	require.Contains(t, res.SQL, "WHERE")
	require.Contains(t, res.SQL, "LIMIT")
}

func TestCompileGroup(t *testing.T) {
	reg, c := newCtx()
	strType := ir.TypeRef{Kind: ir.TypeScalar, ID: "str"}
	subject := &ir.Set{Kind: ir.KindConstantSet, PathID: ir.PathId{Target: strType}, ConstRows: [][]ir.Expr{{ir.ConstExpr{Value: "a", Type: strType}}}}
	result := &ir.Set{Kind: ir.KindConstantSet, PathID: ir.PathId{Target: strType}, ConstRows: [][]ir.Expr{{ir.ConstExpr{Value: "a", Type: strType}}}}
	st := &ir.Statement{
		Kind:    ir.StmtGroup,
		Subject: subject,
		Result:  result,
		OrderBy: []ir.OrderExpr{{Expr: ir.ConstExpr{Value: "a", Type: strType}}},
	}
	node, err := reg.CompileStmt(c, st)
	require.NoError(t, err)
	res, err := codegen.Generate(node, codegen.Options{})
	require.NoError(t, err)
	require.Contains(t, res.SQL, "GROUP BY")
	require.Contains(t, res.SQL, "grouping(")
}
