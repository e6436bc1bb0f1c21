package dml_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relql/irsqlc/internal/codegen"
	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/dispatch"
	"github.com/relql/irsqlc/internal/dml"
	"github.com/relql/irsqlc/internal/expr"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pgast"
	"github.com/relql/irsqlc/internal/relgen"
)

func personType() ir.TypeRef { return ir.TypeRef{ID: "person", Name: "Person", Kind: ir.TypeObject} }
func strType() ir.TypeRef    { return ir.TypeRef{Kind: ir.TypeScalar, ID: "str"} }

func newCtx() (*dispatch.Registry, *ctx.Context) {
	reg := dispatch.New()
	expr.Register(reg)
	relgen.Register(reg)
	dml.Register(reg, zap.NewNop())
	env := ctx.NewEnvironment(nil)
	return reg, ctx.NewContext(env, &pgast.SelectStmt{})
}

func nameElement() ir.ShapeElement {
	return ir.ShapeElement{
		Name: "name",
		Ptr:  &ir.PtrRef{Name: "name", Storage: ir.StorageInlineColumn, Column: "name", Target: strType()},
		Set:  &ir.Set{Kind: ir.KindConstantSet, PathID: ir.PathId{Target: strType()}, ConstRows: [][]ir.Expr{{ir.ConstExpr{Value: "alice", Type: strType()}}}},
	}
}

func friendsElement() ir.ShapeElement {
	return ir.ShapeElement{
		Name: "friends",
		Ptr:  &ir.PtrRef{Name: "friends", Storage: ir.StorageLinkTable, LinkTable: "person_friends", Target: personType(), Multi: true},
		Set:  &ir.Set{Kind: ir.KindRoot, PathID: ir.PathId{Target: personType()}},
	}
}

func TestCompileInsert_InlineColumnOnly(t *testing.T) {
	reg, c := newCtx()
	st := &ir.Statement{
		Kind:       ir.StmtInsert,
		TargetType: personType(),
		Shape:      &ir.Shape{Elements: []ir.ShapeElement{nameElement()}},
		Result:     &ir.Set{PathID: ir.PathId{Target: personType()}},
	}
	node, err := reg.CompileStmt(c, st)
	require.NoError(t, err)
	res, err := codegen.Generate(node, codegen.Options{})
	require.NoError(t, err)
	require.Contains(t, res.SQL, "INSERT INTO tab_person")
	require.Contains(t, res.SQL, "'alice'")
	require.Contains(t, res.SQL, "uuid_generate_v4")

	entries := c.Env().Overlays.For(ctx.OverlayKey{TypeID: "person"})
	require.Len(t, entries, 1)
	require.Equal(t, ctx.OverlayUnion, entries[0].Op)
}

func TestCompileInsert_MultiLinkProducesUpsertCTE(t *testing.T) {
	reg, c := newCtx()
	st := &ir.Statement{
		Kind:       ir.StmtInsert,
		TargetType: personType(),
		Shape:      &ir.Shape{Elements: []ir.ShapeElement{nameElement(), friendsElement()}},
		Result:     &ir.Set{PathID: ir.PathId{Target: personType()}},
	}
	node, err := reg.CompileStmt(c, st)
	require.NoError(t, err)
	res, err := codegen.Generate(node, codegen.Options{})
	require.NoError(t, err)
	require.Contains(t, res.SQL, "INSERT INTO person_friends")
	require.Contains(t, res.SQL, "ON CONFLICT")
	require.Contains(t, res.SQL, "DO UPDATE")
}

func TestCompileInsert_AssignmentErrorAggregates(t *testing.T) {
	reg, c := newCtx()
	badElement := ir.ShapeElement{
		Name: "broken",
		Ptr:  &ir.PtrRef{Name: "broken", Storage: ir.StorageInlineColumn, Column: "broken", Target: strType()},
	}
	st := &ir.Statement{
		Kind:       ir.StmtInsert,
		TargetType: personType(),
		Shape:      &ir.Shape{Elements: []ir.ShapeElement{badElement}},
		Result:     &ir.Set{PathID: ir.PathId{Target: personType()}},
	}
	_, err := reg.CompileStmt(c, st)
	require.Error(t, err)
}

func TestCompileUpdate_InlineColumnAndRange(t *testing.T) {
	reg, c := newCtx()
	st := &ir.Statement{
		Kind:       ir.StmtUpdate,
		TargetType: personType(),
		Subject:    &ir.Set{Kind: ir.KindRoot, PathID: ir.PathId{Target: personType()}},
		Shape:      &ir.Shape{Elements: []ir.ShapeElement{nameElement()}},
		Result:     &ir.Set{PathID: ir.PathId{Target: personType()}},
	}
	node, err := reg.CompileStmt(c, st)
	require.NoError(t, err)
	res, err := codegen.Generate(node, codegen.Options{})
	require.NoError(t, err)
	require.Contains(t, res.SQL, "UPDATE tab_person")
	require.Contains(t, res.SQL, "'alice'")

	entries := c.Env().Overlays.For(ctx.OverlayKey{TypeID: "person"})
	require.Len(t, entries, 1)
	require.Equal(t, ctx.OverlayUnion, entries[0].Op)
}

func TestCompileUpdate_MultiLinkUnlinkRelinkPair(t *testing.T) {
	reg, c := newCtx()
	st := &ir.Statement{
		Kind:       ir.StmtUpdate,
		TargetType: personType(),
		Subject:    &ir.Set{Kind: ir.KindRoot, PathID: ir.PathId{Target: personType()}},
		Shape:      &ir.Shape{Elements: []ir.ShapeElement{friendsElement()}},
		Result:     &ir.Set{PathID: ir.PathId{Target: personType()}},
	}
	node, err := reg.CompileStmt(c, st)
	require.NoError(t, err)
	res, err := codegen.Generate(node, codegen.Options{})
	require.NoError(t, err)
	require.Contains(t, res.SQL, "DELETE FROM person_friends")
	require.Contains(t, res.SQL, "INSERT INTO person_friends")
	require.Contains(t, res.SQL, "ON CONFLICT")
}

func TestCompileDelete_RecordsExceptOverlay(t *testing.T) {
	reg, c := newCtx()
	st := &ir.Statement{
		Kind:       ir.StmtDelete,
		TargetType: personType(),
		Subject:    &ir.Set{Kind: ir.KindRoot, PathID: ir.PathId{Target: personType()}},
		Result:     &ir.Set{PathID: ir.PathId{Target: personType()}},
	}
	node, err := reg.CompileStmt(c, st)
	require.NoError(t, err)
	res, err := codegen.Generate(node, codegen.Options{})
	require.NoError(t, err)
	require.Contains(t, res.SQL, "DELETE FROM tab_person")

	entries := c.Env().Overlays.For(ctx.OverlayKey{TypeID: "person"})
	require.Len(t, entries, 1)
	require.Equal(t, ctx.OverlayExcept, entries[0].Op)
}

func TestCompileCheckCTE(t *testing.T) {
	cte, guard := dml.CompileCheckCTE("chk_1", pgast.Boolean{Value: true}, 0)
	require.Equal(t, "chk_1", cte.Name)
	require.NotNil(t, guard)

	root := &pgast.SelectStmt{
		CTEs:       []pgast.CommonTableExpr{cte},
		TargetList: []pgast.ResTarget{{Name: "v", Val: pgast.Numeric{Value: "1"}}},
		WhereClause: guard,
	}
	res, err := codegen.Generate(root, codegen.Options{})
	require.NoError(t, err)
	require.Contains(t, res.SQL, "chk_1")
	require.Contains(t, res.SQL, "_dml_dummy")
}
