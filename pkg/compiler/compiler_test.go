package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/pkg/compiler"
)

func personType() ir.TypeRef {
	return ir.TypeRef{ID: "person", Name: "Person", Kind: ir.TypeObject}
}

func newEnv(rootPath ir.PathId) *ctx.Environment {
	env := ctx.NewEnvironment(nil)
	env.Scope = ir.NewScopeTree(&ir.ScopeNode{PathID: &rootPath})
	return env
}

func TestCompile_SelectRoot(t *testing.T) {
	root := &ir.Set{Kind: ir.KindRoot, PathID: ir.PathId{Target: personType()}}
	st := &ir.Statement{Kind: ir.StmtSelect, Result: root}
	env := newEnv(root.PathID)

	reg := compiler.NewRegistry(nil)
	res, err := compiler.Compile(reg, env, st)
	require.NoError(t, err)
	require.Contains(t, res.SQL, "FROM tab_person")
}

func TestCompile_SelectRootJSON(t *testing.T) {
	root := &ir.Set{Kind: ir.KindRoot, PathID: ir.PathId{Target: personType()}}
	st := &ir.Statement{Kind: ir.StmtSelect, Result: root}
	env := newEnv(root.PathID)
	env.OutputFormat = ctx.FormatJSON

	reg := compiler.NewRegistry(nil)
	res, err := compiler.Compile(reg, env, st)
	require.NoError(t, err)
	require.Contains(t, res.SQL, "jsonb_agg")
	require.Contains(t, res.SQL, "COALESCE")
}

func TestCompile_ConfigCommandRejected(t *testing.T) {
	env := ctx.NewEnvironment(nil)
	reg := compiler.NewRegistry(nil)
	_, err := compiler.Compile(reg, env, &ir.ConfigCommand{Name: "set_session_idle_timeout"})
	require.Error(t, err)
}

func TestCompile_ArgMapLogicalPhysical(t *testing.T) {
	root := &ir.Set{Kind: ir.KindRoot, PathID: ir.PathId{Target: personType()}}
	st := &ir.Statement{
		Kind:   ir.StmtSelect,
		Result: root,
		Params: []ir.Param{{Name: "name", Index: 0, Type: ir.TypeRef{Kind: ir.TypeScalar, ID: "str"}, Required: true}},
	}
	env := newEnv(root.PathID)
	env.Params = st.Params

	reg := compiler.NewRegistry(nil)
	res, err := compiler.Compile(reg, env, st)
	require.NoError(t, err)
	require.Equal(t, compiler.ArgMapEntry{PhysicalIndex: 1, LogicalIndex: 0, Required: true}, res.ArgMap["name"])
}
