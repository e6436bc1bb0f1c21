// Package compiler provides the public API for compiling IR to
// PostgreSQL SQL. It is a thin wrapper around the internal dispatch
// registry and codegen packages, mirroring the teacher's pkg/compiler
// (a type-alias front onto an internal package) — here the front is a
// pair of constructor/compile functions instead of bare aliases, since
// the internal surface is a registry plus a handful of top-level entry
// points rather than a single free function.
package compiler

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/relql/irsqlc/internal/codegen"
	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/dispatch"
	"github.com/relql/irsqlc/internal/dml"
	"github.com/relql/irsqlc/internal/expr"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pgast"
	"github.com/relql/irsqlc/internal/pgtypes"
	"github.com/relql/irsqlc/internal/relgen"
	"github.com/relql/irsqlc/internal/stmt"
)

// ArgMapEntry describes where one logical parameter ended up in the
// emitted SQL (§6's argmap: "logical param name -> {physical_index,
// logical_index, required}").
type ArgMapEntry struct {
	PhysicalIndex int
	LogicalIndex  int
	Required      bool
}

// CompileResult is §6's CompileResult: rendered SQL text, the AST it was
// printed from, the environment compiled under, the logical-to-physical
// parameter mapping, and (when DetachParams is set) the PG type name of
// each physical parameter in physical-index order.
type CompileResult struct {
	SQL            string
	AST            pgast.Node
	Env            *ctx.Environment
	ArgMap         map[string]ArgMapEntry
	DetachedParams []string
}

// NewRegistry builds a dispatch.Registry with every compiler stage wired
// in: expr, relgen, stmt, dml. Exposed so tests and cmd/irsqlc can build
// one registry and reuse it across many Compile calls — the registry
// holds no per-compilation state, only the handler tables. Per-compilation
// state (overlays, scope, aliases) lives on the *ctx.Environment instead,
// which Compile takes fresh for every call.
func NewRegistry(log *zap.Logger) *dispatch.Registry {
	reg := dispatch.New()
	expr.Register(reg)
	relgen.Register(reg)
	stmt.Register(reg)
	dml.Register(reg, log)
	return reg
}

// Compile lowers root (an *ir.Statement, or a bare *ir.Set when
// env.SingletonMode is set) under env using reg, renders the result to
// SQL text via codegen.Generate, and assembles §6's CompileResult.
// *ir.ConfigCommand is rejected: it is an opaque pass-through the
// out-of-scope session layer handles before anything reaches the SQL
// compiler.
func Compile(reg *dispatch.Registry, env *ctx.Environment, root any) (CompileResult, error) {
	if err := env.Validate(); err != nil {
		return CompileResult{}, err
	}
	env.ApplySingletonVersioning()

	rootRel := &pgast.SelectStmt{}
	c := ctx.NewContext(env, rootRel)

	var node pgast.Node
	var err error
	switch r := root.(type) {
	case *ir.Statement:
		node, err = reg.CompileStmt(c, r)
	case *ir.Set:
		if !env.SingletonMode {
			return CompileResult{}, fmt.Errorf("compiler: bare Set root requires singleton_mode")
		}
		var value pgast.Node
		value, err = reg.CompileSet(c, r)
		if err == nil {
			rootRel.TargetList = append(rootRel.TargetList, pgast.ResTarget{Name: "v", Val: value})
			node = rootRel
		}
	case *ir.ConfigCommand:
		return CompileResult{}, fmt.Errorf("compiler: ConfigCommand is handled by the session layer, not the SQL compiler")
	default:
		return CompileResult{}, fmt.Errorf("compiler: unsupported root type %T", root)
	}
	if err != nil {
		return CompileResult{}, ctx.Reraise(err)
	}

	opts := codegen.Options{NamedParamPrefix: env.NamedParamPrefix}
	rendered, err := codegen.Generate(node, opts)
	if err != nil {
		return CompileResult{}, err
	}

	out := CompileResult{SQL: rendered.SQL, AST: node, Env: env, ArgMap: buildArgMap(env.Params)}
	if env.DetachParams {
		out.DetachedParams = detachedParamTypes(env.Params)
	}
	return out, nil
}

func buildArgMap(params []ir.Param) map[string]ArgMapEntry {
	m := make(map[string]ArgMapEntry, len(params))
	for _, p := range params {
		m[p.Name] = ArgMapEntry{PhysicalIndex: p.Index + 1, LogicalIndex: p.Index, Required: p.Required}
	}
	return m
}

func detachedParamTypes(params []ir.Param) []string {
	out := make([]string, len(params))
	for _, p := range params {
		out[p.Index] = pgtypes.FromTypeRef(p.Type, false, false)
	}
	return out
}
