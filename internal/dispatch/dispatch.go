// Package dispatch routes an IR node to its compiler function. Per
// design note "Global dispatch tables (value-dispatch on IR variant)",
// the common case is a match-expression over the IR's own tagged union
// (ir.Kind / ir.StmtKind) living in each component package; this package
// holds the registry those packages fill: one handler per set kind,
// statement kind and expression type, plus a table of special-cased
// function names, mirroring the teacher's per-function dispatcher tables
// (list_objects_render_dispatcher.go).
package dispatch

import (
	"fmt"

	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pgast"
)

// SetCompiler compiles an ir.Set into a value (an expression, or — for
// set mode — installs path vars and returns the set's value aspect). It
// receives the Registry itself so a handler (e.g. relgen's aggregate
// lowering) can recurse into dispatch for nested sets without relgen and
// expr importing each other directly (design note "Global dispatch
// tables": the registry exists so mutually-recursive component packages
// never need a direct import edge between them).
type SetCompiler func(reg *Registry, c *ctx.Context, s *ir.Set) (pgast.Node, error)

// StmtCompiler compiles an ir.Statement into a top-level pgast statement.
type StmtCompiler func(reg *Registry, c *ctx.Context, st *ir.Statement) (pgast.Node, error)

// ExprCompiler compiles a scalar ir.Expr.
type ExprCompiler func(reg *Registry, c *ctx.Context, e ir.Expr) (pgast.Node, error)

// Registry holds the handlers registered by relgen/stmt/expr/dml, plus the
// pluggable special-function table (§4.5: "may be specially handled
// (enumerate, aggregates) in set mode"). It has no cast table.
type Registry struct {
	setHandlers  map[ir.Kind]SetCompiler
	stmtHandlers map[ir.StmtKind]StmtCompiler
	exprHandlers map[string]ExprCompiler // keyed by Go type name via fmt.Sprintf("%T", e)

	specialFuncs map[string]SetCompiler // std::enumerate, aggregates, ...
}

// New returns an empty Registry; relgen/stmt/expr populate it via
// RegisterSet/RegisterStmt/RegisterExprType/RegisterSpecialFunc from their
// own exported Register functions, which the caller invokes explicitly
// (see compiler.NewRegistry), avoiding an import cycle back into dispatch.
func New() *Registry {
	return &Registry{
		setHandlers:  map[ir.Kind]SetCompiler{},
		stmtHandlers: map[ir.StmtKind]StmtCompiler{},
		exprHandlers: map[string]ExprCompiler{},
		specialFuncs: map[string]SetCompiler{},
	}
}

func (r *Registry) RegisterSet(k ir.Kind, fn SetCompiler)      { r.setHandlers[k] = fn }
func (r *Registry) RegisterStmt(k ir.StmtKind, fn StmtCompiler) { r.stmtHandlers[k] = fn }
func (r *Registry) RegisterExprType(typeName string, fn ExprCompiler) {
	r.exprHandlers[typeName] = fn
}
func (r *Registry) RegisterSpecialFunc(name string, fn SetCompiler) { r.specialFuncs[name] = fn }

// CompileSet dispatches s to its registered handler. Every ir.Kind has
// exactly one registered handler; an absent one is a programmer error
// surfaced as ErrInternal (§4.4).
func (r *Registry) CompileSet(c *ctx.Context, s *ir.Set) (pgast.Node, error) {
	if fn, ok := r.specialFuncs[s.FuncName]; s.FuncName != "" && ok {
		return fn(r, c, s)
	}
	fn, ok := r.setHandlers[s.Kind]
	if !ok {
		return nil, ctx.NewInternal(fmt.Sprintf("dispatch: no handler registered for ir.Kind(%d)", s.Kind), nil)
	}
	return fn(r, c, s)
}

// CompileStmt dispatches a top-level statement.
func (r *Registry) CompileStmt(c *ctx.Context, st *ir.Statement) (pgast.Node, error) {
	fn, ok := r.stmtHandlers[st.Kind]
	if !ok {
		return nil, ctx.NewInternal(fmt.Sprintf("dispatch: no handler registered for ir.StmtKind(%d)", st.Kind), nil)
	}
	return fn(r, c, st)
}

// CompileExpr dispatches a scalar expression by its concrete Go type.
func (r *Registry) CompileExpr(c *ctx.Context, e ir.Expr) (pgast.Node, error) {
	key := fmt.Sprintf("%T", e)
	fn, ok := r.exprHandlers[key]
	if !ok {
		return nil, ctx.NewInternal(fmt.Sprintf("dispatch: no handler registered for %s", key), nil)
	}
	return fn(r, c, e)
}
