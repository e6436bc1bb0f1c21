// Package relgen is the heart of the pipeline (§4.6): for every IR Set it
// runs one shared outer algorithm — reuse-or-enter-subrel, optional
// wrapping, scope binding — then dispatches on the Set's Kind to a
// per-shape lowering. Grounded on the teacher's Plan→Blocks→Render split
// (internal/sqlgen/list_plan.go + list_blocks.go): "plan" decides shape
// and builds the skeleton relation, "blocks" fills it in per IR variant,
// "render" (codegen) turns it into text. relgen is plan+blocks; codegen
// is render.
package relgen

import (
	"fmt"

	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/dispatch"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pathctx"
	"github.com/relql/irsqlc/internal/pgast"
)

// Register wires every ir.Kind to Compile, the single shared entry point.
// Per-shape behavior lives in the switch inside lowerBody, not in
// separate registry entries, mirroring §4.6's "steps 1-6 are run for
// every Set; step 5 is the only part that branches on shape."
func Register(reg *dispatch.Registry) {
	kinds := []ir.Kind{
		ir.KindRoot, ir.KindPointerStep, ir.KindTypeIndirection, ir.KindSubquery, ir.KindUnion,
		ir.KindDistinct, ir.KindIfElse, ir.KindCoalesce, ir.KindTuple,
		ir.KindTupleIndirection, ir.KindTypeCast, ir.KindTypeIntrospection,
		ir.KindConstantSet, ir.KindArray, ir.KindExists, ir.KindMembership,
		ir.KindAggregate, ir.KindEnumerate, ir.KindFuncCallSet,
	}
	for _, k := range kinds {
		reg.RegisterSet(k, Compile)
	}
}

// Compile implements the outer algorithm of §4.6.
func Compile(reg *dispatch.Registry, c *ctx.Context, s *ir.Set) (pgast.Node, error) {
	outer := c.Current().Rel
	isObject := s.PathID.IsObjtypePath()

	// 1. Reuse an existing rvar for this path if the enclosing rel
	// already produced one (common for a path referenced more than once
	// within the same scope).
	if v, ok := pathctx.MaybeGetPathVar(outer, s.PathID, pgast.AspectValue, isObject); ok {
		return v, nil
	}

	// 2. Enter a fresh subrel.
	sub := &pgast.SelectStmt{}
	guard := c.EnterRel(sub)
	defer guard()

	optional := c.Current().ForceOptional
	if c.Env().Scope != nil {
		optional = optional || c.Env().Scope.IsOptional(s.PathID)
	}

	// 4. Bind child paths visible under this Set's scope node and mask
	// their descendants, so later lookups at this level resolve without
	// falling through to an ancestor rel.
	bindScope(c, s)

	// 5. Shape-specific lowering.
	value, err := lowerBody(reg, c, s, sub)
	if err != nil {
		return nil, ctx.Reraise(err)
	}

	// 3. Wrap for optionality once the body is known, unless the shape
	// already guarantees at-least-one-row (root range, constant set).
	if optional && needsOptionalWrap(s.Kind) {
		sub, value = wrapOptional(c, sub, value)
	}

	// 6. Install the produced value under this path's value aspect (and
	// identity, when still unset, for object paths) on the subrel, then fold the
	// subrel into the outer query as a lateral range, visible under the
	// alias the caller's path_rvar_map now points at.
	out := pgast.OutputVar{ColumnName: c.Env().Aliases.Fresh("v")}
	pathctx.PutPathVar(sub, s.PathID, pgast.AspectValue, value, out, isObject)
	sub.TargetList = append(sub.TargetList, pgast.ResTarget{Name: out.ColumnName, Val: value})

	alias := c.Env().Aliases.Fresh("q")
	rangeSub := pgast.RangeSubselect{Subquery: sub, Alias: pgast.Alias{Name: alias}, Lateral: true}
	outer.FromClause = append(outer.FromClause, rangeSub)

	colRef := pgast.ColumnRef{Base: pgast.Base{Nullable: optional}, Fields: []string{alias, out.ColumnName}}
	pathctx.PutPathVar(outer, s.PathID, pgast.AspectValue, colRef, out, isObject)
	pathctx.PutPathRVar(outer, s.PathID, pgast.AspectValue, rangeSub)

	return colRef, nil
}

// bindScope marks s's path (and, when the scope tree attaches a node to
// it, that node's direct children) as bonded at the current rel, masking
// deeper descendants so they resolve through this level rather than an
// ancestor (§4.6 step 4).
func bindScope(c *ctx.Context, s *ir.Set) {
	rel := c.Current().Rel
	pathctx.UpdateScope(rel, s.PathID)
	tree := c.Env().Scope
	if tree == nil || !tree.IsVisible(s.PathID) {
		return
	}
	var find func(n *ir.ScopeNode) *ir.ScopeNode
	find = func(n *ir.ScopeNode) *ir.ScopeNode {
		if n.PathID != nil && samePath(*n.PathID, s.PathID) {
			return n
		}
		for _, ch := range n.Children {
			if found := find(ch); found != nil {
				return found
			}
		}
		return nil
	}
	if n := find(tree.Root); n != nil {
		for _, child := range tree.PathChildren(n) {
			if child.PathID != nil {
				pathctx.UpdateScope(rel, *child.PathID)
			}
		}
	}
}

func samePath(a, b ir.PathId) bool {
	if len(a.Segments) != len(b.Segments) {
		return false
	}
	return pathctx.Key(a) == pathctx.Key(b)
}

// needsOptionalWrap reports whether shape k's own lowering may produce
// zero rows and therefore needs the null-padding wrapper; root ranges and
// constant sets already guarantee a row per spec.
func needsOptionalWrap(k ir.Kind) bool {
	switch k {
	case ir.KindRoot, ir.KindConstantSet:
		return false
	default:
		return true
	}
}

func lowerBody(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	switch s.Kind {
	case ir.KindRoot:
		return lowerRoot(c, s, sub)
	case ir.KindPointerStep:
		return lowerPointerStep(reg, c, s, sub)
	case ir.KindTypeIndirection:
		return lowerTypeIndirection(reg, c, s, sub)
	case ir.KindSubquery:
		return lowerSubquery(reg, c, s, sub)
	case ir.KindUnion:
		return lowerUnion(reg, c, s, sub)
	case ir.KindDistinct:
		return lowerDistinct(reg, c, s, sub)
	case ir.KindIfElse:
		return lowerIfElse(reg, c, s, sub)
	case ir.KindCoalesce:
		return lowerCoalesce(reg, c, s, sub)
	case ir.KindTuple:
		return lowerTuple(reg, c, s, sub)
	case ir.KindTupleIndirection:
		return lowerTupleIndirection(reg, c, s, sub)
	case ir.KindTypeCast:
		return lowerTypeCast(reg, c, s, sub)
	case ir.KindTypeIntrospection:
		return lowerTypeIntrospection(c, s, sub)
	case ir.KindConstantSet:
		return lowerConstantSet(reg, c, s, sub)
	case ir.KindArray:
		return lowerArray(reg, c, s, sub)
	case ir.KindExists:
		return lowerExists(reg, c, s, sub)
	case ir.KindMembership:
		return lowerMembership(reg, c, s, sub)
	case ir.KindAggregate, ir.KindEnumerate, ir.KindFuncCallSet:
		return lowerAggregate(reg, c, s, sub)
	default:
		return nil, ctx.NewInternal(fmt.Sprintf("relgen: unhandled ir.Kind(%d)", s.Kind), nil)
	}
}
