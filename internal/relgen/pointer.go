package relgen

import (
	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/dispatch"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pathctx"
	"github.com/relql/irsqlc/internal/pgast"
	"github.com/relql/irsqlc/internal/pgtypes"
	"github.com/relql/irsqlc/internal/relctx"
)

// lowerPointerStep implements §4.6.1's four strategies: inline primitive
// projection, the linkprop case (folded into the direct-rvar branch by
// projecting the property straight off the link rvar rather than the
// target), the direct pointer rvar (link table plus target table), and
// semi-join for a non-singleton pointer whose source isn't visible at
// this rel. Grounded on the teacher's process_set_as_path dispatch
// (original_source/edb/pgsql/compiler/relgen.py:663).
func lowerPointerStep(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	rptr := s.PathID.Rptr()
	if rptr == nil {
		return nil, ctx.NewInternal("relgen: pointer step set with no rptr", nil)
	}

	if needsSemiJoin(sub, s, rptr) {
		return lowerSemiJoinPointer(reg, c, s, sub, rptr)
	}

	sourceVal, err := reg.CompileSet(c, s.Source)
	if err != nil {
		return nil, err
	}

	if pgtypes.IsInlineRef(rptr) {
		return lowerInlinePointer(sub, s, rptr, sourceVal)
	}

	if rptr.Parent != nil {
		return lowerLinkProperty(c, sub, s, rptr, sourceVal)
	}

	return lowerDirectPointerRVar(c, sub, s, rptr, sourceVal)
}

// needsSemiJoin reports whether s should be lowered via a semi-join
// rather than a direct join of its source, per relctx.py:719's
// `semi_join` condition: the pointer may yield more than one row, its
// source is not already bonded at this rel, and it is neither a
// linkprop nor a primitive inline ref (those are cheap enough to just
// join directly, and a primitive inline ref has no separate rvar to
// semi-join against in the first place).
func needsSemiJoin(sub *pgast.SelectStmt, s *ir.Set, rptr *ir.PtrRef) bool {
	if rptr.Parent != nil || pgtypes.IsInlineRef(rptr) || pgtypes.IsPrimitiveRef(rptr) {
		return false
	}
	return rptr.Multi && !pathctx.IsInScope(sub, s.Source.PathID)
}

// lowerSemiJoinPointer restricts the target range to rows whose source
// column matches some row produced by compiling s.Source in isolation,
// instead of joining the source's own rvar into sub (§4.6.1, Testable
// Property 7). The source is compiled into its own subrel so its FROM
// entries never leak into sub — only its identity value does, via the
// `= ANY (subquery)` membership test relctx.py:676's semi_join builds
// with a plain IN.
func lowerSemiJoinPointer(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt, rptr *ir.PtrRef) (pgast.Node, error) {
	info, err := pgtypes.GetPtrrefStorageInfo(rptr)
	if err != nil {
		return nil, err
	}

	srcRel := &pgast.SelectStmt{}
	guard := c.EnterRel(srcRel)
	srcVal, err := reg.CompileSet(c, s.Source)
	guard()
	if err != nil {
		return nil, err
	}
	srcRel.TargetList = []pgast.ResTarget{{Val: srcVal}}

	linkRV, err := relctx.NewLinkRVar(c, rptr)
	if err != nil {
		return nil, err
	}
	relctx.IncludeRVar(sub, linkRV)
	linkAlias := relctx.RVarAlias(linkRV)

	sourceCol := pgast.ColumnRef{Fields: []string{linkAlias, info.SourceColumn}}
	sub.WhereClause = andWhere(sub.WhereClause, pgast.NewSubLink(pgast.SubLinkAny, sourceCol, "=", srcRel))

	targetIdentity := pgast.ColumnRef{Fields: []string{linkAlias, info.TargetColumn}}
	pathctx.PutPathVar(sub, s.PathID, pgast.AspectIdentity, targetIdentity, pgast.OutputVar{ColumnName: info.TargetColumn}, true)

	targetRV := relctx.NewTargetRVar(c, rptr)
	relctx.IncludeRVar(sub, targetRV)
	targetAlias := relctx.RVarAlias(targetRV)
	sub.WhereClause = andWhere(sub.WhereClause, eq(pgast.ColumnRef{Fields: []string{targetAlias, "id"}}, targetIdentity))
	sourceAspect := pgast.ColumnRef{Fields: []string{targetAlias, "id"}}
	pathctx.PutPathVar(sub, s.PathID, pgast.AspectSource, sourceAspect, pgast.OutputVar{ColumnName: "id"}, true)
	return targetIdentity, nil
}

func lowerInlinePointer(sub *pgast.SelectStmt, s *ir.Set, rptr *ir.PtrRef, sourceVal pgast.Node) (pgast.Node, error) {
	col, ok := sourceVal.(pgast.ColumnRef)
	if !ok {
		return nil, ctx.NewInternal("relgen: inline pointer source did not resolve to a column reference", nil)
	}
	valCol := pgast.ColumnRef{Fields: []string{col.Fields[0], rptr.Column}}
	isObject := !pgtypes.IsPrimitiveRef(rptr)
	pathctx.PutPathVar(sub, s.PathID, pgast.AspectValue, valCol, pgast.OutputVar{ColumnName: rptr.Column}, isObject)
	return valCol, nil
}

func lowerLinkProperty(c *ctx.Context, sub *pgast.SelectStmt, s *ir.Set, rptr *ir.PtrRef, sourceVal pgast.Node) (pgast.Node, error) {
	info, err := pgtypes.GetPtrrefStorageInfo(rptr.Parent)
	if err != nil {
		return nil, err
	}
	linkRV, err := relctx.NewLinkRVar(c, rptr.Parent)
	if err != nil {
		return nil, err
	}
	relctx.IncludeRVar(sub, linkRV)
	alias := relctx.RVarAlias(linkRV)
	sub.WhereClause = andWhere(sub.WhereClause, eq(pgast.ColumnRef{Fields: []string{alias, info.SourceColumn}}, sourceVal))
	valCol := pgast.ColumnRef{Fields: []string{alias, rptr.Column}}
	pathctx.PutPathVar(sub, s.PathID, pgast.AspectValue, valCol, pgast.OutputVar{ColumnName: rptr.Column}, false)
	return valCol, nil
}

func lowerDirectPointerRVar(c *ctx.Context, sub *pgast.SelectStmt, s *ir.Set, rptr *ir.PtrRef, sourceVal pgast.Node) (pgast.Node, error) {
	info, err := pgtypes.GetPtrrefStorageInfo(rptr)
	if err != nil {
		return nil, err
	}
	linkRV, err := relctx.NewLinkRVar(c, rptr)
	if err != nil {
		return nil, err
	}
	relctx.IncludeRVar(sub, linkRV)
	linkAlias := relctx.RVarAlias(linkRV)

	sub.WhereClause = andWhere(sub.WhereClause, eq(pgast.ColumnRef{Fields: []string{linkAlias, info.SourceColumn}}, sourceVal))
	targetIdentity := pgast.ColumnRef{Fields: []string{linkAlias, info.TargetColumn}}
	pathctx.PutPathVar(sub, s.PathID, pgast.AspectIdentity, targetIdentity, pgast.OutputVar{ColumnName: info.TargetColumn}, true)

	if pgtypes.IsPrimitiveRef(rptr) {
		return targetIdentity, nil
	}

	targetRV := relctx.NewTargetRVar(c, rptr)
	relctx.IncludeRVar(sub, targetRV)
	targetAlias := relctx.RVarAlias(targetRV)
	sub.WhereClause = andWhere(sub.WhereClause, eq(pgast.ColumnRef{Fields: []string{targetAlias, "id"}}, targetIdentity))
	sourceAspect := pgast.ColumnRef{Fields: []string{targetAlias, "id"}}
	pathctx.PutPathVar(sub, s.PathID, pgast.AspectSource, sourceAspect, pgast.OutputVar{ColumnName: "id"}, true)
	return targetIdentity, nil
}

func eq(lhs, rhs pgast.Node) pgast.Node {
	return pgast.NewExpr(pgast.ExprOpInfix, "=", lhs, rhs)
}

func andWhere(existing, next pgast.Node) pgast.Node {
	if existing == nil {
		return next
	}
	return pgast.NewExpr(pgast.ExprOpInfix, "AND", existing, next)
}
