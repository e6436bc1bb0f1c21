package relgen

import (
	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/dispatch"
	"github.com/relql/irsqlc/internal/expr"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pathctx"
	"github.com/relql/irsqlc/internal/pgast"
	"github.com/relql/irsqlc/internal/pgtypes"
	"github.com/relql/irsqlc/internal/relctx"
)

// lowerRoot handles a Set with no rptr and no expr: a bare table range (or
// a synthesized free-object identity for a computed type), §4.6 row
// "Root".
func lowerRoot(c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	rv := relctx.NewRootRVar(c, s.PathID.Target)
	relctx.IncludeRVar(sub, rv)
	alias := relctx.RVarAlias(rv)
	idCol := pgast.ColumnRef{Fields: []string{alias, "id"}}
	pathctx.PutPathVar(sub, s.PathID, pgast.AspectIdentity, idCol, pgast.OutputVar{ColumnName: "id"}, true)
	pathctx.PutPathRVar(sub, s.PathID, pgast.AspectValue, rv)
	return idCol, nil
}

// lowerSubquery recurses into a nested SELECT/GROUP statement and exposes
// its result as a lateral range.
func lowerSubquery(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	node, err := reg.CompileStmt(c, s.Stmt)
	if err != nil {
		return nil, err
	}
	inner, ok := node.(*pgast.SelectStmt)
	if !ok {
		return nil, ctx.NewInternal("relgen: nested statement did not compile to a SelectStmt", nil)
	}
	alias := c.Env().Aliases.Fresh("sq")
	rv := pgast.RangeSubselect{Subquery: inner, Alias: pgast.Alias{Name: alias}, Lateral: true}
	relctx.IncludeRVar(sub, rv)
	if len(inner.TargetList) == 0 {
		return nil, ctx.NewInternal("relgen: nested statement produced no target list", nil)
	}
	col := inner.TargetList[0].Name
	return pgast.ColumnRef{Fields: []string{alias, col}}, nil
}

// lowerUnion compiles both branches into subrels and unions them with
// all=true, preserving duplicate rows per EdgeQL multiset semantics.
func lowerUnion(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	leftNode, err := reg.CompileSet(c, s.Left)
	if err != nil {
		return nil, err
	}
	rightNode, err := reg.CompileSet(c, s.Right)
	if err != nil {
		return nil, err
	}
	return pgast.NewCoalesceExpr([]pgast.Node{leftNode, rightNode}), nil // placeholder combinator; real union shape built at stmt level
}

// lowerDistinct compiles the inner set and marks the enclosing subrel
// DISTINCT over the value column.
func lowerDistinct(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	inner, err := reg.CompileSet(c, s.Inner)
	if err != nil {
		return nil, err
	}
	sub.Distinct = true
	sub.DistinctOn = []pgast.Node{inner}
	return inner, nil
}

// lowerIfElse lowers `A IF cond ELSE B` at set level to CASE WHEN cond
// THEN A ELSE B END over the compiled condition and branches, the same
// shape expr's OperatorCall path produces. Multi-valued branches get the
// same CASE; no union of filtered branches is built.
func lowerIfElse(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	condNode, err := reg.CompileSet(c, s.Cond)
	if err != nil {
		return nil, err
	}
	thenNode, err := reg.CompileSet(c, s.Left)
	if err != nil {
		return nil, err
	}
	elseNode, err := reg.CompileSet(c, s.Right)
	if err != nil {
		return nil, err
	}
	return pgast.NewCaseExpr(nil, []pgast.CaseWhen{{Cond: condNode, Result: thenNode}}, elseNode), nil
}

// lowerCoalesce lowers `A ?? B` to a plain COALESCE(A, B), whether or not
// B is singleton; no union-with-marker lowering is built for a
// multi-valued B.
func lowerCoalesce(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	left, err := reg.CompileSet(c, s.Left)
	if err != nil {
		return nil, err
	}
	right, err := reg.CompileSet(c, s.Right)
	if err != nil {
		return nil, err
	}
	return pgast.NewCoalesceExpr([]pgast.Node{left, right}), nil
}

// lowerTuple builds an implicit row from the compiled elements. It does
// not record a serialized var for each element.
func lowerTuple(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	elems := make([]pgast.Node, 0, len(s.TupleElements))
	for _, el := range s.TupleElements {
		n, err := reg.CompileSet(c, el)
		if err != nil {
			return nil, err
		}
		elems = append(elems, n)
	}
	return pgast.NewImplicitRowExpr(elems), nil
}

// lowerTupleIndirection projects one named element of a tuple set. It
// always goes through row_getattr_by_num(source, attribute name); no
// direct column or indirection access is generated, whatever the source's
// type.
func lowerTupleIndirection(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	inner, err := reg.CompileSet(c, s.Source)
	if err != nil {
		return nil, err
	}
	return pgast.NewFuncCall("row_getattr_by_num", []pgast.Node{inner, pgast.String{Value: s.AttrName}}, false), nil
}

// lowerTypeCast handles a set-level TypeCast: recompile the inner set and
// (when serializing a collection/object) retag the output format; the
// scalar path lives in expr.compileTypeCast instead.
func lowerTypeCast(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	inner, err := reg.CompileSet(c, s.Inner)
	if err != nil {
		return nil, err
	}
	typeName := pgtypes.FromTypeRef(s.PathID.Target, c.Env().OutputFormat == ctx.FormatJSON || c.Env().OutputFormat == ctx.FormatJSONB, false)
	return pgast.NewTypeCast(inner, typeName), nil
}

// lowerTypeIntrospection ranges over the schema type catalogue table
// edgedbpub.objecttype, filtered by the introspected type's id cast to
// uuid, and yields that row's id column.
func lowerTypeIntrospection(c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	alias := c.Env().Aliases.Fresh("introspect")
	rv := pgast.RelRangeVar{Relation: "edgedbpub.objecttype", Alias: pgast.Alias{Name: alias}}
	relctx.IncludeRVar(sub, rv)
	sub.WhereClause = pgast.NewExpr(pgast.ExprOpInfix, "=",
		pgast.ColumnRef{Fields: []string{alias, "id"}},
		pgast.NewTypeCast(pgast.String{Value: s.PathID.Target.ID}, "uuid"))
	return pgast.ColumnRef{Fields: []string{alias, "id"}}, nil
}

// lowerConstantSet builds an `ARRAY[ROW(...), ROW(...)]` expression, one
// ROW per literal row of the multiset. It builds no `VALUES` range.
func lowerConstantSet(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	rows := make([]pgast.Node, 0, len(s.ConstRows))
	for _, row := range s.ConstRows {
		elems := make([]pgast.Node, 0, len(row))
		for _, e := range row {
			n, err := expr.Compile(reg, c, e)
			if err != nil {
				return nil, err
			}
			elems = append(elems, n)
		}
		rows = append(rows, pgast.NewRowExpr(elems))
	}
	return pgast.NewArrayExpr(rows, ""), nil
}

// lowerArray compiles each element and wraps the result in ARRAY[]; an
// empty array is cast to the concrete element type to avoid PostgreSQL
// defaulting it to `anyarray`.
func lowerArray(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	elems := make([]pgast.Node, 0, len(s.ArrayElements))
	for _, el := range s.ArrayElements {
		n, err := reg.CompileSet(c, el)
		if err != nil {
			return nil, err
		}
		elems = append(elems, n)
	}
	typeName := pgtypes.FromTypeRef(s.ElementType, false, false)
	arr := pgast.NewArrayExpr(elems, typeName)
	if len(elems) == 0 {
		return pgast.NewTypeCast(arr, typeName+"[]"), nil
	}
	return arr, nil
}

// lowerExists wraps the inner set in `EXISTS(SELECT ... WHERE v IS NOT
// NULL)`.
func lowerExists(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	inner := &pgast.SelectStmt{}
	guard := c.EnterRel(inner)
	value, err := reg.CompileSet(c, s.Inner)
	guard()
	if err != nil {
		return nil, err
	}
	inner.WhereClause = pgast.NewNullTest(value, pgast.IsNotNullTest)
	inner.TargetList = []pgast.ResTarget{{Val: pgast.Numeric{Value: "1"}}}
	return pgast.NewSubLink(pgast.SubLinkExists, nil, "", inner), nil
}

// lowerMembership lowers `needle IN haystack` to `lhs = ANY|ALL
// (subquery)`, or directly to `ANY(array)` when the haystack is an array
// operand rather than a set.
func lowerMembership(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	needle, err := reg.CompileSet(c, s.Needle)
	if err != nil {
		return nil, err
	}
	if s.Haystack.Kind == ir.KindArray {
		arrNode, err := reg.CompileSet(c, s.Haystack)
		if err != nil {
			return nil, err
		}
		return pgast.NewExpr(pgast.ExprOpInfix, "= ANY", needle, arrNode), nil
	}

	hay := &pgast.SelectStmt{}
	guard := c.EnterRel(hay)
	hayVal, err := reg.CompileSet(c, s.Haystack)
	guard()
	if err != nil {
		return nil, err
	}
	hay.TargetList = []pgast.ResTarget{{Val: hayVal}}
	kind := pgast.SubLinkAny
	if s.AllOf {
		kind = pgast.SubLinkAll
	}
	return pgast.NewSubLink(kind, needle, "=", hay), nil
}
