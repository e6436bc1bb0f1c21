// Package clauses compiles the parts of a top-level statement that sit
// around the result set: FOR/iterators, volatility guards, materialised
// bindings, and FILTER/ORDER BY/LIMIT/OFFSET (§4.7). Grounded on the
// teacher's list_helpers.go/list_shared_blocks.go, which factor the
// "build a correlated subquery, then apply a shared post-processing
// step" pattern relgen's per-shape lowering funcs also follow.
package clauses

import (
	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/dispatch"
	"github.com/relql/irsqlc/internal/expr"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pgast"
)

// IteratorResult is what CompileIterator hands the caller: a range var
// ready to go in a FROM clause, the value expression it exposes, and
// (only for the DML-containing case) the CTE that range var reads from.
type IteratorResult struct {
	RVar  pgast.RangeVar
	Value pgast.Node
	CTE   *pgast.CommonTableExpr
}

// CompileIterator lowers a FOR iterator set (§4.7). When the loop body
// contains DML, the iterator is wrapped in a CTE keyed on a transient
// identity so that duplicate iteration values still produce one DML row
// each; otherwise it's compiled as an ordinary lateral range.
func CompileIterator(reg *dispatch.Registry, c *ctx.Context, iterVar ir.PathId, iter *ir.Set, isDML bool) (IteratorResult, error) {
	if !isDML {
		node, err := reg.CompileSet(c, iter)
		if err != nil {
			return IteratorResult{}, err
		}
		return IteratorResult{Value: node}, nil
	}

	body := &pgast.SelectStmt{}
	guard := c.EnterRel(body)
	value, err := reg.CompileSet(c, iter)
	guard()
	if err != nil {
		return IteratorResult{}, err
	}
	idCol := c.Env().Aliases.Fresh("iter_id")
	valCol := c.Env().Aliases.Fresh("v")
	body.TargetList = append(body.TargetList,
		pgast.ResTarget{Name: idCol, Val: pgast.NewFuncCall("uuid_generate_v4", nil, true)},
		pgast.ResTarget{Name: valCol, Val: value},
	)
	cteName := c.Env().Aliases.Fresh("iter_cte")
	cte := &pgast.CommonTableExpr{Name: cteName, Query: body}
	alias := c.Env().Aliases.Fresh("it")
	rvar := pgast.RelRangeVar{Relation: cteName, Alias: pgast.Alias{Name: alias}}
	return IteratorResult{
		RVar:  rvar,
		Value: pgast.ColumnRef{Fields: []string{alias, valCol}},
		CTE:   cte,
	}, nil
}

// PushVolatilityGuard implements §4.7's volatility-ref chain: every
// potentially-volatile aggregate/function compilation prepends a guard so
// the enclosing clause can render `WHERE volatility_ref IS NOT NULL`; a
// surrogate `row_number() OVER ()` stands in when the subquery has no
// identity column to correlate against.
func PushVolatilityGuard(c *ctx.Context, identityColumn string) ctx.Guard {
	if identityColumn == "" {
		identityColumn = "row_number() OVER ()"
	}
	return c.PushVolatilityRef(ctx.VolatilityRef{Column: identityColumn})
}

// MaterializedBinding is a set compiled once and packed for reuse, per
// §4.7's "materialised bindings": sets referenced more than once in the
// same scope are compiled a single time, wrapped into an array when
// multi, and later references unpack the array back into a range.
type MaterializedBinding struct {
	CTEName string
	Multi   bool
}

// Materialize compiles s once into its own CTE and returns a binding
// later callers can unpack with UnpackBinding instead of recompiling s.
func Materialize(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, multi bool) (*MaterializedBinding, *pgast.CommonTableExpr, error) {
	body := &pgast.SelectStmt{}
	guard := c.EnterRel(body)
	value, err := reg.CompileSet(c, s)
	guard()
	if err != nil {
		return nil, nil, err
	}
	col := c.Env().Aliases.Fresh("v")
	if multi {
		body.TargetList = []pgast.ResTarget{{Name: col, Val: pgast.NewFuncCall("array_agg", []pgast.Node{value}, true)}}
	} else {
		body.TargetList = []pgast.ResTarget{{Name: col, Val: value}}
	}
	name := c.Env().Aliases.Fresh("packed")
	return &MaterializedBinding{CTEName: name, Multi: multi}, &pgast.CommonTableExpr{Name: name, Query: body}, nil
}

// UnpackBinding turns a materialised binding back into a range var: a
// plain CTE reference for a singleton binding, or an UNNEST for a multi
// one.
func UnpackBinding(c *ctx.Context, b *MaterializedBinding, col string) pgast.RangeVar {
	alias := c.Env().Aliases.Fresh("unpacked")
	if !b.Multi {
		return pgast.RelRangeVar{Relation: b.CTEName, Alias: pgast.Alias{Name: alias}}
	}
	cteCol := pgast.ColumnRef{Fields: []string{b.CTEName, col}}
	return pgast.RangeFunction{
		Func:  pgast.NewFuncCall("unnest", []pgast.Node{cteCol}, true),
		Alias: pgast.Alias{Name: alias},
	}
}

// CompileFilter compiles a FILTER expression in the statement's own
// scope with semi-join lowering disabled (expr_exposed=false per §4.7).
// A non-singleton filter subject is wrapped in EXISTS.
func CompileFilter(reg *dispatch.Registry, c *ctx.Context, filter ir.Expr, subjectIsSingleton bool) (pgast.Node, error) {
	guard := c.EnterDisableSemiJoin()
	defer guard()

	node, err := expr.Compile(reg, c, filter)
	if err != nil {
		return nil, err
	}
	if subjectIsSingleton {
		return node, nil
	}
	inner := &pgast.SelectStmt{
		TargetList:  []pgast.ResTarget{{Val: pgast.Numeric{Value: "1"}}},
		WhereClause: node,
	}
	return pgast.NewSubLink(pgast.SubLinkExists, nil, "", inner), nil
}

// CompileOrderBy compiles ORDER BY entries, running each key through
// CollapseQuery so single-column subqueries stay inline (letting
// PostgreSQL use an index on them) rather than forcing a materialised
// subplan.
func CompileOrderBy(reg *dispatch.Registry, c *ctx.Context, orders []ir.OrderExpr) ([]pgast.SortBy, error) {
	guard := c.EnterDisableSemiJoin()
	defer guard()

	out := make([]pgast.SortBy, 0, len(orders))
	for _, o := range orders {
		node, err := expr.Compile(reg, c, o.Expr)
		if err != nil {
			return nil, err
		}
		sb := pgast.SortBy{Node: CollapseQuery(node), Descending: o.Desc}
		if o.NullsFirst != nil {
			sb.Explicit = true
			sb.NullsFirst = *o.NullsFirst
		}
		out = append(out, sb)
	}
	return out, nil
}

// CollapseQuery inlines a single-column subselect with no WHERE/CTEs into
// its bare scalar expression, matching clauses' "collapse_query" rule for
// sort keys.
func CollapseQuery(n pgast.Node) pgast.Node {
	sub, ok := n.(pgast.RangeSubselect)
	if !ok {
		return n
	}
	sel, ok := sub.Subquery.(*pgast.SelectStmt)
	if !ok || len(sel.TargetList) != 1 || sel.WhereClause != nil || len(sel.CTEs) != 0 {
		return n
	}
	return sel.TargetList[0].Val
}

// CompileLimitOffset compiles the scalar LIMIT/OFFSET sets, when present.
func CompileLimitOffset(reg *dispatch.Registry, c *ctx.Context, limit, offset *ir.Set) (pgast.Node, pgast.Node, error) {
	var limNode, offNode pgast.Node
	var err error
	if limit != nil {
		limNode, err = compileScalarBound(reg, c, limit)
		if err != nil {
			return nil, nil, err
		}
	}
	if offset != nil {
		offNode, err = compileScalarBound(reg, c, offset)
		if err != nil {
			return nil, nil, err
		}
	}
	return limNode, offNode, nil
}

func compileScalarBound(reg *dispatch.Registry, c *ctx.Context, s *ir.Set) (pgast.Node, error) {
	rel := &pgast.SelectStmt{}
	guard := c.EnterRel(rel)
	v, err := reg.CompileSet(c, s)
	guard()
	if err != nil {
		return nil, err
	}
	return v, nil
}
