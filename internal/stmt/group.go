package stmt

import (
	"github.com/relql/irsqlc/internal/clauses"
	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/dispatch"
	"github.com/relql/irsqlc/internal/expr"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pgast"
)

// compileGroup implements §4.8's GroupStmt recipe: compile the subject as
// a lateral range, compile the grouping expressions into GROUP BY, decode
// PostgreSQL's grouping() bitmask into a per-element CASE chain, push a
// volatility guard, always materialise the subject into a packed array
// that is unpacked as a range, compile the result in the same rel, and
// apply ORDER BY. Aggregates are not compiled in subrels of their own,
// the grouped rel is not joined back laterally, and no FILTER is applied.
func compileGroup(reg *dispatch.Registry, c *ctx.Context, st *ir.Statement) (pgast.Node, error) {
	rel := &pgast.SelectStmt{}
	guard := c.EnterRel(rel)
	defer guard()

	subjectNode, err := reg.CompileSet(c, st.Subject)
	if err != nil {
		return nil, ctx.Reraise(err)
	}

	// The grouping-by expressions ride on the same OrderExpr slots the
	// statement already carries for ORDER BY; GroupStmt and SelectStmt
	// share one ir.Statement shape, so "using" here means "the exprs
	// this particular statement was built with," same field, different
	// role.
	using := make([]pgast.Node, 0, len(st.OrderBy))
	for _, ord := range st.OrderBy {
		usingGuard := c.EnterDisableSemiJoin()
		n, err := expr.Compile(reg, c, ord.Expr)
		usingGuard()
		if err != nil {
			return nil, ctx.Reraise(err)
		}
		using = append(using, n)
	}
	rel.GroupClause = using

	groupingMask := pgast.NewFuncCall("grouping", using, true)
	grouping := decodeGroupingBitmask(groupingMask, len(using))

	volatilityGuard := clauses.PushVolatilityGuard(c, "")
	defer volatilityGuard()

	packed, cte, err := clauses.Materialize(reg, c, st.Subject, true)
	if err != nil {
		return nil, ctx.Reraise(err)
	}
	if cte != nil {
		rel.CTEs = append(rel.CTEs, *cte)
	}
	elementsVar := clauses.UnpackBinding(c, packed, "v")

	resultNode, err := reg.CompileSet(c, st.Result)
	if err != nil {
		return nil, ctx.Reraise(err)
	}

	rel.FromClause = append(rel.FromClause, elementsVar)
	rel.TargetList = append(rel.TargetList,
		pgast.ResTarget{Name: "key", Val: grouping},
		pgast.ResTarget{Name: "subject", Val: subjectNode},
		pgast.ResTarget{Name: "v", Val: resultNode},
	)

	if len(st.OrderBy) > 0 {
		sortList, err := clauses.CompileOrderBy(reg, c, st.OrderBy)
		if err != nil {
			return nil, ctx.Reraise(err)
		}
		rel.SortClause = sortList
	}

	return rel, nil
}

// decodeGroupingBitmask decodes PostgreSQL's grouping() result into a
// per-element CASE branch array, the shape a `grouping_binding`
// array-expression takes per §4.8.
func decodeGroupingBitmask(mask pgast.Node, n int) pgast.Node {
	elems := make([]pgast.Node, 0, n)
	for i := 0; i < n; i++ {
		bit := pgast.NewExpr(pgast.ExprOpInfix, "&", mask, pgast.Numeric{Value: itoa(1 << uint(n-1-i))})
		cond := pgast.NewExpr(pgast.ExprOpInfix, "=", bit, pgast.Numeric{Value: "0"})
		elems = append(elems, pgast.NewCaseExpr(nil, []pgast.CaseWhen{{Cond: cond, Result: pgast.Boolean{Value: true}}}, pgast.Boolean{Value: false}))
	}
	return pgast.NewArrayExpr(elems, "bool")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
