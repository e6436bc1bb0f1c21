package relgen

import (
	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/pgast"
	"github.com/relql/irsqlc/internal/relctx"
)

// wrapOptional implements §4.6 step 3: when S is optional and may be
// empty, the body is unioned against a single synthetic null row tagged
// with a marker column, and the outer query keeps only rows whose marker
// matches first_value(marker) OVER() — preferring the real rows when they
// exist, falling back to the null row otherwise, without ever collapsing
// cardinality the way a bare LEFT JOIN would.
func wrapOptional(c *ctx.Context, body *pgast.SelectStmt, value pgast.Node) (*pgast.SelectStmt, pgast.Node) {
	valCol := c.Env().Aliases.Fresh("val")
	body.TargetList = append(body.TargetList,
		pgast.ResTarget{Name: valCol, Val: value},
		pgast.ResTarget{Name: "marker", Val: pgast.Numeric{Value: "1"}},
	)

	emptyBranch := &pgast.SelectStmt{
		TargetList: []pgast.ResTarget{
			{Name: valCol, Val: pgast.NullConst{}},
			{Name: "marker", Val: pgast.Numeric{Value: "0"}},
		},
		WhereClause: pgast.NewExpr(pgast.ExprOpPrefix, "NOT", nil,
			pgast.NewSubLink(pgast.SubLinkExists, nil, "", body)),
	}

	union := &pgast.SelectStmt{Op: pgast.SetOpUnion, AllOp: true, Larg: body, Rarg: emptyBranch}

	wrapperAlias := c.Env().Aliases.Fresh("opt")
	rv := pgast.RangeSubselect{Subquery: union, Alias: pgast.Alias{Name: wrapperAlias}, Lateral: true}

	outer := &pgast.SelectStmt{}
	relctx.IncludeRVar(outer, rv)

	markerCol := pgast.ColumnRef{Fields: []string{wrapperAlias, "marker"}}
	firstMarker := pgast.FuncCall{Base: pgast.Base{Nullable: false}, Name: "first_value",
		Args: []pgast.Node{markerCol}, Over: &pgast.WindowDef{}}
	outer.WhereClause = pgast.NewExpr(pgast.ExprOpInfix, "=", markerCol, firstMarker)

	result := pgast.ColumnRef{Base: pgast.Base{Nullable: true}, Fields: []string{wrapperAlias, valCol}}
	return outer, result
}
