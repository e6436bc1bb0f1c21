package relgen

import (
	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/dispatch"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pgast"
	"github.com/relql/irsqlc/internal/relctx"
)

// lowerAggregate implements §4.6.2: every argument is compiled in its own
// isolated subrel (so the aggregate body never references the outer
// level directly), included as a LATERAL `(SELECT arg AS v) AS arg`
// subselect and referenced by its column; std::enumerate
// gets the row_number()-based tuple lowering instead of a plain call.
func lowerAggregate(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	args := make([]pgast.Node, 0, len(s.Args))
	for _, a := range s.Args {
		argSub := &pgast.SelectStmt{}
		guard := c.EnterRel(argSub)
		v, err := reg.CompileSet(c, a)
		guard()
		if err != nil {
			return nil, err
		}
		argAlias := c.Env().Aliases.Fresh("arg")
		argCol := c.Env().Aliases.Fresh("v")
		argSub.TargetList = []pgast.ResTarget{{Name: argCol, Val: v}}
		rv := pgast.RangeSubselect{Subquery: argSub, Alias: pgast.Alias{Name: argAlias}, Lateral: true}
		relctx.IncludeRVar(sub, rv)
		args = append(args, pgast.ColumnRef{Fields: []string{argAlias, argCol}})
	}

	if s.Kind == ir.KindEnumerate {
		return lowerEnumerate(c, s, args), nil
	}

	call := pgast.NewFuncCall(s.FuncName, args, !s.Polymorphic)
	var result pgast.Node = call

	if s.InitialValue != nil {
		initNode, err := reg.CompileSet(c, s.InitialValue)
		if err != nil {
			return nil, err
		}
		result = pgast.NewCoalesceExpr([]pgast.Node{call, initNode})
	}
	return result, nil
}

// lowerEnumerate lowers `std::enumerate(input)` to a
// `(row_number() OVER () - 1, input)` tuple, per §4.6.2.
func lowerEnumerate(c *ctx.Context, s *ir.Set, args []pgast.Node) pgast.Node {
	rowNumber := pgast.FuncCall{Base: pgast.Base{Nullable: false}, Name: "row_number", Over: &pgast.WindowDef{}}
	ordinal := pgast.NewExpr(pgast.ExprOpInfix, "-", rowNumber, pgast.Numeric{Value: "1"})
	var input pgast.Node = pgast.NullConst{}
	if len(args) > 0 {
		input = args[0]
	}
	return pgast.NewImplicitRowExpr([]pgast.Node{ordinal, input})
}
