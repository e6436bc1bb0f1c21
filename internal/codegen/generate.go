package codegen

import (
	"fmt"
	"strings"

	"github.com/relql/irsqlc/internal/pgast"
)

// Options controls rendering choices that come from the compiler
// environment rather than from the tree itself (§6).
type Options struct {
	// NamedParamPrefix, when non-empty, causes Param nodes to print as a
	// qualified column reference (prefix... + logical name) instead of
	// $N. This is independent of singleton_mode/versioned_stdlib, which
	// are handled by ctx.Environment.ApplySingletonVersioning.
	NamedParamPrefix []string

	// Reordered is accepted but not read by the renderer: Generate always
	// prints SELECT before FROM, whatever its value.
	Reordered bool
}

// Result is the textual output of Generate: the SQL string and the
// highest physical parameter index referenced (for building argmap; see
// compiler.CompileResult).
type Result struct {
	SQL         string
	MaxParamIdx int
}

// Generate renders a top-level statement to SQL text. node must be one of
// *pgast.SelectStmt, *pgast.InsertStmt, *pgast.UpdateStmt, *pgast.DeleteStmt.
func Generate(node pgast.Node, opts Options) (Result, error) {
	g := &gen{opts: opts}
	sql := g.stmt(node, true)
	return Result{SQL: sql, MaxParamIdx: g.maxParam}, g.err
}

type gen struct {
	opts     Options
	maxParam int
	err      error
}

func (g *gen) fail(format string, args ...any) string {
	if g.err == nil {
		g.err = fmt.Errorf(format, args...)
	}
	return "/* internal-error: " + fmt.Sprintf(format, args...) + " */"
}

// stmt renders any of the four top-level statement kinds. toplevel only
// affects a SelectStmt: a toplevel select prints its CTE list, while a
// non-toplevel one (a subquery, or an operand of a set operation) is
// wrapped in parentheses and its CTE list is not printed.
func (g *gen) stmt(node pgast.Node, toplevel bool) string {
	switch s := node.(type) {
	case *pgast.SelectStmt:
		return g.selectStmt(s, toplevel)
	case *pgast.InsertStmt:
		return g.insertStmt(s)
	case *pgast.UpdateStmt:
		return g.updateStmt(s)
	case *pgast.DeleteStmt:
		return g.deleteStmt(s)
	default:
		return g.fail("codegen: unknown statement node %T", node)
	}
}

func (g *gen) withClause(ctes []pgast.CommonTableExpr) string {
	if len(ctes) == 0 {
		return ""
	}
	recursive := false
	parts := make([]string, len(ctes))
	for i, c := range ctes {
		if c.Recursive {
			recursive = true
		}
		parts[i] = g.cte(c)
	}
	kw := "WITH "
	if recursive {
		kw = "WITH RECURSIVE "
	}
	return kw + strings.Join(parts, ",\n") + "\n"
}

func (g *gen) cte(c pgast.CommonTableExpr) string {
	var sb strings.Builder
	sb.WriteString(QuoteIdent(c.Name, false))
	if len(c.Aliascolnames) > 0 {
		sb.WriteString("(")
		sb.WriteString(QuoteQualified(c.Aliascolnames))
		sb.WriteString(")")
	}
	sb.WriteString(" AS ")
	switch c.Materialize {
	case pgast.MaterializeForce:
		sb.WriteString("MATERIALIZED ")
	case pgast.MaterializeSuppress:
		sb.WriteString("NOT MATERIALIZED ")
	}
	sb.WriteString("(\n")
	sb.WriteString(indentLines(g.stmt(c.Query, false), "  "))
	sb.WriteString("\n)")
	return sb.String()
}

func (g *gen) selectStmt(s *pgast.SelectStmt, toplevel bool) string {
	var body string
	if s.Op != pgast.SetOpNone {
		op := map[pgast.SetOperation]string{pgast.SetOpUnion: "UNION", pgast.SetOpIntersect: "INTERSECT", pgast.SetOpExcept: "EXCEPT"}[s.Op]
		if s.AllOp {
			op += " ALL"
		}
		body = g.selectStmt(s.Larg, false) + "\n" + op + "\n" + g.selectStmt(s.Rarg, false)
	} else {
		body = g.selectBody(s)
	}

	out := body
	if toplevel {
		out = g.withClause(s.CTEs) + body
	} else {
		out = "(\n" + indentLines(body, "  ") + "\n)"
	}
	return out
}

func (g *gen) selectBody(s *pgast.SelectStmt) string {
	b := newBuilder()
	distinct := "SELECT"
	if s.Distinct {
		if len(s.DistinctOn) > 0 {
			cols := g.exprList(s.DistinctOn)
			distinct = "SELECT DISTINCT ON (" + cols + ")"
		} else {
			distinct = "SELECT DISTINCT"
		}
	}
	b.line("%s %s", distinct, g.targetList(s.TargetList))
	if len(s.FromClause) > 0 {
		b.line("FROM %s", g.fromList(s.FromClause))
	}
	if s.WhereClause != nil {
		b.line("WHERE %s", g.expr(s.WhereClause))
	}
	if len(s.GroupClause) > 0 {
		b.line("GROUP BY %s", g.exprList(s.GroupClause))
	}
	if s.HavingClause != nil {
		b.line("HAVING %s", g.expr(s.HavingClause))
	}
	if len(s.SortClause) > 0 {
		b.line("ORDER BY %s", g.sortList(s.SortClause))
	}
	if s.LimitOffset != nil {
		b.line("OFFSET %s", g.expr(s.LimitOffset))
	}
	if s.LimitCount != nil {
		b.line("LIMIT %s", g.expr(s.LimitCount))
	}
	return b.String()
}

func (g *gen) targetList(targets []pgast.ResTarget) string {
	if len(targets) == 0 {
		return "*"
	}
	parts := make([]string, len(targets))
	for i, t := range targets {
		v := g.expr(t.Val)
		if t.Name != "" {
			v += " AS " + QuoteIdent(t.Name, false)
		}
		parts[i] = v
	}
	return strings.Join(parts, ", ")
}

func (g *gen) exprList(nodes []pgast.Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = g.expr(n)
	}
	return strings.Join(parts, ", ")
}

func (g *gen) sortList(sorts []pgast.SortBy) string {
	parts := make([]string, len(sorts))
	for i, s := range sorts {
		dir := "ASC"
		nullsFirst := false // ASC default: NULLS LAST
		if s.Descending {
			dir = "DESC"
			nullsFirst = true // DESC default: NULLS FIRST
		}
		if s.Explicit {
			nullsFirst = s.NullsFirst
		}
		nulls := "NULLS LAST"
		if nullsFirst {
			nulls = "NULLS FIRST"
		}
		parts[i] = g.expr(s.Node) + " " + dir + " " + nulls
	}
	return strings.Join(parts, ", ")
}

func (g *gen) fromList(rvars []pgast.RangeVar) string {
	parts := make([]string, len(rvars))
	for i, r := range rvars {
		parts[i] = g.rangeVar(r)
	}
	return strings.Join(parts, ", ")
}

func (g *gen) rangeVar(node pgast.RangeVar) string {
	switch r := node.(type) {
	case pgast.RelRangeVar:
		return r.Relation + aliasSQL(r.Alias)
	case pgast.RangeSubselect:
		lat := ""
		if r.Lateral {
			lat = "LATERAL "
		}
		return lat + "(\n" + indentLines(g.stmt(r.Subquery, false), "  ") + "\n)" + aliasSQL(r.Alias)
	case pgast.RangeFunction:
		lat := ""
		if r.Lateral {
			lat = "LATERAL "
		}
		ord := ""
		if r.WithOrdinality {
			ord = " WITH ORDINALITY"
		}
		return lat + g.expr(r.Func) + ord + aliasSQL(r.Alias)
	case pgast.IntersectionRangeVar:
		parts := make([]string, len(r.Components))
		for i, c := range r.Components {
			parts[i] = g.rangeVar(c)
		}
		return "(" + strings.Join(parts, " UNION ALL ") + ")" + aliasSQL(r.Alias)
	case pgast.JoinExpr:
		return g.joinExpr(r)
	default:
		return g.fail("codegen: unknown range var %T", node)
	}
}

func aliasSQL(a pgast.Alias) string {
	if a.Name == "" {
		return ""
	}
	s := " AS " + QuoteIdent(a.Name, false)
	if len(a.ColumnNames) > 0 {
		s += "(" + QuoteQualified(a.ColumnNames) + ")"
	}
	return s
}

// joinExpr implements §4.2's join-printing rule: CROSS JOIN when both
// Quals and UsingClause are empty, otherwise <TYPE> JOIN; a nested right
// argument is wrapped in parens.
func (g *gen) joinExpr(j pgast.JoinExpr) string {
	left := g.rangeVar(j.Larg.(pgast.RangeVar))
	var right string
	if nested, ok := j.Rarg.(pgast.JoinExpr); ok {
		right = "(" + g.joinExpr(nested) + ")"
	} else {
		right = g.rangeVar(j.Rarg.(pgast.RangeVar))
	}

	if j.Quals == nil && len(j.UsingClause) == 0 {
		return left + " CROSS JOIN " + right
	}

	kw := map[pgast.JoinType]string{
		pgast.JoinInner: "INNER JOIN",
		pgast.JoinLeft:  "LEFT JOIN",
		pgast.JoinFull:  "FULL JOIN",
		pgast.JoinCross: "CROSS JOIN",
	}[j.Type]

	s := left + " " + kw + " " + right
	if len(j.UsingClause) > 0 {
		return s + " USING (" + QuoteQualified(j.UsingClause) + ")"
	}
	if j.Quals != nil {
		return s + " ON " + g.expr(j.Quals)
	}
	return s
}

func (g *gen) insertStmt(s *pgast.InsertStmt) string {
	b := newBuilder()
	cols := make([]string, len(s.Cols))
	for i, c := range s.Cols {
		cols[i] = QuoteIdent(c.Column, false)
	}
	b.line("INSERT INTO %s (%s)", s.Relation.Relation, strings.Join(cols, ", "))
	b.raw(g.stmt(s.SelectStmt, false))
	if s.OnConflict != nil {
		b.raw(g.onConflict(*s.OnConflict))
	}
	if len(s.ReturningList) > 0 {
		b.line("RETURNING %s", g.targetList(s.ReturningList))
	}
	out := b.String()
	return g.withClause(s.CTEs) + out
}

func (g *gen) onConflict(c pgast.OnConflictClause) string {
	b := newBuilder()
	target := ""
	if c.Infer != nil {
		target = " (" + QuoteQualified(c.Infer.IndexElems) + ")"
		if c.Infer.WhereClause != nil {
			target += " WHERE " + g.expr(c.Infer.WhereClause)
		}
	}
	if c.DoNothing {
		b.line("ON CONFLICT%s DO NOTHING", target)
		return b.String()
	}
	b.line("ON CONFLICT%s DO UPDATE SET", target)
	b.block(func(b *builder) {
		parts := make([]string, len(c.TargetList))
		for i, t := range c.TargetList {
			parts[i] = QuoteIdent(t.Column, false) + " = " + g.expr(t.Val)
		}
		b.line("%s", strings.Join(parts, ", "))
	})
	if c.Where != nil {
		b.line("WHERE %s", g.expr(c.Where))
	}
	return b.String()
}

func (g *gen) updateStmt(s *pgast.UpdateStmt) string {
	b := newBuilder()
	b.line("UPDATE %s", s.Relation.Relation+aliasSQL(s.Relation.Alias))
	b.block(func(b *builder) {
		parts := make([]string, len(s.TargetList))
		for i, t := range s.TargetList {
			parts[i] = QuoteIdent(t.Column, false) + " = " + g.expr(t.Val)
		}
		b.line("SET %s", strings.Join(parts, ", "))
	})
	if len(s.FromClause) > 0 {
		b.line("FROM %s", g.fromList(s.FromClause))
	}
	if s.WhereClause != nil {
		b.line("WHERE %s", g.expr(s.WhereClause))
	}
	if len(s.ReturningList) > 0 {
		b.line("RETURNING %s", g.targetList(s.ReturningList))
	}
	return g.withClause(s.CTEs) + b.String()
}

func (g *gen) deleteStmt(s *pgast.DeleteStmt) string {
	b := newBuilder()
	b.line("DELETE FROM %s", s.Relation.Relation+aliasSQL(s.Relation.Alias))
	if len(s.UsingClause) > 0 {
		b.line("USING %s", g.fromList(s.UsingClause))
	}
	if s.WhereClause != nil {
		b.line("WHERE %s", g.expr(s.WhereClause))
	}
	if len(s.ReturningList) > 0 {
		b.line("RETURNING %s", g.targetList(s.ReturningList))
	}
	return g.withClause(s.CTEs) + b.String()
}

// expr renders any scalar expression node.
func (g *gen) expr(node pgast.Node) string {
	switch e := node.(type) {
	case nil:
		return "NULL"
	case pgast.String:
		return quoteStringLiteral(e.Value)
	case pgast.Numeric:
		return e.Value
	case pgast.Boolean:
		if e.Value {
			return "TRUE"
		}
		return "FALSE"
	case pgast.NullConst:
		return "NULL"
	case pgast.Bytea:
		return quoteBytea(e.Value)
	case pgast.Param:
		if len(g.opts.NamedParamPrefix) > 0 {
			return QuoteQualified(append(append([]string{}, g.opts.NamedParamPrefix...), e.Name))
		}
		if e.Index > g.maxParam {
			g.maxParam = e.Index
		}
		return fmt.Sprintf("$%d", e.Index)
	case pgast.ColumnRef:
		return QuoteQualified(e.Fields)
	case pgast.Expr:
		return g.opExpr(e)
	case pgast.FuncCall:
		return g.funcCall(e)
	case pgast.TypeCast:
		return "(" + g.expr(e.Arg) + ")::" + e.TypeName
	case pgast.CaseExpr:
		return g.caseExpr(e)
	case pgast.CoalesceExpr:
		return "COALESCE(" + g.exprList(e.Args) + ")"
	case pgast.SubLink:
		return g.subLink(e)
	case pgast.NullTest:
		kw := "IS NULL"
		if e.Kind == pgast.IsNotNullTest {
			kw = "IS NOT NULL"
		}
		return g.expr(e.Arg) + " " + kw
	case pgast.RowExpr:
		return "ROW(" + g.exprList(e.Args) + ")"
	case pgast.ImplicitRowExpr:
		return "(" + g.exprList(e.Args) + ")"
	case pgast.ArrayExpr:
		elems := g.exprList(e.Elements)
		s := "ARRAY[" + elems + "]"
		if e.ElementType != "" && len(e.Elements) == 0 {
			s += "::" + e.ElementType + "[]"
		}
		return s
	case pgast.Indirection:
		return g.indirection(e)
	case pgast.VariadicArgument:
		if e.Empty {
			return "VARIADIC ARRAY[]::" + e.ArrayType
		}
		return "VARIADIC " + g.expr(e.Arg)
	case *pgast.SelectStmt:
		return g.selectStmt(e, false)
	default:
		return g.fail("codegen: unknown expr node %T", node)
	}
}

// opExpr always parenthesises, per §4.2.
func (g *gen) opExpr(e pgast.Expr) string {
	name := upcaseOperator(e.Name)
	switch e.Kind {
	case pgast.ExprOpPrefix:
		return "(" + name + " " + g.expr(e.Rexpr) + ")"
	case pgast.ExprOpPostfix:
		return "(" + g.expr(e.Lexpr) + " " + name + ")"
	default:
		return "(" + g.expr(e.Lexpr) + " " + name + " " + g.expr(e.Rexpr) + ")"
	}
}

func (g *gen) funcCall(f pgast.FuncCall) string {
	args := make([]string, 0, len(f.Args))
	if f.Variadic != nil {
		args = append(args, g.expr(f.Variadic))
	}
	for _, a := range f.Args {
		args = append(args, g.expr(a))
	}
	distinct := ""
	if f.Distinct {
		distinct = "DISTINCT "
	}
	s := f.Name + "(" + distinct + strings.Join(args, ", ")
	if len(f.OrderBy) > 0 {
		s += " ORDER BY " + g.sortList(f.OrderBy)
	}
	s += ")"
	if f.FilterExpr != nil {
		s += " FILTER (WHERE " + g.expr(f.FilterExpr) + ")"
	}
	if f.Over != nil {
		s += " OVER (" + g.windowDef(*f.Over) + ")"
	}
	return s
}

func (g *gen) windowDef(w pgast.WindowDef) string {
	parts := []string{}
	if len(w.PartitionBy) > 0 {
		parts = append(parts, "PARTITION BY "+g.exprList(w.PartitionBy))
	}
	if len(w.OrderBy) > 0 {
		parts = append(parts, "ORDER BY "+g.sortList(w.OrderBy))
	}
	return strings.Join(parts, " ")
}

func (g *gen) caseExpr(c pgast.CaseExpr) string {
	b := newBuilder()
	head := "CASE"
	if c.Arg != nil {
		head += " " + g.expr(c.Arg)
	}
	b.line("%s", head)
	b.block(func(b *builder) {
		for _, w := range c.Whens {
			b.line("WHEN %s THEN %s", g.expr(w.Cond), g.expr(w.Result))
		}
		if c.Else != nil {
			b.line("ELSE %s", g.expr(c.Else))
		}
	})
	b.line("END")
	return b.String()
}

func (g *gen) subLink(s pgast.SubLink) string {
	sub := "(\n" + indentLines(g.stmt(s.Subquery, false), "  ") + "\n)"
	switch s.Kind {
	case pgast.SubLinkExists:
		return "EXISTS " + sub
	case pgast.SubLinkAll:
		return g.expr(s.TestExpr) + " " + upcaseOperator(s.Operator) + " ALL " + sub
	default:
		return g.expr(s.TestExpr) + " " + upcaseOperator(s.Operator) + " ANY " + sub
	}
}

func (g *gen) indirection(i pgast.Indirection) string {
	if i.IsSlice {
		lo, hi := "", ""
		if i.Lower != nil {
			lo = g.expr(i.Lower)
		}
		if i.Upper != nil {
			hi = g.expr(i.Upper)
		}
		return g.expr(i.Arg) + "[" + lo + ":" + hi + "]"
	}
	return g.expr(i.Arg) + "[" + g.expr(i.Lower) + "]"
}
