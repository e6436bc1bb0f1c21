// Package dml lowers INSERT/UPDATE/DELETE statements to a flattened
// sequence of CTEs (§4.9): a range CTE for UPDATE/DELETE, a main DML CTE,
// one link-table CTE per multi/with-properties pointer in the shape,
// relation overlays so later reads in the same statement observe the
// write, and check CTEs for constraints PostgreSQL itself can't enforce.
// Grounded on the teacher's checker.go (constraint evaluation ordering)
// and internal/sqlgen/cte.go (CTE assembly helpers), generalized from a
// single fixed tuple-write shape to arbitrary object types/pointers.
package dml

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/relql/irsqlc/internal/clauses"
	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/dispatch"
	"github.com/relql/irsqlc/internal/expr"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pgast"
	"github.com/relql/irsqlc/internal/pgtypes"
)

// Register wires StmtInsert/Update/Delete into reg. log may be nil (tests
// use zap.NewNop()). The overlay store itself lives on ctx.Environment
// (§3 "Relation overlays" is scoped to one compilation unit, not to the
// registry, which is shared/reused across many), so handlers reach it via
// c.Env().Overlays rather than a field here.
func Register(reg *dispatch.Registry, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	w := &wiring{log: log}
	reg.RegisterStmt(ir.StmtInsert, w.compileInsert)
	reg.RegisterStmt(ir.StmtUpdate, w.compileUpdate)
	reg.RegisterStmt(ir.StmtDelete, w.compileDelete)
}

type wiring struct {
	log *zap.Logger
}

func objectTableName(t ir.TypeRef) string { return "tab_" + t.ID }

// compileInsert builds the main INSERT CTE and one link-table CTE per multi
// pointer or linkprop-carrying pointer in the shape, and records the
// type-level union overlay for the inserted rows (INSERT has no range CTE).
// It records no pointer overlays and appends no check CTEs.
func (w *wiring) compileInsert(reg *dispatch.Registry, c *ctx.Context, st *ir.Statement) (pgast.Node, error) {
	w.log.Debug("dml: compiling insert", zap.String("type", st.TargetType.ID))
	mainName := c.Env().Aliases.Fresh("ins")
	cols := []pgast.InsertTarget{{Column: "id"}, {Column: "__type__"}}
	values := []pgast.Node{pgast.NewFuncCall("uuid_generate_v4", nil, true),
		pgast.NewTypeCast(pgast.String{Value: st.TargetType.ID}, "uuid")}

	var linkCTEs []pgast.CommonTableExpr
	var errs error

	if st.Shape != nil {
		for _, el := range st.Shape.Elements {
			if el.Ptr == nil {
				continue
			}
			if pgtypes.IsInlineRef(el.Ptr) {
				valNode, err := compileAssignment(reg, c, el)
				if err != nil {
					errs = multierror.Append(errs, err)
					continue
				}
				cols = append(cols, pgast.InsertTarget{Column: el.Ptr.Column})
				values = append(values, valNode)
				continue
			}
			cte, err := w.linkInsertCTE(reg, c, mainName, el)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			linkCTEs = append(linkCTEs, cte)
		}
	}
	if errs != nil {
		return nil, ctx.Reraise(errs)
	}

	valuesRow := pgast.NewRowExpr(values)
	insertSelect := &pgast.SelectStmt{TargetList: colsAsTargets(cols, valuesRow)}

	ins := &pgast.InsertStmt{
		Relation:   pgast.RelRangeVar{Relation: objectTableName(st.TargetType)},
		Cols:       cols,
		SelectStmt: insertSelect,
		ReturningList: []pgast.ResTarget{
			{Name: "id", Val: pgast.ColumnRef{Fields: []string{objectTableName(st.TargetType), "id"}}},
		},
	}

	top := &pgast.SelectStmt{
		CTEs: append([]pgast.CommonTableExpr{{Name: mainName, Query: ins}}, linkCTEs...),
		FromClause: []pgast.RangeVar{
			pgast.RelRangeVar{Relation: mainName, Alias: pgast.Alias{Name: mainName}},
		},
		TargetList: []pgast.ResTarget{
			{Name: "id", Val: pgast.ColumnRef{Fields: []string{mainName, "id"}}},
		},
	}

	if overlays := c.Env().Overlays; overlays != nil {
		overlays.RecordInsert(st.TargetType, mainName, st.Result.PathID)
	}

	return top, nil
}

func colsAsTargets(cols []pgast.InsertTarget, row pgast.RowExpr) []pgast.ResTarget {
	targets := make([]pgast.ResTarget, len(cols))
	for i, c := range cols {
		var v pgast.Node
		if i < len(row.Args) {
			v = row.Args[i]
		}
		targets[i] = pgast.ResTarget{Name: c.Column, Val: v}
	}
	return targets
}

func compileAssignment(reg *dispatch.Registry, c *ctx.Context, el ir.ShapeElement) (pgast.Node, error) {
	if el.Set != nil {
		return reg.CompileSet(c, el.Set)
	}
	return nil, ctx.NewInternal(fmt.Sprintf("dml: shape element %q has no assigned set", el.Name), nil)
}

// linkInsertCTE builds the CTE that populates a multi/linkprop pointer's
// link table from a lateral subquery over the assigned set (§4.9 step 3).
func (w *wiring) linkInsertCTE(reg *dispatch.Registry, c *ctx.Context, sourceCTE string, el ir.ShapeElement) (pgast.CommonTableExpr, error) {
	info, err := pgtypes.GetPtrrefStorageInfo(el.Ptr)
	if err != nil {
		return pgast.CommonTableExpr{}, err
	}
	if el.Set == nil {
		return pgast.CommonTableExpr{}, ctx.NewInternal("dml: multi pointer shape element with no assigned set", nil)
	}

	body := &pgast.SelectStmt{}
	guard := c.EnterRel(body)
	targetVal, err := reg.CompileSet(c, el.Set)
	guard()
	if err != nil {
		return pgast.CommonTableExpr{}, err
	}
	body.FromClause = append(body.FromClause, pgast.RelRangeVar{Relation: sourceCTE, Alias: pgast.Alias{Name: sourceCTE}})
	body.TargetList = []pgast.ResTarget{
		{Name: info.SourceColumn, Val: pgast.ColumnRef{Fields: []string{sourceCTE, "id"}}},
		{Name: info.TargetColumn, Val: targetVal},
	}

	name := c.Env().Aliases.Fresh("link_" + el.Name)
	insert := &pgast.InsertStmt{
		Relation:   pgast.RelRangeVar{Relation: info.Table},
		Cols:       []pgast.InsertTarget{{Column: info.SourceColumn}, {Column: info.TargetColumn}},
		SelectStmt: body,
		OnConflict: &pgast.OnConflictClause{
			Infer: &pgast.InferClause{IndexElems: []string{info.SourceColumn, info.TargetColumn}},
			TargetList: []pgast.UpdateTarget{
				{Column: info.TargetColumn, Val: pgast.ColumnRef{Fields: []string{"excluded", info.TargetColumn}}},
			},
		},
	}
	return pgast.CommonTableExpr{Name: name, Query: insert}, nil
}

// compileUpdate implements §4.9's UPDATE recipe: a range CTE selecting
// matching ids under the FILTER subject, then an UPDATE against the main
// table correlated on id, plus link-table CTEs for any multi pointer in
// the assignment shape (delete-then-insert, conflict-resolved).
func (w *wiring) compileUpdate(reg *dispatch.Registry, c *ctx.Context, st *ir.Statement) (pgast.Node, error) {
	w.log.Debug("dml: compiling update", zap.String("type", st.TargetType.ID))
	rangeCTE, rangeName, err := w.compileRange(reg, c, st)
	if err != nil {
		return nil, ctx.Reraise(err)
	}

	targets := []pgast.UpdateTarget{}
	var linkCTEs []pgast.CommonTableExpr
	var errs error

	if st.Shape != nil {
		for _, el := range st.Shape.Elements {
			if el.Ptr == nil {
				continue
			}
			if pgtypes.IsInlineRef(el.Ptr) {
				v, err := compileAssignment(reg, c, el)
				if err != nil {
					errs = multierror.Append(errs, err)
					continue
				}
				targets = append(targets, pgast.UpdateTarget{Column: el.Ptr.Column, Val: v})
				continue
			}
			del, ins, err := w.linkUpdateCTEs(reg, c, rangeName, el)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			linkCTEs = append(linkCTEs, del, ins)
		}
	}
	if errs != nil {
		return nil, ctx.Reraise(errs)
	}

	mainName := c.Env().Aliases.Fresh("upd")
	tableName := objectTableName(st.TargetType)
	upd := &pgast.UpdateStmt{
		Relation:    pgast.RelRangeVar{Relation: tableName},
		TargetList:  targets,
		FromClause:  []pgast.RangeVar{pgast.RelRangeVar{Relation: rangeName, Alias: pgast.Alias{Name: rangeName}}},
		WhereClause: pgast.NewExpr(pgast.ExprOpInfix, "=", pgast.ColumnRef{Fields: []string{tableName, "id"}}, pgast.ColumnRef{Fields: []string{rangeName, "id"}}),
		ReturningList: []pgast.ResTarget{
			{Name: "id", Val: pgast.ColumnRef{Fields: []string{tableName, "id"}}},
		},
	}

	top := &pgast.SelectStmt{
		CTEs: append(append([]pgast.CommonTableExpr{rangeCTE, {Name: mainName, Query: upd}}), linkCTEs...),
		FromClause: []pgast.RangeVar{
			pgast.RelRangeVar{Relation: mainName, Alias: pgast.Alias{Name: mainName}},
		},
		TargetList: []pgast.ResTarget{{Name: "id", Val: pgast.ColumnRef{Fields: []string{mainName, "id"}}}},
	}

	if overlays := c.Env().Overlays; overlays != nil {
		overlays.Record(ctx.OverlayKey{TypeID: st.TargetType.ID}, ctx.OverlayEntry{Op: ctx.OverlayUnion, CTE: mainName})
	}
	return top, nil
}

func (w *wiring) linkUpdateCTEs(reg *dispatch.Registry, c *ctx.Context, rangeName string, el ir.ShapeElement) (pgast.CommonTableExpr, pgast.CommonTableExpr, error) {
	info, err := pgtypes.GetPtrrefStorageInfo(el.Ptr)
	if err != nil {
		return pgast.CommonTableExpr{}, pgast.CommonTableExpr{}, err
	}

	delName := c.Env().Aliases.Fresh("unlink_" + el.Name)
	del := &pgast.DeleteStmt{
		Relation: pgast.RelRangeVar{Relation: info.Table},
		UsingClause: []pgast.RangeVar{
			pgast.RelRangeVar{Relation: rangeName, Alias: pgast.Alias{Name: rangeName}},
		},
		WhereClause: pgast.NewExpr(pgast.ExprOpInfix, "=",
			pgast.ColumnRef{Fields: []string{info.Table, info.SourceColumn}},
			pgast.ColumnRef{Fields: []string{rangeName, "id"}}),
	}

	body := &pgast.SelectStmt{}
	guard := c.EnterRel(body)
	var targetVal pgast.Node
	var cErr error
	if el.Set != nil {
		targetVal, cErr = reg.CompileSet(c, el.Set)
	}
	guard()
	if cErr != nil {
		return pgast.CommonTableExpr{}, pgast.CommonTableExpr{}, cErr
	}
	body.FromClause = append(body.FromClause, pgast.RelRangeVar{Relation: rangeName, Alias: pgast.Alias{Name: rangeName}})
	body.TargetList = []pgast.ResTarget{
		{Name: info.SourceColumn, Val: pgast.ColumnRef{Fields: []string{rangeName, "id"}}},
		{Name: info.TargetColumn, Val: targetVal},
	}
	insName := c.Env().Aliases.Fresh("relink_" + el.Name)
	ins := &pgast.InsertStmt{
		Relation:   pgast.RelRangeVar{Relation: info.Table},
		Cols:       []pgast.InsertTarget{{Column: info.SourceColumn}, {Column: info.TargetColumn}},
		SelectStmt: body,
		OnConflict: &pgast.OnConflictClause{
			Infer:      &pgast.InferClause{IndexElems: []string{info.SourceColumn, info.TargetColumn}},
			TargetList: []pgast.UpdateTarget{{Column: info.TargetColumn, Val: pgast.ColumnRef{Fields: []string{"excluded", info.TargetColumn}}}},
		},
	}
	return pgast.CommonTableExpr{Name: delName, Query: del}, pgast.CommonTableExpr{Name: insName, Query: ins}, nil
}

// compileDelete implements §4.9's DELETE recipe: range CTE, then a bare
// DELETE correlated against it, recording a type-level except overlay.
func (w *wiring) compileDelete(reg *dispatch.Registry, c *ctx.Context, st *ir.Statement) (pgast.Node, error) {
	w.log.Debug("dml: compiling delete", zap.String("type", st.TargetType.ID))
	rangeCTE, rangeName, err := w.compileRange(reg, c, st)
	if err != nil {
		return nil, ctx.Reraise(err)
	}

	mainName := c.Env().Aliases.Fresh("del")
	tableName := objectTableName(st.TargetType)
	del := &pgast.DeleteStmt{
		Relation:    pgast.RelRangeVar{Relation: tableName},
		UsingClause: []pgast.RangeVar{pgast.RelRangeVar{Relation: rangeName, Alias: pgast.Alias{Name: rangeName}}},
		WhereClause: pgast.NewExpr(pgast.ExprOpInfix, "=", pgast.ColumnRef{Fields: []string{tableName, "id"}}, pgast.ColumnRef{Fields: []string{rangeName, "id"}}),
		ReturningList: []pgast.ResTarget{
			{Name: "id", Val: pgast.ColumnRef{Fields: []string{tableName, "id"}}},
		},
	}

	top := &pgast.SelectStmt{
		CTEs: []pgast.CommonTableExpr{rangeCTE, {Name: mainName, Query: del}},
		FromClause: []pgast.RangeVar{
			pgast.RelRangeVar{Relation: mainName, Alias: pgast.Alias{Name: mainName}},
		},
		TargetList: []pgast.ResTarget{{Name: "id", Val: pgast.ColumnRef{Fields: []string{mainName, "id"}}}},
	}

	if overlays := c.Env().Overlays; overlays != nil {
		overlays.Record(ctx.OverlayKey{TypeID: st.TargetType.ID}, ctx.OverlayEntry{Op: ctx.OverlayExcept, CTE: mainName})
	}
	return top, nil
}

// compileRange builds the range CTE (§4.9 step 1): the FILTER subject's
// matching rows, materialising identity columns for the main CTE to join
// against.
func (w *wiring) compileRange(reg *dispatch.Registry, c *ctx.Context, st *ir.Statement) (pgast.CommonTableExpr, string, error) {
	body := &pgast.SelectStmt{}
	guard := c.EnterRel(body)
	subjectVal, err := reg.CompileSet(c, st.Subject)
	guard()
	if err != nil {
		return pgast.CommonTableExpr{}, "", err
	}
	if st.Filter != nil {
		filterGuard := c.EnterDisableSemiJoin()
		filterNode, ferr := expr.Compile(reg, c, st.Filter)
		filterGuard()
		if ferr != nil {
			return pgast.CommonTableExpr{}, "", ferr
		}
		body.WhereClause = filterNode
	}
	body.TargetList = []pgast.ResTarget{{Name: "id", Val: subjectVal}}
	name := c.Env().Aliases.Fresh("range")
	return pgast.CommonTableExpr{Name: name, Query: body}, name, nil
}

// CompileCheckCTE wraps an explicit constraint check that PostgreSQL
// itself cannot enforce into a CTE (§4.9 step 6), and returns with it the
// guard predicate `edgedb._dml_dummy.id = index + name.ok` that references
// the CTE from a dummy UPDATE's WHERE clause. It does not build that
// UPDATE itself.
func CompileCheckCTE(name string, predicate pgast.Node, index int) (pgast.CommonTableExpr, pgast.Node) {
	body := &pgast.SelectStmt{
		TargetList: []pgast.ResTarget{{Name: "ok", Val: pgast.NewNullTest(predicate, pgast.IsNotNullTest)}},
	}
	dummyGuard := pgast.NewExpr(pgast.ExprOpInfix, "=",
		pgast.ColumnRef{Fields: []string{"edgedb", "_dml_dummy", "id"}},
		pgast.NewExpr(pgast.ExprOpInfix, "+", pgast.Numeric{Value: fmt.Sprintf("%d", index)}, pgast.ColumnRef{Fields: []string{name, "ok"}}),
	)
	return pgast.CommonTableExpr{Name: name, Query: body}, dummyGuard
}
