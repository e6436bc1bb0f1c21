// Package relctx builds range variables (FROM-clause entries), includes
// them into the enclosing query, and tracks per-DML-statement relation
// overlays (§3 "Relation overlays", §4.9.4). Grounded on the teacher's
// fluent tuples.TupleQuery builder (internal/sqlgen/tuples/query.go),
// generalized from a single hardcoded table to arbitrary object/link
// tables addressed through ir.PtrRef/ir.TypeRef.
package relctx

import (
	"github.com/google/uuid"

	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pgast"
	"github.com/relql/irsqlc/internal/pgtypes"
)

// objectTable returns the physical table name backing an object type.
// The schema object model is out of scope (§1); this derives a
// deterministic name the way the front end's catalogue would hand it to
// us, so fixtures/tests stay self-contained.
func objectTable(t ir.TypeRef) string {
	return "tab_" + t.ID
}

// NewRootRVar builds the FROM entry for a Set with no rptr and no expr:
// either a plain table range, or — for any non-object type — a call to the
// ir_literal_row() function used as a range. When
// the current DML statement has recorded an overlay for t (§3, §4.9.4),
// the plain table is folded through it first so a later read in the same
// statement observes an earlier write (Testable Property 6).
func NewRootRVar(c *ctx.Context, t ir.TypeRef) pgast.RangeVar {
	alias := c.Env().Aliases.Fresh(aliasHint(t))
	if t.Kind != ir.TypeObject {
		return pgast.RangeFunction{
			Func:  pgast.NewFuncCall("ir_literal_row", nil, true),
			Alias: pgast.Alias{Name: alias},
		}
	}
	base := pgast.RelRangeVar{Relation: objectTable(t), Alias: pgast.Alias{Name: alias}}
	return applyOverlay(c, ctx.OverlayKey{TypeID: t.ID}, base, alias)
}

// applyOverlay wraps base in its recorded overlay chain, if any; a type
// with no overlay recorded returns base unchanged so the common
// non-DML-statement case never pays for an extra wrapping subquery.
func applyOverlay(c *ctx.Context, key ctx.OverlayKey, base pgast.RangeVar, alias string) pgast.RangeVar {
	overlays := c.Env().Overlays
	if overlays == nil || len(overlays.For(key)) == 0 {
		return base
	}
	merged, antiJoin := overlays.ApplyToRange(key, &pgast.SelectStmt{FromClause: []pgast.RangeVar{base}})
	innerAlias := c.Env().Aliases.Fresh(alias + "_ov")
	wrapper := &pgast.SelectStmt{
		FromClause: []pgast.RangeVar{pgast.RangeSubselect{Subquery: merged, Alias: pgast.Alias{Name: innerAlias}}},
	}
	for _, pred := range antiJoin {
		notPred := pgast.NewExpr(pgast.ExprOpPrefix, "NOT", nil, pred)
		if wrapper.WhereClause == nil {
			wrapper.WhereClause = notPred
		} else {
			wrapper.WhereClause = pgast.NewExpr(pgast.ExprOpInfix, "AND", wrapper.WhereClause, notPred)
		}
	}
	return pgast.RangeSubselect{Subquery: wrapper, Alias: pgast.Alias{Name: alias}, Lateral: true}
}

func aliasHint(t ir.TypeRef) string {
	if t.Name != "" {
		return sanitizeHint(t.Name)
	}
	return "v"
}

func sanitizeHint(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// NewLinkRVar builds the FROM entry for a pointer stored in a link table
// (source/target (+property) rows), per §4.6.1's "direct pointer rvar".
// Like NewRootRVar, this folds through any overlay recorded against
// (source type, pointer) within the current DML statement.
func NewLinkRVar(c *ctx.Context, ptr *ir.PtrRef) (pgast.RangeVar, error) {
	info, err := pgtypes.GetPtrrefStorageInfo(ptr)
	if err != nil {
		return nil, err
	}
	alias := c.Env().Aliases.Fresh(sanitizeHint(ptr.Name))
	base := pgast.RelRangeVar{Relation: info.Table, Alias: pgast.Alias{Name: alias}}
	key := ctx.OverlayKey{TypeID: ptr.Source.ID, Pointer: ptr.Name}
	return applyOverlay(c, key, base, alias), nil
}

// NewTargetRVar builds the FROM entry for the object table a pointer
// points at, appended after the link rvar when the target is an object
// (§4.6.1).
func NewTargetRVar(c *ctx.Context, ptr *ir.PtrRef) pgast.RangeVar {
	return NewRootRVar(c, ptr.Target)
}

// IncludeRVar appends rv to rel's FROM clause (as a bare comma-join,
// matching the teacher's "FROM-iteration" style) unless an rvar with the
// same alias is already present.
func IncludeRVar(rel *pgast.SelectStmt, rv pgast.RangeVar) {
	alias := RVarAlias(rv)
	for _, existing := range rel.FromClause {
		if RVarAlias(existing) == alias {
			return
		}
	}
	rel.FromClause = append(rel.FromClause, rv)
}

// JoinRVar appends rv to rel's FROM clause as an explicit JOIN against
// the last existing entry, used when a correlated condition (quals) is
// known up front.
func JoinRVar(rel *pgast.SelectStmt, jt pgast.JoinType, rv pgast.RangeVar, quals pgast.Node) {
	if len(rel.FromClause) == 0 {
		IncludeRVar(rel, rv)
		return
	}
	last := rel.FromClause[len(rel.FromClause)-1]
	rel.FromClause[len(rel.FromClause)-1] = pgast.JoinExpr{
		Type: jt, Larg: last, Rarg: rv, Quals: quals,
	}
}

// RVarAlias returns rv's alias, whatever concrete RangeVar type it is.
func RVarAlias(rv pgast.RangeVar) string {
	switch v := rv.(type) {
	case pgast.RelRangeVar:
		return v.Alias.Name
	case pgast.RangeSubselect:
		return v.Alias.Name
	case pgast.RangeFunction:
		return v.Alias.Name
	case pgast.IntersectionRangeVar:
		return v.Alias.Name
	case pgast.JoinExpr:
		return v.Alias.Name
	default:
		return ""
	}
}

// TransientIteratorID returns a fresh synthetic identity used when a FOR
// body contains DML: equal iteration values must not collapse into one
// DML per row (§4.7). Grounded on the teacher's uuid.v4 use for fixture
// object ids (roach88-nysm, openfga), repurposed here for iterator
// identity, matching the DML iterator rule of §4.9 ("uuid_generate_v4()").
func TransientIteratorID() string {
	return uuid.NewString()
}
