package ctx

import (
	"go.uber.org/zap"

	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pgast"
)

// OverlayOp enumerates how an overlay modifies a type/pointer's range
// (§3 "Relation overlays").
type OverlayOp int

const (
	OverlayUnion OverlayOp = iota
	OverlayExcept
	OverlayReplace
	OverlayFilter
)

// OverlayEntry is one entry in a type or pointer's overlay chain: a CTE
// (or inline relation) to union/except/replace/filter against, scoped to
// a path-id.
type OverlayEntry struct {
	Op     OverlayOp
	CTE    string // CTE name, "" when Rel is set instead
	Rel    *pgast.SelectStmt
	PathID string
}

// OverlayKey identifies the subject of an overlay: a type, or a
// (type, pointer) pair.
type OverlayKey struct {
	TypeID  string
	Pointer string // "" for a bare type overlay
}

// Overlays is the per-compilation-unit mapping described in §3: applied
// whenever the same statement tree later produces a range for a type or
// pointer a DML statement already wrote to, so earlier writes are visible
// to later reads (§4.9.4, Testable Property 6). It lives on Environment
// alongside Scope, since both are state relctx/relgen consult on every
// range they build, reachable only through the *ctx.Context each
// dispatch function is handed.
type Overlays struct {
	entries map[OverlayKey][]OverlayEntry
	log     *zap.Logger
}

// NewOverlays constructs an empty overlay store. log may be nil (tests
// use zap.NewNop()).
func NewOverlays(log *zap.Logger) *Overlays {
	if log == nil {
		log = zap.NewNop()
	}
	return &Overlays{entries: map[OverlayKey][]OverlayEntry{}, log: log}
}

// Record appends an overlay entry for key.
func (o *Overlays) Record(key OverlayKey, e OverlayEntry) {
	o.entries[key] = append(o.entries[key], e)
	o.log.Debug("ctx: overlay recorded",
		zap.String("type", key.TypeID), zap.String("pointer", key.Pointer),
		zap.Int("op", int(e.Op)), zap.String("path_id", e.PathID))
}

// For returns the overlay chain for key, or nil.
func (o *Overlays) For(key OverlayKey) []OverlayEntry {
	return o.entries[key]
}

// RecordInsert records that an INSERT made object(s) along cte visible as
// a union into t's range within this DML statement (§4.9.4: "union for
// INSERT").
func (o *Overlays) RecordInsert(t ir.TypeRef, cte string, pathID ir.PathId) {
	o.Record(OverlayKey{TypeID: t.ID}, OverlayEntry{Op: OverlayUnion, CTE: cte, PathID: OverlayPathKey(pathID)})
}

// RecordDelete records that a DELETE removed object(s) along cte from t's
// range within this DML statement (§4.9.4: "except for DELETE").
func (o *Overlays) RecordDelete(t ir.TypeRef, cte string, pathID ir.PathId) {
	o.Record(OverlayKey{TypeID: t.ID}, OverlayEntry{Op: OverlayExcept, CTE: cte, PathID: OverlayPathKey(pathID)})
}

// RecordPointerTouch records that pointer ptr of type t was touched by
// this DML statement, so later reads of the same pointer union/except
// against cte.
func (o *Overlays) RecordPointerTouch(t ir.TypeRef, ptr string, op OverlayOp, cte string, pathID ir.PathId) {
	o.Record(OverlayKey{TypeID: t.ID, Pointer: ptr}, OverlayEntry{Op: op, CTE: cte, PathID: OverlayPathKey(pathID)})
}

// ApplyToRange folds the overlay chain for key into base, returning a new
// root expression: base UNION ALL cte (for OverlayUnion), base EXCEPT
// ... (as an anti-join predicate folded into a WHERE clause by the
// caller), etc. Only the UNION case needs a new SelectStmt node; EXCEPT
// and FILTER are expressed as predicates the caller (relctx's root/link
// rvar construction) ANDs into its wrapping WHERE clause, so ApplyToRange
// returns both.
func (o *Overlays) ApplyToRange(key OverlayKey, base *pgast.SelectStmt) (*pgast.SelectStmt, []pgast.Node) {
	entries := o.entries[key]
	if len(entries) == 0 {
		return base, nil
	}
	result := base
	var antiJoinPredicates []pgast.Node
	for _, e := range entries {
		switch e.Op {
		case OverlayUnion:
			cteRef := &pgast.SelectStmt{
				FromClause: []pgast.RangeVar{pgast.RelRangeVar{Relation: e.CTE}},
			}
			result = &pgast.SelectStmt{Op: pgast.SetOpUnion, AllOp: true, Larg: result, Rarg: cteRef}
		case OverlayExcept, OverlayFilter:
			antiJoinPredicates = append(antiJoinPredicates, pgast.NewSubLink(
				pgast.SubLinkExists, nil, "",
				&pgast.SelectStmt{FromClause: []pgast.RangeVar{pgast.RelRangeVar{Relation: e.CTE}}},
			))
		case OverlayReplace:
			result = &pgast.SelectStmt{FromClause: []pgast.RangeVar{pgast.RelRangeVar{Relation: e.CTE}}}
		}
	}
	return result, antiJoinPredicates
}

// OverlayPathKey renders a path-id the same way pathctx.Key does. Kept
// as an independent copy (rather than an import) since pathctx is itself
// a consumer of ctx and importing it back here would cycle.
func OverlayPathKey(p ir.PathId) string {
	s := ""
	for _, seg := range p.Segments {
		switch {
		case seg.Ptr != nil:
			s += "/" + seg.Ptr.Name
			if seg.Dir == ir.DirInbound {
				s += "<"
			}
		case seg.TypeIndir != nil:
			s += "[IS " + seg.TypeIndir.Name + "]"
		case seg.TupleAttr != "":
			s += "." + seg.TupleAttr
		}
	}
	return s
}
