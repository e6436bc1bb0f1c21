package relgen

import (
	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/dispatch"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pathctx"
	"github.com/relql/irsqlc/internal/pgast"
	"github.com/relql/irsqlc/internal/relctx"
)

// lowerTypeIndirection implements §4.6.1's `[IS T]` strategy. Grounded on
// the teacher's process_set_as_path type-indirection branch
// (original_source/edb/pgsql/compiler/relgen.py:674): when the source is
// already bonded at this rel there is nothing left to restrict — the
// row in hand already is (or isn't) a T, so the indirection is a plain
// relabeling of the source's own value. Otherwise the source is narrowed
// by joining it against T's own root range, via
// pgast.IntersectionRangeVar (relctx.py:702's new_poly_rvar), so only
// rows that exist in both survive.
//
// This IR has no separate subtype catalogue (objectTable derives one
// table per concrete TypeRef, §1), so the narrowing range has exactly
// one component rather than a union of every subtype's table; the node
// still carries the UNION ALL shape so a schema layer that does supply
// siblings can extend Components without changing this lowering.
func lowerTypeIndirection(reg *dispatch.Registry, c *ctx.Context, s *ir.Set, sub *pgast.SelectStmt) (pgast.Node, error) {
	seg := s.PathID.Segments[len(s.PathID.Segments)-1]
	if seg.TypeIndir == nil {
		return nil, ctx.NewInternal("relgen: type indirection set with no TypeIndir segment", nil)
	}
	target := *seg.TypeIndir

	sourceVal, err := reg.CompileSet(c, s.Source)
	if err != nil {
		return nil, err
	}

	if pathctx.IsInScope(sub, s.Source.PathID) {
		pathctx.PutPathVar(sub, s.PathID, pgast.AspectValue, sourceVal, pgast.OutputVar{ColumnName: "id"}, true)
		return sourceVal, nil
	}

	poly := pgast.IntersectionRangeVar{
		Components: []pgast.RangeVar{relctx.NewRootRVar(c, target)},
		Alias:      pgast.Alias{Name: c.Env().Aliases.Fresh("poly")},
	}
	relctx.IncludeRVar(sub, poly)
	polyAlias := relctx.RVarAlias(poly)

	narrowed := pgast.ColumnRef{Fields: []string{polyAlias, "id"}}
	sub.WhereClause = andWhere(sub.WhereClause, eq(narrowed, sourceVal))
	pathctx.PutPathVar(sub, s.PathID, pgast.AspectValue, narrowed, pgast.OutputVar{ColumnName: "id"}, true)
	return narrowed, nil
}
