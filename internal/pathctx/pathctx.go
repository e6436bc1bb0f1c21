// Package pathctx records and retrieves the SQL expression that realises
// an IR path in a given SQL relation, parameterised by aspect (§3's
// "Path context"). It replaces the teacher's exception-for-control-flow
// equivalents with two functions returning (value, ok) / a hard error,
// per design note "Exception-for-control-flow in path lookup."
package pathctx

import (
	"fmt"

	"github.com/relql/irsqlc/internal/ctx"
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pgast"
)

// Key formats an ir.PathId into the string key pgast's path maps use.
func Key(p ir.PathId) string {
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

// fallbackAspect implements §3's specificity ordering: looking up a more
// specific aspect falls back to the less specific aspect at the same
// rel. For object paths identity ⊑ value ⊑ source and serialized ⊑
// source; for primitive paths serialized ⊑ value.
func fallbackAspect(a pgast.Aspect, isObject bool) (pgast.Aspect, bool) {
	if isObject {
		switch a {
		case pgast.AspectSource:
			return pgast.AspectValue, true
		case pgast.AspectValue:
			return pgast.AspectIdentity, true
		case pgast.AspectSerialized:
			return pgast.AspectSource, true
		}
		return 0, false
	}
	if a == pgast.AspectSerialized {
		return pgast.AspectValue, true
	}
	return 0, false
}

// ensureMaps lazily initialises rel's path maps, mirroring how a freshly
// built pgast.SelectStmt literal has nil maps until first use.
func ensureMaps(rel *pgast.SelectStmt) {
	if rel.PathOutputs == nil {
		rel.PathOutputs = map[pgast.PathAspectKey]pgast.OutputVar{}
	}
	if rel.PathNamespace == nil {
		rel.PathNamespace = map[pgast.PathAspectKey]pgast.Node{}
	}
	if rel.PathRVarMap == nil {
		rel.PathRVarMap = map[pgast.PathAspectKey]pgast.RangeVar{}
	}
	if rel.PathScope == nil {
		rel.PathScope = map[string]bool{}
	}
	if rel.PathIDMask == nil {
		rel.PathIDMask = map[string]bool{}
	}
}

// PutPathVar installs the expression realising path p at aspect a in rel's
// namespace and output list. Per §3, inserting a more-specific aspect for
// an object path also installs the next-less-specific aspect when it
// isn't already present (identity<=value<=source).
func PutPathVar(rel *pgast.SelectStmt, p ir.PathId, a pgast.Aspect, expr pgast.Node, out pgast.OutputVar, isObject bool) {
	ensureMaps(rel)
	key := pgast.PathAspectKey{PathID: Key(p), Aspect: a}
	rel.PathNamespace[key] = expr
	rel.PathOutputs[key] = out

	if isObject {
		if less, ok := fallbackAspect(a, true); ok {
			lessKey := pgast.PathAspectKey{PathID: Key(p), Aspect: less}
			if _, exists := rel.PathNamespace[lessKey]; !exists {
				rel.PathNamespace[lessKey] = expr
				rel.PathOutputs[lessKey] = out
			}
		}
	}
}

// PutPathRVar records which range var provides path p.
func PutPathRVar(rel *pgast.SelectStmt, p ir.PathId, a pgast.Aspect, rv pgast.RangeVar) {
	ensureMaps(rel)
	rel.PathRVarMap[pgast.PathAspectKey{PathID: Key(p), Aspect: a}] = rv
}

// MaybeGetPathVar returns the expression for (p, a) in rel if present,
// falling back to the next-less-specific aspect, or (nil, false).
func MaybeGetPathVar(rel *pgast.SelectStmt, p ir.PathId, a pgast.Aspect, isObject bool) (pgast.Node, bool) {
	if rel.PathNamespace == nil {
		return nil, false
	}
	key := pgast.PathAspectKey{PathID: Key(p), Aspect: a}
	if n, ok := rel.PathNamespace[key]; ok {
		return n, true
	}
	if less, ok := fallbackAspect(a, isObject); ok {
		return MaybeGetPathVar(rel, p, less, isObject)
	}
	return nil, false
}

// GetPathVar is MaybeGetPathVar's fallible counterpart: it returns
// ctx.ErrInternal when the scope claims visibility but no expression was
// ever installed — an invariant violation, not a recoverable miss (§7,
// Testable Property 3).
func GetPathVar(rel *pgast.SelectStmt, p ir.PathId, a pgast.Aspect, isObject bool) (pgast.Node, error) {
	if n, ok := MaybeGetPathVar(rel, p, a, isObject); ok {
		return n, nil
	}
	return nil, ctx.NewInternal(fmt.Sprintf("path var missing for %q aspect=%d", Key(p), a), nil)
}

// IsInScope reports whether path p is bonded (joinable) at rel.
func IsInScope(rel *pgast.SelectStmt, p ir.PathId) bool {
	return rel.PathScope != nil && rel.PathScope[Key(p)]
}

// UpdateScope binds p (and its scope-tree children per caller's own
// iteration) as joinable at rel.
func UpdateScope(rel *pgast.SelectStmt, p ir.PathId) {
	ensureMaps(rel)
	rel.PathScope[Key(p)] = true
}

// MaskPath marks p as visible inside rel but not exported to callers
// (path_id_mask).
func MaskPath(rel *pgast.SelectStmt, p ir.PathId) {
	ensureMaps(rel)
	rel.PathIDMask[Key(p)] = true
}

// IsMasked reports whether p is masked at rel.
func IsMasked(rel *pgast.SelectStmt, p ir.PathId) bool {
	return rel.PathIDMask != nil && rel.PathIDMask[Key(p)]
}

// RemapView installs a view_path_id_map entry renaming oldID to newID
// across a view boundary.
func RemapView(rel *pgast.SelectStmt, oldID, newID ir.PathId) {
	if rel.ViewPathIDMap == nil {
		rel.ViewPathIDMap = map[string]string{}
	}
	rel.ViewPathIDMap[Key(oldID)] = Key(newID)
}
