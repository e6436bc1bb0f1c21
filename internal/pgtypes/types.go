// Package pgtypes implements the total IR-typeref-to-PostgreSQL-type-name
// mapping (§4.3) and the pointer storage classifier that drives whether a
// path step becomes an inline column or a join against a link table.
//
// This is one of the few packages in the tree that is deliberately
// stdlib-only: see DESIGN.md for why no example-pack library fits a
// closed, bespoke id-to-typename mapping better than a plain switch.
package pgtypes

import (
	"fmt"
	"strings"

	"github.com/relql/irsqlc/internal/ir"
)

// wellKnownScalars maps front-end scalar type ids to PostgreSQL base type
// names. A real front end would hand us dozens of these; the set below
// covers the common std:: primitives. Any other id, including the bare
// ids ("str", "int64", ...) the tests use, falls back to
// backendNameFromModuleAndID.
var wellKnownScalars = map[string]string{
	"std::str":      "text",
	"std::bool":     "bool",
	"std::int16":    "int2",
	"std::int32":    "int4",
	"std::int64":    "int8",
	"std::float32":  "float4",
	"std::float64":  "float8",
	"std::decimal":  "numeric",
	"std::bigint":   "numeric",
	"std::uuid":     "uuid",
	"std::bytes":    "bytea",
	"std::datetime": "timestamptz",
	"std::duration": "interval",
	"std::json":     "jsonb",
}

// FromTypeRef implements pg_type_from_ir_typeref(typeref, serialized?,
// persistent_tuples?): total over TypeRef.Kind.
func FromTypeRef(t ir.TypeRef, serialized, persistentTuples bool) string {
	switch t.Kind {
	case ir.TypeArray:
		if t.ElementType == nil {
			return "anyarray"
		}
		if t.ElementType.IsAbstract || t.ElementType.Kind == ir.TypeAnyType {
			return "anyarray"
		}
		elem := FromTypeRef(*t.ElementType, serialized, persistentTuples)
		return elem + "[]"
	case ir.TypeObject:
		if serialized {
			return "record"
		}
		return "uuid"
	case ir.TypeTuple:
		if persistentTuples && t.InSchema {
			return namedTupleTypeName(t)
		}
		return "record"
	case ir.TypeAnyType:
		return "anyelement"
	case ir.TypeAnyNonArray:
		return "anynonarray"
	default:
		if name, ok := wellKnownScalars[t.ID]; ok {
			return name
		}
		return backendNameFromModuleAndID(t)
	}
}

func namedTupleTypeName(t ir.TypeRef) string {
	name := t.Name
	if name == "" {
		name = "anonymous_tuple"
	}
	return "edgedbtypes." + sanitize(name)
}

// backendNameFromModuleAndID derives a fallback name for a type id the
// well-known table doesn't cover, following §4.3's "falling back to a
// backend-name derived from the type's module and id" rule.
func backendNameFromModuleAndID(t ir.TypeRef) string {
	parts := strings.SplitN(t.ID, "::", 2)
	if len(parts) != 2 {
		return sanitize(t.ID)
	}
	return sanitize(parts[0]) + "_" + sanitize(parts[1])
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r - 'A' + 'a')
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// StorageInfo is the result of GetPtrrefStorageInfo: how a pointer's
// value is physically stored.
type StorageInfo struct {
	Kind          ir.StorageKind
	Table         string // link table (empty for inline columns)
	SourceColumn  string // link-table source column name
	TargetColumn  string // link-table target column name
	ValueColumn   string // inline column name
	PropertyCols  []string
}

// GetPtrrefStorageInfo classifies ptr's storage, mirroring §4.3's
// get_ptrref_storage_info.
func GetPtrrefStorageInfo(ptr *ir.PtrRef) (StorageInfo, error) {
	if ptr == nil {
		return StorageInfo{}, fmt.Errorf("pgtypes: nil pointer ref")
	}
	switch ptr.Storage {
	case ir.StorageInlineColumn:
		return StorageInfo{Kind: ir.StorageInlineColumn, ValueColumn: ptr.Column}, nil
	case ir.StorageLinkTable:
		props := make([]string, len(ptr.Properties))
		for i, p := range ptr.Properties {
			props[i] = p.Column
		}
		return StorageInfo{
			Kind:         ir.StorageLinkTable,
			Table:        ptr.LinkTable,
			SourceColumn: "source",
			TargetColumn: "target",
			PropertyCols: props,
		}, nil
	default:
		return StorageInfo{Kind: ir.StoragePseudo}, nil
	}
}

// IsInlineRef reports whether ptr is stored as a column on the source
// object's own table (§4.6.1: is_inline_ref).
func IsInlineRef(ptr *ir.PtrRef) bool {
	return ptr != nil && ptr.Storage == ir.StorageInlineColumn
}

// IsPrimitiveRef reports whether ptr's target is a non-object type
// (§4.6.1: is_primitive_ref).
func IsPrimitiveRef(ptr *ir.PtrRef) bool {
	return ptr != nil && ptr.Target.Kind != ir.TypeObject
}
