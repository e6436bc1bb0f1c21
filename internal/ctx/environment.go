// Package ctx implements the per-compilation-unit Environment and the
// mutable per-level Context stack threaded through recursive dispatch
// (§3). The stack is explicit and LIFO, with copy-on-enter semantics for
// inherited fields, per design note "Mutable per-frame context stack."
package ctx

import (
	"fmt"

	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pgast"
)

// OutputFormat is the 4-entry enum consumed by every serializer (§6, §9).
type OutputFormat int

const (
	FormatNative OutputFormat = iota
	FormatNativeInternal
	FormatJSON
	FormatJSONB
)

// Environment is immutable for the lifetime of one compilation unit (§3,
// §6).
type Environment struct {
	OutputFormat            OutputFormat
	IgnoreShapes             bool
	SingletonMode            bool
	ExpectedCardinalityOne   bool
	ExternalRVars            map[string]pgast.RangeVar
	ExternalRels             map[string]*pgast.SelectStmt
	DetachParams              bool
	NamedParamPrefix          []string
	VersionedStdlib           bool
	VersionedSingleton        bool // needed to preserve Open Question (ii) verbatim

	Params  []ir.Param
	Globals map[string]ir.TypeRef

	TypeRewrites map[string]ir.TypeRef
	RootRels     map[string]bool
	MaterializedViews map[string]*pgast.SelectStmt

	Aliases *AliasGenerator

	// Scope is the immutable scope tree supplied alongside the IR (§3);
	// relgen consults it for is_visible/is_optional on every Set it
	// lowers.
	Scope *ir.ScopeTree

	// Overlays accumulates the relation overlays DML statements record
	// within this compilation unit (§3, §4.9.4); relctx consults it on
	// every root/link rvar it builds so a later read observes an earlier
	// write in the same statement tree (Testable Property 6).
	Overlays *Overlays
}

// NewEnvironment constructs an Environment with a fresh alias generator
// and VersionedStdlib set to true. The Open Question (ii) condition
// (`if singleton_mode && !versioned_singleton: versioned_stdlib = false`)
// is not applied here; ApplySingletonVersioning applies it, and
// compiler.Compile calls that before compiling.
func NewEnvironment(params []ir.Param) *Environment {
	env := &Environment{
		Params:            params,
		Globals:           map[string]ir.TypeRef{},
		ExternalRVars:     map[string]pgast.RangeVar{},
		ExternalRels:      map[string]*pgast.SelectStmt{},
		TypeRewrites:      map[string]ir.TypeRef{},
		RootRels:          map[string]bool{},
		MaterializedViews: map[string]*pgast.SelectStmt{},
		VersionedStdlib:   true,
		Aliases:           NewAliasGenerator(),
		Overlays:          NewOverlays(nil),
	}
	return env
}

// ApplySingletonVersioning re-applies the Open Question (ii) condition;
// call after SingletonMode/VersionedSingleton are set by the caller.
func (e *Environment) ApplySingletonVersioning() {
	if e.SingletonMode && !e.VersionedSingleton {
		e.VersionedStdlib = false
	}
}

// Validate reports configuration errors the compiler should refuse to
// start with (invalid input, §7).
func (e *Environment) Validate() error {
	if e.SingletonMode {
		for _, p := range e.Params {
			if p.Type.Kind == ir.TypeArray && p.Type.ElementType != nil && p.Type.ElementType.Kind == ir.TypeObject {
				return fmt.Errorf("%w: array-of-object parameter invalid in singleton mode", ErrInvalidInput)
			}
		}
	}
	return nil
}
