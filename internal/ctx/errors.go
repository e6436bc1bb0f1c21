package ctx

import "errors"

// Error taxonomy (§7). Every non-sentinel failure the compiler raises
// wraps one of these four sentinels so callers can classify it with
// errors.Is, the same pattern as the teacher's errors.go
// (ErrNoTuplesTable, ErrMissingModel, ...).
var (
	// ErrInvalidInput covers unknown IR variants, set-returning calls in
	// singleton mode, and references to paths no enclosing scope provides.
	ErrInvalidInput = errors.New("irsqlc: invalid input")

	// ErrUnsupportedFeature covers IR shapes that are valid but not
	// (yet) lowered by this compiler.
	ErrUnsupportedFeature = errors.New("irsqlc: unsupported feature")

	// ErrInvalidReference covers pointer/type lookups that fail after
	// scope resolution.
	ErrInvalidReference = errors.New("irsqlc: invalid reference")

	// ErrInvalidType covers type mismatches discovered during lowering.
	ErrInvalidType = errors.New("irsqlc: invalid type")

	// ErrInternal covers broken invariants: a path lookup failing when
	// the scope tree claims visibility, codegen meeting an unknown node.
	// These are bugs, not user errors; see Internal.
	ErrInternal = errors.New("irsqlc: internal error")
)

// Internal wraps err (or panics repackaged via recover at the call site)
// as ErrInternal, attaching the offending node's debug representation per
// §7's "carry the offending node's debug repr."
type Internal struct {
	Repr string
	Err  error
}

func (e *Internal) Error() string {
	if e.Err != nil {
		return "irsqlc: internal error: " + e.Repr + ": " + e.Err.Error()
	}
	return "irsqlc: internal error: " + e.Repr
}

func (e *Internal) Unwrap() error { return ErrInternal }

// NewInternal builds an Internal error for node repr, optionally wrapping
// a lower-level cause.
func NewInternal(repr string, cause error) error {
	return &Internal{Repr: repr, Err: cause}
}

// IsFrontEndError reports whether err already carries one of the
// "invalid input"/"static semantic" sentinels above, in which case §7's
// propagation policy says to let it bubble unchanged rather than
// re-wrapping it as internal.
func IsFrontEndError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnsupportedFeature) ||
		errors.Is(err, ErrInvalidReference) ||
		errors.Is(err, ErrInvalidType)
}

// Reraise implements §7's propagation policy: front-end errors pass
// through verbatim; anything else becomes ErrInternal, preserving the
// first argument message via %w wrapping (so errors.Is(ErrInternal)
// still holds for a pre-wrapped internal error).
func Reraise(err error) error {
	if err == nil {
		return nil
	}
	if IsFrontEndError(err) || errors.Is(err, ErrInternal) {
		return err
	}
	return NewInternal(err.Error(), err)
}
