package ctx

import (
	"github.com/relql/irsqlc/internal/ir"
	"github.com/relql/irsqlc/internal/pgast"
)

// VolatilityRef is one callback in the volatility-guard chain (§4.7):
// every aggregate/function compilation that can be volatile prepends a
// guard here so clauses can later render `WHERE volatility_ref IS NOT
// NULL`.
type VolatilityRef struct {
	Column string // surrogate/identity column name to correlate against
}

// Level is one frame of the context stack (§3's "Lifecycles": the context
// stack is LIFO; each frame may replace Rel, Stmt, PathScope,
// VolatilityRef, ForceOptional, DisableSemiJoin, Materializing).
//
// Fields are copy-on-enter for inherited state and pointer-copy for
// environment references, per design note "Mutable per-frame context
// stack."
type Level struct {
	Env *Environment

	Rel  *pgast.SelectStmt
	Stmt *ir.Statement

	PathScope       map[string]bool // path-ids bonded (joinable) at this query
	UniquePaths     map[string]bool
	VolatilityRef   []VolatilityRef
	ForceOptional   bool
	DisableSemiJoin bool
	Materializing   map[string]bool // path-ids currently being materialised, cycle guard

	parent *Level
}

// Context is the mutable stack threaded through recursive dispatch.
type Context struct {
	top *Level
	env *Environment
}

// NewContext constructs a Context with a fresh root level over rel.
func NewContext(env *Environment, root *pgast.SelectStmt) *Context {
	c := &Context{env: env}
	c.top = &Level{
		Env:         env,
		Rel:         root,
		PathScope:   map[string]bool{},
		UniquePaths: map[string]bool{},
		Materializing: map[string]bool{},
	}
	return c
}

// Current returns the top-of-stack level.
func (c *Context) Current() *Level { return c.top }

// Env returns the shared environment.
func (c *Context) Env() *Environment { return c.env }

// clone copies the inherited fields of l into a new child level; maps are
// copied shallowly (new map, same keys) so mutation in the child never
// leaks back to the parent, matching "copy-on-enter for inherited
// fields."
func (l *Level) clone() *Level {
	child := &Level{
		Env:             l.Env,
		Rel:             l.Rel,
		Stmt:            l.Stmt,
		PathScope:       cloneSet(l.PathScope),
		UniquePaths:     cloneSet(l.UniquePaths),
		VolatilityRef:   append([]VolatilityRef{}, l.VolatilityRef...),
		ForceOptional:   l.ForceOptional,
		DisableSemiJoin: l.DisableSemiJoin,
		Materializing:   cloneSet(l.Materializing),
		parent:          l,
	}
	return child
}

func cloneSet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Guard restores the previous level when called; returned by every Enter*
// function so callers write `defer ctx.Enter...(...)()`.
type Guard func()

// EnterRel pushes a new level scoped to a fresh subquery rel, the common
// case when relgen recurses into a Set's body.
func (c *Context) EnterRel(rel *pgast.SelectStmt) Guard {
	prev := c.top
	child := prev.clone()
	child.Rel = rel
	c.top = child
	return func() { c.top = prev }
}

// EnterForceOptional pushes a level with ForceOptional set, used when an
// ancestor's optionality must propagate into a subrel that isn't itself
// marked optional by the scope tree.
func (c *Context) EnterForceOptional(force bool) Guard {
	prev := c.top
	child := prev.clone()
	child.ForceOptional = child.ForceOptional || force
	c.top = child
	return func() { c.top = prev }
}

// EnterDisableSemiJoin pushes a level with semi-join lowering suppressed,
// used by clauses when compiling a FILTER/ORDER BY expression that must
// not introduce its own semi-join (it runs in the stmt's own scope with
// expr_exposed=false, §4.7).
func (c *Context) EnterDisableSemiJoin() Guard {
	prev := c.top
	child := prev.clone()
	child.DisableSemiJoin = true
	c.top = child
	return func() { c.top = prev }
}

// EnterMaterializing marks pathID as being materialised in this branch,
// detecting the cyclic case where a materialised binding would reference
// itself.
func (c *Context) EnterMaterializing(pathID string) (Guard, bool) {
	prev := c.top
	if prev.Materializing[pathID] {
		return func() {}, false
	}
	child := prev.clone()
	child.Materializing[pathID] = true
	c.top = child
	return func() { c.top = prev }, true
}

// PushVolatilityRef appends a volatility guard visible to this level and
// its descendants.
func (c *Context) PushVolatilityRef(ref VolatilityRef) Guard {
	prev := c.top
	child := prev.clone()
	child.VolatilityRef = append(child.VolatilityRef, ref)
	c.top = child
	return func() { c.top = prev }
}
