// Package store is the abstract constraint store: per-name (global
// variable, function, or map reference) definitions and constraints
// gathered by internal/preprocess from axioms and function bodies, plus the
// memoized, cycle-aware resolution bookkeeping internal/eval uses to
// evaluate them lazily. The Begin/Finish pair carries an explicit
// in-progress marker so a definition that (directly or transitively) refers
// to itself is caught rather than looping forever.
package store

import (
	"fmt"

	"github.com/benbjohnson/immutable"

	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/value"
)

// Definition is a `function f(...) { body }` or an axiom of the shape
// `axiom (forall ... :: g(x) ==> f(x) == body)` recorded against the name
// it defines.
type Definition struct {
	Formals []ast.VarDecl
	Guard   ast.Expr // nil if unconditional
	Body    ast.Expr
}

// Constraint is an axiom that restricts but does not fully define a name: it
// is checked (assumed) when the name materializes rather than consulted for
// a value. Formals is non-empty for quantified constraints on map or
// function entities; those are deferred and re-checked per index tuple.
type Constraint struct {
	Formals []ast.VarDecl
	Guard   ast.Expr // nil if unconditional
	Body    ast.Expr
}

// slot is what Store actually keeps per name: any definitions/constraints
// attached to it, plus its memoized value once resolved (or a sentinel
// while resolution is in progress).
type slot struct {
	definitions []Definition
	constraints []Constraint
	cached      value.Value // nil if not yet resolved
	pending     bool        // true while a resolution is in progress
}

// Store is immutable: every mutating method returns a new Store, sharing
// unmodified slots with the receiver via structural sharing, the same
// discipline internal/heap.Heap follows and for the same reason (branches
// spawned by non-deterministic choice must not see each other's writes).
type Store struct {
	slots *immutable.SortedMap
}

type stringComparer struct{}

func (stringComparer) Compare(a, b interface{}) int {
	x, y := a.(string), b.(string)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func New() *Store {
	return &Store{slots: immutable.NewSortedMap(&stringComparer{})}
}

func (s *Store) getSlot(name string) slot {
	v, ok := s.slots.Get(name)
	if !ok {
		return slot{}
	}
	return v.(slot)
}

func (s *Store) setSlot(name string, sl slot) *Store {
	return &Store{slots: s.slots.Set(name, sl)}
}

// AttachDefinition records a definition for name.
func (s *Store) AttachDefinition(name string, d Definition) *Store {
	sl := s.getSlot(name)
	sl.definitions = append(append([]Definition{}, sl.definitions...), d)
	return s.setSlot(name, sl)
}

// AttachConstraint records a constraint for name.
func (s *Store) AttachConstraint(name string, c Constraint) *Store {
	sl := s.getSlot(name)
	sl.constraints = append(append([]Constraint{}, sl.constraints...), c)
	return s.setSlot(name, sl)
}

// Definitions returns every definition attached to name, in attachment order.
func (s *Store) Definitions(name string) []Definition {
	return s.getSlot(name).definitions
}

// Constraints returns every constraint attached to name.
func (s *Store) Constraints(name string) []Constraint {
	return s.getSlot(name).constraints
}

// Get returns name's memoized value, if it has already been resolved.
func (s *Store) Get(name string) (value.Value, bool) {
	sl := s.getSlot(name)
	if sl.cached == nil {
		return nil, false
	}
	return sl.cached, true
}

// CycleError is returned by Begin when name's definition transitively
// depends on itself.
type CycleError struct{ Name string }

func (e *CycleError) Error() string {
	return fmt.Sprintf("store: definition cycle detected while resolving %q", e.Name)
}

// Begin marks name as under construction and returns the updated Store,
// unless it is already under construction, in which case it returns a
// CycleError and the receiver unchanged. Callers evaluate the definition's
// body between Begin and Finish; internal/eval's well-definedness check
// treats any value.Sentinel it happens to observe as the same condition
// Begin/Finish exist to prevent, and reports it identically.
func (s *Store) Begin(name string) (*Store, error) {
	sl := s.getSlot(name)
	if sl.pending {
		return s, &CycleError{Name: name}
	}
	sl.pending = true
	return s.setSlot(name, sl), nil
}

// Finish records the resolved value for name and clears its pending flag.
func (s *Store) Finish(name string, v value.Value) *Store {
	sl := s.getSlot(name)
	sl.pending = false
	sl.cached = v
	return s.setSlot(name, sl)
}

// Abandon clears name's pending flag without caching a value, used when
// resolution fails partway (e.g. the guard itself raised a Failure) so a
// later, independent resolution attempt is not mistaken for a cycle.
func (s *Store) Abandon(name string) *Store {
	sl := s.getSlot(name)
	sl.pending = false
	return s.setSlot(name, sl)
}

// IsPending reports whether name's resolution is currently in progress.
func (s *Store) IsPending(name string) bool {
	return s.getSlot(name).pending
}
