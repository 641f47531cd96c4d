// Package value defines the runtime value variant: integer, boolean, a user
// type's integer tag, or a map reference. A map's payload is never
// represented as a Value at user level — only internal/heap stores it,
// reachable through a Ref.
package value

import "fmt"

// Value is a closed variant with one concrete type per case. Accept
// dispatches a Visitor over the concrete type, so consumers like the solver
// translator avoid duplicating the type switch.
type Value interface {
	String() string
	Accept(v Visitor) interface{}
	isValue()
}

type Visitor interface {
	VisitInt(*Int) interface{}
	VisitBool(*Bool) interface{}
	VisitCustom(*Custom) interface{}
	VisitRef(*Ref) interface{}
}

type Int struct{ N int64 }

func NewInt(n int64) *Int                  { return &Int{N: n} }
func (i *Int) isValue()                    {}
func (i *Int) String() string              { return fmt.Sprintf("%d", i.N) }
func (i *Int) Accept(v Visitor) interface{} { return v.VisitInt(i) }

type Bool struct{ B bool }

func NewBool(b bool) *Bool                  { return &Bool{B: b} }
func (b *Bool) isValue()                    {}
func (b *Bool) String() string              { return fmt.Sprintf("%t", b.B) }
func (b *Bool) Accept(v Visitor) interface{} { return v.VisitBool(b) }

// Custom is a user type's integer tag. Two Customs are equal iff both the
// type name and the tag match.
type Custom struct {
	TypeName string
	Tag      int64
}

func NewCustom(typeName string, tag int64) *Custom { return &Custom{TypeName: typeName, Tag: tag} }
func (c *Custom) isValue()                         {}
func (c *Custom) String() string                    { return fmt.Sprintf("%s!%d", c.TypeName, c.Tag) }
func (c *Custom) Accept(v Visitor) interface{}      { return v.VisitCustom(c) }

// Ref is a handle into internal/heap. Equality between two Refs with the
// same ID is identity; equality between maps backed by different Refs is
// resolved by internal/eval's map-equality procedure, not by comparing
// IDs.
type Ref struct{ ID int64 }

func NewRef(id int64) *Ref                  { return &Ref{ID: id} }
func (r *Ref) isValue()                     {}
func (r *Ref) String() string               { return fmt.Sprintf("ref#%d", r.ID) }
func (r *Ref) Accept(v Visitor) interface{} { return v.VisitRef(r) }

// Equal performs shallow equality: identical for Int/Bool/Custom, identity
// (same heap ID) for Ref. Map-level equality through possibly-different
// refs is handled by internal/eval.ResolveMapEquality, which needs the heap.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case *Int:
		bv, ok := b.(*Int)
		return ok && av.N == bv.N
	case *Bool:
		bv, ok := b.(*Bool)
		return ok && av.B == bv.B
	case *Custom:
		bv, ok := b.(*Custom)
		return ok && av.TypeName == bv.TypeName && av.Tag == bv.Tag
	case *Ref:
		bv, ok := b.(*Ref)
		return ok && av.ID == bv.ID
	default:
		return false
	}
}

// Sentinel is the under-construction placeholder used for definition-cycle
// detection. It is a Value only so it can sit in a
// memory slot while a definition for that slot is being evaluated; no
// evaluator operation other than the well-definedness check should ever
// see one escape.
type Sentinel struct{ Code int64 }

func NewSentinel(code int64) *Sentinel         { return &Sentinel{Code: code} }
func (s *Sentinel) isValue()                   {}
func (s *Sentinel) String() string             { return fmt.Sprintf("<under-construction:%d>", s.Code) }
func (s *Sentinel) Accept(v Visitor) interface{} {
	panic("value.Sentinel must never reach a Visitor; it should be intercepted by the well-definedness check")
}
