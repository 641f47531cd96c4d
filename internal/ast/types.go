package ast

import "strings"

// Type is the Boogie type variant: boolean, integer, map, or named (possibly
// parametric, possibly itself a bound type variable).
type Type interface {
	String() string
	isType()
}

type BoolType struct{}

func (BoolType) String() string { return "bool" }
func (BoolType) isType()        {}

type IntType struct{}

func (IntType) String() string { return "int" }
func (IntType) isType()        {}

// MapType is `[domain]range`, optionally universally quantified over
// TypeVars (Boogie's polymorphic maps, e.g. `<a> [a]a`).
type MapType struct {
	TypeVars []string
	Domain   []Type
	Range    Type
}

func (m MapType) String() string {
	var b strings.Builder
	if len(m.TypeVars) > 0 {
		b.WriteString("<")
		b.WriteString(strings.Join(m.TypeVars, ", "))
		b.WriteString(">")
	}
	b.WriteString("[")
	for i, d := range m.Domain {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.String())
	}
	b.WriteString("]")
	b.WriteString(m.Range.String())
	return b.String()
}
func (MapType) isType() {}

// NamedType is a user type, possibly parametric (`MyType a b`) or a bound
// type variable (Args is nil and IsTypeVar is true).
type NamedType struct {
	Name      string
	Args      []Type
	IsTypeVar bool
}

func (n NamedType) String() string {
	if len(n.Args) == 0 {
		return n.Name
	}
	var b strings.Builder
	b.WriteString(n.Name)
	for _, a := range n.Args {
		b.WriteString(" ")
		b.WriteString(a.String())
	}
	return b.String()
}
func (NamedType) isType() {}

// TypesEqual performs structural equality, which is what Boogie's type
// system uses for map/named type comparison (no nominal subtyping).
func TypesEqual(a, b Type) bool {
	switch av := a.(type) {
	case BoolType:
		_, ok := b.(BoolType)
		return ok
	case IntType:
		_, ok := b.(IntType)
		return ok
	case MapType:
		bv, ok := b.(MapType)
		if !ok || len(av.TypeVars) != len(bv.TypeVars) || len(av.Domain) != len(bv.Domain) {
			return false
		}
		for i := range av.TypeVars {
			if av.TypeVars[i] != bv.TypeVars[i] {
				return false
			}
		}
		for i := range av.Domain {
			if !TypesEqual(av.Domain[i], bv.Domain[i]) {
				return false
			}
		}
		return TypesEqual(av.Range, bv.Range)
	case NamedType:
		bv, ok := b.(NamedType)
		if !ok || av.Name != bv.Name || av.IsTypeVar != bv.IsTypeVar || len(av.Args) != len(bv.Args) {
			return false
		}
		for i := range av.Args {
			if !TypesEqual(av.Args[i], bv.Args[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// IsFiniteDomain reports whether tpe has a domain the quantifier engine
// (internal/quant) can enumerate without an explicit user-supplied bound:
// booleans always, integers and user types only with help from interval
// inference or an imposed quantification bound.
func IsFiniteDomain(tpe Type) bool {
	switch tpe.(type) {
	case BoolType, IntType:
		return true
	case NamedType:
		return true
	default:
		return false
	}
}
