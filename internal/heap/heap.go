// Package heap is the reference-counted arena of map values: each entry is
// either a Source (an explicit partial mapping) or a Derived view (a base
// reference plus overrides), with counts maintained by the callers that
// store and drop references and a collector that sweeps unreferenced
// entries at statement boundaries.
//
// Entries live in a github.com/benbjohnson/immutable.SortedMap so that
// taking a branch-local copy is O(log n) structural sharing rather than a
// deep copy: every non-deterministic branch gets its own Heap value for the
// price of a handful of pointer writes.
package heap

import (
	"fmt"
	"sort"

	"github.com/benbjohnson/immutable"

	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/value"
)

// MapKind distinguishes a map's representation.
type MapKind int

const (
	Source MapKind = iota
	Derived
)

// MapObject is one heap entry's payload: either an explicit partial mapping
// from key-tuple to value (Source), or a base reference plus an override
// partial mapping (Derived).
type MapObject struct {
	Kind MapKind
	Type ast.Type // the map's declared type, for definition/constraint matching

	// Source: the explicit mapping, keyed by an encoded argument tuple.
	Values map[string]value.Value

	// Derived: Base is flattened lazily by Flatten, not eagerly here.
	Base      *value.Ref
	Overrides map[string]value.Value

	// Quantified definitions and constraints attached to this reference,
	// applied per key tuple when later indexing materializes an entry.
	Definitions []Definition
	Constraints []Constraint
}

// Definition and Constraint mirror internal/store's, duplicated here (as a
// minimal read-only view) so internal/heap does not import internal/store
// and create a cycle; internal/eval reconciles the two when it consults a
// map reference's attached rules.
type Definition struct {
	Formals []ast.VarDecl
	Guard   ast.Expr
	Body    ast.Expr
}

type Constraint struct {
	Formals []ast.VarDecl
	Guard   ast.Expr
	Body    ast.Expr
}

// entry is what actually lives in the persistent map: the payload plus its
// reference count.
type entry struct {
	obj      *MapObject
	refCount int
}

// Heap is an immutable value: every mutating method returns a new Heap,
// sharing unmodified entries with the receiver via structural sharing.
type Heap struct {
	objects *immutable.SortedMap
	nextID  int64
}

func New() *Heap {
	return &Heap{objects: immutable.NewSortedMap(&int64Comparer{}), nextID: 1}
}

type int64Comparer struct{}

func (int64Comparer) Compare(a, b interface{}) int {
	x, y := a.(int64), b.(int64)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func (h *Heap) clone() *Heap {
	return &Heap{objects: h.objects, nextID: h.nextID}
}

func (h *Heap) getEntry(id int64) (*entry, bool) {
	v, ok := h.objects.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

func (h *Heap) setEntry(id int64, e *entry) *Heap {
	nh := h.clone()
	nh.objects = h.objects.Set(id, e)
	return nh
}

// AllocateSource allocates a fresh Source map with no entries. The new
// reference starts at refCount 0: the caller IncRefs it once it is stored
// into a slot.
func (h *Heap) AllocateSource(tpe ast.Type) (*Heap, *value.Ref) {
	id := h.nextID
	nh := h.clone()
	nh.nextID = id + 1
	ref := value.NewRef(id)
	nh = nh.setEntry(id, &entry{obj: &MapObject{Kind: Source, Type: tpe, Values: map[string]value.Value{}}})
	return nh, ref
}

// AllocateDerived allocates a fresh Derived map overriding base at key
// with val. base's refcount and val's refcount (if a Ref) are incremented
// by the caller via IncRef; a count rises whenever a reference is stored
// into a slot or container.
func (h *Heap) AllocateDerived(base *value.Ref, key string, val value.Value, tpe ast.Type) (*Heap, *value.Ref) {
	if _, ok := h.getEntry(base.ID); !ok {
		panic(fmt.Sprintf("heap: AllocateDerived on unknown ref %d", base.ID))
	}
	id := h.nextID
	nh := h.clone()
	nh.nextID = id + 1
	newRef := value.NewRef(id)
	overrides := map[string]value.Value{key: val}
	obj := &MapObject{Kind: Derived, Type: tpe, Base: base, Overrides: overrides}
	nh = nh.setEntry(id, &entry{obj: obj})
	return nh, newRef
}

// ExtendDerived returns a Heap where ref (which must be Derived) has one
// more override key. Used when the base of a map update is itself Derived
// and the new view extends its override layer.
func (h *Heap) ExtendDerived(ref *value.Ref, key string, val value.Value) *Heap {
	e, ok := h.getEntry(ref.ID)
	if !ok || e.obj.Kind != Derived {
		panic("heap: ExtendDerived requires an existing Derived ref")
	}
	newOverrides := make(map[string]value.Value, len(e.obj.Overrides)+1)
	for k, v := range e.obj.Overrides {
		newOverrides[k] = v
	}
	newOverrides[key] = val
	newObj := *e.obj
	newObj.Overrides = newOverrides
	return h.setEntry(ref.ID, &entry{obj: &newObj, refCount: e.refCount})
}

// Flattened is the result of resolving a Derived chain: the ultimate Source
// reference and the merged key->value view as seen through ref.
type Flattened struct {
	Source *value.Ref
	Cache  map[string]value.Value
}

// Flatten resolves ref's Derived chain to (ultimate source, merged cache).
// Chains are finite and acyclic by construction — a fresh reference is
// always derived from an existing one, and equality forcing redirects
// chains to a newly allocated source, never back — so this terminates.
func (h *Heap) Flatten(ref *value.Ref) Flattened {
	var chain []*MapObject
	cur := ref
	for {
		e, ok := h.getEntry(cur.ID)
		if !ok {
			panic(fmt.Sprintf("heap: Flatten on unknown ref %d", cur.ID))
		}
		chain = append(chain, e.obj)
		if e.obj.Kind == Source {
			break
		}
		cur = e.obj.Base
	}
	// chain[0] is ref's own object, chain[len-1] is the Source. Merge from
	// the Source outward so that overrides closer to ref (earlier in chain)
	// win over ones closer to the Source (later in chain).
	merged := make(map[string]value.Value)
	sourceObj := chain[len(chain)-1]
	for k, v := range sourceObj.Values {
		merged[k] = v
	}
	for i := len(chain) - 2; i >= 0; i-- {
		for k, v := range chain[i].Overrides {
			merged[k] = v
		}
	}
	return Flattened{Source: cur, Cache: merged}
}

// SetSourceValue stores val at key directly on the ultimate source's
// payload, not on any override: a value materialized by map selection
// belongs to the source so every view of it agrees.
func (h *Heap) SetSourceValue(sourceRef *value.Ref, key string, val value.Value) *Heap {
	e, ok := h.getEntry(sourceRef.ID)
	if !ok || e.obj.Kind != Source {
		panic("heap: SetSourceValue requires a Source ref")
	}
	newValues := make(map[string]value.Value, len(e.obj.Values)+1)
	for k, v := range e.obj.Values {
		newValues[k] = v
	}
	newValues[key] = val
	newObj := *e.obj
	newObj.Values = newValues
	return h.setEntry(sourceRef.ID, &entry{obj: &newObj, refCount: e.refCount})
}

// UnsetSourceValue removes a key from a Source payload, used to withdraw an
// under-construction sentinel when a map definition turns out not to apply.
func (h *Heap) UnsetSourceValue(sourceRef *value.Ref, key string) *Heap {
	e, ok := h.getEntry(sourceRef.ID)
	if !ok || e.obj.Kind != Source {
		panic("heap: UnsetSourceValue requires a Source ref")
	}
	newValues := make(map[string]value.Value, len(e.obj.Values))
	for k, v := range e.obj.Values {
		if k != key {
			newValues[k] = v
		}
	}
	newObj := *e.obj
	newObj.Values = newValues
	return h.setEntry(sourceRef.ID, &entry{obj: &newObj, refCount: e.refCount})
}

// Object returns the raw payload for a reference (used by internal/eval to
// consult Definitions/Constraints attached directly to it).
func (h *Heap) Object(ref *value.Ref) *MapObject {
	e, ok := h.getEntry(ref.ID)
	if !ok {
		panic(fmt.Sprintf("heap: Object on unknown ref %d", ref.ID))
	}
	return e.obj
}

// AttachDefinition/AttachConstraint add a quantified rule to a map
// reference.
func (h *Heap) AttachDefinition(ref *value.Ref, d Definition) *Heap {
	e, _ := h.getEntry(ref.ID)
	newObj := *e.obj
	newObj.Definitions = append(append([]Definition{}, e.obj.Definitions...), d)
	return h.setEntry(ref.ID, &entry{obj: &newObj, refCount: e.refCount})
}

func (h *Heap) AttachConstraint(ref *value.Ref, c Constraint) *Heap {
	e, _ := h.getEntry(ref.ID)
	newObj := *e.obj
	newObj.Constraints = append(append([]Constraint{}, e.obj.Constraints...), c)
	return h.setEntry(ref.ID, &entry{obj: &newObj, refCount: e.refCount})
}

// RedirectSource turns an existing Source entry into an empty Derived entry
// based on newSource. Map-equality forcing uses this to unify two distinct
// sources under a freshly allocated one: every ref that used to flatten to
// the old source now flattens through it to newSource, with Derived override
// deltas along the way preserved. The caller moves the old source's stored
// values into newSource first and fixes reference counts (newSource gains a
// count for each redirected entry now based on it).
func (h *Heap) RedirectSource(oldSource, newSource *value.Ref) *Heap {
	e, ok := h.getEntry(oldSource.ID)
	if !ok || e.obj.Kind != Source {
		panic("heap: RedirectSource requires an existing Source ref")
	}
	obj := &MapObject{
		Kind:      Derived,
		Type:      e.obj.Type,
		Base:      newSource,
		Overrides: map[string]value.Value{},
	}
	return h.setEntry(oldSource.ID, &entry{obj: obj, refCount: e.refCount})
}

// RefCount returns the live reference count for diagnostic/testing use.
func (h *Heap) RefCount(ref *value.Ref) int {
	e, ok := h.getEntry(ref.ID)
	if !ok {
		return 0
	}
	return e.refCount
}

// IncRef/DecRef adjust a reference's count by one: incremented on store or
// scope entry, decremented on overwrite, unset, or scope exit.
func (h *Heap) IncRef(ref *value.Ref) *Heap {
	e, ok := h.getEntry(ref.ID)
	if !ok {
		panic(fmt.Sprintf("heap: IncRef on unknown ref %d", ref.ID))
	}
	return h.setEntry(ref.ID, &entry{obj: e.obj, refCount: e.refCount + 1})
}

func (h *Heap) DecRef(ref *value.Ref) *Heap {
	e, ok := h.getEntry(ref.ID)
	if !ok {
		return h
	}
	return h.setEntry(ref.ID, &entry{obj: e.obj, refCount: e.refCount - 1})
}

// dealloc removes the entry with the given id entirely.
func (h *Heap) dealloc(id int64) *Heap {
	nh := h.clone()
	nh.objects = h.objects.Delete(id)
	return nh
}

// internalValues returns every value.Value a MapObject stores (its own
// payload, for both Source and Derived), used by GC to find reference
// values held inside maps.
func (obj *MapObject) internalValues() []value.Value {
	var out []value.Value
	for _, v := range obj.Values {
		out = append(out, v)
	}
	for _, v := range obj.Overrides {
		out = append(out, v)
	}
	return out
}

// CollectGarbage repeatedly deallocs zero-refcount entries, decrementing
// whatever they in turn referenced (their Derived base, and any reference
// values stored inside them), until no zero-refcount entries remain. The
// statement evaluator runs it after every basic statement.
func (h *Heap) CollectGarbage() *Heap {
	cur := h
	for {
		dead := cur.findDead()
		if len(dead) == 0 {
			return cur
		}
		for _, id := range dead {
			e, ok := cur.getEntry(id)
			if !ok {
				continue
			}
			cur = cur.dealloc(id)
			if e.obj.Base != nil {
				cur = cur.DecRef(e.obj.Base)
			}
			for _, v := range e.obj.internalValues() {
				if r, ok := v.(*value.Ref); ok {
					cur = cur.DecRef(r)
				}
			}
		}
	}
}

func (h *Heap) findDead() []int64 {
	var dead []int64
	itr := h.objects.Iterator()
	for !itr.Done() {
		k, v := itr.Next()
		id := k.(int64)
		e := v.(*entry)
		if e.refCount <= 0 {
			dead = append(dead, id)
		}
	}
	sort.Slice(dead, func(i, j int) bool { return dead[i] < dead[j] })
	return dead
}

// Len reports the number of live entries (test/debug use).
func (h *Heap) Len() int { return h.objects.Len() }

// Dump renders every live entry; used by internal/report's debug-mode heap
// dumps via github.com/davecgh/go-spew for the values themselves, here just
// listing identities and kinds.
func (h *Heap) Dump() string {
	s := ""
	itr := h.objects.Iterator()
	for !itr.Done() {
		k, v := itr.Next()
		id := k.(int64)
		e := v.(*entry)
		kind := "source"
		if e.obj.Kind == Derived {
			kind = "derived"
		}
		s += fmt.Sprintf("ref#%d (%s, refcount=%d)\n", id, kind, e.refCount)
	}
	return s
}
