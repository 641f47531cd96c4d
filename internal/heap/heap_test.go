package heap

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/value"
)

func intArrayType() ast.Type {
	return ast.MapType{Domain: []ast.Type{ast.IntType{}}, Range: ast.IntType{}}
}

func TestAllocateSourceStartsEmpty(t *testing.T) {
	h := New()
	h, ref := h.AllocateSource(intArrayType())

	flat := h.Flatten(ref)
	if len(flat.Cache) != 0 {
		t.Errorf("fresh source map should be empty, got %v", flat.Cache)
	}
	if flat.Source.ID != ref.ID {
		t.Errorf("flattening a Source ref should return itself")
	}
}

func TestSetSourceValueVisibleThroughSameRef(t *testing.T) {
	h := New()
	h, ref := h.AllocateSource(intArrayType())
	h = h.SetSourceValue(ref, "0", value.NewInt(42))

	flat := h.Flatten(ref)
	if got := flat.Cache["0"]; !value.Equal(got, value.NewInt(42)) {
		t.Errorf("got %v, want 42", got)
	}
}

func TestDerivedOverrideShadowsSource(t *testing.T) {
	h := New()
	h, base := h.AllocateSource(intArrayType())
	h = h.SetSourceValue(base, "0", value.NewInt(1))

	h, derived := h.AllocateDerived(base, "0", value.NewInt(99), intArrayType())

	flat := h.Flatten(derived)
	if got := flat.Cache["0"]; !value.Equal(got, value.NewInt(99)) {
		t.Errorf("derived override should shadow source: got %v, want 99", got)
	}
	if flat.Source.ID != base.ID {
		t.Errorf("flattening derived should resolve to the base source")
	}

	baseFlat := h.Flatten(base)
	if got := baseFlat.Cache["0"]; !value.Equal(got, value.NewInt(1)) {
		t.Errorf("base source should be unaffected by a derived override: got %v", got)
	}
}

func TestExtendDerivedChain(t *testing.T) {
	h := New()
	h, base := h.AllocateSource(intArrayType())
	h, d1 := h.AllocateDerived(base, "0", value.NewInt(1), intArrayType())
	h = h.ExtendDerived(d1, "1", value.NewInt(2))

	flat := h.Flatten(d1)
	if diff := cmp.Diff(map[string]string{"0": "1", "1": "2"}, stringify(flat.Cache)); diff != "" {
		t.Errorf("unexpected cache (-want +got):\n%s", diff)
	}
}

func stringify(m map[string]value.Value) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.String()
	}
	return out
}

func TestRefCountAndGarbageCollection(t *testing.T) {
	h := New()
	h, ref := h.AllocateSource(intArrayType())
	h = h.IncRef(ref)

	if h.RefCount(ref) != 1 {
		t.Fatalf("refcount = %d, want 1", h.RefCount(ref))
	}

	h = h.DecRef(ref)
	if h.RefCount(ref) != 0 {
		t.Fatalf("refcount = %d, want 0", h.RefCount(ref))
	}

	h = h.CollectGarbage()
	if h.Len() != 0 {
		t.Errorf("GC should have removed the zero-refcount entry, %d entries remain", h.Len())
	}
}

func TestGarbageCollectionCascadesThroughDerivedBase(t *testing.T) {
	h := New()
	h, base := h.AllocateSource(intArrayType())
	h = h.IncRef(base)
	h, derived := h.AllocateDerived(base, "0", value.NewInt(1), intArrayType())
	h = h.IncRef(base) // the derived object's Base pointer holds a reference too
	h = h.IncRef(derived)

	h = h.DecRef(derived)
	h = h.CollectGarbage()

	if h.Len() != 1 {
		t.Fatalf("expected only the base to survive, %d entries remain", h.Len())
	}
	if h.RefCount(base) != 1 {
		t.Errorf("base refcount after cascade = %d, want 1", h.RefCount(base))
	}
}

func TestMemoryCloneIsIndependent(t *testing.T) {
	m := NewMemory()
	m = m.SetLocal("x", value.NewInt(1))

	branch := m.Clone()
	branch = branch.SetLocal("x", value.NewInt(2))

	orig, _ := m.GetLocal("x")
	got, _ := branch.GetLocal("x")
	if !value.Equal(orig, value.NewInt(1)) {
		t.Errorf("original branch mutated: %v", orig)
	}
	if !value.Equal(got, value.NewInt(2)) {
		t.Errorf("cloned branch did not take its own write: %v", got)
	}
}

func TestSetGlobalMirrorsFirstWriteToOld(t *testing.T) {
	m := NewMemory()
	m = m.SetGlobal("g", value.NewInt(10))
	m = m.SetGlobal("g", value.NewInt(20))

	old, ok := m.OldGlobals["g"]
	if !ok || !value.Equal(old, value.NewInt(10)) {
		t.Errorf("old(g) should be 10 (the pre-modification value), got %v", old)
	}
}

func TestRestoreOldOnlyUpdatesCallerClean(t *testing.T) {
	caller := NewMemory()
	caller = caller.SetGlobal("a", value.NewInt(1)) // caller already modified a
	caller = caller.SetGlobal("a", value.NewInt(2))

	calleeOld := map[string]value.Value{
		"a": value.NewInt(999), // callee's own old(a), irrelevant to caller
		"b": value.NewInt(5),   // a clean global the callee initialized
	}
	restored := caller.RestoreOld(calleeOld)

	if got := restored.OldGlobals["a"]; !value.Equal(got, value.NewInt(1)) {
		t.Errorf("caller's already-modified old(a) should be preserved, got %v", got)
	}
	if got := restored.OldGlobals["b"]; !value.Equal(got, value.NewInt(5)) {
		t.Errorf("clean global b should pick up the callee's old value, got %v", got)
	}
}
