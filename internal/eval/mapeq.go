package eval

import (
	"sort"

	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/heap"
	"github.com/taktoa/language-boogie/internal/report"
	"github.com/taktoa/language-boogie/internal/value"
)

// ResolveMapEquality decides equality of two map references. Identity and a
// conflicting shared key decide immediately; otherwise the outcome is a
// genuine non-deterministic choice: the maps may be forced equal, or a
// witness of disagreement is manufactured — in the overrides when the
// references share a source, in the sources themselves when they do not.
func (e *Engine) ResolveMapEquality(a, b *value.Ref, pos ast.Position) (bool, *report.Failure) {
	if a.ID == b.ID {
		return true, nil
	}

	flatA := e.Mem.Heap.Flatten(a)
	flatB := e.Mem.Heap.Flatten(b)

	// Direct evidence: a shared key with distinct scalar values.
	for _, k := range sortedKeys(flatA.Cache) {
		vb, ok := flatB.Cache[k]
		if !ok {
			continue
		}
		va := flatA.Cache[k]
		if isRefPair(va, vb) || isSentinel(va) || isSentinel(vb) {
			continue
		}
		if !value.Equal(va, vb) {
			return false, nil
		}
	}

	if e.Chooser.Bool() {
		if f := e.forceEqual(a, b, pos); f != nil {
			return false, f
		}
		return true, nil
	}

	diff := e.differingKeys(flatA.Cache, flatB.Cache)
	sameSource := flatA.Source.ID == flatB.Source.ID

	if sameSource {
		if len(diff) == 0 {
			// Same source, identical overrides: the maps are the same map.
			return true, nil
		}
		return e.resolveAtKey(a, b, diff, pos)
	}

	// Distinct sources: the disagreement may still live in the override
	// layers, or in the sources themselves.
	if len(diff) > 0 && e.Chooser.Bool() {
		return e.resolveAtKey(a, b, diff, pos)
	}
	e.installDistinguisher(flatA.Source, flatB.Source, a, b)
	return false, nil
}

// resolveAtKey picks one key the caches disagree on, materializes both
// sides there, and re-resolves with the new evidence.
func (e *Engine) resolveAtKey(a, b *value.Ref, diff []string, pos ast.Position) (bool, *report.Failure) {
	k := diff[0]
	if len(diff) > 1 {
		k = diff[e.Chooser.Index(len(diff))]
	}
	args := e.decodeKey(k)
	va, f := e.selectAt(a, args, pos)
	if f != nil {
		return false, f
	}
	vb, f := e.selectAt(b, args, pos)
	if f != nil {
		return false, f
	}
	if !isRefPair(va, vb) && !value.Equal(va, vb) {
		return false, nil
	}
	return e.ResolveMapEquality(a, b, pos)
}

// differingKeys is the sorted symmetric difference of two caches (shared
// keys with unequal values were already decided by the conflict scan).
func (e *Engine) differingKeys(ca, cb map[string]value.Value) []string {
	seen := map[string]bool{}
	var out []string
	for k := range ca {
		if _, ok := cb[k]; !ok {
			seen[k] = true
		}
	}
	for k := range cb {
		if _, ok := ca[k]; !ok {
			seen[k] = true
		}
	}
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// installDistinguisher materializes the decision that two sources are
// incompatible: both gain, at a key synthesized from the pair, a custom
// value tagged by their own reference, so any later comparison sees a
// conflicting shared key.
func (e *Engine) installDistinguisher(srcA, srcB, a, b *value.Ref) {
	keyArgs := []value.Value{
		value.NewCustom("map$key", a.ID),
		value.NewCustom("map$key", b.ID),
	}
	k := e.encodeKey(keyArgs)
	e.storeSourceValue(srcA, k, value.NewCustom("map$distinct", a.ID))
	e.storeSourceValue(srcB, k, value.NewCustom("map$distinct", b.ID))
}

// forceEqual makes two references denote the same map from here on.
// Shared keys are reconciled first; then either the private overrides are
// promoted into the common source, or both sources are redirected to a
// fresh union source.
func (e *Engine) forceEqual(a, b *value.Ref, pos ast.Position) *report.Failure {
	if a.ID == b.ID {
		return nil
	}
	flatA := e.Mem.Heap.Flatten(a)
	flatB := e.Mem.Heap.Flatten(b)

	for _, k := range sortedKeys(flatA.Cache) {
		vb, ok := flatB.Cache[k]
		if !ok {
			continue
		}
		va := flatA.Cache[k]
		if isSentinel(va) || isSentinel(vb) {
			continue
		}
		if value.Equal(va, vb) {
			continue
		}
		ra, aRef := va.(*value.Ref)
		rb, bRef := vb.(*value.Ref)
		if aRef && bRef {
			if f := e.forceEqual(ra, rb, pos); f != nil {
				return f
			}
			continue
		}
		// The maps already disagree here; the choice to force them equal
		// was infeasible.
		return report.SpecViolation(report.ClauseInline, true, pos, "forced map equality", "").WithMemory(e.Mem)
	}

	if flatA.Source.ID == flatB.Source.ID {
		src := flatA.Source
		srcObj := e.Mem.Heap.Object(src)
		for _, k := range sortedKeys(flatA.Cache) {
			if _, inSrc := srcObj.Values[k]; !inSrc {
				e.storeSourceValue(src, k, flatA.Cache[k])
			}
		}
		srcObj = e.Mem.Heap.Object(src)
		for _, k := range sortedKeys(flatB.Cache) {
			if _, inSrc := srcObj.Values[k]; !inSrc {
				e.storeSourceValue(src, k, flatB.Cache[k])
			}
		}
		return nil
	}

	// Distinct sources: build the union source and redirect both old
	// sources (and with them every derived descendant) onto it.
	objA := e.Mem.Heap.Object(flatA.Source)
	objB := e.Mem.Heap.Object(flatB.Source)

	h, union := e.Mem.Heap.AllocateSource(objA.Type)
	e.Mem = e.Mem.WithHeap(h)

	merged := map[string]value.Value{}
	for k, v := range flatB.Cache {
		merged[k] = v
	}
	for k, v := range flatA.Cache {
		merged[k] = v
	}
	for _, k := range sortedKeys(merged) {
		if isSentinel(merged[k]) {
			continue
		}
		e.storeSourceValue(union, k, merged[k])
	}

	for _, obj := range []*heap.MapObject{objA, objB} {
		for _, d := range obj.Definitions {
			e.Mem = e.Mem.WithHeap(e.Mem.Heap.AttachDefinition(union, d))
		}
		for _, c := range obj.Constraints {
			e.Mem = e.Mem.WithHeap(e.Mem.Heap.AttachConstraint(union, c))
		}
	}

	e.redirect(flatA.Source, union, objA.Values)
	e.redirect(flatB.Source, union, objB.Values)
	return nil
}

// redirect rewires one old source onto the union source, releasing the
// values the old payload held (they live in the union now) and counting the
// new base edge.
func (e *Engine) redirect(oldSource, union *value.Ref, oldValues map[string]value.Value) {
	e.Mem = e.Mem.WithHeap(e.Mem.Heap.RedirectSource(oldSource, union))
	e.incVal(union)
	for _, k := range sortedKeys(oldValues) {
		if isSentinel(oldValues[k]) {
			continue
		}
		e.decVal(oldValues[k])
	}
}

func isRefPair(a, b value.Value) bool {
	_, aRef := a.(*value.Ref)
	_, bRef := b.(*value.Ref)
	return aRef && bRef
}

func isSentinel(v value.Value) bool {
	_, ok := v.(*value.Sentinel)
	return ok
}
