package eval

import (
	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/heap"
	"github.com/taktoa/language-boogie/internal/report"
	"github.com/taktoa/language-boogie/internal/value"
)

func (e *Engine) evalMapSelect(n *ast.MapSelect) (value.Value, *report.Failure) {
	mv, f := e.Eval(n.Map)
	if f != nil {
		return nil, f
	}
	ref, ok := mv.(*value.Ref)
	if !ok {
		return nil, e.unsupported(n.Map.Pos(), "selection from a non-map value")
	}
	args, f := e.evalIndexTuple(n.Args)
	if f != nil {
		return nil, f
	}
	return e.selectAt(ref, args, n.Pos())
}

// evalIndexTuple evaluates map/function index arguments, rejecting map
// references: a map is not a usable index value.
func (e *Engine) evalIndexTuple(exprs []ast.Expr) ([]value.Value, *report.Failure) {
	args := make([]value.Value, len(exprs))
	for i, a := range exprs {
		v, f := e.Eval(a)
		if f != nil {
			return nil, f
		}
		if _, isRef := v.(*value.Ref); isRef {
			return nil, e.unsupported(a.Pos(), "map value used as a map index")
		}
		args[i] = v
	}
	return args, nil
}

// selectAt reads a map at an argument tuple, materializing the entry on
// first access: the flattened cache if present, then definitions attached
// to the source, then a generated value stored at the source and checked
// against the source's deferred constraints.
func (e *Engine) selectAt(ref *value.Ref, args []value.Value, pos ast.Position) (value.Value, *report.Failure) {
	key := e.encodeKey(args)
	flat := e.Mem.Heap.Flatten(ref)
	if v, ok := flat.Cache[key]; ok {
		if s, isSentinel := v.(*value.Sentinel); isSentinel {
			return nil, report.UnderConstruction(s.Code, pos)
		}
		return v, nil
	}

	srcObj := e.Mem.Heap.Object(flat.Source)
	for _, def := range srcObj.Definitions {
		if len(def.Formals) != len(args) {
			continue
		}
		v, applied, f := e.applyMapDefinition(flat.Source, key, def, args)
		if f != nil {
			return nil, f
		}
		if applied {
			return v, nil
		}
	}

	mt, ok := e.Ctx.Types.Resolve(srcObj.Type).(ast.MapType)
	if !ok {
		return nil, e.unsupported(pos, "selection from a value of non-map type "+srcObj.Type.String())
	}
	v, f := e.generateValue(e.Ctx.Types.Resolve(mt.Range), "", pos)
	if f != nil {
		return nil, f
	}
	e.storeSourceValue(flat.Source, key, v)

	for _, c := range srcObj.Constraints {
		if len(c.Formals) != len(args) {
			continue
		}
		if f := e.assumeDeferredConstraint(c, args); f != nil {
			return nil, f
		}
	}
	return v, nil
}

// applyMapDefinition tries one deferred definition at a key tuple. A
// sentinel occupies the source entry while the guard and body run, so a
// definition that re-reads its own entry is detected as a cycle and skipped.
func (e *Engine) applyMapDefinition(source *value.Ref, key string, def heap.Definition, args []value.Value) (value.Value, bool, *report.Failure) {
	code := e.nextCode()
	e.Mem = e.Mem.WithHeap(e.Mem.Heap.SetSourceValue(source, key, value.NewSentinel(code)))
	e.construction = append(e.construction, code)
	cleanup := func() {
		e.construction = e.construction[:len(e.construction)-1]
		e.Mem = e.Mem.WithHeap(e.Mem.Heap.UnsetSourceValue(source, key))
	}

	v, fail := e.withBindings(def.Formals, args, func() (value.Value, *report.Failure) {
		if def.Guard != nil {
			gv, f := e.Eval(def.Guard)
			if f != nil {
				return nil, f
			}
			gb, f := e.asBool(gv, def.Guard.Pos())
			if f != nil {
				return nil, f
			}
			if !gb {
				return nil, nil
			}
		}
		return e.Eval(def.Body)
	})
	cleanup()
	if fail != nil {
		if fail.IsCycle(code) {
			return nil, false, nil
		}
		return nil, false, fail
	}
	if v == nil { // guard was false
		return nil, false, nil
	}
	e.storeSourceValue(source, key, v)
	return v, true, nil
}

// assumeDeferredConstraint checks a reference-attached constraint at a key
// tuple, as assume(guard ==> body) with the formals bound to the tuple.
func (e *Engine) assumeDeferredConstraint(c heap.Constraint, args []value.Value) *report.Failure {
	_, fail := e.withBindings(c.Formals, args, func() (value.Value, *report.Failure) {
		if c.Guard != nil {
			gv, f := e.Eval(c.Guard)
			if f != nil {
				return nil, f
			}
			gb, f := e.asBool(gv, c.Guard.Pos())
			if f != nil {
				return nil, f
			}
			if !gb {
				return nil, nil
			}
		}
		return nil, e.assumeFreeClause(c.Body, report.ClauseAxiom)
	})
	return fail
}

// storeSourceValue writes through to a source payload, counting the stored
// value's reference if it is one.
func (e *Engine) storeSourceValue(source *value.Ref, key string, v value.Value) {
	e.incVal(v)
	e.Mem = e.Mem.WithHeap(e.Mem.Heap.SetSourceValue(source, key, v))
}

// evalMapUpdate builds a fresh derived reference: over a source base it
// carries the single new override; over a derived base it merges the base's
// overrides with the new one, staying one step from the source.
func (e *Engine) evalMapUpdate(n *ast.MapUpdate) (value.Value, *report.Failure) {
	mv, f := e.Eval(n.Map)
	if f != nil {
		return nil, f
	}
	ref, ok := mv.(*value.Ref)
	if !ok {
		return nil, e.unsupported(n.Map.Pos(), "update of a non-map value")
	}
	args, f := e.evalIndexTuple(n.Args)
	if f != nil {
		return nil, f
	}
	nv, f := e.Eval(n.Value)
	if f != nil {
		return nil, f
	}
	key := e.encodeKey(args)

	obj := e.Mem.Heap.Object(ref)
	if obj.Kind == heap.Source {
		h, newRef := e.Mem.Heap.AllocateDerived(ref, key, nv, obj.Type)
		e.Mem = e.Mem.WithHeap(h)
		e.incVal(ref) // the new entry's base
		e.incVal(nv)
		return newRef, nil
	}

	h, newRef := e.Mem.Heap.AllocateDerived(obj.Base, key, nv, obj.Type)
	e.Mem = e.Mem.WithHeap(h)
	e.incVal(obj.Base)
	e.incVal(nv)
	for _, k := range sortedKeys(obj.Overrides) {
		if k == key {
			continue
		}
		v := obj.Overrides[k]
		e.Mem = e.Mem.WithHeap(e.Mem.Heap.ExtendDerived(newRef, k, v))
		e.incVal(v)
	}
	return newRef, nil
}
