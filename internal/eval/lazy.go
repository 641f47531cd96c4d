package eval

import (
	"math/big"

	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/heap"
	"github.com/taktoa/language-boogie/internal/preprocess"
	"github.com/taktoa/language-boogie/internal/report"
	"github.com/taktoa/language-boogie/internal/store"
	"github.com/taktoa/language-boogie/internal/value"
)

// Slot operations. Every store of a value into a named slot goes through
// these so heap reference counts stay consistent: a reference's count is
// exactly the number of slots and heap containers pointing at it.

func (e *Engine) incVal(v value.Value) {
	if r, ok := v.(*value.Ref); ok {
		e.Mem = e.Mem.WithHeap(e.Mem.Heap.IncRef(r))
	}
}

func (e *Engine) decVal(v value.Value) {
	if r, ok := v.(*value.Ref); ok {
		e.Mem = e.Mem.WithHeap(e.Mem.Heap.DecRef(r))
	}
}

func (e *Engine) SetLocal(name string, v value.Value) {
	if old, ok := e.Mem.GetLocal(name); ok {
		e.decVal(old)
	}
	e.incVal(v)
	e.Mem = e.Mem.SetLocal(name, v)
}

func (e *Engine) UnsetLocal(name string) {
	if old, ok := e.Mem.GetLocal(name); ok {
		e.decVal(old)
	}
	e.Mem = e.Mem.UnsetLocal(name)
}

// SetGlobal performs a program write: the previous value, if there is one
// and the old store has none yet, is preserved in the old store, and the
// global is marked modified.
func (e *Engine) SetGlobal(name string, v value.Value) {
	cur, hasCur := e.Mem.Globals[name]
	if _, hasOld := e.Mem.OldGlobals[name]; !hasOld && !e.Mem.InOld && hasCur {
		// The old store gains a slot holding the current value.
		e.incVal(cur)
	}
	if hasCur {
		e.decVal(cur)
	}
	e.incVal(v)
	e.Mem = e.Mem.SetGlobal(name, v)
}

// ForgetGlobal havocs a global: its value is dropped (after being saved as
// the old value if no old value exists yet) and the next read materializes
// afresh.
func (e *Engine) ForgetGlobal(name string) {
	cur, hasCur := e.Mem.Globals[name]
	if _, hasOld := e.Mem.OldGlobals[name]; !hasOld && !e.Mem.InOld && hasCur {
		e.incVal(cur)
		e.Mem = e.Mem.MirrorToOld(name, cur)
	}
	if hasCur {
		e.decVal(cur)
	}
	e.Mem = e.Mem.ForgetGlobal(name)
}

func (e *Engine) SetConstant(name string, v value.Value) {
	if old, ok := e.Mem.GetConstant(name); ok {
		e.decVal(old)
	}
	e.incVal(v)
	e.Mem = e.Mem.SetConstant(name, v)
}

func (e *Engine) setOld(name string, v value.Value) {
	if old, ok := e.Mem.OldGlobals[name]; ok {
		e.decVal(old)
	}
	e.incVal(v)
	e.Mem = e.Mem.MirrorToOld(name, v)
}

// setSlotRaw and clearSlot place and remove under-construction sentinels
// without reference-count bookkeeping (sentinels are not references).
func (e *Engine) setSlotRaw(name string, class nameClass, v value.Value) {
	switch class {
	case classLocal:
		e.Mem = e.Mem.SetLocal(name, v)
	case classGlobal:
		e.Mem = e.Mem.InitGlobal(name, v)
	default:
		e.Mem = e.Mem.SetConstant(name, v)
	}
}

func (e *Engine) clearSlot(name string, class nameClass) {
	switch class {
	case classLocal:
		e.Mem = e.Mem.UnsetLocal(name)
	case classGlobal:
		e.Mem = e.Mem.UnsetGlobal(name)
	default:
		e.Mem = e.Mem.UnsetConstant(name)
	}
}

// storeMaterialized records a freshly resolved or generated value in the
// right store for its class. A global materialized outside an old scope and
// not yet modified mirrors into the old store, so old(x) later observes the
// same initial value; one materialized inside an old scope lands in the old
// store, plus the current store if the global was never touched (entry value
// and current value still coincide then).
func (e *Engine) storeMaterialized(name string, class nameClass, v value.Value) {
	switch class {
	case classLocal:
		e.incVal(v)
		e.Mem = e.Mem.SetLocal(name, v)
	case classGlobal:
		if e.Mem.InOld {
			if _, hasCur := e.Mem.Globals[name]; !hasCur && !e.Mem.Modified[name] {
				e.incVal(v)
				e.Mem = e.Mem.InitGlobal(name, v)
			}
			e.setOld(name, v)
			return
		}
		e.incVal(v)
		e.Mem = e.Mem.InitGlobal(name, v)
		_, hasOld := e.Mem.OldGlobals[name]
		if !hasOld && !e.Mem.Modified[name] {
			e.setOld(name, v)
		}
	default:
		e.SetConstant(name, v)
	}
}

// ResolveName reads a name, materializing it on first use: stored value if
// present (rejecting under-construction sentinels), then applicable
// definitions, then a generated value constrained by where-clauses and
// axioms.
func (e *Engine) ResolveName(name string, pos ast.Position) (value.Value, *report.Failure) {
	decl, class, ok := e.lookupDecl(name)
	if !ok {
		return nil, e.unsupported(pos, "unknown identifier "+name)
	}
	if v, ok := e.currentValue(name, class); ok {
		if s, isSentinel := v.(*value.Sentinel); isSentinel {
			return nil, report.UnderConstruction(s.Code, pos)
		}
		return v, nil
	}
	return e.materialize(name, decl, class, pos)
}

func (e *Engine) currentValue(name string, class nameClass) (value.Value, bool) {
	switch class {
	case classLocal:
		return e.Mem.GetLocal(name)
	case classGlobal:
		return e.Mem.GetGlobal(name)
	default:
		return e.Mem.GetConstant(name)
	}
}

func (e *Engine) materialize(name string, decl ast.VarDecl, class nameClass, pos ast.Position) (value.Value, *report.Failure) {
	// Constants resolve to the same value for the rest of the run, so their
	// resolution is memoized in the store; locals and globals re-materialize
	// after havoc and per frame.
	if class == classConst {
		if v, ok := e.Store.Get(name); ok {
			e.storeMaterialized(name, class, v)
			return v, nil
		}
	}

	st, err := e.Store.Begin(name)
	if err != nil {
		// Already being resolved higher up the stack without a sentinel in
		// this slot; signal a cycle with no owning frame.
		return nil, report.UnderConstruction(0, pos)
	}
	e.Store = st

	tpe := e.Ctx.Types.Resolve(decl.Type)

	for _, def := range e.Store.Definitions(name) {
		if len(def.Formals) > 0 {
			continue // deferred: attaches to the map reference below
		}
		v, applied, f := e.applyDefinition(name, class, def)
		if f != nil {
			e.Store = e.Store.Abandon(name)
			return nil, f
		}
		if applied {
			e.storeMaterialized(name, class, v)
			e.finishResolution(name, class, v)
			return v, nil
		}
	}

	v, f := e.generateValue(tpe, name, pos)
	if f != nil {
		e.Store = e.Store.Abandon(name)
		return nil, f
	}
	e.storeMaterialized(name, class, v)
	e.finishResolution(name, class, v)

	if ref, isRef := v.(*value.Ref); isRef {
		e.attachDeferred(ref, name)
	}

	e.recordInput(name, class, v)

	if decl.Where != nil {
		if f := e.assumeFreeClause(decl.Where, report.ClauseWhere); f != nil {
			return nil, f
		}
	}
	for _, c := range e.Store.Constraints(name) {
		if len(c.Formals) > 0 {
			continue // deferred to per-index application
		}
		if f := e.assumeConstraint(c); f != nil {
			return nil, f
		}
	}
	return v, nil
}

// recordInput captures generator-drawn values that constitute the test
// case's inputs: entry-procedure parameters and globals.
func (e *Engine) recordInput(name string, class nameClass, v value.Value) {
	switch class {
	case classLocal:
		if e.RecordInputs && e.Depth == 1 && e.EntryParams[name] {
			e.Inputs[name] = v
		}
	case classGlobal:
		if !e.Mem.InOld {
			e.GlobalInputs[name] = v
		}
	}
}

// applyDefinition tries one guarded definition for a named entity. The slot
// holds a fresh under-construction sentinel while the guard and body run;
// re-entering the same entity during that evaluation surfaces as a cycle
// signal owned by this frame, which renders the definition non-applicable
// rather than looping.
func (e *Engine) applyDefinition(name string, class nameClass, def store.Definition) (value.Value, bool, *report.Failure) {
	code := e.nextCode()
	e.setSlotRaw(name, class, value.NewSentinel(code))
	e.construction = append(e.construction, code)
	cleanup := func() {
		e.construction = e.construction[:len(e.construction)-1]
		e.clearSlot(name, class)
	}

	if def.Guard != nil {
		gv, f := e.Eval(def.Guard)
		if f != nil {
			cleanup()
			if f.IsCycle(code) {
				return nil, false, nil
			}
			return nil, false, f
		}
		gb, f := e.asBool(gv, def.Guard.Pos())
		if f != nil {
			cleanup()
			return nil, false, f
		}
		if !gb {
			cleanup()
			return nil, false, nil
		}
	}

	v, f := e.Eval(def.Body)
	cleanup()
	if f != nil {
		if f.IsCycle(code) {
			return nil, false, nil
		}
		return nil, false, f
	}
	return v, true, nil
}

func (e *Engine) finishResolution(name string, class nameClass, v value.Value) {
	if class == classConst {
		e.Store = e.Store.Finish(name, v)
	} else {
		e.Store = e.Store.Abandon(name)
	}
}

func (e *Engine) nextCode() int64 {
	e.sentinelSeq++
	return e.sentinelSeq
}

// attachDeferred moves quantified definitions and constraints for a named
// map onto its freshly allocated reference, where later indexing applies
// them per key tuple.
func (e *Engine) attachDeferred(ref *value.Ref, name string) {
	h := e.Mem.Heap
	for _, d := range e.Store.Definitions(name) {
		if len(d.Formals) == 0 {
			continue
		}
		h = h.AttachDefinition(ref, heap.Definition{Formals: d.Formals, Guard: d.Guard, Body: d.Body})
	}
	for _, c := range e.Store.Constraints(name) {
		if len(c.Formals) == 0 {
			continue
		}
		h = h.AttachConstraint(ref, heap.Constraint{Formals: c.Formals, Guard: c.Guard, Body: c.Body})
	}
	e.Mem = e.Mem.WithHeap(h)
}

// assumeConstraint executes assume(guard ==> body) for a simple constraint
// at materialization time.
func (e *Engine) assumeConstraint(c store.Constraint) *report.Failure {
	if c.Guard != nil {
		gv, f := e.Eval(c.Guard)
		if f != nil {
			return f
		}
		gb, f := e.asBool(gv, c.Guard.Pos())
		if f != nil {
			return f
		}
		if !gb {
			return nil
		}
	}
	return e.assumeFreeClause(c.Body, report.ClauseAxiom)
}

// assumeFreeClause evaluates a clause as a free assumption: a false result
// invalidates the current branch rather than failing it.
func (e *Engine) assumeFreeClause(cond ast.Expr, clause report.Clause) *report.Failure {
	e.LastTerm = nil
	v, f := e.Eval(cond)
	if f != nil {
		return f
	}
	b, f := e.asBool(v, cond.Pos())
	if f != nil {
		return f
	}
	if !b {
		last := ""
		if e.LastTerm != nil {
			last = e.LastTerm.String()
		}
		return report.SpecViolation(clause, true, cond.Pos(), cond.String(), last).WithMemory(e.Mem)
	}
	return nil
}

// generateValue draws a fresh value of the given type from the generator.
func (e *Engine) generateValue(tpe ast.Type, name string, pos ast.Position) (value.Value, *report.Failure) {
	switch t := tpe.(type) {
	case ast.BoolType:
		return value.NewBool(e.Chooser.Bool()), nil

	case ast.IntType:
		return value.NewInt(e.Chooser.Int(e.intDomain(name))), nil

	case ast.MapType:
		h, ref := e.Mem.Heap.AllocateSource(t)
		e.Mem = e.Mem.WithHeap(h)
		return ref, nil

	case ast.NamedType:
		if t.IsTypeVar {
			return nil, e.unsupported(pos, "value of unresolved type variable "+t.Name)
		}
		return value.NewCustom(t.Name, e.Chooser.Int(e.intDomain(name))), nil

	default:
		return nil, e.unsupported(pos, "value of type "+tpe.String())
	}
}

// intDomain is the ordered candidate list for a free integer draw. When the
// solver bridge is available and the name carries scalar constraints, the
// solver enumerates values that actually satisfy them; otherwise a small
// window around zero is offered, with zero first so the default run draws
// the default value.
func (e *Engine) intDomain(name string) []int64 {
	if name != "" && e.Bridge != nil {
		if dom := e.solverDomain(name); len(dom) > 0 {
			return dom
		}
	}
	radius := e.QBound
	if radius < 0 {
		radius = 0
	}
	if radius > 8 {
		radius = 8
	}
	out := []int64{0}
	for i := int64(1); i <= radius; i++ {
		out = append(out, i, -i)
	}
	return out
}

// solverDomain asks the bridge for values of name satisfying its simple
// constraints, pinning already materialized scalar variables. Any
// translation trouble falls back to the windowed draw — the constraints
// are re-checked as assumptions either way.
func (e *Engine) solverDomain(name string) []int64 {
	var constraints []ast.Expr
	for _, c := range e.Store.Constraints(name) {
		if len(c.Formals) > 0 {
			continue
		}
		body := c.Body
		if c.Guard != nil {
			body = &ast.Binary{Op: ast.Implies, X: c.Guard, Y: c.Body}
		}
		constraints = append(constraints, body)
	}
	if decl, _, ok := e.lookupDecl(name); ok && decl.Where != nil {
		constraints = append(constraints, decl.Where)
	}
	if len(constraints) == 0 {
		return nil
	}

	known := map[string]value.Value{}
	for _, k := range sortedKeys(e.Mem.Globals) {
		known[k] = e.Mem.Globals[k]
	}
	for _, k := range sortedKeys(e.Mem.Constants) {
		known[k] = e.Mem.Constants[k]
	}
	for _, k := range sortedKeys(e.Mem.Locals) {
		known[k] = e.Mem.Locals[k]
	}

	max := 2*int(e.QBound) + 1
	if max < 1 {
		max = 1
	}
	dom, err := e.Bridge.Solutions(constraints, name, known, max, e.Depth)
	if err != nil {
		return nil
	}
	return dom
}

// functionRef materializes the constant map backing a function. Definitions
// extracted from the function body and its axioms attach to the reference.
func (e *Engine) functionRef(fn *ast.FunctionDecl, pos ast.Position) (*value.Ref, *report.Failure) {
	entity := preprocess.FunctionEntity(fn.Name)
	if v, ok := e.Mem.GetConstant(entity); ok {
		if s, isSentinel := v.(*value.Sentinel); isSentinel {
			return nil, report.UnderConstruction(s.Code, pos)
		}
		return v.(*value.Ref), nil
	}
	mt := e.Ctx.FunctionType(fn)
	h, ref := e.Mem.Heap.AllocateSource(mt)
	e.Mem = e.Mem.WithHeap(h)
	e.SetConstant(entity, ref)
	e.attachDeferred(ref, entity)
	// A zero-formal definition or constraint on a function entity can only
	// come from an equation over the whole function value, which the
	// extractor never produces; everything else lives on the reference.
	return ref, nil
}

// Key registry: map caches key on an encoded argument tuple; the decoded
// tuple is kept so map-equality resolution can re-evaluate both sides of a
// disagreement at an actual argument list.
func (e *Engine) encodeKey(args []value.Value) string {
	k := heap.EncodeKey(args)
	if _, ok := e.keyArgs[k]; !ok {
		e.keyArgs[k] = append([]value.Value{}, args...)
	}
	return k
}

func (e *Engine) decodeKey(k string) []value.Value {
	return e.keyArgs[k]
}

// withBindings runs fn with formals bound to args, restoring any shadowed
// locals afterwards on every exit path.
func (e *Engine) withBindings(formals []ast.VarDecl, args []value.Value, fn func() (value.Value, *report.Failure)) (value.Value, *report.Failure) {
	type saved struct {
		v  value.Value
		ok bool
	}
	prev := make([]saved, len(formals))
	e.PushScope(formals)
	for i, f := range formals {
		prev[i].v, prev[i].ok = e.Mem.GetLocal(f.Name)
		e.SetLocal(f.Name, args[i])
	}
	v, fail := fn()
	for i, f := range formals {
		if prev[i].ok {
			e.SetLocal(f.Name, prev[i].v)
		} else {
			e.UnsetLocal(f.Name)
		}
	}
	e.PopScope()
	return v, fail
}

// qboundBig is the quantifier enumeration budget as a big integer, for
// comparing against interval sizes.
func (e *Engine) qboundBig() *big.Int {
	return big.NewInt(e.QBound)
}
