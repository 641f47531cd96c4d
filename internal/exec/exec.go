// Package exec executes flattened procedure bodies: basic statements,
// block-to-block dispatch, procedure calls with contract checking, and the
// garbage-collection safe point after every statement.
package exec

import (
	"sort"

	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/eval"
	"github.com/taktoa/language-boogie/internal/flatten"
	"github.com/taktoa/language-boogie/internal/heap"
	"github.com/taktoa/language-boogie/internal/preprocess"
	"github.com/taktoa/language-boogie/internal/report"
	"github.com/taktoa/language-boogie/internal/value"
)

type Runner struct {
	E *eval.Engine

	// Snapshot is the entry frame's memory just before teardown, with the
	// entry procedure's locals (and so its out-parameters) still bound.
	Snapshot *heap.Memory
}

func New(e *eval.Engine) *Runner {
	return &Runner{E: e}
}

// RunEntry executes the entry procedure with no bound arguments: its
// parameters and any globals it touches materialize lazily and are recorded
// as the test case's inputs.
func (r *Runner) RunEntry(entry string) *report.Failure {
	proc, err := r.E.Ctx.Entry(entry)
	if err != nil {
		return report.UnsupportedConstruct(ast.NoPos, err.Error())
	}
	_, f := r.call(proc, nil, ast.NoPos, true)
	return f
}

// call runs one procedure activation: bind inputs, check preconditions,
// execute an implementation (or the havoc dummy), check postconditions,
// collect outputs, and fold frame-local state back into the caller.
func (r *Runner) call(proc *ast.ProcDecl, args []value.Value, pos ast.Position, isEntry bool) ([]value.Value, *report.Failure) {
	e := r.E

	savedLocals := e.Mem.Locals
	savedOld := e.Mem.OldGlobals
	savedMod := e.Mem.Modified
	savedScopes := e.SwapScopes(nil)
	e.Mem = e.Mem.EnterCall()
	e.Depth++

	impls := e.Ctx.Impls[proc.Name]
	var impl *preprocess.Impl
	if len(impls) == 1 {
		impl = impls[0]
	} else if len(impls) > 1 {
		impl = impls[e.Chooser.Index(len(impls))]
	}

	ins, outs := proc.In, proc.Out
	if impl != nil {
		ins, outs = impl.Decl.In, impl.Decl.Out
	}

	fail := r.enterFrame(proc, impl, ins, outs, args, isEntry)
	if fail == nil {
		if impl != nil {
			fail = r.execCFG(impl.CFG)
		} else {
			fail = r.dummyBody(proc)
		}
	}
	if fail == nil {
		fail = r.exitChecks(proc, impl, outs)
	}

	var outVals []value.Value
	if fail == nil {
		outVals, fail = r.collectOuts(outs)
	}

	if isEntry {
		r.Snapshot = e.Mem
	}

	// Teardown runs on every path: drop frame locals, restore the caller's
	// stores, and fold the callee's old values and modifications back in.
	for _, name := range sortedNames(e.Mem.Locals) {
		e.UnsetLocal(name)
	}
	calleeOld := e.Mem.OldGlobals
	calleeMod := e.Mem.Modified
	e.Depth--
	e.Mem = e.Mem.ExitCall(savedLocals, savedOld, savedMod)
	e.SwapScopes(savedScopes)
	r.restoreOld(calleeOld, calleeMod)
	e.Mem = e.Mem.WithHeap(e.Mem.Heap.CollectGarbage())

	if fail != nil {
		// Release the output holds taken by collectOuts on a later failure.
		for _, v := range outVals {
			r.decTransient(v)
		}
		return nil, fail.Pushed(pos, proc.Name)
	}
	return outVals, nil
}

// enterFrame binds input parameters and checks preconditions. With an
// implementation that renamed the signature's parameters, the signature
// names are bound alongside the implementation's so contract clauses still
// resolve.
func (r *Runner) enterFrame(proc *ast.ProcDecl, impl *preprocess.Impl, ins, outs []ast.VarDecl, args []value.Value, isEntry bool) *report.Failure {
	e := r.E

	groups := [][]ast.VarDecl{ins, outs}
	if impl != nil {
		groups = append(groups, impl.Decl.Locals)
		if impl.Decl.ParamsRenamed {
			groups = append(groups, proc.In, proc.Out)
		}
	}
	e.PushScope(groups...)

	for i, arg := range args {
		e.SetLocal(ins[i].Name, arg)
		if impl != nil && impl.Decl.ParamsRenamed && proc.In[i].Name != ins[i].Name {
			e.SetLocal(proc.In[i].Name, arg)
		}
	}

	if isEntry {
		e.RecordInputs = true
		for _, in := range ins {
			e.EntryParams[in.Name] = true
		}
	}

	// Where-clauses of already-bound inputs are assumed at entry; unbound
	// ones apply when the parameter materializes.
	for i, in := range ins {
		if i < len(args) && in.Where != nil {
			if f := r.clause(in.Where, report.ClauseWhere, true); f != nil {
				return f
			}
		}
	}

	for _, pre := range proc.Preconds {
		if f := r.clause(pre.Expr, report.ClausePrecondition, pre.Free); f != nil {
			return f
		}
	}
	return nil
}

// exitChecks evaluates postconditions on normal return. When the
// implementation renamed output parameters, the signature names are aliased
// to the implementation's final values first.
func (r *Runner) exitChecks(proc *ast.ProcDecl, impl *preprocess.Impl, outs []ast.VarDecl) *report.Failure {
	e := r.E
	if impl != nil && impl.Decl.ParamsRenamed {
		for i, out := range outs {
			if i >= len(proc.Out) || proc.Out[i].Name == out.Name {
				continue
			}
			v, f := e.ResolveName(out.Name, impl.Decl.Pos)
			if f != nil {
				return f
			}
			e.SetLocal(proc.Out[i].Name, v)
		}
	}
	free := impl == nil // a synthesized body has nothing to blame for a violated contract
	for _, post := range proc.Postconds {
		if f := r.clause(post.Expr, report.ClausePostcondition, post.Free || free); f != nil {
			return f
		}
	}
	return nil
}

// collectOuts materializes and holds the output parameter values so they
// survive the frame teardown; the caller releases the hold after storing
// them.
func (r *Runner) collectOuts(outs []ast.VarDecl) ([]value.Value, *report.Failure) {
	e := r.E
	outVals := make([]value.Value, len(outs))
	for i, out := range outs {
		v, f := e.ResolveName(out.Name, ast.NoPos)
		if f != nil {
			return outVals[:i], f
		}
		r.incTransient(v)
		outVals[i] = v
	}
	return outVals, nil
}

// restoreOld folds a finished frame's old values back into the caller: a
// global the caller has not itself modified adopts the callee's old value
// (which may have been materialized during the call), while a caller-
// modified global keeps the caller's own old value. The callee's
// modifications become the caller's.
func (r *Runner) restoreOld(calleeOld map[string]value.Value, calleeMod map[string]bool) {
	e := r.E
	for _, name := range sortedNames(calleeOld) {
		v := calleeOld[name]
		if e.Mem.Modified[name] {
			r.decTransient(v) // the callee's old slot is gone
			continue
		}
		if prev, ok := e.Mem.OldGlobals[name]; ok {
			r.decTransient(prev)
		}
		// The value's count transfers from the callee's old slot to the
		// caller's.
		e.Mem = e.Mem.MirrorToOld(name, v)
	}
	mods := make([]string, 0, len(calleeMod))
	for name := range calleeMod {
		mods = append(mods, name)
	}
	sort.Strings(mods)
	for _, name := range mods {
		e.Mem = e.Mem.MarkModified(name)
	}
}

func (r *Runner) incTransient(v value.Value) {
	if ref, ok := v.(*value.Ref); ok {
		r.E.Mem = r.E.Mem.WithHeap(r.E.Mem.Heap.IncRef(ref))
	}
}

func (r *Runner) decTransient(v value.Value) {
	if ref, ok := v.(*value.Ref); ok {
		r.E.Mem = r.E.Mem.WithHeap(r.E.Mem.Heap.DecRef(ref))
	}
}

// dummyBody stands in for a procedure with no implementation: every
// modifiable global is havocked; outputs materialize lazily at the
// postcondition checks.
func (r *Runner) dummyBody(proc *ast.ProcDecl) *report.Failure {
	for _, name := range proc.Modifies {
		r.E.ForgetGlobal(name)
	}
	return nil
}

// execCFG dispatches basic blocks from the start label until a return.
func (r *Runner) execCFG(cfg *flatten.CFG) *report.Failure {
	e := r.E
	label := cfg.Start
	for {
		blk, ok := cfg.Blocks[label]
		if !ok {
			return failUnsupported(e, ast.NoPos, "goto to undefined label "+label)
		}
		for _, st := range blk.Stmts {
			if f := r.execStmt(st); f != nil {
				return f
			}
			e.Mem = e.Mem.WithHeap(e.Mem.Heap.CollectGarbage())
		}
		switch t := blk.Terminator.(type) {
		case flatten.Return:
			return nil
		case flatten.Goto:
			switch len(t.Labels) {
			case 0:
				return failUnsupported(e, ast.NoPos, "goto with no target labels")
			case 1:
				label = t.Labels[0]
			default:
				label = t.Labels[e.Chooser.Index(len(t.Labels))]
			}
		default:
			return failUnsupported(e, ast.NoPos, "block without terminator")
		}
	}
}

func (r *Runner) execStmt(s ast.Stmt) *report.Failure {
	switch st := s.(type) {
	case *ast.Assert:
		return r.clause(st.Cond, clauseName(st.Clause), st.Free)

	case *ast.Assume:
		return r.clause(st.Cond, clauseName(st.Clause), true)

	case *ast.Havoc:
		return r.havoc(st)

	case *ast.Assign:
		return r.assign(st)

	case *ast.Call:
		return r.execCall(st)

	default:
		return failUnsupported(r.E, s.Pos(), "statement survived control-flow lowering")
	}
}

// clause checks one contract clause. A free clause is an assumption: its
// violation invalidates the branch. A checked clause is an assertion: its
// violation is an error.
func (r *Runner) clause(cond ast.Expr, clause report.Clause, free bool) *report.Failure {
	e := r.E
	e.LastTerm = nil
	v, f := e.Eval(cond)
	if f != nil {
		return f
	}
	b, f := evalBoolResult(e, v, cond)
	if f != nil {
		return f
	}
	if !b {
		last := ""
		if e.LastTerm != nil {
			last = e.LastTerm.String()
		}
		return report.SpecViolation(clause, free, cond.Pos(), cond.String(), last).WithMemory(e.Mem)
	}
	return nil
}

func (r *Runner) havoc(st *ast.Havoc) *report.Failure {
	e := r.E
	for _, name := range st.Vars {
		if _, ok := e.Ctx.Globals[name]; ok {
			e.ForgetGlobal(name)
			continue
		}
		e.UnsetLocal(name)
	}
	return nil
}

// assign rewrites map-typed left-hand sides into update chains, evaluates
// every right-hand side in order, then stores in order.
func (r *Runner) assign(st *ast.Assign) *report.Failure {
	e := r.E
	if len(st.Lhs) != len(st.Rhs) {
		return failUnsupported(e, st.Pos(), "arity mismatch in assignment")
	}

	names := make([]string, len(st.Lhs))
	rhss := make([]ast.Expr, len(st.Rhs))
	for i := range st.Lhs {
		name, rhs, ok := rewriteTarget(st.Lhs[i], st.Rhs[i])
		if !ok {
			return failUnsupported(e, st.Lhs[i].Pos(), "assignment target "+st.Lhs[i].String())
		}
		names[i], rhss[i] = name, rhs
	}

	vals := make([]value.Value, len(rhss))
	for i, rhs := range rhss {
		v, f := e.Eval(rhs)
		if f != nil {
			return f
		}
		vals[i] = v
	}

	for i, name := range names {
		if f := r.assignName(name, vals[i], st.Lhs[i].Pos()); f != nil {
			return f
		}
	}
	return nil
}

// rewriteTarget peels nested map selections off an assignment target:
// m[i][j] := v becomes m := m[i := m[i][j := v]].
func rewriteTarget(lhs ast.Expr, rhs ast.Expr) (string, ast.Expr, bool) {
	for {
		switch t := lhs.(type) {
		case ast.Var:
			return t.Name, rhs, true
		case *ast.MapSelect:
			rhs = &ast.MapUpdate{Map: t.Map, Args: t.Args, Value: rhs}
			lhs = t.Map
		default:
			return "", nil, false
		}
	}
}

func (r *Runner) assignName(name string, v value.Value, pos ast.Position) *report.Failure {
	e := r.E
	if _, ok := e.Ctx.Globals[name]; ok {
		e.SetGlobal(name, v)
		return nil
	}
	if _, ok := e.Ctx.Consts[name]; ok {
		return failUnsupported(e, pos, "assignment to constant "+name)
	}
	e.SetLocal(name, v)
	return nil
}

func (r *Runner) execCall(st *ast.Call) *report.Failure {
	e := r.E
	proc, ok := e.Ctx.Procs[st.Proc]
	if !ok {
		return failUnsupported(e, st.Pos(), "call of undeclared procedure "+st.Proc)
	}
	if len(st.Args) != len(proc.In) || len(st.Lhs) > len(proc.Out) {
		return failUnsupported(e, st.Pos(), "call arity mismatch for "+st.Proc)
	}

	args := make([]value.Value, len(st.Args))
	for i, a := range st.Args {
		v, f := e.Eval(a)
		if f != nil {
			return f
		}
		args[i] = v
	}

	outVals, f := r.call(proc, args, st.Pos(), false)
	if f != nil {
		return f
	}
	for i, lhs := range st.Lhs {
		if f := r.assignName(lhs, outVals[i], st.Pos()); f != nil {
			return f
		}
	}
	for _, v := range outVals {
		r.decTransient(v)
	}
	return nil
}

func clauseName(c ast.ClauseKind) report.Clause {
	switch c {
	case ast.ClausePrecondition:
		return report.ClausePrecondition
	case ast.ClausePostcondition:
		return report.ClausePostcondition
	case ast.ClauseLoopInvariant:
		return report.ClauseLoopInvariant
	case ast.ClauseWhere:
		return report.ClauseWhere
	case ast.ClauseAxiom:
		return report.ClauseAxiom
	default:
		return report.ClauseInline
	}
}

func evalBoolResult(e *eval.Engine, v value.Value, cond ast.Expr) (bool, *report.Failure) {
	b, ok := v.(*value.Bool)
	if !ok {
		return false, failUnsupported(e, cond.Pos(), "non-boolean contract clause")
	}
	return b.B, nil
}

func failUnsupported(e *eval.Engine, pos ast.Position, desc string) *report.Failure {
	return report.UnsupportedConstruct(pos, desc).WithMemory(e.Mem)
}

func sortedNames(m map[string]value.Value) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
