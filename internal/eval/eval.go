// Package eval is the expression evaluator: a one-method-per-node-kind
// recursive interpreter over the runtime value domain, with lazy
// materialization of variables and map entries, definition and constraint
// resolution, and non-deterministic map equality.
//
// Evaluation of a single run is deterministic given a Chooser; all
// non-determinism is funneled through it so the execution driver can replay
// and enumerate branches.
package eval

import (
	"sort"

	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/generator"
	"github.com/taktoa/language-boogie/internal/heap"
	"github.com/taktoa/language-boogie/internal/preprocess"
	"github.com/taktoa/language-boogie/internal/report"
	"github.com/taktoa/language-boogie/internal/solver"
	"github.com/taktoa/language-boogie/internal/store"
	"github.com/taktoa/language-boogie/internal/value"
)

// Scope is one lexical layer of visible declarations: a procedure frame's
// parameters and locals, or a quantifier's bound variables. Values live in
// Memory; scopes only carry the declarations (type and where-clause).
type Scope struct {
	Vars map[string]ast.VarDecl
}

func newScope(groups ...[]ast.VarDecl) *Scope {
	s := &Scope{Vars: map[string]ast.VarDecl{}}
	for _, g := range groups {
		for _, d := range g {
			s.Vars[d.Name] = d
		}
	}
	return s
}

// Engine evaluates expressions against the current memory, store, and
// scope stack.
type Engine struct {
	Ctx     *preprocess.Context
	Chooser *generator.Chooser
	Bridge  *solver.Bridge // optional; nil falls back to draw-and-check
	QBound  int64

	Mem   *heap.Memory
	Store *store.Store

	// Depth counts live procedure frames; it anchors the solver bridge's
	// backtracking frames.
	Depth int

	// LastTerm is the most recent short-circuit-deciding subexpression, so
	// a failure can report which term forced the enclosing result.
	LastTerm ast.Expr

	// RecordInputs captures lazily drawn values for the entry procedure's
	// parameters and for globals, which together form the test case's
	// input assignment.
	RecordInputs bool
	EntryParams  map[string]bool
	Inputs       map[string]value.Value
	GlobalInputs map[string]value.Value

	scopes       []*Scope
	sentinelSeq  int64
	construction []int64
	keyArgs      map[string][]value.Value
}

func NewEngine(ctx *preprocess.Context, ch *generator.Chooser, qBound int64) *Engine {
	return &Engine{
		Ctx:          ctx,
		Chooser:      ch,
		QBound:       qBound,
		Mem:          heap.NewMemory(),
		Store:        ctx.Store,
		Inputs:       map[string]value.Value{},
		GlobalInputs: map[string]value.Value{},
		EntryParams:  map[string]bool{},
		keyArgs:      map[string][]value.Value{},
	}
}

// PushScope/PopScope manage the lexical scope stack. SwapScopes replaces
// the whole stack across a procedure call, where the callee must not see
// the caller's locals.
func (e *Engine) PushScope(groups ...[]ast.VarDecl) {
	e.scopes = append(e.scopes, newScope(groups...))
}

func (e *Engine) PopScope() {
	e.scopes = e.scopes[:len(e.scopes)-1]
}

func (e *Engine) SwapScopes(replacement []*Scope) []*Scope {
	old := e.scopes
	e.scopes = replacement
	return old
}

type nameClass int

const (
	classLocal nameClass = iota
	classGlobal
	classConst
)

// lookupDecl resolves a name to its declaration, innermost scope first,
// then globals, then constants.
func (e *Engine) lookupDecl(name string) (ast.VarDecl, nameClass, bool) {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if d, ok := e.scopes[i].Vars[name]; ok {
			return d, classLocal, true
		}
	}
	if d, ok := e.Ctx.Globals[name]; ok {
		return d, classGlobal, true
	}
	if c, ok := e.Ctx.Consts[name]; ok {
		return ast.VarDecl{Name: c.Name, Type: c.Type}, classConst, true
	}
	return ast.VarDecl{}, 0, false
}

// Eval evaluates an expression to a value, or to the failure that aborted
// it.
func (e *Engine) Eval(x ast.Expr) (value.Value, *report.Failure) {
	switch n := x.(type) {
	case ast.Literal:
		switch v := n.Value.(type) {
		case bool:
			return value.NewBool(v), nil
		case int64:
			return value.NewInt(v), nil
		case int:
			return value.NewInt(int64(v)), nil
		default:
			return nil, e.unsupported(n.Pos(), "literal of unsupported kind (bit-vectors are not executable)")
		}

	case ast.Var:
		return e.ResolveName(n.Name, n.Pos())

	case ast.Wildcard:
		// Wildcard guards are consumed by control-flow lowering; one in an
		// evaluated position resolves as a free boolean choice.
		return value.NewBool(e.Chooser.Bool()), nil

	case *ast.Application:
		return e.evalApplication(n)

	case *ast.MapSelect:
		return e.evalMapSelect(n)

	case *ast.MapUpdate:
		return e.evalMapUpdate(n)

	case *ast.Old:
		was := e.Mem.InOld
		if !was {
			e.Mem = e.Mem.EnterOld()
		}
		v, f := e.Eval(n.Inner)
		e.Mem = e.Mem.ExitOld(was)
		return v, f

	case *ast.IfExpr:
		cond, f := e.Eval(n.Cond)
		if f != nil {
			return nil, f
		}
		b, f := e.asBool(cond, n.Cond.Pos())
		if f != nil {
			return nil, f
		}
		if b {
			return e.Eval(n.Then)
		}
		return e.Eval(n.Else)

	case *ast.Coercion:
		return e.Eval(n.Inner)

	case *ast.Unary:
		return e.evalUnary(n)

	case *ast.Binary:
		return e.evalBinary(n)

	case *ast.QuantifiedExpr:
		return e.evalQuantified(n)

	default:
		return nil, e.unsupported(x.Pos(), "expression "+x.String())
	}
}

func (e *Engine) evalUnary(n *ast.Unary) (value.Value, *report.Failure) {
	v, f := e.Eval(n.X)
	if f != nil {
		return nil, f
	}
	switch n.Op {
	case ast.Neg:
		i, f := e.asInt(v, n.X.Pos())
		if f != nil {
			return nil, f
		}
		return value.NewInt(-i), nil
	default:
		b, f := e.asBool(v, n.X.Pos())
		if f != nil {
			return nil, f
		}
		return value.NewBool(!b), nil
	}
}

func (e *Engine) evalBinary(n *ast.Binary) (value.Value, *report.Failure) {
	if n.Op.IsLogical() {
		return e.evalShortCircuit(n)
	}

	l, f := e.Eval(n.X)
	if f != nil {
		return nil, f
	}
	r, f := e.Eval(n.Y)
	if f != nil {
		return nil, f
	}

	switch n.Op {
	case ast.Add, ast.Sub, ast.Mul, ast.Div, ast.Mod:
		return e.arith(n, l, r)
	case ast.Lt, ast.Le, ast.Gt, ast.Ge:
		li, f := e.asInt(l, n.X.Pos())
		if f != nil {
			return nil, f
		}
		ri, f := e.asInt(r, n.Y.Pos())
		if f != nil {
			return nil, f
		}
		var b bool
		switch n.Op {
		case ast.Lt:
			b = li < ri
		case ast.Le:
			b = li <= ri
		case ast.Gt:
			b = li > ri
		default:
			b = li >= ri
		}
		return value.NewBool(b), nil
	case ast.Eq, ast.Neq:
		eq, f := e.valuesEqual(l, r, n.Pos())
		if f != nil {
			return nil, f
		}
		if n.Op == ast.Neq {
			eq = !eq
		}
		return value.NewBool(eq), nil
	case ast.Iff:
		lb, f := e.asBool(l, n.X.Pos())
		if f != nil {
			return nil, f
		}
		rb, f := e.asBool(r, n.Y.Pos())
		if f != nil {
			return nil, f
		}
		return value.NewBool(lb == rb), nil
	default:
		return nil, e.unsupported(n.Pos(), "binary operator")
	}
}

func (e *Engine) arith(n *ast.Binary, l, r value.Value) (value.Value, *report.Failure) {
	li, f := e.asInt(l, n.X.Pos())
	if f != nil {
		return nil, f
	}
	ri, f := e.asInt(r, n.Y.Pos())
	if f != nil {
		return nil, f
	}
	switch n.Op {
	case ast.Add:
		return value.NewInt(li + ri), nil
	case ast.Sub:
		return value.NewInt(li - ri), nil
	case ast.Mul:
		return value.NewInt(li * ri), nil
	default:
		if ri == 0 {
			return nil, report.DivisionByZero(n.Pos()).WithMemory(e.Mem)
		}
		q, rem := euclidean(li, ri)
		if n.Op == ast.Div {
			return value.NewInt(q), nil
		}
		return value.NewInt(rem), nil
	}
}

// euclidean divides with a non-negative remainder: q*b + r == a and
// 0 <= r < |b|.
func euclidean(a, b int64) (q, r int64) {
	q = a / b
	r = a % b
	if r < 0 {
		if b > 0 {
			q--
			r += b
		} else {
			q++
			r -= b
		}
	}
	return q, r
}

// evalShortCircuit handles And/Or/Implies/Explies, recording the deciding
// subexpression in LastTerm.
func (e *Engine) evalShortCircuit(n *ast.Binary) (value.Value, *report.Failure) {
	first, second := n.X, n.Y
	if n.Op == ast.Explies {
		// b <== a is a ==> b with the operands swapped.
		first, second = n.Y, n.X
	}

	l, f := e.Eval(first)
	if f != nil {
		return nil, f
	}
	lb, f := e.asBool(l, first.Pos())
	if f != nil {
		return nil, f
	}

	// And stops on a false operand, Or on a true one, implications on a
	// false antecedent.
	switch n.Op {
	case ast.And:
		if !lb {
			e.LastTerm = first
			return value.NewBool(false), nil
		}
	case ast.Or:
		if lb {
			e.LastTerm = first
			return value.NewBool(true), nil
		}
	default: // Implies, Explies
		if !lb {
			e.LastTerm = first
			return value.NewBool(true), nil
		}
	}

	r, f := e.Eval(second)
	if f != nil {
		return nil, f
	}
	rb, f := e.asBool(r, second.Pos())
	if f != nil {
		return nil, f
	}
	e.LastTerm = second
	return value.NewBool(rb), nil
}

// valuesEqual compares two values, delegating to map-equality resolution
// when both are heap references.
func (e *Engine) valuesEqual(l, r value.Value, pos ast.Position) (bool, *report.Failure) {
	lr, lIsRef := l.(*value.Ref)
	rr, rIsRef := r.(*value.Ref)
	if lIsRef && rIsRef {
		return e.ResolveMapEquality(lr, rr, pos)
	}
	return value.Equal(l, r), nil
}

// evalApplication evaluates a function application by selecting from the
// function's constant map, so per-tuple memoization and axiom-attached
// rules flow through the one map-selection path.
func (e *Engine) evalApplication(n *ast.Application) (value.Value, *report.Failure) {
	fn, ok := e.Ctx.Funcs[n.Func]
	if !ok {
		return nil, e.unsupported(n.Pos(), "application of undeclared function "+n.Func)
	}
	args := make([]value.Value, len(n.Args))
	for i, a := range n.Args {
		v, f := e.Eval(a)
		if f != nil {
			return nil, f
		}
		if _, isRef := v.(*value.Ref); isRef {
			return nil, e.unsupported(a.Pos(), "map value used as a function argument")
		}
		args[i] = v
	}
	ref, f := e.functionRef(fn, n.Pos())
	if f != nil {
		return nil, f
	}
	return e.selectAt(ref, args, n.Pos())
}

// asBool/asInt unwrap a value, reporting misuse as a non-executable
// failure (a well-typed program never hits these).
func (e *Engine) asBool(v value.Value, pos ast.Position) (bool, *report.Failure) {
	b, ok := v.(*value.Bool)
	if !ok {
		return false, e.unsupported(pos, "non-boolean value in boolean position")
	}
	return b.B, nil
}

func (e *Engine) asInt(v value.Value, pos ast.Position) (int64, *report.Failure) {
	i, ok := v.(*value.Int)
	if !ok {
		return 0, e.unsupported(pos, "non-integer value in integer position")
	}
	return i.N, nil
}

func (e *Engine) unsupported(pos ast.Position, desc string) *report.Failure {
	return report.UnsupportedConstruct(pos, desc).WithMemory(e.Mem)
}

// sortedKeys gives deterministic iteration order over value caches; replay
// reproducibility depends on every chooser consultation happening in the
// same order across runs.
func sortedKeys(m map[string]value.Value) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
