// Package langboogie interprets type-checked Boogie 2 programs and checks
// their assertions at run time. Given a program and an entry procedure it
// executes every reachable path — deterministically, with default values
// standing in for free choices, or exhaustively over a pluggable value
// generator — and reports each terminal state as a test case: passed,
// invalid (an assumption failed), non-executable (the semantics outran the
// interpreter), or failed (an assertion was violated).
package langboogie

import (
	"fmt"

	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/eval"
	"github.com/taktoa/language-boogie/internal/exec"
	"github.com/taktoa/language-boogie/internal/generator"
	"github.com/taktoa/language-boogie/internal/preprocess"
	"github.com/taktoa/language-boogie/internal/report"
	"github.com/taktoa/language-boogie/internal/solver"
)

// TypeContext is the type-checker's accompanying output; see
// internal/preprocess.
type TypeContext = preprocess.TypeContext

// Run enumerates the test cases of one program/entry pair lazily: each Next
// executes one branch of the non-deterministic choice tree, depth-first.
// The consumer drives how far the enumeration goes.
type Run struct {
	ctx    *preprocess.Context
	gen    generator.Generator
	qBound int64
	entry  string

	bridge *solver.Bridge
	prefix []int
	done   bool
}

// ExecuteProgramGeneric prepares an enumeration of entry's test cases under
// an arbitrary generator. The returned Run is lazy; nothing executes until
// Next is called.
func ExecuteProgramGeneric(p *ast.Program, tctx *TypeContext, gen generator.Generator, qBound int64, entry string) (*Run, error) {
	ctx, err := preprocess.Run(p, tctx)
	if err != nil {
		return nil, err
	}
	if _, err := ctx.Entry(entry); err != nil {
		return nil, err
	}
	return &Run{ctx: ctx, gen: gen, qBound: qBound, entry: entry}, nil
}

// ExecuteProgram enumerates all test cases under the given generator; it is
// the generic entry point under its conventional name.
func ExecuteProgram(p *ast.Program, tctx *TypeContext, gen generator.Generator, qBound int64, entry string) (*Run, error) {
	return ExecuteProgramGeneric(p, tctx, gen, qBound, entry)
}

// ExecuteProgramDet runs entry once with every free choice resolved to its
// default value, falling through branches whose assumptions the defaults
// violate. The result is the first branch that is not merely invalid, or
// the first branch when every branch is.
func ExecuteProgramDet(p *ast.Program, tctx *TypeContext, qBound int64, entry string) (*report.TestCase, error) {
	run, err := ExecuteProgramGeneric(p, tctx, generator.Deterministic{}, qBound, entry)
	if err != nil {
		return nil, err
	}
	var first *report.TestCase
	for {
		tc, ok := run.Next()
		if !ok {
			return first, nil
		}
		if first == nil {
			first = tc
		}
		if tc.Outcome != report.Invalid {
			return tc, nil
		}
	}
}

// WithBridge attaches a satisfiability-solver bridge; constrained value
// generation then draws from solver models instead of blind defaults.
func (r *Run) WithBridge(b *solver.Bridge) *Run {
	r.bridge = b
	return r
}

// Next executes one branch and reports its test case. ok is false once the
// choice tree is exhausted.
func (r *Run) Next() (tc *report.TestCase, ok bool) {
	if r.done {
		return nil, false
	}
	ch := generator.NewChooser(r.gen, r.prefix)
	tc = r.once(ch)
	if next, more := generator.NextPrefix(ch.Trail()); more {
		r.prefix = next
	} else {
		r.done = true
	}
	return tc, true
}

// once executes a single branch to termination. Internal signals must never
// escape the interpreter: a cycle signal without an owning frame or a stray
// panic is reported as a non-executable outcome rather than crashing the
// enumeration.
func (r *Run) once(ch *generator.Chooser) *report.TestCase {
	e := eval.NewEngine(r.ctx, ch, r.qBound)
	e.Bridge = r.bridge
	runner := exec.New(e)

	var fail *report.Failure
	func() {
		defer func() {
			if p := recover(); p != nil {
				fail = report.UnsupportedConstruct(ast.NoPos, fmt.Sprintf("internal interpreter fault: %v", p))
			}
		}()
		fail = runner.RunEntry(r.entry)
	}()
	if fail != nil && fail.Kind == report.KindInternal {
		fail = report.UnsupportedConstruct(fail.Pos, "definition cycle escaped resolution")
	}

	tc := report.New(r.entry, e.Inputs, e.GlobalInputs, fail)
	if fail != nil && fail.Memory != nil {
		tc = tc.WithSnapshot(fail.Memory)
	} else {
		tc = tc.WithSnapshot(runner.Snapshot)
	}
	return tc
}

// All collects up to max test cases (max <= 0 collects everything; only
// finite choice trees terminate then).
func (r *Run) All(max int) []*report.TestCase {
	var out []*report.TestCase
	for max <= 0 || len(out) < max {
		tc, ok := r.Next()
		if !ok {
			break
		}
		out = append(out, tc)
	}
	return out
}

// Session runs like All but accumulates into a summarizable session.
func (r *Run) Session(max int, debug bool) *report.Session {
	s := &report.Session{Debug: debug}
	for _, tc := range r.All(max) {
		s.Add(tc)
	}
	return s
}
