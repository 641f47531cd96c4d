// Package solver is the bridge to the external satisfiability solver. The
// interpreter treats the solver as an opaque collaborator: it hands over a
// list of constraint expressions together with its own count of active
// backtracking frames, and gets back either a satisfiability verdict or an
// enumeration of solutions for one variable.
//
// The bridge owns the push/pop discipline. Its stack must never hold fewer
// frames than the interpreter believes are in scope — that would mean
// constraints the interpreter still relies on were dropped — so SyncTo pops
// down to the requested level and treats the opposite mismatch as a usage
// bug.
package solver

import (
	"fmt"

	"github.com/ebukreev/go-z3/z3"

	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/value"
)

type Bridge struct {
	ctx    *z3.Context
	solver *z3.Solver
	tr     *translator
	frames int
}

func NewBridge() *Bridge {
	ctx := z3.NewContext(&z3.Config{})
	return &Bridge{
		ctx:    ctx,
		solver: z3.NewSolver(ctx),
		tr:     newTranslator(ctx),
	}
}

// Frames reports the bridge's current frame count.
func (b *Bridge) Frames() int { return b.frames }

// Push opens one backtracking frame.
func (b *Bridge) Push() {
	b.solver.Push()
	b.frames++
}

// SyncTo pops the solver down to the interpreter's frame count. The solver
// having fewer frames than the interpreter is fatal: frames the interpreter
// counts on were already discarded.
func (b *Bridge) SyncTo(frames int) error {
	if b.frames < frames {
		return fmt.Errorf("solver: bridge holds %d frames but interpreter expects %d", b.frames, frames)
	}
	for b.frames > frames {
		b.solver.Pop()
		b.frames--
	}
	return nil
}

// Assert adds a constraint to the current frame. Untranslatable constraints
// report an error and leave the frame unchanged.
func (b *Bridge) Assert(c ast.Expr) error {
	f, err := b.tr.expr(c)
	if err != nil {
		return err
	}
	bf, ok := f.(z3.Bool)
	if !ok {
		return fmt.Errorf("solver: constraint %s is not boolean", c.String())
	}
	b.solver.Assert(bf)
	return nil
}

// CheckSat reports whether the given constraints are satisfiable together
// with everything already asserted in the first `frames` frames. The check
// runs in a scratch frame that is popped before returning.
func (b *Bridge) CheckSat(constraints []ast.Expr, frames int) (bool, error) {
	if err := b.SyncTo(frames); err != nil {
		return false, err
	}
	b.Push()
	defer func() { _ = b.SyncTo(frames) }()

	for _, c := range constraints {
		if err := b.Assert(c); err != nil {
			return false, err
		}
	}
	sat, err := b.solver.Check()
	if err != nil {
		return false, err
	}
	return sat, nil
}

// Solutions enumerates up to max values of the integer variable varName that
// satisfy the constraints, given the already-known values of other
// variables. max <= 0 means unbounded, which callers should reserve for
// constraint systems they know are finite. Each model found is blocked and
// the solver re-queried, so the result is a list of distinct values in the
// order the solver produced them.
func (b *Bridge) Solutions(constraints []ast.Expr, varName string, known map[string]value.Value, max int, frames int) ([]int64, error) {
	if err := b.SyncTo(frames); err != nil {
		return nil, err
	}
	b.Push()
	defer func() { _ = b.SyncTo(frames) }()

	target := b.tr.intVar(varName)
	for name, v := range known {
		if name == varName {
			continue
		}
		lowered, err := b.tr.lowerValue(v)
		if err != nil {
			// A heap-valued variable cannot be pinned; leave it free. The
			// enumeration over-approximates, and the interpreter re-checks
			// every drawn value anyway.
			continue
		}
		pin, err := b.tr.variable(name, typeOfValue(v))
		if err != nil {
			continue
		}
		switch pv := pin.(type) {
		case z3.Int:
			b.solver.Assert(pv.Eq(lowered.(z3.Int)))
		case z3.Bool:
			b.solver.Assert(pv.Eq(lowered.(z3.Bool)))
		}
	}
	for _, c := range constraints {
		if err := b.Assert(c); err != nil {
			return nil, err
		}
	}

	var out []int64
	for max <= 0 || len(out) < max {
		sat, err := b.solver.Check()
		if err != nil {
			return nil, err
		}
		if !sat {
			break
		}
		model := b.solver.Model()
		val := model.Eval(target, true)
		n, _, ok := val.(z3.Int).AsInt64()
		if !ok {
			return nil, fmt.Errorf("solver: model value for %s does not fit int64", varName)
		}
		out = append(out, n)
		b.solver.Assert(target.(z3.Int).Eq(b.ctx.FromInt(n, b.ctx.IntSort()).(z3.Int)).Not())
	}
	return out, nil
}

func typeOfValue(v value.Value) ast.Type {
	switch v.(type) {
	case *value.Bool:
		return ast.BoolType{}
	default:
		return ast.IntType{}
	}
}
