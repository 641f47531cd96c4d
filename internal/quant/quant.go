// Package quant infers finite enumeration domains for quantifier-bound
// integer variables by interval abstract interpretation over the quantifier
// body. The body must be in negation-normal form (see internal/normalform)
// so that every comparison appears with its real polarity; the inference
// itself never evaluates anything, it only narrows intervals.
package quant

import (
	"errors"

	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/interval"
)

// errNotLinear aborts linearization of a comparison operand; the caller
// falls back to Top for the variable under inference. It never leaves this
// package.
var errNotLinear = errors.New("quant: expression is not linear in the bound variable")

// maxRounds caps the refinement fix-point. Interval chains over unbounded
// integers can tighten forever (mutually bounding variables); stopping early
// leaves a sound over-approximation.
const maxRounds = 50

// Env maps bound-variable names to their current intervals.
type Env map[string]interval.Interval

// Infer computes an interval for every integer-typed variable in vars from
// the NNF body. Non-integer variables get no entry. If any variable's
// interval collapses to bottom, all returned intervals are bottom: the body
// is unsatisfiable regardless of the other variables, so the whole
// enumeration space is empty.
func Infer(vars []ast.VarDecl, body ast.Expr) Env {
	env := Env{}
	for _, v := range vars {
		if _, ok := v.Type.(ast.IntType); ok {
			env[v.Name] = interval.Top()
		}
	}

	for round := 0; round < maxRounds; round++ {
		changed := false
		for name := range env {
			refined := interval.Meet(env[name], refineVar(name, body, env))
			if refined.String() != env[name].String() {
				env[name] = refined
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	for _, iv := range env {
		if iv.IsBottom() {
			for name := range env {
				env[name] = interval.Bottom()
			}
			break
		}
	}
	return env
}

// refineVar computes the interval the (sub)expression e imposes on the
// variable name, under the current environment. Shapes the analysis cannot
// see through impose nothing (Top).
func refineVar(name string, e ast.Expr, env Env) interval.Interval {
	switch x := e.(type) {
	case ast.Literal:
		if b, ok := x.Value.(bool); ok && !b {
			return interval.Bottom()
		}
		return interval.Top()

	case *ast.Binary:
		switch x.Op {
		case ast.And:
			return interval.Meet(refineVar(name, x.X, env), refineVar(name, x.Y, env))
		case ast.Or:
			return interval.Join(refineVar(name, x.X, env), refineVar(name, x.Y, env))
		case ast.Le, ast.Lt, ast.Ge, ast.Gt, ast.Eq:
			return refineComparison(name, x, env)
		default:
			return interval.Top()
		}

	default:
		return interval.Top()
	}
}

// refineComparison narrows name's interval from one comparison, rewriting
// every operator in terms of <=:
//
//	a <  b  ==  a - b + 1 <= 0
//	a <= b  ==  a - b     <= 0
//	a >  b  ==  b - a + 1 <= 0
//	a >= b  ==  b - a     <= 0
//	a == b  ==  both directions
func refineComparison(name string, c *ast.Binary, env Env) interval.Interval {
	switch c.Op {
	case ast.Le:
		return refineLE(name, c.X, c.Y, 0, env)
	case ast.Lt:
		return refineLE(name, c.X, c.Y, 1, env)
	case ast.Ge:
		return refineLE(name, c.Y, c.X, 0, env)
	case ast.Gt:
		return refineLE(name, c.Y, c.X, 1, env)
	case ast.Eq:
		return interval.Meet(
			refineLE(name, c.X, c.Y, 0, env),
			refineLE(name, c.Y, c.X, 0, env))
	default:
		return interval.Top()
	}
}

// refineLE handles lhs - rhs + slack <= 0. The difference is linearized
// into A*x + B with A, B intervals; then A*x <= -B gives x's interval by
// interval division.
func refineLE(name string, lhs, rhs ast.Expr, slack int64, env Env) interval.Interval {
	a, b, err := linearize(name, &ast.Binary{Op: ast.Sub, X: lhs, Y: rhs}, env)
	if err != nil {
		return interval.Top()
	}
	b = interval.Add(b, interval.Point(slack))
	if a.IsZero() {
		// The comparison does not mention x at all; it constrains nothing.
		return interval.Top()
	}
	return interval.DivideLE(a, interval.Neg(b))
}

// linearize rewrites e as A*x + B over the variable name, with A and B as
// intervals drawn from literals and the other variables' current intervals.
func linearize(name string, e ast.Expr, env Env) (a, b interval.Interval, err error) {
	switch x := e.(type) {
	case ast.Literal:
		if n, ok := x.Value.(int64); ok {
			return interval.Point(0), interval.Point(n), nil
		}
		return a, b, errNotLinear

	case ast.Var:
		if x.Name == name {
			return interval.Point(1), interval.Point(0), nil
		}
		if iv, ok := env[x.Name]; ok {
			return interval.Point(0), iv, nil
		}
		// A free (non-quantified) variable: its value is fixed but unknown
		// to the analysis.
		return interval.Point(0), interval.Top(), nil

	case *ast.Unary:
		if x.Op != ast.Neg {
			return a, b, errNotLinear
		}
		a1, b1, err := linearize(name, x.X, env)
		if err != nil {
			return a, b, err
		}
		return interval.Neg(a1), interval.Neg(b1), nil

	case *ast.Binary:
		switch x.Op {
		case ast.Add:
			a1, b1, err := linearize(name, x.X, env)
			if err != nil {
				return a, b, err
			}
			a2, b2, err := linearize(name, x.Y, env)
			if err != nil {
				return a, b, err
			}
			return interval.Add(a1, a2), interval.Add(b1, b2), nil
		case ast.Sub:
			a1, b1, err := linearize(name, x.X, env)
			if err != nil {
				return a, b, err
			}
			a2, b2, err := linearize(name, x.Y, env)
			if err != nil {
				return a, b, err
			}
			return interval.Sub(a1, a2), interval.Sub(b1, b2), nil
		case ast.Mul:
			a1, b1, err := linearize(name, x.X, env)
			if err != nil {
				return a, b, err
			}
			a2, b2, err := linearize(name, x.Y, env)
			if err != nil {
				return a, b, err
			}
			// Only constant * linear stays linear.
			if a1.IsZero() && b1.IsPoint() {
				return interval.Mul(b1, a2), interval.Mul(b1, b2), nil
			}
			if a2.IsZero() && b2.IsPoint() {
				return interval.Mul(b2, a1), interval.Mul(b2, b1), nil
			}
			return a, b, errNotLinear
		default:
			return a, b, errNotLinear
		}

	default:
		return a, b, errNotLinear
	}
}
