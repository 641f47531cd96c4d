package solver

import (
	"fmt"

	"github.com/ebukreev/go-z3/z3"

	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/value"
)

// translator lowers constraint expressions into Z3 formulas. Only the
// decidable scalar fragment is supported: integer and boolean variables,
// literals, arithmetic, comparisons, and the logical connectives. Anything
// heap- or scope-dependent (map operations, old, quantifiers, function
// applications) reports an error and the caller falls back to draw-and-check
// generation.
type translator struct {
	ctx  *z3.Context
	vars map[string]z3.Value
}

func newTranslator(ctx *z3.Context) *translator {
	return &translator{ctx: ctx, vars: map[string]z3.Value{}}
}

func (t *translator) variable(name string, tpe ast.Type) (z3.Value, error) {
	if v, ok := t.vars[name]; ok {
		return v, nil
	}
	var v z3.Value
	switch tpe.(type) {
	case ast.IntType:
		v = t.ctx.IntConst(name)
	case ast.BoolType:
		v = t.ctx.BoolConst(name)
	default:
		return nil, fmt.Errorf("solver: variable %s has untranslatable type %s", name, tpe)
	}
	t.vars[name] = v
	return v, nil
}

// intVar declares name as an integer unless it is already declared.
func (t *translator) intVar(name string) z3.Value {
	v, _ := t.variable(name, ast.IntType{})
	return v
}

func (t *translator) expr(e ast.Expr) (z3.Value, error) {
	switch x := e.(type) {
	case ast.Literal:
		switch v := x.Value.(type) {
		case bool:
			return t.ctx.FromBool(v), nil
		case int64:
			return t.ctx.FromInt(v, t.ctx.IntSort()), nil
		default:
			return nil, fmt.Errorf("solver: untranslatable literal %v", x.Value)
		}

	case ast.Var:
		if v, ok := t.vars[x.Name]; ok {
			return v, nil
		}
		// An undeclared variable is declared as an integer, whatever
		// position it appears in: the common case for generated-value
		// constraints. A boolean variable must already be declared.
		return t.intVar(x.Name), nil

	case *ast.Coercion:
		return t.expr(x.Inner)

	case *ast.Unary:
		inner, err := t.expr(x.X)
		if err != nil {
			return nil, err
		}
		switch x.Op {
		case ast.Neg:
			return inner.(z3.Int).Neg(), nil
		case ast.Not:
			return inner.(z3.Bool).Not(), nil
		}
		return nil, fmt.Errorf("solver: untranslatable unary operator %d", x.Op)

	case *ast.Binary:
		return t.binary(x)

	default:
		return nil, fmt.Errorf("solver: untranslatable expression %s", e.String())
	}
}

func (t *translator) binary(x *ast.Binary) (z3.Value, error) {
	left, err := t.expr(x.X)
	if err != nil {
		return nil, err
	}
	right, err := t.expr(x.Y)
	if err != nil {
		return nil, err
	}

	switch x.Op {
	case ast.Add:
		return left.(z3.Int).Add(right.(z3.Int)), nil
	case ast.Sub:
		return left.(z3.Int).Sub(right.(z3.Int)), nil
	case ast.Mul:
		return left.(z3.Int).Mul(right.(z3.Int)), nil
	case ast.Div:
		return left.(z3.Int).Div(right.(z3.Int)), nil
	case ast.Mod:
		return left.(z3.Int).Mod(right.(z3.Int)), nil
	case ast.Lt:
		return left.(z3.Int).LT(right.(z3.Int)), nil
	case ast.Le:
		return left.(z3.Int).LE(right.(z3.Int)), nil
	case ast.Gt:
		return left.(z3.Int).GT(right.(z3.Int)), nil
	case ast.Ge:
		return left.(z3.Int).GE(right.(z3.Int)), nil
	case ast.Eq, ast.Neq:
		var eq z3.Bool
		if lb, ok := left.(z3.Bool); ok {
			eq = lb.Eq(right.(z3.Bool))
		} else {
			eq = left.(z3.Int).Eq(right.(z3.Int))
		}
		if x.Op == ast.Neq {
			return eq.Not(), nil
		}
		return eq, nil
	case ast.And:
		return left.(z3.Bool).And(right.(z3.Bool)), nil
	case ast.Or:
		return left.(z3.Bool).Or(right.(z3.Bool)), nil
	case ast.Implies:
		return left.(z3.Bool).Implies(right.(z3.Bool)), nil
	case ast.Explies:
		return right.(z3.Bool).Implies(left.(z3.Bool)), nil
	case ast.Iff:
		return left.(z3.Bool).Eq(right.(z3.Bool)), nil
	}
	return nil, fmt.Errorf("solver: untranslatable binary operator %d", x.Op)
}

// valueLowerer lowers a runtime value to a Z3 term, used to pin already
// materialized variables to their concrete values when enumerating
// solutions for a still-unmaterialized one.
type valueLowerer struct {
	ctx *z3.Context
}

func (l *valueLowerer) VisitInt(v *value.Int) interface{} {
	return l.ctx.FromInt(v.N, l.ctx.IntSort())
}

func (l *valueLowerer) VisitBool(v *value.Bool) interface{} {
	return l.ctx.FromBool(v.B)
}

func (l *valueLowerer) VisitCustom(v *value.Custom) interface{} {
	// Custom values are integer tags; two tags are equal iff identical, so
	// lowering to the tag preserves the only operation constraints perform
	// on them.
	return l.ctx.FromInt(v.Tag, l.ctx.IntSort())
}

func (l *valueLowerer) VisitRef(v *value.Ref) interface{} {
	// Heap references have no scalar meaning.
	return nil
}

func (t *translator) lowerValue(v value.Value) (z3.Value, error) {
	lowered := v.Accept(&valueLowerer{ctx: t.ctx})
	if lowered == nil {
		return nil, fmt.Errorf("solver: value %s has no scalar lowering", v.String())
	}
	return lowered.(z3.Value), nil
}
