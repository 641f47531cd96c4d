package eval

import (
	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/generator"
	"github.com/taktoa/language-boogie/internal/normalform"
	"github.com/taktoa/language-boogie/internal/quant"
	"github.com/taktoa/language-boogie/internal/report"
	"github.com/taktoa/language-boogie/internal/value"
)

// evalQuantified enumerates a quantifier over inferred finite domains. An
// existential is evaluated directly; a universal as the negation of the
// negated existential, so both share one enumeration path. The enumeration
// budget caps how many values a single variable may range over; without a
// positive budget no quantifier is executable.
func (e *Engine) evalQuantified(q *ast.QuantifiedExpr) (value.Value, *report.Failure) {
	for _, v := range q.Vars {
		t := e.Ctx.Types.Resolve(v.Type)
		if _, isMap := t.(ast.MapType); isMap {
			return nil, e.unsupported(q.Pos(), "quantification over map values")
		}
		if nt, ok := t.(ast.NamedType); ok && (nt.IsTypeVar || contains(q.TypeVars, nt.Name)) {
			return nil, e.unsupported(q.Pos(), "quantification over a type variable")
		}
	}
	if len(q.Vars) == 0 {
		return e.Eval(q.Body)
	}
	if e.QBound < 1 {
		return nil, report.InfiniteDomain(q.Pos(), q.Vars[0].Name, "unbounded").WithMemory(e.Mem)
	}

	body := q.Body
	negated := q.Kind == ast.Forall
	if negated {
		body = &ast.Unary{Op: ast.Not, X: body}
	}
	nf := normalform.Normalize(body)

	domains, f := e.inferDomains(q, nf)
	if f != nil {
		return nil, f
	}

	found, f := e.enumerate(q.Vars, domains, nf, 0)
	if f != nil {
		return nil, f
	}
	if negated {
		found = !found
	}
	return value.NewBool(found), nil
}

// inferDomains builds the enumeration domain for every bound variable:
// both booleans for a boolean, the interval the body admits for an integer,
// the first budget's worth of tags for a user type.
func (e *Engine) inferDomains(q *ast.QuantifiedExpr, nf ast.Expr) ([][]value.Value, *report.Failure) {
	env := quant.Infer(q.Vars, nf)
	domains := make([][]value.Value, len(q.Vars))
	for i, v := range q.Vars {
		switch t := e.Ctx.Types.Resolve(v.Type).(type) {
		case ast.BoolType:
			for _, b := range generator.AllBoolValues() {
				domains[i] = append(domains[i], value.NewBool(b))
			}

		case ast.IntType:
			iv := env[v.Name]
			if iv.IsBottom() {
				domains[i] = nil
				continue
			}
			size := iv.Size()
			if size == nil || size.Cmp(e.qboundBig()) > 0 {
				return nil, report.InfiniteDomain(q.Pos(), v.Name, iv.String()).WithMemory(e.Mem)
			}
			for _, n := range iv.Values() {
				domains[i] = append(domains[i], value.NewInt(n))
			}

		case ast.NamedType:
			for tag := int64(0); tag < e.QBound; tag++ {
				domains[i] = append(domains[i], value.NewCustom(t.Name, tag))
			}

		default:
			return nil, e.unsupported(q.Pos(), "quantification over type "+v.Type.String())
		}
	}
	return domains, nil
}

// enumerate walks the Cartesian product depth-first, returning true at the
// first satisfying tuple.
func (e *Engine) enumerate(vars []ast.VarDecl, domains [][]value.Value, body ast.Expr, i int) (bool, *report.Failure) {
	if i == len(vars) {
		v, f := e.Eval(body)
		if f != nil {
			return false, f
		}
		return e.asBool(v, body.Pos())
	}
	for _, val := range domains[i] {
		var found bool
		_, fail := e.withBindings(vars[i:i+1], []value.Value{val}, func() (value.Value, *report.Failure) {
			ok, f := e.enumerate(vars, domains, body, i+1)
			found = ok
			return nil, f
		})
		if fail != nil {
			return false, fail
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

func contains(xs []string, x string) bool {
	for _, s := range xs {
		if s == x {
			return true
		}
	}
	return false
}
