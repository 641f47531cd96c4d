// Package normalform pushes negations down to atoms (comparisons, variable
// references, function applications) and, symmetrically, flips quantifier
// kind across a negation. Domain inference only looks at a QuantifiedExpr's
// immediate Kind and Body, so a quantifier inside an odd number of
// negations must see its polarity reflected in its Kind rather than buried
// under a Not.
package normalform

import "github.com/taktoa/language-boogie/internal/ast"

// Normalize returns an expression equivalent to e with every Not pushed down
// to an atom. Implies/Explies/Iff are rewritten away entirely in the process
// (into And/Or/Not), since pushing a negation through them is otherwise
// ambiguous about which side to negate.
func Normalize(e ast.Expr) ast.Expr {
	return rewrite(e, false)
}

// rewrite returns e (if neg is false) or ¬e (if neg is true), in negation-
// normal form, recursing into subexpressions either way.
func rewrite(e ast.Expr, neg bool) ast.Expr {
	switch x := e.(type) {
	case ast.Literal:
		if b, ok := x.Value.(bool); ok && neg {
			return ast.Literal{Value: !b}
		}
		return x

	case ast.Var, ast.Wildcard:
		return maybeNot(e, neg)

	case *ast.Application:
		return maybeNot(&ast.Application{Func: x.Func, Args: rewriteAll(x.Args)}, neg)

	case *ast.MapSelect:
		return maybeNot(&ast.MapSelect{Map: rewrite(x.Map, false), Args: rewriteAll(x.Args)}, neg)

	case *ast.MapUpdate:
		return maybeNot(&ast.MapUpdate{
			Map:   rewrite(x.Map, false),
			Args:  rewriteAll(x.Args),
			Value: rewrite(x.Value, false),
		}, neg)

	case *ast.Old:
		return maybeNot(&ast.Old{Inner: rewrite(x.Inner, false)}, neg)

	case *ast.Coercion:
		return maybeNot(&ast.Coercion{Inner: rewrite(x.Inner, false), To: x.To}, neg)

	case *ast.IfExpr:
		// ¬(if c then t else e) == if c then ¬t else ¬e: the condition
		// itself is never negated, only whichever arm is taken.
		return &ast.IfExpr{
			Cond: rewrite(x.Cond, false),
			Then: rewrite(x.Then, neg),
			Else: rewrite(x.Else, neg),
		}

	case *ast.Unary:
		if x.Op == ast.Not {
			return rewrite(x.X, !neg)
		}
		return maybeNot(&ast.Unary{Op: x.Op, X: rewrite(x.X, false)}, neg)

	case *ast.Binary:
		return rewriteBinary(x, neg)

	case *ast.QuantifiedExpr:
		kind := x.Kind
		if neg {
			kind = flipQuantifier(kind)
		}
		return &ast.QuantifiedExpr{
			Kind:     kind,
			TypeVars: x.TypeVars,
			Vars:     x.Vars,
			Body:     rewrite(x.Body, neg),
		}

	default:
		return maybeNot(e, neg)
	}
}

func rewriteAll(es []ast.Expr) []ast.Expr {
	out := make([]ast.Expr, len(es))
	for i, e := range es {
		out[i] = rewrite(e, false)
	}
	return out
}

func flipQuantifier(k ast.Quantifier) ast.Quantifier {
	if k == ast.Forall {
		return ast.Exists
	}
	return ast.Forall
}

// maybeNot wraps e in a Not if neg is set, used for nodes with no cheaper
// negation (applications, map operations, old, coercion, variables).
func maybeNot(e ast.Expr, neg bool) ast.Expr {
	if !neg {
		return e
	}
	return &ast.Unary{Op: ast.Not, X: e}
}

var complementCmp = map[ast.BinaryOp]ast.BinaryOp{
	ast.Lt: ast.Ge, ast.Ge: ast.Lt,
	ast.Le: ast.Gt, ast.Gt: ast.Le,
	ast.Eq: ast.Neq, ast.Neq: ast.Eq,
}

func rewriteBinary(x *ast.Binary, neg bool) ast.Expr {
	switch x.Op {
	case ast.And, ast.Or:
		op := x.Op
		if neg {
			// De Morgan: ¬(a && b) == ¬a || ¬b; ¬(a || b) == ¬a && ¬b.
			if op == ast.And {
				op = ast.Or
			} else {
				op = ast.And
			}
		}
		return &ast.Binary{Op: op, X: rewrite(x.X, neg), Y: rewrite(x.Y, neg)}

	case ast.Implies:
		// a ==> b  ==  ¬a || b
		rewritten := &ast.Binary{Op: ast.Or, X: rewrite(x.X, true), Y: rewrite(x.Y, false)}
		if neg {
			return rewrite(rewritten, true)
		}
		return rewritten

	case ast.Explies:
		// a <== b  ==  b ==> a
		return rewriteBinary(&ast.Binary{Op: ast.Implies, X: x.Y, Y: x.X}, neg)

	case ast.Iff:
		// a <==> b  ==  (a ==> b) && (b ==> a); negating an iff flips exactly
		// one side, so push the negation onto the left operand only, which
		// preserves the standard identity ¬(a<==>b) == (¬a)<==>b.
		if neg {
			return rewriteBinary(&ast.Binary{Op: ast.Iff, X: &ast.Unary{Op: ast.Not, X: x.X}, Y: x.Y}, false)
		}
		left := &ast.Binary{Op: ast.Implies, X: x.X, Y: x.Y}
		right := &ast.Binary{Op: ast.Implies, X: x.Y, Y: x.X}
		return &ast.Binary{Op: ast.And, X: rewriteBinary(left, false), Y: rewriteBinary(right, false)}

	case ast.Lt, ast.Le, ast.Gt, ast.Ge, ast.Eq, ast.Neq:
		op := x.Op
		if neg {
			op = complementCmp[op]
		}
		return &ast.Binary{Op: op, X: rewrite(x.X, false), Y: rewrite(x.Y, false)}

	default: // Add, Sub, Mul, Div, Mod: arithmetic, never boolean, never negated
		return maybeNot(&ast.Binary{Op: x.Op, X: rewrite(x.X, false), Y: rewrite(x.Y, false)}, neg)
	}
}
