package quant

import (
	"testing"

	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/interval"
	"github.com/taktoa/language-boogie/internal/normalform"
)

func intVar(name string) ast.VarDecl { return ast.VarDecl{Name: name, Type: ast.IntType{}} }

func lit(n int64) ast.Expr { return ast.Literal{Value: n} }

func v(name string) ast.Expr { return ast.Var{Name: name} }

func bin(op ast.BinaryOp, x, y ast.Expr) ast.Expr { return &ast.Binary{Op: op, X: x, Y: y} }

func TestInferBoundsFromConjunction(t *testing.T) {
	// 0 <= i && i < 3
	body := bin(ast.And, bin(ast.Le, lit(0), v("i")), bin(ast.Lt, v("i"), lit(3)))
	env := Infer([]ast.VarDecl{intVar("i")}, body)

	want := interval.Range(0, 2)
	if got := env["i"]; got.String() != want.String() {
		t.Errorf("inferred %s, want %s", got, want)
	}
}

func TestInferJoinsDisjunction(t *testing.T) {
	// (i == 1) || (i == 5)
	body := bin(ast.Or, bin(ast.Eq, v("i"), lit(1)), bin(ast.Eq, v("i"), lit(5)))
	env := Infer([]ast.VarDecl{intVar("i")}, body)

	want := interval.Range(1, 5)
	if got := env["i"]; got.String() != want.String() {
		t.Errorf("inferred %s, want %s", got, want)
	}
}

func TestInferScaledVariable(t *testing.T) {
	// 2*i <= 7 bounds i above by 3.
	body := bin(ast.Le, bin(ast.Mul, lit(2), v("i")), lit(7))
	env := Infer([]ast.VarDecl{intVar("i")}, body)

	got := env["i"]
	if got.IsBottom() || got.Hi == nil || got.Hi.Int64() != 3 {
		t.Errorf("inferred %s, want upper bound 3", got)
	}
	if got.Lo != nil {
		t.Errorf("inferred %s, want no lower bound", got)
	}
}

func TestInferUnsatisfiableBodyCollapsesAllVariables(t *testing.T) {
	// i >= 1 && i <= 0 is empty; j must collapse with it.
	body := bin(ast.And,
		bin(ast.And, bin(ast.Ge, v("i"), lit(1)), bin(ast.Le, v("i"), lit(0))),
		bin(ast.Le, v("j"), lit(10)))
	env := Infer([]ast.VarDecl{intVar("i"), intVar("j")}, body)

	if !env["i"].IsBottom() || !env["j"].IsBottom() {
		t.Errorf("expected both intervals bottom, got i=%s j=%s", env["i"], env["j"])
	}
}

func TestInferLiteralFalseIsBottom(t *testing.T) {
	env := Infer([]ast.VarDecl{intVar("i")}, ast.Literal{Value: false})
	if !env["i"].IsBottom() {
		t.Errorf("false body should infer bottom, got %s", env["i"])
	}
}

func TestInferNonLinearShapeImposesNothing(t *testing.T) {
	// i*i <= 4 is not linear; i stays unconstrained.
	body := bin(ast.Le, bin(ast.Mul, v("i"), v("i")), lit(4))
	env := Infer([]ast.VarDecl{intVar("i")}, body)

	got := env["i"]
	if got.IsBottom() || got.Lo != nil || got.Hi != nil {
		t.Errorf("non-linear body should leave i unconstrained, got %s", got)
	}
}

func TestInferNormalizedImplicationBody(t *testing.T) {
	// The negated universal body (0 <= i && i < 3 ==> i+1 > 0), as the
	// existential enumeration sees it after normalization, is unsatisfiable.
	forallBody := bin(ast.Implies,
		bin(ast.And, bin(ast.Le, lit(0), v("i")), bin(ast.Lt, v("i"), lit(3))),
		bin(ast.Gt, bin(ast.Add, v("i"), lit(1)), lit(0)))
	nf := normalform.Normalize(&ast.Unary{Op: ast.Not, X: forallBody})

	env := Infer([]ast.VarDecl{intVar("i")}, nf)
	if !env["i"].IsBottom() {
		t.Errorf("no counterexample interval should exist, got %s", env["i"])
	}
}

// Refinement must be monotone: re-running inference on an already inferred
// environment never enlarges an interval.
func TestInferRefinementIsMonotone(t *testing.T) {
	body := bin(ast.And, bin(ast.Le, lit(0), v("i")), bin(ast.Le, v("i"), lit(9)))
	vars := []ast.VarDecl{intVar("i")}

	first := Infer(vars, body)
	second := refineVar("i", body, first)
	if !interval.LessOrEqual(interval.Meet(first["i"], second), first["i"]) {
		t.Errorf("refinement enlarged the interval: %s then %s", first["i"], second)
	}
}
