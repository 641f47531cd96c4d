// Demo driver: builds a small program with a global array, a linear search,
// and a couple of contract checks, then runs it through the default and
// exhaustive interpreters and prints every test case and the session
// summary.
package main

import (
	"flag"
	"fmt"
	"log"

	langboogie "github.com/taktoa/language-boogie"
	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/generator"
)

func main() {
	debug := flag.Bool("debug", false, "dump heap and memory with each test case")
	maxCases := flag.Int("max", 32, "maximum number of exhaustive test cases")
	qBound := flag.Int64("qbound", 128, "quantifier enumeration budget per variable")
	flag.Parse()

	prog := demoProgram()
	tctx := &langboogie.TypeContext{}

	fmt.Println("=== default run ===")
	tc, err := langboogie.ExecuteProgramDet(prog, tctx, *qBound, "Main")
	if err != nil {
		log.Fatalf("execution setup: %v", err)
	}
	fmt.Println(tc.String())

	fmt.Println("=== exhaustive run ===")
	run, err := langboogie.ExecuteProgram(prog, tctx, generator.Stream{}, *qBound, "Main")
	if err != nil {
		log.Fatalf("execution setup: %v", err)
	}
	session := run.Session(*maxCases, *debug)
	for _, c := range session.Cases {
		fmt.Println(c.String())
	}
	fmt.Println(session.Summary())
}

// demoProgram is, in concrete syntax:
//
//	var array: [int]int;
//	const N: int;
//	axiom N == 5;
//
//	procedure LinearSearch(n: int, target: int) returns (index: int)
//	{ ... scan array[0..n) for target, -1 when absent ... }
//
//	procedure Main() returns (found: int)
//	{
//	  array[0] := -5; array[1] := 14; array[2] := 14;
//	  array[3] := 135; array[4] := 1000;
//	  call found := LinearSearch(N, 135);
//	  assert array[found] == 135;
//	  assert (forall i: int :: 0 <= i && i < 3 ==> array[i] < 135);
//	}
func demoProgram() *ast.Program {
	intT := ast.IntType{}
	arrayT := ast.MapType{Domain: []ast.Type{intT}, Range: intT}

	lit := func(n int64) ast.Expr { return ast.Literal{Value: n} }
	v := func(name string) ast.Expr { return ast.Var{Name: name} }
	bin := func(op ast.BinaryOp, x, y ast.Expr) ast.Expr { return &ast.Binary{Op: op, X: x, Y: y} }
	sel := func(m ast.Expr, idx ast.Expr) ast.Expr { return &ast.MapSelect{Map: m, Args: []ast.Expr{idx}} }

	searchBody := ast.Block{
		&ast.Assign{Lhs: []ast.Expr{v("index")}, Rhs: []ast.Expr{lit(0)}},
		&ast.While{
			Cond: bin(ast.And,
				bin(ast.Lt, v("index"), v("n")),
				bin(ast.Neq, sel(v("array"), v("index")), v("target"))),
			Invariants: []ast.LoopInvariant{
				{Cond: bin(ast.Ge, v("index"), lit(0))},
			},
			Body: ast.Block{
				&ast.Assign{Lhs: []ast.Expr{v("index")}, Rhs: []ast.Expr{bin(ast.Add, v("index"), lit(1))}},
			},
		},
		&ast.If{
			Cond: bin(ast.Ge, v("index"), v("n")),
			Then: ast.Block{
				&ast.Assign{Lhs: []ast.Expr{v("index")}, Rhs: []ast.Expr{lit(-1)}},
			},
		},
	}

	mainBody := ast.Block{
		&ast.Assign{Lhs: []ast.Expr{sel(v("array"), lit(0))}, Rhs: []ast.Expr{lit(-5)}},
		&ast.Assign{Lhs: []ast.Expr{sel(v("array"), lit(1))}, Rhs: []ast.Expr{lit(14)}},
		&ast.Assign{Lhs: []ast.Expr{sel(v("array"), lit(2))}, Rhs: []ast.Expr{lit(14)}},
		&ast.Assign{Lhs: []ast.Expr{sel(v("array"), lit(3))}, Rhs: []ast.Expr{lit(135)}},
		&ast.Assign{Lhs: []ast.Expr{sel(v("array"), lit(4))}, Rhs: []ast.Expr{lit(1000)}},
		&ast.Call{Lhs: []string{"found"}, Proc: "LinearSearch", Args: []ast.Expr{v("N"), lit(135)}},
		&ast.Assert{Cond: bin(ast.Eq, sel(v("array"), v("found")), lit(135))},
		&ast.Assert{Cond: &ast.QuantifiedExpr{
			Kind: ast.Forall,
			Vars: []ast.VarDecl{{Name: "i", Type: intT}},
			Body: bin(ast.Implies,
				bin(ast.And, bin(ast.Le, lit(0), v("i")), bin(ast.Lt, v("i"), lit(3))),
				bin(ast.Lt, sel(v("array"), v("i")), lit(135))),
		}},
	}

	return &ast.Program{Decls: []ast.Decl{
		&ast.VarDeclTop{Decl: ast.VarDecl{Name: "array", Type: arrayT}},
		&ast.ConstDecl{Name: "N", Type: intT},
		&ast.AxiomDecl{Expr: bin(ast.Eq, v("N"), lit(5))},
		&ast.ProcDecl{
			Name: "LinearSearch",
			In:   []ast.VarDecl{{Name: "n", Type: intT}, {Name: "target", Type: intT}},
			Out:  []ast.VarDecl{{Name: "index", Type: intT}},
		},
		&ast.ImplDecl{
			Proc: "LinearSearch",
			In:   []ast.VarDecl{{Name: "n", Type: intT}, {Name: "target", Type: intT}},
			Out:  []ast.VarDecl{{Name: "index", Type: intT}},
			Body: searchBody,
		},
		&ast.ProcDecl{
			Name: "Main",
			Out:  []ast.VarDecl{{Name: "found", Type: intT}},
		},
		&ast.ImplDecl{
			Proc: "Main",
			Out:  []ast.VarDecl{{Name: "found", Type: intT}},
			Body: mainBody,
		},
	}}
}
