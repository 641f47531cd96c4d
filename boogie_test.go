package langboogie

import (
	"sort"
	"strings"
	"testing"

	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/generator"
	"github.com/taktoa/language-boogie/internal/report"
	"github.com/taktoa/language-boogie/internal/value"
)

func lit(n int64) ast.Expr { return ast.Literal{Value: n} }

func v(name string) ast.Expr { return ast.Var{Name: name} }

func bin(op ast.BinaryOp, x, y ast.Expr) ast.Expr { return &ast.Binary{Op: op, X: x, Y: y} }

func sel(m ast.Expr, idx ast.Expr) ast.Expr {
	return &ast.MapSelect{Map: m, Args: []ast.Expr{idx}}
}

func intT() ast.Type { return ast.IntType{} }

func arrT() ast.Type {
	return ast.MapType{Domain: []ast.Type{ast.IntType{}}, Range: ast.IntType{}}
}

// seedArray writes each entry with its own statement; a single parallel
// assignment may not name the same variable twice.
func seedArray(entries map[int64]int64) ast.Block {
	idxs := make([]int64, 0, len(entries))
	for i := range entries {
		idxs = append(idxs, i)
	}
	sort.Slice(idxs, func(a, b int) bool { return idxs[a] < idxs[b] })
	var out ast.Block
	for _, i := range idxs {
		out = append(out, &ast.Assign{
			Lhs: []ast.Expr{sel(v("array"), lit(i))},
			Rhs: []ast.Expr{lit(entries[i])},
		})
	}
	return out
}

func outLocal(tc *report.TestCase, name string) (value.Value, bool) {
	if tc.Memory == nil {
		return nil, false
	}
	return tc.Memory.GetLocal(name)
}

// Both searches over the same seeded array must find the same index.
func TestLinearAndBinarySearchAgree(t *testing.T) {
	// LinearSearch scans forward; BinarySearch halves [lo, hi).
	linear := []ast.Decl{
		&ast.ProcDecl{
			Name: "LinearSearch",
			In:   []ast.VarDecl{{Name: "n", Type: intT()}, {Name: "target", Type: intT()}},
			Out:  []ast.VarDecl{{Name: "index", Type: intT()}},
		},
		&ast.ImplDecl{
			Proc: "LinearSearch",
			In:   []ast.VarDecl{{Name: "n", Type: intT()}, {Name: "target", Type: intT()}},
			Out:  []ast.VarDecl{{Name: "index", Type: intT()}},
			Body: ast.Block{
				&ast.Assign{Lhs: []ast.Expr{v("index")}, Rhs: []ast.Expr{lit(0)}},
				&ast.While{
					Cond: bin(ast.And,
						bin(ast.Lt, v("index"), v("n")),
						bin(ast.Neq, sel(v("array"), v("index")), v("target"))),
					Body: ast.Block{
						&ast.Assign{Lhs: []ast.Expr{v("index")}, Rhs: []ast.Expr{bin(ast.Add, v("index"), lit(1))}},
					},
				},
				&ast.If{
					Cond: bin(ast.Ge, v("index"), v("n")),
					Then: ast.Block{&ast.Assign{Lhs: []ast.Expr{v("index")}, Rhs: []ast.Expr{lit(-1)}}},
				},
			},
		},
	}
	binarySearch := []ast.Decl{
		&ast.ProcDecl{
			Name: "BinarySearch",
			In:   []ast.VarDecl{{Name: "n", Type: intT()}, {Name: "target", Type: intT()}},
			Out:  []ast.VarDecl{{Name: "index", Type: intT()}},
		},
		&ast.ImplDecl{
			Proc:   "BinarySearch",
			In:     []ast.VarDecl{{Name: "n", Type: intT()}, {Name: "target", Type: intT()}},
			Out:    []ast.VarDecl{{Name: "index", Type: intT()}},
			Locals: []ast.VarDecl{{Name: "lo", Type: intT()}, {Name: "hi", Type: intT()}, {Name: "mid", Type: intT()}},
			Body: ast.Block{
				&ast.Assign{Lhs: []ast.Expr{v("lo"), v("hi"), v("index")}, Rhs: []ast.Expr{lit(0), v("n"), lit(-1)}},
				&ast.While{
					Cond: bin(ast.Lt, v("lo"), v("hi")),
					Body: ast.Block{
						&ast.Assign{Lhs: []ast.Expr{v("mid")}, Rhs: []ast.Expr{bin(ast.Div, bin(ast.Add, v("lo"), v("hi")), lit(2))}},
						&ast.If{
							Cond: bin(ast.Eq, sel(v("array"), v("mid")), v("target")),
							Then: ast.Block{
								&ast.Assign{Lhs: []ast.Expr{v("index")}, Rhs: []ast.Expr{v("mid")}},
								&ast.Assign{Lhs: []ast.Expr{v("lo"), v("hi")}, Rhs: []ast.Expr{lit(0), lit(0)}},
							},
							Else: ast.Block{
								&ast.If{
									Cond: bin(ast.Lt, sel(v("array"), v("mid")), v("target")),
									Then: ast.Block{&ast.Assign{Lhs: []ast.Expr{v("lo")}, Rhs: []ast.Expr{bin(ast.Add, v("mid"), lit(1))}}},
									Else: ast.Block{&ast.Assign{Lhs: []ast.Expr{v("hi")}, Rhs: []ast.Expr{v("mid")}}},
								},
							},
						},
					},
				},
			},
		},
	}

	seed := seedArray(map[int64]int64{0: -5, 1: 14, 2: 14, 3: 135, 4: 1000})
	mainDecls := []ast.Decl{
		&ast.VarDeclTop{Decl: ast.VarDecl{Name: "array", Type: arrT()}},
		&ast.ProcDecl{Name: "Main", Out: []ast.VarDecl{{Name: "a", Type: intT()}, {Name: "b", Type: intT()}}},
		&ast.ImplDecl{
			Proc: "Main",
			Out:  []ast.VarDecl{{Name: "a", Type: intT()}, {Name: "b", Type: intT()}},
			Body: append(append(ast.Block{}, seed...), ast.Block{
				&ast.Call{Lhs: []string{"a"}, Proc: "LinearSearch", Args: []ast.Expr{lit(5), lit(135)}},
				&ast.Call{Lhs: []string{"b"}, Proc: "BinarySearch", Args: []ast.Expr{lit(5), lit(135)}},
				&ast.Assert{Cond: bin(ast.Eq, v("a"), v("b"))},
			}...),
		},
	}

	prog := &ast.Program{Decls: append(append(linear, binarySearch...), mainDecls...)}
	tc, err := ExecuteProgramDet(prog, &TypeContext{}, 16, "Main")
	if err != nil {
		t.Fatal(err)
	}
	if tc.Outcome != report.Passed {
		t.Fatalf("outcome = %s, want passed\n%s", tc.Outcome, tc.String())
	}
	if got, ok := outLocal(tc, "a"); !ok || !value.Equal(got, value.NewInt(3)) {
		t.Errorf("LinearSearch found %v, want 3", got)
	}
	if got, ok := outLocal(tc, "b"); !ok || !value.Equal(got, value.NewInt(3)) {
		t.Errorf("BinarySearch found %v, want 3", got)
	}
}

func TestDivisionByZeroScenario(t *testing.T) {
	divPos := ast.Position{Line: 1, Col: 30}
	prog := &ast.Program{Decls: []ast.Decl{
		&ast.ProcDecl{Name: "P"},
		&ast.ImplDecl{
			Proc:   "P",
			Locals: []ast.VarDecl{{Name: "x", Type: intT()}},
			Body: ast.Block{
				&ast.Assign{
					Lhs: []ast.Expr{v("x")},
					Rhs: []ast.Expr{&ast.Binary{Base: ast.Base{Position: divPos}, Op: ast.Div, X: lit(10), Y: lit(0)}},
				},
			},
		},
	}}
	tc, err := ExecuteProgramDet(prog, &TypeContext{}, 16, "P")
	if err != nil {
		t.Fatal(err)
	}
	if tc.Outcome != report.Failed {
		t.Fatalf("outcome = %s, want failed", tc.Outcome)
	}
	if tc.Failure.Pos != divPos {
		t.Errorf("failure position = %s, want %s", tc.Failure.Pos, divPos)
	}
	if !strings.Contains(tc.String(), "division by zero") {
		t.Errorf("summary should mention division by zero:\n%s", tc.String())
	}
}

func TestAssertionViolationScenario(t *testing.T) {
	prog := &ast.Program{Decls: []ast.Decl{
		&ast.ProcDecl{Name: "P"},
		&ast.ImplDecl{Proc: "P", Body: ast.Block{
			&ast.Assert{Cond: bin(ast.Eq, lit(1), lit(2))},
		}},
	}}
	tc, err := ExecuteProgramDet(prog, &TypeContext{}, 16, "P")
	if err != nil {
		t.Fatal(err)
	}
	if tc.Outcome != report.Failed {
		t.Fatalf("outcome = %s, want failed", tc.Outcome)
	}
	if !strings.Contains(tc.String(), `"(1 == 2)"`) || !strings.Contains(tc.String(), "Assertion") {
		t.Errorf("summary should quote the violated assertion:\n%s", tc.String())
	}
}

func wildcardBranchProgram() *ast.Program {
	return &ast.Program{Decls: []ast.Decl{
		&ast.ProcDecl{Name: "P", Out: []ast.VarDecl{{Name: "y", Type: intT()}}},
		&ast.ImplDecl{
			Proc: "P",
			Out:  []ast.VarDecl{{Name: "y", Type: intT()}},
			Body: ast.Block{
				&ast.If{
					Cond: ast.Wildcard{},
					Then: ast.Block{
						&ast.Assume{Cond: ast.Literal{Value: false}},
						&ast.Assign{Lhs: []ast.Expr{v("y")}, Rhs: []ast.Expr{lit(1)}},
					},
					Else: ast.Block{
						&ast.Assign{Lhs: []ast.Expr{v("y")}, Rhs: []ast.Expr{lit(2)}},
					},
				},
			},
		},
	}}
}

func TestAssumptionViolationSuppressesBranchDeterministic(t *testing.T) {
	tc, err := ExecuteProgramDet(wildcardBranchProgram(), &TypeContext{}, 16, "P")
	if err != nil {
		t.Fatal(err)
	}
	if tc.Outcome != report.Passed {
		t.Fatalf("outcome = %s, want passed (the invalid branch falls through)", tc.Outcome)
	}
	if got, ok := outLocal(tc, "y"); !ok || !value.Equal(got, value.NewInt(2)) {
		t.Errorf("y = %v, want 2 (the else branch)", got)
	}
}

func TestAssumptionViolationYieldsInvalidAndPassed(t *testing.T) {
	run, err := ExecuteProgram(wildcardBranchProgram(), &TypeContext{}, generator.Stream{}, 16, "P")
	if err != nil {
		t.Fatal(err)
	}
	cases := run.All(0)
	if len(cases) != 2 {
		t.Fatalf("expected two branches, got %d", len(cases))
	}
	if cases[0].Outcome != report.Invalid {
		t.Errorf("then-branch outcome = %s, want invalid", cases[0].Outcome)
	}
	if cases[1].Outcome != report.Passed {
		t.Errorf("else-branch outcome = %s, want passed", cases[1].Outcome)
	}
	if got, ok := outLocal(cases[1], "y"); !ok || !value.Equal(got, value.NewInt(2)) {
		t.Errorf("passing branch y = %v, want 2", got)
	}
}

func axiomConstantProgram() *ast.Program {
	return &ast.Program{Decls: []ast.Decl{
		&ast.ConstDecl{Name: "K", Type: intT()},
		&ast.AxiomDecl{Expr: bin(ast.Eq, v("K"), lit(42))},
		&ast.ProcDecl{Name: "P", Out: []ast.VarDecl{{Name: "r", Type: intT()}}},
		&ast.ImplDecl{
			Proc: "P",
			Out:  []ast.VarDecl{{Name: "r", Type: intT()}},
			Body: ast.Block{
				&ast.Assign{Lhs: []ast.Expr{v("r")}, Rhs: []ast.Expr{v("K")}},
			},
		},
	}}
}

func TestAxiomDrivenConstantScenario(t *testing.T) {
	tc, err := ExecuteProgramDet(axiomConstantProgram(), &TypeContext{}, 16, "P")
	if err != nil {
		t.Fatal(err)
	}
	if tc.Outcome != report.Passed {
		t.Fatalf("outcome = %s, want passed\n%s", tc.Outcome, tc.String())
	}
	if got, ok := outLocal(tc, "r"); !ok || !value.Equal(got, value.NewInt(42)) {
		t.Errorf("r = %v, want 42", got)
	}
}

func quantifiedProgram() *ast.Program {
	return &ast.Program{Decls: []ast.Decl{
		&ast.ProcDecl{Name: "P"},
		&ast.ImplDecl{Proc: "P", Body: ast.Block{
			&ast.Assert{Cond: &ast.QuantifiedExpr{
				Kind: ast.Forall,
				Vars: []ast.VarDecl{{Name: "i", Type: intT()}},
				Body: bin(ast.Implies,
					bin(ast.And, bin(ast.Le, lit(0), v("i")), bin(ast.Lt, v("i"), lit(3))),
					bin(ast.Gt, bin(ast.Add, v("i"), lit(1)), lit(0))),
			}},
		}},
	}}
}

func TestQuantifiedDomainScenario(t *testing.T) {
	tc, err := ExecuteProgramDet(quantifiedProgram(), &TypeContext{}, 16, "P")
	if err != nil {
		t.Fatal(err)
	}
	if tc.Outcome != report.Passed {
		t.Fatalf("outcome with an adequate budget = %s, want passed\n%s", tc.Outcome, tc.String())
	}

	tc, err = ExecuteProgramDet(quantifiedProgram(), &TypeContext{}, 0, "P")
	if err != nil {
		t.Fatal(err)
	}
	if tc.Outcome != report.Nonexecutable {
		t.Fatalf("outcome with a zero budget = %s, want non-executable", tc.Outcome)
	}
}

// Deterministic execution must be idempotent.
func TestDeterministicExecutionIsIdempotent(t *testing.T) {
	first, err := ExecuteProgramDet(axiomConstantProgram(), &TypeContext{}, 16, "P")
	if err != nil {
		t.Fatal(err)
	}
	second, err := ExecuteProgramDet(axiomConstantProgram(), &TypeContext{}, 16, "P")
	if err != nil {
		t.Fatal(err)
	}
	if first.String() != second.String() {
		t.Errorf("two default runs differ:\n%s\n---\n%s", first.String(), second.String())
	}
}

func TestSessionSummaryCountsOutcomes(t *testing.T) {
	run, err := ExecuteProgram(wildcardBranchProgram(), &TypeContext{}, generator.Stream{}, 16, "P")
	if err != nil {
		t.Fatal(err)
	}
	session := run.Session(0, false)
	got := session.Summary()
	if !strings.Contains(got, "passed: 1") || !strings.Contains(got, "invalid: 1") {
		t.Errorf("summary = %q, want one passed and one invalid", got)
	}
}

func TestEntryInputsAreRecorded(t *testing.T) {
	prog := &ast.Program{Decls: []ast.Decl{
		&ast.ProcDecl{Name: "P", In: []ast.VarDecl{{Name: "x", Type: intT()}}},
		&ast.ImplDecl{
			Proc: "P",
			In:   []ast.VarDecl{{Name: "x", Type: intT()}},
			Body: ast.Block{
				&ast.Assert{Cond: bin(ast.Ge, bin(ast.Mul, v("x"), v("x")), lit(0))},
			},
		},
	}}
	tc, err := ExecuteProgramDet(prog, &TypeContext{}, 16, "P")
	if err != nil {
		t.Fatal(err)
	}
	if tc.Outcome != report.Passed {
		t.Fatalf("outcome = %s, want passed", tc.Outcome)
	}
	got, ok := tc.Args["x"]
	if !ok || !value.Equal(got, value.NewInt(0)) {
		t.Errorf("recorded input x = %v, want the default draw 0", got)
	}
	if !strings.Contains(tc.String(), "P(x=0) passed") {
		t.Errorf("summary = %q, want procedure, inputs, and outcome", tc.String())
	}
}

func TestUnknownEntryProcedureIsAnError(t *testing.T) {
	if _, err := ExecuteProgramDet(&ast.Program{}, &TypeContext{}, 16, "Nope"); err == nil {
		t.Error("an unknown entry procedure must be rejected up front")
	}
}
