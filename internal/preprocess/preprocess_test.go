package preprocess

import (
	"testing"

	"github.com/taktoa/language-boogie/internal/ast"
)

func lit(n int64) ast.Expr { return ast.Literal{Value: n} }

func v(name string) ast.Expr { return ast.Var{Name: name} }

func bin(op ast.BinaryOp, x, y ast.Expr) ast.Expr { return &ast.Binary{Op: op, X: x, Y: y} }

func intT() ast.Type { return ast.IntType{} }

func TestConstantEqualityAxiomBecomesDefinition(t *testing.T) {
	prog := &ast.Program{Decls: []ast.Decl{
		&ast.ConstDecl{Name: "K", Type: intT()},
		&ast.AxiomDecl{Expr: bin(ast.Eq, v("K"), lit(42))},
	}}
	ctx, err := Run(prog, &TypeContext{})
	if err != nil {
		t.Fatal(err)
	}

	defs := ctx.Store.Definitions("K")
	if len(defs) != 1 {
		t.Fatalf("expected one definition for K, got %d", len(defs))
	}
	if defs[0].Guard != nil || len(defs[0].Formals) != 0 {
		t.Errorf("K's definition should be unconditional and formal-free: %+v", defs[0])
	}
	if defs[0].Body.String() != "42" {
		t.Errorf("K's body = %s, want 42", defs[0].Body.String())
	}
}

func TestQuantifiedFunctionAxiomBecomesDeferredDefinition(t *testing.T) {
	// axiom (forall i: int :: 0 <= i ==> f(i) == i * 2);
	prog := &ast.Program{Decls: []ast.Decl{
		&ast.FunctionDecl{Name: "f", Params: []ast.VarDecl{{Name: "x", Type: intT()}}, Ret: intT()},
		&ast.AxiomDecl{Expr: &ast.QuantifiedExpr{
			Kind: ast.Forall,
			Vars: []ast.VarDecl{{Name: "i", Type: intT()}},
			Body: bin(ast.Implies,
				bin(ast.Le, lit(0), v("i")),
				bin(ast.Eq, &ast.Application{Func: "f", Args: []ast.Expr{v("i")}}, bin(ast.Mul, v("i"), lit(2)))),
		}},
	}}
	ctx, err := Run(prog, &TypeContext{})
	if err != nil {
		t.Fatal(err)
	}

	defs := ctx.Store.Definitions(FunctionEntity("f"))
	if len(defs) != 1 {
		t.Fatalf("expected one definition for f, got %d", len(defs))
	}
	d := defs[0]
	if len(d.Formals) != 1 || d.Formals[0].Name != "i" {
		t.Errorf("formals = %+v, want [i]", d.Formals)
	}
	if d.Guard == nil {
		t.Error("the implication antecedent should become the definition guard")
	}
}

func TestFunctionBodyBecomesDefinition(t *testing.T) {
	prog := &ast.Program{Decls: []ast.Decl{
		&ast.FunctionDecl{
			Name:   "double",
			Params: []ast.VarDecl{{Name: "x", Type: intT()}},
			Ret:    intT(),
			Body:   bin(ast.Mul, v("x"), lit(2)),
		},
	}}
	ctx, err := Run(prog, &TypeContext{})
	if err != nil {
		t.Fatal(err)
	}

	defs := ctx.Store.Definitions(FunctionEntity("double"))
	if len(defs) != 1 || len(defs[0].Formals) != 1 {
		t.Fatalf("function body should contribute one definition with its parameter as formal, got %+v", defs)
	}
}

func TestNonDefiningAxiomBecomesConstraint(t *testing.T) {
	// axiom K > 5; does not define K but constrains it.
	prog := &ast.Program{Decls: []ast.Decl{
		&ast.ConstDecl{Name: "K", Type: intT()},
		&ast.AxiomDecl{Expr: bin(ast.Gt, v("K"), lit(5))},
	}}
	ctx, err := Run(prog, &TypeContext{})
	if err != nil {
		t.Fatal(err)
	}

	if len(ctx.Store.Definitions("K")) != 0 {
		t.Error("an inequality should not define K")
	}
	cs := ctx.Store.Constraints("K")
	if len(cs) != 1 {
		t.Fatalf("expected one constraint on K, got %d", len(cs))
	}
}

func TestQuantifiedMapAxiomAttachesDeferredConstraint(t *testing.T) {
	// axiom (forall i: int :: a[i] > 0);
	arrT := ast.MapType{Domain: []ast.Type{intT()}, Range: intT()}
	prog := &ast.Program{Decls: []ast.Decl{
		&ast.VarDeclTop{Decl: ast.VarDecl{Name: "a", Type: arrT}},
		&ast.AxiomDecl{Expr: &ast.QuantifiedExpr{
			Kind: ast.Forall,
			Vars: []ast.VarDecl{{Name: "i", Type: intT()}},
			Body: bin(ast.Gt, &ast.MapSelect{Map: v("a"), Args: []ast.Expr{v("i")}}, lit(0)),
		}},
	}}
	ctx, err := Run(prog, &TypeContext{})
	if err != nil {
		t.Fatal(err)
	}

	cs := ctx.Store.Constraints("a")
	if len(cs) != 1 {
		t.Fatalf("expected one deferred constraint on a, got %d", len(cs))
	}
	if len(cs[0].Formals) != 1 || cs[0].Formals[0].Name != "i" {
		t.Errorf("constraint formals = %+v, want [i]", cs[0].Formals)
	}
}

func TestDisjunctionGuardsEachSide(t *testing.T) {
	// axiom K == 1 || K == 2 defines K twice, each under the negation of
	// the other side.
	prog := &ast.Program{Decls: []ast.Decl{
		&ast.ConstDecl{Name: "K", Type: intT()},
		&ast.AxiomDecl{Expr: bin(ast.Or, bin(ast.Eq, v("K"), lit(1)), bin(ast.Eq, v("K"), lit(2)))},
	}}
	ctx, err := Run(prog, &TypeContext{})
	if err != nil {
		t.Fatal(err)
	}

	defs := ctx.Store.Definitions("K")
	if len(defs) != 2 {
		t.Fatalf("expected two guarded definitions for K, got %d", len(defs))
	}
	for _, d := range defs {
		if d.Guard == nil {
			t.Errorf("each disjunct's definition must be guarded, got %+v", d)
		}
	}
}

func TestImplementationsAreFlattened(t *testing.T) {
	prog := &ast.Program{Decls: []ast.Decl{
		&ast.ProcDecl{Name: "P"},
		&ast.ImplDecl{Proc: "P", Body: ast.Block{
			&ast.Assign{Lhs: []ast.Expr{v("x")}, Rhs: []ast.Expr{lit(1)}},
		}},
	}}
	ctx, err := Run(prog, &TypeContext{})
	if err != nil {
		t.Fatal(err)
	}

	impls := ctx.Impls["P"]
	if len(impls) != 1 {
		t.Fatalf("expected one implementation, got %d", len(impls))
	}
	if _, ok := impls[0].CFG.Blocks[impls[0].CFG.Start]; !ok {
		t.Error("flattened body must contain the start block")
	}
}

func TestImplementationWithoutProcedureIsRejected(t *testing.T) {
	prog := &ast.Program{Decls: []ast.Decl{
		&ast.ImplDecl{Proc: "Ghost", Body: ast.Block{}},
	}}
	if _, err := Run(prog, &TypeContext{}); err == nil {
		t.Error("an implementation without a procedure declaration must be rejected")
	}
}
