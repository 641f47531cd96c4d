package ast

// Program is the top-level type-checked unit handed to the interpreter: a
// flat list of declarations. The TypeContext accompanying the program comes
// from the external type-checker and supplies type bindings the interpreter
// does not re-derive.
type Program struct {
	Decls []Decl
}

type Decl interface {
	isDecl()
}

// ConstDecl is `const [unique] x: T;`.
type ConstDecl struct {
	Name   string
	Type   Type
	Unique bool
	Pos    Position
}

func (ConstDecl) isDecl() {}

// VarDeclTop is a global `var x: T where e;`.
type VarDeclTop struct {
	Decl VarDecl
	Pos  Position
}

func (VarDeclTop) isDecl() {}

// FunctionDecl is `function f(args): T { body }` or, with Body nil, an
// uninterpreted function constant.
type FunctionDecl struct {
	Name     string
	TypeVars []string
	Params   []VarDecl
	Ret      Type
	Body     Expr // nil if uninterpreted
	Pos      Position
}

func (FunctionDecl) isDecl() {}

// AxiomDecl is `axiom e;`, translated by internal/preprocess into the
// abstract constraint store.
type AxiomDecl struct {
	Expr Expr
	Pos  Position
}

func (AxiomDecl) isDecl() {}

// ProcDecl is a procedure signature with its contract: pre/postconditions
// and the modifies clause.
type ProcDecl struct {
	Name        string
	TypeVars    []string
	In          []VarDecl
	Out         []VarDecl
	Modifies    []string
	Preconds    []Contract
	Postconds   []Contract
	Pos         Position
}

func (ProcDecl) isDecl() {}

type Contract struct {
	Expr Expr
	Free bool
}

// ImplDecl is a procedure implementation: local declarations plus a
// structured body (pre-flattening). ParamsRenamed records whether the
// implementation renamed the signature's in/out parameters.
type ImplDecl struct {
	Proc           string
	TypeVars       []string
	In, Out        []VarDecl
	Locals         []VarDecl
	Body           Block
	ParamsRenamed  bool
	Pos            Position
}

func (ImplDecl) isDecl() {}

// Lookup helpers; the preprocessor builds indices once instead of scanning
// Decls repeatedly, but these are handy for tests and small programs.

func (p *Program) Procedures() []*ProcDecl {
	var out []*ProcDecl
	for _, d := range p.Decls {
		if pd, ok := d.(*ProcDecl); ok {
			out = append(out, pd)
		}
	}
	return out
}

func (p *Program) Implementations() []*ImplDecl {
	var out []*ImplDecl
	for _, d := range p.Decls {
		if id, ok := d.(*ImplDecl); ok {
			out = append(out, id)
		}
	}
	return out
}
