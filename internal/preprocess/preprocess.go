// Package preprocess turns a type-checked program into the tables the
// interpreter runs against: indexed declarations, flattened procedure
// bodies, and an abstract constraint store seeded from axioms and function
// definitions.
package preprocess

import (
	"fmt"

	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/flatten"
	"github.com/taktoa/language-boogie/internal/store"
)

// TypeContext carries the type-checker's output the interpreter needs:
// synonym expansions and the set of declared user types. It is supplied by
// the external front end alongside the program.
type TypeContext struct {
	Synonyms  map[string]ast.Type
	UserTypes []string
}

// Resolve expands type synonyms until a structural type remains.
func (tc *TypeContext) Resolve(t ast.Type) ast.Type {
	if tc == nil {
		return t
	}
	for {
		named, ok := t.(ast.NamedType)
		if !ok || named.IsTypeVar {
			return t
		}
		syn, ok := tc.Synonyms[named.Name]
		if !ok {
			return t
		}
		t = syn
	}
}

// Impl is one executable procedure implementation: the declaration plus its
// flattened body.
type Impl struct {
	Decl *ast.ImplDecl
	CFG  *flatten.CFG
}

// Context is the preprocessed program.
type Context struct {
	Program *ast.Program
	Types   *TypeContext

	Procs   map[string]*ast.ProcDecl
	Impls   map[string][]*Impl
	Funcs   map[string]*ast.FunctionDecl
	Consts  map[string]*ast.ConstDecl
	Globals map[string]ast.VarDecl

	// Store holds the definitions and constraints extracted from axioms and
	// function bodies, keyed by entity name. It is the baseline every run
	// starts from; runs evolve their own copies.
	Store *store.Store
}

// FunctionEntity is the store/memory key under which a function constant
// lives. Functions and variables occupy distinct namespaces in the source
// language, so the key is prefixed to keep them distinct here too.
func FunctionEntity(name string) string { return "fn!" + name }

// Run indexes the program's declarations and extracts axioms into the
// constraint store.
func Run(p *ast.Program, tctx *TypeContext) (*Context, error) {
	ctx := &Context{
		Program: p,
		Types:   tctx,
		Procs:   map[string]*ast.ProcDecl{},
		Impls:   map[string][]*Impl{},
		Funcs:   map[string]*ast.FunctionDecl{},
		Consts:  map[string]*ast.ConstDecl{},
		Globals: map[string]ast.VarDecl{},
		Store:   store.New(),
	}

	// Index declarations first so axiom extraction can see every name.
	for _, d := range p.Decls {
		switch decl := d.(type) {
		case *ast.ConstDecl:
			ctx.Consts[decl.Name] = decl
		case *ast.VarDeclTop:
			ctx.Globals[decl.Decl.Name] = decl.Decl
		case *ast.FunctionDecl:
			ctx.Funcs[decl.Name] = decl
		case *ast.ProcDecl:
			ctx.Procs[decl.Name] = decl
		case *ast.ImplDecl:
			ctx.Impls[decl.Proc] = append(ctx.Impls[decl.Proc], &Impl{
				Decl: decl,
				CFG:  flatten.Flatten(decl.Body),
			})
		}
	}

	for name := range ctx.Impls {
		if _, ok := ctx.Procs[name]; !ok {
			return nil, fmt.Errorf("preprocess: implementation of undeclared procedure %s", name)
		}
	}

	// A function with a body is a definition for its function constant; a
	// bodyless function contributes nothing beyond its signature.
	for name, fn := range ctx.Funcs {
		if fn.Body != nil {
			ctx.Store = ctx.Store.AttachDefinition(FunctionEntity(name), store.Definition{
				Formals: fn.Params,
				Body:    fn.Body,
			})
		}
	}

	ex := &extractor{ctx: ctx}
	for _, d := range p.Decls {
		if ax, ok := d.(*ast.AxiomDecl); ok {
			ex.axiom(ax.Expr)
		}
	}
	ctx.Store = ex.finished()

	return ctx, nil
}

// Entry resolves the entry procedure, reporting a descriptive error when
// the name is unknown.
func (c *Context) Entry(name string) (*ast.ProcDecl, error) {
	proc, ok := c.Procs[name]
	if !ok {
		return nil, fmt.Errorf("preprocess: no procedure named %s", name)
	}
	return proc, nil
}

// FunctionType builds the map type a function constant is materialized at.
func (c *Context) FunctionType(fn *ast.FunctionDecl) ast.MapType {
	domain := make([]ast.Type, len(fn.Params))
	for i, p := range fn.Params {
		domain[i] = p.Type
	}
	return ast.MapType{TypeVars: fn.TypeVars, Domain: domain, Range: fn.Ret}
}
