package preprocess

import (
	"fmt"

	"github.com/taktoa/language-boogie/internal/ast"
	"github.com/taktoa/language-boogie/internal/store"
)

// extractor translates axioms into guarded definitions and constraints.
//
// An axiom's boolean structure is walked down to its conjuncts: a
// conjunction contributes both sides under the same guards; a disjunction
// contributes each side under the negation of the other; a universal
// quantifier extends the bound-variable context. An equation whose left
// side names an entity applied to sufficiently simple arguments becomes a
// definition of that entity; every other boolean leaf becomes a constraint
// on the entities it mentions.
type extractor struct {
	ctx      *Context
	freshArg int
}

func (x *extractor) finished() *store.Store { return x.ctx.Store }

func (x *extractor) axiom(e ast.Expr) {
	x.walk(e, nil, nil)
}

func (x *extractor) walk(e ast.Expr, guards []ast.Expr, bound []ast.VarDecl) {
	switch node := e.(type) {
	case *ast.Binary:
		switch node.Op {
		case ast.And:
			x.walk(node.X, guards, bound)
			x.walk(node.Y, guards, bound)
			return
		case ast.Or:
			x.walk(node.Y, append(guardsCopy(guards), negate(node.X)), bound)
			x.walk(node.X, append(guardsCopy(guards), negate(node.Y)), bound)
			return
		case ast.Implies:
			// a ==> b reads as !a || b: b holds under guard a, and !a under
			// guard !b.
			x.walk(node.Y, append(guardsCopy(guards), node.X), bound)
			x.walk(negate(node.X), append(guardsCopy(guards), negate(node.Y)), bound)
			return
		case ast.Explies:
			x.walk(node.X, append(guardsCopy(guards), node.Y), bound)
			x.walk(negate(node.Y), append(guardsCopy(guards), negate(node.X)), bound)
			return
		case ast.Eq:
			if x.tryDefinition(node, guards, bound) {
				return
			}
		}

	case *ast.QuantifiedExpr:
		if node.Kind == ast.Forall {
			x.walk(node.Body, guards, append(append([]ast.VarDecl{}, bound...), node.Vars...))
		}
		// Existential axioms carry no per-entity obligation the lazy
		// evaluator could discharge; they are dropped.
		return
	}

	x.constraint(e, guards, bound)
}

// tryDefinition recognizes `lhs == rhs` whose lhs names an entity with
// simple arguments — each argument is either a bound variable or free of
// bound variables — and whose rhs introduces no bound variables beyond the
// lhs's. Such an equation defines the entity.
func (x *extractor) tryDefinition(eq *ast.Binary, guards []ast.Expr, bound []ast.VarDecl) bool {
	boundSet := nameSet(bound)

	var entity string
	var args []ast.Expr
	var argTypes []ast.Type

	switch lhs := eq.X.(type) {
	case ast.Var:
		if _, isBound := boundSet[lhs.Name]; isBound {
			return false
		}
		if len(boundVarsIn(eq.Y, boundSet)) > 0 {
			return false
		}
		x.ctx.Store = x.ctx.Store.AttachDefinition(lhs.Name, store.Definition{
			Guard: conj(guards),
			Body:  eq.Y,
		})
		return true

	case *ast.Application:
		fn, ok := x.ctx.Funcs[lhs.Func]
		if !ok {
			return false
		}
		entity = FunctionEntity(lhs.Func)
		args = lhs.Args
		argTypes = make([]ast.Type, len(fn.Params))
		for i, p := range fn.Params {
			argTypes[i] = p.Type
		}

	case *ast.MapSelect:
		mv, ok := lhs.Map.(ast.Var)
		if !ok {
			return false
		}
		mt, ok := x.nameMapType(mv.Name)
		if !ok || len(mt.Domain) != len(lhs.Args) {
			return false
		}
		entity = mv.Name
		args = lhs.Args
		argTypes = mt.Domain

	default:
		return false
	}

	formals, extraGuards, ok := x.formalize(args, argTypes, boundSet)
	if !ok {
		return false
	}
	if !subset(boundVarsIn(eq.Y, boundSet), nameSetDecls(formals)) {
		return false
	}
	guard := conj(append(guardsCopy(guards), extraGuards...))
	if !subset(boundVarsInOpt(guard, boundSet), nameSetDecls(formals)) {
		return false
	}

	x.ctx.Store = x.ctx.Store.AttachDefinition(entity, store.Definition{
		Formals: formals,
		Guard:   guard,
		Body:    eq.Y,
	})
	return true
}

// formalize builds one formal per argument position: a bound variable is
// its own formal; a bound-variable-free argument gets a fresh formal pinned
// to the argument by an equality guard. Any other shape is not simple.
func (x *extractor) formalize(args []ast.Expr, argTypes []ast.Type, boundSet map[string]ast.VarDecl) ([]ast.VarDecl, []ast.Expr, bool) {
	formals := make([]ast.VarDecl, len(args))
	var extraGuards []ast.Expr
	seen := map[string]bool{}

	for i, arg := range args {
		if v, ok := arg.(ast.Var); ok {
			if decl, isBound := boundSet[v.Name]; isBound && !seen[v.Name] {
				seen[v.Name] = true
				formals[i] = decl
				continue
			}
		}
		if len(boundVarsIn(arg, boundSet)) > 0 {
			return nil, nil, false
		}
		x.freshArg++
		name := fmt.Sprintf("arg#%d", x.freshArg)
		formals[i] = ast.VarDecl{Name: name, Type: argTypes[i]}
		extraGuards = append(extraGuards, &ast.Binary{Op: ast.Eq, X: ast.Var{Name: name}, Y: arg})
	}
	return formals, extraGuards, true
}

// constraint records e as a guarded constraint. Without bound variables it
// attaches to every top-level entity e mentions; with bound variables it
// attaches — deferred, with the bound variables as formals — to every map
// selection and function application whose indices cover them.
func (x *extractor) constraint(e ast.Expr, guards []ast.Expr, bound []ast.VarDecl) {
	boundSet := nameSet(bound)
	guard := conj(guards)

	if len(boundVarsIn(e, boundSet)) == 0 && len(boundVarsInOpt(guard, boundSet)) == 0 {
		for name := range x.topLevelEntities(e) {
			x.ctx.Store = x.ctx.Store.AttachConstraint(name, store.Constraint{Guard: guard, Body: e})
		}
		return
	}

	needed := union(boundVarsIn(e, boundSet), boundVarsInOpt(guard, boundSet))
	x.eachIndexedEntity(e, boundSet, func(entity string, args []ast.Expr, argTypes []ast.Type) {
		formals, extraGuards, ok := x.formalize(args, argTypes, boundSet)
		if !ok {
			return
		}
		if !subset(needed, nameSetDecls(formals)) {
			return
		}
		x.ctx.Store = x.ctx.Store.AttachConstraint(entity, store.Constraint{
			Formals: formals,
			Guard:   conj(append(guardsCopy(guards), extraGuards...)),
			Body:    e,
		})
	})
}

// eachIndexedEntity visits every map selection over a named map and every
// function application in e.
func (x *extractor) eachIndexedEntity(e ast.Expr, boundSet map[string]ast.VarDecl, fn func(entity string, args []ast.Expr, argTypes []ast.Type)) {
	walkExpr(e, func(sub ast.Expr) {
		switch node := sub.(type) {
		case *ast.MapSelect:
			if mv, ok := node.Map.(ast.Var); ok {
				if mt, ok := x.nameMapType(mv.Name); ok && len(mt.Domain) == len(node.Args) {
					fn(mv.Name, node.Args, mt.Domain)
				}
			}
		case *ast.Application:
			if decl, ok := x.ctx.Funcs[node.Func]; ok && len(decl.Params) == len(node.Args) {
				argTypes := make([]ast.Type, len(decl.Params))
				for i, p := range decl.Params {
					argTypes[i] = p.Type
				}
				fn(FunctionEntity(node.Func), node.Args, argTypes)
			}
		}
	})
}

// topLevelEntities collects the global-scope names e mentions: globals,
// constants, and function constants.
func (x *extractor) topLevelEntities(e ast.Expr) map[string]bool {
	out := map[string]bool{}
	walkExpr(e, func(sub ast.Expr) {
		switch node := sub.(type) {
		case ast.Var:
			if _, ok := x.ctx.Globals[node.Name]; ok {
				out[node.Name] = true
			} else if _, ok := x.ctx.Consts[node.Name]; ok {
				out[node.Name] = true
			}
		case *ast.Application:
			if _, ok := x.ctx.Funcs[node.Func]; ok {
				out[FunctionEntity(node.Func)] = true
			}
		}
	})
	return out
}

// nameMapType reports the map type of a named global or constant, with
// synonyms resolved.
func (x *extractor) nameMapType(name string) (ast.MapType, bool) {
	var t ast.Type
	if g, ok := x.ctx.Globals[name]; ok {
		t = g.Type
	} else if c, ok := x.ctx.Consts[name]; ok {
		t = c.Type
	} else {
		return ast.MapType{}, false
	}
	mt, ok := x.ctx.Types.Resolve(t).(ast.MapType)
	return mt, ok
}

// Expression-walking helpers.

func walkExpr(e ast.Expr, visit func(ast.Expr)) {
	if e == nil {
		return
	}
	visit(e)
	switch node := e.(type) {
	case *ast.Application:
		for _, a := range node.Args {
			walkExpr(a, visit)
		}
	case *ast.MapSelect:
		walkExpr(node.Map, visit)
		for _, a := range node.Args {
			walkExpr(a, visit)
		}
	case *ast.MapUpdate:
		walkExpr(node.Map, visit)
		for _, a := range node.Args {
			walkExpr(a, visit)
		}
		walkExpr(node.Value, visit)
	case *ast.Old:
		walkExpr(node.Inner, visit)
	case *ast.IfExpr:
		walkExpr(node.Cond, visit)
		walkExpr(node.Then, visit)
		walkExpr(node.Else, visit)
	case *ast.Coercion:
		walkExpr(node.Inner, visit)
	case *ast.Unary:
		walkExpr(node.X, visit)
	case *ast.Binary:
		walkExpr(node.X, visit)
		walkExpr(node.Y, visit)
	case *ast.QuantifiedExpr:
		walkExpr(node.Body, visit)
	}
}

// boundVarsIn returns the bound variables referenced by e, excluding any
// rebound by a nested quantifier.
func boundVarsIn(e ast.Expr, bound map[string]ast.VarDecl) map[string]bool {
	out := map[string]bool{}
	collectBound(e, bound, out)
	return out
}

func boundVarsInOpt(e ast.Expr, bound map[string]ast.VarDecl) map[string]bool {
	if e == nil {
		return map[string]bool{}
	}
	return boundVarsIn(e, bound)
}

func collectBound(e ast.Expr, bound map[string]ast.VarDecl, out map[string]bool) {
	if q, ok := e.(*ast.QuantifiedExpr); ok {
		inner := make(map[string]ast.VarDecl, len(bound))
		for k, v := range bound {
			inner[k] = v
		}
		for _, v := range q.Vars {
			delete(inner, v.Name)
		}
		collectBound(q.Body, inner, out)
		return
	}
	if v, ok := e.(ast.Var); ok {
		if _, isBound := bound[v.Name]; isBound {
			out[v.Name] = true
		}
		return
	}
	walkChildren(e, func(sub ast.Expr) { collectBound(sub, bound, out) })
}

// walkChildren visits only the direct children of e.
func walkChildren(e ast.Expr, visit func(ast.Expr)) {
	switch node := e.(type) {
	case *ast.Application:
		for _, a := range node.Args {
			visit(a)
		}
	case *ast.MapSelect:
		visit(node.Map)
		for _, a := range node.Args {
			visit(a)
		}
	case *ast.MapUpdate:
		visit(node.Map)
		for _, a := range node.Args {
			visit(a)
		}
		visit(node.Value)
	case *ast.Old:
		visit(node.Inner)
	case *ast.IfExpr:
		visit(node.Cond)
		visit(node.Then)
		visit(node.Else)
	case *ast.Coercion:
		visit(node.Inner)
	case *ast.Unary:
		visit(node.X)
	case *ast.Binary:
		visit(node.X)
		visit(node.Y)
	}
}

func negate(e ast.Expr) ast.Expr {
	return &ast.Unary{Op: ast.Not, X: e}
}

func conj(guards []ast.Expr) ast.Expr {
	var out ast.Expr
	for _, g := range guards {
		if out == nil {
			out = g
		} else {
			out = &ast.Binary{Op: ast.And, X: out, Y: g}
		}
	}
	return out
}

func guardsCopy(guards []ast.Expr) []ast.Expr {
	return append([]ast.Expr{}, guards...)
}

func nameSet(decls []ast.VarDecl) map[string]ast.VarDecl {
	out := make(map[string]ast.VarDecl, len(decls))
	for _, d := range decls {
		out[d.Name] = d
	}
	return out
}

func nameSetDecls(decls []ast.VarDecl) map[string]bool {
	out := make(map[string]bool, len(decls))
	for _, d := range decls {
		out[d.Name] = true
	}
	return out
}

func subset(a map[string]bool, b map[string]bool) bool {
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func union(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}
