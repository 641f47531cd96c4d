// Package flatten lowers a procedure implementation's structured statement
// tree (if/while/break/nested blocks) into labeled basic blocks: every
// block has a name, ends in exactly one unconditional goto or return, and
// control only ever crosses a block boundary via that terminator.
package flatten

import (
	"fmt"

	"github.com/taktoa/language-boogie/internal/ast"
)

// Terminator is the single control-transfer instruction every block ends
// with.
type Terminator interface {
	isTerminator()
	String() string
}

// Goto transfers to one of several successor labels; a non-deterministic
// choice among them is resolved by internal/exec's block dispatch.
type Goto struct{ Labels []string }

func (Goto) isTerminator() {}
func (g Goto) String() string {
	s := "goto "
	for i, l := range g.Labels {
		if i > 0 {
			s += ", "
		}
		s += l
	}
	return s
}

// Return ends the procedure.
type Return struct{}

func (Return) isTerminator() {}
func (Return) String() string { return "return" }

// BasicBlock is one node of the flattened control-flow graph.
type BasicBlock struct {
	Label      string
	Stmts      []ast.Stmt // Assert/Assume/Havoc/Assign/Call only — no If/While/Goto/Return/Labeled/Break
	Terminator Terminator
}

// CFG is a flattened procedure body: a label-indexed set of blocks plus
// the designated entry label.
type CFG struct {
	Blocks map[string]*BasicBlock
	Order  []string // insertion order, for deterministic iteration/printing
	Start  string
}

func newCFG() *CFG {
	return &CFG{Blocks: map[string]*BasicBlock{}, Start: "start"}
}

func (c *CFG) addBlock(b *BasicBlock) {
	c.Blocks[b.Label] = b
	c.Order = append(c.Order, b.Label)
}

// builder accumulates blocks while walking a Block; it always has a
// "current" block being appended to, flushed (given a terminator) whenever
// control must leave it.
type builder struct {
	cfg        *CFG
	labelCount int
	cur        *BasicBlock

	// breakTargets maps a break label (possibly "") to the label of the
	// block execution resumes at on `break`. An unlabeled break targets the
	// innermost loop: each loop pushes its exit label under "", shadowing
	// any outer loop's "" entry. A labeled statement `L: s` pushes the fresh
	// label that follows s under L.
	breakTargets []breakTarget
}

type breakTarget struct {
	label string // "" also matches unlabeled break to the innermost loop
	exit  string
}

func (b *builder) freshLabel(prefix string) string {
	b.labelCount++
	return fmt.Sprintf("%s$%d", prefix, b.labelCount)
}

// flush terminates the current block with t and starts a fresh one under a
// newly minted label, returning the label of the block that was just closed.
func (b *builder) flush(t Terminator) string {
	closed := b.cur
	closed.Terminator = t
	b.cfg.addBlock(closed)
	next := &BasicBlock{Label: b.freshLabel("L")}
	b.cur = next
	return closed.Label
}

// startBlock finishes the current block with a goto to label, then opens a
// fresh block under that exact label (used when the next block's identity
// matters, e.g. a loop header or an `if`'s join point).
func (b *builder) startBlock(label string) {
	b.cur.Terminator = Goto{Labels: []string{label}}
	b.cfg.addBlock(b.cur)
	b.cur = &BasicBlock{Label: label}
}

// Flatten lowers a procedure implementation's body into a CFG rooted at
// the "start" label.
func Flatten(body ast.Block) *CFG {
	cfg := newCFG()
	b := &builder{cfg: cfg, cur: &BasicBlock{Label: cfg.Start}}
	b.stmts(body)
	b.cur.Terminator = Return{}
	cfg.addBlock(b.cur)
	return cfg
}

// stmts lowers a sequence of structured statements into the builder's
// current block, splitting into new blocks wherever control structure
// demands it.
func (b *builder) stmts(block ast.Block) {
	for _, s := range block {
		b.stmt(s)
	}
}

func (b *builder) stmt(s ast.Stmt) {
	switch st := s.(type) {
	case *ast.Assert, *ast.Assume, *ast.Havoc, *ast.Assign, *ast.Call:
		b.cur.Stmts = append(b.cur.Stmts, s)

	case *ast.Labeled:
		// A label attaches to the statement that follows it: close the
		// current block with a fallthrough goto to the new label, then
		// lower the inner statement under that label, with `break L`
		// bound to a fresh done label that follows it.
		b.startBlock(st.Label)
		done := b.freshLabel("done")
		b.breakTargets = append(b.breakTargets, breakTarget{label: st.Label, exit: done})
		b.stmt(st.Stmt)
		b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
		b.startBlock(done)

	case *ast.Goto:
		b.flush(Goto{Labels: append([]string{}, st.Labels...)})

	case *ast.Return:
		b.flush(Return{})

	case *ast.Break:
		target := b.resolveBreak(st.Label)
		b.flush(Goto{Labels: []string{target}})

	case *ast.If:
		b.ifStmt(st)

	case *ast.While:
		b.whileStmt(st)

	default:
		panic(fmt.Sprintf("flatten: unhandled statement %T", s))
	}
}

// resolveBreak finds the exit label for an (optionally labeled) break,
// searching innermost-first.
func (b *builder) resolveBreak(label string) string {
	for i := len(b.breakTargets) - 1; i >= 0; i-- {
		bt := b.breakTargets[i]
		if bt.label == label {
			return bt.exit
		}
	}
	panic(fmt.Sprintf("flatten: break %q has no enclosing loop", label))
}

// ifStmt lowers:
//
//	if (cond) { then } else { else }
//
// into a three-way split: the current block ends with a non-deterministic
// goto to a then-label and an else-label, each opening with an
// `assume cond` / `assume !cond` guard, and both rejoin at a fresh join
// label.
func (b *builder) ifStmt(st *ast.If) {
	thenLabel := b.freshLabel("then")
	elseLabel := b.freshLabel("else")
	joinLabel := b.freshLabel("join")

	b.cur.Terminator = Goto{Labels: []string{thenLabel, elseLabel}}
	b.cfg.addBlock(b.cur)

	b.cur = &BasicBlock{Label: thenLabel, Stmts: guardStmts(st.Cond, false)}
	b.stmts(st.Then)
	b.cur.Terminator = Goto{Labels: []string{joinLabel}}
	b.cfg.addBlock(b.cur)

	b.cur = &BasicBlock{Label: elseLabel, Stmts: guardStmts(st.Cond, true)}
	b.stmts(st.Else)
	b.cur.Terminator = Goto{Labels: []string{joinLabel}}
	b.cfg.addBlock(b.cur)

	b.cur = &BasicBlock{Label: joinLabel}
}

// whileStmt lowers:
//
//	while (cond) invariant ... { body }
//
// into a loop header that non-deterministically goes to a body-entry block
// (guarded by `assume cond`) or the loop exit (guarded by `assume !cond`),
// with the body looping back to the header. Loop invariants become
// free/checked asserts at the header and at the end of the body.
func (b *builder) whileStmt(st *ast.While) {
	headerLabel := b.freshLabel("loop")
	bodyLabel := b.freshLabel("body")
	exitLabel := b.freshLabel("endloop")

	b.startBlock(headerLabel)
	for _, inv := range st.Invariants {
		b.cur.Stmts = append(b.cur.Stmts, &ast.Assert{Cond: inv.Cond, Free: inv.Free, Clause: ast.ClauseLoopInvariant})
	}
	b.cur.Terminator = Goto{Labels: []string{bodyLabel, exitLabel}}
	b.cfg.addBlock(b.cur)

	b.breakTargets = append(b.breakTargets, breakTarget{label: "", exit: exitLabel})

	b.cur = &BasicBlock{Label: bodyLabel, Stmts: guardStmts(st.Cond, false)}
	b.stmts(st.Body)
	for _, inv := range st.Invariants {
		b.cur.Stmts = append(b.cur.Stmts, &ast.Assert{Cond: inv.Cond, Free: inv.Free, Clause: ast.ClauseLoopInvariant})
	}
	b.cur.Terminator = Goto{Labels: []string{headerLabel}}
	b.cfg.addBlock(b.cur)

	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]

	b.cur = &BasicBlock{Label: exitLabel, Stmts: guardStmts(st.Cond, true)}
}

// guardStmts produces the assume a branch opens with: `assume cond` (or
// its negation) for a real boolean guard, or nothing at all for a Wildcard
// guard, which takes both successors unconditionally.
func guardStmts(cond ast.Expr, negated bool) []ast.Stmt {
	if _, ok := cond.(ast.Wildcard); ok {
		return nil
	}
	if negated {
		cond = &ast.Unary{Op: ast.Not, X: cond}
	}
	return []ast.Stmt{&ast.Assume{Cond: cond, Free: false}}
}
