// Package codegen implements the 8086 code generator of spec.md §4.5: it
// walks an improved, validated tree and emits the typed asm86.Instruction
// program the assembler (pkg/asm86) turns into bytes.
//
// Grounded on original_source/codegens/8086CodeGen/src/CodeGen8086.cpp's
// overall shape (one emitter object carrying the running data/code segments,
// a label counter, and break/continue label stacks) generalized to the
// explicit rule set spec.md §4.5 states, the same relationship pkg/resolver
// already has to the original's getASMAddressForVariable.
package codegen

import (
	"strconv"

	"n86c/pkg/asm86"
	"n86c/pkg/ast"
	"n86c/pkg/diag"
	"n86c/pkg/improver"
	"n86c/pkg/resolver"
)

// Generator walks one compilation unit's tree and accumulates asm86
// programs for the code and data segments.
type Generator struct {
	tree       *ast.Tree
	res        *resolver.Resolver
	structDefs map[string]ast.NodeID
	diags      diag.Diagnostics

	dataProg asm86.Program
	codeProg asm86.Program

	labelSeq int

	loopStack []loopFrame
	spFrames  []int // sizes of scope reservations currently open (sub sp, n not yet matched by add sp, n)

	// curFuncAborted marks that a UserError was already reported against the
	// function currently being generated; further statements in it are
	// skipped rather than compounding on top of an already-invalid address
	// or program shape, per spec.md §7's "abort the current function" policy.
	curFuncAborted bool
}

// loopFrame records the labels and scope-restore bookkeeping for one active
// WHILE/FOR loop, so a nested BREAK/CONTINUE can find its target.
type loopFrame struct {
	breakLabel    string
	continueLabel string

	// breakFrameBase is the spFrames stack depth *before* this loop's own
	// body/init reservations were pushed: a break restores everything
	// pushed since, since it exits past the loop node entirely.
	breakFrameBase int
	// continueFrameBase is the spFrames depth *after* this loop's own
	// reservations were pushed: a continue only restores scopes nested
	// *inside* the loop body (the loop's own frame persists across
	// iterations in this generator's one-reservation-per-loop model, see
	// genWhile/genFor).
	continueFrameBase int
}

// New returns a Generator for tree, consuming the improver's resolved
// VAR_IDENTIFIER definitions.
func New(tree *ast.Tree, imp *improver.Improver) *Generator {
	return &Generator{
		tree:       tree,
		res:        resolver.New(tree, imp.Defs),
		structDefs: ast.BuildStructIndex(tree),
	}
}

// Result is the generator's output: one program per segment plus any
// diagnostics accumulated along the way.
type Result struct {
	Code  asm86.Program
	Data  asm86.Program
	Diags diag.Diagnostics
}

// Generate walks the whole tree's root-level declarations and returns the
// accumulated code/data programs. Per spec.md §7's propagation policy,
// codegen aborts the *current* function on the first UserError reachable
// within it and continues with the next top-level declaration; an
// InternalInvariantViolation aborts the whole generation immediately.
func (g *Generator) Generate() Result {
	for _, id := range g.tree.Node(g.tree.Root()).Children() {
		if g.diags.HasFatal() {
			break
		}
		g.genTopLevel(id)
	}
	return Result{Code: g.codeProg, Data: g.dataProg, Diags: g.diags}
}

func (g *Generator) genTopLevel(id ast.NodeID) {
	n := g.tree.Node(id)
	if n == nil || n.Removed() {
		return
	}
	switch n.Kind() {
	case ast.KindVDef:
		g.genGlobalVar(id)
	case ast.KindFunc, ast.KindFuncDef:
		g.genFunction(id)
	case ast.KindStructDef:
		// A structure declaration contributes no code or data of its own;
		// its members only occupy space inside the instances that use it.
	case ast.KindMacroIfdef, ast.KindMacroDef:
		g.diags.Fatalf(diag.Position{}, "codegen: unresolved %s reached codegen (preprocessor should have rewritten it)", n.Kind())
	default:
		g.diags.Fatalf(diag.Position{}, "codegen: unexpected top-level node kind %s", n.Kind())
	}
}

// emit appends one instruction to the function currently being generated.
func (g *Generator) emit(ins asm86.Instruction) {
	g.codeProg = append(g.codeProg, ins)
}

func (g *Generator) emitLabel(name string) { g.emit(asm86.Label{Name: name}) }

// newLabel returns a fresh, compilation-unique label with the given hint
// folded into its name for readability in a disassembly.
func (g *Generator) newLabel(hint string) string {
	g.labelSeq++
	return "_L" + hint + strconv.Itoa(g.labelSeq)
}
