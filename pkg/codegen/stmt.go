package codegen

import (
	"n86c/pkg/asm86"
	"n86c/pkg/ast"
	"n86c/pkg/resolver"
)

// genGlobalVar emits a global's data-segment storage: a friendly label at
// its own position (spec.md §8 scenario 1's "data segment contains label
// _g") immediately followed by its initialized bytes, or a reservation for
// an uninitialized scalar/array/structure instance. Every global also
// shares the combined "_data" blob resolver.ClassifyBase addresses runtime
// accesses through, so the two labels denote the same bytes; see DESIGN.md.
func (g *Generator) genGlobalVar(id ast.NodeID) {
	name := ast.VDefName(g.tree, id)
	size := ast.VDefTotalSizeWith(g.tree, id, g.structDefs)

	g.dataProg = append(g.dataProg, asm86.Label{Name: "_" + name})

	value, hasValue := ast.VDefValueExpr(g.tree, id)
	if !hasValue || len(ast.VDefArrayDims(g.tree, id)) > 0 {
		g.dataProg = append(g.dataProg, asm86.Rb{Count: size})
		return
	}

	literal, ok := g.staticIntLiteral(value)
	if !ok {
		g.dataProg = append(g.dataProg, asm86.Rb{Count: size})
		return
	}

	if size == 1 {
		g.dataProg = append(g.dataProg, asm86.Db{Values: []int{literal}})
	} else {
		g.dataProg = append(g.dataProg, asm86.Dw{Values: []int{literal}})
	}
}

// staticIntLiteral evaluates a compile-time-constant initializer (a bare
// number, or a unary-minus number per the original's literal handling). Any
// other shape falls back to treating the global as uninitialized data: the
// language's globals are restricted to constant scalar initializers.
func (g *Generator) staticIntLiteral(id ast.NodeID) (int, bool) {
	n := g.tree.Node(id)
	if n == nil {
		return 0, false
	}
	if n.Kind() == ast.KindNumber {
		return atoiLenient(n.Payload()), true
	}
	if n.Kind() == ast.KindE && n.Payload() == "-" && len(n.Children()) == 1 {
		if v, ok := g.staticIntLiteral(n.Children()[0]); ok {
			return -v, true
		}
	}
	return 0, false
}

func atoiLenient(s string) int {
	n := 0
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		return -n
	}
	return n
}

// genFunction emits one function's prologue, body, and epilogue. Per
// spec.md §4.5: push bp/mov bp,sp establish the frame, a single sub sp,n
// reserves the body's own top-level locals (nested blocks reserve/release
// their own independently as they're entered/left), and every return path
// — explicit or the implicit fall-through — restores sp from bp directly
// rather than replaying the exact sequence of reservations, since resetting
// sp to bp is equivalent for any nesting depth currently open and spec.md
// §8 scenario 2 allows "or equivalent by the documented convention".
func (g *Generator) genFunction(id ast.NodeID) {
	name := g.tree.Node(id).Payload()
	g.emit(asm86.GlobalDecl{Name: "_" + name})
	g.emitLabel("_" + name)

	g.curFuncAborted = false
	g.loopStack = nil
	g.spFrames = nil

	g.emit(asm86.Push{Src: asm86.Reg(asm86.BP, asm86.Word)})
	g.emit(asm86.Mov{Dst: asm86.Reg(asm86.BP, asm86.Word), Src: asm86.Reg(asm86.SP, asm86.Word)})

	body, hasBody := g.tree.Role(id, "body_branch")
	if !hasBody {
		g.emitEpilogue()
		return
	}

	bodySize := g.tree.ScopeSize(body, ast.ScopeSizeOptions{})
	if bodySize > 0 {
		g.emit(asm86.Sub{Dst: asm86.Reg(asm86.SP, asm86.Word), Src: asm86.Imm(bodySize, asm86.Word)})
	}
	g.spFrames = append(g.spFrames, bodySize)

	g.genStatements(g.tree.Node(body).Children())

	if !g.bodyEndsInReturn(body) {
		g.emitEpilogue()
	}
}

// bodyEndsInReturn reports whether a BODY's last live statement is RETURN,
// to skip emitting an unreachable implicit epilogue after it.
func (g *Generator) bodyEndsInReturn(body ast.NodeID) bool {
	children := g.tree.Node(body).Children()
	for i := len(children) - 1; i >= 0; i-- {
		n := g.tree.Node(children[i])
		if n.Removed() {
			continue
		}
		return n.Kind() == ast.KindReturn
	}
	return false
}

func (g *Generator) emitEpilogue() {
	g.emit(asm86.Mov{Dst: asm86.Reg(asm86.SP, asm86.Word), Src: asm86.Reg(asm86.BP, asm86.Word)})
	g.emit(asm86.Pop{Dst: asm86.Reg(asm86.BP, asm86.Word)})
	g.emit(asm86.Ret{})
}

// genStatements walks a BODY's direct children in order, stopping early if
// the current function was aborted by a user error partway through.
func (g *Generator) genStatements(ids []ast.NodeID) {
	for _, id := range ids {
		if g.curFuncAborted {
			return
		}
		g.genStatement(id)
	}
}

func (g *Generator) genStatement(id ast.NodeID) {
	n := g.tree.Node(id)
	if n == nil || n.Removed() {
		return
	}

	switch n.Kind() {
	case ast.KindVDef:
		g.genLocalVDef(id)
	case ast.KindAssign:
		g.genAssign(id)
	case ast.KindIf:
		g.genIf(id)
	case ast.KindWhile:
		g.genWhile(id)
	case ast.KindFor:
		g.genFor(id)
	case ast.KindReturn:
		g.genReturn(id)
	case ast.KindBreak:
		g.genBreak(id)
	case ast.KindContinue:
		g.genContinue(id)
	case ast.KindAsm:
		g.genAsm(id)
	case ast.KindFuncCall:
		g.genExpr(id) // a bare call statement: evaluate for side effects, discard AX
	default:
		g.fatalf("codegen: %s cannot appear as a statement", n.Kind())
	}
}

// genLocalVDef emits a local's initializer, if any; the storage itself was
// already accounted for by the enclosing BODY/FOR's single sub sp,n.
func (g *Generator) genLocalVDef(id ast.NodeID) {
	value, ok := ast.VDefValueExpr(g.tree, id)
	if !ok {
		return
	}
	g.genExpr(value)
	g.storeVarFromAX(id)
}

// storeVarFromAX stores AX into def's own declaration-site storage,
// addressed directly via resolver.ClassifyBase (a declaration has no
// VAR_IDENTIFIER use site of its own to resolve through).
func (g *Generator) storeVarFromAX(def ast.NodeID) {
	segment, op, offset := resolver.ClassifyBase(g.tree, def, g.structDefs)
	addr := translateAddress(resolver.AbstractAddress{BaseSegment: segment, Op: op, Offset: offset})
	size := ast.VDefElementSize(g.tree, def, g.structDefs)
	if size == 1 {
		g.emit(asm86.Mov{Dst: narrow(addr, asm86.Byte), Src: asm86.Reg(asm86.AX, asm86.Byte)})
		return
	}
	g.emit(asm86.Mov{Dst: addr, Src: asm86.Reg(asm86.AX, asm86.Word)})
}

// genAssign evaluates the value side into AX, then resolves and stores to
// the target side. Per spec.md §8 scenario 5, a structure member reached
// through a pointer resolves its base hop into bx before the store.
func (g *Generator) genAssign(id ast.NodeID) {
	target, okT := g.tree.Role(id, "variable_to_assign_branch")
	value, okV := g.tree.Role(id, "value_branch")
	if !okT || !okV {
		g.fatalf("codegen: ASSIGN node missing a branch")
		return
	}

	g.genExpr(value)

	// Building the target address can itself use AX (a dynamic index is
	// evaluated there), so the value waits on the stack meanwhile.
	g.emit(asm86.Push{Src: asm86.Reg(asm86.AX, asm86.Word)})
	operand, plan, ok := g.genAddress(target, false)
	g.emit(asm86.Pop{Dst: asm86.Reg(asm86.AX, asm86.Word)})
	if !ok {
		return
	}
	if plan.ElemSize == 1 {
		g.emit(asm86.Mov{Dst: narrow(operand, asm86.Byte), Src: asm86.Reg(asm86.AX, asm86.Byte)})
		return
	}
	g.emit(asm86.Mov{Dst: operand, Src: asm86.Reg(asm86.AX, asm86.Word)})
}

func (g *Generator) genReturn(id ast.NodeID) {
	if value, ok := g.tree.Role(id, "value_branch"); ok {
		g.genExpr(value)
	}
	g.emitEpilogue()
}

// genIf emits the condition as a branch directly to the else/end label
// (spec.md §8 scenario 3's "comparisons use signed jumps" requirement: the
// jcc selection lives in genBoolExpr/genComparisonJump, genIf only wires up
// the labels).
func (g *Generator) genIf(id ast.NodeID) {
	cond, _ := g.tree.Role(id, "exp_branch")
	body, _ := g.tree.Role(id, "body_branch")
	elseBranch, hasElse := g.tree.Role(id, "else_branch")

	elseLbl := g.newLabel("else")
	endLbl := g.newLabel("if_end")

	target := endLbl
	if hasElse {
		target = elseLbl
	}

	g.genBoolExpr(cond, "", target)
	g.genScopedBody(body)
	if hasElse {
		g.emit(asm86.Jmp{Target: endLbl})
		g.emitLabel(elseLbl)
		g.genElseBranch(elseBranch)
	}
	g.emitLabel(endLbl)
}

// genElseBranch runs an IF's else_branch, which is either a nested IF
// (an "else if" chain) or a plain BODY (a bare "else" block) — the two
// shapes the parser produces, per the validator's equally generic
// recursion into this role.
func (g *Generator) genElseBranch(id ast.NodeID) {
	if g.tree.Node(id).Kind() == ast.KindIf {
		g.genIf(id)
		return
	}
	g.genScopedBody(id)
}

// genScopedBody reserves and releases a BODY's own locals around its
// statements, independent of any enclosing loop/if's own reservation.
func (g *Generator) genScopedBody(body ast.NodeID) {
	size := g.tree.ScopeSize(body, ast.ScopeSizeOptions{})
	if size > 0 {
		g.emit(asm86.Sub{Dst: asm86.Reg(asm86.SP, asm86.Word), Src: asm86.Imm(size, asm86.Word)})
	}
	g.spFrames = append(g.spFrames, size)

	g.genStatements(g.tree.Node(body).Children())

	g.spFrames = g.spFrames[:len(g.spFrames)-1]
	if size > 0 {
		g.emit(asm86.Add{Dst: asm86.Reg(asm86.SP, asm86.Word), Src: asm86.Imm(size, asm86.Word)})
	}
}

func (g *Generator) genWhile(id ast.NodeID) {
	cond, _ := g.tree.Role(id, "exp_branch")
	body, _ := g.tree.Role(id, "body_branch")

	condLbl := g.newLabel("while_cond")
	endLbl := g.newLabel("while_end")

	bodySize := g.tree.ScopeSize(body, ast.ScopeSizeOptions{})

	breakBase := len(g.spFrames)
	if bodySize > 0 {
		g.emit(asm86.Sub{Dst: asm86.Reg(asm86.SP, asm86.Word), Src: asm86.Imm(bodySize, asm86.Word)})
	}
	g.spFrames = append(g.spFrames, bodySize)
	continueBase := len(g.spFrames)

	g.loopStack = append(g.loopStack, loopFrame{
		breakLabel: endLbl, continueLabel: condLbl,
		breakFrameBase: breakBase, continueFrameBase: continueBase,
	})

	g.emitLabel(condLbl)
	g.genBoolExpr(cond, "", endLbl)
	g.genStatements(g.tree.Node(body).Children())
	g.emit(asm86.Jmp{Target: condLbl})
	g.emitLabel(endLbl)

	g.loopStack = g.loopStack[:len(g.loopStack)-1]
	g.spFrames = g.spFrames[:len(g.spFrames)-1]
	if bodySize > 0 {
		g.emit(asm86.Add{Dst: asm86.Reg(asm86.SP, asm86.Word), Src: asm86.Imm(bodySize, asm86.Word)})
	}
}

// genFor reserves the FOR's own scope (its init_branch locals plus the
// nested body_branch's own locals, per spec.md §4.5) once before the loop
// starts, runs init, tests the condition, runs the body, then the update
// expression — continue's target is the update part, not the test, per
// spec.md §4.5's "continue label (to the loop-step part)".
func (g *Generator) genFor(id ast.NodeID) {
	init, hasInit := g.tree.Role(id, "init_branch")
	cond, hasCond := g.tree.Role(id, "exp_branch")
	update, hasUpdate := g.tree.Role(id, "update_branch")
	body, _ := g.tree.Role(id, "body_branch")

	condLbl := g.newLabel("for_cond")
	updateLbl := g.newLabel("for_update")
	endLbl := g.newLabel("for_end")

	// ScopeSize(id) alone only sees init_branch's own V_DEFs (direct
	// children of the FOR node); body_branch is a separate BODY scope
	// nested inside it, so its size is added in explicitly to reserve
	// "init plus body" in one reservation per spec.md §4.5.
	scopeSize := g.tree.ScopeSize(id, ast.ScopeSizeOptions{}) + g.tree.ScopeSize(body, ast.ScopeSizeOptions{})

	breakBase := len(g.spFrames)
	if scopeSize > 0 {
		g.emit(asm86.Sub{Dst: asm86.Reg(asm86.SP, asm86.Word), Src: asm86.Imm(scopeSize, asm86.Word)})
	}
	g.spFrames = append(g.spFrames, scopeSize)
	continueBase := len(g.spFrames)

	if hasInit {
		g.genStatement(init)
	}

	g.loopStack = append(g.loopStack, loopFrame{
		breakLabel: endLbl, continueLabel: updateLbl,
		breakFrameBase: breakBase, continueFrameBase: continueBase,
	})

	g.emitLabel(condLbl)
	if hasCond {
		g.genBoolExpr(cond, "", endLbl)
	}
	g.genStatements(g.tree.Node(body).Children())
	g.emitLabel(updateLbl)
	if hasUpdate {
		g.genExpr(update)
	}
	g.emit(asm86.Jmp{Target: condLbl})
	g.emitLabel(endLbl)

	g.loopStack = g.loopStack[:len(g.loopStack)-1]
	g.spFrames = g.spFrames[:len(g.spFrames)-1]
	if scopeSize > 0 {
		g.emit(asm86.Add{Dst: asm86.Reg(asm86.SP, asm86.Word), Src: asm86.Imm(scopeSize, asm86.Word)})
	}
}

func (g *Generator) genBreak(id ast.NodeID) {
	if len(g.loopStack) == 0 {
		g.userErrf("break used outside of a loop")
		return
	}
	frame := g.loopStack[len(g.loopStack)-1]
	g.restoreFrames(frame.breakFrameBase)
	g.emit(asm86.Jmp{Target: frame.breakLabel})
}

func (g *Generator) genContinue(id ast.NodeID) {
	if len(g.loopStack) == 0 {
		g.userErrf("continue used outside of a loop")
		return
	}
	frame := g.loopStack[len(g.loopStack)-1]
	g.restoreFrames(frame.continueFrameBase)
	g.emit(asm86.Jmp{Target: frame.continueLabel})
}

// restoreFrames emits one add sp,n summing every scope reservation opened
// since base (spec.md §8 scenario 6: "SP incremented by exactly the inner
// scope size"), without popping spFrames itself — the statement sequence
// continues normally after a break/continue only in unreachable code, and
// the structural pop happens when the block that opened each frame
// actually exits.
func (g *Generator) restoreFrames(base int) {
	total := 0
	for i := base; i < len(g.spFrames); i++ {
		total += g.spFrames[i]
	}
	if total > 0 {
		g.emit(asm86.Add{Dst: asm86.Reg(asm86.SP, asm86.Word), Src: asm86.Imm(total, asm86.Word)})
	}
}

// genAsm emits one inline-assembly statement verbatim through the same
// textual parser the assembler uses for a standalone .asm source line,
// per spec.md §4.5's escape hatch for hand-written instructions. A line
// that fails to parse is a user error, not an internal one: inline
// assembly is unchecked source text.
func (g *Generator) genAsm(id ast.NodeID) {
	line := g.tree.Node(id).Payload()
	inst, err := asm86.ParseLine(line)
	if err != nil {
		g.userErrf("invalid inline assembly %q: %v", line, err)
		return
	}
	if inst != nil {
		g.emit(inst)
	}
}
