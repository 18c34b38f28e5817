package codegen

import (
	"strconv"

	"n86c/pkg/asm86"
	"n86c/pkg/ast"
)

var comparisonOps = map[string]bool{">": true, "<": true, ">=": true, "<=": true, "==": true, "!=": true}

// jccTable maps a pass-condition ("the comparison held") to its signed and
// unsigned jump mnemonics, and to the complement condition used to derive a
// fail-jump when only a false label is available. Grounded on
// CodeGen8086.cpp's jump selection around its relational-operator handling,
// which keys the same choice on operator plus signedness.
var jccTable = map[string]struct{ signed, unsigned, complement string }{
	"==": {"e", "e", "!="},
	"!=": {"ne", "ne", "=="},
	">":  {"g", "a", "<="},
	"<":  {"l", "b", ">="},
	">=": {"ge", "ae", "<"},
	"<=": {"le", "be", ">"},
}

// genExpr evaluates id and leaves its value in AX, widening a byte-sized
// load as needed so arithmetic always operates on a full word.
func (g *Generator) genExpr(id ast.NodeID) {
	n := g.tree.Node(id)
	if n == nil {
		return
	}

	switch n.Kind() {
	case ast.KindNumber:
		v, _ := strconv.Atoi(n.Payload())
		g.emit(asm86.Mov{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Imm(v, asm86.Word)})

	case ast.KindVarIdent:
		g.genLoadVar(id, false)

	case ast.KindFuncCall:
		g.genFuncCall(id)

	case ast.KindAddressOf:
		g.genAddressOf(id)

	case ast.KindPtr:
		g.genLoadPtr(id)

	case ast.KindLogicalNot:
		g.materializeBool(id)

	case ast.KindAssign:
		g.genAssign(id)

	case ast.KindE:
		g.genE(id)

	default:
		g.fatalf("codegen: %s cannot be used as an expression", n.Kind())
	}
}

// genE dispatches an E node either to the boolean-materializing path (when
// its own operator is a comparison or logical connective) or to arithmetic.
func (g *Generator) genE(id ast.NodeID) {
	op := g.tree.Node(id).Payload()
	if comparisonOps[op] || op == "&&" || op == "||" {
		g.materializeBool(id)
		return
	}
	g.genArith(id)
}

// genArith evaluates a unary or binary arithmetic E node into AX, using the
// right-child-first stack-protection pattern: the right operand (evaluated
// first, while AX is still free of the left operand's value) is pushed,
// then the left operand is evaluated into AX, then the right operand is
// popped into CX. This protects either operand from being clobbered by
// nested calls/sub-expressions on the *other* side, a generalization of the
// original's narrower per-leaf-kind protection rules (see DESIGN.md).
func (g *Generator) genArith(id ast.NodeID) {
	children := g.tree.Node(id).Children()
	op := g.tree.Node(id).Payload()

	if len(children) == 1 {
		g.genExpr(children[0])
		switch op {
		case "-":
			g.emit(asm86.Mov{Dst: asm86.Reg(asm86.CX, asm86.Word), Src: asm86.Reg(asm86.AX, asm86.Word)})
			g.emit(asm86.Xor{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Reg(asm86.AX, asm86.Word)})
			g.emit(asm86.Sub{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Reg(asm86.CX, asm86.Word)})
		case "~":
			g.emit(asm86.Xor{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Imm(-1, asm86.Word)})
		default:
			g.fatalf("codegen: unsupported unary operator %q", op)
		}
		return
	}

	if len(children) != 2 {
		g.fatalf("codegen: E node %q has %d operands", op, len(children))
		return
	}

	g.genExpr(children[1])
	g.emit(asm86.Push{Src: asm86.Reg(asm86.AX, asm86.Word)})
	g.genExpr(children[0])
	g.emit(asm86.Pop{Dst: asm86.Reg(asm86.CX, asm86.Word)})

	switch op {
	case "+":
		g.emit(asm86.Add{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Reg(asm86.CX, asm86.Word)})
	case "-":
		g.emit(asm86.Sub{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Reg(asm86.CX, asm86.Word)})
	case "&":
		g.emit(asm86.And{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Reg(asm86.CX, asm86.Word)})
	case "|":
		g.emit(asm86.Or{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Reg(asm86.CX, asm86.Word)})
	case "^":
		g.emit(asm86.Xor{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Reg(asm86.CX, asm86.Word)})
	case "*":
		signed := g.exprSigned(children[0])
		g.emit(asm86.Xor{Dst: asm86.Reg(asm86.DX, asm86.Word), Src: asm86.Reg(asm86.DX, asm86.Word)})
		g.emit(asm86.Mul{Src: asm86.Reg(asm86.CX, asm86.Word), Signed: signed})
	case "/":
		signed := g.exprSigned(children[0])
		g.emit(asm86.Xor{Dst: asm86.Reg(asm86.DX, asm86.Word), Src: asm86.Reg(asm86.DX, asm86.Word)})
		g.emit(asm86.Div{Src: asm86.Reg(asm86.CX, asm86.Word), Signed: signed})
	case "%":
		signed := g.exprSigned(children[0])
		g.emit(asm86.Xor{Dst: asm86.Reg(asm86.DX, asm86.Word), Src: asm86.Reg(asm86.DX, asm86.Word)})
		g.emit(asm86.Div{Src: asm86.Reg(asm86.CX, asm86.Word), Signed: signed})
		g.emit(asm86.Mov{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Reg(asm86.DX, asm86.Word)})
	case "<<":
		g.emit(asm86.Rcl{Dst: asm86.Reg(asm86.AX, asm86.Word)})
	case ">>":
		g.emit(asm86.Rcr{Dst: asm86.Reg(asm86.AX, asm86.Word)})
	default:
		g.fatalf("codegen: unsupported binary operator %q", op)
	}
}

// exprSigned makes a best-effort guess at an expression's signedness, for
// choosing mul/imul and div/idiv: a direct variable reference carries its
// declared signedness, a literal is treated as unsigned, anything else
// falls back to unsigned (matching CodeGen8086.cpp's own conservative
// default when the operand isn't a bare variable).
func (g *Generator) exprSigned(id ast.NodeID) bool {
	n := g.tree.Node(id)
	if n == nil {
		return false
	}
	if n.Kind() == ast.KindVarIdent {
		if def, ok := g.res.DefOf(id); ok {
			return ast.VDefSigned(g.tree, def)
		}
	}
	return false
}

// genBoolExpr evaluates a condition expression, jumping to trueLabel when
// it holds and falseLabel when it doesn't. Either label may be "" (meaning
// "fall through"), following the short-circuit recursion spec.md §4.5
// describes for && and ||.
func (g *Generator) genBoolExpr(id ast.NodeID, trueLabel, falseLabel string) {
	n := g.tree.Node(id)
	if n == nil {
		return
	}

	if n.Kind() == ast.KindLogicalNot {
		g.genBoolExpr(n.Children()[0], falseLabel, trueLabel)
		return
	}

	if n.Kind() == ast.KindE {
		op := n.Payload()
		children := n.Children()

		switch op {
		case "&&":
			midLabel := falseLabel
			if midLabel == "" {
				midLabel = g.newLabel("and_false")
				g.genBoolExpr(children[0], "", midLabel)
				g.genBoolExpr(children[1], trueLabel, falseLabel)
				g.emitLabel(midLabel)
				return
			}
			g.genBoolExpr(children[0], "", falseLabel)
			g.genBoolExpr(children[1], trueLabel, falseLabel)
			return

		case "||":
			midLabel := trueLabel
			if midLabel == "" {
				midLabel = g.newLabel("or_true")
				g.genBoolExpr(children[0], midLabel, "")
				g.genBoolExpr(children[1], trueLabel, falseLabel)
				g.emitLabel(midLabel)
				return
			}
			g.genBoolExpr(children[0], trueLabel, "")
			g.genBoolExpr(children[1], trueLabel, falseLabel)
			return

		case ">", "<", ">=", "<=", "==", "!=":
			g.genComparisonJump(id, trueLabel, falseLabel)
			return
		}
	}

	// A bare value used as a condition: compare against zero, pass == "!= 0".
	g.genExpr(id)
	g.emit(asm86.Cmp{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Imm(0, asm86.Word)})
	g.emitPassFailJump("!=", trueLabel, falseLabel, false)
}

// genComparisonJump evaluates both sides of a relational E node and emits
// the signed/unsigned jump appropriate to the left operand's declared type.
func (g *Generator) genComparisonJump(id ast.NodeID, trueLabel, falseLabel string) {
	n := g.tree.Node(id)
	op := n.Payload()
	children := n.Children()

	signed := g.exprSigned(children[0])

	g.genExpr(children[1])
	g.emit(asm86.Push{Src: asm86.Reg(asm86.AX, asm86.Word)})
	g.genExpr(children[0])
	g.emit(asm86.Pop{Dst: asm86.Reg(asm86.CX, asm86.Word)})
	g.emit(asm86.Cmp{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Reg(asm86.CX, asm86.Word)})

	g.emitPassFailJump(op, trueLabel, falseLabel, signed)
}

// emitPassFailJump emits the jump(s) needed to reach trueLabel when op's
// condition held and falseLabel when it didn't, given a cmp already
// executed. When both labels are set, the pass-jump is emitted followed by
// an unconditional jump to falseLabel; when only one is set, whichever
// condition reaches it is chosen (complementing op when only falseLabel is
// given) and execution falls through otherwise.
func (g *Generator) emitPassFailJump(op, trueLabel, falseLabel string, signed bool) {
	entry, ok := jccTable[op]
	if !ok {
		g.fatalf("codegen: unsupported comparison operator %q", op)
		return
	}
	cond := entry.unsigned
	if signed {
		cond = entry.signed
	}

	switch {
	case trueLabel != "" && falseLabel != "":
		g.emit(asm86.Jcc{Cond: cond, Target: trueLabel})
		g.emit(asm86.Jmp{Target: falseLabel})
	case trueLabel != "":
		g.emit(asm86.Jcc{Cond: cond, Target: trueLabel})
	case falseLabel != "":
		failEntry := jccTable[entry.complement]
		failCond := failEntry.unsigned
		if signed {
			failCond = failEntry.signed
		}
		g.emit(asm86.Jcc{Cond: failCond, Target: falseLabel})
	}
}

// materializeBool evaluates a comparison/logical-connective expression to a
// concrete 0/1 value in AX, for contexts that need the value itself rather
// than a branch (e.g. `uint8 ok = a > b;`), per spec.md §4.5.
func (g *Generator) materializeBool(id ast.NodeID) {
	falseLbl := g.newLabel("false")
	trueLbl := g.newLabel("true")
	endLbl := g.newLabel("bool_end")

	g.genBoolExpr(id, trueLbl, falseLbl)
	g.emitLabel(falseLbl)
	g.emit(asm86.Mov{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Imm(0, asm86.Word)})
	g.emit(asm86.Jmp{Target: endLbl})
	g.emitLabel(trueLbl)
	g.emit(asm86.Mov{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Imm(1, asm86.Word)})
	g.emitLabel(endLbl)
}

// genLoadVar resolves use's storage and loads it into AX, zero-extending a
// byte-sized value to a full word. isChildOfPointer is passed on to
// genAddress unchanged.
func (g *Generator) genLoadVar(use ast.NodeID, isChildOfPointer bool) {
	operand, plan, ok := g.genAddress(use, isChildOfPointer)
	if !ok {
		return
	}

	if plan.ElemSize == 1 {
		// Byte loads are zero-extended into AX regardless of declared
		// signedness: the original never models sign extension either (no
		// cbw-equivalent appears anywhere in its codegen), so arithmetic on
		// a negative int8 only behaves correctly within a single byte's
		// worth of range. Mirrored here rather than "fixed", see DESIGN.md.
		src := narrow(operand, asm86.Byte)
		g.emit(asm86.Xor{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Reg(asm86.AX, asm86.Word)})
		g.emit(asm86.Mov{Dst: asm86.Reg(asm86.AX, asm86.Byte), Src: src})
		return
	}

	g.emit(asm86.Mov{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: operand})
}

// genAddressOf computes &expr into AX. Only a VAR_IDENTIFIER operand is
// accepted (a dynamic index is computed into DI first and folded into the
// lea); anything else is a user error, since the language has no way to
// take the address of a temporary.
func (g *Generator) genAddressOf(id ast.NodeID) {
	child := g.tree.Node(id).Children()[0]
	if g.tree.Node(child).Kind() != ast.KindVarIdent {
		g.userErrf("the address-of operator requires a variable operand")
		return
	}

	_, plan, ok := g.genAddress(child, false)
	if !ok {
		return
	}

	g.emit(asm86.Lea{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: translateAddress(plan.Address)})
}

// genLoadPtr loads the value an explicit pointer dereference (*p) refers
// to. Only single-level dereference is supported: a PTR node wrapping
// another PTR node falls back to a diagnostic rather than silently
// producing a wrong address (see DESIGN.md's multi-level-dereference note).
func (g *Generator) genLoadPtr(id ast.NodeID) {
	child := g.tree.Node(id).Children()[0]
	if g.tree.Node(child).Kind() != ast.KindVarIdent {
		g.userErrf("codegen: multi-level pointer dereference is not supported")
		return
	}

	_, plan, ok := g.genAddress(child, true)
	if !ok {
		return
	}

	g.emit(asm86.Mov{Dst: asm86.Reg(asm86.BX, asm86.Word), Src: translateAddress(plan.Address)})

	// VDefElementSize reports 2 for any pointer-flagged V_DEF regardless of
	// its pointee type (see vardef.go), so the pointee's own size comes from
	// the declared data type directly rather than from the plan.
	pointeeSize := 2
	if def, ok := g.res.DefOf(child); ok {
		if size, isPrim := ast.PrimitiveSize(ast.VDefDataType(g.tree, def)); isPrim {
			pointeeSize = size
		}
	}
	width := widthFor(pointeeSize)
	g.emit(asm86.Mov{Dst: asm86.Reg(asm86.AX, width), Src: asm86.Mem("bx", 0, width)})
	if width == asm86.Byte {
		g.emit(asm86.Xor{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Reg(asm86.AX, asm86.Word)})
		g.emit(asm86.Mov{Dst: asm86.Reg(asm86.AX, asm86.Byte), Src: asm86.Mem("bx", 0, asm86.Byte)})
	}
}

// genFuncCall pushes the call's arguments right-to-left (the 8086 cdecl
// convention CodeGen8086.cpp's FUNC_CALL handling follows), calls the
// function, and cleans the arguments back off the stack.
func (g *Generator) genFuncCall(id ast.NodeID) {
	n := g.tree.Node(id)
	name := n.Payload()
	args := n.Children()

	for i := len(args) - 1; i >= 0; i-- {
		g.genExpr(args[i])
		g.emit(asm86.Push{Src: asm86.Reg(asm86.AX, asm86.Word)})
	}

	g.emit(asm86.Call{Target: "_" + name})

	if len(args) > 0 {
		g.emit(asm86.Add{Dst: asm86.Reg(asm86.SP, asm86.Word), Src: asm86.Imm(2*len(args), asm86.Word)})
	}
}
