package codegen

import (
	"n86c/pkg/asm86"
	"n86c/pkg/ast"
	"n86c/pkg/resolver"
)

// genAddress runs use's resolver.Plan, emitting whatever runtime work the
// plan's Steps call for (dynamic index scaling into DI, pointer-hop loads
// into BX), and returns the final asm86 operand plus the plan's element
// size/signedness for the caller to pick mov vs mov byte with.
func (g *Generator) genAddress(use ast.NodeID, isChildOfPointer bool) (asm86.Operand, resolver.Plan, bool) {
	plan, err := g.res.Resolve(use, isChildOfPointer)
	if err != nil {
		g.userErrf("%s", err)
		return asm86.Operand{}, plan, false
	}

	diLoaded := false
	for _, step := range plan.Steps {
		switch step.Kind {
		case resolver.StepDynamicIndex:
			g.genExpr(step.IndexExpr)
			if step.ElementSize > 1 {
				g.emit(asm86.Mov{Dst: asm86.Reg(asm86.CX, asm86.Word), Src: asm86.Imm(step.ElementSize, asm86.Word)})
				g.emit(asm86.Mul{Src: asm86.Reg(asm86.CX, asm86.Word), Signed: false})
			}
			if !diLoaded {
				g.emit(asm86.Mov{Dst: asm86.Reg(asm86.DI, asm86.Word), Src: asm86.Reg(asm86.AX, asm86.Word)})
				diLoaded = true
			} else {
				g.emit(asm86.Add{Dst: asm86.Reg(asm86.DI, asm86.Word), Src: asm86.Reg(asm86.AX, asm86.Word)})
			}
		case resolver.StepPointerLoad:
			src := translateAddress(step.BeforeAddress)
			g.emit(asm86.Mov{Dst: asm86.Reg(asm86.BX, asm86.Word), Src: src})
		}
	}

	return translateAddress(plan.Address), plan, true
}

// translateAddress converts a resolver.AbstractAddress into the concrete
// asm86 memory operand that addresses it, per spec.md §4.4's three base
// kinds: the shared data-segment label, a frame-pointer-relative local or
// argument slot, or a register base left behind by a pointer hop (always
// "bx", the only register the resolver ever hops through).
func translateAddress(addr resolver.AbstractAddress) asm86.Operand {
	index := ""
	if addr.ApplyIndexRegister {
		index = "di"
	}

	switch addr.BaseSegment {
	case "data":
		return asm86.Operand{
			Kind:  asm86.OperandMemory,
			Width: asm86.Word,
			Mem:   asm86.Memory{Label: "_data", Index: index, Disp: addr.Offset},
		}
	case "fp":
		disp := addr.Offset
		if addr.Op == resolver.Sub {
			disp = -disp
		}
		if index != "" {
			return asm86.MemIndexed("bp", index, disp, asm86.Word)
		}
		return asm86.Mem("bp", disp, asm86.Word)
	default: // a register base left by a pointer hop (StepPointerLoad always targets bx)
		if index != "" {
			return asm86.MemIndexed(addr.BaseSegment, index, addr.Offset, asm86.Word)
		}
		return asm86.Mem(addr.BaseSegment, addr.Offset, asm86.Word)
	}
}

// widthFor reports the asm86 operand width for a value of the given byte
// size, per spec.md §4.5's "byte-sized values use 8-bit register/memory
// forms" rule.
func widthFor(size int) asm86.Width {
	if size == 1 {
		return asm86.Byte
	}
	return asm86.Word
}

// narrow rewrites a word-width memory/register operand constructed by
// translateAddress to the given width, without disturbing its base/index/
// label/displacement.
func narrow(op asm86.Operand, w asm86.Width) asm86.Operand {
	op.Width = w
	return op
}
