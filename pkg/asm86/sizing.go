package asm86

import "fmt"

// LabelTable maps a label name to its byte offset within its segment,
// built by pass 1 and consumed by pass 2 to resolve immediate/memory
// references (spec.md §4.6 pass 1: "for each label, record label ->
// current_offset").
type LabelTable map[string]int

// SizePass walks one segment's Program, recording each label's offset and
// returning the table plus the segment's total byte size. It never
// resolves a label reference — only instruction shapes, never their
// operand values, determine size.
func SizePass(prog Program) (LabelTable, int, error) {
	table := LabelTable{}
	offset := 0

	for _, ins := range prog {
		switch v := ins.(type) {
		case Label:
			if _, exists := table[v.Name]; exists {
				return nil, 0, fmt.Errorf("duplicate label %q in segment", v.Name)
			}
			table[v.Name] = offset
		case SegmentDecl, ExternDecl, GlobalDecl:
			// directives, contribute no bytes
		default:
			n, err := instructionSize(ins)
			if err != nil {
				return nil, 0, err
			}
			offset += n
		}
	}
	return table, offset, nil
}

// instructionSize derives an instruction's encoded size purely from its
// operand shapes: 1 opcode byte plus, for ModR/M-carrying forms, 1 ModR/M
// byte plus displacement bytes (the mode in the "oo"/"mmm" fields selects
// 0/1/2 disp bytes, per spec.md §4.6) plus any immediate bytes.
func instructionSize(ins Instruction) (int, error) {
	switch v := ins.(type) {
	case Mov:
		return modrmSize(v.Dst, v.Src)
	case Add:
		return modrmSize(v.Dst, v.Src)
	case Sub:
		return modrmSize(v.Dst, v.Src)
	case And:
		return modrmSize(v.Dst, v.Src)
	case Or:
		return modrmSize(v.Dst, v.Src)
	case Xor:
		return modrmSize(v.Dst, v.Src)
	case Cmp:
		return modrmSize(v.Dst, v.Src)
	case Mul:
		return modrmSoloSize(v.Src)
	case Div:
		return modrmSoloSize(v.Src)
	case Rcl:
		return modrmSoloSize(v.Dst)
	case Rcr:
		return modrmSoloSize(v.Dst)
	case Lea:
		return modrmSize(v.Dst, v.Src)
	case Push:
		if v.Src.Kind == OperandRegister {
			return 1, nil
		}
		return modrmSoloSize(v.Src)
	case Pop:
		if v.Dst.Kind == OperandRegister {
			return 1, nil
		}
		return modrmSoloSize(v.Dst)
	case Int:
		return 2, nil
	case Call:
		return 3, nil
	case Ret:
		return 1, nil
	case Jmp:
		return 3, nil
	case Jcc:
		return 2, nil
	case Db:
		return len(v.Values), nil
	case Dw:
		return len(v.Values) * 2, nil
	case Rb:
		return v.Count, nil
	default:
		return 0, fmt.Errorf("asm86: unsupported instruction form %T", ins)
	}
}

// modrmSize sizes a two-operand ModR/M form: one operand supplies the
// "reg" field (a plain register), the other supplies "mod"/"rm" (register
// or memory); at most one of the pair may carry an immediate.
func modrmSize(a, b Operand) (int, error) {
	size := 2 // opcode + ModR/M
	memOperand, immOperand, regCount := Operand{}, Operand{}, 0
	haveMem, haveImm := false, false

	for _, op := range []Operand{a, b} {
		switch op.Kind {
		case OperandRegister:
			regCount++
		case OperandMemory:
			memOperand, haveMem = op, true
		case OperandImmediate:
			immOperand, haveImm = op, true
		}
	}
	if regCount == 0 && !haveMem {
		return 0, fmt.Errorf("asm86: instruction needs at least one register or memory operand")
	}
	if haveMem {
		_, _, dispBytes := memOperand.Mem.rmEncoding()
		size += dispBytes
	}
	if haveImm {
		size += immBytes(immOperand.Width)
	}
	return size, nil
}

// modrmSoloSize sizes a single-operand Grp3/Grp2-style ModR/M form
// (mul/div/rcl/rcr/push/pop of a memory operand): opcode + ModR/M + disp.
func modrmSoloSize(op Operand) (int, error) {
	size := 2
	if op.Kind == OperandMemory {
		_, _, dispBytes := op.Mem.rmEncoding()
		size += dispBytes
	}
	return size, nil
}

func immBytes(w Width) int {
	if w == Word {
		return 2
	}
	return 1
}
