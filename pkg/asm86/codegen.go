package asm86

import (
	"encoding/binary"
	"fmt"
)

// RelocKind distinguishes how a Relocation's value should be patched in by
// a later linking stage.
type RelocKind int

const (
	// RelocAbsolute16: patch a little-endian 16-bit absolute address.
	RelocAbsolute16 RelocKind = iota
	// RelocRelative16: patch a little-endian 16-bit PC-relative offset
	// (near call/jmp), relative to the byte following the operand.
	RelocRelative16
	// RelocRelative8: patch a signed 8-bit PC-relative offset (short Jcc).
	RelocRelative8
)

// Relocation records a symbol reference the emitter could not resolve to a
// fixed byte value at assembly time — either because the symbol lives in
// another segment or was declared extern — per spec.md §4.6: "cross-segment
// and external references become relocation records on the segment stream
// rather than fixed bytes."
type Relocation struct {
	Offset int // byte offset within the segment where the value starts
	Symbol string
	Addend int
	Kind   RelocKind
}

// resolver looks up a label's byte offset, returning the name of the
// segment it was found in (also for a label of the segment being emitted)
// and whether it was found at all.
type resolver func(label string) (segment string, offset int, found bool)

// emitState accumulates one segment's output bytes and relocations across
// pass 2.
type emitState struct {
	segment   string
	resolve   resolver
	externs   map[string]bool
	out       []byte
	relocs    []Relocation
}

// CodePass emits one segment's bytes, looking up every label (in this
// segment or another) through resolve.
func CodePass(segmentName string, prog Program, resolve resolver, externs map[string]bool) ([]byte, []Relocation, error) {
	st := &emitState{segment: segmentName, resolve: resolve, externs: externs}
	for _, ins := range prog {
		if err := st.emit(ins); err != nil {
			return nil, nil, err
		}
	}
	return st.out, st.relocs, nil
}

func (st *emitState) emit(ins Instruction) error {
	switch v := ins.(type) {
	case Label, SegmentDecl, ExternDecl, GlobalDecl:
		return nil
	case Mov:
		return st.emitTwoOperand(v.Dst, v.Src, 0x88, 0x89, 0x8A, 0x8B, 0xC6, 0xC7, 0)
	case Add:
		return st.emitTwoOperand(v.Dst, v.Src, 0x00, 0x01, 0x02, 0x03, 0x80, 0x81, 0)
	case Or:
		return st.emitTwoOperand(v.Dst, v.Src, 0x08, 0x09, 0x0A, 0x0B, 0x80, 0x81, 1)
	case And:
		return st.emitTwoOperand(v.Dst, v.Src, 0x20, 0x21, 0x22, 0x23, 0x80, 0x81, 4)
	case Sub:
		return st.emitTwoOperand(v.Dst, v.Src, 0x28, 0x29, 0x2A, 0x2B, 0x80, 0x81, 5)
	case Xor:
		return st.emitTwoOperand(v.Dst, v.Src, 0x30, 0x31, 0x32, 0x33, 0x80, 0x81, 6)
	case Cmp:
		return st.emitTwoOperand(v.Dst, v.Src, 0x38, 0x39, 0x3A, 0x3B, 0x80, 0x81, 7)
	case Mul:
		ext := 4
		if v.Signed {
			ext = 5
		}
		return st.emitGroup(v.Src, 0xF6, 0xF7, ext)
	case Div:
		ext := 6
		if v.Signed {
			ext = 7
		}
		return st.emitGroup(v.Src, 0xF6, 0xF7, ext)
	case Rcl:
		return st.emitGroup(v.Dst, 0xD2, 0xD3, 2)
	case Rcr:
		return st.emitGroup(v.Dst, 0xD2, 0xD3, 3)
	case Lea:
		return st.emitRegMem(0x8D, v.Dst, v.Src)
	case Push:
		if v.Src.Kind == OperandRegister {
			st.byte(0x50 + v.Src.Reg.number())
			return nil
		}
		return st.emitGroup(v.Src, 0xFF, 0xFF, 6)
	case Pop:
		if v.Dst.Kind == OperandRegister {
			st.byte(0x58 + v.Dst.Reg.number())
			return nil
		}
		return st.emitGroup(v.Dst, 0x8F, 0x8F, 0)
	case Int:
		st.byte(0xCD)
		st.byte(v.Vector)
		return nil
	case Ret:
		st.byte(0xC3)
		return nil
	case Call:
		return st.emitRelative(0xE8, v.Target, RelocRelative16, 3)
	case Jmp:
		return st.emitRelative(0xE9, v.Target, RelocRelative16, 3)
	case Jcc:
		code, ok := jccCode[v.Cond]
		if !ok {
			return fmt.Errorf("asm86: unknown jump condition %q", v.Cond)
		}
		st.byte(0x70 + code)
		return st.emitRelativeTail(v.Target, RelocRelative8, 2)
	case Db:
		for _, b := range v.Values {
			st.byte(b)
		}
		return nil
	case Dw:
		for _, w := range v.Values {
			st.word(w)
		}
		return nil
	case Rb:
		for i := 0; i < v.Count; i++ {
			st.byte(0)
		}
		return nil
	default:
		return fmt.Errorf("asm86: unsupported instruction form %T", ins)
	}
}

var jccCode = map[string]int{
	"o": 0x0, "no": 0x1, "b": 0x2, "ae": 0x3, "e": 0x4, "ne": 0x5,
	"be": 0x6, "a": 0x7, "s": 0x8, "ns": 0x9, "l": 0xC, "ge": 0xD,
	"le": 0xE, "g": 0xF,
}

func (st *emitState) byte(b int) { st.out = append(st.out, byte(b)) }

func (st *emitState) word(w int) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(int16(w)))
	st.out = append(st.out, buf[:]...)
}

// emitTwoOperand handles the Mov-shaped family: rm<-reg / reg<-rm / rm<-imm,
// selecting the opcode triple based on which operand is the register, the
// memory, or the immediate.
func (st *emitState) emitTwoOperand(dst, src Operand, rmFromRegB, rmFromRegW, regFromRmB, regFromRmW, immB, immW, immExt int) error {
	if src.Kind == OperandImmediate {
		op := immB
		if dst.Width == Word {
			op = immW
		}
		st.byte(op)
		if err := st.emitModRM(immExt, dst); err != nil {
			return err
		}
		return st.emitImmediate(src)
	}

	if dst.Kind == OperandRegister && src.Kind != OperandRegister {
		op := regFromRmB
		if dst.Width == Word {
			op = regFromRmW
		}
		st.byte(op)
		return st.emitModRM(dst.Reg.number(), src)
	}

	// dst is memory, or both are registers: reg field carries src.
	op := rmFromRegB
	if src.Width == Word {
		op = rmFromRegW
	}
	st.byte(op)
	return st.emitModRM(src.Reg.number(), dst)
}

func (st *emitState) emitRegMem(opcode int, dst, src Operand) error {
	st.byte(opcode)
	return st.emitModRM(dst.Reg.number(), src)
}

func (st *emitState) emitGroup(operand Operand, opcodeB, opcodeW, ext int) error {
	op := opcodeB
	if operand.Width == Word {
		op = opcodeW
	}
	st.byte(op)
	return st.emitModRM(ext, operand)
}

// emitModRM writes the ModR/M byte for an operand that is either a plain
// register (mod=11) or a memory expression, then any displacement bytes,
// with regField occupying bits 5-3.
func (st *emitState) emitModRM(regField int, rm Operand) error {
	switch rm.Kind {
	case OperandRegister:
		st.byte((0b11 << 6) | (regField << 3) | rm.Reg.number())
		return nil
	case OperandMemory:
		mod, rmBits, dispBytes := rm.Mem.rmEncoding()
		st.byte((mod << 6) | (regField << 3) | rmBits)
		return st.emitDisp(rm.Mem, dispBytes)
	default:
		return fmt.Errorf("asm86: ModR/M operand must be a register or memory access, got %v", rm)
	}
}

func (st *emitState) emitDisp(m Memory, dispBytes int) error {
	if dispBytes == 0 {
		return nil
	}
	if m.Label != "" {
		return st.emitLabelValue(m.Label, m.Disp, dispBytes)
	}
	if dispBytes == 1 {
		st.byte(m.Disp)
		return nil
	}
	st.word(m.Disp)
	return nil
}

func (st *emitState) emitImmediate(imm Operand) error {
	width := immBytes(imm.Width)
	if imm.ImmLabel != "" {
		return st.emitLabelValue(imm.ImmLabel, imm.ImmValue, width)
	}
	if width == 1 {
		st.byte(imm.ImmValue)
	} else {
		st.word(imm.ImmValue)
	}
	return nil
}

// emitLabelValue resolves label against this segment first, then other
// segments, then the extern set, writing either the concrete value or a
// placeholder plus a Relocation.
func (st *emitState) emitLabelValue(label string, addend, width int) error {
	offset := len(st.out)
	segment, value, found := st.resolve(label)

	if found && segment == st.segment {
		if width == 1 {
			st.byte(value + addend)
		} else {
			st.word(value + addend)
		}
		return nil
	}

	kind := RelocAbsolute16
	if width == 1 {
		kind = RelocRelative8
	}
	st.relocs = append(st.relocs, Relocation{Offset: offset, Symbol: label, Addend: addend, Kind: kind})
	for i := 0; i < width; i++ {
		st.byte(0)
	}

	if !found && !st.externs[label] {
		return fmt.Errorf("asm86: unresolved reference to %q", label)
	}
	return nil
}

// emitRelative emits a fixed-size opcode byte followed by a PC-relative
// operand whose base point is the end of the instruction.
func (st *emitState) emitRelative(opcode int, target string, kind RelocKind, totalSize int) error {
	st.byte(opcode)
	return st.emitRelativeTail(target, kind, totalSize)
}

func (st *emitState) emitRelativeTail(target string, kind RelocKind, totalSize int) error {
	width := 2
	if kind == RelocRelative8 {
		width = 1
	}
	instructionStart := len(st.out) - (totalSize - width)
	segment, value, found := st.resolve(target)

	if found && segment == st.segment {
		rel := value - (instructionStart + totalSize)
		if width == 1 {
			st.byte(rel & 0xFF)
		} else {
			st.word(rel)
		}
		return nil
	}

	offset := len(st.out)
	st.relocs = append(st.relocs, Relocation{Offset: offset, Symbol: target, Kind: kind})
	for i := 0; i < width; i++ {
		st.byte(0)
	}
	if !found && !st.externs[target] {
		return fmt.Errorf("asm86: unresolved reference to %q", target)
	}
	return nil
}
