// Package asm86 implements the two-pass 8086 assembler of spec.md §4.6: a
// typed instruction program (built directly by the code generator, or
// parsed from literal inline-assembly text) sized in a first pass and
// byte-encoded in a second.
//
// Grounded on the teacher's pkg/asm (its own two-stage assembler: a
// goparsec-based text-to-AST parser feeding a Lowerer/CodeGenerator pair)
// and pkg/hack/codegen.go's translation-table style for opcode/operand
// encoding.
package asm86

import "fmt"

// Width distinguishes an 8-bit from a 16-bit operand, the "w" bit of the
// classic 8086 opcode encoding.
type Width int

const (
	Byte Width = iota
	Word
)

// Register is one of the eight general-purpose 8086 registers, addressable
// as a word (AX..DI) or, for the first four, as a high/low byte pair.
type Register int

const (
	AX Register = iota
	CX
	DX
	BX
	SP
	BP
	SI
	DI
)

// The 8086 reuses the word-register numbering for the four high byte
// registers: ah/ch/dh/bh have no register slot of their own, they share
// SP/BP/SI/DI's number and are only ever distinguished by Width. These
// aliases exist so call sites that mean "the high byte" don't have to
// spell it as asm86.SP.
const (
	AH = SP
	CH = BP
	DH = SI
	BH = DI
)

// regNumber is spec.md §4.6's explicit numbering table: "al/ax=0, cl/cx=1,
// dl/dx=2, bl/bx=3, ah/sp=4, ch/bp=5, dh/si=6, bh/di=7".
func (r Register) number() int { return int(r) }

func (r Register) String(w Width) string {
	words := [...]string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di"}
	lowBytes := [...]string{"al", "cl", "dl", "bl"}
	highBytes := [...]string{"ah", "ch", "dh", "bh"}
	if w == Word {
		return words[r]
	}
	if int(r) < 4 {
		return lowBytes[r]
	}
	return highBytes[r-4]
}

// OperandKind tags which of Operand's fields is meaningful.
type OperandKind int

const (
	OperandRegister OperandKind = iota
	OperandImmediate
	OperandMemory
)

// Operand is one instruction argument: a register, an immediate (numeric
// or a label reference to resolve in pass 2), or a memory access.
type Operand struct {
	Kind  OperandKind
	Width Width

	Reg Register // OperandRegister

	ImmValue int    // OperandImmediate, numeric part
	ImmLabel string // OperandImmediate, label part (added to ImmValue once resolved); "" if purely numeric

	Mem Memory // OperandMemory
}

// Memory is an 8086 effective-address expression: [Base(+Index)+Disp], or,
// with Base == "" and Index == "", the direct address form `[Disp]` bound
// to a label (spec.md §4.4's "DATA + offset" global addressing).
type Memory struct {
	Base  string // "", "bx", or "bp"
	Index string // "", "si", or "di" — spec.md §4.5: "DI is the scaled array-index register"
	Disp  int
	Label string // symbolic displacement (e.g. a global's data-segment label), resolved in pass 2
}

func Reg(r Register, w Width) Operand { return Operand{Kind: OperandRegister, Reg: r, Width: w} }

func Imm(v int, w Width) Operand { return Operand{Kind: OperandImmediate, ImmValue: v, Width: w} }

func ImmLabel(label string, addend int, w Width) Operand {
	return Operand{Kind: OperandImmediate, ImmLabel: label, ImmValue: addend, Width: w}
}

func Mem(base string, disp int, w Width) Operand {
	return Operand{Kind: OperandMemory, Mem: Memory{Base: base, Disp: disp}, Width: w}
}

func MemIndexed(base, index string, disp int, w Width) Operand {
	return Operand{Kind: OperandMemory, Mem: Memory{Base: base, Index: index, Disp: disp}, Width: w}
}

func MemLabel(label string, w Width) Operand {
	return Operand{Kind: OperandMemory, Mem: Memory{Label: label}, Width: w}
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandRegister:
		return o.Reg.String(o.Width)
	case OperandImmediate:
		if o.ImmLabel != "" {
			return fmt.Sprintf("%s+%d", o.ImmLabel, o.ImmValue)
		}
		return fmt.Sprintf("%d", o.ImmValue)
	case OperandMemory:
		return o.Mem.String()
	default:
		return "?"
	}
}

func (m Memory) String() string {
	if m.Label != "" {
		return fmt.Sprintf("[%s]", m.Label)
	}
	inner := m.Base
	if m.Index != "" {
		inner += "+" + m.Index
	}
	if m.Disp != 0 || inner == "" {
		if m.Disp >= 0 && inner != "" {
			inner += fmt.Sprintf("+%d", m.Disp)
		} else {
			inner += fmt.Sprintf("%d", m.Disp)
		}
	}
	return "[" + inner + "]"
}

// rmEncoding returns the (mod, rm) pair for this memory operand's
// effective-address form, per the classic 8086 ModR/M table. bp-based
// addressing can never use mod=00 (that encoding is reserved for the
// direct-address form), so a zero-displacement [bp] is always encoded with
// an explicit 8-bit displacement of 0.
func (m Memory) rmEncoding() (mod, rm int, dispBytes int) {
	if m.Base == "" && m.Index == "" {
		return 0b00, 0b110, 2 // direct address: disp16 always follows
	}

	switch {
	case m.Base == "bx" && m.Index == "si":
		rm = 0b000
	case m.Base == "bx" && m.Index == "di":
		rm = 0b001
	case m.Base == "bp" && m.Index == "si":
		rm = 0b010
	case m.Base == "bp" && m.Index == "di":
		rm = 0b011
	case m.Base == "" && m.Index == "si":
		rm = 0b100
	case m.Base == "" && m.Index == "di":
		rm = 0b101
	case m.Base == "bp" && m.Index == "":
		rm = 0b110
	case m.Base == "bx" && m.Index == "":
		rm = 0b111
	default:
		rm = 0b111 // unrecognized combination falls back to [bx]-style encoding
	}

	// A label-bound displacement always needs its full 16-bit slot
	// reserved, even when the numeric addend folded in alongside it is
	// zero: the label's eventual value, not the addend, is what occupies
	// those bytes (e.g. a scaled array access `[_data+0+di]` still needs
	// the two-byte form to carry _data's resolved address).
	if m.Label != "" {
		return 0b10, rm, 2
	}

	if m.Disp == 0 && rm != 0b110 {
		return 0b00, rm, 0
	}
	if m.Disp >= -128 && m.Disp <= 127 {
		return 0b01, rm, 1
	}
	return 0b10, rm, 2
}
