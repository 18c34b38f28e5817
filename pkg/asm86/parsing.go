// Parser for the assembly text surface of spec.md §6: the line forms an
// ASM{...} block or a standalone .s file may contain (`segment NAME`,
// `global _name`, `extern _name`, `_name:`, `db`/`dw`/`rb`, and
// `mnemonic operand[, operand]`). Grounded on the teacher's pkg/asm/parsing.go:
// a goparsec grammar of parser combinators (And/OrdChoice/Maybe/ManyUntil
// over Atom/Token/Int) feeding a DFS that converts the resulting AST into the
// package's own typed Program, rather than keeping goparsec's generic tree
// around as the working representation.
package asm86

import (
	"fmt"
	"strconv"
	"strings"

	pc "github.com/prataprc/goparsec"
)

var asmAST = pc.NewAST("inline-asm", 0)

var (
	pProgram = asmAST.ManyUntil("program", nil,
		asmAST.OrdChoice("item", nil, pLabelDecl, pDirective, pInstructionLine), pc.End())

	pLabelDecl = asmAST.And("label-decl", nil, pIdent, pc.Atom(":", ":"))

	pDirective = asmAST.OrdChoice("directive", nil, pDb, pDw, pRb, pExternDir, pGlobalDir, pSegmentDir)
	pDb        = asmAST.And("db", nil, pc.Atom("db", "DB"), pImmediate)
	pDw        = asmAST.And("dw", nil, pc.Atom("dw", "DW"), pImmediate)
	pRb        = asmAST.And("rb", nil, pc.Atom("rb", "RB"), pNumber)
	pExternDir = asmAST.And("extern", nil, pc.Atom("extern", "EXTERN"), pIdent)
	pGlobalDir = asmAST.And("global", nil, pc.Atom("global", "GLOBAL"), pIdent)
	pSegmentDir = asmAST.And("segment", nil, pc.Atom("segment", "SEGMENT"), pIdent)

	pMnemonic = asmAST.OrdChoice("mnemonic", nil,
		pc.Atom("mov", "MOV"), pc.Atom("add", "ADD"), pc.Atom("sub", "SUB"),
		pc.Atom("and", "AND"), pc.Atom("or", "OR"), pc.Atom("xor", "XOR"),
		pc.Atom("cmp", "CMP"), pc.Atom("mul", "MUL"), pc.Atom("div", "DIV"),
		pc.Atom("imul", "IMUL"), pc.Atom("idiv", "IDIV"),
		pc.Atom("rcl", "RCL"), pc.Atom("rcr", "RCR"),
		pc.Atom("lea", "LEA"), pc.Atom("push", "PUSH"), pc.Atom("pop", "POP"),
		pc.Atom("int", "INT"), pc.Atom("call", "CALL"), pc.Atom("ret", "RET"),
		pc.Atom("jmp", "JMP"),
		pc.Atom("je", "JE"), pc.Atom("jne", "JNE"), pc.Atom("jg", "JG"),
		pc.Atom("jge", "JGE"), pc.Atom("jl", "JL"), pc.Atom("jle", "JLE"),
		pc.Atom("ja", "JA"), pc.Atom("jae", "JAE"), pc.Atom("jb", "JB"),
		pc.Atom("jbe", "JBE"),
	)

	pRegister = asmAST.OrdChoice("register", nil,
		pc.Atom("ax", "AX"), pc.Atom("bx", "BX"), pc.Atom("cx", "CX"), pc.Atom("dx", "DX"),
		pc.Atom("sp", "SP"), pc.Atom("bp", "BP"), pc.Atom("si", "SI"), pc.Atom("di", "DI"),
		pc.Atom("al", "AL"), pc.Atom("bl", "BL"), pc.Atom("cl", "CL"), pc.Atom("dl", "DL"),
		pc.Atom("ah", "AH"), pc.Atom("bh", "BH"), pc.Atom("ch", "CH"), pc.Atom("dh", "DH"),
	)

	pIdent = pc.Token(`[A-Za-z_][0-9A-Za-z_]*`, "IDENT")

	pNumber = asmAST.OrdChoice("number", nil,
		asmAST.And("neg-number", nil, pc.Atom("-", "-"), pc.Int()), pc.Int())

	pImmediate = asmAST.OrdChoice("immediate", nil, pNumber, pIdent)

	pAddrSign = asmAST.OrdChoice("addr-sign", nil, pc.Atom("+", "+"), pc.Atom("-", "-"))
	pAddrTerm = asmAST.OrdChoice("addr-term", nil, pRegister, pNumber, pIdent)
	pAddrHop  = asmAST.And("addr-hop", nil, asmAST.Maybe("maybe-sign", nil, pAddrSign), pAddrTerm)
	pAddrExpr = asmAST.And("addr-expr", nil, pAddrTerm,
		asmAST.ManyUntil("addr-rest", nil, pAddrHop, pc.Atom("]", "]")))
	pMemory = asmAST.And("memory", nil, pc.Atom("[", "["), pAddrExpr, pc.Atom("]", "]"))

	pWidthKeyword = asmAST.OrdChoice("width-kw", nil, pc.Atom("byte", "BYTE"), pc.Atom("word", "WORD"))
	pOperand      = asmAST.And("operand", nil,
		asmAST.Maybe("maybe-width", nil, pWidthKeyword),
		asmAST.OrdChoice("operand-body", nil, pMemory, pRegister, pImmediate),
	)

	pOperandList = asmAST.OrdChoice("operand-list", nil,
		asmAST.And("two-op", nil, pOperand, pc.Atom(",", ","), pOperand), pOperand)

	pInstructionLine = asmAST.And("instruction", nil, pMnemonic, asmAST.Maybe("maybe-operands", nil, pOperandList))
)

// ParseLine parses one line of assembly text (without a trailing newline)
// into zero or one Instruction. Blank lines and comments yield (nil, nil).
func ParseLine(line string) (Instruction, error) {
	line = stripComment(line)
	if strings.TrimSpace(line) == "" {
		return nil, nil
	}

	root, scanner := asmAST.Parsewith(pLine(), pc.NewScanner([]byte(line)))
	if root == nil {
		return nil, fmt.Errorf("asm86: could not parse line %q", line)
	}
	if rest := strings.TrimSpace(string(scanner.Bytes())); rest != "" {
		return nil, fmt.Errorf("asm86: unexpected trailing text %q in line %q", rest, line)
	}
	return fromItem(root)
}

// pLine wraps a single top-level item (the per-line entry point, as opposed
// to pProgram's whole-file ManyUntil).
func pLine() pc.Parser {
	return asmAST.OrdChoice("line", nil, pLabelDecl, pDirective, pInstructionLine)
}

func stripComment(line string) string {
	if i := strings.Index(line, ";"); i >= 0 {
		return line[:i]
	}
	return line
}

func fromItem(n pc.Queryable) (Instruction, error) {
	switch n.GetName() {
	case "label-decl":
		return Label{Name: n.GetChildren()[0].GetValue()}, nil
	case "extern":
		return ExternDecl{Name: n.GetChildren()[1].GetValue()}, nil
	case "global":
		return GlobalDecl{Name: n.GetChildren()[1].GetValue()}, nil
	case "segment":
		return SegmentDecl{Name: n.GetChildren()[1].GetValue()}, nil
	case "db":
		v, err := fromImmediateInt(n.GetChildren()[1])
		if err != nil {
			return nil, err
		}
		return Db{Values: []int{v}}, nil
	case "dw":
		v, err := fromImmediateInt(n.GetChildren()[1])
		if err != nil {
			return nil, err
		}
		return Dw{Values: []int{v}}, nil
	case "rb":
		v, err := parseNumberNode(n.GetChildren()[1])
		if err != nil {
			return nil, fmt.Errorf("asm86: bad rb count: %w", err)
		}
		return Rb{Count: v}, nil
	case "instruction":
		return fromInstruction(n)
	default:
		return nil, fmt.Errorf("asm86: unrecognized parsed item %q", n.GetName())
	}
}

func fromImmediateInt(n pc.Queryable) (int, error) {
	if n.GetName() == "IDENT" {
		return 0, fmt.Errorf("asm86: db/dw directive needs a numeric value, got identifier %q", n.GetValue())
	}
	return parseNumberNode(n)
}

// parseNumberNode reads a pNumber match: OrdChoice is transparent, so a
// positive literal surfaces directly as the underlying INT node, while a
// negative one surfaces as the "neg-number" And-node wrapping the "-" atom
// and the INT node.
func parseNumberNode(n pc.Queryable) (int, error) {
	if n.GetName() == "neg-number" {
		v, err := strconv.Atoi(n.GetChildren()[1].GetValue())
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	return strconv.Atoi(n.GetValue())
}

// registerName set of the leaf names a matched register atom can surface
// as, since pRegister is a transparent OrdChoice of bare Atoms.
var registerNodeNames = map[string]bool{
	"AX": true, "CX": true, "DX": true, "BX": true,
	"SP": true, "BP": true, "SI": true, "DI": true,
	"AL": true, "BL": true, "CL": true, "DL": true,
	"AH": true, "BH": true, "CH": true, "DH": true,
}

// fromInstruction converts an "instruction" node (mnemonic + optional
// operand-list) into a typed Instruction, dispatching by mnemonic the same
// way the typed-Instruction model's own codegen.go switches on Go type.
func fromInstruction(n pc.Queryable) (Instruction, error) {
	children := n.GetChildren()
	mnemonic := strings.ToLower(children[0].GetValue())

	// children[1] is always present (Maybe always fills its slot), but it
	// only denotes real operands when the slot's match is itself an
	// "operand" (single operand) or "two-op" (two operands) node; anything
	// else means the optional operand-list never matched.
	var operands []Operand
	if opList := children[1]; opList.GetName() == "two-op" || opList.GetName() == "operand" {
		ops, err := fromOperandList(opList)
		if err != nil {
			return nil, err
		}
		operands = ops
	}

	two := func() (Operand, Operand, error) {
		if len(operands) != 2 {
			return Operand{}, Operand{}, fmt.Errorf("asm86: %q needs two operands", mnemonic)
		}
		return operands[0], operands[1], nil
	}
	one := func() (Operand, error) {
		if len(operands) != 1 {
			return Operand{}, fmt.Errorf("asm86: %q needs one operand", mnemonic)
		}
		return operands[0], nil
	}

	switch mnemonic {
	case "mov":
		d, s, err := two()
		return Mov{Dst: d, Src: s}, err
	case "add":
		d, s, err := two()
		return Add{Dst: d, Src: s}, err
	case "sub":
		d, s, err := two()
		return Sub{Dst: d, Src: s}, err
	case "and":
		d, s, err := two()
		return And{Dst: d, Src: s}, err
	case "or":
		d, s, err := two()
		return Or{Dst: d, Src: s}, err
	case "xor":
		d, s, err := two()
		return Xor{Dst: d, Src: s}, err
	case "cmp":
		d, s, err := two()
		return Cmp{Dst: d, Src: s}, err
	case "mul":
		s, err := one()
		return Mul{Src: s, Signed: false}, err
	case "imul":
		s, err := one()
		return Mul{Src: s, Signed: true}, err
	case "div":
		s, err := one()
		return Div{Src: s, Signed: false}, err
	case "idiv":
		s, err := one()
		return Div{Src: s, Signed: true}, err
	case "rcl":
		d, err := one()
		return Rcl{Dst: d}, err
	case "rcr":
		d, err := one()
		return Rcr{Dst: d}, err
	case "lea":
		d, s, err := two()
		return Lea{Dst: d, Src: s}, err
	case "push":
		s, err := one()
		return Push{Src: s}, err
	case "pop":
		d, err := one()
		return Pop{Dst: d}, err
	case "int":
		s, err := one()
		return Int{Vector: s.ImmValue}, err
	case "call":
		s, err := one()
		return Call{Target: targetName(s)}, err
	case "ret":
		return Ret{}, nil
	case "jmp":
		s, err := one()
		return Jmp{Target: targetName(s)}, err
	case "je", "jne", "jg", "jge", "jl", "jle", "ja", "jae", "jb", "jbe":
		s, err := one()
		return Jcc{Cond: strings.TrimPrefix(mnemonic, "j"), Target: targetName(s)}, err
	default:
		return nil, fmt.Errorf("asm86: unknown mnemonic %q", mnemonic)
	}
}

func targetName(op Operand) string {
	if op.ImmLabel != "" {
		return op.ImmLabel
	}
	return strconv.Itoa(op.ImmValue)
}

func fromOperandList(n pc.Queryable) ([]Operand, error) {
	if n.GetName() == "two-op" {
		a, err := fromOperand(n.GetChildren()[0])
		if err != nil {
			return nil, err
		}
		b, err := fromOperand(n.GetChildren()[2])
		if err != nil {
			return nil, err
		}
		return []Operand{a, b}, nil
	}
	op, err := fromOperand(n)
	if err != nil {
		return nil, err
	}
	return []Operand{op}, nil
}

// fromOperand converts an "operand" And-node: a maybe-width slot (always
// present, a width atom when matched or an empty placeholder otherwise)
// followed by the operand body. OrdChoice is transparent, so the body
// surfaces directly as whichever alternative matched: a "memory" node, a
// bare register atom, or a bare immediate leaf (INT/neg-number/IDENT).
func fromOperand(n pc.Queryable) (Operand, error) {
	children := n.GetChildren()
	widthNode, body := children[0], children[1]

	width := Byte
	widthExplicit := false
	switch strings.ToLower(widthNode.GetValue()) {
	case "byte":
		width, widthExplicit = Byte, true
	case "word":
		width, widthExplicit = Word, true
	}

	if body.GetName() == "memory" {
		mem, err := fromMemory(body)
		if err != nil {
			return Operand{}, err
		}
		if !widthExplicit {
			width = Word
		}
		return Operand{Kind: OperandMemory, Mem: mem, Width: width}, nil
	}
	if reg, regWidth, ok := registerFromValue(body); ok {
		if !widthExplicit {
			width = regWidth
		}
		return Operand{Kind: OperandRegister, Reg: reg, Width: width}, nil
	}
	if !widthExplicit {
		width = Word
	}
	return fromImmediateOperand(body, width)
}

func fromImmediateOperand(n pc.Queryable, width Width) (Operand, error) {
	if n.GetName() == "IDENT" {
		return ImmLabel(n.GetValue(), 0, width), nil
	}
	v, err := parseNumberNode(n)
	if err != nil {
		return Operand{}, fmt.Errorf("asm86: bad immediate %q: %w", n.GetValue(), err)
	}
	return Imm(v, width), nil
}

// fromMemory walks an "memory" node's addr-expr (a leading term plus a
// ManyUntil chain of signed hops) into a Memory value: at most one register
// base, one register index, one label, and a running numeric displacement.
func fromMemory(n pc.Queryable) (Memory, error) {
	expr := n.GetChildren()[1] // [ addr-expr ]
	terms := expr.GetChildren()
	hops := [][2]pc.Queryable{{nil, terms[0]}}
	rest := terms[1].GetChildren() // addr-rest's ManyUntil children, each an addr-hop
	for _, hop := range rest {
		hopChildren := hop.GetChildren()
		var sign pc.Queryable
		var term pc.Queryable
		if len(hopChildren) == 2 {
			sign, term = hopChildren[0], hopChildren[1]
		} else {
			term = hopChildren[0]
		}
		hops = append(hops, [2]pc.Queryable{sign, term})
	}

	var m Memory
	for _, h := range hops {
		sign, term := h[0], h[1]
		neg := sign != nil && sign.GetValue() == "-"
		if err := applyMemoryTerm(&m, term, neg); err != nil {
			return Memory{}, err
		}
	}
	return m, nil
}

func applyMemoryTerm(m *Memory, term pc.Queryable, negative bool) error {
	if term.GetName() == "IDENT" {
		if m.Label != "" {
			return fmt.Errorf("asm86: memory operand cannot reference more than one label")
		}
		m.Label = term.GetValue()
		return nil
	}
	if term.GetName() == "INT" || term.GetName() == "neg-number" {
		v, err := parseNumberNode(term)
		if err != nil {
			return err
		}
		if negative {
			v = -v
		}
		m.Disp += v
		return nil
	}
	if reg, _, ok := registerFromValue(term); ok {
		name := reg.String(Word)
		if m.Base == "" {
			m.Base = name
		} else if m.Index == "" {
			m.Index = name
		} else {
			return fmt.Errorf("asm86: memory operand cannot reference more than two registers")
		}
		return nil
	}
	return fmt.Errorf("asm86: unexpected memory term %q", term.GetName())
}

// registerFromValue recognizes a matched register atom by its node name
// (pRegister is a transparent OrdChoice, so the node is the bare atom, e.g.
// named "AX" with value "ax") and reports the register/width it denotes.
func registerFromValue(n pc.Queryable) (Register, Width, bool) {
	if !registerNodeNames[n.GetName()] {
		return 0, 0, false
	}
	switch strings.ToLower(n.GetValue()) {
	case "ax":
		return AX, Word, true
	case "bx":
		return BX, Word, true
	case "cx":
		return CX, Word, true
	case "dx":
		return DX, Word, true
	case "sp":
		return SP, Word, true
	case "bp":
		return BP, Word, true
	case "si":
		return SI, Word, true
	case "di":
		return DI, Word, true
	case "al":
		return AX, Byte, true
	case "bl":
		return BX, Byte, true
	case "cl":
		return CX, Byte, true
	case "dl":
		return DX, Byte, true
	case "ah":
		return AH, Byte, true
	case "bh":
		return BH, Byte, true
	case "ch":
		return CH, Byte, true
	case "dh":
		return DH, Byte, true
	default:
		return 0, 0, false
	}
}
