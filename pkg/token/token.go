// Package token defines the lexeme shape pkg/lexer produces and pkg/parser
// consumes: a classified, positioned piece of source text. Token kinds
// reuse pkg/ast's leaf Kind constants (number, string, identifier, keyword,
// operator, symbol, register) directly, so the parser can build an ast.Node
// straight off a Token without an intermediate translation table.
package token

import (
	"fmt"

	"n86c/pkg/ast"
)

// Pos locates a token in its source file, both for diagnostics and for the
// assembler's "reported with token position" requirement further down the
// pipeline.
type Pos struct {
	Line   int
	Column int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is one classified lexeme: its kind, its literal text (the number's
// digits, the string's decoded contents, the identifier's name, the
// keyword/operator/symbol/register's exact spelling), and its source
// position.
type Token struct {
	Kind    ast.Kind
	Literal string
	Pos     Pos
}

// Keywords lists the language's reserved words (spec.md §3's primitive and
// structure/control-flow/macro vocabulary); an identifier lexeme matching
// one of these is classified as a keyword token instead.
var Keywords = map[string]bool{
	"int8": true, "uint8": true, "int16": true, "uint16": true,
	"struct": true, "if": true, "else": true, "while": true, "for": true,
	"break": true, "continue": true, "return": true, "asm": true,
	"ifdef": true, "define": true,
}

// Registers lists the 8086 general-purpose register names the lexer
// classifies as `register` tokens rather than plain identifiers, so inline
// `asm { ... }` blocks and addressing-mode expressions see them pre-tagged.
var Registers = map[string]bool{
	"ax": true, "bx": true, "cx": true, "dx": true,
	"al": true, "bl": true, "cl": true, "dl": true,
	"ah": true, "bh": true, "ch": true, "dh": true,
	"si": true, "di": true, "bp": true, "sp": true,
}
