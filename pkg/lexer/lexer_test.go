package lexer

import (
	"testing"

	"n86c/pkg/ast"
)

func kinds(t *testing.T, src string) []ast.Kind {
	t.Helper()
	toks, err := All([]byte(src))
	if err != nil {
		t.Fatalf("All(%q): %v", src, err)
	}
	out := make([]ast.Kind, len(toks))
	for i, tok := range toks {
		out[i] = tok.Kind
	}
	return out
}

func TestLexNumberAndHex(t *testing.T) {
	toks, err := All([]byte("5 0x1F"))
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(toks) != 2 || toks[0].Literal != "5" || toks[1].Literal != "0x1F" {
		t.Fatalf("got %#v", toks)
	}
}

func TestLexStringWithEscape(t *testing.T) {
	toks, err := All([]byte(`"a\nb"`))
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(toks) != 1 || toks[0].Kind != ast.KindString || toks[0].Literal != "a\nb" {
		t.Fatalf("got %#v", toks)
	}
}

func TestLexKeywordVsIdentifier(t *testing.T) {
	got := kinds(t, "uint8 g")
	want := []ast.Kind{ast.KindKeyword, ast.KindIdentifier}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestLexRegister(t *testing.T) {
	toks, err := All([]byte("mov ax, bx"))
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if toks[1].Kind != ast.KindRegister || toks[1].Literal != "ax" {
		t.Fatalf("got %#v, want register ax", toks[1])
	}
}

func TestLexMultiCharOperatorLongestMatch(t *testing.T) {
	toks, err := All([]byte("a >= b"))
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(toks) != 3 || toks[1].Literal != ">=" {
		t.Fatalf("got %#v, want [a >= b]", toks)
	}
}

func TestLexArrowForStructPointerAccess(t *testing.T) {
	toks, err := All([]byte("q->b"))
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(toks) != 3 || toks[1].Literal != "->" {
		t.Fatalf("got %#v, want [q -> b]", toks)
	}
}

func TestLexSkipsLineAndBlockComments(t *testing.T) {
	toks, err := All([]byte("a // comment\n/* block */ b"))
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(toks) != 2 || toks[0].Literal != "a" || toks[1].Literal != "b" {
		t.Fatalf("got %#v", toks)
	}
}

func TestLexPreprocessorDirectiveTokens(t *testing.T) {
	toks, err := All([]byte("#ifdef DEBUG"))
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(toks) != 3 || toks[0].Literal != "#" || toks[1].Kind != ast.KindKeyword || toks[1].Literal != "ifdef" {
		t.Fatalf("got %#v", toks)
	}
}

func TestLexUnterminatedStringErrors(t *testing.T) {
	if _, err := All([]byte(`"abc`)); err == nil {
		t.Fatal("expected an error for an unterminated string literal")
	}
}

func TestLexUnexpectedCharacterErrors(t *testing.T) {
	if _, err := All([]byte("$")); err == nil {
		t.Fatal("expected an error for an unrecognized character")
	}
}
