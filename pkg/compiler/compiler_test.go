package compiler

import (
	"testing"

	"n86c/pkg/objfile"
)

func TestCompileSimpleFunction(t *testing.T) {
	src := []byte(`
uint16 counter;

uint8 add(uint8 a, uint8 b) {
	return a + b;
}

uint8 main() {
	counter = 0;
	return add(1, 2);
}
`)

	sink := objfile.New()
	diags, err := Compile(src, sink)
	if err != nil {
		t.Fatalf("Compile: %v (diags: %v)", err, diags.Items())
	}
	if diags.HasError() {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}

	code, ok := sink.GetSegment("code")
	if !ok {
		t.Fatalf("no code segment in object")
	}
	if len(code.Bytes()) == 0 {
		t.Fatalf("code segment is empty")
	}

	var sawAdd, sawMain bool
	for _, g := range sink.Globals {
		switch g.Name {
		case "_add":
			sawAdd = true
		case "_main":
			sawMain = true
		}
	}
	if !sawAdd || !sawMain {
		t.Fatalf("expected globals _add and _main, got %+v", sink.Globals)
	}
}

func TestCompileCallToExternalFunction(t *testing.T) {
	src := []byte(`
uint8 main() {
	return helper(4);
}
`)

	sink := objfile.New()
	diags, err := Compile(src, sink)
	if err != nil {
		t.Fatalf("Compile: %v (diags: %v)", err, diags.Items())
	}
	if diags.HasError() {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}

	var sawExtern bool
	for _, e := range sink.Externs {
		if e.Name == "_helper" {
			sawExtern = true
		}
	}
	if !sawExtern {
		t.Fatalf("expected extern _helper, got %+v", sink.Externs)
	}
}

func TestCompileUserErrorAccumulates(t *testing.T) {
	src := []byte(`
uint8 main() {
	return undeclared;
}
`)

	sink := objfile.New()
	diags, err := Compile(src, sink)
	if err != nil {
		t.Fatalf("Compile returned hard error for a UserError case: %v", err)
	}
	if !diags.HasError() {
		t.Fatalf("expected a UserError diagnostic for an undeclared identifier")
	}
}

func TestCompileSyntaxErrorReturnsErr(t *testing.T) {
	src := []byte(`uint8 main( {`)

	sink := objfile.New()
	_, err := Compile(src, sink)
	if err == nil {
		t.Fatalf("expected a parse error for malformed source")
	}
}
