// Package compiler implements the single library entry point named in
// spec.md §6 ("one entry takes source text and an object-format sink and
// returns diagnostics"), wiring together every pass built in the other
// packages: lexer -> parser -> preprocessor -> improver -> validator ->
// codegen -> assembler -> objfile.
//
// Grounded on the teacher's cmd/jack_compiler/main.go pass sequence (parse,
// typecheck, lower, codegen, one error check after each), generalized into
// a single reusable driver instead of a CLI-only call chain, and on
// spec.md §7's propagation policy: an InternalInvariantViolation aborts the
// whole compilation immediately; everything else accumulates and the
// driver keeps going as far as it can.
package compiler

import (
	"fmt"

	"n86c/pkg/asm86"
	"n86c/pkg/codegen"
	"n86c/pkg/diag"
	"n86c/pkg/improver"
	"n86c/pkg/objfile"
	"n86c/pkg/parser"
	"n86c/pkg/preprocessor"
	"n86c/pkg/validator"
)

// Compile runs the whole pipeline over src and appends the resulting object
// (code and data segments, globals, externs) onto sink. It returns every
// diagnostic accumulated along the way; a non-nil error only ever reports a
// lex/parse failure or an InternalInvariantViolation, per spec.md §7 — a
// UserError-only run returns a nil error with Diagnostics.HasError() true.
func Compile(src []byte, sink *objfile.Object) (diag.Diagnostics, error) {
	var diags diag.Diagnostics

	tree, err := parser.Parse(src)
	if err != nil {
		diags.Errorf(diag.Position{}, "parse: %s", err)
		return diags, err
	}

	if err := preprocessor.New().Process(tree); err != nil {
		diags.Fatalf(diag.Position{}, "preprocess: %s", err)
		return diags, err
	}

	imp := improver.New(tree)
	diags.Merge(imp.Run())
	if diags.HasFatal() {
		return diags, fmt.Errorf("compiler: internal invariant violation during improvement")
	}

	val := validator.New(tree, imp)
	diags.Merge(val.Validate())
	if diags.HasFatal() {
		return diags, fmt.Errorf("compiler: internal invariant violation during validation")
	}

	gen := codegen.New(tree, imp)
	result := gen.Generate()
	diags.Merge(result.Diags)
	if diags.HasFatal() {
		return diags, fmt.Errorf("compiler: internal invariant violation during code generation")
	}

	asm := asm86.NewAssembler()
	asm.AddSegment("data", result.Data)
	asm.AddSegment("code", inferExterns(result.Code, result.Data))

	outputs, err := asm.Assemble()
	if err != nil {
		// spec.md §7: "the assembler aborts the current segment" — at the
		// driver level a failed Assemble() is reported as one diagnostic
		// rather than a hard failure, so a caller batching several
		// translation units still sees every one of them reported.
		diags.Errorf(diag.Position{}, "assemble: %s", err)
		return diags, nil
	}

	sink.Append(objfile.FromAssemblerOutputs(outputs))
	return diags, nil
}

// inferExterns prepends one asm86.ExternDecl per symbol that code calls but
// that neither code nor data defines as a Label or GlobalDecl. pkg/codegen's
// genFuncCall has no notion of which callees live outside the current
// compilation unit, so it never emits ExternDecl itself; without this, a
// call to a function defined in another translation unit would trip
// asm86/codegen.go's emitLabelValue "unresolved reference" error, since
// that function only tolerates a reference that is either locally
// resolvable or pre-declared extern.
func inferExterns(code, data asm86.Program) asm86.Program {
	defined := map[string]bool{}
	for _, prog := range []asm86.Program{code, data} {
		for _, ins := range prog {
			switch v := ins.(type) {
			case asm86.Label:
				defined[v.Name] = true
			case asm86.GlobalDecl:
				defined[v.Name] = true
			}
		}
	}

	var externs []string
	seen := map[string]bool{}
	for _, ins := range code {
		call, ok := ins.(asm86.Call)
		if !ok || defined[call.Target] || seen[call.Target] {
			continue
		}
		seen[call.Target] = true
		externs = append(externs, call.Target)
	}
	if len(externs) == 0 {
		return code
	}

	out := make(asm86.Program, 0, len(code)+len(externs))
	for _, name := range externs {
		out = append(out, asm86.ExternDecl{Name: name})
	}
	return append(out, code...)
}
