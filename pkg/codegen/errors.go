package codegen

import "n86c/pkg/diag"

// userErrf reports a UserError against the function currently being
// generated and marks it aborted: per spec.md §7's propagation policy, the
// statement loop checks curFuncAborted after every statement and stops
// emitting for the rest of that function, but Generate still moves on to
// the next top-level declaration.
func (g *Generator) userErrf(format string, args ...any) {
	g.diags.Errorf(diag.Position{}, format, args...)
	g.curFuncAborted = true
}

// fatalf reports an InternalInvariantViolation: a shape the validator and
// improver should have ruled out already reached codegen. Generate aborts
// the whole run on the next HasFatal check.
func (g *Generator) fatalf(format string, args ...any) {
	g.diags.Fatalf(diag.Position{}, format, args...)
	g.curFuncAborted = true
}
