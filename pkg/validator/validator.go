// Package validator implements the semantic validator of spec.md §4.3: a
// tree walk that reports UserError diagnostics for redeclarations, unknown
// identifiers and illegal structure access, run after the tree improver has
// attached VAR_IDENTIFIER definitions.
//
// Grounded on original_source/Compiler/src/SemanticValidator.cpp: a
// dispatch-by-kind walk (validate_part) that special-cases FUNC/BODY/V_DEF/
// STRUCT_DEF/STRUCT/VAR_IDENTIFIER/ASSIGN and otherwise does nothing. We
// generalize the dispatch to also recurse into IF/WHILE/FOR/FUNC_CALL/E so
// that nested variable accesses inside control-flow bodies are validated
// too, a gap the original dispatch leaves uncovered.
package validator

import (
	"n86c/pkg/ast"
	"n86c/pkg/diag"
	"n86c/pkg/improver"
)

// Validator runs the semantic validation pass over one compilation unit.
type Validator struct {
	tree       *ast.Tree
	defs       map[ast.NodeID]ast.NodeID // VAR_IDENTIFIER use -> V_DEF, from the improver
	structDefs map[string]ast.NodeID
	funcs      map[string]ast.NodeID

	diags diag.Diagnostics
}

// New returns a Validator for tree, consuming the improver's resolved
// VAR_IDENTIFIER definitions.
func New(tree *ast.Tree, imp *improver.Improver) *Validator {
	return &Validator{
		tree:       tree,
		defs:       imp.Defs,
		structDefs: ast.BuildStructIndex(tree),
		funcs:      map[string]ast.NodeID{},
	}
}

// Validate walks the whole tree and returns the accumulated diagnostics.
func (v *Validator) Validate() diag.Diagnostics {
	v.validateBody(v.tree.Root())
	return v.diags
}

func (v *Validator) validatePart(id ast.NodeID) {
	n := v.tree.Node(id)
	if n == nil || n.Removed() {
		return
	}

	switch n.Kind() {
	case ast.KindFunc, ast.KindFuncDef:
		v.validateFunction(id)
	case ast.KindBody:
		v.validateBody(id)
	case ast.KindVDef:
		if _, primitive := ast.PrimitiveSize(ast.VDefDataType(v.tree, id)); primitive {
			v.validateVDef(id)
		} else {
			v.validateStructureDefinition(id)
		}
		if value, ok := ast.VDefValueExpr(v.tree, id); ok {
			v.validatePart(value)
		}
	case ast.KindStructDef:
		if body, ok := ast.StructBody(v.tree, id); ok {
			v.validateStructure(body)
		}
	case ast.KindStruct:
		v.validateStructure(id)
	case ast.KindVarIdent:
		v.validateVarAccess(id)
	case ast.KindAssign:
		v.validateAssignment(id)
	case ast.KindIf:
		v.validateIf(id)
	case ast.KindWhile:
		v.validateConditionLoop(id)
	case ast.KindFor:
		v.validateFor(id)
	case ast.KindFuncCall:
		v.validateFuncCall(id)
	case ast.KindE:
		v.validateExpression(id)
	case ast.KindReturn:
		if value, ok := v.tree.Role(id, "value_branch"); ok {
			v.validatePart(value)
		}
	default:
		v.recurseGeneric(id)
	}
}

func (v *Validator) recurseGeneric(id ast.NodeID) {
	for _, c := range v.tree.Node(id).Children() {
		v.validatePart(c)
	}
}

func (v *Validator) validateBody(id ast.NodeID) {
	for _, c := range v.tree.Node(id).Children() {
		v.validatePart(c)
	}
}

// validateFunction registers the function (reporting a redeclaration as a
// UserError rather than aborting, unlike the original's critical_error) and
// validates its arguments and body.
func (v *Validator) validateFunction(id ast.NodeID) {
	name := v.tree.Node(id).Payload()
	if name != "" {
		if _, exists := v.funcs[name]; exists {
			v.diags.Errorf(diag.Position{}, "the function %q has already been declared", name)
		} else {
			v.funcs[name] = id
		}
	}

	if args, ok := v.tree.Role(id, "arguments_branch"); ok {
		for _, c := range v.tree.Node(args).Children() {
			v.validatePart(c)
		}
	}
	if body, ok := v.tree.Role(id, "body_branch"); ok {
		v.validatePart(body)
	}
}

// validateVDef reports a redeclaration if another V_DEF in the same scope
// already declares the same name.
func (v *Validator) validateVDef(id ast.NodeID) {
	name := ast.VDefName(v.tree, id)
	scope := v.tree.Node(id).Scope()
	for _, sibling := range v.tree.DeclaredVDefs(scope) {
		if sibling == id {
			continue
		}
		if ast.VDefName(v.tree, sibling) == name {
			v.diags.Errorf(diag.Position{}, "the variable %q has been redeclared", name)
			return
		}
	}
}

// validateVarAccess reports an unresolved reference, and for a use site
// that continues through a structure access, walks each hop checking the
// member actually exists on the structure named by the previous hop's type.
func (v *Validator) validateVarAccess(id ast.NodeID) {
	def, ok := v.defs[id]
	if !ok {
		v.diags.Errorf(diag.Position{}, "the variable %q could not be found", ast.VarIdentName(v.tree, id))
		return
	}

	if !ast.VarIdentHasStructureAccess(v.tree, id) {
		return
	}

	tag := ast.VDefDataType(v.tree, def)
	structDef, ok := v.structDefs[tag]
	if !ok {
		// def is a plain variable, not a structure instance; nothing
		// further to validate along this chain.
		return
	}

	access, _ := ast.VarIdentStructureAccess(v.tree, id)
	current, ok := ast.StructAccessNext(v.tree, access)
	for ok {
		name := ast.VarIdentName(v.tree, current)
		member, found := ast.StructMember(v.tree, structDef, name)
		if !found {
			v.diags.Errorf(diag.Position{}, "the variable %q does not exist in structure %q", name, v.tree.Node(structDef).Payload())
			return
		}

		next, hasNext := ast.VarIdentStructureAccess(v.tree, current)
		if !hasNext {
			break
		}
		memberTag := ast.VDefDataType(v.tree, member)
		structDef, ok = v.structDefs[memberTag]
		if !ok {
			v.diags.Errorf(diag.Position{}, "the structure %q does not exist", memberTag)
			return
		}
		current, ok = ast.StructAccessNext(v.tree, next)
	}
}

func (v *Validator) validateAssignment(id ast.NodeID) {
	if target, ok := v.tree.Role(id, "variable_to_assign_branch"); ok {
		v.validateVarAccess(target)
	}
	if value, ok := v.tree.Role(id, "value_branch"); ok {
		v.validatePart(value)
	}
}

// validateStructureDefinition checks that a V_DEF's named type actually
// refers to a declared structure, then applies the ordinary V_DEF checks
// (a STRUCT_DEF-typed variable is still a V_DEF).
func (v *Validator) validateStructureDefinition(id ast.NodeID) {
	tag := ast.VDefDataType(v.tree, id)
	if _, ok := v.structDefs[tag]; !ok {
		v.diags.Errorf(diag.Position{}, "the structure variable has an illegal type of %q", tag)
	}
	v.validateVDef(id)
}

// validateStructure reports a redeclared structure tag and validates its
// member body.
func (v *Validator) validateStructure(id ast.NodeID) {
	// The STRUCT node's defining STRUCT_DEF carries the tag; STRUCT itself
	// is the body scope. structDefs is built once from the whole tree and
	// keeps the last declaration of each tag, so a STRUCT_DEF that is not
	// the indexed one for its tag is a redeclaration.
	if structDef := v.tree.Node(id).Parent(); structDef != ast.NilNode && v.tree.Node(structDef).Kind() == ast.KindStructDef {
		tag := v.tree.Node(structDef).Payload()
		if indexed, ok := v.structDefs[tag]; ok && indexed != structDef {
			v.diags.Errorf(diag.Position{}, "the structure %q has already been declared", tag)
		}
	}
	for _, c := range v.tree.Node(id).Children() {
		v.validatePart(c)
	}
}

func (v *Validator) validateIf(id ast.NodeID) {
	if cond, ok := v.tree.Role(id, "exp_branch"); ok {
		v.validatePart(cond)
	}
	if body, ok := v.tree.Role(id, "body_branch"); ok {
		v.validatePart(body)
	}
	if elseBranch, ok := v.tree.Role(id, "else_branch"); ok {
		v.validatePart(elseBranch)
	}
}

func (v *Validator) validateConditionLoop(id ast.NodeID) {
	if cond, ok := v.tree.Role(id, "exp_branch"); ok {
		v.validatePart(cond)
	}
	if body, ok := v.tree.Role(id, "body_branch"); ok {
		v.validatePart(body)
	}
}

func (v *Validator) validateFor(id ast.NodeID) {
	if init, ok := v.tree.Role(id, "init_branch"); ok {
		v.validatePart(init)
	}
	if cond, ok := v.tree.Role(id, "exp_branch"); ok {
		v.validatePart(cond)
	}
	if incr, ok := v.tree.Role(id, "update_branch"); ok {
		v.validatePart(incr)
	}
	if body, ok := v.tree.Role(id, "body_branch"); ok {
		v.validatePart(body)
	}
}

func (v *Validator) validateFuncCall(id ast.NodeID) {
	for _, c := range v.tree.Node(id).Children() {
		v.validatePart(c)
	}
}

// validateExpression recurses into both operands; there is no shared type
// system to cross-check here (the codegen re-derives operand width from
// each side's own V_DEF at lowering time), matching the original's
// validate_expression, which likewise inspects both children and performs
// no further check.
func (v *Validator) validateExpression(id ast.NodeID) {
	for _, c := range v.tree.Node(id).Children() {
		v.validatePart(c)
	}
}
