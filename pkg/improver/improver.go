// Package improver implements the tree-improver pass of spec.md §4.2: a
// post-parse walk that attaches definition references to VAR_IDENTIFIER use
// sites, canonicalizes expression nodes, tags variables with their class
// (global/function-local/function-argument), and propagates structure
// context through nested STRUCT_DEF bodies.
//
// Grounded on the teacher's jack.Lowerer (pkg/jack/lowering.go): a
// stack-based DFS walk that pushes/pops scope context on entry/exit to each
// scope-introducing construct, recursing statement by statement.
package improver

import (
	"fmt"

	"n86c/pkg/ast"
	"n86c/pkg/diag"
)

// Improver runs the tree-improver pass over one compilation unit.
type Improver struct {
	tree        *ast.Tree
	structStack []ast.NodeID // STRUCT_DEF nodes currently entered, innermost last
	structDefs  map[string]ast.NodeID

	// Defs maps every resolved VAR_IDENTIFIER use site to its defining
	// V_DEF. Populated by Run; consumed by the resolver and codegen so
	// they never re-walk scopes themselves.
	Defs map[ast.NodeID]ast.NodeID

	diags diag.Diagnostics
}

// New returns an Improver ready to walk tree.
func New(tree *ast.Tree) *Improver {
	return &Improver{
		tree:       tree,
		structDefs: ast.BuildStructIndex(tree),
		Defs:       map[ast.NodeID]ast.NodeID{},
	}
}

// Run walks the whole tree from root and returns accumulated diagnostics.
// An InternalInvariantViolation (malformed tree) is fatal and stops the
// walk immediately; unresolved variable references are left unresolved in
// Defs (the validator reports them as UserErrors) so the improver never
// itself raises a UserError.
func (imp *Improver) Run() diag.Diagnostics {
	imp.tagScopeClass(imp.tree.Root(), ast.ClassGlobal)
	imp.walk(imp.tree.Root())
	return imp.diags
}

func (imp *Improver) walk(id ast.NodeID) {
	if imp.diags.HasFatal() {
		return
	}
	n := imp.tree.Node(id)
	if n == nil || n.Removed() {
		return
	}

	switch n.Kind() {
	case ast.KindFunc, ast.KindFuncDef:
		imp.handleFunc(id)
		return // handleFunc recurses itself with the right tagging
	case ast.KindStructDef:
		imp.handleStructDef(id)
		return
	case ast.KindVDef:
		// Only the initializer is a use-site walk; the declared name
		// itself is a binding, not a reference to resolve.
		if value, ok := ast.VDefValueExpr(imp.tree, id); ok {
			imp.walk(value)
		}
		return
	case ast.KindVarIdent:
		imp.handleVarIdent(id)
		return
	case ast.KindE:
		imp.rebuildChildrenFirst(id)
		return
	}

	imp.recurseChildren(id)
}

func (imp *Improver) recurseChildren(id ast.NodeID) {
	for _, c := range append([]ast.NodeID{}, imp.tree.Node(id).Children()...) {
		imp.walk(c)
	}
}

// rebuildChildrenFirst walks an E node's children before attempting to
// collapse the node itself, so a nested E that degenerates to a single
// child is canonicalized bottom-up.
func (imp *Improver) rebuildChildrenFirst(id ast.NodeID) {
	imp.recurseChildren(id)
	if imp.tree.Node(id).Removed() {
		return
	}
	if err := imp.tree.Rebuild(id); err != nil {
		imp.diags.Fatalf(diag.Position{}, "improver: rebuild failed: %s", err)
	}
}

// handleFunc tags every V_DEF found in the function's argument list as
// function-argument and every V_DEF in its body as function-local, then
// recurses into both.
func (imp *Improver) handleFunc(id ast.NodeID) {
	if argsRoot, ok := imp.tree.Role(id, "arguments_branch"); ok {
		imp.tagScopeClass(argsRoot, ast.ClassArgument)
		imp.recurseChildren(argsRoot)
	}

	if body, ok := imp.tree.Role(id, "body_branch"); ok {
		imp.tagScopeClass(body, ast.ClassLocal)
		imp.walk(body)
	}
}

func (imp *Improver) tagScopeClass(scope ast.NodeID, class string) {
	for _, vdef := range imp.tree.DeclaredVDefs(scope) {
		imp.tree.Node(vdef).SetAttr("var_class", class)
	}
}

// handleStructDef pushes the struct onto the context stack for its body so
// nested member references resolve against it before falling through to
// global lookup (spec.md §4.2).
func (imp *Improver) handleStructDef(id ast.NodeID) {
	imp.structStack = append(imp.structStack, id)
	defer func() { imp.structStack = imp.structStack[:len(imp.structStack)-1] }()

	if body, ok := ast.StructBody(imp.tree, id); ok {
		imp.recurseChildren(body)
	}
}

// handleVarIdent resolves the use site's defining V_DEF by walking up the
// lexical scope chain from the use site's own enclosing scope (inside a
// STRUCT_DEF body that chain starts at the body's members), falling back
// to the innermost entered STRUCT_DEF's body when the chain has no match.
// It then recurses
// into any array-index expressions and further structure-access hops.
func (imp *Improver) handleVarIdent(id ast.NodeID) {
	name := ast.VarIdentName(imp.tree, id)
	scope := imp.tree.Node(id).Scope()

	if vdef, ok := imp.tree.LookupVDef(scope, name, true); ok {
		imp.Defs[id] = vdef
	} else if len(imp.structStack) > 0 {
		top := imp.structStack[len(imp.structStack)-1]
		if body, ok := ast.StructBody(imp.tree, top); ok {
			if vdef, ok := imp.tree.LookupVDef(body, name, false); ok {
				imp.Defs[id] = vdef
			}
		}
	}

	for _, idx := range ast.ArrayIndexChain(imp.tree, id) {
		if expr, ok := ast.ArrayIndexExpr(imp.tree, idx); ok {
			imp.walk(expr)
		}
	}

	if access, ok := ast.VarIdentStructureAccess(imp.tree, id); ok {
		if next, ok := ast.StructAccessNext(imp.tree, access); ok {
			imp.handleVarIdentInStruct(next, ast.VarIdentName(imp.tree, id))
		}
	}
}

// handleVarIdentInStruct resolves a member reference (the right-hand side
// of `.`/`->`) against the structure type of the variable that was just
// resolved, rather than the lexical scope chain.
func (imp *Improver) handleVarIdentInStruct(member ast.NodeID, ownerName string) {
	ownerVDef, ok := imp.findDefByName(imp.tree.Node(member).Scope(), ownerName)
	if !ok {
		imp.recurseChildren(member)
		return
	}

	tag := ast.VDefDataType(imp.tree, ownerVDef)
	structDef, ok := imp.structDefs[tag]
	if !ok {
		imp.recurseChildren(member)
		return
	}

	name := ast.VarIdentName(imp.tree, member)
	if vdef, ok := ast.StructMember(imp.tree, structDef, name); ok {
		imp.Defs[member] = vdef
	}

	for _, idx := range ast.ArrayIndexChain(imp.tree, member) {
		if expr, ok := ast.ArrayIndexExpr(imp.tree, idx); ok {
			imp.walk(expr)
		}
	}
	if access, ok := ast.VarIdentStructureAccess(imp.tree, member); ok {
		if next, ok := ast.StructAccessNext(imp.tree, access); ok {
			imp.handleVarIdentInStruct(next, name)
		}
	}
}

func (imp *Improver) findDefByName(scope ast.NodeID, name string) (ast.NodeID, bool) {
	if vdef, ok := imp.tree.LookupVDef(scope, name, true); ok {
		return vdef, true
	}
	if len(imp.structStack) > 0 {
		top := imp.structStack[len(imp.structStack)-1]
		if body, ok := ast.StructBody(imp.tree, top); ok {
			return imp.tree.LookupVDef(body, name, false)
		}
	}
	return ast.NilNode, false
}

// DefOf is a small convenience wrapper for callers (validator, resolver)
// that hold an *Improver result and want a descriptive miss error.
func (imp *Improver) DefOf(use ast.NodeID) (ast.NodeID, error) {
	vdef, ok := imp.Defs[use]
	if !ok {
		return ast.NilNode, fmt.Errorf("variable %q has no resolved definition", ast.VarIdentName(imp.tree, use))
	}
	return vdef, nil
}
