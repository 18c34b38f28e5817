package ast

// ScopeSizeOptions controls how Tree.ScopeSize walks nested scopes.
type ScopeSizeOptions struct {
	IncludeSubScopes    bool // recurse into nested FOR bodies declared in this scope
	IncludeParentScopes bool // add the enclosing scope's size too (frame-relative offsets)
}

// DeclaredVDefs returns the V_DEF children declared directly in the given
// scope node, in declaration order.
func (t *Tree) DeclaredVDefs(scope NodeID) []NodeID {
	var out []NodeID
	t.IterateChildren(scope, func(c NodeID) bool {
		if t.mustNode(c).kind == KindVDef {
			out = append(out, c)
		}
		return true
	})
	return out
}

// ScopeSize sums the declared sizes of every V_DEF directly in scope,
// optionally recursing into nested FOR sub-scopes and/or the enclosing
// scope, per spec.md §4.4 frame-layout rules.
func (t *Tree) ScopeSize(scope NodeID, opts ScopeSizeOptions) int {
	size := 0
	t.IterateChildren(scope, func(c NodeID) bool {
		cn := t.mustNode(c)
		if cn.kind == KindVDef {
			size += VDefTotalSize(t, c)
			return true
		}
		if opts.IncludeSubScopes && cn.kind == KindFor {
			size += t.ScopeSize(c, opts)
		}
		return true
	})

	if opts.IncludeParentScopes {
		if parentScope, ok := t.EnclosingScopeOf(scope); ok {
			size += t.ScopeSize(parentScope, opts)
		}
	}
	return size
}

// VDefScopeOffset returns the sum of the sizes of every V_DEF declared
// before vdef within vdef's own scope: locals grow below the frame pointer
// and arguments above it in declaration order (spec.md §4.4 rules 2/3), the
// same "sum of preceding sizes" rule StructMemberOffset applies to member
// layout.
func VDefScopeOffset(t *Tree, vdef NodeID, structDefs map[string]NodeID) int {
	scope := t.mustNode(vdef).scope
	offset := 0
	for _, sibling := range t.DeclaredVDefs(scope) {
		if sibling == vdef {
			break
		}
		offset += VDefTotalSizeWith(t, sibling, structDefs)
	}
	return offset
}

// EnclosingScopeOf returns the scope enclosing the given scope node (i.e.
// the scope of the scope node's parent), or false at the root.
func (t *Tree) EnclosingScopeOf(scope NodeID) (NodeID, bool) {
	n := t.mustNode(scope)
	if n.parent == NilNode {
		return NilNode, false
	}
	parentScope := t.mustNode(n.parent).scope
	if parentScope == NilNode {
		return NilNode, false
	}
	return parentScope, true
}

// LookupVDef searches scope for a V_DEF named name, optionally recursing
// into the enclosing scope (lookupParent) when not found locally; with
// lookupParent, a function body's lookup also covers the function's
// arguments before the enclosing scope. It does
// not follow structure-access chains; callers resolving a full
// VAR_IDENTIFIER access chain should use ResolveStructMember for each
// subsequent hop (see resolver package).
func (t *Tree) LookupVDef(scope NodeID, name string, lookupParent bool) (NodeID, bool) {
	for _, v := range t.DeclaredVDefs(scope) {
		if VDefName(t, v) == name {
			return v, true
		}
	}

	if !lookupParent {
		return NilNode, false
	}
	// A function body also sees its function's arguments, which are
	// declared in the sibling arguments_branch scope.
	if parent := t.mustNode(scope).parent; parent != NilNode {
		if pk := t.mustNode(parent).kind; pk == KindFunc || pk == KindFuncDef {
			if args, ok := t.Role(parent, "arguments_branch"); ok && args != scope {
				if v, ok := t.LookupVDef(args, name, false); ok {
					return v, true
				}
			}
		}
	}
	parentScope, ok := t.EnclosingScopeOf(scope)
	if !ok {
		return NilNode, false
	}
	return t.LookupVDef(parentScope, name, true)
}
