package ast

// AddChild appends (or inserts, if before != nil) child as a child of
// parent, updating the owning child list and propagating parent/root/scope
// to the child's whole subtree. If force is false and child already has a
// parent, AddChild returns a TreeStructureError instead of silently
// re-parenting it.
func (t *Tree) AddChild(parent, child NodeID, before *NodeID, force bool) error {
	p, c := t.mustNode(parent), t.mustNode(child)
	if c.parent != NilNode && !force {
		return newTreeErr(c.kind, "already has a parent, pass force=true to re-parent")
	}

	if before == nil {
		p.children = append(p.children, child)
	} else {
		idx := indexOf(p.children, *before)
		if idx < 0 {
			return newTreeErr(p.kind, "AddChild: 'before' node %d is not a child of %d", *before, parent)
		}
		p.children = append(p.children[:idx:idx], append([]NodeID{child}, p.children[idx:]...)...)
	}

	c.parent = parent
	t.propagateRootScope(child, p.root, t.enclosingScopeFor(parent))
	return nil
}

// enclosingScopeFor returns the scope a new direct child of id should see:
// id itself if id introduces a scope, else id's own scope back-edge.
func (t *Tree) enclosingScopeFor(id NodeID) NodeID {
	n := t.mustNode(id)
	if IsScopeKind(n.kind) {
		return id
	}
	return n.scope
}

// propagateRootScope recursively sets root/scope on id and its whole
// subtree. scope is the scope the node itself resolves into (not what it
// introduces); nodes that introduce their own scope instead propagate
// themselves as the scope to their children.
func (t *Tree) propagateRootScope(id, root, scope NodeID) {
	n := t.mustNode(id)
	n.root, n.scope = root, scope

	childScope := scope
	if IsScopeKind(n.kind) {
		childScope = id
	}
	for _, c := range n.children {
		t.propagateRootScope(c, root, childScope)
	}
}

// SetRoot propagates a new root back-edge to id and, if recurse, its whole
// subtree.
func (t *Tree) SetRoot(id, root NodeID, recurse bool) {
	n := t.mustNode(id)
	n.root = root
	if recurse {
		for _, c := range n.children {
			t.SetRoot(c, root, true)
		}
	}
}

// SetScope propagates a new enclosing-scope back-edge to id and, if
// recurse, its whole subtree (stopping at nested scope-introducing nodes,
// which keep resolving to themselves).
func (t *Tree) SetScope(id, scope NodeID, recurse bool) {
	n := t.mustNode(id)
	n.scope = scope
	if !recurse {
		return
	}
	childScope := scope
	if IsScopeKind(n.kind) {
		childScope = id
	}
	for _, c := range n.children {
		t.SetScope(c, childScope, true)
	}
}

func indexOf(list []NodeID, id NodeID) int {
	for i, v := range list {
		if v == id {
			return i
		}
	}
	return -1
}

// ReplaceChild swaps old for new in parent's child list (and role map, if
// old occupied a named role), detaching old and re-parenting new.
func (t *Tree) ReplaceChild(parent, old, new NodeID) error {
	p := t.mustNode(parent)
	idx := indexOf(p.children, old)
	if idx < 0 {
		return newTreeErr(p.kind, "ReplaceChild: %d is not a child of %d", old, parent)
	}
	p.children[idx] = new

	for role, id := range p.roles {
		if id == old {
			p.roles[role] = new
		}
	}

	oldNode := t.mustNode(old)
	oldNode.parent, oldNode.replacement = NilNode, new

	newNode := t.mustNode(new)
	newNode.parent = parent
	t.propagateRootScope(new, p.root, t.enclosingScopeFor(parent))
	return nil
}

// ReplaceSelf replaces id with new in id's parent, propagating root/scope
// to new's subtree. After this call id is unreachable from root and
// id.Replacement() == new.
func (t *Tree) ReplaceSelf(id, new NodeID) error {
	n := t.mustNode(id)
	if n.parent == NilNode {
		return newTreeErr(n.kind, "ReplaceSelf: node has no parent (is it the root?)")
	}
	return t.ReplaceChild(n.parent, id, new)
}

// RemoveChild detaches child from parent's child list and role map. The
// removed flag is set and the parent back-edge is cleared; the root and
// scope back-edges are left as they were.
func (t *Tree) RemoveChild(parent, child NodeID) error {
	p := t.mustNode(parent)
	idx := indexOf(p.children, child)
	if idx < 0 {
		return newTreeErr(p.kind, "RemoveChild: %d is not a child of %d", child, parent)
	}
	p.children = append(p.children[:idx], p.children[idx+1:]...)
	for role, id := range p.roles {
		if id == child {
			delete(p.roles, role)
		}
	}

	c := t.mustNode(child)
	c.parent, c.removed = NilNode, true
	return nil
}

// RemoveSelf detaches id from its parent. A root node cannot remove itself.
func (t *Tree) RemoveSelf(id NodeID) error {
	n := t.mustNode(id)
	if n.parent == NilNode {
		return newTreeErr(n.kind, "RemoveSelf: node has no parent (is it the root?)")
	}
	return t.RemoveChild(n.parent, id)
}

// ReplaceWithChildren splices id's children directly into id's parent, in
// id's former position, then removes id. Used by the preprocessor to
// collapse a MACRO_IFDEF into whichever branch survived.
func (t *Tree) ReplaceWithChildren(id NodeID) error {
	n := t.mustNode(id)
	if n.parent == NilNode {
		return newTreeErr(n.kind, "ReplaceWithChildren: node has no parent")
	}
	parent := n.parent
	p := t.mustNode(parent)
	idx := indexOf(p.children, id)
	if idx < 0 {
		return newTreeErr(p.kind, "ReplaceWithChildren: %d is not a child of %d", id, parent)
	}

	kids := append([]NodeID{}, n.children...)
	newChildren := append([]NodeID{}, p.children[:idx]...)
	newChildren = append(newChildren, kids...)
	newChildren = append(newChildren, p.children[idx+1:]...)
	p.children = newChildren

	for role, rid := range p.roles {
		if rid == id {
			delete(p.roles, role)
		}
	}

	scope := t.enclosingScopeFor(parent)
	for _, k := range kids {
		kn := t.mustNode(k)
		kn.parent = parent
		t.propagateRootScope(k, p.root, scope)
	}

	n.parent, n.removed = NilNode, true
	return nil
}

// RegisterRole stores child under the given role name on parent, adding it
// to the ordered child list if it is not already present there.
func (t *Tree) RegisterRole(parent NodeID, role string, child NodeID) error {
	p := t.mustNode(parent)
	if p.roles == nil {
		p.roles = map[string]NodeID{}
	}
	p.roles[role] = child

	if indexOf(p.children, child) < 0 {
		return t.AddChild(parent, child, nil, true)
	}
	c := t.mustNode(child)
	c.parent = parent
	return nil
}

// Role looks up a named child by role, O(1).
func (t *Tree) Role(parent NodeID, role string) (NodeID, bool) {
	p := t.mustNode(parent)
	id, ok := p.roles[role]
	return id, ok
}

// IterateChildren calls fn for each direct child of id, stopping early if
// fn returns false.
func (t *Tree) IterateChildren(id NodeID, fn func(NodeID) bool) {
	for _, c := range t.mustNode(id).children {
		if !fn(c) {
			return
		}
	}
}

// CountChildren counts direct children, optionally filtered by kind and/or
// predicate (either may be the zero value to mean "no filter").
func (t *Tree) CountChildren(id NodeID, kind Kind, predicate func(NodeID) bool) int {
	count := 0
	for _, c := range t.mustNode(id).children {
		if kind != "" && t.mustNode(c).kind != kind {
			continue
		}
		if predicate != nil && !predicate(c) {
			continue
		}
		count++
	}
	return count
}

// GetFirstChildOfKind returns the first direct child with the given kind.
func (t *Tree) GetFirstChildOfKind(id NodeID, kind Kind) (NodeID, bool) {
	for _, c := range t.mustNode(id).children {
		if t.mustNode(c).kind == kind {
			return c, true
		}
	}
	return NilNode, false
}

// HasChildOfKind reports whether id has a direct child with the given kind.
func (t *Tree) HasChildOfKind(id NodeID, kind Kind) bool {
	_, ok := t.GetFirstChildOfKind(id, kind)
	return ok
}

// LookUpUntilParentKind walks the parent chain starting at id (exclusive)
// and returns the first ancestor whose kind matches.
func (t *Tree) LookUpUntilParentKind(id NodeID, kind Kind) (NodeID, bool) {
	cur := t.mustNode(id).parent
	for cur != NilNode {
		n := t.mustNode(cur)
		if n.kind == kind {
			return cur, true
		}
		cur = n.parent
	}
	return NilNode, false
}

// LookDownFirstOfKind performs a pre-order DFS from id (exclusive) and
// returns the first descendant of the given kind.
func (t *Tree) LookDownFirstOfKind(id NodeID, kind Kind) (NodeID, bool) {
	for _, c := range t.mustNode(id).children {
		if t.mustNode(c).kind == kind {
			return c, true
		}
		if found, ok := t.LookDownFirstOfKind(c, kind); ok {
			return found, true
		}
	}
	return NilNode, false
}

// LookDownLastOfKind performs a pre-order DFS from id (exclusive) and
// returns the last descendant of the given kind (by DFS visitation order).
func (t *Tree) LookDownLastOfKind(id NodeID, kind Kind) (NodeID, bool) {
	var last NodeID = NilNode
	found := false
	var walk func(NodeID)
	walk = func(cur NodeID) {
		for _, c := range t.mustNode(cur).children {
			if t.mustNode(c).kind == kind {
				last, found = c, true
			}
			walk(c)
		}
	}
	walk(id)
	return last, found
}

// Clone deep-copies id's subtree into fresh arena slots, preserving kinds,
// payloads, attrs and role registrations. The clone is detached (no
// parent/root/scope) until the caller attaches it with AddChild.
func (t *Tree) Clone(id NodeID) NodeID {
	n := t.mustNode(id)
	clone := t.alloc(n.kind, n.payload)
	for k, v := range n.attrs {
		t.mustNode(clone).SetAttr(k, v)
	}

	childClones := make([]NodeID, len(n.children))
	for i, c := range n.children {
		childClones[i] = t.Clone(c)
	}
	cn := t.mustNode(clone)
	cn.children = childClones
	for _, cc := range childClones {
		t.mustNode(cc).parent = clone
	}

	if len(n.roles) > 0 {
		cn.roles = map[string]NodeID{}
		for role, origChild := range n.roles {
			idx := indexOf(n.children, origChild)
			if idx >= 0 {
				cn.roles[role] = childClones[idx]
			}
		}
	}
	return clone
}

// Rebuild collapses degenerate forms for the given node's kind in place,
// per spec: a binary-expression (E) node with exactly one child is replaced
// by that child; with zero children it removes itself.
func (t *Tree) Rebuild(id NodeID) error {
	n := t.mustNode(id)
	switch n.kind {
	case KindE:
		switch len(n.children) {
		case 0:
			return t.RemoveSelf(id)
		case 1:
			return t.ReplaceSelf(id, n.children[0])
		}
	}
	return nil
}

// ValidityCheck enforces per-kind structural invariants, returning a
// TreeStructureError describing the first violation found.
func (t *Tree) ValidityCheck(id NodeID) error {
	n := t.mustNode(id)
	switch n.kind {
	case KindE:
		if len(n.children) != 2 {
			return newTreeErr(n.kind, "E node must have exactly two children, has %d", len(n.children))
		}
	case KindVDef:
		if _, ok := t.Role(id, "data_type_branch"); !ok {
			return newTreeErr(n.kind, "V_DEF missing data_type_branch")
		}
		if _, ok := t.Role(id, "var_identifier_branch"); !ok {
			return newTreeErr(n.kind, "V_DEF missing var_identifier_branch")
		}
	case KindStructDef:
		if n.payload == "" {
			return newTreeErr(n.kind, "STRUCT_DEF missing structure tag")
		}
	}
	return nil
}
