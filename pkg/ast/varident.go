package ast

// VarIdentName returns a VAR_IDENTIFIER use site's referenced name.
func VarIdentName(t *Tree, use NodeID) string {
	return t.Node(use).Payload()
}

// VarIdentArrayIndexRoot returns the head of the use site's array-index
// chain, if it was indexed (e.g. `buf[i][j]`).
func VarIdentArrayIndexRoot(t *Tree, use NodeID) (NodeID, bool) {
	return t.Role(use, "array_index_branch")
}

// ArrayIndexExpr returns the index expression of a single ARRAY_INDEX node.
func ArrayIndexExpr(t *Tree, idx NodeID) (NodeID, bool) {
	return t.Role(idx, "value_branch")
}

// ArrayIndexNext returns the next ARRAY_INDEX node in a multi-dimensional
// chain (e.g. the `[j]` following `[i]`).
func ArrayIndexNext(t *Tree, idx NodeID) (NodeID, bool) {
	return t.Role(idx, "next_array_index_branch")
}

// ArrayIndexChain flattens a use site's array-index chain into an ordered
// slice of ARRAY_INDEX nodes.
func ArrayIndexChain(t *Tree, use NodeID) []NodeID {
	root, ok := VarIdentArrayIndexRoot(t, use)
	if !ok {
		return nil
	}
	var chain []NodeID
	cur := root
	for {
		chain = append(chain, cur)
		next, ok := ArrayIndexNext(t, cur)
		if !ok {
			break
		}
		cur = next
	}
	return chain
}

// ArrayIndexIsStatic reports whether an index expression is a single
// literal `number` node (and therefore resolvable at compile time).
func ArrayIndexIsStatic(t *Tree, idx NodeID) bool {
	expr, ok := ArrayIndexExpr(t, idx)
	if !ok {
		return false
	}
	return t.Node(expr).Kind() == KindNumber
}

// VarIdentHasStructureAccess reports whether a use site continues into a
// structure member access (`.` or `->`).
func VarIdentHasStructureAccess(t *Tree, use NodeID) bool {
	_, ok := t.Role(use, "structure_access_branch")
	return ok
}

// VarIdentStructureAccess returns the STRUCT_ACCESS node following a use
// site, if any.
func VarIdentStructureAccess(t *Tree, use NodeID) (NodeID, bool) {
	return t.Role(use, "structure_access_branch")
}

// StructAccessThroughPointer reports whether this structure-access hop
// dereferences a pointer-typed structure (`->`) rather than accessing a
// value directly (`.`).
func StructAccessThroughPointer(t *Tree, access NodeID) bool {
	v, _ := t.Node(access).Attr("through_pointer")
	return v == "true"
}

// StructAccessNext returns the nested VAR_IDENTIFIER naming the accessed
// member.
func StructAccessNext(t *Tree, access NodeID) (NodeID, bool) {
	return t.Role(access, "next_var_identifier_branch")
}

// VarIdentIsAlone reports whether a use site is a bare variable reference:
// no array indices, no structure-access chain.
func VarIdentIsAlone(t *Tree, use NodeID) bool {
	_, hasIndex := VarIdentArrayIndexRoot(t, use)
	_, hasAccess := VarIdentStructureAccess(t, use)
	return !hasIndex && !hasAccess
}
