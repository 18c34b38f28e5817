package ast

// StructBody returns the STRUCT (scope-introducing) body node of a
// STRUCT_DEF declaration, holding its member V_DEFs in declaration order.
func StructBody(t *Tree, structDef NodeID) (NodeID, bool) {
	return t.Role(structDef, "struct_body_branch")
}

// StructSize returns a structure's total memory footprint: its members
// laid out in declaration order with no padding.
func StructSize(t *Tree, structDef NodeID) int {
	body, ok := StructBody(t, structDef)
	if !ok {
		return 0
	}
	return t.ScopeSize(body, ScopeSizeOptions{})
}

// StructMember looks up a member V_DEF by name.
func StructMember(t *Tree, structDef NodeID, name string) (NodeID, bool) {
	body, ok := StructBody(t, structDef)
	if !ok {
		return NilNode, false
	}
	return t.LookupVDef(body, name, false)
}

// StructMemberOffset returns the byte offset of a named member: the sum of
// the sizes of every member declared before it.
func StructMemberOffset(t *Tree, structDef NodeID, name string, structDefs map[string]NodeID) (int, bool) {
	body, ok := StructBody(t, structDef)
	if !ok {
		return 0, false
	}

	offset := 0
	found := false
	t.IterateChildren(body, func(c NodeID) bool {
		if t.Node(c).Kind() != KindVDef {
			return true
		}
		if VDefName(t, c) == name {
			found = true
			return false
		}
		offset += VDefTotalSizeWith(t, c, structDefs)
		return true
	})
	return offset, found
}
