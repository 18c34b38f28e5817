package ast

import "strconv"

// Variable-class tags for V_DEF.Attr("var_class").
const (
	ClassGlobal   = "global"
	ClassLocal    = "function-local"
	ClassArgument = "function-argument"
)

// PrimitiveSize returns the byte size of a primitive data type name, or
// (0, false) if name is not one of int8/uint8/int16/uint16.
func PrimitiveSize(name string) (int, bool) {
	switch name {
	case "int8", "uint8":
		return 1, true
	case "int16", "uint16":
		return 2, true
	default:
		return 0, false
	}
}

// PrimitiveSigned reports whether a primitive data type name is signed.
func PrimitiveSigned(name string) bool {
	return name == "int8" || name == "int16"
}

// VDefDataType returns the V_DEF's declared type name (a primitive name or
// a structure tag), read off its data_type_branch role child's payload.
func VDefDataType(t *Tree, vdef NodeID) string {
	dt, ok := t.Role(vdef, "data_type_branch")
	if !ok {
		return ""
	}
	return t.Node(dt).Payload()
}

// VDefIdentBranch returns the V_DEF's var_identifier_branch role child.
func VDefIdentBranch(t *Tree, vdef NodeID) (NodeID, bool) {
	return t.Role(vdef, "var_identifier_branch")
}

// VDefName returns the variable's declared name.
func VDefName(t *Tree, vdef NodeID) string {
	ident, ok := VDefIdentBranch(t, vdef)
	if !ok {
		return ""
	}
	return t.Node(ident).Payload()
}

// VDefValueExpr returns the V_DEF's optional initializer expression.
func VDefValueExpr(t *Tree, vdef NodeID) (NodeID, bool) {
	return t.Role(vdef, "value_exp_branch")
}

// VDefIsPointer reports whether the V_DEF was declared with a pointer
// declarator, and VDefPointerDepth returns how many levels deep (e.g. `**p`
// has depth 2).
func VDefIsPointer(t *Tree, vdef NodeID) bool {
	v, _ := t.Node(vdef).Attr("pointer")
	return v == "true"
}

func VDefPointerDepth(t *Tree, vdef NodeID) int {
	v, ok := t.Node(vdef).Attr("pointer_depth")
	if !ok {
		return 0
	}
	depth, _ := strconv.Atoi(v)
	return depth
}

// VDefClass returns the variable-class tag (global/function-local/
// function-argument), set by the tree improver.
func VDefClass(t *Tree, vdef NodeID) string {
	v, _ := t.Node(vdef).Attr("var_class")
	return v
}

// VDefArrayDims returns the V_DEF's static array-index chain, evaluated as
// integers. Per spec.md §4.3/VDEFBranch, array sizes on a declaration are
// guaranteed to be integer literals.
func VDefArrayDims(t *Tree, vdef NodeID) []int {
	ident, ok := VDefIdentBranch(t, vdef)
	if !ok {
		return nil
	}
	root, ok := t.Role(ident, "array_index_branch")
	if !ok {
		return nil
	}

	var dims []int
	cur := root
	for {
		n := t.Node(cur)
		if val, ok := t.Role(cur, "value_branch"); ok {
			if i, err := strconv.Atoi(t.Node(val).Payload()); err == nil {
				dims = append(dims, i)
			}
		}
		next, ok := t.Role(cur, "next_array_index_branch")
		if !ok {
			break
		}
		cur = next
		_ = n
	}
	return dims
}

// VDefElementSize returns the size in bytes of one element of the V_DEF's
// declared type (ignoring any array dimensions), resolving structure tags
// against structDefs (name -> STRUCT_DEF node id, typically built once per
// compilation by indexing the ROOT's direct children).
func VDefElementSize(t *Tree, vdef NodeID, structDefs map[string]NodeID) int {
	if VDefIsPointer(t, vdef) {
		return 2 // pointers are always word-sized regardless of pointee type
	}

	dataType := VDefDataType(t, vdef)
	if size, ok := PrimitiveSize(dataType); ok {
		return size
	}

	if def, ok := structDefs[dataType]; ok {
		return StructSize(t, def)
	}
	return 0
}

// VDefTotalSize is VDefElementSize times the product of the declared array
// dimensions (1 if the variable is not an array).
func VDefTotalSize(t *Tree, vdef NodeID) int {
	return vDefTotalSizeWith(t, vdef, globalStructIndex(t))
}

// VDefTotalSizeWith is VDefTotalSize but with an explicit, pre-built
// structDefs index (avoids re-scanning root for every call site, e.g. in
// codegen's hot loop over every variable in a function).
func VDefTotalSizeWith(t *Tree, vdef NodeID, structDefs map[string]NodeID) int {
	return vDefTotalSizeWith(t, vdef, structDefs)
}

func vDefTotalSizeWith(t *Tree, vdef NodeID, structDefs map[string]NodeID) int {
	size := VDefElementSize(t, vdef, structDefs)
	for _, dim := range VDefArrayDims(t, vdef) {
		size *= dim
	}
	return size
}

// VDefSigned reports whether the V_DEF's declared primitive type is signed.
// Pointers and structures are treated as unsigned.
func VDefSigned(t *Tree, vdef NodeID) bool {
	if VDefIsPointer(t, vdef) {
		return false
	}
	return PrimitiveSigned(VDefDataType(t, vdef))
}

// globalStructIndex scans the tree root's direct children for STRUCT_DEF
// declarations and indexes them by tag. Exported callers that already have
// an index (codegen/resolver keep one per compilation) should prefer
// VDefTotalSizeWith / VDefElementSize with that index instead of paying for
// a fresh scan.
func globalStructIndex(t *Tree) map[string]NodeID {
	idx := map[string]NodeID{}
	t.IterateChildren(t.Root(), func(c NodeID) bool {
		if t.Node(c).Kind() == KindStructDef {
			idx[t.Node(c).Payload()] = c
		}
		return true
	})
	return idx
}

// BuildStructIndex is the exported form of globalStructIndex, used by
// callers (validator, resolver, codegen) that want to build the index once
// per compilation.
func BuildStructIndex(t *Tree) map[string]NodeID { return globalStructIndex(t) }
