package ast

import "testing"

// declareVDef adds `typeName name` (optionally array-indexed) as a V_DEF
// child of scope and returns its node id.
func declareVDef(t *testing.T, tr *Tree, scope NodeID, typeName, name string, dims ...int) NodeID {
	t.Helper()
	vdef := tr.New(KindVDef, "")
	dataType := tr.New(KindKeyword, typeName)
	ident := tr.New(KindVarIdent, name)
	tr.RegisterRole(vdef, "data_type_branch", dataType)
	tr.RegisterRole(vdef, "var_identifier_branch", ident)

	if len(dims) > 0 {
		var head NodeID
		var prev NodeID = NilNode
		for _, d := range dims {
			idx := tr.New(KindArrayIndex, "")
			val := tr.New(KindNumber, itoa(d))
			tr.RegisterRole(idx, "value_branch", val)
			if prev == NilNode {
				head = idx
			} else {
				tr.RegisterRole(prev, "next_array_index_branch", idx)
			}
			prev = idx
		}
		tr.RegisterRole(ident, "array_index_branch", head)
	}

	if err := tr.AddChild(scope, vdef, nil, false); err != nil {
		t.Fatalf("AddChild(vdef %s): %v", name, err)
	}
	return vdef
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

func TestScopeSizeSumsDeclaredVariables(t *testing.T) {
	tr := NewTree()
	body := tr.New(KindBody, "")
	tr.AddChild(tr.Root(), body, nil, false)

	declareVDef(t, tr, body, "uint8", "a")
	declareVDef(t, tr, body, "uint16", "b")
	declareVDef(t, tr, body, "uint8", "buf", 10)

	got := tr.ScopeSize(body, ScopeSizeOptions{})
	want := 1 + 2 + 10
	if got != want {
		t.Fatalf("ScopeSize = %d, want %d", got, want)
	}
}

func TestScopeSizeIncludesSubScopes(t *testing.T) {
	tr := NewTree()
	body := tr.New(KindBody, "")
	tr.AddChild(tr.Root(), body, nil, false)
	declareVDef(t, tr, body, "uint8", "a")

	forNode := tr.New(KindFor, "")
	tr.AddChild(body, forNode, nil, false)
	declareVDef(t, tr, forNode, "uint8", "i")

	withSub := tr.ScopeSize(body, ScopeSizeOptions{IncludeSubScopes: true})
	if withSub != 2 {
		t.Fatalf("ScopeSize with sub-scopes = %d, want 2", withSub)
	}
	withoutSub := tr.ScopeSize(body, ScopeSizeOptions{})
	if withoutSub != 1 {
		t.Fatalf("ScopeSize without sub-scopes = %d, want 1", withoutSub)
	}
}

func TestLookupVDefRecursesToParentScope(t *testing.T) {
	tr := NewTree()
	declareVDef(t, tr, tr.Root(), "uint8", "g")

	body := tr.New(KindBody, "")
	tr.AddChild(tr.Root(), body, nil, false)
	declareVDef(t, tr, body, "uint8", "local")

	if _, ok := tr.LookupVDef(body, "g", false); ok {
		t.Fatal("expected lookup without parent recursion to fail")
	}
	found, ok := tr.LookupVDef(body, "g", true)
	if !ok {
		t.Fatal("expected recursive lookup to find global 'g'")
	}
	if VDefName(tr, found) != "g" {
		t.Fatalf("found wrong variable: %s", VDefName(tr, found))
	}
}

func TestStructMemberOffsetNoPadding(t *testing.T) {
	tr := NewTree()
	structDef := tr.New(KindStructDef, "P")
	body := tr.New(KindStruct, "")
	tr.RegisterRole(structDef, "struct_body_branch", body)
	tr.AddChild(tr.Root(), structDef, nil, false)

	declareVDef(t, tr, body, "uint8", "a")
	declareVDef(t, tr, body, "uint16", "b")

	idx := BuildStructIndex(tr)
	offA, ok := StructMemberOffset(tr, structDef, "a", idx)
	if !ok || offA != 0 {
		t.Fatalf("offset(a) = (%d, %v), want (0, true)", offA, ok)
	}
	offB, ok := StructMemberOffset(tr, structDef, "b", idx)
	if !ok || offB != 1 {
		t.Fatalf("offset(b) = (%d, %v), want (1, true)", offB, ok)
	}
	if StructSize(tr, structDef) != 3 {
		t.Fatalf("StructSize = %d, want 3", StructSize(tr, structDef))
	}
}

func TestVDefTotalSizeWithStructureMember(t *testing.T) {
	tr := NewTree()
	structDef := tr.New(KindStructDef, "P")
	body := tr.New(KindStruct, "")
	tr.RegisterRole(structDef, "struct_body_branch", body)
	tr.AddChild(tr.Root(), structDef, nil, false)
	declareVDef(t, tr, body, "uint8", "a")
	declareVDef(t, tr, body, "uint16", "b")

	pVar := declareVDef(t, tr, tr.Root(), "P", "p")
	if got := VDefTotalSize(tr, pVar); got != 3 {
		t.Fatalf("VDefTotalSize(p) = %d, want 3", got)
	}
}
