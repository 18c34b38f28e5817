package codegen

import (
	"testing"

	"n86c/pkg/asm86"
	"n86c/pkg/ast"
	"n86c/pkg/improver"
)

func declareVDef(t *testing.T, tr *ast.Tree, scope ast.NodeID, typeName, name string) ast.NodeID {
	t.Helper()
	vdef := tr.New(ast.KindVDef, "")
	dataType := tr.New(ast.KindKeyword, typeName)
	ident := tr.New(ast.KindVarIdent, name)
	tr.RegisterRole(vdef, "data_type_branch", dataType)
	tr.RegisterRole(vdef, "var_identifier_branch", ident)
	if err := tr.AddChild(scope, vdef, nil, false); err != nil {
		t.Fatalf("AddChild(vdef %s): %v", name, err)
	}
	return vdef
}

func useIdent(t *testing.T, tr *ast.Tree, parent ast.NodeID, name string) ast.NodeID {
	t.Helper()
	use := tr.New(ast.KindVarIdent, name)
	if err := tr.AddChild(parent, use, nil, false); err != nil {
		t.Fatalf("AddChild(use %s): %v", name, err)
	}
	return use
}

func generatorFor(t *testing.T, tr *ast.Tree) *Generator {
	t.Helper()
	imp := improver.New(tr)
	if diags := imp.Run(); diags.HasFatal() {
		t.Fatalf("improver fatal: %v", diags.Items())
	}
	return New(tr, imp)
}

// TestGenGlobalScalarInit covers spec.md §8 scenario 1: a global scalar
// with a literal initializer emits a label followed by its byte value.
func TestGenGlobalScalarInit(t *testing.T) {
	tr := ast.NewTree()
	vdef := declareVDef(t, tr, tr.Root(), "uint8", "g")
	value := tr.New(ast.KindNumber, "5")
	tr.RegisterRole(vdef, "value_exp_branch", value)

	g := generatorFor(t, tr)
	res := g.Generate()

	if len(res.Data) != 2 {
		t.Fatalf("got %d data instructions, want 2 (label + db): %#v", len(res.Data), res.Data)
	}
	label, ok := res.Data[0].(asm86.Label)
	if !ok || label.Name != "_g" {
		t.Fatalf("got %#v, want Label{_g}", res.Data[0])
	}
	db, ok := res.Data[1].(asm86.Db)
	if !ok || len(db.Values) != 1 || db.Values[0] != 5 {
		t.Fatalf("got %#v, want Db{[5]}", res.Data[1])
	}
}

// TestGenLocalAssignmentAndReturn covers spec.md §8 scenario 2: a function
// with one local reserves one byte of stack, stores into it, and restores
// SP before returning.
func TestGenLocalAssignmentAndReturn(t *testing.T) {
	tr := ast.NewTree()
	fn := tr.New(ast.KindFunc, "main")
	tr.AddChild(tr.Root(), fn, nil, false)
	body := tr.New(ast.KindBody, "")
	tr.RegisterRole(fn, "body_branch", body)

	declareVDef(t, tr, body, "uint8", "a")

	assign := tr.New(ast.KindAssign, "")
	target := useIdent(t, tr, assign, "a")
	value := tr.New(ast.KindNumber, "7")
	tr.RegisterRole(assign, "variable_to_assign_branch", target)
	tr.RegisterRole(assign, "value_branch", value)
	tr.AddChild(body, assign, nil, false)

	ret := tr.New(ast.KindReturn, "")
	retVal := tr.New(ast.KindNumber, "0")
	tr.RegisterRole(ret, "value_branch", retVal)
	tr.AddChild(body, ret, nil, false)

	g := generatorFor(t, tr)
	res := g.Generate()
	if res.Diags.HasError() {
		t.Fatalf("unexpected diagnostics: %v", res.Diags.Items())
	}

	foundSub, foundStore, foundEpilogue := false, false, false
	for i, ins := range res.Code {
		switch v := ins.(type) {
		case asm86.Sub:
			if v.Src == asm86.Imm(1, asm86.Word) {
				foundSub = true
			}
		case asm86.Mov:
			if v.Dst.Kind == asm86.OperandMemory && v.Dst.Mem.Base == "bp" && v.Dst.Width == asm86.Byte {
				foundStore = true
			}
			if v.Dst == asm86.Reg(asm86.SP, asm86.Word) && v.Src == asm86.Reg(asm86.BP, asm86.Word) {
				// the mov sp,bp half of the epilogue must be followed by pop bp; ret
				if i+2 < len(res.Code) {
					if _, popOK := res.Code[i+1].(asm86.Pop); popOK {
						if _, retOK := res.Code[i+2].(asm86.Ret); retOK {
							foundEpilogue = true
						}
					}
				}
			}
		}
	}
	if !foundSub {
		t.Errorf("expected a `sub sp,1` reservation for the local, got %#v", res.Code)
	}
	if !foundStore {
		t.Errorf("expected a byte-width store to [bp-1], got %#v", res.Code)
	}
	if !foundEpilogue {
		t.Errorf("expected mov sp,bp; pop bp; ret at the return, got %#v", res.Code)
	}
}

// TestGenSignedComparisonUsesSignedJump covers spec.md §8 scenario 3: a
// comparison against a signed argument picks the signed jump mnemonic.
func TestGenSignedComparisonUsesSignedJump(t *testing.T) {
	tr := ast.NewTree()
	fn := tr.New(ast.KindFunc, "f")
	tr.AddChild(tr.Root(), fn, nil, false)
	args := tr.New(ast.KindBody, "")
	tr.RegisterRole(fn, "arguments_branch", args)
	declareVDef(t, tr, args, "int8", "x")
	body := tr.New(ast.KindBody, "")
	tr.RegisterRole(fn, "body_branch", body)

	ifNode := tr.New(ast.KindIf, "")
	cond := tr.New(ast.KindE, ">")
	left := useIdent(t, tr, cond, "x")
	right := tr.New(ast.KindNumber, "0")
	tr.AddChild(cond, right, nil, false)
	_ = left
	tr.RegisterRole(ifNode, "exp_branch", cond)
	ifBody := tr.New(ast.KindBody, "")
	ret := tr.New(ast.KindReturn, "")
	retVal := tr.New(ast.KindNumber, "1")
	tr.RegisterRole(ret, "value_branch", retVal)
	tr.AddChild(ifBody, ret, nil, false)
	tr.RegisterRole(ifNode, "body_branch", ifBody)
	tr.AddChild(body, ifNode, nil, false)

	g := generatorFor(t, tr)
	res := g.Generate()
	if res.Diags.HasError() {
		t.Fatalf("unexpected diagnostics: %v", res.Diags.Items())
	}

	// Only an else-less IF's false label is live, so the jump emitted is
	// the *complement* condition (skip the body when x is NOT > 0): "le"
	// signed, "be" unsigned.
	foundSignedJump := false
	for _, ins := range res.Code {
		if jcc, ok := ins.(asm86.Jcc); ok {
			if jcc.Cond == "le" {
				foundSignedJump = true
			}
			if jcc.Cond == "be" {
				t.Errorf("got unsigned jump %q for a signed int8 comparison", jcc.Cond)
			}
		}
	}
	if !foundSignedJump {
		t.Errorf("expected a signed `jle` jump, got %#v", res.Code)
	}
}

// TestGenArrayWithDynamicIndex covers spec.md §8 scenario 4: indexing an
// array with a variable (not a literal) computes the index into DI, with
// no scaling multiply for a 1-byte element, then loads through it.
func TestGenArrayWithDynamicIndex(t *testing.T) {
	tr := ast.NewTree()
	buf := declareVDef(t, tr, tr.Root(), "uint8", "buf")
	bufIdent, _ := tr.Role(buf, "var_identifier_branch")
	dim := tr.New(ast.KindArrayIndex, "")
	dimVal := tr.New(ast.KindNumber, "10")
	tr.RegisterRole(dim, "value_branch", dimVal)
	tr.RegisterRole(bufIdent, "array_index_branch", dim)

	fn := tr.New(ast.KindFunc, "get")
	tr.AddChild(tr.Root(), fn, nil, false)
	args := tr.New(ast.KindBody, "")
	tr.RegisterRole(fn, "arguments_branch", args)
	declareVDef(t, tr, args, "uint8", "i")
	body := tr.New(ast.KindBody, "")
	tr.RegisterRole(fn, "body_branch", body)

	ret := tr.New(ast.KindReturn, "")
	use := tr.New(ast.KindVarIdent, "buf")
	idx := tr.New(ast.KindArrayIndex, "")
	idxVal := tr.New(ast.KindVarIdent, "i")
	tr.RegisterRole(idx, "value_branch", idxVal)
	tr.RegisterRole(use, "array_index_branch", idx)
	tr.RegisterRole(ret, "value_branch", use)
	tr.AddChild(body, ret, nil, false)

	g := generatorFor(t, tr)
	res := g.Generate()
	if res.Diags.HasError() {
		t.Fatalf("unexpected diagnostics: %v", res.Diags.Items())
	}

	for _, ins := range res.Code {
		if mul, ok := ins.(asm86.Mul); ok {
			t.Errorf("expected no scaling multiply for a 1-byte element, got %#v", mul)
		}
	}

	foundDI, foundLoad := false, false
	for _, ins := range res.Code {
		if mov, ok := ins.(asm86.Mov); ok {
			if mov.Dst == asm86.Reg(asm86.DI, asm86.Word) {
				foundDI = true
			}
			if mov.Src.Kind == asm86.OperandMemory && mov.Src.Mem.Label == "_data" && mov.Src.Mem.Index == "di" {
				foundLoad = true
			}
		}
	}
	if !foundDI {
		t.Errorf("expected the index to be moved into DI, got %#v", res.Code)
	}
	if !foundLoad {
		t.Errorf("expected a load through [_data+...+di], got %#v", res.Code)
	}
}

// TestGenStructureAccessThroughPointer covers spec.md §8 scenario 5: an
// assignment through a pointer-typed structure field loads the pointer's
// value into BX, then writes through [bx+offset].
func TestGenStructureAccessThroughPointer(t *testing.T) {
	tr := ast.NewTree()
	structDef := tr.New(ast.KindStructDef, "P")
	structBody := tr.New(ast.KindStruct, "")
	tr.RegisterRole(structDef, "struct_body_branch", structBody)
	tr.AddChild(tr.Root(), structDef, nil, false)
	declareVDef(t, tr, structBody, "uint8", "a")
	declareVDef(t, tr, structBody, "uint16", "b")

	declareVDef(t, tr, tr.Root(), "P", "p")
	qDef := declareVDef(t, tr, tr.Root(), "P", "q")
	tr.Node(qDef).SetAttr("pointer", "true")

	assign := tr.New(ast.KindAssign, "")
	target := tr.New(ast.KindVarIdent, "q")
	access := tr.New(ast.KindStructAcc, "")
	tr.Node(access).SetAttr("through_pointer", "true")
	member := tr.New(ast.KindVarIdent, "b")
	tr.RegisterRole(access, "next_var_identifier_branch", member)
	tr.RegisterRole(target, "structure_access_branch", access)
	value := tr.New(ast.KindNumber, "1")
	tr.RegisterRole(assign, "variable_to_assign_branch", target)
	tr.RegisterRole(assign, "value_branch", value)
	tr.AddChild(tr.Root(), assign, nil, false)

	g := generatorFor(t, tr)
	res := g.Generate()
	if res.Diags.HasError() {
		t.Fatalf("unexpected diagnostics: %v", res.Diags.Items())
	}

	foundLoadBX, foundStore := false, false
	for _, ins := range res.Code {
		if mov, ok := ins.(asm86.Mov); ok {
			if mov.Dst == asm86.Reg(asm86.BX, asm86.Word) {
				foundLoadBX = true
			}
			if mov.Dst.Kind == asm86.OperandMemory && mov.Dst.Mem.Base == "bx" && mov.Dst.Mem.Disp == 1 {
				foundStore = true
			}
		}
	}
	if !foundLoadBX {
		t.Errorf("expected q's value to be loaded into BX, got %#v", res.Code)
	}
	if !foundStore {
		t.Errorf("expected a store to [bx+1] (field b), got %#v", res.Code)
	}
}

// TestGenBreakOutOfNestedFor covers spec.md §8 scenario 6: breaking out of
// the inner loop of a two-level nested FOR restores SP by exactly the
// inner scope's size before jumping to the inner loop's break label.
func TestGenBreakOutOfNestedFor(t *testing.T) {
	tr := ast.NewTree()
	fn := tr.New(ast.KindFunc, "main")
	tr.AddChild(tr.Root(), fn, nil, false)
	fnBody := tr.New(ast.KindBody, "")
	tr.RegisterRole(fn, "body_branch", fnBody)

	outer := tr.New(ast.KindFor, "")
	outerBody := tr.New(ast.KindBody, "")
	tr.RegisterRole(outer, "body_branch", outerBody)
	tr.AddChild(fnBody, outer, nil, false)

	inner := tr.New(ast.KindFor, "")
	innerBody := tr.New(ast.KindBody, "")
	tr.RegisterRole(inner, "body_branch", innerBody)
	declareVDef(t, tr, innerBody, "uint16", "tmp")
	brk := tr.New(ast.KindBreak, "")
	tr.AddChild(innerBody, brk, nil, false)
	tr.AddChild(outerBody, inner, nil, false)

	g := generatorFor(t, tr)
	res := g.Generate()
	if res.Diags.HasError() {
		t.Fatalf("unexpected diagnostics: %v", res.Diags.Items())
	}

	innerScopeSize := tr.ScopeSize(innerBody, ast.ScopeSizeOptions{})
	if innerScopeSize != 2 {
		t.Fatalf("expected the inner scope to reserve 2 bytes for tmp, got %d", innerScopeSize)
	}

	foundRestore, foundJump := false, false
	for i, ins := range res.Code {
		if add, ok := ins.(asm86.Add); ok {
			if add.Dst == asm86.Reg(asm86.SP, asm86.Word) && add.Src == asm86.Imm(innerScopeSize, asm86.Word) {
				foundRestore = true
				if i+1 < len(res.Code) {
					if _, jmpOK := res.Code[i+1].(asm86.Jmp); jmpOK {
						foundJump = true
					}
				}
			}
		}
	}
	if !foundRestore {
		t.Errorf("expected `add sp,%d` restoring the inner scope before break, got %#v", innerScopeSize, res.Code)
	}
	if !foundJump {
		t.Errorf("expected the SP restore to be immediately followed by the jump to the break label, got %#v", res.Code)
	}
}
