package resolver

import (
	"testing"

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

func resolverFor(t *testing.T, tr *ast.Tree) *Resolver {
	t.Helper()
	imp := improver.New(tr)
	if diags := imp.Run(); diags.HasFatal() {
		t.Fatalf("improver fatal: %v", diags.Items())
	}
	return New(tr, imp.Defs)
}

func TestResolveGlobalScalar(t *testing.T) {
	tr := ast.NewTree()
	declareVDef(t, tr, tr.Root(), "uint16", "counter")
	use := useIdent(t, tr, tr.Root(), "counter")

	plan, err := resolverFor(t, tr).Resolve(use, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Address.BaseSegment != "data" || plan.Address.Op != Add || plan.Address.Offset != 0 {
		t.Fatalf("got address %+v, want data+0", plan.Address)
	}
	if plan.ElemSize != 2 || !plan.Static {
		t.Fatalf("got elemSize=%d static=%v, want 2/true", plan.ElemSize, plan.Static)
	}
}

func TestResolveFunctionArgument(t *testing.T) {
	tr := ast.NewTree()
	fn := tr.New(ast.KindFunc, "add")
	tr.AddChild(tr.Root(), fn, nil, false)
	args := tr.New(ast.KindBody, "")
	tr.RegisterRole(fn, "arguments_branch", args)
	declareVDef(t, tr, args, "uint8", "x")
	body := tr.New(ast.KindBody, "")
	tr.RegisterRole(fn, "body_branch", body)
	use := useIdent(t, tr, body, "x")

	plan, err := resolverFor(t, tr).Resolve(use, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Address.BaseSegment != "fp" || plan.Address.Op != Add || plan.Address.Offset != 4 {
		t.Fatalf("got address %+v, want fp+4", plan.Address)
	}
}

func TestResolveFunctionLocal(t *testing.T) {
	tr := ast.NewTree()
	fn := tr.New(ast.KindFunc, "main")
	tr.AddChild(tr.Root(), fn, nil, false)
	body := tr.New(ast.KindBody, "")
	tr.RegisterRole(fn, "body_branch", body)
	declareVDef(t, tr, body, "uint8", "local")
	use := useIdent(t, tr, body, "local")

	plan, err := resolverFor(t, tr).Resolve(use, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Address.BaseSegment != "fp" || plan.Address.Op != Sub {
		t.Fatalf("got address %+v, want fp-...", plan.Address)
	}
}

func TestResolveStaticArrayIndex(t *testing.T) {
	tr := ast.NewTree()
	vdef := tr.New(ast.KindVDef, "")
	dataType := tr.New(ast.KindKeyword, "uint8")
	ident := tr.New(ast.KindVarIdent, "buf")
	tr.RegisterRole(vdef, "data_type_branch", dataType)
	tr.RegisterRole(vdef, "var_identifier_branch", ident)
	dimIdx := tr.New(ast.KindArrayIndex, "")
	dimVal := tr.New(ast.KindNumber, "10")
	tr.RegisterRole(dimIdx, "value_branch", dimVal)
	tr.RegisterRole(ident, "array_index_branch", dimIdx)
	tr.AddChild(tr.Root(), vdef, nil, false)

	use := tr.New(ast.KindVarIdent, "buf")
	tr.AddChild(tr.Root(), use, nil, false)
	useIdx := tr.New(ast.KindArrayIndex, "")
	useVal := tr.New(ast.KindNumber, "3")
	tr.RegisterRole(useIdx, "value_branch", useVal)
	tr.RegisterRole(use, "array_index_branch", useIdx)

	plan, err := resolverFor(t, tr).Resolve(use, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !plan.Static {
		t.Fatal("expected static classification for literal index")
	}
	if plan.Address.Offset != 3 {
		t.Fatalf("got offset %d, want 3 (elem size 1 * index 3)", plan.Address.Offset)
	}
}

func TestResolveStructureAccessNonPointer(t *testing.T) {
	tr := ast.NewTree()
	structDef := tr.New(ast.KindStructDef, "Point")
	structBody := tr.New(ast.KindStruct, "")
	tr.RegisterRole(structDef, "struct_body_branch", structBody)
	tr.AddChild(tr.Root(), structDef, nil, false)
	declareVDef(t, tr, structBody, "uint8", "x")
	declareVDef(t, tr, structBody, "uint16", "y")

	declareVDef(t, tr, tr.Root(), "Point", "p")
	use := tr.New(ast.KindVarIdent, "p")
	tr.AddChild(tr.Root(), use, nil, false)
	access := tr.New(ast.KindStructAcc, "")
	member := tr.New(ast.KindVarIdent, "y")
	tr.RegisterRole(access, "next_var_identifier_branch", member)
	tr.RegisterRole(use, "structure_access_branch", access)

	plan, err := resolverFor(t, tr).Resolve(use, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Address.Offset != 1 {
		t.Fatalf("got offset %d, want 1 (after uint8 x)", plan.Address.Offset)
	}
	if plan.ElemSize != 2 {
		t.Fatalf("got elemSize %d, want 2 for uint16 y", plan.ElemSize)
	}
}

func TestResolveStructureAccessThroughPointerEmitsLoadStep(t *testing.T) {
	tr := ast.NewTree()
	structDef := tr.New(ast.KindStructDef, "Point")
	structBody := tr.New(ast.KindStruct, "")
	tr.RegisterRole(structDef, "struct_body_branch", structBody)
	tr.AddChild(tr.Root(), structDef, nil, false)
	declareVDef(t, tr, structBody, "uint8", "x")
	declareVDef(t, tr, structBody, "uint16", "y")

	vdef := declareVDef(t, tr, tr.Root(), "Point", "p")
	tr.Node(vdef).SetAttr("pointer", "true")
	use := tr.New(ast.KindVarIdent, "p")
	tr.AddChild(tr.Root(), use, nil, false)
	access := tr.New(ast.KindStructAcc, "")
	tr.Node(access).SetAttr("through_pointer", "true")
	member := tr.New(ast.KindVarIdent, "y")
	tr.RegisterRole(access, "next_var_identifier_branch", member)
	tr.RegisterRole(use, "structure_access_branch", access)

	plan, err := resolverFor(t, tr).Resolve(use, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Static {
		t.Fatal("pointer hop must force non-static classification")
	}
	found := false
	for _, s := range plan.Steps {
		if s.Kind == StepPointerLoad {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a StepPointerLoad, got %+v", plan.Steps)
	}
	// The pointer hop resets the base to bx+0; y's own offset within Point
	// (after uint8 x) still has to land on top of that reset base.
	if plan.Address.BaseSegment != "bx" || plan.Address.Offset != 1 {
		t.Fatalf("got address %+v, want bx+1 (field y through the loaded pointer)", plan.Address)
	}
}
