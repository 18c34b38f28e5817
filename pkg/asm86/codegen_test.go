package asm86_test

import (
	"bytes"
	"testing"

	"n86c/pkg/asm86"
)

func assembleOne(t *testing.T, name string, prog asm86.Program) asm86.SegmentOutput {
	t.Helper()
	a := asm86.NewAssembler()
	a.AddSegment(name, prog)
	outs, err := a.Assemble()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("got %d segments, want 1", len(outs))
	}
	return outs[0]
}

func TestCodegenMovImmediateToRegister(t *testing.T) {
	out := assembleOne(t, "code", asm86.Program{
		asm86.Mov{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Imm(5, asm86.Word)},
	})
	want := []byte{0xC7, 0xC0, 0x05, 0x00}
	if !bytes.Equal(out.Bytes, want) {
		t.Errorf("got % X, want % X", out.Bytes, want)
	}
}

func TestCodegenRegisterToRegisterArithmetic(t *testing.T) {
	out := assembleOne(t, "code", asm86.Program{
		asm86.Add{Dst: asm86.Reg(asm86.CX, asm86.Word), Src: asm86.Reg(asm86.AX, asm86.Word)},
	})
	want := []byte{0x01, 0xC1}
	if !bytes.Equal(out.Bytes, want) {
		t.Errorf("got % X, want % X", out.Bytes, want)
	}
}

func TestCodegenRegisterPush(t *testing.T) {
	out := assembleOne(t, "code", asm86.Program{
		asm86.Push{Src: asm86.Reg(asm86.AX, asm86.Word)},
	})
	if !bytes.Equal(out.Bytes, []byte{0x50}) {
		t.Errorf("got % X, want [50]", out.Bytes)
	}
}

func TestCodegenMemoryOperandEncodesModRM(t *testing.T) {
	// mov [bp-4], cx
	out := assembleOne(t, "code", asm86.Program{
		asm86.Mov{Dst: asm86.Mem("bp", -4, asm86.Word), Src: asm86.Reg(asm86.CX, asm86.Word)},
	})
	want := []byte{0x89, 0x4E, 0xFC}
	if !bytes.Equal(out.Bytes, want) {
		t.Errorf("got % X, want % X", out.Bytes, want)
	}
}

func TestCodegenJumpToLocalLabelIsRelative(t *testing.T) {
	out := assembleOne(t, "code", asm86.Program{
		asm86.Label{Name: "top"},
		asm86.Ret{},
		asm86.Jmp{Target: "top"},
	})
	want := []byte{0xC3, 0xE9, 0xFC, 0xFF} // jmp rel16 = 0 - 4 = -4
	if !bytes.Equal(out.Bytes, want) {
		t.Errorf("got % X, want % X", out.Bytes, want)
	}
	if len(out.Relocations) != 0 {
		t.Errorf("expected no relocations for a same-segment jump, got %v", out.Relocations)
	}
}

func TestCodegenExternalCallProducesRelocation(t *testing.T) {
	out := assembleOne(t, "code", asm86.Program{
		asm86.ExternDecl{Name: "printf"},
		asm86.Call{Target: "printf"},
		asm86.Ret{},
	})
	want := []byte{0xE8, 0x00, 0x00, 0xC3}
	if !bytes.Equal(out.Bytes, want) {
		t.Errorf("got % X, want % X", out.Bytes, want)
	}
	if len(out.Relocations) != 1 {
		t.Fatalf("got %d relocations, want 1", len(out.Relocations))
	}
	r := out.Relocations[0]
	if r.Symbol != "printf" || r.Offset != 1 || r.Kind != asm86.RelocRelative16 {
		t.Errorf("unexpected relocation: %+v", r)
	}
}

func TestCodegenUnresolvedNonExternReferenceErrors(t *testing.T) {
	a := asm86.NewAssembler()
	a.AddSegment("code", asm86.Program{asm86.Call{Target: "nowhere"}})
	if _, err := a.Assemble(); err == nil {
		t.Fatal("expected an error for an unresolved, non-extern reference")
	}
}

func TestAssemblerEmitsRelocationForCrossSegmentLabel(t *testing.T) {
	// A label defined in one segment and referenced from another cannot be
	// folded into a fixed byte value at assembly time (its final address
	// depends on how the object's segments are laid out when linked), so
	// it becomes a Relocation rather than an inline address.
	a := asm86.NewAssembler()
	a.AddSegment("data", asm86.Program{
		asm86.Label{Name: "g_value"},
		asm86.Dw{Values: []int{0}},
	})
	a.AddSegment("code", asm86.Program{
		asm86.Mov{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.MemLabel("g_value", asm86.Word)},
	})

	outs, err := a.Assemble()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var code asm86.SegmentOutput
	for _, o := range outs {
		if o.Name == "code" {
			code = o
		}
	}
	want := []byte{0x8B, 0x06, 0x00, 0x00} // mov ax, [g_value] with a zero-filled placeholder address
	if !bytes.Equal(code.Bytes, want) {
		t.Errorf("got % X, want % X", code.Bytes, want)
	}
	if len(code.Relocations) != 1 || code.Relocations[0].Symbol != "g_value" {
		t.Errorf("expected one relocation against g_value, got %v", code.Relocations)
	}
}

func TestAssemblerRejectsDuplicateCrossSegmentLabel(t *testing.T) {
	a := asm86.NewAssembler()
	a.AddSegment("data", asm86.Program{asm86.Label{Name: "dup"}})
	a.AddSegment("code", asm86.Program{asm86.Label{Name: "dup"}})
	if _, err := a.Assemble(); err == nil {
		t.Fatal("expected an error for a label defined in two segments")
	}
}
