package asm86_test

import (
	"testing"

	"n86c/pkg/asm86"
)

func TestSizePassRecordsLabelOffsets(t *testing.T) {
	prog := asm86.Program{
		asm86.Label{Name: "start"},
		asm86.Mov{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Imm(0, asm86.Word)}, // mov ax, 0 -> 4 bytes
		asm86.Label{Name: "loop"},
		asm86.Push{Src: asm86.Reg(asm86.AX, asm86.Word)}, // 1 byte
		asm86.Ret{},                                      // 1 byte
	}

	table, size, err := asm86.SizePass(prog)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table["start"] != 0 {
		t.Errorf("start: got offset %d, want 0", table["start"])
	}
	if table["loop"] != 4 {
		t.Errorf("loop: got offset %d, want 4", table["loop"])
	}
	if size != 6 {
		t.Errorf("got total size %d, want 6", size)
	}
}

func TestSizePassRejectsDuplicateLabel(t *testing.T) {
	prog := asm86.Program{
		asm86.Label{Name: "again"},
		asm86.Label{Name: "again"},
	}
	if _, _, err := asm86.SizePass(prog); err == nil {
		t.Fatal("expected an error for a duplicate label, got nil")
	}
}

func TestSizePassAccountsForDisplacementBytes(t *testing.T) {
	test := func(ins asm86.Instruction, expected int) {
		_, size, err := asm86.SizePass(asm86.Program{ins})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if size != expected {
			t.Errorf("%#v: got size %d, want %d", ins, size, expected)
		}
	}

	t.Run("register to register move needs no displacement", func(t *testing.T) {
		test(asm86.Mov{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Reg(asm86.BX, asm86.Word)}, 2)
	})

	t.Run("bp-relative move with a small offset adds one disp byte", func(t *testing.T) {
		test(asm86.Mov{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Mem("bp", -4, asm86.Word)}, 3)
	})

	t.Run("direct-address data label always carries disp16", func(t *testing.T) {
		test(asm86.Mov{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.MemLabel("g_x", asm86.Word)}, 4)
	})

	t.Run("immediate to register adds the immediate width", func(t *testing.T) {
		test(asm86.Mov{Dst: asm86.Reg(asm86.AX, asm86.Word), Src: asm86.Imm(7, asm86.Word)}, 4)
		test(asm86.Mov{Dst: asm86.Reg(asm86.AX, asm86.Byte), Src: asm86.Imm(7, asm86.Byte)}, 3)
	})
}

func TestSizePassDataDirectives(t *testing.T) {
	prog := asm86.Program{
		asm86.Db{Values: []int{1, 2, 3}},
		asm86.Dw{Values: []int{10, 20}},
		asm86.Rb{Count: 5},
	}
	_, size, err := asm86.SizePass(prog)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != 3+4+5 {
		t.Errorf("got size %d, want %d", size, 12)
	}
}
