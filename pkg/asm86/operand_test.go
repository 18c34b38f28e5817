// White-box tests for the register-numbering and ModR/M helpers: rmEncoding
// is unexported since it is an implementation detail of sizing/codegen, not
// part of the package's public surface.
package asm86

import "testing"

func TestRegisterString(t *testing.T) {
	test := func(r Register, w Width, expected string) {
		if got := r.String(w); got != expected {
			t.Errorf("got %q, want %q", got, expected)
		}
	}

	t.Run("word forms", func(t *testing.T) {
		test(AX, Word, "ax")
		test(BX, Word, "bx")
		test(SP, Word, "sp")
		test(DI, Word, "di")
	})

	t.Run("byte forms", func(t *testing.T) {
		test(AX, Byte, "al")
		test(CX, Byte, "cl")
		test(DX, Byte, "dl")
		test(BX, Byte, "bl")
	})
}

func TestRegisterNumber(t *testing.T) {
	// spec.md §4.6's explicit numbering table.
	test := func(r Register, expected int) {
		if got := r.number(); got != expected {
			t.Errorf("got %d, want %d", got, expected)
		}
	}
	test(AX, 0)
	test(CX, 1)
	test(DX, 2)
	test(BX, 3)
	test(SP, 4)
	test(BP, 5)
	test(SI, 6)
	test(DI, 7)
}

func TestMemoryRmEncoding(t *testing.T) {
	test := func(m Memory, wantMod, wantRM, wantDisp int) {
		mod, rm, disp := m.rmEncoding()
		if mod != wantMod || rm != wantRM || disp != wantDisp {
			t.Errorf("%v: got mod=%d rm=%d disp=%d, want mod=%d rm=%d disp=%d",
				m, mod, rm, disp, wantMod, wantRM, wantDisp)
		}
	}

	t.Run("direct address has no base or index", func(t *testing.T) {
		test(Memory{Label: "g_counter"}, 0b00, 0b110, 2)
	})

	t.Run("bp with zero displacement still carries an explicit disp8", func(t *testing.T) {
		test(Memory{Base: "bp"}, 0b01, 0b110, 1)
	})

	t.Run("bp with a small displacement uses disp8", func(t *testing.T) {
		test(Memory{Base: "bp", Disp: 4}, 0b01, 0b110, 1)
		test(Memory{Base: "bp", Disp: -8}, 0b01, 0b110, 1)
	})

	t.Run("bp with a large displacement uses disp16", func(t *testing.T) {
		test(Memory{Base: "bp", Disp: 4096}, 0b10, 0b110, 2)
	})

	t.Run("bx with no displacement needs no disp bytes", func(t *testing.T) {
		test(Memory{Base: "bx"}, 0b00, 0b111, 0)
	})

	t.Run("bx+di indexed addressing", func(t *testing.T) {
		test(Memory{Base: "bx", Index: "di"}, 0b00, 0b001, 0)
	})

	t.Run("label-bound index access always reserves a 16-bit displacement", func(t *testing.T) {
		// A scaled array access through a data-segment label (e.g.
		// [_data+0+di]) must keep the label's disp16 slot even when the
		// numeric addend folded in alongside it happens to be zero.
		test(Memory{Index: "di", Label: "_buf", Disp: 0}, 0b10, 0b101, 2)
		test(Memory{Index: "di", Label: "_buf", Disp: 3}, 0b10, 0b101, 2)
	})
}
