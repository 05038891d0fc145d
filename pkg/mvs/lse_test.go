package mvs

import (
	"errors"
	"testing"
)

func TestLinkageStackEmpty(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *fakeDump)
	}{
		{"bottom equals top", func(d *fakeDump) {
			d.set32(STCB, stcbAddr(0), "stcblsbt", stackBase)
			d.set32(STCB, stcbAddr(0), "stcblstp", stackBase)
		}},
		{"zero entry size", func(d *fakeDump) {
			d.linkageStack(0, 0xa8, LsePC)
			d.PutUint16(stackBase+6, 0)
		}},
		{"negative entry size", func(d *fakeDump) {
			d.linkageStack(0, 0xa8, LsePC)
			d.PutUint16(stackBase+6, 0xff58) // -0xa8
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := newFakeDump(false)
			d.task(0, rbAddr(0))
			tc.setup(d)
			stack, err := NewTask(d.space(), tcbAddr(0)).LinkageStack()
			assertNoError(t, err, "LinkageStack")
			if stack == nil || len(stack) != 0 {
				t.Fatalf("expected empty non-nil stack, got %v", stack)
			}
		})
	}
}

func TestLinkageStackEntries(t *testing.T) {
	for _, size := range []uint64{0xa8, 0x128} {
		for k := 1; k <= 4; k++ {
			d := newFakeDump(true)
			d.task(0, rbAddr(0))
			types := make([]LseType, k)
			for i := range types {
				types[i] = LseBAKR
			}
			types[k-1] = LseD1PC
			d.linkageStack(0, size, types...)

			stack, err := NewTask(d.space(), tcbAddr(0)).LinkageStack()
			assertNoError(t, err, "LinkageStack")
			if len(stack) != k {
				t.Fatalf("size %#x: expected %d entries, got %d", size, k, len(stack))
			}
			top := stackBase + uint64(k)*size
			for i, e := range stack {
				if want := top - uint64(i+1)*size; e.Addr() != want {
					t.Errorf("size %#x: entry %d at %#x, want %#x", size, i, e.Addr(), want)
				}
				if e.Layout().Length != size {
					t.Errorf("size %#x: entry %d has layout %s", size, i, e.Layout().Name)
				}
			}
			if typ, err := stack[0].Type(); err != nil || typ != LseD1PC {
				t.Errorf("size %#x: top entry type %v, %v", size, typ, err)
			}
			if typ, err := stack[k-1].Type(); k > 1 && (err != nil || typ != LseBAKR) {
				t.Errorf("size %#x: bottom entry type %v, %v", size, typ, err)
			}
		}
	}
}

func TestLinkageStackCorrupt(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *fakeDump)
		field string
		value int64
	}{
		{"unknown entry size", func(d *fakeDump) {
			d.linkageStack(0, 0x40, LsePC, LsePC)
		}, "lsednes", 0x40},
		{"not a multiple of the entry size", func(d *fakeDump) {
			d.linkageStack(0, 0xa8, LsePC, LsePC)
			d.set32(STCB, stcbAddr(0), "stcblstp", stackBase+2*0xa8+8)
		}, "stcblstp", stackBase + 2*0xa8 + 8},
		{"too many entries", func(d *fakeDump) {
			d.linkageStack(0, 0xa8, LsePC)
			d.set32(STCB, stcbAddr(0), "stcblstp", stackBase+100*0xa8)
		}, "linkage stack entry count", 100},
		{"top below bottom", func(d *fakeDump) {
			d.linkageStack(0, 0xa8, LsePC)
			d.set32(STCB, stcbAddr(0), "stcblstp", stackBase-2*0xa8)
		}, "linkage stack entry count", -2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := newFakeDump(false)
			d.task(0, rbAddr(0))
			tc.setup(d)
			_, err := NewTask(d.space(), tcbAddr(0)).LinkageStack()
			var corrupt *CorruptDataError
			if !errors.As(err, &corrupt) {
				t.Fatalf("expected *CorruptDataError, got %v", err)
			}
			if corrupt.Field != tc.field || corrupt.Value != tc.value {
				t.Fatalf("got %s = %#x, want %s = %#x", corrupt.Field, corrupt.Value, tc.field, tc.value)
			}
		})
	}
}

func TestLinkageStackCached(t *testing.T) {
	d := newFakeDump(false)
	d.task(0, rbAddr(0))
	d.linkageStack(0, 0xa8, LseBAKR, LsePC)
	task := NewTask(d.space(), tcbAddr(0))

	first, err := task.LinkageStack()
	assertNoError(t, err, "LinkageStack")
	second, err := task.LinkageStack()
	assertNoError(t, err, "LinkageStack")
	if len(first) != 2 || first[0] != second[0] || first[1] != second[1] {
		t.Fatalf("second call did not return the cached stack")
	}

	// Callers own the returned slice.
	first[0] = nil
	third, err := task.LinkageStack()
	assertNoError(t, err, "LinkageStack")
	if third[0] == nil || third[0] != second[0] {
		t.Fatalf("modifying a returned stack changed the cached one")
	}
}

func TestLseAccessors(t *testing.T) {
	d := newFakeDump(true)
	d.task(0, rbAddr(0))
	d.linkageStack(0, 0x128, LseD1BAKR)
	e := uint64(stackBase)
	for i := 0; i < 16; i++ {
		d.PutUint64(LseState1.Addr(e, "lses1grs")+uint64(i)*8, 0x1111111100000000|uint64(i))
	}
	d.set64(LseState1, e, "lses1pswh", 0x0705000180000000)
	d.set64(LseState1, e, "lses1pswl", 0x000000012345678a)
	d.set32(LseState1, e, "lses1targ", 0x1302)

	stack, err := NewTask(d.space(), tcbAddr(0)).LinkageStack()
	assertNoError(t, err, "LinkageStack")
	lse := stack[0]

	if v, err := lse.WideGPR(3); err != nil || v != 0x1111111100000003 {
		t.Errorf("WideGPR(3) = %#x, %v", v, err)
	}
	if v, err := lse.GPR(3); err != nil || v != 3 {
		t.Errorf("GPR(3) = %#x, %v", v, err)
	}
	if v, err := lse.WidePSW(); err != nil || v != 0x070500012345678a {
		t.Errorf("WidePSW = %#x, %v", v, err)
	}
	if v, err := lse.PCNumber(); err != nil || v != 0x1302 {
		t.Errorf("PCNumber = %#x, %v", v, err)
	}
	if _, err := lse.GPR(16); err == nil {
		t.Errorf("expected error for register 16")
	}
}

func TestLseTypeString(t *testing.T) {
	for typ, want := range map[LseType]string{
		LseBAKR:      "BAKR",
		LsePC:        "PC",
		LseD1BAKR:    "D1BAKR",
		LseD1PC:      "D1PC",
		LseType(0x7): "LseType(0x7)",
	} {
		if got := typ.String(); got != want {
			t.Errorf("%#x.String() = %q, want %q", uint8(typ), got, want)
		}
	}
	if !LseD1PC.IsPC() || !LsePC.IsPC() || LseBAKR.IsPC() {
		t.Errorf("IsPC mismatch")
	}
	if !LseD1BAKR.IsD1() || LsePC.IsD1() {
		t.Errorf("IsD1 mismatch")
	}
}
