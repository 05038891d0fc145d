package mvs

import (
	"testing"

	"github.com/eclipse-openj9/openj9-sub015/pkg/image"
	"github.com/eclipse-openj9/openj9-sub015/pkg/template"
)

// Addresses of the control blocks of the synthetic dumps.
const (
	cvtAddr   = 0x3000
	ascbAddr  = 0xf000
	asxbAddr  = 0xf200
	tcbBase   = 0x10000
	stcbBase  = 0x20000
	rbBase    = 0x30000
	otcbAddr  = 0x40000
	thliAddr  = 0x41000
	ustaAddr  = 0x42000
	stackBase = 0x50000
	dumpSize  = 0x60000

	unmapped = 0x900000
)

func tcbAddr(i int) uint64  { return tcbBase + uint64(i)*0x200 }
func stcbAddr(i int) uint64 { return stcbBase + uint64(i)*0x200 }
func rbAddr(i int) uint64   { return rbBase + uint64(i)*0x100 }

type fakeDump struct {
	*image.Builder
}

func newFakeDump(mode64 bool) *fakeDump {
	return &fakeDump{image.NewBuilder(mode64).Map(0, dumpSize)}
}

func (d *fakeDump) set32(t *template.Template, base uint64, field string, v uint32) {
	d.PutUint32(t.Addr(base, field), v)
}

func (d *fakeDump) set64(t *template.Template, base uint64, field string, v uint64) {
	d.PutUint64(t.Addr(base, field), v)
}

// taskQueue anchors a task queue with the given TCBs in the PSA.
func (d *fakeDump) taskQueue(tcbs ...uint64) {
	d.set32(PSA, 0, "psaaold", ascbAddr)
	d.set32(ASCB, ascbAddr, "ascbasxb", asxbAddr)
	d.set32(ASXB, asxbAddr, "asxbftcb", uint32(tcbs[0]))
	d.set32(ASXB, asxbAddr, "asxbltcb", uint32(tcbs[len(tcbs)-1]))
	for i := 0; i+1 < len(tcbs); i++ {
		d.set32(TCB, tcbs[i], "tcbtcb", uint32(tcbs[i+1]))
	}
}

// task sets up TCB i with its STCB and a chain of request blocks, newest
// first, whose last block links back to the TCB.
func (d *fakeDump) task(i int, rbs ...uint64) {
	tcb := tcbAddr(i)
	d.set32(TCB, tcb, "tcbstcb", uint32(stcbAddr(i)))
	for j, rb := range rbs {
		next := tcb
		if j+1 < len(rbs) {
			next = rbs[j+1]
		}
		d.set32(RB, rb, "rblink", uint32(next))
	}
	d.set32(TCB, tcb, "tcbrbp", uint32(rbs[0]))
}

// gprs stores 16 fullwords base+i at addr.
func (d *fakeDump) gprs(addr uint64, base uint32) {
	for i := 0; i < 16; i++ {
		d.PutUint32(addr+uint64(i)*4, base+uint32(i))
	}
}

// linkageStack writes a linkage stack of entries of the given size for the
// STCB of task i. types are listed from the bottom of the stack up.
func (d *fakeDump) linkageStack(i int, size uint64, types ...LseType) {
	top := uint64(stackBase) + uint64(len(types))*size
	d.set32(STCB, stcbAddr(i), "stcblsbt", stackBase)
	d.set32(STCB, stcbAddr(i), "stcblstp", uint32(top))
	for j, typ := range types {
		addr := stackBase + uint64(j)*size
		d.PutUint8(addr+1, uint8(typ))
		d.PutUint16(addr+6, uint16(size))
	}
}

func (d *fakeDump) space() *image.Space {
	return d.Space("0001")
}

func assertNoError(t *testing.T, err error, what string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", what, err)
	}
}
