package mvs

import (
	"fmt"
	"strings"

	"github.com/eclipse-openj9/openj9-sub015/pkg/logflags"
	"github.com/eclipse-openj9/openj9-sub015/pkg/mem"
)

// Where a RegisterSet was found.
const (
	FoundInTCB     = "TCB"
	FoundInUSTA    = "USTA"
	FoundInLinkage = "Linkage"
	FoundInPRB     = "RBFTPRB"
)

// Program call numbers of the kernel services that save the caller's
// state in the USTA.
const (
	ustaPCLow  = 0x1300
	ustaPCHigh = 0x1307
)

// legacyPSWAdjust is how much earlier in the USTA the PSW was saved on
// systems without cvtzose.
const legacyPSWAdjust = 8

// maxRBChain bounds the request block walk.
const maxRBChain = 1000

// RegisterSet is the general registers and PSW of a task.
type RegisterSet struct {
	GPR        [16]uint64
	PSW        uint64
	WhereFound string
	mode64     bool
}

// Is64Bit reports whether the high halves of the registers were recovered.
func (r *RegisterSet) Is64Bit() bool { return r.mode64 }

func (r *RegisterSet) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "PSW %016x (from %s)\n", r.PSW, r.WhereFound)
	for i := 0; i < 16; i += 4 {
		for j := i; j < i+4; j++ {
			if j > i {
				b.WriteByte(' ')
			}
			if r.mode64 {
				fmt.Fprintf(&b, "R%-2d %016x", j, r.GPR[j])
			} else {
				fmt.Fprintf(&b, "R%-2d %08x", j, uint32(r.GPR[j]))
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// check enforces that a returned RegisterSet has a PSW.
func (r *RegisterSet) check() error {
	if r.PSW == 0 {
		return &CorruptDataError{Field: "psw", Value: 0}
	}
	return nil
}

// readWords fills the low halves of r.GPR from the 16 fullwords at addr.
func (r *RegisterSet) readWords(rd mem.Reader, addr uint64) error {
	for i := range r.GPR {
		v, err := rd.ReadUint32(addr + uint64(i)*4)
		if err != nil {
			return err
		}
		r.GPR[i] = uint64(v)
	}
	return nil
}

// readHighWords ORs the 16 fullwords at addr into the high halves of r.GPR.
func (r *RegisterSet) readHighWords(rd mem.Reader, addr uint64) error {
	for i := range r.GPR {
		v, err := rd.ReadUint32(addr + uint64(i)*4)
		if err != nil {
			return err
		}
		r.GPR[i] |= uint64(v) << 32
	}
	r.mode64 = true
	return nil
}

// Registers returns the registers saved in the TCB and the PSW of the
// newest request block. In 64-bit spaces the high halves come from the
// STCB.
func (t *Task) Registers() (*RegisterSet, error) {
	regs := &RegisterSet{WhereFound: FoundInTCB}
	if err := regs.readWords(t.space, TCB.Addr(t.addr, "tcbgrs")); err != nil {
		return nil, err
	}
	rbp, err := t.RBP()
	if err != nil {
		return nil, err
	}
	regs.PSW, err = RB.Uint(t.space, rbp, "rbopsw")
	if err != nil {
		return nil, err
	}
	if t.space.Is64Bit() {
		stcb, err := t.STCB()
		if err != nil {
			return nil, err
		}
		if err := regs.readHighWords(t.space, STCB.Addr(stcb, "stcbg64h")); err != nil {
			return nil, err
		}
	}
	if err := regs.check(); err != nil {
		return nil, err
	}
	return regs, nil
}

// ServiceRegisters returns the registers of the task the way the system
// dump service reports them: from the TCB, the USTA, the linkage stack or
// the request block chain, depending on where the task was interrupted.
// It returns an *UnimplementedError for representations it recognizes
// but cannot decode, a *CorruptDataError for damaged control blocks and an
// *InternalError wrapping anything else.
func (t *Task) ServiceRegisters() (*RegisterSet, error) {
	regs, err := t.serviceRegisters()
	if err != nil {
		if logflags.TCB() {
			logflags.TCBLogger().WithField("tcb", t).WithError(err).Debug("register recovery failed")
		}
		return nil, wrapInternal(err)
	}
	if err := regs.check(); err != nil {
		return nil, err
	}
	return regs, nil
}

func (t *Task) serviceRegisters() (*RegisterSet, error) {
	count, last, secondToLast, err := t.walkRBs()
	if err != nil {
		return nil, err
	}
	if logflags.TCB() {
		logflags.TCBLogger().WithField("tcb", t).Debugf("%d request blocks, last %#x", count, last)
	}
	if count == 1 {
		return t.singleRBRegisters()
	}

	ftp, err := RB.Uint(t.space, last, "rbftp")
	if err != nil {
		return nil, err
	}
	if ftp != rbftpPRB {
		return nil, &UnimplementedError{Variant: VariantMultiRBOther}
	}
	regs := &RegisterSet{WhereFound: FoundInPRB}
	regs.PSW, err = RB.Uint(t.space, last, "rbopsw")
	if err != nil {
		return nil, err
	}
	if err := regs.readWords(t.space, RB.Addr(secondToLast, "rbgrsave")); err != nil {
		return nil, err
	}
	return regs, nil
}

// walkRBs follows the request block chain from the TCB until it links back
// to the TCB. It returns the number of request blocks and the addresses of
// the last two visited.
func (t *Task) walkRBs() (count int, last, secondToLast uint64, err error) {
	rb, err := t.RBP()
	if err != nil {
		return 0, 0, 0, err
	}
	if rb == t.addr {
		return 0, 0, 0, &CorruptDataError{Field: "tcbrbp", Value: int64(rb)}
	}
	for rb != t.addr {
		if count >= maxRBChain {
			return 0, 0, 0, &CorruptDataError{Field: "rblink", Value: int64(rb)}
		}
		count++
		secondToLast, last = last, rb
		rb, err = RB.Uint(t.space, rb, "rblink")
		if err != nil {
			return 0, 0, 0, err
		}
	}
	return count, last, secondToLast, nil
}

func (t *Task) singleRBRegisters() (*RegisterSet, error) {
	stack, err := t.LinkageStack()
	if err != nil {
		return nil, err
	}
	if len(stack) == 0 {
		regs, err := t.Registers()
		if err != nil {
			return nil, err
		}
		regs.WhereFound = FoundInTCB
		return regs, nil
	}

	stcb, err := t.STCB()
	if err != nil {
		return nil, err
	}
	otcb, err := STCB.Uint(t.space, stcb, "stcbotcb")
	if err != nil {
		return nil, err
	}
	inUSTA := false
	if otcb != 0 {
		v, err := OTCB.Uint(t.space, otcb, "otcbptregsinusta")
		if err != nil {
			return nil, err
		}
		inUSTA = v != 0
	}
	if inUSTA {
		return nil, &UnimplementedError{Variant: VariantOTCBFastPath}
	}

	first := stack[len(stack)-1]
	typ, err := first.Type()
	if err != nil {
		return nil, err
	}
	if typ.IsPC() {
		pc, err := first.PCNumber()
		if err != nil {
			return nil, err
		}
		if pc >= ustaPCLow && pc < ustaPCHigh {
			usta, err := t.usta(otcb)
			if err != nil {
				return nil, err
			}
			if usta != 0 {
				return t.ustaRegisters(usta)
			}
		}
	}
	return linkageRegisters(stack[0])
}

// usta returns the address of the USTA reached through the OTCB, or 0.
func (t *Task) usta(otcb uint64) (uint64, error) {
	if otcb == 0 {
		return 0, nil
	}
	thli, err := OTCB.Uint(t.space, otcb, "otcbthli")
	if err != nil || thli == 0 {
		return 0, err
	}
	return THLI.Uint(t.space, thli, "thliusta")
}

func (t *Task) ustaRegisters(usta uint64) (*RegisterSet, error) {
	regs := &RegisterSet{WhereFound: FoundInUSTA}
	if err := regs.readWords(t.space, USTA.Addr(usta, "ustagrs")); err != nil {
		return nil, err
	}
	zose, err := t.zOSCompat()
	if err != nil {
		return nil, err
	}
	pswAddr := USTA.Addr(usta, "ustapsw")
	if !zose {
		pswAddr -= legacyPSWAdjust
	}
	regs.PSW, err = t.space.ReadUint64(pswAddr)
	if err != nil {
		return nil, err
	}
	return regs, nil
}

// zOSCompat reports whether cvtzose is set in the CVT of the task's space.
func (t *Task) zOSCompat() (bool, error) {
	cvt, err := PSA.Uint(t.space, 0, "flccvt")
	if err != nil {
		return false, err
	}
	v, err := CVT.Uint(t.space, cvt, "cvtzose")
	return v != 0, err
}

func linkageRegisters(e *Lse) (*RegisterSet, error) {
	typ, err := e.Type()
	if err != nil {
		return nil, err
	}
	regs := &RegisterSet{WhereFound: FoundInLinkage}
	psw, gpr := e.PSW, e.GPR
	if typ.IsD1() {
		psw, gpr = e.WidePSW, e.WideGPR
		regs.mode64 = true
	}
	if regs.PSW, err = psw(); err != nil {
		return nil, err
	}
	for i := range regs.GPR {
		if regs.GPR[i], err = gpr(i); err != nil {
			return nil, err
		}
	}
	return regs, nil
}
