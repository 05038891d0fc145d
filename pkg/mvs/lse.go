package mvs

import (
	"fmt"

	"github.com/eclipse-openj9/openj9-sub015/pkg/mem"
	"github.com/eclipse-openj9/openj9-sub015/pkg/template"
)

// maxLinkageEntries bounds the number of entries of a linkage stack. Real
// stacks are a handful of entries deep; larger counts come from damaged
// STCBs.
const maxLinkageEntries = 100

// LseType is the entry type of a linkage stack entry.
type LseType uint8

// Linkage stack entry types.
const (
	LseBAKR   LseType = 0x04
	LsePC     LseType = 0x05
	LseD1BAKR LseType = 0x0c
	LseD1PC   LseType = 0x0d
)

func (t LseType) String() string {
	switch t {
	case LseBAKR:
		return "BAKR"
	case LsePC:
		return "PC"
	case LseD1BAKR:
		return "D1BAKR"
	case LseD1PC:
		return "D1PC"
	}
	return fmt.Sprintf("LseType(%#x)", uint8(t))
}

// IsPC reports whether the entry was created by a program call.
func (t LseType) IsPC() bool { return t == LsePC || t == LseD1PC }

// IsD1 reports whether the entry saved 64-bit state.
func (t LseType) IsD1() bool { return t == LseD1BAKR || t == LseD1PC }

// Lse is a linkage stack entry. Its layout is LseState or LseState1
// depending on the entry size of the stack it belongs to.
type Lse struct {
	space  mem.Space
	addr   uint64
	layout *template.Template
}

// Addr returns the address of the entry.
func (e *Lse) Addr() uint64 { return e.addr }

// Layout returns the template describing the entry.
func (e *Lse) Layout() *template.Template { return e.layout }

func (e *Lse) wide() bool { return e.layout == LseState1 }

// Type returns the entry type.
func (e *Lse) Type() (LseType, error) {
	v, err := LSED.Uint(e.space, e.addr, "lsedet")
	return LseType(v), err
}

// PCNumber returns the program call number (the target) saved in the entry.
func (e *Lse) PCNumber() (uint64, error) {
	if e.wide() {
		return LseState1.Uint(e.space, e.addr, "lses1targ")
	}
	return LseState.Uint(e.space, e.addr, "lsestarg")
}

// PSW returns the saved PSW. The 16-byte PSW of a z/Architecture entry is
// returned in its 8-byte display form, see WidePSW.
func (e *Lse) PSW() (uint64, error) {
	if e.wide() {
		return e.WidePSW()
	}
	return LseState.Uint(e.space, e.addr, "lsespsw")
}

// GPR returns the low 32 bits of saved general register i.
func (e *Lse) GPR(i int) (uint64, error) {
	if i < 0 || i > 15 {
		return 0, fmt.Errorf("register %d out of range", i)
	}
	if e.wide() {
		v, err := e.space.ReadUint32(LseState1.Addr(e.addr, "lses1grs") + uint64(i)*8 + 4)
		return uint64(v), err
	}
	v, err := e.space.ReadUint32(LseState.Addr(e.addr, "lsesgrs") + uint64(i)*4)
	return uint64(v), err
}

// WidePSW returns the 16-byte PSW of a z/Architecture entry as the high
// word of its mask followed by the low word of its instruction address.
func (e *Lse) WidePSW() (uint64, error) {
	if !e.wide() {
		return 0, e.notWide()
	}
	mask, err := LseState1.Uint(e.space, e.addr, "lses1pswh")
	if err != nil {
		return 0, err
	}
	ia, err := LseState1.Uint(e.space, e.addr, "lses1pswl")
	if err != nil {
		return 0, err
	}
	return mask&0xffffffff00000000 | ia&0xffffffff, nil
}

// WideGPR returns all 64 bits of saved general register i of a
// z/Architecture entry.
func (e *Lse) WideGPR(i int) (uint64, error) {
	if i < 0 || i > 15 {
		return 0, fmt.Errorf("register %d out of range", i)
	}
	if !e.wide() {
		return 0, e.notWide()
	}
	return e.space.ReadUint64(LseState1.Addr(e.addr, "lses1grs") + uint64(i)*8)
}

func (e *Lse) notWide() error {
	typ, _ := e.Type()
	return &CorruptDataError{Field: "lsedet", Value: int64(typ)}
}

// LinkageStack returns the linkage stack of the task. Entry 0 is the one
// nearest the top of the stack. The stack is read once; every call
// returns a fresh slice of the same entries. An empty stack is returned as
// an empty, non-nil slice.
func (t *Task) LinkageStack() ([]*Lse, error) {
	t.stackMu.Lock()
	defer t.stackMu.Unlock()
	if !t.stackDone {
		stack, err := t.readLinkageStack()
		if err != nil {
			return nil, err
		}
		t.stack, t.stackDone = stack, true
	}
	return append([]*Lse{}, t.stack...), nil
}

func (t *Task) readLinkageStack() ([]*Lse, error) {
	stcb, err := t.STCB()
	if err != nil {
		return nil, err
	}
	bottom, err := STCB.Uint(t.space, stcb, "stcblsbt")
	if err != nil {
		return nil, err
	}
	top, err := STCB.Uint(t.space, stcb, "stcblstp")
	if err != nil {
		return nil, err
	}
	if bottom == top {
		return []*Lse{}, nil
	}
	size, err := LSED.Int(t.space, bottom, "lsednes")
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return []*Lse{}, nil
	}

	var layout *template.Template
	switch uint64(size) {
	case LseState.Length:
		layout = LseState
	case LseState1.Length:
		layout = LseState1
	default:
		return nil, &CorruptDataError{Field: "lsednes", Value: size}
	}
	delta := int64(top - bottom)
	if delta%size != 0 {
		return nil, &CorruptDataError{Field: "stcblstp", Value: int64(top)}
	}
	count := delta / size
	if count < 0 || count >= maxLinkageEntries {
		return nil, &CorruptDataError{Field: "linkage stack entry count", Value: count}
	}

	stack := make([]*Lse, 0, count)
	for addr := top - uint64(size); len(stack) < int(count); addr -= uint64(size) {
		stack = append(stack, &Lse{space: t.space, addr: addr, layout: layout})
	}
	return stack, nil
}
