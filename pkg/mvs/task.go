package mvs

import (
	"fmt"
	"sync"

	"github.com/eclipse-openj9/openj9-sub015/pkg/mem"
)

// Task is a task control block in an address space. Tasks are immutable;
// the pointer fields and the linkage stack are read on first use and kept.
type Task struct {
	space mem.Space
	addr  uint64

	mu   sync.Mutex
	ptrs map[string]uint64

	stackMu   sync.Mutex
	stack     []*Lse
	stackDone bool
}

// NewTask returns the task whose TCB is at addr. Most callers should get
// tasks from a Registry instead.
func NewTask(space mem.Space, addr uint64) *Task {
	return &Task{space: space, addr: addr, ptrs: make(map[string]uint64)}
}

// Space returns the address space of the task.
func (t *Task) Space() mem.Space { return t.space }

// Addr returns the address of the TCB.
func (t *Task) Addr() uint64 { return t.addr }

func (t *Task) String() string {
	return fmt.Sprintf("TCB %#08x", t.addr)
}

// field reads a pointer field of the TCB, caching it.
func (t *Task) field(name string) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.ptrs[name]; ok {
		return v, nil
	}
	v, err := TCB.Uint(t.space, t.addr, name)
	if err != nil {
		return 0, err
	}
	t.ptrs[name] = v
	return v, nil
}

// RBP returns the address of the newest request block of the task.
func (t *Task) RBP() (uint64, error) { return t.field("tcbrbp") }

// CELAP returns the address of the Language Environment anchor of the task.
func (t *Task) CELAP() (uint64, error) { return t.field("tcbcelap") }

// RTWA returns the address of the recovery termination work area.
func (t *Task) RTWA() (uint64, error) { return t.field("tcbrtwa") }

// STCB returns the address of the secondary TCB.
func (t *Task) STCB() (uint64, error) { return t.field("tcbstcb") }

// Next returns the address of the next TCB on the task queue.
func (t *Task) Next() (uint64, error) { return t.field("tcbtcb") }
