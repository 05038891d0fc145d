package mvs

import (
	"errors"
	"sync"

	"github.com/eclipse-openj9/openj9-sub015/pkg/logflags"
	"github.com/eclipse-openj9/openj9-sub015/pkg/mem"
)

// maxTasks bounds the task queue walk, a TCBTCB loop in a damaged dump
// would otherwise never end.
const maxTasks = 10000

var errBrokenTaskQueue = errors.New("task queue ends before the last TCB")

// Registry caches the tasks of each address space of a dump. It is safe
// for concurrent use; each space is enumerated at most once.
type Registry struct {
	mu     sync.Mutex
	spaces map[mem.Space]*registryEntry
}

type registryEntry struct {
	mu    sync.Mutex
	done  bool
	tasks []*Task
	err   error
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{spaces: make(map[mem.Space]*registryEntry)}
}

// Tasks returns the tasks of space in task queue order, or nil if the
// space has no tasks or its task queue could not be walked. Walk failures
// are logged, not returned: a damaged queue in one space must not stop
// the analysis of the rest of the dump.
func (r *Registry) Tasks(space mem.Space) ([]*Task, error) {
	if space == nil {
		return nil, errNilSpace
	}
	r.mu.Lock()
	e, ok := r.spaces[space]
	if !ok {
		e = &registryEntry{}
		r.spaces[space] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.done {
		e.tasks, e.err = enumerateTasks(space)
		e.done = true
	}
	return e.tasks, nil
}

// Cached returns the tasks of space if they have already been enumerated.
// ok is false if Tasks was never called for space. err is the reason the
// task queue could not be walked, in which case Tasks reported no tasks.
func (r *Registry) Cached(space mem.Space) (tasks []*Task, ok bool, err error) {
	r.mu.Lock()
	e, found := r.spaces[space]
	r.mu.Unlock()
	if !found {
		return nil, false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tasks, e.done, e.err
}

// Forget drops the cached tasks of space.
func (r *Registry) Forget(space mem.Space) {
	r.mu.Lock()
	delete(r.spaces, space)
	r.mu.Unlock()
}

// enumerateTasks walks the task queue of space. A failed walk is logged
// and yields no tasks; the error is returned for Registry.Cached.
func enumerateTasks(space mem.Space) ([]*Task, error) {
	tasks, err := walkTasks(space)
	if err != nil {
		logflags.TCBLogger().WithField("space", space).WithError(err).Error("could not walk task queue")
		return nil, err
	}
	if tasks == nil && logflags.TCB() {
		logflags.TCBLogger().WithField("space", space).Debug("no tasks")
	}
	return tasks, nil
}

// walkTasks follows PSA -> ASCB -> ASXB and then the TCBTCB chain from the
// first to the last TCB of the queue, both included.
func walkTasks(space mem.Space) ([]*Task, error) {
	root := space.Root()
	if root == nil {
		return nil, nil
	}
	ascb, err := PSA.Uint(root, 0, "psaaold")
	if err != nil {
		return nil, err
	}
	if ascb == 0 {
		return nil, nil
	}
	asxb, err := ASCB.Uint(space, ascb, "ascbasxb")
	if err != nil {
		return nil, err
	}
	first, err := ASXB.Uint(space, asxb, "asxbftcb")
	if err != nil {
		return nil, err
	}
	last, err := ASXB.Uint(space, asxb, "asxbltcb")
	if err != nil {
		return nil, err
	}
	if first == last {
		return nil, nil
	}

	var tasks []*Task
	for addr := first; ; {
		if addr == 0 {
			return nil, errBrokenTaskQueue
		}
		if len(tasks) >= maxTasks {
			return nil, &CorruptDataError{Field: "tcbtcb", Value: int64(addr)}
		}
		t := NewTask(space, addr)
		tasks = append(tasks, t)
		if addr == last {
			break
		}
		addr, err = t.Next()
		if err != nil {
			return nil, err
		}
	}
	return tasks, nil
}
