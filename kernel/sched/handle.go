package sched

import "github.com/nanokernel/nanokernel/kernel"

// handleTableSize bounds the number of live handles a single process may
// register. Valid handle values are 1..handleTableSize; 0 is reserved as
// the null handle and is never returned by RegisterHandle.
const handleTableSize = 0xFFFF

// Handle is a process-local opaque small integer naming a kernel object.
type Handle uint32

var errHandleTableFull = &kernel.Error{Module: "sched", Message: "handle table exhausted"}

// handleTable is a process-local, fixed-size mapping from Handle to raw
// kernel-object pointer. It is not safe for concurrent use: per the
// concurrency model, handle tables are process-owned and only ever touched
// by their owning process's own code path.
type handleTable struct {
	entries [handleTableSize + 1]uintptr
	count   uint32
}

// init resets count to 1, reserving index 0 as the permanent null handle.
func (t *handleTable) init() {
	t.count = 1
}

// RegisterHandle assigns the next available handle to ptr and returns it.
// Handles are never recycled; once handleTableSize registrations have been
// made, further calls return errHandleTableFull instead of silently
// overflowing the table, per the overflow-handling redesign.
func (p *Process) RegisterHandle(ptr uintptr) (Handle, *kernel.Error) {
	t := &p.handles
	if t.count > handleTableSize {
		return 0, errHandleTableFull
	}

	h := Handle(t.count)
	t.entries[h] = ptr
	t.count++
	return h, nil
}

// FindHandle returns the pointer registered under h via a direct indexed
// lookup. The original performs no validity check and trusts callers to
// pass back a handle they previously received from RegisterHandle; a raw
// out-of-range index there just reads adjacent memory. Go has no equivalent
// to fall back on safely, so this port adds the bounds check below as a
// deliberate Go-safety deviation: an out-of-range handle (including the
// reserved value 0 or anything never registered) returns 0 instead of
// panicking on the array index.
func (p *Process) FindHandle(h Handle) uintptr {
	if uint32(h) == 0 || uint32(h) >= p.handles.count {
		return 0
	}

	return p.handles.entries[h]
}
