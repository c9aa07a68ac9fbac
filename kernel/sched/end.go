package sched

import (
	"github.com/nanokernel/nanokernel/kernel"
	"github.com/nanokernel/nanokernel/kernel/mem/vmm"
)

// EndProcess removes proc from the ready queue, unmaps its kernel stack
// pages, clears its file-descriptor table and drops its process-table
// entry. The original scheduler leaves this largely commented out and never
// reclaims; this port completes the unlink-and-unmap path rather than
// reproducing the leak. It does not return the underlying physical frames
// to the allocator (it never calls BitmapAllocator.FreeFrame), so a
// process's physical frames (stack, address space, ELF segments) outlive
// it.
//
// If proc is the process currently selected for dispatch, scheduler.current
// is left pointing at whatever removeFromQueue advanced it to; the caller
// is responsible for triggering a reschedule (e.g. by calling Tick, or via
// the same path Initialize uses) before returning to user code, since
// EndProcess itself never switches tasks.
func EndProcess(proc *Process) *kernel.Error {
	priorLock := schedulerLock
	schedulerLock = true
	defer func() { schedulerLock = priorLock }()

	removeFromQueue(proc)
	proc.state = StateZombie

	for _, page := range proc.thread.stackPages {
		unmapFn(page)
	}

	for i := range proc.fileDescriptors {
		proc.fileDescriptors[i] = 0
	}

	delete(scheduler.processes, proc.pid)

	return nil
}

// unmapFn is mocked by tests; the real implementation faults outside ring 0
// without a live address space.
var unmapFn = vmm.Unmap
