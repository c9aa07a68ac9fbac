package sched

import (
	"github.com/nanokernel/nanokernel/kernel"
	"github.com/nanokernel/nanokernel/kernel/mem"
	"github.com/nanokernel/nanokernel/kernel/mem/pmm"
	"github.com/nanokernel/nanokernel/kernel/mem/vmm"
)

// AddressSpace is the exported mirror of the package-private addressSpace
// interface. A hosted driver (cmd/schedsim) that wants to exercise
// CreateProcess/LoadELF without a live MMU implements this against an
// in-memory map, the same role fakeAddressSpace plays in this package's own
// tests.
type AddressSpace interface {
	Map4K(virt vmm.Page, phys pmm.Frame, flags vmm.PageTableEntryFlag, allocFn vmm.FrameAllocatorFn) *kernel.Error
	UnmapPage(virt vmm.Page) *kernel.Error
	ChangeAddressSpace()
	PML4Address() uintptr
}

// Backend bundles the hardware-facing primitives CreateProcess, LoadELF,
// Initialize, Tick and EndProcess otherwise reach into cpu/vmm/mem assembly
// stubs for. Tick's ReadRIP/readRSP/readRBP reads are not part of it and
// always go to switch_amd64.s. The real boot path (kernel/kmain) never
// calls UseBackend and keeps the cpu/vmm-backed defaults wired at package
// init; UseBackend exists
// so a hosted driver such as cmd/schedsim can install software stand-ins and
// exercise the pure ready-queue/dispatcher/message/handle logic from
// ordinary user space, the same role the package's seam variables
// (createAddressSpaceFn, writeCR3Fn, ...) play when this package's own
// tests swap them.
type Backend struct {
	CreateAddressSpace    func(vmm.FrameAllocatorFn) (AddressSpace, *kernel.Error)
	KernelAllocate4KPages func(n uint) (vmm.Page, *kernel.Error)
	KernelMap4K           func(virt vmm.Page, phys pmm.Frame, allocFn vmm.FrameAllocatorFn) *kernel.Error
	AllocatePhysicalBlock func() (pmm.Frame, *kernel.Error)
	Memset                func(addr uintptr, v byte, size mem.Size)
	Memcopy               func(src, dst uintptr, size mem.Size)
	WriteCR3              func(uintptr)
	EnableInterrupts      func()
	DisableInterrupts     func()
	Halt                  func()
	Unmap                 func(vmm.Page) *kernel.Error
	TaskSwitch            func()
}

// UseBackend installs every non-nil field of b as the package's hardware
// seam, replacing the cpu/vmm-backed defaults. It is intended for hosted
// simulation only.
func UseBackend(b Backend) {
	if b.CreateAddressSpace != nil {
		createAddressSpaceFn = func(allocFn vmm.FrameAllocatorFn) (addressSpace, *kernel.Error) {
			return b.CreateAddressSpace(allocFn)
		}
	}
	if b.KernelAllocate4KPages != nil {
		kernelAllocate4KPagesFn = b.KernelAllocate4KPages
	}
	if b.KernelMap4K != nil {
		kernelMap4KFn = b.KernelMap4K
	}
	if b.AllocatePhysicalBlock != nil {
		allocatePhysicalBlockFn = b.AllocatePhysicalBlock
	}
	if b.Memset != nil {
		memsetFn = b.Memset
	}
	if b.Memcopy != nil {
		memcopyFn = b.Memcopy
	}
	if b.WriteCR3 != nil {
		writeCR3Fn = b.WriteCR3
	}
	if b.EnableInterrupts != nil {
		enableInterruptsFn = b.EnableInterrupts
	}
	if b.DisableInterrupts != nil {
		disableInterruptsFn = b.DisableInterrupts
	}
	if b.Halt != nil {
		haltFn = b.Halt
	}
	if b.Unmap != nil {
		unmapFn = b.Unmap
	}
	if b.TaskSwitch != nil {
		taskSwitchFn = b.TaskSwitch
	}
}

// Reset discards all scheduler state (process table, ready queue, PID
// counter). It is meant for hosted drivers that want to run a fresh
// scenario; the real kernel never calls it; Initialize is a true one-shot.
func Reset() {
	scheduler.processes = make(map[pid]*Process)
	scheduler.nextPID = 0
	scheduler.queueStart = noPID
	scheduler.current = noPID
}

// CurrentPID returns the PID of the process currently selected for
// dispatch, or false if the scheduler has not booted.
func CurrentPID() (PID, bool) {
	cur := GetCurrentProcess()
	if cur == nil {
		return 0, false
	}
	return cur.PID(), true
}

// ReadyQueueOrder returns every PID on the ready queue in a single
// traversal starting at the current process, i.e. the order Tick would
// visit them in. It returns nil if the queue is empty.
func ReadyQueueOrder() []PID {
	if scheduler.queueStart == noPID {
		return nil
	}

	order := []PID{}
	start := scheduler.current
	cur := start
	for {
		order = append(order, uint64(cur))
		proc := scheduler.processes[cur]
		cur = proc.next
		if cur == start {
			break
		}
	}
	return order
}

// Snapshot returns every process currently known to the scheduler, keyed by
// PID, regardless of ready-queue membership.
func Snapshot() map[PID]*Process {
	out := make(map[PID]*Process, len(scheduler.processes))
	for p, proc := range scheduler.processes {
		out[uint64(p)] = proc
	}
	return out
}

// TimeSliceDefault returns the number of ticks granted per quantum.
func (p *Process) TimeSliceDefault() uint32 { return p.timeSliceDefault }

// MessageQueueDepth returns the number of undelivered messages queued for
// this process.
func (p *Process) MessageQueueDepth() int { return len(p.messageQueue) }

// HandleCount returns the number of handles registered in this process's
// handle table, including the reserved null handle at index 0.
func (p *Process) HandleCount() uint32 { return p.handles.count }

// Next returns the PID of the process immediately after this one on the
// ready queue, or false if this process is not currently queued.
func (p *Process) Next() (PID, bool) {
	if p.next == noPID {
		return 0, false
	}
	return uint64(p.next), true
}
