// Package sched implements a preemptive, round-robin, single-CPU task
// scheduler: process and thread lifecycle, a circular ready queue, a
// timer-driven dispatcher, a per-process message bus and a process-local
// handle table.
package sched

import (
	"github.com/nanokernel/nanokernel/kernel"
	"github.com/nanokernel/nanokernel/kernel/cpu"
	"github.com/nanokernel/nanokernel/kernel/mem/pmm"
	"github.com/nanokernel/nanokernel/kernel/mem/vmm"
	"github.com/nanokernel/nanokernel/kernel/sync"
)

// addressSpace is the subset of *vmm.AddressSpace the scheduler depends on.
// Expressing the dependency as an interface, rather than importing the
// concrete type directly into Process, lets tests substitute an in-memory
// fake that does not require a real MMU and recursive page-table mapping,
// the same role the vmm package's own *Fn package-level seams play inside
// that package.
type addressSpace interface {
	Map4K(virt vmm.Page, phys pmm.Frame, flags vmm.PageTableEntryFlag, allocFn vmm.FrameAllocatorFn) *kernel.Error
	UnmapPage(virt vmm.Page) *kernel.Error
	ChangeAddressSpace()
	PML4Address() uintptr
}

// State describes where a Process sits in its lifecycle.
type State uint8

const (
	// StateActive processes are eligible for dispatch and sit on the
	// ready queue.
	StateActive State = iota

	// StateBlocked processes are not on the ready queue and are never
	// selected by the dispatcher. Nothing in this package currently
	// transitions a process to this state; it exists for a future
	// blocking syscall layer to use.
	StateBlocked

	// StateZombie processes have called EndProcess and are awaiting
	// reclamation.
	StateZombie
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateBlocked:
		return "blocked"
	case StateZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// pid identifies a Process for the lifetime of the system. PIDs are never
// reused.
type pid uint64

// noPID is the "not a process" sentinel used for queue links and the
// current/queueStart cursors before the first process exists. It cannot
// collide with a real PID: nextPID starts at 0 and only ever increases by
// one per process, so it would take longer than the system can run to reach
// this value.
const noPID = pid(^uint64(0))

// PID is the exported process identifier type returned to callers.
type PID = uint64

// Registers is the saved CPU register frame for a thread. Tick and
// Initialize read and write its RIP/RSP/RBP fields by name; TaskSwitch in
// switch_amd64.s never reads this struct, only the four dispatch globals
// published from it. Field names follow the teacher's irq.Regs/irq.Frame
// convention.
type Registers struct {
	RIP    uintptr
	RSP    uintptr
	RBP    uintptr
	RFlags uint64

	RAX, RBX, RCX, RDX uint64
	RSI, RDI           uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64

	CS, SS uint64
}

// maxFileDescriptors reserves the first three file-descriptor slots for
// stdin/stdout/stderr, as the teacher's process model always does.
const maxFileDescriptors = 3

// Thread is a process's single execution context: its kernel-allocated
// stack and saved register frame. A future multi-threaded process model
// would make threads independently schedulable; today exactly one thread
// slot is ever populated per Process.
type Thread struct {
	parent *Process

	priority uint8

	// stackTop is the high (topmost) address of the thread's 16 KiB
	// kernel stack, i.e. the value RSP/RBP are initialized to.
	stackTop uintptr

	// stackPages holds the four virtual pages backing the stack so
	// EndProcess can unmap them.
	stackPages [4]vmm.Page

	registers Registers
}

// Process is the scheduler's in-memory representation of a runnable unit:
// an address space, a single thread, a file-descriptor table, a message
// queue and a ready-queue link.
type Process struct {
	pid      pid
	state    State
	priority uint8

	timeSliceDefault uint32
	timeSlice        uint32

	addrSpace addressSpace

	thread      Thread
	threadCount uint8

	fileDescriptors [maxFileDescriptors]uintptr

	// messageQueueLock guards messageQueue against the timer ISR delivering
	// a message (via Tick calling into SendMessageToProcess on another
	// process's behalf is not done today, but syscalls invoked from
	// interrupt-adjacent contexts may) racing the owner's ReceiveMessage.
	// On this single-CPU target the only real contender is a nested
	// interrupt, so callers additionally bracket access with interrupts
	// disabled; the spinlock documents the invariant and costs nothing
	// when uncontended.
	messageQueueLock sync.Spinlock
	messageQueue     []Message

	handles handleTable

	// next is this process's forward link in the circular ready queue,
	// expressed as the PID of the next process rather than a raw
	// pointer. Modeling the ready queue this way (an index into the
	// scheduler's process table, keyed by PID) sidesteps the ownership
	// ambiguity of a circular pointer graph and makes remove-during-
	// iteration straightforward in Go. noPID while not in the queue.
	next pid
}

// PID returns this process's unique, monotonically-assigned identifier.
func (p *Process) PID() PID { return uint64(p.pid) }

// State returns the process's current lifecycle state.
func (p *Process) State() State { return p.state }

// Priority returns the process's advisory scheduling priority. Nothing in
// this package consults it; priority-based preemption is out of scope.
func (p *Process) Priority() uint8 { return p.priority }

// TimeSlice returns the number of ticks remaining in the process's current
// quantum.
func (p *Process) TimeSlice() uint32 { return p.timeSlice }

// AddressSpace returns the process's private address space.
func (p *Process) AddressSpace() addressSpace { return p.addrSpace }

var (
	// scheduler holds all scheduler-owned singleton state: the process
	// table, the ready queue head/current pointers and the next PID
	// counter. Grouped into one record per the "single singleton
	// scheduler record" design note: every field here is touched only
	// under schedulerLock or with interrupts disabled.
	scheduler struct {
		processes map[pid]*Process
		nextPID   pid

		queueStart pid
		current    pid
	}

	// schedulerLock is a plain boolean, not a spinlock: on a single CPU
	// with a single timer interrupt source, mutual exclusion against
	// Tick only requires that Tick observe the lock and bail out: there
	// is no second core that could be spinning on it.
	schedulerLock bool

	// The dispatch ABI: four word-sized globals TaskSwitch reads to
	// resume the selected process. Published by Tick and Initialize
	// immediately before disabling interrupts and jumping to
	// TaskSwitch.
	processEntryPoint uintptr
	processStack      uintptr
	processBase       uintptr
	processPML4       uintptr

	errProcessNotFound = &kernel.Error{Module: "sched", Message: "no such process"}

	// The following are mocked by tests; cpu.* calls would fault outside
	// ring 0.
	enableInterruptsFn  = cpu.EnableInterrupts
	disableInterruptsFn = cpu.DisableInterrupts
	haltFn              = cpu.Halt
)

// Initialize performs the one-shot scheduler bootstrap: it creates the idle
// process, seeds the dispatch globals from it, and jumps to TaskSwitch.
// Initialize never returns.
func Initialize() {
	schedulerLock = true

	scheduler.processes = make(map[pid]*Process)
	scheduler.nextPID = 0
	scheduler.queueStart = noPID
	scheduler.current = noPID

	idlePID, err := CreateProcess(IdleProc)
	if err != nil {
		panic(err)
	}
	_ = idlePID

	idle := scheduler.processes[scheduler.current]
	processEntryPoint = idle.thread.registers.RIP
	processStack = idle.thread.registers.RSP
	processBase = idle.thread.registers.RBP
	processPML4 = idle.addrSpace.PML4Address()

	disableInterruptsFn()
	idle.addrSpace.ChangeAddressSpace()
	schedulerLock = false

	taskSwitchFn()
}

// IdleProc is the idle process entry point: a never-returning halt loop run
// whenever no other process is ready to be dispatched.
func IdleProc() {
	for {
		haltFn()
	}
}

// GetCurrentProcess returns the process currently selected for execution.
func GetCurrentProcess() *Process {
	return scheduler.processes[scheduler.current]
}

// FindProcessByPID returns the process with the given PID, or nil if no such
// process exists.
func FindProcessByPID(id PID) *Process {
	return scheduler.processes[pid(id)]
}
