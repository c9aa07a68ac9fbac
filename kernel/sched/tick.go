package sched

// sentinelRIP is the well-known return address TaskSwitch lands on when it
// resumes a task mid-switch. Tick compares ReadRIP's result against this
// value to tell "we just returned from a context switch, do nothing" apart
// from "this is an ordinary tick during normal kernel/user execution".
const sentinelRIP = uintptr(0xFFFFFFFF8000BEEF)

var (
	// readRIPFn and taskSwitchFn are mocked by tests; the real
	// implementations are in switch_amd64.s and only make sense running
	// on real hardware with a live interrupt frame.
	readRIPFn   = ReadRIP
	taskSwitchFn = TaskSwitch

	readRSPFn = readRSP
	readRBPFn = readRBP
)

// ReadRIP returns the address of its own return site. It is implemented in
// switch_amd64.s and used by Tick to detect whether execution just resumed
// mid-context-switch.
func ReadRIP() uintptr

// TaskSwitch loads CR3 from processPML4, restores RSP/RBP from
// processStack/processBase, pushes processEntryPoint and executes RET to
// jump to it; it builds no interrupt return frame and executes no IRET.
// Implemented in switch_amd64.s.
// TaskSwitch never returns to its caller in the normal sense: it resumes
// execution at the instruction immediately following the call, which is
// exactly sentinelRIP's address, so a later Tick sees a ReadRIP() result
// equal to sentinelRIP and knows to treat this as a fresh dispatch rather
// than an ordinary tick.
func TaskSwitch()

// readRSP and readRBP are implemented in switch_amd64.s.
func readRSP() uintptr
func readRBP() uintptr

// Tick is invoked from the timer ISR on every timer interrupt. It implements
// the nine-step dispatch algorithm: fast-path quantum preservation, lock
// suppression, outgoing-context capture, ready-queue advance, and publishing
// the dispatch ABI before jumping to TaskSwitch.
func Tick() {
	current := scheduler.processes[scheduler.current]

	if current.timeSlice > 0 {
		current.timeSlice--
		return
	}

	if schedulerLock {
		// Ticks are lost silently while locked; lock holders are short.
		return
	}

	current.timeSlice = current.timeSliceDefault

	rip := readRIPFn()
	if rip == sentinelRIP {
		return
	}

	current.thread.registers.RIP = rip
	current.thread.registers.RSP = readRSPFn()
	current.thread.registers.RBP = readRBPFn()

	scheduler.current = current.next
	next := scheduler.processes[scheduler.current]

	processEntryPoint = next.thread.registers.RIP
	processStack = next.thread.registers.RSP
	processBase = next.thread.registers.RBP
	processPML4 = next.addrSpace.PML4Address()

	disableInterruptsFn()
	taskSwitchFn()
}
