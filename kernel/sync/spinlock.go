// Package sync provides synchronization primitives for code that runs below
// the Go runtime's own scheduler, such as the interrupt-driven paths in
// kernel/sched that must guard state shared with the timer ISR.
package sync

import "sync/atomic"

var (
	// TODO: replace with real yield function when cooperative yielding is
	// implemented.
	yieldFn func()
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available. On the single-CPU target this kernel
// runs on, a held Spinlock only ever contends with the timer ISR, which is
// why callers that guard state also shared with Tick additionally disable
// interrupts rather than relying on the spinlock alone.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will
// cause a deadlock.
func (l *Spinlock) Acquire() {
	archAcquireSpinlock(&l.state, 1)
}

// TryToAcquire attempts to acquire the lock and returns true if the lock
// could be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock, allowing other tasks to acquire it.
// Calling Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// archAcquireSpinlock is an arch-specific implementation for acquiring the
// lock.
func archAcquireSpinlock(state *uint32, attemptsBeforeYielding uint32)
