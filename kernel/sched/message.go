package sched

import "github.com/nanokernel/nanokernel/kernel"

// PayloadSize is the fixed size of a Message's opaque payload. The scheduler
// treats payload contents as opaque bytes; the IPC contract that interprets
// them lives above this package.
const PayloadSize = 64

// maxQueueDepth bounds how many undelivered messages a single receiver will
// hold. The original message bus is unbounded, which lets a hostile sender
// exhaust kernel memory; this port adds a per-receiver bound with
// drop-newest back-pressure instead.
const maxQueueDepth = 256

// Message is a fixed-size point-to-point message addressed by PID. A
// Message with both PIDs zero is the null/queue-empty sentinel returned by
// ReceiveMessage.
type Message struct {
	SenderPID   uint64
	ReceiverPID uint64
	Payload     [PayloadSize]byte
}

var (
	// errMessageQueueFull corresponds to error code 3: code 1 stays
	// reserved for "PID not found" so existing callers that only check
	// for 1 keep working.
	errMessageQueueFull = &kernel.Error{Module: "sched", Message: "message queue full for receiver"}
)

// SendMessage looks up the receiver by PID and appends msg to its queue.
// The lookup is FindProcessByPID's O(1) map access into scheduler.processes
// rather than the original's O(n) scan over its ready-queue array: the
// process table is keyed by PID here instead of being a fixed-size array
// indexed by slot, the same arena-keyed-by-identifier redesign the process
// table itself uses. Returns errProcessNotFound (code 1) if no such process
// exists.
func SendMessage(msg Message) *kernel.Error {
	proc := FindProcessByPID(msg.ReceiverPID)
	if proc == nil {
		return errProcessNotFound
	}

	return SendMessageToProcess(proc, msg)
}

// SendMessageToProcess is the direct variant used when the caller already
// holds the target process's pointer; it always succeeds unless the
// receiver's queue is at capacity.
func SendMessageToProcess(proc *Process, msg Message) *kernel.Error {
	// TryToAcquire, not Acquire: the only contention this spinlock can
	// ever see on a single-CPU target is the timer ISR re-entering this
	// function, which the caller already excludes by disabling interrupts
	// around the delivery path. Acquire's busy-wait assumes a second
	// hardware thread will release the lock, which never happens here.
	// With interrupts disabled on a single core the lock can never
	// actually be found held, so a false return means that invariant
	// broke; panic loudly instead of silently proceeding into the
	// critical section unguarded.
	if !proc.messageQueueLock.TryToAcquire() {
		panic("sched: messageQueueLock already held; interrupts-disabled invariant violated")
	}
	defer proc.messageQueueLock.Release()

	if len(proc.messageQueue) >= maxQueueDepth {
		return errMessageQueueFull
	}

	proc.messageQueue = append(proc.messageQueue, msg)
	return nil
}

// ReceiveMessage pops and returns the head of proc's message queue in FIFO
// order. If the queue is empty it returns the zero-valued sentinel message
// (both PIDs zero).
func ReceiveMessage(proc *Process) Message {
	// See SendMessageToProcess: on this single-CPU target with interrupts
	// disabled around the delivery path, this lock is never actually
	// contended. A false return means that invariant broke.
	if !proc.messageQueueLock.TryToAcquire() {
		panic("sched: messageQueueLock already held; interrupts-disabled invariant violated")
	}
	defer proc.messageQueueLock.Release()

	if len(proc.messageQueue) == 0 {
		return Message{}
	}

	msg := proc.messageQueue[0]
	proc.messageQueue = proc.messageQueue[1:]
	return msg
}
