package sched

import "testing"

func TestSendMessageUnknownReceiver(t *testing.T) {
	resetScheduler()

	err := SendMessage(Message{SenderPID: 1, ReceiverPID: 42})
	if err != errProcessNotFound {
		t.Fatalf("expected errProcessNotFound, got %v", err)
	}
}

func TestSendReceiveMessageFIFO(t *testing.T) {
	resetScheduler()

	p0 := newTestProcess(0)
	scheduler.processes[0] = p0

	for i := uint64(0); i < 3; i++ {
		msg := Message{SenderPID: i, ReceiverPID: 0}
		msg.Payload[0] = byte(i)
		if err := SendMessage(msg); err != nil {
			t.Fatalf("unexpected error sending message %d: %v", i, err)
		}
	}

	for i := uint64(0); i < 3; i++ {
		got := ReceiveMessage(p0)
		if got.SenderPID != i || got.Payload[0] != byte(i) {
			t.Fatalf("expected message %d in FIFO order, got sender=%d payload[0]=%d", i, got.SenderPID, got.Payload[0])
		}
	}

	empty := ReceiveMessage(p0)
	if empty.SenderPID != 0 || empty.ReceiverPID != 0 {
		t.Fatalf("expected the zero sentinel on an empty queue, got %+v", empty)
	}
}

func TestSendMessageQueueFull(t *testing.T) {
	resetScheduler()

	p0 := newTestProcess(0)
	scheduler.processes[0] = p0

	for i := 0; i < maxQueueDepth; i++ {
		if err := SendMessageToProcess(p0, Message{ReceiverPID: 0}); err != nil {
			t.Fatalf("unexpected error filling queue at %d: %v", i, err)
		}
	}

	if err := SendMessageToProcess(p0, Message{ReceiverPID: 0}); err != errMessageQueueFull {
		t.Fatalf("expected errMessageQueueFull once at capacity, got %v", err)
	}
	if len(p0.messageQueue) != maxQueueDepth {
		t.Fatalf("expected queue depth to stay at %d, got %d", maxQueueDepth, len(p0.messageQueue))
	}
}
