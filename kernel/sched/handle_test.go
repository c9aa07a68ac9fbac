package sched

import (
	"testing"

	"github.com/nanokernel/nanokernel/kernel"
)

func TestHandleRoundTrip(t *testing.T) {
	var p Process
	p.handles.init()

	h, err := p.RegisterHandle(0xcafef00d)
	if err != nil {
		t.Fatalf("unexpected error registering handle: %v", err)
	}

	if got := p.FindHandle(h); got != 0xcafef00d {
		t.Fatalf("expected round-tripped pointer 0xcafef00d, got %#x", got)
	}
}

func TestHandleZeroIsNull(t *testing.T) {
	var p Process
	p.handles.init()

	if got := p.FindHandle(0); got != 0 {
		t.Fatalf("expected handle 0 to resolve to nil, got %#x", got)
	}

	h, err := p.RegisterHandle(0x1234)
	if err != nil {
		t.Fatal(err)
	}
	if h == 0 {
		t.Fatal("expected RegisterHandle to never hand out the reserved null handle")
	}
}

func TestHandleUnknownResolvesToNull(t *testing.T) {
	var p Process
	p.handles.init()

	if got := p.FindHandle(9999); got != 0 {
		t.Fatalf("expected an unregistered handle to resolve to nil, got %#x", got)
	}
}

func TestHandleTableExhaustion(t *testing.T) {
	var p Process
	p.handles.init()

	var last Handle
	var err *kernel.Error
	for i := 0; i < handleTableSize; i++ {
		last, err = p.RegisterHandle(uintptr(i + 1))
		if err != nil {
			t.Fatalf("unexpected error at registration %d: %v", i, err)
		}
	}
	if int(last) != handleTableSize {
		t.Fatalf("expected the last handle issued to equal the table size %d, got %d", handleTableSize, last)
	}

	if _, err := p.RegisterHandle(0xdead); err != errHandleTableFull {
		t.Fatalf("expected errHandleTableFull once the table is exhausted, got %v", err)
	}
}
