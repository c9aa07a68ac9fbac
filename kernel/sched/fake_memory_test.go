package sched

import (
	"unsafe"

	"github.com/nanokernel/nanokernel/kernel/mem"
)

// fakeMemory backs the memsetFn/memcopyFn seams LoadELF uses to populate a
// new process's virtual pages. Those pages live at arbitrary ELF-supplied
// virtual addresses that are not real, addressable memory in this test
// process, so fakeMemory keeps its own page-aligned byte buffers keyed by
// virtual address instead of writing through raw pointers the way the real
// mem.Memset/mem.Memcopy do. Reads from the ELF image itself (src addresses
// in Memcopy) go through a real unsafe.Pointer dereference, since the image
// bytes are ordinary Go heap memory in this process. Modeled on
// cmd/schedsim/cmd/backend.go's simMemory, which plays the identical role
// for the hosted simulator backend.
type fakeMemory struct {
	pages map[uintptr][]byte
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{pages: make(map[uintptr][]byte)}
}

func (m *fakeMemory) pageFor(addr uintptr) []byte {
	base := addr &^ (uintptr(mem.PageSize) - 1)
	page, ok := m.pages[base]
	if !ok {
		page = make([]byte, mem.PageSize)
		m.pages[base] = page
	}
	return page
}

func (m *fakeMemory) byteAt(addr uintptr) *byte {
	base := addr &^ (uintptr(mem.PageSize) - 1)
	page := m.pageFor(addr)
	return &page[addr-base]
}

// Memset zero-fills (or pattern-fills) size bytes of simulated virtual
// memory starting at addr.
func (m *fakeMemory) Memset(addr uintptr, v byte, size mem.Size) {
	for i := uintptr(0); i < uintptr(size); i++ {
		*m.byteAt(addr+i) = v
	}
}

// Memcopy copies size bytes from real process memory at src into simulated
// virtual memory at dst, matching the (src, dst, size) argument order
// LoadELF calls memcopyFn with.
func (m *fakeMemory) Memcopy(src, dst uintptr, size mem.Size) {
	for i := uintptr(0); i < uintptr(size); i++ {
		b := *(*byte)(unsafe.Pointer(src + i))
		*m.byteAt(dst+i) = b
	}
}

// bytesAt returns a copy of the size bytes of simulated virtual memory
// starting at addr.
func (m *fakeMemory) bytesAt(addr uintptr, size int) []byte {
	out := make([]byte, size)
	for i := range out {
		out[i] = *m.byteAt(addr + uintptr(i))
	}
	return out
}
