package sched

import (
	"github.com/nanokernel/nanokernel/kernel"
	"github.com/nanokernel/nanokernel/kernel/mem/pmm"
	"github.com/nanokernel/nanokernel/kernel/mem/vmm"
)

// fakeAddressSpace is an in-memory stand-in for *vmm.AddressSpace, backing
// the addressSpace interface in tests that would otherwise need a live MMU
// and recursively-mapped page tables. mapped records every page Map4K was
// asked to install, keyed by page number, so a test can assert ELF mapping
// coverage without touching real memory.
type fakeAddressSpace struct {
	pml4   uintptr
	mapped map[vmm.Page]pmm.Frame

	mapErr *kernel.Error
}

func newFakeAddressSpace(pml4 uintptr) *fakeAddressSpace {
	return &fakeAddressSpace{pml4: pml4, mapped: make(map[vmm.Page]pmm.Frame)}
}

func (f *fakeAddressSpace) Map4K(virt vmm.Page, phys pmm.Frame, flags vmm.PageTableEntryFlag, allocFn vmm.FrameAllocatorFn) *kernel.Error {
	if f.mapErr != nil {
		return f.mapErr
	}
	f.mapped[virt] = phys
	return nil
}

func (f *fakeAddressSpace) UnmapPage(virt vmm.Page) *kernel.Error {
	delete(f.mapped, virt)
	return nil
}

func (f *fakeAddressSpace) ChangeAddressSpace() {}

func (f *fakeAddressSpace) PML4Address() uintptr { return f.pml4 }
