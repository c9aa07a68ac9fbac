package vmm

import (
	"github.com/nanokernel/nanokernel/kernel"
	"github.com/nanokernel/nanokernel/kernel/mem"
	"github.com/nanokernel/nanokernel/kernel/mem/pmm"
)

var (
	// kernelReserveLastUsed tracks the last kernel-virtual page reserved via
	// KernelAllocate4KPages and is decreased after each allocation request.
	// It starts at tempMappingAddr, the top of the kernel's virtual range.
	kernelReserveLastUsed = tempMappingAddr

	errEarlyReserveNoSpace = &kernel.Error{Module: "vmm", Message: "remaining virtual address space not large enough to satisfy reservation request"}
)

// AddressSpace represents a process's private top-level page table together
// with a cursor for carving out fresh user-virtual ranges. It is a thin,
// scheduler-facing wrapper around PageDirectoryTable: the process factory
// creates one per process and the dispatcher switches between them on every
// context switch.
type AddressSpace struct {
	pdt PageDirectoryTable

	// userReserveLastUsed tracks the next free user-virtual page for this
	// address space's own AllocateUserPages calls. ELF loads bypass this
	// cursor entirely since they target the vaddr baked into the image.
	userReserveLastUsed uintptr
}

// defaultUserReserveTop is the highest user-virtual address handed out by
// AllocateUserPages, chosen comfortably below the canonical-address gap so
// carved ranges never collide with kernel-half addresses.
const defaultUserReserveTop = uintptr(0x00007fffffff0000)

// CreateAddressSpace allocates and initializes a fresh top-level page table
// with the kernel half pre-populated via the recursive self-mapping
// established by PageDirectoryTable.Init, and returns a handle whose
// top-level-table physical address is directly loadable into CR3.
func CreateAddressSpace(allocFn FrameAllocatorFn) (*AddressSpace, *kernel.Error) {
	frame, err := allocFn()
	if err != nil {
		return nil, err
	}

	space := &AddressSpace{userReserveLastUsed: defaultUserReserveTop}
	if err := space.pdt.Init(frame, allocFn); err != nil {
		return nil, err
	}

	return space, nil
}

// Map4K inserts a 4 KiB mapping for phys at virt inside this address space,
// establishing a temporary recursive mapping first if this space is not the
// one currently active.
func (space *AddressSpace) Map4K(virt Page, phys pmm.Frame, flags PageTableEntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	return space.pdt.Map(virt, phys, flags, allocFn)
}

// UnmapPage removes a mapping previously installed via Map4K.
func (space *AddressSpace) UnmapPage(virt Page) *kernel.Error {
	return space.pdt.Unmap(virt)
}

// ChangeAddressSpace writes this address space's top-level-table physical
// address to CR3, making it the active address space.
func (space *AddressSpace) ChangeAddressSpace() {
	space.pdt.Activate()
}

// PML4Address returns the physical address of this address space's top-level
// page table, the value the dispatcher publishes to processPML4 before
// invoking TaskSwitch.
func (space *AddressSpace) PML4Address() uintptr {
	return space.pdt.pdtFrame.Address()
}

// KernelAllocate4KPages reserves n contiguous 4 KiB pages in the kernel
// virtual range without backing them with physical frames. It is used by the
// process factory to carve out the virtual range for a new kernel stack
// before mapping individual frames into it with KernelMap4K.
func KernelAllocate4KPages(n uint) (Page, *kernel.Error) {
	size := mem.Size(n) * mem.PageSize
	if uintptr(size) > kernelReserveLastUsed {
		return 0, errEarlyReserveNoSpace
	}

	kernelReserveLastUsed -= uintptr(size)
	return PageFromAddress(kernelReserveLastUsed), nil
}

// KernelMap4K backs a kernel virtual page with a physical frame using the
// currently active page directory table.
func KernelMap4K(virt Page, phys pmm.Frame, allocFn FrameAllocatorFn) *kernel.Error {
	return Map(virt, phys, FlagPresent|FlagRW, allocFn)
}

// AllocateUserPages reserves n contiguous 4 KiB pages in this address
// space's user-virtual range, for callers that need scratch user pages
// outside of an ELF image's own declared virtual layout.
func (space *AddressSpace) AllocateUserPages(n uint) (Page, *kernel.Error) {
	size := mem.Size(n) * mem.PageSize
	if uintptr(size) > space.userReserveLastUsed {
		return 0, errEarlyReserveNoSpace
	}

	space.userReserveLastUsed -= uintptr(size)
	return PageFromAddress(space.userReserveLastUsed), nil
}

// AllocatePhysicalBlock returns a fresh 4 KiB physical frame via the
// registered frame allocator.
func AllocatePhysicalBlock() (pmm.Frame, *kernel.Error) {
	return frameAllocator()
}
