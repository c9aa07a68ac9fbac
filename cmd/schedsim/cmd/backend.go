package cmd

import (
	"unsafe"

	"github.com/nanokernel/nanokernel/kernel"
	"github.com/nanokernel/nanokernel/kernel/mem"
	"github.com/nanokernel/nanokernel/kernel/mem/pmm"
	"github.com/nanokernel/nanokernel/kernel/mem/vmm"
	"github.com/nanokernel/nanokernel/kernel/sched"
)

// simAddressSpace is an in-memory stand-in for *vmm.AddressSpace: it records
// every page Map4K is asked to install instead of writing real page-table
// entries, so schedsim can run the scheduler's process factory without a
// live MMU or CR3. It plays the same role as the kernel/sched package's own
// fakeAddressSpace test double, exported here because cmd/schedsim lives
// outside that package.
type simAddressSpace struct {
	pml4   uintptr
	mapped map[vmm.Page]pmm.Frame
}

func newSimAddressSpace(pml4 uintptr) *simAddressSpace {
	return &simAddressSpace{pml4: pml4, mapped: make(map[vmm.Page]pmm.Frame)}
}

func (s *simAddressSpace) Map4K(virt vmm.Page, phys pmm.Frame, flags vmm.PageTableEntryFlag, allocFn vmm.FrameAllocatorFn) *kernel.Error {
	s.mapped[virt] = phys
	return nil
}

func (s *simAddressSpace) UnmapPage(virt vmm.Page) *kernel.Error {
	delete(s.mapped, virt)
	return nil
}

func (s *simAddressSpace) ChangeAddressSpace() {}

func (s *simAddressSpace) PML4Address() uintptr { return s.pml4 }

// simMemory backs the Memset/Memcopy primitives LoadELF uses to populate a
// user process's virtual pages. Those pages live at arbitrary ELF-supplied
// virtual addresses that are not real, addressable memory in this hosted
// process, so simMemory keeps its own page-aligned byte buffers keyed by
// virtual address instead of writing through raw pointers the way the real
// mem.Memset/mem.Memcopy do. Reads from the ELF image itself (src addresses
// in Memcopy) go through a real unsafe.Pointer dereference, since the image
// bytes are ordinary Go heap memory in this process.
type simMemory struct {
	pages map[uintptr][]byte
}

func newSimMemory() *simMemory {
	return &simMemory{pages: make(map[uintptr][]byte)}
}

func (m *simMemory) pageFor(addr uintptr) []byte {
	base := addr &^ (uintptr(mem.PageSize) - 1)
	page, ok := m.pages[base]
	if !ok {
		page = make([]byte, mem.PageSize)
		m.pages[base] = page
	}
	return page
}

func (m *simMemory) byteAt(addr uintptr) *byte {
	base := addr &^ (uintptr(mem.PageSize) - 1)
	page := m.pageFor(addr)
	return &page[addr-base]
}

// Memset zero-fills (or pattern-fills) size bytes of simulated virtual
// memory starting at addr.
func (m *simMemory) Memset(addr uintptr, v byte, size mem.Size) {
	for i := uintptr(0); i < uintptr(size); i++ {
		*m.byteAt(addr+i) = v
	}
}

// Memcopy copies size bytes from real process memory at src into simulated
// virtual memory at dst, matching the (src, dst, size) argument order
// kernel/sched.LoadELF calls memcopyFn with.
func (m *simMemory) Memcopy(src, dst uintptr, size mem.Size) {
	for i := uintptr(0); i < uintptr(size); i++ {
		b := *(*byte)(unsafe.Pointer(src + i))
		*m.byteAt(dst+i) = b
	}
}

// bytesAt returns a copy of the size bytes of simulated virtual memory
// starting at addr, for inspection by the dump/verify commands.
func (m *simMemory) bytesAt(addr uintptr, size int) []byte {
	out := make([]byte, size)
	for i := range out {
		out[i] = *m.byteAt(addr + uintptr(i))
	}
	return out
}

// simFrames hands out successive fake physical frame numbers; nothing backs
// them with real memory, since simAddressSpace never dereferences them.
type simFrames struct {
	next pmm.Frame
}

func (f *simFrames) alloc() (pmm.Frame, *kernel.Error) {
	f.next++
	return f.next, nil
}

// simCursor reserves successive kernel-virtual ranges for KernelAllocate4KPages,
// mirroring the teacher's EarlyReserveRegion cursor without needing a real
// kernel virtual-address range to carve from.
type simCursor struct {
	next uintptr
}

func (c *simCursor) reserve(n uint) (vmm.Page, *kernel.Error) {
	base := c.next
	c.next += uintptr(n) * uintptr(mem.PageSize)
	return vmm.PageFromAddress(base), nil
}

// simulator bundles all the in-memory state a schedsim run wires into
// kernel/sched.UseBackend, so repeated commands against the same process
// invocation (see the root command's scenario bootstrap) share one
// consistent simulated machine.
type simulator struct {
	spaces      []*simAddressSpace
	frames      simFrames
	stackCursor simCursor
	mem         *simMemory

	nextPML4 uintptr
}

func newSimulator() *simulator {
	return &simulator{
		mem:         newSimMemory(),
		stackCursor: simCursor{next: 0xffff800000000000},
		nextPML4:    0x1000,
	}
}

// install wires every simulated primitive into kernel/sched via UseBackend.
func (s *simulator) install() {
	sched.UseBackend(sched.Backend{
		CreateAddressSpace: func(vmm.FrameAllocatorFn) (sched.AddressSpace, *kernel.Error) {
			space := newSimAddressSpace(s.nextPML4)
			s.nextPML4 += uintptr(mem.PageSize)
			s.spaces = append(s.spaces, space)
			return space, nil
		},
		KernelAllocate4KPages: s.stackCursor.reserve,
		KernelMap4K: func(virt vmm.Page, phys pmm.Frame, allocFn vmm.FrameAllocatorFn) *kernel.Error {
			return nil
		},
		AllocatePhysicalBlock: s.frames.alloc,
		Memset:                s.mem.Memset,
		Memcopy:               s.mem.Memcopy,
		WriteCR3:              func(uintptr) {},
		EnableInterrupts:      func() {},
		DisableInterrupts:     func() {},
		Halt:                  func() {},
		Unmap: func(vmm.Page) *kernel.Error {
			return nil
		},
		TaskSwitch: func() {},
	})
}
