package vmm

import "unsafe"

const (
	// pageLevels is the number of page-table levels on amd64 (PML4, PDPT, PD, PT).
	pageLevels = 4

	// recursiveEntry is the page-map-level-4 index that pdt.Init() points back
	// to the table itself. Accessing a virtual address whose p4/p3/p2 indices
	// all equal recursiveEntry lets the walker reach any page-table entry in
	// the active address space without a dedicated identity mapping.
	recursiveEntry = uintptr(0x1ff)
)

var (
	// pageLevelShifts holds, for each page-table level, the bit position at
	// which that level's index starts in a virtual address (the number of
	// low order bits taken by the levels below it and the page offset).
	pageLevelShifts = [pageLevels]uint{39, 30, 21, 12}

	// pageLevelBits holds the number of bits used to index each page-table
	// level. All four levels use 9 bits on amd64.
	pageLevelBits = [pageLevels]uint{9, 9, 9, 9}

	// ptePtrFn resolves the virtual address of a page-table entry to a
	// pointer. It is swapped out by tests so that the page-table walker can
	// be exercised without a real recursively-mapped address space.
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(entryAddr)
	}
)

// levelIndex returns the page-table index that virtAddr uses at the supplied
// page-table level (0 = P4 ... pageLevels-1 = P1).
func levelIndex(virtAddr uintptr, level uint8) uintptr {
	return (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
}

// pteAddress returns the virtual address of the page-table entry that maps
// virtAddr at the given page-table level, using the recursive mapping
// established by pdt.Init().
func pteAddress(virtAddr uintptr, level uint8) uintptr {
	var (
		idx      [pageLevels]uintptr
		slot     [pageLevels]uintptr
		rSlots   = pageLevels - int(level)
	)

	for i := uint8(0); i < pageLevels; i++ {
		idx[i] = levelIndex(virtAddr, i)
	}

	for pos := 0; pos < pageLevels; pos++ {
		if pos < rSlots {
			slot[pos] = recursiveEntry
		} else {
			slot[pos] = idx[pos-rSlots]
		}
	}

	addr := uintptr(0xffff000000000000) | slot[0]<<39 | slot[1]<<30 | slot[2]<<21 | slot[3]<<12
	return addr + idx[level]<<3
}

// walk invokes visit once for each page-table level (P4 through P1) that
// participates in the translation of virtAddr, passing the level index and a
// pointer to the corresponding page-table entry. Traversal stops as soon as
// visit returns false.
func walk(virtAddr uintptr, visit func(level uint8, pte *pageTableEntry) bool) {
	for level := uint8(0); level < pageLevels; level++ {
		pte := (*pageTableEntry)(ptePtrFn(pteAddress(virtAddr, level)))
		if !visit(level, pte) {
			return
		}
	}
}
