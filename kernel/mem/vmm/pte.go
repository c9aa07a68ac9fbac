package vmm

import (
	"github.com/nanokernel/nanokernel/kernel/mem"
	"github.com/nanokernel/nanokernel/kernel/mem/pmm"
)

// PageTableEntryFlag describes a flag (or combination of flags) that can be
// set on a page table entry.
type PageTableEntryFlag uintptr

// The set of flags that gopher-os understands. Bits 9-11 are marked as
// available for OS use by the amd64 architecture and are used here to track
// software-only state such as copy-on-write pages.
const (
	FlagPresent PageTableEntryFlag = 1 << iota
	FlagRW
	FlagUser
	FlagWriteThrough
	FlagCacheDisabled
	FlagAccessed
	FlagDirty
	FlagHugePage
	FlagGlobal
	FlagCopyOnWrite
)

// pageTableEntry represents a single entry inside a page table, page
// directory, page directory pointer table or page map level 4 table.
type pageTableEntry uintptr

// HasFlags returns true if all bits in flags are set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) == uintptr(flags)
}

// HasAnyFlag returns true if at least one bit in flags is set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) != 0
}

// SetFlags sets the supplied flags leaving the rest of the entry untouched.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte |= pageTableEntry(flags)
}

// ClearFlags clears the supplied flags leaving the rest of the entry untouched.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte &^= pageTableEntry(flags)
}

// Frame returns the physical frame referenced by this entry. The low
// PageShift bits, which hold the entry flags, are discarded by the shift.
func (pte pageTableEntry) Frame() pmm.Frame {
	return pmm.Frame(uintptr(pte) >> mem.PageShift)
}

// SetFrame updates the physical frame referenced by this entry, leaving the
// existing flag bits untouched.
func (pte *pageTableEntry) SetFrame(frame pmm.Frame) {
	*pte = (*pte &^ pageTableEntry(^uintptr(mem.PageSize-1))) | pageTableEntry(frame.Address())
}
