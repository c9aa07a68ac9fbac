// Package elf provides a minimal, read-only decoder for ELF64 executable
// images already resident in kernel memory. It exposes only the header
// fields the process factory needs to build a process's virtual memory
// layout and does not perform any validation beyond decoding them: a
// corrupt image is the loader caller's problem, not this package's.
package elf

import "unsafe"

// magic holds the four bytes every ELF file starts with: 0x7f, 'E', 'L', 'F'.
var magic = [4]byte{0x7f, 'E', 'L', 'F'}

// header mirrors the fixed-size portion of an ELF64 file header (the
// e_ident block plus the fields that follow it) exactly as laid out on
// disk, so it can be overlaid directly onto the image bytes.
type header struct {
	ident     [16]byte
	fileType  uint16
	machine   uint16
	version   uint32
	entry     uint64
	phOff     uint64
	shOff     uint64
	flags     uint32
	ehSize    uint16
	phEntSize uint16
	phNum     uint16
	shEntSize uint16
	shNum     uint16
	shStrNdx  uint16
}

// programHeader mirrors the on-disk layout of an ELF64 program header.
type programHeader struct {
	segType  uint32
	segFlags uint32
	offset   uint64
	vaddr    uint64
	paddr    uint64
	fileSize uint64
	memSize  uint64
	align    uint64
}

// Image wraps the address of an ELF64 image already mapped into kernel
// memory and provides typed accessors for the fields the process factory
// reads. The image bytes are never copied; Image just overlays structs onto
// them.
type Image struct {
	base uintptr
	hdr  *header
}

// NewImage returns an Image overlaying the ELF64 header found at base. No
// magic-number or class/endianness check is performed: the loader's caller
// is trusted to supply a well-formed little-endian ELF64 image, matching
// the "no ELF validation" policy of the process factory that consumes this
// package.
func NewImage(base uintptr) *Image {
	return &Image{
		base: base,
		hdr:  (*header)(unsafe.Pointer(base)),
	}
}

// Entry returns the image's entry point virtual address (e_entry).
func (img *Image) Entry() uintptr {
	return uintptr(img.hdr.entry)
}

// ProgramHeaderCount returns the number of program header table entries
// (e_phnum).
func (img *Image) ProgramHeaderCount() int {
	return int(img.hdr.phNum)
}

// ProgramHeader returns the decoded program header at index i, where
// 0 <= i < ProgramHeaderCount(). Indexing respects e_phentsize rather than
// assuming sizeof(programHeader), since the ELF64 spec allows it to exceed
// the structure's natural size.
func (img *Image) ProgramHeader(i int) ProgramHeader {
	addr := img.base + uintptr(img.hdr.phOff) + uintptr(i)*uintptr(img.hdr.phEntSize)
	ph := (*programHeader)(unsafe.Pointer(addr))

	return ProgramHeader{
		VAddr:    uintptr(ph.vaddr),
		Offset:   uintptr(ph.offset),
		FileSize: uintptr(ph.fileSize),
		MemSize:  uintptr(ph.memSize),
	}
}

// ProgramHeader is the decoded subset of an ELF64 program header that the
// process factory's LoadELF path consumes. Segment flags are intentionally
// not exposed: LoadELF maps every segment as user+present+writable
// regardless of p_flags, a known security gap inherited from the original
// loader (see the process factory's LoadELF doc comment).
type ProgramHeader struct {
	VAddr    uintptr
	Offset   uintptr
	FileSize uintptr
	MemSize  uintptr
}
