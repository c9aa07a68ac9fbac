package sched

import (
	"encoding/binary"
	"runtime"
	"testing"
	"unsafe"
)

// buildTestELFImage assembles a minimal, well-formed ELF64 image in ordinary
// Go heap memory: a header plus one loadable program header with a memSize
// larger than its fileSize, so LoadELF's zero-fill-then-copy pass 2 actually
// has padding to exercise. It returns the image's base address the way
// LoadELF expects to receive it (the image is presumed already resident at
// that address, matching the kernel-mapped case on real hardware).
func buildTestELFImage(t *testing.T) uintptr {
	t.Helper()

	const (
		ehSize = 64
		phSize = 56
	)

	buf := make([]byte, ehSize+phSize)
	// Keep buf alive for the rest of the test: its address escapes to a bare
	// uintptr below, which is invisible to the garbage collector.
	t.Cleanup(func() { runtime.KeepAlive(buf) })

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	binary.LittleEndian.PutUint64(buf[24:32], 0x500000)          // e_entry
	binary.LittleEndian.PutUint64(buf[32:40], uint64(ehSize))    // e_phoff
	binary.LittleEndian.PutUint16(buf[54:56], uint16(phSize))    // e_phentsize
	binary.LittleEndian.PutUint16(buf[56:58], 1)                 // e_phnum

	off := ehSize
	binary.LittleEndian.PutUint64(buf[off+8:off+16], 0)     // p_offset
	binary.LittleEndian.PutUint64(buf[off+16:off+24], 0x500000) // p_vaddr
	binary.LittleEndian.PutUint64(buf[off+32:off+40], 8)    // p_filesz
	binary.LittleEndian.PutUint64(buf[off+40:off+48], 0x2000) // p_memsz

	return uintptr(unsafe.Pointer(&buf[0]))
}
