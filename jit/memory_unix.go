//go:build linux || darwin

package jit

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// executableRegion wraps one mmap'd region that starts out writable and
// is flipped to read+execute once relocation has finished writing into
// it — W^X is enforced by never holding both permissions at once.
type executableRegion struct {
	addr  uintptr
	bytes []byte
}

func allocExecutable(size int) (*executableRegion, error) {
	if size == 0 {
		size = 1 // mmap rejects a zero-length mapping
	}
	pageSize := unix.Getpagesize()
	mapped := ((size + pageSize - 1) / pageSize) * pageSize

	b, err := unix.Mmap(-1, 0, mapped, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, newOSError("mmap", err)
	}
	return &executableRegion{addr: uintptr(unsafe.Pointer(&b[0])), bytes: b[:size]}, nil
}

func (r *executableRegion) makeExecutable() error {
	if err := unix.Mprotect(r.bytes[:cap(r.bytes)], unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return newOSError("mprotect", err)
	}
	return nil
}

func (r *executableRegion) free() error {
	return unix.Munmap(r.bytes[:cap(r.bytes)])
}
