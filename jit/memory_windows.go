//go:build windows

package jit

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// executableRegion mirrors its Unix counterpart: VirtualAlloc reserves
// and commits read/write pages, VirtualProtect flips them to
// read+execute once relocation has finished writing into them.
type executableRegion struct {
	addr  uintptr
	size  int
	bytes []byte
}

func allocExecutable(size int) (*executableRegion, error) {
	if size == 0 {
		size = 1
	}
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, newOSError("VirtualAlloc", err)
	}
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &executableRegion{addr: addr, size: size, bytes: bytes}, nil
}

func (r *executableRegion) makeExecutable() error {
	var old uint32
	if err := windows.VirtualProtect(r.addr, uintptr(r.size), windows.PAGE_EXECUTE_READ, &old); err != nil {
		return newOSError("VirtualProtect", err)
	}
	return nil
}

func (r *executableRegion) free() error {
	return windows.VirtualFree(r.addr, 0, windows.MEM_RELEASE)
}
