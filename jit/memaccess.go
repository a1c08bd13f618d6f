package jit

import "unsafe"

// readUintptr dereferences a raw native address as a uintptr-sized word.
// Only CaptureStackTrace calls this, and only with addresses taken from
// an rbp chain inside memory this Runtime itself mapped (or a caller's
// own valid stack) — it is not a general-purpose memory-read primitive.
func readUintptr(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}
