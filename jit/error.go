package jit

import "fmt"

// OSError wraps a failure from an OS-level call the runtime depends on —
// mmap, VirtualAlloc, RtlAddFunctionTable and their kin — carrying the
// syscall name alongside the underlying errno/LastError so callers can
// tell a JIT bug from a host resource exhaustion.
type OSError struct {
	Syscall string
	Err     error
}

func (e *OSError) Error() string {
	return fmt.Sprintf("jit: %s: %v", e.Syscall, e.Err)
}

func (e *OSError) Unwrap() error {
	return e.Err
}

func newOSError(syscall string, err error) *OSError {
	return &OSError{Syscall: syscall, Err: err}
}
