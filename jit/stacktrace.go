package jit

// Frame is one entry in a captured stack trace: the return address and,
// if it falls inside this Runtime's code region, the function it belongs
// to.
type Frame struct {
	PC           uintptr
	FunctionName string
	Known        bool
}

// CaptureStackTrace walks the rbp chain starting at fromRBP (the value a
// caller reads out of its own rbp, or passes down from a signal/trap
// handler) and resolves every return address it finds against this
// Runtime's symbol table. Every dragonbook prolog pushes rbp and sets
// rbp = rsp before doing anything else, so [rbp] always holds the
// caller's saved rbp and [rbp+8] always holds the return address —
// walking the chain never needs DWARF/CFI at all, only the frame-pointer
// convention regalloc.go's prolog always establishes.
func (rt *Runtime) CaptureStackTrace(fromRBP uintptr, maxFrames int) []Frame {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var frames []Frame
	rbp := fromRBP
	for i := 0; i < maxFrames && rbp != 0; i++ {
		retAddr := readUintptr(rbp + 8)
		if retAddr == 0 {
			break
		}
		name, known := rt.symbols.lookup(retAddr)
		frames = append(frames, Frame{PC: retAddr, FunctionName: name, Known: known})
		if !known {
			break // left dragonbook-compiled territory; the chain may not hold past here
		}
		rbp = readUintptr(rbp)
	}
	return frames
}
