package mc

// CodeHolder owns every function and global this module has produced
// machine code for, and relocates them into caller-supplied destination
// buffers in one pass — the in-memory counterpart to
// format/elf/writer.go's section-relative layout, minus the object-file
// framing (there is no ELF/PE container here; jit.Runtime copies
// CodeHolder's bytes straight into executable memory).
type CodeHolder struct {
	functions []*Function
	byName    map[string]*Function

	encoder *Encoder

	dataSection []byte
	dataOffsets map[string]int // global name -> byte offset into dataSection
}

func NewCodeHolder() *CodeHolder {
	return &CodeHolder{
		byName:      make(map[string]*Function),
		encoder:     NewEncoder(),
		dataOffsets: make(map[string]int),
	}
}

// AddFunction encodes fn's instructions into the holder's growing code
// buffer and records it by name for later relocation/lookup.
func (h *CodeHolder) AddFunction(fn *Function) {
	h.encoder.EncodeFunction(fn)
	h.functions = append(h.functions, fn)
	h.byName[fn.Name] = fn
}

// AddGlobal reserves size bytes of zero-initialized (or pre-filled, via
// initial) storage for a named global and records its offset.
func (h *CodeHolder) AddGlobal(name string, initial []byte, size int) {
	offset := len(h.dataSection)
	h.dataOffsets[name] = offset
	if len(initial) > 0 {
		h.dataSection = append(h.dataSection, initial...)
		if pad := size - len(initial); pad > 0 {
			h.dataSection = append(h.dataSection, make([]byte, pad)...)
		}
	} else {
		h.dataSection = append(h.dataSection, make([]byte, size)...)
	}
}

// DataSize returns the total byte length of the data section Relocate will
// return, so a caller can size a destination region before calling Relocate.
func (h *CodeHolder) DataSize() int { return len(h.dataSection) }

// Functions returns every function added so far, in insertion order.
func (h *CodeHolder) Functions() []*Function { return h.functions }

// FunctionByName looks up a previously added function.
func (h *CodeHolder) FunctionByName(name string) (*Function, bool) {
	fn, ok := h.byName[name]
	return fn, ok
}

// DataOffsets returns every global's byte offset into the data section
// built by Relocate, keyed by name.
func (h *CodeHolder) DataOffsets() map[string]int {
	out := make(map[string]int, len(h.dataOffsets))
	for name, offset := range h.dataOffsets {
		out[name] = offset
	}
	return out
}

// Relocate patches every outstanding block/call/data fixup and returns
// the final code bytes and data bytes, given codeBase/dataBase — the
// addresses jit.Runtime has already mapped its executable and data
// regions at. callResolver looks up a named external or already-mapped
// function's absolute address (for calls Context.AddGlobalMapping bound
// to a host function rather than one compiled in this holder).
func (h *CodeHolder) Relocate(codeBase, dataBase uintptr, callResolver func(name string) (uintptr, bool)) (code, data []byte, err error) {
	for _, fn := range h.functions {
		h.encoder.ApplyBlockFixups(fn)
	}

	code = h.encoder.Bytes()
	data = h.dataSection

	for _, fx := range h.encoder.CallFixups {
		var target uintptr
		if fx.Callee != nil {
			target = codeBase + uintptr(fx.Callee.Offset)
		} else {
			var addr uintptr
			ok := false
			if callResolver != nil {
				addr, ok = callResolver(fx.CalleeName)
			}
			if !ok {
				return nil, nil, &UnresolvedSymbolError{Name: fx.CalleeName}
			}
			target = addr
		}
		site := codeBase + uintptr(fx.Offset)
		rel := int32(int64(target) - int64(site+4))
		putLittleEndianInt32(code, fx.Offset, rel)
	}

	for _, fx := range h.encoder.DataFixups {
		offset, ok := h.dataOffsets[fx.GlobalName]
		if !ok {
			return nil, nil, &UnresolvedSymbolError{Name: fx.GlobalName}
		}
		target := dataBase + uintptr(offset)
		site := codeBase + uintptr(fx.Offset)
		rel := int32(int64(target) - int64(site+4))
		putLittleEndianInt32(code, fx.Offset, rel)
	}

	return code, data, nil
}

func putLittleEndianInt32(buf []byte, offset int, v int32) {
	buf[offset] = byte(v)
	buf[offset+1] = byte(v >> 8)
	buf[offset+2] = byte(v >> 16)
	buf[offset+3] = byte(v >> 24)
}

// UnresolvedSymbolError reports a call or data reference that never
// found a matching function, global, or host mapping at relocation time.
type UnresolvedSymbolError struct {
	Name string
}

func (e *UnresolvedSymbolError) Error() string {
	return "mc: unresolved symbol " + e.Name
}
