// Package jit turns relocated machine code into running native
// functions: it owns the executable memory, the symbol table mapping
// names to native addresses, and the OS-level unwind registration every
// platform needs before a thrown exception or a stack-trace request can
// walk through JIT-compiled frames.
package jit

import (
	"fmt"
	"sync"

	"github.com/dragonbook/dragonbook/ir"
	"github.com/dragonbook/dragonbook/mc"
)

// Runtime owns one module's worth of compiled code: it is not safe for
// concurrent Add calls (matching ir.Context's single-threaded contract),
// but GetPointerToFunction/GetPointerToGlobal/CaptureStackTrace may be
// called concurrently with each other once Add has finished, since they
// only read the already-published tables.
type Runtime struct {
	mu sync.RWMutex

	holder *mc.CodeHolder

	codeRegion *executableRegion
	dataRegion *executableRegion

	functionAddrs map[string]uintptr
	globalAddrs   map[string]uintptr
	symbols       *symbolTable

	unwindHandle unwindRegistration
}

// NewRuntime creates an empty Runtime ready to receive a single Add call.
func NewRuntime() *Runtime {
	return &Runtime{
		holder:        mc.NewCodeHolder(),
		functionAddrs: make(map[string]uintptr),
		globalAddrs:   make(map[string]uintptr),
	}
}

// Add compiles every function and global in ctx's module through
// selection, register allocation and encoding, maps the result into
// executable memory, resolves every relocation (consulting ctx's
// host-bound mappings added via Context.AddGlobalMapping for symbols not
// defined in this module), and registers the module's unwind info with
// the OS. It may be called at most once per Runtime.
func (rt *Runtime) Add(ctx *ir.Context, conv mc.Convention) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for _, g := range ctx.Globals() {
		initial := encodeInitializer(g.Initializer, g.ElemType().AllocSize())
		rt.holder.AddGlobal(g.Name, initial, g.ElemType().AllocSize())
	}

	sel := mc.NewSelector(conv)
	alloc := mc.NewRegisterAllocator(conv)
	for _, fn := range ctx.Functions() {
		if _, mapped := ctx.GlobalMapping(fn); mapped {
			continue // bound to an existing host function; nothing to compile
		}
		mfn, err := sel.Select(fn)
		if err != nil {
			return fmt.Errorf("jit: selecting %q: %w", fn.Name, err)
		}
		if err := alloc.Allocate(mfn); err != nil {
			return fmt.Errorf("jit: allocating registers for %q: %w", fn.Name, err)
		}
		rt.holder.AddFunction(mfn)
	}

	codeSize := 0
	for _, fn := range rt.holder.Functions() {
		if end := fn.Offset + fn.Size; end > codeSize {
			codeSize = end
		}
	}

	region, err := allocExecutable(codeSize)
	if err != nil {
		return fmt.Errorf("jit: allocating executable memory: %w", err)
	}

	// Globals live in their own mapped region, distinct from the code
	// region — Relocate needs the data region's real base address before
	// it can compute correct data-fixup displacements, so this is sized
	// and allocated from the holder's data section up front, the same way
	// codeSize is derived from the holder's functions above.
	dataRegion, err := allocExecutable(rt.holder.DataSize())
	if err != nil {
		region.free()
		return fmt.Errorf("jit: allocating data memory: %w", err)
	}

	resolver := func(name string) (uintptr, bool) {
		if addr, ok := rt.functionAddrs[name]; ok {
			return addr, true
		}
		return hostMappingByName(ctx, name)
	}

	code, data, err := rt.holder.Relocate(region.addr, dataRegion.addr, resolver)
	if err != nil {
		region.free()
		dataRegion.free()
		return fmt.Errorf("jit: relocating: %w", err)
	}
	copy(region.bytes, code)
	copy(dataRegion.bytes, data)
	if err := region.makeExecutable(); err != nil {
		region.free()
		dataRegion.free()
		return fmt.Errorf("jit: protecting executable region: %w", err)
	}

	rt.codeRegion = region
	rt.dataRegion = dataRegion

	offsets := make(map[string]struct{ offset, size int })
	for _, fn := range rt.holder.Functions() {
		rt.functionAddrs[fn.Name] = region.addr + uintptr(fn.Offset)
		offsets[fn.Name] = struct{ offset, size int }{fn.Offset, fn.Size}
	}
	for name, offset := range rt.holder.DataOffsets() {
		rt.globalAddrs[name] = dataRegion.addr + uintptr(offset)
	}
	rt.symbols = newSymbolTable(region.addr, offsets)

	handle, err := registerUnwindInfo(region, rt.holder.Functions())
	if err != nil {
		return fmt.Errorf("jit: registering unwind info: %w", err)
	}
	rt.unwindHandle = handle

	return nil
}

// GetPointerToFunction returns the native address of a compiled or
// host-bound function, or false if name is unknown.
func (rt *Runtime) GetPointerToFunction(name string) (uintptr, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	addr, ok := rt.functionAddrs[name]
	return addr, ok
}

// GetPointerToGlobal returns the native address of a compiled global.
func (rt *Runtime) GetPointerToGlobal(name string) (uintptr, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	addr, ok := rt.globalAddrs[name]
	return addr, ok
}

// Close deregisters unwind info and releases the executable memory
// region. The Runtime must not be used afterward.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.unwindHandle != nil {
		rt.unwindHandle.deregister()
	}
	var err error
	if rt.codeRegion != nil {
		if ferr := rt.codeRegion.free(); ferr != nil {
			err = ferr
		}
	}
	if rt.dataRegion != nil {
		if ferr := rt.dataRegion.free(); ferr != nil {
			err = ferr
		}
	}
	return err
}

func hostMappingByName(ctx *ir.Context, name string) (uintptr, bool) {
	for _, fn := range ctx.Functions() {
		if fn.Name == name {
			return ctx.GlobalMapping(fn)
		}
	}
	for _, g := range ctx.Globals() {
		if g.Name == name {
			return ctx.GlobalMapping(g)
		}
	}
	return 0, false
}

func encodeInitializer(init ir.Constant, size int) []byte {
	if init == nil {
		return nil
	}
	buf := make([]byte, size)
	switch c := init.(type) {
	case *ir.ConstantInt:
		for i := 0; i < size && i < 8; i++ {
			buf[i] = byte(c.Value >> (8 * i))
		}
	}
	return buf
}
