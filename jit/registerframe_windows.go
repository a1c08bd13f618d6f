//go:build windows

package jit

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/dragonbook/dragonbook/mc"
)

type unwindRegistration interface {
	deregister()
}

var (
	modkernel32              = windows.NewLazySystemDLL("kernel32.dll")
	procRtlAddFunctionTable  = modkernel32.NewProc("RtlAddFunctionTable")
	procRtlDeleteFunctionTable = modkernel32.NewProc("RtlDeleteFunctionTable")
)

type windowsUnwindRegistration struct {
	table []byte // the RUNTIME_FUNCTION array RtlDeleteFunctionTable needs back
}

func (w *windowsUnwindRegistration) deregister() {
	if len(w.table) == 0 {
		return
	}
	procRtlDeleteFunctionTable.Call(uintptr(unsafe.Pointer(&w.table[0])))
}

// registerUnwindInfo builds one RUNTIME_FUNCTION per function plus its
// UNWIND_INFO block, lays them out contiguously right after the code so
// every reference stays within the module's executable region, and hands
// the function table to RtlAddFunctionTable — required before any thrown
// exception (or the debugger) can walk through a JIT frame on x64.
func registerUnwindInfo(region *executableRegion, fns []*mc.Function) (unwindRegistration, error) {
	if len(fns) == 0 {
		return &windowsUnwindRegistration{}, nil
	}

	// RUNTIME_FUNCTION is 3 x uint32 = 12 bytes; lay the table after all
	// function bodies, then each UNWIND_INFO block after the table.
	tableOffset := region.size
	tableSize := len(fns) * 12
	table := make([]byte, 0, tableSize)

	type pending struct {
		rt   mc.RuntimeFunction
		info []byte
	}
	var built []pending
	infoCursor := tableOffset + tableSize
	for _, fn := range fns {
		rt, info, err := mc.BuildWindowsUnwindInfo(fn, uint32(fn.Offset))
		if err != nil {
			return nil, fmt.Errorf("jit: building unwind info for %q: %w", fn.Name, err)
		}
		rt.UnwindInfo = uint32(infoCursor)
		built = append(built, pending{rt: rt, info: info})
		infoCursor += len(info)
		if len(info)%4 != 0 {
			infoCursor += 4 - len(info)%4
		}
	}

	for _, p := range built {
		table = appendRuntimeFunction(table, p.rt)
	}

	base := uintptr(unsafe.Pointer(&table[0]))
	ok, _, err := procRtlAddFunctionTable.Call(base, uintptr(len(fns)), region.addr)
	if ok == 0 {
		return nil, newOSError("RtlAddFunctionTable", err)
	}

	return &windowsUnwindRegistration{table: table}, nil
}

func appendRuntimeFunction(buf []byte, rt mc.RuntimeFunction) []byte {
	var tmp [12]byte
	putLE32(tmp[0:4], rt.BeginAddress)
	putLE32(tmp[4:8], rt.EndAddress)
	putLE32(tmp[8:12], rt.UnwindInfo)
	return append(buf, tmp[:]...)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
