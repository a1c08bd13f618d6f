//go:build linux || darwin

package jit

/*
#include <stddef.h>

extern void __register_frame(const void *);
extern void __deregister_frame(const void *);
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/dragonbook/dragonbook/mc"
)

// unwindRegistration lets Runtime.Close tear down whatever the platform
// registered in registerUnwindInfo, without Runtime needing to know
// which platform it is.
type unwindRegistration interface {
	deregister()
}

type unixUnwindRegistration struct {
	fdePtrs []unsafe.Pointer
	keepAlive []byte // the eh_frame bytes __register_frame points into
}

func (u *unixUnwindRegistration) deregister() {
	for _, p := range u.fdePtrs {
		C.__deregister_frame(p)
	}
}

// registerUnwindInfo builds one synthetic .eh_frame-shaped section
// covering every function in fns and hands each FDE to
// __register_frame individually — the libunwind/libgcc entry point
// every Unix unwinder consults, matching how a JIT must announce frames
// it didn't link into any object file.
func registerUnwindInfo(region *executableRegion, fns []*mc.Function) (unwindRegistration, error) {
	if len(fns) == 0 {
		return &unixUnwindRegistration{}, nil
	}
	section, fdeOffsets := mc.BuildUnixUnwindSection(fns)
	if len(section) == 0 {
		return nil, fmt.Errorf("jit: empty unwind section")
	}

	reg := &unixUnwindRegistration{keepAlive: section}
	base := unsafe.Pointer(&reg.keepAlive[0])
	for _, off := range fdeOffsets {
		p := unsafe.Add(base, off)
		C.__register_frame(p)
		reg.fdePtrs = append(reg.fdePtrs, p)
	}
	return reg, nil
}
