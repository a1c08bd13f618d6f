//go:build windows

package mc

// HostConvention is the calling convention native code on this OS uses.
var HostConvention = Win64
