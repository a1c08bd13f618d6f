// Package amd64 names the x86-64 ABI conventions the rest of the
// pipeline is written against. The actual classification and
// argument-assignment logic lives in mc (mc/select.go and mc/regalloc.go
// both need it directly, and mc cannot import back up to this package);
// amd64 re-exports it under the names a caller configuring the pipeline
// reaches for (amd64.SysV, amd64.Win64), mirroring how
// arc-language-core-codegen keeps its ABI table (abi.go) separate from
// the compiler that consumes it even though the two are tightly coupled.
package amd64

import "github.com/dragonbook/dragonbook/mc"

type (
	RegisterName = mc.RegisterName
	Convention   = mc.Convention
	ParamClass   = mc.ParamClass
)

const (
	ParamInteger = mc.ParamInteger
	ParamSSE     = mc.ParamSSE
	ParamMemory  = mc.ParamMemory

	RAX  = mc.RAX
	RCX  = mc.RCX
	RDX  = mc.RDX
	RBX  = mc.RBX
	RSP  = mc.RSP
	RBP  = mc.RBP
	RSI  = mc.RSI
	RDI  = mc.RDI
	R8   = mc.R8
	R9   = mc.R9
	R10  = mc.R10
	R11  = mc.R11
	R12  = mc.R12
	R13  = mc.R13
	R14  = mc.R14
	R15  = mc.R15
	XMM0 = mc.XMM0
	XMM1 = mc.XMM1
	XMM2 = mc.XMM2
	XMM3 = mc.XMM3
	XMM4 = mc.XMM4
	XMM5 = mc.XMM5
	XMM6 = mc.XMM6
	XMM7 = mc.XMM7
)

var (
	SysV  = mc.SysV
	Win64 = mc.Win64
)

var (
	Classify   = mc.Classify
	AssignArgs = mc.AssignArgs
	AlignFrame = mc.AlignFrame
)
