package mc

import "github.com/dragonbook/dragonbook/ir"

// ParamClass says where a parameter value ends up at a call site.
type ParamClass int

const (
	ParamInteger ParamClass = iota
	ParamSSE
	ParamMemory
)

// Convention is a named x86-64 calling convention: which registers carry
// the first integer/pointer and the first floating arguments, how many
// of each are available before arguments spill to the stack, and how
// much "shadow space" the caller must always reserve (zero under SysV,
// 32 bytes under Win64) — grounded in arc-language-core-codegen's
// arch/amd64/abi.go, generalized from its single System V table to the
// System V / Microsoft x64 pair spec.md §1 requires, and shaped after the
// amd64ABI/arm64ABI config-struct idiom used for DataDog's irgen abi
// tables.
type Convention struct {
	Name string

	IntArgRegs   []RegisterName
	FloatArgRegs []RegisterName

	ShadowSpace int // bytes the caller reserves even when unused (Win64: 32)

	CallerSaved []RegisterName
	CalleeSaved []RegisterName
}

// SysV is the System V AMD64 ABI used on Linux and macOS.
var SysV = Convention{
	Name:         "sysv64",
	IntArgRegs:   []RegisterName{RDI, RSI, RDX, RCX, R8, R9},
	FloatArgRegs: []RegisterName{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7},
	ShadowSpace:  0,
	CallerSaved:  []RegisterName{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11},
	CalleeSaved:  []RegisterName{RBX, RBP, R12, R13, R14, R15},
}

// Win64 is the Microsoft x64 calling convention used on Windows.
var Win64 = Convention{
	Name:         "win64",
	IntArgRegs:   []RegisterName{RCX, RDX, R8, R9},
	FloatArgRegs: []RegisterName{XMM0, XMM1, XMM2, XMM3},
	ShadowSpace:  32,
	CallerSaved:  []RegisterName{RAX, RCX, RDX, R8, R9, R10, R11},
	CalleeSaved:  []RegisterName{RBX, RBP, RSI, RDI, R12, R13, R14, R15},
}

// Classify determines where an argument of type t is passed under conv:
// an integer register, an SSE register, or the stack, following the
// simplified SysV/Win64 classification arc-language-core-codegen's
// ClassifyParameter used (aggregates larger than a pointer spill to
// memory rather than being split across multiple registers — a
// deliberate simplification the original teacher code already made).
func Classify(conv Convention, t ir.Type) ParamClass {
	switch t.Kind() {
	case ir.KindFloat, ir.KindDouble:
		return ParamSSE
	case ir.KindStruct:
		if t.AllocSize() > 8 {
			return ParamMemory
		}
		return ParamInteger
	default:
		if t.AllocSize() > 8 {
			return ParamMemory
		}
		return ParamInteger
	}
}

// AssignArgs walks params in order and returns, for each, either the
// physical register it is passed in (ok == true) or marks it as a
// stack-passed argument (ok == false), consuming conv.IntArgRegs and
// conv.FloatArgRegs independently the way SysV requires (exhausting the
// integer bank does not affect float argument assignment, and vice
// versa).
func AssignArgs(conv Convention, params []ir.Type) (regs []RegisterName, onReg []bool) {
	nextInt, nextFloat := 0, 0
	regs = make([]RegisterName, len(params))
	onReg = make([]bool, len(params))
	for i, p := range params {
		switch Classify(conv, p) {
		case ParamSSE:
			if nextFloat < len(conv.FloatArgRegs) {
				regs[i] = conv.FloatArgRegs[nextFloat]
				onReg[i] = true
				nextFloat++
			}
		default:
			if nextInt < len(conv.IntArgRegs) {
				regs[i] = conv.IntArgRegs[nextInt]
				onReg[i] = true
				nextInt++
			}
		}
	}
	return regs, onReg
}

// AlignFrame rounds size up to a 16-byte boundary, the alignment the
// call instruction requires of rsp at every call site.
func AlignFrame(size int) int {
	return (size + 15) / 16 * 16
}
