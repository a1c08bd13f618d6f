package mc

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Windows x64 unwind metadata: one RUNTIME_FUNCTION per function plus an
// UNWIND_INFO/UNWIND_CODE block describing how its prolog changed the
// frame, encoded with the same struct+binary.Write discipline
// format/elf/writer.go uses for ELF section/symbol headers — just
// targeting the PE unwind tables instead.

type RuntimeFunction struct {
	BeginAddress uint32
	EndAddress   uint32
	UnwindInfo   uint32 // RVA of the UNWIND_INFO block
}

const (
	unwFlagNone   = 0
	unwindVersion = 1

	uwopPushNonvol     = 0
	uwopAllocLarge     = 1
	uwopAllocSmall     = 2
	uwopSetFPReg       = 3
)

type unwindCode struct {
	CodeOffset uint8
	UnwindOp   uint8 // stored in the low nibble of the packed byte
	OpInfo     uint8 // stored in the high nibble of the packed byte
}

// pack lays the code out the way UNWIND_CODE does: CodeOffset as the low
// byte, (OpInfo<<4 | UnwindOp) as the high byte of one little-endian
// USHORT.
func (c unwindCode) pack() uint16 {
	high := (c.OpInfo << 4) | (c.UnwindOp & 0x0F)
	return uint16(c.CodeOffset) | uint16(high)<<8
}

// BuildWindowsUnwindInfo renders fn's RUNTIME_FUNCTION and UNWIND_INFO
// records. codeOffset is fn's byte offset within the function table's
// code section. The frame-register offset in the header is always 0:
// dragonbook always sets rbp to rsp exactly, per the prolog regalloc.go
// emits.
func BuildWindowsUnwindInfo(fn *Function, codeOffset uint32) (rt RuntimeFunction, unwindInfo []byte, err error) {
	var codes []unwindCode
	for _, inst := range fn.Prolog.Insts {
		switch inst.UnwindHint {
		case UnwindPushNonvolatile:
			reg := inst.Operands[0].Reg.Physical
			codes = append(codes, unwindCode{CodeOffset: uint8(inst.UnwindOffset), UnwindOp: uwopPushNonvol, OpInfo: uint8(reg)})
		case UnwindSetFramePointer:
			codes = append(codes, unwindCode{CodeOffset: uint8(inst.UnwindOffset), UnwindOp: uwopSetFPReg, OpInfo: 0})
		case UnwindAllocStack:
			size := inst.Operands[1].Imm
			if size <= 0 {
				continue
			}
			if size <= 128 {
				codes = append(codes, unwindCode{CodeOffset: uint8(inst.UnwindOffset), UnwindOp: uwopAllocSmall, OpInfo: uint8(size/8 - 1)})
			} else if size <= 0x7FFF8 {
				codes = append(codes, unwindCode{CodeOffset: uint8(inst.UnwindOffset), UnwindOp: uwopAllocLarge, OpInfo: 0})
			} else {
				return rt, nil, fmt.Errorf("mc: stack frame of %d bytes exceeds UNWIND_INFO's large-allocation encoding", size)
			}
		}
	}

	var buf bytes.Buffer
	header := struct {
		VersionAndFlags uint8
		SizeOfProlog    uint8
		CountOfCodes    uint8
		FrameRegister   uint8 // low nibble register, high nibble scaled offset
	}{
		VersionAndFlags: unwindVersion | unwFlagNone<<3,
		SizeOfProlog:    uint8(prologSize(fn)),
		CountOfCodes:    uint8(len(codes)),
		FrameRegister:   uint8(RBP),
	}
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return rt, nil, fmt.Errorf("mc: encoding UNWIND_INFO header: %w", err)
	}
	// UNWIND_CODE array is stored in reverse prolog order.
	for i := len(codes) - 1; i >= 0; i-- {
		if err := binary.Write(&buf, binary.LittleEndian, codes[i].pack()); err != nil {
			return rt, nil, fmt.Errorf("mc: encoding UNWIND_CODE %d: %w", i, err)
		}
	}
	if len(codes)%2 == 1 {
		if err := binary.Write(&buf, binary.LittleEndian, uint16(0)); err != nil {
			return rt, nil, err
		}
	}

	rt = RuntimeFunction{
		BeginAddress: codeOffset,
		EndAddress:   codeOffset + uint32(fn.Size),
	}
	return rt, buf.Bytes(), nil
}

// prologSize sums a fixed per-opcode length estimate for every prolog
// instruction. It does not consult the Encoder's output, so unwind info
// can be sized without a full encoding pass.
func prologSize(fn *Function) int {
	size := 0
	for _, inst := range fn.Prolog.Insts {
		switch inst.Op {
		case OpPush:
			size += 2 // REX.B? + push reg
		case OpMov64:
			size += 3 // rex + mov modrm
		case OpSub64:
			size += 7 // rex + sub r/m64, imm32
		}
	}
	return size
}
