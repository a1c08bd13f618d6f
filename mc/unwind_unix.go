package mc

import (
	"bytes"
	"encoding/binary"
)

// Unix unwind info is a minimal DWARF CIE + one FDE per function, encoded
// with leb128 call-frame instructions, in the idiom of the
// frameSectionCIE/frameSectionFDE structs used for DWARF .debug_frame
// parsing elsewhere in the retrieved example pack — here written instead
// of parsed. __register_frame (jit/registerframe_unix.go) expects exactly
// this byte layout.

const (
	dwarfCFADefCFA        = 0x0c // DW_CFA_def_cfa
	dwarfCFADefCFAOffset  = 0x0e // DW_CFA_def_cfa_offset
	dwarfCFAOffset        = 0x80 // DW_CFA_offset, low 6 bits carry the register
	dwarfCFAAdvanceLoc1   = 0x02
	dwarfRegRBP           = 6
	dwarfRegRSP           = 7
	dwarfRegRA            = 16 // return address column used by x86-64 DWARF
)

func uleb128(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb128(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

// buildCIE returns the Common Information Entry shared by every FDE in
// this module: code alignment factor 1, data alignment factor -8, and the
// def_cfa(rsp, 8) initial rule that holds at function entry (only the
// return address is on the stack).
func buildCIE() []byte {
	var body bytes.Buffer
	body.WriteByte(1)           // CIE version
	body.WriteString("zR\x00")  // augmentation string: 'z' + 'R' (FDE pointer encoding present)
	body.Write(uleb128(1))      // code alignment factor
	body.Write(sleb128(-8))     // data alignment factor
	body.WriteByte(dwarfRegRA)  // return address register column

	body.WriteByte(1)    // augmentation data length
	body.WriteByte(0x1b) // DW_EH_PE_pcrel | DW_EH_PE_sdata4 pointer encoding for the FDE

	body.WriteByte(dwarfCFADefCFA)
	body.Write(uleb128(dwarfRegRSP))
	body.Write(uleb128(8))

	padToAlignment(&body, 8)

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint32(body.Len()+4)) // length excludes the length field itself
	binary.Write(&out, binary.LittleEndian, uint32(0))            // CIE ID (0 marks a CIE, vs. a CIE-pointer in an FDE)
	out.Write(body.Bytes())
	return out.Bytes()
}

// buildFDE returns the Frame Description Entry for one function: a
// push-rbp call-frame-advance, a def_cfa switch to rbp+16, and an
// offset(rbp) rule recording where the prolog saved the caller's rbp —
// exactly the three facts needed to unwind through a dragonbook frame.
func buildFDE(cieOffset uint32, fn *Function, funcOffset uint32) []byte {
	var body bytes.Buffer
	binary.Write(&body, binary.LittleEndian, int32(funcOffset)) // PC-relative start address
	binary.Write(&body, binary.LittleEndian, uint32(fn.Size))   // PC range length
	body.WriteByte(0)                                           // augmentation data length (none)

	pushOffset := 0
	for _, inst := range fn.Prolog.Insts {
		switch inst.UnwindHint {
		case UnwindPushNonvolatile:
			if inst.Operands[0].Reg.Physical == RBP {
				body.WriteByte(dwarfCFAAdvanceLoc1)
				body.WriteByte(byte(pushOffset))
				body.WriteByte(dwarfCFAOffset | dwarfRegRBP)
				body.Write(uleb128(2)) // rbp saved at CFA-16, in units of the 8-byte data alignment factor
			}
		case UnwindSetFramePointer:
			body.WriteByte(dwarfCFADefCFAOffset)
			body.Write(uleb128(16))
		}
		pushOffset += 1
	}

	padToAlignment(&body, 8)

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint32(body.Len()+8))
	binary.Write(&out, binary.LittleEndian, cieOffset)
	out.Write(body.Bytes())
	return out.Bytes()
}

func padToAlignment(buf *bytes.Buffer, align int) {
	for buf.Len()%align != 0 {
		buf.WriteByte(0) // DW_CFA_nop
	}
}

// BuildUnixUnwindSection renders the full .eh_frame-equivalent byte
// stream for every function in fns, in layout order, returning it
// alongside each function's FDE byte offset (needed by
// jit.Runtime.registerUnwindFrames: macOS registers each FDE
// individually via __register_frame, Linux registers the whole section
// in one call).
func BuildUnixUnwindSection(fns []*Function) (section []byte, fdeOffsets []int) {
	var buf bytes.Buffer
	cie := buildCIE()
	buf.Write(cie)

	fdeOffsets = make([]int, len(fns))
	for i, fn := range fns {
		fdeOffsets[i] = buf.Len()
		buf.Write(buildFDE(uint32(buf.Len()), fn, uint32(fn.Offset)))
	}
	return buf.Bytes(), fdeOffsets
}
