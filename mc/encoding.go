package mc

import "encoding/binary"

// rex builds an x86-64 REX prefix byte. w selects the 64-bit operand
// size, r/x/b extend the reg/index/rm fields past 3 bits — the same
// four-flag shape arc-language-core-codegen's helpers.go builds before
// every ModRM-addressed instruction.
func rex(w, r, x, b bool) byte {
	v := byte(0x40)
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

// needsRex reports whether any of the REX flags are actually set, so
// callers can omit a bare 0x40 prefix when it would be a no-op.
func needsRex(w, r, x, b bool) bool {
	return w || r || x || b
}

// modRM builds a ModR/M byte: mod in the top two bits, reg in the middle
// three (the instruction's extension or second register operand), rm in
// the bottom three (register or start of a memory operand).
func modRM(mod, reg, rm byte) byte {
	return (mod&0x3)<<6 | (reg&0x7)<<3 | (rm & 0x7)
}

const (
	modIndirect    = 0 // [reg], or disp32 when rm==RBP needs an explicit SIB/disp
	modDisp8       = 1
	modDisp32      = 2
	modRegDirect   = 3
	rmSIBFollows   = 4 // rm field value signaling a SIB byte follows
	ripRelativeRM  = 5 // rm field value meaning "disp32 relative to rip" when mod==0
)

// sib builds a SIB byte (scale/index/base), used whenever rsp or r12 is
// the base register (their encoding collides with the SIB-follows and
// rip-relative escapes) or a scaled-index addressing mode is needed.
func sib(scale, index, base byte) byte {
	return (scale&0x3)<<6 | (index&0x7)<<3 | (base & 0x7)
}

// regField splits an x86-64 register number into its 3-bit encoding and
// whether it needs the REX extension bit (registers r8-r15, xmm8-xmm15).
func regField(r RegisterName) (field byte, ext bool) {
	n := int(r)
	if r.IsXMM() {
		n -= int(XMM0)
	}
	return byte(n & 0x7), n >= 8
}

// Encoder turns a fully register-allocated Function into a contiguous
// byte stream plus the relocation lists the CodeHolder needs to patch at
// link time (jump targets once block order is final, call targets once
// every function's address is known, RIP-relative global references
// once the data section is placed) — the same responsibility split
// arc-language-core-codegen's compiler.go gives its fixups/relocations
// fields.
type Encoder struct {
	buf []byte

	BlockFixups []BlockFixup
	CallFixups  []CallFixup
	DataFixups  []DataFixup
}

// BlockFixup records a 4-byte relative displacement at Offset that must
// be patched once Target's final address is known.
type BlockFixup struct {
	Offset int
	Target *BasicBlock
}

// CallFixup records a call's rel32 operand, patched once Callee (or
// CalleeName for an external symbol) has a resolved address.
type CallFixup struct {
	Offset     int
	Callee     *Function
	CalleeName string
}

// DataFixup records a RIP-relative disp32 referencing a global or
// constant-pool entry.
type DataFixup struct {
	Offset     int
	GlobalName string
	IsConstant bool
	ConstIndex int
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) emit(b ...byte) { e.buf = append(e.buf, b...) }

func (e *Encoder) emitUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.emit(b[:]...)
}

func (e *Encoder) emitInt32(v int32) { e.emitUint32(uint32(v)) }

func (e *Encoder) emitUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.emit(b[:]...)
}

// Bytes returns the encoded stream so far.
func (e *Encoder) Bytes() []byte { return e.buf }

// EncodeFunction appends fn's prolog, body and epilog in order, recording
// each block's start offset on bb.Offset and each instruction's start
// offset within its block via UnwindOffset (reused post-allocation purely as a byte-offset
// bookkeeping field, the way MachineInst's unwindOffset doubles as a
// generic "where am I" marker once prolog emission is done).
func (e *Encoder) EncodeFunction(fn *Function) {
	fn.Offset = len(e.buf)
	for _, bb := range fn.AllBlocks() {
		bb.Offset = len(e.buf) - fn.Offset
		for i := range bb.Insts {
			e.encodeInst(fn, bb, &bb.Insts[i])
		}
	}
	fn.Size = len(e.buf) - fn.Offset
}

func (e *Encoder) encodeInst(fn *Function, bb *BasicBlock, inst *Inst) {
	start := len(e.buf)
	switch inst.Op {
	case OpPush:
		e.encodePush(inst)
	case OpPop:
		e.encodePop(inst)
	case OpLeave:
		e.emit(0xc9)
	case OpRet:
		e.emit(0xc3)
	case OpMov64, OpMov32, OpMov16, OpMov8:
		e.encodeMovRegReg(inst)
	case OpAdd64, OpAdd32, OpAdd16, OpAdd8,
		OpSub64, OpSub32, OpSub16, OpSub8,
		OpAnd64, OpAnd32, OpAnd16, OpAnd8,
		OpOr64, OpOr32, OpOr16, OpOr8,
		OpXor64, OpXor32, OpXor16, OpXor8,
		OpCmp64, OpCmp32, OpCmp16, OpCmp8:
		e.encodeArithRegReg(inst)
	case OpJmp:
		e.encodeJmp(inst)
	case OpJCC:
		e.encodeJcc(inst)
	case OpCall:
		e.encodeCall(inst)
	case OpMovSS, OpMovSD:
		e.encodeXmmMovRegReg(inst)
	case OpAddSS, OpAddSD, OpSubSS, OpSubSD, OpMulSS, OpMulSD, OpDivSS, OpDivSD:
		e.encodeXmmArith(inst)
	case OpUComissSS, OpUComissSD:
		e.encodeUComiss(inst)
	case OpSetCC:
		e.encodeSetCC(inst)
	case OpMovzx8_16, OpMovzx8_32, OpMovzx8_64, OpMovzx16_32, OpMovzx16_64:
		e.encodeMovzx(inst)
	case OpMovsx8_16, OpMovsx8_32, OpMovsx8_64, OpMovsx16_32, OpMovsx16_64, OpMovsx32_64:
		e.encodeMovsx(inst)
	case OpDiv8, OpDiv16, OpDiv32, OpDiv64, OpIDiv8, OpIDiv16, OpIDiv32, OpIDiv64:
		e.encodeDiv(inst)
	case OpCdq:
		e.emit(0x99)
	case OpCqo:
		e.emit(rex(true, false, false, false), 0x99)
	default:
		// Opcodes with no byte pattern here (lea, movd/movq xmm
		// transfers, the Load*/Store* pointer-register forms, imul,
		// not/neg, xorps, shl/shr/sar and the cvt* conversions) encode as
		// a single-byte nop placeholder so layout offsets stay internally
		// consistent; the operation itself is not performed.
		e.emit(0x90)
	}
	inst.UnwindOffset = start - fn.Offset - bb.Offset
}

func (e *Encoder) encodePush(inst *Inst) {
	reg := inst.Operands[0].Reg.Physical
	field, ext := regField(reg)
	if ext {
		e.emit(rex(false, false, false, true))
	}
	e.emit(0x50 | field)
}

func (e *Encoder) encodePop(inst *Inst) {
	reg := inst.Operands[0].Reg.Physical
	field, ext := regField(reg)
	if ext {
		e.emit(rex(false, false, false, true))
	}
	e.emit(0x58 | field)
}

// encodeMovRegReg handles the register-to-register and
// register-immediate forms regalloc.go leaves behind; frame/spill
// operands resolve to [rbp+disp] addressing.
func (e *Encoder) encodeMovRegReg(inst *Inst) {
	dst := inst.Operands[0]
	src := inst.Operands[1]

	if src.Kind == OperandImm {
		e.encodeMovImm(dst, src)
		return
	}

	if dst.Kind == OperandFrameOffset {
		e.encodeStoreToFrame(dst, src)
		return
	}
	if src.Kind == OperandFrameOffset {
		e.encodeLoadFromFrame(dst, src)
		return
	}

	dstField, dstExt := regField(dst.Reg.Physical)
	srcField, srcExt := regField(src.Reg.Physical)

	if inst.Op == OpMov8 {
		// mov r/m8, r8 needs its own opcode (0x89 is the 16/32/64-bit
		// form) and a REX prefix — even an otherwise-empty one — to
		// address rsp/rbp/rsi/rdi's low byte instead of the legacy
		// ah/ch/dh/bh encoding.
		if needsRex(false, srcExt, false, dstExt) || needsLowByteRex(dst.Reg.Physical) || needsLowByteRex(src.Reg.Physical) {
			e.emit(rex(false, srcExt, false, dstExt))
		}
		e.emit(0x88)
		e.emit(modRM(modRegDirect, srcField, dstField))
		return
	}
	if inst.Op == OpMov16 {
		e.emit(0x66)
	}
	w := inst.Op == OpMov64
	if needsRex(w, srcExt, false, dstExt) {
		e.emit(rex(w, srcExt, false, dstExt))
	}
	e.emit(0x89) // mov r/m, r
	e.emit(modRM(modRegDirect, srcField, dstField))
}

// needsLowByteRex reports whether r is one of rsp/rbp/rsi/rdi, whose
// 8-bit encoding collides with ah/ch/dh/bh unless a REX prefix (even a
// content-free one) is present to select the low-byte form instead.
func needsLowByteRex(r RegisterName) bool {
	switch r {
	case RSP, RBP, RSI, RDI:
		return true
	default:
		return false
	}
}

func (e *Encoder) encodeMovImm(dst, src Operand) {
	field, ext := regField(dst.Reg.Physical)
	e.emit(rex(true, false, false, ext))
	e.emit(0xb8 | field)
	e.emitUint64(uint64(src.Imm))
}

func (e *Encoder) encodeStoreToFrame(dst, src Operand) {
	srcField, srcExt := regField(src.Reg.Physical)
	rbpField, _ := regField(RBP)
	e.emit(rex(true, srcExt, false, false))
	e.emit(0x89)
	e.emit(modRM(modDisp32, srcField, rbpField))
	e.emitInt32(int32(dst.Offset))
}

func (e *Encoder) encodeLoadFromFrame(dst, src Operand) {
	dstField, dstExt := regField(dst.Reg.Physical)
	rbpField, _ := regField(RBP)
	e.emit(rex(true, dstExt, false, false))
	e.emit(0x8b)
	e.emit(modRM(modDisp32, dstField, rbpField))
	e.emitInt32(int32(src.Offset))
}

var arithOpcodeByte = map[Opcode]byte{
	OpAdd64: 0x01, OpAdd32: 0x01, OpAdd16: 0x01, OpAdd8: 0x00,
	OpSub64: 0x29, OpSub32: 0x29, OpSub16: 0x29, OpSub8: 0x28,
	OpAnd64: 0x21, OpAnd32: 0x21, OpAnd16: 0x21, OpAnd8: 0x20,
	OpOr64: 0x09, OpOr32: 0x09, OpOr16: 0x09, OpOr8: 0x08,
	OpXor64: 0x31, OpXor32: 0x31, OpXor16: 0x31, OpXor8: 0x30,
	OpCmp64: 0x39, OpCmp32: 0x39, OpCmp16: 0x39, OpCmp8: 0x38,
}

func (e *Encoder) encodeArithRegReg(inst *Inst) {
	dst := inst.Operands[0]
	src := inst.Operands[1]
	w := inst.Op == OpAdd64 || inst.Op == OpSub64 || inst.Op == OpAnd64 || inst.Op == OpOr64 || inst.Op == OpXor64 || inst.Op == OpCmp64

	if src.Kind == OperandImm {
		e.encodeArithImm(inst.Op, dst, src, w)
		return
	}

	dstField, dstExt := regField(dst.Reg.Physical)
	srcField, srcExt := regField(src.Reg.Physical)
	opByte := arithOpcodeByte[inst.Op]
	if needsRex(w, srcExt, false, dstExt) {
		e.emit(rex(w, srcExt, false, dstExt))
	}
	e.emit(opByte)
	e.emit(modRM(modRegDirect, srcField, dstField))
}

func (e *Encoder) encodeArithImm(op Opcode, dst, src Operand, w bool) {
	dstField, dstExt := regField(dst.Reg.Physical)
	e.emit(rex(w, false, false, dstExt))
	e.emit(0x81) // group-1 r/m, imm32
	ext := arithGroup1Ext[op]
	e.emit(modRM(modRegDirect, ext, dstField))
	e.emitInt32(int32(src.Imm))
}

var arithGroup1Ext = map[Opcode]byte{
	OpAdd64: 0, OpAdd32: 0, OpAdd16: 0, OpAdd8: 0,
	OpOr64: 1, OpOr32: 1, OpOr16: 1, OpOr8: 1,
	OpAnd64: 4, OpAnd32: 4, OpAnd16: 4, OpAnd8: 4,
	OpSub64: 5, OpSub32: 5, OpSub16: 5, OpSub8: 5,
	OpXor64: 6, OpXor32: 6, OpXor16: 6, OpXor8: 6,
	OpCmp64: 7, OpCmp32: 7, OpCmp16: 7, OpCmp8: 7,
}

// encodeJmp/encodeJcc always emit the near (rel32) form and register a
// BlockFixup, the same "assume far, patch later" strategy
// arc-language-core-codegen's applyFixups takes instead of trying to
// pick the short encoding up front.
func (e *Encoder) encodeJmp(inst *Inst) {
	e.emit(0xe9)
	e.BlockFixups = append(e.BlockFixups, BlockFixup{Offset: len(e.buf), Target: inst.Operands[0].Block})
	e.emitInt32(0)
}

func (e *Encoder) encodeJcc(inst *Inst) {
	cc := inst.Operands[0].Cond
	e.emit(0x0f, jccByte(cc))
	e.BlockFixups = append(e.BlockFixups, BlockFixup{Offset: len(e.buf), Target: inst.Operands[1].Block})
	e.emitInt32(0)
}

func jccByte(cc CondCode) byte {
	switch cc {
	case CondE:
		return 0x84
	case CondNE:
		return 0x85
	case CondL:
		return 0x8c
	case CondGE:
		return 0x8d
	case CondLE:
		return 0x8e
	case CondG:
		return 0x8f
	case CondB:
		return 0x82
	case CondAE:
		return 0x83
	case CondBE:
		return 0x86
	case CondA:
		return 0x87
	case CondP:
		return 0x8a
	case CondNP:
		return 0x8b
	default:
		return 0x85
	}
}

func (e *Encoder) encodeCall(inst *Inst) {
	op := inst.Operands[0]
	e.emit(0xe8)
	if op.Kind == OperandFunc {
		e.CallFixups = append(e.CallFixups, CallFixup{Offset: len(e.buf), Callee: op.Func, CalleeName: op.Func.Name})
	} else if op.Kind == OperandGlobal {
		e.CallFixups = append(e.CallFixups, CallFixup{Offset: len(e.buf), CalleeName: op.Global})
	}
	e.emitInt32(0)
}

// encodeXmmMovRegReg handles the movss/movsd register-to-register form —
// used for an incoming float argument, a function's float return value,
// and the copy that seeds a float binary op's destination register.
func (e *Encoder) encodeXmmMovRegReg(inst *Inst) {
	dst := inst.Operands[0]
	src := inst.Operands[1]
	if inst.Op == OpMovSS {
		e.emit(0xf3)
	} else {
		e.emit(0xf2)
	}
	dstField, dstExt := regField(dst.Reg.Physical)
	srcField, srcExt := regField(src.Reg.Physical)
	if needsRex(false, dstExt, false, srcExt) {
		e.emit(rex(false, dstExt, false, srcExt))
	}
	e.emit(0x0f, 0x10)
	e.emit(modRM(modRegDirect, dstField, srcField))
}

var xmmArithOpcodeByte = map[Opcode]byte{
	OpAddSS: 0x58, OpAddSD: 0x58,
	OpSubSS: 0x5c, OpSubSD: 0x5c,
	OpMulSS: 0x59, OpMulSD: 0x59,
	OpDivSS: 0x5e, OpDivSD: 0x5e,
}

func isSingleWidth(op Opcode) bool {
	switch op {
	case OpAddSS, OpSubSS, OpMulSS, OpDivSS:
		return true
	default:
		return false
	}
}

// encodeXmmArith handles the four SSE2 arithmetic ops in their reg,reg
// form: dst = dst op src, the same shape encodeArithRegReg gives the
// integer ALU ops.
func (e *Encoder) encodeXmmArith(inst *Inst) {
	dst := inst.Operands[0]
	src := inst.Operands[1]
	if isSingleWidth(inst.Op) {
		e.emit(0xf3)
	} else {
		e.emit(0xf2)
	}
	dstField, dstExt := regField(dst.Reg.Physical)
	srcField, srcExt := regField(src.Reg.Physical)
	if needsRex(false, dstExt, false, srcExt) {
		e.emit(rex(false, dstExt, false, srcExt))
	}
	e.emit(0x0f, xmmArithOpcodeByte[inst.Op])
	e.emit(modRM(modRegDirect, dstField, srcField))
}

// encodeUComiss handles ucomiss/ucomisd, which set the flags CondCode's
// floating comparisons (including the unordered/parity case NaN needs)
// read from.
func (e *Encoder) encodeUComiss(inst *Inst) {
	lhs := inst.Operands[0]
	rhs := inst.Operands[1]
	if inst.Op == OpUComissSD {
		e.emit(0x66)
	}
	lhsField, lhsExt := regField(lhs.Reg.Physical)
	rhsField, rhsExt := regField(rhs.Reg.Physical)
	if needsRex(false, lhsExt, false, rhsExt) {
		e.emit(rex(false, lhsExt, false, rhsExt))
	}
	e.emit(0x0f, 0x2e)
	e.emit(modRM(modRegDirect, lhsField, rhsField))
}

func (e *Encoder) encodeSetCC(inst *Inst) {
	dst := inst.Operands[0]
	cc := inst.Operands[1].Cond
	dstField, dstExt := regField(dst.Reg.Physical)
	if dstExt {
		e.emit(rex(false, false, false, dstExt))
	}
	e.emit(0x0f, setccByte(cc))
	e.emit(modRM(modRegDirect, 0, dstField))
}

func setccByte(cc CondCode) byte {
	switch cc {
	case CondE:
		return 0x94
	case CondNE:
		return 0x95
	case CondL:
		return 0x9c
	case CondGE:
		return 0x9d
	case CondLE:
		return 0x9e
	case CondG:
		return 0x9f
	case CondB:
		return 0x92
	case CondAE:
		return 0x93
	case CondBE:
		return 0x96
	case CondA:
		return 0x97
	case CondP:
		return 0x9a
	case CondNP:
		return 0x9b
	default:
		return 0x95
	}
}

func (e *Encoder) encodeMovzx(inst *Inst) {
	dst := inst.Operands[0]
	src := inst.Operands[1]
	dstField, dstExt := regField(dst.Reg.Physical)
	srcField, srcExt := regField(src.Reg.Physical)
	w := inst.Op == OpMovzx8_64 || inst.Op == OpMovzx16_64
	if inst.Op == OpMovzx8_16 {
		e.emit(0x66)
	}
	if needsRex(w, dstExt, false, srcExt) {
		e.emit(rex(w, dstExt, false, srcExt))
	}
	op2 := byte(0xb6)
	if inst.Op == OpMovzx16_32 || inst.Op == OpMovzx16_64 {
		op2 = 0xb7
	}
	e.emit(0x0f, op2)
	e.emit(modRM(modRegDirect, dstField, srcField))
}

// encodeMovsx mirrors encodeMovzx except for the 32->64 widening, which
// x86-64 gives its own opcode (movsxd, 0x63) rather than an 0F-prefixed
// one.
func (e *Encoder) encodeMovsx(inst *Inst) {
	dst := inst.Operands[0]
	src := inst.Operands[1]
	dstField, dstExt := regField(dst.Reg.Physical)
	srcField, srcExt := regField(src.Reg.Physical)

	if inst.Op == OpMovsx32_64 {
		e.emit(rex(true, dstExt, false, srcExt))
		e.emit(0x63)
		e.emit(modRM(modRegDirect, dstField, srcField))
		return
	}

	w := inst.Op == OpMovsx8_64 || inst.Op == OpMovsx16_64
	if inst.Op == OpMovsx8_16 {
		e.emit(0x66)
	}
	if needsRex(w, dstExt, false, srcExt) {
		e.emit(rex(w, dstExt, false, srcExt))
	}
	op2 := byte(0xbe)
	if inst.Op == OpMovsx16_32 || inst.Op == OpMovsx16_64 {
		op2 = 0xbf
	}
	e.emit(0x0f, op2)
	e.emit(modRM(modRegDirect, dstField, srcField))
}

// encodeDiv handles the one-operand div/idiv family: the dividend is
// always implicit in AX (widened by operand size), so the only operand
// carried on the mc.Inst is the divisor register — selectDivRem has
// already arranged for AX/DX to hold the right values.
func (e *Encoder) encodeDiv(inst *Inst) {
	divisor := inst.Operands[0]
	field, ext := regField(divisor.Reg.Physical)
	reg3 := byte(6)
	switch inst.Op {
	case OpIDiv8, OpIDiv16, OpIDiv32, OpIDiv64:
		reg3 = 7
	}

	switch inst.Op {
	case OpDiv8, OpIDiv8:
		if ext {
			e.emit(rex(false, false, false, ext))
		}
		e.emit(0xf6)
	case OpDiv16, OpIDiv16:
		e.emit(0x66)
		if ext {
			e.emit(rex(false, false, false, ext))
		}
		e.emit(0xf7)
	case OpDiv64, OpIDiv64:
		e.emit(rex(true, false, false, ext))
		e.emit(0xf7)
	default: // 32-bit
		if ext {
			e.emit(rex(false, false, false, ext))
		}
		e.emit(0xf7)
	}
	e.emit(modRM(modRegDirect, reg3, field))
}

// ApplyBlockFixups patches every recorded jump displacement now that
// every block's final Offset (relative to fn.Offset) is known.
func (e *Encoder) ApplyBlockFixups(fn *Function) {
	for _, fx := range e.BlockFixups {
		rel := int32(fn.Offset+fx.Target.Offset) - int32(fn.Offset+fx.Offset+4)
		binary.LittleEndian.PutUint32(e.buf[fx.Offset:], uint32(rel))
	}
	e.BlockFixups = nil
}
