package mc

import (
	"fmt"
	"math"

	"github.com/dragonbook/dragonbook/ir"
)

// Selector lowers one ir.Function into an mc.Function body: every IR
// value gets a virtual register (or, for constants, is materialized
// inline at each use), and every instruction becomes one or more mc.Inst
// following the opcode/size tables below — the same per-opcode dispatch
// style arc-language-core-codegen's controlflow.go/ops.go used, just
// driven off this module's own ir package instead of theirs.
type Selector struct {
	conv Convention

	fn    *ir.Function
	out   *Function
	block *BasicBlock

	values  map[ir.Value]Register
	nextVReg int

	blocks map[*ir.BasicBlock]*BasicBlock

	curFile int
	curLine int
}

// NewSelector prepares a Selector targeting conv (SysV or Win64).
func NewSelector(conv Convention) *Selector {
	return &Selector{conv: conv, values: make(map[ir.Value]Register)}
}

// Select lowers fn, returning the machine-code function body. Stack
// layout and physical-register assignment are not performed here —
// regalloc.go consumes the virtual-register Function this returns.
func (s *Selector) Select(fn *ir.Function) (*Function, error) {
	s.fn = fn
	s.out = NewFunction(fn.Name)
	s.blocks = make(map[*ir.BasicBlock]*BasicBlock, len(fn.Blocks))
	s.values = make(map[ir.Value]Register)
	s.nextVReg = 0

	for _, bb := range fn.Blocks {
		s.blocks[bb] = s.out.CreateBlock(bb.Name)
	}

	if len(fn.Blocks) > 0 {
		s.block = s.blocks[fn.Blocks[0]]
	}
	s.bindArguments(fn)

	for _, bb := range fn.Blocks {
		s.block = s.blocks[bb]
		for _, inst := range bb.Instructions {
			s.curFile, s.curLine = inst.SourceLoc()
			if err := s.selectInst(inst); err != nil {
				return nil, fmt.Errorf("mc: selecting %s in block %q: %w", inst.Opcode(), bb.Name, err)
			}
		}
	}
	return s.out, nil
}

// bindArguments copies every incoming argument out of its ABI-assigned
// location (a register, or a stack slot above the return address for
// arguments that spilled past the register banks) into a fresh virtual
// register, mirroring the entry sequence arc-language-core-codegen's
// compiler.go emits before lowering a function's first block.
func (s *Selector) bindArguments(fn *ir.Function) {
	args := fn.Arguments()
	paramTypes := make([]ir.Type, len(args))
	for i, arg := range args {
		paramTypes[i] = arg.Type()
	}
	regs, onReg := AssignArgs(s.conv, paramTypes)

	// Incoming stack arguments sit above the return address and the
	// caller's saved rbp pushed by this function's own prolog.
	stackOffset := 16
	for i, arg := range args {
		dst := s.newVReg(arg.Type())
		if onReg[i] {
			s.emit(argMoveOpcode(arg.Type()), regOp(dst), regOp(Physical(regs[i])))
		} else {
			s.emit(loadOpcode(arg.Type()), regOp(dst), frameOp(stackOffset))
			stackOffset += 8
		}
		s.values[ir.Value(arg)] = dst
	}
}

func argMoveOpcode(t ir.Type) Opcode {
	if ir.IsFloat(t) {
		if t.Kind() == ir.KindDouble {
			return OpMovSD
		}
		return OpMovSS
	}
	return movImmOpcode(ir.IntBits(t))
}

func (s *Selector) newVReg(t ir.Type) Register {
	class := ClassInt
	if ir.IsFloat(t) {
		class = ClassFloat
	}
	r := Virtual(s.nextVReg, class)
	s.nextVReg++
	return r
}

func (s *Selector) emit(op Opcode, operands ...Operand) {
	inst := NewInst(op, operands...)
	inst.FileIndex, inst.LineNumber = s.curFile, s.curLine
	s.block.Append(*inst)
}

// regFor materializes operand v as a register operand, loading constants
// into a fresh virtual register first (constants have no stable home of
// their own until the encoder emits them inline or into the literal pool).
func (s *Selector) regFor(v ir.Value) Operand {
	switch c := v.(type) {
	case *ir.ConstantInt:
		dst := s.newVReg(c.Type())
		size := ir.IntBits(c.Type())
		s.emit(movImmOpcode(size), regOp(dst), immOp(int64(c.Value)))
		return regOp(dst)
	case *ir.ConstantFP:
		dst := s.newVReg(c.Type())
		var bits int64
		op := OpMovdToXmm
		if c.Type().Kind() == ir.KindDouble {
			bits = int64(math.Float64bits(c.Value))
			op = OpMovqToXmm
		} else {
			bits = int64(math.Float32bits(float32(c.Value)))
		}
		tmp := Virtual(s.nextVReg, ClassInt)
		s.nextVReg++
		s.emit(movImmOpcode(64), regOp(tmp), immOp(bits))
		s.emit(op, regOp(dst), regOp(tmp))
		return regOp(dst)
	default:
		if r, ok := s.values[v]; ok {
			return regOp(r)
		}
		// Forward reference within a single block-local SSA graph should
		// not happen for a verified function; hand back a fresh vreg that
		// no instruction writes rather than panic.
		return regOp(s.newVReg(v.Type()))
	}
}

func movImmOpcode(bits int) Opcode {
	switch {
	case bits <= 8:
		return OpMov8
	case bits <= 16:
		return OpMov16
	case bits <= 32:
		return OpMov32
	default:
		return OpMov64
	}
}

func (s *Selector) selectInst(inst ir.Instruction) error {
	switch v := inst.(type) {
	case *ir.LoadInst:
		return s.selectLoad(v)
	case *ir.StoreInst:
		return s.selectStore(v)
	case *ir.BinaryInst:
		return s.selectBinary(v)
	case *ir.UnaryInst:
		return s.selectUnary(v)
	case *ir.CmpInst:
		return s.selectCmp(v)
	case *ir.CastInst:
		return s.selectCast(v)
	case *ir.CallInst:
		return s.selectCall(v)
	case *ir.GEPInst:
		return s.selectGEP(v)
	case *ir.BrInst:
		s.emit(OpJmp, blockOp(s.blocks[v.Target]))
		return nil
	case *ir.CondBrInst:
		cond := s.regFor(v.Condition)
		s.emit(OpCmp8, cond, immOp(0))
		s.emit(OpJCC, condOp(CondNE), blockOp(s.blocks[v.TrueBlock]))
		s.emit(OpJmp, blockOp(s.blocks[v.FalseBlock]))
		return nil
	case *ir.RetInst:
		return s.selectRet(v)
	case *ir.RetVoidInst:
		s.emit(OpLeave)
		s.emit(OpRet)
		return nil
	case *ir.AllocaInst:
		return s.selectAlloca(v)
	case *ir.PhiInst:
		// Phi nodes are not lowered (pass.PromoteStackToRegister never
		// creates them, so any phi here came from the IR's builder);
		// materialize a vreg so downstream uses still typecheck, leaving
		// its value undefined at runtime.
		s.values[ir.Value(v)] = s.newVReg(v.Type())
		return nil
	default:
		return fmt.Errorf("mc: no lowering for opcode %s", inst.Opcode())
	}
}

func (s *Selector) selectLoad(v *ir.LoadInst) error {
	dst := s.newVReg(v.Type())
	ptr := s.regFor(v.Ptr)
	s.emit(loadOpcode(v.Type()), regOp(dst), ptr)
	s.values[ir.Value(v)] = dst
	return nil
}

func (s *Selector) selectStore(v *ir.StoreInst) error {
	val := s.regFor(v.Val)
	ptr := s.regFor(v.Ptr)
	s.emit(storeOpcode(v.Val.Type()), ptr, val)
	return nil
}

func (s *Selector) selectBinary(v *ir.BinaryInst) error {
	switch v.Opcode() {
	case ir.OpUDiv, ir.OpSDiv, ir.OpURem, ir.OpSRem:
		return s.selectDivRem(v)
	}

	lhs := s.regFor(v.Op1)
	rhs := s.regFor(v.Op2)
	dst := s.newVReg(v.Type())
	op, err := binaryOpcode(v.Opcode(), v.Type())
	if err != nil {
		return err
	}
	s.emit(argMoveOpcode(v.Type()), regOp(dst), lhs)
	s.emit(op, regOp(dst), rhs)
	s.values[ir.Value(v)] = dst
	return nil
}

// selectDivRem lowers [us]div/[us]rem through the x86 one-operand
// div/idiv family: the dividend must sit in AX:DX (widened by operand
// size) and the quotient/remainder come back split across RAX/RDX, so —
// unlike every other binary op — this cannot use an arbitrary pair of
// allocator-chosen registers.
func (s *Selector) selectDivRem(v *ir.BinaryInst) error {
	lhs := s.regFor(v.Op1)
	rhs := s.regFor(v.Op2)
	bits := ir.IntBits(v.Type())
	signed := v.Opcode() == ir.OpSDiv || v.Opcode() == ir.OpSRem
	wantRemainder := v.Opcode() == ir.OpURem || v.Opcode() == ir.OpSRem
	movOp := movImmOpcode(bits)

	// Copy the divisor out to a fresh vreg first: if the allocator later
	// happens to land rhs in RAX or RDX, the setup below would otherwise
	// clobber it before the div reads it.
	divisor := s.newVReg(v.Type())
	s.emit(movOp, regOp(divisor), rhs)

	s.emit(movOp, regOp(Physical(RAX)), lhs)
	if signed {
		s.emit(signExtendOpcode(bits))
	} else {
		s.emit(OpXor32, regOp(Physical(RDX)), regOp(Physical(RDX)))
	}
	s.emit(divOpcode(signed, bits), regOp(divisor))

	dst := s.newVReg(v.Type())
	result := Physical(RAX)
	if wantRemainder {
		result = Physical(RDX)
	}
	s.emit(movOp, regOp(dst), regOp(result))
	s.values[ir.Value(v)] = dst
	return nil
}

func signExtendOpcode(bits int) Opcode {
	if bits > 32 {
		return OpCqo
	}
	return OpCdq
}

func divOpcode(signed bool, bits int) Opcode {
	if signed {
		return widthPick(bits, OpIDiv8, OpIDiv16, OpIDiv32, OpIDiv64)
	}
	return widthPick(bits, OpDiv8, OpDiv16, OpDiv32, OpDiv64)
}

func (s *Selector) selectUnary(v *ir.UnaryInst) error {
	val := s.regFor(v.Val)
	dst := s.newVReg(v.Type())
	var op Opcode
	switch v.Opcode() {
	case ir.OpNeg:
		op = negOpcode(ir.IntBits(v.Type()))
	case ir.OpNot:
		op = notOpcode(ir.IntBits(v.Type()))
	case ir.OpFNeg:
		op = OpXorps
	default:
		return fmt.Errorf("mc: unhandled unary opcode %s", v.Opcode())
	}
	s.emit(argMoveOpcode(v.Type()), regOp(dst), val)
	s.emit(op, regOp(dst))
	s.values[ir.Value(v)] = dst
	return nil
}

func (s *Selector) selectCmp(v *ir.CmpInst) error {
	lhs := s.regFor(v.Op1)
	rhs := s.regFor(v.Op2)
	dst := s.newVReg(v.Type())
	cmpOp := OpCmp64
	if ir.IsFloat(v.Op1.Type()) {
		if v.Op1.Type().Kind() == ir.KindFloat {
			cmpOp = OpUComissSS
		} else {
			cmpOp = OpUComissSD
		}
	} else if ir.IsInteger(v.Op1.Type()) {
		cmpOp = cmpOpcodeForWidth(ir.IntBits(v.Op1.Type()))
	}
	cc, err := condCodeFor(v.Opcode())
	if err != nil {
		return err
	}
	s.emit(cmpOp, lhs, rhs)
	s.emit(OpSetCC, regOp(dst), condOp(cc))
	if isUnorderedFCmp(v.Opcode()) {
		// ucomiss/ucomisd set PF on any NaN operand; the U-prefixed
		// comparisons are true on unordered regardless of the relation
		// being tested, so OR in a parity-set check.
		unordered := s.newVReg(v.Type())
		s.emit(OpSetCC, regOp(unordered), condOp(CondP))
		s.emit(OpOr8, regOp(dst), regOp(unordered))
	}
	s.values[ir.Value(v)] = dst
	return nil
}

func isUnorderedFCmp(op ir.Opcode) bool {
	switch op {
	case ir.OpFCmpUEQ, ir.OpFCmpUNE, ir.OpFCmpULT, ir.OpFCmpUGT, ir.OpFCmpULE, ir.OpFCmpUGE:
		return true
	default:
		return false
	}
}

func condCodeFor(op ir.Opcode) (CondCode, error) {
	switch op {
	case ir.OpICmpEQ, ir.OpFCmpUEQ:
		return CondE, nil
	case ir.OpICmpNE, ir.OpFCmpUNE:
		return CondNE, nil
	case ir.OpICmpSLT:
		return CondL, nil
	case ir.OpICmpSGT:
		return CondG, nil
	case ir.OpICmpSLE:
		return CondLE, nil
	case ir.OpICmpSGE:
		return CondGE, nil
	// ucomiss/ucomisd clear SF/OF on every execution (Intel SDM), so the
	// signed condition codes above never fire for float compares; these
	// share CF/ZF-based codes with the unsigned integer comparisons below.
	case ir.OpFCmpULT:
		return CondB, nil
	case ir.OpFCmpUGT:
		return CondA, nil
	case ir.OpFCmpULE:
		return CondBE, nil
	case ir.OpFCmpUGE:
		return CondAE, nil
	case ir.OpICmpULT:
		return CondB, nil
	case ir.OpICmpUGT:
		return CondA, nil
	case ir.OpICmpULE:
		return CondBE, nil
	case ir.OpICmpUGE:
		return CondAE, nil
	default:
		return 0, fmt.Errorf("mc: no condition code for comparison opcode %s", op)
	}
}

func (s *Selector) selectCast(v *ir.CastInst) error {
	src := s.regFor(v.Val)
	dst := s.newVReg(v.Type())
	op, err := castOpcode(v.Opcode(), v.Val.Type(), v.Type())
	if err != nil {
		return err
	}
	s.emit(op, regOp(dst), src)
	s.values[ir.Value(v)] = dst
	return nil
}

func castOpcode(op ir.Opcode, src, dst ir.Type) (Opcode, error) {
	switch op {
	case ir.OpTrunc:
		return movImmOpcode(ir.IntBits(dst)), nil
	case ir.OpZExt:
		return movzxOpcode(ir.IntBits(src), ir.IntBits(dst))
	case ir.OpSExt:
		return movsxOpcode(ir.IntBits(src), ir.IntBits(dst))
	case ir.OpFPTrunc:
		return OpCvtsd2ss, nil
	case ir.OpFPExt:
		return OpCvtss2sd, nil
	case ir.OpFPToUI, ir.OpFPToSI:
		if src.Kind() == ir.KindFloat {
			return OpCvttss2si, nil
		}
		return OpCvttsd2si, nil
	case ir.OpUIToFP, ir.OpSIToFP:
		if dst.Kind() == ir.KindFloat {
			return OpCvtsi2ss, nil
		}
		return OpCvtsi2sd, nil
	case ir.OpBitCast:
		return OpMov64, nil
	default:
		return 0, fmt.Errorf("mc: unhandled cast opcode %s", op)
	}
}

func movzxOpcode(srcBits, dstBits int) (Opcode, error) {
	// i1 (a CmpInst/SetCC result) lives in an 8-bit register same as i8;
	// widen it the same way.
	switch {
	case srcBits <= 8 && dstBits == 16:
		return OpMovzx8_16, nil
	case srcBits <= 8 && dstBits == 32:
		return OpMovzx8_32, nil
	case srcBits <= 8 && dstBits == 64:
		return OpMovzx8_64, nil
	case srcBits == 16 && dstBits == 32:
		return OpMovzx16_32, nil
	case srcBits == 16 && dstBits == 64:
		return OpMovzx16_64, nil
	case srcBits == 32 && dstBits == 64:
		return OpMov32, nil // writing a 32-bit register zero-extends into the 64-bit register on amd64
	default:
		return 0, fmt.Errorf("mc: no zext path from i%d to i%d", srcBits, dstBits)
	}
}

func movsxOpcode(srcBits, dstBits int) (Opcode, error) {
	switch {
	case srcBits <= 8 && dstBits == 16:
		return OpMovsx8_16, nil
	case srcBits <= 8 && dstBits == 32:
		return OpMovsx8_32, nil
	case srcBits <= 8 && dstBits == 64:
		return OpMovsx8_64, nil
	case srcBits == 16 && dstBits == 32:
		return OpMovsx16_32, nil
	case srcBits == 16 && dstBits == 64:
		return OpMovsx16_64, nil
	case srcBits == 32 && dstBits == 64:
		return OpMovsx32_64, nil
	default:
		return 0, fmt.Errorf("mc: no sext path from i%d to i%d", srcBits, dstBits)
	}
}

func (s *Selector) selectCall(v *ir.CallInst) error {
	paramTypes := make([]ir.Type, len(v.Args))
	for i, a := range v.Args {
		paramTypes[i] = a.Type()
	}
	regs, onReg := AssignArgs(s.conv, paramTypes)

	stackArgs := 0
	for i, a := range v.Args {
		arg := s.regFor(a)
		if onReg[i] {
			s.emit(argMoveOpcode(a.Type()), regOp(Physical(regs[i])), arg)
		} else {
			s.emit(OpPush, arg)
			stackArgs++
		}
	}

	if fn, ok := v.Callee.(*ir.Function); ok {
		s.emit(OpCall, funcOp(&Function{Name: fn.Name}))
	} else {
		target := s.regFor(v.Callee)
		s.emit(OpCall, target)
	}

	if stackArgs > 0 {
		s.emit(OpAdd64, regOp(Physical(RSP)), immOp(int64(stackArgs*8)))
	}

	if v.Type().Kind() != ir.KindVoid {
		dst := s.newVReg(v.Type())
		retReg := Physical(RAX)
		if ir.IsFloat(v.Type()) {
			retReg = Physical(XMM0)
		}
		s.emit(argMoveOpcode(v.Type()), regOp(dst), regOp(retReg))
		s.values[ir.Value(v)] = dst
	}
	return nil
}

func (s *Selector) selectGEP(v *ir.GEPInst) error {
	for _, sub := range v.Instructions {
		if err := s.selectInst(sub); err != nil {
			return fmt.Errorf("gep sub-instruction: %w", err)
		}
	}
	if len(v.Instructions) > 0 {
		last := v.Instructions[len(v.Instructions)-1]
		s.values[ir.Value(v)] = s.values[ir.Value(last)]
	}
	return nil
}

func (s *Selector) selectRet(v *ir.RetInst) error {
	if v.Operand != nil {
		val := s.regFor(v.Operand)
		retReg := Physical(RAX)
		if ir.IsFloat(v.Operand.Type()) {
			retReg = Physical(XMM0)
		}
		s.emit(argMoveOpcode(v.Operand.Type()), regOp(retReg), val)
	}
	s.emit(OpLeave)
	s.emit(OpRet)
	return nil
}

func (s *Selector) selectAlloca(v *ir.AllocaInst) error {
	size, _ := v.ArraySize.(*ir.ConstantInt)
	elemSize := v.AllocType.AllocSize()
	total := elemSize
	if size != nil {
		total = elemSize * int(size.Value)
	}
	slot := StackAlloc{Size: total, Name: v.Name}
	s.out.StackVars = append(s.out.StackVars, slot)
	dst := s.newVReg(v.Type())
	s.emit(OpLea, regOp(dst), frameOp(-1)) // offset resolved by regalloc.go once frame layout is final
	s.values[ir.Value(v)] = dst
	return nil
}

func loadOpcode(t ir.Type) Opcode {
	switch t.Kind() {
	case ir.KindFloat:
		return OpLoadSS
	case ir.KindDouble:
		return OpLoadSD
	default:
		switch t.AllocSize() {
		case 1:
			return OpLoad8
		case 2:
			return OpLoad16
		case 4:
			return OpLoad32
		default:
			return OpLoad64
		}
	}
}

func storeOpcode(t ir.Type) Opcode {
	switch t.Kind() {
	case ir.KindFloat:
		return OpStoreSS
	case ir.KindDouble:
		return OpStoreSD
	default:
		switch t.AllocSize() {
		case 1:
			return OpStore8
		case 2:
			return OpStore16
		case 4:
			return OpStore32
		default:
			return OpStore64
		}
	}
}

func binaryOpcode(op ir.Opcode, t ir.Type) (Opcode, error) {
	if ir.IsFloat(t) {
		isDouble := t.Kind() == ir.KindDouble
		switch op {
		case ir.OpFAdd:
			if isDouble {
				return OpAddSD, nil
			}
			return OpAddSS, nil
		case ir.OpFSub:
			if isDouble {
				return OpSubSD, nil
			}
			return OpSubSS, nil
		case ir.OpFMul:
			if isDouble {
				return OpMulSD, nil
			}
			return OpMulSS, nil
		case ir.OpFDiv:
			if isDouble {
				return OpDivSD, nil
			}
			return OpDivSS, nil
		}
		return 0, fmt.Errorf("mc: unhandled float binary opcode %s", op)
	}

	bits := ir.IntBits(t)
	switch op {
	case ir.OpAdd:
		return widthPick(bits, OpAdd8, OpAdd16, OpAdd32, OpAdd64), nil
	case ir.OpSub:
		return widthPick(bits, OpSub8, OpSub16, OpSub32, OpSub64), nil
	case ir.OpMul:
		return widthPick(bits, OpIMul8, OpIMul16, OpIMul32, OpIMul64), nil
	case ir.OpUDiv:
		return widthPick(bits, OpDiv8, OpDiv16, OpDiv32, OpDiv64), nil
	case ir.OpSDiv:
		return widthPick(bits, OpIDiv8, OpIDiv16, OpIDiv32, OpIDiv64), nil
	case ir.OpURem:
		return widthPick(bits, OpDiv8, OpDiv16, OpDiv32, OpDiv64), nil // remainder shares the div instruction; selectDivRem reads rdx after
	case ir.OpSRem:
		return widthPick(bits, OpIDiv8, OpIDiv16, OpIDiv32, OpIDiv64), nil
	case ir.OpAnd:
		return widthPick(bits, OpAnd8, OpAnd16, OpAnd32, OpAnd64), nil
	case ir.OpOr:
		return widthPick(bits, OpOr8, OpOr16, OpOr32, OpOr64), nil
	case ir.OpXor:
		return widthPick(bits, OpXor8, OpXor16, OpXor32, OpXor64), nil
	case ir.OpShl:
		return widthPick(bits, OpShl8, OpShl16, OpShl32, OpShl64), nil
	case ir.OpLShr:
		return widthPick(bits, OpShr8, OpShr16, OpShr32, OpShr64), nil
	case ir.OpAShr:
		return widthPick(bits, OpSar8, OpSar16, OpSar32, OpSar64), nil
	default:
		return 0, fmt.Errorf("mc: unhandled integer binary opcode %s", op)
	}
}

func widthPick(bits int, b8, b16, b32, b64 Opcode) Opcode {
	switch {
	case bits <= 8:
		return b8
	case bits <= 16:
		return b16
	case bits <= 32:
		return b32
	default:
		return b64
	}
}

func negOpcode(bits int) Opcode { return widthPick(bits, OpNeg8, OpNeg16, OpNeg32, OpNeg64) }
func notOpcode(bits int) Opcode { return widthPick(bits, OpNot8, OpNot16, OpNot32, OpNot64) }
func cmpOpcodeForWidth(bits int) Opcode {
	return widthPick(bits, OpCmp8, OpCmp16, OpCmp32, OpCmp64)
}
