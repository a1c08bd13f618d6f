package ir

import "fmt"

// Builder constructs instructions into one basic block at a time, the way
// arc-language-core-codegen's compiler walks a function block by block:
// every Create* method builds the instruction, runs it past validate, and
// on success appends it to the current insertion block before returning
// the typed handle. A failed validation never touches the block — the
// caller gets an error and the malformed instruction is discarded.
type Builder struct {
	ctx *Context
	bb  *BasicBlock
}

// NewBuilder creates a Builder bound to ctx with no insertion point set.
func NewBuilder(ctx *Context) *Builder {
	return &Builder{ctx: ctx}
}

// SetInsertPoint redirects subsequent Create* calls to append to bb.
func (b *Builder) SetInsertPoint(bb *BasicBlock) {
	b.bb = bb
}

// InsertBlock returns the block new instructions are currently appended to.
func (b *Builder) InsertBlock() *BasicBlock {
	return b.bb
}

func (b *Builder) emit(inst Instruction) error {
	if b.bb == nil {
		return fmt.Errorf("ir: builder has no insertion point set")
	}
	if err := validate(inst); err != nil {
		return err
	}
	b.bb.Append(inst)
	return nil
}

// CreateLoad reads *ptr as ty.
func (b *Builder) CreateLoad(ty Type, ptr Value) (*LoadInst, error) {
	inst := &LoadInst{instBase: instBase{ty: ty}, Ptr: ptr}
	if err := b.emit(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// CreateStore writes val into *ptr.
func (b *Builder) CreateStore(val, ptr Value) (*StoreInst, error) {
	inst := &StoreInst{instBase: instBase{ty: b.ctx.VoidTy()}, Val: val, Ptr: ptr}
	if err := b.emit(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (b *Builder) createBinary(op Opcode, lhs, rhs Value) (*BinaryInst, error) {
	inst := &BinaryInst{instBase: instBase{ty: lhs.Type()}, op: op, Op1: lhs, Op2: rhs}
	if err := b.emit(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (b *Builder) CreateAdd(lhs, rhs Value) (*BinaryInst, error)  { return b.createBinary(OpAdd, lhs, rhs) }
func (b *Builder) CreateSub(lhs, rhs Value) (*BinaryInst, error)  { return b.createBinary(OpSub, lhs, rhs) }
func (b *Builder) CreateMul(lhs, rhs Value) (*BinaryInst, error)  { return b.createBinary(OpMul, lhs, rhs) }
func (b *Builder) CreateUDiv(lhs, rhs Value) (*BinaryInst, error) { return b.createBinary(OpUDiv, lhs, rhs) }
func (b *Builder) CreateSDiv(lhs, rhs Value) (*BinaryInst, error) { return b.createBinary(OpSDiv, lhs, rhs) }
func (b *Builder) CreateURem(lhs, rhs Value) (*BinaryInst, error) { return b.createBinary(OpURem, lhs, rhs) }
func (b *Builder) CreateSRem(lhs, rhs Value) (*BinaryInst, error) { return b.createBinary(OpSRem, lhs, rhs) }
func (b *Builder) CreateAnd(lhs, rhs Value) (*BinaryInst, error)  { return b.createBinary(OpAnd, lhs, rhs) }
func (b *Builder) CreateOr(lhs, rhs Value) (*BinaryInst, error)   { return b.createBinary(OpOr, lhs, rhs) }
func (b *Builder) CreateXor(lhs, rhs Value) (*BinaryInst, error)  { return b.createBinary(OpXor, lhs, rhs) }
func (b *Builder) CreateShl(lhs, rhs Value) (*BinaryInst, error)  { return b.createBinary(OpShl, lhs, rhs) }
func (b *Builder) CreateLShr(lhs, rhs Value) (*BinaryInst, error) { return b.createBinary(OpLShr, lhs, rhs) }
func (b *Builder) CreateAShr(lhs, rhs Value) (*BinaryInst, error) { return b.createBinary(OpAShr, lhs, rhs) }

func (b *Builder) CreateFAdd(lhs, rhs Value) (*BinaryInst, error) { return b.createBinary(OpFAdd, lhs, rhs) }
func (b *Builder) CreateFSub(lhs, rhs Value) (*BinaryInst, error) { return b.createBinary(OpFSub, lhs, rhs) }
func (b *Builder) CreateFMul(lhs, rhs Value) (*BinaryInst, error) { return b.createBinary(OpFMul, lhs, rhs) }
func (b *Builder) CreateFDiv(lhs, rhs Value) (*BinaryInst, error) { return b.createBinary(OpFDiv, lhs, rhs) }

func (b *Builder) createUnary(op Opcode, val Value) (*UnaryInst, error) {
	inst := &UnaryInst{instBase: instBase{ty: val.Type()}, op: op, Val: val}
	if err := b.emit(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (b *Builder) CreateNeg(val Value) (*UnaryInst, error)  { return b.createUnary(OpNeg, val) }
func (b *Builder) CreateNot(val Value) (*UnaryInst, error)  { return b.createUnary(OpNot, val) }
func (b *Builder) CreateFNeg(val Value) (*UnaryInst, error) { return b.createUnary(OpFNeg, val) }

func (b *Builder) createCmp(op Opcode, lhs, rhs Value) (*CmpInst, error) {
	inst := &CmpInst{instBase: instBase{ty: b.ctx.Int1Ty()}, op: op, Op1: lhs, Op2: rhs}
	if err := b.emit(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (b *Builder) CreateICmpEQ(lhs, rhs Value) (*CmpInst, error)  { return b.createCmp(OpICmpEQ, lhs, rhs) }
func (b *Builder) CreateICmpNE(lhs, rhs Value) (*CmpInst, error)  { return b.createCmp(OpICmpNE, lhs, rhs) }
func (b *Builder) CreateICmpSLT(lhs, rhs Value) (*CmpInst, error) { return b.createCmp(OpICmpSLT, lhs, rhs) }
func (b *Builder) CreateICmpSGT(lhs, rhs Value) (*CmpInst, error) { return b.createCmp(OpICmpSGT, lhs, rhs) }
func (b *Builder) CreateICmpSLE(lhs, rhs Value) (*CmpInst, error) { return b.createCmp(OpICmpSLE, lhs, rhs) }
func (b *Builder) CreateICmpSGE(lhs, rhs Value) (*CmpInst, error) { return b.createCmp(OpICmpSGE, lhs, rhs) }
func (b *Builder) CreateICmpULT(lhs, rhs Value) (*CmpInst, error) { return b.createCmp(OpICmpULT, lhs, rhs) }
func (b *Builder) CreateICmpUGT(lhs, rhs Value) (*CmpInst, error) { return b.createCmp(OpICmpUGT, lhs, rhs) }
func (b *Builder) CreateICmpULE(lhs, rhs Value) (*CmpInst, error) { return b.createCmp(OpICmpULE, lhs, rhs) }
func (b *Builder) CreateICmpUGE(lhs, rhs Value) (*CmpInst, error) { return b.createCmp(OpICmpUGE, lhs, rhs) }

func (b *Builder) CreateFCmpUEQ(lhs, rhs Value) (*CmpInst, error) { return b.createCmp(OpFCmpUEQ, lhs, rhs) }
func (b *Builder) CreateFCmpUNE(lhs, rhs Value) (*CmpInst, error) { return b.createCmp(OpFCmpUNE, lhs, rhs) }
func (b *Builder) CreateFCmpULT(lhs, rhs Value) (*CmpInst, error) { return b.createCmp(OpFCmpULT, lhs, rhs) }
func (b *Builder) CreateFCmpUGT(lhs, rhs Value) (*CmpInst, error) { return b.createCmp(OpFCmpUGT, lhs, rhs) }
func (b *Builder) CreateFCmpULE(lhs, rhs Value) (*CmpInst, error) { return b.createCmp(OpFCmpULE, lhs, rhs) }
func (b *Builder) CreateFCmpUGE(lhs, rhs Value) (*CmpInst, error) { return b.createCmp(OpFCmpUGE, lhs, rhs) }

func (b *Builder) createCast(op Opcode, val Value, destTy Type) (*CastInst, error) {
	inst := &CastInst{instBase: instBase{ty: destTy}, op: op, Val: val}
	if err := b.emit(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (b *Builder) CreateTrunc(val Value, destTy Type) (*CastInst, error)   { return b.createCast(OpTrunc, val, destTy) }
func (b *Builder) CreateZExt(val Value, destTy Type) (*CastInst, error)    { return b.createCast(OpZExt, val, destTy) }
func (b *Builder) CreateSExt(val Value, destTy Type) (*CastInst, error)    { return b.createCast(OpSExt, val, destTy) }
func (b *Builder) CreateFPTrunc(val Value, destTy Type) (*CastInst, error) { return b.createCast(OpFPTrunc, val, destTy) }
func (b *Builder) CreateFPExt(val Value, destTy Type) (*CastInst, error)   { return b.createCast(OpFPExt, val, destTy) }
func (b *Builder) CreateFPToUI(val Value, destTy Type) (*CastInst, error)  { return b.createCast(OpFPToUI, val, destTy) }
func (b *Builder) CreateFPToSI(val Value, destTy Type) (*CastInst, error)  { return b.createCast(OpFPToSI, val, destTy) }
func (b *Builder) CreateUIToFP(val Value, destTy Type) (*CastInst, error)  { return b.createCast(OpUIToFP, val, destTy) }
func (b *Builder) CreateSIToFP(val Value, destTy Type) (*CastInst, error)  { return b.createCast(OpSIToFP, val, destTy) }
func (b *Builder) CreateBitCast(val Value, destTy Type) (*CastInst, error) { return b.createCast(OpBitCast, val, destTy) }

// CreateCall invokes callee (a Function or function-pointer Value) with args.
func (b *Builder) CreateCall(callee Value, args []Value) (*CallInst, error) {
	ft := calleeFunctionType(callee)
	var retTy Type = b.ctx.VoidTy()
	if ft != nil {
		retTy = ft.Ret
	}
	inst := &CallInst{instBase: instBase{ty: retTy}, Callee: callee, Args: append([]Value(nil), args...)}
	if err := b.emit(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// CreateGEP computes an address from ptr and indices over elements of
// elemTy, lowering immediately into integer arithmetic (ir/gep.go).
func (b *Builder) CreateGEP(elemTy Type, ptr Value, indices []Value) (*GEPInst, error) {
	inst := &GEPInst{
		instBase:          instBase{ty: ptr.Type()},
		Ptr:               ptr,
		Indices:           append([]Value(nil), indices...),
		SourceElementType: elemTy,
	}
	lowerGEP(b.ctx, inst)
	if err := b.emit(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// ConstGEP1_32 is a convenience wrapper for the common single-index,
// 32-bit-constant GEP (array/slice element addressing).
func (b *Builder) ConstGEP1_32(elemTy Type, ptr Value, index int32) (*GEPInst, error) {
	idx := b.ctx.ConstantInt(b.ctx.Int32Ty(), uint64(uint32(index)))
	return b.CreateGEP(elemTy, ptr, []Value{idx})
}

// ConstGEP2_32 is a convenience wrapper for the common two-index,
// 32-bit-constant GEP (struct field addressing through a leading
// zero index, the classic getelementptr "0, field" idiom).
func (b *Builder) ConstGEP2_32(elemTy Type, ptr Value, idx0, idx1 int32) (*GEPInst, error) {
	i0 := b.ctx.ConstantInt(b.ctx.Int32Ty(), uint64(uint32(idx0)))
	i1 := b.ctx.ConstantInt(b.ctx.Int32Ty(), uint64(uint32(idx1)))
	return b.CreateGEP(elemTy, ptr, []Value{i0, i1})
}

// CreateBr is an unconditional branch to target.
func (b *Builder) CreateBr(target *BasicBlock) (*BrInst, error) {
	inst := &BrInst{instBase: instBase{ty: b.ctx.VoidTy()}, Target: target}
	if err := b.emit(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// CreateCondBr branches to trueBB if cond (an i1) is nonzero, else falseBB.
func (b *Builder) CreateCondBr(cond Value, trueBB, falseBB *BasicBlock) (*CondBrInst, error) {
	inst := &CondBrInst{instBase: instBase{ty: b.ctx.VoidTy()}, Condition: cond, TrueBlock: trueBB, FalseBlock: falseBB}
	if err := b.emit(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// CreateRet returns val from the current function.
func (b *Builder) CreateRet(val Value) (*RetInst, error) {
	inst := &RetInst{instBase: instBase{ty: b.ctx.VoidTy()}, Operand: val}
	if err := b.emit(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// CreateRetVoid returns from a void function.
func (b *Builder) CreateRetVoid() (*RetVoidInst, error) {
	inst := &RetVoidInst{instBase: instBase{ty: b.ctx.VoidTy()}}
	if err := b.emit(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// CreateAlloca reserves space for arraySize elements of allocType on the
// current function's stack frame. arraySize must be a ConstantInt.
func (b *Builder) CreateAlloca(allocType Type, arraySize Value, name string) (*AllocaInst, error) {
	inst := &AllocaInst{
		instBase:  instBase{ty: b.ctx.PointerTo(allocType)},
		AllocType: allocType,
		ArraySize: arraySize,
		Name:      name,
	}
	if err := b.emit(inst); err != nil {
		return nil, err
	}
	fn := b.bb.Func
	fn.StackVars = append(fn.StackVars, inst)
	return inst, nil
}

// CreatePhi starts an (initially empty) phi node of the given type;
// incoming values are attached afterward with PhiInst.AddIncoming, since
// they are often only known once sibling blocks have been built.
func (b *Builder) CreatePhi(ty Type) (*PhiInst, error) {
	inst := &PhiInst{instBase: instBase{ty: ty}}
	if err := b.emit(inst); err != nil {
		return nil, err
	}
	return inst, nil
}
