package ir

import "testing"

func newTestFunction(ctx *Context, name string, ret Type, params []Type) (*Function, *BasicBlock) {
	ft := ctx.FunctionType(ret, params)
	fn := ctx.CreateFunction(ft, name)
	bb := fn.CreateBasicBlock("entry")
	return fn, bb
}

func TestCreateAddRoundTrip(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	fn, bb := newTestFunction(ctx, "add", ctx.Int32Ty(), []Type{ctx.Int32Ty(), ctx.Int32Ty()})
	b := NewBuilder(ctx)
	b.SetInsertPoint(bb)

	sum, err := b.CreateAdd(fn.Arguments()[0], fn.Arguments()[1])
	if err != nil {
		t.Fatalf("CreateAdd: %v", err)
	}
	if sum.Type() != ctx.Int32Ty() {
		t.Fatalf("sum type = %s, want i32", sum.Type())
	}
	if _, err := b.CreateRet(sum); err != nil {
		t.Fatalf("CreateRet: %v", err)
	}
	if len(bb.Instructions) != 2 {
		t.Fatalf("block has %d instructions, want 2", len(bb.Instructions))
	}
}

func TestBinaryOperandTypeMismatchRejected(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	_, bb := newTestFunction(ctx, "bad", ctx.Int32Ty(), nil)
	b := NewBuilder(ctx)
	b.SetInsertPoint(bb)

	i32 := ctx.ConstantInt(ctx.Int32Ty(), 1)
	i64 := ctx.ConstantInt(ctx.Int64Ty(), 1)

	if _, err := b.CreateAdd(i32, i64); err == nil {
		t.Fatal("expected an error adding mismatched-width operands, got nil")
	}
	if len(bb.Instructions) != 0 {
		t.Fatalf("a rejected instruction must not be appended, got %d instructions", len(bb.Instructions))
	}
}

func TestLoadRequiresPointerOperand(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	_, bb := newTestFunction(ctx, "badload", ctx.Int32Ty(), nil)
	b := NewBuilder(ctx)
	b.SetInsertPoint(bb)

	notAPointer := ctx.ConstantInt(ctx.Int32Ty(), 0)
	if _, err := b.CreateLoad(ctx.Int32Ty(), notAPointer); err == nil {
		t.Fatal("expected an error loading through a non-pointer value")
	}
}

func TestCmpAlwaysProducesI1(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	_, bb := newTestFunction(ctx, "cmp", ctx.Int1Ty(), nil)
	b := NewBuilder(ctx)
	b.SetInsertPoint(bb)

	a := ctx.ConstantInt(ctx.Int32Ty(), 3)
	c := ctx.ConstantInt(ctx.Int32Ty(), 4)
	cmp, err := b.CreateICmpSLT(a, c)
	if err != nil {
		t.Fatalf("CreateICmpSLT: %v", err)
	}
	if cmp.Type() != ctx.Int1Ty() {
		t.Fatalf("cmp result type = %s, want i1", cmp.Type())
	}
}

func TestCondBrRequiresI1Condition(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	fn, bb := newTestFunction(ctx, "br", ctx.VoidTy(), nil)
	trueBB := fn.CreateBasicBlock("t")
	falseBB := fn.CreateBasicBlock("f")

	b := NewBuilder(ctx)
	b.SetInsertPoint(bb)

	notI1 := ctx.ConstantInt(ctx.Int32Ty(), 1)
	if _, err := b.CreateCondBr(notI1, trueBB, falseBB); err == nil {
		t.Fatal("expected an error branching on a non-i1 condition")
	}
}

func TestAllocaThenGEPThenLoadRoundTrip(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	arrTy := ctx.Int32Ty()
	_, bb := newTestFunction(ctx, "gep", ctx.Int32Ty(), nil)
	b := NewBuilder(ctx)
	b.SetInsertPoint(bb)

	count := ctx.ConstantInt(ctx.Int32Ty(), 4)
	arr, err := b.CreateAlloca(arrTy, count, "arr")
	if err != nil {
		t.Fatalf("CreateAlloca: %v", err)
	}
	elem, err := b.ConstGEP1_32(arrTy, arr, 2)
	if err != nil {
		t.Fatalf("ConstGEP1_32: %v", err)
	}
	if len(elem.Instructions) == 0 {
		t.Fatal("expected lowered sub-instructions on the GEP")
	}
	val := ctx.ConstantInt(ctx.Int32Ty(), 42)
	if _, err := b.CreateStore(val, elem); err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	loaded, err := b.CreateLoad(arrTy, elem)
	if err != nil {
		t.Fatalf("CreateLoad: %v", err)
	}
	if loaded.Type() != arrTy {
		t.Fatalf("loaded type = %s, want %s", loaded.Type(), arrTy)
	}
}

func TestConstantIntInterning(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	a := ctx.ConstantInt(ctx.Int32Ty(), 7)
	b := ctx.ConstantInt(ctx.Int32Ty(), 7)
	if a != b {
		t.Fatal("identical (type, value) integer constants must be interned to the same pointer")
	}
	c := ctx.ConstantInt(ctx.Int64Ty(), 7)
	if Value(a) == Value(c) {
		t.Fatal("same bit pattern under different types must not be interned together")
	}
}

func TestConstantFPNaNInterning(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	n := makeNaN()
	first := ctx.ConstantFP(ctx.DoubleTy(), n)
	second := ctx.ConstantFP(ctx.DoubleTy(), n)
	if first != second {
		t.Fatal("identical NaN bit patterns must be interned to the same constant")
	}
}

func makeNaN() float64 {
	var zero float64
	return zero / zero
}
