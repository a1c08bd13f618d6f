package ir

import "testing"

func newTestBuilder(ctx *Context, fnName string) (*Builder, *Function, *BasicBlock) {
	fn := ctx.CreateFunction(ctx.FunctionType(ctx.VoidTy(), nil), fnName)
	bb := fn.CreateBasicBlock("entry")
	b := NewBuilder(ctx)
	b.SetInsertPoint(bb)
	return b, fn, bb
}

func TestValidateLoadRejectsNonPointer(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()
	b, _, _ := newTestBuilder(ctx, "f")

	i32 := ctx.Int32Ty()
	notAPointer := ctx.ConstantInt(i32, 0)
	if _, err := b.CreateLoad(i32, notAPointer); err == nil {
		t.Fatal("expected an error loading through a non-pointer operand")
	}
}

func TestValidateLoadRejectsMismatchedResultType(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()
	b, _, _ := newTestBuilder(ctx, "f")

	i32 := ctx.Int32Ty()
	i64 := ctx.Int64Ty()
	one := ctx.ConstantInt(i32, 1)
	slot, err := b.CreateAlloca(i32, one, "slot")
	if err != nil {
		t.Fatalf("CreateAlloca: %v", err)
	}
	if _, err := b.CreateLoad(i64, slot); err == nil {
		t.Fatal("expected an error loading an i64 through an i32 pointer")
	}
}

func TestValidateBinaryRequiresMatchingIntegerTypes(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()
	b, _, _ := newTestBuilder(ctx, "f")

	i32 := ctx.Int32Ty()
	i64 := ctx.Int64Ty()
	lhs := ctx.ConstantInt(i32, 1)
	rhs := ctx.ConstantInt(i64, 2)
	if _, err := b.CreateAdd(lhs, rhs); err == nil {
		t.Fatal("expected an error adding mismatched integer widths")
	}
}

func TestValidateBinaryRejectsFloatForIntOpcode(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()
	b, _, _ := newTestBuilder(ctx, "f")

	f32 := ctx.FloatTy()
	lhs := ctx.ConstantFP(f32, 1.0)
	rhs := ctx.ConstantFP(f32, 2.0)
	if _, err := b.CreateAdd(lhs, rhs); err == nil {
		t.Fatal("expected CreateAdd (an integer opcode) to reject float operands")
	}
	if _, err := b.CreateFAdd(lhs, rhs); err != nil {
		t.Fatalf("CreateFAdd with matching float operands should succeed: %v", err)
	}
}

func TestValidateCmpResultMustBeI1(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()
	b, _, _ := newTestBuilder(ctx, "f")

	i32 := ctx.Int32Ty()
	lhs := ctx.ConstantInt(i32, 1)
	rhs := ctx.ConstantInt(i32, 2)
	cmp, err := b.CreateICmpEQ(lhs, rhs)
	if err != nil {
		t.Fatalf("CreateICmpEQ: %v", err)
	}
	if cmp.Type().Kind() != KindInt1 {
		t.Fatalf("comparison result kind = %v, want KindInt1", cmp.Type().Kind())
	}
}

func TestValidateCastTruncRequiresNarrowerDestination(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()
	b, _, _ := newTestBuilder(ctx, "f")

	i32 := ctx.Int32Ty()
	i64 := ctx.Int64Ty()
	v := ctx.ConstantInt(i32, 1)
	if _, err := b.CreateTrunc(v, i64); err == nil {
		t.Fatal("expected trunc to i64 (wider than i32) to be rejected")
	}

	v64 := ctx.ConstantInt(i64, 1)
	if _, err := b.CreateTrunc(v64, i32); err != nil {
		t.Fatalf("trunc from i64 to i32 should be accepted: %v", err)
	}
}

func TestValidateCastBitCastRequiresEqualSize(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()
	b, _, _ := newTestBuilder(ctx, "f")

	i32 := ctx.Int32Ty()
	i64 := ctx.Int64Ty()
	v := ctx.ConstantInt(i32, 1)
	if _, err := b.CreateBitCast(v, i64); err == nil {
		t.Fatal("expected bitcast between differently-sized types to be rejected")
	}
}

func TestValidateCondBrRequiresI1Condition(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()
	b, fn, _ := newTestBuilder(ctx, "f")
	trueBB := fn.CreateBasicBlock("t")
	falseBB := fn.CreateBasicBlock("f")

	i32 := ctx.Int32Ty()
	notBool := ctx.ConstantInt(i32, 1)
	if _, err := b.CreateCondBr(notBool, trueBB, falseBB); err == nil {
		t.Fatal("expected condbr with a non-i1 condition to be rejected")
	}
}

func TestValidateCallArgumentCountAndTypes(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	i32 := ctx.Int32Ty()
	callee := ctx.CreateFunction(ctx.FunctionType(i32, []Type{i32}), "callee")
	b, _, _ := newTestBuilder(ctx, "caller")

	if _, err := b.CreateCall(callee, nil); err == nil {
		t.Fatal("expected a call with the wrong argument count to be rejected")
	}

	i64 := ctx.Int64Ty()
	wrongType := ctx.ConstantInt(i64, 1)
	if _, err := b.CreateCall(callee, []Value{wrongType}); err == nil {
		t.Fatal("expected a call with a mismatched argument type to be rejected")
	}

	rightType := ctx.ConstantInt(i32, 1)
	if _, err := b.CreateCall(callee, []Value{rightType}); err != nil {
		t.Fatalf("call with matching argument type should succeed: %v", err)
	}
}
