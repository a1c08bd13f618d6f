package pass

import (
	"testing"

	"github.com/dragonbook/dragonbook/ir"
)

func TestPromoteSingleBlockRoundtrip(t *testing.T) {
	ctx := ir.NewContext()
	defer ctx.Close()

	i32 := ctx.Int32Ty()
	ft := ctx.FunctionType(i32, []ir.Type{i32})
	fn := ctx.CreateFunction(ft, "roundtrip")
	entry := fn.CreateBasicBlock("entry")

	b := ir.NewBuilder(ctx)
	b.SetInsertPoint(entry)

	one := ctx.ConstantInt(i32, 1)
	slot, err := b.CreateAlloca(i32, one, "slot")
	if err != nil {
		t.Fatalf("CreateAlloca: %v", err)
	}
	if _, err := b.CreateStore(fn.Arguments()[0], slot); err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	loaded, err := b.CreateLoad(i32, slot)
	if err != nil {
		t.Fatalf("CreateLoad: %v", err)
	}
	if _, err := b.CreateRet(loaded); err != nil {
		t.Fatalf("CreateRet: %v", err)
	}

	if len(fn.StackVars) != 1 {
		t.Fatalf("expected 1 stack var before promotion, got %d", len(fn.StackVars))
	}

	PromoteStackToRegister(fn)

	if len(fn.StackVars) != 0 {
		t.Fatalf("expected the alloca to be promoted away, %d stack vars remain", len(fn.StackVars))
	}
	if len(entry.Instructions) != 1 {
		t.Fatalf("expected only the ret instruction to remain, got %d instructions", len(entry.Instructions))
	}
	ret, ok := entry.Instructions[0].(*ir.RetInst)
	if !ok {
		t.Fatalf("remaining instruction is %T, want *ir.RetInst", entry.Instructions[0])
	}
	if ret.Operand != ir.Value(fn.Arguments()[0]) {
		t.Fatal("ret should directly return the argument once load/store are forwarded")
	}
}

func TestPromoteCrossBlockSinglePredecessor(t *testing.T) {
	ctx := ir.NewContext()
	defer ctx.Close()

	i32 := ctx.Int32Ty()
	ft := ctx.FunctionType(i32, []ir.Type{i32})
	fn := ctx.CreateFunction(ft, "crossblock")
	entry := fn.CreateBasicBlock("entry")
	next := fn.CreateBasicBlock("next")

	b := ir.NewBuilder(ctx)
	b.SetInsertPoint(entry)
	one := ctx.ConstantInt(i32, 1)
	slot, err := b.CreateAlloca(i32, one, "slot")
	if err != nil {
		t.Fatalf("CreateAlloca: %v", err)
	}
	if _, err := b.CreateStore(fn.Arguments()[0], slot); err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	if _, err := b.CreateBr(next); err != nil {
		t.Fatalf("CreateBr: %v", err)
	}

	b.SetInsertPoint(next)
	loaded, err := b.CreateLoad(i32, slot)
	if err != nil {
		t.Fatalf("CreateLoad: %v", err)
	}
	if _, err := b.CreateRet(loaded); err != nil {
		t.Fatalf("CreateRet: %v", err)
	}

	PromoteStackToRegister(fn)

	if len(fn.StackVars) != 0 {
		t.Fatalf("expected the alloca to be promoted across the single-predecessor edge, %d stack vars remain", len(fn.StackVars))
	}
	ret, ok := next.Instructions[len(next.Instructions)-1].(*ir.RetInst)
	if !ok {
		t.Fatalf("last instruction is %T, want *ir.RetInst", next.Instructions[len(next.Instructions)-1])
	}
	if ret.Operand != ir.Value(fn.Arguments()[0]) {
		t.Fatal("ret in the successor block should forward the argument through the single predecessor's exit value")
	}
}

func TestEscapingAllocaIsNotPromoted(t *testing.T) {
	ctx := ir.NewContext()
	defer ctx.Close()

	i32 := ctx.Int32Ty()
	i32ptr := ctx.PointerTo(i32)
	ft := ctx.FunctionType(i32, []ir.Type{ctx.PointerTo(i32ptr)})
	fn := ctx.CreateFunction(ft, "escaping")
	entry := fn.CreateBasicBlock("entry")

	b := ir.NewBuilder(ctx)
	b.SetInsertPoint(entry)
	one := ctx.ConstantInt(i32, 1)
	slot, err := b.CreateAlloca(i32, one, "slot")
	if err != nil {
		t.Fatalf("CreateAlloca: %v", err)
	}
	// Storing the alloca's own address through another pointer makes it
	// escape: it must not be promoted.
	if _, err := b.CreateStore(slot, fn.Arguments()[0]); err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	loaded, err := b.CreateLoad(i32, slot)
	if err != nil {
		t.Fatalf("CreateLoad: %v", err)
	}
	if _, err := b.CreateRet(loaded); err != nil {
		t.Fatalf("CreateRet: %v", err)
	}

	PromoteStackToRegister(fn)

	if len(fn.StackVars) != 1 {
		t.Fatalf("expected the escaping alloca to remain unpromoted, got %d stack vars", len(fn.StackVars))
	}
}
