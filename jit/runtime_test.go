package jit

import (
	"testing"
	"unsafe"

	"github.com/dragonbook/dragonbook/ir"
	"github.com/dragonbook/dragonbook/mc"
)

func TestRuntimeGetPointerToGlobal(t *testing.T) {
	ctx := ir.NewContext()
	t.Cleanup(ctx.Close)

	i32 := ctx.Int32Ty()
	initial := ctx.ConstantInt(i32, 0x2a)
	ctx.CreateGlobalVariable(i32, initial, "answer")

	rt := NewRuntime()
	if err := rt.Add(ctx, mc.HostConvention); err != nil {
		t.Fatalf("rt.Add: %v", err)
	}
	t.Cleanup(func() {
		if err := rt.Close(); err != nil {
			t.Errorf("rt.Close(): %v", err)
		}
	})

	addr, ok := rt.GetPointerToGlobal("answer")
	if !ok {
		t.Fatal("expected \"answer\" to be resolvable")
	}
	got := *(*int32)(unsafe.Pointer(addr))
	if got != 0x2a {
		t.Fatalf("global \"answer\" = %#x, want %#x", got, 0x2a)
	}

	if _, ok := rt.GetPointerToGlobal("missing"); ok {
		t.Fatal("GetPointerToGlobal should report an unknown name as absent")
	}
}

func TestRuntimeCloseReleasesMemory(t *testing.T) {
	ctx := ir.NewContext()
	t.Cleanup(ctx.Close)

	i32 := ctx.Int32Ty()
	ft := ctx.FunctionType(i32, nil)
	fn := ctx.CreateFunction(ft, "const_answer")
	bb := fn.CreateBasicBlock("entry")
	b := ir.NewBuilder(ctx)
	b.SetInsertPoint(bb)
	if _, err := b.CreateRet(ctx.ConstantInt(i32, 7)); err != nil {
		t.Fatalf("CreateRet: %v", err)
	}

	rt := NewRuntime()
	if err := rt.Add(ctx, mc.HostConvention); err != nil {
		t.Fatalf("rt.Add: %v", err)
	}
	if _, ok := rt.GetPointerToFunction("const_answer"); !ok {
		t.Fatal("const_answer should be compiled into the runtime")
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("rt.Close(): %v", err)
	}
}
