package ir

import "testing"

func TestGEPConstantIndexFoldsIntoConstantOffset(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()
	b, _, _ := newTestBuilder(ctx, "f")

	i32 := ctx.Int32Ty()
	one := ctx.ConstantInt(i32, 1)
	ptr, err := b.CreateAlloca(i32, one, "arr")
	if err != nil {
		t.Fatalf("CreateAlloca: %v", err)
	}

	gep, err := b.ConstGEP1_32(i32, ptr, 3)
	if err != nil {
		t.Fatalf("ConstGEP1_32: %v", err)
	}
	// ptr.Type() and ctx.PointerTo(i32) are the same interned type here only
	// because this GEP's source element type never changes across the
	// index walk (i32 alloca, i32 element) — this is not a general rule,
	// see TestGEPStructFieldUsesFieldOffset for the case where they differ.
	if want := ctx.PointerTo(i32); gep.Type() != want {
		t.Fatalf("GEP result type = %s, want %s", gep.Type(), want)
	}
	if len(gep.Instructions) == 0 {
		t.Fatal("expected lowerGEP to emit sub-instructions")
	}

	// The scaled offset for a constant index folds into a single
	// ConstantInt rather than emitting a dynamic multiply.
	foundConstOffset := false
	for _, sub := range gep.Instructions {
		if add, ok := sub.(*BinaryInst); ok && add.op == OpAdd {
			if _, ok := add.Op2.(*ConstantInt); ok {
				foundConstOffset = true
			}
		}
	}
	if !foundConstOffset {
		t.Fatal("expected a constant-folded offset add among the GEP's sub-instructions")
	}
}

func TestGEPDynamicIndexEmitsMultiply(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()
	b, _, _ := newTestBuilder(ctx, "f")

	i32 := ctx.Int32Ty()
	one := ctx.ConstantInt(i32, 1)
	ptr, err := b.CreateAlloca(i32, one, "arr")
	if err != nil {
		t.Fatalf("CreateAlloca: %v", err)
	}

	idxSlot, err := b.CreateAlloca(i32, one, "idx")
	if err != nil {
		t.Fatalf("CreateAlloca: %v", err)
	}
	dynIdx, err := b.CreateLoad(i32, idxSlot)
	if err != nil {
		t.Fatalf("CreateLoad: %v", err)
	}

	gep, err := b.CreateGEP(i32, ptr, []Value{dynIdx})
	if err != nil {
		t.Fatalf("CreateGEP: %v", err)
	}

	foundMul := false
	for _, sub := range gep.Instructions {
		if bin, ok := sub.(*BinaryInst); ok && bin.op == OpMul {
			foundMul = true
		}
	}
	if !foundMul {
		t.Fatal("expected a dynamic-index GEP to emit a multiply for the scaled offset")
	}
}

func TestGEPStructFieldUsesFieldOffset(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()
	b, _, _ := newTestBuilder(ctx, "f")

	i32 := ctx.Int32Ty()
	i64 := ctx.Int64Ty()
	st := ctx.StructType("pair")
	st.Fields = []Type{i32, i64}

	one := ctx.ConstantInt(i32, 1)
	slot, err := b.CreateAlloca(st, one, "p")
	if err != nil {
		t.Fatalf("CreateAlloca: %v", err)
	}

	gep, err := b.ConstGEP2_32(st, slot, 0, 1)
	if err != nil {
		t.Fatalf("ConstGEP2_32: %v", err)
	}

	// The GEP walks into the second field, so its result type is a pointer
	// to that field's type (i64*), not a pointer to the struct (%pair*).
	if want := ctx.PointerTo(i64); gep.Type() != want {
		t.Fatalf("GEP result type = %s, want %s", gep.Type(), want)
	}

	wantOffset := uint64(st.FieldOffset(1))
	foundOffset := false
	for _, sub := range gep.Instructions {
		if add, ok := sub.(*BinaryInst); ok && add.op == OpAdd {
			if ci, ok := add.Op2.(*ConstantInt); ok && ci.Value == wantOffset {
				foundOffset = true
			}
		}
	}
	if !foundOffset {
		t.Fatalf("expected the struct field's byte offset (%d) among the GEP's sub-values", wantOffset)
	}
}
