package mc

import "testing"

func simpleRetFunction(name string) *Function {
	fn := NewFunction(name)
	bb := fn.CreateBlock("entry")
	bb.Append(*NewInst(OpRet))
	return fn
}

func TestCodeHolderAddFunctionAndLookup(t *testing.T) {
	h := NewCodeHolder()
	fn := simpleRetFunction("main")
	h.AddFunction(fn)

	if len(h.Functions()) != 1 {
		t.Fatalf("len(Functions()) = %d, want 1", len(h.Functions()))
	}
	got, ok := h.FunctionByName("main")
	if !ok {
		t.Fatal("FunctionByName(\"main\") not found")
	}
	if got != fn {
		t.Fatal("FunctionByName returned a different *Function than was added")
	}
	if _, ok := h.FunctionByName("nope"); ok {
		t.Fatal("FunctionByName(\"nope\") should not be found")
	}
}

func TestCodeHolderAddGlobalRecordsOffsets(t *testing.T) {
	h := NewCodeHolder()
	h.AddGlobal("a", []byte{1, 2, 3}, 8)
	h.AddGlobal("b", nil, 4)

	offsets := h.DataOffsets()
	if offsets["a"] != 0 {
		t.Fatalf("offset of a = %d, want 0", offsets["a"])
	}
	if offsets["b"] != 8 {
		t.Fatalf("offset of b = %d, want 8", offsets["b"])
	}

	// DataOffsets must be a copy: mutating it must not affect the holder.
	offsets["a"] = 999
	if h.DataOffsets()["a"] != 0 {
		t.Fatal("DataOffsets() must return a defensive copy")
	}
}

func TestCodeHolderRelocateUnresolvedCall(t *testing.T) {
	h := NewCodeHolder()
	fn := NewFunction("caller")
	bb := fn.CreateBlock("entry")
	bb.Append(*NewInst(OpCall, globalOp("missing")))
	bb.Append(*NewInst(OpRet))
	h.AddFunction(fn)

	_, _, err := h.Relocate(0x1000, 0x2000, nil)
	if err == nil {
		t.Fatal("expected an UnresolvedSymbolError for a call with no resolver")
	}
	var unresolved *UnresolvedSymbolError
	if !asUnresolvedSymbolError(err, &unresolved) {
		t.Fatalf("expected *UnresolvedSymbolError, got %T", err)
	}
	if unresolved.Name != "missing" {
		t.Fatalf("unresolved symbol name = %q, want %q", unresolved.Name, "missing")
	}
}

func TestCodeHolderRelocateResolvesCallAndData(t *testing.T) {
	h := NewCodeHolder()

	callee := simpleRetFunction("callee")
	h.AddFunction(callee)

	caller := NewFunction("caller")
	bb := caller.CreateBlock("entry")
	bb.Append(*NewInst(OpCall, funcOp(callee)))
	bb.Append(*NewInst(OpRet))
	h.AddFunction(caller)

	h.AddGlobal("g", []byte{7, 7, 7, 7}, 4)

	code, data, err := h.Relocate(0x1000, 0x2000, func(name string) (uintptr, bool) {
		return 0, false
	})
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if len(code) == 0 {
		t.Fatal("expected non-empty code")
	}
	if len(data) != 4 {
		t.Fatalf("len(data) = %d, want 4", len(data))
	}
}

func asUnresolvedSymbolError(err error, out **UnresolvedSymbolError) bool {
	e, ok := err.(*UnresolvedSymbolError)
	if !ok {
		return false
	}
	*out = e
	return true
}
