package jit

import (
	"math"
	"testing"

	"github.com/dragonbook/dragonbook/internal/scenarios"
	"github.com/dragonbook/dragonbook/ir"
	"github.com/dragonbook/dragonbook/mc"
	"github.com/dragonbook/dragonbook/pass"
)

func compileScenario(t *testing.T, name string) (*Runtime, *ir.Function, scenarios.Kind) {
	t.Helper()
	ctx := ir.NewContext()
	t.Cleanup(ctx.Close)

	fn, kind, err := scenarios.Build(ctx, name)
	if err != nil {
		t.Fatalf("building scenario %q: %v", name, err)
	}
	pass.PromoteStackToRegister(fn)

	rt := NewRuntime()
	if err := rt.Add(ctx, mc.HostConvention); err != nil {
		t.Fatalf("jit.Add(%q): %v", name, err)
	}
	t.Cleanup(func() {
		if err := rt.Close(); err != nil {
			t.Errorf("rt.Close(): %v", err)
		}
	})
	return rt, fn, kind
}

func TestRuntimeAddInt32(t *testing.T) {
	rt, fn, _ := compileScenario(t, scenarios.Scenario.AddInt32)
	addr, ok := rt.GetPointerToFunction(fn.Name)
	if !ok {
		t.Fatal("add_int32 was not compiled into the runtime")
	}
	got, err := CallIntFunction(addr, 17, 25)
	if err != nil {
		t.Fatalf("CallIntFunction: %v", err)
	}
	if got != 42 {
		t.Fatalf("add_int32(17, 25) = %d, want 42", got)
	}
}

func TestRuntimeUDivInt8(t *testing.T) {
	rt, fn, _ := compileScenario(t, scenarios.Scenario.UDivInt8)
	addr, ok := rt.GetPointerToFunction(fn.Name)
	if !ok {
		t.Fatal("udiv_int8 was not compiled into the runtime")
	}
	got, err := CallIntFunction(addr, 200, 5)
	if err != nil {
		t.Fatalf("CallIntFunction: %v", err)
	}
	if got != 40 {
		t.Fatalf("udiv_int8(200, 5) = %d, want 40", got)
	}
}

func TestRuntimeFDivDouble(t *testing.T) {
	rt, fn, _ := compileScenario(t, scenarios.Scenario.FDivDouble)
	addr, ok := rt.GetPointerToFunction(fn.Name)
	if !ok {
		t.Fatal("fdiv_double was not compiled into the runtime")
	}
	got, err := CallFloatFunction(addr, 9, 2)
	if err != nil {
		t.Fatalf("CallFloatFunction: %v", err)
	}
	if got != 4.5 {
		t.Fatalf("fdiv_double(9, 2) = %v, want 4.5", got)
	}
}

func TestRuntimeFCmpUNEFloat(t *testing.T) {
	rt, fn, _ := compileScenario(t, scenarios.Scenario.FCmpUNEFloat)
	addr, ok := rt.GetPointerToFunction(fn.Name)
	if !ok {
		t.Fatal("fcmp_une_float was not compiled into the runtime")
	}

	if got, err := CallFloatArgsIntReturn(addr, 1.5, 1.5); err != nil {
		t.Fatalf("CallFloatArgsIntReturn: %v", err)
	} else if got != 0 {
		t.Fatalf("fcmp_une_float(1.5, 1.5) = %d, want 0", got)
	}

	if got, err := CallFloatArgsIntReturn(addr, 1.5, 2.5); err != nil {
		t.Fatalf("CallFloatArgsIntReturn: %v", err)
	} else if got != 1 {
		t.Fatalf("fcmp_une_float(1.5, 2.5) = %d, want 1", got)
	}

	if got, err := CallFloatArgsIntReturn(addr, math.NaN(), math.NaN()); err != nil {
		t.Fatalf("CallFloatArgsIntReturn: %v", err)
	} else if got != 1 {
		t.Fatalf("fcmp_une_float(NaN, NaN) = %d, want 1 (unordered compares true)", got)
	}
}

func TestRuntimeZExtI64I8(t *testing.T) {
	rt, fn, _ := compileScenario(t, scenarios.Scenario.ZExtI64I8)
	addr, ok := rt.GetPointerToFunction(fn.Name)
	if !ok {
		t.Fatal("zext_i64_i8 was not compiled into the runtime")
	}
	got, err := CallIntFunction(addr, 0xff)
	if err != nil {
		t.Fatalf("CallIntFunction: %v", err)
	}
	if got != 0xff {
		t.Fatalf("zext_i64_i8(0xff) = %#x, want 0xff (zero-extended, not sign-extended)", got)
	}
}

func TestRuntimeAllocaRoundtrip(t *testing.T) {
	rt, fn, _ := compileScenario(t, scenarios.Scenario.AllocaRound)
	addr, ok := rt.GetPointerToFunction(fn.Name)
	if !ok {
		t.Fatal("alloca_roundtrip was not compiled into the runtime")
	}
	got, err := CallIntFunction(addr, 99)
	if err != nil {
		t.Fatalf("CallIntFunction: %v", err)
	}
	if got != 99 {
		t.Fatalf("alloca_roundtrip(99) = %d, want 99", got)
	}
}

func TestGetPointerToFunctionUnknownName(t *testing.T) {
	rt, _, _ := compileScenario(t, scenarios.Scenario.AddInt32)
	if _, ok := rt.GetPointerToFunction("does_not_exist"); ok {
		t.Fatal("expected GetPointerToFunction to report an unknown name as absent")
	}
}
