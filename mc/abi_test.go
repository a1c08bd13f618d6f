package mc

import (
	"testing"

	"github.com/dragonbook/dragonbook/ir"
)

func TestClassifySysV(t *testing.T) {
	ctx := ir.NewContext()
	defer ctx.Close()

	if got := Classify(SysV, ctx.Int32Ty()); got != ParamInteger {
		t.Fatalf("Classify(i32) = %v, want ParamInteger", got)
	}
	if got := Classify(SysV, ctx.DoubleTy()); got != ParamSSE {
		t.Fatalf("Classify(double) = %v, want ParamSSE", got)
	}
}

func TestAssignArgsMixedIntAndFloat(t *testing.T) {
	ctx := ir.NewContext()
	defer ctx.Close()

	i32 := ctx.Int32Ty()
	f64 := ctx.DoubleTy()
	params := []ir.Type{i32, f64, i32}

	regs, onReg := AssignArgs(SysV, params)
	if !onReg[0] || regs[0] != RDI {
		t.Fatalf("first int arg = %v, %v; want RDI, true", regs[0], onReg[0])
	}
	if !onReg[1] || regs[1] != XMM0 {
		t.Fatalf("first float arg = %v, %v; want XMM0, true", regs[1], onReg[1])
	}
	if !onReg[2] || regs[2] != RSI {
		t.Fatalf("second int arg = %v, %v; want RSI, true", regs[2], onReg[2])
	}
}

func TestAssignArgsSpillsPastRegisterBank(t *testing.T) {
	ctx := ir.NewContext()
	defer ctx.Close()

	i32 := ctx.Int32Ty()
	params := make([]ir.Type, len(SysV.IntArgRegs)+1)
	for i := range params {
		params[i] = i32
	}

	_, onReg := AssignArgs(SysV, params)
	for i := 0; i < len(SysV.IntArgRegs); i++ {
		if !onReg[i] {
			t.Fatalf("arg %d should be register-assigned, got onReg=false", i)
		}
	}
	if onReg[len(onReg)-1] {
		t.Fatal("the argument past the integer register bank should spill to the stack")
	}
}

func TestAssignArgsIndependentIntAndFloatBanks(t *testing.T) {
	ctx := ir.NewContext()
	defer ctx.Close()

	f32 := ctx.FloatTy()
	i32 := ctx.Int32Ty()
	// Exhaust every float register; the trailing int argument must still
	// land in a register since the two banks are tracked independently.
	params := make([]ir.Type, 0, len(SysV.FloatArgRegs)+1)
	for i := 0; i < len(SysV.FloatArgRegs); i++ {
		params = append(params, f32)
	}
	params = append(params, i32)

	regs, onReg := AssignArgs(SysV, params)
	last := len(params) - 1
	if !onReg[last] || regs[last] != RDI {
		t.Fatalf("int arg after exhausting float bank = %v, %v; want RDI, true", regs[last], onReg[last])
	}
}

func TestAlignFrame(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 0},
		{1, 16},
		{16, 16},
		{17, 32},
	}
	for _, c := range cases {
		if got := AlignFrame(c.in); got != c.want {
			t.Fatalf("AlignFrame(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}
