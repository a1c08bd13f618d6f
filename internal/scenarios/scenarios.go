// Package scenarios builds the six small IR programs named throughout
// spec.md §8 as worked examples of the pipeline end to end. Both
// cmd/dragonbookc and the jit package's tests build them from here so the
// CLI's "run"/"asm" output and the test suite exercise identically
// constructed IR.
package scenarios

import (
	"fmt"

	"github.com/dragonbook/dragonbook/ir"
)

// Scenario names every supported worked example.
var Scenario = struct {
	AddInt32      string
	UDivInt8      string
	FDivDouble    string
	FCmpUNEFloat  string
	ZExtI64I8     string
	AllocaRound   string
}{
	AddInt32:     "add_int32",
	UDivInt8:     "udiv_int8",
	FDivDouble:   "fdiv_double",
	FCmpUNEFloat: "fcmp_une_float",
	ZExtI64I8:    "zext_i64_i8",
	AllocaRound:  "alloca_roundtrip",
}

// Names lists every scenario, in a stable order, for CLI help text and
// table-driven tests.
var Names = []string{
	Scenario.AddInt32,
	Scenario.UDivInt8,
	Scenario.FDivDouble,
	Scenario.FCmpUNEFloat,
	Scenario.ZExtI64I8,
	Scenario.AllocaRound,
}

// Kind distinguishes an integer-returning scenario from a float-returning
// one, since jit.CallIntFunction and jit.CallFloatFunction use different
// native trampolines.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindFloatArgsIntReturn
)

// Build constructs the named scenario's single function in ctx and
// returns it along with the argument/return kind the caller needs to
// invoke it correctly.
func Build(ctx *ir.Context, name string) (fn *ir.Function, kind Kind, err error) {
	switch name {
	case Scenario.AddInt32:
		fn, err = buildAddInt32(ctx)
		return fn, KindInt, err
	case Scenario.UDivInt8:
		fn, err = buildUDivInt8(ctx)
		return fn, KindInt, err
	case Scenario.FDivDouble:
		fn, err = buildFDivDouble(ctx)
		return fn, KindFloat, err
	case Scenario.FCmpUNEFloat:
		fn, err = buildFCmpUNEFloat(ctx)
		return fn, KindFloatArgsIntReturn, err
	case Scenario.ZExtI64I8:
		fn, err = buildZExtI64I8(ctx)
		return fn, KindInt, err
	case Scenario.AllocaRound:
		fn, err = buildAllocaRoundtrip(ctx)
		return fn, KindInt, err
	default:
		return nil, 0, fmt.Errorf("scenarios: unknown scenario %q", name)
	}
}

func buildAddInt32(ctx *ir.Context) (*ir.Function, error) {
	i32 := ctx.Int32Ty()
	ft := ctx.FunctionType(i32, []ir.Type{i32, i32})
	fn := ctx.CreateFunction(ft, "add_int32")
	entry := fn.CreateBasicBlock("entry")

	b := ir.NewBuilder(ctx)
	b.SetInsertPoint(entry)
	sum, err := b.CreateAdd(fn.Arguments()[0], fn.Arguments()[1])
	if err != nil {
		return nil, err
	}
	if _, err := b.CreateRet(sum); err != nil {
		return nil, err
	}
	return fn, nil
}

func buildUDivInt8(ctx *ir.Context) (*ir.Function, error) {
	i8 := ctx.Int8Ty()
	ft := ctx.FunctionType(i8, []ir.Type{i8, i8})
	fn := ctx.CreateFunction(ft, "udiv_int8")
	entry := fn.CreateBasicBlock("entry")

	b := ir.NewBuilder(ctx)
	b.SetInsertPoint(entry)
	q, err := b.CreateUDiv(fn.Arguments()[0], fn.Arguments()[1])
	if err != nil {
		return nil, err
	}
	if _, err := b.CreateRet(q); err != nil {
		return nil, err
	}
	return fn, nil
}

func buildFDivDouble(ctx *ir.Context) (*ir.Function, error) {
	f64 := ctx.DoubleTy()
	ft := ctx.FunctionType(f64, []ir.Type{f64, f64})
	fn := ctx.CreateFunction(ft, "fdiv_double")
	entry := fn.CreateBasicBlock("entry")

	b := ir.NewBuilder(ctx)
	b.SetInsertPoint(entry)
	q, err := b.CreateFDiv(fn.Arguments()[0], fn.Arguments()[1])
	if err != nil {
		return nil, err
	}
	if _, err := b.CreateRet(q); err != nil {
		return nil, err
	}
	return fn, nil
}

func buildFCmpUNEFloat(ctx *ir.Context) (*ir.Function, error) {
	// Built on double rather than single precision so dragonbookc's
	// generic double-based calling trampoline (jit.CallFloatFunction's
	// argument convention) can drive it without a dedicated single-
	// precision C entry point; the comparison opcode itself is identical
	// for either width.
	f64 := ctx.DoubleTy()
	i32 := ctx.Int32Ty()
	ft := ctx.FunctionType(i32, []ir.Type{f64, f64})
	fn := ctx.CreateFunction(ft, "fcmp_une_float")
	entry := fn.CreateBasicBlock("entry")

	b := ir.NewBuilder(ctx)
	b.SetInsertPoint(entry)
	cmp, err := b.CreateFCmpUNE(fn.Arguments()[0], fn.Arguments()[1])
	if err != nil {
		return nil, err
	}
	widened, err := b.CreateZExt(cmp, i32)
	if err != nil {
		return nil, err
	}
	if _, err := b.CreateRet(widened); err != nil {
		return nil, err
	}
	return fn, nil
}

func buildZExtI64I8(ctx *ir.Context) (*ir.Function, error) {
	i8 := ctx.Int8Ty()
	i64 := ctx.Int64Ty()
	ft := ctx.FunctionType(i64, []ir.Type{i8})
	fn := ctx.CreateFunction(ft, "zext_i64_i8")
	entry := fn.CreateBasicBlock("entry")

	b := ir.NewBuilder(ctx)
	b.SetInsertPoint(entry)
	widened, err := b.CreateZExt(fn.Arguments()[0], i64)
	if err != nil {
		return nil, err
	}
	if _, err := b.CreateRet(widened); err != nil {
		return nil, err
	}
	return fn, nil
}

func buildAllocaRoundtrip(ctx *ir.Context) (*ir.Function, error) {
	i32 := ctx.Int32Ty()
	ft := ctx.FunctionType(i32, []ir.Type{i32})
	fn := ctx.CreateFunction(ft, "alloca_roundtrip")
	entry := fn.CreateBasicBlock("entry")

	b := ir.NewBuilder(ctx)
	b.SetInsertPoint(entry)
	one := ctx.ConstantInt(i32, 1)
	slot, err := b.CreateAlloca(i32, one, "slot")
	if err != nil {
		return nil, err
	}
	if _, err := b.CreateStore(fn.Arguments()[0], slot); err != nil {
		return nil, err
	}
	loaded, err := b.CreateLoad(i32, slot)
	if err != nil {
		return nil, err
	}
	if _, err := b.CreateRet(loaded); err != nil {
		return nil, err
	}
	return fn, nil
}
