package jit

/*
typedef long long (*int_fn0)(void);
typedef long long (*int_fn1)(long long);
typedef long long (*int_fn2)(long long, long long);
typedef long long (*int_fn3)(long long, long long, long long);

typedef double (*float_fn1)(double);
typedef double (*float_fn2)(double, double);

typedef long long (*float_args_int_ret_fn2)(double, double);

static long long call_int0(void *fn) {
	return ((int_fn0)fn)();
}
static long long call_int1(void *fn, long long a0) {
	return ((int_fn1)fn)(a0);
}
static long long call_int2(void *fn, long long a0, long long a1) {
	return ((int_fn2)fn)(a0, a1);
}
static long long call_int3(void *fn, long long a0, long long a1, long long a2) {
	return ((int_fn3)fn)(a0, a1, a2);
}
static double call_float1(void *fn, double a0) {
	return ((float_fn1)fn)(a0);
}
static double call_float2(void *fn, double a0, double a1) {
	return ((float_fn2)fn)(a0, a1);
}
static long long call_float_args_int_ret2(void *fn, double a0, double a1) {
	return ((float_args_int_ret_fn2)fn)(a0, a1);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// CallIntFunction invokes a compiled function whose every parameter and
// return value is an integer (or pointer, passed as its bit pattern) of
// up to 64 bits, through the host's native C calling convention. This is
// deliberately narrow: dragonbook does not offer a fully generic FFI, only
// enough of one to drive the JIT from Go and run the scenarios it
// compiles end to end.
func CallIntFunction(fn uintptr, args ...int64) (int64, error) {
	ptr := unsafe.Pointer(fn)
	switch len(args) {
	case 0:
		return int64(C.call_int0(ptr)), nil
	case 1:
		return int64(C.call_int1(ptr, C.longlong(args[0]))), nil
	case 2:
		return int64(C.call_int2(ptr, C.longlong(args[0]), C.longlong(args[1]))), nil
	case 3:
		return int64(C.call_int3(ptr, C.longlong(args[0]), C.longlong(args[1]), C.longlong(args[2]))), nil
	default:
		return 0, fmt.Errorf("jit: CallIntFunction supports up to 3 arguments, got %d", len(args))
	}
}

// CallFloatFunction invokes a compiled function whose every parameter and
// return value is a double-precision float.
func CallFloatFunction(fn uintptr, args ...float64) (float64, error) {
	ptr := unsafe.Pointer(fn)
	switch len(args) {
	case 1:
		return float64(C.call_float1(ptr, C.double(args[0]))), nil
	case 2:
		return float64(C.call_float2(ptr, C.double(args[0]), C.double(args[1]))), nil
	default:
		return 0, fmt.Errorf("jit: CallFloatFunction supports 1 or 2 arguments, got %d", len(args))
	}
}

// CallFloatArgsIntReturn invokes a compiled function taking two doubles
// and returning an integer — the shape of the fcmp_une_float scenario,
// where a floating-point comparison widens to an i32 result.
func CallFloatArgsIntReturn(fn uintptr, a0, a1 float64) (int64, error) {
	ptr := unsafe.Pointer(fn)
	return int64(C.call_float_args_int_ret2(ptr, C.double(a0), C.double(a1))), nil
}
