package ir

import "fmt"

// Kind identifies which concrete Type a Type value is.
type Kind int

const (
	KindVoid Kind = iota
	KindInt1
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat
	KindDouble
	KindPointer
	KindStruct
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindInt1:
		return "i1"
	case KindInt8:
		return "i8"
	case KindInt16:
		return "i16"
	case KindInt32:
		return "i32"
	case KindInt64:
		return "i64"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindPointer:
		return "ptr"
	case KindStruct:
		return "struct"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Type is an immutable, interned IR type. Two Types that describe the same
// shape compare equal by pointer identity within one Context.
type Type interface {
	Kind() Kind
	// AllocSize returns the byte size used by a value of this type, the
	// way Context lays it out on the stack or inside an aggregate.
	AllocSize() int
	String() string

	// cachedPointerTo/setCachedPointerTo back Context.PointerTo's
	// per-type memoization (spec.md §4.2: "a pointer-of-T helper that
	// memoizes the pointer type on the element").
	cachedPointerTo() *PointerType
	setCachedPointerTo(*PointerType)
}

type typeHeader struct {
	ptr *PointerType
}

func (h *typeHeader) cachedPointerTo() *PointerType    { return h.ptr }
func (h *typeHeader) setCachedPointerTo(p *PointerType) { h.ptr = p }

// IsInteger reports whether t is one of the Int1..Int64 kinds.
func IsInteger(t Type) bool {
	switch t.Kind() {
	case KindInt1, KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether t is Float or Double.
func IsFloat(t Type) bool {
	switch t.Kind() {
	case KindFloat, KindDouble:
		return true
	default:
		return false
	}
}

// IntBits returns the bit width of an integer type, panicking on anything
// else (callers are expected to have checked IsInteger first).
func IntBits(t Type) int {
	switch t.Kind() {
	case KindInt1:
		return 1
	case KindInt8:
		return 8
	case KindInt16:
		return 16
	case KindInt32:
		return 32
	case KindInt64:
		return 64
	default:
		panic(fmt.Sprintf("ir: IntBits called on non-integer type %s", t))
	}
}

// VoidType is the type of instructions producing no value.
type VoidType struct{ typeHeader }

func (*VoidType) Kind() Kind      { return KindVoid }
func (*VoidType) AllocSize() int  { return 0 }
func (*VoidType) String() string  { return "void" }

// IntType covers Int1, Int8, Int16, Int32 and Int64.
type IntType struct {
	typeHeader
	Bits int
}

func (t *IntType) Kind() Kind {
	switch t.Bits {
	case 1:
		return KindInt1
	case 8:
		return KindInt8
	case 16:
		return KindInt16
	case 32:
		return KindInt32
	case 64:
		return KindInt64
	default:
		panic(fmt.Sprintf("ir: invalid integer width %d", t.Bits))
	}
}

func (t *IntType) AllocSize() int {
	switch {
	case t.Bits <= 8:
		return 1
	case t.Bits <= 16:
		return 2
	case t.Bits <= 32:
		return 4
	default:
		return 8
	}
}

func (t *IntType) String() string { return fmt.Sprintf("i%d", t.Bits) }

// FloatType covers single (32-bit) and double (64-bit) precision floats.
type FloatType struct {
	typeHeader
	Bits int // 32 or 64
}

func (t *FloatType) Kind() Kind {
	if t.Bits == 32 {
		return KindFloat
	}
	return KindDouble
}

func (t *FloatType) AllocSize() int {
	if t.Bits == 32 {
		return 4
	}
	return 8
}

func (t *FloatType) String() string {
	if t.Bits == 32 {
		return "float"
	}
	return "double"
}

// PointerType is a typed pointer to Elem.
type PointerType struct {
	typeHeader
	Elem Type
}

func (*PointerType) Kind() Kind     { return KindPointer }
func (*PointerType) AllocSize() int { return 8 }
func (t *PointerType) String() string {
	return t.Elem.String() + "*"
}

// StructType is a named, ordered aggregate. Fields is populated by the
// caller after StructType creation (Context.StructType returns an empty,
// mutable struct); AllocSize rounds each field up to an 8-byte slot per
// spec.md §3.
type StructType struct {
	typeHeader
	Name   string
	Fields []Type
}

func (*StructType) Kind() Kind { return KindStruct }

func (t *StructType) AllocSize() int {
	size := 0
	for _, f := range t.Fields {
		size += (f.AllocSize() + 7) / 8 * 8
	}
	return size
}

func (t *StructType) String() string { return "%" + t.Name }

// FieldOffset returns the byte offset of Fields[index], using the same
// 8-byte-per-field rounding as AllocSize.
func (t *StructType) FieldOffset(index int) int {
	offset := 0
	for i := 0; i < index; i++ {
		offset += (t.Fields[i].AllocSize() + 7) / 8 * 8
	}
	return offset
}

// FunctionType is a function signature: interned structurally per
// spec.md §4.2 (Context.FunctionType linearly searches before creating a
// new one).
type FunctionType struct {
	typeHeader
	Ret    Type
	Params []Type
}

func (*FunctionType) Kind() Kind     { return KindFunction }
func (*FunctionType) AllocSize() int { return 8 } // function pointer

func (t *FunctionType) String() string {
	s := t.Ret.String() + " ("
	for i, p := range t.Params {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	return s + ")"
}

func sameFunctionType(a *FunctionType, ret Type, params []Type) bool {
	if a.Ret != ret || len(a.Params) != len(params) {
		return false
	}
	for i := range params {
		if a.Params[i] != params[i] {
			return false
		}
	}
	return true
}
