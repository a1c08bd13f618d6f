package ir

import (
	"math"

	"github.com/dragonbook/dragonbook/internal/arena"
)

// intKey interns ConstantInt by (type identity, bit pattern).
type intKey struct {
	ty    Type
	value uint64
}

// floatKey interns ConstantFP by (type identity, raw 64-bit pattern) so
// that NaN constants remain addressable (spec.md §3).
type floatKey struct {
	ty  Type
	bits uint64
}

// Context owns every type, constant, function and global created through
// it. Dropping a Context (Close) tears down its arena in one step; nothing
// survives it, matching spec.md §3's "Lifecycles" paragraph.
//
// A Context is not safe for concurrent use — spec.md §5 is explicit that
// the JIT is single-threaded within one Context.
type Context struct {
	arena *arena.Arena

	voidTy   *VoidType
	int1Ty   *IntType
	int8Ty   *IntType
	int16Ty  *IntType
	int32Ty  *IntType
	int64Ty  *IntType
	floatTy  *FloatType
	doubleTy *FloatType

	funcTypes []*FunctionType
	structTys map[string]*StructType

	ints      map[intKey]*ConstantInt
	floats    map[floatKey]*ConstantFP
	structLit []*ConstantStruct

	functions []*Function
	globals   []*GlobalVariable

	globalMappings map[Value]uintptr
}

// NewContext allocates a fresh Context with its primitive types ready.
func NewContext() *Context {
	c := &Context{
		arena:          arena.New(),
		structTys:      make(map[string]*StructType),
		ints:           make(map[intKey]*ConstantInt),
		floats:         make(map[floatKey]*ConstantFP),
		globalMappings: make(map[Value]uintptr),
	}
	c.voidTy = c.newType(&VoidType{}).(*VoidType)
	c.int1Ty = c.newType(&IntType{Bits: 1}).(*IntType)
	c.int8Ty = c.newType(&IntType{Bits: 8}).(*IntType)
	c.int16Ty = c.newType(&IntType{Bits: 16}).(*IntType)
	c.int32Ty = c.newType(&IntType{Bits: 32}).(*IntType)
	c.int64Ty = c.newType(&IntType{Bits: 64}).(*IntType)
	c.floatTy = c.newType(&FloatType{Bits: 32}).(*FloatType)
	c.doubleTy = c.newType(&FloatType{Bits: 64}).(*FloatType)
	return c
}

// Close releases the context's arena. Call it when every JITRuntime that
// consumed the context has also been closed (jit.Runtime keeps native
// code that references this context's values).
func (c *Context) Close() error {
	return c.arena.Close()
}

func (c *Context) newType(t Type) Type {
	return arena.Track(c.arena, t).(Type)
}

func (c *Context) newValue(v Value) Value {
	return arena.Track(c.arena, v).(Value)
}

// Primitive type accessors.
func (c *Context) VoidTy() *VoidType    { return c.voidTy }
func (c *Context) Int1Ty() *IntType     { return c.int1Ty }
func (c *Context) Int8Ty() *IntType     { return c.int8Ty }
func (c *Context) Int16Ty() *IntType    { return c.int16Ty }
func (c *Context) Int32Ty() *IntType    { return c.int32Ty }
func (c *Context) Int64Ty() *IntType    { return c.int64Ty }
func (c *Context) FloatTy() *FloatType  { return c.floatTy }
func (c *Context) DoubleTy() *FloatType { return c.doubleTy }

// PointerTo returns the (memoized) pointer-to-t type.
func (c *Context) PointerTo(t Type) *PointerType {
	if p := t.cachedPointerTo(); p != nil {
		return p
	}
	p := c.newType(&PointerType{Elem: t}).(*PointerType)
	t.setCachedPointerTo(p)
	return p
}

// FunctionType interns a function signature: linear search over existing
// function types for structural equality before allocating a new one,
// matching spec.md §4.2.
func (c *Context) FunctionType(ret Type, params []Type) *FunctionType {
	for _, ft := range c.funcTypes {
		if sameFunctionType(ft, ret, params) {
			return ft
		}
	}
	ft := c.newType(&FunctionType{Ret: ret, Params: append([]Type(nil), params...)}).(*FunctionType)
	c.funcTypes = append(c.funcTypes, ft)
	return ft
}

// StructType returns the (possibly freshly allocated, always empty on
// first creation) named struct type. Repeated calls with the same name
// return the same mutable object so the caller can progressively append
// to Fields.
func (c *Context) StructType(name string) *StructType {
	if st, ok := c.structTys[name]; ok {
		return st
	}
	st := c.newType(&StructType{Name: name}).(*StructType)
	c.structTys[name] = st
	return st
}

// ConstantInt interns an integer constant by (type, bit pattern).
func (c *Context) ConstantInt(ty Type, value uint64) *ConstantInt {
	key := intKey{ty, value}
	if v, ok := c.ints[key]; ok {
		return v
	}
	v := c.newValue(&ConstantInt{ty: ty, Value: value}).(*ConstantInt)
	c.ints[key] = v
	return v
}

// ConstantFP interns a floating-point constant by (type, raw bit pattern)
// so NaN remains addressable (spec.md §3/§4.2).
func (c *Context) ConstantFP(ty Type, value float64) *ConstantFP {
	key := floatKey{ty, math.Float64bits(value)}
	if v, ok := c.floats[key]; ok {
		return v
	}
	v := c.newValue(&ConstantFP{ty: ty, Value: value}).(*ConstantFP)
	c.floats[key] = v
	return v
}

// ConstantStruct interns a struct literal by structural equality (linear
// search, per spec.md §4.2 — struct literals are rare enough that this is
// not a hot path).
func (c *Context) ConstantStruct(ty *StructType, fields []Constant) *ConstantStruct {
	for _, existing := range c.structLit {
		if existing.ty != ty || len(existing.Fields) != len(fields) {
			continue
		}
		same := true
		for i := range fields {
			if existing.Fields[i] != fields[i] {
				same = false
				break
			}
		}
		if same {
			return existing
		}
	}
	v := c.newValue(&ConstantStruct{ty: ty, Fields: append([]Constant(nil), fields...)}).(*ConstantStruct)
	c.structLit = append(c.structLit, v)
	return v
}

// CreateFunction declares and returns a new Function; its entry block is
// not created automatically — callers use Builder.SetInsertPoint after
// calling Function.CreateBasicBlock (spec.md §6).
func (c *Context) CreateFunction(fnTy *FunctionType, name string) *Function {
	fn := &Function{ty: fnTy, Name: name, ctx: c}
	for i, pt := range fnTy.Params {
		fn.Params = append(fn.Params, &FunctionArg{ty: pt, Index: i})
	}
	c.newValue(fn)
	c.functions = append(c.functions, fn)
	return fn
}

// Functions returns every function declared in this context, in creation
// order.
func (c *Context) Functions() []*Function { return c.functions }

// Globals returns every global variable declared in this context, in
// creation order.
func (c *Context) Globals() []*GlobalVariable { return c.globals }

// CreateGlobalVariable declares a module-scope global with the given
// initializer (nil means zero-initialized) and name.
func (c *Context) CreateGlobalVariable(ty Type, initializer Constant, name string) *GlobalVariable {
	g := &GlobalVariable{ty: c.PointerTo(ty), elemTy: ty, Initializer: initializer, Name: name, GlobalsOffset: -1}
	c.newValue(g)
	c.globals = append(c.globals, g)
	return g
}

// AddGlobalMapping binds v (a Function or GlobalVariable declared in this
// context) to an already-existing native address, the way a host binds a
// bridge function or an externally-owned global (spec.md §6). jit.Runtime
// consults this table instead of emitting code/storage for v.
func (c *Context) AddGlobalMapping(v Value, nativeAddr uintptr) {
	c.globalMappings[v] = nativeAddr
}

// GlobalMapping returns the native address bound via AddGlobalMapping, if
// any.
func (c *Context) GlobalMapping(v Value) (uintptr, bool) {
	addr, ok := c.globalMappings[v]
	return addr, ok
}

// GetFunctionAssembly would render a textual listing of fn's machine code
// for debugging. The assembly-text writer is out of scope for this module
// (spec.md §1); the method is kept on the public surface because
// spec.md §6 lists it as part of the programmatic surface callers link
// against.
func (c *Context) GetFunctionAssembly(fn *Function) (string, error) {
	return "", errAssemblyWriterOutOfScope
}
