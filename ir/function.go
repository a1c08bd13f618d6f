package ir

// BasicBlock is an ordered sequence of instructions owned by exactly one
// Function. The final instruction, once the block is complete, is always
// a terminator (br/condbr/ret/retvoid) — see BasicBlock.Terminator.
type BasicBlock struct {
	Name string
	Func *Function

	Instructions []Instruction
}

// Append adds inst as the block's new last instruction.
func (b *BasicBlock) Append(inst Instruction) {
	inst.setParent(b)
	b.Instructions = append(b.Instructions, inst)
}

// Terminator returns the block's terminating instruction, or nil if the
// block is still open (has no terminator yet — only legal transiently
// during construction).
func (b *BasicBlock) Terminator() Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	last := b.Instructions[len(b.Instructions)-1]
	switch last.Opcode() {
	case OpBr, OpCondBr, OpRet, OpRetVoid:
		return last
	default:
		return nil
	}
}

// removeAt deletes the instruction at index i, preserving order.
func (b *BasicBlock) removeAt(i int) {
	b.Instructions = append(b.Instructions[:i], b.Instructions[i+1:]...)
}

// FileInfo names a source file referenced by an instruction's FileIndex,
// carried through to the JIT's stack-trace resolution (SPEC_FULL.md §11).
type FileInfo struct {
	Path string
}

// Function is a declared or defined function: it is itself a Constant
// with pointer-to-function semantics (Type() returns ptr-to-FunctionType).
type Function struct {
	ty   *FunctionType
	ctx  *Context
	Name string

	Params []*FunctionArg

	Blocks    []*BasicBlock
	StackVars []*AllocaInst // promotable-candidate allocas, entry-block order

	Files []FileInfo

	nextBlockID int
}

func (fn *Function) Type() Type { return fn.ctx.PointerTo(fn.ty) }
func (*Function) isConstant()   {}

// FuncType returns the function's signature type (not a pointer to it).
func (fn *Function) FuncType() *FunctionType { return fn.ty }

// Arguments returns the function's formal parameters.
func (fn *Function) Arguments() []*FunctionArg { return fn.Params }

// CreateBasicBlock appends a new, empty basic block to the function. The
// first block ever created for a function is its entry block
// (spec.md §3's invariant that "a function's first basic block is the
// entry").
func (fn *Function) CreateBasicBlock(name string) *BasicBlock {
	if name == "" {
		name = "bb"
	}
	bb := &BasicBlock{Name: name, Func: fn}
	fn.Blocks = append(fn.Blocks, bb)
	fn.nextBlockID++
	return bb
}

// EntryBlock returns the function's first basic block, or nil if none
// has been created yet.
func (fn *Function) EntryBlock() *BasicBlock {
	if len(fn.Blocks) == 0 {
		return nil
	}
	return fn.Blocks[0]
}

// AddFile registers a source file and returns its index, for use as an
// IRInst FileIndex.
func (fn *Function) AddFile(path string) int {
	for i, f := range fn.Files {
		if f.Path == path {
			return i
		}
	}
	fn.Files = append(fn.Files, FileInfo{Path: path})
	return len(fn.Files) - 1
}

// RemoveStackVar drops alloca from StackVars, used once the
// stack-to-register pass has promoted it (spec.md §4.5 final step).
func (fn *Function) RemoveStackVar(alloca *AllocaInst) {
	for i, a := range fn.StackVars {
		if a == alloca {
			fn.StackVars = append(fn.StackVars[:i], fn.StackVars[i+1:]...)
			return
		}
	}
}
