package mc

// RegisterAllocator assigns physical registers to the virtual registers a
// Selector produced, using a linear-scan pass with a most-recently-used
// eviction policy per class, the Go shape of RegisterAllocator.h's
// RARegisterClass lists.
type RegisterAllocator struct {
	conv Convention

	intPool   *mruPool
	floatPool *mruPool

	liveRefs  map[Register]int // remaining uses, decremented as the scan proceeds
	homes     map[Register]RegisterName
	spilled   map[Register]int // stack offset, for registers that didn't fit
	nextSpill int              // running count of spill slots claimed for the function currently being allocated
}

// mruPool is a most-recently-used list of physical registers: use moves a
// register to the front, leastRecentlyUsed returns (without removing) the
// least-recently used occupied one, the same "move to head on touch, steal from the tail on
// pressure" policy RARegisterClass's std::list<int> implements.
type mruPool struct {
	order []RegisterName
	free  map[RegisterName]bool
}

func newMRUPool(regs []RegisterName) *mruPool {
	free := make(map[RegisterName]bool, len(regs))
	for _, r := range regs {
		free[r] = true
	}
	return &mruPool{order: append([]RegisterName(nil), regs...), free: free}
}

func (p *mruPool) take() (RegisterName, bool) {
	for i, r := range p.order {
		if p.free[r] {
			p.free[r] = false
			p.use(i)
			return r, true
		}
	}
	return 0, false
}

func (p *mruPool) use(i int) {
	r := p.order[i]
	p.order = append(p.order[:i], p.order[i+1:]...)
	p.order = append([]RegisterName{r}, p.order...)
}

func (p *mruPool) release(r RegisterName) {
	p.free[r] = true
}

// leastRecentlyUsed returns the tail of the order list that is currently
// occupied (not free) — the next candidate for an eviction spill.
func (p *mruPool) leastRecentlyUsed() (RegisterName, bool) {
	for i := len(p.order) - 1; i >= 0; i-- {
		if !p.free[p.order[i]] {
			return p.order[i], true
		}
	}
	return 0, false
}

// allocatableInt/allocatableFloat exclude rsp/rbp (frame pointer machinery,
// never handed to the selector) the way emitProlog/emitEpilog reserve them
// in the source allocator.
func allocatableInt() []RegisterName {
	return []RegisterName{RAX, RCX, RDX, RBX, RSI, RDI, R8, R9, R10, R11, R12, R13, R14, R15}
}

func allocatableFloat() []RegisterName {
	return []RegisterName{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7, XMM8, XMM9, XMM10, XMM11, XMM12, XMM13, XMM14, XMM15}
}

// NewRegisterAllocator prepares an allocator targeting conv.
func NewRegisterAllocator(conv Convention) *RegisterAllocator {
	return &RegisterAllocator{
		conv:      conv,
		intPool:   newMRUPool(allocatableInt()),
		floatPool: newMRUPool(allocatableFloat()),
		liveRefs:  make(map[Register]int),
		homes:     make(map[Register]RegisterName),
		spilled:   make(map[Register]int),
	}
}

// Allocate assigns a physical register or a spill slot to every virtual
// register fn's instructions reference, rewrites every operand in place,
// and synthesizes fn's prolog/epilog (push of callee-saved registers it
// used, sub rsp,frame, and the mirrored pops/add on the way out).
func (ra *RegisterAllocator) Allocate(fn *Function) error {
	ra.runLiveAnalysis(fn)

	ra.nextSpill = 0
	usedCallee := map[RegisterName]bool{}

	for _, bb := range fn.Blocks {
		for idx := range bb.Insts {
			inst := &bb.Insts[idx]
			for i, op := range inst.Operands {
				if op.Kind != OperandReg || !op.Reg.Virtual {
					continue
				}
				phys, spillOffset, isSpill := ra.assign(op.Reg)
				if isSpill {
					inst.Operands[i] = frameOp(spillOffset)
					continue
				}
				inst.Operands[i] = regOp(Physical(phys))
				if isCalleeSaved(ra.conv, phys) {
					usedCallee[phys] = true
				}
				ra.release(op.Reg, phys)
			}
		}
	}

	ra.SpillBaseOffset(fn, ra.nextSpill)
	ra.emitPrologEpilog(fn, usedCallee)
	return nil
}

// runLiveAnalysis counts, per virtual register, how many instructions
// still reference it — the reference-counting liveness
// RARegisterLiveReference implements instead of full interval analysis.
func (ra *RegisterAllocator) runLiveAnalysis(fn *Function) {
	for _, bb := range fn.Blocks {
		for _, inst := range bb.Insts {
			for _, op := range inst.Operands {
				if op.Kind == OperandReg && op.Reg.Virtual {
					ra.liveRefs[op.Reg]++
				}
			}
		}
	}
}

// assign returns a physical register for vreg, allocating a fresh one
// (spilling the class's least-recently-used occupant if the pool is
// exhausted) the first time vreg is seen, and returning its existing home
// on every subsequent reference.
func (ra *RegisterAllocator) assign(vreg Register) (phys RegisterName, spillOffset int, isSpill bool) {
	if home, ok := ra.homes[vreg]; ok {
		return home, 0, false
	}
	if off, ok := ra.spilled[vreg]; ok {
		return 0, off, true
	}

	pool := ra.intPool
	if vreg.Class == ClassFloat {
		pool = ra.floatPool
	}
	if r, ok := pool.take(); ok {
		ra.homes[vreg] = r
		return r, 0, false
	}

	// Pool exhausted: spill the class's least-recently-used occupant and
	// reassign its register to vreg (MRU spill policy, RegisterAllocator's
	// setAsLeastRecentlyUsed/getLeastRecentlyUsed). The victim gets a real,
	// unique stack slot right now — not a placeholder — since nothing else
	// will revisit this eviction to fix it up later.
	if victim, ok := pool.leastRecentlyUsed(); ok {
		for v, h := range ra.homes {
			if h == victim {
				delete(ra.homes, v)
				ra.allocSpillSlot(v)
				break
			}
		}
		ra.homes[vreg] = victim
		return victim, 0, false
	}

	return 0, ra.allocSpillSlot(vreg), true
}

// allocSpillSlot claims a fresh 8-byte stack slot for vreg, records it in
// ra.spilled, and returns its offset. Callers must only call this the first
// time vreg needs a slot — later lookups go through ra.spilled directly.
func (ra *RegisterAllocator) allocSpillSlot(vreg Register) int {
	ra.nextSpill += 8
	off := -ra.nextSpill
	ra.spilled[vreg] = off
	return off
}

// release decrements vreg's remaining reference count and frees its
// physical register once no instruction still needs it, matching
// killVirtRegister's eager reclamation.
func (ra *RegisterAllocator) release(vreg Register, phys RegisterName) {
	ra.liveRefs[vreg]--
	if ra.liveRefs[vreg] > 0 {
		return
	}
	pool := ra.intPool
	if vreg.Class == ClassFloat {
		pool = ra.floatPool
	}
	pool.release(phys)
}

// SpillBaseOffset records how many bytes of spill storage a function
// needed, ready for frame-size computation.
func (ra *RegisterAllocator) SpillBaseOffset(fn *Function, spillBytes int) {
	fn.SpillBaseOffset = -spillBytes
	fn.FrameBaseOffset = AlignFrame(spillBytes + frameSizeFor(fn))
}

func frameSizeFor(fn *Function) int {
	size := 0
	for _, sv := range fn.StackVars {
		size += sv.Size
	}
	return size
}

func isCalleeSaved(conv Convention, r RegisterName) bool {
	for _, c := range conv.CalleeSaved {
		if c == r {
			return true
		}
	}
	return false
}

// emitPrologEpilog builds the standard push-rbp/mov-rbp-rsp/sub-rsp,frame
// prolog (with an UnwindHint on each instruction that changes the frame)
// and its mirrored epilog. The frame is reserved with a single
// sub rsp, imm whatever its size.
func (ra *RegisterAllocator) emitPrologEpilog(fn *Function, usedCallee map[RegisterName]bool) {
	fn.Prolog.Insts = nil
	push := func(r RegisterName) {
		fn.Prolog.Append(Inst{Op: OpPush, Operands: []Operand{regOp(Physical(r))}, UnwindHint: UnwindPushNonvolatile})
	}
	push(RBP)
	fn.Prolog.Append(Inst{Op: OpMov64, Operands: []Operand{regOp(Physical(RBP)), regOp(Physical(RSP))}, UnwindHint: UnwindSetFramePointer})

	for r := range usedCallee {
		if r == RBP {
			continue
		}
		push(r)
	}

	frame := AlignFrame(fn.FrameBaseOffset)
	if frame > 0 {
		fn.Prolog.Append(Inst{Op: OpSub64, Operands: []Operand{regOp(Physical(RSP)), immOp(int64(frame))}, UnwindHint: UnwindAllocStack})
	}

	fn.Epilog.Insts = nil
	if frame > 0 {
		fn.Epilog.Append(*NewInst(OpAdd64, regOp(Physical(RSP)), immOp(int64(frame))))
	}
	for r := range usedCallee {
		if r == RBP {
			continue
		}
		fn.Epilog.Append(*NewInst(OpPop, regOp(Physical(r))))
	}
}
