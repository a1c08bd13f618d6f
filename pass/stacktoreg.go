// Package pass hosts IR-to-IR transformations that run between
// construction and machine-code lowering.
package pass

import "github.com/dragonbook/dragonbook/ir"

// PromoteStackToRegister rewrites fn's loads and stores of its
// single-assignment-friendly allocas into direct SSA values, the classic
// mem2reg transform. It runs in three phases, mirroring
// IRStackToRegisterPass.cpp:
//
//  1. discover which AllocaInst in fn.StackVars are promotable (every use
//     is a plain Load/Store of the whole value — never address-taken by a
//     GEP, call argument, stored pointer, etc.)
//  2. walk each block once, forwarding stores to the loads that follow
//     them and recording, per block, the first load seen before any store
//     (entryLoad) and the last store (the block's exit value)
//  3. wire cross-block uses: a load that had no preceding store in its own
//     block takes the exit value of its immediate predecessor, provided
//     the block has exactly one predecessor.
//
// Phase 3 does not build full dominance-based phi placement — a block
// with more than one predecessor whose entry value differs across
// predecessors is left with its original alloca traffic untouched. This
// mirrors the limitation spec.md §9 documents for the source pass: phi
// wiring across merge points is future work, not implemented here.
func PromoteStackToRegister(fn *ir.Function) {
	promotable := promotableAllocas(fn)
	if len(promotable) == 0 {
		return
	}

	type blockSummary struct {
		entryLoad map[*ir.AllocaInst]*ir.LoadInst // first load before any store to that alloca
		exitValue map[*ir.AllocaInst]ir.Value     // value held at block's end
	}
	summaries := make(map[*ir.BasicBlock]*blockSummary, len(fn.Blocks))

	for _, bb := range fn.Blocks {
		sum := &blockSummary{
			entryLoad: make(map[*ir.AllocaInst]*ir.LoadInst),
			exitValue: make(map[*ir.AllocaInst]ir.Value),
		}
		summaries[bb] = sum

		current := make(map[*ir.AllocaInst]ir.Value)
		var toRemove []int

		for idx, inst := range bb.Instructions {
			switch v := inst.(type) {
			case *ir.LoadInst:
				alloca, ok := v.Ptr.(*ir.AllocaInst)
				if !ok || !promotable[alloca] {
					continue
				}
				if val, ok := current[alloca]; ok {
					replaceAllUses(fn, v, val)
					toRemove = append(toRemove, idx)
				} else if _, seen := sum.entryLoad[alloca]; !seen {
					sum.entryLoad[alloca] = v
				}
			case *ir.StoreInst:
				alloca, ok := v.Ptr.(*ir.AllocaInst)
				if !ok || !promotable[alloca] {
					continue
				}
				current[alloca] = v.Val
				toRemove = append(toRemove, idx)
			}
		}
		for alloca, val := range current {
			sum.exitValue[alloca] = val
		}
		removeIndices(bb, toRemove)
	}

	// Phase 3: resolve entry loads whose block has exactly one predecessor
	// and whose predecessor already holds a value for that alloca.
	preds := predecessorsOf(fn)
	for _, bb := range fn.Blocks {
		sum := summaries[bb]
		ps := preds[bb]
		if len(ps) != 1 {
			continue
		}
		predSum := summaries[ps[0]]
		for alloca, load := range sum.entryLoad {
			if val, ok := predSum.exitValue[alloca]; ok {
				replaceAllUses(fn, load, val)
				removeInst(bb, load)
			}
		}
	}

	for alloca := range promotable {
		if !allUsesGone(fn, alloca) {
			continue
		}
		for _, bb := range fn.Blocks {
			removeInst(bb, alloca)
		}
		fn.RemoveStackVar(alloca)
	}
}

// promotableAllocas returns the subset of fn.StackVars whose only uses are
// whole-value Load/Store through the alloca pointer directly (never
// passed to a GEP, call, or another instruction that could escape it).
func promotableAllocas(fn *ir.Function) map[*ir.AllocaInst]bool {
	result := make(map[*ir.AllocaInst]bool, len(fn.StackVars))
	for _, alloca := range fn.StackVars {
		if isPromotable(fn, alloca) {
			result[alloca] = true
		}
	}
	return result
}

// isPromotable reports whether every use of alloca is as the pointer
// operand of a Load or Store — never an operand of anything else (a GEP,
// a call argument, a stored-away pointer value), which would mean its
// address escapes the function and mem2reg cannot eliminate it.
func isPromotable(fn *ir.Function, alloca *ir.AllocaInst) bool {
	for _, bb := range fn.Blocks {
		for _, inst := range bb.Instructions {
			switch v := inst.(type) {
			case *ir.LoadInst:
				if v.Ptr != ir.Value(alloca) && usesValue(inst, alloca) {
					return false
				}
			case *ir.StoreInst:
				if v.Val == ir.Value(alloca) {
					return false
				}
				if v.Ptr != ir.Value(alloca) && usesValue(inst, alloca) {
					return false
				}
			default:
				if usesValue(inst, alloca) {
					return false
				}
			}
		}
	}
	return true
}

func usesValue(inst ir.Instruction, v ir.Value) bool {
	for _, op := range inst.Operands() {
		if op == v {
			return true
		}
	}
	return false
}

func replaceAllUses(fn *ir.Function, old ir.Instruction, with ir.Value) {
	for _, bb := range fn.Blocks {
		for _, inst := range bb.Instructions {
			ops := inst.Operands()
			for i, op := range ops {
				if op == ir.Value(old) {
					inst.SetOperand(i, with)
				}
			}
		}
	}
}

func allUsesGone(fn *ir.Function, v ir.Value) bool {
	for _, bb := range fn.Blocks {
		for _, inst := range bb.Instructions {
			for _, op := range inst.Operands() {
				if op == v {
					return false
				}
			}
		}
	}
	return true
}

func removeIndices(bb *ir.BasicBlock, idx []int) {
	if len(idx) == 0 {
		return
	}
	drop := make(map[int]bool, len(idx))
	for _, i := range idx {
		drop[i] = true
	}
	kept := bb.Instructions[:0:0]
	for i, inst := range bb.Instructions {
		if !drop[i] {
			kept = append(kept, inst)
		}
	}
	bb.Instructions = kept
}

func removeInst(bb *ir.BasicBlock, target ir.Instruction) {
	for i, inst := range bb.Instructions {
		if inst == target {
			bb.Instructions = append(bb.Instructions[:i], bb.Instructions[i+1:]...)
			return
		}
	}
}

func predecessorsOf(fn *ir.Function) map[*ir.BasicBlock][]*ir.BasicBlock {
	preds := make(map[*ir.BasicBlock][]*ir.BasicBlock)
	for _, bb := range fn.Blocks {
		term := bb.Terminator()
		if term == nil {
			continue
		}
		switch t := term.(type) {
		case *ir.BrInst:
			preds[t.Target] = append(preds[t.Target], bb)
		case *ir.CondBrInst:
			preds[t.TrueBlock] = append(preds[t.TrueBlock], bb)
			preds[t.FalseBlock] = append(preds[t.FalseBlock], bb)
		}
	}
	return preds
}
