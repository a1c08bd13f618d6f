package ir

import "fmt"

// validate type-checks inst against the rules in spec.md §4.4, one case
// per opcode family. It is called by Builder immediately after an
// instruction is constructed, before it is appended to the current block,
// matching the "fail fast" contract of spec.md §7 (construction errors
// are synchronous and carry a human-readable message; there is no
// recovery — the caller built malformed IR and must fix it).
func validate(inst Instruction) error {
	switch v := inst.(type) {
	case *LoadInst:
		pt, ok := v.Ptr.Type().(*PointerType)
		if !ok {
			return fmt.Errorf("ir: load operand is not a pointer (got %s)", v.Ptr.Type())
		}
		if v.ty != pt.Elem {
			return fmt.Errorf("ir: load result type %s does not match pointee type %s", v.ty, pt.Elem)
		}
		return nil

	case *StoreInst:
		pt, ok := v.Ptr.Type().(*PointerType)
		if !ok {
			return fmt.Errorf("ir: store destination is not a pointer (got %s)", v.Ptr.Type())
		}
		if pt.Elem != v.Val.Type() {
			return fmt.Errorf("ir: store value type %s does not match pointee type %s", v.Val.Type(), pt.Elem)
		}
		return nil

	case *BinaryInst:
		if v.op.IsIntBinary() {
			if !isIntegerOrPointer(v.Op1.Type()) || v.Op1.Type() != v.Op2.Type() {
				return fmt.Errorf("ir: %s operands must share one integer/pointer type (got %s, %s)", v.op, v.Op1.Type(), v.Op2.Type())
			}
			return nil
		}
		if v.op.IsFloatBinary() {
			if !IsFloat(v.Op1.Type()) || v.Op1.Type() != v.Op2.Type() {
				return fmt.Errorf("ir: %s operands must share one floating type (got %s, %s)", v.op, v.Op1.Type(), v.Op2.Type())
			}
			return nil
		}
		return fmt.Errorf("ir: unrecognized binary opcode %s", v.op)

	case *UnaryInst:
		switch v.op {
		case OpNeg, OpNot:
			if !IsInteger(v.Val.Type()) {
				return fmt.Errorf("ir: %s operand must be an integer (got %s)", v.op, v.Val.Type())
			}
		case OpFNeg:
			if !IsFloat(v.Val.Type()) {
				return fmt.Errorf("ir: fneg operand must be a float (got %s)", v.Val.Type())
			}
		}
		return nil

	case *CmpInst:
		if v.Op1.Type() != v.Op2.Type() {
			return fmt.Errorf("ir: %s operands must share one type (got %s, %s)", v.op, v.Op1.Type(), v.Op2.Type())
		}
		if v.op.IsICmp() && !isIntegerOrPointer(v.Op1.Type()) {
			return fmt.Errorf("ir: %s operands must be integer or pointer (got %s)", v.op, v.Op1.Type())
		}
		if v.op.IsFCmp() && !IsFloat(v.Op1.Type()) {
			return fmt.Errorf("ir: %s operands must be float (got %s)", v.op, v.Op1.Type())
		}
		if v.ty.Kind() != KindInt1 {
			return fmt.Errorf("ir: comparison result type must be i1")
		}
		return nil

	case *CastInst:
		return validateCast(v)

	case *CondBrInst:
		if v.Condition.Type().Kind() != KindInt1 {
			return fmt.Errorf("ir: condbr condition must be i1 (got %s)", v.Condition.Type())
		}
		return nil

	case *CallInst:
		ft := calleeFunctionType(v.Callee)
		if ft == nil {
			return fmt.Errorf("ir: call target is not a function or function pointer (got %s)", v.Callee.Type())
		}
		if len(v.Args) != len(ft.Params) {
			return fmt.Errorf("ir: call to %s expects %d arguments, got %d", ft, len(ft.Params), len(v.Args))
		}
		for i, a := range v.Args {
			if a.Type() != ft.Params[i] {
				return fmt.Errorf("ir: call argument %d type %s does not match parameter type %s", i, a.Type(), ft.Params[i])
			}
		}
		return nil

	case *AllocaInst:
		if _, ok := v.ArraySize.(*ConstantInt); !ok {
			return fmt.Errorf("ir: alloca array size must be a constant integer")
		}
		return nil

	case *GEPInst:
		// Struct field indices must be constants (lowerGEP folds them into a
		// fixed byte offset); every other index may be dynamic.
		cur := v.SourceElementType
		for n := 1; n < len(v.Indices); n++ {
			switch ct := cur.(type) {
			case *StructType:
				ci, ok := v.Indices[n].(*ConstantInt)
				if !ok {
					return fmt.Errorf("ir: getelementptr index %d into struct %s is not a constant", n, ct)
				}
				cur = ct.Fields[int(ci.Value)]
			case *PointerType:
				cur = ct.Elem
			}
		}
		return nil

	case *PhiInst:
		for _, in := range v.Incoming {
			if in.Value.Type() != v.ty {
				return fmt.Errorf("ir: phi incoming value type %s does not match phi type %s", in.Value.Type(), v.ty)
			}
		}
		return nil

	case *BrInst, *RetVoidInst:
		return nil

	case *RetInst:
		return nil

	default:
		return fmt.Errorf("ir: validator has no rule for %T", inst)
	}
}

func isIntegerOrPointer(t Type) bool {
	return IsInteger(t) || t.Kind() == KindPointer
}

func validateCast(v *CastInst) error {
	src := v.Val.Type()
	dst := v.ty
	switch v.op {
	case OpTrunc:
		if !IsInteger(src) || !IsInteger(dst) || IntBits(dst) > IntBits(src) {
			return fmt.Errorf("ir: trunc requires destination width <= source width (got %s -> %s)", src, dst)
		}
	case OpZExt, OpSExt:
		if !IsInteger(src) || !IsInteger(dst) || IntBits(dst) < IntBits(src) {
			return fmt.Errorf("ir: %s requires destination width >= source width (got %s -> %s)", v.op, src, dst)
		}
	case OpFPTrunc:
		if !IsFloat(src) || !IsFloat(dst) || dst.(*FloatType).Bits > src.(*FloatType).Bits {
			return fmt.Errorf("ir: fptrunc requires a narrower destination (got %s -> %s)", src, dst)
		}
	case OpFPExt:
		if !IsFloat(src) || !IsFloat(dst) || dst.(*FloatType).Bits < src.(*FloatType).Bits {
			return fmt.Errorf("ir: fpext requires a wider destination (got %s -> %s)", src, dst)
		}
	case OpFPToUI, OpFPToSI:
		if !IsFloat(src) || !IsInteger(dst) {
			return fmt.Errorf("ir: %s requires a float source and integer destination (got %s -> %s)", v.op, src, dst)
		}
	case OpUIToFP, OpSIToFP:
		if !IsInteger(src) || !IsFloat(dst) {
			return fmt.Errorf("ir: %s requires an integer source and float destination (got %s -> %s)", v.op, src, dst)
		}
	case OpBitCast:
		if src.AllocSize() != dst.AllocSize() {
			return fmt.Errorf("ir: bitcast requires types of equal size (got %s (%d) -> %s (%d))", src, src.AllocSize(), dst, dst.AllocSize())
		}
	default:
		return fmt.Errorf("ir: unrecognized cast opcode %s", v.op)
	}
	return nil
}
