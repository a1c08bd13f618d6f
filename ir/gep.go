package ir

// lowerGEP expands a getelementptr into integer arithmetic performed on
// the pointer's bit pattern, the way IRInstGEP's constructor does: walk
// SourceElementType field-by-field/element-by-element, folding constant
// indices directly into a running byte offset and emitting add/mul
// sub-instructions for dynamic ones, then bitcast the pointer to i64, add
// the offset, and bitcast back. The emitted sub-instructions are appended
// to inst.Instructions, never to the enclosing block (GEPInst's own doc
// comment and spec.md §9 both call this out — passes must recurse into
// GEPInst.Instructions separately).
func lowerGEP(ctx *Context, inst *GEPInst) {
	int64Ty := ctx.Int64Ty()
	bytePtrTy := ctx.PointerTo(ctx.Int8Ty())

	toInt := &CastInst{instBase: instBase{ty: int64Ty}, op: OpBitCast, Val: inst.Ptr}
	inst.Instructions = append(inst.Instructions, toInt)

	offset := Value(ctx.ConstantInt(int64Ty, 0))
	curType := inst.SourceElementType

	for idx, index := range inst.Indices {
		var step Value
		if idx == 0 {
			// The first index walks whole SourceElementType elements
			// (array-style indexing into *SourceElementType), matching
			// getelementptr's leading-index convention.
			step = scaledOffset(ctx, index, curType.AllocSize())
		} else {
			switch ct := curType.(type) {
			case *StructType:
				ci, ok := index.(*ConstantInt)
				if !ok {
					// Struct field indices must be constant; callers violating
					// this will fail validation elsewhere, so fall back to a
					// zero step rather than panicking during lowering.
					step = ctx.ConstantInt(int64Ty, 0)
					break
				}
				fieldIdx := int(ci.Value)
				step = ctx.ConstantInt(int64Ty, uint64(ct.FieldOffset(fieldIdx)))
				curType = ct.Fields[fieldIdx]
			case *PointerType:
				step = scaledOffset(ctx, index, ct.Elem.AllocSize())
				curType = ct.Elem
			default:
				step = ctx.ConstantInt(int64Ty, 0)
			}
		}
		if bin, ok := step.(*BinaryInst); ok {
			if widen, ok := bin.Op1.(*CastInst); ok {
				inst.Instructions = append(inst.Instructions, widen)
			}
			inst.Instructions = append(inst.Instructions, bin)
		}
		add := &BinaryInst{instBase: instBase{ty: int64Ty}, op: OpAdd, Op1: offset, Op2: step}
		inst.Instructions = append(inst.Instructions, add)
		offset = add
	}

	addrInt := &BinaryInst{instBase: instBase{ty: int64Ty}, op: OpAdd, Op1: toInt, Op2: offset}
	inst.Instructions = append(inst.Instructions, addrInt)

	toPtr := &CastInst{instBase: instBase{ty: bytePtrTy}, op: OpBitCast, Val: addrInt}
	inst.Instructions = append(inst.Instructions, toPtr)

	// curType is whatever the index walk narrowed down to (unchanged by the
	// leading array-style index, narrowed by every subsequent struct-field
	// or element index) — the GEP's result type is always a pointer to it,
	// never the base pointer's own type.
	inst.ty = ctx.PointerTo(curType)

	final := &CastInst{instBase: instBase{ty: inst.ty}, op: OpBitCast, Val: toPtr}
	inst.Instructions = append(inst.Instructions, final)
}

// scaledOffset returns index*elemSize as a Value, folding the
// multiplication at lowering time when index is already a constant.
func scaledOffset(ctx *Context, index Value, elemSize int) Value {
	if ci, ok := index.(*ConstantInt); ok {
		return ctx.ConstantInt(ctx.Int64Ty(), ci.Value*uint64(elemSize))
	}
	widened := Value(index)
	if index.Type().Kind() != KindInt64 {
		widened = &CastInst{instBase: instBase{ty: ctx.Int64Ty()}, op: OpSExt, Val: index}
	}
	return &BinaryInst{
		instBase: instBase{ty: ctx.Int64Ty()},
		op:       OpMul,
		Op1:      widened,
		Op2:      ctx.ConstantInt(ctx.Int64Ty(), uint64(elemSize)),
	}
}
