package mc

import "testing"

func TestOpcodeStringKnownAndUnknown(t *testing.T) {
	if got := OpAdd32.String(); got != "add32" {
		t.Fatalf("OpAdd32.String() = %q, want %q", got, "add32")
	}
	if got := OpNop.String(); got != "nop" {
		t.Fatalf("OpNop.String() = %q, want %q", got, "nop")
	}
	unknown := Opcode(10000)
	if got := unknown.String(); got != "op(10000)" {
		t.Fatalf("unknown opcode String() = %q, want %q", got, "op(10000)")
	}
}

func TestRegisterStringVirtualAndPhysical(t *testing.T) {
	v := Virtual(3, ClassInt)
	if got := v.String(); got != "v3" {
		t.Fatalf("virtual int register String() = %q, want %q", got, "v3")
	}
	fv := Virtual(1, ClassFloat)
	if got := fv.String(); got != "f1" {
		t.Fatalf("virtual float register String() = %q, want %q", got, "f1")
	}
	p := Physical(RAX)
	if got := p.String(); got != "rax" {
		t.Fatalf("physical register String() = %q, want %q", got, "rax")
	}
	if p.Class != ClassInt {
		t.Fatal("RAX must classify as an integer register")
	}
	x := Physical(XMM3)
	if x.Class != ClassFloat {
		t.Fatal("XMM3 must classify as a float register")
	}
}

func TestInstStringIncludesOperands(t *testing.T) {
	inst := NewInst(OpAdd32, regOp(Physical(RAX)), immOp(7))
	s := inst.String()
	if s == "" {
		t.Fatal("Inst.String() must not be empty")
	}
}

func TestBasicBlockAppend(t *testing.T) {
	bb := &BasicBlock{Name: "entry"}
	bb.Append(*NewInst(OpMov32, regOp(Physical(RAX)), immOp(1)))
	if len(bb.Insts) != 1 {
		t.Fatalf("len(bb.Insts) = %d, want 1", len(bb.Insts))
	}
}

func TestFunctionAllBlocksOrder(t *testing.T) {
	fn := NewFunction("f")
	body := fn.CreateBlock("body")
	all := fn.AllBlocks()
	if len(all) != 3 {
		t.Fatalf("len(AllBlocks()) = %d, want 3 (prolog, body, epilog)", len(all))
	}
	if all[0] != fn.Prolog || all[1] != body || all[2] != fn.Epilog {
		t.Fatal("AllBlocks() must return prolog, body blocks, then epilog in order")
	}
}
