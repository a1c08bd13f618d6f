package mc

import "strconv"

// RegisterName enumerates the physical x86-64 registers the allocator can
// hand out, plus a virtual-register space above VRegStart — the same
// split RegisterAllocator.h's RegisterName enum uses (named registers
// below vregstart, synthesized SSA-numbered virtuals above it).
type RegisterName int

const (
	RAX RegisterName = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	XMM0
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
	XMM8
	XMM9
	XMM10
	XMM11
	XMM12
	XMM13
	XMM14
	XMM15

	VRegStart = 128
)

func (r RegisterName) String() string {
	names := [...]string{
		"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
		"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7",
		"xmm8", "xmm9", "xmm10", "xmm11", "xmm12", "xmm13", "xmm14", "xmm15",
	}
	if int(r) >= 0 && int(r) < len(names) {
		return names[r]
	}
	return "vreg"
}

// IsXMM reports whether r names one of the sixteen float/double registers.
func (r RegisterName) IsXMM() bool { return r >= XMM0 && r <= XMM15 }

// RegClass separates the integer and floating-point allocatable pools,
// mirroring RARegisterClass's two independent MRU lists.
type RegClass int

const (
	ClassInt RegClass = iota
	ClassFloat
)

// Register is either a resolved physical register or a still-open virtual
// register awaiting assignment by regalloc.go.
type Register struct {
	Virtual  bool
	VReg     int          // meaningful when Virtual
	Physical RegisterName // meaningful when !Virtual
	Class    RegClass
}

func Virtual(id int, class RegClass) Register {
	return Register{Virtual: true, VReg: id, Class: class}
}

func Physical(name RegisterName) Register {
	class := ClassInt
	if name.IsXMM() {
		class = ClassFloat
	}
	return Register{Physical: name, Class: class}
}

func (r Register) String() string {
	if r.Virtual {
		prefix := "v"
		if r.Class == ClassFloat {
			prefix = "f"
		}
		return prefix + strconv.Itoa(r.VReg)
	}
	return r.Physical.String()
}

// RegisterInfo tracks one virtual register's allocation lifecycle across a
// function, the Go counterpart to RARegisterInfo: which physical register
// (or stack slot) it currently occupies, whether it has been modified
// since it was loaded (so a clean register can be evicted without a
// spill-store), and how many remaining references keep it live.
type RegisterInfo struct {
	Class         RegClass
	VReg          int
	Physical      RegisterName
	Assigned      bool
	StackLocation int // valid once spilled
	Spilled       bool
	Modified      bool
	Name          string // debug name, e.g. a source variable

	LiveReferences int
}
