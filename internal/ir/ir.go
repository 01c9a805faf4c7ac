// Package ir defines the typed intermediate representation the JIT
// lowers guest instructions into (spec.md §4.4). It is intentionally
// small: a Value carries a type and an SSA-style id; an Instr records
// one IR operation for diagnostics, disk-cache serialization, and the
// "IR dump" spec.md §7 requires block-build failures to carry.
//
// The IR is not interpreted by a separate engine — internal/jit lowers
// each Instr directly into a Go closure as it is appended (see
// jit.Builder), so the IR doubles as both the diagnostic record and
// the blueprint for the compiled closure chain ("host code", per
// DESIGN.md's Open Question #1).
package ir

// Type is the IR's value type lattice.
type Type int

const (
	TypeI32 Type = iota
	TypeI64
	TypeF64Pair // paired-single: 2-lane f64
	TypeBool
)

func (t Type) String() string {
	switch t {
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeF64Pair:
		return "f64x2"
	case TypeBool:
		return "bool"
	default:
		return "?"
	}
}

// ValueID identifies one IR value within a block's program.
type ValueID int

// Kind enumerates the IR opcodes Gekko's lowering routines emit. This
// is not exhaustive of PowerPC semantics (individual opcode semantics
// are a named Non-goal) — it covers the structural operations the
// spec calls out by name: memory access, register cache flush,
// control-flow termination, and quantised paired-single access.
type Kind int

const (
	OpLoadReg Kind = iota
	OpStoreReg
	OpConst
	OpBinOp
	OpUnOp
	OpLoadMem
	OpStoreMem
	OpLoadMemQuantized
	OpStoreMemQuantized
	OpBranch
	OpCall
	OpFlush
	OpHookCall
	OpPCIncrement
	OpSetPC
)

// Instr is one recorded IR instruction.
type Instr struct {
	Kind    Kind
	Out     ValueID
	Type    Type
	Args    []ValueID
	Imm     uint64
	Name    string // register name / hook name / symbol, context-dependent
	Size    int    // memory access width in bytes, when applicable
}

// Program is the full recorded IR for one compiled block, kept for
// diagnostics and for disk-cache reconstruction.
type Program struct {
	Instrs []Instr
	nextID ValueID
}

// NewProgram creates an empty IR program.
func NewProgram() *Program { return &Program{} }

// Alloc reserves a fresh ValueID.
func (p *Program) Alloc() ValueID {
	id := p.nextID
	p.nextID++
	return id
}

// Append records instr into the program and returns it (for chaining
// into the caller's closure-emission step).
func (p *Program) Append(instr Instr) Instr {
	p.Instrs = append(p.Instrs, instr)
	return instr
}

// Dump renders the program as text for block-build-failure diagnostics
// (spec.md §7 item 2: "propagated to the driver as structured errors
// with the offending sequence and IR dump").
func (p *Program) Dump() string {
	out := make([]byte, 0, 64*len(p.Instrs))
	for i, instr := range p.Instrs {
		out = append(out, dumpInstr(i, instr)...)
		out = append(out, '\n')
	}
	return string(out)
}

func dumpInstr(i int, instr Instr) string {
	return kindName(instr.Kind) + " " + instr.Type.String()
}

func kindName(k Kind) string {
	names := [...]string{
		"load_reg", "store_reg", "const", "binop", "unop",
		"load_mem", "store_mem", "load_mem_q", "store_mem_q",
		"branch", "call", "flush", "hook_call", "pc_inc", "set_pc",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}
