package jit

import "github.com/otley-systems/gekko/internal/addr"

// Opcode enumerates the subset of PowerPC 750 instructions Gekko's
// lowering routines know how to translate. Full ISA coverage is a
// named Non-goal (spec.md §1) — individual opcode semantics are
// documented by the PowerPC architecture manual, not here. This
// subset is enough to exercise every structural behavior spec.md
// names: memory access (lwz/stw), control flow and linking (b/bc/
// bclr/bcctr), register arithmetic (addi), and the no-op idioms
// (ori r,r,0, sc).
type Opcode int

const (
	OpUnknown Opcode = iota
	OpB
	OpBC
	OpBCLR
	OpBCCTR
	OpLWZ
	OpSTW
	OpADDI
	OpORI
	OpSC
)

// Decoded is one fetched-and-decoded guest instruction.
type Decoded struct {
	Addr   addr.Address
	Raw    uint32
	Op     Opcode
	RT, RA int
	SI     int32  // sign-extended immediate (addi) / unsigned (ori uses UI)
	UI     uint32
	LI     int32 // branch target displacement (b-form)
	BD     int32 // branch displacement (bc-form)
	BO, BI int
	AA, LK bool
}

// Decode extracts the fields Gekko's lowering routines need from one
// big-endian guest instruction word.
func Decode(a addr.Address, word uint32) Decoded {
	d := Decoded{Addr: a, Raw: word}
	primary := word >> 26
	switch primary {
	case 18: // b / bl / ba / bla
		li := int32(word & 0x03FF_FFFC)
		if li&0x0200_0000 != 0 {
			li |= ^int32(0x03FF_FFFF)
		}
		d.Op = OpB
		d.LI = li
		d.AA = word&0x2 != 0
		d.LK = word&0x1 != 0
	case 16: // bc / bcl / bca / bcla
		bd := int32(word & 0xFFFC)
		if bd&0x8000 != 0 {
			bd |= ^int32(0xFFFF)
		}
		d.Op = OpBC
		d.BO = int(word >> 21 & 0x1F)
		d.BI = int(word >> 16 & 0x1F)
		d.BD = bd
		d.AA = word&0x2 != 0
		d.LK = word&0x1 != 0
	case 19: // XL-form: bclr / bcctr
		ext := word >> 1 & 0x3FF
		d.BO = int(word >> 21 & 0x1F)
		d.BI = int(word >> 16 & 0x1F)
		d.LK = word&0x1 != 0
		switch ext {
		case 16:
			d.Op = OpBCLR
		case 528:
			d.Op = OpBCCTR
		}
	case 32: // lwz
		d.Op = OpLWZ
		d.RT = int(word >> 21 & 0x1F)
		d.RA = int(word >> 16 & 0x1F)
		d.SI = signExtend16(word & 0xFFFF)
	case 36: // stw
		d.Op = OpSTW
		d.RT = int(word >> 21 & 0x1F)
		d.RA = int(word >> 16 & 0x1F)
		d.SI = signExtend16(word & 0xFFFF)
	case 14: // addi
		d.Op = OpADDI
		d.RT = int(word >> 21 & 0x1F)
		d.RA = int(word >> 16 & 0x1F)
		d.SI = signExtend16(word & 0xFFFF)
	case 24: // ori
		d.Op = OpORI
		d.RT = int(word >> 16 & 0x1F) // RA field is the destination for ori
		d.RA = int(word >> 21 & 0x1F) // RS field is the source
		d.UI = word & 0xFFFF
	case 17: // sc
		d.Op = OpSC
	default:
		d.Op = OpUnknown
	}
	return d
}

func signExtend16(v uint32) int32 {
	x := int32(v & 0xFFFF)
	if x&0x8000 != 0 {
		x |= ^int32(0xFFFF)
	}
	return x
}

// IsNop reports the classic `ori r0,r0,0` no-op idiom the PPC
// toolchains emit for padding.
func (d Decoded) IsNop() bool {
	return d.Op == OpORI && d.RT == 0 && d.RA == 0 && d.UI == 0
}
