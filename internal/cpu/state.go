// Package cpu defines the Gekko PowerPC 750CL register file and the
// exception-raising contract used by the JIT's slow paths (spec.md
// §3 "Address"/"BAT entry", §4.1 error model).
package cpu

import "github.com/otley-systems/gekko/internal/addr"

// PairedSingle is a 2-lane F64 vector backing one FPR, modelling the
// Gekko's paired-single extension (spec.md §4.4).
type PairedSingle [2]float64

// MSR bit positions relevant to translation and FPU availability.
const (
	MSRPow = 1 << 18 // power management
	MSRFP  = 1 << 13 // floating point available
	MSRME  = 1 << 12 // machine check enable
	MSRIR  = 1 << 5  // instruction address translation
	MSRDR  = 1 << 4  // data address translation
	MSREE  = 1 << 15 // external interrupt enable
	MSRPR  = 1 << 14 // problem state (0 = supervisor)
)

// Exception vectors, offsets from the base exception vector per the
// PowerPC 750 architecture.
const (
	VectorReset      = 0x0100
	VectorMachineChk = 0x0200
	VectorDSI        = 0x0300
	VectorISI        = 0x0400
	VectorExternal   = 0x0500
	VectorAlignment  = 0x0600
	VectorProgram    = 0x0700
	VectorFPUnavail  = 0x0800
	VectorDecrement  = 0x0900
	VectorSystemCall = 0x0C00
)

// State is the complete guest-visible register file.
type State struct {
	GPR [32]uint32
	FPR [32]PairedSingle

	PC, LR, CTR uint32
	CR          uint32 // condition register, 8 4-bit fields
	XER         uint32
	FPSCR       uint32
	MSR         uint32

	// BAT SPRs, raw [upper, lower] pairs; internal/mem.BatEntry is
	// derived from these by the driver whenever they change.
	IBAT [4][2]uint32
	DBAT [4][2]uint32

	// Non-cacheable SPRs (spec.md §4.4 register cache): these must
	// always reflect reality before hooks observe them.
	TBU, TBL   uint32 // time base, lazily materialised
	DEC        uint32 // decrementer
	GQR        [8]uint32
	DAR        uint32 // data address register, fault address
	DSISR      uint32
	SRR0, SRR1 uint32
	WPAR       uint32 // write-gather-pipe address register
	HID0, HID2 uint32

	Running bool
}

// Supervisor reports whether MSR[PR] indicates supervisor mode.
func (s *State) Supervisor() bool { return s.MSR&MSRPR == 0 }

// TranslateData reports whether MSR[DR] enables data translation.
func (s *State) TranslateData() bool { return s.MSR&MSRDR != 0 }

// TranslateInst reports whether MSR[IR] enables instruction translation.
func (s *State) TranslateInst() bool { return s.MSR&MSRIR != 0 }

// FPUAvailable reports whether MSR[FP] is set.
func (s *State) FPUAvailable() bool { return s.MSR&MSRFP != 0 }

// RaiseDSI implements spec.md §4.1's error model for a failed data
// translation: DAR <- fault address, SRR1 <- MSR, SRR0 <- PC, PC <-
// exception vector.
func (s *State) RaiseDSI(fault addr.Address) {
	s.DAR = uint32(fault)
	s.raise(VectorDSI)
}

// RaiseISI implements the instruction-side counterpart.
func (s *State) RaiseISI(fault addr.Address) {
	s.raise(VectorISI)
}

// RaiseProgram raises a reserved/illegal-instruction exception. The
// JIT does not call it: an unknown opcode is a build failure when
// ignore_unimplemented is false, and a stub that steps over the word
// when it is true.
func (s *State) RaiseProgram() {
	s.raise(VectorProgram)
}

// RaiseSystemCall raises the `sc` exception.
func (s *State) RaiseSystemCall() {
	s.raise(VectorSystemCall)
}

// RaiseDecrementer raises the decrementer-overflow exception.
func (s *State) RaiseDecrementer() {
	s.raise(VectorDecrement)
}

// RaiseExternal raises a pending external (peripheral) interrupt.
func (s *State) RaiseExternal() {
	s.raise(VectorExternal)
}

func (s *State) raise(vector uint32) {
	s.SRR0 = s.PC
	s.SRR1 = s.MSR
	// Entering an exception clears translation and external-interrupt
	// enable, matching the real 750's MSR-on-exception behavior.
	s.MSR &^= MSRIR | MSRDR | MSREE
	s.PC = vector
}

// CacheableRegister classifies whether a named SPR/register may be
// held in the JIT's register cache (spec.md §4.4, §9 "Register cache
// vs. hooks with side effects"). Non-cacheable registers bypass the
// cache on both read and write.
func CacheableRegister(name string) bool {
	switch name {
	case "msr", "ibat", "dbat", "tb", "tbu", "tbl", "dec", "dar", "dsisr",
		"srr0", "srr1", "wpar", "hid0", "hid2", "gqr":
		return false
	default:
		return true
	}
}
