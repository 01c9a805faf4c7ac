package jit

import "github.com/otley-systems/gekko/internal/cpu"

// RegisterWindow is the per-invocation register cache of spec.md §4.4:
// "a map from guest register ... to a current IR value plus a
// 'modified' flag. On first access the value is loaded from the
// registers struct; on write the cache is updated without store-back.
// A flush walks modified entries emitting stores."
//
// A fresh window is created each time a compiled block runs (see
// CompiledBlock.Run); lazy loading means a register neither read nor
// written during that run never touches cpu.State at all, and Flush
// at the block's terminator writes back only what was actually
// modified. Non-cacheable registers (MSR, BATs, time-base,
// decrementer, DMA registers, write-gather-pipe) are never routed
// through the window — callers use the Hooks table directly for those
// so side-effect hooks always observe the latest value (spec.md §9).
type RegisterWindow struct {
	state *cpu.State

	gprLoaded, gprDirty [32]bool
	gpr                 [32]uint32

	fprLoaded, fprDirty [32]bool
	fpr                 [32]cpu.PairedSingle

	crLoaded, crDirty     bool
	cr                    uint32
	xerLoaded, xerDirty   bool
	xer                   uint32
	lrLoaded, lrDirty     bool
	lr                    uint32
	ctrLoaded, ctrDirty   bool
	ctr                   uint32
	fpscrLoaded, fpscrDirty bool
	fpscr                 uint32

	// PC is always live: every lowered step reads and typically
	// writes it, so there is no benefit to lazy-loading it.
	PC uint32
}

// NewRegisterWindow creates a window over state, seeding PC (the one
// register every block needs immediately).
func NewRegisterWindow(state *cpu.State) *RegisterWindow {
	return &RegisterWindow{state: state, PC: state.PC}
}

func (w *RegisterWindow) GPR(i int) uint32 {
	if !w.gprLoaded[i] {
		w.gpr[i] = w.state.GPR[i]
		w.gprLoaded[i] = true
	}
	return w.gpr[i]
}

func (w *RegisterWindow) SetGPR(i int, v uint32) {
	w.gpr[i] = v
	w.gprLoaded[i] = true
	w.gprDirty[i] = true
}

func (w *RegisterWindow) FPR(i int) cpu.PairedSingle {
	if !w.fprLoaded[i] {
		w.fpr[i] = w.state.FPR[i]
		w.fprLoaded[i] = true
	}
	return w.fpr[i]
}

func (w *RegisterWindow) SetFPR(i int, v cpu.PairedSingle) {
	w.fpr[i] = v
	w.fprLoaded[i] = true
	w.fprDirty[i] = true
}

func (w *RegisterWindow) CR() uint32 {
	if !w.crLoaded {
		w.cr = w.state.CR
		w.crLoaded = true
	}
	return w.cr
}
func (w *RegisterWindow) SetCR(v uint32) { w.cr = v; w.crLoaded = true; w.crDirty = true }

func (w *RegisterWindow) XER() uint32 {
	if !w.xerLoaded {
		w.xer = w.state.XER
		w.xerLoaded = true
	}
	return w.xer
}
func (w *RegisterWindow) SetXER(v uint32) { w.xer = v; w.xerLoaded = true; w.xerDirty = true }

func (w *RegisterWindow) LR() uint32 {
	if !w.lrLoaded {
		w.lr = w.state.LR
		w.lrLoaded = true
	}
	return w.lr
}
func (w *RegisterWindow) SetLR(v uint32) { w.lr = v; w.lrLoaded = true; w.lrDirty = true }

func (w *RegisterWindow) CTR() uint32 {
	if !w.ctrLoaded {
		w.ctr = w.state.CTR
		w.ctrLoaded = true
	}
	return w.ctr
}
func (w *RegisterWindow) SetCTR(v uint32) { w.ctr = v; w.ctrLoaded = true; w.ctrDirty = true }

func (w *RegisterWindow) FPSCR() uint32 {
	if !w.fpscrLoaded {
		w.fpscr = w.state.FPSCR
		w.fpscrLoaded = true
	}
	return w.fpscr
}
func (w *RegisterWindow) SetFPSCR(v uint32) { w.fpscr = v; w.fpscrLoaded = true; w.fpscrDirty = true }

// Flush walks modified entries and writes them back to cpu.State,
// plus the always-live PC.
func (w *RegisterWindow) Flush() {
	for i := 0; i < 32; i++ {
		if w.gprDirty[i] {
			w.state.GPR[i] = w.gpr[i]
			w.gprDirty[i] = false
		}
		if w.fprDirty[i] {
			w.state.FPR[i] = w.fpr[i]
			w.fprDirty[i] = false
		}
	}
	if w.crDirty {
		w.state.CR = w.cr
		w.crDirty = false
	}
	if w.xerDirty {
		w.state.XER = w.xer
		w.xerDirty = false
	}
	if w.lrDirty {
		w.state.LR = w.lr
		w.lrDirty = false
	}
	if w.ctrDirty {
		w.state.CTR = w.ctr
		w.ctrDirty = false
	}
	if w.fpscrDirty {
		w.state.FPSCR = w.fpscr
		w.fpscrDirty = false
	}
	w.state.PC = w.PC
}
