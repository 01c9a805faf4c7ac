package jit

import (
	"fmt"

	"github.com/otley-systems/gekko/internal/addr"
	"github.com/otley-systems/gekko/internal/ir"
	"github.com/otley-systems/gekko/internal/mem"
)

// lowerResult pairs the compiled op with the IR instruction recorded
// for diagnostics, and reports the Signal class the instruction
// produces (used by the compiler to decide block termination).
type lowerResult struct {
	op       Op
	instr    ir.Instr
	terminal bool
}

// lower translates one decoded guest instruction into a compiled Op,
// per spec.md §4.4 "template translation via a strongly-typed compiler
// IR ... Each guest instruction is lowered by a dedicated routine".
func (c *Compiler) lower(d Decoded, prog *ir.Program) (lowerResult, error) {
	switch d.Op {
	case OpADDI:
		return c.lowerAddi(d, prog), nil
	case OpORI:
		if d.IsNop() {
			return c.lowerNop(prog), nil
		}
		return c.lowerOri(d, prog), nil
	case OpLWZ:
		return c.lowerLoad(d, prog, 4), nil
	case OpSTW:
		return c.lowerStore(d, prog, 4), nil
	case OpB:
		return c.lowerB(d, prog), nil
	case OpBC:
		return c.lowerBC(d, prog), nil
	case OpBCLR:
		return c.lowerBCLR(d, prog), nil
	case OpBCCTR:
		return c.lowerBCCTR(d, prog), nil
	case OpSC:
		return c.lowerSC(d, prog), nil
	default:
		if c.settings.IgnoreUnimplemented {
			return c.lowerUnimplementedStub(d, prog), nil
		}
		return lowerResult{}, fmt.Errorf("jit: unimplemented opcode at %#x (raw=%#08x)", uint32(d.Addr), d.Raw)
	}
}

func (c *Compiler) lowerNop(prog *ir.Program) lowerResult {
	instr := prog.Append(ir.Instr{Kind: ir.OpPCIncrement, Type: ir.TypeI32})
	op := func(ctx *Ctx, w *RegisterWindow) Signal {
		w.PC += 4
		return Continue
	}
	return lowerResult{op: op, instr: instr}
}

func (c *Compiler) lowerAddi(d Decoded, prog *ir.Program) lowerResult {
	instr := prog.Append(ir.Instr{Kind: ir.OpBinOp, Type: ir.TypeI32, Name: "addi", Imm: uint64(uint32(d.SI))})
	ra, rt, si := d.RA, d.RT, d.SI
	op := func(ctx *Ctx, w *RegisterWindow) Signal {
		base := uint32(0)
		if ra != 0 {
			base = w.GPR(ra)
		}
		w.SetGPR(rt, base+uint32(si))
		w.PC += 4
		return Continue
	}
	return lowerResult{op: op, instr: instr}
}

func (c *Compiler) lowerOri(d Decoded, prog *ir.Program) lowerResult {
	instr := prog.Append(ir.Instr{Kind: ir.OpBinOp, Type: ir.TypeI32, Name: "ori", Imm: uint64(d.UI)})
	ra, rt, ui := d.RA, d.RT, d.UI
	op := func(ctx *Ctx, w *RegisterWindow) Signal {
		w.SetGPR(rt, w.GPR(ra)|ui)
		w.PC += 4
		return Continue
	}
	return lowerResult{op: op, instr: instr}
}

// lowerLoad emits the inline fastmem lookup of spec.md §4.4 "Memory
// operations": shift the guest address right by addr.PageShift to
// index the LUT; if the window is non-nil, index it directly;
// otherwise call the slow-path hook and, on failure, raise DSI.
func (c *Compiler) lowerLoad(d Decoded, prog *ir.Program, size int) lowerResult {
	instr := prog.Append(ir.Instr{Kind: ir.OpLoadMem, Type: ir.TypeI32, Size: size})
	ra, rt, si := d.RA, d.RT, d.SI
	op := func(ctx *Ctx, w *RegisterWindow) Signal {
		base := uint32(0)
		if ra != 0 {
			base = w.GPR(ra)
		}
		ea := addr.Address(base + uint32(si))
		lut := ctx.Hooks.GetFastmem(ctx, addr.Data, addr.Logical)
		if win := lut[ea.PageIndex()]; win != nil {
			w.SetGPR(rt, mem.FastmemLoad[uint32](win, ea.PageOffset()))
			w.PC += 4
			return Continue
		}
		v, fault := ctx.Hooks.ReadSlow(ctx, addr.Data, ea, size)
		if fault != nil {
			w.Flush()
			ctx.Hooks.RaiseException(ctx, fault, addr.Data)
			w.PC = ctx.Regs.PC
			return Finish
		}
		w.SetGPR(rt, uint32(v))
		w.PC += 4
		return Continue
	}
	return lowerResult{op: op, instr: instr}
}

func (c *Compiler) lowerStore(d Decoded, prog *ir.Program, size int) lowerResult {
	instr := prog.Append(ir.Instr{Kind: ir.OpStoreMem, Type: ir.TypeI32, Size: size})
	ra, rt, si := d.RA, d.RT, d.SI
	op := func(ctx *Ctx, w *RegisterWindow) Signal {
		base := uint32(0)
		if ra != 0 {
			base = w.GPR(ra)
		}
		ea := addr.Address(base + uint32(si))
		val := w.GPR(rt)
		lut := ctx.Hooks.GetFastmem(ctx, addr.Data, addr.Logical)
		if win := lut[ea.PageIndex()]; win != nil {
			mem.FastmemStore[uint32](win, ea.PageOffset(), val)
			// The fast path bypasses WriteSlow, so it evicts any compiled
			// block covering ea itself.
			if ctx.Hooks.InvalidateICache != nil {
				ctx.Hooks.InvalidateICache(ctx, ea)
			}
			w.PC += 4
			return Continue
		}
		if fault := ctx.Hooks.WriteSlow(ctx, ea, uint64(val), size); fault != nil {
			w.Flush()
			ctx.Hooks.RaiseException(ctx, fault, addr.Data)
			w.PC = ctx.Regs.PC
			return Finish
		}
		w.PC += 4
		return Continue
	}
	return lowerResult{op: op, instr: instr}
}

func (c *Compiler) lowerB(d Decoded, prog *ir.Program) lowerResult {
	instr := prog.Append(ir.Instr{Kind: ir.OpBranch, Type: ir.TypeI32, Name: "b", Imm: uint64(uint32(d.LI))})
	li, aa, lk, here := d.LI, d.AA, d.LK, d.Addr
	op := func(ctx *Ctx, w *RegisterWindow) Signal {
		if lk {
			w.SetLR(uint32(here) + 4)
		}
		var target uint32
		if aa {
			target = uint32(li)
		} else {
			target = uint32(here) + uint32(li)
		}
		w.PC = target
		return Finish
	}
	return lowerResult{op: op, instr: instr, terminal: true}
}

// condTrue evaluates the BO/BI branch-condition fields against CR.
func condTrue(bo, bi int, cr uint32) bool {
	if bo&0x10 != 0 { // BO[2]=1: ignore condition, always branch
		return true
	}
	bit := (cr >> uint(31-bi)) & 1
	want := uint32(bo>>3) & 1
	return bit == want
}

func (c *Compiler) lowerBC(d Decoded, prog *ir.Program) lowerResult {
	instr := prog.Append(ir.Instr{Kind: ir.OpBranch, Type: ir.TypeI32, Name: "bc", Imm: uint64(uint32(d.BD))})
	bd, aa, lk, bo, bi, here := d.BD, d.AA, d.LK, d.BO, d.BI, d.Addr
	op := func(ctx *Ctx, w *RegisterWindow) Signal {
		if !condTrue(bo, bi, w.CR()) {
			w.PC += 4
			return Continue
		}
		if lk {
			w.SetLR(uint32(here) + 4)
		}
		var target uint32
		if aa {
			target = uint32(bd)
		} else {
			target = uint32(here) + uint32(bd)
		}
		w.PC = target
		return Finish
	}
	return lowerResult{op: op, instr: instr, terminal: true}
}

func (c *Compiler) lowerBCLR(d Decoded, prog *ir.Program) lowerResult {
	instr := prog.Append(ir.Instr{Kind: ir.OpBranch, Type: ir.TypeI32, Name: "bclr"})
	bo, bi, lk, here := d.BO, d.BI, d.LK, d.Addr
	op := func(ctx *Ctx, w *RegisterWindow) Signal {
		if !condTrue(bo, bi, w.CR()) {
			w.PC += 4
			return Continue
		}
		target := w.LR()
		if lk {
			w.SetLR(uint32(here) + 4)
		}
		w.PC = target
		return Finish
	}
	return lowerResult{op: op, instr: instr, terminal: true}
}

func (c *Compiler) lowerBCCTR(d Decoded, prog *ir.Program) lowerResult {
	instr := prog.Append(ir.Instr{Kind: ir.OpBranch, Type: ir.TypeI32, Name: "bcctr"})
	bo, bi, lk, here := d.BO, d.BI, d.LK, d.Addr
	op := func(ctx *Ctx, w *RegisterWindow) Signal {
		if !condTrue(bo, bi, w.CR()) {
			w.PC += 4
			return Continue
		}
		target := w.CTR()
		if lk {
			w.SetLR(uint32(here) + 4)
		}
		w.PC = target
		return Finish
	}
	return lowerResult{op: op, instr: instr, terminal: true}
}

func (c *Compiler) lowerSC(d Decoded, prog *ir.Program) lowerResult {
	instr := prog.Append(ir.Instr{Kind: ir.OpCall, Type: ir.TypeI32, Name: "sc"})
	nop := c.settings.NopSyscalls
	op := func(ctx *Ctx, w *RegisterWindow) Signal {
		if nop {
			w.PC += 4
			return Continue
		}
		w.Flush()
		ctx.Regs.PC += 4 // SRR0 on a real `sc` points past the instruction
		ctx.Regs.RaiseSystemCall()
		w.PC = ctx.Regs.PC
		return Finish
	}
	return lowerResult{op: op, instr: instr, terminal: true}
}

func (c *Compiler) lowerUnimplementedStub(d Decoded, prog *ir.Program) lowerResult {
	instr := prog.Append(ir.Instr{Kind: ir.OpFlush, Type: ir.TypeI32, Name: "unimplemented-stub"})
	here := d.Addr
	op := func(ctx *Ctx, w *RegisterWindow) Signal {
		w.PC = uint32(here) + 4
		w.Flush()
		return FlushAndEpilogue
	}
	return lowerResult{op: op, instr: instr, terminal: true}
}
