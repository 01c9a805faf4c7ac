package jit

import (
	"github.com/otley-systems/gekko/internal/addr"
	"github.com/otley-systems/gekko/internal/blockcache"
)

// CompiledBlock is the closure-chain artifact compiled from one guest
// basic block (spec.md §3 "Block", §4.4). blockcache.Block.Code holds
// a *CompiledBlock as its opaque payload.
type CompiledBlock struct {
	Ops              []Op
	Terminator       blockcache.TerminatorPattern
	StartLogical     addr.Address
	StartPhysical    addr.Address
	Length           uint32
	InstructionCount int
	IR               string // ir.Program.Dump() output, kept for diagnostics
	LinkSlot         *blockcache.LinkSlot
}

func isIdlePattern(p blockcache.TerminatorPattern) bool {
	return p == blockcache.IdleBasic || p == blockcache.IdleVolatileRead
}

// Run executes the block, chaining through link slots until the
// instruction budget is exhausted, a link is unavailable, or an idle
// pattern causes an early exit (spec.md §4.4 "Block linking", §4.5,
// §8 scenario 2).
//
// A non-idle link genuinely runs the successor's body — that is the
// whole point of block-to-block linking. An idle-tagged link (a self-
// loop or a tight volatile-read spin) never re-executes the body: the
// first follow is recorded, and the second consecutive follow of the
// same slot exits immediately with the full remaining budget charged,
// since re-running a confirmed spin loop instruction-by-instruction
// would burn host cycles to no observable effect.
func (b *CompiledBlock) Run(ctx *Ctx, maxInstructions int) *Info {
	info := NewInfo()
	current := b
	skipBody := false
	for {
		if !skipBody {
			w := NewRegisterWindow(ctx.Regs)
			for _, op := range current.Ops {
				sig := op(ctx, w)
				info.Instructions++
				info.Cycles++
				if sig != Continue {
					break
				}
			}
			w.Flush()
			if info.Instructions >= maxInstructions {
				break
			}
		}
		skipBody = false

		slot := current.LinkSlot
		if ctx.ForceNoLink || slot == nil {
			break
		}
		if !slot.Linked {
			ctx.Hooks.TryLink(ctx, addr.Address(ctx.Regs.PC), slot)
		}
		if !slot.Linked {
			break
		}

		if isIdlePattern(slot.Pattern) {
			info.ConsecutiveFollows[slot]++
			if info.ConsecutiveFollows[slot] >= 2 {
				info.IdleConsumedBudget = true
				break
			}
			skipBody = true
			continue
		}
		info.ConsecutiveFollows[slot] = 0

		next, ok := slot.Successor.(*CompiledBlock)
		if !ok {
			break
		}
		current = next
	}
	if info.IdleConsumedBudget {
		info.Cycles = maxInstructions
	}
	return info
}
