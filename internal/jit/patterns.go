package jit

import (
	"github.com/otley-systems/gekko/internal/addr"
	"github.com/otley-systems/gekko/internal/blockcache"
)

// classifyTerminator scans the compiled instruction sequence for the
// well-known motifs spec.md §4.4 names: a direct call (bl), a branch
// to LR/CTR, a tight idle loop, and (via the mailboxPoll predicate) the
// specific shape Nintendo's SDK uses to spin on DSP mailbox status.
func classifyTerminator(instrs []Decoded, start addr.Address, mailboxPoll func([]Decoded) bool) blockcache.TerminatorPattern {
	if len(instrs) == 0 {
		return blockcache.FallThrough
	}
	last := instrs[len(instrs)-1]
	switch last.Op {
	case OpB:
		target := branchTargetB(last)
		if last.LK {
			return blockcache.Call
		}
		if target == uint32(start) {
			return blockcache.IdleBasic
		}
		return blockcache.DirectJump
	case OpBC:
		target := branchTargetBC(last)
		if last.LK {
			return blockcache.Call
		}
		if target == uint32(start) {
			if mailboxPoll != nil && mailboxPoll(instrs) {
				return blockcache.MailboxStatusPoll
			}
			if containsLoad(instrs) {
				return blockcache.IdleVolatileRead
			}
			return blockcache.IdleBasic
		}
		return blockcache.DirectJump
	case OpBCLR, OpBCCTR:
		return blockcache.BranchToRegister
	default:
		return blockcache.FallThrough
	}
}

func branchTargetB(d Decoded) uint32 {
	if d.AA {
		return uint32(d.LI)
	}
	return uint32(d.Addr) + uint32(d.LI)
}

func branchTargetBC(d Decoded) uint32 {
	if d.AA {
		return uint32(d.BD)
	}
	return uint32(d.Addr) + uint32(d.BD)
}

func containsLoad(instrs []Decoded) bool {
	for _, d := range instrs {
		if d.Op == OpLWZ {
			return true
		}
	}
	return false
}

// NewMailboxPollPredicate builds a conservative predicate: a block that
// loads (lwz) with RA==0 and an SI found in statusOffsets is treated as
// polling a status register. The predicate checks only the load;
// classifyTerminator consults it only for a bc that branches back to
// the block's own start. The
// DSP subsystem supplies the actual mailbox-status MMIO offsets via
// NewMailboxPollPredicate so the JIT package stays free of MMIO-
// layout knowledge (spec.md §1: the core treats peripherals as
// external collaborators via explicit interfaces).
func NewMailboxPollPredicate(statusOffsets map[uint32]bool) func([]Decoded) bool {
	return func(instrs []Decoded) bool {
		for _, d := range instrs {
			if d.Op == OpLWZ && d.RA == 0 && statusOffsets[uint32(d.SI)] {
				return true
			}
		}
		return false
	}
}
