package jit

import (
	"fmt"

	"github.com/otley-systems/gekko/internal/addr"
	"github.com/otley-systems/gekko/internal/blockcache"
	"github.com/otley-systems/gekko/internal/ir"
	"github.com/otley-systems/gekko/internal/mem"
)

// Fetcher supplies the guest instruction words the compiler decodes,
// normally backed by the icache mirror (spec.md §4.6) rather than
// calling the MMU directly for every adjacent word.
type Fetcher interface {
	Fetch(a addr.Address) (uint32, *mem.Fault)
}

// BuildError is a structured block-build failure (spec.md §7 item 2):
// it carries the offending sequence and an IR dump for diagnosis.
type BuildError struct {
	Address addr.Address
	Reason  string
	IRDump  string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("jit: block build failed at %#x: %s", uint32(e.Address), e.Reason)
}

// Compiler lowers guest instruction sequences into CompiledBlocks.
type Compiler struct {
	settings    Settings
	mailboxPoll func([]Decoded) bool

	// Translate resolves a logical start address to its physical
	// counterpart for the block cache's physical index. May be nil
	// (the block is then indexed logically only).
	Translate func(addr.Address) (addr.Address, bool)
}

// NewCompiler creates a Compiler with the given settings. mailboxPoll
// may be nil; pass jit.NewMailboxPollPredicate(...) to let the DSP
// subsystem's mailbox-status offsets refine idle-loop classification.
func NewCompiler(settings Settings, mailboxPoll func([]Decoded) bool) *Compiler {
	return &Compiler{settings: settings, mailboxPoll: mailboxPoll}
}

// Compile implements spec.md §4.4: lower a cycle-bounded instruction
// sequence starting at start into a CompiledBlock. maxInstructions
// bounds the straight-line length (spec.md §4.5 step 2's
// "max-instructions").
func (c *Compiler) Compile(f Fetcher, start addr.Address, maxInstructions int) (*CompiledBlock, error) {
	if maxInstructions <= 0 {
		maxInstructions = c.settings.InstrPerBlock
	}

	prog := ir.NewProgram()
	var ops []Op
	var decoded []Decoded

	cur := start
	for len(decoded) < maxInstructions {
		word, fault := f.Fetch(cur)
		if fault != nil {
			if len(decoded) == 0 {
				return nil, &BuildError{Address: cur, Reason: "instruction fetch fault on first instruction"}
			}
			break
		}
		d := Decode(cur, word)
		decoded = append(decoded, d)

		res, err := c.lower(d, prog)
		if err != nil {
			return nil, &BuildError{Address: cur, Reason: err.Error(), IRDump: prog.Dump()}
		}
		ops = append(ops, res.op)
		if res.terminal {
			break
		}
		cur = cur.Add(4)
	}

	if len(decoded) == 0 {
		return nil, &BuildError{Address: start, Reason: "empty block"}
	}

	last := decoded[len(decoded)-1]
	terminator := classifyTerminator(decoded, start, c.mailboxPoll)
	if last.Op != OpB && last.Op != OpBC && last.Op != OpBCLR && last.Op != OpBCCTR {
		// Ran out of budget without hitting a control-flow terminator:
		// append a synthetic epilogue so the driver always sees a
		// definite end-of-block signal.
		ops = append(ops, func(ctx *Ctx, w *RegisterWindow) Signal {
			return FlushAndEpilogue
		})
		terminator = blockcache.FallThrough
	}

	length := uint32(len(decoded)) * 4

	var startPhysical addr.Address
	if c.Translate != nil {
		if phys, ok := c.Translate(start); ok {
			startPhysical = phys
		}
	}

	return &CompiledBlock{
		Ops:              ops,
		Terminator:       terminator,
		StartLogical:     start,
		StartPhysical:    startPhysical,
		Length:           length,
		InstructionCount: len(decoded),
		IR:               prog.Dump(),
		LinkSlot:         &blockcache.LinkSlot{},
	}, nil
}
