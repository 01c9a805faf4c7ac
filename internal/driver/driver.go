// Package driver implements the execution driver of spec.md §4.5: the
// outer loop that picks the next block, invokes compiled code through
// the JIT's trampoline, accounts cycles and instructions into the
// jit.Info it returns, and honors breakpoints. Run does not advance
// the Scheduler the Driver holds.
package driver

import (
	"github.com/otley-systems/gekko/internal/addr"
	"github.com/otley-systems/gekko/internal/blockcache"
	"github.com/otley-systems/gekko/internal/cpu"
	"github.com/otley-systems/gekko/internal/icache"
	"github.com/otley-systems/gekko/internal/jit"
	"github.com/otley-systems/gekko/internal/mem"
	"github.com/otley-systems/gekko/internal/sched"
)

// icacheFetcher adapts an icache.Mirror plus the CPU's current
// translation mode into a jit.Fetcher, so the compiler never calls the
// MMU directly for adjacent instruction words (spec.md §4.6).
type icacheFetcher struct {
	mirror *icache.Mirror
	memory *mem.Memory
	regs   *cpu.State
}

func (f icacheFetcher) Fetch(a addr.Address) (uint32, *mem.Fault) {
	phys := a
	if f.regs.TranslateInst() {
		p, ok := f.memory.TranslateInst(a, f.regs.Supervisor())
		if !ok {
			return 0, &mem.Fault{Access: addr.Instruction, Address: a}
		}
		phys = p
	}
	word, ok := f.mirror.FetchWord(phys)
	if !ok {
		return 0, &mem.Fault{Access: addr.Instruction, Address: phys}
	}
	return word, nil
}

// Driver ties the scheduler, CPU state, memory, block cache, and JIT
// linker into the outer execution loop.
type Driver struct {
	Scheduler *sched.Scheduler
	Regs      *cpu.State
	Memory    *mem.Memory
	Cache     *blockcache.Cache
	Linker    *jit.Linker
	Mirror    *icache.Mirror
	Hooks     *jit.Hooks
	Settings  jit.Settings

	// Breakpoints, when non-empty, bound max-instructions to the
	// distance to the nearest one (spec.md §4.5 step 2).
	Breakpoints map[uint32]bool

	// MailboxIdle reports whether a pending MailboxStatusPoll-tagged
	// block's wait condition is already satisfied (spec.md §4.5 step 1).
	// internal/system leaves it nil; nil disables the pre-check.
	MailboxIdle func(target addr.Address) bool

	fetcher icacheFetcher
}

// New wires a Driver. fetcher is derived internally from mirror/memory/regs.
func New(s *sched.Scheduler, regs *cpu.State, m *mem.Memory, cache *blockcache.Cache, l *jit.Linker, mirror *icache.Mirror, hooks *jit.Hooks, settings jit.Settings) *Driver {
	return &Driver{
		Scheduler:   s,
		Regs:        regs,
		Memory:      m,
		Cache:       cache,
		Linker:      l,
		Mirror:      mirror,
		Hooks:       hooks,
		Settings:    settings,
		Breakpoints: make(map[uint32]bool),
		fetcher:     icacheFetcher{mirror: mirror, memory: m, regs: regs},
	}
}

// distanceToBreakpoint returns the number of instructions from pc to
// the nearest active breakpoint strictly after pc, or 0 if none is set
// (meaning "no limit from breakpoints").
func (d *Driver) distanceToBreakpoint(pc uint32) int {
	if len(d.Breakpoints) == 0 {
		return 0
	}
	best := -1
	for bp := range d.Breakpoints {
		if bp <= pc {
			continue
		}
		dist := int((bp - pc) / 4)
		if best == -1 || dist < best {
			best = dist
		}
	}
	if best == -1 {
		return 0
	}
	return best
}

func (d *Driver) maxInstructions(pc uint32) int {
	limit := d.Settings.InstrPerBlock
	if bpDist := d.distanceToBreakpoint(pc); bpDist > 0 && bpDist < limit {
		limit = bpDist
	}
	if limit <= 0 {
		limit = 1
	}
	return limit
}

// Run implements spec.md §4.5's outer loop for up to cyclesToRun host
// cycles, returning aggregate accounting. forceNoLink disables block
// linking (single-step mode caps at one instruction and sets this).
func (d *Driver) Run(cyclesToRun int, forceNoLink bool) *jit.Info {
	total := jit.NewInfo()
	ctx := &jit.Ctx{Hooks: d.Hooks, Regs: d.Regs, Memory: d.Memory, Settings: d.Settings, ForceNoLink: forceNoLink}

	for total.Cycles < cyclesToRun {
		pc := addr.Address(d.Regs.PC)

		if d.MailboxIdle != nil {
			if block, ok := d.Cache.Get(true, pc); ok && block.Terminator == blockcache.MailboxStatusPoll {
				if d.MailboxIdle(pc) {
					remaining := cyclesToRun - total.Cycles
					total.Cycles += remaining
					total.Instructions++
					total.IdleConsumedBudget = true
					break
				}
			}
		}

		maxInstr := d.maxInstructions(uint32(pc))
		if forceNoLink {
			maxInstr = 1
		}

		_, cb, err := d.Linker.TryLinkOrCompile(pc)
		if err != nil {
			total.BuildError = err
			break
		}

		info := cb.Run(ctx, maxInstr)
		total.Cycles += info.Cycles
		total.Instructions += info.Instructions
		if info.IdleConsumedBudget {
			total.IdleConsumedBudget = true
		}

		if d.Breakpoints[d.Regs.PC] {
			break
		}
	}
	return total
}

// SingleStep executes exactly one instruction with linking disabled,
// per spec.md §4.5's single-step mode.
func (d *Driver) SingleStep() *jit.Info {
	return d.Run(1, true)
}
