package jit

import (
	"github.com/otley-systems/gekko/internal/addr"
	"github.com/otley-systems/gekko/internal/blockcache"
	"github.com/otley-systems/gekko/internal/cpu"
	"github.com/otley-systems/gekko/internal/mem"
)

// Hooks is the JIT's contract with the rest of the system (spec.md
// §4.4 "Hooks (the JIT's contract with the rest of the system)").
// Compiled closures call back into these exclusively; they never
// touch package-level globals, so a Ctx (and therefore a Hooks set)
// is the only way compiled code reaches the CPU, memory, or cache.
type Hooks struct {
	// GetRegisters retrieves a stable pointer to the CPU register
	// struct.
	GetRegisters func(ctx *Ctx) *cpu.State

	// GetFastmem retrieves the currently-active fastmem table.
	GetFastmem func(ctx *Ctx, access addr.Access, kind addr.Kind) *mem.LUT

	// TryLink populates a link slot if a compiled target exists.
	TryLink func(ctx *Ctx, target addr.Address, slot *blockcache.LinkSlot)

	// FollowLink decides whether to chain to the slot's target,
	// honoring the budget and idle-loop detection.
	FollowLink func(info *Info, ctx *Ctx, slot *blockcache.LinkSlot) bool

	// ReadSlow/WriteSlow perform slow-path typed memory access. size
	// is 1, 2, 4, or 8.
	ReadSlow  func(ctx *Ctx, access addr.Access, a addr.Address, size int) (uint64, *mem.Fault)
	WriteSlow func(ctx *Ctx, a addr.Address, v uint64, size int) *mem.Fault

	// ReadQuantized/WriteQuantized perform paired-single quantised
	// memory access using the given GQR value.
	ReadQuantized  func(ctx *Ctx, a addr.Address, gqr uint32) (cpu.PairedSingle, *mem.Fault)
	WriteQuantized func(ctx *Ctx, a addr.Address, gqr uint32, v cpu.PairedSingle) *mem.Fault

	// InvalidateICache/ClearICache honour guest cache-management
	// instructions (icbi / isync-like flush hints).
	InvalidateICache func(ctx *Ctx, a addr.Address)
	ClearICache      func(ctx *Ctx)

	// DCacheDMA triggers the locked-cache DMA controller.
	DCacheDMA func(ctx *Ctx)

	// MSRChanged/IBATChanged/DBATChanged rebuild LUTs and check for
	// interrupts after a write to a non-cacheable register.
	MSRChanged  func(ctx *Ctx)
	IBATChanged func(ctx *Ctx)
	DBATChanged func(ctx *Ctx)

	// TBRead/TBChanged/DECRead/DECChanged lazily materialise the
	// time-base and decrementer.
	TBRead    func(ctx *Ctx) uint64
	TBChanged func(ctx *Ctx, v uint64)
	DECRead   func(ctx *Ctx) uint32
	DECChanged func(ctx *Ctx, v uint32)

	// RaiseException is the shared exception-raise stub the slow
	// memory path jumps to on failure (spec.md §7 item 1).
	RaiseException func(ctx *Ctx, fault *mem.Fault, access addr.Access)
}

// Info carries per-invocation execution accounting back to the
// driver: cycles and instructions actually executed, and whether an
// idle pattern consumed the full remaining budget (spec.md §3 "Block",
// §4.5 step 5).
type Info struct {
	Cycles       int
	Instructions int
	IdleConsumedBudget bool
	ConsecutiveFollows map[*blockcache.LinkSlot]int

	// BuildError is set by the driver when block lookup/compile itself
	// fails (spec.md §7 item 2); distinct from a guest-raised exception.
	BuildError error
}

// NewInfo creates a fresh per-invocation Info.
func NewInfo() *Info {
	return &Info{ConsecutiveFollows: make(map[*blockcache.LinkSlot]int)}
}

// Ctx is the runtime context threaded through every compiled closure:
// the stable pointers hooks resolve against. The RegisterWindow itself
// is not part of Ctx — it is created fresh per block invocation and
// passed explicitly as the w parameter to every Op (spec.md §4.4
// "Register cache").
type Ctx struct {
	Hooks    *Hooks
	Regs     *cpu.State
	Memory   *mem.Memory
	Settings Settings

	// ForceNoLink is set by an external debugger stop (spec.md §5
	// "Cancellation"): the next block exit returns control instead of
	// chaining through a link slot.
	ForceNoLink bool
}
