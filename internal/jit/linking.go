package jit

import (
	"github.com/otley-systems/gekko/internal/addr"
	"github.com/otley-systems/gekko/internal/blockcache"
	"github.com/otley-systems/gekko/internal/cpu"
	"github.com/otley-systems/gekko/internal/mem"
)

// Linker owns the block cache and compiler, and is the backing
// implementation of the TryLink/FollowLink/compile-on-demand hooks
// (spec.md §4.4 "Block linking", §4.5 step 3 "cache lookup / compile").
type Linker struct {
	Cache    *blockcache.Cache
	Compiler *Compiler
	Fetcher  Fetcher
	Memory   *mem.Memory

	// Disk is an optional persisted artifact cache (spec.md §6
	// "cache_path"); nil disables it entirely.
	Disk *DiskCache

	MaxInstructions int
}

// NewLinker creates a Linker over an existing block cache, compiler,
// and fetch source.
func NewLinker(cache *blockcache.Cache, compiler *Compiler, fetcher Fetcher, memory *mem.Memory, maxInstructions int) *Linker {
	return &Linker{Cache: cache, Compiler: compiler, Fetcher: fetcher, Memory: memory, MaxInstructions: maxInstructions}
}

// TryLinkOrCompile is the driver-facing entry point for spec.md §4.5
// step 3: "look up a block at PC. If missing ... compile."
func (l *Linker) TryLinkOrCompile(target addr.Address) (*blockcache.Block, *CompiledBlock, error) {
	return l.lookupOrCompile(target)
}

// fetchWindow reads up to l.MaxInstructions words starting at target,
// stopping at the first fetch fault. Used to key and populate the disk
// cache without depending on a CompiledBlock's instruction count, which
// isn't known until after compilation.
func (l *Linker) fetchWindow(target addr.Address) []uint32 {
	words := make([]uint32, 0, l.MaxInstructions)
	for i := 0; i < l.MaxInstructions; i++ {
		w, fault := l.Fetcher.Fetch(target.Add(uint32(i) * 4))
		if fault != nil {
			break
		}
		words = append(words, w)
	}
	return words
}

// lookupOrCompile implements spec.md §4.5 step 3: consult the logical
// index first; on miss, consult the disk cache (spec.md §6 "read before
// codegen"); on a disk hit, rebuild from the persisted words instead of
// lowering a freshly fetched sequence; on a full miss, compile fresh and
// persist it. Either way the result is inserted into the logical index,
// and into the physical index when its physical start is non-zero, so
// later physical-address lookups (e.g. after an icache invalidation at a
// physical address) still find it. A block whose physical start is 0 is
// indexed logically only.
func (l *Linker) lookupOrCompile(target addr.Address) (*blockcache.Block, *CompiledBlock, error) {
	if b, ok := l.Cache.Get(true, target); ok {
		cb, ok := b.Code.(*CompiledBlock)
		if !ok {
			return nil, nil, &BuildError{Address: target, Reason: "cached block has no compiled payload"}
		}
		return b, cb, nil
	}

	var key DiskKey
	var words []uint32
	if l.Disk != nil {
		words = l.fetchWindow(target)
		key = DiskKey{ISA: ISAFingerprint, SettingsHash: l.Compiler.settings.Hash(), Start: uint32(target), SeqHash: SequenceHash(words)}
	}

	var cb *CompiledBlock
	var err error
	if l.Disk != nil {
		if persisted, hit := l.Disk.Lookup(key); hit {
			cb, err = l.Compiler.CompileFromWords(target, persisted)
		}
	}
	if cb == nil {
		cb, err = l.Compiler.Compile(l.Fetcher, target, l.MaxInstructions)
		if err == nil && l.Disk != nil {
			// Best-effort: a failed persist never blocks execution, it
			// just means the next run recompiles this block instead of
			// reusing it.
			_ = l.Disk.Store(key, words)
		}
	}
	if err != nil {
		return nil, nil, err
	}

	b := &blockcache.Block{
		StartLogical:     cb.StartLogical,
		StartPhysical:    cb.StartPhysical,
		Length:           cb.Length,
		InstructionCount: cb.InstructionCount,
		Terminator:       cb.Terminator,
		Code:             cb,
	}
	l.Cache.Insert(true, target, b)
	if cb.StartPhysical != 0 {
		l.Cache.Insert(false, cb.StartPhysical, b)
	}
	return b, cb, nil
}

// TryLink is the Hooks.TryLink implementation: populate slot with the
// cached or freshly compiled block at target, or leave it unlinked on a
// build failure (Block.Run then returns to the driver, whose own
// TryLinkOrCompile reports the build error). Per spec.md §4.4, it also pushes slot as a back-
// reference into the target block's Links, so invalidating the target
// later (blockcache.Cache.removeMapping) finds and unlinks this slot
// too instead of leaving a predecessor chasing a stale successor.
func (l *Linker) TryLink(ctx *Ctx, target addr.Address, slot *blockcache.LinkSlot) {
	b, cb, err := l.lookupOrCompile(target)
	if err != nil {
		slot.Linked = false
		return
	}
	b.Links = append(b.Links, slot)
	slot.Successor = cb
	slot.Pattern = cb.Terminator
	slot.Linked = true
}

// BuildHooks assembles the full Hooks table spec.md §4.4 names, wiring
// memory, translation, and cache services through the owning Linker,
// Memory, and register file. MMIO-side-effect subsystems (DSP, GX, VI,
// PI) register their own handlers on mem.Memory's MMIOBus separately
// and are reached transparently through ReadSlow/WriteSlow.
func BuildHooks(l *Linker, m *mem.Memory, regs *cpu.State) *Hooks {
	l.Compiler.Translate = func(logical addr.Address) (addr.Address, bool) {
		if !regs.TranslateInst() {
			return logical, true
		}
		return m.TranslateInst(logical, regs.Supervisor())
	}

	return &Hooks{
		GetRegisters: func(ctx *Ctx) *cpu.State { return regs },

		GetFastmem: func(ctx *Ctx, access addr.Access, kind addr.Kind) *mem.LUT {
			return m.FastmemLUT(access, kind)
		},

		TryLink: l.TryLink,

		FollowLink: func(info *Info, ctx *Ctx, slot *blockcache.LinkSlot) bool {
			return slot.Linked && !ctx.ForceNoLink
		},

		ReadSlow: func(ctx *Ctx, access addr.Access, a addr.Address, size int) (uint64, *mem.Fault) {
			translate := access == addr.Instruction && regs.TranslateInst() || access == addr.Data && regs.TranslateData()
			switch size {
			case 1:
				v, f := mem.Read[uint8](m, access, a, translate, regs.Supervisor())
				return uint64(v), f
			case 2:
				v, f := mem.Read[uint16](m, access, a, translate, regs.Supervisor())
				return uint64(v), f
			case 4:
				v, f := mem.Read[uint32](m, access, a, translate, regs.Supervisor())
				return uint64(v), f
			default:
				v, f := mem.Read[uint64](m, access, a, translate, regs.Supervisor())
				return v, f
			}
		},

		WriteSlow: func(ctx *Ctx, a addr.Address, v uint64, size int) *mem.Fault {
			translate := regs.TranslateData()
			var fault *mem.Fault
			switch size {
			case 1:
				fault = mem.Write[uint8](m, addr.Data, a, uint8(v), translate, regs.Supervisor())
			case 2:
				fault = mem.Write[uint16](m, addr.Data, a, uint16(v), translate, regs.Supervisor())
			case 4:
				fault = mem.Write[uint32](m, addr.Data, a, uint32(v), translate, regs.Supervisor())
			default:
				fault = mem.Write[uint64](m, addr.Data, a, v, translate, regs.Supervisor())
			}
			if fault == nil {
				// Page-granularity dependency tracking (spec.md §9 "Self-
				// modifying guest code vs. host cache coherence") makes this
				// a cheap no-op unless the store actually lands in a page a
				// compiled block depends on.
				l.Cache.Invalidate(true, a)
				if phys, ok := m.TranslateData(a, regs.Supervisor()); ok {
					l.Cache.Invalidate(false, phys)
				}
			}
			return fault
		},

		InvalidateICache: func(ctx *Ctx, a addr.Address) {
			l.Cache.Invalidate(true, a)
			if phys, ok := m.TranslateData(a, regs.Supervisor()); ok {
				l.Cache.Invalidate(false, phys)
			}
		},
		ClearICache: func(ctx *Ctx) { l.Cache.Clear() },

		DCacheDMA: func(ctx *Ctx) {},

		MSRChanged: func(ctx *Ctx) {},

		IBATChanged: func(ctx *Ctx) {
			bats := decodeBatSet(regs.IBAT)
			m.BuildInstBatLUT(bats, regs.Supervisor())
			l.Cache.Clear()
		},

		DBATChanged: func(ctx *Ctx) {
			bats := decodeBatSet(regs.DBAT)
			m.BuildDataBatLUT(bats, regs.Supervisor())
			l.Cache.Clear()
		},

		TBRead:    func(ctx *Ctx) uint64 { return uint64(regs.TBU)<<32 | uint64(regs.TBL) },
		TBChanged: func(ctx *Ctx, v uint64) { regs.TBU, regs.TBL = uint32(v>>32), uint32(v) },
		DECRead:   func(ctx *Ctx) uint32 { return regs.DEC },
		DECChanged: func(ctx *Ctx, v uint32) {
			regs.DEC = v
		},

		RaiseException: func(ctx *Ctx, fault *mem.Fault, access addr.Access) {
			if access == addr.Instruction {
				regs.RaiseISI(fault.Address)
				return
			}
			regs.RaiseDSI(fault.Address)
		},
	}
}

// decodeBatSet builds a mem.BatSet from the four raw [upper, lower] SPR
// pairs cpu.State stores, per the PowerPC 750 BAT register layout:
// upper = BEPI(15) | BL(11) | Vs(1) | Vp(1), lower = BRPN(15) | WIMG(4) | PP(2).
func decodeBatSet(raw [4][2]uint32) mem.BatSet {
	var bats mem.BatSet
	for i, pair := range raw {
		upper, lower := pair[0], pair[1]
		validSupervisor := upper&0x2 != 0
		validUser := upper&0x1 != 0
		blockLen := (upper >> 2) & 0x7FF
		blockMask := blockLen<<17 | 0x1FFFF
		bats[i] = mem.BatEntry{
			Valid:           validSupervisor || validUser,
			EffectiveStart:  upper & 0xFFFE0000,
			PhysicalStart:   lower & 0xFFFE0000,
			BlockMask:       blockMask,
			ValidUser:       validUser,
			ValidSupervisor: validSupervisor,
		}
	}
	return bats
}
