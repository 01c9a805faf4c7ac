package driver

import (
	"testing"

	"github.com/otley-systems/gekko/internal/addr"
	"github.com/otley-systems/gekko/internal/blockcache"
	"github.com/otley-systems/gekko/internal/cpu"
	"github.com/otley-systems/gekko/internal/icache"
	"github.com/otley-systems/gekko/internal/jit"
	"github.com/otley-systems/gekko/internal/mem"
	"github.com/otley-systems/gekko/internal/sched"
)

// rawFetcher reads instruction words straight out of physical memory,
// standing in for internal/system's machineFetcher so these tests don't
// need the system package (which imports driver).
type rawFetcher struct{ mem *mem.Memory }

func (f rawFetcher) Fetch(a addr.Address) (uint32, *mem.Fault) {
	var buf [4]byte
	if !f.mem.ReadPhysicalBytes(a, buf[:]) {
		return 0, &mem.Fault{Access: addr.Instruction, Address: a}
	}
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
}

func encodeAddi(rt, ra uint32, si int16) uint32 {
	return 14<<26 | rt<<21 | ra<<16 | uint32(uint16(si))
}

func encodeStw(rt, ra uint32, si int16) uint32 {
	return 36<<26 | rt<<21 | ra<<16 | uint32(uint16(si))
}

// blockInstructions is both block's fixed instruction count, matching
// spec.md §8 scenario 3's "16 instructions (64 bytes)" exactly: the
// compiler stops decoding the instant len(decoded) reaches this bound,
// so it never has to fetch past the instructions this test seeds.
const blockInstructions = 16

func newTestDriver(t *testing.T) (*Driver, *mem.Memory, *blockcache.Cache) {
	t.Helper()
	m := mem.New(nil)
	regs := &cpu.State{}
	cache := blockcache.New()
	settings := jit.DefaultSettings()
	compiler := jit.NewCompiler(settings, nil)
	linker := jit.NewLinker(cache, compiler, rawFetcher{m}, m, blockInstructions)
	mirror := icache.New(m)
	hooks := jit.BuildHooks(linker, m, regs)
	d := New(sched.New(), regs, m, cache, linker, mirror, hooks, settings)
	return d, m, cache
}

func writeWord(t *testing.T, m *mem.Memory, at addr.Address, word uint32) {
	t.Helper()
	if f := mem.Write[uint32](m, addr.Data, at, word, false, true); f != nil {
		t.Fatalf("seeding memory at %#x: %v", uint32(at), f)
	}
}

// TestGuestStoreInvalidatesOverlappingBlock implements spec.md §8
// scenario 3 end to end through the real driver/linker/cache stack:
// compile block B at logical 0x1000 covering 16 instructions (64
// bytes), execute a stw from another block to 0x1020 (inside B's
// range), and confirm the next lookup of B misses and a fresh compile
// is produced.
func TestGuestStoreInvalidatesOverlappingBlock(t *testing.T) {
	d, m, cache := newTestDriver(t)

	const bStart = addr.Address(0x1000)
	for i := 0; i < blockInstructions; i++ {
		writeWord(t, m, bStart.Add(uint32(i)*4), encodeAddi(1, 0, 1))
	}

	bBlock, bCompiled, err := d.Linker.TryLinkOrCompile(bStart)
	if err != nil {
		t.Fatalf("compile B: %v", err)
	}
	if bCompiled.InstructionCount != blockInstructions || bCompiled.Length != blockInstructions*4 {
		t.Fatalf("got %d instructions / %d bytes, want %d / %d", bCompiled.InstructionCount, bCompiled.Length, blockInstructions, blockInstructions*4)
	}
	if got, ok := cache.Get(true, bStart); !ok || got != bBlock {
		t.Fatalf("expected B to be cached before the store")
	}

	// Block A: a stw targeting 0x1020 (inside B's range) followed by
	// harmless addi filler up to the same instruction bound, so the
	// compiler never has to decode past what this test seeds either.
	const aStart = addr.Address(0x4000)
	writeWord(t, m, aStart, encodeStw(2, 0, 0x1020))
	for i := 1; i < blockInstructions; i++ {
		writeWord(t, m, aStart.Add(uint32(i)*4), encodeAddi(3, 0, 1))
	}
	d.Regs.PC = uint32(aStart)
	aEnd := uint32(aStart) + blockInstructions*4
	d.Breakpoints[aEnd] = true

	info := d.Run(1<<20, false)
	if info.BuildError != nil {
		t.Fatalf("running A: %v", info.BuildError)
	}
	if d.Regs.PC != aEnd {
		t.Fatalf("PC = %#x, want %#x after the store block", d.Regs.PC, aEnd)
	}

	if _, ok := cache.Get(true, bStart); ok {
		t.Fatal("expected B to be evicted by the overlapping store")
	}

	_, freshCompiled, err := d.Linker.TryLinkOrCompile(bStart)
	if err != nil {
		t.Fatalf("recompile B: %v", err)
	}
	if freshCompiled == bCompiled {
		t.Fatal("expected a fresh CompiledBlock, got the stale one")
	}
}
