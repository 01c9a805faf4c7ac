package jit

import (
	"testing"

	"github.com/otley-systems/gekko/internal/addr"
	"github.com/otley-systems/gekko/internal/blockcache"
	"github.com/otley-systems/gekko/internal/cpu"
	"github.com/otley-systems/gekko/internal/mem"
)

// wordsFetcher is a fixed instruction-word image for compiler tests.
type wordsFetcher map[addr.Address]uint32

func (f wordsFetcher) Fetch(a addr.Address) (uint32, *mem.Fault) {
	w, ok := f[a]
	if !ok {
		return 0, &mem.Fault{Access: addr.Instruction, Address: a}
	}
	return w, nil
}

// encodeB encodes an unconditional `b target` (or `bl` if lk) at addr.
func encodeB(at, target addr.Address, lk bool) uint32 {
	li := uint32(target) - uint32(at)
	word := uint32(18)<<26 | (li & 0x03FF_FFFC)
	if lk {
		word |= 1
	}
	return word
}

func TestIdleLoopExitMatchesBudget(t *testing.T) {
	start := addr.Address(0x1000)
	fetcher := wordsFetcher{start: encodeB(start, start, false)}

	c := NewCompiler(DefaultSettings(), nil)
	block, err := c.Compile(fetcher, start, 256)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if block.Terminator != blockcache.IdleBasic {
		t.Fatalf("expected IdleBasic terminator, got %v", block.Terminator)
	}

	// Wire the block's own link slot to itself, simulating a successful
	// TryLink against the block cache without exercising the full
	// Linker (exercised through the driver in internal/driver's tests).
	block.LinkSlot.Linked = true
	block.LinkSlot.Successor = block
	block.LinkSlot.Pattern = block.Terminator

	regs := &cpu.State{PC: uint32(start)}
	ctx := &Ctx{Hooks: &Hooks{}, Regs: regs, Settings: DefaultSettings()}

	const budget = 1000
	info := block.Run(ctx, budget)

	if info.Instructions != 1 {
		t.Errorf("Instructions = %d, want 1", info.Instructions)
	}
	if !info.IdleConsumedBudget {
		t.Errorf("IdleConsumedBudget = false, want true")
	}
	if info.Cycles != budget {
		t.Errorf("Cycles = %d, want %d", info.Cycles, budget)
	}
}

func TestNonIdleLinkReexecutesSuccessor(t *testing.T) {
	a := addr.Address(0x2000)
	b := addr.Address(0x2004)
	fetcher := wordsFetcher{
		a: encodeB(a, b, false),
		b: encodeB(b, b+4, false), // not self-referencing: DirectJump, not idle
	}

	c := NewCompiler(DefaultSettings(), nil)
	blockA, err := c.Compile(fetcher, a, 256)
	if err != nil {
		t.Fatalf("compile a: %v", err)
	}
	blockB, err := c.Compile(fetcher, b, 256)
	if err != nil {
		t.Fatalf("compile b: %v", err)
	}
	if blockA.Terminator != blockcache.DirectJump {
		t.Fatalf("expected DirectJump, got %v", blockA.Terminator)
	}

	blockA.LinkSlot.Linked = true
	blockA.LinkSlot.Successor = blockB
	blockA.LinkSlot.Pattern = blockA.Terminator
	blockB.LinkSlot = nil // stop the chain after one hop

	regs := &cpu.State{PC: uint32(a)}
	ctx := &Ctx{Hooks: &Hooks{}, Regs: regs, Settings: DefaultSettings()}

	info := blockA.Run(ctx, 256)
	if info.Instructions != 2 {
		t.Errorf("Instructions = %d, want 2 (one per block)", info.Instructions)
	}
	if info.IdleConsumedBudget {
		t.Errorf("IdleConsumedBudget = true, want false for a non-idle chain")
	}
}

func TestCompileEmptyFetchFailsOnFirstInstruction(t *testing.T) {
	c := NewCompiler(DefaultSettings(), nil)
	_, err := c.Compile(wordsFetcher{}, addr.Address(0x3000), 16)
	if err == nil {
		t.Fatal("expected a build error for an unfetchable first instruction")
	}
	var buildErr *BuildError
	if !asBuildError(err, &buildErr) {
		t.Fatalf("expected *BuildError, got %T", err)
	}
}

func asBuildError(err error, out **BuildError) bool {
	be, ok := err.(*BuildError)
	if ok {
		*out = be
	}
	return ok
}

func TestUnimplementedOpcodeFailsWithIRDump(t *testing.T) {
	start := addr.Address(0x4000)
	next := start.Add(4)
	// primary opcode 63 is unmapped by Decode, so Op stays OpUnknown. A
	// valid instruction precedes it so the IR dump carries something.
	fetcher := wordsFetcher{
		start: uint32(14)<<26 | (1 << 21), // addi r1,r0,1
		next:  63 << 26,
	}

	settings := DefaultSettings()
	settings.IgnoreUnimplemented = false
	c := NewCompiler(settings, nil)
	_, err := c.Compile(fetcher, start, 16)
	if err == nil {
		t.Fatal("expected a build error for an unimplemented opcode")
	}
	be, ok := err.(*BuildError)
	if !ok {
		t.Fatalf("expected *BuildError, got %T", err)
	}
	if be.IRDump == "" {
		t.Errorf("expected a non-empty IR dump on build failure")
	}
}

func TestUnimplementedOpcodeIgnoredProducesStub(t *testing.T) {
	start := addr.Address(0x5000)
	fetcher := wordsFetcher{start: 63 << 26}

	settings := DefaultSettings()
	settings.IgnoreUnimplemented = true
	c := NewCompiler(settings, nil)
	block, err := c.Compile(fetcher, start, 16)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if block.InstructionCount != 1 {
		t.Errorf("InstructionCount = %d, want 1", block.InstructionCount)
	}
	block.LinkSlot = nil // no cache/linker in this test, run standalone

	regs := &cpu.State{PC: uint32(start)}
	ctx := &Ctx{Hooks: &Hooks{}, Regs: regs, Settings: settings}
	info := block.Run(ctx, 16)
	if info.Instructions != 1 {
		t.Errorf("Instructions = %d, want 1", info.Instructions)
	}
	if regs.PC != uint32(start)+4 {
		t.Errorf("PC = %#x, want %#x", regs.PC, uint32(start)+4)
	}
}
