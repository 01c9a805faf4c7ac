// Package system assembles the CPU, memory, block cache, JIT, DSP,
// and GX pieces into one running machine, and wires the MMIO side
// effects spec.md §4.10 names between them — the equivalent of the
// teacher's main.go building a MachineBus and mapping peripheral I/O
// regions onto it.
package system

import (
	"golang.org/x/sync/errgroup"

	"github.com/otley-systems/gekko/internal/addr"
	"github.com/otley-systems/gekko/internal/audio"
	"github.com/otley-systems/gekko/internal/backend"
	"github.com/otley-systems/gekko/internal/blockcache"
	"github.com/otley-systems/gekko/internal/config"
	"github.com/otley-systems/gekko/internal/cpu"
	"github.com/otley-systems/gekko/internal/driver"
	"github.com/otley-systems/gekko/internal/dsp"
	"github.com/otley-systems/gekko/internal/gx"
	"github.com/otley-systems/gekko/internal/icache"
	"github.com/otley-systems/gekko/internal/jit"
	"github.com/otley-systems/gekko/internal/mem"
	"github.com/otley-systems/gekko/internal/sched"
)

// dspSampleRate is the GameCube DSP's native output rate.
const dspSampleRate = 48000

// MMIO offsets for the registers this package wires, relative to the
// MMIO window's base (spec.md §4.10's "0xC000-range" for DSP+ARAM,
// and the CP block's "0x00-0x3F area").
const (
	offDSPMailboxCPUToDSP = 0xC000
	offDSPMailboxDSPToCPU = 0xC004
	offDSPControl         = 0xC008

	offCPFifoBase     = 0x0000
	offCPFifoEnd      = 0x0004
	offCPFifoWritePtr = 0x0008
)

// Machine is the fully wired system: every subsystem plus the glue
// code translating MMIO writes into subsystem calls.
type Machine struct {
	Config config.Config

	Memory    *mem.Memory
	Regs      *cpu.State
	Scheduler *sched.Scheduler
	Cache     *blockcache.Cache
	Compiler  *jit.Compiler
	Linker    *jit.Linker
	Mirror    *icache.Mirror
	Driver    *driver.Driver

	DSP      *dsp.DSP
	GX       *gx.Processor
	Renderer backend.Renderer
	Audio    *audio.Player

	rendererStop chan struct{}
	ramSource    gxRAMSource

	bg *errgroup.Group
}

// New builds a Machine from the given configuration and IPL/DSP-ucode
// images, wiring MMIO side effects per spec.md §4.10.
func New(cfg config.Config, ipl []byte, dspIROM []byte) (*Machine, error) {
	m := &Machine{Config: cfg}

	m.Memory = mem.New(ipl)
	m.Regs = &cpu.State{}
	m.Scheduler = sched.New()
	m.Cache = blockcache.New()
	m.DSP = dsp.New(dspIROM)
	m.GX = gx.NewProcessor(256)

	settings := cfg.JITSettings()
	mailboxPoll := jit.NewMailboxPollPredicate(dsp.StatusOffsets(offDSPMailboxCPUToDSP, offDSPMailboxDSPToCPU))
	m.Compiler = jit.NewCompiler(settings, mailboxPoll)
	m.Compiler.Translate = func(logical addr.Address) (addr.Address, bool) {
		return m.Memory.TranslateInst(logical, m.Regs.Supervisor())
	}

	fetcher := machineFetcher{mem: m.Memory, regs: m.Regs}
	m.Linker = jit.NewLinker(m.Cache, m.Compiler, fetcher, m.Memory, settings.InstrPerBlock)
	if cfg.CachePath != "" {
		disk, err := jit.NewDiskCache(cfg.CachePath)
		if err == nil {
			m.Linker.Disk = disk
		}
	}

	m.Mirror = icache.New(m.Memory)
	hooks := jit.BuildHooks(m.Linker, m.Memory, m.Regs)
	m.Driver = driver.New(m.Scheduler, m.Regs, m.Memory, m.Cache, m.Linker, m.Mirror, hooks, settings)

	m.ramSource = gxRAMSource{m.Memory}
	m.bg = &errgroup.Group{}
	m.wireMMIO()
	return m, nil
}

// StartRenderer attaches a backend and spawns the renderer thread of
// spec.md §5 under this Machine's errgroup, which owns that backend
// exclusively and consumes m.GX.Actions until StopRenderer is called.
// Only one renderer may run at a time per Machine. A renderer error is
// observable via Wait after StopRenderer closes the action source.
func (m *Machine) StartRenderer(r backend.Renderer) {
	m.Renderer = r
	m.rendererStop = make(chan struct{})
	m.bg.Go(func() error { return r.Run(m.GX.Actions, m.rendererStop) })
}

// StopRenderer signals the renderer goroutine to exit and closes the
// backend, releasing any window or device resources it holds. Call
// Wait afterward to observe its exit error, if any.
func (m *Machine) StopRenderer() error {
	if m.rendererStop != nil {
		close(m.rendererStop)
		m.rendererStop = nil
	}
	if m.Renderer != nil {
		return m.Renderer.Close()
	}
	return nil
}

// Wait blocks until every goroutine started under this Machine (the
// renderer thread, and any future background workers) has returned,
// propagating the first non-nil error.
func (m *Machine) Wait() error {
	return m.bg.Wait()
}

// StartAudio opens the DSP's oto output sink and attaches it to this
// machine's DSP, pulling accelerator samples on oto's own callback
// thread (spec.md §4.7's accelerator "reads raw/sample-rate-converted
// PCM" is the source audio.Player consumes).
func (m *Machine) StartAudio() error {
	p, err := audio.NewPlayer(dspSampleRate)
	if err != nil {
		return err
	}
	p.Attach(m.DSP)
	p.Start()
	m.Audio = p
	return nil
}

// StopAudio closes the audio player, if one was started.
func (m *Machine) StopAudio() error {
	if m.Audio == nil {
		return nil
	}
	return m.Audio.Close()
}

// machineFetcher implements jit.Fetcher directly over physical memory,
// used by the Linker/Compiler for the "build from words" path (disk
// cache replay); the driver's own per-instruction fetches go through
// the icache mirror instead (internal/driver.icacheFetcher).
type machineFetcher struct {
	mem  *mem.Memory
	regs *cpu.State
}

func (f machineFetcher) Fetch(a addr.Address) (uint32, *mem.Fault) {
	phys := a
	if f.regs.TranslateInst() {
		p, ok := f.mem.TranslateInst(a, f.regs.Supervisor())
		if !ok {
			return 0, &mem.Fault{Access: addr.Instruction, Address: a}
		}
		phys = p
	}
	var buf [4]byte
	if !f.mem.ReadPhysicalBytes(phys, buf[:]) {
		return 0, &mem.Fault{Access: addr.Instruction, Address: phys}
	}
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
}

// gxRAMSource adapts *mem.Memory to gx.RAMSource.
type gxRAMSource struct{ m *mem.Memory }

func (s gxRAMSource) ReadBytes(a uint32, n int) ([]byte, bool) {
	buf := make([]byte, n)
	if !s.m.ReadPhysicalBytes(addr.Address(a), buf) {
		return nil, false
	}
	return buf, true
}

// wireMMIO implements spec.md §4.10's named side effects: "CP FIFO
// pointer writes -> kick consume; DSP control register writes ->
// dispatch interrupts, reset, or DMA".
func (m *Machine) wireMMIO() {
	bus := m.Memory.MMIO()

	bus.Register("dsp_mailbox_cpu_to_dsp", offDSPMailboxCPUToDSP, 4,
		func(uint32, int) (uint64, bool) { return uint64(m.DSP.Mailboxes.CPUToDSP.Read()), true },
		func(_ uint32, _ int, v, _ uint64) { m.DSP.Mailboxes.CPUToDSP.Set(uint32(v)) },
	)
	bus.Register("dsp_mailbox_dsp_to_cpu", offDSPMailboxDSPToCPU, 4,
		func(uint32, int) (uint64, bool) { return uint64(m.DSP.Mailboxes.DSPToCPU.Read()), true },
		nil, // host-visible side only reads; the DSP itself sets it internally
	)
	bus.Register("dsp_control", offDSPControl, 4,
		nil,
		func(_ uint32, _ int, v, _ uint64) { m.handleDSPControlWrite(uint32(v)) },
	)

	bus.Register("cp_fifo_base", offCPFifoBase, 4, nil,
		func(_ uint32, _ int, v, _ uint64) { m.GX.PI.Base = uint32(v) })
	bus.Register("cp_fifo_end", offCPFifoEnd, 4, nil,
		func(_ uint32, _ int, v, _ uint64) { m.GX.PI.End = uint32(v) })
	bus.Register("cp_fifo_write_ptr", offCPFifoWritePtr, 4, nil,
		func(_ uint32, _ int, v, _ uint64) {
			m.GX.PI.WritePtr = uint32(v)
			m.GX.Kick(m.ramSource)
			m.GX.Process(m.ramSource)
		})
}

// DSP control register bit layout: bit 0 reset, bit 1 external
// interrupt ack, bits 2-3 DMA direction+target kick (spec.md §4.7's
// DMA "stubbed as copies at command time").
func (m *Machine) handleDSPControlWrite(v uint32) {
	if v&1 != 0 {
		m.DSP.SoftReset()
	}
	if v&2 != 0 {
		m.DSP.RaiseInterrupt(dsp.IntExternal)
	}
}
