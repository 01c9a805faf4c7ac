// Package mem implements the Gekko physical memory map, BAT-based
// address translation, the fastmem lookup tables, and the MMIO bus
// (spec.md §4.1, §4.10).
package mem

import (
	"encoding/binary"

	"github.com/otley-systems/gekko/internal/addr"
)

// Fault is returned by a failed translation or a failed slow-path
// access. It carries enough information for the CPU to raise a DSI
// (data) or ISI (instruction) exception per spec.md §4.1's error
// model: fault address goes to DAR, MSR to SRR1, PC to SRR0.
type Fault struct {
	Access  addr.Access
	Address addr.Address
}

func (f *Fault) Error() string {
	if f.Access == addr.Instruction {
		return "instruction storage interrupt"
	}
	return "data storage interrupt"
}

// Primitive is the set of guest-accessible load/store widths.
type Primitive interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Memory owns RAM, L2 scratch, IPL ROM, the four fastmem LUTs, and
// the MMIO bus. It is the sole owner of guest physical storage; the
// JIT, driver, and icache mirror all reach memory through this type.
type Memory struct {
	ram []byte
	l2  []byte
	ipl []byte

	mmio *MMIOBus

	dataBats, instBats                                       BatSet
	dataLogicalLUT, instLogicalLUT                           LUT
	dataPhysicalLUT, instPhysicalLUT                         LUT
}

// New builds a Memory with zeroed RAM/L2 and the given IPL ROM image
// (copied, padded/truncated to IPLSize).
func New(ipl []byte) *Memory {
	m := &Memory{
		ram:  make([]byte, RAMSize),
		l2:   make([]byte, L2Size),
		ipl:  make([]byte, IPLSize),
		mmio: newMMIOBus(),
	}
	n := copy(m.ipl, ipl)
	_ = n
	m.rebuildPhysicalLUTs()
	return m
}

// MMIO returns the MMIO register bus for subsystem wiring (GX, DSP,
// VI, PI, DI, AI, SI, EXI each register handlers on it).
func (m *Memory) MMIO() *MMIOBus { return m.mmio }

// TranslateData implements spec.md §4.1 translate_data_addr.
func (m *Memory) TranslateData(logical addr.Address, supervisor bool) (addr.Address, bool) {
	return m.dataBats.Translate(logical, supervisor)
}

// TranslateInst implements spec.md §4.1 translate_inst_addr.
func (m *Memory) TranslateInst(logical addr.Address, supervisor bool) (addr.Address, bool) {
	return m.instBats.Translate(logical, supervisor)
}

// resolve converts a guest address to a physical address, consulting
// BATs only when translation is enabled, per spec.md §4.1.
func (m *Memory) resolve(access addr.Access, a addr.Address, translate, supervisor bool) (addr.Address, *Fault) {
	if !translate {
		return a, nil
	}
	var phys addr.Address
	var ok bool
	if access == addr.Instruction {
		phys, ok = m.TranslateInst(a, supervisor)
	} else {
		phys, ok = m.TranslateData(a, supervisor)
	}
	if !ok {
		return 0, &Fault{Access: access, Address: a}
	}
	return phys, nil
}

// Read performs a guest-sized, big-endian load. It is the slow-path
// entry point used directly by hooks and by tests; the JIT's inline
// fastmem path bypasses this and consults the LUT itself (spec.md
// §4.4 "Memory operations"), falling back here on miss.
func Read[T Primitive](m *Memory, access addr.Access, a addr.Address, translate, supervisor bool) (T, *Fault) {
	phys, f := m.resolve(access, a, translate, supervisor)
	if f != nil {
		return 0, f
	}
	return readPhysical[T](m, phys, access)
}

// Write performs a guest-sized, big-endian store.
func Write[T Primitive](m *Memory, access addr.Access, a addr.Address, v T, translate, supervisor bool) *Fault {
	phys, f := m.resolve(access, a, translate, supervisor)
	if f != nil {
		return f
	}
	return writePhysical(m, phys, v, access)
}

func readPhysical[T Primitive](m *Memory, phys addr.Address, access addr.Access) (T, *Fault) {
	r, ok := findRegion(uint32(phys))
	if !ok {
		return 0, &Fault{Access: access, Address: phys}
	}
	var zero T
	size := sizeOf(zero)
	switch r.kind {
	case regionRAM:
		return readBE[T](m.ram, uint32(phys)-r.base), nil
	case regionL2:
		return readBE[T](m.l2, uint32(phys)-r.base), nil
	case regionIPL:
		return readBE[T](m.ipl, uint32(phys)-r.base), nil
	case regionMMIO:
		v, ok := m.mmio.read(uint32(phys)-r.base, size)
		if !ok {
			return 0, &Fault{Access: access, Address: phys}
		}
		return T(v), nil
	}
	return 0, &Fault{Access: access, Address: phys}
}

func writePhysical[T Primitive](m *Memory, phys addr.Address, v T, access addr.Access) *Fault {
	r, ok := findRegion(uint32(phys))
	if !ok || !r.writeable {
		return &Fault{Access: access, Address: phys}
	}
	size := sizeOf(v)
	switch r.kind {
	case regionRAM:
		writeBE(m.ram, uint32(phys)-r.base, v)
		return nil
	case regionL2:
		writeBE(m.l2, uint32(phys)-r.base, v)
		return nil
	case regionMMIO:
		if !m.mmio.write(uint32(phys)-r.base, uint64(v), size) {
			return &Fault{Access: access, Address: phys}
		}
		return nil
	}
	return &Fault{Access: access, Address: phys}
}

func sizeOf[T Primitive](v T) int {
	switch any(v).(type) {
	case uint8:
		return 1
	case uint16:
		return 2
	case uint32:
		return 4
	default:
		return 8
	}
}

func readBE[T Primitive](buf []byte, off uint32) T {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return T(buf[off])
	case uint16:
		return T(binary.BigEndian.Uint16(buf[off:]))
	case uint32:
		return T(binary.BigEndian.Uint32(buf[off:]))
	default:
		return T(binary.BigEndian.Uint64(buf[off:]))
	}
}

func writeBE[T Primitive](buf []byte, off uint32, v T) {
	switch x := any(v).(type) {
	case uint8:
		buf[off] = x
	case uint16:
		binary.BigEndian.PutUint16(buf[off:], x)
	case uint32:
		binary.BigEndian.PutUint32(buf[off:], x)
	case uint64:
		binary.BigEndian.PutUint64(buf[off:], x)
	}
}

// ReadPhysicalBytes fills buf from physical memory starting at phys,
// crossing region boundaries by returning false rather than partially
// filling buf. This backs internal/icache's cacheline population,
// which always requests one fixed-size, region-aligned line.
func (m *Memory) ReadPhysicalBytes(phys addr.Address, buf []byte) bool {
	r, ok := findRegion(uint32(phys))
	if !ok {
		return false
	}
	off := uint32(phys) - r.base
	if off+uint32(len(buf)) > r.size {
		return false
	}
	var backing []byte
	switch r.kind {
	case regionRAM:
		backing = m.ram
	case regionL2:
		backing = m.l2
	case regionIPL:
		backing = m.ipl
	default:
		return false
	}
	copy(buf, backing[off:off+uint32(len(buf))])
	return true
}

// FastmemLoad is the fast-path load the JIT's inline sequence performs
// after indexing the LUT and finding a non-nil window: w is the 128
// KiB backing slice, off is addr & 0x1FFFF. Big-endian reinterpretation
// happens here, matching the fastmem invariant in spec.md §4.1.
func FastmemLoad[T Primitive](w FastEntry, off uint32) T {
	return readBE[T](w, off)
}

// FastmemStore is the fast-path store counterpart.
func FastmemStore[T Primitive](w FastEntry, off uint32, v T) {
	writeBE(w, off, v)
}
