// Package icache implements the physical-addressed instruction cache
// mirror of spec.md §4.6: a non-authoritative cache of fetched guest
// instruction words, populated on compile demand and invalidated by
// guest icbi/isync-like flush hints.
package icache

import (
	"encoding/binary"

	"github.com/otley-systems/gekko/internal/addr"
)

// LineShift/LineSize: 32-byte cachelines, per spec.md §3 "Icache line".
const LineShift = 5
const LineSize = 1 << LineShift

// line holds one populated cacheline's bytes, big-endian guest layout.
type line struct {
	valid bool
	data  [LineSize]byte
}

// Source supplies raw bytes on a cache miss, normally backed by
// mem.Memory's physical read path.
type Source interface {
	ReadPhysicalBytes(phys addr.Address, buf []byte) bool
}

// Mirror is the icache: a sparse map from physical cacheline index to
// its contents. Unlike the fastmem LUT, misses never forbid progress —
// they just mean a slower populate step.
type Mirror struct {
	lines  map[uint32]*line
	source Source
}

// New creates an empty mirror over source.
func New(source Source) *Mirror {
	return &Mirror{lines: make(map[uint32]*line), source: source}
}

func lineIndex(phys addr.Address) uint32 { return uint32(phys) >> LineShift }
func lineBase(idx uint32) addr.Address   { return addr.Address(idx << LineShift) }

// FetchWord reads one big-endian 32-bit instruction word at phys,
// populating the backing cacheline on first touch (spec.md §4.6: "the
// driver walks instructions one at a time ... reads through this cache
// to avoid repeatedly calling the MMU for adjacent words").
func (m *Mirror) FetchWord(phys addr.Address) (uint32, bool) {
	idx := lineIndex(phys)
	l, ok := m.lines[idx]
	if !ok || !l.valid {
		l = &line{}
		if !m.source.ReadPhysicalBytes(lineBase(idx), l.data[:]) {
			return 0, false
		}
		l.valid = true
		m.lines[idx] = l
	}
	off := uint32(phys) & (LineSize - 1)
	return binary.BigEndian.Uint32(l.data[off : off+4]), true
}

// InvalidateLine implements the fine-grained guest icbi hint: drop the
// single cacheline covering phys.
func (m *Mirror) InvalidateLine(phys addr.Address) {
	delete(m.lines, lineIndex(phys))
}

// Clear implements the coarse isync-like flush hint and BAT-change
// scorched-earth reset: every line is dropped.
func (m *Mirror) Clear() {
	m.lines = make(map[uint32]*line)
}

// Len reports the number of currently-populated lines (diagnostics).
func (m *Mirror) Len() int { return len(m.lines) }
