package mem

import "github.com/otley-systems/gekko/internal/addr"

// lutSize is 2^15 entries: one per 128 KiB page covering the full
// 32-bit address space (2^32 / 2^17 = 2^15).
const lutSize = 1 << 15

// FastEntry is one fastmem LUT slot: a slice window directly backing
// the guest's 128 KiB page, or nil if the page must go through the
// slow path. The slice has exactly addr.PageSize bytes when present.
type FastEntry []byte

// LUT is a page-indexed fast-path lookup table, built per spec.md
// §4.1 build_{data,inst}_bat_lut. Four instances exist on Memory:
// {instruction, data} x {logical, physical}.
type LUT [lutSize]FastEntry

// buildLogicalLUT rebuilds a logical-space LUT from a BAT set. For
// each 128 KiB page it asks the BAT set whether exactly one entry
// covers the page (BatSet.CoversPage); if so, and the resulting
// physical range lies entirely within a fastmem-eligible region, the
// slot is populated. Otherwise the slot is cleared.
func (m *Memory) buildLogicalLUT(lut *LUT, bats BatSet, supervisor bool) {
	for page := uint32(0); page < lutSize; page++ {
		base := page << addr.PageShift
		bat, ok := bats.CoversPage(base, supervisor)
		if !ok {
			lut[page] = nil
			continue
		}
		physBase := bat.Translate(base)
		r, ok := fastmemEligible(physBase, addr.PageSize)
		if !ok {
			lut[page] = nil
			continue
		}
		lut[page] = m.window(r, physBase, addr.PageSize)
	}
}

// buildPhysicalLUT rebuilds a physical-space LUT: translation is the
// identity, so a page is eligible exactly when it falls entirely
// within one fastmem-eligible region.
func (m *Memory) buildPhysicalLUT(lut *LUT) {
	for page := uint32(0); page < lutSize; page++ {
		base := page << addr.PageShift
		r, ok := fastmemEligible(base, addr.PageSize)
		if !ok {
			lut[page] = nil
			continue
		}
		lut[page] = m.window(r, base, addr.PageSize)
	}
}

// window returns the backing-store slice for the physical range
// [start, start+length) inside region r.
func (m *Memory) window(r region, start, length uint32) []byte {
	off := start - r.base
	switch r.kind {
	case regionRAM:
		return m.ram[off : off+length]
	case regionL2:
		return m.l2[off : off+length]
	default:
		return nil
	}
}

// BuildDataBatLUT implements spec.md §4.1 build_data_bat_lut: called
// whenever the data BAT registers change.
func (m *Memory) BuildDataBatLUT(bats BatSet, supervisor bool) {
	m.buildLogicalLUT(&m.dataLogicalLUT, bats, supervisor)
	m.dataBats = bats
}

// BuildInstBatLUT implements spec.md §4.1 build_inst_bat_lut.
func (m *Memory) BuildInstBatLUT(bats BatSet, supervisor bool) {
	m.buildLogicalLUT(&m.instLogicalLUT, bats, supervisor)
	m.instBats = bats
}

// RebuildPhysicalLUTs rebuilds both physical-space LUTs. These never
// depend on BAT state, only on the fixed physical map, so they are
// built once at construction and never need to change.
func (m *Memory) rebuildPhysicalLUTs() {
	m.buildPhysicalLUT(&m.dataPhysicalLUT)
	m.buildPhysicalLUT(&m.instPhysicalLUT)
}

// FastmemLUT returns the currently-active fastmem table for the given
// access kind and address kind — the JIT hook get_fastmem's backing
// implementation (spec.md §4.4 hooks table).
func (m *Memory) FastmemLUT(access addr.Access, kind addr.Kind) *LUT {
	switch {
	case access == addr.Instruction && kind == addr.Logical:
		return &m.instLogicalLUT
	case access == addr.Instruction && kind == addr.Physical:
		return &m.instPhysicalLUT
	case access == addr.Data && kind == addr.Logical:
		return &m.dataLogicalLUT
	default:
		return &m.dataPhysicalLUT
	}
}
