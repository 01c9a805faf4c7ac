package mem

import "github.com/otley-systems/gekko/internal/addr"

// BatEntry is one Block Address Translation register pair: the
// contains/translate contract of spec.md §3. BlockMask is the set of
// low bits of the effective address that vary within the block (so
// the block length is BlockMask+1, always a power of two per the
// real BAT encoding).
type BatEntry struct {
	Valid           bool
	EffectiveStart  uint32
	PhysicalStart   uint32
	BlockMask       uint32
	ValidUser       bool
	ValidSupervisor bool
}

// Contains reports whether the BAT entry covers logical address a for
// the given privilege level.
func (b BatEntry) Contains(a uint32, supervisor bool) bool {
	if !b.Valid {
		return false
	}
	if supervisor && !b.ValidSupervisor {
		return false
	}
	if !supervisor && !b.ValidUser {
		return false
	}
	return a&^b.BlockMask == b.EffectiveStart&^b.BlockMask
}

// Translate returns the physical address for logical a, assuming
// Contains(a, ...) already holds.
func (b BatEntry) Translate(a uint32) uint32 {
	within := a & b.BlockMask
	return (b.PhysicalStart &^ b.BlockMask) | within
}

// BatSet holds the four BAT pairs for one mode (instruction or data).
type BatSet [4]BatEntry

// Translate implements spec.md §4.1 translate_{data,inst}_addr: find
// the unique BAT whose effective range contains a. Multiple matching
// entries is a guest-programming error; the first match wins, mirroring
// real hardware's undefined-but-stable behavior of scanning in index
// order.
func (s BatSet) Translate(a addr.Address, supervisor bool) (addr.Address, bool) {
	for _, bat := range s {
		if bat.Contains(uint32(a), supervisor) {
			return addr.Address(bat.Translate(uint32(a))), true
		}
	}
	return 0, false
}

// CoversPage reports whether exactly one BAT entry contains the whole
// 128 KiB logical page starting at pageBase, returning that entry. Used
// by BuildLUT: a page is fastmem-eligible only when a single BAT
// unambiguously covers it, matching spec.md's "if exactly one contains
// the page" rule.
func (s BatSet) CoversPage(pageBase uint32, supervisor bool) (BatEntry, bool) {
	pageEnd := pageBase + addr.PageSize - 1
	found := false
	var match BatEntry
	for _, bat := range s {
		if !bat.Valid {
			continue
		}
		if supervisor && !bat.ValidSupervisor {
			continue
		}
		if !supervisor && !bat.ValidUser {
			continue
		}
		if bat.Contains(pageBase, supervisor) && bat.Contains(pageEnd, supervisor) {
			if found {
				// Two BATs claim the same page: ambiguous, not fastmem-eligible.
				return BatEntry{}, false
			}
			found = true
			match = bat
		}
	}
	return match, found
}
