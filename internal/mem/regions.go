package mem

// Physical address map, spec.md §6 "Guest contract".
const (
	RAMBase  = 0x0000_0000
	RAMSize  = 0x0180_0000 // 24 MiB
	L2Base   = 0xE000_0000
	L2Size   = 0x0020_0000 // 2 MiB, matches the §2 component-share figure
	MMIOBase = 0x0C00_0000
	MMIOSize = 0x0001_0000 // 64 KiB window; only the low 16 KiB per §2/§6 is populated
	IPLBase  = 0xFFF0_0000
	IPLSize  = 0x0008_0000 // 512 KiB, matches the external-interface address window
)

// regionKind distinguishes how a physical region behaves on access.
type regionKind int

const (
	regionRAM regionKind = iota
	regionL2
	regionMMIO
	regionIPL
)

// region describes one physical address-space window.
type region struct {
	kind      regionKind
	base      uint32
	size      uint32
	fastmem   bool // directly host-backable: plain storage, no side effects
	writeable bool
}

var physicalRegions = []region{
	{kind: regionRAM, base: RAMBase, size: RAMSize, fastmem: true, writeable: true},
	{kind: regionMMIO, base: MMIOBase, size: MMIOSize, fastmem: false, writeable: true},
	{kind: regionL2, base: L2Base, size: L2Size, fastmem: true, writeable: true},
	{kind: regionIPL, base: IPLBase, size: IPLSize, fastmem: true, writeable: false},
}

// findRegion returns the physical region containing physical address
// a, or ok=false if the address is unmapped.
func findRegion(a uint32) (region, bool) {
	for _, r := range physicalRegions {
		if a >= r.base && a < r.base+r.size {
			return r, true
		}
	}
	return region{}, false
}

// fastmemEligible reports whether the physical range [start, start+len)
// lies entirely within a single fastmem-eligible region. IPL is
// directly mappable for reads but is excluded from fastmem because
// the LUT carries no read-only bit; instruction fetches dominate IPL
// traffic and go through the icache mirror instead (§4.6), so the
// restriction costs nothing in practice and keeps the fastmem
// invariant ("every LUT entry is load- and store-capable") simple.
func fastmemEligible(start, length uint32) (region, bool) {
	r, ok := findRegion(start)
	if !ok || !r.fastmem || r.kind == regionIPL {
		return region{}, false
	}
	end := start + length - 1
	if end < r.base || end >= r.base+r.size {
		return region{}, false
	}
	return r, true
}
