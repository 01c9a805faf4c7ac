// Package addr defines the guest address types shared across the
// memory, block-cache, and JIT packages.
package addr

// Address is a 32-bit guest address. Two kinds exist depending on
// context: Logical (as seen by guest code, pre-BAT) and Physical
// (post-translation). The wrapper type exists so the two spaces are
// never silently mixed at call sites.
type Address uint32

// Kind distinguishes logical from physical address spaces. BAT lookup
// and fastmem tables are partitioned by Kind, and separately again by
// whether the access is an instruction fetch or a data access.
type Kind int

const (
	Logical Kind = iota
	Physical
)

func (k Kind) String() string {
	if k == Logical {
		return "logical"
	}
	return "physical"
}

// Access distinguishes instruction fetch from data access, since BAT
// translation and MSR guard bits differ between the two.
type Access int

const (
	Data Access = iota
	Instruction
)

func (a Access) String() string {
	if a == Data {
		return "data"
	}
	return "instruction"
}

// PageShift is the fastmem LUT granularity: 128 KiB logical pages.
const PageShift = 17

// PageSize is 1<<PageShift.
const PageSize = 1 << PageShift

// PageIndex returns the fastmem LUT slot for a.
func (a Address) PageIndex() uint32 {
	return uint32(a) >> PageShift
}

// PageOffset returns the byte offset of a within its 128 KiB page.
func (a Address) PageOffset() uint32 {
	return uint32(a) & (PageSize - 1)
}

// DepPage is the 4 KiB block-cache dependency-tracking granularity.
const DepPageShift = 12
const DepPageSize = 1 << DepPageShift

// DepPageIndex returns the 4 KiB page index used by the block cache's
// dependency sets.
func (a Address) DepPageIndex() uint32 {
	return uint32(a) >> DepPageShift
}

// Add returns a+delta, wrapping at 32 bits as guest arithmetic does.
func (a Address) Add(delta uint32) Address {
	return Address(uint32(a) + delta)
}
