// Package blockcache stores compiled blocks keyed by guest start
// address, dual-indexed by logical and physical space, with
// page-granularity dependency tracking for invalidation (spec.md §4.3).
package blockcache

import (
	"github.com/otley-systems/gekko/internal/addr"
)

// BlockID indexes into the cache's storage array. Blocks are never
// reclaimed individually, only en masse via Clear.
type BlockID int

// LinkSlot is a mutable cell at the tail of a compiled block. It holds
// either nothing ("unlinked") or a reference to a successor block,
// per spec.md §4.4's link-slot design and §9's back-reference
// discussion. The JIT owns the slot's Successor field's concrete
// payload type (an opaque value, e.g. a closure pointer); the cache
// only needs to know how to blank it on invalidation.
type LinkSlot struct {
	Linked    bool
	Successor any
	Pattern   TerminatorPattern
}

// TerminatorPattern classifies how a compiled block ends, driving link-
// following heuristics (spec.md §3 "Block").
type TerminatorPattern int

const (
	FallThrough TerminatorPattern = iota
	BranchToRegister
	DirectJump
	Call
	IdleBasic
	IdleVolatileRead
	MailboxStatusPoll
)

// Block is the compiled artifact for one guest basic block.
type Block struct {
	ID              BlockID
	StartLogical    addr.Address
	StartPhysical   addr.Address
	Length          uint32 // bytes spanned by the guest instruction sequence
	InstructionCount int
	Cycles          int
	Terminator      TerminatorPattern
	Code            any // the compiled closure chain (internal/jit owns the concrete type)
	Links           []*LinkSlot
}

type mapping struct {
	id     BlockID
	length uint32
}

// Cache implements the dual-indexed, dependency-tracked block store.
type Cache struct {
	blocks []*Block

	logicalMap  map[addr.Address]mapping
	physicalMap map[addr.Address]mapping

	// depLogical/depPhysical: 4 KiB page index -> set of block start
	// addresses whose body overlaps that page (spec.md §3).
	depLogical  map[uint32]map[addr.Address]bool
	depPhysical map[uint32]map[addr.Address]bool
}

// New creates an empty block cache.
func New() *Cache {
	return &Cache{
		logicalMap:  make(map[addr.Address]mapping),
		physicalMap: make(map[addr.Address]mapping),
		depLogical:  make(map[uint32]map[addr.Address]bool),
		depPhysical: make(map[uint32]map[addr.Address]bool),
	}
}

func (c *Cache) tables(logical bool) (map[addr.Address]mapping, map[uint32]map[addr.Address]bool) {
	if logical {
		return c.logicalMap, c.depLogical
	}
	return c.physicalMap, c.depPhysical
}

// Insert implements spec.md §4.3 insert(logical?, addr, block):
// allocates a fresh BlockID, records the mapping, and marks every 4
// KiB page spanned by [addr, addr+length) as depending on addr.
func (c *Cache) Insert(logical bool, start addr.Address, block *Block) BlockID {
	block.ID = BlockID(len(c.blocks))
	c.blocks = append(c.blocks, block)

	m, dep := c.tables(logical)
	m[start] = mapping{id: block.ID, length: block.Length}

	firstPage := start.DepPageIndex()
	lastPage := start.Add(maxUint32(block.Length, 1) - 1).DepPageIndex()
	for p := firstPage; p <= lastPage; p++ {
		if dep[p] == nil {
			dep[p] = make(map[addr.Address]bool)
		}
		dep[p][start] = true
	}
	return block.ID
}

func maxUint32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// Get implements spec.md §4.3 get(logical?, addr): O(1) mapping
// lookup returning the block and whether it was found.
func (c *Cache) Get(logical bool, start addr.Address) (*Block, bool) {
	m, _ := c.tables(logical)
	mp, ok := m[start]
	if !ok {
		return nil, false
	}
	return c.blocks[mp.id], true
}

// Invalidate implements spec.md §4.3 invalidate(logical?, target): page-
// granularity over-approximation followed by an exact-extent check,
// removing matching mappings and unlinking every slot that pointed at
// the removed block (the invalidation-completeness invariant of §8).
func (c *Cache) Invalidate(logical bool, target addr.Address) {
	m, dep := c.tables(logical)
	page := target.DepPageIndex()
	starts, ok := dep[page]
	if !ok {
		return
	}
	var toRemove []addr.Address
	for start := range starts {
		mp, ok := m[start]
		if !ok {
			continue
		}
		if uint32(target) >= uint32(start) && uint32(target) < uint32(start)+maxUint32(mp.length, 1) {
			toRemove = append(toRemove, start)
		}
	}
	for _, start := range toRemove {
		c.removeMapping(logical, start)
	}
}

func (c *Cache) removeMapping(logical bool, start addr.Address) {
	m, dep := c.tables(logical)
	mp, ok := m[start]
	if !ok {
		return
	}
	block := c.blocks[mp.id]
	delete(m, start)

	firstPage := start.DepPageIndex()
	lastPage := start.Add(maxUint32(block.Length, 1) - 1).DepPageIndex()
	for p := firstPage; p <= lastPage; p++ {
		if dep[p] != nil {
			delete(dep[p], start)
			if len(dep[p]) == 0 {
				delete(dep, p)
			}
		}
	}

	for _, slot := range block.Links {
		slot.Linked = false
		slot.Successor = nil
	}
}

// Clear implements spec.md §4.3 clear(): flush every mapping and every
// dependency, used on BAT change or cache-flush hints. Storage for
// already-allocated Block values is dropped too (blocks are never
// reclaimed individually, but Clear is a scorched-earth reset of the
// whole cache, including the backing array).
func (c *Cache) Clear() {
	c.blocks = nil
	c.logicalMap = make(map[addr.Address]mapping)
	c.physicalMap = make(map[addr.Address]mapping)
	c.depLogical = make(map[uint32]map[addr.Address]bool)
	c.depPhysical = make(map[uint32]map[addr.Address]bool)
}

// Len returns the number of blocks inserted since the last Clear,
// including ones since invalidated (for diagnostics/tests).
func (c *Cache) Len() int { return len(c.blocks) }
