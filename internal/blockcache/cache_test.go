package blockcache

import (
	"testing"

	"github.com/otley-systems/gekko/internal/addr"
)

// scenario 3 from spec.md §8: block invalidation via guest store.
func TestInvalidationCompleteness(t *testing.T) {
	c := New()
	b := &Block{Length: 64, InstructionCount: 16}
	start := addr.Address(0x8010_0000)
	c.Insert(true, start, b)

	linker := &Block{Length: 4}
	slot := &LinkSlot{Linked: true, Successor: "host-ptr-to-B"}
	linker.Links = nil
	b.Links = append(b.Links, slot)

	if _, ok := c.Get(true, start); !ok {
		t.Fatal("expected block present before invalidation")
	}

	c.Invalidate(true, start.Add(0x20))

	if _, ok := c.Get(true, start); ok {
		t.Fatal("expected mapping removed after invalidation")
	}
	if slot.Linked {
		t.Fatal("expected link slot unlinked after invalidation")
	}
	if slot.Successor != nil {
		t.Fatal("expected link slot successor cleared")
	}
}

func TestInvalidationOutsideExtentLeavesBlock(t *testing.T) {
	c := New()
	b := &Block{Length: 64}
	start := addr.Address(0x8010_0000)
	c.Insert(true, start, b)

	// Same 4 KiB page but outside the block's 64-byte extent.
	c.Invalidate(true, start.Add(0x800))

	if _, ok := c.Get(true, start); !ok {
		t.Fatal("expected block to survive an over-approximated page hit outside its extent")
	}
}

func TestLogicalAndPhysicalIndependent(t *testing.T) {
	c := New()
	b := &Block{Length: 16}
	logical := addr.Address(0x8000_0000)
	physical := addr.Address(0x0000_0000)
	c.Insert(true, logical, b)
	c.Insert(false, physical, b)

	c.Invalidate(false, physical)

	if _, ok := c.Get(false, physical); ok {
		t.Fatal("expected physical mapping removed")
	}
	if _, ok := c.Get(true, logical); !ok {
		t.Fatal("logical mapping must be independent of physical invalidation")
	}
}

func TestClearFlushesEverything(t *testing.T) {
	c := New()
	c.Insert(true, 0x1000, &Block{Length: 4})
	c.Insert(false, 0x2000, &Block{Length: 4})
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected 0 blocks after clear, got %d", c.Len())
	}
	if _, ok := c.Get(true, 0x1000); ok {
		t.Fatal("expected logical mapping cleared")
	}
	if _, ok := c.Get(false, 0x2000); ok {
		t.Fatal("expected physical mapping cleared")
	}
}
