package gx

import (
	"encoding/binary"
	"math"
	"testing"

	"golang.org/x/sync/semaphore"
)

// fakeRAM backs RAMSource with a flat byte slice, addressed directly
// (no guest physical-map translation — tests only need byte access).
type fakeRAM []byte

func (f fakeRAM) ReadBytes(addr uint32, n int) ([]byte, bool) {
	if int(addr)+n > len(f) {
		return nil, false
	}
	return f[addr : int(addr)+n], true
}

func beF32(v float32) uint32 { return math.Float32bits(v) }

// TestCPDrawExtraction implements spec.md §8 scenario 6 exactly:
// VertexDescriptor{position: Direct, tex_coord[0]: Index8}, VAT0
// {position: Vec3/F32/shift=0, tex0: Vec2/I16/shift=7}, a
// DrawTriangleList with count=3 reading 3*(12+1)=39 bytes, whose
// vertex 0 has the big-endian F32 position at bytes[0:12] and
// tex_coords[0] resolved through the Index8 -> tex0 array indirection
// to bytes[13:17] (s at [13:15], t at [15:17]), scaled by 2^-7.
func TestCPDrawExtraction(t *testing.T) {
	p := NewProcessor(8)
	p.cp.Descriptor.Mode[AttrPosition] = AttrDirect
	p.cp.Descriptor.Mode[AttrTex0] = AttrIndex8
	p.cp.Tables[0].Attr[AttrPosition] = VATEntry{Components: 3, Format: FormatF32, Shift: 0}
	p.cp.Tables[0].Attr[AttrTex0] = VATEntry{Components: 2, Format: FormatI16, Shift: 7}
	p.cp.Arrays[AttrTex0] = ArrayBinding{Base: 13, Stride: 4}

	buf := make([]byte, 39)
	binary.BigEndian.PutUint32(buf[0:4], beF32(1.0))
	binary.BigEndian.PutUint32(buf[4:8], beF32(2.0))
	binary.BigEndian.PutUint32(buf[8:12], beF32(3.0))
	buf[12] = 0 // tex0 index for vertex 0 -> array slot 0 -> addr 13
	binary.BigEndian.PutUint16(buf[13:15], uint16(int16(256))) // s raw
	binary.BigEndian.PutUint16(buf[15:17], uint16(int16(128))) // t raw

	opByte := byte((opDrawBase+int(TopologyTriangleList))<<3) | 0 // VAT0
	cmd := append([]byte{opByte}, 0, 3) // count=3 (BE16)
	cmd = append(cmd, buf...)
	src := fakeRAM(buf)

	p.queue = cmd
	n := p.Process(src)
	if n != 1 {
		t.Fatalf("Process() dispatched %d commands, want 1", n)
	}

	select {
	case a := <-p.Actions:
		if a.Kind != ActionDraw {
			t.Fatalf("action kind = %v, want ActionDraw", a.Kind)
		}
		if a.Topology != TopologyTriangleList {
			t.Fatalf("topology = %v, want TriangleList", a.Topology)
		}
		if len(a.Vertices) != 3 {
			t.Fatalf("got %d vertices, want 3", len(a.Vertices))
		}
		v0 := a.Vertices[0]
		if v0.Position != [3]float32{1.0, 2.0, 3.0} {
			t.Errorf("position = %v, want (1,2,3)", v0.Position)
		}
		wantS := float32(256) / 128.0
		wantT := float32(128) / 128.0
		if v0.TexCoord[0][0] != wantS || v0.TexCoord[0][1] != wantT {
			t.Errorf("tex0 = %v, want (%v,%v)", v0.TexCoord[0], wantS, wantT)
		}
	default:
		t.Fatal("expected one action on the channel")
	}
}

// TestFIFOParserTransactionality implements spec.md §8's invariant:
// "on under-run the queue's read position is restored; a retry with
// more bytes produces the same command."
func TestFIFOParserTransactionality(t *testing.T) {
	var cp cpBank
	full := []byte{byte(opCall << 3), 0, 0, 0, 0x10, 0, 0, 0, 0x04}

	// Short queue: only the opcode byte, no operands yet.
	cmd, consumed := parseCommand(full[:1], &cp)
	if cmd != nil {
		t.Fatalf("expected under-run with only the opcode byte, got %+v", cmd)
	}
	if consumed != 0 {
		t.Fatalf("consumed = %d on under-run, want 0", consumed)
	}

	// Full queue: same command, now complete.
	cmd, consumed = parseCommand(full, &cp)
	if cmd == nil {
		t.Fatal("expected a parsed command with the full queue")
	}
	if cmd.Kind != CmdCall || cmd.CallAddr != 0x10 || cmd.CallLen != 0x04 {
		t.Fatalf("got %+v, want Call{addr=0x10,len=0x04}", cmd)
	}
	if consumed != len(full) {
		t.Fatalf("consumed = %d, want %d", consumed, len(full))
	}
}

func TestMatrixSetOrderedIteration(t *testing.T) {
	var s MatrixSet
	s.Add(5)
	s.Add(70)
	s.Add(0)
	s.Add(63)

	got := s.Indices()
	want := []int{0, 5, 63, 70}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestTEVAlphaTestNoop(t *testing.T) {
	s := TEVStage{CompareOp: 7}
	if !s.alphaTestNoop() {
		t.Fatal("CompareOp=GX_ALWAYS should be a noop alpha test")
	}
	s.CompareOp = 3
	if s.alphaTestNoop() {
		t.Fatal("a non-trivial compare op should not be a noop alpha test")
	}
}

// TestDrawClampsToArenaBudget verifies a Draw whose vertex stream would
// exceed the extraction arena's byte budget is clamped to the count
// the budget allows, rather than extracting the full requested count.
func TestDrawClampsToArenaBudget(t *testing.T) {
	p := NewProcessor(8)
	p.cp.Descriptor.Mode[AttrPosition] = AttrDirect
	p.cp.Tables[0].Attr[AttrPosition] = VATEntry{Components: 3, Format: FormatF32, Shift: 0}

	const perVertex = 12 // 3 components * 4 bytes (F32)
	const requested = 100
	p.arenaBytes = perVertex * 10
	p.arena = semaphore.NewWeighted(p.arenaBytes) // budget for only 10 vertices

	cmd := &Command{
		Kind:     CmdDraw,
		Topology: TopologyTriangles,
		VATIndex: 0,
		Count:    requested,
		Stream:   make([]byte, requested*perVertex),
	}
	p.draw(cmd, fakeRAM(nil))

	select {
	case a := <-p.Actions:
		if a.Kind != ActionDraw {
			t.Fatalf("got action kind %v, want ActionDraw", a.Kind)
		}
		if len(a.Vertices) != 10 {
			t.Fatalf("len(Vertices) = %d, want 10 (clamped to the arena budget)", len(a.Vertices))
		}
	default:
		t.Fatal("expected a Draw action on the channel")
	}
}
