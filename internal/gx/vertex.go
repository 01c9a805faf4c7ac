package gx

import "math"

// AttrMode is how a single vertex attribute is encoded in the FIFO
// vertex stream, per the Vertex Descriptor (spec.md §4.8).
type AttrMode int

const (
	AttrNone AttrMode = iota
	AttrDirect
	AttrIndex8
	AttrIndex16
)

// ComponentFormat is one Vertex Attribute Table entry's wire encoding.
type ComponentFormat int

const (
	FormatU8 ComponentFormat = iota
	FormatI8
	FormatU16
	FormatI16
	FormatF32
)

func (f ComponentFormat) size() int {
	switch f {
	case FormatU8, FormatI8:
		return 1
	case FormatU16, FormatI16:
		return 2
	case FormatF32:
		return 4
	default:
		return 0
	}
}

// Attribute index constants, matching the CP's array-base/stride and
// VCD/VAT attribute ordering (spec.md §4.9 "Command (CP)").
const (
	AttrPosMatIdx = iota
	AttrTexMatIdx0
	AttrPosition
	AttrNormal
	AttrColor0
	AttrColor1
	AttrTex0
	AttrTex1
	AttrTex2
	AttrTex3
	AttrTex4
	AttrTex5
	AttrTex6
	AttrTex7
	numAttrs
)

// VertexDescriptor selects, per attribute slot, whether it is absent,
// embedded directly in the stream, or indexed into an external array
// (spec.md §4.8 "Vertex-attribute stream").
type VertexDescriptor struct {
	Mode [numAttrs]AttrMode
}

// VATEntry describes one attribute's wire format in the Vertex
// Attribute Table: component count, per-component format, and a
// fixed-point shift applied to integer formats (ignored for F32).
type VATEntry struct {
	Components int
	Format      ComponentFormat
	Shift       uint
}

func (v VATEntry) byteSize() int { return v.Components * v.Format.size() }

// VAT is one of the eight Vertex Attribute Tables (VAT0..VAT7,
// selected by the opcode's low 3 bits).
type VAT struct {
	Attr [numAttrs]VATEntry
}

// ArrayBinding is one CP array-base/stride register pair, used to
// resolve Index8/Index16 attributes against guest RAM.
type ArrayBinding struct {
	Base   uint32
	Stride uint32
}

// Vertex is one decoded vertex: a 3-component position, a 3-component
// normal, up to two RGBA colors, and up to eight 2-component texture
// coordinates. Matrix indices a draw references are collected into a
// MatrixSet, not stored per vertex.
type Vertex struct {
	Position   [3]float32
	Normal     [3]float32
	Color      [2][4]float32
	TexCoord   [8][2]float32
}

// MatrixSet is the fixed 96-bit (64 position + 32 normal) bit-array
// set of spec.md §9 "Matrix set for vertex streams": membership test
// and increasing-order iteration, no allocation per insert.
type MatrixSet struct {
	bits [2]uint64 // bits[0] = indices 0..63, bits[1] = indices 64..95
}

func (s *MatrixSet) Add(idx int) {
	if idx < 0 || idx >= 96 {
		return
	}
	if idx < 64 {
		s.bits[0] |= 1 << uint(idx)
	} else {
		s.bits[1] |= 1 << uint(idx-64)
	}
}

func (s *MatrixSet) Has(idx int) bool {
	if idx < 0 || idx >= 96 {
		return false
	}
	if idx < 64 {
		return s.bits[0]&(1<<uint(idx)) != 0
	}
	return s.bits[1]&(1<<uint(idx-64)) != 0
}

// Indices returns the set's members in increasing order.
func (s *MatrixSet) Indices() []int {
	var out []int
	for i := 0; i < 64; i++ {
		if s.bits[0]&(1<<uint(i)) != 0 {
			out = append(out, i)
		}
	}
	for i := 0; i < 32; i++ {
		if s.bits[1]&(1<<uint(i)) != 0 {
			out = append(out, i+64)
		}
	}
	return out
}

// perVertexSize computes the byte span one vertex occupies in the
// FIFO stream: direct attributes contribute their VAT byte size,
// indexed attributes contribute 1 (Index8) or 2 (Index16) bytes of
// index, absent attributes contribute nothing (spec.md §4.8 "computes
// per-vertex size from the current Vertex Descriptor and Vertex
// Attribute Table").
func perVertexSize(vcd VertexDescriptor, vat VAT) int {
	n := 0
	for i := 0; i < numAttrs; i++ {
		switch vcd.Mode[i] {
		case AttrDirect:
			n += vat.Attr[i].byteSize()
		case AttrIndex8:
			n++
		case AttrIndex16:
			n += 2
		}
	}
	return n
}

// decodeComponent reads one component of the given format from buf at
// off and scales fixed-point formats by 2^-shift.
func decodeComponent(buf []byte, off int, f ComponentFormat, shift uint) float32 {
	switch f {
	case FormatU8:
		return float32(buf[off]) / float32(uint(1)<<shift)
	case FormatI8:
		return float32(int8(buf[off])) / float32(uint(1)<<shift)
	case FormatU16:
		return float32(be16(buf[off:])) / float32(uint(1)<<shift)
	case FormatI16:
		return float32(int16(be16(buf[off:]))) / float32(uint(1)<<shift)
	case FormatF32:
		return math.Float32frombits(be32(buf[off:]))
	default:
		return 0
	}
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// extractVertices parses count vertices out of stream per vcd/vat,
// resolving indexed attributes against arrays via src, and records
// every referenced position/texture matrix index into matrices.
func extractVertices(stream []byte, count int, vcd VertexDescriptor, vat VAT, arrays [numAttrs]ArrayBinding, src RAMSource, matrices *MatrixSet) []Vertex {
	size := perVertexSize(vcd, vat)
	out := make([]Vertex, 0, count)
	for i := 0; i < count; i++ {
		base := i * size
		if base+size > len(stream) {
			break
		}
		v := decodeVertex(stream[base:base+size], vcd, vat, arrays, src)
		out = append(out, v)

		if vcd.Mode[AttrPosMatIdx] != AttrNone {
			idx := int(indexValue(stream[base:base+size], vcd, vat, AttrPosMatIdx))
			matrices.Add(idx)
		}
		if vcd.Mode[AttrTexMatIdx0] != AttrNone {
			idx := int(indexValue(stream[base:base+size], vcd, vat, AttrTexMatIdx0))
			matrices.Add(64 + idx%32)
		}
	}
	return out
}

// indexValue reads the raw index/matrix-selector byte(s) for one
// attribute slot out of one vertex's stream span, without resolving
// it against an array (used for matrix-index attributes, which are
// always small direct or Index8 selectors, never array-backed floats).
func indexValue(vtx []byte, vcd VertexDescriptor, vat VAT, attr int) uint32 {
	off := fieldOffset(vcd, vat, attr)
	switch vcd.Mode[attr] {
	case AttrDirect:
		if vat.Attr[attr].Format.size() == 1 {
			return uint32(vtx[off])
		}
		return uint32(be16(vtx[off:]))
	case AttrIndex8:
		return uint32(vtx[off])
	case AttrIndex16:
		return uint32(be16(vtx[off:]))
	default:
		return 0
	}
}

// fieldOffset returns attr's byte offset within one vertex's span,
// summing the sizes of every preceding present attribute in slot order.
func fieldOffset(vcd VertexDescriptor, vat VAT, attr int) int {
	off := 0
	for i := 0; i < attr; i++ {
		switch vcd.Mode[i] {
		case AttrDirect:
			off += vat.Attr[i].byteSize()
		case AttrIndex8:
			off++
		case AttrIndex16:
			off += 2
		}
	}
	return off
}

func decodeVertex(vtx []byte, vcd VertexDescriptor, vat VAT, arrays [numAttrs]ArrayBinding, src RAMSource) Vertex {
	var v Vertex
	readXYZ := func(attr int, dst *[3]float32) {
		if vcd.Mode[attr] == AttrNone {
			return
		}
		data, ok := attrBytes(vtx, vcd, vat, arrays, src, attr)
		if !ok {
			return
		}
		e := vat.Attr[attr]
		for c := 0; c < e.Components && c < 3; c++ {
			dst[c] = decodeComponent(data, c*e.Format.size(), e.Format, e.Shift)
		}
	}
	readVec2 := func(attr int, dst *[2]float32) {
		if vcd.Mode[attr] == AttrNone {
			return
		}
		data, ok := attrBytes(vtx, vcd, vat, arrays, src, attr)
		if !ok {
			return
		}
		e := vat.Attr[attr]
		for c := 0; c < e.Components && c < 2; c++ {
			dst[c] = decodeComponent(data, c*e.Format.size(), e.Format, e.Shift)
		}
	}

	readXYZ(AttrPosition, &v.Position)
	readXYZ(AttrNormal, &v.Normal)
	readVec2(AttrTex0, &v.TexCoord[0])
	for t := 1; t < 8; t++ {
		readVec2(AttrTex0+t, &v.TexCoord[t])
	}
	return v
}

// attrBytes returns the raw component bytes for attr, resolving
// Index8/Index16 through the attribute's array binding when indexed.
func attrBytes(vtx []byte, vcd VertexDescriptor, vat VAT, arrays [numAttrs]ArrayBinding, src RAMSource, attr int) ([]byte, bool) {
	off := fieldOffset(vcd, vat, attr)
	e := vat.Attr[attr]
	size := e.byteSize()

	switch vcd.Mode[attr] {
	case AttrDirect:
		if off+size > len(vtx) {
			return nil, false
		}
		return vtx[off : off+size], true
	case AttrIndex8, AttrIndex16:
		idx := indexValue(vtx, vcd, vat, attr)
		bind := arrays[attr]
		addr := bind.Base + idx*bind.Stride
		return src.ReadBytes(addr, size)
	default:
		return nil, false
	}
}
