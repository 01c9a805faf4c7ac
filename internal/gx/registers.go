package gx

// TEVStage is one Texture Environment stage's color/alpha combiner
// configuration (spec.md §4.9 "TEV stages with per-stage color/alpha
// ops"). Inputs A-D select prior stage output, a constant, or a
// texture/raster sample; CompareOp backs the alpha-test comparison
// variants.
type TEVStage struct {
	ColorIn   [4]int
	AlphaIn   [4]int
	ColorBias int
	ColorScale int
	AlphaBias int
	AlphaScale int
	ColorClamp bool
	AlphaClamp bool
	ColorOut  int
	AlphaOut  int
	CompareOp int
}

// alphaTestNoop reports whether the stage's comparison trivially
// always passes, letting the backend omit the discard branch (spec.md
// §8 "TEV noop alpha test").
func (s TEVStage) alphaTestNoop() bool {
	const cmpAlways = 7 // GX_ALWAYS
	return s.CompareOp == cmpAlways
}

// TexGenStage is one Texture Coordinate Generation stage: a base
// generator plus an optional post-transform (spec.md §4.9 "eight
// TexGen stages (base+post)").
type TexGenStage struct {
	Source     int
	MatrixIdx  int
	PostMatrix int
	Projective bool
}

// Viewport is the XF viewport geometry: origin, extent, and near/far
// depth range.
type Viewport struct {
	X, Y, Width, Height float32
	NearZ, FarZ         float32
}

// Scissor is the BP scissor rectangle (spec.md §4.9 "top-left +
// bottom-right + offset").
type Scissor struct {
	Left, Top, Right, Bottom int
	XOff, YOff               int
}

// BlendMode is the BP blend configuration: eight source and eight
// destination factors plus a logic-op fallback table entry.
type BlendMode struct {
	Enabled  bool
	SrcFactor, DstFactor int
	LogicOp  int
	UseLogicOp bool
}

// DepthMode is the BP depth-test/write configuration.
type DepthMode struct {
	TestEnable  bool
	WriteEnable bool
	Func        int
}

// TextureMap is one of the eight BP texture map slots: sampler state,
// scaling, LOD range, and CLUT selection.
type TextureMap struct {
	Width, Height int
	WrapS, WrapT  int
	MinFilter, MagFilter int
	MinLOD, MaxLOD float32
	LODBias       float32
	CLUTFormat    int
	CLUTBase      uint32
	ImageBase     uint32
	ImageFormat   int
}

// ProjectionMatrix is the XF projection register block: six
// parameters plus an orthographic flag (spec.md §4.9).
type ProjectionMatrix struct {
	Params        [6]float32
	Orthographic  bool
}

// xfBank is the Transform Unit register bank (spec.md §4.9
// "Transform (XF)").
type xfBank struct {
	Projection ProjectionMatrix
	Viewport   Viewport
	TexGen     [8]TexGenStage

	viewportDirty bool
	texGenDirty   bool
}

// bpBank is the pixel/texture/TEV back-end register bank (spec.md
// §4.9 "Back-end (BP)").
type bpBank struct {
	Stages    [16]TEVStage
	NumStages int
	Constants [4][4]float32

	Scissor   Scissor
	Depth     DepthMode
	Blend     BlendMode
	TexMaps   [8]TextureMap

	// WriteMask is the 24-bit color/alpha/Z write mask. Sticky: set by
	// BP register 0x40 and reset to all-enabled by the next write to any
	// other BP register (spec.md §4.9). Its bits are not applied to the
	// value of that write.
	WriteMask uint32

	stagesDirty  bool
	texMapDirty  [8]bool
}

// cpBank is the command-processor-private register bank: vertex
// descriptor, vertex attribute tables, and per-attribute array
// base/stride (spec.md §4.9 "Command (CP)").
type cpBank struct {
	Descriptor VertexDescriptor
	Tables     [8]VAT
	Arrays     [numAttrs]ArrayBinding
}

// flushPending reports whether a register write of the given kind
// must flush any batched draw state before applying (spec.md §4.9 "On
// every write, the subsystem decides whether to flush the pending
// draw"). Writes that only affect the *next* draw (TEV/TexGen/texture
// map contents, array bindings) don't need a flush; writes that change
// state a draw already in flight depends on (viewport, scissor,
// blend/depth mode, the vertex descriptor itself) do.
func flushPending(reg registerID) bool {
	switch reg {
	case RegViewport, RegScissor, RegBlendMode, RegDepthMode, RegVertexDescriptor:
		return true
	default:
		return false
	}
}

// registerID names a logical register within one of the three banks,
// independent of its raw MMIO/CP offset (spec.md §4.8's opcode parser
// maps raw SetCP/SetBP/SetXF offsets down to these before dispatch).
type registerID int

const (
	RegViewport registerID = iota
	RegScissor
	RegBlendMode
	RegDepthMode
	RegVertexDescriptor
	RegTEVStage
	RegTexGenStage
	RegTextureMap
	RegArrayBinding
	RegTEVConstant
	RegWriteMask
	RegProjection
)
