package gx

// Action is a renderer-thread instruction emitted by register writes
// or draws (spec.md §4.9/§5): fire-and-forget except the pixel-copy
// variants, which carry a response channel the main thread may block
// on for a short timeout.
type Action struct {
	Kind ActionKind

	// SetTexEnvConfig / SetTexGenConfig / SetViewport / SetTextureMap /
	// SetScissor / SetBlendMode / SetDepthMode
	Stages      []TEVStage
	TexGens     []TexGenStage
	Viewport    Viewport
	Scissor     Scissor
	Blend       BlendMode
	Depth       DepthMode
	TexMapIndex int
	TexMap      TextureMap

	// Draw
	Topology Topology
	Vertices []Vertex
	Matrices []int

	// CopyColor / CopyDepth
	Copy     PixelCopy
	Response chan []byte
}

type ActionKind int

const (
	ActionSetTexEnvConfig ActionKind = iota
	ActionSetTexGenConfig
	ActionSetViewport
	ActionSetScissor
	ActionSetBlendMode
	ActionSetDepthMode
	ActionSetCullMode
	ActionSetTextureMap
	ActionDraw
	ActionCopyColor
	ActionCopyDepth
	ActionInvalidateVertexCache
)

// Topology enumerates the GX primitive types a Draw command selects.
type Topology int

const (
	TopologyQuads Topology = iota
	TopologyTriangles
	TopologyTriangleStrip
	TopologyTriangleFan
	TopologyLines
	TopologyLineStrip
	TopologyPoints
	TopologyTriangleList = TopologyTriangles
)

// PixelCopy describes one EFB sample-and-reformat request (spec.md
// §4.9 "Pixel copy"). DstWidth/DstHeight may differ from Width/Height:
// real hardware can copy-scale the EFB region down into a smaller XFB
// target (the deflicker/antialiasing copy path); DstWidth==Width and
// DstHeight==Height means no scaling.
type PixelCopy struct {
	SrcX, SrcY, Width, Height int
	DstWidth, DstHeight       int
	DstAddr                   uint32
	Format                    PixelFormat
	ToXFB                     bool
}

// PixelFormat enumerates the copy-destination pixel encodings GX
// supports (spec.md §4.9's "reformat"); RGBA8 is the EFB's native
// format, YUV422 is the XFB's packed macropixel format real video
// output consumes.
type PixelFormat int

const (
	FormatRGBA8 PixelFormat = iota
	FormatYUV422
	FormatDepth
)
