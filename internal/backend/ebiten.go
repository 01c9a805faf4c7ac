//go:build !headless

package backend

import (
	"image"
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/image/draw"

	"github.com/otley-systems/gekko/internal/gx"
)

// EbitenRenderer is the default renderer-thread backend (SPEC_FULL.md
// "the default renderer-thread backend: consumes gx.Action messages,
// rasterizes the XFB composite, and presents at vsync"). It owns the
// EFB/XFB images exclusively; the main thread never touches them
// directly, only through gx.Action (spec.md §5).
type EbitenRenderer struct {
	mu  sync.RWMutex
	efb *image.RGBA
	xfb *ebiten.Image

	viewport gx.Viewport
	scissor  gx.Scissor
	blend    gx.BlendMode
	depth    gx.DepthMode

	width, height int
}

// NewEbitenRenderer creates a renderer with a default 640x480 EFB,
// matching the teacher's `NewEbitenOutput` default display config.
func NewEbitenRenderer() *EbitenRenderer {
	w, h := 640, 480
	return &EbitenRenderer{
		efb:    image.NewRGBA(image.Rect(0, 0, w, h)),
		xfb:    ebiten.NewImage(w, h),
		width:  w,
		height: h,
	}
}

func (r *EbitenRenderer) Capabilities() Capabilities {
	return Capabilities{
		LogicOps:       false, // software blit approximates logic-ops via nearest blend factor
		DepthTest:      true,
		HardwareBlend:  false,
		MaxTextureSize: 1024,
	}
}

// Run drains actions until the channel closes or stop fires, applying
// each to backend state. It does not itself drive the ebiten game
// loop (Update/Draw below do, on ebiten's own goroutine); Run is for
// headless/test harnesses that want to pump actions synchronously.
func (r *EbitenRenderer) Run(actions <-chan gx.Action, stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		case a, ok := <-actions:
			if !ok {
				return nil
			}
			r.apply(a)
		}
	}
}

func (r *EbitenRenderer) Close() error { return nil }

func (r *EbitenRenderer) apply(a gx.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch a.Kind {
	case gx.ActionSetViewport:
		r.viewport = a.Viewport
	case gx.ActionSetScissor:
		r.scissor = a.Scissor
	case gx.ActionSetBlendMode:
		r.blend = a.Blend
	case gx.ActionSetDepthMode:
		r.depth = a.Depth
	case gx.ActionSetTexEnvConfig, gx.ActionSetTexGenConfig, gx.ActionSetTextureMap:
		// shader-permutation/sampler state: the software path has no
		// programmable TEV stage, so these are acknowledged but not
		// compiled into a permutation key.
	case gx.ActionInvalidateVertexCache:
	case gx.ActionDraw:
		r.rasterize(a)
	case gx.ActionCopyColor, gx.ActionCopyDepth:
		r.pixelCopy(a)
	}
}

// rasterize draws a axis-ignorant software triangle list/strip/fan
// into the EFB: flat-shaded per triangle from its first vertex's color
// (or white, absent a color attribute), with a trivial scanline fill.
// This is the "software blit" approximation SPEC_FULL.md describes for
// the ebiten backend; TEV combiner math is not evaluated per-pixel.
func (r *EbitenRenderer) rasterize(a gx.Action) {
	tris := triangleIndices(a.Topology, len(a.Vertices))
	for _, tri := range tris {
		v0, v1, v2 := a.Vertices[tri[0]], a.Vertices[tri[1]], a.Vertices[tri[2]]
		c := vertexColor(v0)
		fillTriangle(r.efb, v0.Position, v1.Position, v2.Position, c)
	}
}

func vertexColor(v gx.Vertex) color.RGBA {
	c := v.Color[0]
	if c == [4]float32{} {
		return color.RGBA{255, 255, 255, 255}
	}
	clamp := func(f float32) uint8 {
		if f < 0 {
			return 0
		}
		if f > 1 {
			return 255
		}
		return uint8(f * 255)
	}
	return color.RGBA{clamp(c[0]), clamp(c[1]), clamp(c[2]), clamp(c[3])}
}

// triangleIndices expands a topology's vertex list into flat triangle
// index triples.
func triangleIndices(t gx.Topology, n int) [][3]int {
	var out [][3]int
	switch t {
	case gx.TopologyTriangles:
		for i := 0; i+2 < n; i += 3 {
			out = append(out, [3]int{i, i + 1, i + 2})
		}
	case gx.TopologyTriangleStrip:
		for i := 0; i+2 < n; i++ {
			if i%2 == 0 {
				out = append(out, [3]int{i, i + 1, i + 2})
			} else {
				out = append(out, [3]int{i + 1, i, i + 2})
			}
		}
	case gx.TopologyTriangleFan:
		for i := 1; i+1 < n; i++ {
			out = append(out, [3]int{0, i, i + 1})
		}
	case gx.TopologyQuads:
		for i := 0; i+3 < n; i += 4 {
			out = append(out, [3]int{i, i + 1, i + 2}, [3]int{i, i + 2, i + 3})
		}
	}
	return out
}

// fillTriangle rasterizes one flat-shaded triangle in screen-space x/y
// (z ignored by this software path's depth handling) using a bounding-
// box scanline with barycentric inside-tests.
func fillTriangle(img *image.RGBA, a, b, c [3]float32, col color.RGBA) {
	minX, minY := img.Bounds().Max.X, img.Bounds().Max.Y
	maxX, maxY := 0, 0
	pts := [3][3]float32{a, b, c}
	for _, p := range pts {
		x, y := int(p[0]), int(p[1])
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}
	bounds := img.Bounds()
	if minX < bounds.Min.X {
		minX = bounds.Min.X
	}
	if minY < bounds.Min.Y {
		minY = bounds.Min.Y
	}
	if maxX >= bounds.Max.X {
		maxX = bounds.Max.X - 1
	}
	if maxY >= bounds.Max.Y {
		maxY = bounds.Max.Y - 1
	}

	sign := func(p1, p2, p3 [2]float32) float32 {
		return (p1[0]-p3[0])*(p2[1]-p3[1]) - (p2[0]-p3[0])*(p1[1]-p3[1])
	}
	pa := [2]float32{a[0], a[1]}
	pb := [2]float32{b[0], b[1]}
	pc := [2]float32{c[0], c[1]}

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			p := [2]float32{float32(x) + 0.5, float32(y) + 0.5}
			d1 := sign(p, pa, pb)
			d2 := sign(p, pb, pc)
			d3 := sign(p, pc, pa)
			hasNeg := d1 < 0 || d2 < 0 || d3 < 0
			hasPos := d1 > 0 || d2 > 0 || d3 > 0
			if !(hasNeg && hasPos) {
				img.SetRGBA(x, y, col)
			}
		}
	}
}

// pixelCopy samples the EFB for the requested rectangle, copy-scales
// it to the requested destination size if they differ (spec.md §4.9's
// deflicker/antialiasing copy path), reformats per cp.Format, and
// delivers the encoded bytes on the response channel.
func (r *EbitenRenderer) pixelCopy(a gx.Action) {
	cp := a.Copy
	src := r.efb.SubImage(image.Rect(cp.SrcX, cp.SrcY, cp.SrcX+cp.Width, cp.SrcY+cp.Height))

	dstW, dstH := cp.DstWidth, cp.DstHeight
	if dstW == 0 {
		dstW = cp.Width
	}
	if dstH == 0 {
		dstH = cp.Height
	}

	scaled := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, src.Bounds(), draw.Over, nil)

	var out []byte
	switch cp.Format {
	case gx.FormatYUV422:
		out = encodeYUV422(scaled)
	default:
		out = append([]byte(nil), scaled.Pix...)
	}

	if a.Response != nil {
		select {
		case a.Response <- out:
		default:
		}
	}
}

// encodeYUV422 packs an RGBA image into the XFB's native YUYV
// macropixel format: each pair of horizontal pixels shares one Cb/Cr
// sample (spec.md §4.9's "XFB ... packed YUV422").
func encodeYUV422(img *image.RGBA) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, 0, w*h*2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x += 2 {
			c0 := color.YCbCrModel.Convert(img.RGBAAt(b.Min.X+x, b.Min.Y+y)).(color.YCbCr)
			x1 := x + 1
			if x1 >= w {
				x1 = x
			}
			c1 := color.YCbCrModel.Convert(img.RGBAAt(b.Min.X+x1, b.Min.Y+y)).(color.YCbCr)
			avgCb := uint8((uint16(c0.Cb) + uint16(c1.Cb)) / 2)
			avgCr := uint8((uint16(c0.Cr) + uint16(c1.Cr)) / 2)
			out = append(out, c0.Y, avgCb, c1.Y, avgCr)
		}
	}
	return out
}

// Update implements ebiten.Game: no guest-driven input handling lives
// here (that is the debug console's concern); it only checks for a
// closed window.
func (r *EbitenRenderer) Update() error {
	if ebiten.IsWindowBeingClosed() {
		return ebiten.Termination
	}
	return nil
}

// Draw implements ebiten.Game: composites the EFB into the XFB image
// and presents it.
func (r *EbitenRenderer) Draw(screen *ebiten.Image) {
	r.mu.RLock()
	r.xfb.WritePixels(r.efb.Pix)
	r.mu.RUnlock()
	screen.DrawImage(r.xfb, nil)
}

func (r *EbitenRenderer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return r.width, r.height
}
