//go:build !headless

package backend

import (
	"image"
	"image/color"
	"testing"

	"github.com/otley-systems/gekko/internal/gx"
)

// newTestRenderer builds an EbitenRenderer without NewEbitenRenderer,
// so tests never touch ebiten.Image (which needs a running game loop
// to back its GPU texture) and only exercise the pure-Go EFB path.
func newTestRenderer(w, h int) *EbitenRenderer {
	return &EbitenRenderer{efb: image.NewRGBA(image.Rect(0, 0, w, h)), width: w, height: h}
}

func TestRasterizeFillsFlatShadedTriangle(t *testing.T) {
	r := newTestRenderer(16, 16)
	v := func(x, y float32, col [4]float32) gx.Vertex {
		return gx.Vertex{Position: [3]float32{x, y, 0}, Color: [2][4]float32{col, {}}}
	}
	red := [4]float32{1, 0, 0, 1}
	r.apply(gx.Action{
		Kind:     gx.ActionDraw,
		Topology: gx.TopologyTriangles,
		Vertices: []gx.Vertex{v(2, 2, red), v(12, 2, red), v(2, 12, red)},
	})

	got := r.efb.RGBAAt(4, 4)
	want := color.RGBA{255, 0, 0, 255}
	if got != want {
		t.Errorf("interior pixel = %+v, want %+v", got, want)
	}
	outside := r.efb.RGBAAt(0, 0)
	if outside != (color.RGBA{}) {
		t.Errorf("outside pixel = %+v, want zero value", outside)
	}
}

func TestPixelCopyScalesAndReturnsRGBA8(t *testing.T) {
	r := newTestRenderer(8, 8)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			r.efb.SetRGBA(x, y, color.RGBA{10, 20, 30, 255})
		}
	}

	resp := make(chan []byte, 1)
	r.apply(gx.Action{
		Kind: gx.ActionCopyColor,
		Copy: gx.PixelCopy{Width: 4, Height: 4, DstWidth: 4, DstHeight: 4, Format: gx.FormatRGBA8},
		Response: resp,
	})

	out := <-resp
	if len(out) != 4*4*4 {
		t.Fatalf("len(out) = %d, want %d", len(out), 4*4*4)
	}
	if out[0] != 10 || out[1] != 20 || out[2] != 30 || out[3] != 255 {
		t.Errorf("out[0:4] = %v, want [10 20 30 255]", out[0:4])
	}
}

func TestPixelCopyYUV422HalvesChromaColumns(t *testing.T) {
	r := newTestRenderer(4, 1)
	r.efb.SetRGBA(0, 0, color.RGBA{255, 255, 255, 255})
	r.efb.SetRGBA(1, 0, color.RGBA{255, 255, 255, 255})

	resp := make(chan []byte, 1)
	r.apply(gx.Action{
		Kind:     gx.ActionCopyColor,
		Copy:     gx.PixelCopy{Width: 2, Height: 1, DstWidth: 2, DstHeight: 1, Format: gx.FormatYUV422},
		Response: resp,
	})

	out := <-resp
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4 (one YUYV macropixel)", len(out))
	}
	// White in, white out: luma should be near-maximal for both samples.
	if out[0] < 250 || out[2] < 250 {
		t.Errorf("luma samples = %d, %d, want both near 255", out[0], out[2])
	}
}

func TestTriangleIndicesQuads(t *testing.T) {
	tris := triangleIndices(gx.TopologyQuads, 4)
	want := [][3]int{{0, 1, 2}, {0, 2, 3}}
	if len(tris) != len(want) {
		t.Fatalf("len(tris) = %d, want %d", len(tris), len(want))
	}
	for i := range want {
		if tris[i] != want[i] {
			t.Errorf("tris[%d] = %v, want %v", i, tris[i], want[i])
		}
	}
}
