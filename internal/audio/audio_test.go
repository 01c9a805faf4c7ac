package audio

import (
	"math"
	"testing"

	"github.com/otley-systems/gekko/internal/dsp"
)

// newTestDSP returns a DSP with its accelerator configured to read
// PCM16I samples from a small ARAM buffer, for Read's conversion math.
func newTestDSP(t *testing.T, samples ...int16) *dsp.DSP {
	t.Helper()
	d := dsp.New(nil)
	aram := make([]byte, len(samples)*2)
	for i, s := range samples {
		aram[i*2] = byte(uint16(s) >> 8)
		aram[i*2+1] = byte(uint16(s))
	}
	d.Accel.Format = dsp.FormatPCM16I
	d.Accel.AttachARAM(aram)
	d.Accel.Start = 0
	d.Accel.End = uint32(len(aram))
	d.Accel.Current = 0
	return d
}

func TestPlayerReadConvertsAccelSamplesToFloat32LE(t *testing.T) {
	d := newTestDSP(t, 16384, -16384, 0)
	p := &Player{}
	p.source.Store(d)

	buf := make([]byte, 3*4)
	n, err := p.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("n = %d, want %d", n, len(buf))
	}

	want := []float32{16384.0 / 32768.0, -16384.0 / 32768.0, 0}
	for i, w := range want {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		got := math.Float32frombits(bits)
		if got != w {
			t.Errorf("sample %d = %v, want %v", i, got, w)
		}
	}
}

func TestPlayerReadWithNoSourceFillsSilence(t *testing.T) {
	p := &Player{}
	buf := make([]byte, 16)
	for i := range buf {
		buf[i] = 0xFF
	}
	n, err := p.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("n = %d, want %d", n, len(buf))
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("buf[%d] = %#x, want 0", i, b)
		}
	}
}
