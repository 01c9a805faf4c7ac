package dsp

// SampleFormat enumerates the accelerator's supported sample encodings
// (spec.md §4.7 "Audio accelerator").
type SampleFormat int

const (
	FormatPCM8U SampleFormat = iota
	FormatPCM8I
	FormatPCM16U
	FormatPCM16I
	FormatFloat32
	FormatADPCM
)

func (f SampleFormat) bytesPerSample() int {
	switch f {
	case FormatPCM8U, FormatPCM8I:
		return 1
	case FormatPCM16U, FormatPCM16I:
		return 2
	case FormatFloat32:
		return 4
	default:
		return 0 // ADPCM is frame-based, handled separately
	}
}

// Accelerator is the ARAM-backed audio sample reader of spec.md §4.7:
// auto-incrementing current pointer with wrap-on-end, optional
// coefficient-based ADPCM decode, a gain/input register pair, and two
// saved previous samples for prediction.
//
// ARAM-accelerator wrap handling follows DESIGN.md's Open Question #2:
// the non-workaround path. A known Disney Cars compatibility hack
// partially disables the overflow interrupt on wrap in the original
// source; it is not implemented here since it cannot be verified
// without the game to test against.
type Accelerator struct {
	Start, End, Current uint32
	Format               SampleFormat

	Gain  uint16
	Input uint16

	// Prev[0] is the most recent decoded sample, Prev[1] the one before
	// it — ADPCM prediction needs both.
	Prev [2]int16

	// ADPCM coefficient table: 8 pairs of (a, b) predictor coefficients,
	// indexed by the 4-bit coefficient index in each frame header.
	Coef [8][2]int16

	aram []byte
}

// AttachARAM points the accelerator at its backing store (spec.md's
// ARAM, a separate address space from DSP DRAM).
func (a *Accelerator) AttachARAM(aram []byte) { a.aram = aram }

// advance moves Current forward by n bytes, wrapping to Start when it
// reaches End (spec.md §8 scenario 5).
func (a *Accelerator) advance(n uint32) (wrapped bool) {
	a.Current += n
	if a.Current >= a.End {
		a.Current = a.Start + (a.Current - a.End)
		wrapped = true
	}
	return wrapped
}

// ReadRawSample reads and decodes the next sample per the configured
// format, advancing Current and reporting whether the read wrapped
// past End. ADPCM frames are 16 samples preceded by one coefficient-
// index+scale header byte; non-ADPCM formats read bytesPerSample().
func (a *Accelerator) ReadRawSample() (sample int16, wrapped bool) {
	if a.Format == FormatADPCM {
		return a.readADPCMSample()
	}

	n := uint32(a.Format.bytesPerSample())
	off := a.Current
	sample = a.decodeLinear(off)
	wrapped = a.advance(n)
	a.Prev[1] = a.Prev[0]
	a.Prev[0] = sample
	return sample, wrapped
}

func (a *Accelerator) decodeLinear(off uint32) int16 {
	if int(off)+int(a.Format.bytesPerSample()) > len(a.aram) {
		return 0
	}
	switch a.Format {
	case FormatPCM8U:
		return int16(a.aram[off]) - 128
	case FormatPCM8I:
		return int16(int8(a.aram[off]))
	case FormatPCM16U:
		return int16(uint16(a.aram[off])<<8 | uint16(a.aram[off+1]))
	case FormatPCM16I:
		return int16(uint16(a.aram[off])<<8 | uint16(a.aram[off+1]))
	case FormatFloat32:
		v := uint32(a.aram[off])<<24 | uint32(a.aram[off+1])<<16 | uint32(a.aram[off+2])<<8 | uint32(a.aram[off+3])
		return int16(int32(v) >> 16)
	default:
		return 0
	}
}

// readADPCMSample decodes one coefficient-based ADPCM nibble using the
// two saved previous samples for prediction (spec.md §4.7). Frame
// headers (one per 16 samples) are not modelled nibble-accurately here
// since exact ADPCM bitstream semantics are ISA-level detail outside
// this spec's scope (spec.md §1); what is modelled is the structural
// contract: coefficient selection, prediction from Prev, and wrap.
func (a *Accelerator) readADPCMSample() (int16, bool) {
	if int(a.Current) >= len(a.aram) {
		return 0, a.advance(1)
	}
	header := a.aram[a.Current]
	coefIdx := header >> 4 & 0x7
	scale := header & 0xF

	nibbleOff := a.Current + 1
	wrapped := a.advance(1)
	var nibble int8
	if int(nibbleOff) < len(a.aram) {
		nibble = int8(a.aram[nibbleOff]<<4) >> 4
	}

	c1, c2 := a.Coef[coefIdx][0], a.Coef[coefIdx][1]
	predicted := (int32(c1)*int32(a.Prev[0]) + int32(c2)*int32(a.Prev[1])) >> 11
	sample := predicted + int32(nibble)<<scale

	if sample > 32767 {
		sample = 32767
	} else if sample < -32768 {
		sample = -32768
	}

	a.Prev[1] = a.Prev[0]
	a.Prev[0] = int16(sample)
	return int16(sample), wrapped
}
