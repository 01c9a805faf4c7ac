// Package audio implements the DSP audio output sink: an oto/v3
// player that pulls accelerator samples from a running dsp.DSP,
// converting its 16-bit PCM into the float32 stream oto expects.
package audio

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"

	"github.com/otley-systems/gekko/internal/dsp"
)

// Player owns an oto context/player pair and reads accelerator samples
// from the attached DSP on oto's pull callback, mirroring the
// teacher's OtoPlayer/SoundChip split: the player is a passive Reader,
// the DSP (here, dsp.DSP) is the lock-free sample source.
type Player struct {
	ctx    *oto.Context
	player *oto.Player

	source atomic.Pointer[dsp.DSP]

	mu      sync.Mutex
	started bool
}

// NewPlayer opens an oto context at sampleRate, mono float32, matching
// the teacher's NewOtoPlayer configuration.
func NewPlayer(sampleRate int) (*Player, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   4,
	})
	if err != nil {
		return nil, err
	}
	<-ready
	return &Player{ctx: ctx}, nil
}

// Attach sets the DSP this player pulls accelerator samples from,
// replacing any previous source. Safe to call while playing.
func (p *Player) Attach(d *dsp.DSP) {
	p.source.Store(d)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player == nil {
		p.player = p.ctx.NewPlayer(p)
	}
}

// Read implements io.Reader for oto: each call drives the attached
// DSP's accelerator for len(p)/4 samples (oto's pull model is the
// DSP's sample clock), converting each int16 accelerator sample to a
// float32 in [-1, 1].
func (p *Player) Read(buf []byte) (int, error) {
	d := p.source.Load()
	n := len(buf) / 4
	if d == nil {
		for i := range buf {
			buf[i] = 0
		}
		return len(buf), nil
	}
	for i := 0; i < n; i++ {
		sample := d.ReadAccelSample()
		f := float32(sample) / 32768.0
		bits := math.Float32bits(f)
		buf[i*4+0] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return n * 4, nil
}

func (p *Player) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started && p.player != nil {
		p.player.Play()
		p.started = true
	}
}

func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started && p.player != nil {
		p.player.Close()
		p.started = false
	}
}

func (p *Player) Close() error {
	p.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player != nil {
		return p.player.Close()
	}
	return nil
}
