package gx

import (
	"golang.org/x/sync/semaphore"
)

// maxArenaBytes bounds the working memory a single Draw command's
// vertex extraction may claim before it is handed off as an Action
// (spec.md §5's bounded-resource model, generalized from the Action
// channel itself to the extraction arena that feeds it).
const maxArenaBytes = 4 << 20

// Processor is the GX Command Processor + Register File of spec.md
// §4.8/§4.9: FIFO consumption, opcode parsing, CP/BP/XF register
// banks, and the dirty-flag-driven translation of register state into
// backend Actions.
type Processor struct {
	PI FIFO // Processor Interface FIFO, the bus endpoint
	CP FIFO // Command Processor's own ring, mirrored from PI in linked mode

	queue []byte // in-process byte queue drained from the ring

	cp cpBank
	bp bpBank
	xf xfBank

	matrices MatrixSet

	// FinishRaised / TokenRaised latch until cleared by the interrupt
	// handler's acknowledgement, terminating the processing loop per
	// spec.md §4.8 "(b) a finish interrupt was just raised, or (c) a
	// token interrupt was raised".
	FinishRaised bool
	TokenRaised  bool

	Actions chan Action

	arena      *semaphore.Weighted
	arenaBytes int64
}

// NewProcessor creates a Processor with the given Actions channel
// capacity (spec.md §5 "a separate thread receives Action messages
// over a bounded channel").
func NewProcessor(actionBuffer int) *Processor {
	return &Processor{
		Actions:    make(chan Action, actionBuffer),
		arena:      semaphore.NewWeighted(maxArenaBytes),
		arenaBytes: maxArenaBytes,
	}
}

// Kick mirrors spec.md §4.10's "CP FIFO pointer writes -> kick
// consume": pull whatever is newly queued in guest RAM into the
// in-process byte queue.
func (p *Processor) Kick(src RAMSource) {
	fifo := &p.PI
	if p.CP.Linked {
		fifo = &p.CP
	}
	b := fifo.Consume(src, 1<<16)
	p.queue = append(p.queue, b...)
}

// Process runs the CP processing loop (spec.md §4.8 "Processing
// loop"): repeatedly parses and dispatches commands, stopping when the
// parser under-runs, a finish interrupt fires, or a token interrupt
// fires. Returns the number of commands dispatched.
func (p *Processor) Process(src RAMSource) int {
	n := 0
	for {
		if p.FinishRaised || p.TokenRaised {
			return n
		}
		cmd, consumed := parseCommand(p.queue, &p.cp)
		if cmd == nil {
			return n
		}
		p.queue = p.queue[consumed:]
		p.dispatch(cmd, src)
		n++
	}
}

func (p *Processor) dispatch(cmd *Command, src RAMSource) {
	switch cmd.Kind {
	case CmdNop:
	case CmdInvalidateVertexCache:
		p.emit(Action{Kind: ActionInvalidateVertexCache})
	case CmdCall:
		if b, ok := src.ReadBytes(cmd.CallAddr, int(cmd.CallLen)); ok {
			p.queue = append(p.queue, b...)
		}
	case CmdSetCP:
		p.setCP(cmd.Reg, cmd.Val)
	case CmdSetBP:
		p.setBP(cmd.Reg, cmd.Val)
	case CmdSetXF:
		p.setXF(cmd.XFStart, cmd.XFValues)
	case CmdIndexedSetXF:
		p.indexedSetXF(cmd.XFBank, cmd.XFBase, cmd.XFLength, cmd.XFIndex)
	case CmdDraw:
		p.draw(cmd, src)
	}
}

// emit is a non-blocking best-effort send: a full Actions channel
// means the renderer thread is behind, and GX register-write ordering
// must never stall on it (spec.md §5 "Each action is fire-and-forget").
func (p *Processor) emit(a Action) {
	select {
	case p.Actions <- a:
	default:
	}
}

// flush represents spec.md §4.9's "decides whether to flush the
// pending draw (interrupting batched state)" — Gekko's draws are
// synchronous per-command (no batching across Process() calls), so a
// flush is a no-op placeholder kept for the registers that name one in
// the spec, should batching be added later.
func (p *Processor) flush(reg registerID) {
	if flushPending(reg) {
		// no batched draw state to interrupt in this implementation
	}
}

func (p *Processor) setCP(reg uint8, val uint32) {
	p.flush(RegVertexDescriptor)
	switch {
	case reg == 0x50:
		p.cp.Descriptor = decodeVCD(val)
	case reg >= 0x60 && reg < 0x60+numAttrs:
		idx := int(reg - 0x60)
		p.cp.Arrays[idx].Base = val
	case reg >= 0x70 && reg < 0x70+numAttrs:
		idx := int(reg - 0x70)
		p.cp.Arrays[idx].Stride = val
	}
}

// decodeVCD unpacks the vertex descriptor bitfield: 2 bits per
// attribute slot, AttrMode values 0-3 in slot order, low bits first.
func decodeVCD(val uint32) VertexDescriptor {
	var vcd VertexDescriptor
	for i := 0; i < numAttrs; i++ {
		vcd.Mode[i] = AttrMode((val >> uint(2*i)) & 0x3)
	}
	return vcd
}

func (p *Processor) setBP(reg uint8, val uint32) {
	if reg != 0x40 {
		// any other BP write consumes the sticky write-mask.
		defer func() { p.bp.WriteMask = 0xFFFFFF }()
	}
	switch {
	case reg >= 0x00 && reg < 0x10:
		p.flush(RegTEVStage)
		idx := int(reg)
		if idx < len(p.bp.Stages) {
			p.bp.Stages[idx].CompareOp = int(val & 0x7)
			if idx+1 > p.bp.NumStages {
				p.bp.NumStages = idx + 1
			}
		}
		p.bp.stagesDirty = true
	case reg == 0x20:
		p.flush(RegScissor)
		p.bp.Scissor.Left = int(val>>24) & 0xFF
		p.bp.Scissor.Top = int(val>>16) & 0xFF
		p.bp.Scissor.Right = int(val>>8) & 0xFF
		p.bp.Scissor.Bottom = int(val) & 0xFF
		p.emit(Action{Kind: ActionSetScissor, Scissor: p.bp.Scissor})
	case reg == 0x21:
		p.flush(RegBlendMode)
		p.bp.Blend.Enabled = val&1 != 0
		p.bp.Blend.SrcFactor = int(val>>1) & 0x7
		p.bp.Blend.DstFactor = int(val>>4) & 0x7
		p.emit(Action{Kind: ActionSetBlendMode, Blend: p.bp.Blend})
	case reg == 0x22:
		p.flush(RegDepthMode)
		p.bp.Depth.TestEnable = val&1 != 0
		p.bp.Depth.WriteEnable = val&2 != 0
		p.bp.Depth.Func = int(val>>2) & 0x7
		p.emit(Action{Kind: ActionSetDepthMode, Depth: p.bp.Depth})
	case reg >= 0x30 && reg < 0x38:
		idx := int(reg - 0x30)
		p.bp.TexMaps[idx].Width = int(val & 0x3FF)
		p.bp.TexMaps[idx].Height = int((val >> 10) & 0x3FF)
		p.bp.texMapDirty[idx] = true
	case reg == 0x40:
		// sticky write-mask: reset by the next write to another BP register.
		p.bp.WriteMask = val & 0xFFFFFF
	}
}

func (p *Processor) setXF(start uint16, values []uint32) {
	p.flush(RegViewport)
	for i, v := range values {
		reg := int(start) + i
		switch {
		case reg == 0:
			p.xf.Viewport.X = asFloat32(v)
			p.xf.viewportDirty = true
		case reg == 1:
			p.xf.Viewport.Y = asFloat32(v)
			p.xf.viewportDirty = true
		case reg == 2:
			p.xf.Viewport.Width = asFloat32(v)
			p.xf.viewportDirty = true
		case reg == 3:
			p.xf.Viewport.Height = asFloat32(v)
			p.xf.viewportDirty = true
		case reg >= 0x10 && reg < 0x10+len(p.xf.Projection.Params):
			p.xf.Projection.Params[reg-0x10] = asFloat32(v)
		case reg == 0x10+len(p.xf.Projection.Params):
			p.xf.Projection.Orthographic = v != 0
		}
	}
}

func asFloat32(bits uint32) float32 {
	return decodeComponent([]byte{byte(bits >> 24), byte(bits >> 16), byte(bits >> 8), byte(bits)}, 0, FormatF32, 0)
}

// indexedSetXF dispatches an indirect XF write, used for per-vertex
// matrix table uploads (spec.md §4.8 IndexedSetXF{bank,base,length,
// index}). TexGen stages are bank 1; light parameters would occupy
// further banks were they modelled beyond their TexGen/viewport
// surface.
func (p *Processor) indexedSetXF(bank uint8, base, length, index uint16) {
	if bank != 1 {
		return
	}
	slot := int(base) % len(p.xf.TexGen)
	p.xf.TexGen[slot].Source = int(index)
	p.xf.TexGen[slot].MatrixIdx = int(length)
	p.xf.texGenDirty = true
}

// draw consumes the stagesDirty/texGenDirty/viewportDirty/texMapDirty
// flags before extracting vertices and emitting one Draw action,
// exactly spec.md §4.9's "before the next draw the flag is consumed
// and a SetTexEnvConfig action regenerates the backend's shader
// permutation key. Similar dirty flags exist for TexGen, viewport, and
// each texture map."
func (p *Processor) draw(cmd *Command, src RAMSource) {
	if p.bp.stagesDirty {
		p.bp.stagesDirty = false
		p.emit(Action{Kind: ActionSetTexEnvConfig, Stages: append([]TEVStage(nil), p.bp.Stages[:p.bp.NumStages]...)})
	}
	if p.xf.texGenDirty {
		p.xf.texGenDirty = false
		p.emit(Action{Kind: ActionSetTexGenConfig, TexGens: append([]TexGenStage(nil), p.xf.TexGen[:]...)})
	}
	if p.xf.viewportDirty {
		p.xf.viewportDirty = false
		p.emit(Action{Kind: ActionSetViewport, Viewport: p.xf.Viewport})
	}
	for i := range p.bp.texMapDirty {
		if p.bp.texMapDirty[i] {
			p.bp.texMapDirty[i] = false
			p.emit(Action{Kind: ActionSetTextureMap, TexMapIndex: i, TexMap: p.bp.TexMaps[i]})
		}
	}

	var matrices MatrixSet
	count := cmd.Count
	if need := int64(count * perVertexSize(p.cp.Descriptor, p.cp.Tables[cmd.VATIndex])); need > 0 {
		if ok := p.arena.TryAcquire(need); ok {
			defer p.arena.Release(need)
		} else {
			// Extraction would exceed the arena's byte budget: clamp to
			// what the budget allows rather than stalling the CP thread.
			perVertex := need / int64(count)
			if perVertex > 0 {
				count = int(p.arenaBytes / perVertex)
			}
		}
	}
	vertices := extractVertices(cmd.Stream, count, p.cp.Descriptor, p.cp.Tables[cmd.VATIndex], p.cp.Arrays, src, &matrices)
	p.matrices = matrices

	p.emit(Action{
		Kind:     ActionDraw,
		Topology: cmd.Topology,
		Vertices: vertices,
		Matrices: matrices.Indices(),
	})
}

// PixelCopyRequest issues a synchronous EFB sample-and-reformat
// (spec.md §4.9 "Pixel copy"): the response channel is filled by the
// renderer thread; the main thread blocks on it up to the caller's
// timeout via the returned channel.
func (p *Processor) PixelCopyRequest(copy PixelCopy) chan []byte {
	resp := make(chan []byte, 1)
	kind := ActionCopyColor
	if copy.Format == FormatDepth {
		kind = ActionCopyDepth
	}
	p.emit(Action{Kind: kind, Copy: copy, Response: resp})
	return resp
}
