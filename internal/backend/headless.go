//go:build headless

package backend

import "github.com/otley-systems/gekko/internal/gx"

// HeadlessRenderer drains gx.Action without touching any GPU/window
// API, for CI and automated testing (mirrors the teacher's
// HeadlessVideoOutput build-tag split).
type HeadlessRenderer struct {
	frameCount uint64
}

func NewHeadlessRenderer() *HeadlessRenderer { return &HeadlessRenderer{} }

func (h *HeadlessRenderer) Capabilities() Capabilities {
	return Capabilities{LogicOps: true, DepthTest: true, HardwareBlend: true, MaxTextureSize: 4096}
}

func (h *HeadlessRenderer) Run(actions <-chan gx.Action, stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		case a, ok := <-actions:
			if !ok {
				return nil
			}
			if a.Kind == gx.ActionDraw {
				h.frameCount++
			}
			if a.Response != nil {
				select {
				case a.Response <- nil:
				default:
				}
			}
		}
	}
}

func (h *HeadlessRenderer) Close() error { return nil }
