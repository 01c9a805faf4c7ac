// Package backend implements the renderer thread of spec.md §5: a
// separate goroutine that owns backend GPU state, consumes gx.Action
// messages over a bounded channel, and answers pixel-copy requests.
package backend

import "github.com/otley-systems/gekko/internal/gx"

// Capabilities reports what a backend can do natively. The GX
// processor does not consult it: every action is emitted regardless
// of the attached backend's capabilities.
type Capabilities struct {
	LogicOps       bool
	DepthTest      bool
	HardwareBlend  bool
	MaxTextureSize int
}

// Renderer is the contract every backend implements: consume actions
// from a channel until it is closed or the stop signal fires, and
// report what it supports.
type Renderer interface {
	Capabilities() Capabilities
	Run(actions <-chan gx.Action, stop <-chan struct{}) error
	Close() error
}
