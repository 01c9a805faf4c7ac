package jit

// Signal is the per-instruction action of spec.md §4.4: each lowered
// instruction returns one of these, determining block termination.
type Signal int

const (
	// Continue: ordinary arithmetic, PC already auto-incremented.
	Continue Signal = iota
	// FlushAndEpilogue: flush the register window then end the block
	// (e.g. sync, isync, unimplemented-with-ignore).
	FlushAndEpilogue
	// Epilogue: end the block without an explicit flush step (the
	// caller still flushes once at Run's end; this exists so lowering
	// routines can distinguish "I already flushed myself" from
	// "nothing to flush" in diagnostics).
	Epilogue
	// Finish: a branch/syscall/control-flow instruction that sets PC
	// explicitly and terminates the block.
	Finish
)

// Op is one compiled step: a closure over the runtime Ctx and the
// current invocation's register window. This is the "host code" a
// Block's Code field holds a slice of (DESIGN.md Open Question #1).
type Op func(ctx *Ctx, w *RegisterWindow) Signal
