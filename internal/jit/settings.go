// Package jit implements the template-based PowerPC-to-host-closure
// compiler of spec.md §4.4: a typed IR, a register cache, memory
// fast/slow dispatch, block linking, and a disk-backed artifact cache.
package jit

// Settings are the host-configurable knobs of spec.md §6 "Host
// configuration" that change observable guest CPU behavior.
type Settings struct {
	// InstrPerBlock is the default block instruction ceiling.
	InstrPerBlock int
	// NopSyscalls rewrites `sc` to a no-op rather than a real syscall
	// exception.
	NopSyscalls bool
	// ForceFPU omits the MSR-FP-available guard before FPU ops.
	ForceFPU bool
	// IgnoreUnimplemented turns unknown opcodes into stubs emitting
	// Flush+Epilogue instead of aborting the block build.
	IgnoreUnimplemented bool
	// RoundToSingle performs vectorised demote-then-promote rounding
	// on paired-single arithmetic results.
	RoundToSingle bool
	// CachePath is an optional filesystem directory for compiled-
	// artifact reuse across runs (spec.md §6 "cache_path").
	CachePath string
}

// DefaultSettings matches DESIGN.md's Open Question #3: fixed values
// so tests are deterministic.
func DefaultSettings() Settings {
	return Settings{
		InstrPerBlock:       256,
		NopSyscalls:         false,
		ForceFPU:            false,
		IgnoreUnimplemented: false,
		RoundToSingle:       true,
	}
}

// Hash returns a stable fingerprint of the settings that affect
// codegen, used as part of the cache key (spec.md §4.4 "Cache
// keying").
func (s Settings) Hash() uint64 {
	var h uint64 = 1469598103934665603 // FNV-1a offset basis
	mix := func(b bool, bit uint64) {
		if b {
			h ^= bit
			h *= 1099511628211
		}
	}
	mix(s.NopSyscalls, 1<<0)
	mix(s.ForceFPU, 1<<1)
	mix(s.IgnoreUnimplemented, 1<<2)
	mix(s.RoundToSingle, 1<<3)
	h ^= uint64(s.InstrPerBlock)
	h *= 1099511628211
	return h
}

// ISAFingerprint identifies the host code-generation strategy version,
// so a disk cache from an older Gekko build is never reused against a
// newer closure-chain layout (spec.md §4.4 "Cache keying": "(host-ISA-
// fingerprint, codegen-settings-hash, guest-instruction-sequence-
// hash)"). Gekko's "host ISA" is the closure-chain representation
// itself (DESIGN.md Open Question #1), so this is a format version
// rather than a literal CPU architecture tag.
const ISAFingerprint = "gekko-closure-v1"
