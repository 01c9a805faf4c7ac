package jit

import (
	"bufio"
	"encoding/gob"
	"hash/fnv"
	"os"

	"golang.org/x/sys/unix"

	"github.com/otley-systems/gekko/internal/addr"
	"github.com/otley-systems/gekko/internal/mem"
)

// DiskKey identifies one compiled-block artifact for persisted reuse
// across runs (spec.md §4.4 "Cache keying": host-ISA-fingerprint,
// codegen-settings-hash, guest-instruction-sequence-hash; spec.md §6
// "Persisted state").
type DiskKey struct {
	ISA          string
	SettingsHash uint64
	Start        uint32
	SeqHash      uint64
}

// diskArtifact is what actually gets persisted. Compiled closures are
// not serializable, so what survives a restart is the raw guest
// instruction sequence the block was built from (DESIGN.md Open
// Question #1): on a hit, Compiler.Compile re-lowers those words
// directly rather than re-fetching them from guest memory, which is
// the closure-chain model's equivalent of "reapplying relocations".
type diskArtifact struct {
	Key   DiskKey
	Words []uint32
}

// DiskCache is an append-only file of (key, artifact) records, guarded
// by an advisory file lock so concurrent writers (e.g. a background
// precompilation pass) never interleave partial gob records.
type DiskCache struct {
	path string
}

// NewDiskCache opens (creating if absent) the artifact file at path.
func NewDiskCache(path string) (*DiskCache, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, err
	}
	f.Close()
	return &DiskCache{path: path}, nil
}

// SequenceHash fingerprints a sequence of raw instruction words for use
// as DiskKey.SeqHash.
func SequenceHash(words []uint32) uint64 {
	h := fnv.New64a()
	buf := make([]byte, 4)
	for _, w := range words {
		buf[0] = byte(w >> 24)
		buf[1] = byte(w >> 16)
		buf[2] = byte(w >> 8)
		buf[3] = byte(w)
		h.Write(buf)
	}
	return h.Sum64()
}

// Lookup scans the artifact file for a matching key, returning the
// persisted instruction words on a hit. The file is read lock-free:
// readers tolerate a torn trailing record from a concurrent writer by
// stopping at the first decode error.
func (d *DiskCache) Lookup(key DiskKey) ([]uint32, bool) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	dec := gob.NewDecoder(bufio.NewReader(f))
	for {
		var art diskArtifact
		if err := dec.Decode(&art); err != nil {
			return nil, false
		}
		if art.Key == key {
			return art.Words, true
		}
	}
}

// Store appends one artifact record, holding an exclusive advisory
// lock for the duration of the write so two processes compiling the
// same cache directory never corrupt each other's records.
func (d *DiskCache) Store(key DiskKey, words []uint32) error {
	f, err := os.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return err
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	enc := gob.NewEncoder(f)
	return enc.Encode(diskArtifact{Key: key, Words: words})
}

// wordFetcher replays a persisted instruction-word sequence as a
// Fetcher, letting Compiler.Compile rebuild the closure chain from a
// disk-cache hit without touching guest memory.
type wordFetcher struct {
	start addr.Address
	words []uint32
}

func (w wordFetcher) Fetch(a addr.Address) (uint32, *mem.Fault) {
	idx := (uint32(a) - uint32(w.start)) / 4
	if a < w.start || int(idx) >= len(w.words) {
		return 0, &mem.Fault{Access: addr.Instruction, Address: a}
	}
	return w.words[idx], nil
}

// CompileFromWords rebuilds a CompiledBlock from a persisted
// instruction-word sequence, the disk-cache-hit path: no guest-memory
// fetch occurs, only re-lowering.
func (c *Compiler) CompileFromWords(start addr.Address, words []uint32) (*CompiledBlock, error) {
	return c.Compile(wordFetcher{start: start, words: words}, start, len(words))
}
