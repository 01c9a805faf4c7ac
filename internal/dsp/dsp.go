// Package dsp implements the Gekko companion 16-bit DSP of spec.md
// §4.7: instruction/data memory, the addressing/accumulator register
// file, the lazily-populated decoded-instruction cache, interrupts,
// CPU<->DSP mailboxes, and ARAM DMA. Per spec.md §1, individual DSP
// opcode semantics are a named Non-goal (documented by the GameCube
// DSP ISA, not here); this package implements the structural pieces
// spec.md names by name.
package dsp

const (
	IRAMSize = 4 * 1024
	IROMSize = 4 * 1024
	DRAMSize = 4 * 1024
	COEFSize = 2 * 1024
)

// Interrupt numbers, per spec.md §4.7 "Interrupt taxonomy": vector is
// interrupt-number * 2. Numbering matches spec.md §8 scenario 5, which
// pins AccelRawReadOverflow to interrupt number 3.
const (
	IntReset                   Interrupt = 0
	IntStackOverflow           Interrupt = 1
	IntExternal                Interrupt = 2
	IntAccelRawReadOverflow    Interrupt = 3
	IntAccelRawWriteOverflow   Interrupt = 4
	IntAccelSampleReadOverflow Interrupt = 5
)

type Interrupt int

func (i Interrupt) Vector() uint16 { return uint16(i) * 2 }

// Status register bits.
const (
	StatusCarry          = 1 << 0
	StatusOverflow       = 1 << 1
	StatusZero           = 1 << 2
	StatusSign           = 1 << 3
	StatusAboveS32       = 1 << 4
	StatusTopTwoBitsEqual = 1 << 5
	StatusLogic          = 1 << 6
	StatusInterruptEnable = 1 << 7
)

const stackDepth = 8

// decodedInstr is one entry of the 65536-slot decoded-instruction
// cache (spec.md §4.7): "(Ins, length, main-op-fn, extension-op-fn)".
// mainOp/extOp are nil until a real opcode table is wired in; decode-
// time opcode semantics are outside this spec's scope (spec.md §1).
type decodedInstr struct {
	populated bool
	raw       uint16
	length    int
	mainOp    func(*DSP)
	extOp     func(*DSP)
}

// DSP is the complete companion-processor state.
type DSP struct {
	IRAM [IRAMSize]byte
	IROM [IROMSize]byte
	DRAM [DRAMSize]byte
	COEF [COEFSize]byte

	// Addressing/indexing/wrapping register files, four of each.
	AR [4]uint16 // addressing (current pointer)
	IX [4]uint16 // indexing (step)
	WR [4]uint16 // wrapping mask

	CallStack [stackDepth]uint16
	DataStack [stackDepth]uint16
	LoopStack [stackDepth]uint16
	callSP, dataSP, loopSP int

	Prod uint64 // product register

	// Two 40-bit accumulators (kept in the low 40 bits of uint64) and
	// two 32-bit accumulators.
	Acc40 [2]uint64
	Acc32 [2]uint32

	Status uint16
	PC     uint16

	decodeCache [65536]decodedInstr

	Mailboxes Mailboxes
	Accel     Accelerator

	Running bool
}

// New creates a DSP with IROM preloaded (typically the GameCube boot
// DSP ucode) and all other memory zeroed.
func New(irom []byte) *DSP {
	d := &DSP{}
	copy(d.IROM[:], irom)
	d.Mailboxes = NewMailboxes()
	return d
}

const acc40Mask = (1 << 40) - 1

// SetAcc40 stores v into the 40-bit accumulator idx, masking to 40 bits
// so sign-extension/overflow checks observe the hardware's actual width.
func (d *DSP) SetAcc40(idx int, v uint64) { d.Acc40[idx] = v & acc40Mask }

// decode populates (if necessary) and returns the decode-cache entry
// for the instruction word at pc. Cache entries never change once
// populated except via InvalidateIRAMDecode/SoftReset.
func (d *DSP) decode(pc uint16) *decodedInstr {
	e := &d.decodeCache[pc]
	if !e.populated {
		e.raw = d.fetchWord(pc)
		e.length = 1 // extended by a real decoder as multi-word opcodes are added
		e.populated = true
	}
	return e
}

func (d *DSP) fetchWord(pc uint16) uint16 {
	off := int(pc) * 2
	if off+1 < len(d.IRAM) {
		return uint16(d.IRAM[off])<<8 | uint16(d.IRAM[off+1])
	}
	romOff := off - len(d.IRAM)
	if romOff >= 0 && romOff+1 < len(d.IROM) {
		return uint16(d.IROM[romOff])<<8 | uint16(d.IROM[romOff+1])
	}
	return 0
}

// InvalidateIRAMDecode clears the decoded-instruction cache, required
// whenever a DSP ucode DMA overwrites IRAM (spec.md §4.7 "cleared on a
// DSP ucode DMA ... or soft reset").
func (d *DSP) InvalidateIRAMDecode() {
	for i := range d.decodeCache {
		d.decodeCache[i] = decodedInstr{}
	}
}

// SoftReset clears the decode cache and resets the register file,
// leaving IRAM/IROM/DRAM/COEF contents untouched.
func (d *DSP) SoftReset() {
	d.InvalidateIRAMDecode()
	d.AR, d.IX, d.WR = [4]uint16{}, [4]uint16{}, [4]uint16{}
	d.callSP, d.dataSP, d.loopSP = 0, 0, 0
	d.Prod = 0
	d.Acc40, d.Acc32 = [2]uint64{}, [2]uint32{}
	d.Status = 0
	d.PC = 0
}

// RaiseInterrupt implements spec.md §4.7's interrupt dispatch: "raised
// by pushing PC and status onto the call/data stacks and jumping to
// interrupt-number x 2". External and accelerator interrupts are
// gated by StatusInterruptEnable; reset and stack-overflow are not.
func (d *DSP) RaiseInterrupt(i Interrupt) bool {
	if i != IntReset && i != IntStackOverflow && d.Status&StatusInterruptEnable == 0 {
		return false
	}
	d.pushCall(d.PC)
	d.pushData(d.Status)
	d.PC = i.Vector()
	return true
}

func (d *DSP) pushCall(v uint16) {
	if d.callSP >= stackDepth {
		d.RaiseInterrupt(IntStackOverflow)
		return
	}
	d.CallStack[d.callSP] = v
	d.callSP++
}

func (d *DSP) pushData(v uint16) {
	if d.dataSP >= stackDepth {
		d.RaiseInterrupt(IntStackOverflow)
		return
	}
	d.DataStack[d.dataSP] = v
	d.dataSP++
}

// ReadAccelSample drives the audio accelerator for one sample and, on
// wrap, raises AccelRawReadOverflow exactly when StatusInterruptEnable
// is set (spec.md §8 scenario 5). The interrupt handler is expected to
// clear the condition itself by pushing SR and branching to the vector,
// which RaiseInterrupt already performs on the data/call stacks.
func (d *DSP) ReadAccelSample() int16 {
	sample, wrapped := d.Accel.ReadRawSample()
	if wrapped {
		d.RaiseInterrupt(IntAccelRawReadOverflow)
	}
	return sample
}

// Step executes one decoded instruction at PC, per the lazily-
// populated decode cache, and advances PC by the instruction's length.
// With no opcode table wired in, this only exercises the fetch/decode-
// cache path; real execution plugs mainOp/extOp into decodedInstr.
func (d *DSP) Step() {
	e := d.decode(d.PC)
	if e.mainOp != nil {
		e.mainOp(d)
	}
	if e.extOp != nil {
		e.extOp(d)
	}
	d.PC += uint16(e.length)
}
