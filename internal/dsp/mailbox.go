package dsp

// Mailbox is a 31-bit word with a status bit (spec.md §3/§4.7/§8
// "DSP mailbox read-clears-status"). Status occupies bit 31 of the
// 32-bit MMIO-visible register; the low 31 bits carry the payload.
type Mailbox struct {
	value  uint32
	status bool
}

const mailboxStatusBit = 1 << 31

// Set writes a new payload and raises status, as the writing side does
// when it has a fresh word for the other side to consume.
func (m *Mailbox) Set(v uint32) {
	m.value = v & (mailboxStatusBit - 1)
	m.status = true
}

// Read returns the full 32-bit register value (status bit | payload)
// and, per spec.md §8's invariant, clears status as a side effect: "the
// data word of a mailbox whose status is full clears the status;
// reading again yields status empty".
func (m *Mailbox) Read() uint32 {
	v := uint32(0)
	if m.status {
		v = mailboxStatusBit
	}
	v |= m.value
	m.status = false
	return v
}

// Peek returns the current register value without clearing status,
// for diagnostics and for the JIT's mailbox-poll pattern to observe
// status without consuming it (the guest code itself performs the
// status check via an ordinary load, which does consume it on real
// hardware too — Peek exists only for host-side introspection).
func (m *Mailbox) Peek() uint32 {
	v := uint32(0)
	if m.status {
		v = mailboxStatusBit
	}
	return v | m.value
}

// Full reports whether the mailbox currently holds an unread word.
func (m *Mailbox) Full() bool { return m.status }

// Mailboxes holds both directions of the CPU<->DSP channel.
type Mailboxes struct {
	CPUToDSP Mailbox
	DSPToCPU Mailbox
}

// NewMailboxes creates an empty (status-clear) mailbox pair.
func NewMailboxes() Mailboxes { return Mailboxes{} }

// StatusOffsets returns the MMIO byte offsets (relative to the DSP
// register block) whose value jit.NewMailboxPollPredicate should treat
// as a status word, so the JIT's idle-loop classifier can recognize
// Nintendo's SDK mailbox-poll idiom without the jit package needing to
// know DSP register layout (spec.md §1).
func StatusOffsets(cpuToDSPHiOffset, dspToCPUHiOffset uint32) map[uint32]bool {
	return map[uint32]bool{
		cpuToDSPHiOffset: true,
		dspToCPUHiOffset: true,
	}
}
