package dsp

import "testing"

func TestMailboxReadClearsStatus(t *testing.T) {
	var m Mailbox
	m.Set(0x1234)
	if !m.Full() {
		t.Fatal("expected Full after Set")
	}
	v := m.Read()
	if v&mailboxStatusBit == 0 {
		t.Fatal("first read should observe status bit set")
	}
	if m.Full() {
		t.Fatal("status should be clear after one read")
	}
	v2 := m.Read()
	if v2&mailboxStatusBit != 0 {
		t.Fatal("second read should observe status bit clear")
	}
}

func TestAcceleratorWrapRaisesInterruptWhenEnabled(t *testing.T) {
	aram := make([]byte, 0x2000)
	d := New(nil)
	d.Accel.AttachARAM(aram)
	d.Accel.Start = 0x1000
	d.Accel.End = 0x1010
	d.Accel.Current = 0x100E
	d.Accel.Format = FormatPCM16U
	d.Status = StatusInterruptEnable

	var lastWrapped bool
	for i := 0; i < 4; i++ {
		_, wrapped := d.Accel.ReadRawSample()
		if wrapped {
			lastWrapped = true
			d.RaiseInterrupt(IntAccelRawReadOverflow)
		}
	}
	if !lastWrapped {
		t.Fatal("expected the pointer to wrap within 4 two-byte reads of a 16-byte window starting 2 bytes from the end")
	}
	if d.Accel.Current < d.Accel.Start || d.Accel.Current >= d.Accel.End {
		t.Errorf("Current = %#x, want within [%#x, %#x)", d.Accel.Current, d.Accel.Start, d.Accel.End)
	}
	if d.PC != IntAccelRawReadOverflow.Vector() {
		t.Errorf("PC = %#x, want interrupt vector %#x", d.PC, IntAccelRawReadOverflow.Vector())
	}
}

func TestAcceleratorWrapSuppressedWhenDisabled(t *testing.T) {
	aram := make([]byte, 0x2000)
	d := New(nil)
	d.Accel.AttachARAM(aram)
	d.Accel.Start = 0x1000
	d.Accel.End = 0x1010
	d.Accel.Current = 0x100E
	d.Accel.Format = FormatPCM16U
	d.Status = 0 // interrupt-enable bit clear

	ok := d.RaiseInterrupt(IntAccelRawReadOverflow)
	if ok {
		t.Fatal("RaiseInterrupt should report false when the interrupt-enable bit is clear")
	}
	if d.PC != 0 {
		t.Errorf("PC should be unchanged when the interrupt is suppressed, got %#x", d.PC)
	}
}

func TestDMAIntoIRAMInvalidatesDecodeCache(t *testing.T) {
	d := New(nil)
	d.decode(0) // populate slot 0
	if !d.decodeCache[0].populated {
		t.Fatal("expected slot 0 populated before DMA")
	}

	aram := make([]byte, 0x1000)
	d.DMA(aram, 0, TargetIMEM, DirARAMToDSP, 0, 16)

	if d.decodeCache[0].populated {
		t.Fatal("expected decode cache cleared after a ucode DMA into IRAM")
	}
}
