package gx

// CommandKind tags the GX command union of spec.md §4.8: "{Nop,
// InvalidateVertexCache, Call{addr,len}, SetCP{reg,val}, SetBP{reg,val},
// SetXF{start,values}, IndexedSetXF{bank,base,length,index},
// Draw{topology, vertex-attribute-stream}}".
type CommandKind int

const (
	CmdNop CommandKind = iota
	CmdInvalidateVertexCache
	CmdCall
	CmdSetCP
	CmdSetBP
	CmdSetXF
	CmdIndexedSetXF
	CmdDraw
)

// Command is one decoded GX FIFO command.
type Command struct {
	Kind CommandKind

	CallAddr, CallLen uint32

	Reg uint8
	Val uint32

	XFStart  uint16
	XFValues []uint32

	XFBank   uint8
	XFBase   uint16
	XFLength uint16
	XFIndex  uint16

	VATIndex int
	Topology Topology
	Count    int
	Stream   []byte
}

// Opcode layout, per spec.md §4.8: "each command is a single opcode
// byte where the low 3 bits are the vertex-attribute-table index and
// the high 5 are the operation".
const (
	opNop                    = 0
	opInvalidateVertexCache  = 1
	opCall                   = 2
	opLoadCP                 = 3
	opIndexedLoadXF          = 4
	opLoadXF                 = 5
	opLoadBP                 = 6
	opDrawBase               = 16 // ops 16..23 select Topology(op-16)
)

// parseCommand attempts one full command out of queue using a
// transactional reader (spec.md §9 "Transactional FIFO reader"): on
// under-run it returns (nil, 0) and the caller must not advance its
// own cursor, so a retry once more bytes arrive reproduces the same
// command. cp supplies the vertex descriptor/VAT needed to size
// Draw*'s bulk read.
func parseCommand(queue []byte, cp *cpBank) (*Command, int) {
	if len(queue) == 0 {
		return nil, 0
	}
	r := newReader(queue)
	opByte := r.readByte()
	if !r.ok() {
		return nil, 0
	}
	op := opByte >> 3
	vat := int(opByte & 0x7)

	var cmd Command
	switch {
	case op == opNop:
		cmd.Kind = CmdNop
	case op == opInvalidateVertexCache:
		cmd.Kind = CmdInvalidateVertexCache
	case op == opCall:
		cmd.Kind = CmdCall
		cmd.CallAddr = r.readBE32()
		cmd.CallLen = r.readBE32()
	case op == opLoadCP:
		cmd.Kind = CmdSetCP
		cmd.Reg = r.readByte()
		cmd.Val = r.readBE32()
	case op == opLoadBP:
		cmd.Kind = CmdSetBP
		packed := r.readBE32()
		cmd.Reg = uint8(packed >> 24)
		cmd.Val = packed & 0x00FFFFFF
	case op == opLoadXF:
		cmd.Kind = CmdSetXF
		lengthMinus1 := r.readBE16()
		cmd.XFStart = r.readBE16()
		n := int(lengthMinus1) + 1
		cmd.XFValues = make([]uint32, 0, n)
		for i := 0; i < n; i++ {
			cmd.XFValues = append(cmd.XFValues, r.readBE32())
		}
	case op == opIndexedLoadXF:
		cmd.Kind = CmdIndexedSetXF
		cmd.XFBank = r.readByte()
		cmd.XFBase = r.readBE16()
		cmd.XFLength = r.readBE16()
		cmd.XFIndex = r.readBE16()
	case op >= opDrawBase && int(op-opDrawBase) < 8:
		cmd.Kind = CmdDraw
		cmd.VATIndex = vat
		cmd.Topology = Topology(op - opDrawBase)
		count := r.readBE16()
		cmd.Count = int(count)
		size := perVertexSize(cp.Descriptor, cp.Tables[vat])
		cmd.Stream = r.readBytes(int(count) * size)
	default:
		cmd.Kind = CmdNop
	}

	if !r.ok() {
		return nil, 0
	}
	return &cmd, r.finish()
}
