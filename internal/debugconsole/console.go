// Package debugconsole implements a standalone breakpoint-driven
// interactive monitor for Gekko, generalizing the teacher's
// MachineMonitor scrollback/input-line model into a real terminal
// line editor over golang.org/x/term raw mode.
package debugconsole

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.design/x/clipboard"
	"golang.org/x/term"

	"github.com/otley-systems/gekko/internal/cpu"
	"github.com/otley-systems/gekko/internal/driver"
	"github.com/otley-systems/gekko/internal/mem"
)

// OutputLine holds one scrollback entry, matching the teacher's
// MachineMonitor.outputLines shape.
type OutputLine struct {
	Text string
}

// Console is the core debugger state: breakpoints live directly on the
// driver.Driver it controls, so a hit is visible to the driver's Run
// loop without any extra plumbing.
type Console struct {
	mu sync.Mutex

	drv *driver.Driver
	mem *mem.Memory

	outputLines []OutputLine
	maxOutput   int

	history    []string
	historyIdx int

	clipboardOnce sync.Once
	clipboardOK   bool
}

// New creates a Console attached to a running Driver.
func New(drv *driver.Driver, m *mem.Memory) *Console {
	return &Console{drv: drv, mem: m, maxOutput: 500}
}

func (c *Console) log(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputLines = append(c.outputLines, OutputLine{Text: fmt.Sprintf(format, args...)})
	if len(c.outputLines) > c.maxOutput {
		c.outputLines = c.outputLines[len(c.outputLines)-c.maxOutput:]
	}
}

// Scrollback returns a copy of the current output buffer for display.
func (c *Console) Scrollback() []OutputLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]OutputLine, len(c.outputLines))
	copy(out, c.outputLines)
	return out
}

// SetBreakpoint arms a breakpoint at the given guest PC value,
// causing the driver's Run loop to exit on reaching it (spec.md §4.5
// "breakpoint distance").
func (c *Console) SetBreakpoint(addr uint32) {
	c.drv.Breakpoints[addr] = true
	c.log("breakpoint set at %#08x", addr)
}

func (c *Console) ClearBreakpoint(addr uint32) {
	delete(c.drv.Breakpoints, addr)
	c.log("breakpoint cleared at %#08x", addr)
}

// ListBreakpoints returns armed breakpoint addresses in ascending order.
func (c *Console) ListBreakpoints() []uint32 {
	out := make([]uint32, 0, len(c.drv.Breakpoints))
	for a := range c.drv.Breakpoints {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DumpRegisters formats the CPU's general-purpose registers and PC,
// generalizing the teacher's prevRegs change-highlighting to a flat
// text dump (a full terminal UI would diff against prevRegs; this
// console is a plain REPL, so that is left to the caller's terminal
// history).
func (c *Console) DumpRegisters(regs *cpu.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PC=%#08x MSR=%#08x\n", regs.PC, regs.MSR)
	for i := 0; i < 32; i += 4 {
		fmt.Fprintf(&b, "r%-2d=%#08x r%-2d=%#08x r%-2d=%#08x r%-2d=%#08x\n",
			i, regs.GPR[i], i+1, regs.GPR[i+1], i+2, regs.GPR[i+2], i+3, regs.GPR[i+3])
	}
	return b.String()
}

// DumpMemory formats n bytes starting at a physical address as a
// classic hex/ASCII monitor dump, 16 bytes per line.
func (c *Console) DumpMemory(m *mem.Memory, phys uint32, n int) string {
	var b strings.Builder
	buf := make([]byte, n)
	if !m.ReadPhysicalBytes(toAddr(phys), buf) {
		return fmt.Sprintf("<unreadable at %#08x>\n", phys)
	}
	for off := 0; off < n; off += 16 {
		end := off + 16
		if end > n {
			end = n
		}
		row := buf[off:end]
		fmt.Fprintf(&b, "%08x  ", phys+uint32(off))
		for i := 0; i < 16; i++ {
			if i < len(row) {
				fmt.Fprintf(&b, "%02x ", row[i])
			} else {
				b.WriteString("   ")
			}
		}
		b.WriteString(" ")
		for _, v := range row {
			if v >= 0x20 && v < 0x7f {
				b.WriteByte(v)
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// CopyToClipboard copies text out via golang.design/x/clipboard,
// lazily initialized exactly as the teacher's EbitenOutput does for
// paste (spec.md-adjacent: a standalone console's equivalent of the
// embedded monitor's copy command).
func (c *Console) CopyToClipboard(text string) bool {
	c.clipboardOnce.Do(func() {
		c.clipboardOK = clipboard.Init() == nil
	})
	if !c.clipboardOK {
		return false
	}
	clipboard.Write(clipboard.FmtText, []byte(text))
	return true
}

// RunREPL puts the terminal into raw mode and drives a simple
// line-editing loop until the user quits or fd stops being a
// terminal, dispatching each line to Dispatch.
func (c *Console) RunREPL(fd int) error {
	if !term.IsTerminal(fd) {
		return fmt.Errorf("fd %d is not a terminal", fd)
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	f := os.NewFile(uintptr(fd), "gekko-console")
	t := term.NewTerminal(f, "(gekko) ")
	for {
		line, err := t.ReadLine()
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		c.history = append(c.history, line)
		if c.Dispatch(line) {
			return nil
		}
	}
}

// Dispatch executes one command line, returning true when the REPL
// should exit (the "quit"/"q" command).
func (c *Console) Dispatch(line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "quit", "q":
		return true
	case "break", "b":
		if len(fields) == 2 {
			if a, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 32); err == nil {
				c.SetBreakpoint(uint32(a))
			}
		}
	case "clear":
		if len(fields) == 2 {
			if a, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 32); err == nil {
				c.ClearBreakpoint(uint32(a))
			}
		}
	case "step", "s":
		info := c.drv.SingleStep()
		c.log("stepped %d instruction(s), %d cycle(s)", info.Instructions, info.Cycles)
	case "continue", "c":
		info := c.drv.Run(1<<20, false)
		c.log("ran %d cycle(s), %d instruction(s)", info.Cycles, info.Instructions)
	case "regs":
		c.log("%s", c.DumpRegisters(c.drv.Regs))
	case "mem", "m":
		if len(fields) == 3 {
			a, errA := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 32)
			n, errN := strconv.Atoi(fields[2])
			if errA == nil && errN == nil {
				c.log("%s", c.DumpMemory(c.mem, uint32(a), n))
			}
		}
	default:
		c.log("unknown command: %s", fields[0])
	}
	return false
}
