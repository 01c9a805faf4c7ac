// Command gekko is the standalone entry point: parse host
// configuration, load the IPL and an optional disc image, build the
// machine, and run it to completion or to a breakpoint.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/otley-systems/gekko/internal/backend"
	"github.com/otley-systems/gekko/internal/config"
	"github.com/otley-systems/gekko/internal/debugconsole"
	"github.com/otley-systems/gekko/internal/system"
)

func main() {
	cfg := config.RegisterFlags(flag.CommandLine)
	headless := flag.Bool("headless", false, "use the headless backend instead of the ebiten window")
	vulkan := flag.Bool("vulkan", false, "use the Vulkan backend instead of ebiten")
	interactive := flag.Bool("debug", false, "drop into the interactive console instead of free-running")
	maxCycles := flag.Int("max-cycles", 1<<30, "host cycle budget for a non-interactive run")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "gekko:", err)
		os.Exit(1)
	}
	if cfg.IPLPath == "" {
		fmt.Fprintln(os.Stderr, "gekko: -ipl is required")
		os.Exit(1)
	}

	ipl, err := os.ReadFile(cfg.IPLPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gekko: reading IPL:", err)
		os.Exit(1)
	}

	m, err := system.New(*cfg, ipl, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gekko: building machine:", err)
		os.Exit(1)
	}

	m.StartRenderer(selectRenderer(*headless, *vulkan))

	if err := m.StartAudio(); err != nil {
		fmt.Fprintln(os.Stderr, "gekko: audio disabled:", err)
	}

	if *interactive {
		runInteractive(m)
	} else {
		runFree(m, *maxCycles)
	}

	m.StopAudio()
	if err := m.StopRenderer(); err != nil {
		fmt.Fprintln(os.Stderr, "gekko: renderer:", err)
	}
	if err := m.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, "gekko: background worker error:", err)
		os.Exit(1)
	}
}

func selectRenderer(headless, vulkan bool) backend.Renderer {
	switch {
	case headless:
		return backend.NewHeadlessRenderer()
	case vulkan:
		return backend.NewVulkanRenderer(640, 480)
	default:
		return backend.NewEbitenRenderer()
	}
}

func runFree(m *system.Machine, maxCycles int) {
	info := m.Driver.Run(maxCycles, false)
	fmt.Printf("gekko: ran %d instruction(s) over %d cycle(s)\n", info.Instructions, info.Cycles)
	if info.BuildError != nil {
		fmt.Fprintln(os.Stderr, "gekko: block build failed:", info.BuildError)
		os.Exit(1)
	}
}

func runInteractive(m *system.Machine) {
	console := debugconsole.New(m.Driver, m.Memory)
	if err := console.RunREPL(int(os.Stdin.Fd())); err != nil {
		fmt.Fprintln(os.Stderr, "gekko: console:", err)
		os.Exit(1)
	}
}
