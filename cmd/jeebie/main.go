package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli"
	"github.com/valerio/go-jeebie/jeebie"
	"github.com/valerio/go-jeebie/jeebie/backend"
	"github.com/valerio/go-jeebie/jeebie/backend/headless"
	"github.com/valerio/go-jeebie/jeebie/backend/sdl2"
	"github.com/valerio/go-jeebie/jeebie/backend/terminal"
	"github.com/valerio/go-jeebie/jeebie/events"
	"github.com/valerio/go-jeebie/jeebie/input"
	"github.com/valerio/go-jeebie/jeebie/input/action"
	"github.com/valerio/go-jeebie/jeebie/input/event"
	"github.com/valerio/go-jeebie/jeebie/memory"
	"github.com/valerio/go-jeebie/jeebie/render"
	"github.com/valerio/go-jeebie/jeebie/timing"
)

func main() {
	app := cli.NewApp()
	app.Name = "Jeebie"
	app.Description = "A simple gameboy emulator"
	app.Usage = "jeebie [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "Path to the ROM file",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "Run the emulator without a graphical interface",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run in headless mode (required for headless)",
			Value: 0,
		},
		cli.BoolFlag{
			Name:  "test-pattern",
			Usage: "Display a test pattern instead of emulation (for debugging display)",
		},
		cli.IntFlag{
			Name:  "snapshot-interval",
			Usage: "Save frame snapshots every N frames in headless mode (0 = disabled)",
			Value: 0,
		},
		cli.StringFlag{
			Name:  "snapshot-dir",
			Usage: "Directory to save frame snapshots (default: temp directory)",
		},
		cli.BoolFlag{
			Name:  "event-driven",
			Usage: "Use event-driven emulation for cycle-accurate timing (experimental)",
		},
		cli.StringFlag{
			Name:  "backend",
			Usage: "Rendering backend to use for interactive and non-event-driven headless runs: terminal or sdl2",
			Value: "terminal",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "Show the CPU/disassembly debug overlay",
		},
	}
	app.Action = runEmulator

	err := app.Run(os.Args)
	if err != nil {
		slog.Error("Error running emulator", "error", err)
		os.Exit(1)
	}
}

func runEmulator(c *cli.Context) error {
	// Test pattern mode - no ROM needed
	if c.Bool("test-pattern") {
		slog.Info("Running in test pattern mode")
		return render.RunTestPattern()
	}

	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() > 0 {
			romPath = c.Args().Get(0)
		} else {
			cli.ShowAppHelp(c)
			return errors.New("no ROM path provided")
		}
	}

	if c.Bool("headless") {
		frames := c.Int("frames")
		if frames <= 0 {
			return errors.New("headless mode requires --frames option with a positive value")
		}

		snapshotInterval := c.Int("snapshot-interval")
		snapshotDir := c.String("snapshot-dir")

		eventDriven := c.Bool("event-driven")

		slog.Info("Running headless mode", "frames", frames, "snapshot_interval", snapshotInterval, "snapshot_dir", snapshotDir, "event_driven", eventDriven)

		if eventDriven {
			return runEventDrivenHeadless(romPath, frames, snapshotInterval, snapshotDir)
		}
		return runHeadless(romPath, frames, snapshotInterval, snapshotDir)
	}

	emu, err := jeebie.NewWithFile(romPath)
	if err != nil {
		return err
	}

	return runInteractive(emu, c.String("backend"), c.Bool("debug"))
}

// runHeadless drives the emulator through the headless Backend, which owns
// frame-count termination and periodic PNG snapshot saving.
func runHeadless(romPath string, frames, snapshotInterval int, snapshotDir string) error {
	emu, err := jeebie.NewWithFile(romPath)
	if err != nil {
		return err
	}
	emu.SetFrameLimiter(nil)

	snapshotConfig, err := headless.CreateSnapshotConfig(snapshotInterval, snapshotDir, romPath)
	if err != nil {
		return err
	}

	b := headless.New(frames, snapshotConfig)
	return runBackendLoop(emu, b, backend.BackendConfig{
		Title:         "Jeebie (headless)",
		DebugProvider: emu,
		APU:           emu.GetMMU().APU,
	})
}

// runInteractive drives the emulator through a live Backend (terminal or
// sdl2), translating returned InputEvents into joypad presses and debugger
// commands.
func runInteractive(emu *jeebie.Emulator, backendName string, showDebug bool) error {
	var b backend.Backend
	switch backendName {
	case "sdl2":
		b = sdl2.New()
	case "terminal", "":
		b = terminal.New()
	default:
		return fmt.Errorf("unknown backend %q (want terminal or sdl2)", backendName)
	}

	limiter := timing.NewAdaptiveLimiter()
	emu.SetFrameLimiter(limiter)

	return runBackendLoop(emu, b, backend.BackendConfig{
		Title:         "Jeebie",
		ShowDebug:     showDebug,
		DebugProvider: emu,
		APU:           emu.GetMMU().APU,
	})
}

// backendActionHandler is implemented by backends that handle features
// beyond joypad/debugger actions directly (snapshots, test pattern cycling,
// log level, ...). Not every Backend needs one.
type backendActionHandler interface {
	HandleAction(act action.Action)
}

// runBackendLoop runs the emulate/render/dispatch cycle shared by every
// Backend: advance one frame, hand the framebuffer to the backend, then
// route whatever InputEvents it returns back into the emulator or backend.
func runBackendLoop(emu *jeebie.Emulator, b backend.Backend, config backend.BackendConfig) error {
	if err := b.Init(config); err != nil {
		return err
	}
	defer b.Cleanup()

	debouncer := input.NewHandler()

	for {
		emu.RunUntilFrame()
		frame := emu.GetCurrentFrame()

		events, err := b.Update(frame)
		if err != nil {
			return err
		}

		for _, evt := range events {
			if !debouncer.ProcessEvent(evt) {
				continue
			}

			if evt.Action == action.EmulatorQuit {
				if evt.Type == event.Press {
					return nil
				}
				continue
			}

			info := action.GetInfo(evt.Action)
			switch info.Category {
			case action.CategoryGameInput, action.CategoryEmulator:
				emu.HandleAction(evt.Action, evt.Type != event.Release)
			default:
				if handler, ok := b.(backendActionHandler); ok && evt.Type == event.Press {
					handler.HandleAction(evt.Action)
				}
			}
		}
	}
}

// runEventDrivenHeadless runs the event-driven emulator in headless mode
func runEventDrivenHeadless(romPath string, frames, snapshotInterval int, snapshotDir string) error {
	// Load ROM data
	data, err := os.ReadFile(romPath)
	if err != nil {
		return err
	}

	// Create memory management unit with ROM data
	cart, err := memory.LoadCartridge(data)
	if err != nil {
		return err
	}
	mmu := memory.NewWithCartridge(cart)

	// Create event-driven emulator
	emu := events.NewEventDrivenEmulator(mmu)

	slog.Info("Starting event-driven emulator", "rom", romPath)

	romName := filepath.Base(romPath)
	romName = strings.TrimSuffix(romName, filepath.Ext(romName))

	// Track snapshots saved
	snapshotsToSave := make(map[int]string)
	if snapshotInterval > 0 {
		for i := snapshotInterval; i <= frames; i += snapshotInterval {
			snapshotPath := filepath.Join(snapshotDir, fmt.Sprintf("%s_frame_%d.txt", romName, i))
			snapshotsToSave[i] = snapshotPath
		}
	}

	// Run emulation with periodic snapshot saves
	go func() {
		// Monitor frame progress and save snapshots
		lastFrameCount := uint64(0)

		for {
			currentFrameCount := emu.GetFrameCount()

			if currentFrameCount != lastFrameCount {
				// Frame completed
				frameNum := int(currentFrameCount)

				// Save snapshot if needed
				if snapshotPath, shouldSave := snapshotsToSave[frameNum]; shouldSave {
					if err := saveFrameSnapshotEventDriven(emu, snapshotPath); err != nil {
						slog.Error("Failed to save snapshot", "frame", frameNum, "path", snapshotPath, "error", err)
					} else {
						slog.Info("Saved frame snapshot", "frame", frameNum, "path", snapshotPath)
					}
				}

				// Log progress
				if frameNum%10 == 0 {
					slog.Info("Frame progress", "completed", frameNum, "total", frames)
				}

				lastFrameCount = currentFrameCount
			}

			// Check if emulation is complete
			if currentFrameCount >= uint64(frames) {
				emu.Stop()
				break
			}
		}
	}()

	// Run the event loop (this will block until completion)
	emu.RunEventLoop(frames)

	slog.Info("Event-driven emulation completed",
		"frames", emu.GetFrameCount(),
		"instructions", emu.GetInstructionCount(),
		"events", emu.GetEventCount())

	return nil
}

// saveFrameSnapshotEventDriven saves a frame snapshot from event-driven emulator using half-blocks
func saveFrameSnapshotEventDriven(emu *events.EventDrivenEmulator, filename string) error {
	fb := emu.GetCurrentFrame()
	frame := fb.ToSlice()

	// Create output directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %v", err)
	}
	defer file.Close()

	// Write header
	fmt.Fprintf(file, "# Game Boy Frame Snapshot (Half-Block Rendering)\n")
	fmt.Fprintf(file, "# Frame: %d, Instructions: %d\n", emu.GetFrameCount(), emu.GetInstructionCount())
	fmt.Fprintf(file, "# Resolution: 160x144 pixels -> 160x72 text rows\n")
	fmt.Fprintf(file, "# Characters: ▀ ▄ █ (upper half, lower half, full block)\n")
	fmt.Fprintf(file, "#\n")

	// Use shared rendering utility to convert to half-blocks
	lines := render.RenderFrameToHalfBlocks(frame, 160, 144)

	// Write the rendered lines
	for _, line := range lines {
		fmt.Fprintf(file, "%s\n", line)
	}

	return nil
}
