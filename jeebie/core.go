package jeebie

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/valerio/go-jeebie/jeebie/addr"
	"github.com/valerio/go-jeebie/jeebie/bit"
	"github.com/valerio/go-jeebie/jeebie/cpu"
	"github.com/valerio/go-jeebie/jeebie/debug"
	"github.com/valerio/go-jeebie/jeebie/input/action"
	"github.com/valerio/go-jeebie/jeebie/memory"
	"github.com/valerio/go-jeebie/jeebie/timing"
	"github.com/valerio/go-jeebie/jeebie/video"
)

// debugSnapshotRadius is how many bytes on either side of PC are captured
// in the memory snapshot handed to debug tooling.
const debugSnapshotRadius = 100

// DebuggerState represents the current debugger mode
type DebuggerState int

const (
	DebuggerRunning   DebuggerState = iota // Normal execution
	DebuggerPaused                         // Paused, waiting for commands
	DebuggerStep                           // Execute one instruction then pause
	DebuggerStepFrame                      // Execute one frame then pause
)

// cyclesPerFrame is the number of CPU cycles in one 59.7 Hz DMG frame.
const cyclesPerFrame = 70224

// bootTimerSeed is the DIV/internal-counter value the boot ROM leaves
// behind right before handing control to the cartridge at 0x0100.
const bootTimerSeed = 0xABCC

// Emulator represents the root struct and entry point for running the emulation
type Emulator struct {
	cpu *cpu.CPU
	gpu *video.GPU
	mem *memory.MMU

	// Debugger state
	debuggerState    DebuggerState
	debuggerMutex    sync.RWMutex
	stepRequested    bool
	frameRequested   bool
	instructionCount uint64
	frameCount       uint64

	limiter timing.Limiter
}

func (e *Emulator) init(mem *memory.MMU) {
	e.cpu = cpu.New(mem)
	e.gpu = video.NewGpu(mem)
	e.mem = mem
	e.mem.SetTimerSeed(bootTimerSeed)
}

// New creates a new emulator instance
func New() *Emulator {
	e := &Emulator{}
	e.init(memory.NewWithCartridge(memory.NewCartridge()))

	return e
}

// NewWithFile creates a new emulator instance and loads the ROM at path into it.
func NewWithFile(path string) (*Emulator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return LoadROM(data)
}

// LoadROM creates a new emulator instance from an in-memory ROM image.
func LoadROM(data []byte) (*Emulator, error) {
	cart, err := memory.LoadCartridge(data)
	if err != nil {
		return nil, err
	}

	slog.Debug("Loaded ROM data", "size", len(data), "title", cart.Title())

	e := &Emulator{}
	e.init(memory.NewWithCartridge(cart))

	return e, nil
}

func (e *Emulator) step() int {
	cycles := e.cpu.Tick()
	e.mem.Tick(cycles)
	e.gpu.Tick(cycles)
	e.instructionCount++

	return cycles
}

func (e *Emulator) RunUntilFrame() {
	e.debuggerMutex.RLock()
	state := e.debuggerState
	e.debuggerMutex.RUnlock()

	// Handle paused state - don't execute anything
	if state == DebuggerPaused {
		return
	}

	// Handle step instruction - execute one instruction then pause
	if state == DebuggerStep {
		e.debuggerMutex.Lock()
		if e.stepRequested {
			e.stepRequested = false
			e.debuggerMutex.Unlock()

			oldPC := e.cpu.GetPC()
			e.step()

			slog.Debug("Step executed", "pc", fmt.Sprintf("0x%04X", oldPC), "new_pc", fmt.Sprintf("0x%04X", e.cpu.GetPC()))

			// Pause after execution
			e.SetDebuggerState(DebuggerPaused)
		} else {
			e.debuggerMutex.Unlock()
		}
		return
	}

	// Handle step frame - execute one frame then pause
	if state == DebuggerStepFrame {
		e.debuggerMutex.Lock()
		frameRequested := e.frameRequested
		if frameRequested {
			e.frameRequested = false
		}
		e.debuggerMutex.Unlock()

		if frameRequested {
			total := 0
			for total < cyclesPerFrame {
				total += e.step()
			}
			e.frameCount++
			slog.Debug("Frame step completed", "frame", e.frameCount, "instructions", e.instructionCount)
			e.SetDebuggerState(DebuggerPaused)
		}
		return
	}

	// Normal execution (DebuggerRunning)
	total := 0
	for total < cyclesPerFrame {
		total += e.step()
	}

	e.frameCount++
	// Log every 60 frames (once per second at 60 FPS) only when running
	if e.frameCount%60 == 0 {
		slog.Debug("Frame completed", "frame", e.frameCount, "pc", fmt.Sprintf("0x%04X", e.cpu.GetPC()))
	}

	if e.limiter != nil {
		e.limiter.WaitForNextFrame()
	}
}

// SetFrameLimiter installs the pacing strategy used between frames. Passing
// nil runs the emulator as fast as possible (used by benchmarks and headless
// batch runs).
func (e *Emulator) SetFrameLimiter(limiter timing.Limiter) {
	e.limiter = limiter
}

// ResetFrameTiming clears any accumulated drift in the installed frame
// limiter, useful after the debugger has been paused.
func (e *Emulator) ResetFrameTiming() {
	if e.limiter != nil {
		e.limiter.Reset()
	}
}

// HandleAction routes a single input action to its effect: Game Boy button
// presses reach the joypad, emulator-level actions drive the debugger.
func (e *Emulator) HandleAction(act action.Action, pressed bool) {
	if key, ok := joypadKeyFor(act); ok {
		if pressed {
			e.mem.HandleKeyPress(key)
		} else {
			e.mem.HandleKeyRelease(key)
		}
		return
	}

	if !pressed {
		return
	}

	switch act {
	case action.EmulatorPauseToggle:
		if e.GetDebuggerState() == DebuggerPaused {
			e.DebuggerResume()
		} else {
			e.DebuggerPause()
		}
	case action.EmulatorStepFrame:
		e.DebuggerStepFrame()
	case action.EmulatorStepInstruction:
		e.DebuggerStepInstruction()
	}
}

func joypadKeyFor(act action.Action) (memory.JoypadKey, bool) {
	switch act {
	case action.GBButtonA:
		return memory.JoypadA, true
	case action.GBButtonB:
		return memory.JoypadB, true
	case action.GBButtonStart:
		return memory.JoypadStart, true
	case action.GBButtonSelect:
		return memory.JoypadSelect, true
	case action.GBDPadUp:
		return memory.JoypadUp, true
	case action.GBDPadDown:
		return memory.JoypadDown, true
	case action.GBDPadLeft:
		return memory.JoypadLeft, true
	case action.GBDPadRight:
		return memory.JoypadRight, true
	default:
		return 0, false
	}
}

func (e *Emulator) GetCurrentFrame() *video.FrameBuffer {
	return e.gpu.GetFrameBuffer()
}

func (e *Emulator) HandleKeyPress(key memory.JoypadKey) {
	e.mem.HandleKeyPress(key)
}

func (e *Emulator) HandleKeyRelease(key memory.JoypadKey) {
	e.mem.HandleKeyRelease(key)
}

func (e *Emulator) GetCPU() *cpu.CPU {
	return e.cpu
}

// ExtRAM returns the cartridge's battery-backed RAM, or nil if it has none.
func (e *Emulator) ExtRAM() []byte {
	return e.mem.ExtRAM()
}

// LoadExtRAM restores battery-backed RAM from a previously saved image.
func (e *Emulator) LoadExtRAM(data []byte) {
	e.mem.LoadExtRAM(data)
}

// IsBatteryDirty reports whether battery-backed RAM has unsaved writes.
func (e *Emulator) IsBatteryDirty() bool {
	return e.mem.IsBatteryDirty()
}

// ClearBatteryDirty marks battery-backed RAM as persisted.
func (e *Emulator) ClearBatteryDirty() {
	e.mem.ClearBatteryDirty()
}

// Title returns the loaded cartridge's header title.
func (e *Emulator) Title() string {
	return e.mem.Title()
}

// Debugger control methods
func (e *Emulator) SetDebuggerState(state DebuggerState) {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.debuggerState = state
	slog.Debug("Debugger state changed", "state", state)
}

func (e *Emulator) GetDebuggerState() DebuggerState {
	e.debuggerMutex.RLock()
	defer e.debuggerMutex.RUnlock()
	return e.debuggerState
}

func (e *Emulator) DebuggerPause() {
	e.SetDebuggerState(DebuggerPaused)
	slog.Info("Emulator paused")
}

func (e *Emulator) DebuggerResume() {
	e.SetDebuggerState(DebuggerRunning)
	slog.Info("Emulator resumed")
}

func (e *Emulator) DebuggerStepInstruction() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.stepRequested = true
	e.debuggerState = DebuggerStep
	slog.Info("Step instruction requested")
}

func (e *Emulator) DebuggerStepFrame() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.frameRequested = true
	e.debuggerState = DebuggerStepFrame
	slog.Info("Step frame requested")
}

func (e *Emulator) GetInstructionCount() uint64 {
	return e.instructionCount
}

func (e *Emulator) GetFrameCount() uint64 {
	return e.frameCount
}

func (e *Emulator) GetMMU() *memory.MMU {
	return e.mem
}

// ExtractDebugData gathers a point-in-time snapshot of CPU, memory, OAM and
// VRAM state for debug tooling (the terminal/SDL2 debug windows, disassembly
// view, and test harnesses). Returns nil if the emulator has not been
// initialized with a cartridge yet.
func (e *Emulator) ExtractDebugData() *debug.CompleteDebugData {
	if e.cpu == nil || e.mem == nil {
		return nil
	}

	pc := e.cpu.GetPC()
	snapshotStart := pc
	if pc > debugSnapshotRadius {
		snapshotStart = pc - debugSnapshotRadius
	} else {
		snapshotStart = 0
	}

	size := 2*debugSnapshotRadius + 1
	if uint32(snapshotStart)+uint32(size) > 0x10000 {
		size = 0x10000 - int(snapshotStart)
	}

	snapshotBytes := make([]uint8, size)
	for i := range snapshotBytes {
		snapshotBytes[i] = e.mem.Read(snapshotStart + uint16(i))
	}

	currentLine := int(e.mem.Read(addr.LY))
	spriteHeight := 8
	if bit.IsSet(2, e.mem.Read(addr.LCDC)) {
		spriteHeight = 16
	}

	return &debug.CompleteDebugData{
		OAM:    debug.ExtractOAMDataFromReader(e.mem, currentLine, spriteHeight),
		VRAM:   debug.ExtractVRAMDataFromReader(e.mem),
		Memory: &debug.MemorySnapshot{StartAddr: snapshotStart, Bytes: snapshotBytes},
		CPU: &debug.CPUState{
			A: e.cpu.GetA(), F: e.cpu.GetF(),
			B: e.cpu.GetB(), C: e.cpu.GetC(),
			D: e.cpu.GetD(), E: e.cpu.GetE(),
			H: e.cpu.GetH(), L: e.cpu.GetL(),
			SP: e.cpu.GetSP(), PC: pc,
			Cycles: e.instructionCount,
		},
		DebuggerState:   debug.DebuggerState(e.GetDebuggerState()),
		InterruptEnable: e.mem.Read(addr.IE),
		InterruptFlags:  e.mem.Read(addr.IF),
		SpriteVis:       debug.ExtractSpriteData(e.mem, uint8(currentLine)),
		BackgroundVis:   debug.ExtractBackgroundData(e.mem),
		PaletteVis:      debug.ExtractPaletteData(e.mem),
		Audio:           debug.ExtractAudioData(e.mem, e.mem.APU),
		LayerBuffers:    e.gpu.DebugLayers(),
	}
}
