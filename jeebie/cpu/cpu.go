package cpu

import (
	"github.com/valerio/go-jeebie/jeebie/addr"
	"github.com/valerio/go-jeebie/jeebie/memory"
)

// Flag is one of the 4 possible flags used in the flag register (low byte of AF)
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

// CPU is the main struct holding Sharp LR35902 state: the 8 general purpose
// registers (paired as AF/BC/DE/HL), SP, PC, and the interrupt/halt state
// machine.
type CPU struct {
	bus *memory.MMU

	a, f byte
	b, c byte
	d, e byte
	h, l byte
	sp   uint16
	pc   uint16

	currentOpcode uint16

	interruptsEnabled bool
	eiPending         bool
	halted            bool
	haltBug           bool
	frozen            bool
	frozenErr         error

	cycles uint64
}

// New returns a CPU wired to the given bus, with registers set to the
// values the boot ROM leaves behind right before jumping to 0x0100. This
// core never executes the boot ROM itself; these are its substitute.
func New(bus *memory.MMU) *CPU {
	c := &CPU{bus: bus}
	c.setAF(0x01B0)
	c.setBC(0x0013)
	c.setDE(0x00D8)
	c.setHL(0x014D)
	c.sp = 0xFFFE
	c.pc = 0x0100
	return c
}

// GetPC returns the current program counter, used by debuggers and tests.
func (c *CPU) GetPC() uint16 {
	return c.pc
}

// GetSP returns the current stack pointer, used by debuggers.
func (c *CPU) GetSP() uint16 {
	return c.sp
}

// GetA returns the accumulator register, used by debuggers.
func (c *CPU) GetA() uint8 { return c.a }

// GetF returns the raw flag register, used by debuggers.
func (c *CPU) GetF() uint8 { return c.f }

// GetB returns register B, used by debuggers.
func (c *CPU) GetB() uint8 { return c.b }

// GetC returns register C, used by debuggers.
func (c *CPU) GetC() uint8 { return c.c }

// GetD returns register D, used by debuggers.
func (c *CPU) GetD() uint8 { return c.d }

// GetE returns register E, used by debuggers.
func (c *CPU) GetE() uint8 { return c.e }

// GetH returns register H, used by debuggers.
func (c *CPU) GetH() uint8 { return c.h }

// GetL returns register L, used by debuggers.
func (c *CPU) GetL() uint8 { return c.l }

// GetFlagString renders the Z/N/H/C flags as a compact four-character
// string, e.g. "Z-HC", for terminal debug views.
func (c *CPU) GetFlagString() string {
	flags := [4]byte{'-', '-', '-', '-'}
	if c.isSetFlag(zeroFlag) {
		flags[0] = 'Z'
	}
	if c.isSetFlag(subFlag) {
		flags[1] = 'N'
	}
	if c.isSetFlag(halfCarryFlag) {
		flags[2] = 'H'
	}
	if c.isSetFlag(carryFlag) {
		flags[3] = 'C'
	}
	return string(flags[:])
}

// Err returns the invalid-opcode error that froze the CPU, if any.
func (c *CPU) Err() error {
	return c.frozenErr
}

// Tick executes a single step: if frozen on an invalid opcode it idles; if
// halted it waits for an interrupt to wake it; otherwise it decodes and runs
// one instruction, applies the deferred EI effect, then services any
// pending interrupt. Returns the cycle cost of everything that happened.
func (c *CPU) Tick() int {
	if c.frozen {
		return 4
	}

	if c.halted {
		imeBefore := c.interruptsEnabled
		if c.handleInterrupts() {
			c.halted = false
			if !imeBefore {
				c.haltBug = true
			} else {
				return 20
			}
		}
		return 4
	}

	opcode := Decode(c)
	if c.currentOpcode > 0xFF {
		c.pc += 2
	} else {
		c.pc++
	}

	if c.haltBug {
		c.haltBug = false
		c.pc--
	}

	cycles := opcode(c)
	c.cycles += uint64(cycles)

	if c.eiPending {
		c.eiPending = false
		c.interruptsEnabled = true
	}

	if c.handleInterrupts() {
		cycles += 20
	}

	return cycles
}

// freeze permanently halts the CPU after decoding one of the eleven opcodes
// the Sharp LR35902 doesn't define, mirroring the hardware lock-up.
func (c *CPU) freeze(opcode uint8) int {
	c.frozen = true
	c.frozenErr = &ErrInvalidOpcode{PC: c.pc, Opcode: opcode}
	return 4
}

// handleInterrupts checks IF & IE for a pending interrupt. If IME is set it
// services the highest-priority one (lowest bit first): pushes PC, clears
// the IF bit, jumps to the vector, and clears IME. Returns whether an
// interrupt was pending, regardless of whether IME allowed it to be
// serviced — callers use this to know whether to wake from HALT.
func (c *CPU) handleInterrupts() bool {
	ifReg := c.bus.Read(addr.IF)
	ieReg := c.bus.Read(addr.IE)
	active := ifReg & ieReg & 0x1F

	if active == 0 {
		return false
	}

	if !c.interruptsEnabled {
		return true
	}

	var bitPos uint8
	var vector uint16
	switch {
	case active&0x01 != 0:
		bitPos, vector = 0, 0x40
	case active&0x02 != 0:
		bitPos, vector = 1, 0x48
	case active&0x04 != 0:
		bitPos, vector = 2, 0x50
	case active&0x08 != 0:
		bitPos, vector = 3, 0x58
	default:
		bitPos, vector = 4, 0x60
	}

	c.interruptsEnabled = false
	c.bus.Write(addr.IF, ifReg&^(uint8(1)<<bitPos))
	c.pushStack(c.pc)
	c.pc = vector
	c.cycles += 20

	return true
}

func (c *CPU) setFlag(flag Flag) {
	c.f |= uint8(flag)
}

func (c *CPU) resetFlag(flag Flag) {
	c.f &^= uint8(flag)
}

func (c *CPU) setFlagToCondition(flag Flag, condition bool) {
	if condition {
		c.setFlag(flag)
	} else {
		c.resetFlag(flag)
	}
}

func (c *CPU) isSetFlag(flag Flag) bool {
	return c.f&uint8(flag) != 0
}

func (c *CPU) flagToBit(flag Flag) uint8 {
	if c.isSetFlag(flag) {
		return 1
	}
	return 0
}

func (c *CPU) getAF() uint16 { return uint16(c.a)<<8 | uint16(c.f) }
func (c *CPU) setAF(v uint16) {
	c.a = uint8(v >> 8)
	c.f = uint8(v) & 0xF0
}

func (c *CPU) getBC() uint16 { return uint16(c.b)<<8 | uint16(c.c) }
func (c *CPU) setBC(v uint16) {
	c.b = uint8(v >> 8)
	c.c = uint8(v)
}

func (c *CPU) getDE() uint16 { return uint16(c.d)<<8 | uint16(c.e) }
func (c *CPU) setDE(v uint16) {
	c.d = uint8(v >> 8)
	c.e = uint8(v)
}

func (c *CPU) getHL() uint16 { return uint16(c.h)<<8 | uint16(c.l) }
func (c *CPU) setHL(v uint16) {
	c.h = uint8(v >> 8)
	c.l = uint8(v)
}

// readImmediate returns the byte at PC and advances PC past it.
func (c *CPU) readImmediate() uint8 {
	v := c.bus.Read(c.pc)
	c.pc++
	return v
}

// readSignedImmediate is readImmediate interpreted as a two's complement byte.
func (c *CPU) readSignedImmediate() int8 {
	return int8(c.readImmediate())
}

// readImmediateWord reads a little-endian 16-bit operand at PC, advancing
// PC past both bytes.
func (c *CPU) readImmediateWord() uint16 {
	low := c.readImmediate()
	high := c.readImmediate()
	return uint16(high)<<8 | uint16(low)
}

// peekImmediate returns the byte at PC without consuming it. Used by Decode,
// which must inspect the opcode stream without mutating CPU state.
func (c *CPU) peekImmediate() uint8 {
	return c.bus.Read(c.pc)
}
