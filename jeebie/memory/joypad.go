package memory

import "github.com/valerio/go-jeebie/jeebie/bit"

// JoypadKey identifies one of the eight physical buttons.
type JoypadKey uint8

const (
	JoypadRight JoypadKey = iota
	JoypadLeft
	JoypadUp
	JoypadDown
	JoypadA
	JoypadB
	JoypadSelect
	JoypadStart
)

// Joypad models the P1 register at 0xFF00. Two four-bit key groups
// (direction keys, action keys) are multiplexed onto the same nibble;
// the program selects which group it wants by clearing bit 4 or bit 5.
// Both nibbles are active-low: a bit reads 0 while its key is held.
type Joypad struct {
	dpad    uint8 // bit0 Right, bit1 Left, bit2 Up, bit3 Down
	buttons uint8 // bit0 A, bit1 B, bit2 Select, bit3 Start
	select_ uint8 // last value written to P1 bits 4-5

	onInterrupt func()
}

// NewJoypad returns a Joypad with every key released and no group selected.
func NewJoypad() *Joypad {
	return &Joypad{
		dpad:    0x0F,
		buttons: 0x0F,
		select_: 0x30,
	}
}

// SetInterruptHandler installs the callback fired when a key belonging to
// the currently selected group transitions from released to pressed.
func (j *Joypad) SetInterruptHandler(fn func()) {
	j.onInterrupt = fn
}

// Read returns the P1 register as the hardware would present it: bits 7-6
// always 1, bits 5-4 as selected, and the lower nibble reflecting whichever
// group(s) are selected (both, if the program selected both at once).
func (j *Joypad) Read() uint8 {
	lines := uint8(0x0F)
	if !bit.IsSet(4, j.select_) {
		lines &= j.dpad
	}
	if !bit.IsSet(5, j.select_) {
		lines &= j.buttons
	}
	return 0xC0 | j.select_ | lines
}

// Write stores the group-selection bits; the rest of P1 is read-only.
func (j *Joypad) Write(value uint8) {
	j.select_ = value & 0x30
}

// Press marks a key as held. If the key's group is currently selected and
// this is a 1->0 transition on the output nibble, the Joypad interrupt fires.
func (j *Joypad) Press(key JoypadKey) {
	before := j.Read()
	j.setLine(key, false)
	after := j.Read()

	if fallingEdge(before, after) && j.onInterrupt != nil {
		j.onInterrupt()
	}
}

// Release marks a key as no longer held.
func (j *Joypad) Release(key JoypadKey) {
	j.setLine(key, true)
}

func (j *Joypad) setLine(key JoypadKey, released bool) {
	group, idx := &j.dpad, uint8(0)
	switch key {
	case JoypadRight:
		idx = 0
	case JoypadLeft:
		idx = 1
	case JoypadUp:
		idx = 2
	case JoypadDown:
		idx = 3
	case JoypadA:
		group, idx = &j.buttons, 0
	case JoypadB:
		group, idx = &j.buttons, 1
	case JoypadSelect:
		group, idx = &j.buttons, 2
	case JoypadStart:
		group, idx = &j.buttons, 3
	default:
		return
	}

	if released {
		*group = bit.Set(idx, *group)
	} else {
		*group = bit.Reset(idx, *group)
	}
}

// fallingEdge reports whether any bit of the lower nibble went from 1 to 0.
func fallingEdge(before, after uint8) bool {
	return before&^after&0x0F != 0
}
