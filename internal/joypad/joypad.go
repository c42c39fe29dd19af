// Package joypad implements the DMG P1/JOYP register: active-low button
// state multiplexed through a direction/action select nibble, with an
// edge-triggered interrupt on any newly-pressed button.
package joypad

// Button bitmasks for SetState. Bits set mean "pressed".
const (
	Right     = 1 << 0
	Left      = 1 << 1
	Up        = 1 << 2
	Down      = 1 << 3
	A         = 1 << 4
	B         = 1 << 5
	SelectBtn = 1 << 6
	Start     = 1 << 7
)

// Joypad tracks which buttons are pressed and the register's select nibble.
type Joypad struct {
	selectNibble byte // bits 5-4 as last written
	pressed      byte // Button bitmask, 1 = pressed
	lowerLatched byte // last computed active-low lower nibble, for edge detection

	// RequestInterrupt is invoked when a previously-released line transitions
	// to pressed under the current selection. Set by the owner (the bus).
	RequestInterrupt func()
}

func New() *Joypad { return &Joypad{lowerLatched: 0x0F} }

// Read returns the P1 register value: bits 7-6 always read 1.
func (j *Joypad) Read() byte {
	return 0xC0 | (j.selectNibble & 0x30) | j.lowerNibble()
}

// WriteSelect updates the select bits (5-4) and re-evaluates the interrupt edge.
func (j *Joypad) WriteSelect(v byte) {
	j.selectNibble = v & 0x30
	j.recompute()
}

// SetState replaces the full set of pressed buttons and re-evaluates the
// interrupt edge against the current selection.
func (j *Joypad) SetState(mask byte) {
	j.pressed = mask
	j.recompute()
}

func (j *Joypad) lowerNibble() byte {
	n := byte(0x0F)
	if j.selectNibble&0x10 == 0 { // P14 low selects D-Pad
		if j.pressed&Right != 0 {
			n &^= 0x01
		}
		if j.pressed&Left != 0 {
			n &^= 0x02
		}
		if j.pressed&Up != 0 {
			n &^= 0x04
		}
		if j.pressed&Down != 0 {
			n &^= 0x08
		}
	}
	if j.selectNibble&0x20 == 0 { // P15 low selects buttons
		if j.pressed&A != 0 {
			n &^= 0x01
		}
		if j.pressed&B != 0 {
			n &^= 0x02
		}
		if j.pressed&SelectBtn != 0 {
			n &^= 0x04
		}
		if j.pressed&Start != 0 {
			n &^= 0x08
		}
	}
	return n
}

func (j *Joypad) recompute() {
	newLower := j.lowerNibble()
	// A 1->0 transition on any line raises the interrupt.
	if falling := j.lowerLatched &^ newLower; falling != 0 && j.RequestInterrupt != nil {
		j.RequestInterrupt()
	}
	j.lowerLatched = newLower
}

type State struct {
	SelectNibble byte
	Pressed      byte
	LowerLatched byte
}

func (j *Joypad) Snapshot() State {
	return State{j.selectNibble, j.pressed, j.lowerLatched}
}

func (j *Joypad) Restore(s State) {
	j.selectNibble, j.pressed, j.lowerLatched = s.SelectNibble, s.Pressed, s.LowerLatched
}
