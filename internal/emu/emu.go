// Package emu wires the cartridge, bus, and CPU into a single front-end
// facade suitable for a headless runner or a UI shell: load a ROM, step
// whole frames, read back pixels and button state, and persist saves.
package emu

import (
	"bytes"
	"encoding/gob"
	"errors"
	"io"
	"os"

	"github.com/kelsonhall/dmgcore/internal/bus"
	"github.com/kelsonhall/dmgcore/internal/cart"
	"github.com/kelsonhall/dmgcore/internal/cpu"
)

// Buttons is a snapshot of which DMG buttons are currently held.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// Button indices for PressKey/ReleaseKey, matching the conventional DMG
// joypad bit layout (direction keys, then action keys).
const (
	KeyRight = iota
	KeyLeft
	KeyUp
	KeyDown
	KeyA
	KeyB
	KeySelect
	KeyStart
)

var keyMasks = [8]byte{
	bus.JoypRight, bus.JoypLeft, bus.JoypUp, bus.JoypDown,
	bus.JoypA, bus.JoypB, bus.JoypSelectBtn, bus.JoypStart,
}

// AudioSink receives stereo float32 samples, one slice per channel. Machine
// stores the sink set with SetAudioSink but generates no samples itself, so
// PushSamples is never called from within this package.
type AudioSink interface {
	PushSamples(left, right []float32)
}

// cyclesPerFrame is the DMG's fixed per-frame T-cycle budget: 154 lines of
// 456 dots each.
const cyclesPerFrame = 154 * 456

// Machine is a complete, steppable DMG: cartridge + bus + CPU.
type Machine struct {
	cfg Config

	bus *bus.Bus
	cpu *cpu.CPU

	pressed byte
	audio   AudioSink
}

// New constructs a Machine with no cartridge loaded. Call LoadROM or
// LoadROMFromFile before stepping.
func New(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// LoadROM parses rom and wires a fresh bus/CPU pair around it, discarding
// any previously loaded cartridge.
func (m *Machine) LoadROM(rom []byte) error {
	c, err := cart.NewCartridge(rom)
	if err != nil {
		if errors.Is(err, cart.ErrUnsupportedCartridge) {
			return newError(UnsupportedCartridge, err)
		}
		return newError(InvalidRom, err)
	}
	b := bus.NewWithCartridge(c)
	proc := cpu.New(b)
	proc.ResetNoBoot()
	m.bus, m.cpu = b, proc
	m.pressed = 0
	return nil
}

// LoadROMFromFile reads path and loads it as a cartridge image.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newError(InvalidRom, err)
	}
	return m.LoadROM(data)
}

// SetBootROM installs a boot ROM image to run before the cartridge's own
// entry point, instead of the simplified post-boot register reset.
func (m *Machine) SetBootROM(data []byte) {
	if m.bus == nil {
		return
	}
	m.bus.SetBootROM(data)
	if len(data) >= 0x100 {
		m.cpu.SetPC(0x0000)
	}
}

// SetSerialWriter routes bytes written to the serial port (used by test
// ROMs such as Blargg's to report progress) to w.
func (m *Machine) SetSerialWriter(w io.Writer) {
	if m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

// SetAudioSink installs the destination for generated audio samples.
func (m *Machine) SetAudioSink(sink AudioSink) { m.audio = sink }

// StepFrame runs roughly one 59.7 Hz video frame's worth of cycles.
func (m *Machine) StepFrame() { m.runFrame() }

// StepFrameNoRender runs one frame's worth of cycles for test-ROM harnesses
// that only care about serial output, not pixels; the PPU still composites
// internally (cheap relative to CPU stepping), so this is equivalent to
// StepFrame but named for caller intent.
func (m *Machine) StepFrameNoRender() { m.runFrame() }

func (m *Machine) runFrame() {
	if m.cpu == nil {
		return
	}
	spent := 0
	for spent < cyclesPerFrame {
		spent += m.cpu.Step()
	}
}

// Framebuffer returns the current 160x144 RGBA pixel buffer. Safe to call
// before a ROM is loaded; returns a blank buffer in that case.
func (m *Machine) Framebuffer() []byte {
	if m.bus == nil {
		return make([]byte, 160*144*4)
	}
	return m.bus.PPU().Framebuffer()
}

// SetButtons replaces the full set of held buttons.
func (m *Machine) SetButtons(b Buttons) {
	var mask byte
	if b.Right {
		mask |= bus.JoypRight
	}
	if b.Left {
		mask |= bus.JoypLeft
	}
	if b.Up {
		mask |= bus.JoypUp
	}
	if b.Down {
		mask |= bus.JoypDown
	}
	if b.A {
		mask |= bus.JoypA
	}
	if b.B {
		mask |= bus.JoypB
	}
	if b.Select {
		mask |= bus.JoypSelectBtn
	}
	if b.Start {
		mask |= bus.JoypStart
	}
	m.pressed = mask
	if m.bus != nil {
		m.bus.SetJoypadState(m.pressed)
	}
}

// PressKey marks key (one of the Key* constants) as held.
func (m *Machine) PressKey(key int) error {
	if key < 0 || key >= len(keyMasks) {
		return newError(InvalidButton, nil)
	}
	m.pressed |= keyMasks[key]
	if m.bus != nil {
		m.bus.SetJoypadState(m.pressed)
	}
	return nil
}

// ReleaseKey marks key as released.
func (m *Machine) ReleaseKey(key int) error {
	if key < 0 || key >= len(keyMasks) {
		return newError(InvalidButton, nil)
	}
	m.pressed &^= keyMasks[key]
	if m.bus != nil {
		m.bus.SetJoypadState(m.pressed)
	}
	return nil
}

// ExportSave returns the cartridge's battery-backed external RAM, or an
// empty slice if the cartridge type carries no battery.
func (m *Machine) ExportSave() ([]byte, error) {
	if m.bus == nil {
		return nil, newError(InvalidSave, errors.New("no cartridge loaded"))
	}
	b, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok || !b.HasBattery() {
		return nil, nil
	}
	return b.ExportRAM(), nil
}

// ImportSave restores previously exported battery RAM. The length must
// match the header-declared RAM size exactly, and data must be empty for a
// cartridge with no battery; either mismatch fails with InvalidSave.
func (m *Machine) ImportSave(data []byte) error {
	if m.bus == nil {
		return newError(InvalidSave, errors.New("no cartridge loaded"))
	}
	b, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		if len(data) == 0 {
			return nil
		}
		return newError(InvalidSave, errors.New("cartridge has no battery-backed RAM"))
	}
	if err := b.ImportRAM(data); err != nil {
		return newError(InvalidSave, err)
	}
	return nil
}

type machineState struct {
	CPU  cpu.State
	Bus  []byte
	Held byte
}

// SaveState snapshots the full machine (CPU registers, bus/PPU/timer/joypad
// state, and cartridge RAM/RTC) for later resumption via LoadState.
func (m *Machine) SaveState() ([]byte, error) {
	if m.bus == nil || m.cpu == nil {
		return nil, newError(InvalidSave, errors.New("no cartridge loaded"))
	}
	var buf bytes.Buffer
	s := machineState{CPU: m.cpu.Snapshot(), Bus: m.bus.SaveState(), Held: m.pressed}
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, newError(InvalidSave, err)
	}
	return buf.Bytes(), nil
}

// LoadState restores a snapshot produced by SaveState.
func (m *Machine) LoadState(data []byte) error {
	if m.bus == nil || m.cpu == nil {
		return newError(InvalidSave, errors.New("no cartridge loaded"))
	}
	var s machineState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return newError(InvalidSave, err)
	}
	m.cpu.Restore(s.CPU)
	m.bus.LoadState(s.Bus)
	m.pressed = s.Held
	m.bus.SetJoypadState(m.pressed)
	return nil
}
