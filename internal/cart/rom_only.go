package cart

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// ROMOnly implements cartridge type codes without bank switching: plain
// ROM-only ($00), and ROM+RAM($08)/ROM+RAM+BATTERY($09), which have a single
// fixed 8 KiB external RAM window with no enable gate.
type ROMOnly struct {
	rom         []byte
	ram         []byte
	hasBattery  bool
}

func NewROMOnly(rom []byte) *ROMOnly {
	return &ROMOnly{rom: rom}
}

// NewROMOnlyWithRAM constructs a ROM-only cartridge with a fixed external
// RAM window (types $08/$09).
func NewROMOnlyWithRAM(rom []byte, ramSize int, hasBattery bool) *ROMOnly {
	c := &ROMOnly{rom: rom, hasBattery: hasBattery}
	if ramSize > 0 {
		c.ram = make([]byte, ramSize)
	}
	return c
}

func (c *ROMOnly) Read(addr uint16) byte {
	switch {
	case addr < 0x8000: // ROM fixed area
		if int(addr) < len(c.rom) {
			return c.rom[addr]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if len(c.ram) == 0 {
			return 0xFF
		}
		off := int(addr - 0xA000)
		if off < len(c.ram) {
			return c.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (c *ROMOnly) Write(addr uint16, value byte) {
	if addr >= 0xA000 && addr <= 0xBFFF && len(c.ram) > 0 {
		c.ram[addr-0xA000] = value
	}
	// 0x0000-0x7FFF: ROM-only ignores control writes entirely.
}

func (c *ROMOnly) HasBattery() bool { return c.hasBattery }

func (c *ROMOnly) ExportRAM() []byte {
	if !c.hasBattery || len(c.ram) == 0 {
		return nil
	}
	out := make([]byte, len(c.ram))
	copy(out, c.ram)
	return out
}

func (c *ROMOnly) ImportRAM(data []byte) error {
	if !c.hasBattery {
		if len(data) == 0 {
			return nil
		}
		return fmt.Errorf("%w: save data provided for non-battery cartridge", ErrInvalidSave)
	}
	if len(data) != len(c.ram) {
		return fmt.Errorf("%w: save is %d bytes, header declares %d", ErrInvalidSave, len(data), len(c.ram))
	}
	copy(c.ram, data)
	return nil
}

type romOnlyState struct {
	RAM []byte
}

func (c *ROMOnly) SaveRAM() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(romOnlyState{RAM: c.ram})
	return buf.Bytes()
}

func (c *ROMOnly) LoadRAM(data []byte) {
	var s romOnlyState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(s.RAM) == len(c.ram) {
		copy(c.ram, s.RAM)
	}
}
