package cart

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// MBC5 supports up to 8MB ROM and 128KB RAM. Unlike MBC1/MBC3, ROM bank 0 is
// addressable at 4000-7FFF (no 0->1 remap) — this is the one controller
// where that remap does not apply.
type MBC5 struct {
	rom []byte
	ram []byte

	romBank    uint16 // 9 bits (0..511)
	ramBank    byte   // 0..15
	ramEnabled bool

	hasBattery bool
}

func NewMBC5(rom []byte, ramSize int) *MBC5 {
	m := &MBC5{rom: rom}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBank = 1 // default
	return m
}

func (m *MBC5) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		// fixed bank 0
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank)
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		rb := int(m.ramBank & 0x0F)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC5) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x3000:
		// low 8 bits of ROM bank; bank 0 is legal on MBC5, no remap.
		m.romBank = (m.romBank & 0x100) | uint16(value)
	case addr < 0x4000:
		// high bit of ROM bank (bit8)
		if value&0x01 != 0 {
			m.romBank = (m.romBank & 0x0FF) | 0x100
		} else {
			m.romBank &^= 0x100
		}
	case addr < 0x6000:
		// RAM bank number 0..15
		m.ramBank = value & 0x0F
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return
		}
		rb := int(m.ramBank & 0x0F)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC5) HasBattery() bool { return m.hasBattery }

func (m *MBC5) ExportRAM() []byte {
	if !m.hasBattery || len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC5) ImportRAM(data []byte) error {
	if !m.hasBattery {
		if len(data) == 0 {
			return nil
		}
		return fmt.Errorf("%w: save data provided for non-battery cartridge", ErrInvalidSave)
	}
	if len(data) != len(m.ram) {
		return fmt.Errorf("%w: save is %d bytes, header declares %d", ErrInvalidSave, len(data), len(m.ram))
	}
	copy(m.ram, data)
	return nil
}

type mbc5State struct {
	RAM        []byte
	RomBank    uint16
	RamBank    byte
	RamEnabled bool
}

func (m *MBC5) SaveRAM() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(mbc5State{RAM: m.ram, RomBank: m.romBank, RamBank: m.ramBank, RamEnabled: m.ramEnabled})
	return buf.Bytes()
}

func (m *MBC5) LoadRAM(data []byte) {
	var s mbc5State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(s.RAM) == len(m.ram) {
		copy(m.ram, s.RAM)
	}
	m.romBank, m.ramBank, m.ramEnabled = s.RomBank, s.RamBank, s.RamEnabled
}
