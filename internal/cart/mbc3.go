package cart

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"
)

// nowUnix is the wall-clock source for the real-time clock; overridable in tests.
var nowUnix = func() int64 { return time.Now().Unix() }

// MBC3 implements ROM/RAM banking plus the optional real-time clock.
// Banking behavior:
//   - 0000-1FFF: RAM/RTC enable (0x0A in low nibble)
//   - 2000-3FFF: ROM bank, 7 bits (0 maps to 1)
//   - 4000-5FFF: RAM bank (00-03) or RTC register select (08-0C)
//   - 6000-7FFF: latch clock data on a 00 -> 01 write
//   - A000-BFFF: external RAM, or the latched RTC register, per selection
//
// noRTC marks cartridge type codes without TIMER (0x11/0x12/0x13): selector
// values 08-0C then read as 0xFF, per spec.md §4.1. Zero value is "RTC
// present" so the clock logic below works standalone, independent of header
// dispatch.
type MBC3 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    byte // 7 bits (1..127)
	regSel     byte // 00-03 selects RAM bank; 08-0C selects an RTC register
	latchPrev  byte

	hasBattery bool
	noRTC      bool

	rtcSec   byte
	rtcMin   byte
	rtcHour  byte
	rtcDay   uint16 // 9-bit day counter
	rtcHalt  bool
	rtcCarry bool

	// latched snapshot, visible to CPU reads until the next 00->01 latch write
	latchedSec   byte
	latchedMin   byte
	latchedHour  byte
	latchedDay   uint16
	latchedHalt  bool
	latchedCarry bool

	lastRTCWallSec int64
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom, lastRTCWallSec: nowUnix()}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBank = 1
	return m
}

// updateRTC advances the live counters by the wall-clock time elapsed since
// the last update. No-op while halted or when the cartridge lacks a clock.
func (m *MBC3) updateRTC() {
	if m.noRTC {
		return
	}
	now := nowUnix()
	if m.rtcHalt {
		m.lastRTCWallSec = now
		return
	}
	elapsed := now - m.lastRTCWallSec
	if elapsed <= 0 {
		return
	}
	m.lastRTCWallSec = now
	total := int64(m.rtcSec) + int64(m.rtcMin)*60 + int64(m.rtcHour)*3600 + int64(m.rtcDay)*86400 + elapsed
	days := total / 86400
	rem := total % 86400
	if days > 511 {
		m.rtcCarry = true
		days %= 512
	}
	m.rtcDay = uint16(days)
	m.rtcHour = byte(rem / 3600)
	rem %= 3600
	m.rtcMin = byte(rem / 60)
	m.rtcSec = byte(rem % 60)
}

func (m *MBC3) Read(addr uint16) byte {
	m.updateRTC()
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		switch {
		case m.regSel <= 0x03:
			if len(m.ram) == 0 {
				return 0xFF
			}
			off := int(m.regSel)*0x2000 + int(addr-0xA000)
			if off >= 0 && off < len(m.ram) {
				return m.ram[off]
			}
			return 0xFF
		case m.regSel >= 0x08 && m.regSel <= 0x0C:
			if m.noRTC {
				return 0xFF
			}
			switch m.regSel {
			case 0x08:
				return m.latchedSec
			case 0x09:
				return m.latchedMin
			case 0x0A:
				return m.latchedHour
			case 0x0B:
				return byte(m.latchedDay & 0xFF)
			case 0x0C:
				v := byte((m.latchedDay >> 8) & 0x01)
				if m.latchedHalt {
					v |= 0x40
				}
				if m.latchedCarry {
					v |= 0x80
				}
				return v
			}
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	m.updateRTC()
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		m.regSel = value
	case addr < 0x8000:
		if !m.noRTC && m.latchPrev == 0x00 && value == 0x01 {
			m.latchedSec, m.latchedMin, m.latchedHour = m.rtcSec, m.rtcMin, m.rtcHour
			m.latchedDay, m.latchedHalt, m.latchedCarry = m.rtcDay, m.rtcHalt, m.rtcCarry
		}
		m.latchPrev = value
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		switch {
		case m.regSel <= 0x03:
			if len(m.ram) == 0 {
				return
			}
			off := int(m.regSel)*0x2000 + int(addr-0xA000)
			if off >= 0 && off < len(m.ram) {
				m.ram[off] = value
			}
		case m.regSel >= 0x08 && m.regSel <= 0x0C && !m.noRTC:
			switch m.regSel {
			case 0x08:
				m.rtcSec = value
			case 0x09:
				m.rtcMin = value
			case 0x0A:
				m.rtcHour = value
			case 0x0B:
				m.rtcDay = (m.rtcDay & 0x100) | uint16(value)
			case 0x0C:
				m.rtcDay = (m.rtcDay & 0xFF) | (uint16(value&0x01) << 8)
				m.rtcHalt = value&0x40 != 0
				m.rtcCarry = value&0x80 != 0
			}
		}
	}
}

func (m *MBC3) HasBattery() bool { return m.hasBattery }

func (m *MBC3) ExportRAM() []byte {
	if !m.hasBattery || len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC3) ImportRAM(data []byte) error {
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

// mbc3State is the full persistable snapshot, including the clock — used by
// SaveRAM/LoadRAM (save-state convenience), distinct from the raw-bytes
// ExportRAM/ImportRAM battery contract above.
type mbc3State struct {
	RAM        []byte
	RAMEnabled bool
	ROMBank    byte
	RegSel     byte
	LatchPrev  byte

	RTCSec, RTCMin, RTCHour   byte
	RTCDay                    uint16
	RTCHalt, RTCCarry         bool
	LatchedSec, LatchedMin    byte
	LatchedHour               byte
	LatchedDay                uint16
	LatchedHalt, LatchedCarry bool
	LastRTCWallSec            int64
}

func (m *MBC3) SaveRAM() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(mbc3State{
		RAM: m.ram, RAMEnabled: m.ramEnabled, ROMBank: m.romBank, RegSel: m.regSel, LatchPrev: m.latchPrev,
		RTCSec: m.rtcSec, RTCMin: m.rtcMin, RTCHour: m.rtcHour, RTCDay: m.rtcDay,
		RTCHalt: m.rtcHalt, RTCCarry: m.rtcCarry,
		LatchedSec: m.latchedSec, LatchedMin: m.latchedMin, LatchedHour: m.latchedHour,
		LatchedDay: m.latchedDay, LatchedHalt: m.latchedHalt, LatchedCarry: m.latchedCarry,
		LastRTCWallSec: m.lastRTCWallSec,
	})
	return buf.Bytes()
}

func (m *MBC3) LoadRAM(data []byte) {
	var s mbc3State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(s.RAM) == len(m.ram) {
		copy(m.ram, s.RAM)
	}
	m.ramEnabled, m.romBank, m.regSel, m.latchPrev = s.RAMEnabled, s.ROMBank, s.RegSel, s.LatchPrev
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay = s.RTCSec, s.RTCMin, s.RTCHour, s.RTCDay
	m.rtcHalt, m.rtcCarry = s.RTCHalt, s.RTCCarry
	m.latchedSec, m.latchedMin, m.latchedHour = s.LatchedSec, s.LatchedMin, s.LatchedHour
	m.latchedDay, m.latchedHalt, m.latchedCarry = s.LatchedDay, s.LatchedHalt, s.LatchedCarry
	m.lastRTCWallSec = s.LastRTCWallSec
}
