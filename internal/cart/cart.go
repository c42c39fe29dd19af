package cart

import "fmt"

// Cartridge defines the minimal interface the Bus needs for ROM/RAM banking.
// Implementations can be ROM-only or MBC variants. Addresses are CPU addresses.
type Cartridge interface {
	// Read returns a byte for ROM (0x0000–0x7FFF) and external RAM (0xA000–0xBFFF).
	Read(addr uint16) byte
	// Write handles MBC control writes (0x0000–0x7FFF) and external RAM writes (0xA000–0xBFFF).
	Write(addr uint16, value byte)
}

// Persistable is implemented by cartridges that can snapshot their full
// internal state (banking registers, RTC where present, external RAM) for
// save-state convenience beyond the plain battery-RAM contract below.
type Persistable interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// BatteryBacked exposes the spec-level raw-bytes battery RAM contract
// (spec.md §4.1, §6): ExportRAM returns the raw external RAM contents iff
// the cartridge type has BATTERY, else an empty sequence. ImportRAM
// validates the supplied length against the header-declared RAM size.
type BatteryBacked interface {
	HasBattery() bool
	ExportRAM() []byte
	ImportRAM(data []byte) error
}

// NewCartridge picks an implementation based on the ROM header. Unknown
// header type codes fail with ErrUnsupportedCartridge, per spec.md §7 — this
// is a deliberate tightening of the teacher's silent ROM-only fallback.
func NewCartridge(rom []byte) (Cartridge, error) {
	if err := ValidateROM(rom); err != nil {
		return nil, err
	}
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, err
	}
	battery := HasBattery(h.CartType)
	switch h.CartType {
	case 0x00:
		return NewROMOnly(rom), nil
	case 0x08, 0x09:
		return NewROMOnlyWithRAM(rom, h.RAMSizeBytes, battery), nil
	case 0x01, 0x02, 0x03: // MBC1, MBC1+RAM, MBC1+RAM+BATTERY
		m := NewMBC1(rom, h.RAMSizeBytes)
		m.hasBattery = battery
		return m, nil
	case 0x0F, 0x10, 0x11, 0x12, 0x13: // MBC3 (+TIMER)(+RAM)(+BATTERY) variants
		m := NewMBC3(rom, h.RAMSizeBytes)
		m.hasBattery = battery
		m.noRTC = h.CartType != 0x0F && h.CartType != 0x10
		return m, nil
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E: // MBC5 variants
		m := NewMBC5(rom, h.RAMSizeBytes)
		m.hasBattery = battery
		return m, nil
	default:
		return nil, fmt.Errorf("%w: header type %#02x (%s)", ErrUnsupportedCartridge, h.CartType, cartTypeString(h.CartType))
	}
}
