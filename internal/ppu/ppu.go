package ppu

import (
	"bytes"
	"encoding/gob"
)

// InterruptRequester is a callback signature to request IF bits (0:VBlank, 1:STAT, etc.).
type InterruptRequester func(bit int)

// lineRegs captures the scroll/window/palette registers as they stood when
// mode 3 began for a given scanline, plus the window-line counter at that
// point. The scanline is composited from these captured values rather than
// from live registers, since hardware mid-scanline writes that happen during
// HBlank or VBlank should not retroactively change a line already drawn.
type lineRegs struct {
	LCDC, SCX, SCY, WY, WX, BGP, OBP0, OBP1 byte
	WinLine                                 byte
}

// PPU models VRAM/OAM, LCDC/STAT regs, LY/LYC, and basic timing, and
// composites a 160x144 RGBA framebuffer scanline by scanline.
type PPU struct {
	// memory
	vram [0x2000]byte // 0x8000–0x9FFF
	oam  [0xA0]byte   // 0xFE00–0xFE9F

	// regs
	lcdc byte // FF40
	stat byte // FF41 (mode bits 0-1, coincidence flag bit2, enables bits3-6)
	scy  byte // FF42
	scx  byte // FF43
	ly   byte // FF44
	lyc  byte // FF45
	bgp  byte // FF47
	obp0 byte // FF48
	obp1 byte // FF49
	wy   byte // FF4A
	wx   byte // FF4B

	dot int // dots within current line [0..455]

	winLineCounter int // -1 until the window becomes visible this frame
	lineRegsArr    [160]lineRegs

	fb [160 * 144 * 4]byte // RGBA framebuffer, filled scanline by scanline

	req InterruptRequester
}

func New(req InterruptRequester) *PPU {
	return &PPU{req: req, winLineCounter: -1}
}

// Read implements VRAMReader over the live VRAM bank.
func (p *PPU) Read(addr uint16) byte {
	if addr < 0x8000 || addr > 0x9FFF {
		return 0xFF
	}
	return p.vram[addr-0x8000]
}

// ReadBank reads VRAM for a given bank index. The DMG has a single VRAM
// bank, so both bank indices read the same memory.
func (p *PPU) ReadBank(bank int, addr uint16) byte { return p.Read(addr) }

// CPURead returns bytes for VRAM, OAM, and PPU IO registers. Returns 0xFF for others.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		// VRAM is inaccessible to CPU during mode 3 (return 0xFF)
		if (p.stat & 0x03) == 3 {
			return 0xFF
		}
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		// OAM is inaccessible during modes 2 and 3
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		// On DMG, bit7 reads as 1; bit6..3 are enables; bit2 coincidence; bit1..0 mode
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

// CPUWrite handles writes to VRAM, OAM, and PPU IO regs. Others are ignored here.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if (p.stat & 0x03) == 3 {
			return
		}
		p.vram[addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if (p.lcdc&0x80) == 0 && (prev&0x80) != 0 {
			// Turning LCD off resets LY/mode and blanks the screen to shade 0
			// (spec.md §3), since nothing drives composeScanline again until
			// the LCD is re-enabled.
			p.ly = 0
			p.dot = 0
			p.setMode(0)
			p.updateLYC()
			blank := shadeRGBA[0]
			for i := 0; i < len(p.fb); i += 4 {
				copy(p.fb[i:i+4], blank[:])
			}
		} else if (p.lcdc&0x80) != 0 && (prev&0x80) == 0 {
			// Turning LCD on: start at LY=0, mode 2 (OAM), fresh window counter
			p.ly = 0
			p.dot = 0
			p.winLineCounter = -1
			p.setMode(2)
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		p.ly = 0
		p.dot = 0
		p.updateLYC()
		if (p.lcdc & 0x80) != 0 {
			p.setMode(2)
		}
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	}
}

// Tick advances PPU state by the given number of dots (CPU cycles).
func (p *PPU) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	for i := 0; i < cycles; i++ {
		if (p.lcdc & 0x80) == 0 { // LCD off
			continue
		}
		p.dot++
		// Mode scheduling
		var mode byte
		if p.ly >= 144 {
			mode = 1
		} else {
			switch {
			case p.dot < 80:
				mode = 2
			case p.dot < 80+172:
				mode = 3
			default:
				mode = 0
			}
		}
		p.setMode(mode)

		if p.dot >= 456 {
			p.dot = 0
			p.ly++
			if p.ly == 144 {
				// Enter VBlank
				if p.req != nil {
					p.req(0)
				} // VBlank IF
				if (p.stat & (1 << 4)) != 0 {
					if p.req != nil {
						p.req(1)
					}
				} // STAT VBlank
			} else if p.ly > 153 {
				p.ly = 0
				p.winLineCounter = -1
			}
			p.updateLYC()
			// Set mode for new line start (dot=0)
			if p.ly >= 144 {
				p.setMode(1)
			} else {
				p.setMode(2)
			}
		}
	}
}

func (p *PPU) setMode(mode byte) {
	prev := p.stat & 0x03
	if prev == mode {
		return
	}
	p.stat = (p.stat &^ 0x03) | (mode & 0x03)
	switch mode {
	case 0: // HBlank
		p.composeScanline(int(p.ly))
		if (p.stat & (1 << 3)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	case 2: // OAM
		if (p.stat & (1 << 5)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	case 3: // transfer: snapshot the registers this scanline renders from
		p.captureLine(int(p.ly))
	}
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
		if (p.stat & (1 << 6)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	} else {
		p.stat &^= 1 << 2
	}
}

// captureLine snapshots the registers that affect rendering for line ly, and
// advances the internal window-line counter if the window is visible on it.
func (p *PPU) captureLine(ly int) {
	if ly < 0 || ly >= len(p.lineRegsArr) {
		return
	}
	// The window is only drawn with both LCDC bit 0 and bit 5 set.
	windowEnabled := p.lcdc&0x01 != 0 && p.lcdc&0x20 != 0
	// Must match composeScanline's own window condition (wx := WX-7; wx <
	// 160), which is satisfied up to WX==166 inclusive, or winLineCounter
	// drifts out of step with which lines actually draw the window.
	visible := windowEnabled && p.wy <= byte(ly) && p.wx < 167
	if visible {
		p.winLineCounter++
	}
	winLine := byte(0)
	if p.winLineCounter >= 0 {
		winLine = byte(p.winLineCounter)
	}
	p.lineRegsArr[ly] = lineRegs{
		LCDC: p.lcdc, SCX: p.scx, SCY: p.scy, WY: p.wy, WX: p.wx,
		BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1, WinLine: winLine,
	}
}

// LineRegs returns the registers captured for scanline ly at the start of
// its pixel-transfer mode, for tests and debugging.
func (p *PPU) LineRegs(ly int) lineRegs {
	if ly < 0 || ly >= len(p.lineRegsArr) {
		return lineRegs{}
	}
	return p.lineRegsArr[ly]
}

// shadeRGBA maps a 2-bit DMG shade (0=lightest) to an RGBA pixel.
var shadeRGBA = [4][4]byte{
	{0xFF, 0xFF, 0xFF, 0xFF},
	{0xAA, 0xAA, 0xAA, 0xFF},
	{0x55, 0x55, 0x55, 0xFF},
	{0x00, 0x00, 0x00, 0xFF},
}

func shadeFromPalette(pal, ci byte) byte { return (pal >> (ci * 2)) & 0x03 }

// composeScanline renders BG+window+sprites for ly using the registers
// captured at the start of its pixel-transfer mode, writing RGBA into fb.
func (p *PPU) composeScanline(ly int) {
	if ly < 0 || ly >= 144 {
		return
	}
	lr := p.lineRegsArr[ly]
	if lr.LCDC&0x80 == 0 {
		return
	}

	var bg [160]byte
	bgEnabled := lr.LCDC&0x01 != 0
	if bgEnabled {
		mapBase := uint16(0x9800)
		if lr.LCDC&0x08 != 0 {
			mapBase = 0x9C00
		}
		tileData8000 := lr.LCDC&0x10 != 0
		bg = RenderBGScanlineUsingFetcher(p, mapBase, tileData8000, lr.SCX, lr.SCY, byte(ly))
	}

	if bgEnabled && lr.LCDC&0x20 != 0 {
		wx := int(lr.WX) - 7
		if lr.WY <= byte(ly) && wx < 160 {
			winMapBase := uint16(0x9800)
			if lr.LCDC&0x40 != 0 {
				winMapBase = 0x9C00
			}
			tileData8000 := lr.LCDC&0x10 != 0
			win := RenderWindowScanlineUsingFetcher(p, winMapBase, tileData8000, wx, lr.WinLine)
			start := wx
			if start < 0 {
				start = 0
			}
			for x := start; x < 160; x++ {
				bg[x] = win[x]
			}
		}
	}

	var shade [160]byte
	for x := 0; x < 160; x++ {
		shade[x] = shadeFromPalette(lr.BGP, bg[x])
	}

	if lr.LCDC&0x02 != 0 {
		tall := lr.LCDC&0x04 != 0
		sprites := p.spritesOnLine(ly, tall)
		ci, useOBP1 := composeSpritesWithPalette(p, sprites, ly, bg, tall)
		for x := 0; x < 160; x++ {
			if ci[x] == 0 {
				continue
			}
			pal := lr.OBP0
			if useOBP1[x] {
				pal = lr.OBP1
			}
			shade[x] = shadeFromPalette(pal, ci[x])
		}
	}

	base := ly * 160 * 4
	for x := 0; x < 160; x++ {
		c := shadeRGBA[shade[x]]
		copy(p.fb[base+x*4:base+x*4+4], c[:])
	}
}

// spritesOnLine scans OAM for up to 10 sprites visible on scanline ly,
// converting OAM's raw Y-16/X-8 coordinates to screen space.
func (p *PPU) spritesOnLine(ly int, tall bool) []Sprite {
	height := 8
	if tall {
		height = 16
	}
	var out []Sprite
	for i := 0; i < 40 && len(out) < 10; i++ {
		base := i * 4
		oamY := int(p.oam[base]) - 16
		oamX := int(p.oam[base+1]) - 8
		tile := p.oam[base+2]
		attr := p.oam[base+3]
		row := ly - oamY
		if row < 0 || row >= height {
			continue
		}
		out = append(out, Sprite{X: oamX, Y: oamY, Tile: tile, Attr: attr, OAMIndex: i})
	}
	return out
}

// Framebuffer returns the current RGBA framebuffer (160x144x4 bytes).
func (p *PPU) Framebuffer() []byte { return p.fb[:] }

// Expose palettes and scroll for renderer convenience (optional helpers)
func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }

// --- Save/Load state ---

type ppuState struct {
	VRAM                                             [0x2000]byte
	OAM                                               [0xA0]byte
	LCDC, STAT, SCY, SCX, LY, LYC, BGP, OBP0, OBP1    byte
	WY, WX                                            byte
	Dot                                               int
	WinLineCounter                                    int
}

func (p *PPU) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := ppuState{
		VRAM: p.vram, OAM: p.oam,
		LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx,
		LY: p.ly, LYC: p.lyc, BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1,
		WY: p.wy, WX: p.wx, Dot: p.dot, WinLineCounter: p.winLineCounter,
	}
	_ = enc.Encode(s)
	return buf.Bytes()
}

func (p *PPU) LoadState(data []byte) {
	if len(data) == 0 {
		return
	}
	dec := gob.NewDecoder(bytes.NewReader(data))
	var s ppuState
	if err := dec.Decode(&s); err != nil {
		return
	}
	p.vram, p.oam = s.VRAM, s.OAM
	p.lcdc, p.stat, p.scy, p.scx = s.LCDC, s.STAT, s.SCY, s.SCX
	p.ly, p.lyc, p.bgp, p.obp0, p.obp1 = s.LY, s.LYC, s.BGP, s.OBP0, s.OBP1
	p.wy, p.wx, p.dot, p.winLineCounter = s.WY, s.WX, s.Dot, s.WinLineCounter
}
