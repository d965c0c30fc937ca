package ppu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForcedBlankPaintsWhiteScanline(t *testing.T) {
	p, _ := newTestPPU()
	p.WriteReg16(0x00, 1<<7) // force blank

	p.renderScanline(0)

	assert.Equal(t, RGBA8{255, 255, 255, 255}, p.framebuffer[0])
}

func TestRenderTextBGDecodesTileIntoPaletteColor(t *testing.T) {
	p, _ := newTestPPU()
	p.WriteReg16(0x00, 1<<8)   // mode 0, BG0 enabled
	p.WriteReg16(0x08, 0x0000) // BG0CNT: char base 0, map base 0, 4bpp, 32x32

	// screen entry for tile (0,0): tile ID 1, no flip, palette bank 0.
	p.WriteVRAM16(0, 1)
	// tile 1's first texel (4bpp, even nibble) holds color index 5.
	p.WriteVRAM8(1*32, 0x05)
	// palette bank 0, index 5: pure red.
	p.WritePalette16((0*16+5)*2, 0x001F)

	p.renderScanline(0)

	assert.Equal(t, RGBA8{248, 0, 0, 255}, p.framebuffer[0])
}

func TestRenderBitmapMode3WritesDirectRgbFromVram(t *testing.T) {
	p, _ := newTestPPU()
	p.WriteReg16(0x00, 3|(1<<10)) // mode 3, BG2 enabled
	p.WriteVRAM16(0, 0x03E0)      // pure green

	p.renderScanline(0)

	assert.Equal(t, RGBA8{0, 248, 0, 255}, p.framebuffer[0])
}

func TestComposeFallsBackToBackdropWhenNoLayers(t *testing.T) {
	p, _ := newTestPPU()
	// dispcnt left at 0: no BG, no OBJ enabled, mode 0.
	p.WritePalette16(0, 0x000A) // backdrop: dim red

	p.renderScanline(0)

	assert.Equal(t, RGBA8{80, 0, 0, 255}, p.framebuffer[0])
}

func TestRenderObjectsBeatLowerPriorityBackground(t *testing.T) {
	p, _ := newTestPPU()
	p.WriteReg16(0x00, (1<<8)|(1<<12)|(1<<6)) // mode 0, BG0 + OBJ enabled, 1D obj mapping
	p.WriteReg16(0x08, 1)                     // BG0CNT: priority 1, char/map base 0, 4bpp

	// BG0 tile covering x=50: tile ID 5, color index 7, green.
	p.WriteVRAM16(12, 5) // screen entry for tile (6,0)
	p.WriteVRAM8(5*32+1, 0x07)
	p.WritePalette16((0*16+7)*2, 0x03E0)

	// A priority-0 object at x=50..57, y=0..7, tile 2, color index 3, red.
	p.WriteOAM16(0, 0)  // attr0: objY=0, square shape, not disabled, 4bpp
	p.WriteOAM16(2, 50) // attr1: objX=50, size 0 (8x8)
	p.WriteOAM16(4, 2)  // attr2: tileID=2, priority 0, palette bank 0
	p.WriteVRAM8(0x10000+2*32, 0x03)
	p.WritePalette16(0x200+(0*16+3)*2, 0x001F)

	p.renderScanline(0)

	assert.Equal(t, RGBA8{248, 0, 0, 255}, p.framebuffer[50], "priority-0 object must win over priority-1 background")
}
