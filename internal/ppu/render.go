package ppu

// renderScanline dispatches to the mode-appropriate line renderer and
// composes the result (backgrounds + objects + windows + blending)
// into the framebuffer. Forced-blank paints white; invalid modes 6/7
// are left unchanged, per the spec's documented failure semantics.
func (p *PPU) renderScanline(y int) {
	if p.dispcnt&(1<<7) != 0 {
		for x := 0; x < ScreenWidth; x++ {
			p.framebuffer[y*ScreenWidth+x] = RGBA8{255, 255, 255, 255}
		}
		return
	}

	for i := range p.bgLine {
		for x := range p.bgLine[i] {
			p.bgLine[i][x] = -1
		}
	}
	for x := range p.objLine {
		p.objLine[x] = objPixel{}
	}

	mode := p.dispcnt & 0x7
	switch mode {
	case 0:
		for bg := 0; bg < 4; bg++ {
			if p.bgEnabled(bg) {
				p.renderTextBG(bg, y)
			}
		}
	case 1:
		if p.bgEnabled(0) {
			p.renderTextBG(0, y)
		}
		if p.bgEnabled(1) {
			p.renderTextBG(1, y)
		}
		if p.bgEnabled(2) {
			p.renderAffineBG(2, y)
		}
	case 2:
		if p.bgEnabled(2) {
			p.renderAffineBG(2, y)
		}
		if p.bgEnabled(3) {
			p.renderAffineBG(3, y)
		}
	case 3:
		p.renderBitmapMode3(y)
	case 4:
		p.renderBitmapMode4(y)
	case 5:
		p.renderBitmapMode5(y)
	default:
		return
	}

	if p.dispcnt&(1<<12) != 0 {
		p.renderObjects(y)
	}

	p.compose(y)

	for i := range p.affineBG {
		p.affineBG[i].curX += int32(p.affineBG[i].pb)
		p.affineBG[i].curY += int32(p.affineBG[i].pd)
	}
}

func (p *PPU) bgEnabled(bg int) bool { return p.dispcnt&(1<<(8+bg)) != 0 }

// renderTextBG renders one regular (non-affine) tiled background.
func (p *PPU) renderTextBG(bg, y int) {
	cnt := p.bgcnt[bg]
	charBase := uint32((cnt>>2)&0x3) * 0x4000
	screenBase := uint32((cnt>>8)&0x1F) * 0x800
	is8bpp := cnt&(1<<7) != 0
	screenSize := (cnt >> 14) & 0x3

	widthTiles := 32
	heightTiles := 32
	if screenSize == 1 || screenSize == 3 {
		widthTiles = 64
	}
	if screenSize == 2 || screenSize == 3 {
		heightTiles = 64
	}

	scrollY := int(p.bgVofs[bg])
	scrollX := int(p.bgHofs[bg])
	py := (y + scrollY) % (heightTiles * 8)

	for x := 0; x < ScreenWidth; x++ {
		px := (x + scrollX) % (widthTiles * 8)
		tileX, tileY := px/8, py/8
		withinX, withinY := px%8, py%8

		mapBlock := 0
		localTileX, localTileY := tileX, tileY
		if widthTiles == 64 && tileX >= 32 {
			mapBlock += 1
			localTileX -= 32
		}
		if heightTiles == 64 && tileY >= 32 {
			mapBlock += 2
		}
		entryAddr := screenBase + uint32(mapBlock)*0x800 + uint32(localTileY*32+localTileX)*2
		entry := p.ReadVRAM16(entryAddr)

		tileID := entry & 0x3FF
		hFlip := entry&(1<<10) != 0
		vFlip := entry&(1<<11) != 0
		palBank := uint8((entry >> 12) & 0xF)

		sx, sy := withinX, withinY
		if hFlip {
			sx = 7 - sx
		}
		if vFlip {
			sy = 7 - sy
		}

		var colorIdx uint8
		if is8bpp {
			tileAddr := charBase + uint32(tileID)*64 + uint32(sy*8+sx)
			colorIdx = p.ReadVRAM8(tileAddr)
		} else {
			tileAddr := charBase + uint32(tileID)*32 + uint32(sy*4+sx/2)
			b := p.ReadVRAM8(tileAddr)
			if sx%2 == 0 {
				colorIdx = b & 0xF
			} else {
				colorIdx = b >> 4
			}
		}

		if colorIdx == 0 {
			continue
		}
		p.bgLine[bg][x] = p.paletteColor(colorIdx, palBank, is8bpp)
	}
}

// renderAffineBG renders an affine-transformed background (BG2 in
// mode 1/2, BG2 or BG3 in mode 2) by sampling each screen pixel back
// through the (pa,pb,pc,pd) matrix from the latched reference point.
func (p *PPU) renderAffineBG(bg, y int) {
	idx := bg - 2
	af := &p.affineBG[idx]
	cnt := p.bgcnt[bg]
	charBase := uint32((cnt>>2)&0x3) * 0x4000
	screenBase := uint32((cnt>>8)&0x1F) * 0x800
	sizeIdx := (cnt >> 14) & 0x3
	sizeTiles := [4]int{16, 32, 64, 128}[sizeIdx]
	wrap := cnt&(1<<13) != 0

	refX, refY := af.curX, af.curY
	for x := 0; x < ScreenWidth; x++ {
		tx := (refX + int32(af.pa)*int32(x)) >> 8
		ty := (refY + int32(af.pc)*int32(x)) >> 8

		px, py := int(tx), int(ty)
		bound := sizeTiles * 8
		if wrap {
			px = ((px % bound) + bound) % bound
			py = ((py % bound) + bound) % bound
		} else if px < 0 || py < 0 || px >= bound || py >= bound {
			continue
		}

		tileX, tileY := px/8, py/8
		withinX, withinY := px%8, py%8
		mapWidthTiles := sizeTiles
		entryAddr := screenBase + uint32(tileY*mapWidthTiles+tileX)
		tileID := p.ReadVRAM8(entryAddr)

		tileAddr := charBase + uint32(tileID)*64 + uint32(withinY*8+withinX)
		colorIdx := p.ReadVRAM8(tileAddr)
		if colorIdx == 0 {
			continue
		}
		p.bgLine[bg][x] = p.paletteColor(colorIdx, 0, true)
	}
}

func (p *PPU) paletteColor(idx uint8, bank uint8, is8bpp bool) int32 {
	var addr uint32
	if is8bpp {
		addr = uint32(idx) * 2
	} else {
		addr = (uint32(bank)*16 + uint32(idx)) * 2
	}
	return int32(p.ReadPalette16(addr) & 0x7FFF)
}

func (p *PPU) renderBitmapMode3(y int) {
	base := uint32(y * ScreenWidth * 2)
	for x := 0; x < ScreenWidth; x++ {
		p.bgLine[2][x] = int32(p.ReadVRAM16(base+uint32(x*2)) & 0x7FFF)
	}
}

func (p *PPU) renderBitmapMode4(y int) {
	frame := uint32(0)
	if p.dispcnt&(1<<4) != 0 {
		frame = 0xA000
	}
	base := frame + uint32(y*ScreenWidth)
	for x := 0; x < ScreenWidth; x++ {
		idx := p.ReadVRAM8(base + uint32(x))
		if idx == 0 {
			continue
		}
		p.bgLine[2][x] = p.paletteColor(idx, 0, true)
	}
}

func (p *PPU) renderBitmapMode5(y int) {
	if y >= 128 {
		return
	}
	frame := uint32(0)
	if p.dispcnt&(1<<4) != 0 {
		frame = 0xA000
	}
	base := frame + uint32(y*160*2)
	for x := 0; x < 160; x++ {
		p.bgLine[2][x] = int32(p.ReadVRAM16(base+uint32(x*2)) & 0x7FFF)
	}
}

// renderObjects iterates all 128 OAM entries and rasterizes any
// sprite intersecting scanline y into objLine, honoring 2D/1D tile
// mapping and affine/double-affine transforms.
func (p *PPU) renderObjects(y int) {
	mapping1D := p.dispcnt&(1<<6) != 0

	for i := 0; i < 128; i++ {
		base := uint32(i * 8)
		attr0 := p.ReadOAM16(base)
		attr1 := p.ReadOAM16(base + 2)
		attr2 := p.ReadOAM16(base + 4)

		objY := int(attr0 & 0xFF)
		shape := (attr0 >> 14) & 0x3
		affineFlag := attr0&(1<<8) != 0
		doubleSize := attr0&(1<<9) != 0
		disabled := attr0&(1<<9) != 0 && !affineFlag
		if disabled {
			continue
		}
		is8bpp := attr0&(1<<13) != 0
		semiTransparent := (attr0>>10)&0x3 == 1

		objX := int(attr1 & 0x1FF)
		if objX >= 240 {
			objX -= 512
		}
		size := (attr1 >> 14) & 0x3
		w, h := objDimensions(shape, size)

		boundW, boundH := w, h
		if affineFlag && doubleSize {
			boundW, boundH = w*2, h*2
		}
		if y < objY || y >= objY+boundH {
			if !(objY+boundH > 256 && y < (objY+boundH)%256) {
				continue
			}
		}

		tileID := attr2 & 0x3FF
		priority := uint8((attr2 >> 10) & 0x3)
		palBank := uint8((attr2 >> 12) & 0xF)

		relY := y - objY

		for sx := 0; sx < boundW; sx++ {
			screenX := objX + sx
			if screenX < 0 || screenX >= ScreenWidth {
				continue
			}

			var srcX, srcY int
			if affineFlag {
				paramSel := (attr1 >> 9) & 0x1F
				pa, pb, pc, pd := p.objAffineParams(paramSel)
				cx, cy := boundW/2, boundH/2
				dx, dy := sx-cx, relY-cy
				tx := (pa*int32(dx) + pb*int32(dy)) >> 8
				ty := (pc*int32(dx) + pd*int32(dy)) >> 8
				srcX = w/2 + int(tx)
				srcY = h/2 + int(ty)
				if srcX < 0 || srcY < 0 || srcX >= w || srcY >= h {
					continue
				}
			} else {
				hFlip := attr1&(1<<12) != 0
				vFlip := attr1&(1<<13) != 0
				srcX, srcY = sx, relY
				if hFlip {
					srcX = w - 1 - srcX
				}
				if vFlip {
					srcY = h - 1 - srcY
				}
			}

			tileCol, tileRow := srcX/8, srcY/8
			withinX, withinY := srcX%8, srcY%8

			var tileIndex uint32
			tilesPerRow := uint32(w / 8)
			if mapping1D {
				tileIndex = uint32(tileID) + uint32(tileRow)*tilesPerRow + uint32(tileCol)
			} else {
				rowStride := uint32(32)
				if is8bpp {
					rowStride = 16
				}
				tileIndex = uint32(tileID) + uint32(tileRow)*rowStride + uint32(tileCol)
			}

			const objBase = 0x10000
			var colorIdx uint8
			if is8bpp {
				addr := objBase + tileIndex*64 + uint32(withinY*8+withinX)
				colorIdx = p.ReadVRAM8(addr)
			} else {
				addr := objBase + tileIndex*32 + uint32(withinY*4+withinX/2)
				b := p.ReadVRAM8(addr)
				if withinX%2 == 0 {
					colorIdx = b & 0xF
				} else {
					colorIdx = b >> 4
				}
			}
			if colorIdx == 0 {
				continue
			}

			existing := p.objLine[screenX]
			if existing.present && existing.priority <= priority {
				continue
			}
			addr := (uint32(palBank)*16 + uint32(colorIdx)) * 2
			if is8bpp {
				addr = uint32(colorIdx) * 2
			}
			color := int32(p.ReadPalette16(0x200+addr&0x1FF) & 0x7FFF)
			p.objLine[screenX] = objPixel{color: color, priority: priority, semiAlpha: semiTransparent, present: true}
		}
	}
}

func objDimensions(shape, size uint16) (int, int) {
	switch shape {
	case 0:
		sizes := [4][2]int{{8, 8}, {16, 16}, {32, 32}, {64, 64}}
		return sizes[size][0], sizes[size][1]
	case 1:
		sizes := [4][2]int{{16, 8}, {32, 8}, {32, 16}, {64, 32}}
		return sizes[size][0], sizes[size][1]
	case 2:
		sizes := [4][2]int{{8, 16}, {8, 32}, {16, 32}, {32, 64}}
		return sizes[size][0], sizes[size][1]
	default:
		return 8, 8
	}
}

func (p *PPU) objAffineParams(paramSel uint16) (pa, pb, pc, pd int32) {
	base := uint32(paramSel) * 32
	pa = int32(int16(p.ReadOAM16(base + 6)))
	pb = int32(int16(p.ReadOAM16(base + 14)))
	pc = int32(int16(p.ReadOAM16(base + 22)))
	pd = int32(int16(p.ReadOAM16(base + 30)))
	return
}

// compose resolves windows, priority ordering and blending for one
// scanline and writes 8-bit RGBA into the framebuffer.
func (p *PPU) compose(y int) {
	windowsActive := p.dispcnt&(0x7<<13) != 0

	for x := 0; x < ScreenWidth; x++ {
		enableMask, blendAllowed := p.windowMaskAt(x, y, windowsActive)

		type layer struct {
			color    int32
			priority uint8
			isObj    bool
			semi     bool
		}
		var layers []layer

		for bg := 0; bg < 4; bg++ {
			if !p.bgEnabled(bg) || enableMask&(1<<bg) == 0 {
				continue
			}
			c := p.bgLine[bg][x]
			if c < 0 {
				continue
			}
			layers = append(layers, layer{color: c, priority: uint8(p.bgcnt[bg] & 0x3), isObj: false})
		}
		if enableMask&(1<<4) != 0 && p.objLine[x].present {
			o := p.objLine[x]
			layers = append(layers, layer{color: o.color, priority: o.priority, isObj: true, semi: o.semiAlpha})
		}

		// stable insertion sort by priority (lower value = front);
		// objects win ties against backgrounds of equal priority.
		for i := 1; i < len(layers); i++ {
			j := i
			for j > 0 && (layers[j].priority < layers[j-1].priority ||
				(layers[j].priority == layers[j-1].priority && layers[j].isObj && !layers[j-1].isObj)) {
				layers[j], layers[j-1] = layers[j-1], layers[j]
				j--
			}
		}

		var top, bottom int32 = -1, -1
		var topSemi bool
		if len(layers) > 0 {
			top = layers[0].color
			topSemi = layers[0].semi
		}
		if len(layers) > 1 {
			bottom = layers[1].color
		}

		final := top
		if top < 0 {
			final = int32(p.ReadPalette16(0)) & 0x7FFF // backdrop
		}

		if blendAllowed && top >= 0 {
			final = p.blend(top, bottom, topSemi)
		}

		p.framebuffer[y*ScreenWidth+x] = rgba5to8(final)
	}
}

// windowMaskAt returns which of BG0..3 (bits 0-3) and OBJ (bit 4) are
// visible at (x,y), plus whether special-effect blending is permitted.
func (p *PPU) windowMaskAt(x, y int, windowsActive bool) (uint16, bool) {
	if !windowsActive {
		return 0x1F, true
	}
	for i, w := range p.win {
		if p.dispcnt&(1<<(13+i)) == 0 {
			continue
		}
		if inWindow(x, y, w) {
			return p.winIn >> (i * 8) & 0x3F, p.winIn&(1<<(i*8+5)) != 0
		}
	}
	if p.dispcnt&(1<<15) != 0 {
		// OBJ window: approximate as using WINOUT's obj-window bits for
		// any OBJ pixel marked window-enabled; full per-pixel obj-window
		// masking is not modeled.
		return uint16(p.winOut>>8) & 0x3F, p.winOut&(1<<13) != 0
	}
	return uint16(p.winOut) & 0x3F, p.winOut&(1<<5) != 0
}

func inWindow(x, y int, w window) bool {
	inX := wrappedRange(x, int(w.left), int(w.right), ScreenWidth)
	inY := wrappedRange(y, int(w.top), int(w.bottom), ScreenHeight)
	return inX && inY
}

func wrappedRange(v, lo, hi, max int) bool {
	if lo <= hi {
		return v >= lo && v < hi
	}
	return v >= lo || v < hi
}

// blend applies BLDCNT's effect selection: alpha blend for
// semi-transparent objects or explicit AlphaBlend mode, else
// brightness increase/decrease toward white/black.
func (p *PPU) blend(top, bottom int32, forceAlpha bool) int32 {
	mode := (p.bldcnt >> 6) & 0x3
	if forceAlpha {
		mode = 1
	}
	switch mode {
	case 1:
		if bottom < 0 {
			return top
		}
		eva := float64(p.bldalpha&0x1F) / 16
		evb := float64((p.bldalpha>>8)&0x1F) / 16
		return blendChannels(top, bottom, eva, evb)
	case 2:
		evy := float64(p.bldy&0x1F) / 16
		return blendToward(top, 0x7FFF, evy)
	case 3:
		evy := float64(p.bldy&0x1F) / 16
		return blendToward(top, 0, evy)
	default:
		return top
	}
}

func blendChannels(a, b int32, wa, wb float64) int32 {
	r := clamp5(int32(float64(a&0x1F)*wa + float64(b&0x1F)*wb))
	g := clamp5(int32(float64((a>>5)&0x1F)*wa + float64((b>>5)&0x1F)*wb))
	bl := clamp5(int32(float64((a>>10)&0x1F)*wa + float64((b>>10)&0x1F)*wb))
	return r | g<<5 | bl<<10
}

func blendToward(c, target int32, w float64) int32 {
	return blendChannels(c, target, 1-w, w)
}

func clamp5(v int32) int32 {
	if v > 31 {
		return 31
	}
	if v < 0 {
		return 0
	}
	return v
}

func rgba5to8(c int32) RGBA8 {
	r := uint8((c & 0x1F) * 8)
	g := uint8(((c >> 5) & 0x1F) * 8)
	b := uint8(((c >> 10) & 0x1F) * 8)
	return RGBA8{r, g, b, 255}
}
