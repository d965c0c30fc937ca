// Package ppu implements the GBA's 2D picture processing unit: the
// scanline/HBlank/VBlank state machine driven by the scheduler,
// background modes 0-5, object rendering, windows and blending.
package ppu

import (
	"gbacore/internal/dma"
	"gbacore/internal/interfaces"
	"gbacore/internal/scheduler"
)

const (
	ScreenWidth  = 240
	ScreenHeight = 160

	hblankStartTick = 960
	setHblankTick   = 46
	hblankEndTick   = 226
)

type RGBA8 struct{ R, G, B, A uint8 }

type affine struct {
	pa, pb, pc, pd int16
	xref, yref     int32 // 20.8 fixed point reference point
	curX, curY     int32 // latched, advances by (pb,pd) per scanline
}

type window struct {
	left, right, top, bottom uint8
}

// PPU owns palette/VRAM/OAM storage, the register file, and the
// per-scanline composition scratch buffers.
type PPU struct {
	dispcnt  uint16
	dispstat uint16
	vcount   uint16

	bgcnt  [4]uint16
	bgHofs [4]uint16
	bgVofs [4]uint16

	affineBG [2]affine // indices 0,1 map to BG2, BG3

	win        [2]window
	winIn      uint16
	winOut     uint16
	mosaic     uint16
	bldcnt     uint16
	bldalpha   uint16
	bldy       uint16

	palette [0x400]byte
	vram    [0x18000]byte
	oam     [0x400]byte

	framebuffer [ScreenWidth * ScreenHeight]RGBA8
	frameReady  bool

	bgLine  [4][ScreenWidth]int32 // -1 = transparent, else 15-bit BGR555
	objLine [ScreenWidth]objPixel

	sched *scheduler.Scheduler
	dma   *dma.Controller
	irq   interfaces.InterruptController
}

type objPixel struct {
	color     int32
	priority  uint8
	semiAlpha bool
	present   bool
}

func New(sched *scheduler.Scheduler, dmaCtl *dma.Controller, irq interfaces.InterruptController) *PPU {
	p := &PPU{sched: sched, dma: dmaCtl, irq: irq}
	for i := range p.bgLine {
		for x := range p.bgLine[i] {
			p.bgLine[i][x] = -1
		}
	}
	sched.Schedule(scheduler.PpuHblankStart, hblankStartTick)
	return p
}

// --- scheduler event handlers ---

func (p *PPU) OnHblankStart() {
	if p.vcount < ScreenHeight {
		p.renderScanline(int(p.vcount))
	}
	if p.dispstat&(1<<4) != 0 {
		p.irq.Request(interfaces.IRQHBlank)
	}
	p.dma.Notify(dma.TimingHBlank)
	p.dma.NotifyVideoCapture(int(p.vcount))
	p.sched.Schedule(scheduler.PpuSetHblank, setHblankTick)
}

func (p *PPU) OnSetHblank() {
	p.dispstat |= 1 << 1
	p.sched.Schedule(scheduler.PpuHblankEnd, hblankEndTick)
}

func (p *PPU) OnHblankEnd() {
	p.dispstat &^= 1 << 1
	p.vcount++

	vcountMatch := uint16(p.dispstat>>8) == p.vcount
	p.setVCounterFlag(vcountMatch)
	if vcountMatch && p.dispstat&(1<<5) != 0 {
		p.irq.Request(interfaces.IRQVCounter)
	}

	switch p.vcount {
	case ScreenHeight:
		p.dispstat |= 1 << 0
		if p.dispstat&(1<<3) != 0 {
			p.irq.Request(interfaces.IRQVBlank)
		}
		p.dma.Notify(dma.TimingVBlank)
		p.frameReady = true
	case 227:
		p.dispstat &^= 1 << 0
	case 228:
		p.vcount = 0
		p.latchAffineReferences()
	}

	p.sched.Schedule(scheduler.PpuHblankStart, hblankStartTick)
}

func (p *PPU) setVCounterFlag(match bool) {
	if match {
		p.dispstat |= 1 << 2
	} else {
		p.dispstat &^= 1 << 2
	}
}

func (p *PPU) latchAffineReferences() {
	for i := range p.affineBG {
		p.affineBG[i].curX = p.affineBG[i].xref
		p.affineBG[i].curY = p.affineBG[i].yref
	}
}

// AffineState is one affine background's savestate payload.
type AffineState struct {
	PA, PB, PC, PD int16
	XRef, YRef     int32
	CurX, CurY     int32
}

// WindowState is one window's savestate payload.
type WindowState struct {
	Left, Right, Top, Bottom uint8
}

// State is the PPU's full savestate payload, including the VRAM,
// palette and OAM backing stores.
type State struct {
	Dispcnt, Dispstat, Vcount uint16
	BgCnt, BgHofs, BgVofs     [4]uint16
	AffineBG                  [2]AffineState
	Win                       [2]WindowState
	WinIn, WinOut             uint16
	Mosaic                    uint16
	Bldcnt, Bldalpha, Bldy    uint16
	Palette                   [0x400]byte
	VRAM                      [0x18000]byte
	OAM                       [0x400]byte
	FrameReady                bool
}

func (p *PPU) Snapshot() State {
	s := State{
		Dispcnt: p.dispcnt, Dispstat: p.dispstat, Vcount: p.vcount,
		BgCnt: p.bgcnt, BgHofs: p.bgHofs, BgVofs: p.bgVofs,
		WinIn: p.winIn, WinOut: p.winOut, Mosaic: p.mosaic,
		Bldcnt: p.bldcnt, Bldalpha: p.bldalpha, Bldy: p.bldy,
		Palette: p.palette, VRAM: p.vram, OAM: p.oam,
		FrameReady: p.frameReady,
	}
	for i, a := range p.affineBG {
		s.AffineBG[i] = AffineState{PA: a.pa, PB: a.pb, PC: a.pc, PD: a.pd, XRef: a.xref, YRef: a.yref, CurX: a.curX, CurY: a.curY}
	}
	for i, w := range p.win {
		s.Win[i] = WindowState{Left: w.left, Right: w.right, Top: w.top, Bottom: w.bottom}
	}
	return s
}

func (p *PPU) Restore(s State) {
	p.dispcnt, p.dispstat, p.vcount = s.Dispcnt, s.Dispstat, s.Vcount
	p.bgcnt, p.bgHofs, p.bgVofs = s.BgCnt, s.BgHofs, s.BgVofs
	p.winIn, p.winOut, p.mosaic = s.WinIn, s.WinOut, s.Mosaic
	p.bldcnt, p.bldalpha, p.bldy = s.Bldcnt, s.Bldalpha, s.Bldy
	p.palette, p.vram, p.oam = s.Palette, s.VRAM, s.OAM
	p.frameReady = s.FrameReady
	for i, a := range s.AffineBG {
		p.affineBG[i] = affine{pa: a.PA, pb: a.PB, pc: a.PC, pd: a.PD, xref: a.XRef, yref: a.YRef, curX: a.CurX, curY: a.CurY}
	}
	for i, w := range s.Win {
		p.win[i] = window{left: w.Left, right: w.Right, top: w.Top, bottom: w.Bottom}
	}
}

func (p *PPU) IsFrameReady() bool { return p.frameReady }
func (p *PPU) ConsumeFrame() [ScreenWidth * ScreenHeight]RGBA8 {
	p.frameReady = false
	return p.framebuffer
}
func (p *PPU) VCount() uint16 { return p.vcount }
