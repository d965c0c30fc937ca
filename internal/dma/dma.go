// Package dma implements the GBA's four-channel DMA engine: the
// trigger/priority queue, per-channel transfer semantics including
// Special-FIFO and video-capture timing, and IRQ request on
// completion.
package dma

import "gbacore/internal/interfaces"

type Timing uint8

const (
	TimingNow Timing = iota
	TimingVBlank
	TimingHBlank
	TimingSpecial
)

type AddrMode uint8

const (
	AddrInc AddrMode = iota
	AddrDec
	AddrFixed
	AddrIncReload
)

var irqSource = [4]interfaces.InterruptSource{
	interfaces.IRQDma0, interfaces.IRQDma1, interfaces.IRQDma2, interfaces.IRQDma3,
}

type channel struct {
	sad, dad     uint32
	count        uint16
	srcMode      AddrMode
	dstMode      AddrMode
	repeat       bool
	wordSize32   bool
	timing       Timing
	irqEnable    bool
	enable       bool
	gamePakDRQ   bool

	curSrc, curDst uint32
	running        bool
}

type request struct {
	channel int
}

// Controller tracks the 4 DMA channels plus a 3-deep pending queue;
// only one channel transfers at a time, the rest wait their turn.
type Controller struct {
	ch       [4]channel
	bus      interfaces.BusInterface
	irq      interfaces.InterruptController
	pending  []request
	running  int // -1 when idle
	lastOpen uint32
}

func NewController(bus interfaces.BusInterface, irq interfaces.InterruptController) *Controller {
	return &Controller{bus: bus, irq: irq, running: -1}
}

func (c *Controller) ReadSAD(i int) uint32    { return c.ch[i].sad }
func (c *Controller) ReadDAD(i int) uint32    { return c.ch[i].dad }
func (c *Controller) ReadCount(i int) uint16  { return c.ch[i].count }

func (c *Controller) WriteSAD(i int, v uint32)   { c.ch[i].sad = v & 0x0FFFFFFF }
func (c *Controller) WriteDAD(i int, v uint32)   { c.ch[i].dad = v & 0x0FFFFFFF }
func (c *Controller) WriteCount(i int, v uint16) { c.ch[i].count = v }

func (c *Controller) ReadControl(i int) uint16 {
	ch := &c.ch[i]
	v := uint16(ch.dstMode) << 5
	v |= uint16(ch.srcMode) << 7
	if ch.repeat {
		v |= 1 << 9
	}
	if ch.wordSize32 {
		v |= 1 << 10
	}
	if ch.gamePakDRQ {
		v |= 1 << 11
	}
	v |= uint16(ch.timing) << 12
	if ch.irqEnable {
		v |= 1 << 14
	}
	if ch.enable {
		v |= 1 << 15
	}
	return v
}

// WriteControl applies DMAxCNT_H. A 0->1 transition on enable reloads
// curSrc/curDst from SAD/DAD and, for TimingNow, fires immediately.
func (c *Controller) WriteControl(i int, v uint16) {
	ch := &c.ch[i]
	wasEnabled := ch.enable

	ch.dstMode = AddrMode((v >> 5) & 0x3)
	ch.srcMode = AddrMode((v >> 7) & 0x3)
	ch.repeat = v&(1<<9) != 0
	ch.wordSize32 = v&(1<<10) != 0
	ch.gamePakDRQ = v&(1<<11) != 0
	ch.timing = Timing((v >> 12) & 0x3)
	ch.irqEnable = v&(1<<14) != 0
	ch.enable = v&(1<<15) != 0

	if ch.enable && !wasEnabled {
		ch.curSrc = ch.sad
		ch.curDst = ch.dad
		if ch.timing == TimingNow {
			c.trigger(i)
		}
	}
}

// Notify is called by the PPU on HBlank/VBlank and by the APU/timer
// bridge for FIFO-driven Special timing; it fires any channel whose
// armed timing matches.
func (c *Controller) Notify(reason Timing) {
	for i := 0; i < 4; i++ {
		ch := &c.ch[i]
		if ch.enable && ch.timing == reason && reason != TimingNow {
			c.trigger(i)
		}
	}
}

// NotifyVideoCapture fires channel 3's Special timing specifically
// when it is configured for video capture, gated by vcount per spec.
func (c *Controller) NotifyVideoCapture(vcount int) {
	ch := &c.ch[3]
	if ch.enable && ch.timing == TimingSpecial && vcount >= 2 && vcount <= 161 {
		c.trigger(3)
		if vcount == 161 {
			ch.enable = false
		}
	}
}

func (c *Controller) trigger(i int) {
	if c.running >= 0 {
		if i >= c.running && len(c.pending) < 3 {
			c.pending = append(c.pending, request{channel: i})
		}
		return
	}
	c.run(i)
}

func (c *Controller) run(i int) {
	c.running = i
	ch := &c.ch[i]

	count := uint32(ch.count)
	if count == 0 {
		if i == 3 {
			count = 0x10000
		} else {
			count = 0x4000
		}
	}

	width32 := ch.wordSize32
	if ch.timing == TimingSpecial && (i == 1 || i == 2) {
		count = 4
		width32 = true
	}

	if ch.dstMode == AddrIncReload {
		ch.curDst = ch.dad
	}

	step := int32(2)
	if width32 {
		step = 4
	}

	srcStep, dstStep := step, step
	switch ch.srcMode {
	case AddrDec:
		srcStep = -step
	case AddrFixed:
		srcStep = 0
	}
	switch ch.dstMode {
	case AddrDec:
		dstStep = -step
	case AddrFixed, AddrIncReload:
		if ch.dstMode == AddrFixed {
			dstStep = 0
		}
	}

	for n := uint32(0); n < count; n++ {
		kind := interfaces.Seq
		if n == 0 {
			kind = interfaces.NonSeq
		}
		openBus := ch.curSrc < 0x02000000
		if width32 {
			var v uint32
			if openBus {
				v = c.lastOpen
			} else {
				v = c.bus.Read32(ch.curSrc, kind)
				c.lastOpen = v
			}
			c.bus.Write32(ch.curDst, v, kind)
		} else {
			var v uint16
			if openBus {
				v = uint16(c.lastOpen)
			} else {
				v = c.bus.Read16(ch.curSrc, kind)
				c.lastOpen = uint32(v)
			}
			c.bus.Write16(ch.curDst, v, kind)
		}
		ch.curSrc = uint32(int64(ch.curSrc) + int64(srcStep))
		ch.curDst = uint32(int64(ch.curDst) + int64(dstStep))
	}

	if !ch.repeat || ch.timing == TimingNow {
		ch.enable = false
	}
	if ch.irqEnable {
		c.irq.Request(irqSource[i])
	}

	c.running = -1
	if len(c.pending) > 0 {
		next := c.pending[0]
		c.pending = c.pending[1:]
		c.run(next.channel)
	}
}

// ChannelState is one DMA channel's savestate payload.
type ChannelState struct {
	SAD, DAD       uint32
	Count          uint16
	SrcMode        AddrMode
	DstMode        AddrMode
	Repeat         bool
	WordSize32     bool
	Timing         Timing
	IRQEnable      bool
	Enable         bool
	GamePakDRQ     bool
	CurSrc, CurDst uint32
	Running        bool
}

// State is the DMA controller's full savestate payload.
type State struct {
	Channels [4]ChannelState
	Pending  []int
	Running  int
	LastOpen uint32
}

func (c *Controller) Snapshot() State {
	s := State{Running: c.running, LastOpen: c.lastOpen}
	for i, ch := range c.ch {
		s.Channels[i] = ChannelState{
			SAD: ch.sad, DAD: ch.dad, Count: ch.count,
			SrcMode: ch.srcMode, DstMode: ch.dstMode,
			Repeat: ch.repeat, WordSize32: ch.wordSize32,
			Timing: ch.timing, IRQEnable: ch.irqEnable,
			Enable: ch.enable, GamePakDRQ: ch.gamePakDRQ,
			CurSrc: ch.curSrc, CurDst: ch.curDst, Running: ch.running,
		}
	}
	for _, p := range c.pending {
		s.Pending = append(s.Pending, p.channel)
	}
	return s
}

func (c *Controller) Restore(s State) {
	for i, cs := range s.Channels {
		c.ch[i] = channel{
			sad: cs.SAD, dad: cs.DAD, count: cs.Count,
			srcMode: cs.SrcMode, dstMode: cs.DstMode,
			repeat: cs.Repeat, wordSize32: cs.WordSize32,
			timing: cs.Timing, irqEnable: cs.IRQEnable,
			enable: cs.Enable, gamePakDRQ: cs.GamePakDRQ,
			curSrc: cs.CurSrc, curDst: cs.CurDst, running: cs.Running,
		}
	}
	c.pending = nil
	for _, ch := range s.Pending {
		c.pending = append(c.pending, request{channel: ch})
	}
	c.running = s.Running
	c.lastOpen = s.LastOpen
}
