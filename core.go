// Package gbacore is the public entry point to the emulator core: one
// Core type wiring the scheduler, ARM7TDMI, bus and every memory-mapped
// peripheral, exposing the load/advance/save surface a frontend drives
// and a debugger tap a terminal UI can attach to.
package gbacore

import (
	"fmt"

	"gbacore/internal/apu"
	"gbacore/internal/bus"
	"gbacore/internal/cartridge"
	"gbacore/internal/cpu"
	"gbacore/internal/diag"
	"gbacore/internal/dma"
	"gbacore/internal/irq"
	"gbacore/internal/joypad"
	"gbacore/internal/memory"
	"gbacore/internal/ppu"
	"gbacore/internal/scheduler"
	"gbacore/internal/timer"
)

// ClockHz is the GBA's CPU clock: 2^24 cycles/second, the unit every
// scheduler tick counts in.
const ClockHz = 16777216

// Button re-exports the joypad package's button enumeration so callers
// never need to import internal/joypad directly.
type Button = joypad.Button

const (
	ButtonA      = joypad.ButtonA
	ButtonB      = joypad.ButtonB
	ButtonSelect = joypad.ButtonSelect
	ButtonStart  = joypad.ButtonStart
	ButtonRight  = joypad.ButtonRight
	ButtonLeft   = joypad.ButtonLeft
	ButtonUp     = joypad.ButtonUp
	ButtonDown   = joypad.ButtonDown
	ButtonR      = joypad.ButtonR
	ButtonL      = joypad.ButtonL
)

// RGBA8 re-exports the PPU's pixel type so callers never need to
// import internal/ppu directly.
type RGBA8 = ppu.RGBA8

// ScreenWidth and ScreenHeight are the GBA's fixed framebuffer
// dimensions; ScreenPixels is the frame array length LastFrame returns.
const (
	ScreenWidth  = ppu.ScreenWidth
	ScreenHeight = ppu.ScreenHeight
	ScreenPixels = ppu.ScreenWidth * ppu.ScreenHeight
)

// SaveData is what make_save returns: the cartridge's title and its
// battery/flash-backed save image, ready for the frontend to persist.
type SaveData struct {
	Title string
	RAM   []byte
}

// Breakpoint pauses advance_delta when its condition is met: Exec
// fires when the CPU is about to fetch from Addr, Write fires on any
// bus write whose address equals Addr.
type Breakpoint struct {
	Addr  uint32
	Exec  bool
	Write bool
}

// DebuggerEvent is what a breakpoint hit (or a future trap) surfaces
// to a debugger frontend; the core pauses (Running goes false) in the
// same step that emits one.
type DebuggerEvent struct {
	Kind string // "exec-breakpoint", "write-breakpoint"
	Addr uint32
}

// Core is the whole emulator: construct with NewCore, load a ROM with
// LoadCart, then drive it one delta-advance at a time.
type Core struct {
	sched   *scheduler.Scheduler
	diagBus *diag.Bus
	bus     *bus.Bus
	cpu     *cpu.CPU
	irqCtl  *irq.Controller
	dmaCtl  *dma.Controller
	timers  *timer.Controller
	apuUnit *apu.APU
	ppuUnit *ppu.PPU
	joypad  *joypad.Joypad
	cart    *cartridge.Cartridge

	biosDump []byte
	running  bool

	breakpoints []Breakpoint
	writeHit    *uint32
	events      []DebuggerEvent

	traceEnabled bool
	trace        []uint32
	traceCap     int

	cachedInterpreter bool
}

// NewCore constructs a Core with no cartridge loaded. biosDump may be
// nil; skip_bootrom (or an ELF's embedded entry point) makes the BIOS
// image irrelevant in that case.
func NewCore(biosDump []byte) *Core {
	c := &Core{biosDump: biosDump, traceCap: 256}
	c.rebuild(emptyCartridge())
	return c
}

func emptyCartridge() *cartridge.Cartridge {
	return &cartridge.Cartridge{
		ROM:      make([]byte, cartridge.RomMaxSize),
		SaveType: cartridge.SaveNone,
	}
}

// rebuild reconstructs every subsystem from scratch around cart,
// implementing a full hardware reset: the scheduler, bus and every
// peripheral restart at their power-on state, and only the cartridge
// image/save buffer and debugger configuration survive.
func (c *Core) rebuild(cart *cartridge.Cartridge) {
	c.sched = scheduler.New()
	c.diagBus = diag.NewBus(nil)
	c.irqCtl = irq.NewController()
	biosDevice := memory.NewBIOS(c.biosDump)

	c.bus = bus.New(c.sched, c.diagBus, biosDevice, cart)
	c.dmaCtl = dma.NewController(c.bus, c.irqCtl)
	c.apuUnit = apu.New(c.dmaCtl)
	c.timers = timer.NewController(c.sched, c.irqCtl, c.apuUnit)
	c.ppuUnit = ppu.New(c.sched, c.dmaCtl, c.irqCtl)
	c.sched.Schedule(scheduler.ApuPushSample, 256)
	c.sched.Schedule(scheduler.ApuSequencer, 65536)
	c.joypad = joypad.New(c.irqCtl)

	c.bus.DMA = c.dmaCtl
	c.bus.Timers = c.timers
	c.bus.APU = c.apuUnit
	c.bus.PPU = c.ppuUnit
	c.bus.Keypad = c.joypad
	c.bus.IRQ = c.irqCtl

	c.cpu = cpu.NewCPU(c.bus, c.irqCtl)
	c.cpu.EnableCachedInterpreter(c.cachedInterpreter)
	c.bus.SetPCGate(func() uint32 { return c.cpu.Registers().GetPC() })
	c.bus.SetWriteWatch(c.onWrite)

	c.cart = cart
	c.running = false
	c.cpu.Reset()
}

func (c *Core) onWrite(addr uint32) {
	c.cpu.InvalidateCache(addr)
	for _, bp := range c.breakpoints {
		if bp.Write && bp.Addr == addr {
			a := addr
			c.writeHit = &a
			return
		}
	}
}

// SetCachedInterpreter turns the optional cached-interpreter
// accelerator on or off (spec §4.C.i); it is off by default and never
// changes observable behavior, only whether repeat visits to a PC
// re-fetch instruction bytes from the bus.
func (c *Core) SetCachedInterpreter(enabled bool) {
	c.cachedInterpreter = enabled
	c.cpu.EnableCachedInterpreter(enabled)
}

// LoadCart parses rom as a GBA ROM or ELF image, auto-detects its save
// type, adopts existingSave if its size matches, and resets the core
// onto it. An ELF's entry point skips the BIOS boot sequence
// automatically, per the ELF loader's documented contract.
func (c *Core) LoadCart(rom []byte, existingSave []byte) error {
	cart, err := cartridge.Load(rom, existingSave)
	if err != nil {
		return fmt.Errorf("load_cart: %w", err)
	}
	c.rebuild(cart)
	if cart.EntryPC != 0 {
		c.cpu.SkipBootrom(cart.EntryPC)
	}
	c.running = true
	return nil
}

// SetButton updates one button's pressed state.
func (c *Core) SetButton(b Button, pressed bool) { c.joypad.SetButton(b, pressed) }

// Reset performs a full power-cycle reset, keeping the loaded
// cartridge and its save buffer. Reset after Reset equals a single
// Reset: rebuild is a pure function of (biosDump, cart).
func (c *Core) Reset() {
	c.rebuild(c.cart)
	c.running = true
}

// SkipBootrom replicates the BIOS's startup side effects and jumps
// straight to entry, bypassing BIOS execution.
func (c *Core) SkipBootrom(entry uint32) {
	c.cpu.SkipBootrom(entry)
	c.running = true
}

// Running reports whether the core will execute instructions on the
// next AdvanceDelta call; it is cleared by a breakpoint hit.
func (c *Core) Running() bool { return c.running }

// AdvanceDelta runs the CPU until seconds worth of emulated time has
// passed (scheduled as a PauseEmulation event at now+seconds*ClockHz)
// or a breakpoint pauses the core, whichever comes first. Returning
// control to the frontend is the only suspension point; nothing
// blocks inside this call.
func (c *Core) AdvanceDelta(seconds float64) {
	if !c.running {
		return
	}
	ticks := int64(seconds * ClockHz)
	c.sched.Schedule(scheduler.PauseEmulation, ticks)

	for {
		if bp, hit := c.execBreakpointHit(); hit {
			c.events = append(c.events, DebuggerEvent{Kind: "exec-breakpoint", Addr: bp})
			c.running = false
			return
		}

		if c.traceEnabled {
			c.recordTrace(c.cpu.Registers().GetPC())
		}

		if c.cachedInterpreter {
			c.cpu.StepCached()
		} else {
			c.cpu.Step()
		}

		if c.writeHit != nil {
			c.events = append(c.events, DebuggerEvent{Kind: "write-breakpoint", Addr: *c.writeHit})
			c.writeHit = nil
			c.running = false
			return
		}

		if c.bus.TookPauseEvent() {
			return
		}
	}
}

func (c *Core) execBreakpointHit() (uint32, bool) {
	pc := c.cpu.Registers().GetPC()
	for _, bp := range c.breakpoints {
		if bp.Exec && bp.Addr == pc {
			return pc, true
		}
	}
	return 0, false
}

// --- debugger taps ---

// AddBreakpoint registers a breakpoint; RemoveBreakpoint undoes it.
func (c *Core) AddBreakpoint(bp Breakpoint)    { c.breakpoints = append(c.breakpoints, bp) }
func (c *Core) RemoveBreakpoint(bp Breakpoint) {
	out := c.breakpoints[:0]
	for _, b := range c.breakpoints {
		if b != bp {
			out = append(out, b)
		}
	}
	c.breakpoints = out
}

// DrainEvents returns and clears pending debugger events (breakpoint
// hits) accumulated since the last call.
func (c *Core) DrainEvents() []DebuggerEvent {
	ev := c.events
	c.events = nil
	return ev
}

// Diagnostics returns recent runtime-diagnostic events (unknown
// opcode, unmapped MMIO, etc.), oldest first.
func (c *Core) Diagnostics() []diag.Event { return c.diagBus.Recent() }

// SetTraceEnabled toggles instruction-address tracing; when off, the
// trace buffer is discarded.
func (c *Core) SetTraceEnabled(enabled bool) {
	c.traceEnabled = enabled
	if !enabled {
		c.trace = nil
	}
}

func (c *Core) recordTrace(pc uint32) {
	c.trace = append(c.trace, pc)
	if len(c.trace) > c.traceCap {
		c.trace = c.trace[len(c.trace)-c.traceCap:]
	}
}

// Trace returns the most recently fetched instruction addresses,
// oldest first.
func (c *Core) Trace() []uint32 { return append([]uint32(nil), c.trace...) }

// Registers exposes the CPU's register file, for a debugger's status
// line.
func (c *Core) Registers() interface{ String() string } { return c.cpu.Registers() }

// --- output direction ---

// LastFrame returns the most recently completed frame, or false if
// none is ready yet.
func (c *Core) LastFrame() ([ppu.ScreenWidth * ppu.ScreenHeight]ppu.RGBA8, bool) {
	if !c.ppuUnit.IsFrameReady() {
		return [ppu.ScreenWidth * ppu.ScreenHeight]ppu.RGBA8{}, false
	}
	return c.ppuUnit.ConsumeFrame(), true
}

// ProduceSamples fills out with interleaved stereo samples, writing
// zeros if the core has no cartridge running.
func (c *Core) ProduceSamples(out []float32) {
	if !c.running {
		for i := range out {
			out[i] = 0
		}
		return
	}
	c.apuUnit.ProduceSamples(out)
}

// MakeSave returns the cartridge's save buffer and title, or false if
// the cart uses no save backend.
func (c *Core) MakeSave() (SaveData, bool) {
	if c.cart == nil || c.cart.SaveType == cartridge.SaveNone {
		return SaveData{}, false
	}
	return SaveData{Title: c.cart.Header.Title, RAM: append([]byte(nil), c.cart.Save...)}, true
}
