// Package bus is the GBA memory map: address dispatch and mirroring,
// the WAITCNT-derived wait-state table, the cart-ROM prefetch model,
// and the scheduler-advancing charge that ties every CPU/DMA access
// to the rest of the core.
package bus

import (
	"gbacore/internal/apu"
	"gbacore/internal/cartridge"
	"gbacore/internal/diag"
	"gbacore/internal/dma"
	"gbacore/internal/interfaces"
	"gbacore/internal/io"
	"gbacore/internal/irq"
	"gbacore/internal/joypad"
	"gbacore/internal/memory"
	"gbacore/internal/ppu"
	"gbacore/internal/scheduler"
	"gbacore/internal/timer"
)

const (
	ioStart   = 0x04000000
	palStart  = 0x05000000
	vramStart = 0x06000000
	oamStart  = 0x07000000
	romStart  = 0x08000000
	romEnd    = 0x0DFFFFFF
	sramStart = 0x0E000000
)

// Bus wires the CPU to every memory-mapped component. Cycle charging
// is a plain method call into the scheduler rather than a channel or
// goroutine: the whole core is single-threaded and cooperative.
type Bus struct {
	bios  *memory.BIOS
	ewram *memory.EWRAM
	iwram *memory.IWRAM
	misc  *io.Regs

	PPU       *ppu.PPU
	Cartridge *cartridge.Cartridge
	DMA       *dma.Controller
	Timers    *timer.Controller
	APU       *apu.APU
	Keypad    *joypad.Joypad
	IRQ       *irq.Controller

	sched *scheduler.Scheduler
	diag  *diag.Bus

	waitcnt uint16
	nWait   [3][2]uint16 // [WS0/WS1/WS2][N-cycle, S-cycle]

	prefetchCount   int
	prefetchEnabled bool

	lastOpen uint32 // most recent bus value, for open-bus reads

	cpuPC func() uint32 // CPU-supplied PC, used to gate BIOS open-bus behavior

	writeWatch func(addr uint32) // debugger write-breakpoint tap, nil when no debugger is attached

	paused bool // set when a PauseEmulation event is popped, for the core's advance_delta loop
}

func New(sched *scheduler.Scheduler, diagBus *diag.Bus, bios *memory.BIOS, cart *cartridge.Cartridge) *Bus {
	b := &Bus{
		bios:  bios,
		ewram: memory.NewEWRAM(),
		iwram: memory.NewIWRAM(),
		misc:  io.NewRegs(),

		Cartridge: cart,
		sched:     sched,
		diag:      diagBus,
	}
	b.recomputeWaitStates()
	return b
}

// SetPCGate lets the CPU register a callback the bus uses to decide
// whether a BIOS read is legitimate (PC currently inside BIOS) or
// should return the last-fetched opcode as open bus.
func (b *Bus) SetPCGate(fn func() uint32) { b.cpuPC = fn }

// SetWriteWatch registers a debugger tap invoked on every charged
// write the CPU or DMA engine performs; used to implement write
// breakpoints without coupling the bus to the debugger package.
func (b *Bus) SetWriteWatch(fn func(addr uint32)) { b.writeWatch = fn }

// mirror folds addr into a region's backing array, repeating every
// size bytes the way EWRAM/IWRAM mirror across their full 16 MiB
// bucket on real hardware.
func mirror(addr, base uint32, size uint32) uint32 {
	return base + (addr-base)%size
}

func (b *Bus) recomputeWaitStates() {
	nTable := [4]uint16{4, 3, 2, 8}
	ws0S := [2]uint16{2, 1}
	ws1S := [2]uint16{4, 1}
	ws2S := [2]uint16{8, 1}

	b.nWait[0][0] = nTable[(b.waitcnt>>2)&0x3]
	b.nWait[0][1] = ws0S[(b.waitcnt>>4)&0x1]
	b.nWait[1][0] = nTable[(b.waitcnt>>5)&0x3]
	b.nWait[1][1] = ws1S[(b.waitcnt>>7)&0x1]
	b.nWait[2][0] = nTable[(b.waitcnt>>8)&0x3]
	b.nWait[2][1] = ws2S[(b.waitcnt>>10)&0x1]

	b.prefetchEnabled = b.waitcnt&(1<<14) != 0
}

func (b *Bus) charge(cycles uint16) {
	b.sched.Advance(uint64(cycles))
	for {
		kind, lateBy, ok := b.sched.PopDue()
		if !ok {
			return
		}
		b.dispatch(kind, lateBy)
	}
}

// dispatch runs the handler for a popped scheduler event: the single
// point of contact between "time passed" and "a subsystem reacted".
func (b *Bus) dispatch(kind scheduler.Kind, lateBy uint64) {
	switch kind {
	case scheduler.PpuHblankStart:
		b.PPU.OnHblankStart()
	case scheduler.PpuSetHblank:
		b.PPU.OnSetHblank()
	case scheduler.PpuHblankEnd:
		b.PPU.OnHblankEnd()
	case scheduler.TimerOverflow0:
		b.Timers.HandleOverflow(0)
	case scheduler.TimerOverflow1:
		b.Timers.HandleOverflow(1)
	case scheduler.TimerOverflow2:
		b.Timers.HandleOverflow(2)
	case scheduler.TimerOverflow3:
		b.Timers.HandleOverflow(3)
	case scheduler.ApuSequencer:
		b.APU.TickSequencer()
		b.sched.Schedule(scheduler.ApuSequencer, 65536-int64(lateBy))
	case scheduler.ApuPushSample:
		b.APU.PushSample()
		b.sched.Schedule(scheduler.ApuPushSample, 256-int64(lateBy))
	case scheduler.PauseEmulation:
		b.paused = true
	}
}

// TookPauseEvent reports whether a PauseEmulation event has fired
// since the last call, clearing the flag. The core's advance_delta
// loop polls this after every CPU step to know when to return.
func (b *Bus) TookPauseEvent() bool {
	v := b.paused
	b.paused = false
	return v
}

// State is the bus's own savestate payload: WRAM contents, the fallback
// I/O register bank, and the WAITCNT-derived timing state. Peripherals
// owned through the exported fields save themselves separately.
type State struct {
	EWRAM           [memory.EwramSize]byte
	IWRAM           [memory.IwramSize]byte
	Misc            [0x400]byte
	Waitcnt         uint16
	NWait           [3][2]uint16
	PrefetchCount   int
	PrefetchEnabled bool
	LastOpen        uint32
}

func (b *Bus) Snapshot() State {
	return State{
		EWRAM: b.ewram.Snapshot(), IWRAM: b.iwram.Snapshot(), Misc: b.misc.Snapshot(),
		Waitcnt: b.waitcnt, NWait: b.nWait,
		PrefetchCount: b.prefetchCount, PrefetchEnabled: b.prefetchEnabled,
		LastOpen: b.lastOpen,
	}
}

func (b *Bus) Restore(s State) {
	b.ewram.Restore(s.EWRAM)
	b.iwram.Restore(s.IWRAM)
	b.misc.Restore(s.Misc)
	b.waitcnt = s.Waitcnt
	b.nWait = s.NWait
	b.prefetchCount = s.PrefetchCount
	b.prefetchEnabled = s.PrefetchEnabled
	b.lastOpen = s.LastOpen
}

func (b *Bus) regionBucket(addr uint32) uint32 { return (addr >> 24) & 0xF }

func inRange(addr, lo, hi uint32) bool { return addr >= lo && addr <= hi }

// WaitTime looks up the cycle cost for one access without performing
// any I/O, per the bus's pure-cost-lookup contract (used by the CPU's
// cached interpreter to pre-compute block timing).
func (b *Bus) WaitTime(addr uint32, width uint8, kind interfaces.AccessKind) uint16 {
	switch b.regionBucket(addr) {
	case 0x0:
		return 1
	case 0x2:
		if width == 32 {
			return 6
		}
		return 3
	case 0x3, 0x4, 0x7:
		return 1
	case 0x5, 0x6:
		if width == 32 {
			return 2
		}
		return 1
	case 0x8, 0x9:
		return b.romWait(0, width, kind)
	case 0xA, 0xB:
		return b.romWait(1, width, kind)
	case 0xC, 0xD:
		return b.romWait(2, width, kind)
	case 0xE:
		return b.nWait[0][0]
	default:
		return 1
	}
}

func (b *Bus) romWait(ws int, width uint8, kind interfaces.AccessKind) uint16 {
	first := b.nWait[ws][0]
	second := b.nWait[ws][1]
	access := second
	if kind == interfaces.NonSeq {
		access = first
	}
	if width == 32 {
		// A 32-bit ROM access is two 16-bit bus cycles: the requested
		// access class, then a forced-sequential second half.
		return access + second
	}
	return access
}

func (b *Bus) flushPrefetchIfNeeded(addr uint32, kind interfaces.AccessKind) {
	if kind == interfaces.NonSeq {
		b.prefetchCount = 0
	}
}

// PipelineStalled is called by the CPU on any PC write; it flushes
// the prefetch buffer per the bus's documented flush conditions.
func (b *Bus) PipelineStalled() {
	b.prefetchCount = 0
}

// Idle advances the scheduler without touching memory, for the CPU's
// halt loop.
func (b *Bus) Idle(n uint16) {
	b.charge(n)
}

// --- reads ---

func (b *Bus) Read8(addr uint32, kind interfaces.AccessKind) uint8 {
	b.flushPrefetchIfNeeded(addr, kind)
	b.charge(b.WaitTime(addr, 8, kind))
	return b.get8(addr)
}

func (b *Bus) Read16(addr uint32, kind interfaces.AccessKind) uint16 {
	b.flushPrefetchIfNeeded(addr, kind)
	b.charge(b.WaitTime(addr, 16, kind))
	return b.get16(addr)
}

func (b *Bus) Read32(addr uint32, kind interfaces.AccessKind) uint32 {
	b.flushPrefetchIfNeeded(addr, kind)
	b.charge(b.WaitTime(addr, 32, kind))
	return b.get32(addr)
}

func (b *Bus) Get8(addr uint32) uint8   { return b.get8(addr) }
func (b *Bus) Get16(addr uint32) uint16 { return b.get16(addr) }
func (b *Bus) Get32(addr uint32) uint32 { return b.get32(addr) }

func (b *Bus) get8(addr uint32) uint8 {
	switch b.regionBucket(addr) {
	case 0x0:
		if b.cpuPC != nil && !b.bios.Contains(b.cpuPC()) {
			return uint8(b.lastOpen)
		}
		return b.bios.Read8(addr)
	case 0x2:
		return b.ewram.Read8(mirror(addr, memory.EwramStart, memory.EwramSize))
	case 0x3:
		return b.iwram.Read8(mirror(addr, memory.IwramStart, memory.IwramSize))
	case 0x4:
		return b.readIO8(addr - ioStart)
	case 0x5:
		return b.PPU.ReadPalette8(addr)
	case 0x6:
		return b.PPU.ReadVRAM8(addr)
	case 0x7:
		return b.PPU.ReadOAM8(addr)
	case 0x8, 0x9, 0xA, 0xB, 0xC, 0xD:
		return b.Cartridge.ReadROM8((addr - romStart) % 0x02000000)
	case 0xE:
		return b.Cartridge.ReadSRAM8(addr - sramStart)
	default:
		b.diag.Emit(diag.Warning, "open-bus 8-bit read at %08X", addr)
		return uint8(b.lastOpen)
	}
}

func (b *Bus) get16(addr uint32) uint16 {
	addr &^= 1
	switch b.regionBucket(addr) {
	case 0x0:
		if b.cpuPC != nil && !b.bios.Contains(b.cpuPC()) {
			return uint16(b.lastOpen)
		}
		return b.bios.ReadHalfWord(addr)
	case 0x2:
		return b.ewram.ReadHalfWord(mirror(addr, memory.EwramStart, memory.EwramSize))
	case 0x3:
		return b.iwram.ReadHalfWord(mirror(addr, memory.IwramStart, memory.IwramSize))
	case 0x4:
		return b.readIO16(addr - ioStart)
	case 0x5:
		return b.PPU.ReadPalette16(addr)
	case 0x6:
		return b.PPU.ReadVRAM16(addr)
	case 0x7:
		return b.PPU.ReadOAM16(addr)
	case 0x8, 0x9, 0xA, 0xB, 0xC, 0xD:
		off := (addr - romStart) % 0x02000000
		return uint16(b.Cartridge.ReadROM8(off)) | uint16(b.Cartridge.ReadROM8(off+1))<<8
	default:
		return uint16(b.get8(addr)) | uint16(b.get8(addr+1))<<8
	}
}

func (b *Bus) get32(addr uint32) uint32 {
	addr &^= 3
	lo := uint32(b.get16(addr))
	hi := uint32(b.get16(addr + 2))
	result := lo | hi<<16
	b.lastOpen = result
	return result
}

// --- writes ---

func (b *Bus) Write8(addr uint32, value uint8, kind interfaces.AccessKind) {
	b.flushPrefetchIfNeeded(addr, kind)
	b.charge(b.WaitTime(addr, 8, kind))
	b.put8(addr, value)
	if b.writeWatch != nil {
		b.writeWatch(addr)
	}
}

func (b *Bus) Write16(addr uint32, value uint16, kind interfaces.AccessKind) {
	b.flushPrefetchIfNeeded(addr, kind)
	b.charge(b.WaitTime(addr, 16, kind))
	b.put16(addr, value)
	if b.writeWatch != nil {
		b.writeWatch(addr)
	}
}

func (b *Bus) Write32(addr uint32, value uint32, kind interfaces.AccessKind) {
	b.flushPrefetchIfNeeded(addr, kind)
	b.charge(b.WaitTime(addr, 32, kind))
	b.put32(addr, value)
	if b.writeWatch != nil {
		b.writeWatch(addr)
	}
}

func (b *Bus) put8(addr uint32, value uint8) {
	switch b.regionBucket(addr) {
	case 0x0:
		b.diag.Emit(diag.Warning, "write to read-only BIOS at %08X", addr)
	case 0x2:
		b.ewram.Write8(mirror(addr, memory.EwramStart, memory.EwramSize), value)
	case 0x3:
		b.iwram.Write8(mirror(addr, memory.IwramStart, memory.IwramSize), value)
	case 0x4:
		b.writeIO8(addr-ioStart, value)
	case 0x5:
		b.PPU.WritePalette16(addr&^1, uint16(value)|uint16(value)<<8)
	case 0x6:
		b.PPU.WriteVRAM8(addr, value)
	case 0x7:
		// OAM ignores 8-bit writes on real hardware.
	case 0x8, 0x9, 0xA, 0xB, 0xC, 0xD:
		b.diag.Emit(diag.Warning, "write to read-only ROM at %08X", addr)
	case 0xE:
		b.Cartridge.WriteSRAM8(addr-sramStart, value)
	default:
		b.diag.Emit(diag.Warning, "unmapped 8-bit write at %08X", addr)
	}
}

func (b *Bus) put16(addr uint32, value uint16) {
	addr &^= 1
	switch b.regionBucket(addr) {
	case 0x2:
		b.ewram.WriteHalfWord(mirror(addr, memory.EwramStart, memory.EwramSize), value)
	case 0x3:
		b.iwram.WriteHalfWord(mirror(addr, memory.IwramStart, memory.IwramSize), value)
	case 0x4:
		b.writeIO16(addr-ioStart, value)
	case 0x5:
		b.PPU.WritePalette16(addr, value)
	case 0x6:
		b.PPU.WriteVRAM16(addr, value)
	case 0x7:
		b.PPU.WriteOAM16(addr, value)
	default:
		b.put8(addr, uint8(value))
		b.put8(addr+1, uint8(value>>8))
	}
}

func (b *Bus) put32(addr uint32, value uint32) {
	addr &^= 3
	b.put16(addr, uint16(value))
	b.put16(addr+2, uint16(value>>16))
}

// --- I/O dispatch, 0x04000000-0x040003FE ---
//
// Each claimed range is handed straight to its owning peripheral;
// everything else falls through to the misc register bank.

func (b *Bus) readIO8(off uint32) uint8 {
	v := b.readIO16(off &^ 1)
	if off&1 != 0 {
		return uint8(v >> 8)
	}
	return uint8(v)
}

func (b *Bus) writeIO8(off uint32, value uint8) {
	cur := b.readIO16(off &^ 1)
	if off&1 != 0 {
		cur = (cur & 0x00FF) | uint16(value)<<8
	} else {
		cur = (cur & 0xFF00) | uint16(value)
	}
	b.writeIO16(off&^1, cur)
}

func (b *Bus) readIO16(off uint32) uint16 {
	switch {
	case off <= 0x56:
		return b.PPU.ReadReg16(off)
	case off >= 0x60 && off <= 0x9E:
		return b.readSoundReg(off)
	case off == 0xA0, off == 0xA2, off == 0xA4, off == 0xA6:
		return 0 // FIFO A/B write-only from the CPU's perspective
	case off >= 0xB0 && off <= 0xDE:
		return b.readDmaReg(off)
	case off >= 0x100 && off <= 0x10E:
		return b.readTimerReg(off)
	case off == 0x130:
		return b.Keypad.ReadKEYINPUT()
	case off == 0x132:
		return b.Keypad.ReadKEYCNT()
	case off == 0x200:
		return b.IRQ.ReadIE()
	case off == 0x202:
		return b.IRQ.ReadIF()
	case off == 0x204:
		return b.waitcnt
	case off == 0x208:
		return b.IRQ.ReadIME()
	default:
		return b.misc.Read16(off)
	}
}

func (b *Bus) writeIO16(off uint32, v uint16) {
	switch {
	case off <= 0x56:
		b.PPU.WriteReg16(off, v)
	case off >= 0x60 && off <= 0x9E:
		b.writeSoundReg(off, v)
	case off == 0xA0, off == 0xA2:
		b.APU.PushFIFO(0, []int8{int8(v), int8(v >> 8)})
	case off == 0xA4, off == 0xA6:
		b.APU.PushFIFO(1, []int8{int8(v), int8(v >> 8)})
	case off >= 0xB0 && off <= 0xDE:
		b.writeDmaReg(off, v)
	case off >= 0x100 && off <= 0x10E:
		b.writeTimerReg(off, v)
	case off == 0x130:
		// KEYINPUT is read-only.
	case off == 0x132:
		b.Keypad.WriteKEYCNT(v)
	case off == 0x200:
		b.IRQ.WriteIE(v)
	case off == 0x202:
		b.IRQ.WriteIF(v)
	case off == 0x204:
		b.waitcnt = v
		b.recomputeWaitStates()
	case off == 0x208:
		b.IRQ.WriteIME(v)
	case off == 0x300:
		b.IRQ.WriteHALTCNT(uint8(v))
	default:
		b.misc.Write16(off, v)
	}
}

func (b *Bus) readSoundReg(off uint32) uint16 {
	switch off {
	case 0x82:
		return 0 // SOUNDCNT_H readback not modeled beyond routing bits
	case 0x88:
		return b.APU.ReadSoundBias()
	default:
		return b.misc.Read16(off)
	}
}

func (b *Bus) writeSoundReg(off uint32, v uint16) {
	switch off {
	case 0x82:
		b.APU.WriteSoundCntH(v)
	case 0x88:
		b.APU.WriteSoundBias(v)
	default:
		b.misc.Write16(off, v)
	}
}

func dmaChannel(off uint32) (ch int, reg uint32) {
	base := off - 0xB0
	ch = int(base / 12)
	reg = base % 12
	return
}

func (b *Bus) readDmaReg(off uint32) uint16 {
	ch, reg := dmaChannel(off)
	switch {
	case reg == 8:
		return b.DMA.ReadCount(ch)
	case reg == 10:
		return b.DMA.ReadControl(ch)
	default:
		return 0 // SAD/DAD are not byte-readable as 16-bit halves of a 32-bit reg on real hardware either
	}
}

func (b *Bus) writeDmaReg(off uint32, v uint16) {
	ch, reg := dmaChannel(off)
	switch {
	case reg == 0:
		b.DMA.WriteSAD(ch, (b.DMA.ReadSAD(ch)&0xFFFF0000)|uint32(v))
	case reg == 2:
		b.DMA.WriteSAD(ch, (b.DMA.ReadSAD(ch)&0x0000FFFF)|uint32(v)<<16)
	case reg == 4:
		b.DMA.WriteDAD(ch, (b.DMA.ReadDAD(ch)&0xFFFF0000)|uint32(v))
	case reg == 6:
		b.DMA.WriteDAD(ch, (b.DMA.ReadDAD(ch)&0x0000FFFF)|uint32(v)<<16)
	case reg == 8:
		b.DMA.WriteCount(ch, v)
	case reg == 10:
		b.DMA.WriteControl(ch, v)
	}
}

func (b *Bus) readTimerReg(off uint32) uint16 {
	ch := int((off - 0x100) / 4)
	if (off-0x100)%4 == 0 {
		return b.Timers.ReadCounter(ch)
	}
	return b.Timers.ReadControl(ch)
}

func (b *Bus) writeTimerReg(off uint32, v uint16) {
	ch := int((off - 0x100) / 4)
	if (off-0x100)%4 == 0 {
		b.Timers.WriteReload(ch, v)
	} else {
		b.Timers.WriteControl(ch, v)
	}
}
