package dma

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gbacore/internal/interfaces"
)

// fakeBus is a flat byte-addressable memory standing in for the real
// bus; DMA only needs Read/Write/Get, so the rest of BusInterface is
// satisfied with no-ops.
type fakeBus struct {
	mem map[uint32]uint8
}

func newFakeBus() *fakeBus { return &fakeBus{mem: make(map[uint32]uint8)} }

func (f *fakeBus) Read8(addr uint32, _ interfaces.AccessKind) uint8 { return f.mem[addr] }
func (f *fakeBus) Read16(addr uint32, _ interfaces.AccessKind) uint16 {
	return uint16(f.mem[addr]) | uint16(f.mem[addr+1])<<8
}
func (f *fakeBus) Read32(addr uint32, _ interfaces.AccessKind) uint32 {
	return uint32(f.Read16(addr, 0)) | uint32(f.Read16(addr+2, 0))<<16
}
func (f *fakeBus) Write8(addr uint32, v uint8, _ interfaces.AccessKind) { f.mem[addr] = v }
func (f *fakeBus) Write16(addr uint32, v uint16, _ interfaces.AccessKind) {
	f.mem[addr] = uint8(v)
	f.mem[addr+1] = uint8(v >> 8)
}
func (f *fakeBus) Write32(addr uint32, v uint32, _ interfaces.AccessKind) {
	f.Write16(addr, uint16(v), 0)
	f.Write16(addr+2, uint16(v>>16), 0)
}
func (f *fakeBus) Get8(addr uint32) uint8                                       { return f.mem[addr] }
func (f *fakeBus) Get16(addr uint32) uint16                                     { return f.Read16(addr, 0) }
func (f *fakeBus) Get32(addr uint32) uint32                                     { return f.Read32(addr, 0) }
func (f *fakeBus) WaitTime(uint32, uint8, interfaces.AccessKind) uint16         { return 1 }
func (f *fakeBus) PipelineStalled()                                            {}
func (f *fakeBus) Idle(uint16)                                                 {}

type fakeIRQ struct{ requested []interfaces.InterruptSource }

func (f *fakeIRQ) Request(src interfaces.InterruptSource) { f.requested = append(f.requested, src) }
func (f *fakeIRQ) MasterEnabled() bool                    { return true }
func (f *fakeIRQ) Pending() bool                           { return len(f.requested) > 0 }

const wramBase = 0x02000000

// Mirrors spec §8 scenario 5.
func TestImmediateDMACopiesVerbatimAndDisablesAfter(t *testing.T) {
	bus := newFakeBus()
	irqc := &fakeIRQ{}
	c := NewController(bus, irqc)

	const src, dst, count = wramBase, wramBase + 0x4000, 0x100
	for i := 0; i < 0x400; i++ {
		bus.mem[src+uint32(i)] = byte(i)
	}

	c.WriteSAD(0, src)
	c.WriteDAD(0, dst)
	c.WriteCount(0, count)
	ctrl := uint16(1<<10) | uint16(1<<15) | uint16(1<<14) // 32-bit, enable, irq, timing=Now(0)
	c.WriteControl(0, ctrl)

	for i := 0; i < 0x400; i++ {
		assert.Equal(t, bus.mem[src+uint32(i)], bus.mem[dst+uint32(i)], "byte %d mismatch", i)
	}
	assert.False(t, c.ch[0].enable, "channel must disable after a Now-timing transfer")
	assert.Equal(t, []interfaces.InterruptSource{interfaces.IRQDma0}, irqc.requested)
}

func TestZeroCountMeansMaxForChannelsZeroToTwo(t *testing.T) {
	bus := newFakeBus()
	c := NewController(bus, &fakeIRQ{})

	c.WriteSAD(0, wramBase)
	c.WriteDAD(0, wramBase+0x10000)
	c.WriteCount(0, 0)
	c.WriteControl(0, 1<<15) // 16-bit, enable, timing=Now

	// 0x4000 halfwords transferred means dst advanced by 0x8000 bytes.
	assert.Equal(t, wramBase+0x10000+0x8000, int(c.ch[0].curDst))
}

func TestSpecialTimingForcesFourWordFifoTransfer(t *testing.T) {
	bus := newFakeBus()
	c := NewController(bus, &fakeIRQ{})

	c.WriteSAD(1, wramBase)
	c.WriteDAD(1, 0x040000A0) // FIFO A
	c.WriteCount(1, 1)        // control register count ignored for Special+ch1/2
	ctrl := uint16(TimingSpecial)<<12 | 1<<15 | uint16(AddrFixed)<<5
	c.WriteControl(1, ctrl)
	c.Notify(TimingSpecial)

	// 4 words = 16 bytes from src, fixed dest (no dst advance beyond initial).
	assert.Equal(t, uint32(wramBase+16), c.ch[1].curSrc)
}

func TestRepeatChannelStaysEnabledAfterHBlankTrigger(t *testing.T) {
	bus := newFakeBus()
	c := NewController(bus, &fakeIRQ{})

	c.WriteSAD(0, wramBase)
	c.WriteDAD(0, wramBase+0x1000)
	c.WriteCount(0, 4)
	ctrl := uint16(1<<9) | uint16(TimingHBlank)<<12 | 1<<15 // repeat, HBlank timing, enable
	c.WriteControl(0, ctrl)

	c.Notify(TimingHBlank)
	assert.True(t, c.ch[0].enable, "repeat channel stays armed")
}

func TestVideoCaptureDisablesAtVcount161(t *testing.T) {
	bus := newFakeBus()
	c := NewController(bus, &fakeIRQ{})

	c.WriteSAD(3, wramBase)
	c.WriteDAD(3, wramBase+0x1000)
	c.WriteCount(3, 4)
	ctrl := uint16(TimingSpecial)<<12 | 1<<15
	c.WriteControl(3, ctrl)

	c.NotifyVideoCapture(161)
	assert.False(t, c.ch[3].enable)
}

func TestQueuedDmaRunsInEnqueueOrderWhenAnotherIsRunning(t *testing.T) {
	bus := newFakeBus()
	c := NewController(bus, &fakeIRQ{})
	c.running = 0 // simulate channel 0 already running

	c.WriteSAD(1, wramBase)
	c.WriteDAD(1, wramBase+0x100)
	c.WriteCount(1, 1)
	c.WriteSAD(2, wramBase)
	c.WriteDAD(2, wramBase+0x200)
	c.WriteCount(2, 1)

	c.trigger(1)
	c.trigger(2)

	assert.Equal(t, []request{{channel: 1}, {channel: 2}}, c.pending)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	bus := newFakeBus()
	c := NewController(bus, &fakeIRQ{})
	c.WriteSAD(0, 0x02001234)
	c.WriteCount(0, 7)

	snap := c.Snapshot()
	other := NewController(bus, &fakeIRQ{})
	other.Restore(snap)

	assert.Equal(t, c.ReadSAD(0), other.ReadSAD(0))
	assert.Equal(t, c.ReadCount(0), other.ReadCount(0))
}
