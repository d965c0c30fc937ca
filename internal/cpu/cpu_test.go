package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gbacore/internal/interfaces"
	"gbacore/internal/irq"
)

// fakeBus is a flat little-endian memory space big enough to stand in
// for the real bus in unit tests that don't need wait-state accounting.
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
func (f *fakeBus) Get8(addr uint32) uint8                               { return f.mem[addr] }
func (f *fakeBus) Get16(addr uint32) uint16                             { return f.Read16(addr, 0) }
func (f *fakeBus) Get32(addr uint32) uint32                             { return f.Read32(addr, 0) }
func (f *fakeBus) WaitTime(uint32, uint8, interfaces.AccessKind) uint16 { return 1 }
func (f *fakeBus) PipelineStalled()                                    {}
func (f *fakeBus) Idle(uint16)                                         {}

func (f *fakeBus) putWord32(addr, v uint32)  { f.Write32(addr, v, 0) }
func (f *fakeBus) putHalf16(addr uint32, v uint16) { f.Write16(addr, v, 0) }

// Spec §8 scenario 1: ARM ADDS with a signed-overflow result.
func TestARMAddsSignedOverflow(t *testing.T) {
	c := NewCPU(newFakeBus(), irq.NewController())
	c.registers.SetCPSR(0)
	c.registers.SetReg(0, 0x7FFFFFFF)
	c.registers.SetReg(1, 1)

	c.executeArm(0xE0900001) // ADDS R0, R0, R1

	assert.Equal(t, uint32(0x80000000), c.registers.GetReg(0))
	assert.True(t, c.registers.GetFlagN())
	assert.False(t, c.registers.GetFlagZ())
	assert.False(t, c.registers.GetFlagC())
	assert.True(t, c.registers.GetFlagV())
}

// Spec §8 scenario 2: Thumb PUSH {R0} then POP {R1} round-trips the
// value through the stack and restores SP.
func TestThumbPushPopRoundTrip(t *testing.T) {
	bus := newFakeBus()
	c := NewCPU(bus, irq.NewController())
	c.registers.SetThumbState(true)
	c.registers.SetReg(13, 0x03007F00) // SP
	c.registers.SetReg(0, 0xDEADBEEF)

	c.executeThumb(0xB401) // PUSH {R0}
	assert.Equal(t, uint32(0x03007EFC), c.registers.GetReg(13))
	assert.Equal(t, uint32(0xDEADBEEF), bus.Get32(0x03007EFC))

	c.executeThumb(0xBC02) // POP {R1}
	assert.Equal(t, uint32(0xDEADBEEF), c.registers.GetReg(1))
	assert.Equal(t, uint32(0x03007F00), c.registers.GetReg(13))
}

// Spec §8 scenario 3: a VBlank IRQ taken at an instruction boundary
// enters IRQ mode with the documented SPSR/LR/PC/flag contract.
func TestIRQEntrySavesStateAndRedirects(t *testing.T) {
	bus := newFakeBus()
	irqCtl := irq.NewController()
	c := NewCPU(bus, irqCtl)

	c.registers.SetCPSR(uint32(USRMode)) // IRQ and FIQ unmasked, ARM state
	c.registers.SetPC(0x08000000)

	irqCtl.WriteIE(1) // VBlank
	irqCtl.WriteIME(1)
	irqCtl.Request(interfaces.IRQVBlank)

	require.True(t, irqCtl.ShouldEnterIRQ(c.registers.IsIRQDisabled()))
	c.Step()

	assert.Equal(t, IRQMode, c.registers.GetMode())
	assert.Equal(t, uint32(0x08000000), c.registers.GetReg(14), "LR_irq = PC+4-4")
	assert.Equal(t, uint32(0x18), c.registers.GetPC())
	assert.True(t, c.registers.IsIRQDisabled())
	assert.False(t, c.registers.IsThumb())
	assert.Equal(t, uint32(USRMode), c.registers.GetSPSR())
}

func TestResetEntersSupervisorModeAtBiosStart(t *testing.T) {
	c := NewCPU(newFakeBus(), irq.NewController())
	c.Reset()

	assert.Equal(t, SVCMode, c.registers.GetMode())
	assert.False(t, c.registers.IsThumb())
	assert.Equal(t, uint32(0), c.registers.GetPC())
}

func TestHaltedCpuIdlesUntilPendingInterrupt(t *testing.T) {
	bus := newFakeBus()
	irqCtl := irq.NewController()
	c := NewCPU(bus, irqCtl)
	irqCtl.Halt()

	c.Step()
	assert.True(t, c.Halted(), "still halted with nothing pending")

	irqCtl.WriteIE(1)
	irqCtl.Request(interfaces.IRQVBlank)
	c.Step()
	assert.False(t, c.Halted())
}
