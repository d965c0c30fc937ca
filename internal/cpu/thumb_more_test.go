package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gbacore/internal/irq"
)

func TestThumbImmediateMovSetsRegisterAndFlags(t *testing.T) {
	c := NewCPU(newFakeBus(), irq.NewController())

	c.executeThumb(0x2055) // MOV R0, #0x55

	assert.Equal(t, uint32(0x55), c.registers.GetReg(0))
	assert.False(t, c.registers.GetFlagZ())
}

func TestThumbImmediateCmpSetsZeroFlagWithoutWriting(t *testing.T) {
	c := NewCPU(newFakeBus(), irq.NewController())
	c.registers.SetReg(1, 0x10)

	c.executeThumb(0x2910) // CMP R1, #0x10

	assert.True(t, c.registers.GetFlagZ())
	assert.Equal(t, uint32(0x10), c.registers.GetReg(1), "CMP never writes back")
}

func TestThumbLoadStoreImmOffsetWordRoundTrip(t *testing.T) {
	bus := newFakeBus()
	c := NewCPU(bus, irq.NewController())
	c.registers.SetReg(1, 0x03000000)
	c.registers.SetReg(0, 0x12345678)

	c.executeThumb(0x6088) // STR R0, [R1, #8]
	assert.Equal(t, uint32(0x12345678), bus.Get32(0x03000008))

	c.executeThumb(0x688A) // LDR R2, [R1, #8]
	assert.Equal(t, uint32(0x12345678), c.registers.GetReg(2))
}

func TestThumbConditionalBranchTakenComputesTarget(t *testing.T) {
	c := NewCPU(newFakeBus(), irq.NewController())
	c.registers.SetFlagZ(true)
	c.registers.SetPC(0x08000000)

	c.executeThumb(0xD005) // BEQ PC+2+5*2

	assert.Equal(t, uint32(0x0800000C), c.registers.GetPC())
}

func TestThumbConditionalBranchNotTakenLeavesPc(t *testing.T) {
	c := NewCPU(newFakeBus(), irq.NewController())
	c.registers.SetFlagZ(false)
	c.registers.SetPC(0x08000000)

	c.executeThumb(0xD005) // BEQ, condition not met

	assert.Equal(t, uint32(0x08000000), c.registers.GetPC())
}
