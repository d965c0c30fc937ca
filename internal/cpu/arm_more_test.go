package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gbacore/internal/irq"
)

func TestShiftLSLCarriesOutTheLastBitShiftedOut(t *testing.T) {
	r := shiftLSL(0x80000001, 1, false)
	assert.Equal(t, uint32(0x00000002), r.value)
	assert.True(t, r.carryOut, "bit 31 shifted out becomes the carry")
}

func TestShiftLSRImmediateZeroMeansShiftByThirtyTwo(t *testing.T) {
	r := shiftLSR(0x80000000, 0, false, true)
	assert.Equal(t, uint32(0), r.value)
	assert.True(t, r.carryOut)
}

func TestShiftASRSignExtendsNegativeValues(t *testing.T) {
	r := shiftASR(0x80000000, 4, false, true)
	assert.Equal(t, uint32(0xF8000000), r.value)
}

func TestShiftRORImmediateZeroIsRRXThroughCarry(t *testing.T) {
	r := shiftROR(0x00000001, 0, true, true)
	assert.Equal(t, uint32(0x80000000), r.value, "carry-in rotates into bit 31")
	assert.True(t, r.carryOut, "bit 0 shifted out becomes the new carry")
}

func TestCheckConditionArmTable(t *testing.T) {
	cases := []struct {
		cond       ARMCondition
		n, z, c, v bool
		want       bool
	}{
		{EQ, false, true, false, false, true},
		{NE, false, true, false, false, false},
		{CS, false, false, true, false, true},
		{GT, false, false, false, false, true},
		{GT, false, true, false, false, false},
		{LE, false, true, false, false, true},
		{AL, true, true, true, true, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, checkCondition_Arm(c.cond, c.n, c.z, c.c, c.v))
	}
}

func TestArmMulsComputesProductAndSetsFlags(t *testing.T) {
	c := NewCPU(newFakeBus(), irq.NewController())
	c.registers.SetCPSR(0)
	c.registers.SetReg(1, 6)
	c.registers.SetReg(2, 7)

	c.executeArm(0xE0100291) // MULS R0, R1, R2

	assert.Equal(t, uint32(42), c.registers.GetReg(0))
	assert.False(t, c.registers.GetFlagZ())
	assert.False(t, c.registers.GetFlagN())
}

func TestArmStrThenLdrWordRoundTrip(t *testing.T) {
	bus := newFakeBus()
	c := NewCPU(bus, irq.NewController())
	c.registers.SetReg(1, 0x03000000)
	c.registers.SetReg(0, 0xCAFEBABE)

	c.executeArm(0xE5810004) // STR R0, [R1, #4]
	assert.Equal(t, uint32(0xCAFEBABE), bus.Get32(0x03000004))

	c.executeArm(0xE5912004) // LDR R2, [R1, #4]
	assert.Equal(t, uint32(0xCAFEBABE), c.registers.GetReg(2))
	assert.Equal(t, uint32(0x03000000), c.registers.GetReg(1), "no writeback without the W bit")
}

func TestArmLdrhLoadsUnsignedHalfword(t *testing.T) {
	bus := newFakeBus()
	c := NewCPU(bus, irq.NewController())
	c.registers.SetReg(1, 0x03000000)
	bus.putHalf16(0x03000002, 0xBEEF)

	c.executeArm(0xE1D130B2) // LDRH R3, [R1, #2]

	assert.Equal(t, uint32(0xBEEF), c.registers.GetReg(3))
}

func TestArmLdrsbSignExtendsNegativeByte(t *testing.T) {
	bus := newFakeBus()
	c := NewCPU(bus, irq.NewController())
	c.registers.SetReg(1, 0x03000000)
	bus.mem[0x03000003] = 0xFF

	c.executeArm(0xE1D130D3) // LDRSB R3, [R1, #3]

	assert.Equal(t, uint32(0xFFFFFFFF), c.registers.GetReg(3))
}

func TestArmBranchWithLinkSetsLrToReturnAddressAndRedirectsPc(t *testing.T) {
	c := NewCPU(newFakeBus(), irq.NewController())
	c.registers.SetPC(0x08000100)

	c.executeArm(0xEB000002) // BL PC + 8

	assert.Equal(t, uint32(0x0800010C), c.registers.GetPC())
	assert.Equal(t, uint32(0x08000100), c.registers.GetReg(14))
}

func TestArmBranchSkippedWhenConditionFails(t *testing.T) {
	c := NewCPU(newFakeBus(), irq.NewController())
	c.registers.SetCPSR(0) // Z clear
	c.registers.SetPC(0x08000100)

	c.executeArm(0x0B000002) // BLEQ, condition not met

	assert.Equal(t, uint32(0x08000100), c.registers.GetPC(), "condition failure leaves PC untouched")
}
