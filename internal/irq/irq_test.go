package irq

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gbacore/internal/interfaces"
)

func TestRequestSetsIFBit(t *testing.T) {
	c := NewController()
	c.Request(interfaces.IRQVBlank)
	assert.Equal(t, uint16(1), c.ReadIF())
}

func TestRequestWakesHaltOnlyWhenEnabled(t *testing.T) {
	c := NewController()
	c.Halt()
	c.Request(interfaces.IRQTimer0)
	assert.True(t, c.Halted(), "request with source not in IE must not wake halt")

	c.WriteIE(1 << uint(interfaces.IRQTimer0))
	c.Request(interfaces.IRQTimer0)
	assert.False(t, c.Halted())
}

func TestShouldEnterIRQRequiresImeAndClearIFlag(t *testing.T) {
	c := NewController()
	c.WriteIE(1 << uint(interfaces.IRQVBlank))
	c.Request(interfaces.IRQVBlank)

	assert.False(t, c.ShouldEnterIRQ(false), "IME is still clear")

	c.WriteIME(1)
	assert.False(t, c.ShouldEnterIRQ(true), "CPSR I-flag set masks the IRQ")
	assert.True(t, c.ShouldEnterIRQ(false))
}

func TestWriteIFIsWriteOneToClear(t *testing.T) {
	c := NewController()
	c.Request(interfaces.IRQVBlank)
	c.Request(interfaces.IRQHBlank)
	assert.Equal(t, uint16(0b11), c.ReadIF())

	c.WriteIF(1 << uint(interfaces.IRQVBlank))
	assert.Equal(t, uint16(0b10), c.ReadIF(), "only the written bit clears")
}

func TestWriteHaltcntHalts(t *testing.T) {
	c := NewController()
	assert.False(t, c.Halted())
	c.WriteHALTCNT(0)
	assert.True(t, c.Halted())
}

func TestForceWakeClearsHaltWithNoPending(t *testing.T) {
	c := NewController()
	c.Halt()
	c.ForceWake()
	assert.False(t, c.Halted())
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	c := NewController()
	c.WriteIME(1)
	c.WriteIE(0x1234)
	c.Request(interfaces.IRQDma2)
	c.Halt()

	snap := c.Snapshot()

	other := NewController()
	other.Restore(snap)

	assert.Equal(t, c.ReadIME(), other.ReadIME())
	assert.Equal(t, c.ReadIE(), other.ReadIE())
	assert.Equal(t, c.ReadIF(), other.ReadIF())
	assert.Equal(t, c.Halted(), other.Halted())
}
