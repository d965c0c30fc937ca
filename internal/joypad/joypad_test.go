package joypad

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gbacore/internal/interfaces"
)

type fakeIRQ struct{ requested []interfaces.InterruptSource }

func (f *fakeIRQ) Request(src interfaces.InterruptSource) { f.requested = append(f.requested, src) }
func (f *fakeIRQ) MasterEnabled() bool                    { return true }
func (f *fakeIRQ) Pending() bool                           { return len(f.requested) > 0 }

func TestKeyinputStartsAllReleased(t *testing.T) {
	j := New(&fakeIRQ{})
	assert.Equal(t, uint16(0x3FF), j.ReadKEYINPUT())
}

func TestSetButtonClearsBitWhenPressed(t *testing.T) {
	j := New(&fakeIRQ{})
	j.SetButton(ButtonA, true)
	assert.Equal(t, uint16(0x3FE), j.ReadKEYINPUT())

	j.SetButton(ButtonA, false)
	assert.Equal(t, uint16(0x3FF), j.ReadKEYINPUT())
}

func TestKeycntOrModeFiresOnAnyMatch(t *testing.T) {
	irqc := &fakeIRQ{}
	j := New(irqc)
	j.WriteKEYCNT((1 << 14) | uint16(1<<ButtonA) | uint16(1<<ButtonB)) // irq-en, OR, A|B

	j.SetButton(ButtonB, true)
	assert.Equal(t, []interfaces.InterruptSource{interfaces.IRQKeypad}, irqc.requested)
}

func TestKeycntAndModeRequiresAllSelected(t *testing.T) {
	irqc := &fakeIRQ{}
	j := New(irqc)
	j.WriteKEYCNT((1 << 14) | (1 << 15) | uint16(1<<ButtonA) | uint16(1<<ButtonB))

	j.SetButton(ButtonA, true)
	assert.Empty(t, irqc.requested, "only one of two required keys pressed")

	j.SetButton(ButtonB, true)
	assert.Equal(t, []interfaces.InterruptSource{interfaces.IRQKeypad}, irqc.requested)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	j := New(&fakeIRQ{})
	j.SetButton(ButtonStart, true)
	j.WriteKEYCNT(0x1234)

	snap := j.Snapshot()
	other := New(&fakeIRQ{})
	other.Restore(snap)

	assert.Equal(t, j.ReadKEYINPUT(), other.ReadKEYINPUT())
	assert.Equal(t, j.ReadKEYCNT(), other.ReadKEYCNT())
}
