package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gbacore/internal/interfaces"
	"gbacore/internal/scheduler"
)

type fakeIRQ struct {
	requested []interfaces.InterruptSource
}

func (f *fakeIRQ) Request(src interfaces.InterruptSource) { f.requested = append(f.requested, src) }
func (f *fakeIRQ) MasterEnabled() bool                    { return true }
func (f *fakeIRQ) Pending() bool                           { return len(f.requested) > 0 }

type fakeFifo struct{ notified []int }

func (f *fakeFifo) NotifyTimerOverflow(i int) { f.notified = append(f.notified, i) }

func newTestController() (*Controller, *scheduler.Scheduler, *fakeIRQ, *fakeFifo) {
	sched := scheduler.New()
	irqc := &fakeIRQ{}
	apu := &fakeFifo{}
	return NewController(sched, irqc, apu), sched, irqc, apu
}

func TestLiveCounterAdvancesWithScheduler(t *testing.T) {
	c, sched, _, _ := newTestController()
	c.WriteReload(0, 0xFFF0)
	c.WriteControl(0, 1<<7) // enable, prescaler 1

	assert.Equal(t, uint16(0xFFF0), c.ReadCounter(0))
	sched.Advance(5)
	assert.Equal(t, uint16(0xFFF5), c.ReadCounter(0))
}

func TestOverflowReloadsAndRequestsIrq(t *testing.T) {
	c, sched, irqc, _ := newTestController()
	c.WriteReload(0, 0xFFFE)
	c.WriteControl(0, (1<<7)|(1<<6)) // enable + irq, prescaler 1

	sched.Advance(2)
	kind, _, ok := sched.PopDue()
	assert.True(t, ok)
	assert.Equal(t, scheduler.TimerOverflow0, kind)

	c.HandleOverflow(0)
	assert.Equal(t, uint16(0xFFFE), c.ReadCounter(0))
	assert.Equal(t, []interfaces.InterruptSource{interfaces.IRQTimer0}, irqc.requested)
}

func TestOverflowNotifiesFifo(t *testing.T) {
	c, _, _, apu := newTestController()
	c.WriteReload(0, 0xFFFF)
	c.WriteControl(0, 1<<7)

	c.HandleOverflow(0)
	assert.Equal(t, []int{0}, apu.notified)
}

// Mirrors spec §8 scenario 6: Timer0 prescaler 1, reload 0xFFFE;
// Timer1 count-up, reload 0, enabled, irq enabled. Two Timer0
// overflows must advance Timer1 by exactly 2 without firing an IRQ.
func TestCountUpCascadeAdvancesWithoutIrqUntilItsOwnOverflow(t *testing.T) {
	c, _, irqc, _ := newTestController()
	c.WriteReload(0, 0xFFFE)
	c.WriteControl(0, 1<<7) // Timer0 enabled, no irq

	c.WriteReload(1, 0x0000)
	c.WriteControl(1, (1<<7)|(1<<2)|(1<<6)) // Timer1 count-up, enabled, irq

	c.HandleOverflow(0)
	c.HandleOverflow(0)

	assert.Equal(t, uint16(2), c.ReadCounter(1))
	assert.Empty(t, irqc.requested, "timer1 has not overflowed yet")
}

func TestCountUpOverflowCascadesDepthFirstAndFiresIrqExactlyOnce(t *testing.T) {
	c, _, irqc, _ := newTestController()
	c.WriteReload(0, 0xFFFF)
	c.WriteControl(0, 1<<7)

	c.WriteReload(1, 0xFFFF)
	c.WriteControl(1, (1<<7)|(1<<2)|(1<<6))

	c.HandleOverflow(0) // Timer1 0xFFFF -> 0x0000, overflows too and reloads 0xFFFF

	assert.Equal(t, uint16(0xFFFF), c.ReadCounter(1))
	assert.Equal(t, []interfaces.InterruptSource{interfaces.IRQTimer1}, irqc.requested)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	c, sched, _, _ := newTestController()
	c.WriteReload(2, 0x1234)
	c.WriteControl(2, (1<<7)|(1<<1))
	sched.Advance(7)

	snap := c.Snapshot()
	other := NewController(sched, &fakeIRQ{}, &fakeFifo{})
	other.Restore(snap)

	assert.Equal(t, c.ReadCounter(2), other.ReadCounter(2))
	assert.Equal(t, c.ReadControl(2), other.ReadControl(2))
}
