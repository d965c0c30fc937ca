// Package timer implements the GBA's four cascadable 16-bit timers:
// TM0CNT..TM3CNT, prescaled {1,64,256,1024}, each either scheduler-
// driven or count-up (cascading off the timer below it).
package timer

import (
	"gbacore/internal/interfaces"
	"gbacore/internal/scheduler"
)

var prescalerShift = [4]uint{0, 6, 8, 10} // 1, 64, 256, 1024

var overflowKind = [4]scheduler.Kind{
	scheduler.TimerOverflow0, scheduler.TimerOverflow1,
	scheduler.TimerOverflow2, scheduler.TimerOverflow3,
}

var irqSource = [4]interfaces.InterruptSource{
	interfaces.IRQTimer0, interfaces.IRQTimer1,
	interfaces.IRQTimer2, interfaces.IRQTimer3,
}

// FifoNotifier is implemented by the APU bridge: timer overflow on
// whichever timer drives a DMA-sound FIFO pops one sample.
type FifoNotifier interface {
	NotifyTimerOverflow(timerIndex int)
}

type unit struct {
	reload      uint16
	counter     uint16
	prescaler   uint8
	countUp     bool
	irqEnable   bool
	enable      bool
	scheduledAt uint64
}

type Controller struct {
	units [4]unit
	sched *scheduler.Scheduler
	irq   interfaces.InterruptController
	apu   FifoNotifier
}

func NewController(sched *scheduler.Scheduler, irq interfaces.InterruptController, apu FifoNotifier) *Controller {
	return &Controller{sched: sched, irq: irq, apu: apu}
}

// liveCounter computes the architectural TMxCNT_L value: the latched
// counter plus elapsed prescaled ticks since it was last (re)scheduled.
func (c *Controller) liveCounter(i int) uint16 {
	u := &c.units[i]
	if !u.enable || u.countUp {
		return u.counter
	}
	elapsed := (c.sched.Now() - u.scheduledAt) >> prescalerShift[u.prescaler]
	return uint16(uint32(u.counter) + uint32(elapsed))
}

func (c *Controller) ReadCounter(i int) uint16 { return c.liveCounter(i) }

func (c *Controller) ReadControl(i int) uint16 {
	u := &c.units[i]
	v := uint16(u.prescaler)
	if u.countUp {
		v |= 1 << 2
	}
	if u.irqEnable {
		v |= 1 << 6
	}
	if u.enable {
		v |= 1 << 7
	}
	return v
}

// WriteReload latches the next reload value; it does not affect the
// live counter until the timer is (re)started.
func (c *Controller) WriteReload(i int, value uint16) {
	c.units[i].reload = value
}

// WriteControl applies TMxCNT_H, cancelling and rescheduling as
// needed. A 0->1 transition on enable reloads the live counter.
func (c *Controller) WriteControl(i int, value uint16) {
	u := &c.units[i]
	wasEnabled := u.enable

	u.prescaler = uint8(value & 0x3)
	u.countUp = value&(1<<2) != 0
	u.irqEnable = value&(1<<6) != 0
	u.enable = value&(1<<7) != 0

	c.sched.CancelSingle(overflowKind[i])

	if u.enable && !wasEnabled {
		u.counter = u.reload
	}
	if u.enable && !u.countUp {
		c.scheduleOverflow(i)
	}
}

func (c *Controller) scheduleOverflow(i int) {
	u := &c.units[i]
	u.scheduledAt = c.sched.Now()
	ticksToOverflow := (uint64(0x10000) - uint64(u.counter)) << prescalerShift[u.prescaler]
	c.sched.Schedule(overflowKind[i], int64(ticksToOverflow))
}

// HandleOverflow runs when the scheduler pops TimerOverflowN. It
// reloads the counter, requests an IRQ if enabled, notifies the APU
// bridge if this timer drives a FIFO, cascades into timer i+1 if it
// is in count-up mode, and reschedules itself.
func (c *Controller) HandleOverflow(i int) {
	u := &c.units[i]
	u.counter = u.reload
	if u.irqEnable {
		c.irq.Request(irqSource[i])
	}
	if c.apu != nil {
		c.apu.NotifyTimerOverflow(i)
	}
	if i < 3 {
		next := &c.units[i+1]
		if next.enable && next.countUp {
			next.counter++
			if next.counter == 0 {
				c.HandleOverflow(i + 1)
			}
		}
	}
	if u.enable && !u.countUp {
		c.scheduleOverflow(i)
	}
}

// UnitState is one timer's savestate payload.
type UnitState struct {
	Reload      uint16
	Counter     uint16
	Prescaler   uint8
	CountUp     bool
	IRQEnable   bool
	Enable      bool
	ScheduledAt uint64
}

// State is the timer controller's full savestate payload.
type State struct {
	Units [4]UnitState
}

func (c *Controller) Snapshot() State {
	var s State
	for i, u := range c.units {
		s.Units[i] = UnitState{
			Reload: u.reload, Counter: u.counter, Prescaler: u.prescaler,
			CountUp: u.countUp, IRQEnable: u.irqEnable, Enable: u.enable,
			ScheduledAt: u.scheduledAt,
		}
	}
	return s
}

func (c *Controller) Restore(s State) {
	for i, us := range s.Units {
		c.units[i] = unit{
			reload: us.Reload, counter: us.Counter, prescaler: us.Prescaler,
			countUp: us.CountUp, irqEnable: us.IRQEnable, enable: us.Enable,
			scheduledAt: us.ScheduledAt,
		}
	}
}
