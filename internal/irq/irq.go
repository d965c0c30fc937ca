// Package irq implements the GBA interrupt controller: IME/IE/IF and
// HALTCNT, and the request/wake logic described for the interrupt
// controller component.
package irq

import "gbacore/internal/interfaces"

// Controller owns IME, IE, IF and the halt latch. IF is write-one-to-
// clear from the CPU side; Request ORs a bit in from a peripheral.
type Controller struct {
	ime    bool
	ie     uint16
	iflags uint16
	halted bool
}

func NewController() *Controller {
	return &Controller{}
}

func (c *Controller) Request(src interfaces.InterruptSource) {
	c.iflags |= 1 << uint(src)
	if c.ie&c.iflags != 0 {
		c.halted = false
	}
}

func (c *Controller) MasterEnabled() bool { return c.ime }
func (c *Controller) Pending() bool       { return c.ie&c.iflags != 0 }

// ShouldEnterIRQ reports whether the CPU should take an IRQ exception
// at the next instruction boundary: IME set, CPSR I-flag clear, and a
// pending enabled source.
func (c *Controller) ShouldEnterIRQ(cpsrIFlagSet bool) bool {
	return c.ime && !cpsrIFlagSet && c.Pending()
}

func (c *Controller) Halted() bool { return c.halted }
func (c *Controller) Halt()        { c.halted = true }
func (c *Controller) WakeIfPending() {
	if c.Pending() {
		c.halted = false
	}
}

// ForceWake clears the halt latch unconditionally; used by the
// debugger to resume a CPU that is halted with no interrupt pending.
func (c *Controller) ForceWake() { c.halted = false }

// State is the interrupt controller's savestate payload.
type State struct {
	IME    bool
	IE     uint16
	IFlags uint16
	Halted bool
}

func (c *Controller) Snapshot() State {
	return State{IME: c.ime, IE: c.ie, IFlags: c.iflags, Halted: c.halted}
}

func (c *Controller) Restore(s State) {
	c.ime, c.ie, c.iflags, c.halted = s.IME, s.IE, s.IFlags, s.Halted
}

// IME/IE/IF register access, used by the bus's I/O dispatch.

func (c *Controller) ReadIME() uint16 {
	if c.ime {
		return 1
	}
	return 0
}

func (c *Controller) WriteIME(value uint16) { c.ime = value&1 != 0 }

func (c *Controller) ReadIE() uint16  { return c.ie }
func (c *Controller) WriteIE(v uint16) { c.ie = v & 0x3FFF }

func (c *Controller) ReadIF() uint16 { return c.iflags }

// WriteIF implements write-one-to-clear: a set bit in value clears
// the corresponding pending flag.
func (c *Controller) WriteIF(value uint16) {
	c.iflags &^= value
}

// WriteHALTCNT triggers a halt (bit 7 clear = halt, set = stop; the
// core does not model STOP's peripheral shutdown, only halt).
func (c *Controller) WriteHALTCNT(value uint8) {
	c.halted = true
}
