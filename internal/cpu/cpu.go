// Package cpu implements the ARM7TDMI: the dual ARM/Thumb instruction
// set, banked register modes, and the exception entry sequence for
// Reset, Undefined, SWI, Prefetch/Data Abort, IRQ and FIQ.
package cpu

import (
	"gbacore/internal/cpu/cache"
	"gbacore/internal/interfaces"
	"gbacore/internal/irq"
	"gbacore/internal/memory"
)

const (
	vectorReset         uint32 = 0x00
	vectorUndef         uint32 = 0x04
	vectorSWI           uint32 = 0x08
	vectorPrefetchAbort uint32 = 0x0C
	vectorDataAbort     uint32 = 0x10
	vectorIRQ           uint32 = 0x18
	vectorFIQ           uint32 = 0x1C
)

// CPU couples the register file to the bus and the interrupt
// controller. It depends on the concrete irq.Controller rather than
// the narrow interfaces.InterruptController because exception entry
// needs ShouldEnterIRQ/Halted/WakeIfPending, which peripherals have
// no business calling.
type CPU struct {
	registers *Registers
	bus       interfaces.BusInterface
	irqCtl    *irq.Controller

	nextFetchKind interfaces.AccessKind

	// blockCache and cacheEnabled implement the optional cached
	// interpreter (spec §4.C.i); nil/false by default so plain Step
	// behaves exactly like a CPU with no accelerator at all.
	blockCache   *cache.Cache
	cacheEnabled bool
}

func NewCPU(bus interfaces.BusInterface, irqCtl *irq.Controller) *CPU {
	c := &CPU{
		registers: NewRegisters(),
		bus:       bus,
		irqCtl:    irqCtl,
	}
	bus.PipelineStalled()
	return c
}

func (c *CPU) Registers() interfaces.RegistersInterface { return c.registers }
func (c *CPU) Bus() interfaces.BusInterface             { return c.bus }

// Reset puts the CPU in its post-power-on state: Supervisor mode, ARM
// state, both interrupt sources masked, PC at the BIOS entry point.
func (c *CPU) Reset() {
	c.registers = NewRegisters()
	c.registers.SetPC(memory.BiosStart)
	c.branchTo(memory.BiosStart)
	if c.blockCache != nil {
		c.blockCache.Clear()
	}
}

// SkipBootrom replicates what the BIOS's startup code leaves behind
// so a ROM can be entered directly without executing it: System mode,
// banked stack pointers preset, PC at the cartridge entry point.
func (c *CPU) SkipBootrom(entry uint32) {
	c.registers.SetMode(SVCMode)
	c.registers.SetReg(13, 0x03007FE0)
	c.registers.SetMode(IRQMode)
	c.registers.SetReg(13, 0x03007FA0)
	c.registers.SetMode(SYSMode)
	c.registers.SetReg(13, 0x03007F00)
	c.registers.SetIRQDisabled(false)
	c.registers.SetFIQDisabled(false)
	c.branchTo(entry)
}

// CPUState is the ARM7TDMI's savestate payload: the full register
// file plus the one piece of pipeline state that survives a step
// boundary (whether the next fetch is charged sequential or not).
type CPUState struct {
	Registers     RegisterState
	NextFetchKind interfaces.AccessKind
}

func (c *CPU) Snapshot() CPUState {
	return CPUState{Registers: c.registers.Snapshot(), NextFetchKind: c.nextFetchKind}
}

func (c *CPU) Restore(s CPUState) {
	c.registers.Restore(s.Registers)
	c.nextFetchKind = s.NextFetchKind
}

func (c *CPU) Halted() bool     { return c.irqCtl.Halted() }
func (c *CPU) SetHalted(h bool) {
	if h {
		c.irqCtl.Halt()
	} else {
		c.irqCtl.ForceWake()
	}
}

// branchTo redirects PC and flushes the prefetch buffer; every control
// flow change (branch, BX, PC-writing data processing/LDR/LDM, and
// exception entry) goes through here so the next fetch is charged as
// non-sequential.
func (c *CPU) branchTo(target uint32) {
	if c.registers.IsThumb() {
		c.registers.SetPC(target &^ 1)
	} else {
		c.registers.SetPC(target &^ 3)
	}
	c.bus.PipelineStalled()
	c.nextFetchKind = interfaces.NonSeq
}

// enterException performs the architectural exception-entry sequence:
// save CPSR to the new mode's SPSR, bank LR to the return address
// (the step loop has already advanced PC past the faulting/current
// instruction, matching the GBA BIOS's SUBS PC,LR,#4 convention),
// switch mode, force ARM state, and mask IRQ (and FIQ, for Reset/FIQ).
func (c *CPU) enterException(vector uint32, mode uint8, maskFIQ bool) {
	savedCPSR := c.registers.GetCPSR()
	returnPC := c.registers.GetPC()

	c.registers.SetMode(mode)
	c.registers.SetSPSR(savedCPSR)
	c.registers.SetReg(14, returnPC)
	c.registers.SetIRQDisabled(true)
	if maskFIQ {
		c.registers.SetFIQDisabled(true)
	}
	c.registers.SetThumbState(false)
	c.branchTo(vector)
}

// Step executes one instruction, or services a pending halt/IRQ. Halt
// is modeled by idling the bus (which still advances the scheduler,
// so PPU/timer/APU events keep firing) one cycle at a time until an
// enabled interrupt becomes pending.
func (c *CPU) Step() {
	if c.irqCtl.Halted() {
		c.irqCtl.WakeIfPending()
		if c.irqCtl.Halted() {
			c.bus.Idle(1)
			return
		}
	}

	if c.irqCtl.ShouldEnterIRQ(c.registers.IsIRQDisabled()) {
		c.enterException(vectorIRQ, IRQMode, false)
		return
	}

	pc := c.registers.GetPC()
	kind := c.nextFetchKind
	c.nextFetchKind = interfaces.Seq

	if c.registers.IsThumb() {
		instr := c.bus.Read16(pc, kind)
		c.registers.SetPC(pc + 2)
		c.executeThumb(instr)
	} else {
		instr := c.bus.Read32(pc, kind)
		c.registers.SetPC(pc + 4)
		c.executeArm(instr)
	}
}
