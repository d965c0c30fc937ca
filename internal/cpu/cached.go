package cpu

import (
	"gbacore/internal/cpu/cache"
	"gbacore/internal/interfaces"
	"gbacore/internal/memory"
)

// romStart/romEnd/iwram bounds mirror internal/bus's region map; the
// cached interpreter only builds blocks for the two regions spec
// §4.C.i names as cacheable (cart ROM and IWRAM).
const (
	cacheRomStart = 0x08000000
	cacheRomEnd   = 0x0DFFFFFF
)

func cacheable(pc uint32) bool {
	return (pc >= cacheRomStart && pc <= cacheRomEnd) ||
		(pc >= memory.IwramStart && pc <= memory.IwramEnd)
}

// EnableCachedInterpreter turns the optional block-cache accelerator
// on or off; toggling it never changes observable CPU/bus behavior,
// only whether instruction bytes are re-fetched from the bus on a
// repeat visit to a PC (spec §4.C.i: "The cache must not change
// observable CPU/bus behavior").
func (c *CPU) EnableCachedInterpreter(enabled bool) {
	c.cacheEnabled = enabled
	if c.blockCache == nil {
		c.blockCache = cache.New()
	}
}

// InvalidateCache drops any cached block whose starting page contains
// addr; the bus calls this on every write so self-modifying code and
// ROM patches stay correct.
func (c *CPU) InvalidateCache(addr uint32) {
	if c.blockCache != nil {
		c.blockCache.InvalidateAddr(addr)
	}
}

// StepCached is Step's cached-interpreter variant: identical halt/IRQ
// handling, but once control reaches ordinary fetch/execute it first
// tries to replay a cached block before falling back to building one
// one instruction at a time.
func (c *CPU) StepCached() {
	if !c.cacheEnabled || c.blockCache == nil {
		c.Step()
		return
	}

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
	if !cacheable(pc) {
		c.Step()
		return
	}

	if blk, ok := c.blockCache.Lookup(pc); ok {
		c.replayBlock(blk)
		return
	}

	c.buildAndRunBlock(pc)
}

// replayBlock re-executes a previously decoded instruction run without
// re-fetching from the bus: it charges the exact wait cycles recorded
// at decode time (bus.Idle) and re-decodes through the same
// executeArm/executeThumb handlers the plain interpreter uses, so
// result state is identical to executing the instructions un-cached.
func (c *CPU) replayBlock(blk *cache.Block) {
	for _, step := range blk.Steps {
		c.bus.Idle(step.Cycles)
		if step.Thumb {
			c.registers.SetPC(step.PC + 2)
			c.nextFetchKind = interfaces.Seq
			c.executeThumb(uint16(step.Raw))
		} else {
			c.registers.SetPC(step.PC + 4)
			c.nextFetchKind = interfaces.Seq
			c.executeArm(step.Raw)
		}
		// A taken branch/BX/BL/exception calls branchTo, which resets
		// PC and flips nextFetchKind to NonSeq; that, a halt or a newly
		// pending IRQ ends the replay here, where the plain interpreter
		// would also leave straight-line execution.
		if c.nextFetchKind == interfaces.NonSeq || c.irqCtl.Halted() ||
			c.irqCtl.ShouldEnterIRQ(c.registers.IsIRQDisabled()) {
			return
		}
	}
}

// buildAndRunBlock executes instructions one at a time exactly like
// Step, recording each decoded instruction and its fetch cost, until
// a branch fires (detected via nextFetchKind flipping to NonSeq), the
// CPU halts, an IRQ becomes pending, a page boundary is crossed in
// IWRAM, or the length cap is hit. The finished block is stored for replay next
// time PC reaches its start address.
func (c *CPU) buildAndRunBlock(startPC uint32) {
	thumb := c.registers.IsThumb()
	blk := &cache.Block{PC: startPC}
	startPage := startPC / cache.PageSize

	for len(blk.Steps) < cache.MaxBlockLen {
		pc := c.registers.GetPC()
		kind := c.nextFetchKind
		c.nextFetchKind = interfaces.Seq

		var raw uint32
		var cycles uint16
		if thumb {
			cycles = c.bus.WaitTime(pc, 16, kind)
			raw = uint32(c.bus.Read16(pc, kind))
			c.registers.SetPC(pc + 2)
		} else {
			cycles = c.bus.WaitTime(pc, 32, kind)
			raw = c.bus.Read32(pc, kind)
			c.registers.SetPC(pc + 4)
		}
		blk.Steps = append(blk.Steps, cache.Step{PC: pc, Raw: raw, Thumb: thumb, Cycles: cycles})

		if thumb {
			c.executeThumb(uint16(raw))
		} else {
			c.executeArm(raw)
		}

		if c.registers.IsThumb() != thumb {
			break // BX/long-branch switched instruction set mid-block
		}
		if c.nextFetchKind == interfaces.NonSeq {
			break // branch, BX, BL or exception entry fired
		}
		if pc >= memory.IwramStart && pc <= memory.IwramEnd &&
			c.registers.GetPC()/cache.PageSize != startPage {
			break // crossed an IWRAM page boundary
		}
		if c.irqCtl.Halted() || c.irqCtl.ShouldEnterIRQ(c.registers.IsIRQDisabled()) {
			break
		}
	}

	c.blockCache.Store(blk)
}
