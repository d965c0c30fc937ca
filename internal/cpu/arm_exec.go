package cpu

import "gbacore/internal/interfaces"

// pcOperand returns R15 as it appears to an instruction reading it as
// a general operand: the address of the current instruction + 8 (two
// instructions ahead, per the ARM pipeline). Step() has already
// advanced the stored PC to instruction+4, so one more +4 is needed.
func (c *CPU) pcOperand() uint32 { return c.registers.GetPC() + 4 }

func (c *CPU) getOperand(n uint8) uint32 {
	if n == 15 {
		return c.pcOperand()
	}
	return c.registers.GetReg(n)
}

// executeArm dispatches one decoded 32-bit ARM instruction.
func (c *CPU) executeArm(instr uint32) {
	cond := ARMCondition((instr >> 28) & 0xF)
	if !checkCondition_Arm(cond, c.registers.GetFlagN(), c.registers.GetFlagZ(), c.registers.GetFlagC(), c.registers.GetFlagV()) {
		return
	}

	switch {
	case instr&0x0FFFFFF0 == 0x012FFF10:
		c.execBX(instr)
	case instr&0x0FC000F0 == 0x00000090:
		c.execMultiply(instr)
	case instr&0x0F8000F0 == 0x00800090:
		c.execMultiplyLong(instr)
	case instr&0x0FB00FF0 == 0x01000090:
		c.execSWP(instr)
	case (instr>>26)&0x3 == 0 && (instr>>23)&0x3 == 0x2 && (instr>>20)&0x1 == 0:
		if (instr>>21)&0x1 == 0 {
			c.execMRS(instr)
		} else {
			c.execMSR(instr)
		}
	case (instr>>25)&0x7 == 0 && instr&0x90 == 0x90 && (instr>>5)&0x3 != 0:
		c.execHalfwordTransfer(instr)
	case (instr>>26)&0x3 == 0:
		c.execDataProcessing(instr)
	case (instr>>25)&0x7 == 0x4:
		c.execBlockDataTransfer(instr)
	case (instr>>25)&0x7 == 0x5:
		c.execBranch(instr)
	case (instr>>26)&0x3 == 0x1:
		if (instr>>25)&0x1 == 1 && instr&0x10 == 0x10 {
			c.execUndefined()
		} else {
			c.execSingleDataTransfer(instr)
		}
	case (instr>>24)&0xF == 0xF:
		c.execSWI(instr)
	default:
		c.execUndefined() // coprocessor instructions: unsupported on GBA
	}
}

// --- Data Processing ---

func (c *CPU) shifterOperand(instr uint32) (uint32, bool) {
	i := (instr>>25)&0x1 == 1
	carryIn := c.registers.GetFlagC()

	if i {
		imm := instr & 0xFF
		rotate := uint8((instr>>8)&0xF) * 2
		if rotate == 0 {
			return imm, carryIn
		}
		res := shiftROR(imm, rotate, carryIn, false)
		return res.value, res.carryOut
	}

	rm := uint8(instr & 0xF)
	shiftType := ARMShiftType((instr >> 5) & 0x3)
	regShift := (instr>>4)&0x1 == 1

	var amount uint8
	var value uint32
	immediateForm := true
	if regShift {
		rs := uint8((instr >> 8) & 0xF)
		amount = uint8(c.registers.GetReg(rs) & 0xFF)
		immediateForm = false
		value = c.getOperand(rm)
		if rm == 15 {
			value += 4 // Rm read as PC+12 total when used with register-specified shift
		}
	} else {
		amount = uint8((instr >> 7) & 0x1F)
		value = c.getOperand(rm)
	}

	res := evalShift(shiftType, value, amount, carryIn, immediateForm)
	return res.value, res.carryOut
}

func (c *CPU) execDataProcessing(instr uint32) {
	opcode := ARMDataProcessingOperation((instr >> 21) & 0xF)
	s := (instr>>20)&0x1 == 1
	rn := uint8((instr >> 16) & 0xF)
	rd := uint8((instr >> 12) & 0xF)

	op2, shiftCarry := c.shifterOperand(instr)
	op1 := c.getOperand(rn)

	var result uint32
	carryOut := shiftCarry
	overflow := c.registers.GetFlagV()
	writesResult := true

	switch opcode {
	case OpAND:
		result = op1 & op2
	case OpEOR:
		result = op1 ^ op2
	case OpSUB:
		result, carryOut, overflow = subWithFlags(op1, op2)
	case OpRSB:
		result, carryOut, overflow = subWithFlags(op2, op1)
	case OpADD:
		result, carryOut, overflow = addWithFlags(op1, op2, false)
	case OpADC:
		result, carryOut, overflow = addWithFlags(op1, op2, c.registers.GetFlagC())
	case OpSBC:
		result, carryOut, overflow = sbcWithFlags(op1, op2, c.registers.GetFlagC())
	case OpRSC:
		result, carryOut, overflow = sbcWithFlags(op2, op1, c.registers.GetFlagC())
	case OpTST:
		result = op1 & op2
		writesResult = false
	case OpTEQ:
		result = op1 ^ op2
		writesResult = false
	case OpCMP:
		result, carryOut, overflow = subWithFlags(op1, op2)
		writesResult = false
	case OpCMN:
		result, carryOut, overflow = addWithFlags(op1, op2, false)
		writesResult = false
	case OpORR:
		result = op1 | op2
	case OpMOV:
		result = op2
	case OpBIC:
		result = op1 &^ op2
	case OpMVN:
		result = ^op2
	}

	if writesResult {
		if rd == 15 {
			if s {
				// A flag-setting write to PC returns from an exception
				// handler: restore CPSR from the current mode's SPSR.
				c.registers.SetCPSR(c.registers.GetSPSR())
			}
			c.branchTo(result)
			return
		}
		c.registers.SetReg(rd, result)
	}

	if s && rd != 15 {
		c.registers.SetFlagN(result&0x80000000 != 0)
		c.registers.SetFlagZ(result == 0)
		c.registers.SetFlagC(carryOut)
		c.registers.SetFlagV(overflow)
	}
}

func addWithFlags(a, b uint32, carryIn bool) (result uint32, carryOut, overflow bool) {
	sum := uint64(a) + uint64(b)
	if carryIn {
		sum++
	}
	result = uint32(sum)
	carryOut = sum > 0xFFFFFFFF
	overflow = (a^result)&(b^result)&0x80000000 != 0
	return
}

func subWithFlags(a, b uint32) (result uint32, carryOut, overflow bool) {
	result = a - b
	carryOut = a >= b
	overflow = (a^b)&(a^result)&0x80000000 != 0
	return
}

func sbcWithFlags(a, b uint32, carryIn bool) (result uint32, carryOut, overflow bool) {
	borrow := uint64(1)
	if carryIn {
		borrow = 0
	}
	full := uint64(a) - uint64(b) - borrow
	result = uint32(full)
	carryOut = uint64(a) >= uint64(b)+borrow
	overflow = (a^b)&(a^result)&0x80000000 != 0
	return
}

// --- Multiply ---

func (c *CPU) execMultiply(instr uint32) {
	accumulate := (instr>>21)&0x1 == 1
	s := (instr>>20)&0x1 == 1
	rd := uint8((instr >> 16) & 0xF)
	rn := uint8((instr >> 12) & 0xF)
	rs := uint8((instr >> 8) & 0xF)
	rm := uint8(instr & 0xF)

	result := c.registers.GetReg(rm) * c.registers.GetReg(rs)
	if accumulate {
		result += c.registers.GetReg(rn)
	}
	c.registers.SetReg(rd, result)
	if s {
		c.registers.SetFlagN(result&0x80000000 != 0)
		c.registers.SetFlagZ(result == 0)
	}
}

func (c *CPU) execMultiplyLong(instr uint32) {
	signed := (instr>>22)&0x1 == 1
	accumulate := (instr>>21)&0x1 == 1
	s := (instr>>20)&0x1 == 1
	rdHi := uint8((instr >> 16) & 0xF)
	rdLo := uint8((instr >> 12) & 0xF)
	rs := uint8((instr >> 8) & 0xF)
	rm := uint8(instr & 0xF)

	var result uint64
	if signed {
		result = uint64(int64(int32(c.registers.GetReg(rm))) * int64(int32(c.registers.GetReg(rs))))
	} else {
		result = uint64(c.registers.GetReg(rm)) * uint64(c.registers.GetReg(rs))
	}
	if accumulate {
		result += uint64(c.registers.GetReg(rdHi))<<32 | uint64(c.registers.GetReg(rdLo))
	}
	c.registers.SetReg(rdLo, uint32(result))
	c.registers.SetReg(rdHi, uint32(result>>32))
	if s {
		c.registers.SetFlagN(result&0x8000000000000000 != 0)
		c.registers.SetFlagZ(result == 0)
	}
}

// --- Single data swap ---

func (c *CPU) execSWP(instr uint32) {
	byteSwap := (instr>>22)&0x1 == 1
	rn := uint8((instr >> 16) & 0xF)
	rd := uint8((instr >> 12) & 0xF)
	rm := uint8(instr & 0xF)

	addr := c.registers.GetReg(rn)
	if byteSwap {
		old := c.bus.Read8(addr, interfaces.NonSeq)
		c.bus.Write8(addr, uint8(c.registers.GetReg(rm)), interfaces.NonSeq)
		c.registers.SetReg(rd, uint32(old))
	} else {
		old := c.bus.Read32(addr, interfaces.NonSeq)
		c.bus.Write32(addr, c.registers.GetReg(rm), interfaces.NonSeq)
		c.registers.SetReg(rd, old)
	}
}

// --- Branch and exchange ---

func (c *CPU) execBX(instr uint32) {
	rm := uint8(instr & 0xF)
	target := c.registers.GetReg(rm)
	c.registers.SetThumbState(target&0x1 != 0)
	c.branchTo(target &^ 1)
}

// --- PSR transfer ---

func (c *CPU) execMRS(instr uint32) {
	useSPSR := (instr>>22)&0x1 == 1
	rd := uint8((instr >> 12) & 0xF)
	if useSPSR {
		c.registers.SetReg(rd, c.registers.GetSPSR())
	} else {
		c.registers.SetReg(rd, c.registers.GetCPSR())
	}
}

func (c *CPU) execMSR(instr uint32) {
	useSPSR := (instr>>22)&0x1 == 1

	var value uint32
	if (instr>>25)&0x1 == 1 {
		imm := instr & 0xFF
		rotate := uint8((instr>>8)&0xF) * 2
		value = shiftROR(imm, rotate, c.registers.GetFlagC(), false).value
	} else {
		rm := uint8(instr & 0xF)
		value = c.registers.GetReg(rm)
	}

	mask := uint32(0)
	if instr&(1<<19) != 0 {
		mask |= 0xFF000000 // flags field (N,Z,C,V,Q)
	}
	if instr&(1<<18) != 0 {
		mask |= 0x00FF0000
	}
	if instr&(1<<17) != 0 {
		mask |= 0x0000FF00
	}
	if instr&(1<<16) != 0 {
		mask |= 0x000000FF // control byte: mode/T/I/F, privileged-only in practice
	}

	if useSPSR {
		cur := c.registers.GetSPSR()
		c.registers.SetSPSR((cur &^ mask) | (value & mask))
	} else {
		cur := c.registers.GetCPSR()
		c.registers.SetCPSR((cur &^ mask) | (value & mask))
	}
}

// --- Single data transfer (LDR/STR) ---

func (c *CPU) execSingleDataTransfer(instr uint32) {
	pre := (instr>>24)&0x1 == 1
	up := (instr>>23)&0x1 == 1
	byteTransfer := (instr>>22)&0x1 == 1
	writeback := (instr>>21)&0x1 == 1
	load := (instr>>20)&0x1 == 1
	rn := uint8((instr >> 16) & 0xF)
	rd := uint8((instr >> 12) & 0xF)

	var offset uint32
	if (instr>>25)&0x1 == 1 {
		rm := uint8(instr & 0xF)
		shiftType := ARMShiftType((instr >> 5) & 0x3)
		amount := uint8((instr >> 7) & 0x1F)
		offset = evalShift(shiftType, c.registers.GetReg(rm), amount, c.registers.GetFlagC(), true).value
	} else {
		offset = instr & 0xFFF
	}

	base := c.getOperand(rn)
	var effective uint32
	if up {
		effective = base + offset
	} else {
		effective = base - offset
	}

	addr := base
	if pre {
		addr = effective
	}

	if load {
		var v uint32
		if byteTransfer {
			v = uint32(c.bus.Read8(addr, interfaces.NonSeq))
		} else {
			v = c.bus.Read32(addr, interfaces.NonSeq)
			rot := (addr & 0x3) * 8
			if rot != 0 {
				v = v>>rot | v<<(32-rot)
			}
		}
		if rd == 15 {
			c.branchTo(v &^ 0x3)
		} else {
			c.registers.SetReg(rd, v)
		}
	} else {
		v := c.getOperand(rd)
		if byteTransfer {
			c.bus.Write8(addr, uint8(v), interfaces.NonSeq)
		} else {
			c.bus.Write32(addr, v, interfaces.NonSeq)
		}
	}

	if (!pre || writeback) && !(load && rd == rn) {
		c.registers.SetReg(rn, effective)
	}
}

// --- Halfword / signed data transfer ---

func (c *CPU) execHalfwordTransfer(instr uint32) {
	pre := (instr>>24)&0x1 == 1
	up := (instr>>23)&0x1 == 1
	immediateOffset := (instr>>22)&0x1 == 1
	writeback := (instr>>21)&0x1 == 1
	load := (instr>>20)&0x1 == 1
	rn := uint8((instr >> 16) & 0xF)
	rd := uint8((instr >> 12) & 0xF)
	sh := (instr >> 5) & 0x3

	var offset uint32
	if immediateOffset {
		offset = (instr>>4)&0xF0 | instr&0xF
	} else {
		rm := uint8(instr & 0xF)
		offset = c.registers.GetReg(rm)
	}

	base := c.getOperand(rn)
	var effective uint32
	if up {
		effective = base + offset
	} else {
		effective = base - offset
	}
	addr := base
	if pre {
		addr = effective
	}

	if load {
		var v uint32
		switch sh {
		case 0x1: // unsigned halfword
			v = uint32(c.bus.Read16(addr, interfaces.NonSeq))
		case 0x2: // signed byte
			v = uint32(int32(int8(c.bus.Read8(addr, interfaces.NonSeq))))
		case 0x3: // signed halfword
			v = uint32(int32(int16(c.bus.Read16(addr, interfaces.NonSeq))))
		}
		c.registers.SetReg(rd, v)
	} else {
		v := c.getOperand(rd)
		c.bus.Write16(addr, uint16(v), interfaces.NonSeq)
	}

	if !pre || writeback {
		c.registers.SetReg(rn, effective)
	}
}

// --- Block data transfer (LDM/STM) ---

func (c *CPU) execBlockDataTransfer(instr uint32) {
	pre := (instr>>24)&0x1 == 1
	up := (instr>>23)&0x1 == 1
	userBank := (instr>>22)&0x1 == 1
	writeback := (instr>>21)&0x1 == 1
	load := (instr>>20)&0x1 == 1
	rn := uint8((instr >> 16) & 0xF)
	list := uint16(instr & 0xFFFF)

	count := 0
	for i := 0; i < 16; i++ {
		if list&(1<<uint(i)) != 0 {
			count++
		}
	}
	if count == 0 {
		// Empty list transfers R15 only; the base still moves by 0x40.
		list = 1 << 15
		count = 16
	}
	size := uint32(count) * 4
	base := c.registers.GetReg(rn)

	var addr uint32
	switch {
	case up && pre:
		addr = base + 4
	case up && !pre:
		addr = base
	case !up && pre:
		addr = base - size
	default:
		addr = base - size + 4
	}

	for i := uint8(0); i < 16; i++ {
		if list&(1<<i) == 0 {
			continue
		}
		if load {
			v := c.bus.Read32(addr, interfaces.Seq)
			if i == 15 {
				if userBank {
					c.registers.SetCPSR(c.registers.GetSPSR())
				}
				c.branchTo(v &^ 0x3)
			} else {
				c.registers.SetReg(i, v)
			}
		} else {
			c.bus.Write32(addr, c.getOperand(i), interfaces.Seq)
		}
		addr += 4
	}

	if writeback {
		if up {
			c.registers.SetReg(rn, base+size)
		} else {
			c.registers.SetReg(rn, base-size)
		}
	}
}

// --- Branch ---

func (c *CPU) execBranch(instr uint32) {
	link := (instr>>24)&0x1 == 1
	offset := instr & 0x00FFFFFF
	if offset&0x00800000 != 0 {
		offset |= 0xFF000000
	}
	target := c.pcOperand() + (offset << 2)
	if link {
		c.registers.SetReg(14, c.registers.GetPC())
	}
	c.branchTo(target)
}

// --- Software interrupt / undefined ---

func (c *CPU) execSWI(instr uint32) {
	c.enterException(vectorSWI, SVCMode, false)
}

func (c *CPU) execUndefined() {
	c.enterException(vectorUndef, UNDMode, false)
}
