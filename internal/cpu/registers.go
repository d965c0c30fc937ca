package cpu

import (
	"fmt"

	"gbacore/internal/interfaces"
)

// ARM7TDMI CPU operating modes. The 5-bit encoding is fixed by the
// architecture and must be preserved exactly.
const (
	USRMode uint8 = 0b10000
	FIQMode uint8 = 0b10001
	IRQMode uint8 = 0b10010
	SVCMode uint8 = 0b10011
	ABTMode uint8 = 0b10111
	UNDMode uint8 = 0b11011
	SYSMode uint8 = 0b11111
)

const (
	flagN uint32 = 1 << 31
	flagZ uint32 = 1 << 30
	flagC uint32 = 1 << 29
	flagV uint32 = 1 << 28
	flagQ uint32 = 1 << 27
	flagI uint32 = 1 << 7
	flagF uint32 = 1 << 6
	flagT uint32 = 1 << 5
)

// Registers holds the full ARM7TDMI register file: R0-R12 shared by
// most modes, banked SP/LR per privileged mode, FIQ's extra banked
// R8-R12, CPSR and the five mode SPSRs.
type Registers struct {
	interfaces.RegistersInterface

	r [13]uint32 // R0-R12 for non-FIQ modes

	spUsr, lrUsr uint32
	spSvc, lrSvc uint32
	spAbt, lrAbt uint32
	spUnd, lrUnd uint32
	spIrq, lrIrq uint32

	r8Fiq, r9Fiq, r10Fiq, r11Fiq, r12Fiq uint32
	spFiq, lrFiq                        uint32

	pc   uint32
	cpsr uint32

	spsrSvc, spsrAbt, spsrUnd, spsrIrq, spsrFiq uint32
}

// NewRegisters returns a register file in the CPU's reset state:
// Supervisor mode, ARM state, both interrupt sources masked.
func NewRegisters() *Registers {
	r := &Registers{}
	r.cpsr = uint32(SVCMode) | flagI | flagF
	return r
}

func (r *Registers) GetPC() uint32      { return r.pc }
func (r *Registers) SetPC(value uint32) { r.pc = value }
func (r *Registers) GetCPSR() uint32    { return r.cpsr }
func (r *Registers) SetCPSR(value uint32) {
	r.cpsr = value
}

func (r *Registers) GetMode() uint8 { return uint8(r.cpsr & 0x1F) }

func (r *Registers) SetMode(mode uint8) {
	r.cpsr = (r.cpsr &^ 0x1F) | uint32(mode)
}

// GetReg returns a general register, resolving the bank implied by
// the current mode. R15 always returns the raw PC; callers needing
// the architectural PC+8/PC+4 read-ahead value add that themselves.
func (r *Registers) GetReg(n uint8) uint32 {
	if n == 15 {
		return r.pc
	}
	mode := r.GetMode()
	if mode == FIQMode {
		switch n {
		case 8:
			return r.r8Fiq
		case 9:
			return r.r9Fiq
		case 10:
			return r.r10Fiq
		case 11:
			return r.r11Fiq
		case 12:
			return r.r12Fiq
		}
	}
	switch n {
	case 13:
		return r.bankedSP(mode)
	case 14:
		return r.bankedLR(mode)
	default:
		return r.r[n]
	}
}

func (r *Registers) SetReg(n uint8, value uint32) {
	if n == 15 {
		r.pc = value
		return
	}
	mode := r.GetMode()
	if mode == FIQMode {
		switch n {
		case 8:
			r.r8Fiq = value
			return
		case 9:
			r.r9Fiq = value
			return
		case 10:
			r.r10Fiq = value
			return
		case 11:
			r.r11Fiq = value
			return
		case 12:
			r.r12Fiq = value
			return
		}
	}
	switch n {
	case 13:
		r.setBankedSP(mode, value)
	case 14:
		r.setBankedLR(mode, value)
	default:
		r.r[n] = value
	}
}

func (r *Registers) bankedSP(mode uint8) uint32 {
	switch mode {
	case SVCMode:
		return r.spSvc
	case ABTMode:
		return r.spAbt
	case UNDMode:
		return r.spUnd
	case IRQMode:
		return r.spIrq
	case FIQMode:
		return r.spFiq
	default:
		return r.spUsr
	}
}

func (r *Registers) setBankedSP(mode uint8, value uint32) {
	switch mode {
	case SVCMode:
		r.spSvc = value
	case ABTMode:
		r.spAbt = value
	case UNDMode:
		r.spUnd = value
	case IRQMode:
		r.spIrq = value
	case FIQMode:
		r.spFiq = value
	default:
		r.spUsr = value
	}
}

func (r *Registers) bankedLR(mode uint8) uint32 {
	switch mode {
	case SVCMode:
		return r.lrSvc
	case ABTMode:
		return r.lrAbt
	case UNDMode:
		return r.lrUnd
	case IRQMode:
		return r.lrIrq
	case FIQMode:
		return r.lrFiq
	default:
		return r.lrUsr
	}
}

func (r *Registers) setBankedLR(mode uint8, value uint32) {
	switch mode {
	case SVCMode:
		r.lrSvc = value
	case ABTMode:
		r.lrAbt = value
	case UNDMode:
		r.lrUnd = value
	case IRQMode:
		r.lrIrq = value
	case FIQMode:
		r.lrFiq = value
	default:
		r.lrUsr = value
	}
}

// GetSPSR/SetSPSR are unpredictable in User/System mode per the
// architecture; the core returns/discards CPSR in that case rather
// than panicking, since games never rely on that behavior.
func (r *Registers) GetSPSR() uint32 {
	switch r.GetMode() {
	case FIQMode:
		return r.spsrFiq
	case SVCMode:
		return r.spsrSvc
	case ABTMode:
		return r.spsrAbt
	case IRQMode:
		return r.spsrIrq
	case UNDMode:
		return r.spsrUnd
	default:
		return r.cpsr
	}
}

func (r *Registers) SetSPSR(value uint32) {
	switch r.GetMode() {
	case FIQMode:
		r.spsrFiq = value
	case SVCMode:
		r.spsrSvc = value
	case ABTMode:
		r.spsrAbt = value
	case IRQMode:
		r.spsrIrq = value
	case UNDMode:
		r.spsrUnd = value
	}
}

func (r *Registers) IsThumb() bool { return r.cpsr&flagT != 0 }
func (r *Registers) SetThumbState(thumb bool) {
	if thumb {
		r.cpsr |= flagT
	} else {
		r.cpsr &^= flagT
	}
}

func (r *Registers) IsFIQDisabled() bool { return r.cpsr&flagF != 0 }
func (r *Registers) SetFIQDisabled(disabled bool) {
	if disabled {
		r.cpsr |= flagF
	} else {
		r.cpsr &^= flagF
	}
}

func (r *Registers) IsIRQDisabled() bool { return r.cpsr&flagI != 0 }
func (r *Registers) SetIRQDisabled(disabled bool) {
	if disabled {
		r.cpsr |= flagI
	} else {
		r.cpsr &^= flagI
	}
}

func (r *Registers) GetFlagN() bool { return r.cpsr&flagN != 0 }
func (r *Registers) GetFlagZ() bool { return r.cpsr&flagZ != 0 }
func (r *Registers) GetFlagC() bool { return r.cpsr&flagC != 0 }
func (r *Registers) GetFlagV() bool { return r.cpsr&flagV != 0 }

func (r *Registers) SetFlagN(set bool) { r.setFlagBit(flagN, set) }
func (r *Registers) SetFlagZ(set bool) { r.setFlagBit(flagZ, set) }
func (r *Registers) SetFlagC(set bool) { r.setFlagBit(flagC, set) }
func (r *Registers) SetFlagV(set bool) { r.setFlagBit(flagV, set) }

func (r *Registers) setFlagBit(bit uint32, set bool) {
	if set {
		r.cpsr |= bit
	} else {
		r.cpsr &^= bit
	}
}

// RegisterState is the Registers file's complete savestate payload:
// every bank plus CPSR, with no derived values.
type RegisterState struct {
	R                                            [13]uint32
	SpUsr, LrUsr                                 uint32
	SpSvc, LrSvc                                 uint32
	SpAbt, LrAbt                                 uint32
	SpUnd, LrUnd                                 uint32
	SpIrq, LrIrq                                 uint32
	R8Fiq, R9Fiq, R10Fiq, R11Fiq, R12Fiq         uint32
	SpFiq, LrFiq                                 uint32
	PC, CPSR                                     uint32
	SpsrSvc, SpsrAbt, SpsrUnd, SpsrIrq, SpsrFiq uint32
}

func (r *Registers) Snapshot() RegisterState {
	return RegisterState{
		R: r.r,
		SpUsr: r.spUsr, LrUsr: r.lrUsr,
		SpSvc: r.spSvc, LrSvc: r.lrSvc,
		SpAbt: r.spAbt, LrAbt: r.lrAbt,
		SpUnd: r.spUnd, LrUnd: r.lrUnd,
		SpIrq: r.spIrq, LrIrq: r.lrIrq,
		R8Fiq: r.r8Fiq, R9Fiq: r.r9Fiq, R10Fiq: r.r10Fiq, R11Fiq: r.r11Fiq, R12Fiq: r.r12Fiq,
		SpFiq: r.spFiq, LrFiq: r.lrFiq,
		PC: r.pc, CPSR: r.cpsr,
		SpsrSvc: r.spsrSvc, SpsrAbt: r.spsrAbt, SpsrUnd: r.spsrUnd, SpsrIrq: r.spsrIrq, SpsrFiq: r.spsrFiq,
	}
}

func (r *Registers) Restore(s RegisterState) {
	r.r = s.R
	r.spUsr, r.lrUsr = s.SpUsr, s.LrUsr
	r.spSvc, r.lrSvc = s.SpSvc, s.LrSvc
	r.spAbt, r.lrAbt = s.SpAbt, s.LrAbt
	r.spUnd, r.lrUnd = s.SpUnd, s.LrUnd
	r.spIrq, r.lrIrq = s.SpIrq, s.LrIrq
	r.r8Fiq, r.r9Fiq, r.r10Fiq, r.r11Fiq, r.r12Fiq = s.R8Fiq, s.R9Fiq, s.R10Fiq, s.R11Fiq, s.R12Fiq
	r.spFiq, r.lrFiq = s.SpFiq, s.LrFiq
	r.pc, r.cpsr = s.PC, s.CPSR
	r.spsrSvc, r.spsrAbt, r.spsrUnd, r.spsrIrq, r.spsrFiq = s.SpsrSvc, s.SpsrAbt, s.SpsrUnd, s.SpsrIrq, s.SpsrFiq
}

func (r *Registers) String() string {
	mode := r.GetMode()
	thumb := "ARM"
	if r.IsThumb() {
		thumb = "THUMB"
	}
	return fmt.Sprintf(
		"R0 =%08X R1 =%08X R2 =%08X R3 =%08X R4 =%08X R5 =%08X R6 =%08X R7 =%08X\n"+
			"R8 =%08X R9 =%08X R10=%08X R11=%08X R12=%08X SP =%08X LR =%08X PC =%08X\n"+
			"CPSR=%08X mode=%02X %s N:%t Z:%t C:%t V:%t I:%t F:%t",
		r.GetReg(0), r.GetReg(1), r.GetReg(2), r.GetReg(3),
		r.GetReg(4), r.GetReg(5), r.GetReg(6), r.GetReg(7),
		r.GetReg(8), r.GetReg(9), r.GetReg(10), r.GetReg(11),
		r.GetReg(12), r.GetReg(13), r.GetReg(14), r.GetReg(15),
		r.cpsr, mode, thumb,
		r.GetFlagN(), r.GetFlagZ(), r.GetFlagC(), r.GetFlagV(),
		r.IsIRQDisabled(), r.IsFIQDisabled(),
	)
}
