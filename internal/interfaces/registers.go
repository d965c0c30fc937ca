// Package interfaces holds the contracts that let the CPU, bus and
// memory-mapped peripherals depend on each other without importing one
// another's concrete packages.
package interfaces

// RegistersInterface abstracts the ARM7TDMI register file, including its
// banked shadows and CPSR/SPSR flag bits.
type RegistersInterface interface {
	GetReg(n uint8) uint32
	SetReg(n uint8, value uint32)

	GetPC() uint32
	SetPC(value uint32)

	GetCPSR() uint32
	SetCPSR(value uint32)
	GetSPSR() uint32
	SetSPSR(value uint32)

	GetMode() uint8
	SetMode(mode uint8)

	GetFlagN() bool
	GetFlagZ() bool
	GetFlagC() bool
	GetFlagV() bool
	SetFlagN(bool)
	SetFlagZ(bool)
	SetFlagC(bool)
	SetFlagV(bool)

	IsThumb() bool
	SetThumbState(bool)
	IsIRQDisabled() bool
	SetIRQDisabled(bool)
	IsFIQDisabled() bool
	SetFIQDisabled(bool)

	String() string
}
