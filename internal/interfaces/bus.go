package interfaces

// AccessKind predicts the timing class of the next bus access, per the
// ARM7TDMI's sequential/non-sequential cycle model (spec §3 "Cpu state").
type AccessKind uint8

const (
	Seq AccessKind = iota
	NonSeq
)

// BusInterface is everything the CPU (and DMA engine) need from the
// memory map: charged reads/writes, a side-effect-free peek
// (Get8/Get16/Get32), and a pure cost lookup used by the
// cached interpreter to pre-compute block timing.
type BusInterface interface {
	Read8(addr uint32, kind AccessKind) uint8
	Read16(addr uint32, kind AccessKind) uint16
	Read32(addr uint32, kind AccessKind) uint32
	Write8(addr uint32, value uint8, kind AccessKind)
	Write16(addr uint32, value uint16, kind AccessKind)
	Write32(addr uint32, value uint32, kind AccessKind)

	Get8(addr uint32) uint8
	Get16(addr uint32) uint16
	Get32(addr uint32) uint32

	WaitTime(addr uint32, width uint8, kind AccessKind) uint16
	PipelineStalled()

	// Idle advances the scheduler by n ticks without touching memory,
	// used while the CPU is halted so PPU/timer/APU events keep firing.
	Idle(n uint16)
}
