package interfaces

// CPUInterface represents the ARM7TDMI CPU component driving the
// scheduler-coupled fetch/decode/execute loop described in the core's
// design notes: every Step may advance the scheduler, service pending
// events, and take an exception before (or instead of) executing an
// instruction.
type CPUInterface interface {
	Registers() RegistersInterface
	Bus() BusInterface
	Reset()
	Step()
	Halted() bool
	SetHalted(bool)
}
