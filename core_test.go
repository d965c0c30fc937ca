package gbacore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gbacore/internal/cartridge"
)

func makeTestRom(extra ...[]byte) []byte {
	rom := make([]byte, 0xC0+16)
	copy(rom[cartridge.HeaderTitle:], []byte("GOBATEST"))
	for _, e := range extra {
		rom = append(rom, e...)
	}
	return rom
}

func TestLoadCartSkipBootromRunsWithoutPanicking(t *testing.T) {
	core := NewCore(nil)
	require.NoError(t, core.LoadCart(makeTestRom(), nil))
	core.SkipBootrom(0x08000000)

	assert.True(t, core.Running())
	core.AdvanceDelta(1.0 / 60.0)
	assert.True(t, core.Running(), "no breakpoint armed, so the core keeps running past a frame")
}

// Reset after Reset equals a single Reset: rebuild is a pure function
// of (biosDump, cart), so the register string after one Reset must
// match the register string after two.
func TestResetAfterResetEqualsASingleReset(t *testing.T) {
	core := NewCore(nil)
	require.NoError(t, core.LoadCart(makeTestRom(), nil))
	core.SkipBootrom(0x08000000)
	core.AdvanceDelta(1.0 / 60.0)

	core.Reset()
	once := core.Registers().String()

	core.Reset()
	twice := core.Registers().String()

	assert.Equal(t, once, twice)
}

func TestExecBreakpointPausesCoreAtEntry(t *testing.T) {
	core := NewCore(nil)
	require.NoError(t, core.LoadCart(makeTestRom(), nil))
	core.SkipBootrom(0x08000000)
	core.AddBreakpoint(Breakpoint{Addr: 0x08000000, Exec: true})

	core.AdvanceDelta(1.0)

	assert.False(t, core.Running())
	events := core.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "exec-breakpoint", events[0].Kind)
	assert.Equal(t, uint32(0x08000000), events[0].Addr)
}

func TestSaveStateLoadStateRoundTrip(t *testing.T) {
	core := NewCore(nil)
	require.NoError(t, core.LoadCart(makeTestRom(), nil))
	core.SkipBootrom(0x08000000)
	core.AdvanceDelta(1.0 / 60.0)

	data, err := core.SaveState()
	require.NoError(t, err)
	before := core.Registers().String()

	core.AdvanceDelta(1.0 / 60.0) // diverge the live state

	require.NoError(t, core.LoadState(data))
	after := core.Registers().String()

	assert.Equal(t, before, after)
}

func TestMakeSaveReportsNoBackendForPlainRom(t *testing.T) {
	core := NewCore(nil)
	require.NoError(t, core.LoadCart(makeTestRom(), nil))

	_, ok := core.MakeSave()
	assert.False(t, ok)
}

func TestMakeSaveReturnsSramBackedSave(t *testing.T) {
	core := NewCore(nil)
	require.NoError(t, core.LoadCart(makeTestRom([]byte("SRAM_V")), nil))

	save, ok := core.MakeSave()
	require.True(t, ok)
	assert.Equal(t, "GOBATEST", save.Title)
	assert.Equal(t, cartridge.SaveSRAM.Capacity(), len(save.RAM))
}

func TestLastFrameFalseBeforeFirstVblank(t *testing.T) {
	core := NewCore(nil)
	require.NoError(t, core.LoadCart(makeTestRom(), nil))
	core.SkipBootrom(0x08000000)

	_, ok := core.LastFrame()
	assert.False(t, ok)
}

func TestProduceSamplesZeroFillsWithNoCartRunning(t *testing.T) {
	core := NewCore(nil)
	out := make([]float32, 8)
	for i := range out {
		out[i] = 1
	}
	core.ProduceSamples(out)
	for _, v := range out {
		assert.Zero(t, v)
	}
}
