package apu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gbacore/internal/dma"
)

type fakeDmaRequester struct{ notified []dma.Timing }

func (f *fakeDmaRequester) Notify(reason dma.Timing) { f.notified = append(f.notified, reason) }

func TestPushAndDrainFifo(t *testing.T) {
	a := New(&fakeDmaRequester{})
	a.PushFIFO(0, []int8{1, 2, 3, 4})

	a.NotifyTimerOverflow(0) // timerA == 0 by default
	assert.Equal(t, int8(1), a.fifoA.cur)
	assert.Equal(t, 3, a.fifoA.count)
}

func TestFifoRefillRequestedOnceAtSixteenBytesRemaining(t *testing.T) {
	req := &fakeDmaRequester{}
	a := New(req)
	samples := make([]int8, 32)
	a.PushFIFO(0, samples)

	for i := 0; i < 15; i++ {
		a.NotifyTimerOverflow(0)
	}
	assert.Empty(t, req.notified, "still above the 16-byte threshold")

	a.NotifyTimerOverflow(0) // 16th pop drains to exactly 16
	assert.Equal(t, []dma.Timing{dma.TimingSpecial}, req.notified)

	a.NotifyTimerOverflow(0) // drains to 15, no new refill request yet
	assert.Len(t, req.notified, 1)
}

func TestNotifyTimerOverflowIgnoresNonMatchingTimer(t *testing.T) {
	a := New(&fakeDmaRequester{})
	a.PushFIFO(0, []int8{9})
	a.NotifyTimerOverflow(5) // neither timerA(0) nor timerB(1)
	assert.Equal(t, 1, a.fifoA.count, "fifo must not drain for an unrelated timer")
}

func TestWriteSoundCntHSelectsTimersAndChannels(t *testing.T) {
	a := New(&fakeDmaRequester{})
	a.WriteSoundCntH((1 << 8) | (1 << 9) | (1 << 10) | (1 << 13) | (1 << 14))

	assert.True(t, a.enableRightA)
	assert.True(t, a.enableLeftA)
	assert.Equal(t, 1, a.timerA)
	assert.True(t, a.enableLeftB)
	assert.False(t, a.enableRightB)
	assert.Equal(t, 1, a.timerB)
}

func TestPushSampleAppliesSoundBias(t *testing.T) {
	a := New(&fakeDmaRequester{})
	a.WriteSoundBias(0x200) // neutral bias, midpoint

	a.PushSample()
	out := make([]float32, 2)
	a.ProduceSamples(out)
	assert.InDelta(t, 0, out[0], 1e-6)
	assert.InDelta(t, 0, out[1], 1e-6)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	a := New(&fakeDmaRequester{})
	a.PushFIFO(0, []int8{1, 2})
	a.WriteSoundBias(0x250)
	a.WriteSoundCntH(1 << 9)

	snap := a.Snapshot()
	other := New(&fakeDmaRequester{})
	other.Restore(snap)

	assert.Equal(t, a.fifoA.count, other.fifoA.count)
	assert.Equal(t, a.soundBias, other.soundBias)
	assert.Equal(t, a.enableLeftA, other.enableLeftA)
}
