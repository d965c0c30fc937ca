package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicPopOrder(t *testing.T) {
	t.Run("ties break by schedule call order", func(t *testing.T) {
		s := New()
		s.Schedule(TimerOverflow0, 10) // A
		s.Schedule(TimerOverflow1, 10) // B
		s.Schedule(TimerOverflow2, 5)  // C

		s.Advance(10)

		kind, _, ok := s.PopDue()
		assert.True(t, ok)
		assert.Equal(t, TimerOverflow2, kind) // C@5 first

		kind, _, ok = s.PopDue()
		assert.True(t, ok)
		assert.Equal(t, TimerOverflow0, kind) // A@10 before B@10

		kind, _, ok = s.PopDue()
		assert.True(t, ok)
		assert.Equal(t, TimerOverflow1, kind)

		_, _, ok = s.PopDue()
		assert.False(t, ok)
	})
}

func TestPopDueRespectsNow(t *testing.T) {
	s := New()
	s.Schedule(PpuHblankStart, 100)

	_, _, ok := s.PopDue()
	assert.False(t, ok, "event not due yet must not pop")

	s.Advance(99)
	_, _, ok = s.PopDue()
	assert.False(t, ok)

	s.Advance(1)
	kind, lateBy, ok := s.PopDue()
	assert.True(t, ok)
	assert.Equal(t, PpuHblankStart, kind)
	assert.Equal(t, uint64(0), lateBy)
}

func TestPopDueLateBy(t *testing.T) {
	s := New()
	s.Schedule(ApuPushSample, 10)
	s.Advance(15)

	_, lateBy, ok := s.PopDue()
	assert.True(t, ok)
	assert.Equal(t, uint64(5), lateBy)
}

func TestNegativeDeltaClampedToNow(t *testing.T) {
	s := New()
	s.Advance(50)
	s.Schedule(UpdateKeypad, -10)

	kind, lateBy, ok := s.PopDue()
	assert.True(t, ok)
	assert.Equal(t, UpdateKeypad, kind)
	assert.Equal(t, uint64(0), lateBy)
}

func TestCancel(t *testing.T) {
	s := New()
	s.Schedule(TimerOverflow0, 5)
	s.Schedule(TimerOverflow0, 10)
	s.Schedule(TimerOverflow1, 5)

	s.Cancel(TimerOverflow0)
	s.Advance(10)

	kind, _, ok := s.PopDue()
	assert.True(t, ok)
	assert.Equal(t, TimerOverflow1, kind)

	_, _, ok = s.PopDue()
	assert.False(t, ok)
}

func TestCancelSingleRemovesOnlyEarliest(t *testing.T) {
	s := New()
	s.Schedule(TimerOverflow0, 5)
	s.Schedule(TimerOverflow0, 10)

	s.CancelSingle(TimerOverflow0)
	s.Advance(10)

	kind, _, ok := s.PopDue()
	assert.True(t, ok)
	assert.Equal(t, TimerOverflow0, kind)

	_, _, ok = s.PopDue()
	assert.False(t, ok)
}
