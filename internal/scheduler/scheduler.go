// Package scheduler implements the deterministic event queue that
// drives every non-CPU timing source in the core: PPU scanline state,
// APU sample pushes and PSG sequencing, and timer overflow. Nothing in the core polls per-cycle; every subsystem with a
// predictable next event schedules it explicitly (see DESIGN.md).
package scheduler

import "container/heap"

// Kind identifies what fired. The core defines one constant per event
// the Scheduler can carry; the scheduler itself is agnostic to what a
// Kind means.
type Kind int

const (
	PauseEmulation Kind = iota
	PpuHblankStart
	PpuSetHblank
	PpuHblankEnd
	ApuPushSample
	ApuSequencer
	ApuPsgChannel0
	ApuPsgChannel1
	ApuPsgChannel2
	ApuPsgChannel3
	TimerOverflow0
	TimerOverflow1
	TimerOverflow2
	TimerOverflow3
	UpdateKeypad
)

// entry is one pending event. Ties in due time are broken by sequence,
// the order Schedule was called in, to keep pop order byte-identical
// across runs (spec §8 "Quantified invariants").
type entry struct {
	due      uint64
	sequence uint64
	kind     Kind
}

type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].sequence < h[j].sequence
}
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(entry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Scheduler is a monotonic clock plus a min-heap of pending events,
// keyed on (due_time, sequence) as required by spec §4.A.
type Scheduler struct {
	now      uint64
	heap     entryHeap
	sequence uint64
}

// New returns a Scheduler with now=0 and no pending events.
func New() *Scheduler {
	s := &Scheduler{}
	heap.Init(&s.heap)
	return s
}

// Now returns the current clock in GBA ticks (16.78 MHz cycles).
func (s *Scheduler) Now() uint64 { return s.now }

// Schedule inserts kind to fire at now+delta. Negative deltas are
// disallowed per spec §9's resolution of its own open question: they
// are clamped to 0, i.e. "fire at next pop".
func (s *Scheduler) Schedule(kind Kind, delta int64) {
	if delta < 0 {
		delta = 0
	}
	s.sequence++
	heap.Push(&s.heap, entry{due: s.now + uint64(delta), sequence: s.sequence, kind: kind})
}

// Cancel removes every pending entry matching kind.
func (s *Scheduler) Cancel(kind Kind) {
	filtered := s.heap[:0]
	for _, e := range s.heap {
		if e.kind != kind {
			filtered = append(filtered, e)
		}
	}
	s.heap = filtered
	heap.Init(&s.heap)
}

// CancelSingle removes only the earliest pending entry matching kind.
func (s *Scheduler) CancelSingle(kind Kind) {
	earliest := -1
	for i, e := range s.heap {
		if e.kind == kind && (earliest < 0 || s.heap.Less(i, earliest)) {
			earliest = i
		}
	}
	if earliest >= 0 {
		heap.Remove(&s.heap, earliest)
	}
}

// Advance moves the clock forward by n ticks. It does not pop events;
// callers drain with PopDue so handlers run in scheduler order rather
// than in Advance-call order.
func (s *Scheduler) Advance(n uint64) {
	s.now += n
}

// PopDue pops and returns the earliest event if its due time has
// arrived, along with how late it fired relative to its due time.
// Handlers use lateBy to reschedule relative to the exact tick the
// event was meant to fire at, preventing cumulative drift.
func (s *Scheduler) PopDue() (kind Kind, lateBy uint64, ok bool) {
	if len(s.heap) == 0 {
		return 0, 0, false
	}
	if s.heap[0].due > s.now {
		return 0, 0, false
	}
	e := heap.Pop(&s.heap).(entry)
	return e.kind, s.now - e.due, true
}

// Pending reports how many events are queued, for diagnostics only.
func (s *Scheduler) Pending() int { return len(s.heap) }

// Entry is one pending event as exposed to savestate serialization.
type Entry struct {
	Due      uint64
	Sequence uint64
	Kind     Kind
}

// Snapshot returns the clock, sequence counter and every pending event,
// for savestate serialization.
func (s *Scheduler) Snapshot() (now, sequence uint64, entries []Entry) {
	entries = make([]Entry, len(s.heap))
	for i, e := range s.heap {
		entries[i] = Entry{Due: e.due, Sequence: e.sequence, Kind: e.kind}
	}
	return s.now, s.sequence, entries
}

// Restore replaces the scheduler's clock and pending-event set with a
// previously captured Snapshot.
func (s *Scheduler) Restore(now, sequence uint64, entries []Entry) {
	s.now = now
	s.sequence = sequence
	s.heap = make(entryHeap, len(entries))
	for i, e := range entries {
		s.heap[i] = entry{due: e.Due, sequence: e.Sequence, kind: e.Kind}
	}
	heap.Init(&s.heap)
}
