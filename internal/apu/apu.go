// Package apu bridges the two DMA-sound FIFOs (consumed on timer
// overflow) with a simplified 4-channel PSG, mixing both into a
// stereo float ring buffer on the scheduler's PushSample cadence.
package apu

import "gbacore/internal/dma"

const fifoDepth = 32

// DmaRequester lets the APU ask the DMA engine to refill a FIFO once
// it has drained to the refill threshold.
type DmaRequester interface {
	Notify(reason dma.Timing)
}

type fifo struct {
	buf   [fifoDepth]int8
	head  int
	count int
	cur   int8
}

func (f *fifo) push(b int8) {
	if f.count >= fifoDepth {
		return
	}
	idx := (f.head + f.count) % fifoDepth
	f.buf[idx] = b
	f.count++
}

func (f *fifo) pop() (int8, bool) {
	if f.count == 0 {
		return f.cur, false
	}
	v := f.buf[f.head]
	f.head = (f.head + 1) % fifoDepth
	f.count--
	f.cur = v
	return v, true
}

// psgChannel is a minimal pulse/wave/noise sequencer: enough state to
// drive length/envelope/sweep ticks without claiming bit-exact mixing
// fidelity (explicitly a non-goal).
type psgChannel struct {
	enabled      bool
	lengthTimer  uint16
	lengthEnable bool
	envelopeVol  uint8
	output       int16
}

func (p *psgChannel) tickLength() {
	if p.lengthEnable && p.lengthTimer > 0 {
		p.lengthTimer--
		if p.lengthTimer == 0 {
			p.enabled = false
		}
	}
}

// APU is the sound bridge: two DMA-sound FIFOs plus the 4 PSG
// channels, mixed through SOUNDBIAS into a caller-owned ring buffer.
type APU struct {
	fifoA, fifoB     fifo
	timerA, timerB   int // which timer (0 or 1) drains each FIFO
	enableLeftA      bool
	enableRightA     bool
	enableLeftB      bool
	enableRightB     bool
	soundBias        uint16
	psg              [4]psgChannel
	dma              DmaRequester
	ring             []float32
	ringWrite        int
	ringRead         int
}

func New(dmaRequester DmaRequester) *APU {
	return &APU{dma: dmaRequester, timerA: 0, timerB: 1, soundBias: 0x200, ring: make([]float32, 4096)}
}

// PushFIFO accepts 1, 2, or 4 signed 8-bit samples written by the CPU
// or a Special-timing DMA.
func (a *APU) PushFIFO(which int, samples []int8) {
	f := a.fifoFor(which)
	for _, s := range samples {
		f.push(s)
	}
}

func (a *APU) fifoFor(which int) *fifo {
	if which == 0 {
		return &a.fifoA
	}
	return &a.fifoB
}

// NotifyTimerOverflow implements timer.FifoNotifier: the matching
// FIFO pops one sample, and the pop that drains it down to 16 bytes
// requests a Special-timing DMA refill (once; later pops below 16 do
// not request again).
func (a *APU) NotifyTimerOverflow(timerIndex int) {
	if timerIndex == a.timerA {
		a.drain(&a.fifoA)
	}
	if timerIndex == a.timerB {
		a.drain(&a.fifoB)
	}
}

func (a *APU) drain(f *fifo) {
	_, ok := f.pop()
	if !ok {
		return
	}
	if f.count == 16 && a.dma != nil {
		a.dma.Notify(dma.TimingSpecial)
	}
}

// TickSequencer advances the PSG's 256 Hz length sequencer; called on
// the scheduler's ApuSequencer event.
func (a *APU) TickSequencer() {
	for i := range a.psg {
		a.psg[i].tickLength()
	}
}

// PushSample mixes the current FIFO + PSG outputs through SOUNDBIAS
// and appends one stereo frame to the ring buffer; called on the
// scheduler's ApuPushSample event (every 256 clocks at 65536 Hz out).
func (a *APU) PushSample() {
	var left, right float32

	fa := float32(a.fifoA.cur) / 128
	fb := float32(a.fifoB.cur) / 128
	if a.enableLeftA {
		left += fa
	}
	if a.enableRightA {
		right += fa
	}
	if a.enableLeftB {
		left += fb
	}
	if a.enableRightB {
		right += fb
	}

	for i := range a.psg {
		if !a.psg[i].enabled {
			continue
		}
		v := float32(a.psg[i].output) / 32768
		left += v * 0.25
		right += v * 0.25
	}

	bias := float32(int32(a.soundBias&0x3FF)-0x200) / 512
	left = clampSample(left + bias)
	right = clampSample(right + bias)

	a.ring[a.ringWrite%len(a.ring)] = left
	a.ring[(a.ringWrite+1)%len(a.ring)] = right
	a.ringWrite += 2
}

func clampSample(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// ProduceSamples drains the ring buffer into out (interleaved L/R),
// zero-filling whatever the ring hasn't produced yet.
func (a *APU) ProduceSamples(out []float32) {
	n := len(a.ring)
	if a.ringWrite-a.ringRead > n {
		a.ringRead = a.ringWrite - n
	}
	for i := range out {
		if a.ringRead < a.ringWrite {
			out[i] = a.ring[a.ringRead%n]
			a.ringRead++
		} else {
			out[i] = 0
		}
	}
}

func (a *APU) WriteSoundBias(v uint16) { a.soundBias = v & 0x3FF }
func (a *APU) ReadSoundBias() uint16   { return a.soundBias }

// FifoState is one FIFO's savestate payload.
type FifoState struct {
	Buf   [fifoDepth]int8
	Head  int
	Count int
	Cur   int8
}

// PsgState is one PSG channel's savestate payload.
type PsgState struct {
	Enabled      bool
	LengthTimer  uint16
	LengthEnable bool
	EnvelopeVol  uint8
	Output       int16
}

// State is the APU bridge's full savestate payload. The output ring
// buffer is not included: it holds only already-produced audio, not
// architectural state.
type State struct {
	FifoA, FifoB               FifoState
	TimerA, TimerB             int
	EnableLeftA, EnableRightA  bool
	EnableLeftB, EnableRightB  bool
	SoundBias                  uint16
	PSG                        [4]PsgState
}

func snapshotFifo(f *fifo) FifoState {
	return FifoState{Buf: f.buf, Head: f.head, Count: f.count, Cur: f.cur}
}

func restoreFifo(f *fifo, s FifoState) {
	f.buf = s.Buf
	f.head = s.Head
	f.count = s.Count
	f.cur = s.Cur
}

func (a *APU) Snapshot() State {
	s := State{
		FifoA: snapshotFifo(&a.fifoA), FifoB: snapshotFifo(&a.fifoB),
		TimerA: a.timerA, TimerB: a.timerB,
		EnableLeftA: a.enableLeftA, EnableRightA: a.enableRightA,
		EnableLeftB: a.enableLeftB, EnableRightB: a.enableRightB,
		SoundBias: a.soundBias,
	}
	for i, p := range a.psg {
		s.PSG[i] = PsgState{
			Enabled: p.enabled, LengthTimer: p.lengthTimer,
			LengthEnable: p.lengthEnable, EnvelopeVol: p.envelopeVol, Output: p.output,
		}
	}
	return s
}

func (a *APU) Restore(s State) {
	restoreFifo(&a.fifoA, s.FifoA)
	restoreFifo(&a.fifoB, s.FifoB)
	a.timerA, a.timerB = s.TimerA, s.TimerB
	a.enableLeftA, a.enableRightA = s.EnableLeftA, s.EnableRightA
	a.enableLeftB, a.enableRightB = s.EnableLeftB, s.EnableRightB
	a.soundBias = s.SoundBias
	for i, p := range s.PSG {
		a.psg[i] = psgChannel{
			enabled: p.Enabled, lengthTimer: p.LengthTimer,
			lengthEnable: p.LengthEnable, envelopeVol: p.EnvelopeVol, output: p.Output,
		}
	}
}

func (a *APU) WriteSoundCntH(v uint16) {
	a.enableRightA = v&(1<<8) != 0
	a.enableLeftA = v&(1<<9) != 0
	if v&(1<<10) != 0 {
		a.timerA = 1
	} else {
		a.timerA = 0
	}
	a.enableRightB = v&(1<<12) != 0
	a.enableLeftB = v&(1<<13) != 0
	if v&(1<<14) != 0 {
		a.timerB = 1
	} else {
		a.timerB = 0
	}
}
