package gbacore

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"gbacore/internal/apu"
	"gbacore/internal/bus"
	"gbacore/internal/cpu"
	"gbacore/internal/dma"
	"gbacore/internal/irq"
	"gbacore/internal/joypad"
	"gbacore/internal/ppu"
	"gbacore/internal/scheduler"
	"gbacore/internal/timer"
)

// savestateVersion is bumped whenever the snapshot struct's shape
// changes; LoadState rejects any blob whose version doesn't match.
const savestateVersion = 1

// snapshot aggregates every subsystem's savestate payload into one
// gob-serializable value. Cartridge ROM is deliberately excluded: it's
// loaded from the ROM file, not part of mutable machine state. The
// cartridge's Save buffer is part of make_save's contract, not this
// one, so it's excluded too; a savestate is only valid against the
// cartridge it was taken from.
type snapshot struct {
	Version int

	CPU    cpu.CPUState
	Bus    bus.State
	DMA    dma.State
	Timer  timer.State
	APU    apu.State
	PPU    ppu.State
	Joypad joypad.State
	IRQ    irq.State

	SchedNow      uint64
	SchedSequence uint64
	SchedEntries  []scheduler.Entry

	Running bool
}

// envelope is what actually gets written to disk: the gob payload plus
// an xxhash64 checksum over it, so a truncated or corrupted blob is
// rejected before gob even attempts to decode it.
type envelope struct {
	Checksum uint64
	Payload  []byte
}

// SaveState serializes the complete machine state into an opaque,
// versioned byte blob. The cartridge itself (ROM and save data) is not
// included; LoadState must be called on a Core with the same cartridge
// already loaded.
func (c *Core) SaveState() ([]byte, error) {
	snap := snapshot{
		Version: savestateVersion,
		CPU:     c.cpu.Snapshot(),
		Bus:     c.bus.Snapshot(),
		DMA:     c.dmaCtl.Snapshot(),
		Timer:   c.timers.Snapshot(),
		APU:     c.apuUnit.Snapshot(),
		PPU:     c.ppuUnit.Snapshot(),
		Joypad:  c.joypad.Snapshot(),
		IRQ:     c.irqCtl.Snapshot(),
		Running: c.running,
	}
	snap.SchedNow, snap.SchedSequence, snap.SchedEntries = c.sched.Snapshot()

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(snap); err != nil {
		return nil, fmt.Errorf("save_state: encode: %w", err)
	}

	env := envelope{Checksum: xxhash.Sum64(payload.Bytes()), Payload: payload.Bytes()}
	var out bytes.Buffer
	if err := gob.NewEncoder(&out).Encode(env); err != nil {
		return nil, fmt.Errorf("save_state: encode envelope: %w", err)
	}
	return out.Bytes(), nil
}

// LoadState restores machine state previously produced by SaveState
// against the same cartridge. It rejects corrupted blobs (checksum
// mismatch) and blobs from an incompatible core version.
func (c *Core) LoadState(data []byte) error {
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return fmt.Errorf("load_state: decode envelope: %w", err)
	}
	if xxhash.Sum64(env.Payload) != env.Checksum {
		return fmt.Errorf("load_state: checksum mismatch, blob is corrupt")
	}

	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(env.Payload)).Decode(&snap); err != nil {
		return fmt.Errorf("load_state: decode payload: %w", err)
	}
	if snap.Version != savestateVersion {
		return fmt.Errorf("load_state: incompatible version %d, want %d", snap.Version, savestateVersion)
	}

	c.cpu.Restore(snap.CPU)
	c.bus.Restore(snap.Bus)
	c.dmaCtl.Restore(snap.DMA)
	c.timers.Restore(snap.Timer)
	c.apuUnit.Restore(snap.APU)
	c.ppuUnit.Restore(snap.PPU)
	c.joypad.Restore(snap.Joypad)
	c.irqCtl.Restore(snap.IRQ)
	c.sched.Restore(snap.SchedNow, snap.SchedSequence, snap.SchedEntries)
	c.running = snap.Running

	return nil
}
