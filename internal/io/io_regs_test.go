package io

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadWriteRoundTripAtEveryWidth(t *testing.T) {
	r := NewRegs()

	r.Write8(0x10, 0xAB)
	assert.Equal(t, uint8(0xAB), r.Read8(0x10))

	r.Write16(0x20, 0xBEEF)
	assert.Equal(t, uint16(0xBEEF), r.Read16(0x20))

	r.Write32(0x30, 0xDEADBEEF)
	assert.Equal(t, uint32(0xDEADBEEF), r.Read32(0x30))
}

func TestAddressesWrapAtBankSize(t *testing.T) {
	r := NewRegs()
	r.Write8(0x400, 0x7F) // wraps to offset 0
	assert.Equal(t, uint8(0x7F), r.Read8(0))
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	r := NewRegs()
	r.Write8(5, 0x42)

	snap := r.Snapshot()
	other := NewRegs()
	other.Restore(snap)

	assert.Equal(t, uint8(0x42), other.Read8(5))
}
