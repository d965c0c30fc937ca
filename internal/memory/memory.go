// Package memory owns the raw backing storage for the GBA's on-chip
// and on-board RAM and the BIOS ROM (spec §3 "Memory map"). Address
// dispatch, mirroring and wait-state accounting live in internal/bus;
// this package only stores bytes.
package memory

const (
	BiosStart = 0x00000000
	BiosEnd   = 0x00003FFF
	BiosSize  = BiosEnd - BiosStart + 1 // 16 KiB

	EwramStart = 0x02000000
	EwramEnd   = 0x0203FFFF
	EwramSize  = EwramEnd - EwramStart + 1 // 256 KiB

	IwramStart = 0x03000000
	IwramEnd   = 0x03007FFF
	IwramSize  = IwramEnd - IwramStart + 1 // 32 KiB
)
