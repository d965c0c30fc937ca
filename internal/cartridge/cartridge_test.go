package cartridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRom(extra ...[]byte) []byte {
	rom := make([]byte, 0xC0+16)
	copy(rom[HeaderTitle:], []byte("GAMETITLE123"))
	copy(rom[HeaderCode:], []byte("ABCD"))
	for _, e := range extra {
		rom = append(rom, e...)
	}
	return rom
}

func TestLoadRejectsTooSmallImage(t *testing.T) {
	_, err := Load(make([]byte, 10), nil)
	assert.Error(t, err)
}

func TestLoadParsesHeader(t *testing.T) {
	cart, err := Load(makeRom(), nil)
	require.NoError(t, err)
	assert.Equal(t, "GAMETITLE123", cart.Header.Title)
	assert.Equal(t, "ABCD", cart.Header.GameCode)
	assert.Equal(t, SaveNone, cart.SaveType)
	assert.Len(t, cart.ROM, RomMaxSize)
}

func TestDetectSaveTypeByMagicString(t *testing.T) {
	cases := []struct {
		magic string
		want  SaveType
	}{
		{"EEPROM_V", SaveEEPROM},
		{"SRAM_V", SaveSRAM},
		{"FLASH512_V", SaveFlash512},
		{"FLASH1M_V", SaveFlash1M},
		{"FLASH_V", SaveFlash512},
	}
	for _, c := range cases {
		rom := makeRom([]byte(c.magic))
		cart, err := Load(rom, nil)
		require.NoError(t, err)
		assert.Equal(t, c.want, cart.SaveType, c.magic)
		assert.Len(t, cart.Save, c.want.Capacity())
	}
}

func TestLoadAdoptsExistingSaveWhenSizeMatches(t *testing.T) {
	rom := makeRom([]byte("SRAM_V"))
	existing := make([]byte, SaveSRAM.Capacity())
	existing[0] = 0xAB

	cart, err := Load(rom, existing)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), cart.Save[0])
}

func TestLoadIgnoresMismatchedExistingSave(t *testing.T) {
	rom := makeRom([]byte("SRAM_V"))
	existing := make([]byte, 4) // wrong size

	cart, err := Load(rom, existing)
	require.NoError(t, err)
	assert.Equal(t, byte(0), cart.Save[0])
}

func TestReadWriteSRAM(t *testing.T) {
	cart, err := Load(makeRom([]byte("SRAM_V")), nil)
	require.NoError(t, err)

	cart.WriteSRAM8(5, 0x42)
	assert.Equal(t, uint8(0x42), cart.ReadSRAM8(5))
}

func TestReadSRAMWithNoSaveBackendReturnsOpenBus(t *testing.T) {
	cart, err := Load(makeRom(), nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xFF), cart.ReadSRAM8(0))
}
