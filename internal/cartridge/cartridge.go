// Package cartridge owns the Game Pak ROM and its save backend:
// header parsing, save-type auto-detection by magic-string scan, a
// flat-byte-array save backend, and an ELF loader for homebrew
// images built as ELF executables instead of raw ROM dumps.
package cartridge

import (
	"bytes"
	"debug/elf"
	"fmt"
)

const (
	RomBase     = 0x08000000
	RomMaxSize  = 32 * 1024 * 1024
	SramBase    = 0x0E000000
	HeaderTitle = 0x0A0
	HeaderCode  = 0x0AC
)

type SaveType int

const (
	SaveNone SaveType = iota
	SaveSRAM
	SaveEEPROM
	SaveFlash512
	SaveFlash1M
)

func (t SaveType) Capacity() int {
	switch t {
	case SaveSRAM:
		return 32 * 1024
	case SaveEEPROM:
		return 8 * 1024
	case SaveFlash512:
		return 64 * 1024
	case SaveFlash1M:
		return 128 * 1024
	default:
		return 0
	}
}

type Header struct {
	Title    string
	GameCode string
}

// Cartridge holds the ROM image (padded/mirrored up to 32 MiB) and a
// flat save buffer sized to the auto-detected save type.
type Cartridge struct {
	ROM      []byte
	Save     []byte
	SaveType SaveType
	Header   Header
	EntryPC  uint32 // non-zero only when loaded from an ELF image
}

// magic strings the GBA BIOS/linker convention uses to advertise a
// cart's save backend, in detection priority order (spec §6).
var saveMagics = []struct {
	magic string
	kind  SaveType
}{
	{"EEPROM_V", SaveEEPROM},
	{"SRAM_V", SaveSRAM},
	{"FLASH512_V", SaveFlash512},
	{"FLASH1M_V", SaveFlash1M},
	{"FLASH_V", SaveFlash512},
}

// Load parses a ROM image (raw GBA ROM or ELF), detects its save
// type, and returns a ready Cartridge. existingSave, if non-nil, is
// adopted verbatim when its length matches the detected capacity.
func Load(image []byte, existingSave []byte) (*Cartridge, error) {
	if len(image) < 0xC0 {
		return nil, fmt.Errorf("cartridge: image too small (%d bytes)", len(image))
	}

	rom := image
	var entry uint32
	if bytes.HasPrefix(image, []byte("\x7fELF")) {
		var err error
		rom, entry, err = flattenELF(image)
		if err != nil {
			return nil, fmt.Errorf("cartridge: unsupported ELF: %w", err)
		}
	}

	if len(rom) > RomMaxSize {
		rom = rom[:RomMaxSize]
	}
	padded := make([]byte, RomMaxSize)
	copy(padded, rom)

	saveType := detectSaveType(rom)
	save := make([]byte, saveType.Capacity())
	if len(existingSave) == len(save) {
		copy(save, existingSave)
	}

	var header Header
	if len(rom) >= 0xB0 {
		header = Header{
			Title:    cString(rom[HeaderTitle:HeaderTitle+12]),
			GameCode: cString(rom[HeaderCode : HeaderCode+4]),
		}
	}

	return &Cartridge{ROM: padded, Save: save, SaveType: saveType, Header: header, EntryPC: entry}, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func detectSaveType(rom []byte) SaveType {
	for _, m := range saveMagics {
		if bytes.Contains(rom, []byte(m.magic)) {
			return m.kind
		}
	}
	return SaveNone
}

// flattenELF flattens every loadable section within the GBA ROM
// address window into a 32 MiB buffer and returns the entry point so
// the caller can skip the BIOS boot sequence.
func flattenELF(image []byte) ([]byte, uint32, error) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	buf := make([]byte, RomMaxSize)
	found := false
	for _, sec := range f.Sections {
		if sec.Addr < RomBase || sec.Addr >= RomBase+0x02000000 {
			continue
		}
		if sec.Type != elf.SHT_PROGBITS || sec.Size == 0 {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			continue
		}
		offset := sec.Addr - RomBase
		if offset+uint64(len(data)) > uint64(len(buf)) {
			continue
		}
		copy(buf[offset:], data)
		found = true
	}
	if !found {
		return nil, 0, fmt.Errorf("no section within GBA ROM window")
	}
	entry := uint32(f.Entry)
	return buf, entry, nil
}

func (c *Cartridge) ReadROM8(addr uint32) uint8 {
	off := addr % uint32(len(c.ROM))
	return c.ROM[off]
}

func (c *Cartridge) ReadSRAM8(addr uint32) uint8 {
	if len(c.Save) == 0 {
		return 0xFF
	}
	return c.Save[int(addr)%len(c.Save)]
}

func (c *Cartridge) WriteSRAM8(addr uint32, value uint8) {
	if len(c.Save) == 0 {
		return
	}
	c.Save[int(addr)%len(c.Save)] = value
}
