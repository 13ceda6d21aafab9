package memory

import "fmt"

// MBCType identifies the bank-switching controller a cartridge header declares.
type MBCType uint8

const (
	NoMBCType MBCType = iota
	MBC1Type
	MBC1MultiType
	MBC2Type
	MBC3Type
	MBC5Type
	MBCUnknownType
)

// header byte offsets, see https://gbdev.io/pandocs/The_Cartridge_Header.html
const (
	headerTitleStart  = 0x0134
	headerTitleEnd    = 0x0144
	headerCartType    = 0x0147
	headerROMSize     = 0x0148
	headerRAMSize     = 0x0149
	minimumHeaderSize = 0x0150
)

// Cartridge represents a loaded ROM image along with the header fields needed
// to construct the right MBC and size its backing RAM.
type Cartridge struct {
	data []byte

	title        string
	mbcType      MBCType
	hasBattery   bool
	hasRTC       bool
	hasRumble    bool
	romBankCount int
	ramBankCount uint8
}

// NewCartridge returns an empty cartridge (no ROM loaded), used as the
// placeholder when the system is powered on without a game inserted.
func NewCartridge() *Cartridge {
	return &Cartridge{
		data:    make([]byte, minimumHeaderSize),
		mbcType: NoMBCType,
	}
}

// LoadCartridge parses a ROM image and returns the populated Cartridge.
func LoadCartridge(data []byte) (*Cartridge, error) {
	if len(data) < minimumHeaderSize {
		return nil, fmt.Errorf("%w: rom is %d bytes, need at least %d", ErrHeaderMalformed, len(data), minimumHeaderSize)
	}

	cart := &Cartridge{data: data}
	cart.title = cleanGameboyTitle(data[headerTitleStart:headerTitleEnd])

	mbcType, hasBattery, hasRTC, hasRumble, err := decodeCartType(data[headerCartType])
	if err != nil {
		return nil, err
	}
	cart.mbcType = mbcType
	cart.hasBattery = hasBattery
	cart.hasRTC = hasRTC
	cart.hasRumble = hasRumble

	cart.romBankCount = 2 << data[headerROMSize] // 2^(code+1)
	cart.ramBankCount = ramBankCountFromCode(data[headerRAMSize])

	return cart, nil
}

func decodeCartType(b byte) (mbcType MBCType, hasBattery, hasRTC, hasRumble bool, err error) {
	switch b {
	case 0x00:
		return NoMBCType, false, false, false, nil
	case 0x01, 0x02:
		return MBC1Type, false, false, false, nil
	case 0x03:
		return MBC1Type, true, false, false, nil
	case 0x05:
		return MBC2Type, false, false, false, nil
	case 0x06:
		return MBC2Type, true, false, false, nil
	case 0x0F, 0x10:
		return MBC3Type, true, true, false, nil
	case 0x11, 0x12:
		return MBC3Type, false, false, false, nil
	case 0x13:
		return MBC3Type, true, false, false, nil
	case 0x19, 0x1A:
		return MBC5Type, false, false, false, nil
	case 0x1B:
		return MBC5Type, true, false, false, nil
	case 0x1C, 0x1D:
		return MBC5Type, false, false, true, nil
	case 0x1E:
		return MBC5Type, true, false, true, nil
	default:
		return MBCUnknownType, false, false, false, fmt.Errorf("%w: unrecognized cartridge type byte 0x%02X", ErrHeaderMalformed, b)
	}
}

func ramBankCountFromCode(code byte) uint8 {
	switch code {
	case 0x02:
		return 1 // 8 KiB, one bank
	case 0x03:
		return 4 // 32 KiB, four banks
	case 0x04:
		return 16 // 128 KiB, sixteen banks
	case 0x05:
		return 8 // 64 KiB, eight banks
	default:
		return 0
	}
}

// Title returns the cartridge's header title, trimmed of padding/NUL bytes.
func (c *Cartridge) Title() string {
	return c.title
}

// Type returns the MBC kind this cartridge declares.
func (c *Cartridge) Type() MBCType {
	return c.mbcType
}
