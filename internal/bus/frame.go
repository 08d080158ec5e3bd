package bus

import (
	"errors"
	"fmt"
)

// Module selects a register namespace on the device (address byte 3).
type Module uint8

const (
	ModuleNeurons Module = 0x01
	ModuleControl Module = 0x02
)

const (
	// HeaderSize is the length of the command frame preceding the payload.
	HeaderSize = 8
	// MaxWords is the largest word count a 24-bit length field can carry.
	MaxWords = 1<<24 - 1

	frameID   = 0x01
	writeFlag = 0x80
)

var (
	ErrShortFrame = errors.New("short bus frame")
	ErrFrameID    = errors.New("unexpected bus frame id")
	ErrWordCount  = errors.New("invalid bus word count")
)

// Addr composes the 32-bit address of a single register: the module in the
// top byte and the register id in the bottom byte.
func Addr(module Module, reg uint8) uint32 {
	return uint32(module)<<24 | uint32(reg)
}

// Header is the fixed 8-byte command that opens every transaction:
// {id, addr3|write, addr2, addr1, addr0, len2, len1, len0}.
type Header struct {
	Addr  uint32
	Words int
	Write bool
}

func (h Header) Module() Module {
	return Module(h.Addr >> 24 & 0x7F)
}

func (h Header) Register() uint8 {
	return uint8(h.Addr)
}

// Put encodes the header into dst, which must hold at least HeaderSize bytes.
func (h Header) Put(dst []byte) error {
	if len(dst) < HeaderSize {
		return fmt.Errorf("%w: header needs %d bytes, got=%d", ErrShortFrame, HeaderSize, len(dst))
	}
	if h.Words < 0 || h.Words > MaxWords {
		return fmt.Errorf("%w: %d", ErrWordCount, h.Words)
	}
	addr3 := byte(h.Addr >> 24)
	if h.Write {
		addr3 |= writeFlag
	}
	dst[0] = frameID
	dst[1] = addr3
	dst[2] = byte(h.Addr >> 16)
	dst[3] = byte(h.Addr >> 8)
	dst[4] = byte(h.Addr)
	dst[5] = byte(h.Words >> 16)
	dst[6] = byte(h.Words >> 8)
	dst[7] = byte(h.Words)
	return nil
}

// DecodeHeader parses the command frame at the start of src.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got=%d", ErrShortFrame, len(src))
	}
	if src[0] != frameID {
		return Header{}, fmt.Errorf("%w: %#02x", ErrFrameID, src[0])
	}
	h := Header{
		Addr:  uint32(src[1]&^writeFlag)<<24 | uint32(src[2])<<16 | uint32(src[3])<<8 | uint32(src[4]),
		Words: int(src[5])<<16 | int(src[6])<<8 | int(src[7]),
		Write: src[1]&writeFlag != 0,
	}
	return h, nil
}

// FrameLen is the total transaction length for a payload of words.
func FrameLen(words int) int {
	return HeaderSize + 2*words
}
