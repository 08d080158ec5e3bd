package bus

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Idle is the value clocked back when nothing drives the data line. Reads
// after a failed transaction return it so chain walks terminate.
const Idle uint16 = 0xFFFF

var ErrTransfer = errors.New("bus transfer failed")

// Link performs one chip-select framed, full-duplex transaction: w is
// clocked out while r is filled with the bytes clocked back. len(r) equals
// len(w) for every call made by Bus.
type Link interface {
	Tx(w, r []byte) error
}

// Bus issues register transactions over a Link. It is synchronous and holds
// no lock; callers own serialization. The first transfer error is sticky.
type Bus struct {
	link     Link
	platform Platform

	w   []byte
	r   []byte
	err error
}

func New(link Link, platform Platform) *Bus {
	return &Bus{link: link, platform: platform}
}

func (b *Bus) Platform() Platform {
	return b.platform
}

// Err reports the first transfer error observed, if any.
func (b *Bus) Err() error {
	return b.err
}

func (b *Bus) Read(module Module, reg uint8) uint16 {
	var word [1]uint16
	b.ReadAddr(Addr(module, reg), word[:])
	return word[0]
}

func (b *Bus) Write(module Module, reg uint8, value uint16) {
	word := [1]uint16{value}
	b.WriteAddr(Addr(module, reg), word[:])
}

// ReadAddr reads len(data) words from addr in one transaction.
func (b *Bus) ReadAddr(addr uint32, data []uint16) {
	if len(data) == 0 {
		return
	}
	if !b.transfer(Header{Addr: addr, Words: len(data)}, nil) {
		fillIdle(data)
		return
	}
	for i := range data {
		data[i] = binary.BigEndian.Uint16(b.r[HeaderSize+2*i:])
	}
}

// WriteAddr streams data to addr in one transaction.
func (b *Bus) WriteAddr(addr uint32, data []uint16) {
	if len(data) == 0 {
		return
	}
	b.transfer(Header{Addr: addr, Words: len(data), Write: true}, data)
}

// Revision reads the FPGA revision register of the connected platform, or 0
// when the platform exposes none.
func (b *Bus) Revision() uint16 {
	if b.platform.RevisionModule == 0 {
		return 0
	}
	return b.Read(b.platform.RevisionModule, b.platform.RevisionRegister)
}

func (b *Bus) transfer(h Header, payload []uint16) bool {
	if b.err != nil {
		return false
	}
	n := FrameLen(h.Words)
	b.grow(n)
	if err := h.Put(b.w); err != nil {
		b.err = err
		return false
	}
	for i := HeaderSize; i < n; i++ {
		b.w[i] = 0
	}
	for i, word := range payload {
		binary.BigEndian.PutUint16(b.w[HeaderSize+2*i:], word)
	}
	if err := b.link.Tx(b.w[:n], b.r[:n]); err != nil {
		op := "read"
		if h.Write {
			op = "write"
		}
		b.err = fmt.Errorf("%w: %s %#08x: %w", ErrTransfer, op, h.Addr, err)
		return false
	}
	return true
}

func (b *Bus) grow(n int) {
	if cap(b.w) < n {
		b.w = make([]byte, n)
		b.r = make([]byte, n)
	}
	b.w = b.w[:n]
	b.r = b.r[:n]
}

func fillIdle(data []uint16) {
	for i := range data {
		data[i] = Idle
	}
}
