package chipsim

import (
	"time"

	"neuromem/internal/bus"
)

// PlatformID is outside the range used by physical boards.
const PlatformID = 0x7F

// Platform is the profile handed to bus.ConnectPlatform for an emulated chip.
func Platform() bus.Platform {
	return bus.Platform{
		ID:               PlatformID,
		Name:             "sim",
		ResetPulse:       time.Millisecond,
		RevisionModule:   bus.ModuleNeurons,
		RevisionRegister: 0x0E,
	}
}

// Board wires an emulated chip in place of the physical pins.
type Board struct {
	Chip   *Chip
	Resets int
}

func NewBoard(cfg Config) *Board {
	return &Board{Chip: New(cfg)}
}

func (b *Board) Open(bus.Platform) (bus.Link, error) {
	return b.Chip, nil
}

func (b *Board) Reset(bus.Platform) error {
	b.Resets++
	b.Chip.PowerOn()
	return nil
}

var _ bus.Board = (*Board)(nil)
var _ bus.Link = (*Chip)(nil)
