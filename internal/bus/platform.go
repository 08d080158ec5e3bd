package bus

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	PlatformBrainCard   = 1
	PlatformNeuroShield = 2
	PlatformNeuroTile   = 3
)

// The link is validated by reading MINIF from the neuron module, whose
// power-on value is documented as 2.
const (
	linkProbeRegister = 0x06
	linkProbeDefault  = 2
)

var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrLinkCheck           = errors.New("neuromem link check failed")
)

// Platform describes how a board reaches the chip. Pin and clock values are
// handed to the Board untouched.
type Platform struct {
	ID          int
	Name        string
	SelectPin   int
	SpeedHz     int
	ResetPulse  time.Duration
	ResetSettle time.Duration

	// RevisionModule is zero when the platform has no revision register.
	RevisionModule   Module
	RevisionRegister uint8
}

// Board is the hardware collaborator: it configures chip select and clock for
// a platform and drives the reset line.
type Board interface {
	Open(p Platform) (Link, error)
	Reset(p Platform) error
}

var platforms = map[int]Platform{
	PlatformBrainCard: {
		ID:               PlatformBrainCard,
		Name:             "braincard",
		SelectPin:        10,
		SpeedHz:          4_000_000,
		ResetPulse:       200 * time.Millisecond,
		ResetSettle:      500 * time.Millisecond,
		RevisionModule:   ModuleNeurons,
		RevisionRegister: 0x0E,
	},
	PlatformNeuroShield: {
		ID:               PlatformNeuroShield,
		Name:             "neuroshield",
		SelectPin:        7,
		SpeedHz:          2_000_000,
		RevisionModule:   ModuleControl,
		RevisionRegister: 0x01,
	},
	PlatformNeuroTile: {
		ID:          PlatformNeuroTile,
		Name:        "neurotile",
		SelectPin:   10,
		SpeedHz:     4_000_000,
		ResetPulse:  200 * time.Millisecond,
		ResetSettle: 500 * time.Millisecond,
	},
}

func LookupPlatform(id int) (Platform, error) {
	p, ok := platforms[id]
	if !ok {
		return Platform{}, fmt.Errorf("%w: %d", ErrUnsupportedPlatform, id)
	}
	return p, nil
}

func LookupPlatformName(name string) (Platform, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range platforms {
		if p.Name == name {
			return p, nil
		}
	}
	return Platform{}, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, name)
}

// Platforms lists the built-in profiles ordered by id.
func Platforms() []Platform {
	out := make([]Platform, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Connect selects a built-in platform profile and brings the link up.
func Connect(board Board, platformID int) (*Bus, error) {
	p, err := LookupPlatform(platformID)
	if err != nil {
		return nil, err
	}
	return ConnectPlatform(board, p)
}

// ConnectPlatform opens the link, pulses reset when the platform requires it
// and checks that MINIF reads back its default. There are no retries.
func ConnectPlatform(board Board, p Platform) (*Bus, error) {
	link, err := board.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open %s link: %w", p.Name, err)
	}
	if p.ResetPulse > 0 {
		if err := board.Reset(p); err != nil {
			return nil, fmt.Errorf("reset %s: %w", p.Name, err)
		}
	}

	b := New(link, p)
	got := b.Read(ModuleNeurons, linkProbeRegister)
	if err := b.Err(); err != nil {
		return nil, err
	}
	if got != linkProbeDefault {
		return nil, fmt.Errorf("%w: platform=%s minif=%#04x want=%#04x", ErrLinkCheck, p.Name, got, linkProbeDefault)
	}
	return b, nil
}
