package nm

// Status is the recognition outcome reported by NSR after a broadcast.
type Status uint16

const (
	StatusUnknown    Status = 0
	StatusUncertain  Status = Status(StatusUncertainBit)
	StatusIdentified Status = Status(StatusIdentifiedBit)
)

func statusFromNSR(nsr uint16) Status {
	switch {
	case nsr&StatusIdentifiedBit != 0:
		return StatusIdentified
	case nsr&StatusUncertainBit != 0:
		return StatusUncertain
	default:
		return StatusUnknown
	}
}

func (s Status) String() string {
	switch s {
	case StatusIdentified:
		return "identified"
	case StatusUncertain:
		return "uncertain"
	default:
		return "unknown"
	}
}

// Neuron is the live view of one committed row.
type Neuron struct {
	NCR        uint16
	Components []uint16
	AIF        uint16
	MinIF      uint16
	Category   uint16
}

// Context returns the context id the neuron was committed under.
func (n Neuron) Context() uint8 {
	return uint8(n.NCR & 0x7F)
}

func (n Neuron) Degenerate() bool {
	return n.Category&DegenerateBit != 0
}

// Match is one firing neuron read back after a broadcast. Unused top-K slots
// carry Sentinel in every field.
type Match struct {
	Distance   uint16
	Category   uint16
	NeuronID   uint16
	Degenerate bool
}

func (m Match) Empty() bool {
	return m.Distance == Sentinel
}

func emptyMatch() Match {
	return Match{Distance: Sentinel, Category: Sentinel, NeuronID: Sentinel}
}

// Norm selects the distance used by the neurons.
type Norm uint8

const (
	NormL1   Norm = 0
	NormLSup Norm = 1
)

func (n Norm) String() string {
	if n == NormLSup {
		return "lsup"
	}
	return "l1"
}

// Context is the GCR/MINIF/MAXIF triple. GCR bits 0-6 hold the context id,
// bit 7 the norm; the upper byte is unused.
type Context struct {
	GCR   uint16
	MinIF uint16
	MaxIF uint16
}

func DefaultContext() Context {
	return Context{GCR: DefaultGCR, MinIF: DefaultMinIF, MaxIF: DefaultMaxIF}
}

func GCRValue(id uint8, norm Norm) uint16 {
	v := uint16(id & 0x7F)
	if norm == NormLSup {
		v |= 0x80
	}
	return v
}

func (c Context) ID() uint8 {
	return uint8(c.GCR & 0x7F)
}

func (c Context) Norm() Norm {
	if c.GCR&0x80 != 0 {
		return NormLSup
	}
	return NormL1
}

// DegeneratePolicy controls how category words read after a broadcast are
// reported. Bit 15 marks a degenerate neuron; whether callers want it folded
// into the category depends on the hardware revision in use.
type DegeneratePolicy int

const (
	KeepDegenerateFlag DegeneratePolicy = iota
	MaskDegenerateFlag
)

func (p DegeneratePolicy) apply(cat uint16) uint16 {
	if p == MaskDegenerateFlag {
		return cat & CategoryMask
	}
	return cat
}
