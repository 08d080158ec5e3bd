package nm

import "fmt"

// Register is a register id within the neuron module (bus.ModuleNeurons).
type Register uint8

const (
	RegNCR        Register = 0x00
	RegComp       Register = 0x01
	RegLComp      Register = 0x02
	RegDist       Register = 0x03
	RegIndexComp  Register = 0x03 // write side of RegDist
	RegCat        Register = 0x04
	RegAIF        Register = 0x05
	RegMinIF      Register = 0x06
	RegMaxIF      Register = 0x07
	RegTestComp   Register = 0x08
	RegTestCat    Register = 0x09
	RegNID        Register = 0x0A
	RegGCR        Register = 0x0B
	RegResetChain Register = 0x0C
	RegNSR        Register = 0x0D
	RegRevision   Register = 0x0E
	RegNCount     Register = 0x0F
	RegForget     Register = 0x0F // write side of RegNCount
)

var registerNames = [...]string{
	"NCR", "COMP", "LCOMP", "DIST", "CAT", "AIF", "MINIF", "MAXIF",
	"TESTCOMP", "TESTCAT", "NID", "GCR", "RESETCHAIN", "NSR", "REVISION", "NCOUNT",
}

func (r Register) String() string {
	if int(r) < len(registerNames) {
		return registerNames[r]
	}
	return fmt.Sprintf("REG(%#02x)", uint8(r))
}

// Network Status Register bits.
const (
	StatusUncertainBit  uint16 = 0x04
	StatusIdentifiedBit uint16 = 0x08
	ModeSR              uint16 = 0x10
	ModeKNN             uint16 = 0x20
)

// Power-on register values.
const (
	DefaultGCR   uint16 = 0x0001
	DefaultMinIF uint16 = 0x0002
	DefaultMaxIF uint16 = 0x4000
)

const (
	// Sentinel marks end of chain on CAT reads and unused top-K slots.
	Sentinel uint16 = 0xFFFF

	DegenerateBit uint16 = 0x8000
	CategoryMask  uint16 = 0x7FFF
)
