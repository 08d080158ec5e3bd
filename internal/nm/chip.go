package nm

import (
	"errors"
	"fmt"
	"sync"

	"neuromem/internal/bus"
)

const DefaultNeuronSize = 256

// maxChain bounds a capacity walk on a bus that never reports end of chain.
const maxChain = 1 << 16

var (
	ErrVectorLength = errors.New("invalid vector length")
	ErrNeuronIndex  = errors.New("neuron index out of range")
	ErrNeuronSize   = errors.New("neuron exceeds chip neuron size")
	ErrCapacity     = errors.New("neuron count exceeds capacity")
	ErrTopK         = errors.New("invalid top-k")
)

type Options struct {
	NeuronSize       int
	DegeneratePolicy DegeneratePolicy
}

// Chip is the exclusive handle on one neuron array. The device has a single
// chain cursor and mode register, so every exported method runs under the
// handle's lock.
type Chip struct {
	mu sync.Mutex

	bus        *bus.Bus
	neuronSize int
	policy     DegeneratePolicy
	navail     int
}

func New(b *bus.Bus, opts Options) *Chip {
	size := opts.NeuronSize
	if size <= 0 {
		size = DefaultNeuronSize
	}
	return &Chip{
		bus:        b,
		neuronSize: size,
		policy:     opts.DegeneratePolicy,
	}
}

func (c *Chip) NeuronSize() int {
	return c.neuronSize
}

// Capacity returns the neuron count found by the last CountNeuronsAvailable,
// or 0 if discovery has not run.
func (c *Chip) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.navail
}

// Err reports the transport's sticky error.
func (c *Chip) Err() error {
	return c.bus.Err()
}

func (c *Chip) Bus() *bus.Bus {
	return c.bus
}

// Begin discovers the capacity and then clears every neuron.
func (c *Chip) Begin() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.countNeuronsAvailable()
	c.clearNeurons()
	return c.navail, c.bus.Err()
}

func (c *Chip) Forget() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.write(RegForget, 0)
	return c.bus.Err()
}

// ForgetMaxIF uncommits every neuron and sets MAXIF.
func (c *Chip) ForgetMaxIF(maxif uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.write(RegForget, 0)
	c.write(RegMaxIF, maxif)
	return c.bus.Err()
}

// ClearNeurons zeroes every component of every neuron, then uncommits them.
// GCR, MINIF and MAXIF return to their defaults.
func (c *Chip) ClearNeurons() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearNeurons()
	return c.bus.Err()
}

func (c *Chip) clearNeurons() {
	c.write(RegNSR, ModeSR)
	c.write(RegTestCat, 0x0001)
	c.write(RegNSR, 0)
	for i := 0; i < c.neuronSize; i++ {
		c.write(RegIndexComp, uint16(i))
		c.write(RegTestComp, 0)
	}
	c.write(RegForget, 0)
}

// CountNeuronsAvailable walks the whole chain with every neuron temporarily
// committed and returns the hardware capacity. The array is left forgotten.
func (c *Chip) CountNeuronsAvailable() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.countNeuronsAvailable()
	return c.navail, c.bus.Err()
}

func (c *Chip) countNeuronsAvailable() {
	c.write(RegForget, 0)
	c.write(RegNSR, ModeSR)
	c.write(RegTestCat, 0x0001)
	c.write(RegResetChain, 0)

	n := 0
	for n < maxChain && c.read(RegCat) != Sentinel {
		n++
	}
	c.navail = n

	c.write(RegNSR, 0)
	c.write(RegForget, 0)
}

// Broadcast presents vector to every committed neuron. The last component
// goes to LCOMP, which starts the distance evaluation.
func (c *Chip) Broadcast(vector []byte) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.broadcast(vector); err != nil {
		return StatusUnknown, err
	}
	return statusFromNSR(c.read(RegNSR)), c.bus.Err()
}

func (c *Chip) broadcast(vector []byte) error {
	if len(vector) == 0 || len(vector) > c.neuronSize {
		return fmt.Errorf("%w: got=%d max=%d", ErrVectorLength, len(vector), c.neuronSize)
	}
	last := len(vector) - 1
	if last > 0 {
		words := make([]uint16, last)
		for i, v := range vector[:last] {
			words[i] = uint16(v)
		}
		c.bus.WriteAddr(c.addr(RegComp), words)
	}
	c.write(RegLComp, uint16(vector[last]))
	return nil
}

// Learn broadcasts vector and writes category. The chip decides whether a
// firing neuron is reinforced or a new one committed. It returns NCOUNT.
func (c *Chip) Learn(vector []byte, category uint16) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.broadcast(vector); err != nil {
		return 0, err
	}
	c.write(RegCat, category)
	return int(c.read(RegNCount)), c.bus.Err()
}

func (c *Chip) Classify(vector []byte) (Status, error) {
	return c.Broadcast(vector)
}

// BestMatch classifies vector and reads back the closest firing neuron.
func (c *Chip) BestMatch(vector []byte) (Match, Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.broadcast(vector); err != nil {
		return emptyMatch(), StatusUnknown, err
	}
	m := c.readMatch()
	status := statusFromNSR(c.read(RegNSR))
	return m, status, c.bus.Err()
}

// ClassifyK reads up to k firing neurons ordered by increasing distance.
// Slots past the last firing neuron hold Sentinel. The second result is the
// number of firing neurons read, at most k.
func (c *Chip) ClassifyK(vector []byte, k int) ([]Match, int, error) {
	if k <= 0 {
		return nil, 0, fmt.Errorf("%w: %d", ErrTopK, k)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.broadcast(vector); err != nil {
		return nil, 0, err
	}
	out := make([]Match, k)
	firing := 0
	for i := range out {
		m := c.readMatch()
		out[i] = m
		if !m.Empty() {
			firing++
		}
	}
	return out, firing, c.bus.Err()
}

func (c *Chip) readMatch() Match {
	dist := c.read(RegDist)
	if dist == Sentinel {
		return emptyMatch()
	}
	cat := c.read(RegCat)
	nid := c.read(RegNID)
	return Match{
		Distance:   dist,
		Category:   c.policy.apply(cat),
		NeuronID:   nid,
		Degenerate: cat&DegenerateBit != 0,
	}
}

func (c *Chip) Context() (Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx := Context{
		GCR:   c.read(RegGCR),
		MinIF: c.read(RegMinIF),
		MaxIF: c.read(RegMaxIF),
	}
	return ctx, c.bus.Err()
}

func (c *Chip) SetContext(ctx Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.write(RegGCR, ctx.GCR)
	c.write(RegMinIF, ctx.MinIF)
	c.write(RegMaxIF, ctx.MaxIF)
	return c.bus.Err()
}

// SetRBF clears the KNN mode bit (radial basis function, the default).
func (c *Chip) SetRBF() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsr := c.read(RegNSR)
	c.write(RegNSR, nsr&^ModeKNN&0xFF)
	return c.bus.Err()
}

func (c *Chip) SetKNN() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsr := c.read(RegNSR)
	c.write(RegNSR, nsr|ModeKNN)
	return c.bus.Err()
}

// ReadNeuron returns the neuron at position index of the chain.
func (c *Chip) ReadNeuron(index int) (Neuron, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ncount := int(c.read(RegNCount))
	if index < 0 || index >= ncount {
		if err := c.bus.Err(); err != nil {
			return Neuron{}, err
		}
		return Neuron{}, fmt.Errorf("%w: index=%d ncount=%d", ErrNeuronIndex, index, ncount)
	}

	var n Neuron
	c.walk(func() {
		for i := 0; i < index; i++ {
			c.read(RegCat)
		}
		n = c.readRecord()
	})
	return n, c.bus.Err()
}

// ReadNeurons returns every committed neuron in chain order.
func (c *Chip) ReadNeurons() ([]Neuron, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ncount := int(c.read(RegNCount))
	if err := c.bus.Err(); err != nil {
		return nil, err
	}
	out := make([]Neuron, 0, ncount)
	c.walk(func() {
		for i := 0; i < ncount; i++ {
			out = append(out, c.readRecord())
		}
	})
	return out, c.bus.Err()
}

// WriteNeurons clears the array and commits neurons in order. NSR and GCR are
// restored on exit. Rows shorter than the neuron size are zero padded.
func (c *Chip) WriteNeurons(neurons []Neuron) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.navail > 0 && len(neurons) > c.navail {
		return fmt.Errorf("%w: count=%d capacity=%d", ErrCapacity, len(neurons), c.navail)
	}
	for i, n := range neurons {
		if len(n.Components) > c.neuronSize {
			return fmt.Errorf("%w: neuron=%d components=%d size=%d", ErrNeuronSize, i, len(n.Components), c.neuronSize)
		}
	}

	savedNSR := c.read(RegNSR)
	savedGCR := c.read(RegGCR)
	defer func() {
		c.write(RegNSR, savedNSR)
		c.write(RegGCR, savedGCR)
	}()

	c.clearNeurons()
	c.write(RegNSR, ModeSR)
	c.write(RegResetChain, 0)
	comps := make([]uint16, c.neuronSize)
	for _, n := range neurons {
		clear(comps)
		copy(comps, n.Components)
		c.write(RegNCR, n.NCR)
		c.bus.WriteAddr(c.addr(RegComp), comps)
		c.write(RegAIF, n.AIF)
		c.write(RegMinIF, n.MinIF)
		c.write(RegCat, n.Category)
	}
	return c.bus.Err()
}

// walk enters chain-walk mode from the head of the chain and restores NSR to
// the value it held before the call.
func (c *Chip) walk(fn func()) {
	saved := c.read(RegNSR)
	c.write(RegNSR, ModeSR)
	c.write(RegResetChain, 0)
	defer c.write(RegNSR, saved)
	fn()
}

func (c *Chip) readRecord() Neuron {
	n := Neuron{Components: make([]uint16, c.neuronSize)}
	n.NCR = c.read(RegNCR)
	c.bus.ReadAddr(c.addr(RegComp), n.Components)
	n.AIF = c.read(RegAIF)
	n.MinIF = c.read(RegMinIF)
	n.Category = c.read(RegCat)
	return n
}

func (c *Chip) addr(r Register) uint32 {
	return bus.Addr(bus.ModuleNeurons, uint8(r))
}

func (c *Chip) read(r Register) uint16 {
	return c.bus.Read(bus.ModuleNeurons, uint8(r))
}

func (c *Chip) write(r Register, v uint16) {
	c.bus.Write(bus.ModuleNeurons, uint8(r), v)
}
