// Package chipsim emulates the neuron module of a NeuroMem chip at register
// level. It decodes bus frames, so it can stand in for the physical link.
package chipsim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"neuromem/internal/bus"
	"neuromem/internal/nm"
)

const (
	DefaultCapacity   = 576
	DefaultNeuronSize = nm.DefaultNeuronSize
	DefaultRevision   = 0x0112
)

var ErrInjected = errors.New("injected link fault")

type Config struct {
	Capacity   int
	NeuronSize int
	Revision   uint16
}

type neuron struct {
	ncr   uint16
	comps []uint16
	aif   uint16
	minif uint16
	cat   uint16
}

type hit struct {
	dist uint16
	cat  uint16
	nid  uint16
}

// Chip is an emulated device. It implements bus.Link.
type Chip struct {
	mu  sync.Mutex
	cfg Config

	neurons []neuron
	ncount  int

	gcr   uint16
	minif uint16
	maxif uint16
	nsr   uint16
	nid   uint16

	input     []uint16
	inputLen  int
	compIndex int
	indexComp int

	cursor  int
	compPtr int

	firing  []hit
	readout int
	current int

	txCount   int
	failAfter int
	fault     error
}

func New(cfg Config) *Chip {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.NeuronSize <= 0 {
		cfg.NeuronSize = DefaultNeuronSize
	}
	if cfg.Revision == 0 {
		cfg.Revision = DefaultRevision
	}
	c := &Chip{
		cfg:     cfg,
		neurons: make([]neuron, cfg.Capacity),
		input:   make([]uint16, cfg.NeuronSize),
	}
	// Memory comes up holding whatever the cells settled to.
	for i := range c.neurons {
		comps := make([]uint16, cfg.NeuronSize)
		for j := range comps {
			comps[j] = uint16((i*31 + j*7 + 0x5A) & 0xFF)
		}
		c.neurons[i].comps = comps
	}
	c.powerOn()
	return c
}

func (c *Chip) Config() Config {
	return c.cfg
}

// PowerOn returns every register to its reset value. Neuron memory keeps its
// contents but no neuron is committed.
func (c *Chip) PowerOn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.powerOn()
}

func (c *Chip) powerOn() {
	c.nsr = 0
	c.nid = 0
	c.indexComp = 0
	c.forget()
}

// FailAfter makes every transaction after the next n fail with err.
func (c *Chip) FailAfter(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	c.failAfter = c.txCount + n
	c.fault = err
}

// Transactions counts the frames processed so far.
func (c *Chip) Transactions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txCount
}

// Committed reports the number of committed neurons without bus traffic.
func (c *Chip) Committed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ncount
}

// Components returns a copy of the memory of neuron i, committed or not.
func (c *Chip) Components(i int) []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint16(nil), c.neurons[i].comps...)
}

func (c *Chip) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fault != nil && c.txCount >= c.failAfter {
		return c.fault
	}
	h, err := bus.DecodeHeader(w)
	if err != nil {
		return err
	}
	n := bus.FrameLen(h.Words)
	if len(w) < n || (!h.Write && len(r) < n) {
		return fmt.Errorf("%w: want=%d w=%d r=%d", bus.ErrShortFrame, n, len(w), len(r))
	}
	c.txCount++

	for i := 0; i < h.Words; i++ {
		off := bus.HeaderSize + 2*i
		if h.Write {
			c.write(h.Module(), h.Register(), binary.BigEndian.Uint16(w[off:]))
			continue
		}
		binary.BigEndian.PutUint16(r[off:], c.read(h.Module(), h.Register()))
	}
	return nil
}

func (c *Chip) srMode() bool {
	return c.nsr&nm.ModeSR != 0
}

func (c *Chip) read(module bus.Module, reg uint8) uint16 {
	switch module {
	case bus.ModuleNeurons:
	case bus.ModuleControl:
		if reg == 0x01 {
			return c.cfg.Revision
		}
		return bus.Idle
	default:
		return bus.Idle
	}

	switch nm.Register(reg) {
	case nm.RegNSR:
		return c.nsr | c.status()
	case nm.RegNCount:
		return uint16(c.ncount)
	case nm.RegGCR:
		return c.gcr
	case nm.RegMaxIF:
		return c.maxif
	case nm.RegRevision:
		return c.cfg.Revision
	}

	if c.srMode() {
		return c.readChain(nm.Register(reg))
	}

	switch nm.Register(reg) {
	case nm.RegMinIF:
		return c.minif
	case nm.RegDist:
		if c.readout >= len(c.firing) {
			c.current = -1
			return nm.Sentinel
		}
		c.current = c.readout
		c.readout++
		return c.firing[c.current].dist
	case nm.RegCat:
		if c.current < 0 {
			return nm.Sentinel
		}
		return c.firing[c.current].cat
	case nm.RegNID:
		if c.current < 0 {
			return nm.Sentinel
		}
		return c.firing[c.current].nid
	case nm.RegAIF:
		if c.current < 0 {
			return 0
		}
		return c.neurons[c.firing[c.current].nid-1].aif
	}
	return 0
}

// readChain serves reads in chain-walk mode. The walk covers the committed
// neurons followed by the one ready to learn; past that CAT reads Sentinel.
func (c *Chip) readChain(reg nm.Register) uint16 {
	walkable := c.ncount + 1
	if walkable > len(c.neurons) {
		walkable = len(c.neurons)
	}
	if c.cursor >= walkable {
		if reg == nm.RegCat {
			return nm.Sentinel
		}
		return 0
	}
	n := &c.neurons[c.cursor]
	switch reg {
	case nm.RegNCR:
		return n.ncr
	case nm.RegComp, nm.RegLComp:
		if c.compPtr >= len(n.comps) {
			return 0
		}
		v := n.comps[c.compPtr]
		c.compPtr++
		return v
	case nm.RegAIF:
		return n.aif
	case nm.RegMinIF:
		return n.minif
	case nm.RegCat:
		v := n.cat
		c.cursor++
		c.compPtr = 0
		return v
	case nm.RegNID:
		return uint16(c.cursor + 1)
	}
	return 0
}

func (c *Chip) write(module bus.Module, reg uint8, v uint16) {
	if module != bus.ModuleNeurons {
		return
	}

	switch nm.Register(reg) {
	case nm.RegNSR:
		c.nsr = v & (nm.ModeSR | nm.ModeKNN)
		c.compPtr = 0
		c.compIndex = 0
		return
	case nm.RegForget:
		c.forget()
		return
	case nm.RegGCR:
		c.gcr = v
		return
	case nm.RegMaxIF:
		c.maxif = v
		return
	case nm.RegResetChain:
		c.cursor = 0
		c.compPtr = 0
		return
	case nm.RegTestCat:
		for i := range c.neurons {
			c.neurons[i].cat = v
		}
		if v != 0 {
			c.ncount = len(c.neurons)
		} else {
			c.ncount = 0
		}
		return
	case nm.RegIndexComp:
		c.indexComp = int(v)
		return
	case nm.RegTestComp:
		if c.indexComp < c.cfg.NeuronSize {
			for i := range c.neurons {
				c.neurons[i].comps[c.indexComp] = v & 0xFF
			}
		}
		return
	case nm.RegNID:
		c.nid = v
		return
	}

	if c.srMode() {
		c.writeChain(nm.Register(reg), v)
		return
	}

	switch nm.Register(reg) {
	case nm.RegMinIF:
		c.minif = v
	case nm.RegComp:
		if c.compIndex < len(c.input) {
			c.input[c.compIndex] = v & 0xFF
		}
		c.compIndex++
	case nm.RegLComp:
		if c.compIndex < len(c.input) {
			c.input[c.compIndex] = v & 0xFF
		}
		c.compIndex++
		c.inputLen = min(c.compIndex, len(c.input))
		c.compIndex = 0
		c.evaluate()
	case nm.RegCat:
		c.learn(v)
	}
}

func (c *Chip) writeChain(reg nm.Register, v uint16) {
	if c.cursor >= len(c.neurons) {
		return
	}
	n := &c.neurons[c.cursor]
	switch reg {
	case nm.RegNCR:
		n.ncr = v
	case nm.RegComp, nm.RegLComp:
		if c.compPtr < len(n.comps) {
			n.comps[c.compPtr] = v
		}
		c.compPtr++
	case nm.RegAIF:
		n.aif = v
	case nm.RegMinIF:
		n.minif = v
	case nm.RegCat:
		n.cat = v
		if c.cursor >= c.ncount {
			c.ncount = c.cursor + 1
		}
		c.cursor++
		c.compPtr = 0
	}
}

func (c *Chip) forget() {
	for i := range c.neurons {
		c.neurons[i].cat = 0
	}
	c.ncount = 0
	c.gcr = nm.DefaultGCR
	c.minif = nm.DefaultMinIF
	c.maxif = nm.DefaultMaxIF
	c.cursor = 0
	c.compPtr = 0
	c.compIndex = 0
	c.inputLen = 0
	c.firing = nil
	c.readout = 0
	c.current = -1
}

func (c *Chip) status() uint16 {
	if len(c.firing) == 0 {
		return 0
	}
	first := c.firing[0].cat & nm.CategoryMask
	for _, h := range c.firing[1:] {
		if h.cat&nm.CategoryMask != first {
			return nm.StatusUncertainBit
		}
	}
	return nm.StatusIdentifiedBit
}

func (c *Chip) contextMatches(n *neuron) bool {
	ctx := c.gcr & 0x7F
	return ctx == 0 || n.ncr&0x7F == ctx
}

func (c *Chip) distance(n *neuron) uint16 {
	lsup := c.gcr&0x80 != 0
	total := 0
	for i := 0; i < c.inputLen; i++ {
		d := int(n.comps[i]) - int(c.input[i])
		if d < 0 {
			d = -d
		}
		if lsup {
			total = max(total, d)
		} else {
			total += d
		}
	}
	return uint16(min(total, int(nm.Sentinel)-1))
}

func (c *Chip) evaluate() {
	c.firing = c.firing[:0]
	knn := c.nsr&nm.ModeKNN != 0
	for i := 0; i < c.ncount; i++ {
		n := &c.neurons[i]
		if !c.contextMatches(n) {
			continue
		}
		d := c.distance(n)
		if knn || d < n.aif {
			c.firing = append(c.firing, hit{dist: d, cat: n.cat, nid: uint16(i + 1)})
		}
	}
	sort.SliceStable(c.firing, func(i, j int) bool {
		return c.firing[i].dist < c.firing[j].dist
	})
	c.readout = 0
	c.current = -1
	if len(c.firing) > 0 {
		c.current = 0
	}
}

// learn applies a category to the last broadcast vector: firing neurons of
// another category shrink their AIF to the vector's distance, and a new neuron
// is committed unless one of the same category already fires. Category 0 is
// a counter-example and never commits.
func (c *Chip) learn(cat uint16) {
	if c.inputLen == 0 {
		return
	}
	matched := false
	nearest := c.maxif
	for i := 0; i < c.ncount; i++ {
		n := &c.neurons[i]
		if !c.contextMatches(n) {
			continue
		}
		d := c.distance(n)
		if n.cat&nm.CategoryMask == cat&nm.CategoryMask {
			if d < n.aif {
				matched = true
			}
			continue
		}
		nearest = min(nearest, d)
		if d < n.aif {
			if d <= n.minif {
				n.aif = n.minif
				n.cat |= nm.DegenerateBit
			} else {
				n.aif = d
			}
		}
	}
	if cat == 0 || matched || c.ncount >= len(c.neurons) {
		c.evaluate()
		return
	}

	n := &c.neurons[c.ncount]
	n.ncr = c.gcr & 0xFF
	clear(n.comps)
	copy(n.comps, c.input[:c.inputLen])
	n.aif = max(nearest, c.minif)
	n.minif = c.minif
	n.cat = cat
	c.ncount++
	c.evaluate()
}
