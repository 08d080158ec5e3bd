package chipsim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuromem/internal/bus"
	"neuromem/internal/nm"
)

func connect(t *testing.T, cfg Config) (*Board, *bus.Bus) {
	t.Helper()
	board := NewBoard(cfg)
	b, err := bus.ConnectPlatform(board, Platform())
	require.NoError(t, err)
	require.Equal(t, 1, board.Resets)
	return board, b
}

func reg(r nm.Register) uint8 { return uint8(r) }

func TestPowerOnDefaults(t *testing.T) {
	_, b := connect(t, Config{Capacity: 4, NeuronSize: 8})

	assert.Equal(t, nm.DefaultMinIF, b.Read(bus.ModuleNeurons, reg(nm.RegMinIF)))
	assert.Equal(t, nm.DefaultMaxIF, b.Read(bus.ModuleNeurons, reg(nm.RegMaxIF)))
	assert.Equal(t, nm.DefaultGCR, b.Read(bus.ModuleNeurons, reg(nm.RegGCR)))
	assert.Equal(t, uint16(0), b.Read(bus.ModuleNeurons, reg(nm.RegNCount)))
	assert.Equal(t, uint16(DefaultRevision), b.Revision())
	assert.Equal(t, bus.Idle, b.Read(0x05, 0x00))
}

func TestChainWalkWithTestCat(t *testing.T) {
	_, b := connect(t, Config{Capacity: 5, NeuronSize: 4})

	b.Write(bus.ModuleNeurons, reg(nm.RegNSR), nm.ModeSR)
	b.Write(bus.ModuleNeurons, reg(nm.RegTestCat), 1)
	b.Write(bus.ModuleNeurons, reg(nm.RegResetChain), 0)

	count := 0
	for b.Read(bus.ModuleNeurons, reg(nm.RegCat)) != nm.Sentinel {
		count++
		require.LessOrEqual(t, count, 5)
	}
	assert.Equal(t, 5, count)

	b.Write(bus.ModuleNeurons, reg(nm.RegForget), 0)
	assert.Equal(t, uint16(0), b.Read(bus.ModuleNeurons, reg(nm.RegNCount)))
}

func TestTestCompWritesEveryNeuron(t *testing.T) {
	board, b := connect(t, Config{Capacity: 3, NeuronSize: 4})
	require.NotEqual(t, uint16(0), board.Chip.Components(2)[1])

	b.Write(bus.ModuleNeurons, reg(nm.RegIndexComp), 1)
	b.Write(bus.ModuleNeurons, reg(nm.RegTestComp), 0)
	for i := 0; i < 3; i++ {
		assert.Equal(t, uint16(0), board.Chip.Components(i)[1])
	}
}

func broadcast(b *bus.Bus, vector []uint16) uint16 {
	last := len(vector) - 1
	b.WriteAddr(bus.Addr(bus.ModuleNeurons, reg(nm.RegComp)), vector[:last])
	b.Write(bus.ModuleNeurons, reg(nm.RegLComp), vector[last])
	return b.Read(bus.ModuleNeurons, reg(nm.RegNSR))
}

func TestLearnCommitsAndRecognizes(t *testing.T) {
	board, b := connect(t, Config{Capacity: 4, NeuronSize: 4})

	assert.Equal(t, uint16(0), broadcast(b, []uint16{10, 20, 30, 40}))
	b.Write(bus.ModuleNeurons, reg(nm.RegCat), 7)
	require.Equal(t, 1, board.Chip.Committed())

	nsr := broadcast(b, []uint16{10, 20, 30, 41})
	assert.Equal(t, nm.StatusIdentifiedBit, nsr)
	assert.Equal(t, uint16(1), b.Read(bus.ModuleNeurons, reg(nm.RegDist)))
	assert.Equal(t, uint16(7), b.Read(bus.ModuleNeurons, reg(nm.RegCat)))
	assert.Equal(t, uint16(1), b.Read(bus.ModuleNeurons, reg(nm.RegNID)))
	assert.Equal(t, nm.Sentinel, b.Read(bus.ModuleNeurons, reg(nm.RegDist)))

	// Same category firing: reinforced, nothing committed.
	broadcast(b, []uint16{10, 20, 30, 42})
	b.Write(bus.ModuleNeurons, reg(nm.RegCat), 7)
	assert.Equal(t, 1, board.Chip.Committed())
}

func TestConflictingLearnShrinksAndMarksUncertain(t *testing.T) {
	board, b := connect(t, Config{Capacity: 4, NeuronSize: 2})

	broadcast(b, []uint16{0, 0})
	b.Write(bus.ModuleNeurons, reg(nm.RegCat), 1)
	broadcast(b, []uint16{0, 10})
	b.Write(bus.ModuleNeurons, reg(nm.RegCat), 2)
	require.Equal(t, 2, board.Chip.Committed())

	// The first neuron shrank to distance 10 and the second was bounded by it.
	nsr := broadcast(b, []uint16{0, 5})
	assert.Equal(t, nm.StatusUncertainBit, nsr)
	assert.Equal(t, uint16(5), b.Read(bus.ModuleNeurons, reg(nm.RegDist)))
	assert.Equal(t, uint16(5), b.Read(bus.ModuleNeurons, reg(nm.RegDist)))

	assert.Equal(t, uint16(0), broadcast(b, []uint16{0, 20}))
}

func TestDegenerateFlagWhenShrinkHitsMinIF(t *testing.T) {
	_, b := connect(t, Config{Capacity: 4, NeuronSize: 2})

	broadcast(b, []uint16{0, 0})
	b.Write(bus.ModuleNeurons, reg(nm.RegCat), 1)
	broadcast(b, []uint16{0, 1})
	b.Write(bus.ModuleNeurons, reg(nm.RegCat), 2)

	b.Write(bus.ModuleNeurons, reg(nm.RegNSR), nm.ModeSR)
	b.Write(bus.ModuleNeurons, reg(nm.RegResetChain), 0)
	b.Read(bus.ModuleNeurons, reg(nm.RegNCR))
	b.ReadAddr(bus.Addr(bus.ModuleNeurons, reg(nm.RegComp)), make([]uint16, 2))
	assert.Equal(t, nm.DefaultMinIF, b.Read(bus.ModuleNeurons, reg(nm.RegAIF)))
	b.Read(bus.ModuleNeurons, reg(nm.RegMinIF))
	assert.Equal(t, uint16(1)|nm.DegenerateBit, b.Read(bus.ModuleNeurons, reg(nm.RegCat)))
}

func TestKNNFiresEveryNeuron(t *testing.T) {
	_, b := connect(t, Config{Capacity: 4, NeuronSize: 2})

	broadcast(b, []uint16{0, 0})
	b.Write(bus.ModuleNeurons, reg(nm.RegCat), 1)
	b.Write(bus.ModuleNeurons, reg(nm.RegMaxIF), 3)
	broadcast(b, []uint16{200, 200})
	b.Write(bus.ModuleNeurons, reg(nm.RegCat), 2)

	assert.Equal(t, uint16(0), broadcast(b, []uint16{255, 255}))

	b.Write(bus.ModuleNeurons, reg(nm.RegNSR), nm.ModeKNN)
	nsr := broadcast(b, []uint16{255, 254})
	assert.Equal(t, nm.ModeKNN|nm.StatusUncertainBit, nsr)
	assert.Equal(t, uint16(109), b.Read(bus.ModuleNeurons, reg(nm.RegDist)))
	assert.Equal(t, uint16(2), b.Read(bus.ModuleNeurons, reg(nm.RegCat)))
	assert.Equal(t, uint16(509), b.Read(bus.ModuleNeurons, reg(nm.RegDist)))
}

func TestLSupNorm(t *testing.T) {
	_, b := connect(t, Config{Capacity: 2, NeuronSize: 3})

	b.Write(bus.ModuleNeurons, reg(nm.RegGCR), nm.GCRValue(1, nm.NormLSup))
	broadcast(b, []uint16{10, 10, 10})
	b.Write(bus.ModuleNeurons, reg(nm.RegCat), 3)
	broadcast(b, []uint16{12, 15, 9})
	assert.Equal(t, uint16(5), b.Read(bus.ModuleNeurons, reg(nm.RegDist)))
}

func TestContextFiltersNeurons(t *testing.T) {
	_, b := connect(t, Config{Capacity: 4, NeuronSize: 2})

	b.Write(bus.ModuleNeurons, reg(nm.RegGCR), 2)
	broadcast(b, []uint16{1, 1})
	b.Write(bus.ModuleNeurons, reg(nm.RegCat), 9)

	b.Write(bus.ModuleNeurons, reg(nm.RegGCR), 3)
	assert.Equal(t, uint16(0), broadcast(b, []uint16{1, 1}))

	b.Write(bus.ModuleNeurons, reg(nm.RegGCR), 0)
	assert.Equal(t, nm.StatusIdentifiedBit, broadcast(b, []uint16{1, 1}))
}

func TestFaultInjection(t *testing.T) {
	board, b := connect(t, Config{Capacity: 2, NeuronSize: 2})

	cause := errors.New("cable pulled")
	board.Chip.FailAfter(1, cause)
	b.Read(bus.ModuleNeurons, reg(nm.RegNCount))
	assert.NoError(t, b.Err())
	assert.Equal(t, bus.Idle, b.Read(bus.ModuleNeurons, reg(nm.RegNCount)))
	assert.ErrorIs(t, b.Err(), cause)
}

func TestTxRejectsShortFrames(t *testing.T) {
	chip := New(Config{Capacity: 1, NeuronSize: 2})
	w := make([]byte, bus.HeaderSize)
	require.NoError(t, bus.Header{Addr: bus.Addr(bus.ModuleNeurons, 0x04), Words: 2}.Put(w))
	err := chip.Tx(w, make([]byte, bus.HeaderSize))
	assert.ErrorIs(t, err, bus.ErrShortFrame)
}
