package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"neuromem/internal/nm"
	"neuromem/internal/storage"
)

// DefaultName is the resource name the firmware uses for its snapshot.
const DefaultName = "KN.DAT"

// Chip is the part of nm.Chip the codec drives.
type Chip interface {
	NeuronSize() int
	Capacity() int
	ReadNeurons() ([]nm.Neuron, error)
	WriteNeurons([]nm.Neuron) error
}

var _ Chip = (*nm.Chip)(nil)

// Summary describes one completed Save or Load.
type Summary struct {
	Name       string
	Format     int
	NeuronSize int
	Neurons    int
	Blocks     int
	Bytes      int64
}

// Save writes every committed neuron of chip to name as one snapshot block,
// replacing any existing resource.
func Save(ctx context.Context, medium storage.Medium, name string, chip Chip) (summary Summary, err error) {
	ctx, span := otel.Tracer("knowledge").Start(ctx, "knowledge.Save",
		trace.WithAttributes(attribute.String("name", name)),
	)
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "save failed")
		}
	}()

	summary = Summary{Name: name, Format: FormatID, NeuronSize: chip.NeuronSize()}
	if err := ready(ctx, medium); err != nil {
		return summary, err
	}

	neurons, err := chip.ReadNeurons()
	if err != nil {
		return summary, fmt.Errorf("%w: %w", ErrBus, err)
	}

	exists, err := medium.Exists(ctx, name)
	if err != nil {
		return summary, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if exists {
		if err := medium.Remove(ctx, name); err != nil {
			return summary, fmt.Errorf("%w: %s: %w", ErrReplace, name, err)
		}
	}

	w, err := medium.Create(ctx, name)
	if err != nil {
		return summary, fmt.Errorf("%w: %s: %w", ErrOpen, name, err)
	}
	n, err := Encode(w, summary.NeuronSize, neurons)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return summary, fmt.Errorf("%w: write %s: %w", ErrOpen, name, err)
	}

	summary.Neurons = len(neurons)
	summary.Blocks = 1
	summary.Bytes = n
	span.SetAttributes(
		attribute.Int("neurons", summary.Neurons),
		attribute.Int64("bytes", summary.Bytes),
	)
	return summary, nil
}

// Load restores the neurons stored under name. Every block is validated
// before the array is touched; then each block in turn clears the array and
// replays its records, so the last block is what remains committed.
func Load(ctx context.Context, medium storage.Medium, name string, chip Chip) (summary Summary, err error) {
	ctx, span := otel.Tracer("knowledge").Start(ctx, "knowledge.Load",
		trace.WithAttributes(attribute.String("name", name)),
	)
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "load failed")
		}
	}()

	summary = Summary{Name: name}
	if err := ready(ctx, medium); err != nil {
		return summary, err
	}

	exists, err := medium.Exists(ctx, name)
	if err != nil {
		return summary, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if !exists {
		return summary, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	r, err := medium.Open(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return summary, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return summary, fmt.Errorf("%w: %s: %w", ErrOpen, name, err)
	}
	defer r.Close()

	counter := &countingReader{r: r}
	blocks, err := Decode(counter, Validator(chip.NeuronSize(), chip.Capacity()))
	if err != nil {
		return summary, err
	}

	for _, b := range blocks {
		if err := chip.WriteNeurons(b.Neurons()); err != nil {
			return summary, fmt.Errorf("%w: %w", ErrBus, err)
		}
		summary.Format = int(b.Header.Format)
		summary.NeuronSize = int(b.Header.NeuronSize)
		summary.Neurons = int(b.Header.NeuronCount)
	}
	summary.Blocks = len(blocks)
	summary.Bytes = counter.n
	span.SetAttributes(
		attribute.Int("blocks", summary.Blocks),
		attribute.Int("neurons", summary.Neurons),
	)
	return summary, nil
}

// Validator returns the header check Load applies: format first, then
// neuron size, then count.
func Validator(neuronSize, capacity int) func(Header) error {
	return func(h Header) error {
		if h.Format < MinFormatID {
			return fmt.Errorf("%w: format=%d min=%d", ErrFormatTooOld, h.Format, MinFormatID)
		}
		if int(h.NeuronSize) > neuronSize {
			return fmt.Errorf("%w: file=%d chip=%d", ErrGeometry, h.NeuronSize, neuronSize)
		}
		if int(h.NeuronCount) > capacity {
			return fmt.Errorf("%w: count=%d capacity=%d", ErrCapacityExceeded, h.NeuronCount, capacity)
		}
		return nil
	}
}

// ready checks the medium and initializes it once if it is not ready yet.
func ready(ctx context.Context, medium storage.Medium) error {
	if medium == nil {
		return fmt.Errorf("%w: no medium", ErrStorageUnavailable)
	}
	if err := medium.Ready(ctx); err == nil {
		return nil
	}
	if err := medium.Init(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if err := medium.Ready(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
