package knowledge

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"neuromem/internal/nm"
)

const (
	// FormatID is written into every header. Files older than MinFormatID
	// are rejected.
	FormatID    = 1704
	MinFormatID = 1704

	// WordSize is the width of every header and record word on disk.
	WordSize    = 4
	HeaderWords = 4
)

// Header opens every snapshot block.
type Header struct {
	Format      int32
	NeuronSize  int32
	NeuronCount int32
	Reserved    int32
}

// Record is the on-disk layout of one neuron: NCR, NeuronSize components,
// AIF, MINIF, CAT. It is kept apart from nm.Neuron so the file format does
// not follow changes to the live type.
type Record struct {
	NCR        int32
	Components []int32
	AIF        int32
	MinIF      int32
	Category   int32
}

// Block is one header and its records.
type Block struct {
	Header  Header
	Records []Record
}

func RecordWords(neuronSize int) int {
	return neuronSize + 4
}

func RecordFromNeuron(n nm.Neuron, neuronSize int) Record {
	r := Record{
		NCR:        int32(n.NCR),
		Components: make([]int32, neuronSize),
		AIF:        int32(n.AIF),
		MinIF:      int32(n.MinIF),
		Category:   int32(n.Category),
	}
	for i := 0; i < neuronSize && i < len(n.Components); i++ {
		r.Components[i] = int32(n.Components[i])
	}
	return r
}

func (r Record) Neuron() nm.Neuron {
	n := nm.Neuron{
		NCR:        uint16(r.NCR),
		Components: make([]uint16, len(r.Components)),
		AIF:        uint16(r.AIF),
		MinIF:      uint16(r.MinIF),
		Category:   uint16(r.Category),
	}
	for i, c := range r.Components {
		n.Components[i] = uint16(c)
	}
	return n
}

func (r Record) words(dst []int32) {
	dst[0] = r.NCR
	copy(dst[1:], r.Components)
	k := len(r.Components)
	dst[k+1] = r.AIF
	dst[k+2] = r.MinIF
	dst[k+3] = r.Category
}

func recordFromWords(src []int32) Record {
	k := len(src) - 4
	return Record{
		NCR:        src[0],
		Components: append([]int32(nil), src[1:k+1]...),
		AIF:        src[k+1],
		MinIF:      src[k+2],
		Category:   src[k+3],
	}
}

// Encode writes one block holding neurons and returns the byte count.
func Encode(w io.Writer, neuronSize int, neurons []nm.Neuron) (int64, error) {
	bw := bufio.NewWriter(w)
	header := Header{
		Format:      FormatID,
		NeuronSize:  int32(neuronSize),
		NeuronCount: int32(len(neurons)),
	}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return 0, err
	}
	written := int64(HeaderWords * WordSize)

	words := make([]int32, RecordWords(neuronSize))
	for _, n := range neurons {
		RecordFromNeuron(n, neuronSize).words(words)
		if err := binary.Write(bw, binary.LittleEndian, words); err != nil {
			return written, err
		}
		written += int64(len(words) * WordSize)
	}
	if err := bw.Flush(); err != nil {
		return written, err
	}
	return written, nil
}

// MaxNeuronSize bounds the neuron_size a header may declare. Component
// registers are addressed with 16 bits.
const MaxNeuronSize = 1 << 16

// Decode reads every block the stream yields. check, when set, vets each
// header before its records are read.
func Decode(r io.Reader, check func(Header) error) ([]Block, error) {
	br := bufio.NewReader(r)
	var blocks []Block
	for {
		if _, err := br.Peek(1); err != nil {
			if errors.Is(err, io.EOF) {
				return blocks, nil
			}
			return nil, err
		}

		var h Header
		if err := binary.Read(br, binary.LittleEndian, &h); err != nil {
			return nil, truncated(err, "header", len(blocks))
		}
		if check != nil {
			if err := check(h); err != nil {
				return nil, err
			}
		}
		if h.NeuronSize < 0 || h.NeuronSize > MaxNeuronSize || h.NeuronCount < 0 {
			return nil, fmt.Errorf("%w: block=%d size=%d count=%d", ErrCorrupt, len(blocks), h.NeuronSize, h.NeuronCount)
		}

		block := Block{Header: h, Records: make([]Record, 0, min(int(h.NeuronCount), 1024))}
		words := make([]int32, RecordWords(int(h.NeuronSize)))
		for i := int32(0); i < h.NeuronCount; i++ {
			if err := binary.Read(br, binary.LittleEndian, words); err != nil {
				return nil, truncated(err, fmt.Sprintf("record %d", i), len(blocks))
			}
			block.Records = append(block.Records, recordFromWords(words))
		}
		blocks = append(blocks, block)
	}
}

func truncated(err error, what string, block int) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: block=%d %s", ErrTruncated, block, what)
	}
	return err
}

// Neurons converts the records of a block to live neurons.
func (b Block) Neurons() []nm.Neuron {
	out := make([]nm.Neuron, len(b.Records))
	for i, r := range b.Records {
		out[i] = r.Neuron()
	}
	return out
}
