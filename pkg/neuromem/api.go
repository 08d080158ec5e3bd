package neuromem

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"neuromem/internal/bus"
	"neuromem/internal/chipsim"
	"neuromem/internal/knowledge"
	"neuromem/internal/logging"
	"neuromem/internal/nm"
	"neuromem/internal/storage"
)

const (
	defaultPlatform  = "sim"
	defaultStorePath = "neuromem.db"
)

var (
	ErrNotOpen      = errors.New("client is not open")
	ErrAlreadyOpen  = errors.New("client is already open")
	ErrBoardMissing = errors.New("hardware platform requires a board")
)

type Options struct {
	// Platform names a built-in profile or "sim". Board must be set for
	// hardware profiles.
	Platform string
	Board    bus.Board

	NeuronSize       int
	SimCapacity      int
	DegeneratePolicy nm.DegeneratePolicy
	Context          *nm.Context
	KNN              bool

	// Medium overrides StoreKind/StorePath.
	Medium    storage.Medium
	StoreKind string
	StorePath string

	Logger *logging.Logger
}

// Client owns one chip and its knowledge store. Calls are serialized so a
// knowledge load never interleaves with learning or recognition.
type Client struct {
	mu sync.Mutex

	id       string
	opts     Options
	platform bus.Platform
	board    bus.Board
	medium   storage.Medium
	log      *logging.Logger

	chip     *nm.Chip
	capacity int
}

type Classification struct {
	Status nm.Status
	Match  nm.Match
}

type TopK struct {
	Matches []nm.Match
	Firing  int
}

type Info struct {
	SessionID  string
	Platform   string
	Revision   uint16
	NeuronSize int
	Capacity   int
	Committed  int
	Context    nm.Context
	KNN        bool
}

func New(opts Options) (*Client, error) {
	name := opts.Platform
	if name == "" {
		name = defaultPlatform
	}

	var p bus.Platform
	board := opts.Board
	if name == defaultPlatform {
		p = chipsim.Platform()
		if board == nil {
			board = chipsim.NewBoard(chipsim.Config{Capacity: opts.SimCapacity, NeuronSize: opts.NeuronSize})
		}
	} else {
		var err error
		p, err = bus.LookupPlatformName(name)
		if err != nil {
			return nil, err
		}
		if board == nil {
			return nil, fmt.Errorf("%w: %s", ErrBoardMissing, p.Name)
		}
	}

	medium := opts.Medium
	if medium == nil {
		kind := opts.StoreKind
		if kind == "" {
			kind = storage.DefaultKind()
		}
		path := opts.StorePath
		if path == "" && kind == storage.KindSQLite {
			path = defaultStorePath
		}
		var err error
		medium, err = storage.NewMedium(kind, path)
		if err != nil {
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{
		id:       uuid.NewString(),
		opts:     opts,
		platform: p,
		board:    board,
		medium:   medium,
		log:      logger.With("neuromem"),
	}, nil
}

// Open connects to the chip, discovers its capacity, clears it and applies
// the configured context and mode.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if c.chip != nil {
		return ErrAlreadyOpen
	}

	b, err := bus.ConnectPlatform(c.board, c.platform)
	if err != nil {
		c.log.Errorf("connect platform=%s: %v", c.platform.Name, err)
		return err
	}
	chip := nm.New(b, nm.Options{NeuronSize: c.opts.NeuronSize, DegeneratePolicy: c.opts.DegeneratePolicy})
	capacity, err := chip.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	c.chip = chip
	c.capacity = capacity
	if err := c.applySettings(); err != nil {
		c.chip = nil
		return err
	}
	c.log.Infof("open client=%s platform=%s capacity=%d neuron_size=%d", c.id, c.platform.Name, capacity, chip.NeuronSize())
	return nil
}

func (c *Client) applySettings() error {
	if c.opts.Context != nil {
		if err := c.chip.SetContext(*c.opts.Context); err != nil {
			return fmt.Errorf("set context: %w", err)
		}
	}
	if c.opts.KNN {
		if err := c.chip.SetKNN(); err != nil {
			return fmt.Errorf("set knn: %w", err)
		}
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.chip = nil
	return storage.CloseIfSupported(c.medium)
}

func (c *Client) ID() string {
	return c.id
}

// Chip exposes the underlying handle for register-level access.
func (c *Client) Chip() *nm.Chip {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chip
}

func (c *Client) Medium() storage.Medium {
	return c.medium
}

func (c *Client) Learn(ctx context.Context, vector []byte, category uint16) (int, error) {
	chip, unlock, err := c.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	ncount, err := chip.Learn(vector, category)
	if err != nil {
		c.log.Warnf("learn category=%d: %v", category, err)
		return 0, err
	}
	c.log.Debugf("learn category=%d ncount=%d", category, ncount)
	return ncount, nil
}

func (c *Client) Classify(ctx context.Context, vector []byte) (Classification, error) {
	chip, unlock, err := c.acquire(ctx)
	if err != nil {
		return Classification{}, err
	}
	defer unlock()

	m, status, err := chip.BestMatch(vector)
	if err != nil {
		return Classification{}, err
	}
	return Classification{Status: status, Match: m}, nil
}

func (c *Client) ClassifyK(ctx context.Context, vector []byte, k int) (TopK, error) {
	chip, unlock, err := c.acquire(ctx)
	if err != nil {
		return TopK{}, err
	}
	defer unlock()

	matches, firing, err := chip.ClassifyK(vector, k)
	if err != nil {
		return TopK{}, err
	}
	return TopK{Matches: matches, Firing: firing}, nil
}

func (c *Client) Neurons(ctx context.Context) ([]nm.Neuron, error) {
	chip, unlock, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return chip.ReadNeurons()
}

// Forget uncommits every neuron and reapplies the configured context and
// mode, which the device resets.
func (c *Client) Forget(ctx context.Context) error {
	chip, unlock, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := chip.Forget(); err != nil {
		return err
	}
	c.log.Infof("forget client=%s", c.id)
	return c.applySettings()
}

func (c *Client) SaveKnowledge(ctx context.Context, name string) (knowledge.Summary, error) {
	chip, unlock, err := c.acquire(ctx)
	if err != nil {
		return knowledge.Summary{}, err
	}
	defer unlock()

	if name == "" {
		name = knowledge.DefaultName
	}
	summary, err := knowledge.Save(ctx, c.medium, name, chip)
	if err != nil {
		c.log.Errorf("save %s code=%d: %v", name, knowledge.Code(err), err)
		return summary, err
	}
	c.log.Infof("save %s neurons=%d bytes=%d", name, summary.Neurons, summary.Bytes)
	return summary, nil
}

func (c *Client) LoadKnowledge(ctx context.Context, name string) (knowledge.Summary, error) {
	chip, unlock, err := c.acquire(ctx)
	if err != nil {
		return knowledge.Summary{}, err
	}
	defer unlock()

	if name == "" {
		name = knowledge.DefaultName
	}
	summary, err := knowledge.Load(ctx, c.medium, name, chip)
	if err != nil {
		c.log.Errorf("load %s code=%d: %v", name, knowledge.Code(err), err)
		return summary, err
	}
	c.log.Infof("load %s blocks=%d neurons=%d", name, summary.Blocks, summary.Neurons)
	return summary, nil
}

func (c *Client) Info(ctx context.Context) (Info, error) {
	chip, unlock, err := c.acquire(ctx)
	if err != nil {
		return Info{}, err
	}
	defer unlock()

	nctx, err := chip.Context()
	if err != nil {
		return Info{}, err
	}
	info := Info{
		SessionID:  c.id,
		Platform:   c.platform.Name,
		Revision:   chip.Revision(),
		NeuronSize: chip.NeuronSize(),
		Capacity:   c.capacity,
		Committed:  int(chip.NCount()),
		Context:    nctx,
		KNN:        chip.NSR()&nm.ModeKNN != 0,
	}
	return info, chip.Err()
}

// acquire takes the client lock for the whole call and returns the open chip.
func (c *Client) acquire(ctx context.Context) (*nm.Chip, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	if c.chip == nil {
		c.mu.Unlock()
		return nil, nil, ErrNotOpen
	}
	return c.chip, c.mu.Unlock, nil
}
