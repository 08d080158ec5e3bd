package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"neuromem/internal/knowledge"
	"neuromem/internal/logging"
	"neuromem/internal/nm"
	"neuromem/internal/storage"
	"neuromem/pkg/neuromem"
)

const (
	defaultDirStorePath    = "knowledge"
	defaultSQLiteStorePath = "neuromem.db"
)

type fileConfig struct {
	Platform   string        `yaml:"platform"`
	NeuronSize int           `yaml:"neuron_size"`
	Capacity   int           `yaml:"capacity"`
	Store      string        `yaml:"store"`
	StorePath  string        `yaml:"store_path"`
	Name       string        `yaml:"name"`
	Context    contextConfig `yaml:"context"`
	KNN        bool          `yaml:"knn"`
	Degenerate string        `yaml:"degenerate"`
}

type contextConfig struct {
	GCR   int `yaml:"gcr"`
	MinIF int `yaml:"minif"`
	MaxIF int `yaml:"maxif"`
}

type sample struct {
	Category uint16 `yaml:"category"`
	Vector   []int  `yaml:"vector"`
}

func loadFileConfig(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, err
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// commonFlags are shared by every command that talks to a chip.
type commonFlags struct {
	fs *flag.FlagSet

	config     *string
	platform   *string
	neuronSize *int
	capacity   *int
	store      *string
	storePath  *string
	name       *string
	gcr        *int
	minif      *int
	maxif      *int
	knn        *bool
	degenerate *string
	logLevel   *string
	logDir     *string
}

func registerCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		fs:         fs,
		config:     fs.String("config", "", "optional YAML config path"),
		platform:   fs.String("platform", "sim", "platform: sim|braincard|neuroshield|neurotile"),
		neuronSize: fs.Int("neuron-size", nm.DefaultNeuronSize, "components per neuron"),
		capacity:   fs.Int("capacity", 0, "emulated neuron count (sim only)"),
		store:      fs.String("store", defaultStoreKind(), "knowledge store backend: memory|dir|sqlite"),
		storePath:  fs.String("store-path", "", "directory or sqlite file backing the store"),
		name:       fs.String("name", knowledge.DefaultName, "knowledge file name"),
		gcr:        fs.Int("gcr", 0, "global context register (0 keeps the chip default)"),
		minif:      fs.Int("minif", 0, "minimum influence field (0 keeps the chip default)"),
		maxif:      fs.Int("maxif", 0, "maximum influence field (0 keeps the chip default)"),
		knn:        fs.Bool("knn", false, "classify in KNN mode instead of RBF"),
		degenerate: fs.String("degenerate", "keep", "degenerate flag in categories: keep|mask"),
		logLevel:   fs.String("log-level", "warn", "log level: debug|info|warn|error"),
		logDir:     fs.String("log-dir", "", "write logs to a session file in this directory"),
	}
}

func defaultStoreKind() string {
	if storage.DefaultKind() == storage.KindSQLite {
		return storage.KindSQLite
	}
	return storage.KindDir
}

// settings is the resolved configuration: config file values overridden by
// flags given on the command line.
type settings struct {
	platform   string
	neuronSize int
	capacity   int
	store      string
	storePath  string
	name       string
	context    contextConfig
	knn        bool
	degenerate nm.DegeneratePolicy
	logLevel   logging.Level
	logDir     string
}

func (f *commonFlags) resolve() (settings, error) {
	s := settings{
		platform:   *f.platform,
		neuronSize: *f.neuronSize,
		capacity:   *f.capacity,
		store:      *f.store,
		storePath:  *f.storePath,
		name:       *f.name,
		context:    contextConfig{GCR: *f.gcr, MinIF: *f.minif, MaxIF: *f.maxif},
		knn:        *f.knn,
		logDir:     *f.logDir,
	}
	degenerate := *f.degenerate

	if *f.config != "" {
		cfg, err := loadFileConfig(*f.config)
		if err != nil {
			return settings{}, err
		}
		set := map[string]bool{}
		f.fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

		if cfg.Platform != "" && !set["platform"] {
			s.platform = cfg.Platform
		}
		if cfg.NeuronSize > 0 && !set["neuron-size"] {
			s.neuronSize = cfg.NeuronSize
		}
		if cfg.Capacity > 0 && !set["capacity"] {
			s.capacity = cfg.Capacity
		}
		if cfg.Store != "" && !set["store"] {
			s.store = cfg.Store
		}
		if cfg.StorePath != "" && !set["store-path"] {
			s.storePath = cfg.StorePath
		}
		if cfg.Name != "" && !set["name"] {
			s.name = cfg.Name
		}
		if cfg.Context.GCR != 0 && !set["gcr"] {
			s.context.GCR = cfg.Context.GCR
		}
		if cfg.Context.MinIF != 0 && !set["minif"] {
			s.context.MinIF = cfg.Context.MinIF
		}
		if cfg.Context.MaxIF != 0 && !set["maxif"] {
			s.context.MaxIF = cfg.Context.MaxIF
		}
		if cfg.KNN && !set["knn"] {
			s.knn = true
		}
		if cfg.Degenerate != "" && !set["degenerate"] {
			degenerate = cfg.Degenerate
		}
	}

	policy, err := degeneratePolicyFromName(degenerate)
	if err != nil {
		return settings{}, err
	}
	s.degenerate = policy
	level, err := logLevelFromName(*f.logLevel)
	if err != nil {
		return settings{}, err
	}
	s.logLevel = level

	if s.neuronSize <= 0 {
		return settings{}, errors.New("neuron-size must be > 0")
	}
	if s.capacity < 0 {
		return settings{}, errors.New("capacity must be >= 0")
	}
	for name, v := range map[string]int{"gcr": s.context.GCR, "minif": s.context.MinIF, "maxif": s.context.MaxIF} {
		if v < 0 || v > 0xFFFF {
			return settings{}, fmt.Errorf("%s must be in [0, 65535]", name)
		}
	}
	if s.storePath == "" {
		switch s.store {
		case storage.KindDir:
			s.storePath = defaultDirStorePath
		case storage.KindSQLite:
			s.storePath = defaultSQLiteStorePath
		}
	}
	return s, nil
}

// chipContext merges the configured triple over the power-on defaults.
func (s settings) chipContext() *nm.Context {
	if s.context == (contextConfig{}) {
		return nil
	}
	ctx := nm.DefaultContext()
	if s.context.GCR != 0 {
		ctx.GCR = uint16(s.context.GCR)
	}
	if s.context.MinIF != 0 {
		ctx.MinIF = uint16(s.context.MinIF)
	}
	if s.context.MaxIF != 0 {
		ctx.MaxIF = uint16(s.context.MaxIF)
	}
	return &ctx
}

func (s settings) clientOptions(logger *logging.Logger) neuromem.Options {
	return neuromem.Options{
		Platform:         s.platform,
		NeuronSize:       s.neuronSize,
		SimCapacity:      s.capacity,
		DegeneratePolicy: s.degenerate,
		Context:          s.chipContext(),
		KNN:              s.knn,
		StoreKind:        s.store,
		StorePath:        s.storePath,
		Logger:           logger,
	}
}

func (s settings) logger(component string) (*logging.Logger, error) {
	if s.logDir != "" {
		return logging.NewFile(s.logDir, component, s.logLevel)
	}
	return logging.New(os.Stderr, component, s.logLevel), nil
}

func degeneratePolicyFromName(name string) (nm.DegeneratePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "keep":
		return nm.KeepDegenerateFlag, nil
	case "mask":
		return nm.MaskDegenerateFlag, nil
	default:
		return 0, fmt.Errorf("unsupported degenerate policy: %s", name)
	}
}

func logLevelFromName(name string) (logging.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return logging.LevelDebug, nil
	case "info":
		return logging.LevelInfo, nil
	case "", "warn", "warning":
		return logging.LevelWarn, nil
	case "error":
		return logging.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level: %s", name)
	}
}

func loadDataset(path string) ([]sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var samples []sample
	if err := yaml.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("dataset %s is empty", path)
	}
	for i, s := range samples {
		if _, err := s.bytes(); err != nil {
			return nil, fmt.Errorf("dataset %s sample %d: %w", path, i, err)
		}
	}
	return samples, nil
}

func (s sample) bytes() ([]byte, error) {
	if len(s.Vector) == 0 {
		return nil, errors.New("empty vector")
	}
	out := make([]byte, len(s.Vector))
	for i, v := range s.Vector {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("component %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// parseVector reads a comma separated list of 8-bit components.
func parseVector(raw string) ([]byte, error) {
	parts := strings.Split(raw, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parse vector component %q: %w", p, err)
		}
		values = append(values, v)
	}
	return sample{Vector: values}.bytes()
}
