package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"neuromem/internal/bus"
	"neuromem/internal/chipsim"
	"neuromem/internal/knowledge"
	"neuromem/internal/nm"
	"neuromem/internal/storage"
	"neuromem/pkg/neuromem"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if code := knowledge.Code(err); code != knowledge.CodeUnknown {
			os.Exit(100 + code)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "info":
		return runInfo(ctx, args[1:])
	case "platforms":
		return runPlatforms(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "classify":
		return runClassify(ctx, args[1:])
	case "dump":
		return runDump(ctx, args[1:])
	case "forget":
		return runForget(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInfo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	load := fs.Bool("load", false, "load the stored knowledge before reporting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := common.resolve()
	if err != nil {
		return err
	}

	client, closeFn, err := openClient(ctx, s)
	if err != nil {
		return err
	}
	defer closeFn()

	if *load {
		if _, err := client.LoadKnowledge(ctx, s.name); err != nil {
			return err
		}
	}
	info, err := client.Info(ctx)
	if err != nil {
		return err
	}

	mode := "rbf"
	if info.KNN {
		mode = "knn"
	}
	fmt.Printf("session=%s platform=%s revision=%#04x\n", info.SessionID, info.Platform, info.Revision)
	fmt.Printf("neuron_size=%d capacity=%s committed=%s\n",
		info.NeuronSize, humanize.Comma(int64(info.Capacity)), humanize.Comma(int64(info.Committed)))
	fmt.Printf("context=%d norm=%s minif=%d maxif=%d mode=%s\n",
		info.Context.ID(), info.Context.Norm(), info.Context.MinIF, info.Context.MaxIF, mode)
	return nil
}

func runPlatforms(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("platforms", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	for _, p := range append(bus.Platforms(), chipsim.Platform()) {
		speed := "-"
		if p.SpeedHz > 0 {
			speed = humanize.SI(float64(p.SpeedHz), "Hz")
		}
		revision := "none"
		if p.RevisionModule != 0 {
			revision = fmt.Sprintf("%#02x/%#02x", uint8(p.RevisionModule), p.RevisionRegister)
		}
		fmt.Printf("id=%d name=%s select_pin=%d speed=%s reset=%s revision=%s\n",
			p.ID, p.Name, p.SelectPin, speed, p.ResetPulse, revision)
	}
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	dataPath := fs.String("data", "", "YAML dataset of {category, vector} samples")
	appendMode := fs.Bool("append", false, "start from the stored knowledge instead of an empty array")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dataPath == "" {
		return errors.New("train requires --data")
	}
	s, err := common.resolve()
	if err != nil {
		return err
	}
	samples, err := loadDataset(*dataPath)
	if err != nil {
		return err
	}

	client, closeFn, err := openClient(ctx, s)
	if err != nil {
		return err
	}
	defer closeFn()

	if *appendMode {
		if _, err := client.LoadKnowledge(ctx, s.name); err != nil && !errors.Is(err, knowledge.ErrNotFound) {
			return err
		}
	}

	committed := 0
	for _, sm := range samples {
		vector, _ := sm.bytes()
		committed, err = client.Learn(ctx, vector, sm.Category)
		if err != nil {
			return err
		}
	}
	fmt.Printf("trained samples=%s committed=%s\n", humanize.Comma(int64(len(samples))), humanize.Comma(int64(committed)))

	summary, err := client.SaveKnowledge(ctx, s.name)
	if err != nil {
		return err
	}
	printSummary("saved", summary)
	return nil
}

func runClassify(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	dataPath := fs.String("data", "", "YAML dataset; categories are checked against the result")
	rawVector := fs.String("vector", "", "comma separated components, e.g. 12,40,255")
	k := fs.Int("k", 1, "number of firing neurons to report")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*dataPath == "") == (*rawVector == "") {
		return errors.New("classify requires exactly one of --data or --vector")
	}
	if *k <= 0 {
		return errors.New("k must be > 0")
	}
	s, err := common.resolve()
	if err != nil {
		return err
	}

	var samples []sample
	if *dataPath != "" {
		samples, err = loadDataset(*dataPath)
		if err != nil {
			return err
		}
	} else {
		vector, err := parseVector(*rawVector)
		if err != nil {
			return err
		}
		values := make([]int, len(vector))
		for i, v := range vector {
			values[i] = int(v)
		}
		samples = []sample{{Vector: values}}
	}

	client, closeFn, err := openClient(ctx, s)
	if err != nil {
		return err
	}
	defer closeFn()

	if _, err := client.LoadKnowledge(ctx, s.name); err != nil {
		return err
	}

	correct := 0
	for i, sm := range samples {
		vector, _ := sm.bytes()
		top, err := client.ClassifyK(ctx, vector, *k)
		if err != nil {
			return err
		}
		best, err := client.Classify(ctx, vector)
		if err != nil {
			return err
		}
		fmt.Printf("sample=%d status=%s firing=%d", i, best.Status, top.Firing)
		for j := 0; j < top.Firing; j++ {
			m := top.Matches[j]
			fmt.Printf(" [category=%d distance=%d nid=%d%s]", m.Category&nm.CategoryMask, m.Distance, m.NeuronID, degenerateMark(m))
		}
		fmt.Println()
		if *dataPath != "" && best.Status == nm.StatusIdentified && best.Match.Category&nm.CategoryMask == sm.Category {
			correct++
		}
	}
	if *dataPath != "" {
		fmt.Printf("identified_correctly=%d/%d (%s%%)\n", correct, len(samples),
			humanize.FtoaWithDigits(100*float64(correct)/float64(len(samples)), 1))
	}
	return nil
}

func degenerateMark(m nm.Match) string {
	if m.Degenerate {
		return " degenerate"
	}
	return ""
}

func runDump(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	width := fs.Int("width", 8, "components to print per neuron (0 prints all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *width < 0 {
		return errors.New("width must be >= 0")
	}
	s, err := common.resolve()
	if err != nil {
		return err
	}

	client, closeFn, err := openClient(ctx, s)
	if err != nil {
		return err
	}
	defer closeFn()

	summary, err := client.LoadKnowledge(ctx, s.name)
	if err != nil {
		return err
	}
	printSummary("loaded", summary)

	neurons, err := client.Neurons(ctx)
	if err != nil {
		return err
	}
	for i, n := range neurons {
		comps := n.Components
		if *width > 0 && len(comps) > *width {
			comps = comps[:*width]
		}
		fmt.Printf("neuron=%d context=%d category=%d aif=%d minif=%d degenerate=%t components=%s\n",
			i, n.Context(), n.Category&nm.CategoryMask, n.AIF, n.MinIF, n.Degenerate(), formatComponents(comps))
	}
	return nil
}

func runForget(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("forget", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := common.resolve()
	if err != nil {
		return err
	}

	medium, err := storage.NewMedium(s.store, s.storePath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(medium)
	}()
	if err := medium.Init(ctx); err != nil {
		return err
	}
	if err := medium.Remove(ctx, s.name); err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return fmt.Errorf("%w: %s", knowledge.ErrNotFound, s.name)
		}
		return err
	}
	fmt.Printf("removed name=%s store=%s\n", s.name, s.store)
	return nil
}

func openClient(ctx context.Context, s settings) (*neuromem.Client, func(), error) {
	logger, err := s.logger("neuromemctl")
	if err != nil {
		return nil, nil, err
	}
	client, err := neuromem.New(s.clientOptions(logger))
	if err != nil {
		_ = logger.Close()
		return nil, nil, err
	}
	if err := client.Open(ctx); err != nil {
		_ = client.Close()
		_ = logger.Close()
		return nil, nil, err
	}
	return client, func() {
		_ = client.Close()
		_ = logger.Close()
	}, nil
}

func printSummary(verb string, s knowledge.Summary) {
	fmt.Printf("%s name=%s format=%d neuron_size=%d neurons=%s blocks=%d size=%s\n",
		verb, s.Name, s.Format, s.NeuronSize, humanize.Comma(int64(s.Neurons)), s.Blocks, humanize.Bytes(uint64(s.Bytes)))
}

func formatComponents(comps []uint16) string {
	parts := make([]string, len(comps))
	for i, c := range comps {
		parts[i] = fmt.Sprint(c)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: neuromemctl <info|platforms|train|classify|dump|forget> [flags]", msg)
}
