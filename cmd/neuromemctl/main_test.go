package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"neuromem/internal/knowledge"
	"neuromem/pkg/neuromem"
)

const dataset = `
- category: 1
  vector: [10, 10, 10, 10]
- category: 2
  vector: [200, 200, 200, 200]
- category: 3
  vector: [10, 200, 10, 200]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func chipArgs(storePath string, extra ...string) []string {
	args := []string{
		"--neuron-size", "8",
		"--capacity", "16",
		"--store", "dir",
		"--store-path", storePath,
	}
	return append(args, extra...)
}

func TestTrainClassifyDumpForget(t *testing.T) {
	workdir := t.TempDir()
	data := writeFile(t, workdir, "train.yaml", dataset)
	store := filepath.Join(workdir, "kn")

	out, err := captureStdout(func() error {
		return run(context.Background(), append([]string{"train"}, chipArgs(store, "--data", data)...))
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if !strings.Contains(out, "trained samples=3 committed=3") {
		t.Fatalf("unexpected train output: %s", out)
	}
	if !strings.Contains(out, "saved name=KN.DAT format=1704 neuron_size=8 neurons=3") {
		t.Fatalf("unexpected save output: %s", out)
	}
	if _, err := os.Stat(filepath.Join(store, knowledge.DefaultName)); err != nil {
		t.Fatalf("expected knowledge file: %v", err)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), append([]string{"classify"}, chipArgs(store, "--data", data, "--k", "2")...))
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !strings.Contains(out, "identified_correctly=3/3") {
		t.Fatalf("unexpected classify output: %s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), append([]string{"classify"}, chipArgs(store, "--vector", "200,200,200,200")...))
	})
	if err != nil {
		t.Fatalf("classify vector: %v", err)
	}
	if !strings.Contains(out, "status=identified") || !strings.Contains(out, "category=2 distance=0") {
		t.Fatalf("unexpected vector output: %s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), append([]string{"dump"}, chipArgs(store, "--width", "4")...))
	})
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if strings.Count(out, "neuron=") != 3 || !strings.Contains(out, "components=[200,200,200,200]") {
		t.Fatalf("unexpected dump output: %s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), append([]string{"info"}, chipArgs(store, "--load")...))
	})
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if !strings.Contains(out, "capacity=16 committed=3") {
		t.Fatalf("unexpected info output: %s", out)
	}

	if _, err := captureStdout(func() error {
		return run(context.Background(), append([]string{"forget"}, chipArgs(store)...))
	}); err != nil {
		t.Fatalf("forget: %v", err)
	}
	_, err = captureStdout(func() error {
		return run(context.Background(), append([]string{"dump"}, chipArgs(store)...))
	})
	if !errors.Is(err, knowledge.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after forget, got %v", err)
	}
}

func TestTrainAppendKeepsStoredKnowledge(t *testing.T) {
	workdir := t.TempDir()
	store := filepath.Join(workdir, "kn")
	first := writeFile(t, workdir, "a.yaml", "- category: 1\n  vector: [1, 2, 3]\n")
	second := writeFile(t, workdir, "b.yaml", "- category: 2\n  vector: [250, 250, 250]\n")

	if _, err := captureStdout(func() error {
		return run(context.Background(), append([]string{"train"}, chipArgs(store, "--data", first)...))
	}); err != nil {
		t.Fatalf("first train: %v", err)
	}
	out, err := captureStdout(func() error {
		return run(context.Background(), append([]string{"train"}, chipArgs(store, "--data", second, "--append")...))
	})
	if err != nil {
		t.Fatalf("append train: %v", err)
	}
	if !strings.Contains(out, "committed=2") {
		t.Fatalf("expected both neurons after append, got: %s", out)
	}
}

func TestConfigFileAppliesUnlessFlagSet(t *testing.T) {
	workdir := t.TempDir()
	cfgPath := writeFile(t, workdir, "neuromem.yaml", `
platform: sim
neuron_size: 8
capacity: 12
store: dir
store_path: `+filepath.Join(workdir, "kn")+`
context:
  gcr: 131
  maxif: 512
knn: true
`)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"info", "--config", cfgPath, "--capacity", "20"})
	})
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	for _, want := range []string{"capacity=20", "neuron_size=8", "context=3 norm=lsup", "maxif=512", "minif=2", "mode=knn"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output: %s", want, out)
		}
	}
}

func TestPlatformsListsProfiles(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"platforms"})
	})
	if err != nil {
		t.Fatalf("platforms: %v", err)
	}
	for _, want := range []string{"name=braincard", "name=neuroshield", "name=neurotile", "name=sim", "speed=4 MHz"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output: %s", want, out)
		}
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	workdir := t.TempDir()
	store := filepath.Join(workdir, "kn")
	bad := writeFile(t, workdir, "bad.yaml", "- category: 1\n  vector: [1, 300]\n")

	cases := [][]string{
		nil,
		{"bogus"},
		{"train"},
		append([]string{"train"}, chipArgs(store, "--data", bad)...),
		append([]string{"classify"}, chipArgs(store)...),
		append([]string{"classify"}, chipArgs(store, "--vector", "1,2", "--k", "0")...),
		append([]string{"info"}, chipArgs(store, "--degenerate", "fold")...),
		append([]string{"info"}, chipArgs(store, "--gcr", "70000")...),
	}
	for _, args := range cases {
		if _, err := captureStdout(func() error { return run(context.Background(), args) }); err == nil {
			t.Fatalf("expected error for args %v", args)
		}
	}
}

func TestHardwarePlatformNeedsBoard(t *testing.T) {
	_, err := captureStdout(func() error {
		return run(context.Background(), []string{"info", "--platform", "braincard", "--store", "memory"})
	})
	if !errors.Is(err, neuromem.ErrBoardMissing) {
		t.Fatalf("expected ErrBoardMissing, got %v", err)
	}
}

func TestParseVector(t *testing.T) {
	got, err := parseVector(" 1, 2 ,255,")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 255}) {
		t.Fatalf("unexpected vector: %v", got)
	}
	for _, raw := range []string{"", "1,x", "256", "-1"} {
		if _, err := parseVector(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func captureStdout(fn func() error) (string, error) {
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}

	os.Stdout = w
	runErr := fn()
	_ = w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		_ = r.Close()
		return "", err
	}
	_ = r.Close()
	return buf.String(), runErr
}
