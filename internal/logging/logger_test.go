package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestLoggerFormatting(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "bus", LevelDebug)

	logger.Infof("connected platform=%s", "sim")

	line := buf.String()
	for _, want := range []string{"[bus]", "[INFO]", "connected platform=sim", SessionID()[:8]} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %q", want, line)
		}
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "nm", LevelWarn)

	logger.Debugf("debug")
	logger.Infof("info")
	logger.Warnf("warn")
	logger.Errorf("error")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "[WARN]") || !strings.Contains(lines[1], "[ERROR]") {
		t.Fatalf("unexpected lines: %q", lines)
	}
}

func TestLoggerWithSharesSink(t *testing.T) {
	var buf bytes.Buffer
	root := New(&buf, "client", LevelDebug)
	child := root.With("knowledge")

	root.Infof("a")
	child.Infof("b")

	out := buf.String()
	if !strings.Contains(out, "[client]") || !strings.Contains(out, "[knowledge]") {
		t.Fatalf("expected both components in %q", out)
	}
	if child.Component() != "knowledge" {
		t.Fatalf("unexpected component: %s", child.Component())
	}
}

func TestLoggerConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "test", LevelDebug)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				logger.With("worker").Debugf("n=%d j=%d", n, j)
			}
		}(i)
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "\n"); got != 80 {
		t.Fatalf("expected 80 lines, got %d", got)
	}
}

func TestNewFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := NewFile(dir, "cli", LevelInfo)
	if err != nil {
		t.Fatalf("new file logger: %v", err)
	}
	logger.Infof("hello")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if filepath.Base(logger.Path()) != SessionID()+"-neuromem.log" {
		t.Fatalf("unexpected log path: %s", logger.Path())
	}
	data, err := os.ReadFile(logger.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Fatalf("expected entry in log file, got %q", data)
	}
}

func TestDiscardAndNil(t *testing.T) {
	Discard().Errorf("dropped")
	var logger *Logger
	logger.Infof("nil logger is a no-op")
}
