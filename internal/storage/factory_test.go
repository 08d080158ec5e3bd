package storage

import (
	"path/filepath"
	"testing"
)

func TestNewMediumMemory(t *testing.T) {
	medium, err := NewMedium("memory", "")
	if err != nil {
		t.Fatalf("new memory medium: %v", err)
	}
	if _, ok := medium.(*MemoryMedium); !ok {
		t.Fatalf("expected memory medium, got %T", medium)
	}
}

func TestNewMediumDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "kn")
	medium, err := NewMedium("dir", root)
	if err != nil {
		t.Fatalf("new dir medium: %v", err)
	}
	dir, ok := medium.(*DirMedium)
	if !ok {
		t.Fatalf("expected dir medium, got %T", medium)
	}
	if dir.Root() != root {
		t.Fatalf("unexpected root: %s", dir.Root())
	}
	if _, err := NewMedium("dir", ""); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestNewMediumUnsupported(t *testing.T) {
	_, err := NewMedium("unknown", "")
	if err == nil {
		t.Fatal("expected unsupported medium error")
	}
}

func TestCloseIfSupportedMemory(t *testing.T) {
	if err := CloseIfSupported(NewMemoryMedium()); err != nil {
		t.Fatalf("close memory medium: %v", err)
	}
}
