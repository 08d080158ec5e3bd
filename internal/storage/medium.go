package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrNotReady    = errors.New("storage medium not ready")
	ErrNotExist    = errors.New("resource does not exist")
	ErrInvalidName = errors.New("invalid resource name")
)

// Medium is the storage collaborator holding knowledge files by name. Writers
// returned by Create publish their content on Close.
type Medium interface {
	Init(ctx context.Context) error
	Ready(ctx context.Context) error
	Exists(ctx context.Context, name string) (bool, error)
	Remove(ctx context.Context, name string) error
	Create(ctx context.Context, name string) (io.WriteCloser, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Lister is implemented by media that can enumerate their resources.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

func validateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
