package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// DirMedium keeps each resource as a file in one directory.
type DirMedium struct {
	root string
}

func NewDirMedium(root string) *DirMedium {
	return &DirMedium{root: root}
}

func (d *DirMedium) Root() string {
	return d.root
}

func (d *DirMedium) Init(_ context.Context) error {
	if d.root == "" {
		return errors.New("directory path is required")
	}
	return os.MkdirAll(d.root, 0o750)
}

func (d *DirMedium) Ready(_ context.Context) error {
	if d.root == "" {
		return ErrNotReady
	}
	info, err := os.Stat(d.root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrNotReady, d.root)
	}
	return nil
}

func (d *DirMedium) Exists(_ context.Context, name string) (bool, error) {
	path, err := d.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (d *DirMedium) Remove(_ context.Context, name string) error {
	path, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return err
	}
	return nil
}

func (d *DirMedium) Create(_ context.Context, name string) (io.WriteCloser, error) {
	path, err := d.path(name)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
}

func (d *DirMedium) Open(_ context.Context, name string) (io.ReadCloser, error) {
	path, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return nil, err
	}
	return f, nil
}

func (d *DirMedium) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *DirMedium) path(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	return filepath.Join(d.root, name), nil
}
