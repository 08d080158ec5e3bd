package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

type MemoryMedium struct {
	mu          sync.RWMutex
	initialized bool
	files       map[string][]byte
}

func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{}
}

func (m *MemoryMedium) Init(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}
	m.initialized = true
	m.files = make(map[string][]byte)
	return nil
}

func (m *MemoryMedium) Ready(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return ErrNotReady
	}
	return nil
}

func (m *MemoryMedium) Exists(_ context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return false, ErrNotReady
	}
	_, ok := m.files[name]
	return ok, nil
}

func (m *MemoryMedium) Remove(_ context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotReady
	}
	if _, ok := m.files[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotExist, name)
	}
	delete(m.files, name)
	return nil
}

func (m *MemoryMedium) Create(_ context.Context, name string) (io.WriteCloser, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := m.Ready(context.Background()); err != nil {
		return nil, err
	}
	return &memoryWriter{medium: m, name: name}, nil
}

func (m *MemoryMedium) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return nil, ErrNotReady
	}
	data, ok := m.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
	}
	copied := append([]byte(nil), data...)
	return io.NopCloser(bytes.NewReader(copied)), nil
}

func (m *MemoryMedium) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return nil, ErrNotReady
	}
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

type memoryWriter struct {
	medium *MemoryMedium
	name   string
	buf    bytes.Buffer
	closed bool
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write %s: closed", w.name)
	}
	return w.buf.Write(p)
}

func (w *memoryWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	w.medium.mu.Lock()
	defer w.medium.mu.Unlock()

	w.medium.files[w.name] = append([]byte(nil), w.buf.Bytes()...)
	return nil
}
