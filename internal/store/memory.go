package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"fileshare/internal/fileshare"
)

// MemoryStore is an in-memory implementation of the Store interface,
// useful for testing. It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

// Put stores exactly size bytes read from r.
func (m *MemoryStore) Put(name string, r io.Reader, size int64) error {
	if err := fileshare.ValidateName(name); err != nil {
		return err
	}

	var buf bytes.Buffer
	written, err := io.CopyN(&buf, r, size)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d: %w", size, written, fileshare.ErrShortTransfer)
		}
		return fmt.Errorf("failed to read content: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = buf.Bytes()
	return nil
}

// Open returns a reader over the stored bytes.
func (m *MemoryStore) Open(name string) (io.ReadCloser, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[name]
	if !ok {
		return nil, 0, fmt.Errorf("%s: %w", name, fileshare.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// Stat returns the size of the named file.
func (m *MemoryStore) Stat(name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[name]
	if !ok {
		return 0, fmt.Errorf("%s: %w", name, fileshare.ErrNotFound)
	}
	return int64(len(data)), nil
}

// Delete removes the named file.
func (m *MemoryStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[name]; !ok {
		return fmt.Errorf("%s: %w", name, fileshare.ErrNotFound)
	}
	delete(m.files, name)
	return nil
}

// List returns every stored name, sorted.
func (m *MemoryStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup() error {
	return nil
}

var _ fileshare.Store = (*MemoryStore)(nil)
