package testutil

import (
	"errors"
	"io"
	"sync"

	"fileshare/internal/fileshare"
	"fileshare/internal/store"
)

// ErrInjected is returned by FailingStore.
var ErrInjected = errors.New("injected store failure")

// NewTestStore creates an empty in-memory store.
func NewTestStore() *store.MemoryStore {
	return store.NewMemoryStore()
}

// FailingStore wraps a store and fails Put while FailPuts is set.
type FailingStore struct {
	fileshare.Store

	mu       sync.Mutex
	failPuts bool
}

// NewFailingStore wraps s.
func NewFailingStore(s fileshare.Store) *FailingStore {
	return &FailingStore{Store: s}
}

// FailPuts toggles Put failures.
func (f *FailingStore) FailPuts(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPuts = fail
}

func (f *FailingStore) Put(name string, r io.Reader, size int64) error {
	f.mu.Lock()
	fail := f.failPuts
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Store.Put(name, r, size)
}
