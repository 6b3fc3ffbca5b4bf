package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used by tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[Location][]byte

	// Hooks let tests inject failures per operation. A nil hook is a no-op.
	CopyHook   func(src, dst Location) error
	DeleteHook func(loc Location) error
	PutHook    func(loc Location) error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[Location][]byte)}
}

func (m *MemoryStore) Exists(ctx context.Context, loc Location) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[loc]
	return ok, nil
}

func (m *MemoryStore) Open(ctx context.Context, loc Location) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[loc]
	if !ok {
		return nil, fmt.Errorf("%s: %w", loc, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

func (m *MemoryStore) Put(ctx context.Context, loc Location, data []byte, contentType string) error {
	if m.PutHook != nil {
		if err := m.PutHook(loc); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[loc] = bytes.Clone(data)
	return nil
}

func (m *MemoryStore) Copy(ctx context.Context, src, dst Location) error {
	if m.CopyHook != nil {
		if err := m.CopyHook(src, dst); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[src]
	if !ok {
		return fmt.Errorf("copy %s: %w", src, ErrNotFound)
	}
	m.objects[dst] = bytes.Clone(data)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, loc Location) error {
	if m.DeleteHook != nil {
		if err := m.DeleteHook(loc); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, loc)
	return nil
}

// Get returns a copy of the stored bytes.
func (m *MemoryStore) Get(loc Location) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[loc]
	return bytes.Clone(data), ok
}

// Keys lists the keys present in bucket, sorted.
func (m *MemoryStore) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for loc := range m.objects {
		if loc.Bucket == bucket {
			keys = append(keys, loc.Key)
		}
	}
	sort.Strings(keys)
	return keys
}
