package cache

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/onnwee/chat-guard/guard"
)

var _ guard.CacheStore = (*MemoryStore)(nil)

// MemoryStore is an in-process CacheStore. Its cached URL does not survive a
// restart.
type MemoryStore struct {
	mu      sync.Mutex
	url     string
	hasURL  bool
	temp    []byte
	hasTemp bool
	// SaveErr, when set, is returned by SaveTemp after the blob is stored,
	// mimicking a write that failed half way.
	SaveErr error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWithURL returns a store whose cached URL is already set.
func NewMemoryStoreWithURL(url string) *MemoryStore {
	return &MemoryStore{url: url, hasURL: true}
}

func (m *MemoryStore) GetCachedURL() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasURL {
		return "", guard.ErrCacheMiss
	}
	return m.url, nil
}

func (m *MemoryStore) SetCachedURL(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.url, m.hasURL = url, true
	return nil
}

func (m *MemoryStore) SaveTemp(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.temp, m.hasTemp = bytes.Clone(data), true
	if m.SaveErr != nil {
		return fmt.Errorf("%w: %w", guard.ErrIO, m.SaveErr)
	}
	return nil
}

func (m *MemoryStore) OpenTemp() (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasTemp {
		return nil, fmt.Errorf("%w: no temp blob", guard.ErrIO)
	}
	return io.NopCloser(bytes.NewReader(m.temp)), nil
}

func (m *MemoryStore) RemoveTemp() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.temp, m.hasTemp = nil, false
	return nil
}

// HasTemp reports whether a temp blob is currently stored.
func (m *MemoryStore) HasTemp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasTemp
}
