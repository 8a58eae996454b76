package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ruteri/device-share-storage/interfaces"
)

// ErrStorageDisabled is returned by a disabled in-memory store, the way a
// browser rejects localStorage access when the user turned storage off.
var ErrStorageDisabled = errors.New("storage is disabled")

// MemoryKeyValueStore is an in-process primary host store with an optional
// byte quota over keys and values.
type MemoryKeyValueStore struct {
	mu       sync.RWMutex
	items    map[string]string
	used     int64
	quota    int64
	disabled bool
}

var _ interfaces.KeyValueStore = (*MemoryKeyValueStore)(nil)

// NewMemoryKeyValueStore creates a store; quota <= 0 means unlimited.
func NewMemoryKeyValueStore(quota int64) *MemoryKeyValueStore {
	return &MemoryKeyValueStore{
		items: make(map[string]string),
		quota: quota,
	}
}

// SetDisabled turns every operation into ErrStorageDisabled.
func (s *MemoryKeyValueStore) SetDisabled(disabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = disabled
}

func (s *MemoryKeyValueStore) SetItem(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return ErrStorageDisabled
	}

	used := s.used + int64(len(key)+len(value))
	if old, ok := s.items[key]; ok {
		used -= int64(len(key) + len(old))
	}
	if s.quota > 0 && used > s.quota {
		return fmt.Errorf("%w: setting %d bytes", interfaces.ErrQuotaExceeded, len(key)+len(value))
	}

	s.items[key] = value
	s.used = used
	return nil
}

func (s *MemoryKeyValueStore) GetItem(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disabled {
		return "", false, ErrStorageDisabled
	}
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *MemoryKeyValueStore) RemoveItem(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return ErrStorageDisabled
	}
	if old, ok := s.items[key]; ok {
		s.used -= int64(len(key) + len(old))
		delete(s.items, key)
	}
	return nil
}

func (s *MemoryKeyValueStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disabled {
		return 0, ErrStorageDisabled
	}
	return len(s.items), nil
}
