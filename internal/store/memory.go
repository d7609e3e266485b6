// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

package store

import (
	"errors"
	"sync"
)

// MemoryStore implements Store with a plain map. It is the test double for
// BadgerStore and can be configured to fail, which is how storage-fault
// degradation paths are exercised.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailReads / FailWrites force every Get or Set/Remove/Clear to return
	// ErrInjected. Only tests set these.
	FailReads  bool
	FailWrites bool
}

// ErrInjected is returned by MemoryStore when a failure mode is enabled.
var ErrInjected = errors.New("store: injected failure")

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get returns the value for key, or (nil, nil) if the key is absent.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailReads {
		return nil, ErrInjected
	}
	value, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

// Set stores value under key.
func (s *MemoryStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return ErrInjected
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
	return nil
}

// Remove deletes key.
func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return ErrInjected
	}
	delete(s.data, key)
	return nil
}

// Clear removes all keys.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return ErrInjected
	}
	s.data = make(map[string][]byte)
	return nil
}

// Len returns the number of stored keys. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
