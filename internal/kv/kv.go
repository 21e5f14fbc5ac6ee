// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kv provides the key-value persistence port used for settings,
// the conversation index, and per-conversation message bodies.
//
// The application core only ever sees the Store interface, so tests run
// against the in-memory implementation and the production binary picks
// a file- or SQLite-backed one. There is no transactional guarantee
// across keys: callers must tolerate one key being written and another
// not (the conversation store recovers an index entry with a missing
// body to a greeting-only conversation).
package kv

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("key not found")

// ErrQuotaExceeded is returned by Set when the backend is out of space.
// Callers are expected to evict and retry once, then drop the write.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Store is the persistence port.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key string) (string, error)

	// Set writes the value for key.
	Set(key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error

	// Clear deletes every key.
	Clear() error

	// Keys returns all stored keys in unspecified order.
	Keys() ([]string, error)
}

// =============================================================================
// IN-MEMORY STORE
// =============================================================================

// MemoryStore is an in-memory Store used in tests and as a stand-in for
// browser-style session storage.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string

	// MaxKeys simulates a storage quota when > 0.
	MaxKeys int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MaxKeys > 0 {
		if _, exists := m.data[key]; !exists && len(m.data) >= m.MaxKeys {
			return ErrQuotaExceeded
		}
	}
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]string)
	return nil
}

func (m *MemoryStore) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
