// Package kvstore provides the durable key-value stores that back the
// upload ledger. The contract is deliberately small so the same ledger
// logic can run against in-memory, file-backed, or remote stores.
package kvstore

import "sync"

// KV is the minimal key-value contract the upload ledger persists through.
// Implementations must report a missing key as ok == false rather than an
// error.
type KV interface {
	// Get returns the value stored under key. ok is false when the key
	// has never been set.
	Get(key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
}

// MemStore is an in-memory KV implementation. It satisfies the ledger
// contract for tests and single-run usage but does not survive a process
// restart; use FileStore when resumability across runs is needed.
type MemStore struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		items: make(map[string]string),
	}
}

// Get returns the value stored under key.
func (s *MemStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.items[key]
	return value, ok, nil
}

// Set stores value under key.
func (s *MemStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = value
	return nil
}

// Compile-time interface check.
var _ KV = (*MemStore)(nil)
