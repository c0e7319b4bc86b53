package credstore

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MemoryStore is an in-process Store used by tests and auth-disabled
// deployments. Same semantics as SQLiteStore, no persistence.
type MemoryStore struct {
	mu     sync.Mutex
	hashes map[string][]byte
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hashes: make(map[string][]byte)}
}

func (m *MemoryStore) Register(_ context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.hashes[username]; taken {
		return ErrExists
	}
	m.hashes[username] = hash
	return nil
}

func (m *MemoryStore) Verify(_ context.Context, username, password string) error {
	m.mu.Lock()
	hash, ok := m.hashes[username]
	m.mu.Unlock()

	if !ok {
		return ErrUnknownUser
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
