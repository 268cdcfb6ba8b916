package credential

import (
	"context"
	"sync"

	"example.com/fitnessclient/internal/auth"
)

// MemoryStore keeps state in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	cred      *auth.Credential
	handshake *Handshake
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(_ context.Context, cred auth.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = &cred
	return nil
}

func (m *MemoryStore) Load(_ context.Context) (*auth.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cred == nil {
		return nil, nil
	}
	copied := *m.cred
	return &copied, nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = nil
	return nil
}

func (m *MemoryStore) SaveHandshake(_ context.Context, hs Handshake) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handshake = &hs
	return nil
}

func (m *MemoryStore) LoadHandshake(_ context.Context) (*Handshake, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.handshake == nil {
		return nil, nil
	}
	copied := *m.handshake
	return &copied, nil
}

func (m *MemoryStore) ClearHandshake(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handshake = nil
	return nil
}
