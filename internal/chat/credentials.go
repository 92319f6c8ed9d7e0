package chat

import "sync"

// CredentialStore holds the session's API key. Implementations decide how long it lives.
type CredentialStore interface {
	Get() (string, bool)
	Set(key string)
	Clear()
}

// MemoryCredentials keeps the key in process memory only; it is gone when the process exits.
type MemoryCredentials struct {
	mu  sync.Mutex
	key string
}

func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{}
}

func (m *MemoryCredentials) Get() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key, m.key != ""
}

func (m *MemoryCredentials) Set(key string) {
	m.mu.Lock()
	m.key = key
	m.mu.Unlock()
}

func (m *MemoryCredentials) Clear() {
	m.mu.Lock()
	m.key = ""
	m.mu.Unlock()
}
