// Package credentials keeps per-session model API keys for the ephemeral session mode.
// Keys are sealed with AES-GCM while held and expire after a fixed lifetime.
package credentials

import (
	"context"
	"crypto/cipher"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studybuddy-backend/internal/crypto"
)

var (
	ErrNotFound    = errors.New("no credential for this session")
	ErrEmptyKey    = errors.New("API key must not be empty")
	ErrPlaceholder = errors.New("API key is a placeholder, not a real key")
	ErrSealFailure = errors.New("credential encryption failed")
	ErrOpenFailure = errors.New("credential decryption failed")
)

type entry struct {
	sealed    []byte
	expiresAt time.Time
}

// Vault maps opaque session ids to sealed API keys.
type Vault struct {
	aead cipher.AEAD
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// NewVault returns a vault sealing with aead. ttl <= 0 means entries never expire.
func NewVault(aead cipher.AEAD, ttl time.Duration) *Vault {
	return &Vault{
		aead:    aead,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// IsPlaceholderKey reports whether key is sample text rather than a real credential.
func IsPlaceholderKey(key string) bool {
	return key == "YOUR_API_KEY_HERE" || strings.Contains(key, "PASTE_YOUR")
}

// Save stores key under a new session id.
func (v *Vault) Save(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}
	if IsPlaceholderKey(key) {
		return "", ErrPlaceholder
	}

	id := uuid.NewString()
	sealed, err := crypto.Encrypt(v.aead, []byte(key), []byte(id))
	if err != nil {
		zap.S().Errorf("ERROR [Vault] Save: seal failed: %v", err)
		return "", ErrSealFailure
	}

	v.mu.Lock()
	v.entries[id] = entry{sealed: sealed, expiresAt: v.expiry()}
	v.mu.Unlock()
	return id, nil
}

// Replace stores key under an existing session id, or a new one when id is unknown.
func (v *Vault) Replace(id, key string) (string, error) {
	if id != "" {
		v.Delete(id)
	}
	return v.Save(key)
}

// Lookup returns the key for id. Expired entries are removed and reported as ErrNotFound.
func (v *Vault) Lookup(id string) (string, error) {
	v.mu.Lock()
	e, ok := v.entries[id]
	if ok && v.expired(e) {
		delete(v.entries, id)
		ok = false
	}
	v.mu.Unlock()
	if !ok {
		return "", ErrNotFound
	}

	plain, err := crypto.Decrypt(v.aead, e.sealed, []byte(id))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenFailure, err)
	}
	return string(plain), nil
}

// Delete forgets id. Unknown ids are ignored.
func (v *Vault) Delete(id string) {
	v.mu.Lock()
	delete(v.entries, id)
	v.mu.Unlock()
}

// Len reports the number of live entries.
func (v *Vault) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

// Purge drops expired entries and returns how many were removed.
func (v *Vault) Purge() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for id, e := range v.entries {
		if v.expired(e) {
			delete(v.entries, id)
			n++
		}
	}
	return n
}

// Run purges expired entries every interval until ctx is done.
func (v *Vault) Run(ctx context.Context, interval time.Duration) {
	if v.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := v.Purge(); n > 0 {
				zap.S().Infof("[Vault] Run: purged %d expired credentials", n)
			}
		}
	}
}

func (v *Vault) expiry() time.Time {
	if v.ttl <= 0 {
		return time.Time{}
	}
	return v.now().Add(v.ttl)
}

func (v *Vault) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !v.now().Before(e.expiresAt)
}
