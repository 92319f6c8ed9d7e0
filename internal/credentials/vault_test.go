package credentials

import (
	"errors"
	"testing"
	"time"

	"studybuddy-backend/internal/crypto"
)

func newTestVault(t *testing.T, ttl time.Duration) *Vault {
	t.Helper()
	key, err := crypto.RandomKey()
	if err != nil {
		t.Fatal(err)
	}
	aead, err := crypto.NewAESGCM(key)
	if err != nil {
		t.Fatal(err)
	}
	return NewVault(aead, ttl)
}

func TestVaultSaveLookupDelete(t *testing.T) {
	v := newTestVault(t, time.Hour)
	id, err := v.Save("  my-key ")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := v.Lookup(id)
	if err != nil || got != "my-key" {
		t.Fatalf("Lookup = %q, %v", got, err)
	}

	v.Delete(id)
	if _, err := v.Lookup(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestVaultRejectsBadKeys(t *testing.T) {
	v := newTestVault(t, time.Hour)
	if _, err := v.Save(" "); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := v.Save("YOUR_API_KEY_HERE"); !errors.Is(err, ErrPlaceholder) {
		t.Errorf("expected ErrPlaceholder, got %v", err)
	}
	if _, err := v.Save("PASTE_YOUR_KEY_HERE"); !errors.Is(err, ErrPlaceholder) {
		t.Errorf("expected ErrPlaceholder, got %v", err)
	}
}

func TestVaultExpiry(t *testing.T) {
	v := newTestVault(t, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	a, _ := v.Save("a")
	now = now.Add(30 * time.Second)
	b, _ := v.Save("b")
	now = now.Add(45 * time.Second)

	if _, err := v.Lookup(a); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired entry to be gone, got %v", err)
	}
	if got, err := v.Lookup(b); err != nil || got != "b" {
		t.Fatalf("live entry lost: %q %v", got, err)
	}

	now = now.Add(time.Minute)
	if n := v.Purge(); n != 1 {
		t.Fatalf("Purge removed %d, want 1", n)
	}
	if v.Len() != 0 {
		t.Fatalf("Len = %d", v.Len())
	}
}

func TestVaultReplace(t *testing.T) {
	v := newTestVault(t, 0)
	old, _ := v.Save("first")
	id, err := v.Replace(old, "second")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Lookup(old); !errors.Is(err, ErrNotFound) {
		t.Fatal("old entry should be removed")
	}
	if got, _ := v.Lookup(id); got != "second" {
		t.Fatalf("got %q", got)
	}
}
