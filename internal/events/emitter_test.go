package events

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestEmitterDeliversToSubscribers(t *testing.T) {
	e := NewEmitter()
	var got []*PermissionError
	unsub := e.Subscribe(func(pe *PermissionError) { got = append(got, pe) })

	pe := &PermissionError{UserID: uuid.New(), Path: "users/u/chats/c", Operation: "update", Err: errors.New("denied")}
	e.Publish(pe)
	if len(got) != 1 || got[0] != pe {
		t.Fatalf("expected one delivery, got %v", got)
	}

	unsub()
	unsub()
	e.Publish(pe)
	if len(got) != 1 {
		t.Fatal("unsubscribed handler was called")
	}
}

func TestEmittersAreIndependent(t *testing.T) {
	a, b := NewEmitter(), NewEmitter()
	called := false
	b.Subscribe(func(*PermissionError) { called = true })
	a.Publish(&PermissionError{Err: errors.New("x")})
	if called {
		t.Fatal("publish leaked across emitters")
	}
}

func TestPermissionErrorUnwraps(t *testing.T) {
	base := errors.New("base")
	var err error = &PermissionError{Operation: "create", Path: "p", Err: base}
	if !errors.Is(err, base) {
		t.Fatal("expected Unwrap to expose the cause")
	}
}
