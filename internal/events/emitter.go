// Package events carries persistence failures from background writes to whoever is
// listening (the websocket stream, the log).
package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// PermissionError describes a store write or read that the backend refused.
type PermissionError struct {
	UserID    uuid.UUID
	Path      string
	Operation string
	Err       error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s %s: %v", e.Operation, e.Path, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// Emitter is a small publish/subscribe point. Each instance is independent; the
// composition root creates one and hands it to producers and consumers.
type Emitter struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(*PermissionError)
}

func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[int]func(*PermissionError))}
}

// Subscribe registers fn and returns a function that removes it.
func (e *Emitter) Subscribe(fn func(*PermissionError)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

// Publish delivers pe to every subscriber synchronously.
func (e *Emitter) Publish(pe *PermissionError) {
	e.mu.RLock()
	fns := make([]func(*PermissionError), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		fn(pe)
	}
}
