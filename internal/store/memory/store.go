// Package memory is an in-process implementation of the store interfaces, used for
// development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/store"
)

var (
	_ store.Store             = (*Store)(nil)
	_ store.LocalHistoryStore = (*Store)(nil)
)

type Store struct {
	mu       sync.RWMutex
	users    map[string]models.User // by normalized username
	chats    map[uuid.UUID]models.ChatSession
	locals   map[string][]models.Message
	watchers map[uuid.UUID]map[chan struct{}]struct{}
	last     time.Time
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]models.User),
		chats:    make(map[uuid.UUID]models.ChatSession),
		locals:   make(map[string][]models.Message),
		watchers: make(map[uuid.UUID]map[chan struct{}]struct{}),
		now:      time.Now,
	}
}

// tick returns a timestamp strictly after the previous one so update order is total.
func (s *Store) tick() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[strings.ToLower(username)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(user.Username)
	if _, exists := s.users[key]; exists {
		return store.ErrDuplicate
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := s.tick()
	user.CreatedAt, user.UpdatedAt = now, now
	s.users[key] = *user
	return nil
}

func (s *Store) CreateChatSession(ctx context.Context, chat *models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	if _, exists := s.chats[chat.ID]; exists {
		return store.ErrDuplicate
	}
	now := s.tick()
	chat.CreatedAt, chat.UpdatedAt = now, now
	chat.History = store.StripPayloads(chat.History)
	s.chats[chat.ID] = cloneChat(*chat)
	s.notifyLocked(chat.UserID)
	return nil
}

func (s *Store) GetChatSession(ctx context.Context, userID, chatID uuid.UUID) (*models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[chatID]
	if !ok || c.UserID != userID {
		return nil, store.ErrNotFound
	}
	c = cloneChat(c)
	return &c, nil
}

func (s *Store) UpdateChatHistory(ctx context.Context, userID, chatID uuid.UUID, history []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok || c.UserID != userID {
		return store.ErrNotFound
	}
	c.History = store.StripPayloads(history)
	c.UpdatedAt = s.tick()
	s.chats[chatID] = c
	s.notifyLocked(userID)
	return nil
}

func (s *Store) ListRecentChatSessions(ctx context.Context, userID uuid.UUID, limit int) ([]models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentLocked(userID, limit), nil
}

func (s *Store) recentLocked(userID uuid.UUID, limit int) []models.ChatSession {
	out := []models.ChatSession{}
	for _, c := range s.chats {
		if c.UserID == userID {
			out = append(out, cloneChat(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) WatchChatSessions(ctx context.Context, userID uuid.UUID, limit int, fn func([]models.ChatSession)) error {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	if s.watchers[userID] == nil {
		s.watchers[userID] = make(map[chan struct{}]struct{})
	}
	s.watchers[userID][ch] = struct{}{}
	initial := s.recentLocked(userID, limit)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.watchers[userID], ch)
		if len(s.watchers[userID]) == 0 {
			delete(s.watchers, userID)
		}
		s.mu.Unlock()
	}()

	fn(initial)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			s.mu.RLock()
			list := s.recentLocked(userID, limit)
			s.mu.RUnlock()
			fn(list)
		}
	}
}

// notifyLocked wakes every watcher of userID. A watcher that has not consumed the
// previous wake-up already has one pending, which is enough.
func (s *Store) notifyLocked(userID uuid.UUID) {
	for ch := range s.watchers[userID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) LoadHistory(ctx context.Context, name string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.locals[localKey(name)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return models.CloneMessages(h), nil
}

func (s *Store) SaveHistory(ctx context.Context, name string, history []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locals[localKey(name)] = store.StripPayloads(history)
	return nil
}

func (s *Store) DeleteHistory(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locals, localKey(name))
	return nil
}

func localKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func cloneChat(c models.ChatSession) models.ChatSession {
	c.History = models.CloneMessages(c.History)
	return c
}
