package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/store"
)

// These tests need a scratch database: TEST_DATABASE_URL=postgres://... go test ./internal/store/postgres
func newTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)
	s := NewPostgresStore(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return s
}

func newUser(t *testing.T, s *PostgresStore) *models.User {
	t.Helper()
	name := "u-" + uuid.NewString()[:8]
	u := &models.User{Username: name, Email: name + "@study-buddy.app", HashedPassword: "x"}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestUsersRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newUser(t, s)

	got, err := s.GetUserByUsername(ctx, u.Username)
	if err != nil || got.ID != u.ID {
		t.Fatalf("GetUserByUsername = %v, %v", got, err)
	}
	dup := &models.User{Username: u.Username, Email: u.Email, HashedPassword: "y"}
	if err := s.CreateUser(ctx, dup); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := s.GetUserByUsername(ctx, "missing-"+uuid.NewString()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChatSessionsOrderAndWatch(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	u := newUser(t, s)

	snapshots := make(chan []models.ChatSession, 8)
	go func() {
		_ = s.WatchChatSessions(ctx, u.ID, 10, func(l []models.ChatSession) { snapshots <- l })
	}()
	select {
	case <-snapshots:
	case <-time.After(5 * time.Second):
		t.Fatal("no initial snapshot")
	}

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		c := &models.ChatSession{UserID: u.ID}
		if err := s.CreateChatSession(context.Background(), c); err != nil {
			t.Fatalf("CreateChatSession: %v", err)
		}
		ids = append(ids, c.ID)
		time.Sleep(5 * time.Millisecond)
	}

	list, err := s.ListRecentChatSessions(context.Background(), u.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].ID != ids[2] || list[2].ID != ids[0] {
		t.Fatalf("unexpected order: %v", list)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case l := <-snapshots:
			if len(l) == 3 {
				return
			}
		case <-deadline:
			t.Fatal("watch never delivered all three sessions")
		}
	}
}
