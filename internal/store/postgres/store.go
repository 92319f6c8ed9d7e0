package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/store"
)

// Compile-time check to ensure PostgresStore implements store.Store
var _ store.Store = (*PostgresStore)(nil)

// notifyChannel carries the user id of every account whose chat list changed.
const notifyChannel = "chat_sessions_changed"

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL,
    hashed_password TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chat_sessions (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    history JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS chat_sessions_user_updated_idx ON chat_sessions (user_id, updated_at DESC);`

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying postgres schema: %w", err)
	}
	return nil
}

// mapError turns driver errors into store sentinels.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42501": // insufficient_privilege
			return fmt.Errorf("%w: %s", store.ErrPermissionDenied, pgErr.Message)
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.Detail)
		}
	}
	return err
}

// --- Users ---

const getUserByUsername = `
SELECT id, username, email, hashed_password, created_at, updated_at
FROM users
WHERE username = $1`

// GetUserByUsername returns store.ErrNotFound if the user does not exist.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRow(ctx, getUserByUsername, username).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.HashedPassword,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		zap.S().Errorf("ERROR [PostgresStore] GetUserByUsername: query failed for %s: %v", username, err)
		return nil, fmt.Errorf("database error fetching user: %w", mapError(err))
	}
	return user, nil
}

const createUser = `
INSERT INTO users (id, username, email, hashed_password)
VALUES ($1, $2, $3, $4)
RETURNING created_at, updated_at`

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	err := s.db.QueryRow(ctx, createUser, user.ID, user.Username, user.Email, user.HashedPassword).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			zap.S().Errorf("ERROR [PostgresStore] CreateUser: insert failed for %s: Code=%s, Message=%s", user.Username, pgErr.Code, pgErr.Message)
		}
		return fmt.Errorf("database error creating user: %w", mapError(err))
	}
	zap.S().Infof("[PostgresStore] CreateUser: inserted user ID %s", user.ID)
	return nil
}

// --- Chat sessions ---

const createChatSession = `
WITH ins AS (
    INSERT INTO chat_sessions (id, user_id, history)
    VALUES ($1, $2, $3)
    RETURNING user_id, created_at, updated_at
)
SELECT created_at, updated_at, pg_notify('` + notifyChannel + `', user_id::text) FROM ins`

func (s *PostgresStore) CreateChatSession(ctx context.Context, chat *models.ChatSession) error {
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	chat.History = store.StripPayloads(chat.History)
	raw, err := json.Marshal(chat.History)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	err = s.db.QueryRow(ctx, createChatSession, chat.ID, chat.UserID, raw).
		Scan(&chat.CreatedAt, &chat.UpdatedAt, nil)
	if err != nil {
		zap.S().Errorf("ERROR [PostgresStore] CreateChatSession: insert failed for UserID %s: %v", chat.UserID, err)
		return fmt.Errorf("database error creating chat: %w", mapError(err))
	}
	return nil
}

const getChatSession = `
SELECT id, user_id, history, created_at, updated_at
FROM chat_sessions
WHERE id = $1 AND user_id = $2`

func (s *PostgresStore) GetChatSession(ctx context.Context, userID, chatID uuid.UUID) (*models.ChatSession, error) {
	chat, err := scanChat(s.db.QueryRow(ctx, getChatSession, chatID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning chat: %w", mapError(err))
	}
	return chat, nil
}

const updateChatHistory = `
WITH upd AS (
    UPDATE chat_sessions
    SET history = $1, updated_at = NOW()
    WHERE id = $2 AND user_id = $3
    RETURNING user_id
)
SELECT pg_notify('` + notifyChannel + `', user_id::text) FROM upd`

func (s *PostgresStore) UpdateChatHistory(ctx context.Context, userID, chatID uuid.UUID, history []models.Message) error {
	raw, err := json.Marshal(store.StripPayloads(history))
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	err = s.db.QueryRow(ctx, updateChatHistory, raw, chatID, userID).Scan(nil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		zap.S().Errorf("ERROR [PostgresStore] UpdateChatHistory: update failed for ChatID %s: %v", chatID, err)
		return fmt.Errorf("failed to update chat history: %w", mapError(err))
	}
	return nil
}

const listRecentChatSessions = `
SELECT id, user_id, history, created_at, updated_at
FROM chat_sessions
WHERE user_id = $1
ORDER BY updated_at DESC
LIMIT $2`

func (s *PostgresStore) ListRecentChatSessions(ctx context.Context, userID uuid.UUID, limit int) ([]models.ChatSession, error) {
	rows, err := s.db.Query(ctx, listRecentChatSessions, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying chats: %w", mapError(err))
	}
	defer rows.Close()

	chats := []models.ChatSession{}
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning chat row: %w", err)
		}
		chats = append(chats, *chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat rows: %w", mapError(err))
	}
	return chats, nil
}

// WatchChatSessions holds one pooled connection in LISTEN mode for the lifetime of ctx.
func (s *PostgresStore) WatchChatSessions(ctx context.Context, userID uuid.UUID, limit int, fn func([]models.ChatSession)) error {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", notifyChannel, mapError(err))
	}
	defer func() {
		// ctx is done by now; the connection goes back to the pool and must stop listening
		if _, err := conn.Exec(context.Background(), "UNLISTEN "+notifyChannel); err != nil {
			zap.S().Warnf("[PostgresStore] WatchChatSessions: unlisten failed: %v", err)
		}
	}()

	list, err := s.ListRecentChatSessions(ctx, userID, limit)
	if err != nil {
		return err
	}
	fn(list)

	want := userID.String()
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("waiting for notification: %w", err)
		}
		if n.Payload != want {
			continue
		}
		list, err := s.ListRecentChatSessions(ctx, userID, limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fn(list)
	}
}

func scanChat(row pgx.Row) (*models.ChatSession, error) {
	var (
		chat models.ChatSession
		raw  []byte
	)
	if err := row.Scan(&chat.ID, &chat.UserID, &raw, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &chat.History); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	if chat.History == nil {
		chat.History = []models.Message{}
	}
	return &chat, nil
}
