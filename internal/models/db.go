package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account in the database.
type User struct {
	ID             uuid.UUID `db:"id"`
	Username       string    `db:"username"`
	Email          string    `db:"email"` // Synthetic login email derived from the username
	HashedPassword string    `db:"hashed_password"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// ChatSession is one persisted conversation owned by a user.
// History is stored as a single document/JSONB column and overwritten on every turn.
type ChatSession struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	History   []Message `db:"history"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
