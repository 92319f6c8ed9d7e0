// Package firestore stores accounts and chat sessions in Cloud Firestore:
// users/{uid} for accounts and users/{uid}/chats/{chatId} for sessions.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store for projectID.
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// --- Helpers ---

func (s *Store) usersCol() *firestore.CollectionRef {
	return s.client.Collection("users")
}

func (s *Store) chatsCol(userID uuid.UUID) *firestore.CollectionRef {
	return s.usersCol().Doc(userID.String()).Collection("chats")
}

func (s *Store) recentQuery(userID uuid.UUID, limit int) firestore.Query {
	q := s.chatsCol(userID).OrderBy("updatedAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}

// mapError turns gRPC status codes into store sentinels.
func mapError(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return store.ErrNotFound
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %v", store.ErrPermissionDenied, err)
	case codes.AlreadyExists:
		return store.ErrDuplicate
	}
	return err
}

// --- Firestore types ---

type userDoc struct {
	Username       string    `firestore:"username"`
	Email          string    `firestore:"email"`
	HashedPassword string    `firestore:"hashedPassword"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

type chatDoc struct {
	UserID    string           `firestore:"userId"`
	History   []models.Message `firestore:"history"`
	CreatedAt time.Time        `firestore:"createdAt,serverTimestamp"`
	UpdatedAt time.Time        `firestore:"updatedAt,serverTimestamp"`
}

func toChatSession(snap *firestore.DocumentSnapshot) (*models.ChatSession, error) {
	var doc chatDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode chatDoc: %w", err)
	}
	id, err := uuid.Parse(snap.Ref.ID)
	if err != nil {
		return nil, fmt.Errorf("chat document id %q: %w", snap.Ref.ID, err)
	}
	userID, _ := uuid.Parse(doc.UserID)
	history := doc.History
	if history == nil {
		history = []models.Message{}
	}
	return &models.ChatSession{
		ID:        id,
		UserID:    userID,
		History:   history,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

// --- UserStore ---

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	iter := s.usersCol().Where("username", "==", username).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err != nil {
		if errors.Is(err, iterator.Done) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("firestore GetUserByUsername: %w", mapError(err))
	}
	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode userDoc: %w", err)
	}
	id, err := uuid.Parse(snap.Ref.ID)
	if err != nil {
		return nil, fmt.Errorf("user document id %q: %w", snap.Ref.ID, err)
	}
	return &models.User{
		ID:             id,
		Username:       doc.Username,
		Email:          doc.Email,
		HashedPassword: doc.HashedPassword,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}, nil
}

// CreateUser checks username uniqueness with a query; Firestore has no unique indexes.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if _, err := s.GetUserByUsername(ctx, user.Username); err == nil {
		return store.ErrDuplicate
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	_, err := s.usersCol().Doc(user.ID.String()).Create(ctx, userDoc{
		Username:       user.Username,
		Email:          user.Email,
		HashedPassword: user.HashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return fmt.Errorf("firestore CreateUser: %w", mapError(err))
	}
	return nil
}

// --- ChatStore ---

func (s *Store) CreateChatSession(ctx context.Context, chat *models.ChatSession) error {
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	chat.History = store.StripPayloads(chat.History)

	ref := s.chatsCol(chat.UserID).Doc(chat.ID.String())
	if _, err := ref.Create(ctx, chatDoc{UserID: chat.UserID.String(), History: chat.History}); err != nil {
		zap.S().Errorf("ERROR [FirestoreStore] CreateChatSession: %s: %v", ref.Path, err)
		return fmt.Errorf("firestore CreateChatSession: %w", mapError(err))
	}
	// read back the server timestamps
	snap, err := ref.Get(ctx)
	if err != nil {
		return fmt.Errorf("firestore CreateChatSession read-back: %w", mapError(err))
	}
	created, err := toChatSession(snap)
	if err != nil {
		return err
	}
	chat.CreatedAt, chat.UpdatedAt = created.CreatedAt, created.UpdatedAt
	return nil
}

func (s *Store) GetChatSession(ctx context.Context, userID, chatID uuid.UUID) (*models.ChatSession, error) {
	snap, err := s.chatsCol(userID).Doc(chatID.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("firestore GetChatSession: %w", mapError(err))
	}
	return toChatSession(snap)
}

func (s *Store) UpdateChatHistory(ctx context.Context, userID, chatID uuid.UUID, history []models.Message) error {
	ref := s.chatsCol(userID).Doc(chatID.String())
	_, err := ref.Update(ctx, []firestore.Update{
		{Path: "history", Value: store.StripPayloads(history)},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if err != nil {
		zap.S().Errorf("ERROR [FirestoreStore] UpdateChatHistory: %s: %v", ref.Path, err)
		return fmt.Errorf("firestore UpdateChatHistory: %w", mapError(err))
	}
	return nil
}

func (s *Store) ListRecentChatSessions(ctx context.Context, userID uuid.UUID, limit int) ([]models.ChatSession, error) {
	iter := s.recentQuery(userID, limit).Documents(ctx)
	defer iter.Stop()

	out := []models.ChatSession{}
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore ListRecentChatSessions: %w", mapError(err))
		}
		chat, err := toChatSession(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *chat)
	}
	return out, nil
}

// WatchChatSessions follows the recent-sessions query with a snapshot listener.
func (s *Store) WatchChatSessions(ctx context.Context, userID uuid.UUID, limit int, fn func([]models.ChatSession)) error {
	it := s.recentQuery(userID, limit).Snapshots(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled || errors.Is(err, iterator.Done) {
				return nil
			}
			return fmt.Errorf("firestore WatchChatSessions: %w", mapError(err))
		}
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return fmt.Errorf("firestore WatchChatSessions read: %w", mapError(err))
		}
		list := make([]models.ChatSession, 0, len(docs))
		for _, d := range docs {
			chat, err := toChatSession(d)
			if err != nil {
				zap.S().Warnf("[FirestoreStore] WatchChatSessions: skipping %s: %v", d.Ref.Path, err)
				continue
			}
			list = append(list, *chat)
		}
		fn(list)
	}
}
