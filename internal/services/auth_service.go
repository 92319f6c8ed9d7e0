package services

import (
	"context"
	"errors"
	"fmt"
	"unicode"

	"studybuddy-backend/internal/auth"
	"studybuddy-backend/internal/config"
	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/store"
)

// Custom errors for auth service
var (
	ErrUserAlreadyExists  = errors.New("username is already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrHashingPassword    = errors.New("failed to hash password")
	ErrCreatingToken      = errors.New("failed to create access token")
	ErrValidation         = errors.New("input validation failed")
)

const (
	minPasswordLength = 6
	maxUsernameLength = 32
)

type AuthService struct {
	store store.UserStore
	cfg   *config.Config
}

func NewAuthService(s store.UserStore, cfg *config.Config) *AuthService {
	return &AuthService{
		store: s,
		cfg:   cfg,
	}
}

func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username cannot be empty", ErrValidation)
	}
	if len(username) > maxUsernameLength {
		return fmt.Errorf("%w: username must be at most %d characters", ErrValidation, maxUsernameLength)
	}
	for _, r := range username {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.') {
			return fmt.Errorf("%w: username may only contain letters, digits, '.', '-' and '_'", ErrValidation)
		}
	}
	return nil
}

// Signup creates an account. The username doubles as the login identity; its synthetic
// email is kept on the record.
func (s *AuthService) Signup(ctx context.Context, username, password string) (*models.User, error) {
	username = auth.NormalizeUsername(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}

	_, err := s.store.GetUserByUsername(ctx, username)
	if err == nil {
		return nil, ErrUserAlreadyExists
	}
	if !errors.Is(err, store.ErrNotFound) {
		logger().Errorf("ERROR [AuthService] Signup: checking user existence for %s: %v", username, err)
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, ErrHashingPassword
	}

	user := &models.User{
		Username:       username,
		Email:          auth.LoginEmail(username),
		HashedPassword: hashedPassword,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		logger().Errorf("ERROR [AuthService] Signup: creating user %s: %v", username, err)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger().Infof("[AuthService] Signup: created user %s (ID: %s)", username, user.ID)
	return user, nil
}

// Login verifies the password and returns an access token and the user.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	username = auth.NormalizeUsername(username)
	if username == "" || password == "" {
		return "", nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		logger().Errorf("ERROR [AuthService] Login: retrieving user %s: %v", username, err)
		return "", nil, fmt.Errorf("failed to retrieve user: %w", err)
	}

	if !auth.CheckPasswordHash(password, user.HashedPassword) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := auth.NewAccessToken(user.ID, user.Username, s.cfg.JWTSecret, s.cfg.TokenExpiration)
	if err != nil {
		return "", nil, ErrCreatingToken
	}

	logger().Infof("[AuthService] Login: user %s (ID: %s) logged in", username, user.ID)
	return token, user, nil
}
