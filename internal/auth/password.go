package auth

import (
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// LoginDomain is the domain of the synthetic login email every username maps to.
const LoginDomain = "study-buddy.app"

// HashPassword generates a bcrypt hash for the given password.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		zap.S().Errorf("ERROR [Auth] HashPassword: %v", err)
		return "", err
	}
	return string(b), nil
}

// CheckPasswordHash compares a plaintext password with a stored bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			zap.S().Warnf("[Auth] CheckPasswordHash: unexpected error: %v", err)
		}
		return false
	}
	return true
}

// NormalizeUsername trims and lower-cases a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// LoginEmail maps a username to its synthetic login email.
func LoginEmail(username string) string {
	return NormalizeUsername(username) + "@" + LoginDomain
}
