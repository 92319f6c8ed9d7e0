package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"studybuddy-backend/internal/credentials"
	"studybuddy-backend/internal/crypto"
)

// ErrConfiguration marks a deployment problem an end user cannot fix.
var ErrConfiguration = errors.New("configuration error")

// SessionMode selects how a conversation is bound to its credential and storage.
type SessionMode string

const (
	// ModeEphemeral: the user supplies their own API key, held per browser session; nothing is persisted.
	ModeEphemeral SessionMode = "ephemeral"
	// ModeLocal: the server key is used and history is persisted under a display name.
	ModeLocal SessionMode = "local"
	// ModeAccount: users sign up, the server key is used and chats are stored per account.
	ModeAccount SessionMode = "account"
)

type StoreBackend string

const (
	StoreMemory    StoreBackend = "memory"
	StorePostgres  StoreBackend = "postgres"
	StoreFirestore StoreBackend = "firestore"
)

type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
	ProviderMock   LLMProvider = "mock"
)

// Config holds application configuration values loaded from environment variables.
type Config struct {
	HTTPPort string
	Env      string

	Mode             SessionMode
	StoreBackend     StoreBackend
	DatabaseURL      string
	FirestoreProject string
	LocalDBPath      string

	LLMProvider LLMProvider
	LLMModel    string
	LLMBaseURL  string
	LLMAPIKey   string // server credential; empty in ephemeral mode unless configured

	JWTSecret       string
	TokenExpiration time.Duration

	EncryptionKey          []byte
	EncryptionKeyGenerated bool // ENCRYPTION_KEY was not set; the key lives only as long as the process
	CredentialTTL          time.Duration

	RecentChatsLimit   int
	CORSAllowedOrigins []string
	Greeting           string
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// NeedsServerKey reports whether model calls run on the server credential.
func (c *Config) NeedsServerKey() bool {
	return c.Mode != ModeEphemeral && c.LLMProvider != ProviderMock
}

// LoadDotEnv loads a .env file from the working directory when there is one.
// Variables already in the environment win.
func LoadDotEnv() error {
	return godotenv.Load()
}

// LoadConfig reads the configuration from the environment. Every returned error wraps
// ErrConfiguration.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		Env:              getEnv("APP_ENV", "development"),
		Mode:             SessionMode(strings.ToLower(getEnv("SESSION_MODE", string(ModeEphemeral)))),
		StoreBackend:     StoreBackend(strings.ToLower(getEnv("STORE_BACKEND", string(StoreMemory)))),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		FirestoreProject: getEnv("FIRESTORE_PROJECT", ""),
		LocalDBPath:      getEnv("LOCAL_DB_PATH", "studybuddy.db"),
		LLMProvider:      LLMProvider(strings.ToLower(getEnv("LLM_PROVIDER", string(ProviderGemini)))),
		LLMBaseURL:       getEnv("LLM_BASE_URL", ""),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		Greeting:         getEnv("GREETING", "What do you want to learn?"),
	}

	switch cfg.Mode {
	case ModeEphemeral, ModeLocal, ModeAccount:
	default:
		return nil, fmt.Errorf("%w: unknown SESSION_MODE %q", ErrConfiguration, cfg.Mode)
	}
	switch cfg.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if cfg.Mode == ModeAccount && cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("%w: DATABASE_URL is required for the postgres store", ErrConfiguration)
		}
	case StoreFirestore:
		if cfg.Mode == ModeAccount && cfg.FirestoreProject == "" {
			return nil, fmt.Errorf("%w: FIRESTORE_PROJECT is required for the firestore store", ErrConfiguration)
		}
	default:
		return nil, fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrConfiguration, cfg.StoreBackend)
	}

	switch cfg.LLMProvider {
	case ProviderGemini:
		cfg.LLMModel = getEnv("LLM_MODEL", "gemini-2.5-flash")
	case ProviderOpenAI:
		cfg.LLMModel = getEnv("LLM_MODEL", "gpt-4o-mini")
	case ProviderMock:
		cfg.LLMModel = getEnv("LLM_MODEL", "mock")
	default:
		return nil, fmt.Errorf("%w: unknown LLM_PROVIDER %q", ErrConfiguration, cfg.LLMProvider)
	}

	key, err := loadServerKey()
	if err != nil {
		return nil, err
	}
	cfg.LLMAPIKey = key
	if cfg.NeedsServerKey() && cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("%w: no model API key configured; set GEMINI_API_KEY or LLM_API_KEY_FILE", ErrConfiguration)
	}

	if cfg.Mode == ModeAccount && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET is required in account mode", ErrConfiguration)
	}
	cfg.TokenExpiration = time.Duration(getInt("JWT_EXPIRATION_HOURS", 24)) * time.Hour

	if hexKey := getEnv("ENCRYPTION_KEY", ""); hexKey != "" {
		k, err := crypto.KeyFromHex(hexKey)
		if err != nil || len(k) != crypto.KeySize {
			return nil, fmt.Errorf("%w: ENCRYPTION_KEY must be %d hex characters", ErrConfiguration, crypto.KeySize*2)
		}
		cfg.EncryptionKey = k
	} else {
		k, err := crypto.RandomKey()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		cfg.EncryptionKey = k
		cfg.EncryptionKeyGenerated = true
	}
	cfg.CredentialTTL = time.Duration(getInt("CREDENTIAL_TTL_MINUTES", 720)) * time.Minute

	cfg.RecentChatsLimit = getInt("RECENT_CHATS_LIMIT", 10)
	if cfg.RecentChatsLimit <= 0 {
		cfg.RecentChatsLimit = 10
	}
	for _, o := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:9002"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	zap.S().Infof("[Config] LoadConfig: port=%s mode=%s store=%s provider=%s model=%s serverKey=%t",
		cfg.HTTPPort, cfg.Mode, cfg.StoreBackend, cfg.LLMProvider, cfg.LLMModel, cfg.LLMAPIKey != "")
	return cfg, nil
}

// loadServerKey reads the server credential from GEMINI_API_KEY or from the file named
// by LLM_API_KEY_FILE. Setting both is an error.
func loadServerKey() (string, error) {
	envKey := strings.TrimSpace(getEnv("GEMINI_API_KEY", ""))
	keyFile := getEnv("LLM_API_KEY_FILE", "")
	if envKey != "" && keyFile != "" {
		return "", fmt.Errorf("%w: set GEMINI_API_KEY or LLM_API_KEY_FILE, not both", ErrConfiguration)
	}

	key := envKey
	if keyFile != "" {
		b, err := os.ReadFile(keyFile)
		if err != nil {
			return "", fmt.Errorf("%w: reading LLM_API_KEY_FILE: %v", ErrConfiguration, err)
		}
		key = strings.TrimSpace(string(b))
	}
	if credentials.IsPlaceholderKey(key) {
		return "", fmt.Errorf("%w: the model API key is still the placeholder value", ErrConfiguration)
	}
	return key, nil
}

// getEnv retrieves an environment variable or returns a default value. Empty counts as unset.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		zap.S().Warnf("[Config] Invalid %s %q, using default %d", key, raw, fallback)
		return fallback
	}
	return n
}
