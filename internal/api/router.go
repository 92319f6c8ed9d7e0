package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"studybuddy-backend/internal/config"
	"studybuddy-backend/internal/handlers"
	"studybuddy-backend/internal/observability"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration. Only the handlers of the configured session
// mode are set; the others stay nil and their routes are not mounted.
type RouterDependencies struct {
	SessionHandler     *handlers.SessionHandler
	CredentialsHandler *handlers.CredentialsHandler
	LocalHandler       *handlers.LocalHandler
	AuthHandler        *handlers.AuthHandler
	ChatHandler        *handlers.ChatHandlers
	StreamHandler      *handlers.StreamHandler
	Logger             *zap.Logger
	Config             *config.Config
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = zap.L()
	}

	// --- Base Middleware Stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	// --- CORS Configuration ---
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if deps.SessionHandler == nil {
		panic("SessionHandler dependency is nil in router setup")
	}
	r.Get("/health", deps.SessionHandler.HandleHealth)
	r.Get("/v1/session-mode", deps.SessionHandler.HandleSessionMode)

	// Model calls can take a while; the websocket route must not be cut off, so the
	// timeout is applied per group rather than globally.
	timeout := middleware.Timeout(90 * time.Second)

	// --- Ephemeral mode ---
	if deps.CredentialsHandler != nil {
		r.Group(func(r chi.Router) {
			r.Use(timeout)
			r.Post("/v1/credential", deps.CredentialsHandler.HandleSaveCredential)
			r.Get("/v1/credential", deps.CredentialsHandler.HandleGetCredential)
			r.Delete("/v1/credential", deps.CredentialsHandler.HandleDeleteCredential)
			r.Post("/v1/generate", deps.CredentialsHandler.HandleGenerate)
		})
	}

	// --- Local mode ---
	if deps.LocalHandler != nil {
		r.Route("/v1/local/{name}/messages", func(r chi.Router) {
			r.Use(timeout)
			r.Get("/", deps.LocalHandler.HandleGetConversation)
			r.Post("/", deps.LocalHandler.HandleSendMessage)
			r.Delete("/", deps.LocalHandler.HandleReset)
		})
	}

	// --- Account mode ---
	if deps.AuthHandler != nil {
		r.Route("/v1/auth", func(r chi.Router) {
			r.Use(timeout)
			r.Post("/signup", deps.AuthHandler.HandleSignup)
			r.Post("/login", deps.AuthHandler.HandleLogin)
		})
	}

	if deps.ChatHandler != nil {
		r.Route("/v1/chats", func(r chi.Router) {
			r.Use(JwtAuthMiddleware(deps.Config.JWTSecret))

			if deps.StreamHandler != nil {
				r.Get("/stream", deps.StreamHandler.HandleStream)
			} else {
				zap.S().Warn("WARN: StreamHandler dependency is nil, skipping /v1/chats/stream route.")
			}

			r.Group(func(r chi.Router) {
				r.Use(timeout)
				r.Post("/", deps.ChatHandler.HandleCreateChat)
				r.Get("/", deps.ChatHandler.HandleListChats)
				r.Get("/active", deps.ChatHandler.HandleGetActiveChat)
				r.Get("/{chatID}", deps.ChatHandler.HandleGetChatByID)
				r.Put("/{chatID}", deps.ChatHandler.HandleOverwriteHistory)
				r.Post("/{chatID}/messages", deps.ChatHandler.HandleSendMessage)
			})
		})
	}

	return r
}
