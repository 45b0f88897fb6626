package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/noughts/internal/api/handler"
	"github.com/mcoot/noughts/internal/api/middleware"
	"github.com/mcoot/noughts/internal/api/response"
	"github.com/mcoot/noughts/internal/realtime"
	"github.com/mcoot/noughts/internal/services/auth"
	"github.com/mcoot/noughts/internal/services/challenge"
	"github.com/mcoot/noughts/internal/services/game"
	"github.com/mcoot/noughts/internal/services/users"
)

// Pinger is implemented by storage backends that can report their health
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger               *slog.Logger
	AuthService          *auth.Service
	UserService          *users.Service
	ChallengeCoordinator *challenge.Coordinator
	GameController       *game.Controller
	Transport            *realtime.Handler
	Registry             *realtime.Registry
	Pinger               Pinger // nil skips the storage check
	StorageType          string
	SecureCookies        bool
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	authHandler := handler.NewAuthHandler(cfg.AuthService, cfg.SecureCookies)
	usersHandler := handler.NewUsersHandler(cfg.UserService)
	challengeHandler := handler.NewChallengeHandler(cfg.ChallengeCoordinator)
	gameHandler := handler.NewGameHandler(cfg.GameController)
	eventsHandler := handler.NewEventsHandler(cfg.Transport)

	// Create middleware
	authMiddleware := middleware.Auth(cfg.AuthService)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Auth routes (no auth required for signup/login)
	api.HandleFunc("/auth/signup", authHandler.Signup).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)

	// Everything else requires a session
	protected := api.NewRoute().Subrouter()
	protected.Use(authMiddleware)

	protected.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)
	protected.HandleFunc("/auth/me", authHandler.Me).Methods(http.MethodGet)

	protected.HandleFunc("/users", usersHandler.List).Methods(http.MethodGet)
	protected.HandleFunc("/users/stats", usersHandler.Stats).Methods(http.MethodGet)

	protected.HandleFunc("/challenges", challengeHandler.Send).Methods(http.MethodPost)
	protected.HandleFunc("/challenges/pending", challengeHandler.Pending).Methods(http.MethodGet)
	protected.HandleFunc("/challenges/history", challengeHandler.History).Methods(http.MethodGet)
	protected.HandleFunc("/challenges/{id}/accept", challengeHandler.Accept).Methods(http.MethodPut)
	protected.HandleFunc("/challenges/{id}/decline", challengeHandler.Decline).Methods(http.MethodPut)

	// history must be registered before {id}
	protected.HandleFunc("/games/history", gameHandler.History).Methods(http.MethodGet)
	protected.HandleFunc("/games/{id}", gameHandler.Get).Methods(http.MethodGet)
	protected.HandleFunc("/games/{id}/move", gameHandler.Move).Methods(http.MethodPut)

	protected.HandleFunc("/events", eventsHandler.SSE).Methods(http.MethodGet)
	protected.HandleFunc("/ws", eventsHandler.WebSocket).Methods(http.MethodGet)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", healthHandler(cfg)).Methods(http.MethodGet)

	return r
}

func healthHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := response.Health{
			Status:  "ok",
			Storage: cfg.StorageType,
		}
		if cfg.Registry != nil {
			health.Connections = cfg.Registry.Len()
		}

		status := http.StatusOK
		if cfg.Pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Pinger.Ping(ctx); err != nil {
				cfg.Logger.Warn("storage health check failed", slog.Any("error", err))
				health.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		response.JSON(w, status, health)
	}
}
