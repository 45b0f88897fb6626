package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mcoot/noughts/internal/api"
	"github.com/mcoot/noughts/internal/dependencies/clock"
	"github.com/mcoot/noughts/internal/dependencies/ids"
	"github.com/mcoot/noughts/internal/realtime"
	"github.com/mcoot/noughts/internal/services/auth"
	"github.com/mcoot/noughts/internal/services/board"
	"github.com/mcoot/noughts/internal/services/challenge"
	"github.com/mcoot/noughts/internal/services/game"
	"github.com/mcoot/noughts/internal/services/users"
	"github.com/mcoot/noughts/internal/storage"
	boltstorage "github.com/mcoot/noughts/internal/storage/bolt"
	"github.com/mcoot/noughts/internal/storage/memory"
	redisstorage "github.com/mcoot/noughts/internal/storage/redis"
	sqlitestorage "github.com/mcoot/noughts/internal/storage/sqlite"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
	StorageTypeSQLite = "sqlite"
	StorageTypeBolt   = "bolt"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage     storage.Storage
	StorageType string

	// External dependencies
	Clock clock.Clock
	IDs   ids.Generator

	// Services
	BoardService         *board.Service
	Directory            *game.Directory
	GameController       *game.Controller
	ChallengeCoordinator *challenge.Coordinator
	UserService          *users.Service
	AuthService          *auth.Service

	// Real-time
	Registry  *realtime.Registry
	Bus       *realtime.Bus
	Transport *realtime.Handler

	logger *slog.Logger
}

// Config holds configuration for the application factory
type Config struct {
	// AuthConfig holds configuration for the auth service (optional)
	// If zero value, defaults to auth.DefaultConfig()
	AuthConfig auth.Config
	// ChallengeConfig holds configuration for the challenge coordinator (optional)
	// If zero value, defaults to challenge.DefaultConfig()
	ChallengeConfig challenge.Config
	// RealtimeConfig holds configuration for the SSE/WebSocket transports (optional)
	RealtimeConfig realtime.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis", "sqlite" or "bolt")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// SQLitePath is the database file (required if StorageType is "sqlite")
	SQLitePath string
	// BoltPath is the database file (required if StorageType is "bolt")
	BoltPath string
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}
	store, err := openStorage(storageType, cfg)
	if err != nil {
		return nil, err
	}

	// Use default configs if not provided
	authCfg := cfg.AuthConfig
	if authCfg.SessionDuration == 0 {
		authCfg.SessionDuration = auth.DefaultConfig().SessionDuration
	}
	challengeCfg := cfg.ChallengeConfig
	if challengeCfg == (challenge.Config{}) {
		challengeCfg = challenge.DefaultConfig()
	}

	app := newWithDependencies(store, clock.New(), ids.New(), authCfg, challengeCfg, cfg.RealtimeConfig, logger)
	app.StorageType = storageType
	return app, nil
}

func openStorage(storageType string, cfg Config) (storage.Storage, error) {
	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		return redisstorage.New(*cfg.RedisConfig)
	case StorageTypeSQLite:
		return sqlitestorage.Open(cfg.SQLitePath)
	case StorageTypeBolt:
		return boltstorage.Open(cfg.BoltPath)
	default:
		return nil, fmt.Errorf("invalid StorageType %q: must be memory, redis, sqlite or bolt", storageType)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Storage,
	clk clock.Clock,
	idGen ids.Generator,
	authCfg auth.Config,
	challengeCfg challenge.Config,
	realtimeCfg realtime.Config,
	logger *slog.Logger,
) *App {
	registry := realtime.NewRegistry(logger)
	bus := realtime.NewBus(registry, clk, logger)

	boardService := board.New()
	directory := game.NewDirectory(store, boardService, logger)
	gameController := game.NewController(store, directory, bus, clk, logger)
	coordinator := challenge.NewCoordinator(store, directory, bus, clk, idGen, challengeCfg, logger)
	userService := users.New(store, registry, logger)
	authService := auth.New(store, clk, idGen, authCfg, logger)
	transport := realtime.NewHandler(registry, coordinator, gameController, clk, idGen, realtimeCfg, logger)

	return &App{
		Storage:              store,
		StorageType:          StorageTypeMemory,
		Clock:                clk,
		IDs:                  idGen,
		BoardService:         boardService,
		Directory:            directory,
		GameController:       gameController,
		ChallengeCoordinator: coordinator,
		UserService:          userService,
		AuthService:          authService,
		Registry:             registry,
		Bus:                  bus,
		Transport:            transport,
		logger:               logger,
	}
}

// Router builds the API router over the app's components
func (a *App) Router(secureCookies bool) http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:               a.logger,
		AuthService:          a.AuthService,
		UserService:          a.UserService,
		ChallengeCoordinator: a.ChallengeCoordinator,
		GameController:       a.GameController,
		Transport:            a.Transport,
		Registry:             a.Registry,
		Pinger:               a.Storage,
		StorageType:          a.StorageType,
		SecureCookies:        secureCookies,
	})
}

// Close drops every live connection and releases the storage backend
func (a *App) Close() error {
	a.Registry.CloseAll()
	if closer, ok := a.Storage.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
