package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/mcoot/noughts/internal/dependencies/clock"
	"github.com/mcoot/noughts/internal/dependencies/ids"
	"github.com/mcoot/noughts/internal/model"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time between keepalive pings
	pingPeriod = 30 * time.Second

	// Largest inbound WebSocket message accepted
	maxMessageSize = 4096
)

// ChallengeDecliner handles declineChallenge messages
type ChallengeDecliner interface {
	Decline(ctx context.Context, id model.ChallengeID, decliner model.UserID) (*model.ResolvedChallenge, error)
}

// MoveApplier handles gameMove messages
type MoveApplier interface {
	ApplyMove(ctx context.Context, gameID model.GameID, requester model.UserID, position int) (*model.ResolvedGame, error)
}

// Config holds configuration for the transport handlers
type Config struct {
	// OriginPatterns are the cross-origin hosts allowed to open a WebSocket
	OriginPatterns []string
	PingPeriod     time.Duration
}

// DefaultConfig returns default transport configuration
func DefaultConfig() Config {
	return Config{
		PingPeriod: pingPeriod,
	}
}

// Handler serves SSE and WebSocket connections for authenticated users
type Handler struct {
	registry   *Registry
	challenges ChallengeDecliner
	games      MoveApplier
	clock      clock.Clock
	ids        ids.Generator
	cfg        Config
	logger     *slog.Logger
}

// NewHandler creates a new transport Handler
func NewHandler(
	registry *Registry,
	challenges ChallengeDecliner,
	games MoveApplier,
	clock clock.Clock,
	ids ids.Generator,
	cfg Config,
	logger *slog.Logger,
) *Handler {
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = DefaultConfig().PingPeriod
	}
	return &Handler{
		registry:   registry,
		challenges: challenges,
		games:      games,
		clock:      clock,
		ids:        ids,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "realtime")),
	}
}

func (h *Handler) newConn(userID model.UserID, transport string) *Conn {
	return NewConn(h.ids.NewID(), userID, transport, h.clock.Now())
}

func (h *Handler) newTicker() *time.Ticker {
	return time.NewTicker(h.cfg.PingPeriod)
}
