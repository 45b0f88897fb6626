package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mcoot/noughts/internal/dependencies/clock"
	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/storage"
)

const (
	// DefaultHistoryLimit is the page size used when none is given
	DefaultHistoryLimit = 10
	// MaxHistoryLimit caps the page size
	MaxHistoryLimit = 100
)

// Notifier delivers events to connected users
type Notifier interface {
	Notify(userID model.UserID, event model.Event)
}

// Controller is the request-facing entry point for games
type Controller struct {
	storage   storage.Storage
	directory *Directory
	notifier  Notifier
	clock     clock.Clock
	logger    *slog.Logger
}

// NewController creates a new GameController
func NewController(
	storage storage.Storage,
	directory *Directory,
	notifier Notifier,
	clock clock.Clock,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		storage:   storage,
		directory: directory,
		notifier:  notifier,
		clock:     clock,
		logger:    logger.With(slog.String("component", "game-controller")),
	}
}

// Get returns a game the requester plays in, with profiles resolved
func (c *Controller) Get(ctx context.Context, gameID model.GameID, requester model.UserID) (*model.ResolvedGame, error) {
	game, err := c.storage.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if !game.IsPlayer(requester) {
		return nil, model.ErrForbidden
	}
	return c.Resolve(ctx, game)
}

// ApplyMove places the requester's symbol at position and pushes the
// resulting state to both players
func (c *Controller) ApplyMove(ctx context.Context, gameID model.GameID, requester model.UserID, position int) (*model.ResolvedGame, error) {
	session, err := c.directory.Acquire(ctx, gameID)
	if err != nil {
		return nil, err
	}
	next, err := c.applyLocked(ctx, session, requester, position)
	c.directory.Release(session)
	if err != nil {
		return nil, err
	}

	if next.IsFinished() {
		c.directory.Evict(gameID)
		c.logger.Info("game finished",
			slog.String("game_id", string(gameID)),
			slog.String("result", string(next.Result)),
			slog.String("winner", string(next.Winner)),
		)
	}

	resolved, err := c.Resolve(ctx, next)
	if err != nil {
		return nil, err
	}

	event := model.Event{
		Type:      model.EventGameUpdate,
		Timestamp: c.clock.Now(),
		Payload:   model.GameUpdatePayload{Game: *resolved},
	}
	for _, player := range next.Players() {
		c.notifier.Notify(player, event)
	}
	return resolved, nil
}

// applyLocked runs the validate-persist-commit sequence while the session is held
func (c *Controller) applyLocked(ctx context.Context, session *Session, requester model.UserID, position int) (*model.Game, error) {
	now := c.clock.Now()

	next, err := session.Apply(requester, position, now)
	if err != nil {
		return nil, err
	}

	err = c.storage.UpdateGame(ctx, next, session.Version())
	if errors.Is(err, model.ErrVersionConflict) {
		// Another process wrote this game; resync and validate once more
		c.logger.Warn("game version conflict, reloading",
			slog.String("game_id", string(next.ID)),
			slog.Int64("expected_version", session.Version()),
		)
		fresh, loadErr := c.storage.GetGame(ctx, next.ID)
		if loadErr != nil {
			return nil, fmt.Errorf("reload game: %w", loadErr)
		}
		session.Commit(fresh)

		next, err = session.Apply(requester, position, now)
		if err != nil {
			return nil, err
		}
		err = c.storage.UpdateGame(ctx, next, session.Version())
	}
	if err != nil {
		c.logger.Error("failed to persist move",
			slog.String("game_id", string(next.ID)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("persist move: %w", err)
	}

	session.Commit(next)
	c.logger.Debug("move applied",
		slog.String("game_id", string(next.ID)),
		slog.String("player_id", string(requester)),
		slog.Int("position", position),
	)
	return next, nil
}

// History returns the requester's finished games, most recently finished first
func (c *Controller) History(ctx context.Context, userID model.UserID, page, limit int) (*model.GamePage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	games, err := c.storage.ListGamesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	finished := FinishedGames(games)
	sort.SliceStable(finished, func(i, j int) bool {
		return finished[i].FinishedAt.After(*finished[j].FinishedAt)
	})

	total := len(finished)
	result := &model.GamePage{
		Games:       []*model.ResolvedGame{},
		Total:       total,
		TotalPages:  (total + limit - 1) / limit,
		CurrentPage: page,
	}

	start := (page - 1) * limit
	if start >= total {
		return result, nil
	}
	end := min(start+limit, total)

	for _, g := range finished[start:end] {
		resolved, err := c.Resolve(ctx, g)
		if err != nil {
			return nil, err
		}
		result.Games = append(result.Games, resolved)
	}
	return result, nil
}

// Resolve loads the player profiles for a game
func (c *Controller) Resolve(ctx context.Context, game *model.Game) (*model.ResolvedGame, error) {
	resolved := &model.ResolvedGame{Game: game}

	var err error
	if resolved.PlayerX, err = c.storage.GetUser(ctx, game.PlayerX); err != nil {
		return nil, fmt.Errorf("resolve player x: %w", err)
	}
	if resolved.PlayerO, err = c.storage.GetUser(ctx, game.PlayerO); err != nil {
		return nil, fmt.Errorf("resolve player o: %w", err)
	}
	switch game.Winner {
	case "":
	case game.PlayerX:
		resolved.Winner = resolved.PlayerX
	case game.PlayerO:
		resolved.Winner = resolved.PlayerO
	}
	return resolved, nil
}

// FinishedGames filters games down to those with a recorded finish
func FinishedGames(games []*model.Game) []*model.Game {
	finished := make([]*model.Game, 0, len(games))
	for _, g := range games {
		if g.Status == model.GameStatusFinished && g.FinishedAt != nil {
			finished = append(finished, g)
		}
	}
	return finished
}
