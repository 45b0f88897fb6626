package users

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/storage"
)

// Presence reports whether a user currently holds a live connection
type Presence interface {
	IsOnline(userID model.UserID) bool
}

// Listing is a user profile annotated with presence
type Listing struct {
	User   *model.User
	Online bool
}

// Service answers questions about other users
type Service struct {
	storage  storage.Storage
	presence Presence
	logger   *slog.Logger
}

// New creates a new UserDirectory
func New(storage storage.Storage, presence Presence, logger *slog.Logger) *Service {
	return &Service{
		storage:  storage,
		presence: presence,
		logger:   logger.With(slog.String("component", "user-directory")),
	}
}

// ListOthers returns every registered user except the caller, sorted by name
func (s *Service) ListOthers(ctx context.Context, userID model.UserID) ([]Listing, error) {
	all, err := s.storage.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Listing, 0, len(all))
	for _, u := range all {
		if u.ID == userID {
			continue
		}
		result = append(result, Listing{User: u, Online: s.presence.IsOnline(u.ID)})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].User.FullName != result[j].User.FullName {
			return result[i].User.FullName < result[j].User.FullName
		}
		return result[i].User.ID < result[j].User.ID
	})
	return result, nil
}

// Stats summarises the user's finished games
func (s *Service) Stats(ctx context.Context, userID model.UserID) (*model.UserStats, error) {
	if _, err := s.storage.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	games, err := s.storage.ListGamesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ComputeStats(userID, games), nil
}

// ComputeStats tallies wins, draws and losses over the user's finished games
func ComputeStats(userID model.UserID, games []*model.Game) *model.UserStats {
	stats := &model.UserStats{}
	for _, g := range games {
		if g.Status != model.GameStatusFinished || !g.IsPlayer(userID) {
			continue
		}
		stats.GamesPlayed++
		switch {
		case g.Result == model.GameResultDraw:
			stats.Draws++
		case g.Winner == userID:
			stats.Wins++
		default:
			stats.Losses++
		}
	}
	if stats.GamesPlayed > 0 {
		rate := float64(stats.Wins) / float64(stats.GamesPlayed) * 100
		stats.WinRate = math.Round(rate*10) / 10
	}
	return stats
}
