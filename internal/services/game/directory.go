package game

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/services/board"
	"github.com/mcoot/noughts/internal/storage"
)

// Directory maps game ids to their live Session, loading from storage on
// demand. Finished games are evicted once persisted.
type Directory struct {
	storage storage.Storage
	rules   *board.Service
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[model.GameID]*Session
}

// NewDirectory creates a new Directory
func NewDirectory(storage storage.Storage, rules *board.Service, logger *slog.Logger) *Directory {
	return &Directory{
		storage:  storage,
		rules:    rules,
		logger:   logger.With(slog.String("component", "session-directory")),
		sessions: make(map[model.GameID]*Session),
	}
}

// Register installs a session for a newly created game
func (d *Directory) Register(game *model.Game) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sessions[game.ID]; ok {
		return
	}
	d.sessions[game.ID] = newSession(game, d.rules)
	d.logger.Debug("session registered", slog.String("game_id", string(game.ID)))
}

// Acquire returns the locked session for a game. Callers must Release it.
func (d *Directory) Acquire(ctx context.Context, gameID model.GameID) (*Session, error) {
	d.mu.Lock()
	session, ok := d.sessions[gameID]
	d.mu.Unlock()

	if !ok {
		game, err := d.storage.GetGame(ctx, gameID)
		if err != nil {
			return nil, err
		}

		d.mu.Lock()
		// Another caller may have loaded it meanwhile
		if existing, ok := d.sessions[gameID]; ok {
			session = existing
		} else {
			session = newSession(game, d.rules)
			if !game.IsFinished() {
				d.sessions[gameID] = session
			}
		}
		d.mu.Unlock()
	}

	session.mu.Lock()
	return session, nil
}

// Release unlocks a session obtained from Acquire
func (d *Directory) Release(session *Session) {
	session.mu.Unlock()
}

// Evict drops the session for a game
func (d *Directory) Evict(gameID model.GameID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sessions[gameID]; ok {
		delete(d.sessions, gameID)
		d.logger.Debug("session evicted", slog.String("game_id", string(gameID)))
	}
}

// Len returns the number of live sessions
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}
