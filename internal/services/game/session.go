package game

import (
	"sync"
	"time"

	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/services/board"
)

// Session is the in-process authority for one game.
// Callers hold the lock (via Directory.Acquire) for the whole
// validate-persist-commit sequence of a move.
type Session struct {
	mu    sync.Mutex
	game  *model.Game
	rules *board.Service
}

func newSession(game *model.Game, rules *board.Service) *Session {
	return &Session{game: game.Clone(), rules: rules}
}

// Game returns a copy of the committed game state
func (s *Session) Game() *model.Game {
	return s.game.Clone()
}

// Version returns the committed store version
func (s *Session) Version() int64 {
	return s.game.Version
}

// Apply validates a move against the committed state and returns the
// resulting game. The committed state is never modified.
func (s *Session) Apply(requester model.UserID, position int, now time.Time) (*model.Game, error) {
	current := s.game
	if current.Status != model.GameStatusInProgress {
		return nil, model.ErrNotInProgress
	}
	symbol, ok := current.SymbolFor(requester)
	if !ok {
		return nil, model.ErrForbidden
	}
	if symbol != current.CurrentPlayer {
		return nil, model.ErrWrongTurn
	}

	next := current.Clone()
	if err := s.rules.Place(&next.Board, symbol, position); err != nil {
		return nil, err
	}
	next.Moves = append(next.Moves, model.Move{
		Player:    requester,
		Position:  position,
		Symbol:    symbol,
		Timestamp: now,
	})
	next.UpdatedAt = now

	outcome := s.rules.Evaluate(&next.Board)
	switch {
	case outcome.Winner != model.SymbolEmpty:
		next.Status = model.GameStatusFinished
		next.Winner = requester
		next.Result = model.GameResultWin
		next.FinishedAt = &now
	case outcome.IsDraw():
		next.Status = model.GameStatusFinished
		next.Result = model.GameResultDraw
		next.FinishedAt = &now
	default:
		next.CurrentPlayer = symbol.Other()
	}
	return next, nil
}

// Commit replaces the committed state with a persisted game
func (s *Session) Commit(game *model.Game) {
	s.game = game.Clone()
}
