package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	users       map[model.UserID]*model.User
	credentials map[model.UserID]*model.Credentials
	emailIndex  map[string]model.UserID
	challenges  map[model.ChallengeID]*model.Challenge
	pendingPair map[string]model.ChallengeID
	games       map[model.GameID]*model.Game
	revoked     map[string]time.Time
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		users:       make(map[model.UserID]*model.User),
		credentials: make(map[model.UserID]*model.Credentials),
		emailIndex:  make(map[string]model.UserID),
		challenges:  make(map[model.ChallengeID]*model.Challenge),
		pendingPair: make(map[string]model.ChallengeID),
		games:       make(map[model.GameID]*model.Game),
		revoked:     make(map[string]time.Time),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// User operations

func (s *Storage) SaveUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *Storage) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*model.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		users = append(users, &cp)
	}
	return users, nil
}

// Credential operations

func (s *Storage) SaveCredentials(ctx context.Context, creds *model.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(creds.Email)
	if owner, ok := s.emailIndex[email]; ok && owner != creds.UserID {
		return model.ErrEmailTaken
	}
	cp := *creds
	s.credentials[creds.UserID] = &cp
	s.emailIndex[email] = creds.UserID
	return nil
}

func (s *Storage) GetCredentialsByEmail(ctx context.Context, email string) (*model.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.emailIndex[strings.ToLower(email)]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	creds, ok := s.credentials[userID]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	cp := *creds
	return &cp, nil
}

// Challenge operations

func (s *Storage) CreateChallenge(ctx context.Context, challenge *model.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[challenge.ID]; ok {
		return fmt.Errorf("challenge %s already exists", challenge.ID)
	}
	pair := challenge.PairKey()
	if _, ok := s.pendingPair[pair]; ok && challenge.IsPending() {
		return model.ErrDuplicateChallenge
	}
	s.challenges[challenge.ID] = challenge.Clone()
	if challenge.IsPending() {
		s.pendingPair[pair] = challenge.ID
	}
	return nil
}

func (s *Storage) GetChallenge(ctx context.Context, id model.ChallengeID) (*model.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.challenges[id]
	if !ok {
		return nil, model.ErrChallengeNotFound
	}
	return c.Clone(), nil
}

func (s *Storage) TransitionChallenge(ctx context.Context, id model.ChallengeID, from, to model.ChallengeStatus, gameID model.GameID, at time.Time) (*model.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return nil, model.ErrChallengeNotFound
	}
	if c.Status != from {
		return nil, model.ErrChallengeAlreadyResolved
	}
	c.Status = to
	c.UpdatedAt = at
	if gameID != "" {
		c.GameID = gameID
	}
	if from == model.ChallengePending && to != model.ChallengePending {
		delete(s.pendingPair, c.PairKey())
	}
	return c.Clone(), nil
}

func (s *Storage) ListChallengesForUser(ctx context.Context, userID model.UserID) ([]*model.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*model.Challenge
	for _, c := range s.challenges {
		if c.Involves(userID) {
			result = append(result, c.Clone())
		}
	}
	return result, nil
}

func (s *Storage) ListPendingChallenges(ctx context.Context) ([]*model.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*model.Challenge, 0, len(s.pendingPair))
	for _, id := range s.pendingPair {
		result = append(result, s.challenges[id].Clone())
	}
	return result, nil
}

// Game operations

func (s *Storage) CreateGame(ctx context.Context, game *model.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[game.ID]; ok {
		return fmt.Errorf("game %s already exists", game.ID)
	}
	s.games[game.ID] = game.Clone()
	return nil
}

func (s *Storage) GetGame(ctx context.Context, id model.GameID) (*model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[id]
	if !ok {
		return nil, model.ErrGameNotFound
	}
	return game.Clone(), nil
}

func (s *Storage) UpdateGame(ctx context.Context, game *model.Game, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.games[game.ID]
	if !ok {
		return model.ErrGameNotFound
	}
	if stored.Version != expectedVersion {
		return model.ErrVersionConflict
	}
	game.Version = expectedVersion + 1
	s.games[game.ID] = game.Clone()
	return nil
}

func (s *Storage) DeleteGame(ctx context.Context, id model.GameID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, id)
	return nil
}

func (s *Storage) ListGamesForUser(ctx context.Context, userID model.UserID) ([]*model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*model.Game
	for _, g := range s.games {
		if g.IsPlayer(userID) {
			result = append(result, g.Clone())
		}
	}
	return result, nil
}

// Session revocation

func (s *Storage) RevokeSession(ctx context.Context, sessionID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[sessionID] = expiresAt
	return nil
}

func (s *Storage) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[sessionID]
	return ok, nil
}

func (s *Storage) PurgeRevokedSessions(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, expiresAt := range s.revoked {
		if expiresAt.Before(before) {
			delete(s.revoked, id)
			removed++
		}
	}
	return removed, nil
}

// Ping always succeeds for in-process storage
func (s *Storage) Ping(ctx context.Context) error {
	return nil
}
