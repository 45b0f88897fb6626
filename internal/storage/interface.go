package storage

import (
	"context"
	"time"

	"github.com/mcoot/noughts/internal/model"
)

// Storage defines the interface for data persistence
//
// Returned entities are copies; mutating them does not affect stored state
// until they are written back.
type Storage interface {
	// User operations
	SaveUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id model.UserID) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)

	// Credential operations
	// SaveCredentials fails with model.ErrEmailTaken if the email belongs to another user
	SaveCredentials(ctx context.Context, creds *model.Credentials) error
	GetCredentialsByEmail(ctx context.Context, email string) (*model.Credentials, error)

	// Challenge operations

	// CreateChallenge persists a new pending challenge. Fails with
	// model.ErrDuplicateChallenge if a pending challenge already exists
	// for the same unordered pair of users; the check and the insert are atomic.
	CreateChallenge(ctx context.Context, challenge *model.Challenge) error
	GetChallenge(ctx context.Context, id model.ChallengeID) (*model.Challenge, error)
	// TransitionChallenge atomically moves a challenge from one status to
	// another, setting gameID (if non-empty) and UpdatedAt. Fails with
	// model.ErrChallengeAlreadyResolved if the stored status is not from.
	TransitionChallenge(ctx context.Context, id model.ChallengeID, from, to model.ChallengeStatus, gameID model.GameID, at time.Time) (*model.Challenge, error)
	// ListChallengesForUser returns every challenge the user is part of
	ListChallengesForUser(ctx context.Context, userID model.UserID) ([]*model.Challenge, error)
	// ListPendingChallenges returns every pending challenge in the system
	ListPendingChallenges(ctx context.Context) ([]*model.Challenge, error)

	// Game operations
	CreateGame(ctx context.Context, game *model.Game) error
	GetGame(ctx context.Context, id model.GameID) (*model.Game, error)
	// UpdateGame writes game if the stored version equals expectedVersion,
	// setting game.Version to expectedVersion+1. Fails with
	// model.ErrVersionConflict otherwise.
	UpdateGame(ctx context.Context, game *model.Game, expectedVersion int64) error
	DeleteGame(ctx context.Context, id model.GameID) error
	// ListGamesForUser returns every game the user is a player in
	ListGamesForUser(ctx context.Context, userID model.UserID) ([]*model.Game, error)

	// Session revocation

	// RevokeSession records a session id as revoked until expiresAt
	RevokeSession(ctx context.Context, sessionID string, expiresAt time.Time) error
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)
	// PurgeRevokedSessions forgets revocations that expired before the
	// given time and returns how many were removed
	PurgeRevokedSessions(ctx context.Context, before time.Time) (int, error)

	// Ping reports whether the backend is reachable
	Ping(ctx context.Context) error
}
