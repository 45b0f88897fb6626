// Package bolt provides a bbolt-backed storage implementation.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/storage"
)

var (
	usersBucket        = []byte("users")
	credentialsBucket  = []byte("credentials")
	emailsBucket       = []byte("emails")
	challengesBucket   = []byte("challenges")
	pendingPairsBucket = []byte("pending_pairs")
	gamesBucket        = []byte("games")
	revokedBucket      = []byte("revoked_sessions")

	allBuckets = [][]byte{usersBucket, credentialsBucket, emailsBucket, challengesBucket, pendingPairsBucket, gamesBucket, revokedBucket}
)

// Store is a bbolt-backed implementation of the storage interface.
// Every conditional write runs inside a single db.Update transaction.
type Store struct {
	db *bolt.DB
}

// Ensure Store implements the interface
var _ storage.Storage = (*Store)(nil)

// Open opens or creates the database file and its buckets
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func put(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func get[T any](b *bolt.Bucket, key string, notFound error) (*T, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return nil, notFound
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &v, nil
}

// scan decodes every value in the bucket and keeps those matching keep
func scan[T any](b *bolt.Bucket, keep func(*T) bool) ([]*T, error) {
	result := []*T{}
	err := b.ForEach(func(k, data []byte) error {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		if keep(&v) {
			result = append(result, &v)
		}
		return nil
	})
	return result, err
}

// User operations

func (s *Store) SaveUser(ctx context.Context, user *model.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(usersBucket), string(user.ID), user)
	})
}

func (s *Store) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	var user *model.User
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		user, err = get[model.User](tx.Bucket(usersBucket), string(id), model.ErrUserNotFound)
		return err
	})
	return user, err
}

func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		users, err = scan(tx.Bucket(usersBucket), func(*model.User) bool { return true })
		return err
	})
	return users, err
}

// Credential operations

func (s *Store) SaveCredentials(ctx context.Context, creds *model.Credentials) error {
	email := strings.ToLower(creds.Email)
	return s.db.Update(func(tx *bolt.Tx) error {
		emails := tx.Bucket(emailsBucket)
		if owner := emails.Get([]byte(email)); owner != nil && string(owner) != string(creds.UserID) {
			return model.ErrEmailTaken
		}
		if err := emails.Put([]byte(email), []byte(creds.UserID)); err != nil {
			return err
		}
		return put(tx.Bucket(credentialsBucket), string(creds.UserID), creds)
	})
}

func (s *Store) GetCredentialsByEmail(ctx context.Context, email string) (*model.Credentials, error) {
	var creds *model.Credentials
	err := s.db.View(func(tx *bolt.Tx) error {
		owner := tx.Bucket(emailsBucket).Get([]byte(strings.ToLower(email)))
		if owner == nil {
			return model.ErrUserNotFound
		}
		var err error
		creds, err = get[model.Credentials](tx.Bucket(credentialsBucket), string(owner), model.ErrUserNotFound)
		return err
	})
	return creds, err
}

// Challenge operations

func (s *Store) CreateChallenge(ctx context.Context, challenge *model.Challenge) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		challenges := tx.Bucket(challengesBucket)
		if challenges.Get([]byte(challenge.ID)) != nil {
			return fmt.Errorf("challenge %s already exists", challenge.ID)
		}
		if challenge.IsPending() {
			pairs := tx.Bucket(pendingPairsBucket)
			pair := []byte(challenge.PairKey())
			if pairs.Get(pair) != nil {
				return model.ErrDuplicateChallenge
			}
			if err := pairs.Put(pair, []byte(challenge.ID)); err != nil {
				return err
			}
		}
		return put(challenges, string(challenge.ID), challenge)
	})
}

func (s *Store) GetChallenge(ctx context.Context, id model.ChallengeID) (*model.Challenge, error) {
	var c *model.Challenge
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		c, err = get[model.Challenge](tx.Bucket(challengesBucket), string(id), model.ErrChallengeNotFound)
		return err
	})
	return c, err
}

func (s *Store) TransitionChallenge(ctx context.Context, id model.ChallengeID, from, to model.ChallengeStatus, gameID model.GameID, at time.Time) (*model.Challenge, error) {
	var c *model.Challenge
	err := s.db.Update(func(tx *bolt.Tx) error {
		challenges := tx.Bucket(challengesBucket)
		var err error
		c, err = get[model.Challenge](challenges, string(id), model.ErrChallengeNotFound)
		if err != nil {
			return err
		}
		if c.Status != from {
			return model.ErrChallengeAlreadyResolved
		}

		c.Status = to
		c.UpdatedAt = at
		if gameID != "" {
			c.GameID = gameID
		}
		if from == model.ChallengePending && to != model.ChallengePending {
			pairs := tx.Bucket(pendingPairsBucket)
			pair := []byte(c.PairKey())
			if string(pairs.Get(pair)) == string(id) {
				if err := pairs.Delete(pair); err != nil {
					return err
				}
			}
		}
		return put(challenges, string(id), c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) ListChallengesForUser(ctx context.Context, userID model.UserID) ([]*model.Challenge, error) {
	var list []*model.Challenge
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		list, err = scan(tx.Bucket(challengesBucket), func(c *model.Challenge) bool {
			return c.Involves(userID)
		})
		return err
	})
	return list, err
}

func (s *Store) ListPendingChallenges(ctx context.Context) ([]*model.Challenge, error) {
	list := []*model.Challenge{}
	err := s.db.View(func(tx *bolt.Tx) error {
		challenges := tx.Bucket(challengesBucket)
		return tx.Bucket(pendingPairsBucket).ForEach(func(_, id []byte) error {
			c, err := get[model.Challenge](challenges, string(id), model.ErrChallengeNotFound)
			if errors.Is(err, model.ErrChallengeNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			list = append(list, c)
			return nil
		})
	})
	return list, err
}

// Game operations

func (s *Store) CreateGame(ctx context.Context, game *model.Game) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		games := tx.Bucket(gamesBucket)
		if games.Get([]byte(game.ID)) != nil {
			return fmt.Errorf("game %s already exists", game.ID)
		}
		return put(games, string(game.ID), game)
	})
}

func (s *Store) GetGame(ctx context.Context, id model.GameID) (*model.Game, error) {
	var game *model.Game
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		game, err = get[model.Game](tx.Bucket(gamesBucket), string(id), model.ErrGameNotFound)
		return err
	})
	return game, err
}

func (s *Store) UpdateGame(ctx context.Context, game *model.Game, expectedVersion int64) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		games := tx.Bucket(gamesBucket)
		stored, err := get[model.Game](games, string(game.ID), model.ErrGameNotFound)
		if err != nil {
			return err
		}
		if stored.Version != expectedVersion {
			return model.ErrVersionConflict
		}
		next := game.Clone()
		next.Version = expectedVersion + 1
		return put(games, string(game.ID), next)
	})
	if err != nil {
		return err
	}
	game.Version = expectedVersion + 1
	return nil
}

func (s *Store) DeleteGame(ctx context.Context, id model.GameID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(gamesBucket).Delete([]byte(id))
	})
}

func (s *Store) ListGamesForUser(ctx context.Context, userID model.UserID) ([]*model.Game, error) {
	var list []*model.Game
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		list, err = scan(tx.Bucket(gamesBucket), func(g *model.Game) bool {
			return g.IsPlayer(userID)
		})
		return err
	})
	return list, err
}

// Session revocation

func (s *Store) RevokeSession(ctx context.Context, sessionID string, expiresAt time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(revokedBucket), sessionID, expiresAt)
	})
}

func (s *Store) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	revoked := false
	err := s.db.View(func(tx *bolt.Tx) error {
		revoked = tx.Bucket(revokedBucket).Get([]byte(sessionID)) != nil
		return nil
	})
	return revoked, err
}

func (s *Store) PurgeRevokedSessions(ctx context.Context, before time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(revokedBucket)
		var expired [][]byte
		err := b.ForEach(func(k, data []byte) error {
			var expiresAt time.Time
			if err := json.Unmarshal(data, &expiresAt); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			if expiresAt.Before(before) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(expired)
		return nil
	})
	return removed, err
}

// Ping fails once the database has been closed
func (s *Store) Ping(ctx context.Context) error {
	return s.db.View(func(*bolt.Tx) error { return nil })
}
