package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.MaxTxRetries <= 0 {
		cfg.MaxTxRetries = DefaultConfig().MaxTxRetries
	}
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJSON[T any](ctx context.Context, c getter, key string, notFound error) (*T, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound
		}
		return nil, err
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &v, nil
}

// mgetIndexed loads every entity referenced by an index set, pruning
// members whose keys have expired
func mgetIndexed[T any](ctx context.Context, s *Storage, indexKey string, keyFn func(string) string) ([]*T, error) {
	members, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []*T{}, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = keyFn(m)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*T, 0, len(values))
	var stale []any
	for i, val := range values {
		str, ok := val.(string)
		if !ok {
			stale = append(stale, members[i])
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(str), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		result = append(result, &v)
	}

	if len(stale) > 0 {
		_ = s.client.SRem(ctx, indexKey, stale...).Err()
	}
	return result, nil
}

// retryTx runs fn until it does not fail on a WATCH conflict
func (s *Storage) retryTx(fn func() error) error {
	for i := 0; i < s.cfg.MaxTxRetries; i++ {
		err := fn()
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("redis transaction retries exhausted: %w", redis.TxFailedErr)
}

// User operations

func (s *Storage) SaveUser(ctx context.Context, user *model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, userKey(user.ID), data, 0)
	pipe.SAdd(ctx, usersIndexKey(), string(user.ID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	return getJSON[model.User](ctx, s.client, userKey(id), model.ErrUserNotFound)
}

func (s *Storage) ListUsers(ctx context.Context) ([]*model.User, error) {
	return mgetIndexed[model.User](ctx, s, usersIndexKey(), func(id string) string {
		return userKey(model.UserID(id))
	})
}

// Credential operations

func (s *Storage) SaveCredentials(ctx context.Context, creds *model.Credentials) error {
	idxKey := emailIndexKey(creds.Email)

	claimed, err := s.client.SetNX(ctx, idxKey, string(creds.UserID), 0).Result()
	if err != nil {
		return err
	}
	if !claimed {
		owner, err := s.client.Get(ctx, idxKey).Result()
		if err != nil {
			return err
		}
		if owner != string(creds.UserID) {
			return model.ErrEmailTaken
		}
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, credentialsKey(creds.UserID), data, 0).Err()
}

func (s *Storage) GetCredentialsByEmail(ctx context.Context, email string) (*model.Credentials, error) {
	userID, err := s.client.Get(ctx, emailIndexKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrUserNotFound
		}
		return nil, err
	}
	return getJSON[model.Credentials](ctx, s.client, credentialsKey(model.UserID(userID)), model.ErrUserNotFound)
}

// Challenge operations

func (s *Storage) CreateChallenge(ctx context.Context, challenge *model.Challenge) error {
	data, err := json.Marshal(challenge)
	if err != nil {
		return err
	}

	if !challenge.IsPending() {
		pipe := s.client.TxPipeline()
		addChallenge(ctx, pipe, challenge, data)
		_, err := pipe.Exec(ctx)
		return err
	}

	// The pair lock and the challenge are written in the same MULTI while
	// the lock is watched, so a lock never exists without its challenge
	lockKey := pendingPairKey(challenge.PairKey())
	return s.retryTx(func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			live, err := pairLockHeld(ctx, tx, lockKey)
			if err != nil {
				return err
			}
			if live {
				return model.ErrDuplicateChallenge
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, lockKey, string(challenge.ID), 0)
				addChallenge(ctx, pipe, challenge, data)
				return nil
			})
			return err
		}, lockKey)
	})
}

// addChallenge queues the writes storing a challenge and its index entries
func addChallenge(ctx context.Context, pipe redis.Pipeliner, challenge *model.Challenge, data []byte) {
	pipe.Set(ctx, challengeKey(challenge.ID), data, 0)
	pipe.SAdd(ctx, userChallengesIndexKey(challenge.Challenger), string(challenge.ID))
	pipe.SAdd(ctx, userChallengesIndexKey(challenge.Challenged), string(challenge.ID))
	if challenge.IsPending() {
		pipe.SAdd(ctx, pendingChallengesIndexKey(), string(challenge.ID))
	}
}

// pairLockHeld reports whether the pair lock points at a challenge that is
// still pending. A lock whose holder is gone or resolved is free to take.
func pairLockHeld(ctx context.Context, tx *redis.Tx, lockKey string) (bool, error) {
	holder, err := tx.Get(ctx, lockKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	held, err := getJSON[model.Challenge](ctx, tx, challengeKey(model.ChallengeID(holder)), model.ErrChallengeNotFound)
	if errors.Is(err, model.ErrChallengeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return held.IsPending(), nil
}

func (s *Storage) GetChallenge(ctx context.Context, id model.ChallengeID) (*model.Challenge, error) {
	return getJSON[model.Challenge](ctx, s.client, challengeKey(id), model.ErrChallengeNotFound)
}

func (s *Storage) TransitionChallenge(ctx context.Context, id model.ChallengeID, from, to model.ChallengeStatus, gameID model.GameID, at time.Time) (*model.Challenge, error) {
	var result *model.Challenge
	key := challengeKey(id)

	err := s.retryTx(func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			c, err := getJSON[model.Challenge](ctx, tx, key, model.ErrChallengeNotFound)
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
			data, err := json.Marshal(c)
			if err != nil {
				return err
			}

			leavingPending := from == model.ChallengePending && to != model.ChallengePending
			lockKey := pendingPairKey(c.PairKey())
			var holder string
			if leavingPending {
				holder, err = tx.Get(ctx, lockKey).Result()
				if err != nil && !errors.Is(err, redis.Nil) {
					return err
				}
			}

			var ttl time.Duration
			if to == model.ChallengeDeclined || to == model.ChallengeExpired {
				ttl = s.cfg.ResolvedChallengeTTL
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, ttl)
				if leavingPending {
					pipe.SRem(ctx, pendingChallengesIndexKey(), string(id))
					if holder == string(id) {
						pipe.Del(ctx, lockKey)
					}
				}
				return nil
			})
			if err == nil {
				result = c
			}
			return err
		}, key)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Storage) ListChallengesForUser(ctx context.Context, userID model.UserID) ([]*model.Challenge, error) {
	return mgetIndexed[model.Challenge](ctx, s, userChallengesIndexKey(userID), func(id string) string {
		return challengeKey(model.ChallengeID(id))
	})
}

func (s *Storage) ListPendingChallenges(ctx context.Context) ([]*model.Challenge, error) {
	list, err := mgetIndexed[model.Challenge](ctx, s, pendingChallengesIndexKey(), func(id string) string {
		return challengeKey(model.ChallengeID(id))
	})
	if err != nil {
		return nil, err
	}
	pending := list[:0]
	for _, c := range list {
		if c.IsPending() {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

// Game operations

func (s *Storage) CreateGame(ctx context.Context, game *model.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return err
	}

	created, err := s.client.SetNX(ctx, gameKey(game.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("game %s already exists", game.ID)
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, userGamesIndexKey(game.PlayerX), string(game.ID))
	pipe.SAdd(ctx, userGamesIndexKey(game.PlayerO), string(game.ID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetGame(ctx context.Context, id model.GameID) (*model.Game, error) {
	return getJSON[model.Game](ctx, s.client, gameKey(id), model.ErrGameNotFound)
}

func (s *Storage) UpdateGame(ctx context.Context, game *model.Game, expectedVersion int64) error {
	key := gameKey(game.ID)

	err := s.retryTx(func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			stored, err := getJSON[model.Game](ctx, tx, key, model.ErrGameNotFound)
			if err != nil {
				return err
			}
			if stored.Version != expectedVersion {
				return model.ErrVersionConflict
			}

			next := game.Clone()
			next.Version = expectedVersion + 1
			data, err := json.Marshal(next)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				return nil
			})
			return err
		}, key)
	})
	if err != nil {
		return err
	}
	game.Version = expectedVersion + 1
	return nil
}

func (s *Storage) DeleteGame(ctx context.Context, id model.GameID) error {
	game, err := s.GetGame(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrGameNotFound) {
			return nil
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, gameKey(id))
	pipe.SRem(ctx, userGamesIndexKey(game.PlayerX), string(id))
	pipe.SRem(ctx, userGamesIndexKey(game.PlayerO), string(id))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) ListGamesForUser(ctx context.Context, userID model.UserID) ([]*model.Game, error) {
	return mgetIndexed[model.Game](ctx, s, userGamesIndexKey(userID), func(id string) string {
		return gameKey(model.GameID(id))
	})
}

// Ping checks the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Session revocation

func (s *Storage) RevokeSession(ctx context.Context, sessionID string, expiresAt time.Time) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, revokedSessionKey(sessionID), expiresAt.UnixMilli(), 0)
	pipe.ZAdd(ctx, revokedSessionsIndexKey(), redis.Z{Score: float64(expiresAt.UnixMilli()), Member: sessionID})
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedSessionKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Storage) PurgeRevokedSessions(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, revokedSessionsIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%d", before.UnixMilli()),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = revokedSessionKey(id)
		members[i] = id
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, revokedSessionsIndexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}
