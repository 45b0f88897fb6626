package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/mcoot/noughts/internal/dependencies/clock"
	"github.com/mcoot/noughts/internal/dependencies/ids"
	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/storage"
)

// Notifier delivers events to connected users
type Notifier interface {
	Notify(userID model.UserID, event model.Event)
}

// SessionRegistrar receives games created by accepted challenges
type SessionRegistrar interface {
	Register(game *model.Game)
}

// Config holds configuration for the challenge coordinator
type Config struct {
	// TTL is how long a challenge stays pending before it expires
	TTL time.Duration
	// SendRate is the sustained challenges per second one user may send (0 disables)
	SendRate rate.Limit
	// SendBurst is the number of challenges a user may send at once
	SendBurst int
}

// DefaultConfig returns default challenge configuration
func DefaultConfig() Config {
	return Config{
		TTL:       model.DefaultChallengeTTL,
		SendRate:  rate.Every(2 * time.Second),
		SendBurst: 5,
	}
}

// Coordinator owns the challenge lifecycle: send, accept, decline, expire
type Coordinator struct {
	storage  storage.Storage
	sessions SessionRegistrar
	notifier Notifier
	clock    clock.Clock
	ids      ids.Generator
	limiter  *sendLimiter
	ttl      time.Duration
	logger   *slog.Logger
}

// NewCoordinator creates a new ChallengeCoordinator
func NewCoordinator(
	storage storage.Storage,
	sessions SessionRegistrar,
	notifier Notifier,
	clock clock.Clock,
	ids ids.Generator,
	cfg Config,
	logger *slog.Logger,
) *Coordinator {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	return &Coordinator{
		storage:  storage,
		sessions: sessions,
		notifier: notifier,
		clock:    clock,
		ids:      ids,
		limiter:  newSendLimiter(cfg.SendRate, cfg.SendBurst),
		ttl:      cfg.TTL,
		logger:   logger.With(slog.String("component", "challenge-coordinator")),
	}
}

// Send creates a pending challenge from challenger to challenged
func (c *Coordinator) Send(ctx context.Context, challenger, challenged model.UserID) (*model.ResolvedChallenge, error) {
	if challenger == challenged {
		return nil, fmt.Errorf("%w: cannot challenge yourself", model.ErrInvalidTarget)
	}

	challengedUser, err := c.storage.GetUser(ctx, challenged)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: unknown user %s", model.ErrInvalidTarget, challenged)
		}
		return nil, err
	}
	challengerUser, err := c.storage.GetUser(ctx, challenger)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	if !c.limiter.allow(challenger, now) {
		return nil, model.ErrRateLimited
	}

	challenge := &model.Challenge{
		ID:         model.ChallengeID(c.ids.NewID()),
		Challenger: challenger,
		Challenged: challenged,
		Status:     model.ChallengePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = c.storage.CreateChallenge(ctx, challenge)
	if errors.Is(err, model.ErrDuplicateChallenge) {
		// The blocking challenge may be past its TTL without having been swept yet
		expired, expireErr := c.expireStalePair(ctx, challenge)
		if expireErr != nil {
			return nil, expireErr
		}
		if expired {
			err = c.storage.CreateChallenge(ctx, challenge)
		}
	}
	if err != nil {
		return nil, err
	}

	c.logger.Info("challenge sent",
		slog.String("challenge_id", string(challenge.ID)),
		slog.String("challenger", string(challenger)),
		slog.String("challenged", string(challenged)),
	)

	resolved := &model.ResolvedChallenge{
		Challenge:  challenge,
		Challenger: challengerUser,
		Challenged: challengedUser,
	}
	c.notifier.Notify(challenged, model.Event{
		Type:      model.EventChallengeReceived,
		Timestamp: now,
		Payload:   model.ChallengeReceivedPayload{Challenge: *resolved},
	})
	return resolved, nil
}

// expireStalePair expires a pending challenge between the same pair if its
// TTL has passed. Returns true if one was expired.
func (c *Coordinator) expireStalePair(ctx context.Context, challenge *model.Challenge) (bool, error) {
	existing, err := c.storage.ListChallengesForUser(ctx, challenge.Challenger)
	if err != nil {
		return false, err
	}
	now := c.clock.Now()
	pair := challenge.PairKey()
	for _, other := range existing {
		if other.PairKey() != pair || !other.IsExpired(now, c.ttl) {
			continue
		}
		if _, err := c.expire(ctx, other, now); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// expire transitions a pending challenge to expired and refreshes challenge
// with the stored record. Losing the race to another transition is not an
// error; challenge then reflects whatever status won and false is returned.
func (c *Coordinator) expire(ctx context.Context, challenge *model.Challenge, now time.Time) (bool, error) {
	expired, err := c.storage.TransitionChallenge(ctx, challenge.ID, model.ChallengePending, model.ChallengeExpired, "", now)
	if err == nil {
		*challenge = *expired
		c.logger.Info("challenge expired", slog.String("challenge_id", string(challenge.ID)))
		return true, nil
	}
	if !errors.Is(err, model.ErrChallengeAlreadyResolved) {
		return false, err
	}

	current, err := c.storage.GetChallenge(ctx, challenge.ID)
	if errors.Is(err, model.ErrChallengeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	*challenge = *current
	return false, nil
}

// ListPending returns live pending challenges addressed to the user, newest first
func (c *Coordinator) ListPending(ctx context.Context, userID model.UserID) ([]*model.ResolvedChallenge, error) {
	all, err := c.storage.ListChallengesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	pending := make([]*model.Challenge, 0, len(all))
	for _, ch := range all {
		if ch.Challenged != userID || !ch.IsPending() {
			continue
		}
		if ch.IsExpired(now, c.ttl) {
			if _, err := c.expire(ctx, ch, now); err != nil {
				return nil, err
			}
			continue
		}
		pending = append(pending, ch)
	}
	sortNewestFirst(pending)

	users := newUserCache(c.storage)
	result := make([]*model.ResolvedChallenge, 0, len(pending))
	for _, ch := range pending {
		resolved, err := c.resolve(ctx, users, ch, false)
		if err != nil {
			return nil, err
		}
		result = append(result, resolved)
	}
	return result, nil
}

// checkAddressedTo loads a challenge and verifies the caller may act on it
func (c *Coordinator) checkAddressedTo(ctx context.Context, id model.ChallengeID, userID model.UserID, now time.Time) (*model.Challenge, error) {
	ch, err := c.storage.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch.Challenged != userID {
		return nil, model.ErrChallengeNotFound
	}
	if !ch.IsPending() {
		return nil, model.ErrChallengeAlreadyResolved
	}
	if ch.IsExpired(now, c.ttl) {
		if _, err := c.expire(ctx, ch, now); err != nil {
			return nil, err
		}
		return nil, model.ErrChallengeAlreadyResolved
	}
	return ch, nil
}

// Accept resolves a pending challenge into a new game
func (c *Coordinator) Accept(ctx context.Context, id model.ChallengeID, acceptor model.UserID) (*model.ResolvedChallenge, error) {
	now := c.clock.Now()
	ch, err := c.checkAddressedTo(ctx, id, acceptor, now)
	if err != nil {
		return nil, err
	}

	// The game id is only published once the challenge CAS below succeeds,
	// and game listings only count finished games, so a losing racer's
	// game is never observable before it is deleted
	game := model.NewGame(model.GameID(c.ids.NewID()), ch.Challenger, ch.Challenged, now)
	if err := c.storage.CreateGame(ctx, game); err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}

	accepted, err := c.storage.TransitionChallenge(ctx, id, model.ChallengePending, model.ChallengeAccepted, game.ID, now)
	if err != nil {
		// Lost the race to a concurrent accept/decline/expire: undo the game
		if delErr := c.storage.DeleteGame(ctx, game.ID); delErr != nil {
			c.logger.Error("failed to delete orphaned game",
				slog.String("game_id", string(game.ID)),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, err
	}
	c.sessions.Register(game)

	c.logger.Info("challenge accepted",
		slog.String("challenge_id", string(id)),
		slog.String("game_id", string(game.ID)),
	)

	resolved, err := c.resolve(ctx, newUserCache(c.storage), accepted, false)
	if err != nil {
		return nil, err
	}
	resolved.Game = game

	start := model.Event{
		Type:      model.EventGameStart,
		Timestamp: now,
		Payload:   model.GameStartPayload{GameID: game.ID},
	}
	c.notifier.Notify(accepted.Challenger, start)
	c.notifier.Notify(accepted.Challenged, start)
	c.notifier.Notify(accepted.Challenger, model.Event{
		Type:      model.EventChallengeAccepted,
		Timestamp: now,
		Payload:   model.ChallengeAcceptedPayload{Challenge: *resolved, GameID: game.ID},
	})
	return resolved, nil
}

// Decline resolves a pending challenge without a game
func (c *Coordinator) Decline(ctx context.Context, id model.ChallengeID, decliner model.UserID) (*model.ResolvedChallenge, error) {
	now := c.clock.Now()
	if _, err := c.checkAddressedTo(ctx, id, decliner, now); err != nil {
		return nil, err
	}

	declined, err := c.storage.TransitionChallenge(ctx, id, model.ChallengePending, model.ChallengeDeclined, "", now)
	if err != nil {
		return nil, err
	}

	c.logger.Info("challenge declined", slog.String("challenge_id", string(id)))

	resolved, err := c.resolve(ctx, newUserCache(c.storage), declined, false)
	if err != nil {
		return nil, err
	}
	c.notifier.Notify(declined.Challenger, model.Event{
		Type:      model.EventChallengeDeclined,
		Timestamp: now,
		Payload:   model.ChallengeDeclinedPayload{Challenge: *resolved, Challenged: resolved.Challenged},
	})
	return resolved, nil
}

// History returns resolved (non-pending) challenges involving the user, newest first
func (c *Coordinator) History(ctx context.Context, userID model.UserID) ([]*model.ResolvedChallenge, error) {
	all, err := c.storage.ListChallengesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	done := make([]*model.Challenge, 0, len(all))
	for _, ch := range all {
		if ch.IsExpired(now, c.ttl) {
			if _, err := c.expire(ctx, ch, now); err != nil {
				return nil, err
			}
		}
		if !ch.IsPending() {
			done = append(done, ch)
		}
	}
	sortNewestFirst(done)

	users := newUserCache(c.storage)
	result := make([]*model.ResolvedChallenge, 0, len(done))
	for _, ch := range done {
		resolved, err := c.resolve(ctx, users, ch, true)
		if err != nil {
			return nil, err
		}
		result = append(result, resolved)
	}
	return result, nil
}

// ExpireStale expires every pending challenge past its TTL and returns how many
func (c *Coordinator) ExpireStale(ctx context.Context) (int, error) {
	pending, err := c.storage.ListPendingChallenges(ctx)
	if err != nil {
		return 0, err
	}

	now := c.clock.Now()
	count := 0
	for _, ch := range pending {
		if !ch.IsExpired(now, c.ttl) {
			continue
		}
		expired, err := c.expire(ctx, ch, now)
		if err != nil {
			return count, err
		}
		if expired {
			count++
		}
	}
	return count, nil
}

// RunExpirySweeper calls ExpireStale every interval until ctx is done
func (c *Coordinator) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("expiry sweeper started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			count, err := c.ExpireStale(ctx)
			if err != nil {
				c.logger.Error("expiry sweep failed", slog.String("error", err.Error()))
				continue
			}
			if count > 0 {
				c.logger.Info("expired stale challenges", slog.Int("count", count))
			}
		}
	}
}

// resolve loads the profiles (and optionally the game) for a challenge
func (c *Coordinator) resolve(ctx context.Context, users *userCache, ch *model.Challenge, withGame bool) (*model.ResolvedChallenge, error) {
	challenger, err := users.get(ctx, ch.Challenger)
	if err != nil {
		return nil, fmt.Errorf("resolve challenger: %w", err)
	}
	challenged, err := users.get(ctx, ch.Challenged)
	if err != nil {
		return nil, fmt.Errorf("resolve challenged: %w", err)
	}
	resolved := &model.ResolvedChallenge{Challenge: ch, Challenger: challenger, Challenged: challenged}

	if withGame && ch.GameID != "" {
		game, err := c.storage.GetGame(ctx, ch.GameID)
		if err != nil && !errors.Is(err, model.ErrGameNotFound) {
			return nil, err
		}
		resolved.Game = game
	}
	return resolved, nil
}

func sortNewestFirst(list []*model.Challenge) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
}

// userCache avoids reloading the same profile while resolving a list
type userCache struct {
	storage storage.Storage
	users   map[model.UserID]*model.User
}

func newUserCache(storage storage.Storage) *userCache {
	return &userCache{storage: storage, users: make(map[model.UserID]*model.User)}
}

func (u *userCache) get(ctx context.Context, id model.UserID) (*model.User, error) {
	if user, ok := u.users[id]; ok {
		return user, nil
	}
	user, err := u.storage.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	u.users[id] = user
	return user, nil
}
