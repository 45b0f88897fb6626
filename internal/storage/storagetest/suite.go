// Package storagetest holds the behaviour every storage backend must share.
// Backend packages embed Suite in their own testify suite and set NewStorage.
package storagetest

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/storage"
)

// Suite is a backend-agnostic storage test suite
type Suite struct {
	suite.Suite

	// NewStorage returns a fresh, empty backend for each test
	NewStorage func() storage.Storage

	Storage storage.Storage
	Ctx     context.Context
	Now     time.Time
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.NewStorage, "NewStorage must be set")
	s.Storage = s.NewStorage()
	s.Ctx = context.Background()
	s.Now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func (s *Suite) pending(id model.ChallengeID, from, to model.UserID) *model.Challenge {
	return &model.Challenge{
		ID:         id,
		Challenger: from,
		Challenged: to,
		Status:     model.ChallengePending,
		CreatedAt:  s.Now,
		UpdatedAt:  s.Now,
	}
}

// User tests

func (s *Suite) TestSaveAndGetUser() {
	user := &model.User{ID: "u1", FullName: "Alice Smith", Email: "alice@example.com", CreatedAt: s.Now}
	s.Require().NoError(s.Storage.SaveUser(s.Ctx, user))

	got, err := s.Storage.GetUser(s.Ctx, "u1")
	s.Require().NoError(err)
	s.Equal("Alice Smith", got.FullName)
	s.Equal("alice@example.com", got.Email)
	s.True(s.Now.Equal(got.CreatedAt))
}

func (s *Suite) TestGetUserNotFound() {
	_, err := s.Storage.GetUser(s.Ctx, "nobody")
	s.ErrorIs(err, model.ErrUserNotFound)
}

func (s *Suite) TestListUsers() {
	s.Require().NoError(s.Storage.SaveUser(s.Ctx, &model.User{ID: "u1", FullName: "Alice"}))
	s.Require().NoError(s.Storage.SaveUser(s.Ctx, &model.User{ID: "u2", FullName: "Bob"}))

	users, err := s.Storage.ListUsers(s.Ctx)
	s.Require().NoError(err)
	s.Len(users, 2)
}

func (s *Suite) TestCredentialsByEmailIsCaseInsensitive() {
	creds := &model.Credentials{UserID: "u1", Email: "alice@example.com", PasswordHash: "hash", CreatedAt: s.Now, UpdatedAt: s.Now}
	s.Require().NoError(s.Storage.SaveCredentials(s.Ctx, creds))

	got, err := s.Storage.GetCredentialsByEmail(s.Ctx, "Alice@Example.com")
	s.Require().NoError(err)
	s.Equal(model.UserID("u1"), got.UserID)
	s.Equal("hash", got.PasswordHash)
}

func (s *Suite) TestCredentialsEmailTaken() {
	s.Require().NoError(s.Storage.SaveCredentials(s.Ctx, &model.Credentials{UserID: "u1", Email: "a@example.com"}))

	err := s.Storage.SaveCredentials(s.Ctx, &model.Credentials{UserID: "u2", Email: "a@example.com"})
	s.ErrorIs(err, model.ErrEmailTaken)
}

func (s *Suite) TestCredentialsNotFound() {
	_, err := s.Storage.GetCredentialsByEmail(s.Ctx, "nobody@example.com")
	s.ErrorIs(err, model.ErrUserNotFound)
}

// Challenge tests

func (s *Suite) TestCreateAndGetChallenge() {
	s.Require().NoError(s.Storage.CreateChallenge(s.Ctx, s.pending("c1", "a", "b")))

	got, err := s.Storage.GetChallenge(s.Ctx, "c1")
	s.Require().NoError(err)
	s.Equal(model.UserID("a"), got.Challenger)
	s.Equal(model.UserID("b"), got.Challenged)
	s.Equal(model.ChallengePending, got.Status)
	s.Empty(got.GameID)
}

func (s *Suite) TestGetChallengeNotFound() {
	_, err := s.Storage.GetChallenge(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrChallengeNotFound)
}

func (s *Suite) TestDuplicatePendingChallengeSameDirection() {
	s.Require().NoError(s.Storage.CreateChallenge(s.Ctx, s.pending("c1", "a", "b")))

	err := s.Storage.CreateChallenge(s.Ctx, s.pending("c2", "a", "b"))
	s.ErrorIs(err, model.ErrDuplicateChallenge)
}

func (s *Suite) TestDuplicatePendingChallengeReverseDirection() {
	s.Require().NoError(s.Storage.CreateChallenge(s.Ctx, s.pending("c1", "a", "b")))

	err := s.Storage.CreateChallenge(s.Ctx, s.pending("c2", "b", "a"))
	s.ErrorIs(err, model.ErrDuplicateChallenge)

	_, err = s.Storage.GetChallenge(s.Ctx, "c2")
	s.ErrorIs(err, model.ErrChallengeNotFound)
}

func (s *Suite) TestNewChallengeAllowedAfterResolution() {
	s.Require().NoError(s.Storage.CreateChallenge(s.Ctx, s.pending("c1", "a", "b")))
	_, err := s.Storage.TransitionChallenge(s.Ctx, "c1", model.ChallengePending, model.ChallengeDeclined, "", s.Now)
	s.Require().NoError(err)

	s.NoError(s.Storage.CreateChallenge(s.Ctx, s.pending("c2", "b", "a")))
}

func (s *Suite) TestConcurrentCreateOnlyOneWins() {
	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := model.UserID("a"), model.UserID("b")
			if i%2 == 1 {
				from, to = to, from
			}
			errs[i] = s.Storage.CreateChallenge(s.Ctx, s.pending(model.ChallengeID("c"+string(rune('0'+i))), from, to))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.ErrorIs(err, model.ErrDuplicateChallenge)
		}
	}
	s.Equal(1, succeeded)
	pending, err := s.Storage.ListPendingChallenges(s.Ctx)
	s.Require().NoError(err)
	s.Len(pending, 1)
}

func (s *Suite) TestTransitionChallenge() {
	s.Require().NoError(s.Storage.CreateChallenge(s.Ctx, s.pending("c1", "a", "b")))
	later := s.Now.Add(time.Minute)

	got, err := s.Storage.TransitionChallenge(s.Ctx, "c1", model.ChallengePending, model.ChallengeAccepted, "g1", later)
	s.Require().NoError(err)
	s.Equal(model.ChallengeAccepted, got.Status)
	s.Equal(model.GameID("g1"), got.GameID)
	s.True(later.Equal(got.UpdatedAt))

	stored, err := s.Storage.GetChallenge(s.Ctx, "c1")
	s.Require().NoError(err)
	s.Equal(model.ChallengeAccepted, stored.Status)
	s.Equal(model.GameID("g1"), stored.GameID)
}

func (s *Suite) TestTransitionChallengeFromWrongStatus() {
	s.Require().NoError(s.Storage.CreateChallenge(s.Ctx, s.pending("c1", "a", "b")))
	_, err := s.Storage.TransitionChallenge(s.Ctx, "c1", model.ChallengePending, model.ChallengeDeclined, "", s.Now)
	s.Require().NoError(err)

	_, err = s.Storage.TransitionChallenge(s.Ctx, "c1", model.ChallengePending, model.ChallengeAccepted, "g1", s.Now)
	s.ErrorIs(err, model.ErrChallengeAlreadyResolved)

	stored, err := s.Storage.GetChallenge(s.Ctx, "c1")
	s.Require().NoError(err)
	s.Equal(model.ChallengeDeclined, stored.Status)
	s.Empty(stored.GameID)
}

func (s *Suite) TestTransitionChallengeNotFound() {
	_, err := s.Storage.TransitionChallenge(s.Ctx, "missing", model.ChallengePending, model.ChallengeAccepted, "", s.Now)
	s.ErrorIs(err, model.ErrChallengeNotFound)
}

func (s *Suite) TestConcurrentTransitionOnlyOneWins() {
	s.Require().NoError(s.Storage.CreateChallenge(s.Ctx, s.pending("c1", "a", "b")))

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := model.ChallengeAccepted
			if i%2 == 1 {
				to = model.ChallengeDeclined
			}
			_, errs[i] = s.Storage.TransitionChallenge(s.Ctx, "c1", model.ChallengePending, to, "", s.Now)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.ErrorIs(err, model.ErrChallengeAlreadyResolved)
		}
	}
	s.Equal(1, succeeded)
}

func (s *Suite) TestListChallengesForUser() {
	s.Require().NoError(s.Storage.CreateChallenge(s.Ctx, s.pending("c1", "a", "b")))
	s.Require().NoError(s.Storage.CreateChallenge(s.Ctx, s.pending("c2", "c", "a")))
	s.Require().NoError(s.Storage.CreateChallenge(s.Ctx, s.pending("c3", "b", "c")))

	list, err := s.Storage.ListChallengesForUser(s.Ctx, "a")
	s.Require().NoError(err)
	s.ElementsMatch([]model.ChallengeID{"c1", "c2"}, challengeIDs(list))
}

func (s *Suite) TestListPendingChallenges() {
	s.Require().NoError(s.Storage.CreateChallenge(s.Ctx, s.pending("c1", "a", "b")))
	s.Require().NoError(s.Storage.CreateChallenge(s.Ctx, s.pending("c2", "c", "a")))
	_, err := s.Storage.TransitionChallenge(s.Ctx, "c1", model.ChallengePending, model.ChallengeExpired, "", s.Now)
	s.Require().NoError(err)

	list, err := s.Storage.ListPendingChallenges(s.Ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]model.ChallengeID{"c2"}, challengeIDs(list))
}

// Game tests

func (s *Suite) TestCreateAndGetGame() {
	game := model.NewGame("g1", "a", "b", s.Now)
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, game))

	got, err := s.Storage.GetGame(s.Ctx, "g1")
	s.Require().NoError(err)
	s.Equal(model.UserID("a"), got.PlayerX)
	s.Equal(model.UserID("b"), got.PlayerO)
	s.Equal(model.GameStatusInProgress, got.Status)
	s.Equal(model.SymbolX, got.CurrentPlayer)
	s.Equal(int64(1), got.Version)
	s.Equal(model.Board{}, got.Board)
	s.Nil(got.FinishedAt)
}

func (s *Suite) TestGetGameNotFound() {
	_, err := s.Storage.GetGame(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrGameNotFound)
}

func (s *Suite) TestReturnedGameIsACopy() {
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, model.NewGame("g1", "a", "b", s.Now)))

	got, err := s.Storage.GetGame(s.Ctx, "g1")
	s.Require().NoError(err)
	got.Board[0] = model.SymbolX

	again, err := s.Storage.GetGame(s.Ctx, "g1")
	s.Require().NoError(err)
	s.Equal(model.SymbolEmpty, again.Board[0])
}

func (s *Suite) TestUpdateGameBumpsVersion() {
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, model.NewGame("g1", "a", "b", s.Now)))

	game, err := s.Storage.GetGame(s.Ctx, "g1")
	s.Require().NoError(err)
	game.Board[4] = model.SymbolX
	game.CurrentPlayer = model.SymbolO
	game.Moves = append(game.Moves, model.Move{Player: "a", Position: 4, Symbol: model.SymbolX, Timestamp: s.Now})

	s.Require().NoError(s.Storage.UpdateGame(s.Ctx, game, 1))
	s.Equal(int64(2), game.Version)

	stored, err := s.Storage.GetGame(s.Ctx, "g1")
	s.Require().NoError(err)
	s.Equal(int64(2), stored.Version)
	s.Equal(model.SymbolX, stored.Board[4])
	s.Len(stored.Moves, 1)
}

func (s *Suite) TestUpdateGameVersionConflict() {
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, model.NewGame("g1", "a", "b", s.Now)))

	first, _ := s.Storage.GetGame(s.Ctx, "g1")
	second, _ := s.Storage.GetGame(s.Ctx, "g1")

	first.Board[0] = model.SymbolX
	s.Require().NoError(s.Storage.UpdateGame(s.Ctx, first, 1))

	second.Board[1] = model.SymbolX
	err := s.Storage.UpdateGame(s.Ctx, second, 1)
	s.ErrorIs(err, model.ErrVersionConflict)

	stored, _ := s.Storage.GetGame(s.Ctx, "g1")
	s.Equal(model.SymbolX, stored.Board[0])
	s.Equal(model.SymbolEmpty, stored.Board[1])
}

func (s *Suite) TestUpdateGameNotFound() {
	err := s.Storage.UpdateGame(s.Ctx, model.NewGame("missing", "a", "b", s.Now), 1)
	s.ErrorIs(err, model.ErrGameNotFound)
}

func (s *Suite) TestDeleteGame() {
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, model.NewGame("g1", "a", "b", s.Now)))
	s.Require().NoError(s.Storage.DeleteGame(s.Ctx, "g1"))

	_, err := s.Storage.GetGame(s.Ctx, "g1")
	s.ErrorIs(err, model.ErrGameNotFound)

	list, err := s.Storage.ListGamesForUser(s.Ctx, "a")
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *Suite) TestListGamesForUser() {
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, model.NewGame("g1", "a", "b", s.Now)))
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, model.NewGame("g2", "c", "a", s.Now)))
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, model.NewGame("g3", "b", "c", s.Now)))

	list, err := s.Storage.ListGamesForUser(s.Ctx, "a")
	s.Require().NoError(err)
	ids := make([]model.GameID, 0, len(list))
	for _, g := range list {
		ids = append(ids, g.ID)
	}
	s.ElementsMatch([]model.GameID{"g1", "g2"}, ids)
}

func (s *Suite) TestFinishedGameRoundTrip() {
	game := model.NewGame("g1", "a", "b", s.Now)
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, game))

	finished := s.Now.Add(time.Minute)
	game.Status = model.GameStatusFinished
	game.Result = model.GameResultWin
	game.Winner = "a"
	game.FinishedAt = &finished
	s.Require().NoError(s.Storage.UpdateGame(s.Ctx, game, 1))

	stored, err := s.Storage.GetGame(s.Ctx, "g1")
	s.Require().NoError(err)
	s.Equal(model.GameStatusFinished, stored.Status)
	s.Equal(model.GameResultWin, stored.Result)
	s.Equal(model.UserID("a"), stored.Winner)
	s.Require().NotNil(stored.FinishedAt)
	s.True(finished.Equal(*stored.FinishedAt))
}

// Session revocation tests

func (s *Suite) TestRevokeSession() {
	revoked, err := s.Storage.IsSessionRevoked(s.Ctx, "s1")
	s.Require().NoError(err)
	s.False(revoked)

	s.Require().NoError(s.Storage.RevokeSession(s.Ctx, "s1", s.Now.Add(time.Hour)))

	revoked, err = s.Storage.IsSessionRevoked(s.Ctx, "s1")
	s.Require().NoError(err)
	s.True(revoked)

	revoked, err = s.Storage.IsSessionRevoked(s.Ctx, "s2")
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *Suite) TestRevokeSessionTwice() {
	s.Require().NoError(s.Storage.RevokeSession(s.Ctx, "s1", s.Now.Add(time.Hour)))
	s.Require().NoError(s.Storage.RevokeSession(s.Ctx, "s1", s.Now.Add(time.Hour)))

	removed, err := s.Storage.PurgeRevokedSessions(s.Ctx, s.Now.Add(2*time.Hour))
	s.Require().NoError(err)
	s.Equal(1, removed)
}

func (s *Suite) TestPurgeRevokedSessionsKeepsUnexpired() {
	s.Require().NoError(s.Storage.RevokeSession(s.Ctx, "old", s.Now.Add(-time.Minute)))
	s.Require().NoError(s.Storage.RevokeSession(s.Ctx, "live", s.Now.Add(time.Hour)))

	removed, err := s.Storage.PurgeRevokedSessions(s.Ctx, s.Now)
	s.Require().NoError(err)
	s.Equal(1, removed)

	revoked, err := s.Storage.IsSessionRevoked(s.Ctx, "old")
	s.Require().NoError(err)
	s.False(revoked)
	revoked, err = s.Storage.IsSessionRevoked(s.Ctx, "live")
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *Suite) TestPing() {
	s.NoError(s.Storage.Ping(s.Ctx))
}

func challengeIDs(list []*model.Challenge) []model.ChallengeID {
	ids := make([]model.ChallengeID, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	return ids
}
