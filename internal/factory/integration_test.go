package factory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/realtime"
	"github.com/mcoot/noughts/internal/services/auth"
)

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp()
	s.ctx = context.Background()
}

func (s *IntegrationSuite) TearDownTest() {
	s.Require().NoError(s.app.Close())
}

func (s *IntegrationSuite) signup(email, name string) *model.User {
	_, user, err := s.app.AuthService.Signup(s.ctx, email, name, "password123")
	s.Require().NoError(err)
	return user
}

func (s *IntegrationSuite) connect(user *model.User) *realtime.Conn {
	conn := realtime.NewConn("conn-"+string(user.ID), user.ID, "test", s.app.MockClock.Now())
	s.app.Registry.Register(conn)
	return conn
}

// received drains the connection and returns the event types it was sent
func received(conn *realtime.Conn) []model.EventType {
	var types []model.EventType
	for {
		select {
		case msg := <-conn.Messages():
			types = append(types, msg.Type)
		default:
			return types
		}
	}
}

// Test: Complete flow from signup through a challenge to a won game
func (s *IntegrationSuite) TestCompleteGameFlow() {
	alice := s.signup("alice@example.com", "Alice")
	bob := s.signup("bob@example.com", "Bob")

	aliceConn := s.connect(alice)
	bobConn := s.connect(bob)
	received(aliceConn)
	received(bobConn)

	// Step 1: Both users see each other online
	listing, err := s.app.UserService.ListOthers(s.ctx, alice.ID)
	s.Require().NoError(err)
	s.Require().Len(listing, 1)
	s.Equal(bob.ID, listing[0].User.ID)
	s.True(listing[0].Online)

	// Step 2: Alice challenges Bob
	s.app.MockClock.Advance(time.Second)
	sent, err := s.app.ChallengeCoordinator.Send(s.ctx, alice.ID, bob.ID)
	s.Require().NoError(err)
	s.Equal(model.ChallengePending, sent.Challenge.Status)
	s.Equal([]model.EventType{model.EventChallengeReceived}, received(bobConn))
	s.Empty(received(aliceConn))

	pending, err := s.app.ChallengeCoordinator.ListPending(s.ctx, bob.ID)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(sent.Challenge.ID, pending[0].Challenge.ID)

	// Step 3: Bob accepts; both get gameStart, Alice also challengeAccepted
	accepted, err := s.app.ChallengeCoordinator.Accept(s.ctx, sent.Challenge.ID, bob.ID)
	s.Require().NoError(err)
	s.Require().NotNil(accepted.Game)
	gameID := accepted.Game.ID
	s.Equal(alice.ID, accepted.Game.PlayerX)
	s.Equal(bob.ID, accepted.Game.PlayerO)
	s.Equal([]model.EventType{model.EventGameStart, model.EventChallengeAccepted}, received(aliceConn))
	s.Equal([]model.EventType{model.EventGameStart}, received(bobConn))

	// Step 4: Play until X completes the top row
	moves := []struct {
		player   model.UserID
		position int
	}{
		{alice.ID, 0},
		{bob.ID, 3},
		{alice.ID, 1},
		{bob.ID, 4},
		{alice.ID, 2},
	}
	var last *model.ResolvedGame
	for _, m := range moves {
		s.app.MockClock.Advance(time.Second)
		last, err = s.app.GameController.ApplyMove(s.ctx, gameID, m.player, m.position)
		s.Require().NoError(err)
	}
	s.Equal(model.GameStatusFinished, last.Game.Status)
	s.Equal(model.GameResultWin, last.Game.Result)
	s.Equal(alice.ID, last.Game.Winner)
	s.Require().NotNil(last.Winner)
	s.Equal("Alice", last.Winner.FullName)
	s.Len(last.Game.Moves, 5)

	// Every move was fanned out to both players
	s.Len(received(aliceConn), len(moves))
	s.Len(received(bobConn), len(moves))

	// Step 5: No more moves once finished
	_, err = s.app.GameController.ApplyMove(s.ctx, gameID, bob.ID, 5)
	s.ErrorIs(err, model.ErrNotInProgress)

	// Step 6: Stats and history reflect the result
	aliceStats, err := s.app.UserService.Stats(s.ctx, alice.ID)
	s.Require().NoError(err)
	s.Equal(1, aliceStats.GamesPlayed)
	s.Equal(1, aliceStats.Wins)
	s.Equal(100.0, aliceStats.WinRate)

	bobStats, err := s.app.UserService.Stats(s.ctx, bob.ID)
	s.Require().NoError(err)
	s.Equal(1, bobStats.Losses)
	s.Equal(0.0, bobStats.WinRate)

	page, err := s.app.GameController.History(s.ctx, bob.ID, 1, 10)
	s.Require().NoError(err)
	s.Equal(1, page.Total)
	s.Require().Len(page.Games, 1)
	s.Equal(gameID, page.Games[0].Game.ID)

	history, err := s.app.ChallengeCoordinator.History(s.ctx, alice.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(model.ChallengeAccepted, history[0].Challenge.Status)
	s.Equal(gameID, history[0].Challenge.GameID)
}

// Test: Moves out of turn and by outsiders are rejected without changing the game
func (s *IntegrationSuite) TestMoveValidation() {
	alice := s.signup("alice@example.com", "Alice")
	bob := s.signup("bob@example.com", "Bob")
	carol := s.signup("carol@example.com", "Carol")

	sent, err := s.app.ChallengeCoordinator.Send(s.ctx, alice.ID, bob.ID)
	s.Require().NoError(err)
	accepted, err := s.app.ChallengeCoordinator.Accept(s.ctx, sent.Challenge.ID, bob.ID)
	s.Require().NoError(err)
	gameID := accepted.Game.ID

	_, err = s.app.GameController.ApplyMove(s.ctx, gameID, bob.ID, 0)
	s.ErrorIs(err, model.ErrWrongTurn)

	_, err = s.app.GameController.ApplyMove(s.ctx, gameID, carol.ID, 0)
	s.ErrorIs(err, model.ErrForbidden)

	_, err = s.app.GameController.ApplyMove(s.ctx, gameID, alice.ID, 9)
	s.ErrorIs(err, model.ErrInvalidPosition)

	_, err = s.app.GameController.ApplyMove(s.ctx, gameID, alice.ID, 4)
	s.Require().NoError(err)
	_, err = s.app.GameController.ApplyMove(s.ctx, gameID, bob.ID, 4)
	s.ErrorIs(err, model.ErrInvalidPosition)

	game, err := s.app.GameController.Get(s.ctx, gameID, carol.ID)
	s.ErrorIs(err, model.ErrForbidden)
	s.Nil(game)

	game, err = s.app.GameController.Get(s.ctx, gameID, bob.ID)
	s.Require().NoError(err)
	s.Len(game.Game.Moves, 1)
	s.Equal(model.SymbolO, game.Game.CurrentPlayer)
}

// Test: A declined challenge frees the pair for a new one
func (s *IntegrationSuite) TestDeclineThenRechallenge() {
	alice := s.signup("alice@example.com", "Alice")
	bob := s.signup("bob@example.com", "Bob")
	aliceConn := s.connect(alice)
	received(aliceConn)

	sent, err := s.app.ChallengeCoordinator.Send(s.ctx, alice.ID, bob.ID)
	s.Require().NoError(err)

	_, err = s.app.ChallengeCoordinator.Send(s.ctx, bob.ID, alice.ID)
	s.ErrorIs(err, model.ErrDuplicateChallenge)

	declined, err := s.app.ChallengeCoordinator.Decline(s.ctx, sent.Challenge.ID, bob.ID)
	s.Require().NoError(err)
	s.Equal(model.ChallengeDeclined, declined.Challenge.Status)
	s.Equal([]model.EventType{model.EventChallengeDeclined}, received(aliceConn))

	_, err = s.app.ChallengeCoordinator.Accept(s.ctx, sent.Challenge.ID, bob.ID)
	s.ErrorIs(err, model.ErrChallengeAlreadyResolved)

	_, err = s.app.ChallengeCoordinator.Send(s.ctx, bob.ID, alice.ID)
	s.NoError(err)
}

// Test: Pending challenges expire after the TTL
func (s *IntegrationSuite) TestChallengeExpiry() {
	alice := s.signup("alice@example.com", "Alice")
	bob := s.signup("bob@example.com", "Bob")

	sent, err := s.app.ChallengeCoordinator.Send(s.ctx, alice.ID, bob.ID)
	s.Require().NoError(err)

	s.app.MockClock.Advance(model.DefaultChallengeTTL)

	pending, err := s.app.ChallengeCoordinator.ListPending(s.ctx, bob.ID)
	s.Require().NoError(err)
	s.Empty(pending)

	_, err = s.app.ChallengeCoordinator.Accept(s.ctx, sent.Challenge.ID, bob.ID)
	s.ErrorIs(err, model.ErrChallengeAlreadyResolved)
}

// Test: Signing in again from elsewhere supersedes the old connection
func (s *IntegrationSuite) TestSupersededConnection() {
	alice := s.signup("alice@example.com", "Alice")
	first := s.connect(alice)
	second := realtime.NewConn("conn-alice-2", alice.ID, "test", s.app.MockClock.Now())
	s.app.Registry.Register(second)

	s.True(first.IsClosed())
	s.False(second.IsClosed())
	s.False(s.app.Registry.Unregister(first))
	s.True(s.app.Registry.IsOnline(alice.ID))
}

// Test: Sessions are rejected after logout
func (s *IntegrationSuite) TestLogout() {
	session, _, err := s.app.AuthService.Signup(s.ctx, "alice@example.com", "Alice", "password123")
	s.Require().NoError(err)

	user, err := s.app.AuthService.GetUser(s.ctx, session.Token)
	s.Require().NoError(err)
	s.Equal("alice@example.com", user.Email)

	s.Require().NoError(s.app.AuthService.InvalidateSession(s.ctx, session.Token))
	_, err = s.app.AuthService.GetUser(s.ctx, session.Token)
	s.ErrorIs(err, auth.ErrInvalidSession)
}

func TestNewSelectsStorage(t *testing.T) {
	s := new(suite.Suite)
	s.SetT(t)

	app, err := New(Config{})
	s.Require().NoError(err)
	s.Equal(StorageTypeMemory, app.StorageType)
	s.NoError(app.Close())

	dir := t.TempDir()
	app, err = New(Config{StorageType: StorageTypeSQLite, SQLitePath: dir + "/noughts.db"})
	s.Require().NoError(err)
	s.Equal(StorageTypeSQLite, app.StorageType)
	s.NoError(app.Close())

	app, err = New(Config{StorageType: StorageTypeBolt, BoltPath: dir + "/noughts.bolt"})
	s.Require().NoError(err)
	s.NoError(app.Close())

	_, err = New(Config{StorageType: StorageTypeRedis})
	s.Error(err)

	_, err = New(Config{StorageType: "mongo"})
	s.Error(err)
}

func TestLogoutSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	cases := []Config{
		{StorageType: StorageTypeSQLite, SQLitePath: dir + "/noughts.db"},
		{StorageType: StorageTypeBolt, BoltPath: dir + "/noughts.bolt"},
	}
	for _, cfg := range cases {
		t.Run(cfg.StorageType, func(t *testing.T) {
			s := new(suite.Suite)
			s.SetT(t)
			ctx := context.Background()
			cfg.AuthConfig = auth.Config{Secret: []byte("restart-secret")}

			app, err := New(cfg)
			s.Require().NoError(err)
			revoked, _, err := app.AuthService.Signup(ctx, "alice@example.com", "Alice", "password123")
			s.Require().NoError(err)
			kept, _, err := app.AuthService.Login(ctx, "alice@example.com", "password123")
			s.Require().NoError(err)
			s.Require().NoError(app.AuthService.InvalidateSession(ctx, revoked.Token))
			s.Require().NoError(app.Close())

			app, err = New(cfg)
			s.Require().NoError(err)
			defer app.Close()

			_, err = app.AuthService.ValidateSession(ctx, revoked.Token)
			s.ErrorIs(err, auth.ErrInvalidSession)
			_, err = app.AuthService.ValidateSession(ctx, kept.Token)
			s.NoError(err)
		})
	}
}
