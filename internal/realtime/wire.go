package realtime

import (
	"fmt"
	"time"

	"github.com/mcoot/noughts/internal/model"
)

// UserView is a user's public profile on the wire
type UserView struct {
	ID        string    `json:"id"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUserView converts a model.User
func NewUserView(u *model.User) UserView {
	return UserView{
		ID:        string(u.ID),
		FullName:  u.FullName,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func userRef(u *model.User) *UserView {
	if u == nil {
		return nil
	}
	v := NewUserView(u)
	return &v
}

// GameSummaryView is the short form of a game linked from a challenge
type GameSummaryView struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Result *string `json:"result"`
	Winner *string `json:"winner"`
}

// ChallengeView is a challenge with both participants populated
type ChallengeView struct {
	ID         string           `json:"id"`
	Challenger *UserView        `json:"challenger"`
	Challenged *UserView        `json:"challenged"`
	Status     string           `json:"status"`
	GameID     *string          `json:"gameId"`
	Game       *GameSummaryView `json:"game,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// NewChallengeView converts a model.ResolvedChallenge
func NewChallengeView(rc *model.ResolvedChallenge) ChallengeView {
	c := rc.Challenge
	v := ChallengeView{
		ID:         string(c.ID),
		Challenger: userRef(rc.Challenger),
		Challenged: userRef(rc.Challenged),
		Status:     string(c.Status),
		GameID:     optional(string(c.GameID)),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
	if rc.Game != nil {
		v.Game = &GameSummaryView{
			ID:     string(rc.Game.ID),
			Status: string(rc.Game.Status),
			Result: optional(string(rc.Game.Result)),
			Winner: optional(string(rc.Game.Winner)),
		}
	}
	return v
}

// MoveView is a single placement on the wire
type MoveView struct {
	Player    string    `json:"player"`
	Position  int       `json:"position"`
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
}

// GameView is a game with player profiles populated
type GameView struct {
	ID            string     `json:"id"`
	PlayerX       *UserView  `json:"playerX"`
	PlayerO       *UserView  `json:"playerO"`
	Board         []string   `json:"board"`
	CurrentPlayer string     `json:"currentPlayer"`
	Status        string     `json:"status"`
	Winner        *UserView  `json:"winner"`
	Result        *string    `json:"result"`
	Moves         []MoveView `json:"moves"`
	StartedAt     time.Time  `json:"startedAt"`
	FinishedAt    *time.Time `json:"finishedAt"`
}

// NewGameView converts a model.ResolvedGame
func NewGameView(rg *model.ResolvedGame) GameView {
	g := rg.Game
	board := make([]string, len(g.Board))
	for i, s := range g.Board {
		board[i] = string(s)
	}
	moves := make([]MoveView, len(g.Moves))
	for i, m := range g.Moves {
		moves[i] = MoveView{
			Player:    string(m.Player),
			Position:  m.Position,
			Symbol:    string(m.Symbol),
			Timestamp: m.Timestamp,
		}
	}
	return GameView{
		ID:            string(g.ID),
		PlayerX:       userRef(rg.PlayerX),
		PlayerO:       userRef(rg.PlayerO),
		Board:         board,
		CurrentPlayer: string(g.CurrentPlayer),
		Status:        string(g.Status),
		Winner:        userRef(rg.Winner),
		Result:        optional(string(g.Result)),
		Moves:         moves,
		StartedAt:     g.StartedAt,
		FinishedAt:    g.FinishedAt,
	}
}

// Event payloads

// ChallengeAcceptedEvent is the payload of challengeAccepted
type ChallengeAcceptedEvent struct {
	Challenge ChallengeView `json:"challenge"`
	GameID    string        `json:"gameId"`
}

// ChallengeDeclinedEvent is the payload of challengeDeclined
type ChallengeDeclinedEvent struct {
	Challenge  ChallengeView `json:"challenge"`
	Challenged *UserView     `json:"challenged"`
}

// GameStartEvent is the payload of gameStart
type GameStartEvent struct {
	GameID string `json:"gameId"`
}

// ErrorEvent is the payload of an error reply on a socket
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// eventPayload converts a model event payload to its wire form
func eventPayload(event model.Event) (any, error) {
	switch p := event.Payload.(type) {
	case model.OnlineUsersPayload:
		ids := make([]string, len(p.Users))
		for i, id := range p.Users {
			ids[i] = string(id)
		}
		return ids, nil
	case model.ChallengeReceivedPayload:
		return NewChallengeView(&p.Challenge), nil
	case model.ChallengeAcceptedPayload:
		return ChallengeAcceptedEvent{Challenge: NewChallengeView(&p.Challenge), GameID: string(p.GameID)}, nil
	case model.ChallengeDeclinedPayload:
		return ChallengeDeclinedEvent{Challenge: NewChallengeView(&p.Challenge), Challenged: userRef(p.Challenged)}, nil
	case model.GameStartPayload:
		return GameStartEvent{GameID: string(p.GameID)}, nil
	case model.GameUpdatePayload:
		return NewGameView(&p.Game), nil
	case model.ErrorPayload:
		return ErrorEvent{Code: p.Code, Message: p.Message}, nil
	default:
		return nil, fmt.Errorf("unknown payload type %T for event %s", event.Payload, event.Type)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
