package response

import (
	"time"

	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/realtime"
	"github.com/mcoot/noughts/internal/services/auth"
	"github.com/mcoot/noughts/internal/services/users"
)

// Views shared with the event stream
type (
	User                   = realtime.UserView
	Challenge              = realtime.ChallengeView
	Game                   = realtime.GameView
	ChallengeAcceptedEvent = realtime.ChallengeAcceptedEvent
	GameStartEvent         = realtime.GameStartEvent
	ErrorEvent             = realtime.ErrorEvent
)

// UserFromModel converts a model.User to a response User
func UserFromModel(u *model.User) User {
	return realtime.NewUserView(u)
}

// AuthResponse is the response for signup and login
type AuthResponse struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthResponseFromSession creates an AuthResponse from a session
func AuthResponseFromSession(s *auth.Session, u *model.User) AuthResponse {
	return AuthResponse{
		User:      UserFromModel(u),
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
	}
}

// UserListing is another user annotated with presence
type UserListing struct {
	User
	Online bool `json:"online"`
}

// UserListingsFromService converts user directory listings
func UserListingsFromService(listings []users.Listing) []UserListing {
	result := make([]UserListing, len(listings))
	for i, l := range listings {
		result[i] = UserListing{User: UserFromModel(l.User), Online: l.Online}
	}
	return result
}

// UserStats summarises a user's finished games
type UserStats struct {
	GamesPlayed int     `json:"gamesPlayed"`
	Wins        int     `json:"wins"`
	Draws       int     `json:"draws"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"winRate"`
}

// UserStatsFromModel converts model.UserStats
func UserStatsFromModel(s *model.UserStats) UserStats {
	return UserStats{
		GamesPlayed: s.GamesPlayed,
		Wins:        s.Wins,
		Draws:       s.Draws,
		Losses:      s.Losses,
		WinRate:     s.WinRate,
	}
}

// ChallengeFromModel converts a model.ResolvedChallenge
func ChallengeFromModel(rc *model.ResolvedChallenge) Challenge {
	return realtime.NewChallengeView(rc)
}

// ChallengesFromModel converts a list of challenges
func ChallengesFromModel(list []*model.ResolvedChallenge) []Challenge {
	result := make([]Challenge, len(list))
	for i, rc := range list {
		result[i] = ChallengeFromModel(rc)
	}
	return result
}

// GameFromModel converts a model.ResolvedGame
func GameFromModel(rg *model.ResolvedGame) Game {
	return realtime.NewGameView(rg)
}

// GamePage is one page of finished games
type GamePage struct {
	Games       []Game `json:"games"`
	Total       int    `json:"total"`
	TotalPages  int    `json:"totalPages"`
	CurrentPage int    `json:"currentPage"`
}

// GamePageFromModel converts model.GamePage
func GamePageFromModel(p *model.GamePage) GamePage {
	games := make([]Game, len(p.Games))
	for i, g := range p.Games {
		games[i] = GameFromModel(g)
	}
	return GamePage{
		Games:       games,
		Total:       p.Total,
		TotalPages:  p.TotalPages,
		CurrentPage: p.CurrentPage,
	}
}

// Health is the response of the health endpoint
type Health struct {
	Status      string `json:"status"`
	Storage     string `json:"storage"`
	Connections int    `json:"connections"`
}
