package model

import "time"

// GameID uniquely identifies a game
type GameID string

// GameStatus represents the current phase of a game
type GameStatus string

const (
	GameStatusWaiting    GameStatus = "waiting" // Unused: games start in progress
	GameStatusInProgress GameStatus = "in_progress"
	GameStatusFinished   GameStatus = "finished"
	GameStatusAbandoned  GameStatus = "abandoned"
)

// GameResult is the outcome of a finished game
type GameResult string

const (
	GameResultNone      GameResult = ""
	GameResultWin       GameResult = "win"
	GameResultDraw      GameResult = "draw"
	GameResultAbandoned GameResult = "abandoned"
)

// Move is an immutable record of a single placement
type Move struct {
	Player    UserID
	Position  int
	Symbol    Symbol
	Timestamp time.Time
}

// Game represents one match between two users
type Game struct {
	ID            GameID
	PlayerX       UserID
	PlayerO       UserID
	Board         Board
	CurrentPlayer Symbol
	Status        GameStatus
	Winner        UserID // Empty unless Result is win
	Result        GameResult
	Moves         []Move

	StartedAt  time.Time
	FinishedAt *time.Time

	// Version is bumped on every persisted write and used for compare-and-swap
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewGame creates an in-progress game with X to move
func NewGame(id GameID, playerX, playerO UserID, now time.Time) *Game {
	return &Game{
		ID:            id,
		PlayerX:       playerX,
		PlayerO:       playerO,
		CurrentPlayer: SymbolX,
		Status:        GameStatusInProgress,
		Moves:         []Move{},
		StartedAt:     now,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsPlayer returns true if the user is one of the two players
func (g *Game) IsPlayer(userID UserID) bool {
	return g.PlayerX == userID || g.PlayerO == userID
}

// SymbolFor returns the symbol the user plays with
func (g *Game) SymbolFor(userID UserID) (Symbol, bool) {
	switch userID {
	case g.PlayerX:
		return SymbolX, true
	case g.PlayerO:
		return SymbolO, true
	default:
		return SymbolEmpty, false
	}
}

// PlayerFor returns the user playing the given symbol
func (g *Game) PlayerFor(s Symbol) UserID {
	switch s {
	case SymbolX:
		return g.PlayerX
	case SymbolO:
		return g.PlayerO
	default:
		return ""
	}
}

// Players returns both player IDs, X first
func (g *Game) Players() []UserID {
	return []UserID{g.PlayerX, g.PlayerO}
}

// IsFinished returns true once no further moves are allowed
func (g *Game) IsFinished() bool {
	return g.Status == GameStatusFinished || g.Status == GameStatusAbandoned
}

// Clone returns a deep copy of the game
func (g *Game) Clone() *Game {
	cp := *g
	cp.Moves = make([]Move, len(g.Moves))
	copy(cp.Moves, g.Moves)
	if g.FinishedAt != nil {
		t := *g.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// GamePage is one page of a user's finished games
type GamePage struct {
	Games       []*ResolvedGame
	Total       int
	TotalPages  int
	CurrentPage int
}

// ResolvedGame is a game with the player profiles loaded
type ResolvedGame struct {
	Game    *Game
	PlayerX *User
	PlayerO *User
	Winner  *User // nil unless the game was won
}
