package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Println(string(data))
	} else {
		fmt.Println(msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case User:
		o.printUser(v)
	case AuthResult:
		o.printAuthResult(v)
	case UserList:
		o.printUserList(v)
	case Stats:
		o.printStats(v)
	case Challenge:
		o.printChallenge(v)
	case ChallengeList:
		o.printChallengeList(v)
	case Game:
		o.printGame(v)
	case GamePage:
		o.printGamePage(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// User response type (matches API)
type User struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// AuthResult combines user and token
type AuthResult struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// UserListing is a user with presence
type UserListing struct {
	User
	Online bool `json:"online"`
}

// UserList response type
type UserList []UserListing

// Stats response type
type Stats struct {
	GamesPlayed int     `json:"gamesPlayed"`
	Wins        int     `json:"wins"`
	Draws       int     `json:"draws"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"winRate"`
}

// Challenge response type
type Challenge struct {
	ID         string  `json:"id"`
	Challenger *User   `json:"challenger"`
	Challenged *User   `json:"challenged"`
	Status     string  `json:"status"`
	GameID     *string `json:"gameId"`
}

// ChallengeList response type
type ChallengeList []Challenge

// Game response type
type Game struct {
	ID            string   `json:"id"`
	PlayerX       *User    `json:"playerX"`
	PlayerO       *User    `json:"playerO"`
	Board         []string `json:"board"`
	CurrentPlayer string   `json:"currentPlayer"`
	Status        string   `json:"status"`
	Winner        *User    `json:"winner"`
	Result        *string  `json:"result"`
}

// GamePage response type
type GamePage struct {
	Games       []Game `json:"games"`
	Total       int    `json:"total"`
	TotalPages  int    `json:"totalPages"`
	CurrentPage int    `json:"currentPage"`
}

// HealthResult response type
type HealthResult struct {
	Status      string `json:"status"`
	Storage     string `json:"storage"`
	Connections int    `json:"connections"`
}

func userName(u *User) string {
	if u == nil {
		return "?"
	}
	return fmt.Sprintf("%s (%s)", u.FullName, u.ID)
}

func (o *Output) printUser(u User) {
	fmt.Printf("User: %s (%s)\n", u.FullName, u.ID)
	fmt.Printf("Email: %s\n", u.Email)
}

func (o *Output) printAuthResult(a AuthResult) {
	o.printUser(a.User)
	fmt.Printf("Token: %s\n", a.Token)
}

func (o *Output) printUserList(l UserList) {
	if len(l) == 0 {
		fmt.Println("No other users")
		return
	}
	for _, u := range l {
		status := "offline"
		if u.Online {
			status = "online"
		}
		fmt.Printf("  %-7s %s (%s)\n", status, u.FullName, u.ID)
	}
}

func (o *Output) printStats(s Stats) {
	fmt.Printf("Games: %d\n", s.GamesPlayed)
	fmt.Printf("Wins: %d  Draws: %d  Losses: %d\n", s.Wins, s.Draws, s.Losses)
	fmt.Printf("Win rate: %.1f%%\n", s.WinRate)
}

func (o *Output) printChallenge(c Challenge) {
	fmt.Printf("Challenge: %s\n", c.ID)
	fmt.Printf("From: %s\n", userName(c.Challenger))
	fmt.Printf("To: %s\n", userName(c.Challenged))
	fmt.Printf("Status: %s\n", c.Status)
	if c.GameID != nil {
		fmt.Printf("Game: %s\n", *c.GameID)
	}
}

func (o *Output) printChallengeList(l ChallengeList) {
	if len(l) == 0 {
		fmt.Println("No challenges")
		return
	}
	for _, c := range l {
		line := fmt.Sprintf("  %s  %s -> %s  [%s]", c.ID, userName(c.Challenger), userName(c.Challenged), c.Status)
		if c.GameID != nil {
			line += " game " + *c.GameID
		}
		fmt.Println(line)
	}
}

func (o *Output) printGame(g Game) {
	fmt.Printf("Game: %s\n", g.ID)
	fmt.Printf("X: %s\n", userName(g.PlayerX))
	fmt.Printf("O: %s\n", userName(g.PlayerO))
	fmt.Printf("Status: %s\n", g.Status)
	if g.Status == "in_progress" {
		fmt.Printf("To move: %s\n", g.CurrentPlayer)
	}
	if g.Result != nil {
		if g.Winner != nil {
			fmt.Printf("Winner: %s\n", userName(g.Winner))
		} else {
			fmt.Printf("Result: %s\n", *g.Result)
		}
	}
	fmt.Println()
	o.printBoard(g.Board)
}

// printBoard renders the 3x3 grid, showing position numbers in empty cells
func (o *Output) printBoard(cells []string) {
	if len(cells) != 9 {
		return
	}
	for row := 0; row < 3; row++ {
		marks := make([]string, 3)
		for col := 0; col < 3; col++ {
			pos := row*3 + col
			if cells[pos] == "" {
				marks[col] = fmt.Sprintf("%d", pos)
			} else {
				marks[col] = cells[pos]
			}
		}
		fmt.Printf(" %s\n", strings.Join(marks, " | "))
		if row < 2 {
			fmt.Println("---+---+---")
		}
	}
}

func (o *Output) printGamePage(p GamePage) {
	fmt.Printf("Page %d of %d (%d games)\n", p.CurrentPage, p.TotalPages, p.Total)
	for _, g := range p.Games {
		result := "?"
		if g.Result != nil {
			result = *g.Result
		}
		if g.Winner != nil {
			result += " by " + g.Winner.FullName
		}
		fmt.Printf("  %s  %s vs %s  %s\n", g.ID, userName(g.PlayerX), userName(g.PlayerO), result)
	}
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Printf("Status: %s\n", h.Status)
	fmt.Printf("Storage: %s\n", h.Storage)
	fmt.Printf("Connections: %d\n", h.Connections)
}
