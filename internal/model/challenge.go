package model

import "time"

// ChallengeID uniquely identifies a challenge
type ChallengeID string

// ChallengeStatus is the lifecycle state of a challenge
type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "pending"
	ChallengeAccepted ChallengeStatus = "accepted"
	ChallengeDeclined ChallengeStatus = "declined"
	ChallengeExpired  ChallengeStatus = "expired"
)

// DefaultChallengeTTL is how long a challenge may stay pending before it expires
const DefaultChallengeTTL = 300 * time.Second

// Challenge is a standing offer from one user to another to start a game
type Challenge struct {
	ID         ChallengeID
	Challenger UserID
	Challenged UserID
	Status     ChallengeStatus
	GameID     GameID // Empty until accepted
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsPending returns true if the challenge has not been resolved
func (c *Challenge) IsPending() bool {
	return c.Status == ChallengePending
}

// IsExpired returns true if the challenge is still pending but older than ttl
func (c *Challenge) IsExpired(now time.Time, ttl time.Duration) bool {
	return c.Status == ChallengePending && !now.Before(c.CreatedAt.Add(ttl))
}

// Involves returns true if the user is either side of the challenge
func (c *Challenge) Involves(userID UserID) bool {
	return c.Challenger == userID || c.Challenged == userID
}

// PairKey returns a key identifying the unordered pair of users
func (c *Challenge) PairKey() string {
	return PairKey(c.Challenger, c.Challenged)
}

// PairKey returns a direction-independent key for two users
func PairKey(a, b UserID) string {
	if b < a {
		a, b = b, a
	}
	return string(a) + "|" + string(b)
}

// Clone returns a copy of the challenge
func (c *Challenge) Clone() *Challenge {
	cp := *c
	return &cp
}

// ResolvedChallenge is a challenge with its participants and linked game loaded
type ResolvedChallenge struct {
	Challenge  *Challenge
	Challenger *User
	Challenged *User
	Game       *Game // nil unless accepted
}
