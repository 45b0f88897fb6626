package model

import "time"

// UserID uniquely identifies a user across the system
type UserID string

// User is the public profile of a registered user
type User struct {
	ID        UserID
	FullName  string
	Email     string
	CreatedAt time.Time
}

// Credentials holds the login data for a user
// Stored separately so the password hash never travels with the profile
type Credentials struct {
	UserID       UserID
	Email        string // login identifier (immutable, lower-cased)
	PasswordHash string // bcrypt hash
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserStats summarises a user's finished games
type UserStats struct {
	GamesPlayed int
	Wins        int
	Draws       int
	Losses      int
	WinRate     float64 // percentage, rounded to one decimal place
}
