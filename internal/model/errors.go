package model

import "errors"

// Common errors used across the application
var (
	// User errors
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrInvalidInput = errors.New("invalid input")

	// Challenge errors
	ErrChallengeNotFound        = errors.New("challenge not found")
	ErrInvalidTarget            = errors.New("invalid challenge target")
	ErrDuplicateChallenge       = errors.New("challenge already exists between these users")
	ErrChallengeAlreadyResolved = errors.New("challenge already resolved")
	ErrRateLimited              = errors.New("too many requests")

	// Game errors
	ErrGameNotFound    = errors.New("game not found")
	ErrForbidden       = errors.New("not a player in this game")
	ErrNotInProgress   = errors.New("game is not in progress")
	ErrWrongTurn       = errors.New("not this player's turn")
	ErrInvalidPosition = errors.New("invalid board position")
	ErrVersionConflict = errors.New("game was modified concurrently")
)
