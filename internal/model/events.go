package model

import "time"

// EventType identifies the type of a real-time event
type EventType string

const (
	// Presence events
	EventOnlineUsers EventType = "getOnlineUsers"

	// Challenge events
	EventChallengeReceived EventType = "challengeReceived"
	EventChallengeAccepted EventType = "challengeAccepted"
	EventChallengeDeclined EventType = "challengeDeclined"

	// Game events
	EventGameStart  EventType = "gameStart"
	EventGameUpdate EventType = "gameUpdate"

	// Error reply on a socket that sent a bad request
	EventError EventType = "error"
)

// Event is the base structure for all events pushed to clients
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any // Type-specific data, already in wire form
}

// OnlineUsersPayload contains the full current online set
type OnlineUsersPayload struct {
	Users []UserID
}

// ChallengeReceivedPayload contains data for challenge received events
type ChallengeReceivedPayload struct {
	Challenge ResolvedChallenge
}

// ChallengeAcceptedPayload contains data for challenge accepted events
type ChallengeAcceptedPayload struct {
	Challenge ResolvedChallenge
	GameID    GameID
}

// ChallengeDeclinedPayload contains data for challenge declined events
type ChallengeDeclinedPayload struct {
	Challenge  ResolvedChallenge
	Challenged *User
}

// GameStartPayload contains data for game start events
type GameStartPayload struct {
	GameID GameID
}

// GameUpdatePayload contains the full resolved game after a move
type GameUpdatePayload struct {
	Game ResolvedGame
}

// ErrorPayload is sent back on a socket when a relayed request fails
type ErrorPayload struct {
	Code    string
	Message string
}
