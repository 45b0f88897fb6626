package model

import "errors"

// Error codes reported to clients over HTTP and on sockets
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInvalidTarget      = "INVALID_TARGET"
	CodeInvalidPosition    = "INVALID_POSITION"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotYourTurn        = "NOT_YOUR_TURN"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeChallengeNotFound  = "CHALLENGE_NOT_FOUND"
	CodeGameNotFound       = "GAME_NOT_FOUND"
	CodeDuplicateChallenge = "DUPLICATE_CHALLENGE"
	CodeAlreadyResolved    = "CHALLENGE_ALREADY_RESOLVED"
	CodeGameNotInProgress  = "GAME_NOT_IN_PROGRESS"
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// InternalErrorMessage is reported for failures that are not the client's fault
const InternalErrorMessage = "Internal server error"

// DescribeError returns the client-facing code and message for a domain
// error. ok is false when err is not one of the errors above.
func DescribeError(err error) (code, message string, ok bool) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		return CodeUserNotFound, "User not found", true
	case errors.Is(err, ErrChallengeNotFound):
		return CodeChallengeNotFound, "Challenge not found", true
	case errors.Is(err, ErrGameNotFound):
		return CodeGameNotFound, "Game not found", true
	case errors.Is(err, ErrForbidden):
		return CodeForbidden, "Not a player in this game", true
	case errors.Is(err, ErrInvalidTarget):
		return CodeInvalidTarget, err.Error(), true
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidRequest, err.Error(), true
	case errors.Is(err, ErrInvalidPosition):
		return CodeInvalidPosition, "Invalid board position", true
	case errors.Is(err, ErrDuplicateChallenge):
		return CodeDuplicateChallenge, "A pending challenge already exists between these users", true
	case errors.Is(err, ErrChallengeAlreadyResolved):
		return CodeAlreadyResolved, "Challenge is no longer pending", true
	case errors.Is(err, ErrWrongTurn):
		return CodeNotYourTurn, "Not your turn", true
	case errors.Is(err, ErrNotInProgress):
		return CodeGameNotInProgress, "Game is not in progress", true
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited, "Too many challenges, slow down", true
	}
	return "", "", false
}
