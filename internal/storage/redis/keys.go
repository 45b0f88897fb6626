package redis

import (
	"fmt"
	"strings"

	"github.com/mcoot/noughts/internal/model"
)

// Key prefix for all noughts data
const keyPrefix = "noughts"

// userKey returns the Redis key for a User
func userKey(id model.UserID) string {
	return fmt.Sprintf("%s:user:%s", keyPrefix, id)
}

// usersIndexKey returns the Redis key for the SET of all user IDs
func usersIndexKey() string {
	return fmt.Sprintf("%s:idx:users", keyPrefix)
}

// credentialsKey returns the Redis key for a user's Credentials
func credentialsKey(id model.UserID) string {
	return fmt.Sprintf("%s:credentials:%s", keyPrefix, id)
}

// emailIndexKey returns the Redis key for the email -> user_id index
func emailIndexKey(email string) string {
	return fmt.Sprintf("%s:idx:email:%s", keyPrefix, strings.ToLower(email))
}

// challengeKey returns the Redis key for a Challenge
func challengeKey(id model.ChallengeID) string {
	return fmt.Sprintf("%s:challenge:%s", keyPrefix, id)
}

// userChallengesIndexKey returns the Redis key for the SET of challenge IDs a user is part of
func userChallengesIndexKey(id model.UserID) string {
	return fmt.Sprintf("%s:idx:user_challenges:%s", keyPrefix, id)
}

// pendingChallengesIndexKey returns the Redis key for the SET of pending challenge IDs
func pendingChallengesIndexKey() string {
	return fmt.Sprintf("%s:idx:pending_challenges", keyPrefix)
}

// pendingPairKey returns the Redis key locking an unordered user pair to one pending challenge
func pendingPairKey(pair string) string {
	return fmt.Sprintf("%s:lock:pending_pair:%s", keyPrefix, pair)
}

// gameKey returns the Redis key for a Game
func gameKey(id model.GameID) string {
	return fmt.Sprintf("%s:game:%s", keyPrefix, id)
}

// userGamesIndexKey returns the Redis key for the SET of game IDs a user plays in
func userGamesIndexKey(id model.UserID) string {
	return fmt.Sprintf("%s:idx:user_games:%s", keyPrefix, id)
}

// revokedSessionKey returns the Redis key marking a session id as revoked
func revokedSessionKey(id string) string {
	return fmt.Sprintf("%s:revoked_session:%s", keyPrefix, id)
}

// revokedSessionsIndexKey returns the Redis key for the ZSET of revoked session ids scored by expiry
func revokedSessionsIndexKey() string {
	return fmt.Sprintf("%s:idx:revoked_sessions", keyPrefix)
}
