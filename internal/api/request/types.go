package request

// SignupRequest is the request body for registering a user
type SignupRequest struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

// LoginRequest is the request body for logging in
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SendChallengeRequest is the request body for challenging another user
type SendChallengeRequest struct {
	ChallengedID string `json:"challengedId"`
}

// MoveRequest is the request body for placing a symbol
type MoveRequest struct {
	Position *int `json:"position"`
}
