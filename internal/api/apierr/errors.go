package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/services/auth"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest     = model.CodeInvalidRequest
	CodeInvalidTarget      = model.CodeInvalidTarget
	CodeInvalidPosition    = model.CodeInvalidPosition
	CodeUnauthorized       = model.CodeUnauthorized
	CodeForbidden          = model.CodeForbidden
	CodeNotYourTurn        = model.CodeNotYourTurn
	CodeUserNotFound       = model.CodeUserNotFound
	CodeChallengeNotFound  = model.CodeChallengeNotFound
	CodeGameNotFound       = model.CodeGameNotFound
	CodeDuplicateChallenge = model.CodeDuplicateChallenge
	CodeAlreadyResolved    = model.CodeAlreadyResolved
	CodeGameNotInProgress  = model.CodeGameNotInProgress
	CodeEmailExists        = model.CodeEmailExists
	CodeInvalidCredentials = model.CodeInvalidCredentials
	CodeRateLimited        = model.CodeRateLimited
	CodeInternalError      = model.CodeInternalError
)

// statusByCode maps domain error codes to HTTP statuses
var statusByCode = map[string]int{
	CodeUserNotFound:       http.StatusNotFound,
	CodeChallengeNotFound:  http.StatusNotFound,
	CodeGameNotFound:       http.StatusNotFound,
	CodeForbidden:          http.StatusForbidden,
	CodeInvalidTarget:      http.StatusBadRequest,
	CodeInvalidRequest:     http.StatusBadRequest,
	CodeInvalidPosition:    http.StatusBadRequest,
	CodeDuplicateChallenge: http.StatusConflict,
	CodeAlreadyResolved:    http.StatusConflict,
	CodeNotYourTurn:        http.StatusConflict,
	CodeGameNotInProgress:  http.StatusConflict,
	CodeRateLimited:        http.StatusTooManyRequests,
}

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	// Check for specific error types
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	if code, message, ok := model.DescribeError(err); ok {
		return &httpError{statusByCode[code], APIError{code, message}}
	}

	// Map auth errors
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return &httpError{http.StatusUnauthorized, APIError{CodeInvalidCredentials, "Invalid email or password"}}
	case errors.Is(err, auth.ErrInvalidSession):
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Invalid or expired session"}}
	case errors.Is(err, auth.ErrEmailExists):
		return &httpError{http.StatusConflict, APIError{CodeEmailExists, "Email already registered"}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, model.InternalErrorMessage}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, model.InternalErrorMessage}}
}
