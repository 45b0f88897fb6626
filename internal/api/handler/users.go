package handler

import (
	"net/http"

	"github.com/mcoot/noughts/internal/api/middleware"
	"github.com/mcoot/noughts/internal/api/response"
	"github.com/mcoot/noughts/internal/services/users"
)

// UsersHandler handles the user directory endpoints
type UsersHandler struct {
	users *users.Service
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(users *users.Service) *UsersHandler {
	return &UsersHandler{users: users}
}

// List handles GET /api/v1/users
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())

	listings, err := h.users.ListOthers(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UserListingsFromService(listings))
}

// Stats handles GET /api/v1/users/stats
func (h *UsersHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())

	stats, err := h.users.Stats(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UserStatsFromModel(stats))
}
