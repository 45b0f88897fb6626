package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/noughts/internal/api/middleware"
	"github.com/mcoot/noughts/internal/api/request"
	"github.com/mcoot/noughts/internal/api/response"
	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/services/challenge"
)

// ChallengeHandler handles challenge endpoints
type ChallengeHandler struct {
	coordinator *challenge.Coordinator
}

// NewChallengeHandler creates a new challenge handler
func NewChallengeHandler(coordinator *challenge.Coordinator) *ChallengeHandler {
	return &ChallengeHandler{coordinator: coordinator}
}

// Send handles POST /api/v1/challenges
func (h *ChallengeHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())

	var req request.SendChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}
	if req.ChallengedID == "" {
		WriteError(w, NewInvalidRequestError("challengedId is required"))
		return
	}

	resolved, err := h.coordinator.Send(r.Context(), userID, model.UserID(req.ChallengedID))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.ChallengeFromModel(resolved))
}

// Pending handles GET /api/v1/challenges/pending
func (h *ChallengeHandler) Pending(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())

	pending, err := h.coordinator.ListPending(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ChallengesFromModel(pending))
}

// History handles GET /api/v1/challenges/history
func (h *ChallengeHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())

	history, err := h.coordinator.History(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ChallengesFromModel(history))
}

// Accept handles PUT /api/v1/challenges/{id}/accept
func (h *ChallengeHandler) Accept(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())
	id := model.ChallengeID(mux.Vars(r)["id"])

	resolved, err := h.coordinator.Accept(r.Context(), id, userID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ChallengeFromModel(resolved))
}

// Decline handles PUT /api/v1/challenges/{id}/decline
func (h *ChallengeHandler) Decline(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())
	id := model.ChallengeID(mux.Vars(r)["id"])

	resolved, err := h.coordinator.Decline(r.Context(), id, userID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ChallengeFromModel(resolved))
}
