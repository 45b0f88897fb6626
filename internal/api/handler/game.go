package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mcoot/noughts/internal/api/middleware"
	"github.com/mcoot/noughts/internal/api/request"
	"github.com/mcoot/noughts/internal/api/response"
	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/services/game"
)

// GameHandler handles game endpoints
type GameHandler struct {
	gameController *game.Controller
}

// NewGameHandler creates a new game handler
func NewGameHandler(gameController *game.Controller) *GameHandler {
	return &GameHandler{gameController: gameController}
}

// Get handles GET /api/v1/games/{id}
func (h *GameHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())
	id := model.GameID(mux.Vars(r)["id"])

	g, err := h.gameController.Get(r.Context(), id, userID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.GameFromModel(g))
}

// Move handles PUT /api/v1/games/{id}/move
func (h *GameHandler) Move(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())
	id := model.GameID(mux.Vars(r)["id"])

	var req request.MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}
	if req.Position == nil {
		WriteError(w, NewInvalidRequestError("position is required"))
		return
	}

	g, err := h.gameController.ApplyMove(r.Context(), id, userID, *req.Position)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.GameFromModel(g))
}

// History handles GET /api/v1/games/history?page=&limit=
func (h *GameHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())

	page, err := queryInt(r, "page")
	if err != nil {
		WriteError(w, NewInvalidRequestError("page must be a number"))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		WriteError(w, NewInvalidRequestError("limit must be a number"))
		return
	}

	result, err := h.gameController.History(r.Context(), userID, page, limit)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.GamePageFromModel(result))
}

// queryInt parses an optional integer query parameter, returning 0 if absent
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
