package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/noughts/internal/api/apierr"
	"github.com/mcoot/noughts/internal/api/middleware"
	"github.com/mcoot/noughts/internal/api/response"
	"github.com/mcoot/noughts/internal/factory"
	"github.com/mcoot/noughts/internal/model"
)

// testServer creates a test server with all dependencies
type testServer struct {
	handler http.Handler
	app     *factory.App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	// API tests are integration tests - use production factory with real clock/ids
	app, err := factory.New(factory.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	return &testServer{
		handler: app.Router(false),
		app:     app,
	}
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) signup(t *testing.T, email, name string) response.AuthResponse {
	t.Helper()
	body := map[string]string{"email": email, "fullName": name, "password": "secret123"}
	rr := ts.request(http.MethodPost, "/api/v1/auth/signup", body, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp response.AuthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

// challenge sends a challenge from one user to another and returns it
func (ts *testServer) challenge(t *testing.T, from response.AuthResponse, to response.AuthResponse) response.Challenge {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/challenges", map[string]string{"challengedId": to.User.ID}, from.Token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var c response.Challenge
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &c))
	return c
}

// startGame runs a challenge from x to o through acceptance and returns the game id
func (ts *testServer) startGame(t *testing.T, x, o response.AuthResponse) string {
	t.Helper()
	c := ts.challenge(t, x, o)
	rr := ts.request(http.MethodPut, "/api/v1/challenges/"+c.ID+"/accept", nil, o.Token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var accepted response.Challenge
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))
	require.NotNil(t, accepted.GameID)
	return *accepted.GameID
}

func (ts *testServer) move(token, gameID string, position int) *httptest.ResponseRecorder {
	return ts.request(http.MethodPut, "/api/v1/games/"+gameID+"/move", map[string]int{"position": position}, token)
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp apierr.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp.Error.Code
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var health response.Health
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "memory", health.Storage)
	assert.Equal(t, 0, health.Connections)
}

func TestSignupAndLogin(t *testing.T) {
	ts := newTestServer(t)

	signup := ts.signup(t, "Alice@Example.com", "Alice")
	assert.Equal(t, "alice@example.com", signup.User.Email)
	assert.Equal(t, "Alice", signup.User.FullName)
	assert.NotEmpty(t, signup.Token)

	// Login
	loginBody := map[string]string{"email": "alice@example.com", "password": "secret123"}
	rr := ts.request(http.MethodPost, "/api/v1/auth/login", loginBody, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var loginResp response.AuthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &loginResp))
	assert.Equal(t, signup.User.ID, loginResp.User.ID)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}

func TestSignupValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "alice@example.com", "Alice")

	tests := []struct {
		name   string
		body   map[string]string
		status int
		code   string
	}{
		{"duplicate email", map[string]string{"email": "ALICE@example.com", "fullName": "Other", "password": "secret123"}, http.StatusConflict, apierr.CodeEmailExists},
		{"bad email", map[string]string{"email": "not-an-email", "fullName": "Bob", "password": "secret123"}, http.StatusBadRequest, apierr.CodeInvalidRequest},
		{"short password", map[string]string{"email": "bob@example.com", "fullName": "Bob", "password": "abc"}, http.StatusBadRequest, apierr.CodeInvalidRequest},
		{"missing name", map[string]string{"email": "bob@example.com", "password": "secret123"}, http.StatusBadRequest, apierr.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.request(http.MethodPost, "/api/v1/auth/signup", tt.body, "")
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, errorCode(t, rr))
		})
	}
}

func TestLoginWrongPassword(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "alice@example.com", "Alice")

	rr := ts.request(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "alice@example.com", "password": "wrong-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeInvalidCredentials, errorCode(t, rr))

	rr = ts.request(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "nobody@example.com", "password": "secret123"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeInvalidCredentials, errorCode(t, rr))
}

func TestGetMeAndLogout(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice@example.com", "Alice")

	rr := ts.request(http.MethodGet, "/api/v1/auth/me", nil, alice.Token)
	require.Equal(t, http.StatusOK, rr.Code)

	var me response.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	assert.Equal(t, alice.User.ID, me.ID)

	rr = ts.request(http.MethodPost, "/api/v1/auth/logout", nil, alice.Token)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/auth/me", nil, alice.Token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeUnauthorized, errorCode(t, rr))
}

func TestCookieAuthentication(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice@example.com", "Alice")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: alice.Token})
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestUnauthorizedAccess(t *testing.T) {
	ts := newTestServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/auth/me"},
		{http.MethodGet, "/api/v1/users"},
		{http.MethodGet, "/api/v1/users/stats"},
		{http.MethodPost, "/api/v1/challenges"},
		{http.MethodGet, "/api/v1/challenges/pending"},
		{http.MethodGet, "/api/v1/games/history"},
		{http.MethodGet, "/api/v1/games/some-game"},
		{http.MethodGet, "/api/v1/events"},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			rr := ts.request(p.method, p.path, nil, "")
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}

	rr := ts.request(http.MethodGet, "/api/v1/auth/me", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestListUsers(t *testing.T) {
	ts := newTestServer(t)
	carol := ts.signup(t, "carol@example.com", "Carol")
	ts.signup(t, "bob@example.com", "Bob")
	ts.signup(t, "alice@example.com", "Alice")

	rr := ts.request(http.MethodGet, "/api/v1/users", nil, carol.Token)
	require.Equal(t, http.StatusOK, rr.Code)

	var listings []response.UserListing
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listings))
	require.Len(t, listings, 2)
	assert.Equal(t, "Alice", listings[0].FullName)
	assert.Equal(t, "Bob", listings[1].FullName)
	assert.False(t, listings[0].Online)
}

func TestChallengeFlow(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice@example.com", "Alice")
	bob := ts.signup(t, "bob@example.com", "Bob")

	c := ts.challenge(t, alice, bob)
	assert.Equal(t, "pending", c.Status)
	assert.Equal(t, alice.User.ID, c.Challenger.ID)
	assert.Equal(t, bob.User.ID, c.Challenged.ID)
	assert.Nil(t, c.GameID)

	// A second challenge in either direction conflicts
	rr := ts.request(http.MethodPost, "/api/v1/challenges", map[string]string{"challengedId": alice.User.ID}, bob.Token)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeDuplicateChallenge, errorCode(t, rr))

	// Pending is only visible to the challenged user
	rr = ts.request(http.MethodGet, "/api/v1/challenges/pending", nil, bob.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	var pending []response.Challenge
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, c.ID, pending[0].ID)

	rr = ts.request(http.MethodGet, "/api/v1/challenges/pending", nil, alice.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	// The challenger cannot accept their own challenge
	rr = ts.request(http.MethodPut, "/api/v1/challenges/"+c.ID+"/accept", nil, alice.Token)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeChallengeNotFound, errorCode(t, rr))

	rr = ts.request(http.MethodPut, "/api/v1/challenges/"+c.ID+"/accept", nil, bob.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	var accepted response.Challenge
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))
	assert.Equal(t, "accepted", accepted.Status)
	require.NotNil(t, accepted.GameID)

	// Already resolved
	rr = ts.request(http.MethodPut, "/api/v1/challenges/"+c.ID+"/decline", nil, bob.Token)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeAlreadyResolved, errorCode(t, rr))

	rr = ts.request(http.MethodGet, "/api/v1/challenges/history", nil, alice.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	var history []response.Challenge
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	require.Len(t, history, 1)
	require.NotNil(t, history[0].Game)
	assert.Equal(t, *accepted.GameID, history[0].Game.ID)
	assert.Equal(t, "in_progress", history[0].Game.Status)
}

func TestChallengeErrors(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice@example.com", "Alice")

	rr := ts.request(http.MethodPost, "/api/v1/challenges", map[string]string{"challengedId": alice.User.ID}, alice.Token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeInvalidTarget, errorCode(t, rr))

	rr = ts.request(http.MethodPost, "/api/v1/challenges", map[string]string{"challengedId": "nobody"}, alice.Token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeInvalidTarget, errorCode(t, rr))

	rr = ts.request(http.MethodPost, "/api/v1/challenges", map[string]string{}, alice.Token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeInvalidRequest, errorCode(t, rr))

	rr = ts.request(http.MethodPut, "/api/v1/challenges/missing/decline", nil, alice.Token)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeclineChallenge(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice@example.com", "Alice")
	bob := ts.signup(t, "bob@example.com", "Bob")

	c := ts.challenge(t, alice, bob)
	rr := ts.request(http.MethodPut, "/api/v1/challenges/"+c.ID+"/decline", nil, bob.Token)
	require.Equal(t, http.StatusOK, rr.Code)

	var declined response.Challenge
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &declined))
	assert.Equal(t, "declined", declined.Status)
	assert.Nil(t, declined.GameID)

	// The pair is free again
	ts.challenge(t, bob, alice)
}

func TestPlayGameToWin(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice@example.com", "Alice")
	bob := ts.signup(t, "bob@example.com", "Bob")
	gameID := ts.startGame(t, alice, bob)

	rr := ts.request(http.MethodGet, "/api/v1/games/"+gameID, nil, bob.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	var g response.Game
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &g))
	assert.Equal(t, "in_progress", g.Status)
	assert.Equal(t, "X", g.CurrentPlayer)
	assert.Equal(t, alice.User.ID, g.PlayerX.ID)
	assert.Len(t, g.Board, 9)

	// Wrong turn
	rr = ts.move(bob.Token, gameID, 0)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeNotYourTurn, errorCode(t, rr))

	for i, step := range []struct {
		token    string
		position int
	}{
		{alice.Token, 0}, {bob.Token, 3}, {alice.Token, 1}, {bob.Token, 4},
	} {
		rr = ts.move(step.token, gameID, step.position)
		require.Equal(t, http.StatusOK, rr.Code, "move %d: %s", i, rr.Body.String())
	}

	// Occupied cell
	rr = ts.move(alice.Token, gameID, 4)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeInvalidPosition, errorCode(t, rr))

	rr = ts.move(alice.Token, gameID, 2)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &g))
	assert.Equal(t, "finished", g.Status)
	require.NotNil(t, g.Result)
	assert.Equal(t, "win", *g.Result)
	require.NotNil(t, g.Winner)
	assert.Equal(t, alice.User.ID, g.Winner.ID)
	assert.NotNil(t, g.FinishedAt)
	assert.Equal(t, []string{"X", "X", "X", "O", "O", "", "", "", ""}, g.Board)

	rr = ts.move(bob.Token, gameID, 5)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeGameNotInProgress, errorCode(t, rr))

	// Stats
	rr = ts.request(http.MethodGet, "/api/v1/users/stats", nil, alice.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"gamesPlayed":1,"wins":1,"draws":0,"losses":0,"winRate":100}`, rr.Body.String())

	rr = ts.request(http.MethodGet, "/api/v1/users/stats", nil, bob.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"gamesPlayed":1,"wins":0,"draws":0,"losses":1,"winRate":0}`, rr.Body.String())

	// History
	rr = ts.request(http.MethodGet, "/api/v1/games/history?page=1&limit=5", nil, bob.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	var page response.GamePage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 1, page.CurrentPage)
	require.Len(t, page.Games, 1)
	assert.Equal(t, gameID, page.Games[0].ID)
}

func TestGameAccessAndValidation(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice@example.com", "Alice")
	bob := ts.signup(t, "bob@example.com", "Bob")
	carol := ts.signup(t, "carol@example.com", "Carol")
	gameID := ts.startGame(t, alice, bob)

	rr := ts.request(http.MethodGet, "/api/v1/games/"+gameID, nil, carol.Token)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, apierr.CodeForbidden, errorCode(t, rr))

	rr = ts.move(carol.Token, gameID, 0)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/games/missing", nil, alice.Token)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeGameNotFound, errorCode(t, rr))

	rr = ts.move(alice.Token, gameID, 9)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeInvalidPosition, errorCode(t, rr))

	rr = ts.request(http.MethodPut, "/api/v1/games/"+gameID+"/move", map[string]string{}, alice.Token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeInvalidRequest, errorCode(t, rr))

	rr = ts.request(http.MethodGet, "/api/v1/games/history?page=abc", nil, alice.Token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDrawnGame(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice@example.com", "Alice")
	bob := ts.signup(t, "bob@example.com", "Bob")
	gameID := ts.startGame(t, alice, bob)

	// X O X / X O O / O X X
	positions := []int{0, 1, 2, 4, 3, 5, 7, 6, 8}
	var rr *httptest.ResponseRecorder
	for i, p := range positions {
		token := alice.Token
		if i%2 == 1 {
			token = bob.Token
		}
		rr = ts.move(token, gameID, p)
		require.Equal(t, http.StatusOK, rr.Code, "move %d: %s", i, rr.Body.String())
	}

	var g response.Game
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &g))
	assert.Equal(t, "finished", g.Status)
	require.NotNil(t, g.Result)
	assert.Equal(t, "draw", *g.Result)
	assert.Nil(t, g.Winner)

	rr = ts.request(http.MethodGet, "/api/v1/users/stats", nil, bob.Token)
	assert.JSONEq(t, `{"gamesPlayed":1,"wins":0,"draws":1,"losses":0,"winRate":0}`, rr.Body.String())
}

// Real-time transports run over a real listener

type sseEvent struct {
	name string
	data string
}

func readSSE(r *bufio.Reader) (sseEvent, error) {
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return ev, err
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && ev.name != "":
			return ev, nil
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data += strings.TrimPrefix(line, "data: ")
		}
	}
}

// nextSSE reads events until one with the given name arrives
func nextSSE(t *testing.T, r *bufio.Reader, name string) sseEvent {
	t.Helper()
	for {
		ev, err := readSSE(r)
		require.NoError(t, err)
		if ev.name == name {
			return ev
		}
	}
}

func TestSSEEvents(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	alice := ts.signup(t, "alice@example.com", "Alice")
	bob := ts.signup(t, "bob@example.com", "Bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bob.Token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	ev := nextSSE(t, reader, "connected")
	assert.JSONEq(t, `{"status":"connected"}`, ev.data)

	ev = nextSSE(t, reader, "getOnlineUsers")
	assert.JSONEq(t, fmt.Sprintf(`[%q]`, bob.User.ID), ev.data)

	// Presence is visible over HTTP
	rr := ts.request(http.MethodGet, "/api/v1/users", nil, alice.Token)
	var listings []response.UserListing
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listings))
	require.Len(t, listings, 1)
	assert.True(t, listings[0].Online)

	c := ts.challenge(t, alice, bob)
	ev = nextSSE(t, reader, "challengeReceived")
	var received response.Challenge
	require.NoError(t, json.Unmarshal([]byte(ev.data), &received))
	assert.Equal(t, c.ID, received.ID)
	assert.Equal(t, "Alice", received.Challenger.FullName)

	rr = ts.request(http.MethodPut, "/api/v1/challenges/"+c.ID+"/accept", nil, bob.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	ev = nextSSE(t, reader, "gameStart")
	var start response.GameStartEvent
	require.NoError(t, json.Unmarshal([]byte(ev.data), &start))
	assert.NotEmpty(t, start.GameID)

	rr = ts.move(alice.Token, start.GameID, 4)
	require.Equal(t, http.StatusOK, rr.Code)
	ev = nextSSE(t, reader, "gameUpdate")
	var update response.Game
	require.NoError(t, json.Unmarshal([]byte(ev.data), &update))
	assert.Equal(t, "X", update.Board[4])
	assert.Equal(t, "O", update.CurrentPlayer)

	cancel()
	assert.Eventually(t, func() bool { return !ts.app.Registry.IsOnline(model.UserID(bob.User.ID)) }, time.Second, 5*time.Millisecond)
}

func dialWS(ctx context.Context, t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"
	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	require.NoError(t, err)
	return ws
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// nextWS reads envelopes until one of the given type arrives
func nextWS(ctx context.Context, t *testing.T, ws *websocket.Conn, eventType string) envelope {
	t.Helper()
	for {
		_, data, err := ws.Read(ctx)
		require.NoError(t, err)
		var env envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type == eventType {
			return env
		}
	}
}

func TestWebSocketGame(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	alice := ts.signup(t, "alice@example.com", "Alice")
	bob := ts.signup(t, "bob@example.com", "Bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceWS := dialWS(ctx, t, server, alice.Token)
	defer aliceWS.CloseNow()
	bobWS := dialWS(ctx, t, server, bob.Token)
	defer bobWS.CloseNow()

	// Alice sees both users online once Bob connects
	for {
		env := nextWS(ctx, t, aliceWS, "getOnlineUsers")
		var online []string
		require.NoError(t, json.Unmarshal(env.Payload, &online))
		if len(online) == 2 {
			break
		}
	}

	gameID := ts.startGame(t, alice, bob)
	env := nextWS(ctx, t, aliceWS, "challengeAccepted")
	var accepted response.ChallengeAcceptedEvent
	require.NoError(t, json.Unmarshal(env.Payload, &accepted))
	assert.Equal(t, gameID, accepted.GameID)

	// Moves can be made over the socket
	require.NoError(t, aliceWS.Write(ctx, websocket.MessageText, []byte(fmt.Sprintf(`{"type":"gameMove","payload":{"gameId":%q,"position":0}}`, gameID))))
	env = nextWS(ctx, t, bobWS, "gameUpdate")
	var update response.Game
	require.NoError(t, json.Unmarshal(env.Payload, &update))
	assert.Equal(t, "X", update.Board[0])

	// Out-of-turn moves are answered with an error event
	require.NoError(t, aliceWS.Write(ctx, websocket.MessageText, []byte(fmt.Sprintf(`{"type":"gameMove","payload":{"gameId":%q,"position":1}}`, gameID))))
	env = nextWS(ctx, t, aliceWS, "error")
	var errEvent response.ErrorEvent
	require.NoError(t, json.Unmarshal(env.Payload, &errEvent))
	assert.Equal(t, apierr.CodeNotYourTurn, errEvent.Code)

	// Disconnecting announces the new online set
	require.NoError(t, bobWS.Close(websocket.StatusNormalClosure, ""))
	for {
		env := nextWS(ctx, t, aliceWS, "getOnlineUsers")
		var online []string
		require.NoError(t, json.Unmarshal(env.Payload, &online))
		if len(online) == 1 {
			assert.Equal(t, alice.User.ID, online[0])
			break
		}
	}
}
