package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/noughts/internal/dependencies/mocks"
	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/testutil"
)

type call struct {
	user     model.UserID
	id       string
	position int
}

// fakeRelay records relayed requests and fails with err when set
type fakeRelay struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeRelay) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakeRelay) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeRelay) Decline(ctx context.Context, id model.ChallengeID, decliner model.UserID) (*model.ResolvedChallenge, error) {
	return nil, f.record(call{user: decliner, id: string(id)})
}

func (f *fakeRelay) ApplyMove(ctx context.Context, gameID model.GameID, requester model.UserID, position int) (*model.ResolvedGame, error) {
	return nil, f.record(call{user: requester, id: string(gameID), position: position})
}

type TransportSuite struct {
	suite.Suite
	clock    *mocks.MockClock
	registry *Registry
	bus      *Bus
	relay    *fakeRelay
	handler  *Handler
	server   *httptest.Server
}

func TestTransportSuite(t *testing.T) {
	suite.Run(t, new(TransportSuite))
}

func (s *TransportSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.registry = NewRegistry(testutil.NopLogger())
	s.bus = NewBus(s.registry, s.clock, testutil.NopLogger())
	s.relay = &fakeRelay{}
	s.handler = NewHandler(s.registry, s.relay, s.relay, s.clock, mocks.NewMockIDs(), DefaultConfig(), testutil.NopLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		s.handler.ServeSSE(w, r, model.UserID(r.URL.Query().Get("user")))
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.handler.ServeWS(w, r, model.UserID(r.URL.Query().Get("user")))
	})
	s.server = httptest.NewServer(mux)
}

func (s *TransportSuite) TearDownTest() {
	s.registry.CloseAll()
	s.server.Close()
}

func (s *TransportSuite) waitOnline(user model.UserID) {
	s.Require().Eventually(func() bool {
		return s.registry.IsOnline(user)
	}, time.Second, 5*time.Millisecond)
}

// WebSocket helpers

func (s *TransportSuite) dial(ctx context.Context, user string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws?user=" + user
	ws, _, err := websocket.Dial(ctx, url, nil)
	s.Require().NoError(err)
	return ws
}

func (s *TransportSuite) readEnvelope(ctx context.Context, ws *websocket.Conn) (string, json.RawMessage) {
	_, data, err := ws.Read(ctx)
	s.Require().NoError(err)
	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	s.Require().NoError(json.Unmarshal(data, &env))
	return env.Type, env.Payload
}

func (s *TransportSuite) send(ctx context.Context, ws *websocket.Conn, msg string) {
	s.Require().NoError(ws.Write(ctx, websocket.MessageText, []byte(msg)))
}

func (s *TransportSuite) TestWebSocketReceivesPresenceAndEvents() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws := s.dial(ctx, "alice")
	defer ws.CloseNow()

	typ, payload := s.readEnvelope(ctx, ws)
	s.Equal("getOnlineUsers", typ)
	s.JSONEq(`["alice"]`, string(payload))

	s.bus.Notify("alice", model.Event{Type: model.EventGameStart, Payload: model.GameStartPayload{GameID: "g1"}})
	typ, payload = s.readEnvelope(ctx, ws)
	s.Equal("gameStart", typ)
	s.JSONEq(`{"gameId":"g1"}`, string(payload))
}

func (s *TransportSuite) TestWebSocketRelaysRequests() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws := s.dial(ctx, "bob")
	defer ws.CloseNow()
	s.readEnvelope(ctx, ws)

	s.send(ctx, ws, `{"type":"declineChallenge","payload":{"challengeId":"c1"}}`)
	s.send(ctx, ws, `{"type":"gameMove","payload":{"gameId":"g1","position":0}}`)

	s.Eventually(func() bool { return len(s.relay.Calls()) == 2 }, time.Second, 5*time.Millisecond)
	calls := s.relay.Calls()
	s.Equal(call{user: "bob", id: "c1"}, calls[0])
	s.Equal(call{user: "bob", id: "g1", position: 0}, calls[1])
}

func (s *TransportSuite) TestWebSocketInvalidRequestRepliesWithError() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws := s.dial(ctx, "bob")
	defer ws.CloseNow()
	s.readEnvelope(ctx, ws)

	s.send(ctx, ws, `{"type":"gameMove","payload":{"gameId":"g1"}}`)
	typ, payload := s.readEnvelope(ctx, ws)
	s.Equal("error", typ)
	s.Contains(string(payload), `"code":"INVALID_REQUEST"`)

	s.send(ctx, ws, `{"type":"dance"}`)
	typ, _ = s.readEnvelope(ctx, ws)
	s.Equal("error", typ)

	s.Empty(s.relay.Calls())
}

func (s *TransportSuite) TestWebSocketRelayErrorIsMapped() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.relay.err = model.ErrWrongTurn
	ws := s.dial(ctx, "bob")
	defer ws.CloseNow()
	s.readEnvelope(ctx, ws)

	s.send(ctx, ws, `{"type":"gameMove","payload":{"gameId":"g1","position":4}}`)
	typ, payload := s.readEnvelope(ctx, ws)
	s.Equal("error", typ)
	s.JSONEq(`{"code":"NOT_YOUR_TURN","message":"Not your turn"}`, string(payload))
}

func (s *TransportSuite) TestWebSocketUnknownErrorIsMasked() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.relay.err = errors.New("disk on fire")
	ws := s.dial(ctx, "bob")
	defer ws.CloseNow()
	s.readEnvelope(ctx, ws)

	s.send(ctx, ws, `{"type":"declineChallenge","payload":{"challengeId":"c1"}}`)
	typ, payload := s.readEnvelope(ctx, ws)
	s.Equal("error", typ)
	s.JSONEq(`{"code":"INTERNAL_ERROR","message":"Internal server error"}`, string(payload))
}

func (s *TransportSuite) TestWebSocketDisconnectUnregisters() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws := s.dial(ctx, "alice")
	s.readEnvelope(ctx, ws)
	s.waitOnline("alice")

	s.Require().NoError(ws.Close(websocket.StatusNormalClosure, ""))
	s.Eventually(func() bool { return !s.registry.IsOnline("alice") }, time.Second, 5*time.Millisecond)
}

func (s *TransportSuite) TestWebSocketSupersededConnectionIsClosed() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := s.dial(ctx, "alice")
	defer first.CloseNow()
	s.readEnvelope(ctx, first)

	second := s.dial(ctx, "alice")
	defer second.CloseNow()
	s.readEnvelope(ctx, second)

	// The first socket is closed by the server
	for {
		_, _, err := first.Read(ctx)
		if err != nil {
			s.Equal(websocket.StatusPolicyViolation, websocket.CloseStatus(err))
			break
		}
	}
	s.True(s.registry.IsOnline("alice"))
}

// SSE

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

func (s *TransportSuite) TestSSEStreamsEvents() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.server.URL+"/events?user=alice", nil)
	s.Require().NoError(err)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal("text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	ev, err := readSSE(reader)
	s.Require().NoError(err)
	s.Equal("connected", ev.name)

	ev, err = readSSE(reader)
	s.Require().NoError(err)
	s.Equal("getOnlineUsers", ev.name)
	s.JSONEq(`["alice"]`, ev.data)

	s.bus.Notify("alice", model.Event{Type: model.EventGameStart, Payload: model.GameStartPayload{GameID: "g1"}})
	ev, err = readSSE(reader)
	s.Require().NoError(err)
	s.Equal("gameStart", ev.name)
	s.JSONEq(`{"gameId":"g1"}`, ev.data)

	cancel()
	s.Eventually(func() bool { return !s.registry.IsOnline("alice") }, time.Second, 5*time.Millisecond)
}

func TestFormatSSEMessage(t *testing.T) {
	tests := []struct {
		name      string
		eventName string
		data      string
		expected  string
	}{
		{
			name:      "single line data",
			eventName: "gameStart",
			data:      `{"gameId":"g1"}`,
			expected:  "event: gameStart\ndata: {\"gameId\":\"g1\"}\n\n",
		},
		{
			name:      "multi-line data",
			eventName: "gameUpdate",
			data:      "{\n  \"id\": \"g1\"\n}",
			expected:  "event: gameUpdate\ndata: {\ndata:   \"id\": \"g1\"\ndata: }\n\n",
		},
		{
			name:      "empty data",
			eventName: "ping",
			data:      "",
			expected:  "event: ping\ndata: \n\n",
		},
		{
			name:      "data with carriage returns",
			eventName: "test",
			data:      "line1\r\nline2",
			expected:  "event: test\ndata: line1\ndata: line2\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatSSEMessage(tt.eventName, tt.data)
			if string(result) != tt.expected {
				t.Errorf("formatSSEMessage(%q, %q)\ngot:  %q\nwant: %q",
					tt.eventName, tt.data, string(result), tt.expected)
			}
		})
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "single line",
			input:    "hello",
			expected: []string{"hello"},
		},
		{
			name:     "two lines",
			input:    "line1\nline2",
			expected: []string{"line1", "line2"},
		},
		{
			name:     "trailing newline",
			input:    "line1\n",
			expected: []string{"line1"},
		},
		{
			name:     "empty string",
			input:    "",
			expected: []string{""},
		},
		{
			name:     "crlf line endings",
			input:    "line1\r\nline2\r\n",
			expected: []string{"line1", "line2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := splitLines(tt.input)
			if len(result) != len(tt.expected) {
				t.Errorf("splitLines(%q) returned %d lines, want %d",
					tt.input, len(result), len(tt.expected))
				return
			}
			for i, line := range result {
				if line != tt.expected[i] {
					t.Errorf("splitLines(%q)[%d] = %q, want %q",
						tt.input, i, line, tt.expected[i])
				}
			}
		})
	}
}
