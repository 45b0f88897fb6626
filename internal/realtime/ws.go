package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/mcoot/noughts/internal/model"
)

// Inbound message types
const (
	MessageDeclineChallenge = "declineChallenge"
	MessageGameMove         = "gameMove"
)

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type declineChallengeRequest struct {
	ChallengeID string `json:"challengeId"`
}

type gameMoveRequest struct {
	GameID   string `json:"gameId"`
	Position *int   `json:"position"`
}

// ServeWS upgrades the request to a WebSocket that carries the user's
// events out and relays declineChallenge and gameMove requests in
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request, userID model.UserID) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed",
			slog.String("user_id", string(userID)),
			slog.Any("error", err))
		return
	}
	ws.SetReadLimit(maxMessageSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := h.newConn(userID, "ws")
	h.registry.Register(conn)
	defer func() {
		h.registry.Unregister(conn)
		conn.Close()
	}()

	go h.readLoop(ctx, cancel, ws, conn)

	status, reason := h.writeLoop(ctx, ws, conn)
	_ = ws.Close(status, reason)
}

// writeLoop drains the connection's queue onto the socket
func (h *Handler) writeLoop(ctx context.Context, ws *websocket.Conn, conn *Conn) (websocket.StatusCode, string) {
	ticker := h.newTicker()
	defer ticker.Stop()

	for {
		select {
		case msg := <-conn.Messages():
			if err := h.write(ctx, ws, msg.Envelope()); err != nil {
				return websocket.StatusInternalError, "write failed"
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				return websocket.StatusGoingAway, "ping failed"
			}

		case <-conn.Done():
			return websocket.StatusPolicyViolation, "superseded by a newer connection"

		case <-ctx.Done():
			return websocket.StatusNormalClosure, ""
		}
	}
}

func (h *Handler) write(ctx context.Context, ws *websocket.Conn, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}

// readLoop dispatches inbound requests until the socket fails
func (h *Handler) readLoop(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, conn *Conn) {
	defer cancel()
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
				h.logger.Debug("websocket read ended",
					slog.String("conn_id", conn.id),
					slog.Any("error", err))
			}
			return
		}
		if typ != websocket.MessageText {
			h.reply(conn, invalidMessage("expected a text message"))
			continue
		}
		if err := h.dispatch(ctx, conn, data); err != nil {
			h.reply(conn, err)
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, conn *Conn, data []byte) error {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return invalidMessage("message must be a JSON object with type and payload")
	}

	switch msg.Type {
	case MessageDeclineChallenge:
		var req declineChallengeRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.ChallengeID == "" {
			return invalidMessage("challengeId is required")
		}
		_, err := h.challenges.Decline(ctx, model.ChallengeID(req.ChallengeID), conn.userID)
		return err

	case MessageGameMove:
		var req gameMoveRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.GameID == "" || req.Position == nil {
			return invalidMessage("gameId and position are required")
		}
		_, err := h.games.ApplyMove(ctx, model.GameID(req.GameID), conn.userID, *req.Position)
		return err

	default:
		return invalidMessage("unknown message type: " + msg.Type)
	}
}

// reply sends an error event back to the connection that caused it
func (h *Handler) reply(conn *Conn, err error) {
	code, message, ok := model.DescribeError(err)
	if !ok {
		h.logger.Error("websocket request failed",
			slog.String("conn_id", conn.id),
			slog.Any("error", err))
		code, message = model.CodeInternalError, model.InternalErrorMessage
	}
	msg, encErr := Encode(model.Event{
		Type:      model.EventError,
		Timestamp: h.clock.Now(),
		Payload:   model.ErrorPayload{Code: code, Message: message},
	})
	if encErr != nil {
		return
	}
	if !conn.Send(msg) {
		h.logger.Warn("error reply dropped", slog.String("conn_id", conn.id))
	}
}

// invalidMessage reports a malformed inbound socket message
func invalidMessage(detail string) error {
	return fmt.Errorf("%w: %s", model.ErrInvalidInput, detail)
}
