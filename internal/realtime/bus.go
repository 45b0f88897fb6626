package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mcoot/noughts/internal/dependencies/clock"
	"github.com/mcoot/noughts/internal/model"
)

// Bus delivers typed events to specific users over their live connection.
// Delivery is best effort: offline users and full buffers drop the event.
type Bus struct {
	registry *Registry
	clock    clock.Clock
	logger   *slog.Logger
}

// NewBus creates a NotificationBus and attaches it to the registry so
// presence changes are broadcast
func NewBus(registry *Registry, clock clock.Clock, logger *slog.Logger) *Bus {
	b := &Bus{
		registry: registry,
		clock:    clock,
		logger:   logger.With(slog.String("component", "notification-bus")),
	}
	registry.setAnnouncer(b)
	return b
}

// Notify sends an event to one user if they are online
func (b *Bus) Notify(userID model.UserID, event model.Event) {
	conn, ok := b.registry.Lookup(userID)
	if !ok {
		b.logger.Debug("event not delivered - user offline",
			slog.String("user_id", string(userID)),
			slog.String("event", string(event.Type)))
		return
	}

	msg, err := Encode(event)
	if err != nil {
		b.logger.Error("failed to encode event",
			slog.String("event", string(event.Type)),
			slog.Any("error", err))
		return
	}
	b.deliver(conn, msg)
}

// BroadcastOnlineUsers sends the online set to every live connection
func (b *Bus) BroadcastOnlineUsers() {
	online, conns := b.registry.Snapshot()
	b.announce(online, conns)
}

func (b *Bus) announce(online []model.UserID, conns []*Conn) {
	msg, err := Encode(model.Event{
		Type:      model.EventOnlineUsers,
		Timestamp: b.clock.Now(),
		Payload:   model.OnlineUsersPayload{Users: online},
	})
	if err != nil {
		b.logger.Error("failed to encode online users", slog.Any("error", err))
		return
	}

	dropped := 0
	for _, conn := range conns {
		if !conn.Send(msg) {
			dropped++
		}
	}
	if dropped > 0 {
		b.logger.Warn("online users broadcast partial failure",
			slog.Int("sent", len(conns)-dropped),
			slog.Int("dropped", dropped))
	}
}

func (b *Bus) deliver(conn *Conn, msg Message) {
	if !conn.Send(msg) {
		b.logger.Warn("event dropped - connection closed or buffer full",
			slog.String("user_id", string(conn.userID)),
			slog.String("conn_id", conn.id),
			slog.String("event", string(msg.Type)))
	}
}

// Encode converts an event to its wire form
func Encode(event model.Event) (Message, error) {
	payload, err := eventPayload(event)
	if err != nil {
		return Message{}, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", event.Type, err)
	}
	return Message{Type: event.Type, Payload: data}, nil
}
