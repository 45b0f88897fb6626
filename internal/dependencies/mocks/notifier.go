package mocks

import (
	"sync"

	"github.com/mcoot/noughts/internal/model"
)

// Notification is one recorded Notify call
type Notification struct {
	UserID model.UserID
	Event  model.Event
}

// MockNotifier records notifications instead of delivering them
type MockNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

// NewMockNotifier creates a new MockNotifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Notify records the event
func (n *MockNotifier) Notify(userID model.UserID, event model.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{UserID: userID, Event: event})
}

// All returns every recorded notification in order
func (n *MockNotifier) All() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.sent))
	copy(out, n.sent)
	return out
}

// For returns the events sent to one user, in order
func (n *MockNotifier) For(userID model.UserID) []model.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var events []model.Event
	for _, s := range n.sent {
		if s.UserID == userID {
			events = append(events, s.Event)
		}
	}
	return events
}

// OfType returns every recorded notification carrying the given event type
func (n *MockNotifier) OfType(t model.EventType) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Notification
	for _, s := range n.sent {
		if s.Event.Type == t {
			out = append(out, s)
		}
	}
	return out
}

// Reset clears recorded notifications
func (n *MockNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}
