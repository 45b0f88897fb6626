package realtime

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mcoot/noughts/internal/model"
)

// announcer is told about every change to the online set, while the
// registry lock is held so announcements are delivered in order
type announcer interface {
	announce(online []model.UserID, conns []*Conn)
}

// Registry maps each online user to their single live connection
type Registry struct {
	mu        sync.Mutex
	conns     map[model.UserID]*Conn
	announcer announcer
	logger    *slog.Logger
}

// NewRegistry creates a new ConnectionRegistry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		conns:  make(map[model.UserID]*Conn),
		logger: logger.With(slog.String("component", "connection-registry")),
	}
}

func (r *Registry) setAnnouncer(a announcer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.announcer = a
}

// Register makes conn the live connection for its user, closing any
// connection it supersedes, and announces the new online set
func (r *Registry) Register(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, existed := r.conns[conn.userID]
	r.conns[conn.userID] = conn
	if existed && old != conn {
		old.Close()
		r.logger.Info("connection superseded",
			slog.String("user_id", string(conn.userID)),
			slog.String("old_conn_id", old.id),
			slog.String("conn_id", conn.id))
	}
	r.logger.Info("connection registered",
		slog.String("user_id", string(conn.userID)),
		slog.String("conn_id", conn.id),
		slog.String("transport", conn.transport),
		slog.Int("online", len(r.conns)))

	r.announceLocked()
}

// Unregister removes conn if it is still the live connection for its
// user. A stale connection closing never removes a newer one.
func (r *Registry) Unregister(conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.conns[conn.userID]
	if !ok || current != conn {
		return false
	}
	delete(r.conns, conn.userID)
	r.logger.Info("connection unregistered",
		slog.String("user_id", string(conn.userID)),
		slog.String("conn_id", conn.id),
		slog.Duration("connection_duration", time.Since(conn.connectedAt)),
		slog.Int("online", len(r.conns)))

	r.announceLocked()
	return true
}

// Lookup returns the live connection for a user
func (r *Registry) Lookup(userID model.UserID) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

// IsOnline returns true if the user has a live connection
func (r *Registry) IsOnline(userID model.UserID) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// OnlineUsers returns the sorted set of online user ids
func (r *Registry) OnlineUsers() []model.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()
	online, _ := r.snapshotLocked()
	return online
}

// Len returns the number of live connections
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Snapshot returns the online set and every live connection
func (r *Registry) Snapshot() ([]model.UserID, []*Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// CloseAll closes and forgets every connection
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, conn := range r.conns {
		conn.Close()
		delete(r.conns, id)
	}
	r.logger.Info("all connections closed")
}

func (r *Registry) snapshotLocked() ([]model.UserID, []*Conn) {
	online := make([]model.UserID, 0, len(r.conns))
	for id := range r.conns {
		online = append(online, id)
	}
	sort.Slice(online, func(i, j int) bool { return online[i] < online[j] })

	conns := make([]*Conn, len(online))
	for i, id := range online {
		conns[i] = r.conns[id]
	}
	return online, conns
}

func (r *Registry) announceLocked() {
	if r.announcer == nil {
		return
	}
	online, conns := r.snapshotLocked()
	r.announcer.announce(online, conns)
}
