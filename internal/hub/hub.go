package hub

import (
	"sync"

	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
)

// Conn is one subscribed connection. Send must not block: it queues the event
// and reports false when the connection cannot take it (closed or backed up).
type Conn interface {
	Send(event domain.Event) bool
	Close()
}

// Registration identifies who a connection speaks for.
type Registration struct {
	ConnID        string
	SessionID     int64
	Role          domain.Role
	ParticipantID int64 // zero for presenters
}

type entry struct {
	reg  Registration
	conn Conn
}

// Hub is the registry of live connections indexed by session id.
// A connection that cannot keep up is severed rather than allowed to stall
// delivery to the rest of its session.
type Hub struct {
	logger *zap.Logger

	mu    sync.RWMutex
	rooms map[int64]map[string]*entry
	conns map[string]*entry
}

func New(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger,
		rooms:  make(map[int64]map[string]*entry),
		conns:  make(map[string]*entry),
	}
}

// Register subscribes conn to its session. Re-registering a connection id moves it.
func (h *Hub) Register(reg Registration, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.conns[reg.ConnID]; ok {
		h.removeLocked(old)
	}
	e := &entry{reg: reg, conn: conn}
	room, ok := h.rooms[reg.SessionID]
	if !ok {
		room = make(map[string]*entry)
		h.rooms[reg.SessionID] = room
	}
	room[reg.ConnID] = e
	h.conns[reg.ConnID] = e
}

// Unregister removes a connection. It is safe to call more than once; only the
// first call reports true.
func (h *Hub) Unregister(connID string) (Registration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.conns[connID]
	if !ok {
		return Registration{}, false
	}
	h.removeLocked(e)
	return e.reg, true
}

func (h *Hub) removeLocked(e *entry) {
	delete(h.conns, e.reg.ConnID)
	if room, ok := h.rooms[e.reg.SessionID]; ok {
		delete(room, e.reg.ConnID)
		if len(room) == 0 {
			delete(h.rooms, e.reg.SessionID)
		}
	}
}

// Broadcast delivers event to every connection of the session.
func (h *Hub) Broadcast(sessionID int64, event domain.Event) {
	var failed []*entry
	h.mu.RLock()
	for _, e := range h.rooms[sessionID] {
		if !e.conn.Send(event) {
			failed = append(failed, e)
		}
	}
	h.mu.RUnlock()

	for _, e := range failed {
		h.sever(e, event.Type)
	}
}

// Unicast delivers event to a single connection.
func (h *Hub) Unicast(connID string, event domain.Event) bool {
	h.mu.RLock()
	e, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if !e.conn.Send(event) {
		h.sever(e, event.Type)
		return false
	}
	return true
}

func (h *Hub) sever(e *entry, evt domain.EventType) {
	if _, removed := h.Unregister(e.reg.ConnID); !removed {
		return
	}
	h.logger.Warn("dropping slow connection",
		zap.String("conn_id", e.reg.ConnID),
		zap.Int64("session_id", e.reg.SessionID),
		zap.String("event", string(evt)))
	e.conn.Close()
}

// ParticipantConnections counts the live connections of one participant.
func (h *Hub) ParticipantConnections(sessionID, participantID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, e := range h.rooms[sessionID] {
		if e.reg.Role == domain.RoleParticipant && e.reg.ParticipantID == participantID {
			n++
		}
	}
	return n
}

// Connections counts the live connections of a session.
func (h *Hub) Connections(sessionID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}
