package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"terrarun/internal/platform/metrics"
)

const writeWait = 10 * time.Second

// roomTileDegrees buckets connections into ~2km squares.
const roomTileDegrees = 0.02

// Session is one live websocket connection with its room membership and
// in-flight snapshot token. Writes are serialized per connection.
type Session struct {
	ID     string
	UserID string

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu            sync.Mutex
	room          string
	snapshotToken string
	ackTS         int64
	closed        bool
}

// send marshals and writes one frame. Delivery is fire-and-forget: an error
// marks the session dead and the hub reaps it.
func (s *Session) send(msgType string, data any) error {
	payload, err := json.Marshal(outgoing{Type: msgType, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", msgType, err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// BeginSnapshot issues a fresh request token, invalidating any snapshot
// emission still running for this session.
func (s *Session) BeginSnapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotToken = uuid.NewString()
	return s.snapshotToken
}

// SnapshotActive reports whether the given token is still the session's
// current one and the session is alive. Emission loops re-check this after
// every suspension point.
func (s *Session) SnapshotActive(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.snapshotToken == token
}

// RecordAck keeps the highest broadcast timestamp the client acknowledged.
func (s *Session) RecordAck(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts > s.ackTS {
		s.ackTS = ts
	}
}

// AckedAt returns the ack high-water mark.
func (s *Session) AckedAt() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ackTS
}

// Hub is the session registry: it maps connections to user identity and to
// geographic tile rooms, and delivers targeted and broadcast messages.
type Hub struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		logger:   logger,
		metrics:  m,
		sessions: make(map[string]*Session),
	}
}

// Add registers an authenticated connection. Every session is implicitly in
// the global room.
func (h *Hub) Add(conn *websocket.Conn, userID string) *Session {
	sess := &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
	}
	h.mu.Lock()
	h.sessions[sess.ID] = sess
	count := len(h.sessions)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ConnectedSessions.Set(float64(count))
	}
	return sess
}

// Remove drops a session and closes its connection. Safe to call twice.
func (h *Hub) Remove(sessionID string) {
	h.mu.Lock()
	sess, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
	}
	count := len(h.sessions)
	h.mu.Unlock()

	if !ok {
		return
	}
	sess.mu.Lock()
	sess.closed = true
	sess.snapshotToken = ""
	sess.mu.Unlock()
	sess.conn.Close()

	if h.metrics != nil {
		h.metrics.ConnectedSessions.Set(float64(count))
	}
}

// GeoRoom derives the tile room name for a coordinate.
func GeoRoom(lat, lng float64) string {
	latKey := int(math.Floor(lat / roomTileDegrees))
	lngKey := int(math.Floor(lng / roomTileDegrees))
	return fmt.Sprintf("territory:geo:%d:%d", latKey, lngKey)
}

// MoveToRoom places the session in the tile room for the coordinate,
// leaving its previous room. Returns the room joined.
func (h *Hub) MoveToRoom(sess *Session, lat, lng float64) string {
	room := GeoRoom(lat, lng)
	sess.mu.Lock()
	sess.room = room
	sess.mu.Unlock()
	return room
}

// BroadcastGlobal delivers a message to every connected session.
func (h *Hub) BroadcastGlobal(msgType string, data any) {
	h.fanOut(msgType, data, func(*Session) bool { return true })
}

// BroadcastRoom delivers a message to every session in the given tile room,
// excluding the sender. An empty room falls back to a global broadcast,
// matching how location updates behave before the first room join.
func (h *Hub) BroadcastRoom(room, exceptSessionID string, msgType string, data any) {
	h.fanOut(msgType, data, func(sess *Session) bool {
		if sess.ID == exceptSessionID {
			return false
		}
		if room == "" {
			return true
		}
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return sess.room == room
	})
}

// SendToUser delivers a message to every session belonging to a user.
func (h *Hub) SendToUser(userID string, msgType string, data any) {
	h.fanOut(msgType, data, func(sess *Session) bool {
		return sess.UserID == userID
	})
}

// fanOut snapshots the matching sessions under the lock, then writes outside
// it; failed sends reap the session.
func (h *Hub) fanOut(msgType string, data any, match func(*Session) bool) {
	h.mu.Lock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		if match(sess) {
			targets = append(targets, sess)
		}
	}
	h.mu.Unlock()

	for _, sess := range targets {
		if err := sess.send(msgType, data); err != nil {
			h.logger.Debug("websocket send failed, reaping session",
				"session_id", sess.ID,
				"user_id", sess.UserID,
				"event", msgType,
				"error", err,
			)
			h.Remove(sess.ID)
		}
	}
}

// SessionCount reports the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
