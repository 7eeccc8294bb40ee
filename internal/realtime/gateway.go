package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"terrarun/internal/platform/metrics"
	"terrarun/internal/platform/middleware"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
)

// Gateway upgrades websocket connections, authenticates them at connect
// time, and dispatches client frames to typed handlers.
type Gateway struct {
	hub         *Hub
	replay      *ReplayBuffer
	snapshotter *Snapshotter
	validator   middleware.JWTValidator
	logger      *slog.Logger
	metrics     *metrics.Metrics
	upgrader    websocket.Upgrader

	handlers map[string]func(ctx context.Context, sess *Session, data json.RawMessage)
}

func NewGateway(hub *Hub, replay *ReplayBuffer, snapshotter *Snapshotter, validator middleware.JWTValidator, logger *slog.Logger, m *metrics.Metrics) *Gateway {
	g := &Gateway{
		hub:         hub,
		replay:      replay,
		snapshotter: snapshotter,
		validator:   validator,
		logger:      logger,
		metrics:     m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The mobile app connects from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	g.handlers = map[string]func(ctx context.Context, sess *Session, data json.RawMessage){
		EventLocationUpdate:     g.handleLocationUpdate,
		EventTerritorySubscribe: g.handleSubscribe,
		EventTerritoryReplay:    g.handleReplay,
		EventTerritoryAck:       g.handleAck,
	}
	return g
}

// ServeHTTP handles GET /ws. Unauthenticated connections are dropped
// immediately, never silently accepted.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := g.validator.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	sess := g.hub.Add(conn, claims.UserID)
	g.logger.Info("client connected",
		"session_id", sess.ID,
		"user_id", sess.UserID,
	)
	// The socket outlives the upgrade request: net/http cancels r.Context()
	// as soon as ServeHTTP returns, so the connection context must start
	// from Background and end with the read loop.
	go g.readLoop(context.Background(), sess)
}

// bearerToken accepts the Authorization header or a token query parameter;
// browser websocket clients cannot always set headers.
func bearerToken(r *http.Request) string {
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return after
	}
	return r.URL.Query().Get("token")
}

func (g *Gateway) readLoop(ctx context.Context, sess *Session) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		g.hub.Remove(sess.ID)
		g.logger.Info("client disconnected",
			"session_id", sess.ID,
			"user_id", sess.UserID,
		)
	}()

	sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go g.pingLoop(ctx, sess)

	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		var envelope Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			g.logger.Debug("malformed frame ignored",
				"session_id", sess.ID,
				"error", err,
			)
			continue
		}
		handler, ok := g.handlers[envelope.Type]
		if !ok {
			g.logger.Debug("unknown frame type ignored",
				"session_id", sess.ID,
				"type", envelope.Type,
			)
			continue
		}
		handler(ctx, sess, envelope.Data)
	}
}

func (g *Gateway) pingLoop(ctx context.Context, sess *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sess.writeMu.Lock()
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := sess.conn.WriteMessage(websocket.PingMessage, nil)
			sess.writeMu.Unlock()
			if err != nil {
				g.hub.Remove(sess.ID)
				return
			}
		}
	}
}

// handleLocationUpdate moves the connection into the tile room for its
// reported position and re-broadcasts the location to that room.
func (g *Gateway) handleLocationUpdate(_ context.Context, sess *Session, data json.RawMessage) {
	var update LocationUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return
	}
	if update.Lat < -90 || update.Lat > 90 || update.Lng < -180 || update.Lng > 180 {
		return
	}
	room := g.hub.MoveToRoom(sess, update.Lat, update.Lng)
	g.hub.BroadcastRoom(room, sess.ID, EventUserLocation, LocationBroadcast{
		UserID: sess.UserID,
		Lat:    update.Lat,
		Lng:    update.Lng,
		Speed:  update.Speed,
	})
}

// handleSubscribe starts a snapshot stream. The fresh token cancels any
// previous stream for this session at its next checkpoint.
func (g *Gateway) handleSubscribe(ctx context.Context, sess *Session, data json.RawMessage) {
	var req SubscribeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	token := sess.BeginSnapshot()
	go g.snapshotter.Stream(ctx, sess, token, req)
}

// handleReplay re-sends every retained broadcast newer than the client's
// cursor, marked as replayed.
func (g *Gateway) handleReplay(_ context.Context, sess *Session, data json.RawMessage) {
	var req ReplayRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	if req.Since <= 0 {
		return
	}
	if g.metrics != nil {
		g.metrics.ReplayRequests.Inc()
	}
	for _, event := range g.replay.ReplaySince(req.Since) {
		event.Replay = true
		if err := sess.send(EventTerritoryCaptured, event); err != nil {
			g.hub.Remove(sess.ID)
			return
		}
	}
}

func (g *Gateway) handleAck(_ context.Context, sess *Session, data json.RawMessage) {
	var req AckRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	if req.TS > 0 {
		sess.RecordAck(req.TS)
	}
}
