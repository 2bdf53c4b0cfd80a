package http

import (
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/identity"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 512
	feedBuffer     = 64
)

// RealtimeHandler serves the websocket streams.
type RealtimeHandler struct {
	provider identity.Provider
	feed     *events.Hub[events.Event]
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewRealtimeHandler(provider identity.Provider, feed *events.Hub[events.Event], log *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		provider: provider,
		feed:     feed,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		log:      log,
	}
}

// GateMessage is what a protected view should do right now.
type GateMessage struct {
	Outcome  string       `json:"outcome"`
	Redirect string       `json:"redirect,omitempty"`
	User     *domain.User `json:"user,omitempty"`
}

func gateMessage(d identity.Decision, user *domain.User) GateMessage {
	return GateMessage{Outcome: d.Outcome.String(), Redirect: d.Redirect, User: user}
}

// GET /api/v1/session/events
//
// Streams gate decisions for the connection's session. ?require=admin gates
// on the admin role. The first frame is the loading state, the second the
// resolved decision; later frames follow sign-in and sign-out of the same user.
func (h *RealtimeHandler) SessionEvents(w http.ResponseWriter, r *http.Request) {
	req := identity.RequireUser
	if r.URL.Query().Get("require") == "admin" {
		req = identity.RequireAdmin
	}

	sessionEvents, stop := h.provider.Subscribe()
	defer stop()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	user := UserFromContext(r.Context())
	token := tokenFromContext(r.Context())
	gate := identity.NewGate(req)

	if err := writeJSON(conn, gateMessage(gate.Observe(identity.SessionState{Loading: true}), nil)); err != nil {
		return
	}
	if err := writeJSON(conn, gateMessage(gate.Observe(identity.SessionState{User: user}), user)); err != nil {
		return
	}

	done := readLoop(conn)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sessionEvents:
			if !ok {
				return
			}
			if user == nil || ev.UserID != user.ID {
				continue
			}

			gate.Reset()
			resolved, err := h.provider.Resolve(r.Context(), token)
			if err != nil {
				resolved = nil
			}
			user = resolved
			if err := writeJSON(conn, gateMessage(gate.Observe(identity.SessionState{User: user}), user)); err != nil {
				return
			}
		case <-ticker.C:
			if err := ping(conn); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// GET /api/v1/admin/feed
//
// Streams order events to admin consoles.
func (h *RealtimeHandler) AdminFeed(w http.ResponseWriter, r *http.Request) {
	feed, stop := h.feed.Subscribe(feedBuffer)
	defer stop()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	done := readLoop(conn)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-feed:
			if !ok {
				return
			}
			if err := writeJSON(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := ping(conn); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readLoop discards client frames and closes the returned channel once the
// peer goes away.
func readLoop(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func ping(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
