package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jwebster45206/roleplay-agent/internal/auth"
	"github.com/jwebster45206/roleplay-agent/internal/services/events"
	"github.com/jwebster45206/roleplay-agent/pkg/storage"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// EventsHandler streams a session's turn events over a websocket.
type EventsHandler struct {
	subscriber events.Subscriber
	store      storage.SessionStore
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewEventsHandler creates a new events handler. allowedOrigins empty
// accepts any origin.
func NewEventsHandler(subscriber events.Subscriber, store storage.SessionStore, allowedOrigins []string, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		subscriber: subscriber,
		store:      store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, allowed := range allowedOrigins {
					if strings.EqualFold(origin, allowed) {
						return true
					}
				}
				return false
			},
		},
		logger: logger,
	}
}

// ServeHTTP handles GET /v1/sessions/{id}/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	callerID := auth.UserID(r.Context())
	if callerID == "" {
		writeError(w, h.logger, http.StatusUnauthorized, "Authentication required")
		return
	}

	idStr := strings.TrimSuffix(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions"), "/"), "/events")
	sessionID, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	gs, err := h.store.Get(r.Context(), sessionID)
	switch {
	case err != nil:
		h.logger.Error("Failed to load session", "error", err, "session_id", sessionID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load session")
		return
	case gs == nil:
		writeError(w, h.logger, http.StatusNotFound, "Session not found")
		return
	case gs.OwnerID != callerID:
		writeError(w, h.logger, http.StatusForbidden, "Session belongs to another user")
		return
	}

	stream, unsubscribe, err := h.subscriber.Subscribe(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to subscribe to session events", "error", err, "session_id", sessionID)
		writeError(w, h.logger, http.StatusServiceUnavailable, "Event stream unavailable")
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", "error", err, "session_id", sessionID)
		return
	}
	defer func() { _ = conn.Close() }()

	log := h.logger.With("session_id", sessionID, "owner_id", callerID)
	log.Info("WebSocket connection established")

	closed := make(chan struct{})
	go readPump(conn, closed, log)
	writePump(conn, stream, closed, log)
	log.Info("WebSocket connection closed")
}

// readPump discards client messages and signals when the peer goes away.
func readPump(conn *websocket.Conn, closed chan<- struct{}, log *slog.Logger) {
	defer close(closed)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WebSocket read error", "error", err)
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, stream <-chan events.Event, closed <-chan struct{}, log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-stream:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "event stream ended"))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				log.Warn("Failed to write event", "error", err, "event_type", event.Type)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
