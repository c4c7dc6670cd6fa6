package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/garycarlyle/TVShow/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventsWebSocketHandler streams orchestrator events to WebSocket clients
type EventsWebSocketHandler struct {
	source EventSource
	logger *zap.Logger
}

// NewEventsWebSocketHandler creates a new WebSocket handler
func NewEventsWebSocketHandler(source EventSource, log *zap.Logger) *EventsWebSocketHandler {
	return &EventsWebSocketHandler{
		source: source,
		logger: log,
	}
}

// HandleWebSocket handles GET /api/v1/events. The optional "types" query
// parameter is a comma separated list of event kinds to forward.
func (h *EventsWebSocketHandler) HandleWebSocket(c *gin.Context) {
	filter := kindFilter(c.Query("types"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	events, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	h.logger.Info("WebSocket client connected",
		zap.String("remote_addr", c.Request.RemoteAddr))

	// Read messages from client so pongs and close frames are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if filter != nil && !filter[ev.Kind()] {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(domain.Envelope(ev)); err != nil {
				h.logger.Debug("Failed to send event", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			h.logger.Info("WebSocket client disconnected",
				zap.String("remote_addr", c.Request.RemoteAddr))
			return
		}
	}
}

func kindFilter(raw string) map[domain.EventKind]bool {
	if raw == "" {
		return nil
	}
	filter := make(map[domain.EventKind]bool)
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			filter[domain.EventKind(k)] = true
		}
	}
	return filter
}
