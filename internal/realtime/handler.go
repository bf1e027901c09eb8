package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"therapymeet/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from the frontend origin; origin policy is
		// enforced by the deployment proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// EventSink receives decoded inbound events and disconnect notifications.
// Implemented by the router; declared here so the transport layer does not
// import routing.
type EventSink interface {
	DispatchEvent(conn *Connection, evt *types.Event)
	Disconnected(conn *Connection)
}

// Options carries the transport tunables from configuration.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

// Handler upgrades HTTP requests to WebSocket connections and runs the read
// pump for each one.
type Handler struct {
	registry *Registry
	sink     EventSink
	opts     Options
}

// NewHandler creates a WebSocket handler.
func NewHandler(registry *Registry, sink EventSink, opts Options) *Handler {
	return &Handler{
		registry: registry,
		sink:     sink,
		opts:     opts,
	}
}

// HandleWebSocket serves the /ws endpoint. Clients identify themselves only
// through join_session payloads after connecting, matching the original
// protocol.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(wsConn, h.opts.SendBuffer, h.opts.WriteTimeout)
	if err := h.registry.Register(conn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = conn.Close()
		return
	}
	log.Printf("Client connected: %s", conn.ID())

	if err := conn.WriteEvent(&types.Event{
		Type: types.EventConnected,
		Data: map[string]any{"message": "Connected to server"},
	}); err != nil {
		log.Printf("Failed to send connected event to %s: %v", conn.ID(), err)
	}

	go h.handleConnection(conn)
}

// handleConnection runs heartbeat monitoring and the read pump, and triggers
// cleanup exactly once when the link dies.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.sink.Disconnected(conn)
		_ = conn.Close()
		log.Printf("Client disconnected: %s", conn.ID())
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.opts.WriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error on %s: %v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var evt types.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			log.Printf("Dropping malformed frame from %s: %v", conn.ID(), err)
			continue
		}

		h.sink.DispatchEvent(conn, &evt)
	}
}
