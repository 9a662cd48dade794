package server

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	eventHello   = "hello"
	eventHistory = "history"
	eventSchema  = "schema"
)

// event is a message pushed to dashboard clients.
type event struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many events may queue for one client before it is
	// considered too slow and dropped.
	sendBuffer = 32
)

// wsClient owns one connection. Events are queued on send and written in
// order by a single writePump.
type wsClient struct {
	conn *websocket.Conn
	send chan event
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn, send: make(chan event, sendBuffer)}
}

// writePump drains the send queue until the hub closes it.
func (c *wsClient) writePump(h *hub) {
	defer c.conn.Close()
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			h.log.Warn().Err(err).Msg("failed to send to websocket")
			h.remove(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

type hub struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	// mu guards clients and the closing of each client's send channel.
	mu      sync.RWMutex
	clients map[*wsClient]bool
}

func newHub(log zerolog.Logger, allowed []string) *hub {
	h := &hub{
		log:     log,
		clients: make(map[*wsClient]bool),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return checkOrigin(r, allowed)
		},
	}
	return h
}

// checkOrigin accepts requests without an Origin, from the serving host, or
// from an explicitly allowed origin.
func checkOrigin(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func (h *hub) add(c *wsClient) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	return len(h.clients)
}

// remove unregisters c and closes its queue. It is safe to call more
// than once.
func (h *hub) remove(c *wsClient) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	return len(h.clients)
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast queues ev for every client. Clients whose queue is full are
// dropped.
func (h *hub) broadcast(ev event) {
	ev.Timestamp = time.Now().Format(time.RFC3339)

	var slow []*wsClient
	h.mu.RLock()
	if len(h.clients) > 0 {
		h.log.Debug().Str("event", ev.Type).Int("clients", len(h.clients)).Msg("broadcasting")
	}
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn().Msg("websocket client too slow, dropping")
		h.remove(c)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to upgrade to websocket")
		return
	}

	// The hello is queued before the client is registered so it always
	// precedes broadcasts.
	c := newWSClient(conn)
	c.send <- event{
		Type:      eventHello,
		Timestamp: time.Now().Format(time.RFC3339),
		Data: map[string]interface{}{
			"apis":    s.Catalog().Names(),
			"history": s.history.List(),
		},
	}
	total := s.hub.add(c)
	s.log.Info().Int("total", total).Msg("websocket connected")
	go c.writePump(s.hub)

	// Handle disconnection
	go func() {
		defer func() {
			remaining := s.hub.remove(c)
			conn.Close()
			s.log.Info().Int("remaining", remaining).Msg("websocket disconnected")
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
