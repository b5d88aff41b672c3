package messaging

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/logging"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// Hub bridges a Bus to WebSocket views. Every bus message is broadcast to
// every connected view; messages read from a view are posted to the bus.
type Hub struct {
	bus      *Bus
	log      logging.Logger
	origins  []string
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*viewConn]struct{}

	cancel func()
}

type viewConn struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub attaches a hub to bus. Call Close to detach. Browser connections
// are accepted from the hub's own origin and from origins.
func NewHub(bus *Bus, logger logging.Logger, origins ...string) *Hub {
	h := &Hub{
		bus:     bus,
		log:     logging.OrNop(logger).With("module", "views"),
		origins: origins,
		conns:   make(map[*viewConn]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	h.cancel = bus.OnAny(h.broadcast)
	return h
}

// checkOrigin admits clients that send no Origin, such as local tools, and
// browsers on an allowed origin.
func (h *Hub) checkOrigin(r *http.Request) bool {
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
	for _, o := range h.origins {
		if strings.EqualFold(strings.TrimSuffix(o, "/"), origin) {
			return true
		}
	}
	return false
}

func (h *Hub) broadcast(ctx context.Context, msg Message) {
	data, err := Encode(msg)
	if err != nil {
		h.log.Warn(ctx, "encode message", "type", msg.Kind(), "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		select {
		case c.send <- data:
		default:
			h.log.Warn(ctx, "view too slow, dropping message", "type", msg.Kind())
		}
	}
}

// Views returns the number of connected views.
func (h *Hub) Views() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// ServeHTTP upgrades the request and serves the view until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	c := &viewConn{conn: conn, send: make(chan []byte, sendBufferSize)}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := Decode(data)
			if err != nil {
				h.log.Debug(ctx, "ignoring view message", "error", err)
				continue
			}
			h.bus.Post(msg)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// Close detaches the hub from the bus.
func (h *Hub) Close() {
	h.cancel()
}
