package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/brokerage/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// reloadMessage tells the browser to reload the page.
const reloadMessage = "reload"

// ReloadHub keeps the live reload websocket clients and broadcasts to them.
type ReloadHub struct {
	logger         logging.Logger
	originPatterns []string

	mu      sync.RWMutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewReloadHub returns an empty hub. originPatterns lists extra origins
// allowed to connect besides the page's own host.
func NewReloadHub(logger logging.Logger, originPatterns []string) *ReloadHub {
	return &ReloadHub{
		logger:         logger,
		originPatterns: originPatterns,
		clients:        make(map[*hubClient]struct{}),
	}
}

// Len returns the number of connected clients.
func (h *ReloadHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Broadcast sends msg to every client. Clients that cannot keep up are
// dropped.
func (h *ReloadHub) Broadcast(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- []byte(msg):
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ServeHTTP upgrades the request and holds the connection until the client
// leaves or the request context ends.
func (h *ReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Debug(r.Context(), "websocket upgrade failed", "error", err.Error())
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &hubClient{conn: conn, send: make(chan []byte, 8)}
	h.register(client)
	defer h.unregister(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client never sends anything; reading notices the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				status := websocket.CloseStatus(err)
				if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
					h.logger.Debug(ctx, "websocket read failed", "error", err.Error())
				}
				return
			}
		}
	}()

	h.writePump(ctx, client)
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *ReloadHub) writePump(ctx context.Context, c *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				h.logger.Debug(ctx, "websocket write failed", "error", err.Error())
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *ReloadHub) register(c *hubClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug(context.Background(), "reload client connected", "clients", n)
}

func (h *ReloadHub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// CloseAll disconnects every client.
func (h *ReloadHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
