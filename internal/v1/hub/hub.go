package hub

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/roomfabric/hub/internal/v1/broadcast"
	"github.com/roomfabric/hub/internal/v1/bus"
	"github.com/roomfabric/hub/internal/v1/logging"
	"github.com/roomfabric/hub/internal/v1/metrics"
	"github.com/roomfabric/hub/internal/v1/ratelimit"
	"github.com/roomfabric/hub/internal/v1/registry"
)

// Hub upgrades incoming HTTP requests to WebSocket connections and owns the
// registry, broadcast pipeline, and optional cross-instance bus every
// connection's dispatch loop depends on.
type Hub struct {
	registry *registry.Registry
	pipeline *broadcast.Pipeline
	bus      *bus.Service
	limiter  *ratelimit.RateLimiter
	upgrader websocket.Upgrader

	mu              sync.Mutex
	subscribedRooms map[string]bool
}

// New builds a Hub. allowedOrigins restricts which browser Origin headers
// may complete the WebSocket upgrade; an empty slice allows any origin
// (used for non-browser clients and tests). limiter may be nil to disable
// per-IP join throttling and per-key broadcast throttling (tests do this).
func New(reg *registry.Registry, pipeline *broadcast.Pipeline, busSvc *bus.Service, limiter *ratelimit.RateLimiter, allowedOrigins []string) *Hub {
	h := &Hub{
		registry:        reg,
		pipeline:        pipeline,
		bus:             busSvc,
		limiter:         limiter,
		subscribedRooms: make(map[string]bool),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			originURL, err := url.Parse(origin)
			if err != nil {
				return false
			}
			for _, allowed := range allowedOrigins {
				allowedURL, err := url.Parse(allowed)
				if err != nil {
					continue
				}
				if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWs upgrades the request and starts the connection's dispatch loop.
// No authentication happens here: identity is established per-frame by
// signature, not by the transport.
func (h *Hub) ServeWs(c *gin.Context) {
	if h.limiter != nil && !h.limiter.CheckWebSocketJoin(c) {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "hub: websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(conn, h)
	metrics.ActiveConnections.Inc()

	go client.writePump()
	go client.readPump()
}

// ensureSubscribed subscribes the hub to a room's bus channel the first time
// that room is seen, so messages published by other instances reach this
// instance's local connections.
func (h *Hub) ensureSubscribed(roomName string) {
	if h.bus == nil {
		return
	}

	h.mu.Lock()
	if h.subscribedRooms[roomName] {
		h.mu.Unlock()
		return
	}
	h.subscribedRooms[roomName] = true
	h.mu.Unlock()

	var wg sync.WaitGroup
	h.bus.Subscribe(context.Background(), roomName, &wg, func(payload bus.PubSubPayload) {
		h.handleBusMessage(roomName, payload)
	})
}

func (h *Hub) handleDisconnect(c *Client) {
	room, publicKey, name := c.identity()
	if publicKey == "" {
		return
	}

	r, ok := h.registry.Room(room)
	emptied := h.registry.Leave(room, publicKey)
	if !ok || emptied {
		return
	}

	h.fanOutUserLeft(r, room, publicKey, name)
}
