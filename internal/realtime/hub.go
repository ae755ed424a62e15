package realtime

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/licensewatch/pkg/logger"
	"github.com/charlesng35/licensewatch/pkg/metrics"
)

const defaultSendBuffer = 64

// Message is the JSON frame pushed to websocket clients.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Option customises a Hub.
type Option func(*Hub)

// WithAllowedOrigins restricts cross-origin handshakes to the given origins.
// "*" accepts every origin. Same-host and loopback origins are always accepted.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Hub) {
		h.origins = newOriginPolicy(origins)
	}
}

// WithSendBuffer sets how many undelivered messages a client may queue
// before it is disconnected.
func WithSendBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.sendBuffer = size
		}
	}
}

// WithStreams replaces the set of streams clients may subscribe to.
func WithStreams(streams ...string) Option {
	return func(h *Hub) {
		h.streams = make(map[string]struct{}, len(streams))
		for _, stream := range uniqueStreams(streams) {
			h.streams[stream] = struct{}{}
		}
	}
}

// Hub keeps the open websocket clients of each user and fans messages out to them.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*client]struct{}
	streams    map[string]struct{}
	origins    originPolicy
	sendBuffer int
	upgrader   websocket.Upgrader
	log        *zap.Logger
}

// NewHub builds a hub serving the notifications stream.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients:    make(map[string]map[*client]struct{}),
		streams:    map[string]struct{}{StreamNotifications: {}},
		origins:    newOriginPolicy(nil),
		sendBuffer: defaultSendBuffer,
		log:        logger.WithModule("realtime"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.origins.accepts,
	}
	return h
}

// Serve upgrades the request and blocks until the client disconnects.
// The client starts subscribed to streams; unknown streams are ignored.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string, streams ...string) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	c := &client{
		hub:     h,
		socket:  socket,
		userID:  userID,
		streams: make(map[string]struct{}),
		send:    make(chan Message, h.sendBuffer),
	}
	h.register(c)
	h.subscribe(c, streams)

	go c.writeLoop()
	c.readLoop()
}

// BroadcastToUser queues message for every client of userID subscribed to stream.
func (h *Hub) BroadcastToUser(stream, userID string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" || userID == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		if _, ok := c.streams[stream]; !ok {
			continue
		}
		select {
		case c.send <- message:
		default:
			h.log.Warn("dropping slow realtime client", zap.String("user_id", userID))
			metrics.RealtimeDropped.Inc()
			// close takes the write lock.
			go c.close()
		}
	}
}

// Subscribers counts the clients of userID currently subscribed to stream.
func (h *Hub) Subscribers(userID, stream string) int {
	stream = normalizeStream(stream)

	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for c := range h.clients[userID] {
		if _, ok := c.streams[stream]; ok {
			count++
		}
	}
	return count
}

// Connections reports the number of open clients across all users.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, set := range h.clients {
		total += len(set)
	}
	return total
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	set := h.clients[c.userID]
	if set == nil {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	metrics.RealtimeClients.Inc()
	h.log.Debug("realtime client connected", zap.String("user_id", c.userID))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()

	metrics.RealtimeClients.Dec()
	h.log.Debug("realtime client disconnected", zap.String("user_id", c.userID))
}

func (h *Hub) subscribe(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		if _, ok := h.streams[stream]; !ok {
			h.log.Debug("ignoring unknown stream", zap.String("stream", stream), zap.String("user_id", c.userID))
			continue
		}
		c.streams[stream] = struct{}{}
	}
}

func (h *Hub) unsubscribe(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		delete(c.streams, stream)
	}
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

func uniqueStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	result := make([]string, 0, len(streams))
	for _, stream := range streams {
		stream = normalizeStream(stream)
		if stream == "" {
			continue
		}
		if _, dup := seen[stream]; dup {
			continue
		}
		seen[stream] = struct{}{}
		result = append(result, stream)
	}
	return result
}
