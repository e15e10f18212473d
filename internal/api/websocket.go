package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/womgr-core/internal/infrastructure/config"
	"github.com/nerrad567/womgr-core/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// WSMessage is the envelope for every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// ReplayFunc returns the events a client receives right after subscribing
// to channel, so it starts from the current state instead of waiting for
// the next change.
type ReplayFunc func(channel string) []any

// Hub fans channel events out to connected WebSocket clients.
//
// The hub can be shared: the monitor broadcasts reachability changes into it
// while the API server owns the HTTP upgrade.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	replay  ReplayFunc
}

// WSClient is one connected subscriber.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

var errBadSubscription = errors.New("payload must be {\"channels\": [...]}")

// NewHub creates a hub. Call Run to tie its lifetime to a context.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// SetReplay installs the snapshot source used on subscribe.
func (h *Hub) SetReplay(fn ReplayFunc) {
	h.mu.Lock()
	h.replay = fn
	h.mu.Unlock()
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for client := range clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// Register adds a client.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Only the caller that actually removed it
// closes the send channel, so concurrent shutdown cannot close it twice.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, present := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if present {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast sends payload to every client subscribed to channel. The client
// list is copied under the hub lock and sent to after it is released, so
// hub and client locks are never held together.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeEvent(channel, payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range targets {
		if client.subscribed(channel) {
			client.trySend(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) replayFor(channel string) []any {
	h.mu.RLock()
	fn := h.replay
	h.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(channel)
}

func encodeEvent(channel string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// handleWebSocket upgrades the request. A client receives nothing until it
// subscribes to at least one channel, e.g. "device.state_changed".
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "websocket hub not running")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	s.hub.Register(client)

	keep := newKeepalive(s.wsCfg)
	go client.writePump(keep)
	go client.readPump(keep, s.wsCfg.MaxMessageSize)
}

// keepalive holds the ping cadence and how long a silent peer is tolerated.
type keepalive struct {
	ping time.Duration
	pong time.Duration
}

func newKeepalive(cfg config.WebSocketConfig) keepalive {
	return keepalive{
		ping: time.Duration(cfg.PingInterval) * time.Second,
		pong: time.Duration(cfg.PongTimeout) * time.Second,
	}
}

func (k keepalive) readDeadline() time.Time {
	return time.Now().Add(k.ping + k.pong)
}

func (k keepalive) writeDeadline() time.Time {
	return time.Now().Add(k.pong)
}

func (c *WSClient) readPump(keep keepalive, maxSize int) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(maxSize))
	//nolint:errcheck // best effort; a failed deadline surfaces as a read error
	c.conn.SetReadDeadline(keep.readDeadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(keep.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Browsers that ignore protocol pings stay connected while they talk.
		//nolint:errcheck // best effort
		c.conn.SetReadDeadline(keep.readDeadline())
		c.dispatch(data)
	}
}

func (c *WSClient) writePump(keep keepalive) {
	ticker := time.NewTicker(keep.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind int
			data []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				//nolint:errcheck // hub closed the channel; best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			kind, data = websocket.TextMessage, msg
		case <-ticker.C:
			kind = websocket.PingMessage
		}

		//nolint:errcheck // a failed deadline surfaces as a write error
		c.conn.SetWriteDeadline(keep.writeDeadline())
		if err := c.conn.WriteMessage(kind, data); err != nil {
			return
		}
	}
}

// dispatch handles one inbound frame.
func (c *WSClient) dispatch(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		channels, err := decodeChannels(msg.Payload)
		if err != nil {
			c.reply(msg.ID, WSTypeError, map[string]string{"message": "invalid subscribe payload: " + err.Error()})
			return
		}
		c.subscribe(channels)
		c.hub.logger.Info("websocket client subscribed", "channels", channels)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": channels})
		c.replay(channels)

	case WSTypeUnsubscribe:
		channels, err := decodeChannels(msg.Payload)
		if err != nil {
			c.reply(msg.ID, WSTypeError, map[string]string{"message": "invalid unsubscribe payload: " + err.Error()})
			return
		}
		c.unsubscribe(channels)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": channels})

	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)

	default:
		c.reply(msg.ID, WSTypeError, map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

// decodeChannels extracts the channel list from a generically decoded
// payload.
func decodeChannels(payload any) ([]string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errBadSubscription
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, errBadSubscription
	}
	return sub.Channels, nil
}

func (c *WSClient) subscribe(channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	c.mu.Unlock()
}

func (c *WSClient) unsubscribe(channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()
}

func (c *WSClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// replay sends the current snapshot of each newly subscribed channel.
func (c *WSClient) replay(channels []string) {
	for _, ch := range channels {
		for _, payload := range c.hub.replayFor(ch) {
			data, err := encodeEvent(ch, payload)
			if err != nil {
				continue
			}
			c.trySend(data)
		}
	}
}

// trySend queues data without blocking. A full buffer drops the frame and a
// channel closed by a concurrent disconnect is ignored.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a channel closed during shutdown
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}
