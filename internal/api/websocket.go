package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/rainbridge/internal/infrastructure/config"
	"github.com/nerrad567/rainbridge/internal/infrastructure/logging"
)

// Message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// ChannelAccessoryChanged carries every registry mutation as an AccessoryEvent.
const ChannelAccessoryChanged = "accessory.changed"

const (
	wsSendBufferSize = 256

	defaultMaxMessageSize = 4096
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
)

// WSMessage is the envelope for both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// AccessoryEvent is the payload broadcast on ChannelAccessoryChanged.
type AccessoryEvent struct {
	Op        string        `json:"op"`
	Accessory AccessoryView `json:"accessory"`
}

// Hub fans events out to connected clients by channel.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one connected event stream consumer.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	mu            sync.RWMutex
	subscriptions map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

func (h *Hub) register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// unregister closes the send channel only if this call removed the client,
// so a concurrent closeAll cannot double-close it.
func (h *Hub) unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast sends payload to every client subscribed to channel. Slow
// clients with a full buffer miss the event.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: stamp(),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding stream event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if c.isSubscribed(channel) {
			c.trySend(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close() //nolint:errcheck // shutdown
		}
		delete(h.clients, c)
	}
}

func (h *Hub) timings() (maxSize int64, ping, pong time.Duration) {
	maxSize, ping, pong = defaultMaxMessageSize, defaultPingInterval, defaultPongTimeout
	if h.cfg.MaxMessageSize > 0 {
		maxSize = int64(h.cfg.MaxMessageSize)
	}
	if h.cfg.PingInterval > 0 {
		ping = time.Duration(h.cfg.PingInterval) * time.Second
	}
	if h.cfg.PongTimeout > 0 {
		pong = time.Duration(h.cfg.PongTimeout) * time.Second
	}
	return maxSize, ping, pong
}

// handleWebSocket upgrades to the event stream. Clients start with no
// subscriptions.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	s.hub.register(client)

	go client.writeLoop()
	go client.readLoop()
}

func (c *WSClient) readLoop() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close() //nolint:errcheck // already failing
	}()

	maxSize, ping, pong := c.hub.timings()
	c.conn.SetReadLimit(maxSize)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + pong)) }
	extend() //nolint:errcheck // a failing conn surfaces on read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		extend() //nolint:errcheck // a failing conn surfaces on read
		c.handleMessage(message)
	}
}

// writeLoop owns all writes on conn. A closed send channel ends the stream.
func (c *WSClient) writeLoop() {
	_, ping, pong := c.hub.timings()
	keepalive := time.NewTicker(ping)
	defer keepalive.Stop()
	defer c.conn.Close() //nolint:errcheck // writer done

	write := func(kind int, body []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(pong)) //nolint:errcheck // write reports it
		return c.conn.WriteMessage(kind, body)
	}
	for {
		var err error
		select {
		case body, open := <-c.send:
			if !open {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			err = write(websocket.TextMessage, body)
		case <-keepalive.C:
			err = write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		channels, ok := c.channels(msg)
		if !ok {
			return
		}
		on := msg.Type == WSTypeSubscribe
		c.setSubscribed(channels, on)
		key := "unsubscribed"
		if on {
			key = "subscribed"
		}
		c.sendResponse(msg.ID, WSTypeResponse, map[string]any{key: channels})
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

func (c *WSClient) setSubscribed(channels []string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if on {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
}

// channels decodes the subscribe payload, answering the client on error.
func (c *WSClient) channels(msg WSMessage) ([]string, bool) {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return nil, false
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil || len(sub.Channels) == 0 {
		c.sendError(msg.ID, "payload must list channels")
		return nil, false
	}
	return sub.Channels, true
}

// trySend drops the message when the buffer is full and absorbs the
// panic of a send racing with unregister.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on closed channel
	}()
	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{Type: msgType, ID: id, Timestamp: stamp(), Payload: payload})
	if err == nil {
		c.trySend(data)
	}
}

func stamp() string { return time.Now().UTC().Format(time.RFC3339) }

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
