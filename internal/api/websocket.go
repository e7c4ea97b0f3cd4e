package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/droidprobe/internal/extraction"
	"github.com/nerrad567/droidprobe/internal/infrastructure/config"
	"github.com/nerrad567/droidprobe/internal/infrastructure/logging"
	"github.com/nerrad567/droidprobe/internal/publish"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypeExtract     = "extract"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const (
	// WSAllChannels subscribes a client to every channel.
	WSAllChannels = "*"

	wsSendBufferSize = 256
	wsExtractTimeout = 2 * time.Minute
)

// wsChannels lists the channels a client may subscribe to.
var wsChannels = []string{
	publish.ChannelDevices,
	publish.ChannelInfo,
	publish.ChannelExtractions,
	WSAllChannels,
}

// WSMessage is a message sent to a client. Clients send the same shape.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is an inbound client message; the payload is decoded per type.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// WSExtractPayload is the payload of an extract request. The response
// carries the extraction.Result.
type WSExtractPayload struct {
	Serial string   `json:"serial"`
	Groups []string `json:"groups,omitempty"`
	Force  bool     `json:"force,omitempty"`
}

// Hub tracks connected clients and fans events out to subscribers.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one connected WebSocket client.
type WSClient struct {
	hub  *Hub
	srv  *Server // nil for clients that cannot request extractions
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]struct{}
	closed        bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// NewHub creates a WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Register adds a client.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client and closes its send queue.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// Broadcast sends payload as an event on channel to every subscribed
// client. Slow clients whose queue is full miss the event.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeMessage(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("failed to encode websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		if c.isSubscribed(channel) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the connection.
//
// Clients subscribe with {"type":"subscribe","payload":{"channels":[...]}}
// or up front with ?channels=devices,extractions. Subscribing to the devices
// channel is answered with the current device list.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var initial []string
	if q := r.URL.Query().Get("channels"); q != "" {
		for _, ch := range strings.Split(q, ",") {
			if ch = strings.TrimSpace(ch); ch != "" {
				initial = append(initial, ch)
			}
		}
		if err := checkChannels(initial); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	hub := s.Hub()
	c := &WSClient{
		hub:           hub,
		srv:           s,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(c)
	if len(initial) > 0 {
		c.subscribe(initial)
	}

	go c.writePump(s.wsCfg)
	go c.readPump(s.wsCfg)
}

func checkChannels(channels []string) error {
	for _, ch := range channels {
		if !slices.Contains(wsChannels, ch) {
			return fmt.Errorf("unknown channel %q (known: %s)", ch, strings.Join(wsChannels, ", "))
		}
	}
	return nil
}

func encodeMessage(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	deadline := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(deadline)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Application messages count as liveness too; some clients never
		// answer protocol pings.
		extend() //nolint:errcheck // as above
		c.handleMessage(data)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write reports it
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var p WSSubscribePayload
		if err := json.Unmarshal(req.Payload, &p); err != nil || len(p.Channels) == 0 {
			c.sendError(req.ID, "payload must list channels")
			return
		}
		if req.Type == WSTypeUnsubscribe {
			c.unsubscribe(p.Channels)
			c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": p.Channels})
			return
		}
		if err := checkChannels(p.Channels); err != nil {
			c.sendError(req.ID, err.Error())
			return
		}
		c.reply(req.ID, WSTypeResponse, map[string]any{"subscribed": p.Channels})
		c.subscribe(p.Channels)
	case WSTypeExtract:
		c.handleExtract(req)
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.sendError(req.ID, "unknown message type: "+req.Type)
	}
}

// subscribe adds channels. A new devices subscription is sent the current
// device list.
func (c *WSClient) subscribe(channels []string) {
	c.mu.Lock()
	_, hadDevices := c.subscriptions[publish.ChannelDevices]
	_, hadAll := c.subscriptions[WSAllChannels]
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Debug("websocket client subscribed", "channels", channels)

	wantsDevices := slices.Contains(channels, publish.ChannelDevices) || slices.Contains(channels, WSAllChannels)
	if c.srv != nil && wantsDevices && !hadDevices && !hadAll {
		devices := summarizeAll(c.srv.session.Devices())
		c.push(WSMessage{
			Type:      WSTypeEvent,
			EventType: publish.ChannelDevices,
			Payload:   map[string]any{"devices": devices, "count": len(devices)},
		})
	}
}

func (c *WSClient) unsubscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.subscriptions, ch)
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.subscriptions[WSAllChannels]; ok {
		return true
	}
	_, ok := c.subscriptions[channel]
	return ok
}

// handleExtract runs an extraction pass in the background and replies with
// its result.
func (c *WSClient) handleExtract(req wsRequest) {
	if c.srv == nil {
		c.sendError(req.ID, "extraction is not available on this connection")
		return
	}
	var p WSExtractPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil || p.Serial == "" {
		c.sendError(req.ID, "extract payload must name a serial")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), wsExtractTimeout)
		defer cancel()

		res, err := c.srv.session.Extract(ctx, p.Serial, extraction.Options{Groups: p.Groups, Force: p.Force})
		if err != nil {
			if !errors.Is(err, extraction.ErrUnknownGroup) {
				c.hub.logger.Warn("websocket extraction failed", "serial", p.Serial, "error", err)
			}
			c.sendError(req.ID, err.Error())
			return
		}
		c.reply(req.ID, WSTypeResponse, res)
	}()
}

func (c *WSClient) reply(id, msgType string, payload any) {
	c.push(WSMessage{Type: msgType, ID: id, Payload: payload})
}

func (c *WSClient) sendError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}

func (c *WSClient) push(msg WSMessage) {
	data, err := encodeMessage(msg)
	if err != nil {
		c.hub.logger.Error("failed to encode websocket message", "type", msg.Type, "error", err)
		return
	}
	c.enqueue(data)
}

// enqueue queues data without blocking. It drops the message when the
// client is closed or its queue is full.
func (c *WSClient) enqueue(data []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// close closes the send queue once.
func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
