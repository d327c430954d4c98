package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-matterbridge/internal/infrastructure/config"
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

	// WSChannelAll matches every event channel.
	WSChannelAll = "*"

	wsSendBufferSize = 256
)

// WSMessage is the envelope of every frame the server sends.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe requests.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is a frame received from a client.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// channelSet is a client's subscriptions.
type channelSet struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

func newChannelSet(channels []string) *channelSet {
	s := &channelSet{set: make(map[string]struct{}, len(channels))}
	s.add(channels)
	return s
}

func (s *channelSet) add(channels []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range channels {
		s.set[ch] = struct{}{}
	}
}

func (s *channelSet) remove(channels []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range channels {
		delete(s.set, ch)
	}
}

func (s *channelSet) matches(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, all := s.set[WSChannelAll]; all {
		return true
	}
	_, ok := s.set[channel]
	return ok
}

// WSClient is one connected WebSocket client.
type WSClient struct {
	hub      *Hub
	conn     *websocket.Conn
	channels *channelSet

	// send is closed exactly once, under mu, when the client goes away.
	mu     sync.RWMutex
	send   chan []byte
	closed bool
}

func newWSClient(hub *Hub, conn *websocket.Conn, channels []string) *WSClient {
	return &WSClient{
		hub:      hub,
		conn:     conn,
		channels: newChannelSet(channels),
		send:     make(chan []byte, wsSendBufferSize),
	}
}

// enqueue queues data unless the client is gone or its queue is full.
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

func (c *WSClient) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The CORS middleware has already vetted the origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket upgrades the request and starts the client's pumps.
//
// Query parameters:
//   - channels: optional comma-separated initial subscriptions
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, splitChannels(r.URL.Query().Get("channels")))
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer c.hub.Unregister(c)

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
		extend() //nolint:errcheck // see above
		c.handleRequest(data)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer ticker.Stop()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write reports it
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // connection is going away
				return
			}
			if write(websocket.TextMessage, data) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleRequest(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, errorBody("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if err := json.Unmarshal(req.Payload, &sub); err != nil {
			c.reply(req.ID, WSTypeError, errorBody("invalid subscription payload"))
			return
		}
		if req.Type == WSTypeSubscribe {
			c.channels.add(sub.Channels)
			c.reply(req.ID, WSTypeResponse, map[string]any{"subscribed": sub.Channels})
		} else {
			c.channels.remove(sub.Channels)
			c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": sub.Channels})
		}
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.reply(req.ID, WSTypeError, errorBody("unknown message type: "+req.Type))
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: wsTimestamp(),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func errorBody(message string) map[string]string {
	return map[string]string{"message": message}
}
