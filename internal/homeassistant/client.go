package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Default settings.
const (
	defaultCallTimeout      = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultReadLimit        = 16 << 20

	// SupervisorURL is the websocket endpoint used when running as an add-on.
	SupervisorURL = "ws://supervisor/core/websocket"
)

// Config holds the connection settings of a Client.
type Config struct {
	// URL is the Home Assistant base URL (http, https, ws or wss). The
	// websocket path is appended when missing.
	URL string

	// AccessToken is a long-lived access token (or the supervisor token).
	AccessToken string

	// CallTimeout bounds how long a request waits for its result.
	// Default: 10 seconds.
	CallTimeout time.Duration

	// HandshakeTimeout bounds dial plus authentication.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// Logger is optional.
	Logger Logger
}

// EventHandler receives the payload of a subscription event.
type EventHandler func(event json.RawMessage)

// Client is a Home Assistant websocket API client.
//
// The client is created with NewClient and has no connection until Connect
// succeeds. Connection loss is not retried: Done is closed and pending
// requests fail with ErrClosed.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	cfg    Config
	wsURL  string
	dialer *websocket.Dialer
	logger Logger

	// writeMu orders frames on the socket; nextID is only advanced under it
	// because Home Assistant rejects ids that do not increase.
	writeMu sync.Mutex
	conn    *websocket.Conn
	nextID  int64

	mu        sync.Mutex
	pending   map[int64]chan envelope
	handlers  map[int64]EventHandler
	connected bool
	haVersion string

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewClient validates cfg and returns an unconnected client.
//
// Parameters:
//   - cfg: URL and access token are required
//
// Returns:
//   - *Client: ready to Connect
//   - error: ErrInvalidConfig if the URL cannot be used
func NewClient(cfg Config) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("%w: access token is required", ErrInvalidConfig)
	}
	wsURL, err := WebsocketURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}

	return &Client{
		cfg:    cfg,
		wsURL:  wsURL,
		logger: orNoop(cfg.Logger),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		pending:  make(map[int64]chan envelope),
		handlers: make(map[int64]EventHandler),
		done:     make(chan struct{}),
	}, nil
}

// WebsocketURL turns a Home Assistant base URL into its websocket API URL.
//
//	http://ha.local:8123        -> ws://ha.local:8123/api/websocket
//	https://ha.example.com/     -> wss://ha.example.com/api/websocket
//	ws://supervisor/core/websocket (unchanged)
func WebsocketURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: parsing url: %w", ErrInvalidConfig, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: url has no host", ErrInvalidConfig)
	}

	path := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(path, "/websocket") {
		path += "/api/websocket"
	}
	u.Path = path
	return u.String(), nil
}

// Connect dials Home Assistant, completes the auth handshake and starts the
// read loop.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(dialCtx, c.wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dialing home assistant: %w", err)
	}
	conn.SetReadLimit(defaultReadLimit)

	version, err := c.authenticate(dialCtx, conn)
	if err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.haVersion = version
	c.mu.Unlock()

	c.logger.Info("connected to home assistant", "url", c.wsURL, "ha_version", version)

	c.wg.Add(1)
	go c.readLoop(conn)
	return nil
}

func (c *Client) authenticate(ctx context.Context, conn *websocket.Conn) (string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		//nolint:errcheck // Best-effort deadline on handshake
		conn.SetReadDeadline(deadline)
		defer conn.SetReadDeadline(time.Time{}) //nolint:errcheck // cleared after handshake
	}

	var hello envelope
	if err := conn.ReadJSON(&hello); err != nil {
		return "", fmt.Errorf("reading auth request: %w", err)
	}
	if hello.Type != msgAuthRequired {
		return "", fmt.Errorf("%w: %q during handshake", ErrUnexpectedMessage, hello.Type)
	}

	//nolint:errcheck // Best-effort deadline; write error caught below
	conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if err := conn.WriteJSON(authMessage{Type: msgAuth, AccessToken: c.cfg.AccessToken}); err != nil {
		return "", fmt.Errorf("sending auth: %w", err)
	}

	var reply envelope
	if err := conn.ReadJSON(&reply); err != nil {
		return "", fmt.Errorf("reading auth reply: %w", err)
	}
	switch reply.Type {
	case msgAuthOK:
		return reply.HAVersion, nil
	case msgAuthInvalid:
		return "", fmt.Errorf("%w: %s", ErrAuthFailed, reply.Message)
	default:
		return "", fmt.Errorf("%w: %q during handshake", ErrUnexpectedMessage, reply.Type)
	}
}

// SubscribeEntities starts the compressed entity subscription. The handler
// runs on the read goroutine, once per upstream message, in arrival order.
// The first event carries every existing entity under Added.
//
// Returns the function that ends the subscription.
func (c *Client) SubscribeEntities(ctx context.Context, handler func(StatesUpdate)) (func(context.Context) error, error) {
	id, err := c.subscribe(ctx, commandMessage{Type: msgSubscribeEntities}, func(raw json.RawMessage) {
		var update StatesUpdate
		if err := json.Unmarshal(raw, &update); err != nil {
			c.logger.Warn("malformed entity update dropped", "error", err)
			return
		}
		handler(update)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to entities: %w", err)
	}

	return func(ctx context.Context) error {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
		_, err := c.request(ctx, func(reqID int64) any {
			return unsubscribeMessage{ID: reqID, Type: msgUnsubscribeEvents, Subscription: id}
		})
		return err
	}, nil
}

// CallService invokes a Home Assistant service on one entity.
//
// Parameters:
//   - domain, service: e.g. "light", "turn_on"
//   - target: the entity acted on
//   - data: service data such as {"brightness": 128}; may be nil
func (c *Client) CallService(ctx context.Context, domain, service string, target Target, data map[string]any) error {
	_, err := c.request(ctx, func(id int64) any {
		return callServiceMessage{
			ID:          id,
			Type:        msgCallService,
			Domain:      domain,
			Service:     service,
			Target:      target,
			ServiceData: data,
		}
	})
	if err != nil {
		return fmt.Errorf("calling %s.%s for %s: %w", domain, service, target.EntityID, err)
	}
	return nil
}

// HealthCheck sends a ping and waits for the pong.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.request(ctx, func(id int64) any {
		return commandMessage{ID: id, Type: msgPing}
	})
	return err
}

// IsConnected reports whether the connection is up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Version returns the Home Assistant version reported during auth.
func (c *Client) Version() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.haVersion
}

// Done is closed when the connection ends, for whatever reason.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close ends the connection and fails pending requests. Safe to call more
// than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn := c.conn
		c.connected = false
		c.mu.Unlock()

		if conn != nil {
			c.writeMu.Lock()
			//nolint:errcheck // Best-effort close frame
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.writeMu.Unlock()
			err = conn.Close()
		}
		c.wg.Wait()
		c.finish()
	})
	return err
}

// subscribe registers handler before the subscription request is sent, so
// no event can slip past it.
func (c *Client) subscribe(ctx context.Context, cmd commandMessage, handler EventHandler) (int64, error) {
	var subID int64
	_, err := c.request(ctx, func(id int64) any {
		subID = id
		c.mu.Lock()
		c.handlers[id] = handler
		c.mu.Unlock()
		cmd.ID = id
		return cmd
	})
	if err != nil {
		c.mu.Lock()
		delete(c.handlers, subID)
		c.mu.Unlock()
		return 0, err
	}
	return subID, nil
}

// request sends one message and waits for its result.
func (c *Client) request(ctx context.Context, build func(id int64) any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return nil, ErrNotConnected
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reply := make(chan envelope, 1)
	id, err := c.send(conn, reply, build)
	if err != nil {
		return nil, err
	}
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	select {
	case msg := <-reply:
		if msg.Type == msgPong {
			return nil, nil
		}
		if msg.Success != nil && !*msg.Success {
			if msg.Error != nil {
				return nil, fmt.Errorf("%w: %s: %s", ErrCallFailed, msg.Error.Code, msg.Error.Message)
			}
			return nil, ErrCallFailed
		}
		return msg.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// send allocates the next id, registers reply under it and writes the frame
// in one critical section, so ids reach the socket in increasing order.
func (c *Client) send(conn *websocket.Conn, reply chan envelope, build func(id int64) any) (int64, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.nextID++
	id := c.nextID
	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()

	//nolint:errcheck // Best-effort deadline; write error caught below
	conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if err := conn.WriteJSON(build(id)); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return 0, fmt.Errorf("writing message: %w", err)
	}
	return id, nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	defer c.finish()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				c.logger.Warn("home assistant connection lost", "error", err)
			} else {
				c.logger.Debug("home assistant connection closed", "error", err)
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var msg envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("malformed message from home assistant", "error", err)
		return
	}

	switch msg.Type {
	case msgEvent:
		c.mu.Lock()
		handler := c.handlers[msg.ID]
		c.mu.Unlock()
		if handler == nil {
			c.logger.Debug("event for unknown subscription", "id", msg.ID)
			return
		}
		c.runHandler(msg.ID, handler, msg.Event)
	case msgResult, msgPong:
		c.mu.Lock()
		reply, ok := c.pending[msg.ID]
		c.mu.Unlock()
		if ok {
			reply <- msg
		}
	default:
		c.logger.Debug("ignoring message", "type", msg.Type)
	}
}

func (c *Client) runHandler(id int64, handler EventHandler, event json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in subscription handler", "id", id, "panic", r)
		}
	}()
	handler(event)
}

// finish marks the client disconnected and closes Done exactly once.
func (c *Client) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}
