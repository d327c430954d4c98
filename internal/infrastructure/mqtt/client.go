package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-matterbridge/internal/infrastructure/config"
)

// Logger receives handler failures. logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is the broker connection behind the exposure mirror and the
// health reporter. It keeps the retained bridge status topic accurate:
// online after every (re)connect, offline on Close, and offline through
// the broker's will when the bridge vanishes.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	subs      subscriptionSet
	connected atomic.Bool

	mu           sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Connect dials the broker and waits for the first connection.
//
// Parameters:
//   - cfg: MQTT configuration; cfg.TopicPrefix roots every topic
//
// Returns:
//   - *Client: connected client
//   - error: ErrConnectionFailed wrapping the cause or a timeout
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		topics: Topics{Prefix: cfg.TopicPrefix},
	}

	opts := clientOptions(cfg, c.topics).
		SetOnConnectHandler(func(pahomqtt.Client) { c.connectionUp() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionDown(err) })

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		c.paho.Disconnect(0) // stops the retry loop
		return nil, fmt.Errorf("%w: no connection within %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The on-connect handler may not have run yet.
	c.connected.Store(true)
	return c, nil
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// QoS returns the configured default QoS.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS) //nolint:gosec // validated to 0..2
}

func (c *Client) connectionUp() {
	c.connected.Store(true)

	for _, sub := range c.subs.snapshot() {
		c.paho.Subscribe(sub.topic, sub.qos, c.dispatch(sub.handler))
	}
	c.paho.Publish(c.topics.BridgeStatus(), c.QoS(), true, statusPayload(StatusOnline, c.cfg.Broker.ClientID, ""))

	c.mu.RLock()
	hook := c.onConnect
	c.mu.RUnlock()
	if hook != nil {
		hook()
	}
}

func (c *Client) connectionDown(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	hook := c.onDisconnect
	c.mu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// Close publishes a retained offline status and disconnects. Closing an
// unconnected client is not an error.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.paho.Publish(c.topics.BridgeStatus(), c.QoS(), true,
			statusPayload(StatusOffline, c.cfg.Broker.ClientID, reasonShutdown)).
			WaitTimeout(operationTimeout)
	}
	c.paho.Disconnect(disconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// IsConnected reports whether the broker connection is currently up.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.connected.Load() && c.paho.IsConnected()
}

// SetOnConnect sets a hook run after the first connect and every reconnect.
func (c *Client) SetOnConnect(hook func()) {
	c.mu.Lock()
	c.onConnect = hook
	c.mu.Unlock()
}

// SetOnDisconnect sets a hook run when the connection is lost.
func (c *Client) SetOnDisconnect(hook func(err error)) {
	c.mu.Lock()
	c.onDisconnect = hook
	c.mu.Unlock()
}

// SetLogger sets the logger used for handler errors and panics.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// dispatch adapts a MessageHandler to paho, logging returned errors and
// recovering panics so one bad message cannot stop delivery.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.mu.RLock()
		logger := c.logger
		c.mu.RUnlock()

		defer func() {
			if r := recover(); r != nil && logger != nil {
				logger.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil && logger != nil {
			logger.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}
