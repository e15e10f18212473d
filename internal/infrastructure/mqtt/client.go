package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/womgr-core/internal/infrastructure/config"
)

// Logger is the logging surface the client needs. *logging.Logger and
// *slog.Logger satisfy it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageHandler receives one message. paho runs handlers on its own
// goroutines; a returned error is logged and the message is still
// acknowledged.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client is the womgr broker connection. It publishes device state and
// events, receives device commands and announces the service itself on
// womgr/system/status.
//
// All methods are safe for concurrent use. Subscriptions survive
// reconnects: paho reconnects on its own and the client subscribes again.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	// up follows the connect/lost callbacks; IsConnected also asks paho.
	up atomic.Bool

	mu            sync.RWMutex
	subscriptions map[string]subscription
	logger        Logger
	onConnect     func()
	onDisconnect  func(err error)
}

// Connect dials the broker and waits up to ten seconds for the session.
// The retained status topic flips to online once the session is up; if the
// process later dies without Close the broker flips it back to offline.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}

	opts := clientOptions(cfg).
		SetOnConnectHandler(func(pahomqtt.Client) { c.connected() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) }).
		SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
			c.log().Warn("MQTT reconnecting", "broker", brokerURL(cfg.Broker))
		})

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler may still be running; callers expect a connected
	// client as soon as Connect returns.
	c.up.Store(true)
	return c, nil
}

// connected runs on the initial connect and on every reconnect.
func (c *Client) connected() {
	c.up.Store(true)

	c.mu.RLock()
	for topic, sub := range c.subscriptions {
		c.paho.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
	}
	hook := c.onConnect
	c.mu.RUnlock()

	c.paho.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true,
		statusMessage(c.cfg.Broker.ClientID, statusOnline, ""))

	if hook != nil {
		hook()
	}
}

func (c *Client) lost(err error) {
	c.up.Store(false)
	c.log().Warn("MQTT connection lost", "error", err)

	c.mu.RLock()
	hook := c.onDisconnect
	c.mu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// Close publishes a graceful offline status, lets pending publishes drain
// and disconnects. Closing a client that never connected is a no-op.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.paho.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true,
			statusMessage(c.cfg.Broker.ClientID, statusOffline, reasonShutdown)).
			WaitTimeout(publishTimeout)
	}
	c.paho.Disconnect(disconnectQuiesceMS)
	c.up.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether a session is currently up.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.up.Load() && c.paho.IsConnected()
}

// SetOnConnect sets a callback run after every (re)connect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for connection changes and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.logger == nil {
		return noopLogger{}
	}
	return c.logger
}

// wrapHandler adapts handler to paho. A panic is logged and swallowed so
// it cannot take down paho's router goroutine.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log().Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}
