package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// CommandHandler receives a validated device command. slug identifies the
// device by its normalised name.
type CommandHandler func(slug string, cmd CommandPayload) error

// Subscribe registers handler for topic, which may contain the + and #
// wildcards, e.g. "womgr/device/+/command". The subscription is remembered
// and restored after a reconnect; a failed subscribe is forgotten again.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if err := wait(c.paho.Subscribe(topic, qos, c.wrapHandler(handler))); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// Unsubscribe drops the subscription for the exact topic pattern. Messages
// already in flight may still be delivered.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)
	if err := wait(c.paho.Unsubscribe(topic)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}

func (c *Client) forget(topic string) {
	c.mu.Lock()
	delete(c.subscriptions, topic)
	c.mu.Unlock()
}

// wait blocks for token up to publishTimeout.
func wait(token pahomqtt.Token) error {
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timeout after %v", publishTimeout)
	}
	return token.Error()
}

// SubscriptionCount returns the number of remembered subscriptions.
func (c *Client) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions)
}

// SubscribeCommands subscribes to every device command topic. Payloads that
// fail ParseCommand are rejected with an error, which the client logs; the
// handler only sees valid commands.
func (c *Client) SubscribeCommands(handler CommandHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	return c.Subscribe(Topics{}.AllDeviceCommands(), byte(c.cfg.QoS), commandDispatcher(handler))
}

// commandDispatcher adapts a CommandHandler to a MessageHandler.
func commandDispatcher(handler CommandHandler) MessageHandler {
	return func(topic string, payload []byte) error {
		slug, ok := DeviceSlug(topic)
		if !ok {
			return fmt.Errorf("%w: not a device topic: %s", ErrInvalidCommand, topic)
		}
		cmd, err := ParseCommand(payload)
		if err != nil {
			return err
		}
		return handler(slug, cmd)
	}
}
