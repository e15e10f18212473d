package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// maxPayloadSize matches the default limit of common brokers.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic. Only state topics are published
// retained; events and commands never are.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}

	if err := wait(c.paho.Publish(topic, qos, retained, payload)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// PublishJSON marshals v and publishes it with the configured default QoS.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: marshalling payload: %w", ErrPublishFailed, err)
	}
	return c.Publish(topic, payload, byte(c.cfg.QoS), retained)
}

// PublishState publishes the retained reachability state of a device.
func (c *Client) PublishState(slug string, online bool, at time.Time) error {
	return c.PublishJSON(Topics{}.DeviceState(slug), StatePayload{
		Online:    online,
		Timestamp: at.UTC(),
	}, true)
}

// PublishEvent publishes a device event. A zero timestamp is set to now.
func (c *Client) PublishEvent(slug string, ev EventPayload) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ev.Timestamp = ev.Timestamp.UTC()
	return c.PublishJSON(Topics{}.DeviceEvent(slug), ev, false)
}
