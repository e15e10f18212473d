package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/womgr-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	keepAlive      = 60 * time.Second

	// disconnectQuiesceMS lets in-flight publishes drain on Close.
	disconnectQuiesceMS = 1000

	maxQoS = 2
)

// Service status values published on womgr/system/status.
const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonCrash    = "unexpected_disconnect"
	reasonShutdown = "graceful_shutdown"
)

// brokerURL renders tcp://host:port, or ssl:// when TLS is on.
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// clientOptions maps the configuration onto paho options. The session is
// clean, reconnects back off between the configured delays and the broker
// publishes a retained offline status if the service dies without Close.
func clientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay)*time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay)*time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetWill(Topics{}.SystemStatus(), string(statusMessage(cfg.Broker.ClientID, statusOffline, reasonCrash)), 1, true)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// statusMessage encodes a StatusPayload. Encoding a struct of strings
// cannot fail.
func statusMessage(clientID, status, reason string) []byte {
	data, _ := json.Marshal(StatusPayload{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	return data
}
