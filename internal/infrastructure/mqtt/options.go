package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds a single connect attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options describes the broker endpoint. The identity used to log in is
// supplied per connect attempt (see Identity).
type Options struct {
	Host string
	Port int
	TLS  bool

	// QoS is the default quality of service for publishes and subscriptions.
	QoS byte

	// ConnectTimeout bounds a single connect attempt. Default: 10s.
	ConnectTimeout time.Duration

	// KeepAlive is the MQTT keepalive period. Default: 60s.
	KeepAlive time.Duration
}

// OptionsFromConfig builds Options from the thingsboard section of config.yaml.
func OptionsFromConfig(cfg config.ThingsBoardConfig) Options {
	return Options{
		Host: cfg.Host,
		Port: cfg.Port,
		TLS:  cfg.TLS,
		QoS:  byte(cfg.QoS), //nolint:gosec // Validated to 0..2 by config
	}
}

// Identity is the login presented on a connect attempt.
//
// An empty ClientID lets the client derive one from the username; an empty
// Password sends no password (token-style authentication).
type Identity struct {
	ClientID string
	Username string
	Password string
}

// BrokerURL returns the broker URL (tcp:// or ssl:// based on TLS setting).
func (o Options) BrokerURL() string {
	scheme := "tcp"
	if o.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, o.Host, o.Port)
}

// buildClientOptions creates paho MQTT options for one connect attempt.
//
// Reconnection is disabled: the session state machine decides when to
// connect again, and with which identity.
func buildClientOptions(o Options, id Identity) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.BrokerURL())

	clientID := id.ClientID
	if clientID == "" {
		clientID = id.Username
	}
	opts.SetClientID(clientID)

	if id.Username != "" {
		opts.SetUsername(id.Username)
	}
	if id.Password != "" {
		opts.SetPassword(id.Password)
	}

	// Subscriptions never survive a reconnect; they are re-issued explicitly.
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	connectTimeout := o.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(connectTimeout)

	keepAlive := o.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	// Handlers are dispatched in arrival order on paho's router goroutine.
	opts.SetOrderMatters(true)

	if o.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}
