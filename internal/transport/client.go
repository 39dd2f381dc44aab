// Package transport brokers between application-level subscribers and a
// single MQTT broker connection. Applications register interest in topic
// filters (with MQTT wildcards) through the Subscribe helper; the Manager
// owns the broker connection lifecycle, the subscription state, routing of
// inbound messages, and recovery after disconnection.
package transport

import "time"

// ConnectionParams holds the parameters for the broker connection.
type ConnectionParams struct {
	ClientID  string
	Host      string
	Port      int
	Keepalive time.Duration
}

// Callbacks are fired by a Client as broker events arrive. OnMessage may be
// invoked from the client's network goroutine; the rest are re-posted to
// the manager loop.
type Callbacks struct {
	OnConnect        func()
	OnConnectionLost func(err error)
	OnSubscribeAck   func(mid uint16, grantedQoS []byte)
	OnMessage        func(topic string, payload []byte)
}

// Client is the thin adapter over an MQTT client library. Implementations
// must allow Publish from any goroutine.
type Client interface {
	// SetCallbacks installs the event callbacks. Must be called before
	// Connect.
	SetCallbacks(cb Callbacks)

	// SetWill configures the last-will message. Must be called before
	// Connect.
	SetWill(topic string, payload []byte, qos byte, retain bool) error

	// Connect starts the client's network machinery and initiates an
	// asynchronous connection; the outcome is reported via callbacks.
	Connect() error

	// Disconnect gracefully closes the connection and stops the
	// client's network machinery, waiting up to quiesce for in-flight
	// work.
	Disconnect(quiesce time.Duration)

	// Subscribe issues a broker subscribe and returns the message id
	// that the matching SUBACK will carry. ErrNoConnection and
	// ErrConnLost are recoverable: the caller still records a pending
	// entry and relies on the ack or the timeout path.
	Subscribe(filter string, qos byte) (uint16, error)

	// Unsubscribe issues a broker unsubscribe.
	Unsubscribe(filter string) error

	// Publish sends a message. Safe from any goroutine.
	Publish(topic string, payload []byte, qos byte, retain bool) error
}
