// Package bridge forwards messages from subscribed MQTT topics into NATS.
// It is a plain consumer of the transport API: one topic mailbox per
// configured filter, republishing every inbound message on the mapped
// NATS subject.
package bridge

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"mqtt-transport/config"
	"mqtt-transport/internal/logger"
	"mqtt-transport/internal/transport"
)

// Bridge owns the NATS connection and the transport subscriptions it
// created.
type Bridge struct {
	cfg     config.BridgeConfig
	manager *transport.Manager
	log     *logger.Logger
	conn    *nats.Conn

	removals []func()
}

// New connects to NATS. No MQTT subscriptions are made until Start.
func New(cfg config.BridgeConfig, manager *transport.Manager, log *logger.Logger) (*Bridge, error) {
	opts := []nats.Option{
		nats.Name("mqtt-transport-bridge"),
		nats.ReconnectWait(time.Second * 2),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &Bridge{
		cfg:     cfg,
		manager: manager,
		log:     log,
		conn:    conn,
	}, nil
}

// Start subscribes to every configured topic filter and begins
// forwarding. Subscription failures are notifications here, not fatal:
// the bridge logs them and keeps the rest of the filters alive.
func (b *Bridge) Start() error {
	for _, filter := range b.cfg.Topics {
		_, err := transport.Subscribe(b.manager, filter, func(mb *transport.Mailbox) {
			b.removals = append(b.removals, mb.OnMessage(b.forward))
			b.removals = append(b.removals, mb.OnSubscriptionFailed(func(topic, description string) {
				b.log.Error("bridge subscription failed",
					"topic", topic, "description", description)
			}))
		}, transport.FailureNotify)
		if err != nil {
			return fmt.Errorf("failed to subscribe bridge filter %s: %w", filter, err)
		}
		b.log.Info("bridge filter registered", "topic", filter)
	}
	return nil
}

func (b *Bridge) forward(topic string, payload []byte) {
	subject := ToNATSSubject(topic)
	if err := b.conn.Publish(subject, payload); err != nil {
		b.log.Warn("bridge publish failed",
			"topic", topic, "subject", subject, "error", err)
		return
	}
	b.log.Debug("bridged message", "topic", topic, "subject", subject)
}

// Close drops the bridge's subscriptions and closes the NATS connection.
// Removing the last handler of each mailbox triggers the matching MQTT
// unsubscribe.
func (b *Bridge) Close() {
	for _, remove := range b.removals {
		remove()
	}
	b.removals = nil
	b.conn.Close()
}
