package transport

import (
	"fmt"

	"mqtt-transport/internal/codec"
	"mqtt-transport/internal/topic"
)

// Publisher publishes encoded application values through the manager.
type Publisher struct {
	manager *Manager
	codec   codec.Codec
}

// NewPublisher creates a publisher using the given codec.
func NewPublisher(m *Manager, c codec.Codec) *Publisher {
	return &Publisher{manager: m, codec: c}
}

// Publish encodes v and publishes it to the topic. Encoding and topic
// validation errors are returned; transport failures follow the manager's
// best-effort publish semantics.
func (p *Publisher) Publish(topicName string, v any) error {
	if err := topic.ValidateName(topicName); err != nil {
		return err
	}

	payload, err := p.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode payload for %s: %w", topicName, err)
	}

	p.manager.Publish(topicName, payload)
	return nil
}

// Decode unpacks an incoming message's payload into v using the codec.
func (msg IncomingMessage) Decode(c codec.Codec, v any) error {
	return c.Decode(msg.Payload, v)
}
