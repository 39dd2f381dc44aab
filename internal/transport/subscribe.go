package transport

import (
	"mqtt-transport/internal/topic"
)

// FailurePolicy selects how a subscription failure reaches the subscriber.
type FailurePolicy int

const (
	// FailureError: the postman returns a FailedSubscriptionError from
	// the failure callback. The error surfaces on the manager loop and
	// stops it. This is the default.
	FailureError FailurePolicy = iota
	// FailureNotify: the failure is delivered to the endpoint as a
	// typed SubscriptionFailed event for the application to handle.
	FailureNotify
)

// endpointPostman forwards transport callbacks to an endpoint as typed
// events.
type endpointPostman struct {
	dest      *Endpoint
	onFailure FailurePolicy
}

func (p *endpointPostman) SubscriptionAvailable(topicName string) {
	p.dest.Deliver(SubscriptionAvailable{Topic: topicName})
}

func (p *endpointPostman) SubscriptionUnavailable(topicName string) {
	p.dest.Deliver(SubscriptionUnavailable{Topic: topicName})
}

func (p *endpointPostman) SubscriptionFailed(topicName, description string) error {
	if p.onFailure == FailureNotify {
		p.dest.Deliver(SubscriptionFailed{Topic: topicName, Description: description})
		return nil
	}
	return &FailedSubscriptionError{Topic: topicName, Description: description}
}

func (p *endpointPostman) Post(topicName string, payload []byte) {
	p.dest.Deliver(IncomingMessage{Topic: topicName, Payload: payload})
}

// Subscribe creates a topic mailbox for filter and lets setup install
// handlers on it. If setup installed at least one handler, the manager is
// asked to subscribe; with no handlers installed nothing is registered.
// The returned mailbox stays valid for installing further handlers.
func Subscribe(m *Manager, filter string, setup func(*Mailbox), onFailure FailurePolicy) (*Mailbox, error) {
	if err := topic.ValidateFilter(filter); err != nil {
		return nil, err
	}

	endpoint := NewEndpoint()
	postman := &endpointPostman{dest: endpoint, onFailure: onFailure}
	mailbox := newMailbox(filter, m, endpoint, postman)

	setup(mailbox)

	if mailbox.SubscriberCount() != 0 {
		m.SubscribeTopic(filter, postman)
	}
	return mailbox, nil
}
