package transport

import (
	"sync"
	"sync/atomic"
)

// Mailbox is the per-topic endpoint handed to subscribers. It wraps an
// actual endpoint and counts installed handlers; when the count drops to
// zero the mailbox asks the manager to drop the subscription for its
// topic/postman pair. All other endpoint operations are forwarded
// verbatim.
type Mailbox struct {
	filter   string
	manager  *Manager
	endpoint *Endpoint
	postman  Postman

	subscribers atomic.Int32
}

func newMailbox(filter string, manager *Manager, endpoint *Endpoint, postman Postman) *Mailbox {
	return &Mailbox{
		filter:   filter,
		manager:  manager,
		endpoint: endpoint,
		postman:  postman,
	}
}

// Filter returns the topic filter this mailbox is tied to.
func (mb *Mailbox) Filter() string {
	return mb.filter
}

// ID returns the underlying endpoint's id.
func (mb *Mailbox) ID() string {
	return mb.endpoint.ID()
}

// Deliver forwards an event to the underlying endpoint.
func (mb *Mailbox) Deliver(ev any) {
	mb.endpoint.Deliver(ev)
}

// SubscriberCount returns the number of currently installed handlers.
func (mb *Mailbox) SubscriberCount() int {
	return int(mb.subscribers.Load())
}

// AddHandler installs a raw event handler. Removing the last handler
// sends exactly one UnsubscribeTopic for the mailbox's topic/postman pair.
func (mb *Mailbox) AddHandler(fn func(ev any)) (remove func()) {
	removeFromEndpoint := mb.endpoint.AddHandler(fn)
	mb.subscribers.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			removeFromEndpoint()
			if mb.subscribers.Add(-1) == 0 {
				mb.manager.UnsubscribeTopic(mb.filter, mb.postman)
			}
		})
	}
}

// OnMessage installs a handler for messages received from the topic.
func (mb *Mailbox) OnMessage(fn func(topic string, payload []byte)) (remove func()) {
	return mb.AddHandler(func(ev any) {
		if msg, ok := ev.(IncomingMessage); ok {
			fn(msg.Topic, msg.Payload)
		}
	})
}

// OnSubscriptionAvailable installs a handler for subscription
// acknowledgements.
func (mb *Mailbox) OnSubscriptionAvailable(fn func(topic string)) (remove func()) {
	return mb.AddHandler(func(ev any) {
		if e, ok := ev.(SubscriptionAvailable); ok {
			fn(e.Topic)
		}
	})
}

// OnSubscriptionUnavailable installs a handler for subscription loss.
func (mb *Mailbox) OnSubscriptionUnavailable(fn func(topic string)) (remove func()) {
	return mb.AddHandler(func(ev any) {
		if e, ok := ev.(SubscriptionUnavailable); ok {
			fn(e.Topic)
		}
	})
}

// OnSubscriptionFailed installs a handler for subscription failures
// delivered under the FailureNotify policy.
func (mb *Mailbox) OnSubscriptionFailed(fn func(topic, description string)) (remove func()) {
	return mb.AddHandler(func(ev any) {
		if e, ok := ev.(SubscriptionFailed); ok {
			fn(e.Topic, e.Description)
		}
	})
}
