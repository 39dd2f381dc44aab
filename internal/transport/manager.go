package transport

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mqtt-transport/internal/logger"
	"mqtt-transport/internal/metrics"
	"mqtt-transport/internal/stats"
	"mqtt-transport/internal/topic"
)

// All subscriptions and publishes use QoS 0.
const qosToUse byte = 0

const (
	defaultSubscriptionTimeout = 60 * time.Second
	defaultTickInterval        = time.Second
	defaultDisconnectQuiesce   = 250 * time.Millisecond
	commandQueueSize           = 128
)

// managerState is the connection half of the manager's state machine. The
// manager is always "working"; within that it is either disconnected or
// connected.
type managerState int

const (
	stateDisconnected managerState = iota
	stateConnected
)

// Commands and adapter events handled on the manager loop.
type (
	subscribeCmd struct {
		filter  string
		postman Postman
	}
	unsubscribeCmd struct {
		filter  string
		postman Postman
	}
	connectedEvent    struct{}
	disconnectedEvent struct{ err error }
	subscriptionAck   struct {
		mid        uint16
		grantedQoS []byte
	}
)

// Manager owns the broker connection and the subscription state. All of
// its bookkeeping (registry, delivery tree, pending-ack table, state) is
// mutated on a single loop goroutine; inbound message delivery and
// publishing run concurrently with it (see deliverMessage and Publish).
type Manager struct {
	client  Client
	params  ConnectionParams
	log     *logger.Logger
	metrics *metrics.Metrics
	stats   *stats.Collector

	// Touched only on the manager loop.
	state      managerState
	registered map[string]*subscriptionInfo
	pending    map[uint16]pendingSubscription

	// Read concurrently by deliverMessage; mutated on the loop.
	delivery *topic.Tree[*subscriptionInfo]

	// Pre-start configuration.
	subscriptionTimeout time.Duration
	tickInterval        time.Duration
	connListeners       []func(connected bool)

	commands chan any
	quit     chan struct{}
	loopDone chan struct{}
	wg       sync.WaitGroup

	started atomic.Bool
	stopped atomic.Bool

	errMu  sync.Mutex
	runErr error
}

// NewManager creates a transport manager over the given client adapter.
// The metrics and stats arguments may be nil.
func NewManager(client Client, params ConnectionParams, log *logger.Logger, m *metrics.Metrics, st *stats.Collector) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("client adapter is required")
	}
	if params.Host == "" {
		return nil, fmt.Errorf("broker host is required")
	}

	return &Manager{
		client:              client,
		params:              params,
		log:                 log,
		metrics:             m,
		stats:               st,
		state:               stateDisconnected,
		registered:          make(map[string]*subscriptionInfo),
		pending:             make(map[uint16]pendingSubscription),
		delivery:            topic.NewTree[*subscriptionInfo](),
		subscriptionTimeout: defaultSubscriptionTimeout,
		tickInterval:        defaultTickInterval,
		commands:            make(chan any, commandQueueSize),
		quit:                make(chan struct{}),
		loopDone:            make(chan struct{}),
	}, nil
}

// SetWill configures the last-will message. Must be called before Start.
func (m *Manager) SetWill(topicName string, payload []byte, qos byte, retain bool) error {
	if m.started.Load() {
		return fmt.Errorf("will must be configured before start")
	}
	if err := m.client.SetWill(topicName, payload, qos, retain); err != nil {
		return fmt.Errorf("failed to set will: %w", err)
	}
	return nil
}

// SetSubscriptionTimeout overrides the 60 s default. Must be called before
// Start.
func (m *Manager) SetSubscriptionTimeout(d time.Duration) {
	if !m.started.Load() {
		m.subscriptionTimeout = d
	}
}

// OnConnectionState registers a listener for broker connected/disconnected
// broadcasts. Must be called before Start. Listeners run on the manager
// loop, except the initial disconnected broadcast, which runs inside Start
// on the caller's goroutine.
func (m *Manager) OnConnectionState(fn func(connected bool)) {
	if !m.started.Load() {
		m.connListeners = append(m.connListeners, fn)
	}
}

// Start installs the adapter callbacks, initiates the asynchronous broker
// connection, and launches the manager loop.
func (m *Manager) Start() error {
	if !m.started.CompareAndSwap(false, true) {
		return fmt.Errorf("manager already started")
	}

	m.client.SetCallbacks(Callbacks{
		OnConnect:        func() { m.post(connectedEvent{}) },
		OnConnectionLost: func(err error) { m.post(disconnectedEvent{err: err}) },
		OnSubscribeAck: func(mid uint16, granted []byte) {
			m.post(subscriptionAck{mid: mid, grantedQoS: granted})
		},
		OnMessage: m.deliverMessage,
	})

	// Initial state is disconnected; interested parties hear about it
	// just as they would after a connection loss.
	m.notifyConnectionState(false)

	if err := m.client.Connect(); err != nil {
		return fmt.Errorf("failed to initiate broker connection: %w", err)
	}

	m.log.Info("transport manager started",
		"host", m.params.Host,
		"port", m.params.Port,
		"clientId", m.params.ClientID)

	m.wg.Add(1)
	go m.run()
	return nil
}

// Stop shuts the manager down: the loop is stopped, then the connection is
// closed gracefully and the client's machinery torn down.
func (m *Manager) Stop() {
	if !m.stopped.CompareAndSwap(false, true) {
		return
	}

	close(m.quit)
	m.wg.Wait()

	m.client.Disconnect(defaultDisconnectQuiesce)
	m.log.Info("transport manager stopped")
}

// Err reports the error that stopped the manager loop, if any.
func (m *Manager) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.runErr
}

// SubscribeTopic registers a postman's interest in a topic filter. The
// subscription is processed asynchronously on the manager loop.
func (m *Manager) SubscribeTopic(filter string, p Postman) {
	m.post(subscribeCmd{filter: filter, postman: p})
}

// UnsubscribeTopic drops a postman's interest in a topic filter.
func (m *Manager) UnsubscribeTopic(filter string, p Postman) {
	m.post(unsubscribeCmd{filter: filter, postman: p})
}

// Publish sends a message with QoS 0, best effort: failures are logged and
// dropped. Safe from any goroutine.
func (m *Manager) Publish(topicName string, payload []byte) {
	m.log.Debug("message publish", "topic", topicName, "payloadSize", len(payload))

	if err := m.client.Publish(topicName, payload, qosToUse, false); err != nil {
		m.log.Warn("message publish failed",
			"topic", topicName,
			"payloadSize", len(payload),
			"error", err)
		m.safeStats(func(s *stats.Collector) { s.IncErrors() })
		m.safeMetrics(func(mm *metrics.Metrics) { mm.IncPublishesTotal("error") })
		return
	}

	m.safeStats(func(s *stats.Collector) { s.IncMessagesPublished() })
	m.safeMetrics(func(mm *metrics.Metrics) { mm.IncPublishesTotal("success") })
}

// post enqueues a command or event for the manager loop, dropping it if
// the loop has already terminated.
func (m *Manager) post(cmd any) {
	select {
	case m.commands <- cmd:
	case <-m.loopDone:
	}
}

func (m *Manager) run() {
	defer m.wg.Done()
	defer close(m.loopDone)

	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.quit:
			return
		case cmd := <-m.commands:
			if err := m.handle(cmd); err != nil {
				m.fail(err)
				return
			}
		case <-ticker.C:
			if err := m.checkPendingSubscriptions(); err != nil {
				m.fail(err)
				return
			}
		}
	}
}

func (m *Manager) fail(err error) {
	m.errMu.Lock()
	m.runErr = err
	m.errMu.Unlock()
	m.log.Error("transport manager loop stopped", "error", err)
}

func (m *Manager) handle(cmd any) error {
	switch c := cmd.(type) {
	case subscribeCmd:
		return m.handleSubscribeTopic(c)
	case unsubscribeCmd:
		m.handleUnsubscribeTopic(c)
	case connectedEvent:
		if m.state == stateDisconnected {
			return m.enterConnected()
		}
	case disconnectedEvent:
		if m.state == stateConnected {
			m.log.Info("broker connection lost", "error", c.err)
			m.enterDisconnected()
		}
	case subscriptionAck:
		// Outside of connected the pending table is empty and late
		// acks carry no meaning.
		if m.state == stateConnected {
			return m.handleSubscriptionAck(c)
		}
		m.log.Debug("subscription ack while disconnected, dropped", "mid", c.mid)
	default:
		m.log.Warn("unknown manager command", "command", fmt.Sprintf("%T", cmd))
	}
	return nil
}

// enterConnected is the Disconnected → Connected transition.
func (m *Manager) enterConnected() error {
	m.state = stateConnected
	m.log.Info("broker connected", "host", m.params.Host, "port", m.params.Port)

	m.safeMetrics(func(mm *metrics.Metrics) { mm.SetMQTTConnectionStatus(true) })
	m.notifyConnectionState(true)

	// Restore every registered subscription across the reconnect.
	for filter := range m.registered {
		if err := m.issueSubscribe(filter); err != nil {
			return err
		}
	}
	return nil
}

// enterDisconnected is the Connected → Disconnected transition. Exit
// actions for connected run first: statuses drop to unsubscribed and the
// pending table empties.
func (m *Manager) enterDisconnected() {
	for filter, info := range m.registered {
		info.subscriptionLost(filter)
	}
	m.pending = make(map[uint16]pendingSubscription)
	m.safeMetrics(func(mm *metrics.Metrics) {
		mm.SetPendingSubscriptions(0)
		mm.SetMQTTConnectionStatus(false)
		mm.IncMQTTReconnects()
	})

	m.state = stateDisconnected
	m.notifyConnectionState(false)
}

func (m *Manager) handleSubscribeTopic(cmd subscribeCmd) error {
	m.log.Debug("add topic postman", "topic", cmd.filter)

	info, ok := m.registered[cmd.filter]
	if !ok {
		info = newSubscriptionInfo()
		m.registered[cmd.filter] = info
	}

	if err := info.addPostman(cmd.filter, cmd.postman); err != nil {
		return err
	}

	if !ok {
		// Freshly created record: wire it for delivery and, when
		// connected, ask the broker right away.
		if err := m.delivery.Insert(cmd.filter, info); err != nil {
			delete(m.registered, cmd.filter)
			m.log.Warn("invalid topic filter ignored", "topic", cmd.filter, "error", err)
			return nil
		}
		m.safeMetrics(func(mm *metrics.Metrics) {
			mm.SetSubscriptionsActive(float64(len(m.registered)))
		})
		if m.state == stateConnected {
			return m.issueSubscribe(cmd.filter)
		}
	}
	return nil
}

func (m *Manager) handleUnsubscribeTopic(cmd unsubscribeCmd) {
	m.log.Debug("remove topic postman", "topic", cmd.filter)

	info, ok := m.registered[cmd.filter]
	if !ok {
		m.log.Warn("topic for unsubscription is not registered", "topic", cmd.filter)
		return
	}

	info.removePostman(cmd.postman)
	if info.hasPostmen() {
		return
	}

	m.delivery.Erase(cmd.filter, info)
	delete(m.registered, cmd.filter)
	m.safeMetrics(func(mm *metrics.Metrics) {
		mm.SetSubscriptionsActive(float64(len(m.registered)))
	})

	m.log.Info("topic unsubscription", "topic", cmd.filter)

	// The manager is already consistent; a broker error here is only
	// worth a log line.
	if err := m.client.Unsubscribe(cmd.filter); err != nil {
		m.log.Warn("broker unsubscribe failed", "topic", cmd.filter, "error", err)
	}
}

// issueSubscribe sends the broker subscribe and records the pending entry.
// NoConnection/ConnLost are accepted: the entry stays pending and times
// out if no ack ever arrives.
func (m *Manager) issueSubscribe(filter string) error {
	m.log.Info("topic subscription", "topic", filter)

	mid, err := m.client.Subscribe(filter, qosToUse)
	if err != nil && !errors.Is(err, ErrNoConnection) && !errors.Is(err, ErrConnLost) {
		return fmt.Errorf("broker subscribe failed, topic %s: %w", filter, err)
	}

	m.pending[mid] = pendingSubscription{filter: filter, initiatedAt: time.Now()}
	m.safeMetrics(func(mm *metrics.Metrics) {
		mm.SetPendingSubscriptions(float64(len(m.pending)))
	})
	return nil
}

func (m *Manager) handleSubscriptionAck(ack subscriptionAck) error {
	pending, ok := m.pending[ack.mid]
	if !ok {
		m.log.Warn("unknown mid in subscription ack", "mid", ack.mid)
		return nil
	}

	delete(m.pending, ack.mid)
	m.safeMetrics(func(mm *metrics.Metrics) {
		mm.SetPendingSubscriptions(float64(len(m.pending)))
	})

	info, ok := m.registered[pending.filter]
	if !ok {
		// Unsubscribed while the subscribe was in flight.
		m.log.Warn("unknown topic for subscription ack",
			"mid", ack.mid, "topic", pending.filter)
		return nil
	}

	if len(ack.grantedQoS) == 0 {
		m.log.Warn("subscription ack without granted qos", "mid", ack.mid)
		return nil
	}

	granted := ack.grantedQoS[0]
	m.log.Debug("subscription ack",
		"mid", ack.mid, "topic", pending.filter, "grantedQos", granted)

	if granted == qosToUse {
		info.subscriptionCreated(pending.filter)
		return nil
	}

	m.log.Error("unexpected qos", "topic", pending.filter, "grantedQos", granted)
	m.safeStats(func(s *stats.Collector) { s.IncSubscriptionFailures() })
	m.safeMetrics(func(mm *metrics.Metrics) { mm.IncSubscriptionFailures("unexpected_qos") })
	return info.subscriptionFailed(pending.filter,
		fmt.Sprintf("unexpected qos: %d", granted))
}

// checkPendingSubscriptions fails every pending entry older than the
// subscription timeout. The broker subscribe itself cannot be cancelled;
// a late ack hits the unknown-mid path and is dropped.
func (m *Manager) checkPendingSubscriptions() error {
	if len(m.pending) == 0 {
		return nil
	}

	now := time.Now()
	for mid, pending := range m.pending {
		if now.Sub(pending.initiatedAt) <= m.subscriptionTimeout {
			continue
		}

		m.log.Error("subscription timed out", "topic", pending.filter)
		delete(m.pending, mid)
		m.safeStats(func(s *stats.Collector) { s.IncSubscriptionFailures() })
		m.safeMetrics(func(mm *metrics.Metrics) {
			mm.SetPendingSubscriptions(float64(len(m.pending)))
			mm.IncSubscriptionFailures("timeout")
		})

		if info, ok := m.registered[pending.filter]; ok {
			if err := info.subscriptionFailed(pending.filter, "subscription timed out"); err != nil {
				return err
			}
		}
	}
	return nil
}

// deliverMessage routes one inbound message to every matching
// subscription. Runs on the client's network goroutine; the delivery tree
// supports concurrent readers.
func (m *Manager) deliverMessage(topicName string, payload []byte) {
	m.safeStats(func(s *stats.Collector) { s.IncMessagesReceived() })
	m.safeMetrics(func(mm *metrics.Metrics) { mm.IncMessagesTotal("received") })

	matched := m.delivery.Match(topicName)
	if len(matched) == 0 {
		m.log.Warn("message for unregistered topic",
			"topic", topicName, "payloadSize", len(payload))
		m.safeMetrics(func(mm *metrics.Metrics) { mm.IncMessagesTotal("dropped") })
		return
	}

	for _, info := range matched {
		info.deliverMessage(topicName, payload)
	}
	m.safeStats(func(s *stats.Collector) { s.IncMessagesDelivered() })
	m.safeMetrics(func(mm *metrics.Metrics) { mm.IncMessagesTotal("delivered") })
}

func (m *Manager) notifyConnectionState(connected bool) {
	for _, fn := range m.connListeners {
		fn(connected)
	}
}

func (m *Manager) safeMetrics(fn func(*metrics.Metrics)) {
	if m.metrics != nil {
		fn(m.metrics)
	}
}

func (m *Manager) safeStats(fn func(*stats.Collector)) {
	if m.stats != nil {
		fn(m.stats)
	}
}
