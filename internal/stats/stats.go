package stats

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// Collector manages transport-wide statistics
type Collector struct {
	StartTime            time.Time
	MessagesReceived     uint64
	MessagesDelivered    uint64
	MessagesPublished    uint64
	SubscriptionFailures uint64
	Errors               uint64
}

// NewCollector creates a new stats collector
func NewCollector() *Collector {
	return &Collector{
		StartTime: time.Now(),
	}
}

// IncMessagesReceived counts one inbound broker message
func (s *Collector) IncMessagesReceived() {
	atomic.AddUint64(&s.MessagesReceived, 1)
}

// IncMessagesDelivered counts one inbound message routed to subscribers
func (s *Collector) IncMessagesDelivered() {
	atomic.AddUint64(&s.MessagesDelivered, 1)
}

// IncMessagesPublished counts one outbound publish
func (s *Collector) IncMessagesPublished() {
	atomic.AddUint64(&s.MessagesPublished, 1)
}

// IncSubscriptionFailures counts one failed subscription
func (s *Collector) IncSubscriptionFailures() {
	atomic.AddUint64(&s.SubscriptionFailures, 1)
}

// IncErrors counts one transport error
func (s *Collector) IncErrors() {
	atomic.AddUint64(&s.Errors, 1)
}

// GetStats returns current statistics
func (s *Collector) GetStats() map[string]interface{} {
	uptime := time.Since(s.StartTime)
	return map[string]interface{}{
		"uptime":                uptime.String(),
		"messages_received":     atomic.LoadUint64(&s.MessagesReceived),
		"messages_delivered":    atomic.LoadUint64(&s.MessagesDelivered),
		"messages_published":    atomic.LoadUint64(&s.MessagesPublished),
		"subscription_failures": atomic.LoadUint64(&s.SubscriptionFailures),
		"errors":                atomic.LoadUint64(&s.Errors),
	}
}

// GetStatsJSON returns stats as JSON
func (s *Collector) GetStatsJSON() ([]byte, error) {
	return json.Marshal(s.GetStats())
}

// DeliveryRate calculates inbound message delivery rate per second
func (s *Collector) DeliveryRate() float64 {
	uptime := time.Since(s.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.MessagesDelivered)) / uptime
}
