package transport

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"mqtt-transport/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestManager(t *testing.T) (*Manager, *mockClient) {
	t.Helper()

	client := newMockClient()
	m, err := NewManager(client, ConnectionParams{
		ClientID:  "test-client",
		Host:      "localhost",
		Port:      1883,
		Keepalive: 30 * time.Second,
	}, logger.Discard(), nil, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	m.tickInterval = 10 * time.Millisecond
	return m, client
}

func TestManagerRequiresClientAndHost(t *testing.T) {
	if _, err := NewManager(nil, ConnectionParams{Host: "h"}, logger.Discard(), nil, nil); err == nil {
		t.Error("NewManager() with nil client: expected error")
	}
	if _, err := NewManager(newMockClient(), ConnectionParams{}, logger.Discard(), nil, nil); err == nil {
		t.Error("NewManager() without host: expected error")
	}
}

func TestManagerSubscribeAndAck(t *testing.T) {
	m, client := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	client.fireConnect()

	p := newRecordingPostman("p")
	m.SubscribeTopic("sensors/temp", p)

	waitFor(t, func() bool { return client.subscribeCount() == 1 },
		"broker subscribe not issued")

	sub, _ := client.lastSubscribe()
	if sub.filter != "sensors/temp" || sub.qos != 0 {
		t.Fatalf("unexpected broker subscribe: %+v", sub)
	}

	client.fireAck(sub.mid, 0)
	expectEvent(t, p, "available:sensors/temp")
}

func TestManagerSubscribeWhileDisconnected(t *testing.T) {
	m, client := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	p := newRecordingPostman("p")
	m.SubscribeTopic("t", p)

	// No broker subscribe until the connection is up.
	expectNoEvent(t, p, 50*time.Millisecond)
	if client.subscribeCount() != 0 {
		t.Fatal("broker subscribe issued while disconnected")
	}

	client.fireConnect()
	waitFor(t, func() bool { return client.subscribeCount() == 1 },
		"subscription not restored on connect")

	sub, _ := client.lastSubscribe()
	client.fireAck(sub.mid, 0)
	expectEvent(t, p, "available:t")
}

func TestManagerReconnectCycle(t *testing.T) {
	m, client := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	client.fireConnect()

	p := newRecordingPostman("p")
	m.SubscribeTopic("t", p)
	waitFor(t, func() bool { return client.subscribeCount() == 1 }, "no subscribe")
	sub, _ := client.lastSubscribe()
	client.fireAck(sub.mid, 0)
	expectEvent(t, p, "available:t")

	// Connection drops: the postman hears about it exactly once.
	client.fireDisconnect(errEOF)
	expectEvent(t, p, "unavailable:t")

	// Reconnect: a fresh broker subscribe is issued for the registered
	// filter and the ack completes the cycle.
	client.fireConnect()
	waitFor(t, func() bool { return client.subscribeCount() == 2 },
		"subscription not restored on reconnect")
	sub, _ = client.lastSubscribe()
	client.fireAck(sub.mid, 0)
	expectEvent(t, p, "available:t")
}

func TestManagerPendingClearedOnDisconnect(t *testing.T) {
	m, client := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	client.fireConnect()

	p := newRecordingPostman("p")
	m.SubscribeTopic("t", p)
	waitFor(t, func() bool { return client.subscribeCount() == 1 }, "no subscribe")

	// Drop the connection with the ack still outstanding.
	client.fireDisconnect(errEOF)
	expectEvent(t, p, "unavailable:t")

	m.Stop()
	if len(m.pending) != 0 {
		t.Errorf("pending table not cleared on disconnect: %d entries", len(m.pending))
	}
}

func TestManagerSubscriptionTimeout(t *testing.T) {
	m, client := newTestManager(t)
	m.SetSubscriptionTimeout(30 * time.Millisecond)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	client.fireConnect()

	p := newRecordingPostman("p")
	m.SubscribeTopic("t", p)
	waitFor(t, func() bool { return client.subscribeCount() == 1 }, "no subscribe")

	// Never deliver the ack; the tick must fail the subscription.
	expectEvent(t, p, "failed:t:subscription timed out")

	// A late ack hits the unknown-mid path and changes nothing.
	sub, _ := client.lastSubscribe()
	client.fireAck(sub.mid, 0)
	expectNoEvent(t, p, 50*time.Millisecond)

	if err := m.Err(); err != nil {
		t.Errorf("timeout with notify-free postman must not stop the loop: %v", err)
	}
}

func TestManagerUnexpectedQoS(t *testing.T) {
	m, client := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	client.fireConnect()

	p := newRecordingPostman("p")
	m.SubscribeTopic("t", p)
	waitFor(t, func() bool { return client.subscribeCount() == 1 }, "no subscribe")

	sub, _ := client.lastSubscribe()
	client.fireAck(sub.mid, 0x80)
	expectEvent(t, p, "failed:t:unexpected qos: 128")
}

func TestManagerFatalFailurePolicy(t *testing.T) {
	m, client := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	p := newRecordingPostman("p")
	p.failErr = &FailedSubscriptionError{Topic: "t", Description: "unexpected qos: 128"}

	client.fireConnect()
	m.SubscribeTopic("t", p)
	waitFor(t, func() bool { return client.subscribeCount() == 1 }, "no subscribe")

	sub, _ := client.lastSubscribe()
	client.fireAck(sub.mid, 0x80)
	expectEvent(t, p, "failed:t:unexpected qos: 128")

	// The postman's error is fatal to the manager loop.
	waitFor(t, func() bool { return m.Err() != nil }, "manager loop did not stop")
}

func TestManagerLatePostmanSeesSettledStatus(t *testing.T) {
	m, client := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	client.fireConnect()

	p1 := newRecordingPostman("p1")
	m.SubscribeTopic("t", p1)
	waitFor(t, func() bool { return client.subscribeCount() == 1 }, "no subscribe")
	sub, _ := client.lastSubscribe()
	client.fireAck(sub.mid, 0)
	expectEvent(t, p1, "available:t")

	// Joining an already-subscribed filter: notified without another
	// broker subscribe.
	p2 := newRecordingPostman("p2")
	m.SubscribeTopic("t", p2)
	expectEvent(t, p2, "available:t")
	if client.subscribeCount() != 1 {
		t.Error("joining postman triggered a second broker subscribe")
	}
}

func TestManagerUnsubscribe(t *testing.T) {
	m, client := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	client.fireConnect()

	p1 := newRecordingPostman("p1")
	p2 := newRecordingPostman("p2")
	m.SubscribeTopic("t", p1)
	m.SubscribeTopic("t", p2)
	waitFor(t, func() bool { return client.subscribeCount() == 1 }, "no subscribe")
	sub, _ := client.lastSubscribe()
	client.fireAck(sub.mid, 0)
	expectEvent(t, p1, "available:t")
	expectEvent(t, p2, "available:t")

	// First postman leaves: the registration stays.
	m.UnsubscribeTopic("t", p1)
	expectNoEvent(t, p1, 50*time.Millisecond)
	if len(client.unsubscribeList()) != 0 {
		t.Fatal("broker unsubscribe issued while postmen remain")
	}

	// Last postman leaves: broker unsubscribe goes out.
	m.UnsubscribeTopic("t", p2)
	waitFor(t, func() bool { return len(client.unsubscribeList()) == 1 },
		"broker unsubscribe not issued")

	// Messages for the dropped filter no longer reach the postmen.
	client.fireMessage("t", []byte("x"))
	expectNoEvent(t, p1, 50*time.Millisecond)
	expectNoEvent(t, p2, 20*time.Millisecond)
}

func TestManagerUnsubscribeUnknownTopic(t *testing.T) {
	m, client := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	// Logged and ignored; the loop keeps serving.
	m.UnsubscribeTopic("nope", newRecordingPostman("p"))

	client.fireConnect()
	p := newRecordingPostman("p2")
	m.SubscribeTopic("t", p)
	waitFor(t, func() bool { return client.subscribeCount() == 1 }, "loop stopped")
}

func TestManagerUnknownAckIgnored(t *testing.T) {
	m, client := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	client.fireConnect()
	client.fireAck(99, 0)

	p := newRecordingPostman("p")
	m.SubscribeTopic("t", p)
	waitFor(t, func() bool { return client.subscribeCount() == 1 }, "loop stopped")
}

func TestManagerMessageFanOut(t *testing.T) {
	m, client := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	client.fireConnect()

	pA := newRecordingPostman("A")
	pB := newRecordingPostman("B")
	pC := newRecordingPostman("C")
	m.SubscribeTopic("foo/+/baz", pA)
	m.SubscribeTopic("#", pB)
	m.SubscribeTopic("foo/#", pC)
	waitFor(t, func() bool { return client.subscribeCount() == 3 }, "missing subscribes")

	client.fireMessage("foo/1/baz", []byte("v"))
	expectEvent(t, pA, "post:foo/1/baz:v")
	expectEvent(t, pB, "post:foo/1/baz:v")
	expectEvent(t, pC, "post:foo/1/baz:v")

	client.fireMessage("bar", []byte("w"))
	expectEvent(t, pB, "post:bar:w")
	expectNoEvent(t, pA, 50*time.Millisecond)
	expectNoEvent(t, pC, 20*time.Millisecond)
}

func TestManagerPublish(t *testing.T) {
	m, client := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	m.Publish("out", []byte("hello"))

	published := client.publishedList()
	if len(published) != 1 {
		t.Fatalf("published %d messages, want 1", len(published))
	}
	got := published[0]
	if got.topic != "out" || got.payload != "hello" || got.qos != 0 || got.retain {
		t.Errorf("unexpected publish: %+v", got)
	}

	// Best effort: failures are swallowed.
	client.mu.Lock()
	client.publishErr = errEOF
	client.mu.Unlock()
	m.Publish("out", []byte("dropped"))
}

func TestManagerConnectionStateListeners(t *testing.T) {
	m, client := newTestManager(t)

	states := make(chan bool, 8)
	m.OnConnectionState(func(connected bool) { states <- connected })

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	expectState := func(want bool) {
		t.Helper()
		select {
		case got := <-states:
			if got != want {
				t.Fatalf("connection state = %v, want %v", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for connection state %v", want)
		}
	}

	expectState(false) // initial disconnected broadcast
	client.fireConnect()
	expectState(true)
	client.fireDisconnect(errEOF)
	expectState(false)
}

func TestManagerStartStopLifecycle(t *testing.T) {
	m, client := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Start(); err == nil {
		t.Error("second Start() must fail")
	}

	m.Stop()
	m.Stop() // idempotent

	client.mu.Lock()
	disconnects := client.disconnects
	client.mu.Unlock()
	if disconnects != 1 {
		t.Errorf("client disconnected %d times, want 1", disconnects)
	}
}
