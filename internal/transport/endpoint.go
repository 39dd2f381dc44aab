package transport

import (
	"sync"

	"github.com/google/uuid"
)

// Endpoint dispatches typed events to its installed handlers. It is the
// in-process stand-in for a host framework's message endpoint: handlers
// receive events synchronously on the delivering goroutine.
type Endpoint struct {
	id string

	mu       sync.RWMutex
	next     int
	handlers map[int]func(ev any)
}

// NewEndpoint creates an endpoint with a unique id.
func NewEndpoint() *Endpoint {
	return &Endpoint{
		id:       uuid.NewString(),
		handlers: make(map[int]func(ev any)),
	}
}

// ID returns the endpoint's unique id.
func (e *Endpoint) ID() string {
	return e.id
}

// AddHandler installs a handler and returns its removal function. Removal
// is idempotent.
func (e *Endpoint) AddHandler(fn func(ev any)) (remove func()) {
	e.mu.Lock()
	key := e.next
	e.next++
	e.handlers[key] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.handlers, key)
			e.mu.Unlock()
		})
	}
}

// Deliver invokes every installed handler with the event.
func (e *Endpoint) Deliver(ev any) {
	e.mu.RLock()
	handlers := make([]func(ev any), 0, len(e.handlers))
	for _, fn := range e.handlers {
		handlers = append(handlers, fn)
	}
	e.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// HandlerCount returns the number of installed handlers.
func (e *Endpoint) HandlerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}
