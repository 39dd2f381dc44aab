package transport

import (
	"errors"
	"fmt"
)

// Recoverable subscribe outcomes: the subscription stays pending and the
// timeout path reports it if no ack ever arrives.
var (
	ErrNoConnection = errors.New("no connection to broker")
	ErrConnLost     = errors.New("connection to broker lost")
)

// FailedSubscriptionError is returned by a postman whose failure policy is
// FailureError. It surfaces on the manager loop and stops it.
type FailedSubscriptionError struct {
	Topic       string
	Description string
}

func (e *FailedSubscriptionError) Error() string {
	return fmt.Sprintf("subscription failed, topic_filter=%q, description=%q",
		e.Topic, e.Description)
}
