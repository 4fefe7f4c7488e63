// Package pubsub announces processed commands to waiting clients.
package pubsub

import (
	"context"

	"github.com/richardliu001/identity-service/internal/model"
)

// CommandProcessed is the announcement published when an event has been
// normalized and materialized.
const CommandProcessed = "command-processed"

// Channel returns the announcement channel for prefix.
func Channel(prefix string) string { return prefix + "." + CommandProcessed }

// Subscription delivers announcements until closed.
type Subscription interface {
	C() <-chan model.Envelope
	Close() error
}

// Broker publishes and subscribes to command-processed announcements.
type Broker interface {
	Publish(ctx context.Context, env model.Envelope) error
	Subscribe(ctx context.Context) (Subscription, error)
}
