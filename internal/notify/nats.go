package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NatsNotifier publishes SchemaVersionRegistered events as JSON to a
// fixed NATS subject, grounded on the teacher's own use of nats.go for
// its schema store's change feed.
type NatsNotifier struct {
	nc      *nats.Conn
	subject string
}

// NewNatsNotifier wraps an already-connected nats.Conn, publishing every
// event to subject.
func NewNatsNotifier(nc *nats.Conn, subject string) *NatsNotifier {
	return &NatsNotifier{nc: nc, subject: subject}
}

func (n *NatsNotifier) Publish(_ context.Context, event SchemaVersionRegistered) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.nc.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
