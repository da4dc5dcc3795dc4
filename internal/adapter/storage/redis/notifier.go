package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"mcp-logistics/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// Notifier implements ports.NotificationSink over Redis pub/sub. Each room
// maps to one channel; a socket gateway subscribed to "notify:*" fans events
// out to connected clients.
type Notifier struct {
	client *goredis.Client
	prefix string
}

// NewNotifier creates a Redis pub/sub notification sink.
func NewNotifier(client *goredis.Client) *Notifier {
	return &Notifier{
		client: client,
		prefix: "notify:",
	}
}

// Publish serializes the event and publishes it on the room's channel.
// Subscriber count is not checked; an empty room is not an error.
func (n *Notifier) Publish(ctx context.Context, room string, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := n.client.Publish(ctx, n.prefix+room, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// NopSink discards every event. Used in tests and offline runs.
type NopSink struct{}

// Publish discards the event.
func (NopSink) Publish(context.Context, string, domain.Event) error { return nil }
