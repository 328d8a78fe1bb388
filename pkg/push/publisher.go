package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/wardenhq/warden/pkg/principals"
)

// Channel is the Redis Pub/Sub channel device gateways subscribe to.
const Channel = "warden.suspension.changed"

// Event is published whenever a principal's effective suspension state
// changes so connected device sessions can be dropped or restored.
// Subscribers are informed, never consulted: delivery is not part of the
// suspension core's correctness.
type Event struct {
	ID          string            `json:"id"`
	PrincipalID int64             `json:"principal_id"`
	Status      principals.Status `json:"status"`
	ActorID     int64             `json:"actor_id"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Publisher announces suspension state changes to downstream
// subscribers.
type Publisher interface {
	StatusChanged(ctx context.Context, principalID int64, status principals.Status, actorID int64) error
}

// RedisPublisher implements Publisher over Redis Pub/Sub.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a publisher on an existing Redis client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// StatusChanged publishes a suspension state change event.
func (p *RedisPublisher) StatusChanged(ctx context.Context, principalID int64, status principals.Status, actorID int64) error {
	event := Event{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		Status:      status,
		ActorID:     actorID,
		OccurredAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal push event: %w", err)
	}
	if err := p.client.Publish(ctx, Channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish push event: %w", err)
	}
	return nil
}

// NopPublisher discards all events. Used when no push channel is
// configured and in tests.
type NopPublisher struct{}

// StatusChanged implements Publisher.
func (NopPublisher) StatusChanged(context.Context, int64, principals.Status, int64) error {
	return nil
}
