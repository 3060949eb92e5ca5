// Package bus is the message-bus boundary: inbound JSON command requests
// and outbound JSON responses/events (spec §6 Bus topics).
package bus

import "context"

// Bus is the minimal PUB/SUB contract the daemon needs. redis.go backs it
// with go-redis v9; fake.go backs it with an in-memory queue for tests.
type Bus interface {
	// Subscribe registers a handler for every message published to topic.
	// Delivery is fire-and-forget from the caller's perspective. RedisBus
	// runs handler on a goroutine it owns, never on the event loop's own
	// goroutine (spec §5: "the message bus's publish context and subscribe
	// context are separate"); FakeBus instead calls handler synchronously
	// on the goroutine that calls Publish or Deliver.
	Subscribe(ctx context.Context, topic string, handler func([]byte)) error

	// Publish writes payload to topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Close releases any underlying connection.
	Close() error
}

// Topic names (spec §6).
const (
	TopicHopperRequest     = "hopper-request"
	TopicValidatorRequest  = "validator-request"
	TopicMetacash          = "metacash"
	TopicHopperResponse    = "hopper-response"
	TopicValidatorResponse = "validator-response"
	TopicHopperEvent       = "hopper-event"
	TopicValidatorEvent    = "validator-event"
	TopicPayoutEvent       = "payout-event"
)
