package contracts

import (
	"context"

	"chatgate/internal/core/domain"
)

// BroadcastPublisher publishes envelopes on the low-latency cross-instance
// fan-out channel. Delivery is at-least-once and unordered across channels.
type BroadcastPublisher interface {
	// PublishMessage publishes on the conversation message channel.
	PublishMessage(ctx context.Context, env domain.Envelope) error
	// PublishStatus publishes on the separate status channel so receipt and
	// typing fan-out reuses the identical mechanism.
	PublishStatus(ctx context.Context, env domain.Envelope) error
}

// BroadcastSubscriber is the instance-wide pattern subscription covering all
// conversation channels. Subscribe is called once per gateway instance.
type BroadcastSubscriber interface {
	Subscribe(ctx context.Context) (<-chan domain.Envelope, error)
}
