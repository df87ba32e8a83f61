package contracts

import (
	"context"

	"chatgate/internal/core/domain"
)

// EventPublisher appends domain events to the durable log for asynchronous
// consumers (notifications, offline delivery, search indexing).
type EventPublisher interface {
	PublishMessageEvent(ctx context.Context, evt domain.MessageEvent) error
	PublishGroupEvent(ctx context.Context, evt domain.GroupEvent) error
}
