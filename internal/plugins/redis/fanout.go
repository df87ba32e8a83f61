package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"chatgate/internal/core/domain"
)

const (
	messageChannelPrefix = "fanout:conv:"
	statusChannelPrefix  = "fanout:status:"
	subscribePattern     = "fanout:*"
)

// FanoutBus carries envelopes between gateway instances over Redis Pub/Sub.
// Delivery is fire-and-forget: an instance that is down simply misses the
// publish, which is acceptable because the message is already durably saved.
type FanoutBus struct {
	log *slog.Logger
	rdb *redis.Client
}

func NewFanoutBus(log *slog.Logger, rdb *redis.Client) *FanoutBus {
	return &FanoutBus{log: log, rdb: rdb}
}

func (b *FanoutBus) PublishMessage(ctx context.Context, env domain.Envelope) error {
	return b.publish(ctx, messageChannelPrefix+env.ConversationID, env)
}

func (b *FanoutBus) PublishStatus(ctx context.Context, env domain.Envelope) error {
	return b.publish(ctx, statusChannelPrefix+env.ConversationID, env)
}

func (b *FanoutBus) publish(ctx context.Context, channel string, env domain.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel, raw).Err()
}

// Subscribe opens the instance-wide pattern subscription covering every
// conversation channel. Called once per gateway instance; the returned
// channel closes when ctx is cancelled.
func (b *FanoutBus) Subscribe(ctx context.Context) (<-chan domain.Envelope, error) {
	pubsub := b.rdb.PSubscribe(ctx, subscribePattern)
	// Force the subscription to establish before we report success.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan domain.Envelope, 256)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env domain.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.log.Warn("fanout - subscribe - malformed envelope", "channel", msg.Channel, "err", err)
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
