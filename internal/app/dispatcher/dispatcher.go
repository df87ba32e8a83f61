// Package dispatcher consumes the cross-instance fan-out subscription and
// pushes envelopes to the connections this instance holds locally.
package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"chatgate/internal/core/contracts"
	"chatgate/internal/core/domain"
	"chatgate/internal/platform/metrics"
)

// Dispatcher bridges the broadcast subscription and the local registry.
// Duplicate envelopes are pushed as-is; the dedupe token in the payload lets
// clients collapse them.
type Dispatcher struct {
	log           *slog.Logger
	subscriber    contracts.BroadcastSubscriber
	registry      contracts.Registry
	cache         contracts.ConversationCache
	conversations domain.ConversationStore
}

func New(
	log *slog.Logger,
	subscriber contracts.BroadcastSubscriber,
	registry contracts.Registry,
	cache contracts.ConversationCache,
	conversations domain.ConversationStore,
) *Dispatcher {
	return &Dispatcher{
		log:           log,
		subscriber:    subscriber,
		registry:      registry,
		cache:         cache,
		conversations: conversations,
	}
}

// Run subscribes once and dispatches until ctx is cancelled or the
// subscription channel closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	ch, err := d.subscriber.Subscribe(ctx)
	if err != nil {
		d.log.ErrorContext(ctx, "dispatcher - subscribe - failed", "err", err)
		return err
	}
	d.log.InfoContext(ctx, "dispatcher - subscribe - success")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-ch:
			if !ok {
				d.log.WarnContext(ctx, "dispatcher - subscription channel closed")
				return nil
			}
			d.dispatch(ctx, env)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, env domain.Envelope) {
	participants, err := d.participants(ctx, env.ConversationID)
	if err != nil {
		d.log.WarnContext(ctx, "dispatcher - resolve participants - failed", "conv_id", env.ConversationID, "err", err)
		return
	}

	targets := lo.Filter(participants, func(p string, _ int) bool {
		return p != d.originator(env)
	})
	for _, userID := range targets {
		conns := len(d.registry.ConnectionsFor(userID))
		if conns == 0 {
			// The user is either offline or connected to another instance.
			continue
		}
		d.registry.SendToUser(ctx, userID, env.Data)
		metrics.FanoutDeliveredTotal.Add(float64(conns))
	}
}

// originator returns the user to skip for transient typing indicators. All
// other envelope types go to every participant so the sender's other
// devices stay in sync.
func (d *Dispatcher) originator(env domain.Envelope) string {
	if env.Type != domain.EnvelopeTyping {
		return ""
	}
	var update struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(env.Data, &update); err != nil {
		return ""
	}
	return update.UserID
}

// participants resolves the fan-out targets, preferring the cache and
// repopulating it on a miss.
func (d *Dispatcher) participants(ctx context.Context, convID string) ([]string, error) {
	if cached, ok := d.cache.GetParticipants(ctx, convID); ok {
		return cached, nil
	}
	cid, err := uuid.Parse(convID)
	if err != nil {
		return nil, domain.ErrInvalidConversationID
	}
	participants, err := d.conversations.Participants(ctx, cid)
	if err != nil {
		return nil, err
	}
	if err := d.cache.SetParticipants(ctx, convID, participants); err != nil {
		d.log.WarnContext(ctx, "dispatcher - cache participants - failed", "conv_id", convID, "err", err)
	}
	return participants, nil
}
