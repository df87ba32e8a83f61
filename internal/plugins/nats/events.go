package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"chatgate/internal/core/domain"
)

// EventPublisher appends domain events to the JetStream log. Subjects are
// <prefix>.<eventType>, e.g. chat.events.message.sent, so consumers filter
// by event family.
type EventPublisher struct {
	client        *Client
	subjectPrefix string
}

func NewEventPublisher(client *Client, subjectPrefix string) *EventPublisher {
	return &EventPublisher{client: client, subjectPrefix: subjectPrefix}
}

func (p *EventPublisher) PublishMessageEvent(ctx context.Context, evt domain.MessageEvent) error {
	return p.publish(ctx, evt.EventType, evt)
}

func (p *EventPublisher) PublishGroupEvent(ctx context.Context, evt domain.GroupEvent) error {
	return p.publish(ctx, evt.EventType, evt)
}

func (p *EventPublisher) publish(ctx context.Context, eventType string, evt any) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := p.subjectPrefix + "." + eventType
	if _, err := p.client.JetStream().Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
