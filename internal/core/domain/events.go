package domain

import "time"

// Durable domain event types, consumed asynchronously by notification and
// offline-delivery services.
const (
	EventMessageSent    = "message.sent"
	EventMemberPromoted = "member.promoted"
	EventMemberDemoted  = "member.demoted"
	EventMemberRemoved  = "member.removed"
)

// MessageEvent is the append-only log record for a sent message. It carries
// the same dedupe token as the broadcast envelope so consumers can correlate
// or de-duplicate independently.
type MessageEvent struct {
	EventType      string    `json:"eventType"`
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	RecipientIDs   []string  `json:"recipientIds"`
	Timestamp      time.Time `json:"timestamp"`
	DedupeID       string    `json:"dedupeId"`
}

// GroupEvent records a group membership or role change. Membership changes
// are the only way fan-out targets change, so consumers track them.
type GroupEvent struct {
	EventType      string    `json:"eventType"`
	ConversationID string    `json:"conversationId"`
	ActorID        string    `json:"actorId"`
	TargetID       string    `json:"targetId"`
	Timestamp      time.Time `json:"timestamp"`
}
