package domain

import (
	"encoding/json"
	"time"
)

// Client -> gateway frame types.
const (
	TypeAuth             = "auth"
	TypeSendMessage      = "send_message"
	TypeTyping           = "typing"
	TypeMessageDelivered = "message_delivered"
	TypeMessageRead      = "message_read"
)

// Gateway -> client frame types.
const (
	TypeAuthSuccess    = "auth_success"
	TypeAuthError      = "auth_error"
	TypeMessageSent    = "message_sent"
	TypeNewMessage     = "new_message"
	TypeMessageStatus  = "message_status"
	TypeError          = "error"
	TypeServerShutdown = "server_shutdown"
)

// Frame is the outer shape of every WebSocket frame, one frame per
// logical message.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AuthFrame must be the first frame on every connection.
type AuthFrame struct {
	Token string `json:"token"`
}

type AuthSuccessFrame struct {
	Type   string `json:"type"` // "auth_success"
	UserID string `json:"user_id"`
}

type AuthErrorFrame struct {
	Type   string `json:"type"` // "auth_error"
	Reason string `json:"reason"`
}

// SendMessageFrame carries either an existing conversation or a recipient
// set, never resolved client-side.
type SendMessageFrame struct {
	ConversationID string   `json:"conversation_id,omitempty"`
	RecipientIDs   []string `json:"recipient_ids,omitempty"`
	Content        string   `json:"content"`
	MediaRefs      []string `json:"media_refs,omitempty"`
	DedupeID       string   `json:"dedupe_id"`
}

type TypingFrame struct {
	ConversationID string `json:"conversation_id"`
}

type DeliveredFrame struct {
	MessageID string `json:"message_id"`
}

type ReadFrame struct {
	ConversationID    string `json:"conversation_id"`
	LastReadMessageID string `json:"last_read_message_id"`
}

// MessageView is the client-facing projection of a persisted message, used
// for both the sender ack (message_sent) and fan-out delivery (new_message).
type MessageView struct {
	Type           string    `json:"type"`
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	MediaRefs      []string  `json:"media_refs,omitempty"`
	Status         string    `json:"status"`
	DedupeID       string    `json:"dedupe_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewMessageView projects m for the wire under the given frame type.
func NewMessageView(frameType string, m *Message) MessageView {
	return MessageView{
		Type:           frameType,
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		SenderID:       m.SenderID,
		Content:        m.Content,
		MediaRefs:      m.MediaRefs,
		Status:         string(m.Status),
		DedupeID:       m.DedupeID,
		CreatedAt:      m.CreatedAt,
	}
}

// StatusUpdate travels on the status channel for delivered/read receipts
// and typing indicators.
type StatusUpdate struct {
	Type              string `json:"type"`
	ConversationID    string `json:"conversation_id"`
	UserID            string `json:"user_id"`
	MessageID         string `json:"message_id,omitempty"`
	LastReadMessageID string `json:"last_read_message_id,omitempty"`
	Status            string `json:"status,omitempty"`
}

type ErrorFrame struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ShutdownFrame struct {
	Type string `json:"type"` // "server_shutdown"
}

// Envelope types on the fan-out channel.
const (
	EnvelopeMessage = "message"
	EnvelopeTyping  = "typing"
	EnvelopeStatus  = "status"
)

// Envelope is the transient wire record on the cross-instance fan-out
// channel. Consumed once per instance subscription; delivery to clients is
// at-least-once, the dedupe token lets them collapse duplicates.
type Envelope struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	DedupeID       string          `json:"dedupe_id,omitempty"`
	Data           json.RawMessage `json:"data"`
}
