package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ConversationStore is the storage collaborator for conversation lookup,
// participant resolution and group roles. It provides its own consistency
// guarantees (row-level update semantics for concurrent sagas); the core
// treats it as a black box.
type ConversationStore interface {
	FindConversationByID(ctx context.Context, convID uuid.UUID) (*Conversation, error)
	// FindOrCreateConversation resolves a 1:1 or ad-hoc conversation by its
	// exact participant set, creating it when absent. Participant sets are
	// unique for direct conversations.
	FindOrCreateConversation(ctx context.Context, participants []string) (*Conversation, error)
	UpdateLastMessageAt(ctx context.Context, convID uuid.UUID, at time.Time) error
	Participants(ctx context.Context, convID uuid.UUID) ([]string, error)

	GetRole(ctx context.Context, convID uuid.UUID, userID string) (Role, bool, error)
	SetRole(ctx context.Context, convID uuid.UUID, userID string, role Role) error
	RemoveParticipant(ctx context.Context, convID uuid.UUID, userID string) error
	CountAdmins(ctx context.Context, convID uuid.UUID) (int, error)
}

// MessageStore persists messages and their delivery-status transitions.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *Message) error
	FindMessageByID(ctx context.Context, msgID uuid.UUID) (*Message, error)
	UpdateMessageStatus(ctx context.Context, msgID uuid.UUID, status DeliveryStatus) error
}
