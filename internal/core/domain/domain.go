package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is a participant's role inside a group conversation.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// DeliveryStatus tracks the lifecycle of a message after persistence.
// Transitions only move forward: sent -> delivered -> read.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// Conversation is the durable fan-out unit. The core only reads it to
// resolve delivery targets and role checks; membership is mutated through
// the storage collaborator.
type Conversation struct {
	ID            uuid.UUID
	IsGroup       bool
	Name          string
	OwnerID       string // empty for 1:1 conversations and orphaned groups
	Participants  []string
	LastMessageAt time.Time
	CreatedAt     time.Time
}

// HasParticipant reports whether userID is a current participant.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Message is immutable after creation except for delivery-status
// transitions. DedupeID is the client-supplied token echoed back on every
// delivery of the same logical message so receivers can collapse duplicates.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       string
	Content        string
	MediaRefs      []string
	Status         DeliveryStatus
	DedupeID       string
	CreatedAt      time.Time
}
