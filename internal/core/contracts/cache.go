package contracts

import "context"

// ConversationCache is the read-side cache collaborator. Invalidation is
// best-effort; failures are logged by callers, never fatal.
type ConversationCache interface {
	// GetParticipants returns the cached participant list, or ok=false on
	// miss or cache error.
	GetParticipants(ctx context.Context, convID string) (participants []string, ok bool)
	SetParticipants(ctx context.Context, convID string, participants []string) error
	InvalidateConversationCache(ctx context.Context, convID string) error
	InvalidateUserConversationsCache(ctx context.Context, userID string) error
}
