package domain

import "errors"

var (
	ErrInvalidConversationID = errors.New("invalid conversation id")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrNotParticipant        = errors.New("sender is not a participant")
	ErrMessageNotFound       = errors.New("message not found")

	ErrNoRecipients       = errors.New("recipient set is empty")
	ErrSelfOnlyRecipients = errors.New("message addressed only to the sender")
	ErrEmptyMessage       = errors.New("content or media reference required")
	ErrContentTooLong     = errors.New("content exceeds maximum length")
	ErrTooManyRecipients  = errors.New("recipient count exceeds maximum")

	ErrConnectionLimit = errors.New("connection limit reached for user")

	ErrNotAdmin          = errors.New("caller lacks admin privileges")
	ErrCannotRemoveAdmin = errors.New("non-owner admin cannot remove another admin")
	ErrLastAdmin         = errors.New("cannot demote the last remaining admin")

	ErrStatusRegression = errors.New("delivery status cannot move backwards")

	ErrIdempotencyInProgress = errors.New("request with this idempotency key is in progress")
	ErrIdempotencyMismatch   = errors.New("idempotency key reused with a different request")
)
