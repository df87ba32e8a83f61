package contracts

import (
	"context"
	"errors"
	"time"
)

// ErrIdempotencyRaced signals that a claimed record vanished mid-check; the
// caller should let the client retry.
var ErrIdempotencyRaced = errors.New("idempotency record expired during claim")

// IdempotencyStatus is the lifecycle of an idempotency record.
type IdempotencyStatus string

const (
	IdempotencyInProgress IdempotencyStatus = "in_progress"
	IdempotencyCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord stores the outcome of a previously processed HTTP write
// keyed by (user, key) so retries replay the original response.
type IdempotencyRecord struct {
	Key         string
	UserID      string
	Fingerprint string // hash of the request body
	Status      IdempotencyStatus
	Response    []byte
	StatusCode  int
	CreatedAt   time.Time
}

// IdempotencyStore persists idempotency records with an expiry.
type IdempotencyStore interface {
	// Begin atomically creates an in-progress record for the key. It returns
	// the existing record and created=false when one is already present.
	Begin(ctx context.Context, rec IdempotencyRecord, ttl time.Duration) (existing *IdempotencyRecord, created bool, err error)
	// Complete stores the final response under the key.
	Complete(ctx context.Context, userID, key string, statusCode int, response []byte, ttl time.Duration) error
	// Abort removes the in-progress record so the client may retry.
	Abort(ctx context.Context, userID, key string) error
}
