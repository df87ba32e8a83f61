package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"chatgate/internal/core/contracts"
	"chatgate/internal/core/domain"
)

// IdempotencyService guards HTTP-originated writes with a client-supplied
// key. A concurrent request sharing a key is rejected with a conflict while
// the first is in progress; a completed key replays the stored response
// only when the request fingerprint matches.
type IdempotencyService struct {
	log   *slog.Logger
	store contracts.IdempotencyStore
	ttl   time.Duration
}

func NewIdempotencyService(log *slog.Logger, store contracts.IdempotencyStore, ttl time.Duration) *IdempotencyService {
	return &IdempotencyService{log: log, store: store, ttl: ttl}
}

// Result is the outcome of a guarded execution.
type Result struct {
	StatusCode int
	Body       []byte
	Replayed   bool
}

// Execute runs fn at most once per (user, key). fn's failure removes the
// in-progress record so the client may retry.
func (s *IdempotencyService) Execute(
	ctx context.Context,
	userID, key string,
	body []byte,
	fn func(ctx context.Context) (int, []byte, error),
) (Result, error) {
	fingerprint := Fingerprint(body)
	rec := contracts.IdempotencyRecord{
		Key:         key,
		UserID:      userID,
		Fingerprint: fingerprint,
		Status:      contracts.IdempotencyInProgress,
		CreatedAt:   time.Now(),
	}
	existing, created, err := s.store.Begin(ctx, rec, s.ttl)
	if err != nil {
		return Result{}, err
	}
	if !created {
		switch {
		case existing.Status == contracts.IdempotencyInProgress:
			return Result{}, domain.ErrIdempotencyInProgress
		case existing.Fingerprint != fingerprint:
			return Result{}, domain.ErrIdempotencyMismatch
		default:
			s.log.InfoContext(ctx, "idempotency - execute - replaying stored response", "key", key, "user_id", userID)
			return Result{StatusCode: existing.StatusCode, Body: existing.Response, Replayed: true}, nil
		}
	}

	status, response, err := fn(ctx)
	if err != nil {
		if abortErr := s.store.Abort(ctx, userID, key); abortErr != nil {
			s.log.WarnContext(ctx, "idempotency - abort - failed", "key", key, "err", abortErr)
		}
		return Result{}, err
	}
	if err := s.store.Complete(ctx, userID, key, status, response, s.ttl); err != nil {
		s.log.WarnContext(ctx, "idempotency - complete - failed", "key", key, "err", err)
	}
	return Result{StatusCode: status, Body: response}, nil
}

// Fingerprint hashes a request body for key-reuse detection.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
