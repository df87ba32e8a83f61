package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"chatgate/internal/core/contracts"
)

const idempotencyKeyPrefix = "idem:"

// IdempotencyStore keeps idempotency records in Redis with the TTL as the
// replay window. Begin relies on SETNX for the atomic claim.
type IdempotencyStore struct {
	rdb *redis.Client
}

func NewIdempotencyStore(rdb *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb}
}

func recordKey(userID, key string) string {
	return idempotencyKeyPrefix + userID + ":" + key
}

func (s *IdempotencyStore) Begin(ctx context.Context, rec contracts.IdempotencyRecord, ttl time.Duration) (*contracts.IdempotencyRecord, bool, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, false, err
	}
	key := recordKey(rec.UserID, rec.Key)
	created, err := s.rdb.SetNX(ctx, key, raw, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if created {
		return nil, true, nil
	}
	existingRaw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			// The record expired between SETNX and GET; treat the claim as
			// lost and let the caller retry.
			return nil, false, contracts.ErrIdempotencyRaced
		}
		return nil, false, err
	}
	var existing contracts.IdempotencyRecord
	if err := json.Unmarshal(existingRaw, &existing); err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, userID, key string, statusCode int, response []byte, ttl time.Duration) error {
	rec := contracts.IdempotencyRecord{
		Key:        key,
		UserID:     userID,
		Status:     contracts.IdempotencyCompleted,
		StatusCode: statusCode,
		Response:   response,
		CreatedAt:  time.Now(),
	}
	// Preserve the original fingerprint so later reuse checks still work.
	if existingRaw, err := s.rdb.Get(ctx, recordKey(userID, key)).Bytes(); err == nil {
		var existing contracts.IdempotencyRecord
		if json.Unmarshal(existingRaw, &existing) == nil {
			rec.Fingerprint = existing.Fingerprint
			rec.CreatedAt = existing.CreatedAt
		}
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, recordKey(userID, key), raw, ttl).Err()
}

func (s *IdempotencyStore) Abort(ctx context.Context, userID, key string) error {
	return s.rdb.Del(ctx, recordKey(userID, key)).Err()
}
