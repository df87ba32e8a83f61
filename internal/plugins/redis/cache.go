package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	participantsKeyPrefix = "cache:conv:participants:"
	userConvsKeyPrefix    = "cache:user:conversations:"
	participantsTTL       = 10 * time.Minute
)

// ConversationCacheStore keeps participant lists hot so the dispatcher can
// resolve fan-out targets without a storage round trip per envelope.
type ConversationCacheStore struct {
	log *slog.Logger
	rdb *redis.Client
}

func NewConversationCacheStore(log *slog.Logger, rdb *redis.Client) *ConversationCacheStore {
	return &ConversationCacheStore{log: log, rdb: rdb}
}

func (c *ConversationCacheStore) GetParticipants(ctx context.Context, convID string) ([]string, bool) {
	raw, err := c.rdb.Get(ctx, participantsKeyPrefix+convID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WarnContext(ctx, "cache - get participants - failed", "conv_id", convID, "err", err)
		}
		return nil, false
	}
	var participants []string
	if err := json.Unmarshal(raw, &participants); err != nil {
		return nil, false
	}
	return participants, true
}

func (c *ConversationCacheStore) SetParticipants(ctx context.Context, convID string, participants []string) error {
	raw, err := json.Marshal(participants)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, participantsKeyPrefix+convID, raw, participantsTTL).Err()
}

func (c *ConversationCacheStore) InvalidateConversationCache(ctx context.Context, convID string) error {
	return c.rdb.Del(ctx, participantsKeyPrefix+convID).Err()
}

func (c *ConversationCacheStore) InvalidateUserConversationsCache(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, userConvsKeyPrefix+userID).Err()
}
