package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"chatgate/internal/core/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

/*
	-- Messages
	CREATE TABLE messages (
		id              UUID PRIMARY KEY,
		conversation_id UUID NOT NULL REFERENCES conversations(id),
		sender_id       TEXT NOT NULL,
		content         TEXT NOT NULL DEFAULT '',
		media_refs      JSONB NOT NULL DEFAULT '[]',
		status          TEXT NOT NULL DEFAULT 'sent',
		dedupe_id       TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX messages_conversation_idx ON messages (conversation_id, created_at);
*/

func (r *MessageRepo) CreateMessage(ctx context.Context, msg *domain.Message) error {
	if msg.ConversationID == uuid.Nil {
		return domain.ErrInvalidConversationID
	}
	mediaRefs, err := json.Marshal(msg.MediaRefs)
	if err != nil {
		return err
	}
	exec := GetExecutor(ctx, r.db)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO messages (
			id, conversation_id, sender_id, content, media_refs, status, dedupe_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.Content,
		mediaRefs,
		msg.Status,
		msg.DedupeID,
		msg.CreatedAt,
	)
	return err
}

func (r *MessageRepo) FindMessageByID(ctx context.Context, msgID uuid.UUID) (*domain.Message, error) {
	exec := GetExecutor(ctx, r.db)
	msg := &domain.Message{ID: msgID}
	var mediaRefs []byte
	err := exec.QueryRowContext(ctx, `
		SELECT conversation_id, sender_id, content, media_refs, status, dedupe_id, created_at
		FROM messages WHERE id = $1
	`, msgID).Scan(
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Content,
		&mediaRefs,
		&msg.Status,
		&msg.DedupeID,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(mediaRefs, &msg.MediaRefs); err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *MessageRepo) UpdateMessageStatus(ctx context.Context, msgID uuid.UUID, status domain.DeliveryStatus) error {
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, `
		UPDATE messages SET status = $2 WHERE id = $1
	`, msgID, status)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}
