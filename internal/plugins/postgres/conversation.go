package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatgate/internal/core/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

/*
	-- Conversations. direct_key is the sha256 of the sorted participant
	-- set, populated for direct conversations only; its UNIQUE constraint
	-- is what collapses concurrent first-message creators onto one row
	-- (NULLs for group rows never conflict).
	CREATE TABLE conversations (
		id              UUID PRIMARY KEY,
		is_group        BOOLEAN NOT NULL DEFAULT FALSE,
		name            TEXT NOT NULL DEFAULT '',
		owner_id        TEXT NOT NULL DEFAULT '',
		direct_key      TEXT UNIQUE,
		last_message_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE conversation_participants (
		conversation_id UUID NOT NULL REFERENCES conversations(id),
		user_id         TEXT NOT NULL,
		role            TEXT NOT NULL DEFAULT 'member',
		PRIMARY KEY (conversation_id, user_id)
	);
*/

func (r *ConversationRepo) FindConversationByID(ctx context.Context, convID uuid.UUID) (*domain.Conversation, error) {
	exec := GetExecutor(ctx, r.db)
	conv := &domain.Conversation{ID: convID}
	err := exec.QueryRowContext(ctx, `
		SELECT is_group, name, owner_id, last_message_at, created_at
		FROM conversations WHERE id = $1
	`, convID).Scan(&conv.IsGroup, &conv.Name, &conv.OwnerID, &conv.LastMessageAt, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	participants, err := r.Participants(ctx, convID)
	if err != nil {
		return nil, err
	}
	conv.Participants = participants
	return conv, nil
}

// FindOrCreateConversation resolves a direct conversation by its exact
// participant set. Resolution runs outside any surrounding saga transaction;
// the direct_key UNIQUE constraint is the serialization point, so two
// concurrent first-message senders for the same pair land on the same row.
func (r *ConversationRepo) FindOrCreateConversation(ctx context.Context, participants []string) (*domain.Conversation, error) {
	sorted := append([]string(nil), participants...)
	sort.Strings(sorted)
	key := directKey(sorted)

	exec := GetExecutor(ctx, r.db)
	var convID uuid.UUID
	err := exec.QueryRowContext(ctx, `
		SELECT id FROM conversations WHERE direct_key = $1
	`, key).Scan(&convID)
	switch {
	case err == nil:
		return r.FindConversationByID(ctx, convID)
	case errors.Is(err, sql.ErrNoRows):
		return r.createDirect(ctx, sorted, key)
	default:
		return nil, err
	}
}

func (r *ConversationRepo) createDirect(ctx context.Context, participants []string, key string) (*domain.Conversation, error) {
	exec := GetExecutor(ctx, r.db)
	conv := &domain.Conversation{
		ID:           uuid.New(),
		Participants: participants,
	}
	// On conflict the loser's insert folds into the winner's row and
	// RETURNING hands back the winning identifier.
	err := exec.QueryRowContext(ctx, `
		INSERT INTO conversations (id, direct_key) VALUES ($1, $2)
		ON CONFLICT (direct_key) DO UPDATE SET direct_key = EXCLUDED.direct_key
		RETURNING id, last_message_at, created_at
	`, conv.ID, key).Scan(&conv.ID, &conv.LastMessageAt, &conv.CreatedAt)
	if err != nil {
		return nil, err
	}
	for _, userID := range participants {
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (conversation_id, user_id) DO NOTHING
		`, conv.ID, userID); err != nil {
			return nil, err
		}
	}
	return conv, nil
}

// directKey derives the stable identity of a direct conversation from its
// sorted participant set. Every instance must compute the same key for the
// same set or the uniqueness guard is useless.
func directKey(sortedParticipants []string) string {
	sum := sha256.Sum256([]byte(strings.Join(sortedParticipants, ",")))
	return hex.EncodeToString(sum[:])
}

func (r *ConversationRepo) UpdateLastMessageAt(ctx context.Context, convID uuid.UUID, at time.Time) error {
	exec := GetExecutor(ctx, r.db)
	// Row-level guard: concurrent sagas may commit out of order, keep the
	// newest timestamp.
	_, err := exec.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_at = GREATEST(last_message_at, $2)
		WHERE id = $1
	`, convID, at)
	return err
}

func (r *ConversationRepo) Participants(ctx context.Context, convID uuid.UUID) ([]string, error) {
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT user_id FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY user_id
	`, convID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var participants []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		participants = append(participants, userID)
	}
	return participants, rows.Err()
}

func (r *ConversationRepo) GetRole(ctx context.Context, convID uuid.UUID, userID string) (domain.Role, bool, error) {
	exec := GetExecutor(ctx, r.db)
	var role domain.Role
	err := exec.QueryRowContext(ctx, `
		SELECT role FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2
	`, convID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return role, true, nil
}

func (r *ConversationRepo) SetRole(ctx context.Context, convID uuid.UUID, userID string, role domain.Role) error {
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, `
		UPDATE conversation_participants
		SET role = $3
		WHERE conversation_id = $1 AND user_id = $2
	`, convID, userID, role)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotParticipant
	}
	return nil
}

func (r *ConversationRepo) RemoveParticipant(ctx context.Context, convID uuid.UUID, userID string) error {
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, `
		DELETE FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2
	`, convID, userID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotParticipant
	}
	return nil
}

func (r *ConversationRepo) CountAdmins(ctx context.Context, convID uuid.UUID) (int, error) {
	exec := GetExecutor(ctx, r.db)
	var count int
	err := exec.QueryRowContext(ctx, `
		SELECT count(*) FROM conversation_participants
		WHERE conversation_id = $1 AND role = 'admin'
	`, convID).Scan(&count)
	return count, err
}
