package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"chatgate/internal/core/contracts"
	"chatgate/internal/core/domain"
	"chatgate/internal/platform/breaker"
	"chatgate/internal/platform/metrics"
)

// ReceiptService handles delivery-status transitions and typing indicators.
// Status fan-out reuses the broadcast mechanism on the status channel.
type ReceiptService struct {
	log           *slog.Logger
	conversations domain.ConversationStore
	messages      domain.MessageStore
	broadcast     contracts.BroadcastPublisher
	fanoutBreaker *breaker.Breaker
	tx            contracts.TxManager
}

func NewReceiptService(
	log *slog.Logger,
	conversations domain.ConversationStore,
	messages domain.MessageStore,
	broadcast contracts.BroadcastPublisher,
	fanoutBreaker *breaker.Breaker,
	tx contracts.TxManager,
) *ReceiptService {
	return &ReceiptService{
		log:           log,
		conversations: conversations,
		messages:      messages,
		broadcast:     broadcast,
		fanoutBreaker: fanoutBreaker,
		tx:            tx,
	}
}

// MarkDelivered records a DELIVERED transition for one message.
func (s *ReceiptService) MarkDelivered(ctx context.Context, userID, messageID string) error {
	return s.transition(ctx, userID, messageID, domain.StatusDelivered, "")
}

// MarkRead records READ up to lastReadMessageID for a conversation.
func (s *ReceiptService) MarkRead(ctx context.Context, userID, conversationID, lastReadMessageID string) error {
	return s.transition(ctx, userID, lastReadMessageID, domain.StatusRead, conversationID)
}

func (s *ReceiptService) transition(ctx context.Context, userID, messageID string, to domain.DeliveryStatus, conversationID string) error {
	mid, err := uuid.Parse(messageID)
	if err != nil {
		return domain.ErrMessageNotFound
	}

	var msg *domain.Message
	if err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		var txErr error
		msg, txErr = s.messages.FindMessageByID(txCtx, mid)
		if txErr != nil {
			return txErr
		}
		_, member, txErr := s.conversations.GetRole(txCtx, msg.ConversationID, userID)
		if txErr != nil {
			return txErr
		}
		if !member {
			return domain.ErrNotParticipant
		}
		// A client-supplied conversation must match the message's own.
		if conversationID != "" && conversationID != msg.ConversationID.String() {
			return domain.ErrMessageNotFound
		}
		if regresses(msg.Status, to) {
			return domain.ErrStatusRegression
		}
		return s.messages.UpdateMessageStatus(txCtx, mid, to)
	}); err != nil {
		s.log.WarnContext(ctx, "receipts - transition - failed", "message_id", messageID, "status", string(to), "err", err)
		return err
	}
	metrics.StatusUpdatesTotal.WithLabelValues(string(to)).Inc()

	update := domain.StatusUpdate{
		Type:           domain.TypeMessageStatus,
		ConversationID: msg.ConversationID.String(),
		UserID:         userID,
		MessageID:      messageID,
		Status:         string(to),
	}
	if to == domain.StatusRead {
		update.LastReadMessageID = messageID
	}
	s.publishStatus(context.WithoutCancel(ctx), update, msg.DedupeID)
	return nil
}

// Typing fans out a transient typing indicator; nothing is persisted. Only
// participants may signal into a conversation's channel.
func (s *ReceiptService) Typing(ctx context.Context, userID, conversationID string) error {
	cid, err := uuid.Parse(conversationID)
	if err != nil {
		return domain.ErrInvalidConversationID
	}
	_, member, err := s.conversations.GetRole(ctx, cid, userID)
	if err != nil {
		return err
	}
	if !member {
		return domain.ErrNotParticipant
	}
	update := domain.StatusUpdate{
		Type:           domain.TypeTyping,
		ConversationID: conversationID,
		UserID:         userID,
	}
	s.publishStatus(ctx, update, "")
	return nil
}

func (s *ReceiptService) publishStatus(ctx context.Context, update domain.StatusUpdate, dedupeID string) {
	data, _ := json.Marshal(update)
	env := domain.Envelope{
		Type:           domain.EnvelopeStatus,
		ConversationID: update.ConversationID,
		DedupeID:       dedupeID,
		Data:           data,
	}
	if update.Type == domain.TypeTyping {
		env.Type = domain.EnvelopeTyping
	}
	err := s.fanoutBreaker.Execute(ctx, func(callCtx context.Context) error {
		return s.broadcast.PublishStatus(callCtx, env)
	})
	if err != nil {
		s.log.WarnContext(ctx, "receipts - status publish - degraded", "conv_id", update.ConversationID, "err", err)
		return
	}
	metrics.FanoutPublishedTotal.WithLabelValues("status").Inc()
}

func regresses(from, to domain.DeliveryStatus) bool {
	rank := map[domain.DeliveryStatus]int{
		domain.StatusSent:      0,
		domain.StatusDelivered: 1,
		domain.StatusRead:      2,
	}
	return rank[to] <= rank[from]
}
