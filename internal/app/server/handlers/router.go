package handlers

import (
	"context"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/services"
)

// FrameRouter adapts authenticated WebSocket frames onto the services. It
// is the single seam between transport framing and the send saga.
type FrameRouter struct {
	send     *services.SendService
	receipts *services.ReceiptService
}

func NewFrameRouter(send *services.SendService, receipts *services.ReceiptService) *FrameRouter {
	return &FrameRouter{send: send, receipts: receipts}
}

func (r *FrameRouter) HandleSend(ctx context.Context, senderID string, f domain.SendMessageFrame) (*domain.Message, error) {
	return r.send.Send(ctx, senderID, services.SendRequest{
		ConversationID: f.ConversationID,
		RecipientIDs:   f.RecipientIDs,
		Content:        f.Content,
		MediaRefs:      f.MediaRefs,
		DedupeID:       f.DedupeID,
	})
}

func (r *FrameRouter) HandleTyping(ctx context.Context, senderID string, f domain.TypingFrame) error {
	return r.receipts.Typing(ctx, senderID, f.ConversationID)
}

func (r *FrameRouter) HandleDelivered(ctx context.Context, userID string, f domain.DeliveredFrame) error {
	return r.receipts.MarkDelivered(ctx, userID, f.MessageID)
}

func (r *FrameRouter) HandleRead(ctx context.Context, userID string, f domain.ReadFrame) error {
	return r.receipts.MarkRead(ctx, userID, f.ConversationID, f.LastReadMessageID)
}
