package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/services"
	"chatgate/internal/platform/logger"
	"chatgate/pkg/middleware"
)

// MessageHandler is the HTTP send surface. It mirrors the WebSocket
// send_message frame for clients without a live socket, guarded by an
// Idempotency-Key header so retried POSTs never duplicate a message.
type MessageHandler struct {
	send        *services.SendService
	idempotency *services.IdempotencyService
}

func NewMessageHandler(send *services.SendService, idempotency *services.IdempotencyService) *MessageHandler {
	return &MessageHandler{send: send, idempotency: idempotency}
}

type sendMessageBody struct {
	ConversationID string   `json:"conversation_id,omitempty"`
	RecipientIDs   []string `json:"recipient_ids,omitempty"`
	Content        string   `json:"content"`
	MediaRefs      []string `json:"media_refs,omitempty"`
	DedupeID       string   `json:"dedupe_id,omitempty"`
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "unable to read body", http.StatusBadRequest)
		return
	}
	var body sendMessageBody
	if err := json.Unmarshal(raw, &body); err != nil {
		http.Error(w, "malformed JSON body", http.StatusBadRequest)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		http.Error(w, "Idempotency-Key header required", http.StatusBadRequest)
		return
	}

	result, err := h.idempotency.Execute(r.Context(), userID, key, raw, func(ctx0 context.Context) (int, []byte, error) {
		msg, err := h.send.Send(ctx0, userID, services.SendRequest{
			ConversationID: body.ConversationID,
			RecipientIDs:   body.RecipientIDs,
			Content:        body.Content,
			MediaRefs:      body.MediaRefs,
			DedupeID:       body.DedupeID,
		})
		if err != nil {
			return 0, nil, err
		}
		view, _ := json.Marshal(domain.NewMessageView(domain.TypeMessageSent, msg))
		return http.StatusCreated, view, nil
	})
	if err != nil {
		log.WarnContext(r.Context(), "messages - send - failed", "user_id", userID, "err", err)
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if result.Replayed {
		w.Header().Set("Idempotency-Replayed", "true")
	}
	w.WriteHeader(result.StatusCode)
	_, _ = w.Write(result.Body)
}

// writeDomainError maps service sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotParticipant),
		errors.Is(err, domain.ErrNotAdmin):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrConversationNotFound),
		errors.Is(err, domain.ErrMessageNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrIdempotencyInProgress),
		errors.Is(err, domain.ErrIdempotencyMismatch),
		errors.Is(err, domain.ErrLastAdmin),
		errors.Is(err, domain.ErrCannotRemoveAdmin),
		errors.Is(err, domain.ErrStatusRegression):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidConversationID),
		errors.Is(err, domain.ErrNoRecipients),
		errors.Is(err, domain.ErrSelfOnlyRecipients),
		errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrContentTooLong),
		errors.Is(err, domain.ErrTooManyRecipients):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
