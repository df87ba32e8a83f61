package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chatgate/internal/core/contracts"
	"chatgate/internal/core/domain"
	"chatgate/internal/platform/breaker"
	"chatgate/internal/platform/metrics"
)

var tracer = otel.Tracer("chatgate-services")

// SendRequest is the saga input, regardless of whether the frame arrived
// over WebSocket or HTTP.
type SendRequest struct {
	ConversationID string   `validate:"omitempty,uuid"`
	RecipientIDs   []string `validate:"dive,required"`
	Content        string
	MediaRefs      []string `validate:"dive,required"`
	DedupeID       string
}

// Limits are the validation ceilings enforced before any side effect.
type Limits struct {
	MaxContentLength int
	MaxRecipients    int
}

// SendService orchestrates the message send saga: validate, resolve the
// conversation, persist, invalidate caches, then fan out and emit the
// durable event without blocking the caller. Only the persist step can fail
// the saga once validation passed.
type SendService struct {
	log           *slog.Logger
	conversations domain.ConversationStore
	messages      domain.MessageStore
	cache         contracts.ConversationCache
	broadcast     contracts.BroadcastPublisher
	events        contracts.EventPublisher
	fanoutBreaker *breaker.Breaker
	eventsBreaker *breaker.Breaker
	tx            contracts.TxManager
	limits        Limits
	validate      *validator.Validate
}

func NewSendService(
	log *slog.Logger,
	conversations domain.ConversationStore,
	messages domain.MessageStore,
	cache contracts.ConversationCache,
	broadcast contracts.BroadcastPublisher,
	events contracts.EventPublisher,
	fanoutBreaker *breaker.Breaker,
	eventsBreaker *breaker.Breaker,
	tx contracts.TxManager,
	limits Limits,
) *SendService {
	return &SendService{
		log:           log,
		conversations: conversations,
		messages:      messages,
		cache:         cache,
		broadcast:     broadcast,
		events:        events,
		fanoutBreaker: fanoutBreaker,
		eventsBreaker: eventsBreaker,
		tx:            tx,
		limits:        limits,
		validate:      validator.New(),
	}
}

// Send runs the saga. The returned message carries the client's dedupe
// token; the two publishes happen concurrently with the return and are not
// awaited.
func (s *SendService) Send(ctx context.Context, senderID string, in SendRequest) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "SendService.Send", trace.WithAttributes(
		attribute.String("sender_id", senderID),
	))
	defer span.End()

	if err := s.validateRequest(&in); err != nil {
		span.RecordError(err)
		return nil, err
	}

	conv, err := s.resolveConversation(ctx, senderID, in)
	if err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "send - resolve conversation - failed", "sender_id", senderID, "err", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("conv_id", conv.ID.String()))

	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        in.Content,
		MediaRefs:      in.MediaRefs,
		Status:         domain.StatusSent,
		DedupeID:       in.DedupeID,
		CreatedAt:      time.Now(),
	}

	// Persist has no fallback. Its failure aborts the saga and is the only
	// user-visible infrastructure failure.
	if err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.messages.CreateMessage(txCtx, msg); err != nil {
			return err
		}
		return s.conversations.UpdateLastMessageAt(txCtx, conv.ID, msg.CreatedAt)
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		s.log.ErrorContext(ctx, "send - persist - failed", "conv_id", conv.ID, "sender_id", senderID, "err", err)
		return nil, err
	}
	metrics.MessagesSentTotal.Inc()
	s.log.InfoContext(ctx, "send - persist - success", "conv_id", conv.ID, "message_id", msg.ID, "sender_id", senderID)

	s.invalidateCaches(ctx, conv)

	// Fire-and-forget: failures feed the breakers' accounting, never the
	// caller's result.
	bg := context.WithoutCancel(ctx)
	go s.publishBroadcast(bg, msg)
	go s.publishEvent(bg, conv, msg)

	return msg, nil
}

func (s *SendService) validateRequest(in *SendRequest) error {
	if err := s.validate.Struct(in); err != nil {
		return domain.ErrInvalidConversationID
	}
	if in.ConversationID == "" && len(in.RecipientIDs) == 0 {
		return domain.ErrNoRecipients
	}
	if strings.TrimSpace(in.Content) == "" && len(in.MediaRefs) == 0 {
		return domain.ErrEmptyMessage
	}
	if utf8.RuneCountInString(in.Content) > s.limits.MaxContentLength {
		return domain.ErrContentTooLong
	}
	if len(in.RecipientIDs) > s.limits.MaxRecipients {
		return domain.ErrTooManyRecipients
	}
	if in.DedupeID == "" {
		in.DedupeID = uuid.NewString()
	}
	return nil
}

// resolveConversation prefers the supplied identifier; a missing or unknown
// one falls back to find-or-create by the participant set.
func (s *SendService) resolveConversation(ctx context.Context, senderID string, in SendRequest) (*domain.Conversation, error) {
	if in.ConversationID != "" {
		cid, err := uuid.Parse(in.ConversationID)
		if err != nil {
			return nil, domain.ErrInvalidConversationID
		}
		conv, err := s.conversations.FindConversationByID(ctx, cid)
		switch {
		case err == nil:
			if !conv.HasParticipant(senderID) {
				return nil, domain.ErrNotParticipant
			}
			return conv, nil
		case errors.Is(err, domain.ErrConversationNotFound):
			// fall through to find-or-create
		default:
			return nil, err
		}
	}
	if len(in.RecipientIDs) == 0 {
		return nil, domain.ErrConversationNotFound
	}
	// The recipient list is about to define a conversation, so it must name
	// somebody besides the sender. This guards the unknown-identifier
	// fallback as much as the plain recipient-addressed send.
	if len(lo.Without(lo.Uniq(in.RecipientIDs), senderID)) == 0 {
		return nil, domain.ErrSelfOnlyRecipients
	}
	participants := lo.Uniq(append([]string{senderID}, in.RecipientIDs...))
	return s.conversations.FindOrCreateConversation(ctx, participants)
}

// invalidateCaches is best-effort; a stale read cache never blocks a send.
func (s *SendService) invalidateCaches(ctx context.Context, conv *domain.Conversation) {
	if err := s.cache.InvalidateConversationCache(ctx, conv.ID.String()); err != nil {
		s.log.WarnContext(ctx, "send - invalidate cache - conversation failed", "conv_id", conv.ID, "err", err)
	}
	for _, p := range conv.Participants {
		if err := s.cache.InvalidateUserConversationsCache(ctx, p); err != nil {
			s.log.WarnContext(ctx, "send - invalidate cache - user failed", "user_id", p, "err", err)
		}
	}
}

func (s *SendService) publishBroadcast(ctx context.Context, msg *domain.Message) {
	view, _ := json.Marshal(domain.NewMessageView(domain.TypeNewMessage, msg))
	env := domain.Envelope{
		Type:           domain.EnvelopeMessage,
		ConversationID: msg.ConversationID.String(),
		DedupeID:       msg.DedupeID,
		Data:           view,
	}
	err := s.fanoutBreaker.Execute(ctx, func(callCtx context.Context) error {
		return s.broadcast.PublishMessage(callCtx, env)
	})
	if err != nil {
		// Message is already durably saved; realtime delivery degrades only.
		s.log.WarnContext(ctx, "send - fanout publish - degraded", "conv_id", env.ConversationID, "err", err)
		return
	}
	metrics.FanoutPublishedTotal.WithLabelValues("message").Inc()
}

func (s *SendService) publishEvent(ctx context.Context, conv *domain.Conversation, msg *domain.Message) {
	evt := domain.MessageEvent{
		EventType:      domain.EventMessageSent,
		MessageID:      msg.ID.String(),
		ConversationID: msg.ConversationID.String(),
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		RecipientIDs:   lo.Without(conv.Participants, msg.SenderID),
		Timestamp:      msg.CreatedAt,
		DedupeID:       msg.DedupeID,
	}
	err := s.eventsBreaker.Execute(ctx, func(callCtx context.Context) error {
		return s.events.PublishMessageEvent(callCtx, evt)
	})
	if err != nil {
		s.log.WarnContext(ctx, "send - event publish - degraded", "conv_id", evt.ConversationID, "err", err)
	}
}
