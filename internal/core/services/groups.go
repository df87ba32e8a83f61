package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chatgate/internal/core/contracts"
	"chatgate/internal/core/domain"
	"chatgate/internal/platform/breaker"
)

// GroupService enforces the role invariants protecting group manageability:
// a group conversation always keeps at least one identity able to manage
// membership. Membership changes are the only way fan-out targets change.
type GroupService struct {
	log           *slog.Logger
	conversations domain.ConversationStore
	cache         contracts.ConversationCache
	events        contracts.EventPublisher
	eventsBreaker *breaker.Breaker
	tx            contracts.TxManager
}

func NewGroupService(
	log *slog.Logger,
	conversations domain.ConversationStore,
	cache contracts.ConversationCache,
	events contracts.EventPublisher,
	eventsBreaker *breaker.Breaker,
	tx contracts.TxManager,
) *GroupService {
	return &GroupService{
		log:           log,
		conversations: conversations,
		cache:         cache,
		events:        events,
		eventsBreaker: eventsBreaker,
		tx:            tx,
	}
}

// Promote raises target to ADMIN. A freshly created or orphaned group (no
// admin, no owner) permits self-promotion by any participant.
func (s *GroupService) Promote(ctx context.Context, convID uuid.UUID, actorID, targetID string) error {
	ctx, span := tracer.Start(ctx, "GroupService.Promote", trace.WithAttributes(
		attribute.String("conv_id", convID.String()),
	))
	defer span.End()

	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		conv, admins, err := s.load(txCtx, convID, targetID)
		if err != nil {
			return err
		}
		if !s.isPrivileged(txCtx, conv, actorID) {
			// Orphaned group: no admin, no owner, anyone may claim it.
			orphaned := admins == 0 && conv.OwnerID == ""
			if !(orphaned && actorID == targetID) {
				return domain.ErrNotAdmin
			}
		}
		return s.conversations.SetRole(txCtx, convID, targetID, domain.RoleAdmin)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.afterMutation(ctx, convID, actorID, targetID, domain.EventMemberPromoted)
	return nil
}

// Demote lowers target to MEMBER. The last remaining admin can never be
// demoted.
func (s *GroupService) Demote(ctx context.Context, convID uuid.UUID, actorID, targetID string) error {
	ctx, span := tracer.Start(ctx, "GroupService.Demote", trace.WithAttributes(
		attribute.String("conv_id", convID.String()),
	))
	defer span.End()

	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		conv, admins, err := s.load(txCtx, convID, targetID)
		if err != nil {
			return err
		}
		if !s.isPrivileged(txCtx, conv, actorID) {
			return domain.ErrNotAdmin
		}
		targetRole, ok, err := s.conversations.GetRole(txCtx, convID, targetID)
		if err != nil {
			return err
		}
		if ok && targetRole == domain.RoleAdmin && admins <= 1 {
			return domain.ErrLastAdmin
		}
		return s.conversations.SetRole(txCtx, convID, targetID, domain.RoleMember)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.afterMutation(ctx, convID, actorID, targetID, domain.EventMemberDemoted)
	return nil
}

// Remove drops target from the conversation. A non-owner admin cannot
// remove another admin.
func (s *GroupService) Remove(ctx context.Context, convID uuid.UUID, actorID, targetID string) error {
	ctx, span := tracer.Start(ctx, "GroupService.Remove", trace.WithAttributes(
		attribute.String("conv_id", convID.String()),
	))
	defer span.End()

	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		conv, _, err := s.load(txCtx, convID, targetID)
		if err != nil {
			return err
		}
		if !s.isPrivileged(txCtx, conv, actorID) {
			return domain.ErrNotAdmin
		}
		targetRole, ok, err := s.conversations.GetRole(txCtx, convID, targetID)
		if err != nil {
			return err
		}
		if ok && targetRole == domain.RoleAdmin && conv.OwnerID != actorID {
			return domain.ErrCannotRemoveAdmin
		}
		return s.conversations.RemoveParticipant(txCtx, convID, targetID)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.afterMutation(ctx, convID, actorID, targetID, domain.EventMemberRemoved)
	return nil
}

// load fetches the conversation and admin count, verifying it is a group
// containing the target.
func (s *GroupService) load(ctx context.Context, convID uuid.UUID, targetID string) (*domain.Conversation, int, error) {
	conv, err := s.conversations.FindConversationByID(ctx, convID)
	if err != nil {
		return nil, 0, err
	}
	if !conv.IsGroup || !conv.HasParticipant(targetID) {
		return nil, 0, domain.ErrNotParticipant
	}
	admins, err := s.conversations.CountAdmins(ctx, convID)
	if err != nil {
		return nil, 0, err
	}
	return conv, admins, nil
}

// isPrivileged reports whether the actor may perform admin-level actions.
// The owner always may, regardless of role row state.
func (s *GroupService) isPrivileged(ctx context.Context, conv *domain.Conversation, actorID string) bool {
	if conv.OwnerID != "" && conv.OwnerID == actorID {
		return true
	}
	role, ok, err := s.conversations.GetRole(ctx, conv.ID, actorID)
	if err != nil || !ok {
		return false
	}
	return role == domain.RoleAdmin
}

func (s *GroupService) afterMutation(ctx context.Context, convID uuid.UUID, actorID, targetID, eventType string) {
	cid := convID.String()
	if err := s.cache.InvalidateConversationCache(ctx, cid); err != nil {
		s.log.WarnContext(ctx, "groups - invalidate cache - failed", "conv_id", cid, "err", err)
	}
	if err := s.cache.InvalidateUserConversationsCache(ctx, targetID); err != nil {
		s.log.WarnContext(ctx, "groups - invalidate cache - failed", "user_id", targetID, "err", err)
	}

	evt := domain.GroupEvent{
		EventType:      eventType,
		ConversationID: cid,
		ActorID:        actorID,
		TargetID:       targetID,
		Timestamp:      time.Now(),
	}
	go func(bg context.Context) {
		err := s.eventsBreaker.Execute(bg, func(callCtx context.Context) error {
			return s.events.PublishGroupEvent(callCtx, evt)
		})
		if err != nil {
			s.log.WarnContext(bg, "groups - event publish - degraded", "conv_id", cid, "err", err)
		}
	}(context.WithoutCancel(ctx))
}
