package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"chatgate/internal/core/services"
	"chatgate/internal/platform/logger"
	"chatgate/pkg/middleware"
)

// GroupHandler exposes the role mutations over HTTP. Routes carry the
// conversation and target user in the path; the actor is the authenticated
// caller.
type GroupHandler struct {
	groups *services.GroupService
}

func NewGroupHandler(groups *services.GroupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

func (h *GroupHandler) Promote(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.groups.Promote)
}

func (h *GroupHandler) Demote(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.groups.Demote)
}

func (h *GroupHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.groups.Remove)
}

func (h *GroupHandler) mutate(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, convID uuid.UUID, actorID, targetID string) error,
) {
	log := logger.FromContext(r.Context())
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	convID, err := uuid.Parse(r.PathValue("conv_id"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	targetID := r.PathValue("user_id")
	if targetID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	if err := op(r.Context(), convID, actorID, targetID); err != nil {
		log.WarnContext(r.Context(), "groups - mutate - failed",
			"conv_id", convID, "actor_id", actorID, "target_id", targetID, "err", err)
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
