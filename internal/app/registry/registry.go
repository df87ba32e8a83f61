package registry

import (
	"context"
	"sync"

	"chatgate/internal/core/contracts"
	"chatgate/internal/core/domain"
	"chatgate/internal/platform/metrics"
)

// Registry is the per-process map of authenticated user identity to live
// socket handles. It is never shared across instances; cross-instance
// delivery goes through the fan-out channel.
type Registry struct {
	mu         sync.RWMutex
	conns      map[string]map[contracts.Client]struct{} // user_id -> connection set
	maxPerUser int
	closed     bool
}

func NewRegistry(maxPerUser int) *Registry {
	return &Registry{
		conns:      make(map[string]map[contracts.Client]struct{}),
		maxPerUser: maxPerUser,
	}
}

// Register adds an authenticated client under its user identity. The
// (cap+1)-th concurrent connection is rejected without disturbing the
// existing ones.
func (h *Registry) Register(c contracts.Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return domain.ErrConnectionLimit
	}
	userID := c.UserID()
	set := h.conns[userID]
	if len(set) >= h.maxPerUser {
		return domain.ErrConnectionLimit
	}
	if set == nil {
		set = make(map[contracts.Client]struct{})
		h.conns[userID] = set
	}
	set[c] = struct{}{}
	metrics.IncrementConnections()
	return nil
}

func (h *Registry) Unregister(c contracts.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userID := c.UserID()
	set := h.conns[userID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, userID)
	}
	metrics.DecrementConnections()
}

// ConnectionsFor returns the local live connections for a user. Empty for
// users attached to other gateway instances; callers treat that as a no-op.
func (h *Registry) ConnectionsFor(userID string) []contracts.Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.conns[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]contracts.Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (h *Registry) CountFor(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

func (h *Registry) SendToUser(ctx context.Context, userID string, data []byte) {
	for _, c := range h.ConnectionsFor(userID) {
		_ = c.Send(ctx, data)
	}
}

// CloseAll pushes the notify frame to every registered connection, closes
// them all and refuses further registrations. Used on graceful shutdown.
// The notify frame goes through the synchronous write path so it is on the
// wire before the socket closes.
func (h *Registry) CloseAll(notify []byte) {
	h.mu.Lock()
	h.closed = true
	var all []contracts.Client
	for _, set := range h.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	h.conns = make(map[string]map[contracts.Client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		if notify != nil {
			c.Notify(notify)
		}
		c.Close()
		metrics.DecrementConnections()
	}
}
