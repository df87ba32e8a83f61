package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chatgate/internal/core/domain"
)

type groupFixture struct {
	convs  *fakeConvStore
	cache  *fakeCache
	events *fakeEvents
	svc    *GroupService
	convID uuid.UUID
}

// newGroupFixture builds a group owned by "owner" with "admin" holding the
// ADMIN role and "member" plain.
func newGroupFixture() *groupFixture {
	f := &groupFixture{
		convs:  newFakeConvStore(),
		cache:  &fakeCache{},
		events: &fakeEvents{},
		convID: uuid.New(),
	}
	f.convs.add(&domain.Conversation{
		ID:           f.convID,
		IsGroup:      true,
		Name:         "ops",
		OwnerID:      "owner",
		Participants: []string{"owner", "admin", "member"},
	})
	f.convs.setRole(f.convID, "owner", domain.RoleAdmin)
	f.convs.setRole(f.convID, "admin", domain.RoleAdmin)
	f.convs.setRole(f.convID, "member", domain.RoleMember)
	f.svc = NewGroupService(
		slog.Default(),
		f.convs, f.cache, f.events,
		testBreaker("events.publish"),
		fakeTx{},
	)
	return f
}

func (f *groupFixture) role(t *testing.T, userID string) (domain.Role, bool) {
	t.Helper()
	role, ok, err := f.convs.GetRole(context.Background(), f.convID, userID)
	require.NoError(t, err)
	return role, ok
}

func TestGroups_AdminPromotesMember(t *testing.T) {
	require := require.New(t)
	f := newGroupFixture()

	require.NoError(f.svc.Promote(context.Background(), f.convID, "admin", "member"))

	role, ok := f.role(t, "member")
	require.True(ok)
	require.Equal(domain.RoleAdmin, role)
	require.Eventually(func() bool { return f.events.groupCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestGroups_MemberCannotPromote(t *testing.T) {
	require := require.New(t)
	f := newGroupFixture()

	err := f.svc.Promote(context.Background(), f.convID, "member", "member")

	require.ErrorIs(err, domain.ErrNotAdmin)
	role, _ := f.role(t, "member")
	require.Equal(domain.RoleMember, role)
}

func TestGroups_OrphanedGroupAllowsSelfPromotion(t *testing.T) {
	require := require.New(t)
	f := newGroupFixture()

	// A group with no owner and no admins lets any participant claim it,
	// but only for themselves.
	orphanID := uuid.New()
	f.convs.add(&domain.Conversation{
		ID:           orphanID,
		IsGroup:      true,
		Participants: []string{"alice", "bob"},
	})

	require.ErrorIs(f.svc.Promote(context.Background(), orphanID, "alice", "bob"), domain.ErrNotAdmin)
	require.NoError(f.svc.Promote(context.Background(), orphanID, "alice", "alice"))

	role, ok, err := f.convs.GetRole(context.Background(), orphanID, "alice")
	require.NoError(err)
	require.True(ok)
	require.Equal(domain.RoleAdmin, role)
}

func TestGroups_LastAdminCannotBeDemoted(t *testing.T) {
	require := require.New(t)
	f := newGroupFixture()

	// Demote "admin" first so "owner" is the sole remaining admin.
	require.NoError(f.svc.Demote(context.Background(), f.convID, "owner", "admin"))

	err := f.svc.Demote(context.Background(), f.convID, "owner", "owner")

	require.ErrorIs(err, domain.ErrLastAdmin)
	role, _ := f.role(t, "owner")
	require.Equal(domain.RoleAdmin, role)
}

func TestGroups_NonOwnerAdminCannotRemoveAdmin(t *testing.T) {
	require := require.New(t)
	f := newGroupFixture()

	err := f.svc.Remove(context.Background(), f.convID, "admin", "owner")

	require.ErrorIs(err, domain.ErrCannotRemoveAdmin)
	conv, findErr := f.convs.FindConversationByID(context.Background(), f.convID)
	require.NoError(findErr)
	require.True(conv.HasParticipant("owner"))
}

func TestGroups_OwnerRemovesAdmin(t *testing.T) {
	require := require.New(t)
	f := newGroupFixture()

	require.NoError(f.svc.Remove(context.Background(), f.convID, "owner", "admin"))

	conv, err := f.convs.FindConversationByID(context.Background(), f.convID)
	require.NoError(err)
	require.False(conv.HasParticipant("admin"))
	require.Eventually(func() bool { return f.events.groupCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestGroups_TargetMustBeGroupParticipant(t *testing.T) {
	require := require.New(t)
	f := newGroupFixture()

	require.ErrorIs(f.svc.Promote(context.Background(), f.convID, "owner", "stranger"), domain.ErrNotParticipant)

	direct := uuid.New()
	f.convs.add(&domain.Conversation{
		ID:           direct,
		Participants: []string{"alice", "bob"},
	})
	require.ErrorIs(f.svc.Promote(context.Background(), direct, "alice", "bob"), domain.ErrNotParticipant)
}

func TestGroups_MutationInvalidatesCaches(t *testing.T) {
	require := require.New(t)
	f := newGroupFixture()

	require.NoError(f.svc.Promote(context.Background(), f.convID, "owner", "member"))

	f.cache.mu.Lock()
	defer f.cache.mu.Unlock()
	require.Contains(f.cache.invalidated, "conv:"+f.convID.String())
	require.Contains(f.cache.invalidated, "user:member")
}
