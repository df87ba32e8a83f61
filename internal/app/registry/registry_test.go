package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chatgate/internal/core/domain"
)

type fakeClient struct {
	userID string

	mu       sync.Mutex
	sent     [][]byte
	notified [][]byte
	closed   bool
}

func (f *fakeClient) UserID() string { return f.userID }

func (f *fakeClient) Send(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeClient) Notify(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		// A notify after the socket closed is the defect CloseAll must avoid.
		panic("notify after close")
	}
	f.notified = append(f.notified, data)
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(5)
	c := &fakeClient{userID: "alice"}

	// Given an empty registry
	req.Empty(reg.ConnectionsFor("alice"))

	// When a client registers
	req.NoError(reg.Register(c))

	// Then it is the only local connection for its user
	req.Len(reg.ConnectionsFor("alice"), 1)
	req.Equal(1, reg.CountFor("alice"))
	req.Empty(reg.ConnectionsFor("bob"))
}

func TestRegistry_ConnectionCapRejectsExtraWithoutDisturbingOthers(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(5)

	var existing []*fakeClient
	for i := 0; i < 5; i++ {
		c := &fakeClient{userID: "alice"}
		existing = append(existing, c)
		req.NoError(reg.Register(c))
	}

	// When the sixth concurrent connection arrives
	err := reg.Register(&fakeClient{userID: "alice"})

	// Then it is rejected and the existing five stay registered
	req.ErrorIs(err, domain.ErrConnectionLimit)
	req.Equal(5, reg.CountFor("alice"))
	for _, c := range existing {
		req.False(c.closed)
	}

	// And other users are unaffected by the cap
	req.NoError(reg.Register(&fakeClient{userID: "bob"}))
}

func TestRegistry_UnregisterFreesASlot(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(2)
	c1 := &fakeClient{userID: "alice"}
	c2 := &fakeClient{userID: "alice"}
	req.NoError(reg.Register(c1))
	req.NoError(reg.Register(c2))

	reg.Unregister(c1)

	req.Equal(1, reg.CountFor("alice"))
	req.NoError(reg.Register(&fakeClient{userID: "alice"}))
}

func TestRegistry_SendToUserHitsEveryConnection(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(5)
	c1 := &fakeClient{userID: "alice"}
	c2 := &fakeClient{userID: "alice"}
	req.NoError(reg.Register(c1))
	req.NoError(reg.Register(c2))

	reg.SendToUser(context.Background(), "alice", []byte("hi"))

	req.Len(c1.sent, 1)
	req.Len(c2.sent, 1)
}

func TestRegistry_CloseAllNotifiesAndRefusesNewConnections(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(5)
	c1 := &fakeClient{userID: "alice"}
	c2 := &fakeClient{userID: "bob"}
	req.NoError(reg.Register(c1))
	req.NoError(reg.Register(c2))

	// When the gateway shuts down
	reg.CloseAll([]byte(`{"type":"server_shutdown"}`))

	// Then every client got the shutdown frame synchronously, before closing
	req.Len(c1.notified, 1)
	req.Len(c2.notified, 1)
	req.True(c1.closed)
	req.True(c2.closed)
	req.Empty(reg.ConnectionsFor("alice"))

	// And no new connection is accepted afterwards
	req.Error(reg.Register(&fakeClient{userID: "carol"}))
}
