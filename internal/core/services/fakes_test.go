package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatgate/internal/core/contracts"
	"chatgate/internal/core/domain"
	"chatgate/internal/platform/breaker"
)

type fakeConvStore struct {
	mu      sync.Mutex
	convs   map[uuid.UUID]*domain.Conversation
	roles   map[uuid.UUID]map[string]domain.Role
	created []*domain.Conversation
}

func newFakeConvStore() *fakeConvStore {
	return &fakeConvStore{
		convs: make(map[uuid.UUID]*domain.Conversation),
		roles: make(map[uuid.UUID]map[string]domain.Role),
	}
}

func (f *fakeConvStore) add(conv *domain.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convs[conv.ID] = conv
}

func (f *fakeConvStore) setRole(convID uuid.UUID, userID string, role domain.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roles[convID] == nil {
		f.roles[convID] = make(map[string]domain.Role)
	}
	f.roles[convID][userID] = role
}

func (f *fakeConvStore) FindConversationByID(ctx context.Context, convID uuid.UUID) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[convID]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return conv, nil
}

func (f *fakeConvStore) FindOrCreateConversation(ctx context.Context, participants []string) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conv := range f.convs {
		if !conv.IsGroup && sameSet(conv.Participants, participants) {
			return conv, nil
		}
	}
	conv := &domain.Conversation{
		ID:           uuid.New(),
		Participants: participants,
		CreatedAt:    time.Now(),
	}
	f.convs[conv.ID] = conv
	f.created = append(f.created, conv)
	return conv, nil
}

func (f *fakeConvStore) UpdateLastMessageAt(ctx context.Context, convID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv, ok := f.convs[convID]; ok {
		conv.LastMessageAt = at
	}
	return nil
}

func (f *fakeConvStore) Participants(ctx context.Context, convID uuid.UUID) ([]string, error) {
	conv, err := f.FindConversationByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	return conv.Participants, nil
}

func (f *fakeConvStore) GetRole(ctx context.Context, convID uuid.UUID, userID string) (domain.Role, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[convID][userID]
	return role, ok, nil
}

func (f *fakeConvStore) SetRole(ctx context.Context, convID uuid.UUID, userID string, role domain.Role) error {
	f.setRole(convID, userID, role)
	return nil
}

func (f *fakeConvStore) RemoveParticipant(ctx context.Context, convID uuid.UUID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[convID]
	if !ok {
		return domain.ErrConversationNotFound
	}
	var remaining []string
	for _, p := range conv.Participants {
		if p != userID {
			remaining = append(remaining, p)
		}
	}
	conv.Participants = remaining
	delete(f.roles[convID], userID)
	return nil
}

func (f *fakeConvStore) CountAdmins(ctx context.Context, convID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, role := range f.roles[convID] {
		if role == domain.RoleAdmin {
			n++
		}
	}
	return n, nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			return false
		}
	}
	return true
}

type fakeMsgStore struct {
	mu        sync.Mutex
	messages  map[uuid.UUID]*domain.Message
	createErr error
}

func newFakeMsgStore() *fakeMsgStore {
	return &fakeMsgStore{messages: make(map[uuid.UUID]*domain.Message)}
}

func (f *fakeMsgStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *msg
	f.messages[msg.ID] = &stored
	return nil
}

func (f *fakeMsgStore) FindMessageByID(ctx context.Context, msgID uuid.UUID) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[msgID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}

func (f *fakeMsgStore) UpdateMessageStatus(ctx context.Context, msgID uuid.UUID, status domain.DeliveryStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[msgID]
	if !ok {
		return domain.ErrMessageNotFound
	}
	msg.Status = status
	return nil
}

func (f *fakeMsgStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeCache struct {
	mu          sync.Mutex
	invalidated []string
	err         error
}

func (f *fakeCache) GetParticipants(ctx context.Context, convID string) ([]string, bool) {
	return nil, false
}

func (f *fakeCache) SetParticipants(ctx context.Context, convID string, participants []string) error {
	return nil
}

func (f *fakeCache) InvalidateConversationCache(ctx context.Context, convID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, "conv:"+convID)
	return f.err
}

func (f *fakeCache) InvalidateUserConversationsCache(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, "user:"+userID)
	return f.err
}

type fakeBroadcast struct {
	mu        sync.Mutex
	envelopes []domain.Envelope
	err       error
}

func (f *fakeBroadcast) PublishMessage(ctx context.Context, env domain.Envelope) error {
	return f.record(env)
}

func (f *fakeBroadcast) PublishStatus(ctx context.Context, env domain.Envelope) error {
	return f.record(env)
}

func (f *fakeBroadcast) record(env domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.envelopes = append(f.envelopes, env)
	return nil
}

func (f *fakeBroadcast) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.envelopes)
}

func (f *fakeBroadcast) last() domain.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.envelopes[len(f.envelopes)-1]
}

type fakeEvents struct {
	mu          sync.Mutex
	msgEvents   []domain.MessageEvent
	groupEvents []domain.GroupEvent
	err         error
}

func (f *fakeEvents) PublishMessageEvent(ctx context.Context, evt domain.MessageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgEvents = append(f.msgEvents, evt)
	return nil
}

func (f *fakeEvents) PublishGroupEvent(ctx context.Context, evt domain.GroupEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.groupEvents = append(f.groupEvents, evt)
	return nil
}

func (f *fakeEvents) msgCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgEvents)
}

func (f *fakeEvents) groupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.groupEvents)
}

// fakeTx runs the function in place; storage fakes ignore tx scoping.
type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func testBreaker(name string) *breaker.Breaker {
	return breaker.New(slog.Default(), breaker.Settings{
		Name:             name,
		Timeout:          time.Second,
		ResetTimeout:     time.Minute,
		Interval:         time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      3,
	})
}

// trippedBreaker returns a breaker already in the OPEN state.
func trippedBreaker(name string) *breaker.Breaker {
	b := breaker.New(slog.Default(), breaker.Settings{
		Name:             name,
		Timeout:          time.Second,
		ResetTimeout:     time.Hour,
		Interval:         time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      1,
	})
	_ = b.Execute(context.Background(), func(ctx context.Context) error {
		return context.DeadlineExceeded
	})
	return b
}

var _ contracts.ConversationCache = (*fakeCache)(nil)
var _ contracts.BroadcastPublisher = (*fakeBroadcast)(nil)
var _ contracts.EventPublisher = (*fakeEvents)(nil)
var _ contracts.TxManager = fakeTx{}
var _ domain.ConversationStore = (*fakeConvStore)(nil)
var _ domain.MessageStore = (*fakeMsgStore)(nil)
