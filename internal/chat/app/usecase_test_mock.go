package app

import (
	"context"
	"sync"
	"time"

	"ephemeral_chat/internal/chat/domain"
	"ephemeral_chat/internal/chat/repository"

	"github.com/stretchr/testify/mock"
)

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// AutoMigrate moke create schema
func (m *MockMessageRepository) AutoMigrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Insert moke insert msg
func (m *MockMessageRepository) Insert(ctx context.Context, username, room string, typ domain.MessageType, content string) (*domain.Message, error) {
	args := m.Called(ctx, username, room, typ, content)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// QueryActive moke find active msg of room
func (m *MockMessageRepository) QueryActive(ctx context.Context, room string) ([]domain.Message, error) {
	args := m.Called(ctx, room)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// QueryExpiredAttachments moke find expired attachment refs
func (m *MockMessageRepository) QueryExpiredAttachments(ctx context.Context, cutoff time.Time) ([]domain.AttachmentRef, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.AttachmentRef), args.Error(1)
	}
	return nil, args.Error(1)
}

// DeleteExpired moke delete expired msg
func (m *MockMessageRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// Close moke close store
func (m *MockMessageRepository) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockRoomPubSub Mock RoomPubSub
type MockRoomPubSub struct {
	mock.Mock
}

// Publish moke publish to room channel
func (m *MockRoomPubSub) Publish(ctx context.Context, room string, msg *domain.Message) (int64, error) {
	args := m.Called(ctx, room, msg)
	return args.Get(0).(int64), args.Error(1)
}

// Origin moke instance id
func (m *MockRoomPubSub) Origin() string {
	args := m.Called()
	return args.String(0)
}

// Subscribe moke subscribe all room channels
func (m *MockRoomPubSub) Subscribe(ctx context.Context, handler func(env repository.RoomEnvelope)) error {
	args := m.Called(ctx, handler)
	return args.Error(0)
}

// MockAttachmentRemover Mock AttachmentRemover
type MockAttachmentRemover struct {
	mock.Mock
}

// Remove moke remove attachment
func (m *MockAttachmentRemover) Remove(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

// FakeSubscriber Subscriber that records deliveries
type FakeSubscriber struct {
	id       string
	mu       sync.Mutex
	received []*domain.Message
	full     bool
}

// NewFakeSubscriber create FakeSubscriber
func NewFakeSubscriber(id string) *FakeSubscriber {
	return &FakeSubscriber{id: id}
}

// ID connection id
func (s *FakeSubscriber) ID() string {
	return s.id
}

// Deliver record msg, refuse when marked full
func (s *FakeSubscriber) Deliver(msg *domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.received = append(s.received, msg)
	return true
}

// SetFull make Deliver refuse messages
func (s *FakeSubscriber) SetFull(full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.full = full
}

// Received copy of delivered messages
func (s *FakeSubscriber) Received() []*domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Message, len(s.received))
	copy(out, s.received)
	return out
}
