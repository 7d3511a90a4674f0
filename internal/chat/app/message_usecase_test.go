package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ephemeral_chat/internal/chat/domain"
	errprocess "ephemeral_chat/pkg/err"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recordingBroadcaster Broadcaster that keeps what it was asked to publish
type recordingBroadcaster struct {
	mu   sync.Mutex
	msgs []*domain.Message
}

func (b *recordingBroadcaster) Publish(room string, msg *domain.Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
	return 1
}

func (b *recordingBroadcaster) published() []*domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*domain.Message(nil), b.msgs...)
}

func TestMessageUseCase_SendStoresThenPublishes(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockMessageRepository)
	bc := &recordingBroadcaster{}

	stored := domain.NewMessage("alice", "tech", domain.TypeText, "hello", t0)
	stored.ID = 1
	mockRepo.On("Insert", ctx, "alice", "tech", domain.TypeText, "hello").Return(&stored, nil)

	uc := NewMessageUseCase(mockRepo, NewHub(), bc)
	msg, err := uc.Send(ctx, "alice", "tech", "  hello ")

	require.NoError(t, err)
	assert.Equal(t, uint64(1), msg.ID)
	assert.Equal(t, []*domain.Message{&stored}, bc.published())
	mockRepo.AssertExpectations(t)
}

func TestMessageUseCase_SendInsertFailureNeverPublishes(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockMessageRepository)
	bc := &recordingBroadcaster{}

	mockRepo.On("Insert", ctx, "alice", "tech", domain.TypeText, "hello").
		Return(nil, errprocess.Storage("insert message", errors.New("disk full")))

	uc := NewMessageUseCase(mockRepo, NewHub(), bc)
	_, err := uc.Send(ctx, "alice", "tech", "hello")

	assert.True(t, errprocess.IsStorage(err))
	assert.Empty(t, bc.published())
}

func TestMessageUseCase_SendValidation(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockMessageRepository)
	uc := NewMessageUseCase(mockRepo, NewHub(), nil)

	cases := []struct{ username, room, content string }{
		{"", "tech", "hi"},
		{"alice", "", "hi"},
		{"alice", "tech", "   "},
	}
	for _, c := range cases {
		_, err := uc.Send(ctx, c.username, c.room, c.content)
		assert.True(t, errprocess.IsValidation(err), "%+v", c)
	}
	mockRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMessageUseCase_AttachRejectsText(t *testing.T) {
	mockRepo := new(MockMessageRepository)
	uc := NewMessageUseCase(mockRepo, NewHub(), nil)

	_, err := uc.Attach(context.Background(), "alice", "tech", domain.TypeText, "/uploads/a.png")
	assert.True(t, errprocess.IsValidation(err))
	mockRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMessageUseCase_JoinReturnsSnapshot(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(t0)
	repo := newSQLiteRepo(t, clock.Now)
	hub := NewHub()
	uc := NewMessageUseCase(repo, hub, nil)

	_, err := uc.Send(ctx, "bob", "tech", "first")
	require.NoError(t, err)
	clock.Advance(1)
	_, err = uc.Send(ctx, "bob", "music", "elsewhere")
	require.NoError(t, err)

	alice := NewFakeSubscriber("alice-conn")
	msgs, err := uc.Join(ctx, alice, "alice", "tech", nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, 1, hub.MemberCount("tech"))

	_, err = uc.Join(ctx, alice, "", "tech", nil)
	assert.True(t, errprocess.IsValidation(err))

	uc.Leave("alice-conn")
	assert.Equal(t, 0, hub.MemberCount("tech"))
}

// eventSubscriber log snapshot and message events of one connection in arrival order
type eventSubscriber struct {
	mu     sync.Mutex
	events []string
}

func (s *eventSubscriber) ID() string { return "joiner" }

func (s *eventSubscriber) Deliver(msg *domain.Message) bool {
	s.record("new:" + msg.Content)
	return true
}

func (s *eventSubscriber) record(ev string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSubscriber) log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func TestMessageUseCase_JoinSnapshotPrecedesConcurrentSend(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockMessageRepository)
	uc := NewMessageUseCase(mockRepo, NewHub(), nil)

	querying := make(chan struct{})
	release := make(chan struct{})
	mockRepo.On("QueryActive", mock.Anything, "tech").
		Run(func(args mock.Arguments) {
			close(querying)
			<-release
		}).
		Return([]domain.Message{}, nil)
	mockRepo.On("Insert", mock.Anything, "bob", "tech", domain.TypeText, "hi").
		Return(&domain.Message{ID: 1, Room: "tech", Content: "hi"}, nil)

	sub := &eventSubscriber{}
	joined := make(chan error, 1)
	go func() {
		_, err := uc.Join(ctx, sub, "alice", "tech", func(msgs []domain.Message) {
			sub.record(fmt.Sprintf("init:%d", len(msgs)))
		})
		joined <- err
	}()

	<-querying
	sent := make(chan error, 1)
	go func() {
		_, err := uc.Send(ctx, "bob", "tech", "hi")
		sent <- err
	}()
	// the send has to wait for the snapshot of the join in progress
	time.Sleep(50 * time.Millisecond)
	mockRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	close(release)

	require.NoError(t, <-joined)
	require.NoError(t, <-sent)
	assert.Equal(t, []string{"init:0", "new:hi"}, sub.log())
}

func TestMessageUseCase_JoinSnapshotFailureSkipsCallback(t *testing.T) {
	mockRepo := new(MockMessageRepository)
	hub := NewHub()
	uc := NewMessageUseCase(mockRepo, hub, nil)
	mockRepo.On("QueryActive", mock.Anything, "tech").Return(nil, errprocess.Storage("query active", errors.New("db down")))

	called := false
	_, err := uc.Join(context.Background(), NewFakeSubscriber("c1"), "alice", "tech", func([]domain.Message) { called = true })
	assert.True(t, errprocess.IsStorage(err))
	assert.False(t, called)
	// membership is kept, later messages still reach the connection
	assert.Equal(t, 1, hub.MemberCount("tech"))
}

func TestMessageUseCase_PublishOrderFollowsInsertOrder(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(t0)
	repo := newSQLiteRepo(t, clock.Now)
	bc := &recordingBroadcaster{}
	uc := NewMessageUseCase(repo, NewHub(), bc)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := uc.Send(ctx, "alice", "tech", fmt.Sprintf("m%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	published := bc.published()
	require.Len(t, published, 20)
	for i := 1; i < len(published); i++ {
		assert.Less(t, published[i-1].ID, published[i].ID)
	}
}

func TestMessageUseCase_History(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockMessageRepository)
	mockRepo.On("QueryActive", ctx, domain.DefaultRoom).Return([]domain.Message{}, nil)

	uc := NewMessageUseCase(mockRepo, NewHub(), nil)
	msgs, err := uc.History(ctx, " ")

	require.NoError(t, err)
	assert.Empty(t, msgs)
	mockRepo.AssertExpectations(t)
}

func TestDeriveType(t *testing.T) {
	assert.Equal(t, domain.TypeImage, DeriveType("image/png"))
	assert.Equal(t, domain.TypeImage, DeriveType("IMAGE/JPEG"))
	assert.Equal(t, domain.TypeAudio, DeriveType("audio/mpeg"))
	assert.Equal(t, domain.TypeFile, DeriveType("application/pdf"))
	assert.Equal(t, domain.TypeFile, DeriveType(""))
}
