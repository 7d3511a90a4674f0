package app

import (
	"context"
	"errors"
	"testing"

	"ephemeral_chat/internal/chat/domain"
	"ephemeral_chat/internal/chat/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// startRelay start a relay on a mock pubsub and return the captured subscription handler
func startRelay(t *testing.T, pubsub *MockRoomPubSub, hub *Hub) (*RelayBroadcaster, func(env repository.RoomEnvelope)) {
	t.Helper()
	var handler func(env repository.RoomEnvelope)
	pubsub.On("Origin").Return("self")
	pubsub.On("Subscribe", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			handler = args.Get(1).(func(env repository.RoomEnvelope))
		}).
		Return(nil)

	relay := NewRelayBroadcaster(pubsub, hub)
	require.NoError(t, relay.Start(context.Background()))
	require.NotNil(t, handler)
	return relay, handler
}

func TestRelayBroadcaster_DeliversEnvelopeFromOtherInstance(t *testing.T) {
	hub := NewHub()
	a := NewFakeSubscriber("a")
	hub.JoinRoom(a, "tech", "alice")

	_, handler := startRelay(t, new(MockRoomPubSub), hub)

	msg := &domain.Message{ID: 3, Room: "tech", Content: "from another instance"}
	handler(repository.RoomEnvelope{Origin: "other", Room: "tech", Message: msg})

	assert.Equal(t, []*domain.Message{msg}, a.Received())
}

func TestRelayBroadcaster_SkipsOwnEnvelope(t *testing.T) {
	hub := NewHub()
	a := NewFakeSubscriber("a")
	hub.JoinRoom(a, "tech", "alice")

	_, handler := startRelay(t, new(MockRoomPubSub), hub)

	handler(repository.RoomEnvelope{Origin: "self", Room: "tech", Message: &domain.Message{ID: 4, Room: "tech"}})
	assert.Empty(t, a.Received())
}

func TestRelayBroadcaster_PublishDeliversLocallyAndForwards(t *testing.T) {
	hub := NewHub()
	a := NewFakeSubscriber("a")
	hub.JoinRoom(a, "tech", "alice")

	msg := &domain.Message{ID: 1, Room: "tech"}
	pubsub := new(MockRoomPubSub)
	pubsub.On("Publish", mock.Anything, "tech", msg).Return(int64(2), nil)
	relay, _ := startRelay(t, pubsub, hub)

	assert.Equal(t, 1, relay.Publish("tech", msg))
	assert.Equal(t, []*domain.Message{msg}, a.Received())
	pubsub.AssertExpectations(t)
}

func TestRelayBroadcaster_LateJoinerGetsNothing(t *testing.T) {
	hub := NewHub()
	early := NewFakeSubscriber("early")
	hub.JoinRoom(early, "tech", "alice")

	// the envelope is held back and handed to the subscription after the late join
	var pending []repository.RoomEnvelope
	msg := &domain.Message{ID: 7, Room: "tech"}
	pubsub := new(MockRoomPubSub)
	pubsub.On("Publish", mock.Anything, "tech", msg).
		Run(func(args mock.Arguments) {
			pending = append(pending, repository.RoomEnvelope{Origin: "self", Room: "tech", Message: msg})
		}).
		Return(int64(1), nil)
	relay, handler := startRelay(t, pubsub, hub)

	relay.Publish("tech", msg)

	late := NewFakeSubscriber("late")
	hub.JoinRoom(late, "tech", "bob")
	for _, env := range pending {
		handler(env)
	}

	assert.Empty(t, late.Received())
	assert.Equal(t, []*domain.Message{msg}, early.Received())
}

func TestRelayBroadcaster_RedisFailureStillDeliversLocally(t *testing.T) {
	hub := NewHub()
	a := NewFakeSubscriber("a")
	hub.JoinRoom(a, "tech", "alice")

	msg := &domain.Message{ID: 1, Room: "tech"}
	pubsub := new(MockRoomPubSub)
	pubsub.On("Publish", mock.Anything, "tech", msg).Return(int64(0), errors.New("connection refused"))
	relay, _ := startRelay(t, pubsub, hub)

	assert.Equal(t, 1, relay.Publish("tech", msg))
	assert.Equal(t, []*domain.Message{msg}, a.Received())
}
