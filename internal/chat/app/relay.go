package app

import (
	"context"
	"time"

	"ephemeral_chat/internal/chat/domain"
	"ephemeral_chat/internal/chat/repository"
	"ephemeral_chat/pkg/logger"

	"go.uber.org/zap"
)

// RoomPubSub cross-instance room channel, implemented by repository.RedisPubSub
type RoomPubSub interface {
	Origin() string
	Publish(ctx context.Context, room string, msg *domain.Message) (int64, error)
	Subscribe(ctx context.Context, handler func(env repository.RoomEnvelope)) error
}

// RelayBroadcaster fan messages out through Redis so every instance delivers to its own Hub.
// Connections of this instance get the message at call time, with the membership of that moment;
// envelopes carrying our own origin are skipped when they come back.
type RelayBroadcaster struct {
	pubsub  RoomPubSub
	hub     *Hub
	timeout time.Duration
}

// NewRelayBroadcaster create RelayBroadcaster
func NewRelayBroadcaster(pubsub RoomPubSub, hub *Hub) *RelayBroadcaster {
	return &RelayBroadcaster{
		pubsub:  pubsub,
		hub:     hub,
		timeout: 3 * time.Second,
	}
}

// Start subscribe to all room channels until ctx is cancelled
func (b *RelayBroadcaster) Start(ctx context.Context) error {
	origin := b.pubsub.Origin()
	return b.pubsub.Subscribe(ctx, func(env repository.RoomEnvelope) {
		if env.Origin == origin {
			return
		}
		b.hub.Publish(env.Room, env.Message)
	})
}

// Publish deliver msg to this instance's room members, then forward it to the other instances.
// A Redis failure is logged, local delivery has already happened.
func (b *RelayBroadcaster) Publish(room string, msg *domain.Message) int {
	delivered := b.hub.Publish(room, msg)

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	n, err := b.pubsub.Publish(ctx, room, msg)
	if err != nil {
		logger.Log.Error("relay publish failed, delivered locally only",
			zap.String("room", room),
			zap.Uint64("message_id", msg.ID),
			zap.Error(err),
		)
		return delivered
	}
	logger.Log.Debug("relay publish", zap.String("room", room), zap.Int64("instances", n))
	return delivered
}
