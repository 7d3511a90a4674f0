package repository

import (
	"context"
	"encoding/json"
	"strings"

	"ephemeral_chat/internal/chat/domain"
	"ephemeral_chat/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const roomChannelPrefix = "chat:room:"

// RoomEnvelope payload carried on a room channel
type RoomEnvelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room"`
	Message *domain.Message `json:"message"`
}

// RedisPubSub definition redis pub/sub, one channel per room
type RedisPubSub struct {
	client *redis.Client
	origin string
}

// NewRedisPubSub create RedisPubSub, origin identifies this instance in envelopes
func NewRedisPubSub(client *redis.Client, origin string) *RedisPubSub {
	return &RedisPubSub{
		client: client,
		origin: origin,
	}
}

// Origin id of this instance, carried in every envelope it publishes
func (r *RedisPubSub) Origin() string {
	return r.origin
}

// RoomChannel channel name of room
func RoomChannel(room string) string {
	return roomChannelPrefix + room
}

// Publish 將 message 序列化後，發布到 room channel, return the number of subscribed instances
func (r *RedisPubSub) Publish(ctx context.Context, room string, msg *domain.Message) (int64, error) {
	data, err := json.Marshal(RoomEnvelope{Origin: r.origin, Room: room, Message: msg})
	if err != nil {
		return 0, err
	}
	return r.client.Publish(ctx, RoomChannel(room), data).Result()
}

// Subscribe 訂閱所有 room channel, handler runs on a single goroutine in arrival order.
// The subscription closes when ctx is cancelled.
func (r *RedisPubSub) Subscribe(ctx context.Context, handler func(env RoomEnvelope)) error {
	sub := r.client.PSubscribe(ctx, roomChannelPrefix+"*")
	// wait for the subscription confirmation so no publish after return is missed
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()

		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}

				var env RoomEnvelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil || env.Message == nil {
					logger.Log.Error("drop malformed room envelope",
						zap.String("channel", m.Channel),
						zap.Error(err),
					)
					continue
				}
				if env.Room == "" {
					env.Room = strings.TrimPrefix(m.Channel, roomChannelPrefix)
				}
				handler(env)
			case <-ctx.Done():
				logger.Log.Info("room subscription closed")
				return
			}
		}
	}()
	return nil
}
