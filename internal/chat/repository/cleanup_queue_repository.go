package repository

import (
	"context"
	"encoding/json"
	"time"

	"ephemeral_chat/internal/chat/domain"
	errprocess "ephemeral_chat/pkg/err"

	"github.com/streadway/amqp"
)

// AMQPPublisher the part of *amqp.Channel CleanupQueue needs
type AMQPPublisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// CleanupQueue hand attachment deletions to the cleanup worker through RabbitMQ.
// Remove only enqueues the request; the worker performs the delete.
type CleanupQueue struct {
	channel AMQPPublisher
	queue   string
	now     func() time.Time
}

// NewCleanupQueue create CleanupQueue publishing to queue on the default exchange
func NewCleanupQueue(channel AMQPPublisher, queue string) *CleanupQueue {
	return &CleanupQueue{channel: channel, queue: queue, now: time.Now}
}

// Remove publish a persistent CleanupJob for ref
func (q *CleanupQueue) Remove(_ context.Context, ref string) error {
	body, err := json.Marshal(domain.CleanupJob{Ref: ref, RequestedAt: q.now().UTC()})
	if err != nil {
		return errprocess.FileSystem("enqueue attachment cleanup", err)
	}
	err = q.channel.Publish("", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	return errprocess.FileSystem("enqueue attachment cleanup", err)
}
