package app

import (
	"context"
	"encoding/json"

	"ephemeral_chat/internal/chat/domain"
	"ephemeral_chat/pkg/logger"
	"ephemeral_chat/pkg/metrics"

	"github.com/streadway/amqp" // RabbitMQ 客戶端
	"go.uber.org/zap"
)

// AMQPConsumer the part of *amqp.Channel CleanupConsumer needs
type AMQPConsumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// CleanupConsumer 消費附件清除工作, removing each file through remover
type CleanupConsumer struct {
	channel   AMQPConsumer
	remover   AttachmentRemover
	queueName string
}

// NewCleanupConsumer 建構 CleanupConsumer 實例
func NewCleanupConsumer(channel AMQPConsumer, remover AttachmentRemover, queueName string) *CleanupConsumer {
	return &CleanupConsumer{
		channel:   channel,
		remover:   remover,
		queueName: queueName,
	}
}

// StartConsumer 開始消費訊息 until ctx is done or the delivery channel closes
func (c *CleanupConsumer) StartConsumer(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queueName,
		"",    // consumer tag，留空由系統分配
		false, // autoAck 為 false，使用手動確認
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // arguments
	)
	if err != nil {
		return err
	}

	logger.Log.Info("cleanup consumer started", zap.String("queue", c.queueName))

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				logger.Log.Info("RabbitMQ 消費 channel 已關閉")
				return nil
			}
			c.handle(ctx, d)
		case <-ctx.Done():
			logger.Log.Info("cleanup consumer stopping")
			return nil
		}
	}
}

// handle remove the file of one job. A failed removal is logged and acked, never requeued.
func (c *CleanupConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var job domain.CleanupJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.Ref == "" {
		logger.Log.Error("malformed cleanup job", zap.ByteString("body", d.Body), zap.Error(err))
		metrics.CleanupJobs.WithLabelValues("malformed").Inc()
		if err := d.Reject(false); err != nil {
			logger.Log.Errorf("Reject 訊息失敗:", err)
		}
		return
	}

	if err := c.remover.Remove(ctx, job.Ref); err != nil {
		logger.Log.Error("cleanup attachment failed",
			zap.String("ref", job.Ref),
			zap.Time("requested_at", job.RequestedAt),
			zap.Error(err),
		)
		metrics.CleanupJobs.WithLabelValues("failed").Inc()
	} else {
		logger.Log.Debug("cleanup attachment done", zap.String("ref", job.Ref))
		metrics.CleanupJobs.WithLabelValues("ok").Inc()
	}

	if err := d.Ack(false); err != nil {
		logger.Log.Errorf("確認訊息失敗:", err)
	}
}
