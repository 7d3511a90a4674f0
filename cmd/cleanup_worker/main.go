package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ephemeral_chat/internal/chat/app"
	"ephemeral_chat/internal/chat/repository"
	"ephemeral_chat/pkg/config"
	"ephemeral_chat/pkg/database"
	"ephemeral_chat/pkg/logger"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// cleanup worker: 消費 attachment_cleanup queue 並刪除附件
func main() {
	logger.Log = logger.Initialize(config.EnvConfig.CleanupWorker, config.EnvConfig.CleanupWorkerLogPath)
	defer logger.Log.Sync()

	cfg := config.LoadConfig[config.CleanupWorker](config.EnvConfig.CleanupWorker, config.EnvConfig.CleanupWorkerYAMLPath)
	cfg.ApplyDefaults()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 附件儲存, 與 chat service 相同設定
	var store repository.AttachmentStore
	if cfg.Attachment.Driver == config.AttachmentMinIO {
		minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
			Endpoint:   fmt.Sprintf("%s:%d", cfg.MinIO.Host, cfg.MinIO.Port),
			User:       cfg.MinIO.User,
			Password:   cfg.MinIO.Password,
			BucketName: cfg.MinIO.BucketName,
			UseSSL:     cfg.MinIO.UseSSL,

			RetryCount:    cfg.MinIO.RetryCount,
			RetryInterval: cfg.MinIO.RetryInterval,
		})
		if err != nil {
			logger.Log.Fatal("Unable to connect to minio after retries", zap.Error(err))
		}
		store = repository.NewMinIOAttachmentStore(minioClient)
	} else {
		local, err := repository.NewLocalAttachmentStore(afero.NewOsFs(), cfg.Attachment.Dir)
		if err != nil {
			logger.Log.Fatal("Unable to prepare upload dir", zap.String("dir", cfg.Attachment.Dir), zap.Error(err))
		}
		store = local
	}

	// 2. RabbitMQ
	rabbitURL := fmt.Sprintf("amqp://%s:%s@%s:%s/", cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.IP, cfg.RabbitMQ.Port)
	conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
		ConnectStr:    rabbitURL,
		RetryCount:    cfg.RabbitMQ.RetryCount,
		RetryInterval: cfg.RabbitMQ.RetryInterval,
	})
	if err != nil {
		logger.Log.Fatal("RabbitMQ 連線失敗", zap.Error(err))
	}
	defer conn.Close()

	rabbitChannel, err := database.GetRabbitMQChannelWithRetry(conn, cfg.RabbitMQ.RetryCount, cfg.RabbitMQ.RetryInterval)
	if err != nil {
		logger.Log.Fatal("取得 RabbitMQ Channel 失敗", zap.Error(err))
	}
	defer rabbitChannel.Close()

	if err := database.DeclareDurableQueue(rabbitChannel, cfg.RabbitMQ.Queue); err != nil {
		logger.Log.Fatal("Queue Declare failed", zap.String("queue", cfg.RabbitMQ.Queue), zap.Error(err))
	}

	// 3. 一次處理一個工作
	if err := rabbitChannel.Qos(1, 0, false); err != nil {
		logger.Log.Fatal("set RabbitMQ qos failed", zap.Error(err))
	}

	consumer := app.NewCleanupConsumer(rabbitChannel, store, cfg.RabbitMQ.Queue)
	if err := consumer.StartConsumer(ctx); err != nil {
		logger.Log.Fatal("無法開始消費 RabbitMQ 訊息", zap.Error(err))
	}
	logger.Log.Info("cleanup worker stopped")
}
