package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ephemeral_chat/internal/chat/app"
	"ephemeral_chat/internal/chat/repository"
	"ephemeral_chat/internal/chat/router"
	"ephemeral_chat/pkg/config"
	"ephemeral_chat/pkg/database"
	"ephemeral_chat/pkg/logger"
	testtool "ephemeral_chat/pkg/test_tool"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	defer logger.Log.Sync()

	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)
	cfg.ApplyDefaults()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	testtool.StartPprof()

	// 1. 訊息儲存
	msgRepo := openMessageStore(ctx, cfg)
	defer msgRepo.Close(context.Background())
	if err := msgRepo.AutoMigrate(ctx); err != nil {
		logger.Log.Fatal("message store migrate failed", zap.Error(err))
	}

	// 2. 附件儲存
	attachments := openAttachmentStore(cfg)

	// 3. 房間廣播, 多實例時經由 Redis
	hub := app.NewHub()
	var broadcaster app.Broadcaster = hub
	if cfg.Redis.Enabled {
		relay := app.NewRelayBroadcaster(repository.NewRedisPubSub(openRedis(cfg), uuid.New().String()), hub)
		if err := relay.Start(ctx); err != nil {
			logger.Log.Fatal("subscribe room channels failed", zap.Error(err))
		}
		broadcaster = relay
	}
	messageUC := app.NewMessageUseCase(msgRepo, hub, broadcaster)

	// 4. 過期清除
	var remover app.AttachmentRemover = attachments
	if cfg.Attachment.Cleanup == config.CleanupQueue {
		conn, ch := openRabbitMQ(cfg.RabbitMQ)
		defer conn.Close()
		defer ch.Close()
		remover = repository.NewCleanupQueue(ch, cfg.RabbitMQ.Queue)
	}
	reaper := app.NewReaper(msgRepo, remover, app.ReaperConfig{
		Interval:    cfg.Reaper.Interval,
		Concurrency: cfg.Reaper.Concurrency,
		RunOnStart:  cfg.Reaper.RunOnStart,
	})
	reaper.Start(ctx)
	defer reaper.Stop()

	// 5. 啟動 Fiber
	r := fiber.New(fiber.Config{
		// multipart overhead on top of the file itself
		BodyLimit: int(cfg.Attachment.MaxUploadBytes()) + 1024*1024,
	})
	if err := os.MkdirAll(config.EnvConfig.ChatServiceLogPath, 0755); err != nil {
		log.Fatalf("Failed to create log dir: %v", err)
	}
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 将日志输出到文件
	}))

	router.RegisterRoutes(ctx, r,
		app.NewChatWebsocketHandler(messageUC, cfg.WebSocket.PingInterval, cfg.WebSocket.SendBuffer),
		app.NewChatHTTPHandler(messageUC, attachments, cfg.Attachment.MaxUploadBytes()),
		cfg.PublicDir,
	)

	go func() {
		<-ctx.Done()
		logger.Log.Info("shutting down chat service")
		if err := r.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Log.Error("fiber shutdown failed", zap.Error(err))
		}
	}()

	port := ":" + cfg.Port
	logger.Log.Info("Chat Service listening", zap.String("port", port), zap.String("store", cfg.Store.Driver))
	if err := r.Listen(port); err != nil {
		logger.Log.Error("Failed to start Fiber", zap.Error(err))
	}
}

func openMessageStore(ctx context.Context, cfg config.Chat) repository.MessageRepository {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
			cfg.PostgreSQL.Host, cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database, cfg.PostgreSQL.Port)
		db, err := database.NewPGConnection(database.Connection{
			ConnectStr:    dsn,
			RetryCount:    cfg.PostgreSQL.RetryCount,
			RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal(
				"Unable to connect to postgreSQL database after retries",
				zap.String("address", fmt.Sprintf("[%s:%d]", cfg.PostgreSQL.Host, cfg.PostgreSQL.Port)),
				zap.Error(err),
			)
		}
		return repository.NewGormMessageRepository(db, time.Now)

	case config.DriverMongo:
		uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
		mongo, err := database.NewMongoDB(ctx,
			database.Connection{
				ConnectStr:    uri,
				RetryCount:    cfg.MongoSQL.RetryCount,
				RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval) * time.Second,
			},
			cfg.MongoSQL.Database)
		if err != nil {
			logger.Log.Fatal(
				"Unable to connect to mongoDB database after retries",
				zap.String("address", fmt.Sprintf("[%s:%d]", cfg.MongoSQL.Host, cfg.MongoSQL.Port)),
				zap.Error(err),
			)
		}
		return repository.NewMongoMessageRepository(mongo.Database, time.Now)

	default:
		db, err := database.NewSQLiteConnection(cfg.SQLite.Path)
		if err != nil {
			logger.Log.Fatal("Unable to open sqlite database", zap.String("path", cfg.SQLite.Path), zap.Error(err))
		}
		return repository.NewGormMessageRepository(db, time.Now)
	}
}

func openAttachmentStore(cfg config.Chat) repository.AttachmentStore {
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
		return repository.NewMinIOAttachmentStore(minioClient)
	}

	store, err := repository.NewLocalAttachmentStore(afero.NewOsFs(), cfg.Attachment.Dir)
	if err != nil {
		logger.Log.Fatal("Unable to prepare upload dir", zap.String("dir", cfg.Attachment.Dir), zap.Error(err))
	}
	return store
}

func openRedis(cfg config.Chat) *redis.Client {
	var (
		client *redis.Client
		err    error
	)
	if cfg.Redis.Addr != "" {
		client, err = database.NewRedisStandaloneClient(cfg.Redis.Addr, cfg.Redis.RedisDB)
	} else {
		masterName, sentinel := config.GetRedisSetting()
		client, err = database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	}
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}
	return client
}

func openRabbitMQ(c config.RabbitMQConfig) (*amqp.Connection, *amqp.Channel) {
	rabbitURL := fmt.Sprintf("amqp://%s:%s@%s:%s/", c.User, c.Password, c.IP, c.Port)
	conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
		ConnectStr:    rabbitURL,
		RetryCount:    c.RetryCount,
		RetryInterval: c.RetryInterval,
	})
	if err != nil {
		logger.Log.Fatal("RabbitMQ 連線失敗", zap.Error(err))
	}

	ch, err := database.GetRabbitMQChannelWithRetry(conn, c.RetryCount, c.RetryInterval)
	if err != nil {
		logger.Log.Fatal("取得 RabbitMQ Channel 失敗", zap.Error(err))
	}
	if err := database.DeclareDurableQueue(ch, c.Queue); err != nil {
		logger.Log.Fatal("Queue Declare failed", zap.String("queue", c.Queue), zap.Error(err))
	}
	return conn, ch
}
