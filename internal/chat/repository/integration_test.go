//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ephemeral_chat/internal/chat/domain"
	"ephemeral_chat/pkg/database"
	"ephemeral_chat/pkg/logger"
	testtool "ephemeral_chat/pkg/test_tool"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// exercise every backend against the same contract
func runStoreContract(t *testing.T, repo MessageRepository, clock *fakeClock) {
	ctx := context.Background()
	require.NoError(t, repo.AutoMigrate(ctx))

	text, err := repo.Insert(ctx, "alice", "general", domain.TypeText, "hi")
	require.NoError(t, err)
	img, err := repo.Insert(ctx, "bob", "general", domain.TypeImage, "/uploads/a.png")
	require.NoError(t, err)
	assert.Greater(t, img.ID, text.ID)

	msgs, err := repo.QueryActive(ctx, "general")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].ExpiresAt.Equal(msgs[0].Timestamp.Add(domain.MessageTTL)))

	cutoff := clock.Now().Add(domain.MessageTTL)
	clock.Set(cutoff)

	msgs, err = repo.QueryActive(ctx, "general")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	refs, err := repo.QueryExpiredAttachments(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, img.ID, refs[0].ID)
	assert.Equal(t, "/uploads/a.png", refs[0].Content)

	n, err := repo.DeleteExpired(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.DeleteExpired(ctx, cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPostgresMessageRepository(t *testing.T) {
	ctx := context.Background()
	logger.SetNewNop()

	container, host, port, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "chat",
			"POSTGRES_PASSWORD": "chat",
			"POSTGRES_DB":       "chat",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	dsn := fmt.Sprintf("host=%s user=chat password=chat dbname=chat port=%s sslmode=disable", host, port)
	db, err := database.NewPGConnection(database.Connection{ConnectStr: dsn, RetryCount: 5, RetryInterval: 1})
	require.NoError(t, err)

	clock := newFakeClock(time.Now().UTC())
	repo := NewGormMessageRepository(db, clock.Now)
	t.Cleanup(func() { repo.Close(ctx) })
	runStoreContract(t, repo, clock)
}

func TestMongoMessageRepository(t *testing.T) {
	ctx := context.Background()
	logger.SetNewNop()

	container, host, port, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	mongo, err := database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    fmt.Sprintf("mongodb://%s:%s", host, port),
		RetryCount:    5,
		RetryInterval: time.Second,
	}, "test_chat_db")
	require.NoError(t, err)

	clock := newFakeClock(time.Now().UTC())
	repo := NewMongoMessageRepository(mongo.Database, clock.Now)
	t.Cleanup(func() { repo.Close(ctx) })
	runStoreContract(t, repo, clock)
}

func TestRedisPubSubRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger.SetNewNop()

	container, host, port, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(context.Background()) })

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port})
	ps := NewRedisPubSub(client, "instance-a")

	got := make(chan RoomEnvelope, 1)
	require.NoError(t, ps.Subscribe(ctx, func(env RoomEnvelope) { got <- env }))

	msg := domain.NewMessage("alice", "tech", domain.TypeText, "hello", time.Now())
	msg.ID = 7
	n, err := ps.Publish(ctx, "tech", &msg)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	select {
	case env := <-got:
		assert.Equal(t, "instance-a", env.Origin)
		assert.Equal(t, "tech", env.Room)
		assert.Equal(t, uint64(7), env.Message.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("envelope not received")
	}
}
