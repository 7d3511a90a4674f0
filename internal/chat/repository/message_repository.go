package repository

import (
	"context"
	"time"

	"ephemeral_chat/internal/chat/domain"
	errprocess "ephemeral_chat/pkg/err"

	"gorm.io/gorm"
)

// MessageRepository 訊息儲存, rows carry their own expiry
type MessageRepository interface {
	// AutoMigrate create table and indexes when missing
	AutoMigrate(ctx context.Context) error
	// Insert write one message stamped now and expiring MessageTTL later
	Insert(ctx context.Context, username, room string, typ domain.MessageType, content string) (*domain.Message, error)
	// QueryActive messages of room not yet expired, oldest first
	QueryActive(ctx context.Context, room string) ([]domain.Message, error)
	// QueryExpiredAttachments attachment rows with expiresAt <= cutoff. Call before DeleteExpired.
	QueryExpiredAttachments(ctx context.Context, cutoff time.Time) ([]domain.AttachmentRef, error)
	// DeleteExpired delete every row with expiresAt <= cutoff and return how many were removed
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
	// Close release the underlying handle
	Close(ctx context.Context) error
}

type gormMessageRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormMessageRepository create a MessageRepository on sqlite or postgreSQL.
// now may be nil, time.Now is used then.
func NewGormMessageRepository(db *gorm.DB, now func() time.Time) MessageRepository {
	if now == nil {
		now = time.Now
	}
	return &gormMessageRepository{db: db, now: now}
}

func (r *gormMessageRepository) AutoMigrate(ctx context.Context) error {
	return errprocess.Storage("migrate messages", r.db.WithContext(ctx).AutoMigrate(&domain.Message{}))
}

func (r *gormMessageRepository) Insert(ctx context.Context, username, room string, typ domain.MessageType, content string) (*domain.Message, error) {
	if !typ.Valid() {
		return nil, errprocess.Validation("insert message", "unknown message type "+string(typ))
	}
	msg := domain.NewMessage(username, room, typ, content, r.now())

	// single row INSERT, either the whole row lands or nothing does
	if err := r.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, errprocess.Storage("insert message", err)
	}
	return &msg, nil
}

func (r *gormMessageRepository) QueryActive(ctx context.Context, room string) ([]domain.Message, error) {
	if room == "" {
		room = domain.DefaultRoom
	}
	msgs := []domain.Message{}
	err := r.db.WithContext(ctx).
		Where("room = ? AND expires_at > ?", room, r.now().UTC()).
		Order("timestamp ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, errprocess.Storage("query active messages", err)
	}
	return msgs, nil
}

func (r *gormMessageRepository) QueryExpiredAttachments(ctx context.Context, cutoff time.Time) ([]domain.AttachmentRef, error) {
	refs := []domain.AttachmentRef{}
	err := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("id, content").
		Where("expires_at <= ? AND type IN ?", cutoff.UTC(), attachmentTypeNames()).
		Order("id ASC").
		Scan(&refs).Error
	if err != nil {
		return nil, errprocess.Storage("query expired attachments", err)
	}
	return refs, nil
}

func (r *gormMessageRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", cutoff.UTC()).
		Delete(&domain.Message{})
	if res.Error != nil {
		return 0, errprocess.Storage("delete expired messages", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *gormMessageRepository) Close(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return errprocess.Storage("close message store", err)
	}
	return errprocess.Storage("close message store", sqlDB.Close())
}

func attachmentTypeNames() []string {
	names := make([]string, 0, len(domain.AttachmentTypes))
	for _, t := range domain.AttachmentTypes {
		names = append(names, string(t))
	}
	return names
}
