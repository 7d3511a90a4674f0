package repository

import (
	"context"
	"time"

	"ephemeral_chat/internal/chat/domain"
	errprocess "ephemeral_chat/pkg/err"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	messagesCollection = "messages"
	countersCollection = "counters"
)

type mongoMessageRepository struct {
	coll     *mongo.Collection
	counters *mongo.Collection
	now      func() time.Time
}

// NewMongoMessageRepository create a MessageRepository on mongoDB.
// ids come from a sequence document in the counters collection so they stay monotonic.
func NewMongoMessageRepository(db *mongo.Database, now func() time.Time) MessageRepository {
	if now == nil {
		now = time.Now
	}
	return &mongoMessageRepository{
		coll:     db.Collection(messagesCollection),
		counters: db.Collection(countersCollection),
		now:      now,
	}
}

// AutoMigrate create the (room, expires_at) and expires_at indexes.
// No TTL index: the server would drop attachment rows before their files are captured.
func (r *mongoMessageRepository) AutoMigrate(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "room", Value: 1}, {Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("idx_room_expires"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("idx_expires_at"),
		},
	})
	return errprocess.Storage("migrate messages", err)
}

func (r *mongoMessageRepository) nextID(ctx context.Context) (uint64, error) {
	var seq struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": messagesCollection},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&seq)
	if err != nil {
		return 0, err
	}
	return uint64(seq.Seq), nil
}

func (r *mongoMessageRepository) Insert(ctx context.Context, username, room string, typ domain.MessageType, content string) (*domain.Message, error) {
	if !typ.Valid() {
		return nil, errprocess.Validation("insert message", "unknown message type "+string(typ))
	}

	id, err := r.nextID(ctx)
	if err != nil {
		return nil, errprocess.Storage("allocate message id", err)
	}

	msg := domain.NewMessage(username, room, typ, content, r.now())
	msg.ID = id
	// InsertOne is atomic for a single document
	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		return nil, errprocess.Storage("insert message", err)
	}
	return &msg, nil
}

func (r *mongoMessageRepository) QueryActive(ctx context.Context, room string) ([]domain.Message, error) {
	if room == "" {
		room = domain.DefaultRoom
	}
	filter := bson.M{
		"room":       room,
		"expires_at": bson.M{"$gt": r.now().UTC()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errprocess.Storage("query active messages", err)
	}
	msgs := []domain.Message{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, errprocess.Storage("query active messages", err)
	}
	return msgs, nil
}

func (r *mongoMessageRepository) QueryExpiredAttachments(ctx context.Context, cutoff time.Time) ([]domain.AttachmentRef, error) {
	filter := bson.M{
		"expires_at": bson.M{"$lte": cutoff.UTC()},
		"type":       bson.M{"$in": attachmentTypeNames()},
	}
	opts := options.Find().
		SetProjection(bson.M{"_id": 1, "content": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errprocess.Storage("query expired attachments", err)
	}
	refs := []domain.AttachmentRef{}
	if err := cur.All(ctx, &refs); err != nil {
		return nil, errprocess.Storage("query expired attachments", err)
	}
	return refs, nil
}

func (r *mongoMessageRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": cutoff.UTC()}})
	if err != nil {
		return 0, errprocess.Storage("delete expired messages", err)
	}
	return res.DeletedCount, nil
}

func (r *mongoMessageRepository) Close(ctx context.Context) error {
	return errprocess.Storage("close message store", r.coll.Database().Client().Disconnect(ctx))
}
