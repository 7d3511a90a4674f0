package app

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"

	"ephemeral_chat/internal/chat/domain"
	"ephemeral_chat/internal/chat/repository"
	errprocess "ephemeral_chat/pkg/err"
	"ephemeral_chat/pkg"
	"ephemeral_chat/pkg/metrics"
)

const roomLockStripes = 64

// MessageUseCase 負責處理聊天訊息: store first, publish only what was stored
type MessageUseCase struct {
	msgRepo     repository.MessageRepository
	hub         *Hub
	broadcaster Broadcaster
	locks       [roomLockStripes]sync.Mutex
}

// NewMessageUseCase init message use case. broadcaster may be nil, hub is used then.
func NewMessageUseCase(msgRepo repository.MessageRepository, hub *Hub, broadcaster Broadcaster) *MessageUseCase {
	if broadcaster == nil {
		broadcaster = hub
	}
	return &MessageUseCase{
		msgRepo:     msgRepo,
		hub:         hub,
		broadcaster: broadcaster,
	}
}

// roomLock serialise insert+publish per room so publish order follows insert order
func (uc *MessageUseCase) roomLock(room string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(room))
	return &uc.locks[h.Sum32()%roomLockStripes]
}

// Send store a text message and publish it to room
func (uc *MessageUseCase) Send(ctx context.Context, username, room, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if pkg.AnyBlank(username, room, content) {
		return nil, errprocess.Validation("send message", "Invalid message")
	}
	return uc.store(ctx, username, room, domain.TypeText, content)
}

// Attach store an attachment reference and publish it to room
func (uc *MessageUseCase) Attach(ctx context.Context, username, room string, typ domain.MessageType, ref string) (*domain.Message, error) {
	if pkg.AnyBlank(username, room, ref) || !typ.IsAttachment() {
		return nil, errprocess.Validation("attach file", "Missing required fields")
	}
	return uc.store(ctx, username, room, typ, ref)
}

func (uc *MessageUseCase) store(ctx context.Context, username, room string, typ domain.MessageType, content string) (*domain.Message, error) {
	mu := uc.roomLock(room)
	mu.Lock()
	defer mu.Unlock()

	msg, err := uc.msgRepo.Insert(ctx, username, room, typ, content)
	if err != nil {
		return nil, err
	}
	metrics.MessagesInserted.WithLabelValues(string(typ)).Inc()

	uc.broadcaster.Publish(room, msg)
	return msg, nil
}

// History active messages of room, oldest first
func (uc *MessageUseCase) History(ctx context.Context, room string) ([]domain.Message, error) {
	if strings.TrimSpace(room) == "" {
		room = domain.DefaultRoom
	}
	return uc.msgRepo.QueryActive(ctx, room)
}

// Join move sub into room and return the room snapshot.
// onSnapshot, when set, runs under the room lock, so whatever it queues precedes every
// message published to room after the join. Messages already in the snapshot are not published to sub.
func (uc *MessageUseCase) Join(ctx context.Context, sub Subscriber, username, room string, onSnapshot func(msgs []domain.Message)) ([]domain.Message, error) {
	if pkg.AnyBlank(username, room) {
		return nil, errprocess.Validation("join room", "Invalid join request")
	}

	mu := uc.roomLock(room)
	mu.Lock()
	defer mu.Unlock()

	uc.hub.JoinRoom(sub, room, username)
	msgs, err := uc.msgRepo.QueryActive(ctx, room)
	if err != nil {
		return nil, err
	}
	if onSnapshot != nil {
		onSnapshot(msgs)
	}
	return msgs, nil
}

// Leave drop connID from its room
func (uc *MessageUseCase) Leave(connID string) {
	uc.hub.LeaveAll(connID)
}

// DeriveType map an upload content type to its message type
func DeriveType(contentType string) domain.MessageType {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return domain.TypeImage
	case strings.HasPrefix(ct, "audio/"):
		return domain.TypeAudio
	default:
		return domain.TypeFile
	}
}
