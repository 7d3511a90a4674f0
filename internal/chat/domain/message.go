package domain

import (
	"time"

	"ephemeral_chat/pkg"
)

// MessageTTL every message is retained for seven days after creation
const MessageTTL = 7 * 24 * time.Hour

// DefaultRoom room used when none is given
const DefaultRoom = "general"

// MessageType definition message content kind
type MessageType string

const (
	// TypeText content is the message body
	TypeText MessageType = "text"
	// TypeImage content is a reference to an image attachment
	TypeImage MessageType = "image"
	// TypeAudio content is a reference to an audio attachment
	TypeAudio MessageType = "audio"
	// TypeFile content is a reference to any other attachment
	TypeFile MessageType = "file"
)

// AttachmentTypes message types whose content points at a stored file
var AttachmentTypes = []MessageType{TypeImage, TypeAudio, TypeFile}

// Valid check t is a known message type
func (t MessageType) Valid() bool {
	return t == TypeText || t.IsAttachment()
}

// IsAttachment check t references a stored file
func (t MessageType) IsAttachment() bool {
	return pkg.Contains(AttachmentTypes, t)
}

// Message 一則聊天訊息, immutable once inserted
type Message struct {
	ID        uint64      `gorm:"primaryKey;autoIncrement" bson:"_id" json:"id"`
	Username  string      `gorm:"type:text;not null" bson:"username" json:"username"`
	Room      string      `gorm:"type:varchar(255);not null;default:general;index:idx_room_expires,priority:1" bson:"room" json:"room"`
	Type      MessageType `gorm:"type:varchar(16);not null" bson:"type" json:"type"`
	Content   string      `gorm:"type:text;not null" bson:"content" json:"content"`
	Timestamp time.Time   `gorm:"not null" bson:"timestamp" json:"timestamp"`
	ExpiresAt time.Time   `gorm:"not null;index:idx_room_expires,priority:2;index:idx_expires_at" bson:"expires_at" json:"expiresAt"`
}

// TableName gorm table name
func (Message) TableName() string {
	return "messages"
}

// NewMessage build a message stamped at now, expiring MessageTTL later.
// now is truncated to milliseconds so every backend stores it without loss.
func NewMessage(username, room string, typ MessageType, content string, now time.Time) Message {
	if room == "" {
		room = DefaultRoom
	}
	ts := now.UTC().Truncate(time.Millisecond)
	return Message{
		Username:  username,
		Room:      room,
		Type:      typ,
		Content:   content,
		Timestamp: ts,
		ExpiresAt: ts.Add(MessageTTL),
	}
}

// AttachmentRef id and content of an expired attachment row, captured before delete
type AttachmentRef struct {
	ID      uint64 `bson:"_id" json:"id"`
	Content string `bson:"content" json:"content"`
}

// CleanupJob request to delete the file behind an attachment reference
type CleanupJob struct {
	Ref         string    `json:"ref"`
	RequestedAt time.Time `json:"requested_at"`
}
