// Package models contains data structures for the application's domain models.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
)

// Conversation is a pairwise thread between exactly two users. The
// last_message/last_message_time columns are a denormalized read cache
// derived from the message table; they are never authoritative.
type Conversation struct {
	ID              uint               `gorm:"primaryKey" json:"id"`
	Status          ConversationStatus `gorm:"type:varchar(16);default:'active';index" json:"status"`
	LastMessage     string             `gorm:"type:text" json:"last_message"`
	LastMessageTime *time.Time         `json:"last_message_time,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	Participants    []User             `gorm:"many2many:conversation_participants;" json:"participants,omitempty"`
	Messages        []Message          `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`

	// UnreadCount is the caller's own counter, selected from the
	// participant row per query. Read-only and never migrated: the
	// authoritative column lives on conversation_participants.
	UnreadCount int `gorm:"->;-:migration" json:"unread_count"`
}

// HasParticipant reports whether the user belongs to the conversation.
func (c *Conversation) HasParticipant(userID uint) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not userID, or nil.
func (c *Conversation) OtherParticipant(userID uint) *User {
	for i := range c.Participants {
		if c.Participants[i].ID != userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// ConversationParticipant is the join row between conversations and users.
// It carries the per-user unread counter; increments go through an atomic
// SQL expression, never a fetch-modify-save cycle.
type ConversationParticipant struct {
	ConversationID uint       `gorm:"primaryKey" json:"conversation_id"`
	UserID         uint       `gorm:"primaryKey" json:"user_id"`
	JoinedAt       time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	UnreadCount    int        `gorm:"default:0" json:"unread_count"`
}

// Attachment is a file reference carried by a message. The file itself
// lives in external storage; only the reference is persisted.
type Attachment struct {
	URL      string `json:"url"`
	FileType string `json:"file_type"`
	FileName string `json:"file_name"`
}

// AttachmentList stores attachments as a JSON column.
type AttachmentList []Attachment

// Value implements driver.Valuer.
func (a AttachmentList) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *AttachmentList) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("unsupported attachment column type %T", value)
	}
}

// Message is a single message inside a conversation. Deletes are logical:
// is_deleted flips and every read path filters the row out, preserving
// audit history.
type Message struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ConversationID uint           `gorm:"not null;index" json:"conversation_id"`
	SenderID       uint           `gorm:"not null;index" json:"sender_id"`
	Sender         *User          `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Content        string         `gorm:"type:text" json:"content"`
	Attachments    AttachmentList `gorm:"type:json" json:"attachments"`
	IsEdited       bool           `gorm:"default:false" json:"is_edited"`
	EditedAt       *time.Time     `json:"edited_at,omitempty"`
	IsDeleted      bool           `gorm:"default:false;index" json:"is_deleted"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ReadBy         []MessageRead  `gorm:"foreignKey:MessageID" json:"read_by,omitempty"`
}

// ReadByUser reports whether the user already appears in the read set.
func (m *Message) ReadByUser(userID uint) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// MessageRead is one entry of a message's append-only read set. A user
// appears at most once per message (composite primary key).
type MessageRead struct {
	MessageID uint      `gorm:"primaryKey" json:"-"`
	UserID    uint      `gorm:"primaryKey" json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}
