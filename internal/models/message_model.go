package models

import (
	"errors"
	"time"

	"github.com/osslararemellan/ole/internal/conversation"
)

var ErrNoAddressee = errors.New("message needs a person or a group as addressee")

// Message rows keep the addressee in two nullable columns; exactly one is
// set. Build rows with NewMessage and read the addressee with Target.
type Message struct {
	ID         int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	SenderID   uint       `gorm:"not null;index" json:"sender_id"`
	ReceiverID *uint      `gorm:"index;check:chk_messages_addressee,(receiver_id IS NULL) <> (group_id IS NULL)" json:"receiver_id,omitempty"`
	GroupID    *uint      `gorm:"index" json:"group_id,omitempty"`
	Content    string     `gorm:"type:text;not null;default:''" json:"content"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
	ReadAt     *time.Time `json:"read_at,omitempty"`

	Sender    *Profile          `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Materials []MessageMaterial `gorm:"foreignKey:MessageID" json:"materials,omitempty"`
	Files     []MessageFile     `gorm:"foreignKey:MessageID" json:"files,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// NewMessage builds an unsaved row addressed to target.
func NewMessage(senderID uint, target conversation.Target, content string) (*Message, error) {
	m := &Message{SenderID: senderID, Content: content}
	id := target.ID()
	switch target.Kind() {
	case conversation.KindDirect:
		m.ReceiverID = &id
	case conversation.KindGroup:
		m.GroupID = &id
	default:
		return nil, ErrNoAddressee
	}
	return m, nil
}

// Target returns the conversation this message belongs to as seen by viewer:
// the group, or the other person of a direct exchange.
func (m *Message) Target(viewer uint) conversation.Target {
	switch {
	case m.GroupID != nil:
		return conversation.Group(*m.GroupID)
	case m.ReceiverID != nil:
		if m.SenderID == viewer {
			return conversation.Direct(*m.ReceiverID)
		}
		return conversation.Direct(m.SenderID)
	}
	return conversation.None()
}

// Involves reports whether viewer sent or directly received the message.
func (m *Message) Involves(viewer uint) bool {
	return m.SenderID == viewer || (m.ReceiverID != nil && *m.ReceiverID == viewer)
}

type MessageMaterial struct {
	ID         uint  `gorm:"primaryKey" json:"id"`
	MessageID  int64 `gorm:"not null;uniqueIndex:idx_message_material" json:"message_id"`
	ResourceID uint  `gorm:"not null;uniqueIndex:idx_message_material" json:"resource_id"`

	Resource *Resource `gorm:"foreignKey:ResourceID" json:"resource,omitempty"`
}

func (MessageMaterial) TableName() string {
	return "message_materials"
}

type MessageFile struct {
	ID        uint  `gorm:"primaryKey" json:"id"`
	MessageID int64 `gorm:"not null;uniqueIndex:idx_message_file" json:"message_id"`
	FileID    uint  `gorm:"not null;uniqueIndex:idx_message_file" json:"file_id"`

	File *UploadedFile `gorm:"foreignKey:FileID" json:"file,omitempty"`
}

func (MessageFile) TableName() string {
	return "message_files"
}
