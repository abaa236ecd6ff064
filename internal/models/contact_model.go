package models

import "time"

// Contact is a directed edge: UserID keeps ContactID in their address book.
type Contact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_contact_pair" json:"user_id"`
	ContactID uint      `gorm:"not null;uniqueIndex:idx_contact_pair;index" json:"contact_id"`
	CreatedAt time.Time `json:"created_at"`

	Contact *Profile `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
}

func (Contact) TableName() string {
	return "contacts"
}
