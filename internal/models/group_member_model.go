package models

import "time"

const (
	MemberRoleOwner  = "owner"
	MemberRoleMember = "member"

	MemberStatusPending  = "pending"
	MemberStatusInvited  = "invited"
	MemberStatusApproved = "approved"
)

// GroupMember links a profile to a group. Only approved rows grant access to
// the group's conversation. LastReadMessageID is the read watermark.
type GroupMember struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	GroupID           uint      `gorm:"not null;uniqueIndex:idx_group_user" json:"group_id"`
	UserID            uint      `gorm:"not null;uniqueIndex:idx_group_user;index" json:"user_id"`
	Role              string    `gorm:"size:16;not null;default:member" json:"role"`
	Status            string    `gorm:"size:16;not null;default:pending" json:"status"`
	LastReadMessageID int64     `gorm:"not null;default:0" json:"last_read_message_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	Group   *Group   `gorm:"foreignKey:GroupID" json:"group,omitempty"`
	Profile *Profile `gorm:"foreignKey:UserID" json:"profile,omitempty"`
}

func (GroupMember) TableName() string {
	return "group_members"
}

func (m *GroupMember) Approved() bool {
	return m.Status == MemberStatusApproved
}

func (m *GroupMember) IsOwner() bool {
	return m.Role == MemberRoleOwner
}
