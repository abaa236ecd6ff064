package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	ProfileRoleUser  = "user"
	ProfileRoleAdmin = "admin"
)

// Profile is a member's public identity. The id is the identity provider's
// user id. Rows are only soft deleted, by an admin.
type Profile struct {
	ID             uint   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	FullName       string `gorm:"size:120;not null;default:'';index" json:"full_name"`
	AvatarURL      string `gorm:"size:512" json:"avatar_url"`
	Title          string `gorm:"size:120" json:"title"`
	School         string `gorm:"size:200" json:"school"`
	Subjects       string `gorm:"size:512" json:"subjects"` // comma separated
	Interests      string `gorm:"size:512" json:"interests"`
	EducationLevel string `gorm:"size:64" json:"education_level"`
	Role           string `gorm:"size:16;not null;default:user" json:"role"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Profile) TableName() string {
	return "profiles"
}

func (p *Profile) IsAdmin() bool {
	return p.Role == ProfileRoleAdmin
}

func (p *Profile) SubjectList() []string {
	return splitList(p.Subjects)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
