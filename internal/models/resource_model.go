package models

import "time"

// Resource is a shared teaching material in the library.
type Resource struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Title        string    `gorm:"size:200;not null" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	Subject      string    `gorm:"size:64;not null;index:idx_resource_class" json:"subject"`
	Grade        string    `gorm:"size:32;not null;index:idx_resource_class" json:"grade"`
	Difficulty   string    `gorm:"size:32;index:idx_resource_class" json:"difficulty"`
	ResourceType string    `gorm:"size:32;not null" json:"resource_type"`
	FilePath     string    `gorm:"size:512;not null" json:"file_path"`
	AuthorID     uint      `gorm:"not null;index" json:"author_id"`
	Downloads    int64     `gorm:"not null;default:0" json:"downloads"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Author *Profile `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
}

func (Resource) TableName() string {
	return "resources"
}

type UploadedFile struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OwnerID     uint      `gorm:"not null;index" json:"owner_id"`
	StorageKey  string    `gorm:"size:512;not null;uniqueIndex" json:"storage_key"`
	FileName    string    `gorm:"size:255;not null" json:"file_name"`
	ContentType string    `gorm:"size:128" json:"content_type"`
	Size        int64     `gorm:"not null" json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

func (UploadedFile) TableName() string {
	return "uploaded_files"
}
