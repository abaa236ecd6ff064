package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/osslararemellan/ole/internal/models"
	"github.com/osslararemellan/ole/internal/storage"
)

// SenderDTO is the profile projection shown next to a message.
type SenderDTO struct {
	ID        uint   `json:"id"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}

// MaterialDTO is a library resource linked to a message.
type MaterialDTO struct {
	ID       uint   `json:"id"`
	Title    string `json:"title"`
	FilePath string `json:"file_path"`
}

// FileDTO is an uploaded file with a URL to fetch it.
type FileDTO struct {
	ID          uint   `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
}

// MessageDTO is a message as clients see it. Ids are strings in JSON since
// snowflake ids exceed the integer range of JavaScript numbers.
type MessageDTO struct {
	ID         int64         `json:"id,string"`
	SenderID   uint          `json:"sender_id"`
	Sender     *SenderDTO    `json:"sender,omitempty"`
	ReceiverID *uint         `json:"receiver_id,omitempty"`
	GroupID    *uint         `json:"group_id,omitempty"`
	Content    string        `json:"content"`
	CreatedAt  time.Time     `json:"created_at"`
	ReadAt     *time.Time    `json:"read_at,omitempty"`
	Materials  []MaterialDTO `json:"materials"`
	Files      []FileDTO     `json:"files"`
}

func newFileDTO(ctx context.Context, blobs storage.BlobStore, logger *zap.Logger, f *models.UploadedFile) FileDTO {
	dto := FileDTO{
		ID:          f.ID,
		FileName:    f.FileName,
		ContentType: f.ContentType,
		Size:        f.Size,
	}
	url, err := blobs.URL(ctx, f.StorageKey)
	if err != nil {
		logger.Warn("file url unavailable", zap.Uint("file_id", f.ID), zap.Error(err))
	}
	dto.URL = url
	return dto
}

// newMessageDTO converts a row loaded with its details. Attachments whose
// target row has gone are skipped.
func newMessageDTO(ctx context.Context, blobs storage.BlobStore, logger *zap.Logger, m *models.Message) MessageDTO {
	dto := MessageDTO{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		GroupID:    m.GroupID,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
		ReadAt:     m.ReadAt,
		Materials:  []MaterialDTO{},
		Files:      []FileDTO{},
	}
	if m.Sender != nil {
		dto.Sender = &SenderDTO{ID: m.Sender.ID, FullName: m.Sender.FullName, AvatarURL: m.Sender.AvatarURL}
	}
	for _, mm := range m.Materials {
		if mm.Resource == nil {
			continue
		}
		dto.Materials = append(dto.Materials, MaterialDTO{
			ID:       mm.Resource.ID,
			Title:    mm.Resource.Title,
			FilePath: mm.Resource.FilePath,
		})
	}
	for _, mf := range m.Files {
		if mf.File == nil {
			continue
		}
		dto.Files = append(dto.Files, newFileDTO(ctx, blobs, logger, mf.File))
	}
	return dto
}
