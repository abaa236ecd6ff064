package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/osslararemellan/ole/internal/models"
	"github.com/osslararemellan/ole/internal/repositories"
	"github.com/osslararemellan/ole/internal/storage"
)

// FileService stores uploaded attachments: the blob first, then its row.
type FileService struct {
	files    *repositories.FileRepository
	blobs    storage.BlobStore
	maxBytes int64
	logger   *zap.Logger
	now      func() time.Time
	token    func() string
}

// NewFileService creates a FileService. maxBytes <= 0 disables the size check.
func NewFileService(files *repositories.FileRepository, blobs storage.BlobStore, maxBytes int64, logger *zap.Logger) *FileService {
	return &FileService{
		files:    files,
		blobs:    blobs,
		maxBytes: maxBytes,
		logger:   logger,
		now:      time.Now,
		token:    uuid.NewString,
	}
}

// Upload writes body under a fresh "<owner>/<unixMillis>_<uuid>_<name>" key
// and records it.
// If the row cannot be written the blob is removed again.
func (s *FileService) Upload(ctx context.Context, owner uint, name, contentType string, size int64, body io.Reader) (*FileDTO, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Problems: []string{"file_name is required"}}
	}
	if size < 0 {
		return nil, &ValidationError{Problems: []string{"size must not be negative"}}
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	key := storage.UploadKey(owner, s.now(), s.token(), name)
	if err := s.blobs.Put(ctx, key, contentType, size, body); err != nil {
		return nil, fmt.Errorf("upload %q: %w", name, err)
	}

	f := &models.UploadedFile{
		OwnerID:     owner,
		StorageKey:  key,
		FileName:    name,
		ContentType: contentType,
		Size:        size,
	}
	if err := s.files.Create(ctx, f); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.logger.Error("orphaned upload", zap.String("key", key), zap.Error(derr))
		}
		return nil, fmt.Errorf("record upload %q: %w", name, err)
	}
	s.logger.Info("file uploaded", zap.Uint("owner_id", owner), zap.String("key", key), zap.Int64("size", size))

	dto := newFileDTO(ctx, s.blobs, s.logger, f)
	return &dto, nil
}

// Get returns one of the caller's files.
func (s *FileService) Get(ctx context.Context, owner, id uint) (*FileDTO, error) {
	f, err := s.files.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "file")
	}
	if f.OwnerID != owner {
		return nil, fmt.Errorf("file: %w", ErrNotFound)
	}
	dto := newFileDTO(ctx, s.blobs, s.logger, f)
	return &dto, nil
}
