package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/osslararemellan/ole/internal/models"
)

type FileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(ctx context.Context, f *models.UploadedFile) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *FileRepository) GetByID(ctx context.Context, id uint) (*models.UploadedFile, error) {
	var f models.UploadedFile
	if err := r.db.WithContext(ctx).First(&f, id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// OwnedIDs returns the subset of ids uploaded by owner.
func (r *FileRepository) OwnedIDs(ctx context.Context, owner uint, ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []uint
	err := r.db.WithContext(ctx).Model(&models.UploadedFile{}).
		Where("owner_id = ? AND id IN ?", owner, ids).
		Pluck("id", &found).Error
	return found, err
}
