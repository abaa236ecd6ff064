package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/osslararemellan/ole/internal/models"
)

// ResourceFilter narrows a library search. Empty fields do not filter.
type ResourceFilter struct {
	Subject      string
	Grade        string
	Difficulty   string
	ResourceType string
	AuthorID     uint
	Query        string // matched against title and description
	Limit        int
	Offset       int
}

// Facets are the values offered by the cascading dropdowns: subjects, then
// grades within the chosen subject, then difficulties within both.
type Facets struct {
	Subjects     []string `json:"subjects"`
	Grades       []string `json:"grades"`
	Difficulties []string `json:"difficulties"`
}

type ResourceRepository struct {
	db *gorm.DB
}

func NewResourceRepository(db *gorm.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

func (r *ResourceRepository) Create(ctx context.Context, res *models.Resource) error {
	return r.db.WithContext(ctx).Create(res).Error
}

func (r *ResourceRepository) GetByID(ctx context.Context, id uint) (*models.Resource, error) {
	var res models.Resource
	err := r.db.WithContext(ctx).
		Preload("Author", func(db *gorm.DB) *gorm.DB { return db.Unscoped().Select("id", "full_name", "avatar_url") }).
		First(&res, id).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *ResourceRepository) Update(ctx context.Context, id uint, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Resource{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ResourceRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Resource{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ResourceRepository) filtered(ctx context.Context, f ResourceFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Resource{})
	if f.Subject != "" {
		q = q.Where("subject = ?", f.Subject)
	}
	if f.Grade != "" {
		q = q.Where("grade = ?", f.Grade)
	}
	if f.Difficulty != "" {
		q = q.Where("difficulty = ?", f.Difficulty)
	}
	if f.ResourceType != "" {
		q = q.Where("resource_type = ?", f.ResourceType)
	}
	if f.AuthorID != 0 {
		q = q.Where("author_id = ?", f.AuthorID)
	}
	if f.Query != "" {
		pattern := containsPattern(f.Query)
		q = q.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	return q
}

// Search returns one page of matches, newest first, and the total count.
func (r *ResourceRepository) Search(ctx context.Context, f ResourceFilter) ([]models.Resource, int64, error) {
	var total int64
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []models.Resource
	err := r.filtered(ctx, f).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(max(f.Offset, 0)).
		Find(&rows).Error
	return rows, total, err
}

// IncrementDownloads bumps the counter atomically and returns the new value.
func (r *ResourceRepository) IncrementDownloads(ctx context.Context, id uint) (int64, error) {
	var downloads int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Resource{}).Where("id = ?", id).
			UpdateColumn("downloads", gorm.Expr("downloads + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&models.Resource{}).Select("downloads").Where("id = ?", id).Scan(&downloads).Error
	})
	return downloads, err
}

func (r *ResourceRepository) Facets(ctx context.Context, subject, grade string) (Facets, error) {
	var f Facets
	db := r.db.WithContext(ctx).Model(&models.Resource{})
	if err := db.Distinct().Where("subject <> ''").Order("subject").Pluck("subject", &f.Subjects).Error; err != nil {
		return f, err
	}
	if subject == "" {
		return f, nil
	}
	db = r.db.WithContext(ctx).Model(&models.Resource{})
	if err := db.Distinct().Where("subject = ? AND grade <> ''", subject).Order("grade").Pluck("grade", &f.Grades).Error; err != nil {
		return f, err
	}
	if grade == "" {
		return f, nil
	}
	db = r.db.WithContext(ctx).Model(&models.Resource{})
	err := db.Distinct().Where("subject = ? AND grade = ? AND difficulty <> ''", subject, grade).
		Order("difficulty").Pluck("difficulty", &f.Difficulties).Error
	return f, err
}

// ExistingIDs returns the subset of ids that name a resource.
func (r *ResourceRepository) ExistingIDs(ctx context.Context, ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []uint
	err := r.db.WithContext(ctx).Model(&models.Resource{}).Where("id IN ?", ids).Pluck("id", &found).Error
	return found, err
}
