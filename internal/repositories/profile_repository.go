package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/osslararemellan/ole/internal/models"
)

const (
	profileCacheKeyPrefix = "profile:info:" // JSON of models.Profile
	profileCacheTTL       = time.Hour
)

// ProfileRepository reads profiles through a Redis cache-aside layer. The
// cache is best effort: any Redis failure falls through to the database.
type ProfileRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewProfileRepository(db *gorm.DB, rdb *redis.Client) *ProfileRepository {
	return &ProfileRepository{db: db, redis: rdb}
}

func profileKey(id uint) string {
	return fmt.Sprintf("%s%d", profileCacheKeyPrefix, id)
}

// Upsert creates the profile or overwrites its editable fields.
func (r *ProfileRepository) Upsert(ctx context.Context, p *models.Profile) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "avatar_url", "title", "school", "subjects", "interests", "education_level", "updated_at"}),
	}).Create(p).Error
	if err != nil {
		return err
	}
	r.invalidate(ctx, p.ID)
	return nil
}

func (r *ProfileRepository) GetByID(ctx context.Context, id uint) (*models.Profile, error) {
	if r.redis != nil {
		if val, err := r.redis.Get(ctx, profileKey(id)).Bytes(); err == nil {
			var p models.Profile
			if json.Unmarshal(val, &p) == nil {
				return &p, nil
			}
		}
	}

	var p models.Profile
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	r.cache(ctx, &p)
	return &p, nil
}

// GetByIDs returns the profiles found, keyed by id. Unknown ids are simply
// absent from the map.
func (r *ProfileRepository) GetByIDs(ctx context.Context, ids []uint) (map[uint]*models.Profile, error) {
	result := make(map[uint]*models.Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	missing := ids
	if r.redis != nil {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = profileKey(id)
		}
		if vals, err := r.redis.MGet(ctx, keys...).Result(); err == nil {
			missing = missing[:0:0]
			for i, val := range vals {
				s, ok := val.(string)
				var p models.Profile
				if ok && json.Unmarshal([]byte(s), &p) == nil {
					result[ids[i]] = &p
					continue
				}
				missing = append(missing, ids[i])
			}
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	var rows []models.Profile
	if err := r.db.WithContext(ctx).Where("id IN ?", missing).Find(&rows).Error; err != nil {
		return result, err
	}
	for i := range rows {
		result[rows[i].ID] = &rows[i]
	}
	if r.redis != nil && len(rows) > 0 {
		pipe := r.redis.Pipeline()
		for i := range rows {
			if data, err := json.Marshal(&rows[i]); err == nil {
				pipe.Set(ctx, profileKey(rows[i].ID), data, profileCacheTTL)
			}
		}
		_, _ = pipe.Exec(ctx)
	}
	return result, nil
}

func (r *ProfileRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// Update applies the given column values and drops the cached copy.
func (r *ProfileRepository) Update(ctx context.Context, id uint, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	r.invalidate(ctx, id)
	return nil
}

// Delete soft-deletes the profile.
func (r *ProfileRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Profile{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	r.invalidate(ctx, id)
	return nil
}

// Search matches full names case-insensitively, ordered by name.
func (r *ProfileRepository) Search(ctx context.Context, q string, limit int) ([]models.Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []models.Profile
	err := r.db.WithContext(ctx).
		Where(`LOWER(full_name) LIKE ? ESCAPE '\'`, containsPattern(q)).
		Order("full_name ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *ProfileRepository) cache(ctx context.Context, p *models.Profile) {
	if r.redis == nil {
		return
	}
	if data, err := json.Marshal(p); err == nil {
		r.redis.Set(ctx, profileKey(p.ID), data, profileCacheTTL)
	}
}

func (r *ProfileRepository) invalidate(ctx context.Context, id uint) {
	if r.redis != nil {
		r.redis.Del(ctx, profileKey(id))
	}
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// containsPattern lowercases q and wraps it for LIKE ... ESCAPE '\'.
func containsPattern(q string) string {
	q = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(q))
	return "%" + q + "%"
}
