package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/osslararemellan/ole/internal/models"
)

type ContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// Add inserts the edge user -> contact. An existing edge is left alone.
func (r *ContactRepository) Add(ctx context.Context, userID, contactID uint) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Contact{UserID: userID, ContactID: contactID}).Error
}

// Remove deletes the edge and reports whether it existed.
func (r *ContactRepository) Remove(ctx context.Context, userID, contactID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND contact_id = ?", userID, contactID).
		Delete(&models.Contact{})
	return res.RowsAffected > 0, res.Error
}

// Profiles returns the user's contacts ordered by name.
func (r *ContactRepository) Profiles(ctx context.Context, userID uint) ([]models.Profile, error) {
	var rows []models.Profile
	err := r.db.WithContext(ctx).
		Joins("JOIN contacts ON contacts.contact_id = profiles.id").
		Where("contacts.user_id = ?", userID).
		Order("profiles.full_name ASC, profiles.id ASC").
		Find(&rows).Error
	return rows, err
}
