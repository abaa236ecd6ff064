package repositories

import (
	"context"
	"errors"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/osslararemellan/ole/internal/models"
)

var ErrMemberExists = errors.New("membership already exists")

type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// CreateWithOwner inserts the group and its owner's approved membership in
// one transaction.
func (r *GroupRepository) CreateWithOwner(ctx context.Context, g *models.Group) (*models.GroupMember, error) {
	owner := &models.GroupMember{
		UserID: g.OwnerID,
		Role:   models.MemberRoleOwner,
		Status: models.MemberStatusApproved,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(g).Error; err != nil {
			return err
		}
		owner.GroupID = g.ID
		return tx.Create(owner).Error
	})
	if err != nil {
		return nil, err
	}
	return owner, nil
}

func (r *GroupRepository) GetByID(ctx context.Context, id uint) (*models.Group, error) {
	var g models.Group
	if err := r.db.WithContext(ctx).First(&g, id).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GroupRepository) Update(ctx context.Context, id uint, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Group{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the group with its memberships and messages. It returns
// the membership rows that were deleted so callers can announce them.
func (r *GroupRepository) Delete(ctx context.Context, id uint) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", id).Find(&members).Error; err != nil {
			return err
		}
		msgIDs := tx.Model(&models.Message{}).Select("id").Where("group_id = ?", id)
		if err := tx.Where("message_id IN (?)", msgIDs).Delete(&models.MessageMaterial{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id IN (?)", msgIDs).Delete(&models.MessageFile{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", id).Delete(&models.GroupMember{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Group{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *GroupRepository) Member(ctx context.Context, groupID, userID uint) (*models.GroupMember, error) {
	var m models.GroupMember
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// AddMember inserts a membership row. A second row for the same pair is
// refused with ErrMemberExists.
func (r *GroupRepository) AddMember(ctx context.Context, m *models.GroupMember) error {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMemberExists
	}
	return nil
}

// SetMemberStatus changes the status of one membership and returns the row
// before and after the change.
func (r *GroupRepository) SetMemberStatus(ctx context.Context, groupID, userID uint, status string) (before, after *models.GroupMember, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.GroupMember
		if err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).First(&m).Error; err != nil {
			return err
		}
		old := m
		if err := tx.Model(&m).Update("status", status).Error; err != nil {
			return err
		}
		m.Status = status
		before, after = &old, &m
		return nil
	})
	return before, after, err
}

// RemoveMember deletes the membership and returns the deleted row.
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID uint) (*models.GroupMember, error) {
	var m models.GroupMember
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).First(&m).Error; err != nil {
			return err
		}
		return tx.Delete(&m).Error
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Members lists a group's memberships with profiles, owner first.
func (r *GroupRepository) Members(ctx context.Context, groupID uint) ([]models.GroupMember, error) {
	var rows []models.GroupMember
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Where("group_id = ?", groupID).
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:  "CASE WHEN role = ? THEN 0 ELSE 1 END, id",
			Vars: []any{models.MemberRoleOwner},
		}}).
		Find(&rows).Error
	return rows, err
}

// MembershipsOf returns every membership row of the user, whatever its
// status, with the group loaded, ordered by group name.
func (r *GroupRepository) MembershipsOf(ctx context.Context, userID uint) ([]models.GroupMember, error) {
	var rows []models.GroupMember
	if err := r.db.WithContext(ctx).Preload("Group").Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	kept := rows[:0]
	for _, m := range rows {
		if m.Group != nil {
			kept = append(kept, m)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Group.Name != kept[j].Group.Name {
			return kept[i].Group.Name < kept[j].Group.Name
		}
		return kept[i].GroupID < kept[j].GroupID
	})
	return kept, nil
}

// UnreadCounts counts, per approved group of the user, messages from others
// above the read watermark. Groups without unread messages are absent.
func (r *GroupRepository) UnreadCounts(ctx context.Context, userID uint) (map[uint]int64, error) {
	var rows []struct {
		GroupID uint
		Unread  int64
	}
	err := r.db.WithContext(ctx).
		Table("group_members AS gm").
		Select("gm.group_id AS group_id, COUNT(m.id) AS unread").
		Joins("JOIN messages m ON m.group_id = gm.group_id AND m.id > gm.last_read_message_id AND m.sender_id <> gm.user_id").
		Where("gm.user_id = ? AND gm.status = ?", userID, models.MemberStatusApproved).
		Group("gm.group_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]int64, len(rows))
	for _, row := range rows {
		out[row.GroupID] = row.Unread
	}
	return out, nil
}

// AdvanceReadMark moves the member's watermark to the group's newest
// message. It never moves backwards.
func (r *GroupRepository) AdvanceReadMark(ctx context.Context, groupID, userID uint) error {
	var latest int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Select("COALESCE(MAX(id), 0)").
		Where("group_id = ?", groupID).
		Scan(&latest).Error
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ? AND last_read_message_id < ?", groupID, userID, latest).
		Update("last_read_message_id", latest).Error
}
