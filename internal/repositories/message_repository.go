package repositories

import (
	"context"
	"slices"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/osslararemellan/ole/internal/conversation"
	"github.com/osslararemellan/ole/internal/models"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts the message and, only when there are any, its attachment
// rows, all in one transaction.
func (r *MessageRepository) Create(ctx context.Context, m *models.Message, materialIDs, fileIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		if len(materialIDs) > 0 {
			rows := make([]models.MessageMaterial, len(materialIDs))
			for i, id := range materialIDs {
				rows[i] = models.MessageMaterial{MessageID: m.ID, ResourceID: id}
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		if len(fileIDs) > 0 {
			rows := make([]models.MessageFile, len(fileIDs))
			for i, id := range fileIDs {
				rows[i] = models.MessageFile{MessageID: m.ID, FileID: id}
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID loads one message with the same details History loads.
func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	var m models.Message
	if err := withDetails(r.db.WithContext(ctx)).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// History returns the conversation oldest first, with the sender's public
// fields and the attachments loaded. limit > 0 keeps only the newest limit
// messages.
func (r *MessageRepository) History(ctx context.Context, viewer uint, target conversation.Target, limit int) ([]models.Message, error) {
	q := withDetails(r.db.WithContext(ctx))

	switch target.Kind() {
	case conversation.KindGroup:
		q = q.Where("group_id = ?", target.ID())
	case conversation.KindDirect:
		q = q.Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))",
			viewer, target.ID(), target.ID(), viewer)
	default:
		return nil, nil
	}

	var rows []models.Message
	if limit > 0 {
		if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
			return nil, err
		}
		slices.Reverse(rows)
		return rows, nil
	}
	err := q.Order("created_at ASC, id ASC").Find(&rows).Error
	return rows, err
}

// withDetails preloads the sender's public fields and both attachment kinds.
func withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Sender", func(db *gorm.DB) *gorm.DB {
			return db.Unscoped().Select("id", "full_name", "avatar_url")
		}).
		Preload("Materials.Resource", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "title", "file_path")
		}).
		Preload("Files.File")
}

// DirectSummary is the newest direct message exchanged with one counterpart
// plus how many of theirs the viewer has not read.
type DirectSummary struct {
	CounterpartID uint
	Last          models.Message
	Unread        int64
}

// Summaries returns one entry per person the viewer has exchanged direct
// messages with, newest conversation first.
func (r *MessageRepository) Summaries(ctx context.Context, viewer uint) ([]DirectSummary, error) {
	db := r.db.WithContext(ctx)

	var lastIDs []int64
	err := db.Model(&models.Message{}).
		Select("MAX(id)").
		Where("receiver_id IS NOT NULL AND (sender_id = ? OR receiver_id = ?)", viewer, viewer).
		Group("CASE WHEN sender_id = " + uintLiteral(viewer) + " THEN receiver_id ELSE sender_id END").
		Pluck("MAX(id)", &lastIDs).Error
	if err != nil {
		return nil, err
	}
	if len(lastIDs) == 0 {
		return nil, nil
	}

	var last []models.Message
	if err := db.Where("id IN ?", lastIDs).Order("created_at DESC, id DESC").Find(&last).Error; err != nil {
		return nil, err
	}

	var unread []struct {
		SenderID uint
		Unread   int64
	}
	err = db.Model(&models.Message{}).
		Select("sender_id, COUNT(*) AS unread").
		Where("receiver_id = ? AND read_at IS NULL", viewer).
		Group("sender_id").
		Scan(&unread).Error
	if err != nil {
		return nil, err
	}
	unreadBy := make(map[uint]int64, len(unread))
	for _, u := range unread {
		unreadBy[u.SenderID] = u.Unread
	}

	out := make([]DirectSummary, 0, len(last))
	for _, m := range last {
		other := m.Target(viewer).ID()
		out = append(out, DirectSummary{CounterpartID: other, Last: m, Unread: unreadBy[other]})
	}
	return out, nil
}

// MarkDirectRead stamps read_at on every unread message from sender to
// receiver and returns how many rows changed.
func (r *MessageRepository) MarkDirectRead(ctx context.Context, receiver, sender uint, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND read_at IS NULL", receiver, sender).
		Update("read_at", at)
	return res.RowsAffected, res.Error
}

// uintLiteral renders an id for the GROUP BY expression, which takes no
// bind variables.
func uintLiteral(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
