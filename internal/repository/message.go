package repository

import (
	"context"
	"time"

	"vetcare/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository defines persistence operations for messages and their
// read sets. Deleted messages stay in the table; every read path filters
// them out.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	Get(ctx context.Context, id uint) (*models.Message, error)
	ListPage(ctx context.Context, convID uint, page, limit int) ([]*models.Message, int64, error)
	SaveEdit(ctx context.Context, msg *models.Message) error
	SoftDelete(ctx context.Context, id uint, at time.Time) error
	MarkAllRead(ctx context.Context, convID, userID uint, at time.Time) ([]uint, error)
	LatestVisible(ctx context.Context, convID uint) (*models.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository returns a new MessageRepository implementation.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepository) Get(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Preload("ReadBy").
		First(&msg, id).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListPage returns one page of visible messages in chronological order plus
// the total visible count. Page 1 holds the newest messages: rows are fetched
// newest-first, then reversed so the client renders oldest -> newest.
func (r *messageRepository) ListPage(ctx context.Context, convID uint, page, limit int) ([]*models.Message, int64, error) {
	base := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND is_deleted = ?", convID, false)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND is_deleted = ?", convID, false).
		Preload("Sender").
		Preload("ReadBy").
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}

	// Reverse to chronological order (oldest -> newest)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, total, nil
}

func (r *messageRepository) SaveEdit(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", msg.ID).
		Updates(map[string]interface{}{
			"content":   msg.Content,
			"is_edited": true,
			"edited_at": msg.EditedAt,
		}).Error
}

func (r *messageRepository) SoftDelete(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": at,
		}).Error
}

// MarkAllRead inserts read entries for every visible message in the
// conversation the user has not read and did not send. Returns the IDs that
// were newly marked so callers can broadcast them. The read set is
// append-only; OnConflict makes concurrent marks idempotent.
func (r *messageRepository) MarkAllRead(ctx context.Context, convID, userID uint, at time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_deleted = ?", convID, userID, false).
		Where("id NOT IN (?)", r.db.Model(&models.MessageRead{}).Select("message_id").Where("user_id = ?", userID)).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	reads := make([]models.MessageRead, 0, len(ids))
	for _, id := range ids {
		reads = append(reads, models.MessageRead{MessageID: id, UserID: userID, ReadAt: at})
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&reads).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// LatestVisible returns the newest non-deleted message in the conversation,
// or gorm.ErrRecordNotFound when none remain.
func (r *messageRepository) LatestVisible(ctx context.Context, convID uint) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND is_deleted = ?", convID, false).
		Order("created_at DESC").
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
