// Package repository implements the data access layer for the messaging
// subsystem.
package repository

import (
	"context"
	"time"

	"vetcare/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository defines persistence operations for conversations
// and their participant join rows.
type ConversationRepository interface {
	Create(ctx context.Context, conv *models.Conversation) error
	Get(ctx context.Context, id uint) (*models.Conversation, error)
	FindActivePair(ctx context.Context, userA, userB uint) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID uint) ([]*models.Conversation, error)
	AddParticipant(ctx context.Context, convID, userID uint) error
	TouchOnSend(ctx context.Context, convID, senderID uint, preview string, at time.Time) error
	UpdatePreview(ctx context.Context, convID uint, preview string, at *time.Time) error
	ResetUnread(ctx context.Context, convID, userID uint) error
	UnreadCountFor(ctx context.Context, convID, userID uint) (int, error)
	Archive(ctx context.Context, convID uint) error
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository returns a new ConversationRepository implementation.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

func (r *conversationRepository) Get(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		First(&conv, id).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindActivePair looks up the active conversation containing both users.
// Conversations are strictly pairwise, so a double join on the participant
// table is sufficient.
func (r *conversationRepository) FindActivePair(ctx context.Context, userA, userB uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN conversation_participants a ON conversations.id = a.conversation_id AND a.user_id = ?", userA).
		Joins("JOIN conversation_participants b ON conversations.id = b.conversation_id AND b.user_id = ?", userB).
		Where("conversations.status = ?", models.ConversationActive).
		Preload("Participants").
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID uint) ([]*models.Conversation, error) {
	var conversations []*models.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN conversation_participants cp ON conversations.id = cp.conversation_id").
		Where("cp.user_id = ? AND conversations.status = ?", userID, models.ConversationActive).
		Select("conversations.*, COALESCE(cp.unread_count, 0) as unread_count").
		Preload("Participants").
		Order("conversations.last_message_time DESC NULLS LAST").
		Find(&conversations).Error
	return conversations, err
}

func (r *conversationRepository) AddParticipant(ctx context.Context, convID, userID uint) error {
	participant := models.ConversationParticipant{
		ConversationID: convID,
		UserID:         userID,
	}
	// OnConflict silently ignores duplicate key errors
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&participant).Error
}

// TouchOnSend updates the conversation's denormalized preview and bumps the
// unread counter of every participant except the sender. The increment is an
// atomic SQL expression so concurrent sends never lose counts.
func (r *conversationRepository) TouchOnSend(ctx context.Context, convID, senderID uint, preview string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Conversation{}).
			Where("id = ?", convID).
			Updates(map[string]interface{}{
				"last_message":      preview,
				"last_message_time": at,
			}).Error; err != nil {
			return err
		}
		return tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id <> ?", convID, senderID).
			Update("unread_count", gorm.Expr("unread_count + 1")).Error
	})
}

func (r *conversationRepository) UpdatePreview(ctx context.Context, convID uint, preview string, at *time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", convID).
		Updates(map[string]interface{}{
			"last_message":      preview,
			"last_message_time": at,
		}).Error
}

func (r *conversationRepository) ResetUnread(ctx context.Context, convID, userID uint) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Updates(map[string]interface{}{
			"unread_count": 0,
			"last_read_at": now,
		}).Error
}

func (r *conversationRepository) UnreadCountFor(ctx context.Context, convID, userID uint) (int, error) {
	var participant models.ConversationParticipant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		First(&participant).Error
	if err != nil {
		return 0, err
	}
	return participant.UnreadCount, nil
}

func (r *conversationRepository) Archive(ctx context.Context, convID uint) error {
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", convID).
		Update("status", models.ConversationArchived).Error
}
