package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/event-network/internal/db"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, m *db.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListForUser returns every message userID sent or received, newest first.
// Ties on created_at are broken by id so the order is total.
func (r *MessageRepository) ListForUser(ctx context.Context, userID uint64) ([]db.Message, error) {
	var msgs []db.Message
	err := r.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&msgs).Error
	return msgs, err
}

// MarkRead flips every unread message from senderID to receiverID and
// returns the flipped rows (with Read already set).
func (r *MessageRepository) MarkRead(ctx context.Context, receiverID, senderID uint64) ([]db.Message, error) {
	var flipped []db.Message

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("receiver_id = ? AND sender_id = ? AND is_read = ?", receiverID, senderID, false).
			Find(&flipped).Error; err != nil {
			return err
		}
		if len(flipped) == 0 {
			return nil
		}

		ids := make([]string, len(flipped))
		for i := range flipped {
			ids[i] = flipped[i].ID
			flipped[i].Read = true
		}
		return tx.Model(&db.Message{}).
			Where("id IN ? AND is_read = ?", ids, false).
			Update("is_read", true).Error
	})
	if err != nil {
		return nil, err
	}
	return flipped, nil
}
