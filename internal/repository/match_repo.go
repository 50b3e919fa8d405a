package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/oggyb/event-network/internal/db"
	"github.com/oggyb/event-network/internal/utils/pagination"
)

const matchInsertBatch = 500

type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// ReplaceForEvent swaps the whole match set of eventID for rows.
//
// Behavior:
//  1. Bumps the event's epoch pointer (row-locks it on MySQL/Postgres).
//  2. Inserts rows tagged with the new epoch.
//  3. Deletes every row of older epochs.
//
// All three steps share one transaction; readers join on the pointer, so
// they observe either the previous set or the new one, never a mix.
// Returns the new epoch.
func (r *MatchRepository) ReplaceForEvent(ctx context.Context, eventID uint64, rows []db.Match) (uint64, error) {
	var epoch uint64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.MatchEpoch{}).
			Where("event_id = ?", eventID).
			Update("epoch", gorm.Expr("epoch + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Create(&db.MatchEpoch{EventID: eventID, Epoch: 1}).Error; err != nil {
				return err
			}
		}

		var pointer db.MatchEpoch
		if err := tx.First(&pointer, "event_id = ?", eventID).Error; err != nil {
			return err
		}
		epoch = pointer.Epoch

		if len(rows) > 0 {
			batch := make([]db.Match, len(rows))
			for i, m := range rows {
				m.ID = 0
				m.EventID = eventID
				m.Epoch = epoch
				batch[i] = m
			}
			if err := tx.CreateInBatches(&batch, matchInsertBatch).Error; err != nil {
				return fmt.Errorf("insert matches: %w", err)
			}
		}

		return tx.Where("event_id = ? AND epoch <> ?", eventID, epoch).Delete(&db.Match{}).Error
	})
	if err != nil {
		return 0, err
	}
	return epoch, nil
}

// CurrentEpoch returns the visible epoch of eventID, 0 if never computed.
func (r *MatchRepository) CurrentEpoch(ctx context.Context, eventID uint64) (uint64, error) {
	var pointer db.MatchEpoch
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Limit(1).Find(&pointer).Error
	return pointer.Epoch, err
}

// ListForUser returns userID's visible matches ordered by score.
//
// Behavior:
//   - Only rows of each event's current epoch are returned.
//   - eventID 0 lists across all events.
//   - limit <= 0 returns everything and no token.
//   - Otherwise fetches limit+1 rows to know whether a next page exists.
func (r *MatchRepository) ListForUser(ctx context.Context, userID, eventID uint64, token string, limit int) ([]db.Match, *string, error) {
	cursor, err := pagination.Decode(token)
	if err != nil {
		return nil, nil, err
	}

	q := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Select("matches.*").
		Joins("JOIN match_epochs ON match_epochs.event_id = matches.event_id AND match_epochs.epoch = matches.epoch").
		Where("matches.user_id = ?", userID)

	if eventID != 0 {
		q = q.Where("matches.event_id = ?", eventID)
	}
	if cursor != nil {
		q = q.Where(
			"(matches.score < ? OR (matches.score = ? AND (matches.event_id > ? OR (matches.event_id = ? AND matches.matched_user_id > ?))))",
			cursor.Score, cursor.Score, cursor.EventID, cursor.EventID, cursor.MatchedUserID,
		)
	}
	q = q.Order("matches.score DESC").Order("matches.event_id ASC").Order("matches.matched_user_id ASC")
	if limit > 0 {
		q = q.Limit(limit + 1)
	}

	var rows []db.Match
	if err := q.Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if limit <= 0 || len(rows) <= limit {
		return rows, nil, nil
	}

	rows = rows[:limit]
	last := rows[len(rows)-1]
	next, err := pagination.Encode(pagination.Cursor{
		Score:         last.Score,
		EventID:       last.EventID,
		MatchedUserID: last.MatchedUserID,
	})
	if err != nil {
		return nil, nil, err
	}
	return rows, &next, nil
}
