package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/event-network/internal/db"
)

type FriendshipRepository struct {
	db *gorm.DB
}

func NewFriendshipRepository(db *gorm.DB) *FriendshipRepository {
	return &FriendshipRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *FriendshipRepository) WithTx(tx *gorm.DB) *FriendshipRepository {
	return &FriendshipRepository{db: tx}
}

// FindBetween returns the row linking a and b in either orientation, or nil.
func (r *FriendshipRepository) FindBetween(ctx context.Context, a, b uint64) (*db.Friendship, error) {
	low, high := db.CanonicalPair(a, b)

	var rows []db.Friendship
	err := r.db.WithContext(ctx).
		Where("pair_low = ? AND pair_high = ?", low, high).
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// Create inserts f as a new row. It reports false, without error, when a
// row for the same unordered pair already exists.
func (r *FriendshipRepository) Create(ctx context.Context, f *db.Friendship) (bool, error) {
	f.PairLow, f.PairHigh = db.CanonicalPair(f.RequesterID, f.AddresseeID)

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pair_low"}, {Name: "pair_high"}},
			DoNothing: true,
		}).
		Create(f)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetByID returns the row or gorm.ErrRecordNotFound.
func (r *FriendshipRepository) GetByID(ctx context.Context, id uint64) (db.Friendship, error) {
	var f db.Friendship
	err := r.db.WithContext(ctx).First(&f, "id = ?", id).Error
	return f, err
}

// Transition moves row id from status `from` to `to`.
// It reports false when the row is missing or not in `from`; the
// conditional update makes concurrent transitions race-free.
func (r *FriendshipRepository) Transition(ctx context.Context, id uint64, from, to db.FriendshipStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Friendship{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to})
	return res.RowsAffected == 1, res.Error
}

// Reopen resets a rejected row to pending with a new orientation.
func (r *FriendshipRepository) Reopen(ctx context.Context, id, requesterID, addresseeID uint64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Friendship{}).
		Where("id = ? AND status = ?", id, db.FriendshipRejected).
		Updates(map[string]any{
			"status":       db.FriendshipPending,
			"requester_id": requesterID,
			"addressee_id": addresseeID,
		})
	return res.RowsAffected == 1, res.Error
}

// Delete removes row id. It reports false when nothing was deleted.
func (r *FriendshipRepository) Delete(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&db.Friendship{})
	return res.RowsAffected == 1, res.Error
}

// ListForUser returns every row touching userID, newest first.
func (r *FriendshipRepository) ListForUser(ctx context.Context, userID uint64) ([]db.Friendship, error) {
	var rows []db.Friendship
	err := r.db.WithContext(ctx).
		Where("requester_id = ? OR addressee_id = ?", userID, userID).
		Order("updated_at DESC").
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}
