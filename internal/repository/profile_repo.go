package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/event-network/internal/db"
)

// ProfileRepository is the store-backed profile directory.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetProfile returns one profile or gorm.ErrRecordNotFound.
func (r *ProfileRepository) GetProfile(ctx context.Context, id uint64) (db.Profile, error) {
	var p db.Profile
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	return p, err
}

// GetProfiles loads several profiles keyed by id. Missing ids are absent from the map.
func (r *ProfileRepository) GetProfiles(ctx context.Context, ids []uint64) (map[uint64]db.Profile, error) {
	out := make(map[uint64]db.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var profiles []db.Profile
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, err
	}
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out, nil
}

// ListRegistrants returns the profiles registered to eventID ordered by id.
func (r *ProfileRepository) ListRegistrants(ctx context.Context, eventID uint64) ([]db.Profile, error) {
	var profiles []db.Profile
	err := r.db.WithContext(ctx).
		Joins("JOIN registrations ON registrations.user_id = profiles.id").
		Where("registrations.event_id = ?", eventID).
		Order("profiles.id ASC").
		Find(&profiles).Error
	return profiles, err
}

// ListEventIDs returns every event with at least one registration.
func (r *ProfileRepository) ListEventIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.Registration{}).
		Distinct().
		Order("event_id ASC").
		Pluck("event_id", &ids).Error
	return ids, err
}
