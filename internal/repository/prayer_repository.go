package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"barakah-tasks/internal/model"
)

// PrayerRepository stores prayer completions.
type PrayerRepository struct {
	db *gorm.DB
}

func NewPrayerRepository(db *gorm.DB) *PrayerRepository {
	return &PrayerRepository{db: db}
}

// Mark records a prayer as completed. Marking twice is a no-op.
func (r *PrayerRepository) Mark(ctx context.Context, userID, prayer, date string, at time.Time) error {
	row := model.PrayerCompletion{
		ID:          uuid.Must(uuid.NewV7()).String(),
		UserID:      userID,
		PrayerName:  prayer,
		Date:        date,
		CompletedAt: at,
	}
	err := r.db.WithContext(ctx).Create(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("mark prayer: %w", err)
	}
	return nil
}

// Unmark removes the completion record.
func (r *PrayerRepository) Unmark(ctx context.Context, userID, prayer, date string) error {
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND prayer_name = ? AND date = ?", userID, prayer, date).
		Delete(&model.PrayerCompletion{}).Error; err != nil {
		return fmt.Errorf("unmark prayer: %w", err)
	}
	return nil
}

// ListRange returns completions with from <= date <= to (YYYY-MM-DD).
func (r *PrayerRepository) ListRange(ctx context.Context, userID, from, to string) ([]model.PrayerCompletion, error) {
	var rows []model.PrayerCompletion
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND date >= ? AND date <= ?", userID, from, to).
		Order("date ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list prayers: %w", err)
	}
	return rows, nil
}
