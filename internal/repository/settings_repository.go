package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"barakah-tasks/internal/model"
)

// Well-known setting keys.
const (
	KeyOnboardingDone = "onboarding_completed"
	KeyDismissedTips  = "dismissed_tips"
	KeyQuranProgress  = "quran_progress"
	KeyCalDAVPassword = "caldav_password"
)

// SettingsRepository is the per-user key-value store, plus a short-lived
// credential store and CalDAV connection metadata.
type SettingsRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db, now: time.Now}
}

// Get returns the stored value and whether it exists.
func (r *SettingsRepository) Get(ctx context.Context, userID, key string) (string, bool, error) {
	var s model.Setting
	err := r.db.WithContext(ctx).Where("user_id = ? AND name = ?", userID, key).First(&s).Error
	switch {
	case err == nil:
		return s.Value, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
}

func (r *SettingsRepository) Set(ctx context.Context, userID, key, value string) error {
	s := model.Setting{UserID: userID, Name: key, Value: value, UpdatedAt: r.now()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (r *SettingsRepository) Delete(ctx context.Context, userID, key string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND name = ?", userID, key).Delete(&model.Setting{}).Error; err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}

// PutSecret stores a secret that expires after ttl.
func (r *SettingsRepository) PutSecret(ctx context.Context, userID, key, secret string, ttl time.Duration) error {
	c := model.Credential{UserID: userID, Name: key, Secret: secret, ExpiresAt: r.now().Add(ttl)}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"secret", "expires_at"}),
	}).Create(&c).Error
	if err != nil {
		return fmt.Errorf("put secret %s: %w", key, err)
	}
	return nil
}

// Secret returns a live secret. Expired secrets are deleted and reported missing.
func (r *SettingsRepository) Secret(ctx context.Context, userID, key string) (string, bool, error) {
	var c model.Credential
	db := r.db.WithContext(ctx)
	err := db.Where("user_id = ? AND name = ?", userID, key).First(&c).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("get secret %s: %w", key, err)
	}
	if !r.now().Before(c.ExpiresAt) {
		if err := db.Where("user_id = ? AND name = ?", userID, key).Delete(&model.Credential{}).Error; err != nil {
			return "", false, fmt.Errorf("expire secret %s: %w", key, err)
		}
		return "", false, nil
	}
	return c.Secret, true, nil
}

// PurgeExpiredSecrets deletes every expired credential.
func (r *SettingsRepository) PurgeExpiredSecrets(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", r.now()).Delete(&model.Credential{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge secrets: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CalDAVConnection returns the user's connection or nil.
func (r *SettingsRepository) CalDAVConnection(ctx context.Context, userID string) (*model.CalDAVConnection, error) {
	var conn model.CalDAVConnection
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&conn).Error
	switch {
	case err == nil:
		return &conn, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("get caldav connection: %w", err)
	}
}

func (r *SettingsRepository) SaveCalDAVConnection(ctx context.Context, conn *model.CalDAVConnection) error {
	if err := r.db.WithContext(ctx).Save(conn).Error; err != nil {
		return fmt.Errorf("save caldav connection: %w", err)
	}
	return nil
}

func (r *SettingsRepository) DeleteCalDAVConnection(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&model.CalDAVConnection{}).Error; err != nil {
			return fmt.Errorf("delete caldav connection: %w", err)
		}
		if err := tx.Where("user_id = ? AND name = ?", userID, KeyCalDAVPassword).Delete(&model.Credential{}).Error; err != nil {
			return fmt.Errorf("delete caldav password: %w", err)
		}
		return nil
	})
}

// ListCalDAVConnections returns every connected account.
func (r *SettingsRepository) ListCalDAVConnections(ctx context.Context) ([]model.CalDAVConnection, error) {
	var conns []model.CalDAVConnection
	if err := r.db.WithContext(ctx).Where("connected = ?", true).Find(&conns).Error; err != nil {
		return nil, fmt.Errorf("list caldav connections: %w", err)
	}
	return conns, nil
}
