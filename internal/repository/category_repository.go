package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"barakah-tasks/internal/model"
)

// DefaultCategories are created for every new user.
var DefaultCategories = []model.Category{
	{Name: "Worship", Color: "#10b981", Icon: "🕌"},
	{Name: "Quran", Color: "#0ea5e9", Icon: "📖"},
	{Name: "Work", Color: "#6366f1", Icon: "💼"},
	{Name: "Family", Color: "#f59e0b", Icon: "👨‍👩‍👧"},
	{Name: "Health", Color: "#ef4444", Icon: "🩺"},
	{Name: "Charity", Color: "#8b5cf6", Icon: "🤲"},
}

// CategoryRepository manages task categories.
type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// SeedDefaults creates the default categories a user does not have yet.
func (r *CategoryRepository) SeedDefaults(ctx context.Context, userID string) error {
	for _, def := range DefaultCategories {
		def.UserID = userID
		def.IsDefault = true
		if _, err := r.getOrCreate(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

func (r *CategoryRepository) GetOrCreate(ctx context.Context, userID string, name string) (*model.Category, error) {
	if name == "" {
		return nil, nil
	}
	return r.getOrCreate(ctx, model.Category{UserID: userID, Name: name, Icon: "🏷️"})
}

func (r *CategoryRepository) getOrCreate(ctx context.Context, want model.Category) (*model.Category, error) {
	var category model.Category
	db := r.db.WithContext(ctx)
	err := db.Where("user_id = ? AND name = ?", want.UserID, want.Name).First(&category).Error
	switch {
	case err == nil:
		return &category, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		category = want
		category.ID = uuid.Must(uuid.NewV7()).String()
		if err := db.Create(&category).Error; err != nil {
			return nil, fmt.Errorf("create category: %w", err)
		}
		return &category, nil
	default:
		return nil, fmt.Errorf("find category: %w", err)
	}
}

func (r *CategoryRepository) ListByUser(ctx context.Context, userID string) ([]model.Category, error) {
	var categories []model.Category
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("is_default DESC, name ASC").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*model.Category, error) {
	var category model.Category
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}
