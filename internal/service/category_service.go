package service

import (
	"context"

	"barakah-tasks/internal/model"
	"barakah-tasks/internal/repository"
)

// CategoryService provides helpers around categories.
type CategoryService struct {
	repo *repository.CategoryRepository
}

func NewCategoryService(repo *repository.CategoryRepository) *CategoryService {
	return &CategoryService{repo: repo}
}

func (s *CategoryService) List(ctx context.Context, userID string) ([]model.Category, error) {
	return s.repo.ListByUser(ctx, userID)
}

// EnsureDefaults seeds the default categories for a user.
func (s *CategoryService) EnsureDefaults(ctx context.Context, userID string) error {
	return s.repo.SeedDefaults(ctx, userID)
}

func (s *CategoryService) GetOrCreate(ctx context.Context, userID, name string) (*model.Category, error) {
	return s.repo.GetOrCreate(ctx, userID, name)
}
