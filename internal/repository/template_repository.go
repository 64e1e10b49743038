package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"barakah-tasks/internal/model"
)

//go:embed templates.yaml
var templateCatalog []byte

// ParseTemplates decodes a YAML template catalog.
func ParseTemplates(data []byte) ([]model.Template, error) {
	var templates []model.Template
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	for i, tpl := range templates {
		if tpl.ID == "" || tpl.Name == "" {
			return nil, fmt.Errorf("parse templates: entry %d needs id and name", i)
		}
		if tpl.Priority == "" {
			templates[i].Priority = model.PriorityMedium
		}
	}
	return templates, nil
}

// TemplateRepository reads the task template catalog.
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Seed loads the embedded catalog, leaving existing entries untouched.
func (r *TemplateRepository) Seed(ctx context.Context) error {
	templates, err := ParseTemplates(templateCatalog)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&templates).Error; err != nil {
		return fmt.Errorf("seed templates: %w", err)
	}
	return nil
}

func (r *TemplateRepository) List(ctx context.Context) ([]model.Template, error) {
	var templates []model.Template
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

// Get finds a template by id or, failing that, by name.
func (r *TemplateRepository) Get(ctx context.Context, key string) (*model.Template, error) {
	var tpl model.Template
	err := r.db.WithContext(ctx).Where("id = ? OR name = ?", key, key).First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("template %q: %w", key, err)
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}
