package model

import "time"

// Category groups tasks visually (worship, work, family, etc.).
type Category struct {
	ID        string `gorm:"primaryKey" json:"id"`
	UserID    string `gorm:"index;index:idx_user_category_name,unique" json:"user_id"`
	Name      string `gorm:"index:idx_user_category_name,unique" json:"name"`
	Color     string `json:"color"`
	Icon      string `json:"icon"`
	IsDefault bool   `gorm:"default:false" json:"is_default"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
