package model

// Template is a catalog entry used to prefill a new task.
type Template struct {
	ID                string  `gorm:"primaryKey" yaml:"id"`
	Name              string  `gorm:"uniqueIndex" yaml:"name"`
	Description       string  `yaml:"description"`
	Category          string  `yaml:"category"`
	Priority          string  `yaml:"priority"`
	RecurrencePattern *string `yaml:"recurrence"`
}
