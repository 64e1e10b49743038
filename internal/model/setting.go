package model

import "time"

// Setting is a per-user key-value flag (onboarding, dismissed tips, reading progress).
type Setting struct {
	UserID    string `gorm:"primaryKey"`
	Name      string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

// Credential keeps a secret apart from the records that reference it and
// expires after a TTL.
type Credential struct {
	UserID    string `gorm:"primaryKey"`
	Name      string `gorm:"primaryKey"`
	Secret    string
	ExpiresAt time.Time
}

// CalDAVConnection holds connection metadata. The password is stored as a
// Credential, never here.
type CalDAVConnection struct {
	UserID          string `gorm:"primaryKey"`
	Provider        string
	Username        string
	ServerURL       string
	PrincipalURL    string
	CalendarHomeURL string
	CalendarURL     string
	Connected       bool
	LastSyncAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
