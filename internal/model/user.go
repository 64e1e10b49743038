package model

import "time"

// User stores Telegram user metadata and prayer-time preferences.
// CreatedAt doubles as the registration date for fair tracking.
type User struct {
	ID                string `gorm:"primaryKey"`
	TelegramID        int64  `gorm:"uniqueIndex"`
	FirstName         string
	LastName          string
	Username          string
	Latitude          *float64
	Longitude         *float64
	CalculationMethod int
	Timezone          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Location returns the user's time zone, falling back to time.Local.
func (u User) Location() *time.Location {
	if u.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
