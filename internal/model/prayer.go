package model

import "time"

// Prayer names in daily order.
const (
	Fajr    = "fajr"
	Dhuhr   = "dhuhr"
	Asr     = "asr"
	Maghrib = "maghrib"
	Isha    = "isha"
)

// Prayers lists the five daily prayers in order.
var Prayers = []string{Fajr, Dhuhr, Asr, Maghrib, Isha}

// IsPrayer reports whether name is one of the five daily prayers.
func IsPrayer(name string) bool {
	for _, p := range Prayers {
		if p == name {
			return true
		}
	}
	return false
}

// PrayerCompletion marks a prayer as performed on a date. Deleting the row
// unmarks it.
type PrayerCompletion struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"uniqueIndex:idx_prayer_day"`
	PrayerName  string `gorm:"uniqueIndex:idx_prayer_day"`
	Date        string `gorm:"uniqueIndex:idx_prayer_day;index"` // YYYY-MM-DD
	CompletedAt time.Time
}
