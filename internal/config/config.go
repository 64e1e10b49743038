package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"barakah-tasks/internal/prayertimes"
	"barakah-tasks/internal/quran"
)

// Config keeps runtime settings for the bot and its background jobs.
type Config struct {
	TelegramToken    string
	DatabaseURL      string
	TasksDatabaseURL string
	ReportInterval   time.Duration

	PrayerAPIURL       string
	QuranAPIURL        string
	PrayerMethod       int
	PrayerRefreshTime  string
	CalDAVSyncInterval time.Duration
	CredentialTTL      time.Duration
	ReminderLead       time.Duration
	Location           *time.Location
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		TelegramToken:      env("TELEGRAM_TOKEN"),
		DatabaseURL:        env("DATABASE_URL"),
		TasksDatabaseURL:   env("TASKS_DATABASE_URL"),
		ReportInterval:     parseHours(env("REPORT_INTERVAL_HOURS")),
		PrayerAPIURL:       env("PRAYER_API_URL"),
		QuranAPIURL:        env("QURAN_API_URL"),
		PrayerRefreshTime:  env("PRAYER_REFRESH_TIME"),
		CalDAVSyncInterval: parseHours(env("CALDAV_SYNC_INTERVAL_HOURS")),
		CredentialTTL:      parseHours(env("CREDENTIAL_TTL_HOURS")),
		Location:           time.Local,
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "barakah.db"
	}
	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}
	if cfg.PrayerAPIURL == "" {
		cfg.PrayerAPIURL = prayertimes.DefaultBaseURL
	}
	if cfg.QuranAPIURL == "" {
		cfg.QuranAPIURL = quran.DefaultBaseURL
	}
	if cfg.PrayerRefreshTime == "" {
		cfg.PrayerRefreshTime = "00:05"
	}
	if cfg.CalDAVSyncInterval == 0 {
		cfg.CalDAVSyncInterval = 6 * time.Hour
	}
	if cfg.CredentialTTL == 0 {
		cfg.CredentialTTL = 24 * time.Hour
	}

	cfg.PrayerMethod = prayertimes.DefaultMethod
	if raw := env("PRAYER_METHOD"); raw != "" {
		method, err := strconv.Atoi(raw)
		if err != nil || method < 0 {
			return cfg, fmt.Errorf("PRAYER_METHOD must be a non-negative integer, got %q", raw)
		}
		cfg.PrayerMethod = method
	}

	cfg.ReminderLead = 15 * time.Minute
	if raw := env("REMINDER_LEAD_MINUTES"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes < 0 {
			return cfg, fmt.Errorf("REMINDER_LEAD_MINUTES must be a non-negative integer, got %q", raw)
		}
		cfg.ReminderLead = time.Duration(minutes) * time.Minute
	}

	if tz := env("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return cfg, fmt.Errorf("TIMEZONE: %w", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

// RequireToken reports a missing bot token.
func (c Config) RequireToken() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func parseHours(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
