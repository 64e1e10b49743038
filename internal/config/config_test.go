package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"TELEGRAM_TOKEN", "DATABASE_URL", "TASKS_DATABASE_URL", "REPORT_INTERVAL_HOURS",
		"PRAYER_API_URL", "QURAN_API_URL", "PRAYER_METHOD", "PRAYER_REFRESH_TIME",
		"CALDAV_SYNC_INTERVAL_HOURS", "CREDENTIAL_TTL_HOURS", "REMINDER_LEAD_MINUTES", "TIMEZONE"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "barakah.db", cfg.DatabaseURL)
	assert.Empty(t, cfg.TasksDatabaseURL)
	assert.Equal(t, 5*time.Hour, cfg.ReportInterval)
	assert.Equal(t, "https://api.aladhan.com", cfg.PrayerAPIURL)
	assert.Equal(t, "https://api.alquran.cloud", cfg.QuranAPIURL)
	assert.Equal(t, 4, cfg.PrayerMethod)
	assert.Equal(t, "00:05", cfg.PrayerRefreshTime)
	assert.Equal(t, 6*time.Hour, cfg.CalDAVSyncInterval)
	assert.Equal(t, 24*time.Hour, cfg.CredentialTTL)
	assert.Equal(t, 15*time.Minute, cfg.ReminderLead)
	assert.Error(t, cfg.RequireToken())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", " 123:abc ")
	t.Setenv("TASKS_DATABASE_URL", "postgres://localhost/barakah")
	t.Setenv("REPORT_INTERVAL_HOURS", "1.5")
	t.Setenv("PRAYER_METHOD", "2")
	t.Setenv("CREDENTIAL_TTL_HOURS", "-3")
	t.Setenv("REMINDER_LEAD_MINUTES", "0")
	t.Setenv("TIMEZONE", "Asia/Riyadh")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.TelegramToken)
	assert.NoError(t, cfg.RequireToken())
	assert.Equal(t, "postgres://localhost/barakah", cfg.TasksDatabaseURL)
	assert.Equal(t, 90*time.Minute, cfg.ReportInterval)
	assert.Equal(t, 2, cfg.PrayerMethod)
	assert.Equal(t, 24*time.Hour, cfg.CredentialTTL, "invalid values fall back")
	assert.Equal(t, time.Duration(0), cfg.ReminderLead)
	assert.Equal(t, "Asia/Riyadh", cfg.Location.String())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("PRAYER_METHOD", "umm-al-qura")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("PRAYER_METHOD", "")
	t.Setenv("TIMEZONE", "Mars/Olympus")
	_, err = Load()
	assert.Error(t, err)
}
