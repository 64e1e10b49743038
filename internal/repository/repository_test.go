package repository

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"barakah-tasks/internal/model"
	"barakah-tasks/internal/realtime"
	"barakah-tasks/internal/tasks"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := NewDB("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(e realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestTaskRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	repo := NewTaskRepository(newTestDB(t), rec)

	parent, err := repo.Insert(ctx, &model.Task{UserID: "u1", Title: "Prepare for Jumuah"})
	require.NoError(t, err)
	assert.NotEmpty(t, parent.ID)
	assert.Equal(t, model.StatusPending, parent.Status)
	require.NotNil(t, parent.UpdatedAt)

	child, err := repo.Insert(ctx, &model.Task{UserID: "u1", Title: "Ghusl", ParentTaskID: &parent.ID})
	require.NoError(t, err)

	updated, err := repo.Update(ctx, "u1", child.ID, map[string]any{"status": model.StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, updated.Status)
	assert.False(t, updated.UpdatedAt.Before(*child.UpdatedAt))

	rows, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	require.NoError(t, repo.Delete(ctx, "u1", parent.ID))
	rows, err = repo.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.Len(t, rec.events, 5)
	assert.Equal(t, realtime.Insert, rec.events[0].Type)
	assert.Equal(t, tasks.Table, rec.events[0].Table)
	assert.Equal(t, "u1", rec.events[0].UserID)
	assert.Equal(t, parent.ID, rec.events[0].New["id"])
	assert.Equal(t, realtime.Update, rec.events[2].Type)
	assert.Equal(t, realtime.Delete, rec.events[3].Type)
	assert.Equal(t, realtime.Delete, rec.events[4].Type)
}

func TestTaskRepositoryScopesByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t), nil)

	task, err := repo.Insert(ctx, &model.Task{UserID: "u1", Title: "Mine"})
	require.NoError(t, err)

	_, err = repo.Update(ctx, "u2", task.ID, map[string]any{"title": "Theirs"})
	assert.ErrorIs(t, err, tasks.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "u2", task.ID), tasks.ErrNotFound)

	_, err = repo.FindByID(ctx, "u2", task.ID)
	assert.ErrorIs(t, err, tasks.ErrNotFound)

	_, err = repo.Update(ctx, "u1", task.ID, map[string]any{"user_id": "u2"})
	assert.Error(t, err)
}

func TestTaskRepositoryDuplicateRecurrence(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t), nil)

	key := "tpl:2024-01-01"
	_, err := repo.Insert(ctx, &model.Task{UserID: "u1", Title: "Adhkar", RecurrenceKey: &key})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, &model.Task{UserID: "u1", Title: "Adhkar", RecurrenceKey: &key})
	assert.ErrorIs(t, err, tasks.ErrDuplicate)
}

func TestSettingsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository(newTestDB(t))

	_, ok, err := repo.Get(ctx, "u1", KeyOnboardingDone)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, "u1", KeyOnboardingDone, "false"))
	require.NoError(t, repo.Set(ctx, "u1", KeyOnboardingDone, "true"))
	v, ok, err := repo.Get(ctx, "u1", KeyOnboardingDone)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	_, ok, err = repo.Get(ctx, "u2", KeyOnboardingDone)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Delete(ctx, "u1", KeyOnboardingDone))
	_, ok, _ = repo.Get(ctx, "u1", KeyOnboardingDone)
	assert.False(t, ok)
}

func TestSettingsRepositorySecretsExpire(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository(newTestDB(t))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	require.NoError(t, repo.PutSecret(ctx, "u1", KeyCalDAVPassword, "s3cret", time.Hour))
	secret, ok, err := repo.Secret(ctx, "u1", KeyCalDAVPassword)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "s3cret", secret)

	now = now.Add(2 * time.Hour)
	_, ok, err = repo.Secret(ctx, "u1", KeyCalDAVPassword)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.PutSecret(ctx, "u2", KeyCalDAVPassword, "x", time.Minute))
	now = now.Add(time.Hour)
	n, err := repo.PurgeExpiredSecrets(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSettingsRepositoryCalDAVConnection(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository(newTestDB(t))

	conn, err := repo.CalDAVConnection(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, conn)

	require.NoError(t, repo.SaveCalDAVConnection(ctx, &model.CalDAVConnection{UserID: "u1", Username: "amina", Connected: true}))
	require.NoError(t, repo.PutSecret(ctx, "u1", KeyCalDAVPassword, "pw", time.Hour))

	conns, err := repo.ListCalDAVConnections(ctx)
	require.NoError(t, err)
	assert.Len(t, conns, 1)

	require.NoError(t, repo.DeleteCalDAVConnection(ctx, "u1"))
	conn, err = repo.CalDAVConnection(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, conn)
	_, ok, err := repo.Secret(ctx, "u1", KeyCalDAVPassword)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPrayerRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPrayerRepository(newTestDB(t))
	at := time.Date(2024, 1, 1, 5, 30, 0, 0, time.UTC)

	require.NoError(t, repo.Mark(ctx, "u1", model.Fajr, "2024-01-01", at))
	require.NoError(t, repo.Mark(ctx, "u1", model.Fajr, "2024-01-01", at))
	require.NoError(t, repo.Mark(ctx, "u1", model.Dhuhr, "2024-01-02", at))

	rows, err := repo.ListRange(ctx, "u1", "2024-01-01", "2024-01-01")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.NoError(t, repo.Unmark(ctx, "u1", model.Fajr, "2024-01-01"))
	rows, err = repo.ListRange(ctx, "u1", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.Dhuhr, rows[0].PrayerName)
}

func TestTemplateCatalog(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewTemplateRepository(db)

	require.NoError(t, repo.Seed(ctx))
	templates, err := repo.List(ctx)
	require.NoError(t, err)

	parsed, err := ParseTemplates(templateCatalog)
	require.NoError(t, err)
	assert.Len(t, templates, len(parsed))

	tpl, err := repo.Get(ctx, "Morning adhkar")
	require.NoError(t, err)
	require.NotNil(t, tpl.RecurrencePattern)
	assert.Equal(t, model.RecurDaily, *tpl.RecurrencePattern)

	_, err = repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = ParseTemplates([]byte("- name: missing id"))
	assert.Error(t, err)
}

func TestUserAndCategoryRepositories(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	categories := NewCategoryRepository(db)

	user, created, err := users.UpsertFromTelegram(ctx, 42, "Yusuf", "", "yusuf")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := users.UpsertFromTelegram(ctx, 42, "Yusuf", "A", "yusuf")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)

	require.NoError(t, users.UpdateLocation(ctx, user.ID, 51.5, -0.12, 2))
	found, err := users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, found.Latitude)
	assert.InDelta(t, 51.5, *found.Latitude, 0.0001)

	require.NoError(t, categories.SeedDefaults(ctx, user.ID))
	require.NoError(t, categories.SeedDefaults(ctx, user.ID))
	list, err := categories.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, list, len(DefaultCategories))

	custom, err := categories.GetOrCreate(ctx, user.ID, "Study")
	require.NoError(t, err)
	same, err := categories.GetOrCreate(ctx, user.ID, "Study")
	require.NoError(t, err)
	assert.Equal(t, custom.ID, same.ID)
}
