package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"barakah-tasks/internal/bot"
	"barakah-tasks/internal/caldav"
	"barakah-tasks/internal/config"
	"barakah-tasks/internal/prayertimes"
	"barakah-tasks/internal/quran"
	"barakah-tasks/internal/realtime"
	"barakah-tasks/internal/repository"
	"barakah-tasks/internal/service"
	"barakah-tasks/internal/tasks"
)

const jobTimeout = 2 * time.Minute

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and its scheduled jobs",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.RequireToken(); err != nil {
		return err
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	bus := realtime.NewBus(64)
	store, closeStore, err := openTaskStore(ctx, cfg, db, bus)
	if err != nil {
		return err
	}
	defer closeStore()

	userRepo := repository.NewUserRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	prayerRepo := repository.NewPrayerRepository(db)

	categorySvc := service.NewCategoryService(repository.NewCategoryRepository(db))
	reminderSvc := service.NewReminderService(nil, cfg.ReminderLead, cfg.Location)
	defer reminderSvc.Stop()
	sessions := service.NewSessions(store, bus, categorySvc, reminderSvc)
	defer sessions.Close()

	prayerSvc := service.NewPrayerService(prayertimes.NewClient(cfg.PrayerAPIURL), prayerRepo, cfg.PrayerMethod)
	caldavSvc := service.NewCalDAVService(settingsRepo, userRepo, caldav.NewHTTPProxy(30*time.Second), prayerSvc, sessions, cfg.CredentialTTL)

	telegramBot, err := bot.New(cfg.TelegramToken, bot.Services{
		Users:      userRepo,
		Templates:  repository.NewTemplateRepository(db),
		Settings:   settingsRepo,
		Categories: categorySvc,
		Sessions:   sessions,
		Reminders:  reminderSvc,
		Prayers:    prayerSvc,
		Quran:      service.NewQuranService(quran.NewClient(cfg.QuranAPIURL), settingsRepo),
		CalDAV:     caldavSvc,
		Analytics:  service.NewAnalyticsService(prayerRepo),
	}, &cfg)
	if err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	reminderSvc.SetNotifier(telegramBot)

	scheduler := service.NewSchedulerService(cfg.Location)
	if err := scheduleJobs(scheduler, cfg, userRepo, settingsRepo, sessions, prayerSvc, caldavSvc, telegramBot); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Println("[info] barakah tasks bot started")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("bot stopped with error: %w", err)
	}
	log.Println("[info] shutdown complete")
	return nil
}

// openTaskStore returns the PostgreSQL store when TASKS_DATABASE_URL is set,
// with NOTIFY payloads relayed into bus, and the SQLite repository otherwise.
func openTaskStore(ctx context.Context, cfg config.Config, db *gorm.DB, bus *realtime.Bus) (tasks.Store, func(), error) {
	if cfg.TasksDatabaseURL == "" {
		return repository.NewTaskRepository(db, bus), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.TasksDatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("tasks db: %w", err)
	}
	store := repository.NewPgTaskStore(pool)
	if err := store.EnsureTable(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	listener := realtime.NewPgListener(pool, repository.TaskChangesChannel, bus)
	go func() {
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[warn] realtime listener: %v", err)
		}
	}()
	log.Println("[info] tasks stored in postgres")
	return store, pool.Close, nil
}

func scheduleJobs(
	scheduler *service.SchedulerService,
	cfg config.Config,
	users *repository.UserRepository,
	settings *repository.SettingsRepository,
	sessions *service.Sessions,
	prayers *service.PrayerService,
	calendars *service.CalDAVService,
	telegramBot *bot.Bot,
) error {
	if cfg.ReportInterval > 0 {
		if _, err := scheduler.ScheduleInterval("reports", cfg.ReportInterval, withTimeout(telegramBot.SendDailyReports)); err != nil {
			return fmt.Errorf("schedule reports: %w", err)
		}
	}

	daily := func(ctx context.Context) error {
		all, err := users.ListAll(ctx)
		if err != nil {
			return err
		}
		if _, err := sessions.GenerateRecurring(ctx, all); err != nil {
			return err
		}
		_, err = prayers.Refresh(ctx, all)
		return err
	}
	if _, err := scheduler.ScheduleDaily("daily-refresh", cfg.PrayerRefreshTime, withTimeout(daily)); err != nil {
		return fmt.Errorf("schedule daily refresh: %w", err)
	}

	if cfg.CalDAVSyncInterval > 0 {
		if _, err := scheduler.ScheduleInterval("caldav-sync", cfg.CalDAVSyncInterval, withTimeout(calendars.SyncAll)); err != nil {
			return fmt.Errorf("schedule caldav sync: %w", err)
		}
	}

	purge := func(ctx context.Context) error {
		n, err := settings.PurgeExpiredSecrets(ctx)
		if n > 0 {
			log.Printf("[info] purged %d expired credential(s)", n)
		}
		return err
	}
	if _, err := scheduler.ScheduleInterval("purge-credentials", time.Hour, withTimeout(purge)); err != nil {
		return fmt.Errorf("schedule credential purge: %w", err)
	}
	return nil
}

func withTimeout(job service.Job) service.Job {
	return func(ctx context.Context) error {
		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		return job(jobCtx)
	}
}
