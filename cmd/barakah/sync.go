package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"barakah-tasks/internal/caldav"
	"barakah-tasks/internal/config"
	"barakah-tasks/internal/prayertimes"
	"barakah-tasks/internal/realtime"
	"barakah-tasks/internal/repository"
	"barakah-tasks/internal/service"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push prayers and dated tasks to every connected CalDAV calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			db, err := repository.NewDB(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("db: %w", err)
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()

			bus := realtime.NewBus(16)
			store, closeStore, err := openTaskStore(ctx, cfg, db, bus)
			if err != nil {
				return err
			}
			defer closeStore()

			settings := repository.NewSettingsRepository(db)
			categories := service.NewCategoryService(repository.NewCategoryRepository(db))
			sessions := service.NewSessions(store, nil, categories, nil)
			defer sessions.Close()
			prayers := service.NewPrayerService(prayertimes.NewClient(cfg.PrayerAPIURL), repository.NewPrayerRepository(db), cfg.PrayerMethod)
			calendars := service.NewCalDAVService(settings, repository.NewUserRepository(db), caldav.NewHTTPProxy(30*time.Second), prayers, sessions, cfg.CredentialTTL)

			if err := calendars.SyncAll(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sync finished")
			return nil
		},
	}
}
