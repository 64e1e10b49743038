package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"barakah-tasks/internal/config"
	"barakah-tasks/internal/repository"
)

func templatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the Islamic task template catalog",
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

			templates, err := repository.NewTemplateRepository(db).List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tREPEATS")
			for _, tpl := range templates {
				repeats := "-"
				if tpl.RecurrencePattern != nil {
					repeats = *tpl.RecurrencePattern
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", tpl.ID, tpl.Name, tpl.Category, repeats)
			}
			return w.Flush()
		},
	}
}
