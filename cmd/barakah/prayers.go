package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"barakah-tasks/internal/config"
	"barakah-tasks/internal/model"
	"barakah-tasks/internal/prayertimes"
)

func prayersCmd() *cobra.Command {
	var (
		lat, lon float64
		method   int
		date     string
	)
	cmd := &cobra.Command{
		Use:   "prayers",
		Short: "Print prayer times for a location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			day := time.Now().In(cfg.Location)
			if date != "" {
				day, err = time.ParseInLocation("2006-01-02", date, cfg.Location)
				if err != nil {
					return fmt.Errorf("date: %w", err)
				}
			}
			if !cmd.Flags().Changed("method") {
				method = cfg.PrayerMethod
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			timings, err := prayertimes.NewClient(cfg.PrayerAPIURL).Timings(ctx, lat, lon, method, day)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Prayer times for %s (%.4f, %.4f, method %d)\n", timings.Date, lat, lon, method)
			for _, prayer := range model.Prayers {
				at, _ := timings.Get(prayer)
				fmt.Fprintf(out, "  %-8s %s\n", prayer, at)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", prayertimes.DefaultLatitude, "Latitude")
	cmd.Flags().Float64Var(&lon, "lon", prayertimes.DefaultLongitude, "Longitude")
	cmd.Flags().IntVarP(&method, "method", "m", prayertimes.DefaultMethod, "Calculation method")
	cmd.Flags().StringVarP(&date, "date", "d", "", "Date as YYYY-MM-DD (default today)")
	return cmd
}
