package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	service "github.com/agiraud1/radar-fr/internal/app"
	"github.com/agiraud1/radar-fr/internal/config"
	"github.com/agiraud1/radar-fr/internal/domain/linkcheck"
	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/pkg/logger"
)

// withService starts a service without the scheduler, runs fn and stops it.
func withService(ctx context.Context, g *globalFlags, fn func(*service.Service) error) error {
	cfg, log, err := setup(ctx, g)
	if err != nil {
		return err
	}
	cfg.Scheduler.Enabled = false

	svc := service.New(cfg, service.WithLogger(log))
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop(context.Background())
	return fn(svc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRecomputeCmd(g *globalFlags) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild the daily scores of one day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := parseDateFlag(date)
			if err != nil {
				return err
			}
			return withService(cmd.Context(), g, func(svc *service.Service) error {
				if day == nil {
					today := svc.Today()
					day = &today
				}
				n, err := svc.Recompute(cmd.Context(), day)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"ok":           true,
					"updated_rows": n,
					"date":         model.FormatDate(*day),
				})
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to recompute, YYYY-MM-DD (default today)")
	return cmd
}

func newIngestCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Collect sample BODACC notices and ingest them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("%w: --limit must be >= 0", model.ErrValidation)
			}
			return withService(cmd.Context(), g, func(svc *service.Service) error {
				rep, err := svc.CollectAndIngest(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum notices to collect (default from config)")
	return cmd
}

func newCheckLinksCmd(g *globalFlags) *cobra.Command {
	var p linkcheck.Params
	cmd := &cobra.Command{
		Use:   "check-links",
		Short: "Probe recent signal URLs and tag broken ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd.Context(), g, func(svc *service.Service) error {
				rep, err := svc.CheckLinks(cmd.Context(), p)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
	cmd.Flags().IntVar(&p.LookbackDays, "lookback-days", 0, "days of signals to sweep (default from config)")
	cmd.Flags().IntVar(&p.Limit, "limit", 0, "maximum signals to check (default from config)")
	return cmd
}

func newMigrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, log, err := setup(ctx, g)
			if err != nil {
				return err
			}
			return migrate(ctx, cfg, log)
		},
	}
}

func migrate(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	start := time.Now()
	store, err := service.OpenStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	counts, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	log.Info(ctx, "schema up to date",
		logger.String("driver", cfg.Database.Driver),
		logger.Int64("companies", counts.Companies),
		logger.Int64("signals", counts.Signals),
		logger.Duration("took", time.Since(start)),
	)
	return nil
}

func parseDateFlag(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("--date: %w", err)
	}
	return &d, nil
}
