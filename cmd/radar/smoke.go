package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agiraud1/radar-fr/internal/config"
	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/internal/smoke"
	"github.com/agiraud1/radar-fr/pkg/logger"
)

func newSmokeCmd(g *globalFlags) *cobra.Command {
	cfg := smoke.DefaultConfig()
	var date string

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Ingest generated notices into a running server and verify its ranking",
		Long: `smoke posts generated notices to /collector/ingest, recomputes the day and
checks /api/scores/daily against totals computed with the built-in rules.
The target server must run with the default classifier.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := logger.InitWith(os.Stderr, g.logFormat); err != nil {
				return err
			}
			if g.logLevel != "" {
				if err := logger.SetLevelString(g.logLevel); err != nil {
					return err
				}
			}
			if cfg.Token == "" {
				cfg.Token = os.Getenv(config.EnvPrefix + "INTERNAL_TOKEN")
			}
			cfg.Date = time.Now().UTC()
			if date != "" {
				d, err := model.ParseDate(date)
				if err != nil {
					return err
				}
				cfg.Date = d
			}

			r, err := smoke.New(cfg, smoke.WithLogger(logger.Get().Named("smoke")))
			if err != nil {
				return err
			}
			stats, err := r.Run(ctx)
			if perr := printJSON(cmd.OutOrStdout(), stats); perr != nil && err == nil {
				err = perr
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the radar server")
	f.StringVar(&cfg.Token, "token", "", "internal token (default $"+config.EnvPrefix+"INTERNAL_TOKEN)")
	f.StringVar(&date, "date", "", "event date of the generated notices, YYYY-MM-DD (default today UTC)")
	f.IntVar(&cfg.Companies, "companies", cfg.Companies, "number of generated companies")
	f.IntVar(&cfg.MaxNoticesPerCompany, "max-notices", cfg.MaxNoticesPerCompany, "maximum notices per company")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent submitters")
	f.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "notices per ingest request")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.Int64Var(&cfg.Seed, "seed", cfg.Seed, "generator seed")
	return cmd
}
