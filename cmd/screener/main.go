// Command screener collects candidate assets from market-data sources,
// classifies the previous local day's records, keeps the ones that pass and
// posts a digest.
//
// Usage:
//
//	screener run      one pass, prints the run result as JSON
//	screener serve    HTTP trigger + daily cron schedule
//	screener migrate  apply database migrations
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"token-screener/internal/config"
	"token-screener/internal/logging"
	"token-screener/internal/pipeline"
	"token-screener/internal/scheduler"
	"token-screener/internal/server"
	"token-screener/internal/storage/migrations"
)

// globalFlags are shared by all subcommands.
type globalFlags struct {
	configPath string
	useMemory  bool
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:          "screener",
		Short:        "Daily crypto asset screener",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML config file")
	root.PersistentFlags().BoolVar(&g.useMemory, "use-memory", false, "Use in-memory storage instead of PostgreSQL")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	root.AddCommand(newRunCmd(g), newServeCmd(g), newMigrateCmd(g))
	return root
}

// setup loads configuration and builds the logger.
func (g *globalFlags) setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, false)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		reference string
		noNotify  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one collection, classification and retention pass",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			var ref time.Time
			if reference != "" {
				ref, err = time.Parse(time.RFC3339, reference)
				if err != nil {
					return fmt.Errorf("--reference must be RFC3339: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger, buildOptions{UseMemory: g.useMemory, Reference: ref})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.pipeline.RunOnce(ctx, pipeline.RunOptions{Reference: ref, SkipNotify: noNotify})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "Window reference instant (RFC3339); default now")
	cmd.Flags().BoolVar(&noNotify, "no-notify", false, "Skip the digest")
	return cmd
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP trigger and run on the daily schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger, buildOptions{UseMemory: g.useMemory})
			if err != nil {
				return err
			}
			defer a.Close()

			return serve(ctx, a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	return cmd
}

// serve blocks until ctx is cancelled.
func serve(ctx context.Context, a *app) error {
	if a.cfg.Schedule != "" {
		sched, err := scheduler.New(func(ctx context.Context) error {
			_, err := a.pipeline.RunOnce(ctx, pipeline.RunOptions{})
			return err
		}, scheduler.Options{
			Schedule: a.cfg.Schedule,
			Location: a.location,
			Logger:   a.logger,
		})
		if err != nil {
			return err
		}
		sched.Start(ctx)
		defer sched.Stop()
		a.logger.Info("schedule registered",
			zap.String("schedule", a.cfg.Schedule),
			zap.Time("next", sched.Next()))
	}

	srv := server.New(server.Options{
		Runner:  a.pipeline,
		History: a.retention,
		Logger:  a.logger,
	})
	if err := srv.ListenAndServe(ctx, a.cfg.HTTPAddr); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}

func newMigrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL and ClickHouse migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}

			ctx := cmd.Context()
			pool, err := openPostgres(ctx, cfg.DatabaseURL, logger)
			if err != nil {
				return err
			}
			pool.Close()

			if cfg.ClickhouseDSN != "" {
				conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
				if err != nil {
					return fmt.Errorf("clickhouse: %w", err)
				}
				conn.Close()
				logger.Info("clickhouse migrations applied")
			}
			return nil
		},
	}
}
