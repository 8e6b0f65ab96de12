package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"token-screener/internal/classify"
	"token-screener/internal/config"
	"token-screener/internal/domain"
	"token-screener/internal/ingestion"
	"token-screener/internal/pipeline"
	"token-screener/internal/report"
	"token-screener/internal/retention"
	"token-screener/internal/solana"
	"token-screener/internal/sources"
	"token-screener/internal/storage"
	chstore "token-screener/internal/storage/clickhouse"
	"token-screener/internal/storage/memory"
	"token-screener/internal/storage/migrations"
	pgstore "token-screener/internal/storage/postgres"
	"token-screener/internal/window"
)

// app holds the wired components of one process.
type app struct {
	cfg       config.Config
	location  *time.Location
	pipeline  *pipeline.Pipeline
	retention *retention.Store
	logger    *zap.Logger
	closers   []func()
}

// Close releases connections and caches in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// buildOptions control wiring choices that are not part of Config.
type buildOptions struct {
	UseMemory bool
	Reference time.Time // anchors the static fixture source; zero means now
}

// stores holds the retention backends.
type stores struct {
	raw     storage.RawLogStore
	passed  storage.PassedAssetStore
	runLog  storage.RunLogStore
	mirrors []storage.RunLogStore
	leases  storage.LeaseStore
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts buildOptions) (_ *app, err error) {
	loc, err := window.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, location: loc, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	st, err := a.createStores(ctx, opts.UseMemory)
	if err != nil {
		return nil, err
	}

	adapters, err := a.buildAdapters(opts.Reference)
	if err != nil {
		return nil, err
	}

	mode, err := classify.ParseMode(cfg.ClassifierMode)
	if err != nil {
		return nil, err
	}
	classifier, err := classify.FromConfig(classify.Config{
		Mode:       mode,
		Thresholds: cfg.Thresholds,
		RulesFile:  cfg.RulesFile,
		Heuristic:  cfg.Heuristic,
	})
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	a.retention, err = retention.New(retention.Options{
		RawLog:  st.raw,
		Passed:  st.passed,
		RunLog:  st.runLog,
		Mirrors: st.mirrors,
		Policy:  domain.ConflictPolicy(cfg.ConflictPolicy),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	notifier, err := a.buildNotifier()
	if err != nil {
		return nil, err
	}

	windowMode, ok := window.ParseMode(cfg.AnalysisMode)
	if !ok {
		logger.Warn("unknown analysis mode, using default",
			zap.String("analysis_mode", cfg.AnalysisMode),
			zap.String("default", string(windowMode)))
	}

	collector := ingestion.NewCollector(ingestion.Options{
		MaxRetries:   cfg.FetchRetries,
		FetchTimeout: cfg.FetchTimeout,
		Parallel:     cfg.ParallelFetch,
		Logger:       logger,
	})

	a.pipeline, err = pipeline.New(pipeline.Options{
		Collector:      collector,
		Adapters:       adapters,
		Classifier:     classifier,
		Retention:      a.retention,
		Notifier:       notifier,
		Leases:         st.leases,
		LeaseTTL:       cfg.RunLeaseTTL,
		Location:       loc,
		MaxRecords:     cfg.MaxRaw,
		RetentionHours: cfg.RetentionHours,
		PurgeNonPassed: cfg.PurgeNonPassed,
		NotifyTimeout:  cfg.NotifyTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("wired",
		zap.Strings("sources", cfg.Sources),
		zap.String("classifier", string(mode)),
		zap.String("timezone", loc.String()),
		zap.Bool("memory", opts.UseMemory),
		zap.Bool("telegram", cfg.TelegramEnabled()),
		zap.Bool("holder_stats", cfg.SolanaRPCEndpoint != ""),
	)
	return a, nil
}

// createStores returns memory stores, or Postgres stores with an optional
// ClickHouse run-log mirror. Migrations are applied on connect.
func (a *app) createStores(ctx context.Context, useMemory bool) (*stores, error) {
	if useMemory {
		return &stores{
			raw:    memory.NewRawLogStore(),
			passed: memory.NewPassedAssetStore(),
			runLog: memory.NewRunLogStore(),
			leases: memory.NewLeaseStore(),
		}, nil
	}
	if a.cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required (use --use-memory for in-memory storage)")
	}

	pool, err := openPostgres(ctx, a.cfg.DatabaseURL, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)

	st := &stores{
		raw:    pgstore.NewRawLogStore(pool),
		passed: pgstore.NewPassedAssetStore(pool),
		runLog: pgstore.NewRunLogStore(pool),
		leases: pgstore.NewLeaseStore(pool),
	}

	if a.cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, a.cfg.ClickhouseDSN)
		if err != nil {
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		a.closers = append(a.closers, func() { conn.Close() })
		st.mirrors = append(st.mirrors, chstore.NewRunLogStore(conn))
	}
	return st, nil
}

func openPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*pgstore.Pool, error) {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("postgres migrations applied", zap.Strings("files", applied))
	}
	return pool, nil
}

// buildAdapters creates adapters in the configured priority order.
func (a *app) buildAdapters(ref time.Time) ([]sources.Adapter, error) {
	var enricher *sources.HolderEnricher
	if a.cfg.SolanaRPCEndpoint != "" {
		var err error
		enricher, err = sources.NewHolderEnricher(
			solana.NewHTTPClient(a.cfg.SolanaRPCEndpoint),
			sources.HolderEnricherOptions{Logger: a.logger},
		)
		if err != nil {
			return nil, fmt.Errorf("holder enricher: %w", err)
		}
		a.closers = append(a.closers, enricher.Close)
	}
	if ref.IsZero() {
		ref = time.Now()
	}

	adapters := make([]sources.Adapter, 0, len(a.cfg.Sources))
	for _, name := range a.cfg.Sources {
		var ad sources.Adapter
		switch domain.Source(name) {
		case domain.SourceCoinGecko:
			ad = sources.NewCoinGecko(sources.CoinGeckoOptions{
				APIKey:  a.cfg.CoinGeckoAPIKey,
				Timeout: a.cfg.FetchTimeout,
			})
		case domain.SourceDexScreener:
			ad = sources.NewDexScreener(sources.DexScreenerOptions{
				Queries: a.cfg.DexScreenerQueries,
				Timeout: a.cfg.FetchTimeout,
			})
		case domain.SourceStatic:
			ad = pipeline.FixtureAdapter(ref, a.location)
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
		adapters = append(adapters, sources.WithHolderStats(ad, enricher))
	}
	return adapters, nil
}

func (a *app) buildNotifier() (report.Notifier, error) {
	if !a.cfg.TelegramEnabled() {
		return report.NewLogNotifier(a.logger), nil
	}
	n, err := report.NewTelegramNotifier(report.TelegramOptions{
		Token:   a.cfg.TelegramBotToken,
		ChatID:  a.cfg.TelegramChatID,
		Timeout: a.cfg.NotifyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram notifier: %w", err)
	}
	return n, nil
}
